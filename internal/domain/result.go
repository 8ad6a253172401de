package domain

type SourceKind string

const (
	SourceGraph      SourceKind = "graph"
	SourceProximity  SourceKind = "proximity"
	SourceSemantic   SourceKind = "semantic"
	SourceStructural SourceKind = "structural"
)

// Contribution is one source's share of a parcel's fused score. Rank is the
// 1-based position in that source's ranking, 0 for unranked sources
// (the graph gate contributes membership, not order).
type Contribution struct {
	Source SourceKind `json:"source"`
	Score  float64    `json:"score"`
	Rank   int        `json:"rank,omitempty"`
}

// RankedResult is one fused candidate. Request-scoped.
type RankedResult struct {
	ParcelID      string         `json:"parcel_id"`
	Score         float64        `json:"score"`
	Proximity     float64        `json:"proximity"`
	Contributions []Contribution `json:"contributions"`
}

// Teaser is the free reduced-detail representation of a result. It never
// carries the parcel id or exact centroid.
type Teaser struct {
	ApproxLocation string   `json:"approx_location"`
	AreaClass      string   `json:"area_class"`
	Highlights     []string `json:"highlights"`
}

// Reveal is the full-detail representation unlocked by one credit.
type Reveal struct {
	Parcel      *Parcel  `json:"parcel"`
	Explanation string   `json:"explanation"`
	Highlights  []string `json:"highlights"`
}
