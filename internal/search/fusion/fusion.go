package fusion

import (
	"sort"

	"github.com/plotwise/plotwise-backend/internal/domain"
	"github.com/plotwise/plotwise-backend/internal/platform/vector"
)

// Inputs are the per-request retrieval signals. GraphIDs is the hard gate:
// parcels absent from it never appear in the output, whatever the other
// sources say. ProximityScore maps gated ids to their composite score;
// missing entries read as 0.
type Inputs struct {
	GraphIDs       []string
	ProximityScore map[string]float64
	Semantic       []vector.Match
	Structural     []vector.Match
	KConst         float64
}

// Fuse merges the signals into one deterministic ranking. The proximity
// composite enters the score directly, so a graph-plus-default-weights
// query reduces to ordering by the composite alone; each ranked vector
// source adds the reciprocal-rank term 1/(rank + kConst). Ties break by
// higher proximity composite, then ascending parcel id.
func Fuse(in Inputs) []domain.RankedResult {
	kConst := in.KConst
	if kConst <= 0 {
		kConst = DefaultTuning().KConst
	}

	gate := make(map[string]*domain.RankedResult, len(in.GraphIDs))
	results := make([]*domain.RankedResult, 0, len(in.GraphIDs))
	for _, id := range in.GraphIDs {
		if _, dup := gate[id]; dup {
			continue
		}
		prox := in.ProximityScore[id]
		r := &domain.RankedResult{
			ParcelID:  id,
			Score:     prox,
			Proximity: prox,
			Contributions: []domain.Contribution{
				{Source: domain.SourceGraph},
				{Source: domain.SourceProximity, Score: prox},
			},
		}
		gate[id] = r
		results = append(results, r)
	}

	addRanked(gate, in.Semantic, domain.SourceSemantic, kConst)
	addRanked(gate, in.Structural, domain.SourceStructural, kConst)

	sort.Slice(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		if results[i].Proximity != results[j].Proximity {
			return results[i].Proximity > results[j].Proximity
		}
		return results[i].ParcelID < results[j].ParcelID
	})

	out := make([]domain.RankedResult, len(results))
	for i, r := range results {
		out[i] = *r
	}
	return out
}

func addRanked(gate map[string]*domain.RankedResult, matches []vector.Match, source domain.SourceKind, kConst float64) {
	for i, m := range matches {
		r, ok := gate[m.ID]
		if !ok {
			continue
		}
		rank := i + 1
		share := 1 / (float64(rank) + kConst)
		r.Score += share
		r.Contributions = append(r.Contributions, domain.Contribution{
			Source: source,
			Score:  share,
			Rank:   rank,
		})
	}
}
