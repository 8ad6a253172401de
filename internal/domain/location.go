package domain

type LocationKind string

const (
	LocationCity     LocationKind = "city"
	LocationDistrict LocationKind = "district"
)

// LocationNode is one level of the administrative hierarchy
// (city -> district). Parcels attach to a district; the city is derived.
type LocationNode struct {
	ID       string       `json:"id"`
	Name     string       `json:"name"`
	Kind     LocationKind `json:"kind"`
	ParentID string       `json:"parent_id,omitempty"`
}
