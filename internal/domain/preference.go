package domain

// RawPreference is the loosely structured request body coming from the
// conversational agent. Everything is optional except location, area range
// and caller identity; the normalizer decides what is usable.
type RawPreference struct {
	Location         string             `json:"location"`
	AreaM2           [2]float64         `json:"area_m2"`
	OwnershipType    string             `json:"ownership_type,omitempty"`
	BuildStatus      string             `json:"build_status,omitempty"`
	SizeCategory     string             `json:"size_category,omitempty"`
	POGResidential   *bool              `json:"pog_residential,omitempty"`
	ProximityWeights map[string]float64 `json:"proximity_weights,omitempty"`
	NearPOI          string             `json:"near_poi,omitempty"`
	FreeText         string             `json:"free_text,omitempty"`
	SimilarToParcel  string             `json:"similar_to_parcel_id,omitempty"`
	CallerID         string             `json:"caller_id"`
	SessionID        string             `json:"session_id,omitempty"`
}

// Filters are the canonical graph predicates after normalization.
type Filters struct {
	Location        LocationNode
	AreaMin         float64
	AreaMax         float64
	Ownership       *OwnershipType
	BuildStatus     *BuildStatus
	SizeClass       *SizeClass
	ResidentialOnly bool
}

// PreferenceQuery is the request-scoped canonical query. It is discarded
// after the response is produced.
type PreferenceQuery struct {
	Filters    Filters
	Weights    map[POIType]float64
	TextVector []float32 // semantic embedding, SemanticDim, nil when no free text
	SeedParcel string    // structural branch seed, empty when unused
	CallerID   string
	SessionID  string
}

// HasSemanticBranch reports whether the semantic vector branch runs.
func (q *PreferenceQuery) HasSemanticBranch() bool {
	return q != nil && len(q.TextVector) > 0
}

// HasStructuralBranch reports whether the structural vector branch runs.
func (q *PreferenceQuery) HasStructuralBranch() bool {
	return q != nil && q.SeedParcel != ""
}
