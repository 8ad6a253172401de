package vector

import "context"

// Match is one nearest-neighbor hit. Score is cosine similarity, higher is
// better.
type Match struct {
	ID    string
	Score float64
}

// Index is a read-only nearest-neighbor handle over one embedding space.
// The same retrieval logic runs whether the backend is in-memory, an
// external ANN service, or a database extension.
//
// Query returns up to topK matches ordered by descending score, ties broken
// by ascending id. When allowed is non-nil the result is restricted to that
// id set; backends without native pre-filtering report it via
// SupportsFilter and callers must over-fetch and filter themselves.
type Index interface {
	Query(ctx context.Context, q []float32, topK int, allowed map[string]struct{}) ([]Match, error)
	// Fetch returns the stored vector for id, or errors.ErrNotFound.
	Fetch(ctx context.Context, id string) ([]float32, error)
	Dim() int
	SupportsFilter() bool
}
