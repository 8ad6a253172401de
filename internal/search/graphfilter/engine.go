package graphfilter

import (
	"context"

	"github.com/plotwise/plotwise-backend/internal/domain"
)

// MatchResult is the outcome of predicate filtering. IDs are unordered;
// ordering determinism is enforced by rank fusion downstream.
type MatchResult struct {
	IDs   []string
	Total int
	// ScopeBreakdown counts parcels matching the non-location predicates at
	// the next coarser location level (sibling districts of a district
	// scope, districts of a city scope). It drives too-narrow/too-broad
	// feedback in the agent.
	ScopeBreakdown map[string]int
}

// Engine executes multi-hop categorical filtering against one generation of
// graph data. An empty match set is a normal result, not an error.
type Engine interface {
	Match(ctx context.Context, f domain.Filters) (MatchResult, error)
	// Count is the count-only mode: same predicates, no id materialization.
	Count(ctx context.Context, f domain.Filters) (int, map[string]int, error)
	// ResolveLocation returns every location node whose name matches the
	// description. Zero or multiple matches are surfaced to the normalizer,
	// which turns them into an invalid-preference error rather than guessing.
	ResolveLocation(ctx context.Context, description string) ([]domain.LocationNode, error)
	// ListLocations returns the full location hierarchy of the generation,
	// used to render approximate locations without further graph calls.
	ListLocations(ctx context.Context) ([]domain.LocationNode, error)
}
