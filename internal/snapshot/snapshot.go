package snapshot

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/plotwise/plotwise-backend/internal/domain"
	"github.com/plotwise/plotwise-backend/internal/observability"
	"github.com/plotwise/plotwise-backend/internal/platform/logger"
	"github.com/plotwise/plotwise-backend/internal/search/dualindex"
	"github.com/plotwise/plotwise-backend/internal/search/graphfilter"
	"github.com/plotwise/plotwise-backend/internal/search/proximity"
)

// Snapshot is one generation's worth of read-only retrieval handles. All
// handles are bound to the same generation id; the ETL collaborator
// guarantees each generation is internally consistent.
type Snapshot struct {
	Generation string
	LoadedAt   time.Time

	Graph     graphfilter.Engine
	Proximity *proximity.Index
	Vectors   *dualindex.Dual

	// Locations maps location node id to node, for rendering approximate
	// locations without another graph round-trip.
	Locations map[string]domain.LocationNode
}

// LocationName resolves a location node id to its display name, empty when
// unknown.
func (s *Snapshot) LocationName(id string) string {
	if s == nil {
		return ""
	}
	return s.Locations[id].Name
}

// Loader builds the handle set for a generation. Implementations live in the
// app wiring, where the configured backends are known.
type Loader interface {
	Load(ctx context.Context, generationID string) (*Snapshot, error)
}

// Provider holds the currently served snapshot and swaps it atomically on
// reload. In-flight requests keep the snapshot pointer they grabbed at
// request start, so a reload never changes data mid-request.
type Provider struct {
	log     *logger.Logger
	loader  Loader
	current atomic.Pointer[Snapshot]

	// reloadMu serializes reloads; concurrent reload calls for different
	// generations would otherwise race on which one wins.
	reloadMu sync.Mutex
}

func NewProvider(log *logger.Logger, loader Loader) (*Provider, error) {
	if log == nil {
		return nil, fmt.Errorf("snapshot: logger required")
	}
	if loader == nil {
		return nil, fmt.Errorf("snapshot: loader required")
	}
	return &Provider{log: log.With("service", "SnapshotProvider"), loader: loader}, nil
}

// Current returns the serving snapshot, or nil before the first successful
// load. Callers grab it once per request and pass it down.
func (p *Provider) Current() *Snapshot {
	return p.current.Load()
}

// Reload loads the named generation and swaps it in. The prior generation
// keeps serving until the swap, and in-flight requests drain on their own
// references; a failed load leaves the current snapshot untouched.
func (p *Provider) Reload(ctx context.Context, generationID string) (*Snapshot, error) {
	generationID = strings.TrimSpace(generationID)
	if generationID == "" {
		return nil, fmt.Errorf("snapshot: generation id required")
	}

	p.reloadMu.Lock()
	defer p.reloadMu.Unlock()

	if cur := p.current.Load(); cur != nil && cur.Generation == generationID {
		p.log.Info("Reload skipped, generation already serving", "generation", generationID)
		return cur, nil
	}

	started := time.Now()
	next, err := p.loader.Load(ctx, generationID)
	if err != nil {
		observability.Current().ObserveSnapshotReload("error", time.Since(started))
		p.log.Error("Snapshot load failed, keeping current generation",
			"generation", generationID, "error", err)
		return nil, fmt.Errorf("snapshot: load generation %q: %w", generationID, err)
	}
	if next == nil {
		return nil, fmt.Errorf("snapshot: loader returned nil for generation %q", generationID)
	}
	next.Generation = generationID
	if next.LoadedAt.IsZero() {
		next.LoadedAt = time.Now()
	}

	prev := p.current.Swap(next)
	prevGen := ""
	if prev != nil {
		prevGen = prev.Generation
	}
	observability.Current().ObserveSnapshotReload("ok", time.Since(started))
	p.log.Info("Snapshot generation swapped",
		"generation", generationID,
		"previous", prevGen,
		"load_ms", time.Since(started).Milliseconds())
	return next, nil
}
