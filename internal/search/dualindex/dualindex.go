package dualindex

import (
	"context"
	"errors"
	"fmt"

	"github.com/plotwise/plotwise-backend/internal/domain"
	pkgerrors "github.com/plotwise/plotwise-backend/internal/pkg/errors"
	"github.com/plotwise/plotwise-backend/internal/platform/logger"
	"github.com/plotwise/plotwise-backend/internal/platform/vector"
)

// DefaultInflationFactor is the over-fetch multiplier applied when the
// backing index cannot pre-filter by id set: topK*factor candidates are
// fetched, then filtered down to topK. Factor 4 keeps recall acceptable for
// permitted sets down to roughly a quarter of the corpus; narrower sets
// should come from the graph gate anyway.
const DefaultInflationFactor = 4

// Dual bundles the two independently queryable embedding spaces. Both
// handles belong to the same generation.
type Dual struct {
	log        *logger.Logger
	semantic   vector.Index
	structural vector.Index
	inflation  int
}

func New(log *logger.Logger, semantic, structural vector.Index, inflation int) (*Dual, error) {
	if log == nil {
		return nil, fmt.Errorf("dualindex: logger required")
	}
	if semantic == nil || structural == nil {
		return nil, fmt.Errorf("dualindex: both index handles required")
	}
	if semantic.Dim() != domain.SemanticDim {
		return nil, fmt.Errorf("dualindex: semantic dimension mismatch: expected=%d got=%d",
			domain.SemanticDim, semantic.Dim())
	}
	if structural.Dim() != domain.StructuralDim {
		return nil, fmt.Errorf("dualindex: structural dimension mismatch: expected=%d got=%d",
			domain.StructuralDim, structural.Dim())
	}
	if inflation <= 0 {
		inflation = DefaultInflationFactor
	}
	return &Dual{
		log:        log.With("service", "DualVectorIndex"),
		semantic:   semantic,
		structural: structural,
		inflation:  inflation,
	}, nil
}

// QuerySemantic returns up to topK (id, cosine) pairs from the text
// embedding space, restricted to the allowed set when non-nil.
func (d *Dual) QuerySemantic(ctx context.Context, q []float32, topK int, allowed map[string]struct{}) ([]vector.Match, error) {
	return d.query(ctx, d.semantic, q, topK, allowed, "")
}

// QueryStructural queries the graph-embedding space by explicit vector.
func (d *Dual) QueryStructural(ctx context.Context, q []float32, topK int, allowed map[string]struct{}) ([]vector.Match, error) {
	return d.query(ctx, d.structural, q, topK, allowed, "")
}

// QueryStructuralBySeed looks up the seed parcel's structural vector and
// queries with it, excluding the seed itself from the result. A seed without
// a stored vector yields pkg ErrNotFound; the pipeline treats that as a
// skipped branch.
func (d *Dual) QueryStructuralBySeed(ctx context.Context, seedParcelID string, topK int, allowed map[string]struct{}) ([]vector.Match, error) {
	seed, err := d.structural.Fetch(ctx, seedParcelID)
	if err != nil {
		if errors.Is(err, pkgerrors.ErrNotFound) {
			return nil, pkgerrors.ErrNotFound
		}
		return nil, fmt.Errorf("dualindex: fetch seed vector: %w", err)
	}
	return d.query(ctx, d.structural, seed, topK, allowed, seedParcelID)
}

func (d *Dual) query(ctx context.Context, idx vector.Index, q []float32, topK int, allowed map[string]struct{}, exclude string) ([]vector.Match, error) {
	if topK <= 0 {
		topK = 10
	}

	fetchK := topK
	nativeFilter := allowed == nil || idx.SupportsFilter()
	if !nativeFilter {
		fetchK = topK * d.inflation
	}
	if exclude != "" {
		fetchK++
	}

	var pass map[string]struct{}
	if allowed != nil && idx.SupportsFilter() {
		pass = allowed
	}
	matches, err := idx.Query(ctx, q, fetchK, pass)
	if err != nil {
		return nil, err
	}

	out := make([]vector.Match, 0, topK)
	for _, m := range matches {
		if m.ID == exclude {
			continue
		}
		if allowed != nil && !nativeFilter {
			if _, ok := allowed[m.ID]; !ok {
				continue
			}
		}
		out = append(out, m)
		if len(out) == topK {
			break
		}
	}
	return out, nil
}
