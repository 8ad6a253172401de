package vector

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"

	pkgerrors "github.com/plotwise/plotwise-backend/internal/pkg/errors"
)

// MemoryIndex is an in-process cosine index used in local mode and tests.
// Like most embedded ANN structures it has no native id filtering, so it
// reports SupportsFilter() == false and callers over-fetch.
type MemoryIndex struct {
	mu      sync.RWMutex
	dim     int
	vectors map[string][]float32
}

func NewMemoryIndex(dim int) *MemoryIndex {
	return &MemoryIndex{
		dim:     dim,
		vectors: make(map[string][]float32),
	}
}

func (m *MemoryIndex) Dim() int             { return m.dim }
func (m *MemoryIndex) SupportsFilter() bool { return false }

// Add stores or replaces a vector. Used by the snapshot loader and fixtures.
func (m *MemoryIndex) Add(id string, vec []float32) error {
	if id == "" {
		return fmt.Errorf("vector: id required")
	}
	if len(vec) != m.dim {
		return fmt.Errorf("vector: dimension mismatch: expected=%d got=%d", m.dim, len(vec))
	}
	cp := make([]float32, len(vec))
	copy(cp, vec)
	m.mu.Lock()
	m.vectors[id] = cp
	m.mu.Unlock()
	return nil
}

func (m *MemoryIndex) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.vectors)
}

func (m *MemoryIndex) Fetch(_ context.Context, id string) ([]float32, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	vec, ok := m.vectors[id]
	if !ok {
		return nil, pkgerrors.ErrNotFound
	}
	out := make([]float32, len(vec))
	copy(out, vec)
	return out, nil
}

func (m *MemoryIndex) Query(_ context.Context, q []float32, topK int, _ map[string]struct{}) ([]Match, error) {
	if len(q) != m.dim {
		return nil, fmt.Errorf("vector: query dimension mismatch: expected=%d got=%d", m.dim, len(q))
	}
	if topK <= 0 {
		topK = 10
	}

	m.mu.RLock()
	matches := make([]Match, 0, len(m.vectors))
	for id, vec := range m.vectors {
		matches = append(matches, Match{ID: id, Score: cosine(q, vec)})
	}
	m.mu.RUnlock()

	sort.Slice(matches, func(i, j int) bool {
		if matches[i].Score == matches[j].Score {
			return matches[i].ID < matches[j].ID
		}
		return matches[i].Score > matches[j].Score
	})
	if len(matches) > topK {
		matches = matches[:topK]
	}
	return matches, nil
}

func cosine(a, b []float32) float64 {
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}
