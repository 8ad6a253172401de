package normalize

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/plotwise/plotwise-backend/internal/domain"
	pkgerrors "github.com/plotwise/plotwise-backend/internal/pkg/errors"
	"github.com/plotwise/plotwise-backend/internal/platform/logger"
	"github.com/plotwise/plotwise-backend/internal/platform/openai"
	"github.com/plotwise/plotwise-backend/internal/search/graphfilter"
	"github.com/plotwise/plotwise-backend/internal/search/proximity"
)

type stubEmbedder struct {
	vectors [][]float32
	err     error
	calls   int
}

func (s *stubEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	return s.vectors, nil
}

func newTestNormalizer(t *testing.T, embedder *stubEmbedder) (*Normalizer, graphfilter.Engine, *proximity.Index) {
	t.Helper()
	log, err := logger.New("development")
	if err != nil {
		t.Fatalf("logger init: %v", err)
	}

	engine := graphfilter.NewMemoryEngine(log, nil, nil, []domain.LocationNode{
		{ID: "c1", Name: "Riverton", Kind: domain.LocationCity},
		{ID: "d1", Name: "Old Town", Kind: domain.LocationDistrict, ParentID: "c1"},
		{ID: "d2", Name: "New Town", Kind: domain.LocationDistrict, ParentID: "c1"},
	})
	prox := proximity.NewIndex(log, nil, []domain.POI{
		{ID: "poi1", Type: domain.POISchool, Name: "Lakeside School"},
	}, nil)

	weights := map[domain.POIType]float64{domain.POISchool: 0.3, domain.POIRoad: 0.5}
	var client openai.Client
	if embedder != nil {
		client = embedder
	}
	n, err := New(log, client, weights)
	if err != nil {
		t.Fatalf("normalizer init: %v", err)
	}
	return n, engine, prox
}

func validRaw() domain.RawPreference {
	return domain.RawPreference{
		Location: "Old Town",
		CallerID: "caller-1",
	}
}

func TestNormalize_MissingCallerIDRejected(t *testing.T) {
	n, engine, prox := newTestNormalizer(t, nil)
	raw := validRaw()
	raw.CallerID = ""

	_, err := n.Normalize(context.Background(), raw, engine, prox)
	if !errors.Is(err, pkgerrors.ErrInvalidPreference) {
		t.Fatalf("expected ErrInvalidPreference, got %v", err)
	}
}

func TestNormalize_UnknownLocationRejected(t *testing.T) {
	n, engine, prox := newTestNormalizer(t, nil)
	raw := validRaw()
	raw.Location = "Atlantis"

	_, err := n.Normalize(context.Background(), raw, engine, prox)
	if !errors.Is(err, pkgerrors.ErrInvalidPreference) {
		t.Fatalf("expected ErrInvalidPreference, got %v", err)
	}
}

func TestNormalize_AmbiguousLocationListsCandidates(t *testing.T) {
	n, engine, prox := newTestNormalizer(t, nil)
	raw := validRaw()
	raw.Location = "Town"

	_, err := n.Normalize(context.Background(), raw, engine, prox)
	if !errors.Is(err, pkgerrors.ErrInvalidPreference) {
		t.Fatalf("expected ErrInvalidPreference, got %v", err)
	}
	if !strings.Contains(err.Error(), "Old Town") || !strings.Contains(err.Error(), "New Town") {
		t.Fatalf("expected candidate names in error, got %q", err.Error())
	}
}

func TestNormalize_InvertedAreaRangeRejected(t *testing.T) {
	n, engine, prox := newTestNormalizer(t, nil)
	raw := validRaw()
	raw.AreaM2 = [2]float64{2000, 500}

	_, err := n.Normalize(context.Background(), raw, engine, prox)
	if !errors.Is(err, pkgerrors.ErrInvalidPreference) {
		t.Fatalf("expected ErrInvalidPreference, got %v", err)
	}
}

func TestNormalize_ZeroMaxAreaMeansUnbounded(t *testing.T) {
	n, engine, prox := newTestNormalizer(t, nil)
	raw := validRaw()
	raw.AreaM2 = [2]float64{500, 0}

	q, err := n.Normalize(context.Background(), raw, engine, prox)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if q.Filters.AreaMin != 500 || q.Filters.AreaMax != 0 {
		t.Fatalf("expected [500, unbounded], got [%g, %g]", q.Filters.AreaMin, q.Filters.AreaMax)
	}
}

func TestNormalize_UnknownEnumRejected(t *testing.T) {
	n, engine, prox := newTestNormalizer(t, nil)
	raw := validRaw()
	raw.OwnershipType = "feudal"

	_, err := n.Normalize(context.Background(), raw, engine, prox)
	if !errors.Is(err, pkgerrors.ErrInvalidPreference) {
		t.Fatalf("expected ErrInvalidPreference, got %v", err)
	}
}

func TestNormalize_EnumMatchingIsCaseInsensitive(t *testing.T) {
	n, engine, prox := newTestNormalizer(t, nil)
	raw := validRaw()
	raw.BuildStatus = " Vacant "

	q, err := n.Normalize(context.Background(), raw, engine, prox)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if q.Filters.BuildStatus == nil || *q.Filters.BuildStatus != domain.BuildStatusVacant {
		t.Fatalf("expected vacant build status, got %+v", q.Filters.BuildStatus)
	}
}

func TestNormalize_DefaultWeightsWhenNoneGiven(t *testing.T) {
	n, engine, prox := newTestNormalizer(t, nil)

	q, err := n.Normalize(context.Background(), validRaw(), engine, prox)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if q.Weights[domain.POIRoad] != 0.5 {
		t.Fatalf("expected default road weight 0.5, got %g", q.Weights[domain.POIRoad])
	}
}

func TestNormalize_WeightOutsideUnitIntervalRejected(t *testing.T) {
	n, engine, prox := newTestNormalizer(t, nil)
	raw := validRaw()
	raw.ProximityWeights = map[string]float64{"school": 1.5}

	_, err := n.Normalize(context.Background(), raw, engine, prox)
	if !errors.Is(err, pkgerrors.ErrInvalidPreference) {
		t.Fatalf("expected ErrInvalidPreference, got %v", err)
	}
}

func TestNormalize_UnknownWeightKeyRejected(t *testing.T) {
	n, engine, prox := newTestNormalizer(t, nil)
	raw := validRaw()
	raw.ProximityWeights = map[string]float64{"volcano": 0.4}

	_, err := n.Normalize(context.Background(), raw, engine, prox)
	if !errors.Is(err, pkgerrors.ErrInvalidPreference) {
		t.Fatalf("expected ErrInvalidPreference, got %v", err)
	}
}

func TestNormalize_NearPOIRaisesWeightFloor(t *testing.T) {
	n, engine, prox := newTestNormalizer(t, nil)
	raw := validRaw()
	raw.NearPOI = "lakeside school"

	q, err := n.Normalize(context.Background(), raw, engine, prox)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if q.Weights[domain.POISchool] < nearPOIMinWeight {
		t.Fatalf("expected school weight >= %g, got %g", nearPOIMinWeight, q.Weights[domain.POISchool])
	}
}

func TestNormalize_UnresolvableNearPOIRejected(t *testing.T) {
	n, engine, prox := newTestNormalizer(t, nil)
	raw := validRaw()
	raw.NearPOI = "the opera house"

	_, err := n.Normalize(context.Background(), raw, engine, prox)
	if !errors.Is(err, pkgerrors.ErrInvalidPreference) {
		t.Fatalf("expected ErrInvalidPreference, got %v", err)
	}
}

func TestNormalize_FreeTextEmbedded(t *testing.T) {
	embedder := &stubEmbedder{vectors: [][]float32{make([]float32, domain.SemanticDim)}}
	n, engine, prox := newTestNormalizer(t, embedder)
	raw := validRaw()
	raw.FreeText = "quiet place near the forest"

	q, err := n.Normalize(context.Background(), raw, engine, prox)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !q.HasSemanticBranch() {
		t.Fatalf("expected text vector to be set")
	}
	if embedder.calls != 1 {
		t.Fatalf("expected one embed call, got %d", embedder.calls)
	}
}

func TestNormalize_EmbedFailureDegradesInsteadOfFailing(t *testing.T) {
	embedder := &stubEmbedder{err: fmt.Errorf("provider down")}
	n, engine, prox := newTestNormalizer(t, embedder)
	raw := validRaw()
	raw.FreeText = "quiet place near the forest"

	q, err := n.Normalize(context.Background(), raw, engine, prox)
	if err != nil {
		t.Fatalf("embed failure must not fail normalization: %v", err)
	}
	if q.HasSemanticBranch() {
		t.Fatalf("expected semantic branch to be skipped")
	}
}

func TestNormalize_SeedParcelSetsStructuralBranch(t *testing.T) {
	n, engine, prox := newTestNormalizer(t, nil)
	raw := validRaw()
	raw.SimilarToParcel = "p42"

	q, err := n.Normalize(context.Background(), raw, engine, prox)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !q.HasStructuralBranch() || q.SeedParcel != "p42" {
		t.Fatalf("expected structural branch with seed p42, got %+v", q)
	}
}
