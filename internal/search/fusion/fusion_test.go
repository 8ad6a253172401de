package fusion

import (
	"testing"

	"github.com/plotwise/plotwise-backend/internal/domain"
	"github.com/plotwise/plotwise-backend/internal/platform/vector"
)

func TestFuse_GateExcludesVectorOnlyCandidates(t *testing.T) {
	out := Fuse(Inputs{
		GraphIDs: []string{"p1", "p2"},
		Semantic: []vector.Match{
			{ID: "p9", Score: 0.99},
			{ID: "p1", Score: 0.5},
		},
		KConst: 60,
	})
	if len(out) != 2 {
		t.Fatalf("expected 2 results, got %d", len(out))
	}
	for _, r := range out {
		if r.ParcelID == "p9" {
			t.Fatalf("vector-only candidate p9 leaked through the gate")
		}
	}
}

func TestFuse_ProximityDominatesGraphOnlyQuery(t *testing.T) {
	out := Fuse(Inputs{
		GraphIDs: []string{"p1", "p2", "p3"},
		ProximityScore: map[string]float64{
			"p1": 0.2,
			"p2": 0.9,
			"p3": 0.5,
		},
		KConst: 60,
	})
	got := []string{out[0].ParcelID, out[1].ParcelID, out[2].ParcelID}
	want := []string{"p2", "p3", "p1"}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("expected order %v, got %v", want, got)
		}
	}
}

func TestFuse_VectorRankAddsReciprocalShare(t *testing.T) {
	out := Fuse(Inputs{
		GraphIDs:       []string{"p1", "p2"},
		ProximityScore: map[string]float64{"p1": 0.3, "p2": 0.3},
		Semantic: []vector.Match{
			{ID: "p2", Score: 0.9},
		},
		KConst: 60,
	})
	if out[0].ParcelID != "p2" {
		t.Fatalf("expected semantic hit to rank first, got %q", out[0].ParcelID)
	}
	wantScore := 0.3 + 1.0/61.0
	if diff := out[0].Score - wantScore; diff > 1e-12 || diff < -1e-12 {
		t.Fatalf("expected score %g, got %g", wantScore, out[0].Score)
	}
}

func TestFuse_TiesBreakByProximityThenID(t *testing.T) {
	out := Fuse(Inputs{
		GraphIDs:       []string{"pb", "pa", "pc"},
		ProximityScore: map[string]float64{"pa": 0, "pb": 0, "pc": 0},
		KConst:         60,
	})
	got := []string{out[0].ParcelID, out[1].ParcelID, out[2].ParcelID}
	want := []string{"pa", "pb", "pc"}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("expected id-ordered ties %v, got %v", want, got)
		}
	}
}

func TestFuse_DuplicateGraphIDsCollapse(t *testing.T) {
	out := Fuse(Inputs{
		GraphIDs: []string{"p1", "p1", "p1"},
		KConst:   60,
	})
	if len(out) != 1 {
		t.Fatalf("expected 1 deduplicated result, got %d", len(out))
	}
}

func TestFuse_ContributionsRecordSourceBreakdown(t *testing.T) {
	out := Fuse(Inputs{
		GraphIDs:       []string{"p1"},
		ProximityScore: map[string]float64{"p1": 0.4},
		Semantic:       []vector.Match{{ID: "p1", Score: 0.8}},
		Structural:     []vector.Match{{ID: "p1", Score: 0.7}},
		KConst:         60,
	})
	if len(out) != 1 {
		t.Fatalf("expected 1 result, got %d", len(out))
	}
	sources := make(map[domain.SourceKind]domain.Contribution)
	for _, c := range out[0].Contributions {
		sources[c.Source] = c
	}
	if _, ok := sources[domain.SourceGraph]; !ok {
		t.Fatalf("missing graph contribution")
	}
	if sources[domain.SourceProximity].Score != 0.4 {
		t.Fatalf("expected proximity contribution 0.4, got %g", sources[domain.SourceProximity].Score)
	}
	if sources[domain.SourceSemantic].Rank != 1 || sources[domain.SourceStructural].Rank != 1 {
		t.Fatalf("expected rank 1 for both vector sources, got semantic=%d structural=%d",
			sources[domain.SourceSemantic].Rank, sources[domain.SourceStructural].Rank)
	}
}

func TestLoadTuning_EmptyPathReturnsDefaults(t *testing.T) {
	tuning, err := LoadTuning("")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if tuning.KConst != DefaultTuning().KConst {
		t.Fatalf("expected default kConst %g, got %g", DefaultTuning().KConst, tuning.KConst)
	}
	if len(tuning.DefaultWeights) == 0 {
		t.Fatalf("expected default weights to be populated")
	}
}
