package app

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"gorm.io/gorm"

	"github.com/plotwise/plotwise-backend/internal/domain"
)

type stubParcelRepo struct {
	parcels []*domain.Parcel
}

func (s *stubParcelRepo) Create(_ context.Context, _ *gorm.DB, _ []*domain.Parcel) error {
	return nil
}
func (s *stubParcelRepo) GetByID(_ context.Context, _ *gorm.DB, _ string) (*domain.Parcel, error) {
	return nil, nil
}
func (s *stubParcelRepo) GetByIDs(_ context.Context, _ *gorm.DB, _ []string) ([]*domain.Parcel, error) {
	return nil, nil
}
func (s *stubParcelRepo) ListByGeneration(_ context.Context, _ *gorm.DB, _ string) ([]*domain.Parcel, error) {
	return s.parcels, nil
}
func (s *stubParcelRepo) CountByGeneration(_ context.Context, _ *gorm.DB, _ string) (int64, error) {
	return int64(len(s.parcels)), nil
}

type stubZoneRepo struct {
	zones []*domain.ZoningZone
}

func (s *stubZoneRepo) Create(_ context.Context, _ *gorm.DB, _ []*domain.ZoningZone) error {
	return nil
}
func (s *stubZoneRepo) GetByID(_ context.Context, _ *gorm.DB, _ string) (*domain.ZoningZone, error) {
	return nil, nil
}
func (s *stubZoneRepo) ListAll(_ context.Context, _ *gorm.DB) ([]*domain.ZoningZone, error) {
	return s.zones, nil
}

func writeFixture(t *testing.T, dir, name string, v any) {
	t.Helper()
	raw, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("marshal fixture: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, name), raw, 0o644); err != nil {
		t.Fatalf("write fixture: %v", err)
	}
}

func TestGenerationLoader_LoadsMemorySnapshot(t *testing.T) {
	dataDir := t.TempDir()
	genDir := filepath.Join(dataDir, "gen-7")
	if err := os.MkdirAll(genDir, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}

	writeFixture(t, genDir, "locations.json", []domain.LocationNode{
		{ID: "c1", Name: "Riverton", Kind: domain.LocationCity},
		{ID: "d1", Name: "Old Town", Kind: domain.LocationDistrict, ParentID: "c1"},
	})
	writeFixture(t, genDir, "proximity.json", proximityFixture{
		Edges: []domain.ProximityEdge{
			{ParcelID: "p1", POIID: "b1", POIType: domain.POIBusStop, DistanceM: 200},
		},
		POIs: []domain.POI{{ID: "b1", Type: domain.POIBusStop, Name: "Main Street Stop"}},
	})
	writeFixture(t, genDir, "embeddings.json", []embeddingFixture{
		{ParcelID: "p1", Semantic: make([]float32, domain.SemanticDim), Structural: make([]float32, domain.StructuralDim)},
	})

	cfg := Config{
		GraphProvider:  "memory",
		VectorProvider: "memory",
		DataDir:        dataDir,
	}
	parcels := &stubParcelRepo{parcels: []*domain.Parcel{
		{ID: "p1", AreaM2: 800, CityID: "c1", DistrictID: "d1", Generation: "gen-7"},
	}}
	zones := &stubZoneRepo{}

	loader := newGenerationLoader(testLog(t), cfg, nil, parcels, zones)
	snap, err := loader.Load(context.Background(), "gen-7")
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	if snap.Graph == nil || snap.Proximity == nil || snap.Vectors == nil {
		t.Fatalf("expected all handles to be set: %+v", snap)
	}
	if snap.LocationName("d1") != "Old Town" {
		t.Fatalf("expected location map to resolve d1")
	}
	if got := snap.Proximity.Score("p1", domain.POIBusStop); got != 0.75 {
		t.Fatalf("expected proximity score 0.75, got %g", got)
	}
	res, err := snap.Graph.Match(context.Background(), domain.Filters{
		Location: domain.LocationNode{ID: "d1", Kind: domain.LocationDistrict, ParentID: "c1"},
	})
	if err != nil || res.Total != 1 {
		t.Fatalf("expected one matching parcel, got %+v err=%v", res, err)
	}
}

func TestGenerationLoader_MissingProximityFixtureDegrades(t *testing.T) {
	dataDir := t.TempDir()
	genDir := filepath.Join(dataDir, "gen-8")
	if err := os.MkdirAll(genDir, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	writeFixture(t, genDir, "locations.json", []domain.LocationNode{})

	cfg := Config{GraphProvider: "memory", VectorProvider: "memory", DataDir: dataDir}
	loader := newGenerationLoader(testLog(t), cfg, nil, &stubParcelRepo{}, &stubZoneRepo{})

	snap, err := loader.Load(context.Background(), "gen-8")
	if err != nil {
		t.Fatalf("missing proximity fixture must not fail the load: %v", err)
	}
	if got := snap.Proximity.Score("p1", domain.POIBusStop); got != 0 {
		t.Fatalf("expected zero proximity scores, got %g", got)
	}
}

func TestGenerationLoader_MissingLocationsFixtureFails(t *testing.T) {
	dataDir := t.TempDir()
	cfg := Config{GraphProvider: "memory", VectorProvider: "memory", DataDir: dataDir}
	loader := newGenerationLoader(testLog(t), cfg, nil, &stubParcelRepo{}, &stubZoneRepo{})

	if _, err := loader.Load(context.Background(), "gen-9"); err == nil {
		t.Fatalf("memory mode without a locations fixture must fail")
	}
}
