package app

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/plotwise/plotwise-backend/internal/domain"
	"github.com/plotwise/plotwise-backend/internal/platform/logger"
	"github.com/plotwise/plotwise-backend/internal/platform/neo4jdb"
	"github.com/plotwise/plotwise-backend/internal/repos"
	"github.com/plotwise/plotwise-backend/internal/search/dualindex"
	"github.com/plotwise/plotwise-backend/internal/search/proximity"
	"github.com/plotwise/plotwise-backend/internal/snapshot"
)

// proximityFixture is the ETL batch's spatial output for one generation:
// distance edges within the per-type thresholds plus the adjacency graph.
type proximityFixture struct {
	Edges     []domain.ProximityEdge `json:"edges"`
	POIs      []domain.POI           `json:"pois"`
	Adjacency []domain.AdjacencyEdge `json:"adjacency"`
}

// embeddingFixture carries one parcel's dual embeddings, consumed only by
// the memory vector provider. Deployments read vectors from qdrant instead.
type embeddingFixture struct {
	ParcelID   string    `json:"parcel_id"`
	Semantic   []float32 `json:"semantic"`
	Structural []float32 `json:"structural"`
}

// generationLoader assembles one generation's snapshot from the configured
// backends. It implements snapshot.Loader.
type generationLoader struct {
	log     *logger.Logger
	cfg     Config
	neo     *neo4jdb.Client
	parcels repos.ParcelRepo
	zones   repos.ZoneRepo
}

func newGenerationLoader(log *logger.Logger, cfg Config, neo *neo4jdb.Client, parcels repos.ParcelRepo, zones repos.ZoneRepo) *generationLoader {
	return &generationLoader{
		log:     log.With("service", "GenerationLoader"),
		cfg:     cfg,
		neo:     neo,
		parcels: parcels,
		zones:   zones,
	}
}

func (l *generationLoader) Load(ctx context.Context, generationID string) (*snapshot.Snapshot, error) {
	var (
		memParcels   []domain.Parcel
		memZones     []domain.ZoningZone
		memLocations []domain.LocationNode
	)
	if strings.EqualFold(l.cfg.GraphProvider, "memory") {
		rows, err := l.parcels.ListByGeneration(ctx, nil, generationID)
		if err != nil {
			return nil, fmt.Errorf("load parcels for generation %q: %w", generationID, err)
		}
		memParcels = make([]domain.Parcel, len(rows))
		for i, row := range rows {
			memParcels[i] = *row
		}
		zoneRows, err := l.zones.ListAll(ctx, nil)
		if err != nil {
			return nil, fmt.Errorf("load zones: %w", err)
		}
		memZones = make([]domain.ZoningZone, len(zoneRows))
		for i, row := range zoneRows {
			memZones[i] = *row
		}
		if err := l.readFixture(generationID, "locations.json", &memLocations); err != nil {
			return nil, err
		}
	}

	engine, err := resolveGraphEngine(l.log, l.cfg, l.neo, generationID, memParcels, memZones, memLocations)
	if err != nil {
		return nil, err
	}

	locations, err := engine.ListLocations(ctx)
	if err != nil {
		return nil, fmt.Errorf("list locations for generation %q: %w", generationID, err)
	}
	locByID := make(map[string]domain.LocationNode, len(locations))
	for _, loc := range locations {
		locByID[loc.ID] = loc
	}

	var prox proximityFixture
	if err := l.readFixture(generationID, "proximity.json", &prox); err != nil {
		// Spatial data is scoring-only; a missing batch degrades proximity
		// scores to zero rather than blocking the generation.
		l.log.Warn("Proximity fixture unavailable; proximity scores will be zero",
			"generation", generationID, "error", err)
		prox = proximityFixture{}
	}
	proxIndex := proximity.NewIndex(l.log, prox.Edges, prox.POIs, prox.Adjacency)

	var embeddings []embeddingFixture
	if strings.EqualFold(l.cfg.VectorProvider, "memory") {
		if err := l.readFixture(generationID, "embeddings.json", &embeddings); err != nil {
			l.log.Warn("Embedding fixture unavailable; vector branches will be skipped",
				"generation", generationID, "error", err)
			embeddings = nil
		}
	}
	semantic, structural, err := resolveVectorIndexes(l.log, l.cfg, generationID, embeddings)
	if err != nil {
		return nil, err
	}
	vectors, err := dualindex.New(l.log, semantic, structural, dualindex.DefaultInflationFactor)
	if err != nil {
		return nil, err
	}

	return &snapshot.Snapshot{
		Generation: generationID,
		Graph:      engine,
		Proximity:  proxIndex,
		Vectors:    vectors,
		Locations:  locByID,
	}, nil
}

func (l *generationLoader) readFixture(generationID, name string, out any) error {
	path := filepath.Join(l.cfg.DataDir, generationID, name)
	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read fixture %s: %w", path, err)
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("parse fixture %s: %w", path, err)
	}
	return nil
}
