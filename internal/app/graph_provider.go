package app

import (
	"fmt"
	"strings"

	"github.com/plotwise/plotwise-backend/internal/domain"
	"github.com/plotwise/plotwise-backend/internal/platform/logger"
	"github.com/plotwise/plotwise-backend/internal/platform/neo4jdb"
	"github.com/plotwise/plotwise-backend/internal/search/graphfilter"
)

type GraphProviderBootstrapErrorCode string

const (
	GraphProviderBootstrapErrorInvalidProvider GraphProviderBootstrapErrorCode = "invalid_provider"
	GraphProviderBootstrapErrorMissingNeo4j    GraphProviderBootstrapErrorCode = "missing_neo4j_config"
	GraphProviderBootstrapErrorInitFailed      GraphProviderBootstrapErrorCode = "provider_init_failed"
)

type GraphProviderBootstrapError struct {
	Code     GraphProviderBootstrapErrorCode
	Provider string
	Cause    error
}

func (e *GraphProviderBootstrapError) Error() string {
	if e == nil {
		return "graph provider bootstrap failed"
	}
	return fmt.Sprintf("graph provider bootstrap failed (code=%s provider=%q): %v", e.Code, e.Provider, e.Cause)
}

func (e *GraphProviderBootstrapError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Cause
}

// resolveGraphEngine builds the predicate engine for one generation.
// Memory mode evaluates against the relational parcel rows and fixture
// locations; neo4j mode runs Cypher against the shared graph store.
func resolveGraphEngine(
	log *logger.Logger,
	cfg Config,
	neo *neo4jdb.Client,
	generation string,
	parcels []domain.Parcel,
	zones []domain.ZoningZone,
	locations []domain.LocationNode,
) (graphfilter.Engine, error) {
	provider := strings.TrimSpace(strings.ToLower(cfg.GraphProvider))

	switch provider {
	case "neo4j":
		log.Info("Selecting graph provider", "provider", provider, "generation", generation)
		if neo == nil {
			return nil, &GraphProviderBootstrapError{
				Code:     GraphProviderBootstrapErrorMissingNeo4j,
				Provider: provider,
				Cause:    fmt.Errorf("NEO4J_URI is not configured"),
			}
		}
		engine, err := graphfilter.NewNeo4jEngine(neo, log, generation)
		if err != nil {
			return nil, &GraphProviderBootstrapError{
				Code:     GraphProviderBootstrapErrorInitFailed,
				Provider: provider,
				Cause:    err,
			}
		}
		return engine, nil

	case "memory":
		log.Info("Selecting graph provider",
			"provider", provider,
			"generation", generation,
			"parcels", len(parcels),
			"locations", len(locations))
		return graphfilter.NewMemoryEngine(log, parcels, zones, locations), nil

	default:
		return nil, &GraphProviderBootstrapError{
			Code:     GraphProviderBootstrapErrorInvalidProvider,
			Provider: provider,
			Cause:    fmt.Errorf("unsupported graph provider %q (neo4j|memory)", provider),
		}
	}
}
