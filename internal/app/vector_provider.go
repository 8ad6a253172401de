package app

import (
	"errors"
	"fmt"
	"strings"

	"github.com/plotwise/plotwise-backend/internal/domain"
	"github.com/plotwise/plotwise-backend/internal/platform/logger"
	"github.com/plotwise/plotwise-backend/internal/platform/qdrant"
	"github.com/plotwise/plotwise-backend/internal/platform/vector"
)

var newQdrantIndex = qdrant.NewIndex

type VectorProviderBootstrapErrorCode string

const (
	VectorProviderBootstrapErrorInvalidProvider VectorProviderBootstrapErrorCode = "invalid_provider"
	VectorProviderBootstrapErrorConfigFailed    VectorProviderBootstrapErrorCode = "qdrant_config_failed"
	VectorProviderBootstrapErrorInitFailed      VectorProviderBootstrapErrorCode = "provider_init_failed"
	VectorProviderBootstrapErrorFixtureFailed   VectorProviderBootstrapErrorCode = "fixture_load_failed"
)

type VectorProviderBootstrapError struct {
	Code     VectorProviderBootstrapErrorCode
	Provider string
	Space    string
	Cause    error
}

func (e *VectorProviderBootstrapError) Error() string {
	if e == nil {
		return "vector provider bootstrap failed"
	}
	return fmt.Sprintf("vector provider bootstrap failed (code=%s provider=%q space=%q): %v",
		e.Code, e.Provider, e.Space, e.Cause)
}

func (e *VectorProviderBootstrapError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Cause
}

// resolveVectorIndexes builds both embedding-space handles for one
// generation: qdrant collections in deployments, in-process cosine indexes
// filled from the generation's embedding fixtures in memory mode.
func resolveVectorIndexes(
	log *logger.Logger,
	cfg Config,
	generation string,
	embeddings []embeddingFixture,
) (vector.Index, vector.Index, error) {
	provider := strings.TrimSpace(strings.ToLower(cfg.VectorProvider))

	switch provider {
	case "qdrant":
		log.Info("Selecting vector provider", "provider", provider, "generation", generation)
		semantic, err := buildQdrantIndex(log, "SEMANTIC", domain.SemanticDim, generation)
		if err != nil {
			return nil, nil, err
		}
		structural, err := buildQdrantIndex(log, "STRUCTURAL", domain.StructuralDim, generation)
		if err != nil {
			return nil, nil, err
		}
		return semantic, structural, nil

	case "memory":
		log.Info("Selecting vector provider",
			"provider", provider,
			"generation", generation,
			"embeddings", len(embeddings))
		semantic := vector.NewMemoryIndex(domain.SemanticDim)
		structural := vector.NewMemoryIndex(domain.StructuralDim)
		for _, e := range embeddings {
			if len(e.Semantic) > 0 {
				if err := semantic.Add(e.ParcelID, e.Semantic); err != nil {
					return nil, nil, &VectorProviderBootstrapError{
						Code: VectorProviderBootstrapErrorFixtureFailed, Provider: provider, Space: "semantic", Cause: err,
					}
				}
			}
			if len(e.Structural) > 0 {
				if err := structural.Add(e.ParcelID, e.Structural); err != nil {
					return nil, nil, &VectorProviderBootstrapError{
						Code: VectorProviderBootstrapErrorFixtureFailed, Provider: provider, Space: "structural", Cause: err,
					}
				}
			}
		}
		return semantic, structural, nil

	default:
		return nil, nil, &VectorProviderBootstrapError{
			Code:     VectorProviderBootstrapErrorInvalidProvider,
			Provider: provider,
			Cause:    fmt.Errorf("unsupported vector provider %q (qdrant|memory)", provider),
		}
	}
}

func buildQdrantIndex(log *logger.Logger, spaceSuffix string, defaultDim int, generation string) (vector.Index, error) {
	qcfg, err := qdrant.ResolveConfigFromEnv(spaceSuffix, defaultDim)
	if err != nil {
		return nil, classifyQdrantBootstrapError(spaceSuffix, err)
	}
	idx, err := newQdrantIndex(log, qcfg, generation)
	if err != nil {
		return nil, &VectorProviderBootstrapError{
			Code:     VectorProviderBootstrapErrorInitFailed,
			Provider: "qdrant",
			Space:    strings.ToLower(spaceSuffix),
			Cause:    err,
		}
	}
	return idx, nil
}

func classifyQdrantBootstrapError(spaceSuffix string, err error) error {
	var cfgErr *qdrant.ConfigError
	code := VectorProviderBootstrapErrorInitFailed
	if errors.As(err, &cfgErr) {
		code = VectorProviderBootstrapErrorConfigFailed
	}
	return &VectorProviderBootstrapError{
		Code:     code,
		Provider: "qdrant",
		Space:    strings.ToLower(spaceSuffix),
		Cause:    err,
	}
}
