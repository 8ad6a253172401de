package app

import (
	"time"

	"github.com/plotwise/plotwise-backend/internal/platform/envutil"
	"github.com/plotwise/plotwise-backend/internal/platform/logger"
)

type Config struct {
	Environment string
	Version     string

	// Provider switches. Deployments run neo4j/qdrant/redis; local mode and
	// CI run everything in-process from the fixture directory.
	GraphProvider  string // neo4j | memory
	VectorProvider string // qdrant | memory
	LedgerProvider string // redis | memory

	// DataDir holds per-generation fixture files for the memory providers
	// (locations, proximity edges, embeddings), produced by the ETL batch.
	DataDir string

	// InitialGeneration is loaded at startup; later generations arrive via
	// the reload hook.
	InitialGeneration string

	FusionTuningPath string
	BranchTimeout    time.Duration
	TeaserLimit      int
	PageSize         int

	MetricsAddr string
	RedisAddr   string
}

func LoadConfig(log *logger.Logger) Config {
	return Config{
		Environment:       envutil.String("ENVIRONMENT", "development"),
		Version:           envutil.String("SERVICE_VERSION", "dev"),
		GraphProvider:     envutil.String("GRAPH_PROVIDER", "memory"),
		VectorProvider:    envutil.String("VECTOR_PROVIDER", "memory"),
		LedgerProvider:    envutil.String("LEDGER_PROVIDER", "memory"),
		DataDir:           envutil.String("DATA_DIR", "./data"),
		InitialGeneration: envutil.String("SNAPSHOT_GENERATION", ""),
		FusionTuningPath:  envutil.String("FUSION_TUNING_PATH", ""),
		BranchTimeout:     time.Duration(envutil.Int("BRANCH_TIMEOUT_MS", 2000)) * time.Millisecond,
		TeaserLimit:       envutil.Int("TEASER_LIMIT", 3),
		PageSize:          envutil.Int("RANKED_PAGE_SIZE", 20),
		MetricsAddr:       envutil.String("METRICS_ADDR", ""),
		RedisAddr:         envutil.String("REDIS_ADDR", ""),
	}
}
