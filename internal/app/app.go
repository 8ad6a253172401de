package app

import (
	"context"
	"fmt"
	"os"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/plotwise/plotwise-backend/internal/db"
	"github.com/plotwise/plotwise-backend/internal/disclosure"
	httpx "github.com/plotwise/plotwise-backend/internal/http"
	httpH "github.com/plotwise/plotwise-backend/internal/http/handlers"
	httpMW "github.com/plotwise/plotwise-backend/internal/http/middleware"
	"github.com/plotwise/plotwise-backend/internal/observability"
	"github.com/plotwise/plotwise-backend/internal/platform/logger"
	"github.com/plotwise/plotwise-backend/internal/platform/neo4jdb"
	"github.com/plotwise/plotwise-backend/internal/platform/openai"
	"github.com/plotwise/plotwise-backend/internal/repos"
	"github.com/plotwise/plotwise-backend/internal/search/fusion"
	"github.com/plotwise/plotwise-backend/internal/search/normalize"
	"github.com/plotwise/plotwise-backend/internal/search/pipeline"
	"github.com/plotwise/plotwise-backend/internal/snapshot"
)

type App struct {
	Log       *logger.Logger
	DB        *gorm.DB
	Router    *gin.Engine
	Cfg       Config
	Snapshots *snapshot.Provider
	Pipeline  *pipeline.Pipeline

	metrics      *observability.Metrics
	ledger       disclosure.CreditLedger
	neo          *neo4jdb.Client
	otelShutdown func(context.Context) error
	cancel       context.CancelFunc
}

func New() (*App, error) {
	logMode := os.Getenv("LOG_MODE")
	if logMode == "" {
		logMode = "development"
	}
	log, err := logger.New(logMode)
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}

	log.Info("Loading environment variables...")
	cfg := LoadConfig(log)

	metrics := observability.Init(log)
	otelShutdown := observability.InitOTel(context.Background(), log, observability.OtelConfig{
		ServiceName: "plotwise",
		Environment: cfg.Environment,
		Version:     cfg.Version,
	})

	dbsvc, err := db.NewService(log)
	if err != nil {
		log.Sync()
		return nil, fmt.Errorf("init database: %w", err)
	}
	if err := dbsvc.AutoMigrateAll(); err != nil {
		log.Sync()
		return nil, fmt.Errorf("database automigrate: %w", err)
	}
	theDB := dbsvc.DB()

	parcelRepo := repos.NewParcelRepo(theDB, log)
	zoneRepo := repos.NewZoneRepo(theDB, log)

	neo, err := neo4jdb.NewFromEnv(log)
	if err != nil {
		log.Sync()
		return nil, fmt.Errorf("init neo4j: %w", err)
	}

	embedder, err := openai.NewClient(log)
	if err != nil {
		log.Sync()
		return nil, fmt.Errorf("init embed client: %w", err)
	}
	if embedder == nil {
		log.Warn("Embed provider not configured; free-text queries will run degraded")
	}

	tuning, err := fusion.LoadTuning(cfg.FusionTuningPath)
	if err != nil {
		log.Sync()
		return nil, fmt.Errorf("load fusion tuning: %w", err)
	}

	ledger, err := resolveCreditLedger(log, cfg)
	if err != nil {
		log.Sync()
		return nil, err
	}

	policy, err := disclosure.NewPolicy(log, ledger)
	if err != nil {
		log.Sync()
		return nil, err
	}

	normalizer, err := normalize.New(log, embedder, tuning.DefaultWeights)
	if err != nil {
		log.Sync()
		return nil, err
	}

	loader := newGenerationLoader(log, cfg, neo, parcelRepo, zoneRepo)
	snapshots, err := snapshot.NewProvider(log, loader)
	if err != nil {
		log.Sync()
		return nil, err
	}
	if cfg.InitialGeneration != "" {
		if _, err := snapshots.Reload(context.Background(), cfg.InitialGeneration); err != nil {
			// The service still comes up; retrieval returns unavailable until
			// the reload hook delivers a loadable generation.
			log.Error("Initial generation load failed",
				"generation", cfg.InitialGeneration, "error", err)
		}
	}

	pipe, err := pipeline.New(log, normalizer, snapshots, policy, parcelRepo, tuning,
		cfg.BranchTimeout, cfg.TeaserLimit, cfg.PageSize)
	if err != nil {
		log.Sync()
		return nil, err
	}

	callerAuth := httpMW.NewCallerAuth(log)
	router := httpx.NewRouter(httpx.RouterConfig{
		Log:             log,
		Metrics:         metrics,
		CallerAuth:      callerAuth,
		SearchHandler:   httpH.NewSearchHandler(log, pipe),
		RevealHandler:   httpH.NewRevealHandler(log, pipe),
		SnapshotHandler: httpH.NewSnapshotHandler(log, snapshots),
		HealthHandler:   httpH.NewHealthHandler(),
	})

	return &App{
		Log:          log,
		DB:           theDB,
		Router:       router,
		Cfg:          cfg,
		Snapshots:    snapshots,
		Pipeline:     pipe,
		metrics:      metrics,
		ledger:       ledger,
		neo:          neo,
		otelShutdown: otelShutdown,
	}, nil
}

// Start launches the background collectors. Safe to call once.
func (a *App) Start() {
	if a == nil || a.cancel != nil {
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	a.cancel = cancel

	if a.metrics != nil {
		if a.Cfg.MetricsAddr != "" {
			a.metrics.StartServer(ctx, a.Log, a.Cfg.MetricsAddr)
		}
		a.metrics.StartPostgresCollector(ctx, a.Log, a.DB)
		if a.Cfg.RedisAddr != "" {
			a.metrics.StartRedisCollector(ctx, a.Log, a.Cfg.RedisAddr)
		}
	}
}

func (a *App) Run(addr string) error {
	if a == nil || a.Router == nil {
		return fmt.Errorf("app not initialized")
	}
	return a.Router.Run(addr)
}

func (a *App) Close() {
	if a == nil {
		return
	}
	if a.cancel != nil {
		a.cancel()
		a.cancel = nil
	}
	if a.otelShutdown != nil {
		if err := a.otelShutdown(context.Background()); err != nil {
			a.Log.Warn("OTel shutdown failed", "error", err)
		}
	}
	if a.ledger != nil {
		if err := a.ledger.Close(); err != nil {
			a.Log.Warn("Credit ledger close failed", "error", err)
		}
	}
	if a.neo != nil {
		if err := a.neo.Close(context.Background()); err != nil {
			a.Log.Warn("Neo4j close failed", "error", err)
		}
	}
	if a.Log != nil {
		a.Log.Sync()
	}
}
