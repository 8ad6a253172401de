package http

import (
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	httpH "github.com/plotwise/plotwise-backend/internal/http/handlers"
	httpMW "github.com/plotwise/plotwise-backend/internal/http/middleware"
	"github.com/plotwise/plotwise-backend/internal/observability"
	"github.com/plotwise/plotwise-backend/internal/platform/logger"
)

type RouterConfig struct {
	Log        *logger.Logger
	Metrics    *observability.Metrics
	CallerAuth *httpMW.CallerAuth

	SearchHandler   *httpH.SearchHandler
	RevealHandler   *httpH.RevealHandler
	SnapshotHandler *httpH.SnapshotHandler
	HealthHandler   *httpH.HealthHandler
}

func NewRouter(cfg RouterConfig) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(otelgin.Middleware("plotwise"))
	r.Use(httpMW.AttachTraceContext())
	r.Use(httpMW.Metrics(cfg.Metrics))
	r.Use(httpMW.RequestLogger(cfg.Log))
	r.Use(httpMW.CORS())

	// Health
	if cfg.HealthHandler != nil {
		r.GET("/healthcheck", cfg.HealthHandler.HealthCheck)
	}
	if cfg.Metrics != nil {
		r.GET("/metrics", gin.WrapF(cfg.Metrics.WriteHTTP))
	}

	api := r.Group("/api")
	{
		if cfg.SnapshotHandler != nil {
			// Invoked by the ETL collaborator after each batch publish.
			api.POST("/internal/reload", cfg.SnapshotHandler.Reload)
			api.GET("/internal/generation", cfg.SnapshotHandler.Status)
		}
	}

	protected := api.Group("/")
	{
		if cfg.CallerAuth != nil {
			protected.Use(cfg.CallerAuth.RequireCaller())
		}

		if cfg.SearchHandler != nil {
			protected.POST("/search", cfg.SearchHandler.Search)
			protected.POST("/search/count", cfg.SearchHandler.Count)
		}
		if cfg.RevealHandler != nil {
			protected.POST("/reveal", cfg.RevealHandler.Reveal)
		}
	}

	return r
}
