package v1

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"lease-cashflow/cashflow-backend/internal/cashflow"
	"lease-cashflow/cashflow-backend/internal/config"
	"lease-cashflow/cashflow-backend/internal/metrics"
	"lease-cashflow/cashflow-backend/pkg/storage"
)

// CashflowAPI holds the cash flow API dependencies
type CashflowAPI struct {
	Handler    *cashflow.Handler
	Service    *cashflow.Service
	Repository cashflow.Repository
	Metrics    *metrics.Metrics
	// Cache is nil unless runs are stored in Postgres with a run cache TTL
	Cache      *cashflow.CachedRepository
}

// SetupCashflowAPI sets up the cash flow API with all dependencies. A nil db
// keeps runs in memory; an empty storage bucket disables archiving.
func SetupCashflowAPI(ctx context.Context, cfg *config.Config, db *sqlx.DB, logger *zap.Logger) (*CashflowAPI, error) {
	m := metrics.NewMetrics()

	// Create repository
	var repository cashflow.Repository
	var cache *cashflow.CachedRepository
	if db != nil {
		postgres := cashflow.NewPostgresRepository(db)
		if err := postgres.Migrate(ctx); err != nil {
			return nil, fmt.Errorf("failed to migrate database: %w", err)
		}
		repository = postgres
		if cfg.Projection.RunCacheTTL > 0 {
			cache = cashflow.NewCachedRepository(repository, cfg.Projection.RunCacheTTL)
			m.RegisterRunCache(func() (int, int64, int64) {
				stats := cache.Stats()
				return stats.Size, stats.Hits, stats.Misses
			})
			repository = cache
		}
	} else {
		logger.Warn("No database configured, projection runs are kept in memory")
		repository = cashflow.NewMemoryRepository()
	}

	// Create archive store
	var store storage.S3Client
	if cfg.Storage.Bucket != "" {
		s3Client, err := storage.NewS3Client(ctx, storage.S3Options{
			Region:       cfg.Storage.Region,
			Endpoint:     cfg.Storage.Endpoint,
			UsePathStyle: cfg.Storage.UsePathStyle,
		})
		if err != nil {
			if cache != nil {
				cache.Stop()
			}
			return nil, fmt.Errorf("failed to create archive store: %w", err)
		}
		store = s3Client
	}

	// Create service
	service := cashflow.NewService(repository, store, m, cfg, logger)

	// Create handler
	handler := cashflow.NewHandler(service, logger, cfg.Server.MaxUploadSize)

	return &CashflowAPI{
		Handler:    handler,
		Service:    service,
		Repository: repository,
		Metrics:    m,
		Cache:      cache,
	}, nil
}

// Close releases background resources held by the API
func (api *CashflowAPI) Close() {
	if api.Cache != nil {
		api.Cache.Stop()
	}
}

// RegisterCashflowRoutes registers the cash flow routes on the router group
func RegisterCashflowRoutes(router *gin.RouterGroup, api *CashflowAPI) {
	api.Handler.RegisterRoutes(router)
}

// RegisterMetricsRoute exposes Prometheus metrics on the engine
func RegisterMetricsRoute(router *gin.Engine, cfg config.MonitoringConfig, api *CashflowAPI) {
	if !cfg.MetricsEnabled {
		return
	}
	router.GET(cfg.MetricsPath, gin.WrapH(api.Metrics.Handler()))
}

// RegisterHealthRoute serves /health. A nil db reports in-memory storage;
// otherwise a failed ping answers 503.
func RegisterHealthRoute(router *gin.Engine, db *sqlx.DB, api *CashflowAPI) {
	router.GET("/health", func(c *gin.Context) {
		status := gin.H{
			"status":    "healthy",
			"timestamp": time.Now(),
			"storage":   "memory",
		}
		if api.Cache != nil {
			status["run_cache"] = api.Cache.Stats()
		}
		if db != nil {
			status["storage"] = "postgres"
			if err := db.PingContext(c.Request.Context()); err != nil {
				status["status"] = "degraded"
				status["error"] = err.Error()
				c.JSON(http.StatusServiceUnavailable, status)
				return
			}
		}
		c.JSON(http.StatusOK, status)
	})
}
