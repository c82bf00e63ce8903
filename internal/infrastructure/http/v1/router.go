// Package v1 provides HTTP API version 1.
package v1

import (
	"time"

	"github.com/gin-gonic/gin"

	"tablequery/internal/infrastructure/http/v1/handlers"
	"tablequery/internal/infrastructure/http/v1/middleware"
	"tablequery/internal/metadata"
	"tablequery/pkg/logger"
)

// Version is reported by /health/info.
const Version = "0.1.0"

// RouterConfig holds router configuration.
type RouterConfig struct {
	// Registry holds the queryable tables
	Registry *metadata.Registry

	// Repo executes compiled queries; nil serves compile-only
	Repo handlers.TableReader

	// DB is checked by the readiness probe; nil skips the check
	DB handlers.Pinger

	// Logger for request logging
	Logger *logger.Logger

	// JWTValidator enables bearer auth when set
	JWTValidator middleware.JWTValidator

	// Location interprets date-range searches; defaults to time.Local
	Location *time.Location
}

// NewRouter creates and configures the Gin router.
func NewRouter(cfg RouterConfig) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)

	if cfg.Logger == nil {
		cfg.Logger = logger.Default()
	}

	router := gin.New()

	// Global middleware (order matters!)
	router.Use(middleware.Recovery())
	router.Use(middleware.Trace())
	router.Use(middleware.Logger(cfg.Logger))
	router.Use(middleware.ErrorHandler())

	healthHandler := handlers.NewHealthHandler(cfg.DB, cfg.Registry, Version)
	health := router.Group("/health")
	{
		health.GET("/live", healthHandler.Live)
		health.GET("/ready", healthHandler.Ready)
		health.GET("/info", healthHandler.Info)
	}

	v1 := router.Group("/api/v1")
	if cfg.JWTValidator != nil {
		v1.Use(middleware.Auth(cfg.JWTValidator))
	}
	registerTableRoutes(v1, cfg)

	return router
}

// registerTableRoutes registers schema and query endpoints.
func registerTableRoutes(rg *gin.RouterGroup, cfg RouterConfig) {
	base := handlers.NewBaseHandler()
	metaHandler := handlers.NewMetadataHandler(base, cfg.Registry)
	tableHandler := handlers.NewTableHandler(base, cfg.Registry, cfg.Repo, cfg.Location)

	tables := rg.Group("/tables")
	tables.GET("", metaHandler.ListTables)

	table := tables.Group("/:table")
	table.Use(middleware.RequireTable())
	{
		table.GET("", tableHandler.List)
		table.GET("/schema", metaHandler.GetTable)
		table.POST("/compile", tableHandler.Compile)
	}
}
