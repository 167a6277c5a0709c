// Package routes wires the operational HTTP endpoints.
package routes

import (
	"github.com/gin-gonic/gin"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/xnotip/tipbot_service/internal/api/handlers"
	"github.com/xnotip/tipbot_service/internal/infrastructure/cache"
)

// SetupRoutes configures the operational HTTP surface
func SetupRoutes(db *sqlx.DB, redis cache.RedisClient, logger *zap.Logger) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())

	core := handlers.NewCoreHandlers(db, redis, logger)

	router.GET("/healthz", core.Health)
	router.GET("/readyz", core.Ready)
	router.GET("/livez", core.Live)
	router.GET("/metrics", core.Metrics)

	return router
}
