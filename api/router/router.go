package router

import (
	"net/http"

	"postback-relay/api/handlers"
	"postback-relay/api/middleware"
	"postback-relay/config"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// Handlers are the route targets mounted by Setup.
type Handlers struct {
	Postback *handlers.PostbackHandler
	Admin    *handlers.AdminHandler
}

func Setup(logger *zap.Logger, h Handlers, cfg *config.Config) *gin.Engine {
	router := gin.New()

	security := middleware.NewSecurityMiddleware(
		logger,
		cfg.Security.APIKeys,
		cfg.Security.APIKeyHeader,
	)

	// Apply global middleware
	router.Use(security.Recovery(), security.CORS())

	// Health check endpoint (no authentication required)
	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	// Metrics endpoint for Prometheus (no authentication required)
	router.GET(cfg.Monitoring.MetricsPath, gin.WrapH(promhttp.Handler()))

	// Public postback URLs; each endpoint authenticates through its own validation config
	router.Any("/x/:slug", h.Postback.HandlePostback)

	api := router.Group("/api", security.Authenticate())
	h.Admin.Register(api)

	logger.Info("Router configured",
		zap.String("api_key_header", cfg.Security.APIKeyHeader),
		zap.Int("configured_clients", len(cfg.Security.APIKeys)),
	)

	return router
}
