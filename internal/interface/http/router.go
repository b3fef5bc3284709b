package http

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/yanqian/flarecast/internal/domain/auth"
	"github.com/yanqian/flarecast/internal/infra/config"
	"github.com/yanqian/flarecast/pkg/metrics"
)

// NewRouter wires up the HTTP handlers and returns a configured server.
func NewRouter(cfg *config.Config, handler *Handler, authSvc auth.Service, collector *metrics.InsightCollector) *http.Server {
	gin.SetMode(gin.ReleaseMode)

	router := gin.New()
	router.Use(
		gin.Recovery(),
		requestLogger(handler.logger),
		corsMiddleware(cfg.HTTP.AllowedOrigins),
		errorHandlingMiddleware(handler.logger),
	)

	router.GET("/healthz", handler.Healthz)
	router.GET("/metrics", gin.WrapH(collector.Handler()))

	api := router.Group("/api/v1", rateLimitMiddleware(cfg.HTTP.RateLimit, handler.logger), authMiddleware(authSvc))
	{
		insights := api.Group("/insights")
		insights.GET("", handler.State)
		insights.GET("/stream", handler.Stream)
		insights.POST("/analyze", entitlementMiddleware(authSvc), handler.Analyze)
		insights.POST("/reset", handler.Reset)

		api.POST("/auth/logout", handler.Logout)
	}

	return &http.Server{
		Addr:           cfg.HTTP.Address,
		Handler:        router,
		ReadTimeout:    cfg.HTTP.ReadTimeout,
		WriteTimeout:   cfg.HTTP.WriteTimeout,
		MaxHeaderBytes: 1 << 20,
	}
}
