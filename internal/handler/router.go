package handler

import (
	"time"

	"github.com/SergeiKhy/link-registry/internal/middleware"
	"github.com/SergeiKhy/link-registry/internal/service"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

func NewRouter(
	linkService service.LinkService,
	clickProcessor service.ClickProcessor,
	rateLimiter *middleware.RateLimiter,
	logger *zap.Logger,
	baseURL string,
) *gin.Engine {
	if logger == nil {
		logger = zap.NewNop()
	}

	router := gin.New()
	router.Use(gin.Recovery())

	// Middleware для логгирования
	router.Use(func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logger.Info("Request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
			zap.String("ip", c.ClientIP()),
		)
	})

	healthHandler := NewHealthHandler(linkService, clickProcessor)
	router.GET("/healthz", healthHandler.Health)

	// Rate limiting для всех запросов, кроме health check
	if rateLimiter != nil {
		router.Use(rateLimiter.Middleware())
	}

	linkHandler := NewLinkHandler(linkService, logger, baseURL)

	api := router.Group("/api")
	{
		api.POST("/links", linkHandler.CreateLink)
		api.GET("/links", linkHandler.ListLinks)
		api.GET("/links/:code", linkHandler.GetLink)
		api.DELETE("/links/:code", linkHandler.DeleteLink)
	}

	// Редирект (корневой путь)
	router.GET("/:code", linkHandler.Redirect)

	return router
}
