// Package api serves the pipeline over HTTP for the heat-map front end.
package api

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// NewRouter builds the gin engine with every route under /api.
func NewRouter(h *Handler, logger *logrus.Logger) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery(), requestLogger(logger))

	api := router.Group("/api")
	{
		api.POST("/refresh", h.Refresh)
		api.GET("/status", h.Status)
		api.GET("/tree", h.Tree)
		api.GET("/indices", h.Indices)
		api.GET("/movers", h.Movers)
		api.GET("/quote/:ticker", h.Quote)
		api.GET("/chart/:ticker", h.Chart)
		api.GET("/detail/:ticker", h.Detail)
	}
	return router
}

func requestLogger(logger *logrus.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logger.WithFields(logrus.Fields{
			"method":  c.Request.Method,
			"path":    c.FullPath(),
			"status":  c.Writer.Status(),
			"latency": time.Since(start).Round(time.Microsecond),
		}).Debug("request")
	}
}
