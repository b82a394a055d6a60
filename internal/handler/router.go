package handler

import (
	"net/http"

	"github.com/yourorg/coinscope/internal/middleware"
	"github.com/yourorg/coinscope/internal/ratelimit"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// NewRouter wires the session routes behind recovery, request logging and
// session token authentication. Routes that reach the upstream API are rate
// limited when limiter is not nil.
func NewRouter(sessionHandler *SessionHandler, tokens middleware.TokenValidator, limiter ratelimit.Limiter, logger *zap.Logger) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.Logger(logger))

	limited := func(key middleware.ClientKey) []gin.HandlerFunc {
		if limiter == nil {
			return nil
		}
		return []gin.HandlerFunc{middleware.RateLimit(limiter, key, logger)}
	}

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	v1 := router.Group("/api/v1")
	{
		v1.POST("/sessions", append(limited(middleware.ByClientIP), sessionHandler.CreateSession)...)

		sessions := v1.Group("/sessions/:id")
		sessions.Use(middleware.SessionAuth(tokens, logger))
		{
			sessions.DELETE("", sessionHandler.DeleteSession)
			sessions.PUT("/query", append(limited(middleware.BySession), sessionHandler.SubmitQuery)...)
			sessions.GET("/results", sessionHandler.GetResults)
			sessions.POST("/selection", append(limited(middleware.BySession), sessionHandler.SelectCoin)...)
			sessions.GET("/history", sessionHandler.GetHistory)
			sessions.GET("/history/export", sessionHandler.ExportHistory)
			sessions.GET("/stream", sessionHandler.Stream)
		}
	}

	return router
}
