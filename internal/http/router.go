package http

import (
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"prep-service/internal/http/middleware"
)

func NewRouter(handler *Handler, authMiddleware gin.HandlerFunc, env string, extra ...gin.HandlerFunc) *gin.Engine {
	if env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(accessLog(handler.log))
	router.Use(cors.New(cors.Config{
		AllowAllOrigins: true,
		AllowMethods:    []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:    []string{"Authorization", "Content-Type", middleware.AgencyHeader},
		ExposeHeaders:   []string{"Content-Type"},
		MaxAge:          12 * time.Hour,
	}))

	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "steps": len(handler.preparationService.StepDefinitions())})
	})

	handler.Register(router, authMiddleware, extra...)

	return router
}

// accessLog writes one line per request once the handlers have run. Server errors log at error level.
func accessLog(log zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		status := c.Writer.Status()
		event := log.Debug()
		if status >= http.StatusInternalServerError {
			event = log.Error()
		}
		if principal, ok := middleware.MustPrincipal(c); ok {
			event = event.Str("user_id", principal.UserID)
		}
		event.
			Str("method", c.Request.Method).
			Str("path", c.FullPath()).
			Int("status", status).
			Dur("latency", time.Since(start)).
			Msg("request")
	}
}
