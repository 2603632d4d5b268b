package webui

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// setupRoutes registriert die öffentlichen und die geschützten Routen.
func setupRoutes(r *gin.Engine, s *Server) {
	// Öffentliche Routen
	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	// Geschützte Routen
	authorized := r.Group("/")
	authorized.Use(authRequired(s.cfg.Users))
	{
		authorized.GET("/api/pollers", s.getPollers)
		authorized.GET("/api/pollers/:name", s.getPoller)
		authorized.POST("/api/pollers/:name/restart", s.restartPoller)
		authorized.POST("/api/pollers/:name/write", s.writeNode)
		authorized.POST("/api/pollers/:name/call", s.callMethod)

		authorized.GET("/api/values", s.getValues)
		authorized.GET("/api/history", s.getHistory)
		authorized.GET("/api/routes", s.getRoutes)

		authorized.GET("/api/logs", getLogs)
		authorized.DELETE("/api/logs", clearLogs)
		authorized.PUT("/api/log-level", setLogLevel)

		authorized.GET("/ws/values", s.valuesWebSocket)
	}
}
