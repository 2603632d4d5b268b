package webui

import (
	"net/http"

	dataforwarding "opcua-demo/data-forwarding"

	"github.com/gin-gonic/gin"
)

// getRoutes liefert den Zustand der Weiterleitungen.
func (s *Server) getRoutes(c *gin.Context) {
	if s.routes == nil {
		c.JSON(http.StatusOK, []dataforwarding.RouteStatus{})
		return
	}
	c.JSON(http.StatusOK, s.routes.Statuses())
}
