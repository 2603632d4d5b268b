package webui

import (
	"context"
	"net/http"

	opcua "opcua-demo/driver/opcua"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

func (s *Server) getPollers(c *gin.Context) {
	c.JSON(http.StatusOK, s.pollers.Statuses())
}

func (s *Server) getPoller(c *gin.Context) {
	status, ok := s.pollers.Status(c.Param("name"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "unknown endpoint"})
		return
	}
	c.JSON(http.StatusOK, status)
}

func (s *Server) restartPoller(c *gin.Context) {
	name := c.Param("name")
	if err := s.pollers.RestartPoller(name); err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Poller " + name + " restarted"})
}

// connectedClient schreibt 404 bzw. 409 und gibt false zurück, wenn der
// Endpunkt unbekannt oder nicht verbunden ist.
func (s *Server) connectedClient(c *gin.Context) (opcua.Conn, bool) {
	name := c.Param("name")
	if _, ok := s.pollers.Status(name); !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "unknown endpoint"})
		return nil, false
	}
	client, ok := opcua.GetClient(name)
	if !ok {
		c.JSON(http.StatusConflict, gin.H{"error": "endpoint " + name + " is not connected"})
		return nil, false
	}
	return client, true
}

func (s *Server) writeNode(c *gin.Context) {
	var req struct {
		NodeID string      `json:"nodeId" binding:"required"`
		Value  interface{} `json:"value"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body: " + err.Error()})
		return
	}
	if req.Value == nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "value is required"})
		return
	}
	client, ok := s.connectedClient(c)
	if !ok {
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), s.timeout)
	defer cancel()
	if err := opcua.UpdateDataNode(ctx, client, req.NodeID, req.Value); err != nil {
		logrus.Warnf("WEBUI: write %s on %s failed: %v", req.NodeID, c.Param("name"), err)
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Value written"})
}

func (s *Server) callMethod(c *gin.Context) {
	var req struct {
		ObjectID string        `json:"objectId" binding:"required"`
		MethodID string        `json:"methodId" binding:"required"`
		Args     []interface{} `json:"args"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body: " + err.Error()})
		return
	}
	client, ok := s.connectedClient(c)
	if !ok {
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), s.timeout)
	defer cancel()
	out, err := opcua.CallMethod(ctx, client, req.ObjectID, req.MethodID, req.Args...)
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		return
	}
	results := make([]interface{}, 0, len(out))
	for _, v := range out {
		results = append(results, opcua.ConvValue(v))
	}
	c.JSON(http.StatusOK, gin.H{"outputs": results})
}
