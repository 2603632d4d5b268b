package webui

import (
	"net/http"

	"opcua-demo/logic"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

func getLogs(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"logs": logic.GetLogs()})
}

func clearLogs(c *gin.Context) {
	logic.ClearLogs()
	c.JSON(http.StatusOK, gin.H{"message": "Logs cleared"})
}

func setLogLevel(c *gin.Context) {
	var req struct {
		Level string `json:"level" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body: " + err.Error()})
		return
	}
	if err := logic.SetLogLevel(req.Level); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	logrus.Infof("WEBUI: log level set to %s", req.Level)
	c.JSON(http.StatusOK, gin.H{"level": req.Level})
}
