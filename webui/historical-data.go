package webui

import (
	"net/http"
	"sort"
	"strconv"
	"time"

	opcua "opcua-demo/driver/opcua"

	"github.com/gin-gonic/gin"
)

// DataPoint ist ein Sample in der Form, die das Frontend erwartet.
type DataPoint struct {
	Endpoint string      `json:"endpoint"`
	NodeID   string      `json:"nodeId"`
	Name     string      `json:"name"`
	Value    interface{} `json:"value"`
	Good     bool        `json:"good"`
	Status   string      `json:"status"`
	Time     time.Time   `json:"time"`
}

func toDataPoints(samples []opcua.Sample) []DataPoint {
	points := make([]DataPoint, 0, len(samples))
	for _, s := range samples {
		points = append(points, DataPoint{
			Endpoint: s.Endpoint,
			NodeID:   s.NodeID,
			Name:     s.Name,
			Value:    opcua.ConvValue(s.Value),
			Good:     s.Good,
			Status:   s.Status,
			Time:     s.ReceivedAt,
		})
	}
	return points
}

// getValues liefert den letzten Wert jedes Knotens, optional gefiltert mit ?endpoint=.
func (s *Server) getValues(c *gin.Context) {
	endpoint := c.Query("endpoint")

	var latest []opcua.Sample
	for _, sample := range s.samples.Latest() {
		if endpoint == "" || sample.Endpoint == endpoint {
			latest = append(latest, sample)
		}
	}
	sort.Slice(latest, func(i, j int) bool {
		if latest[i].Endpoint != latest[j].Endpoint {
			return latest[i].Endpoint < latest[j].Endpoint
		}
		return latest[i].Name < latest[j].Name
	})
	c.JSON(http.StatusOK, toDataPoints(latest))
}

// getHistory: /api/history?endpoint=raspi&node=ns=2;s=testSysTemp&limit=100
func (s *Server) getHistory(c *gin.Context) {
	endpoint := c.Query("endpoint")
	node := c.Query("node")
	if endpoint == "" || node == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "endpoint and node are required"})
		return
	}

	limit := 100
	if l := c.Query("limit"); l != "" {
		n, err := strconv.Atoi(l)
		if err != nil || n <= 0 || n > 10000 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be between 1 and 10000"})
			return
		}
		limit = n
	}

	history, err := s.samples.History(endpoint, node, limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, toDataPoints(history))
}
