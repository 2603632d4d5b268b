package dataforwarding

import (
	"context"
	"time"

	opcua "opcua-demo/driver/opcua"
)

// Store liefert Samples nach ihrer fortlaufenden Nummer, z.B. *logic.SampleStore.
type Store interface {
	Seq() int64
	After(endpoints []string, afterSeq int64) ([]opcua.Sample, int64, error)
}

// forwarder schreibt einen Stapel Samples an ein Ziel.
type forwarder interface {
	Send(ctx context.Context, samples []opcua.Sample) error
	Close()
}

// RouteStatus ist die Sicht auf eine Route, die die Web-API ausgibt.
type RouteStatus struct {
	Name      string    `json:"name"`
	Type      string    `json:"type"`
	LastSent  time.Time `json:"lastSent,omitempty"`
	LastError string    `json:"lastError,omitempty"`
	Sent      int64     `json:"sent"`
}

// DataReading enthält das Format für das JSON-Objekt, das gesendet wird
type DataReading struct {
	Endpoint  string      `json:"endpoint"`
	NodeID    string      `json:"nodeId"`
	Name      string      `json:"name"`
	Value     interface{} `json:"value"`
	Status    string      `json:"status"`
	Timestamp time.Time   `json:"timestamp"`
}

func toReadings(samples []opcua.Sample) []DataReading {
	readings := make([]DataReading, 0, len(samples))
	for _, s := range samples {
		readings = append(readings, DataReading{
			Endpoint:  s.Endpoint,
			NodeID:    s.NodeID,
			Name:      s.Name,
			Value:     opcua.ConvValue(s.Value),
			Status:    s.Status,
			Timestamp: s.ReceivedAt,
		})
	}
	return readings
}
