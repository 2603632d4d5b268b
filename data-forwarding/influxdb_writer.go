package dataforwarding

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"

	opcua "opcua-demo/driver/opcua"
	"opcua-demo/logic"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"
	"github.com/influxdata/influxdb-client-go/v2/api/write"
	"github.com/sirupsen/logrus"
)

type InfluxConfig struct {
	URL    string
	Token  string
	Org    string
	Bucket string
}

// influxConfig ergänzt leere Felder aus INFLUXDB_URL, INFLUXDB_TOKEN, INFLUXDB_ORG und INFLUXDB_BUCKET.
func influxConfig(cfg logic.RouteConfig) (InfluxConfig, error) {
	c := InfluxConfig{URL: cfg.URL, Token: cfg.Token, Org: cfg.Org, Bucket: cfg.Bucket}
	if c.URL == "" {
		c.URL = os.Getenv("INFLUXDB_URL")
	}
	if c.Token == "" {
		c.Token = os.Getenv("INFLUXDB_TOKEN")
	}
	if c.Org == "" {
		c.Org = os.Getenv("INFLUXDB_ORG")
	}
	if c.Bucket == "" {
		c.Bucket = os.Getenv("INFLUXDB_BUCKET")
	}
	if c.URL == "" || c.Org == "" || c.Bucket == "" {
		return c, fmt.Errorf("no InfluxDB url, org or bucket configured")
	}
	return c, nil
}

type influxForwarder struct {
	client    influxdb2.Client
	writeAPI  api.WriteAPIBlocking
	url       string
	unhealthy bool
}

func newInfluxForwarder(cfg logic.RouteConfig) (*influxForwarder, error) {
	c, err := influxConfig(cfg)
	if err != nil {
		return nil, err
	}
	client := influxdb2.NewClient(c.URL, c.Token)
	return &influxForwarder{
		client:    client,
		writeAPI:  client.WriteAPIBlocking(c.Org, c.Bucket),
		url:       c.URL,
		unhealthy: true,
	}, nil
}

// samplePoint: Measurement ist der Knotenname, Endpunkt und Node-ID sind Tags.
func samplePoint(s opcua.Sample) *write.Point {
	return influxdb2.NewPointWithMeasurement(s.Name).
		AddTag("endpoint", s.Endpoint).
		AddTag("nodeId", s.NodeID).
		AddField("value", fieldValue(s.Value)).
		SetTime(s.ReceivedAt)
}

// fieldValue gibt Zahlen als float64 zurück, Zahlen in Strings werden geparst.
func fieldValue(v interface{}) interface{} {
	switch x := opcua.ConvValue(v).(type) {
	case string:
		str := strings.TrimSpace(x)
		if i, err := strconv.ParseInt(str, 10, 64); err == nil {
			return float64(i)
		}
		if f, err := strconv.ParseFloat(str, 64); err == nil {
			return f
		}
		return x
	case int:
		return float64(x)
	case int8:
		return float64(x)
	case int16:
		return float64(x)
	case int32:
		return float64(x)
	case int64:
		return float64(x)
	case uint8:
		return float64(x)
	case uint16:
		return float64(x)
	case uint32:
		return float64(x)
	case uint64:
		return float64(x)
	case float32:
		return float64(x)
	case nil:
		return ""
	default:
		return x
	}
}

func (f *influxForwarder) Send(ctx context.Context, samples []opcua.Sample) error {
	if f.unhealthy {
		health, err := f.client.Health(ctx)
		if err != nil {
			return fmt.Errorf("InfluxDB %s not reachable: %v", f.url, err)
		}
		if health.Status != "pass" {
			return fmt.Errorf("InfluxDB %s not healthy: %s", f.url, health.Status)
		}
		f.unhealthy = false
	}

	points := make([]*write.Point, 0, len(samples))
	for _, s := range samples {
		if s.Good {
			points = append(points, samplePoint(s))
		}
	}
	if len(points) == 0 {
		return nil
	}
	if err := f.writeAPI.WritePoint(ctx, points...); err != nil {
		f.unhealthy = true
		return err
	}
	logrus.Debugf("DF: wrote %d points to InfluxDB", len(points))
	return nil
}

func (f *influxForwarder) Close() {
	f.client.Close()
}
