package dataforwarding

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	opcua "opcua-demo/driver/opcua"
	"opcua-demo/logic"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testTime = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

func testSamples() []opcua.Sample {
	return []opcua.Sample{
		{Endpoint: "raspi", NodeID: "ns=2;s=testSysTemp", Name: "systemTemperature", Value: 48.3, Good: true, Status: "Good", ReceivedAt: testTime},
		{Endpoint: "raspi", NodeID: "ns=2;s=testSerial", Name: "Serial Number", Value: "00000000a1b2c3d4", Good: true, Status: "Good", ReceivedAt: testTime},
		{Endpoint: "raspi", NodeID: "ns=2;s=missing", Name: "missing", Good: false, Status: "StatusBadNodeIDUnknown", ReceivedAt: testTime},
	}
}

type fakeStore struct {
	mu      sync.Mutex
	samples []opcua.Sample
	seq     int64
}

func (s *fakeStore) Seq() int64 { return 0 }

func (s *fakeStore) After(endpoints []string, afterSeq int64) ([]opcua.Sample, int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := s.samples
	s.seq += int64(len(out))
	s.samples = nil
	return out, s.seq, nil
}

type memPublisher struct {
	mu     sync.Mutex
	topics []string
}

func (p *memPublisher) Publish(topic string, payload []byte, retain bool) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.topics = append(p.topics, topic)
	return nil
}

func (p *memPublisher) Subscribe(string, func(string, []byte)) error { return nil }
func (p *memPublisher) Close()                                       {}

func TestFileForwarder(t *testing.T) {
	path := filepath.Join(t.TempDir(), "samples.log")
	fw := newFileForwarder(path)

	require.NoError(t, fw.Send(context.Background(), testSamples()))
	require.NoError(t, fw.Send(context.Background(), testSamples()[:1]))

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(raw)), "\n")
	require.Len(t, lines, 4)
	assert.Contains(t, lines[0], "Endpoint: raspi, Node: ns=2;s=testSysTemp, Name: systemTemperature, Value: 48.300000")
	assert.Contains(t, lines[2], "Value: <StatusBadNodeIDUnknown>")
}

func TestRESTForwarder(t *testing.T) {
	var got []DataReading
	var header string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header = r.Header.Get("X-Api-Key")
		body, _ := io.ReadAll(r.Body)
		json.Unmarshal(body, &got)
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	fw := newRESTForwarder(srv.URL, []logic.Header{{Name: "X-Api-Key", Value: "secret"}})
	defer fw.Close()

	require.NoError(t, fw.Send(context.Background(), testSamples()))
	assert.Equal(t, "secret", header)
	require.Len(t, got, 3)
	assert.Equal(t, "systemTemperature", got[0].Name)
	assert.Equal(t, 48.3, got[0].Value)
	assert.Equal(t, "ns=2;s=testSerial", got[1].NodeID)
}

func TestRESTForwarderRejectsErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	err := newRESTForwarder(srv.URL, nil).Send(context.Background(), testSamples())
	assert.ErrorContains(t, err, "500")
}

func TestMqttForwarder(t *testing.T) {
	pub := &memPublisher{}
	orig := connect
	connect = func(cfg opcua.MqttConfig) (opcua.Publisher, error) {
		assert.Equal(t, "tcp://broker:1883", cfg.Broker)
		return pub, nil
	}
	defer func() { connect = orig }()

	fw := newMqttForwarder(logic.RouteConfig{Name: "ext", Type: "mqtt", Broker: "tcp://broker:1883", Prefix: "plant"})
	require.NoError(t, fw.Send(context.Background(), testSamples()))
	fw.Close()

	assert.Equal(t, []string{
		"plant/data/raspi/systemTemperature",
		"plant/data/raspi/Serial_Number",
	}, pub.topics)
}

func TestFieldValue(t *testing.T) {
	assert.Equal(t, 42.0, fieldValue(int32(42)))
	assert.Equal(t, 42.0, fieldValue("42"))
	assert.Equal(t, 1.5, fieldValue(" 1.5 "))
	assert.Equal(t, "Raspberry Pi", fieldValue("Raspberry Pi"))
	assert.Equal(t, true, fieldValue(true))
}

func TestInfluxConfigFromEnv(t *testing.T) {
	t.Setenv("INFLUXDB_URL", "http://influx:8086")
	t.Setenv("INFLUXDB_TOKEN", "token")
	t.Setenv("INFLUXDB_ORG", "")
	t.Setenv("INFLUXDB_BUCKET", "opcua")

	_, err := influxConfig(logic.RouteConfig{Name: "influx", Type: "influx"})
	assert.Error(t, err)

	c, err := influxConfig(logic.RouteConfig{Name: "influx", Type: "influx", Org: "plant"})
	require.NoError(t, err)
	assert.Equal(t, InfluxConfig{URL: "http://influx:8086", Token: "token", Org: "plant", Bucket: "opcua"}, c)
}

func TestStartDataRoutes(t *testing.T) {
	path := filepath.Join(t.TempDir(), "route.log")
	store := &fakeStore{samples: testSamples()}

	routes := StartDataRoutes(context.Background(), []logic.RouteConfig{
		{Name: "file", Type: "file", Interval: 1, FilePath: path},
		{Name: "broken", Type: "carrier-pigeon", Interval: 1},
	}, store)

	assert.Eventually(t, func() bool {
		st := routes.Statuses()
		return len(st) == 1 && st[0].Sent == 3
	}, 5*time.Second, 50*time.Millisecond)
	routes.Stop()

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, 3, strings.Count(string(raw), "\n"))
}

func TestRouteForwardsLateSamples(t *testing.T) {
	db, err := logic.InitDB("sqlite", ":memory:")
	require.NoError(t, err)
	defer db.Close()
	store := logic.NewSampleStore(db, "sqlite", 100, 0)

	path := filepath.Join(t.TempDir(), "late.log")
	routes := StartDataRoutes(context.Background(), []logic.RouteConfig{
		{Name: "file", Type: "file", Interval: 1, FilePath: path},
	}, store)
	defer routes.Stop()

	store.Add(testSamples()[0])
	assert.Eventually(t, func() bool {
		st := routes.Statuses()
		return len(st) == 1 && st[0].Sent == 1
	}, 5*time.Second, 50*time.Millisecond)

	// gelesen vor dem letzten Tick, aber erst danach gespeichert
	late := testSamples()[1]
	late.ReceivedAt = time.Now().Add(-time.Hour)
	store.Add(late)

	assert.Eventually(t, func() bool {
		st := routes.Statuses()
		return len(st) == 1 && st[0].Sent == 2
	}, 5*time.Second, 50*time.Millisecond)

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(raw), "Name: Serial Number")
}
