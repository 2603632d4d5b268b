package webui

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	dataforwarding "opcua-demo/data-forwarding"
	opcua "opcua-demo/driver/opcua"
	"opcua-demo/logic"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakePollers struct {
	restarted []string
}

func (f *fakePollers) Statuses() []logic.PollerStatus {
	return []logic.PollerStatus{{Name: "raspi", Address: "opc.tcp://raspi:4840", State: opcua.StateRunning, Active: true, Samples: 12}}
}

func (f *fakePollers) Status(name string) (logic.PollerStatus, bool) {
	if name != "raspi" {
		return logic.PollerStatus{}, false
	}
	return f.Statuses()[0], true
}

func (f *fakePollers) RestartPoller(name string) error {
	if name != "raspi" {
		return errors.New("unknown endpoint")
	}
	f.restarted = append(f.restarted, name)
	return nil
}

type fakeSamples struct {
	lastQuery string
}

var sampleTime = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

func (f *fakeSamples) Latest() []opcua.Sample {
	return []opcua.Sample{
		{Endpoint: "raspi", NodeID: "ns=2;s=testSysTemp", Name: "systemTemperature", Value: 48.3, Good: true, Status: "Good", ReceivedAt: sampleTime},
		{Endpoint: "pump", NodeID: "ns=1;s=pump2.MotorRPMs", Name: "MotorRPMs", Value: 50.0, Good: true, Status: "Good", ReceivedAt: sampleTime},
		{Endpoint: "raspi", NodeID: "ns=2;s=testSerial", Name: "Serial Number", Value: "abc", Good: true, Status: "Good", ReceivedAt: sampleTime},
	}
}

func (f *fakeSamples) History(endpoint, node string, limit int) ([]opcua.Sample, error) {
	f.lastQuery = endpoint + "|" + node
	out := make([]opcua.Sample, 0, limit)
	for i := 0; i < limit; i++ {
		out = append(out, opcua.Sample{Endpoint: endpoint, NodeID: node, Name: "t", Value: float64(i), Good: true, ReceivedAt: sampleTime})
	}
	return out, nil
}

type fakeRoutes struct{}

func (fakeRoutes) Statuses() []dataforwarding.RouteStatus {
	return []dataforwarding.RouteStatus{{Name: "archive", Type: "file", Sent: 7}}
}

func newTestServer(users map[string]string) (*Server, *fakePollers, *fakeSamples) {
	pollers := &fakePollers{}
	samples := &fakeSamples{}
	s := New(logic.WebUIConfig{Users: users}, pollers, samples, fakeRoutes{}, NewHub())
	return s, pollers, samples
}

func do(t *testing.T, s *Server, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)
	return w
}

func TestPollerRoutes(t *testing.T) {
	s, pollers, _ := newTestServer(nil)

	w := do(t, s, http.MethodGet, "/api/pollers", "")
	require.Equal(t, http.StatusOK, w.Code)
	var statuses []logic.PollerStatus
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &statuses))
	require.Len(t, statuses, 1)
	assert.Equal(t, opcua.StateRunning, statuses[0].State)

	assert.Equal(t, http.StatusOK, do(t, s, http.MethodGet, "/api/pollers/raspi", "").Code)
	assert.Equal(t, http.StatusNotFound, do(t, s, http.MethodGet, "/api/pollers/nope", "").Code)

	assert.Equal(t, http.StatusOK, do(t, s, http.MethodPost, "/api/pollers/raspi/restart", "").Code)
	assert.Equal(t, http.StatusNotFound, do(t, s, http.MethodPost, "/api/pollers/nope/restart", "").Code)
	assert.Equal(t, []string{"raspi"}, pollers.restarted)
}

func TestWriteAndCallNeedConnection(t *testing.T) {
	s, _, _ := newTestServer(nil)

	w := do(t, s, http.MethodPost, "/api/pollers/raspi/write", `{"nodeId":"ns=2;s=testSysTemp","value":0}`)
	assert.Equal(t, http.StatusConflict, w.Code)

	w = do(t, s, http.MethodPost, "/api/pollers/raspi/write", `{"nodeId":"ns=2;s=testSysTemp"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = do(t, s, http.MethodPost, "/api/pollers/nope/call", `{"objectId":"ns=1;i=1","methodId":"ns=1;i=2"}`)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = do(t, s, http.MethodPost, "/api/pollers/raspi/call", `{"objectId":"ns=1;i=1"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestValuesAndHistory(t *testing.T) {
	s, _, samples := newTestServer(nil)

	w := do(t, s, http.MethodGet, "/api/values?endpoint=raspi", "")
	require.Equal(t, http.StatusOK, w.Code)
	var points []DataPoint
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &points))
	require.Len(t, points, 2)
	assert.Equal(t, "Serial Number", points[0].Name)
	assert.Equal(t, "systemTemperature", points[1].Name)

	w = do(t, s, http.MethodGet, "/api/history?endpoint=raspi&node=ns%3D2%3Bs%3DtestSysTemp&limit=5", "")
	require.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &points))
	assert.Len(t, points, 5)
	assert.Equal(t, "raspi|ns=2;s=testSysTemp", samples.lastQuery)

	assert.Equal(t, http.StatusBadRequest, do(t, s, http.MethodGet, "/api/history?endpoint=raspi", "").Code)
	assert.Equal(t, http.StatusBadRequest, do(t, s, http.MethodGet, "/api/history?endpoint=raspi&node=x&limit=-1", "").Code)
}

func TestRoutesAndLogs(t *testing.T) {
	s, _, _ := newTestServer(nil)

	w := do(t, s, http.MethodGet, "/api/routes", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"archive"`)

	assert.Equal(t, http.StatusOK, do(t, s, http.MethodDelete, "/api/logs", "").Code)
	assert.Equal(t, http.StatusOK, do(t, s, http.MethodPut, "/api/log-level", `{"level":"warn"}`).Code)
	assert.Equal(t, http.StatusBadRequest, do(t, s, http.MethodPut, "/api/log-level", `{"level":"shout"}`).Code)
	assert.NoError(t, logic.SetLogLevel("info"))

	w = do(t, s, http.MethodGet, "/api/logs", "")
	require.Equal(t, http.StatusOK, w.Code)
	var logs struct {
		Logs []string `json:"logs"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &logs))
}

func TestBasicAuth(t *testing.T) {
	s, _, _ := newTestServer(map[string]string{"admin": "secret"})

	assert.Equal(t, http.StatusOK, do(t, s, http.MethodGet, "/healthz", "").Code)
	assert.Equal(t, http.StatusUnauthorized, do(t, s, http.MethodGet, "/api/pollers", "").Code)

	req := httptest.NewRequest(http.MethodGet, "/api/pollers", nil)
	req.SetBasicAuth("admin", "secret")
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestValuesWebSocket(t *testing.T) {
	s, _, _ := newTestServer(nil)
	srv := httptest.NewServer(s.Handler())
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws/values"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	require.Eventually(t, func() bool { return s.hub.clientCount() == 1 }, 2*time.Second, 10*time.Millisecond)

	s.hub.Broadcast("raspi", []opcua.Sample{{Endpoint: "raspi", NodeID: "ns=2;s=testSysIdle", Name: "sysIdlePercentage", Value: 97.5, Good: true, Status: "Good"}})

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var msg liveMessage
	require.NoError(t, conn.ReadJSON(&msg))
	assert.Equal(t, "raspi", msg.Endpoint)
	require.Len(t, msg.Values, 1)
	assert.Equal(t, 97.5, msg.Values[0].Value)

	s.hub.Close()
	_, _, err = conn.ReadMessage()
	assert.Error(t, err)
}
