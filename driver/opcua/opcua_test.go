package opcua

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/gopcua/opcua/ua"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeConn struct {
	mu      sync.Mutex
	reads   int
	readFn  func(req *ua.ReadRequest) (*ua.ReadResponse, error)
	writes  []*ua.WriteValue
	calls   []*ua.CallMethodRequest
	closed  bool
	callOut []*ua.Variant
}

func (f *fakeConn) Read(ctx context.Context, req *ua.ReadRequest) (*ua.ReadResponse, error) {
	f.mu.Lock()
	f.reads++
	f.mu.Unlock()
	return f.readFn(req)
}

func (f *fakeConn) Write(ctx context.Context, req *ua.WriteRequest) (*ua.WriteResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.writes = append(f.writes, req.NodesToWrite...)
	return &ua.WriteResponse{Results: []ua.StatusCode{ua.StatusOK}}, nil
}

func (f *fakeConn) Call(ctx context.Context, req *ua.CallMethodRequest) (*ua.CallMethodResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, req)
	return &ua.CallMethodResult{StatusCode: ua.StatusOK, OutputArguments: f.callOut}, nil
}

func (f *fakeConn) Close(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

type recordingSink struct {
	mu      sync.Mutex
	states  []State
	samples [][]Sample
}

func (r *recordingSink) HandleSamples(endpoint string, samples []Sample) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.samples = append(r.samples, samples)
}

func (r *recordingSink) HandleState(endpoint string, state State) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.states = append(r.states, state)
}

func (r *recordingSink) snapshot() ([]State, int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]State(nil), r.states...), len(r.samples)
}

var testNodes = []DataNode{
	{Name: "Vendor Name", Node: "ns=2;s=testVariableName"},
	{Name: "timeStamp", Node: "ns=2;s=testTimeStamp"},
	{Name: "missing", Node: "ns=2;s=doesNotExist"},
}

func goodReads(req *ua.ReadRequest) (*ua.ReadResponse, error) {
	now := time.Now()
	return &ua.ReadResponse{Results: []*ua.DataValue{
		{Value: ua.MustVariant("nameOfVariable"), Status: ua.StatusOK, SourceTimestamp: now},
		{Value: ua.MustVariant(now.Add(-20 * time.Millisecond)), Status: ua.StatusOK, SourceTimestamp: now},
		{Status: ua.StatusBadNodeIDUnknown},
	}}, nil
}

func TestReadDataKeepsPerNodeStatus(t *testing.T) {
	conn := &fakeConn{readFn: goodReads}

	samples, err := ReadData(context.Background(), conn, "raspi", testNodes)
	require.NoError(t, err)
	require.Len(t, samples, 3)

	assert.True(t, samples[0].Good)
	assert.Equal(t, "nameOfVariable", samples[0].Value)
	assert.Equal(t, "raspi", samples[0].Endpoint)

	assert.True(t, samples[1].Good)
	assert.GreaterOrEqual(t, samples[1].Latency, 20*time.Millisecond)

	assert.False(t, samples[2].Good)
	assert.Nil(t, samples[2].Value)
	assert.NotEmpty(t, samples[2].Status)
}

func TestReadDataServiceError(t *testing.T) {
	conn := &fakeConn{readFn: func(*ua.ReadRequest) (*ua.ReadResponse, error) {
		return nil, errors.New("connection reset")
	}}
	_, err := ReadData(context.Background(), conn, "raspi", testNodes)
	assert.Error(t, err)

	_, err = ReadData(context.Background(), conn, "raspi", []DataNode{{Node: "not a node id"}})
	assert.Error(t, err)
}

func TestValidateAndFixOPCUAAddress(t *testing.T) {
	cases := map[string]string{
		"opc.tcp://localhost":          "opc.tcp://localhost:4840",
		"opc.tcp://raspi:4841":         "opc.tcp://raspi:4841",
		"opc.tcp://10.0.0.2/path":      "opc.tcp://10.0.0.2:4840/path",
		" opc.tcp://notMyPi:4840 ":     "opc.tcp://notMyPi:4840",
		"opc.tcp://raspi:4840/UA/Demo": "opc.tcp://raspi:4840/UA/Demo",
	}
	for in, want := range cases {
		got, err := ValidateAndFixOPCUAAddress(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got)
	}

	for _, in := range []string{"http://raspi:4840", "opc.tcp://", "raspi:4840"} {
		_, err := ValidateAndFixOPCUAAddress(in)
		assert.Error(t, err, in)
	}
}

func TestSecurityMapping(t *testing.T) {
	assert.Equal(t, ua.MessageSecurityModeNone, getSecurityMode(""))
	assert.Equal(t, ua.MessageSecurityModeSign, getSecurityMode("Sign"))
	assert.Equal(t, ua.MessageSecurityModeSignAndEncrypt, getSecurityMode("SignAndEncrypt"))
	assert.Equal(t, ua.MessageSecurityModeNone, getSecurityMode("bogus"))

	assert.Equal(t, ua.SecurityPolicyURINone, getSecurityPolicy("None"))
	assert.Equal(t, ua.SecurityPolicyURIBasic256Sha256, getSecurityPolicy("Basic256Sha256"))
	assert.Equal(t, ua.SecurityPolicyURINone, getSecurityPolicy("bogus"))
}

func TestSelectEndpoint(t *testing.T) {
	eps := []*ua.EndpointDescription{
		{EndpointURL: "a", SecurityPolicyURI: ua.SecurityPolicyURINone, SecurityMode: ua.MessageSecurityModeNone},
		{EndpointURL: "b", SecurityPolicyURI: ua.SecurityPolicyURIBasic256Sha256, SecurityMode: ua.MessageSecurityModeSignAndEncrypt},
	}
	ep := selectEndpoint(eps, ua.SecurityPolicyURIBasic256Sha256, ua.MessageSecurityModeSignAndEncrypt)
	require.NotNil(t, ep)
	assert.Equal(t, "b", ep.EndpointURL)
	assert.Nil(t, selectEndpoint(eps, ua.SecurityPolicyURIBasic256, ua.MessageSecurityModeSign))
}

func TestRunReconnectsAfterConnectFailure(t *testing.T) {
	conn := &fakeConn{readFn: goodReads}
	var attempts int
	var mu sync.Mutex
	dial = func(ctx context.Context, device DeviceConfig) (Conn, error) {
		mu.Lock()
		defer mu.Unlock()
		attempts++
		if attempts < 3 {
			return nil, errors.New("connection refused")
		}
		return conn, nil
	}
	t.Cleanup(func() { dial = dialClient })

	sink := &recordingSink{}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- Run(ctx, DeviceConfig{Name: "raspi", Address: "opc.tcp://raspi", DataNode: testNodes, AcquisitionTime: 10, RetryDelay: 10}, sink)
	}()

	require.Eventually(t, func() bool {
		_, n := sink.snapshot()
		return n >= 3
	}, 2*time.Second, 5*time.Millisecond)

	c, ok := GetClient("raspi")
	require.True(t, ok)
	assert.Equal(t, conn, c)

	cancel()
	require.NoError(t, <-done)

	states, _ := sink.snapshot()
	assert.Equal(t, []State{StateInitializing, StateError, StateInitializing, StateError, StateInitializing, StateRunning}, states[:6])
	assert.Equal(t, StateStopped, states[len(states)-1])
	assert.True(t, conn.closed)
	_, ok = GetClient("raspi")
	assert.False(t, ok)
}

func TestRunReconnectsAfterReadFailure(t *testing.T) {
	var failed bool
	conn := &fakeConn{}
	conn.readFn = func(req *ua.ReadRequest) (*ua.ReadResponse, error) {
		if !failed {
			failed = true
			return nil, errors.New("session closed")
		}
		return goodReads(req)
	}
	dials := 0
	dial = func(ctx context.Context, device DeviceConfig) (Conn, error) {
		dials++
		return conn, nil
	}
	t.Cleanup(func() { dial = dialClient })

	sink := &recordingSink{}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- Run(ctx, DeviceConfig{Name: "pi2", Address: "opc.tcp://pi2", DataNode: testNodes, AcquisitionTime: 10, RetryDelay: 10}, sink)
	}()

	require.Eventually(t, func() bool {
		_, n := sink.snapshot()
		return n >= 1
	}, 2*time.Second, 5*time.Millisecond)
	cancel()
	require.NoError(t, <-done)
	assert.Equal(t, 2, dials)
}

func TestRunWithoutDataNodes(t *testing.T) {
	sink := &recordingSink{}
	require.NoError(t, Run(context.Background(), DeviceConfig{Name: "empty"}, sink))
	states, _ := sink.snapshot()
	assert.Equal(t, []State{StateNoDatapoints}, states)
}

func TestConvDataAndFormat(t *testing.T) {
	ts := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	samples := []Sample{
		{Name: "Vendor Name", Value: "nameOfVariable", Good: true},
		{Name: "timeStamp", Value: ts, Good: true, Latency: 12 * time.Millisecond},
		{Name: "temp", Value: float32(48.5), Good: true},
		{Name: "missing", Good: false, Status: "BadNodeIdUnknown"},
	}
	data := ConvData(samples)
	assert.Len(t, data, 3)
	assert.Equal(t, "nameOfVariable", data["Vendor Name"])

	line := FormatSamples(samples)
	assert.Contains(t, line, "Vendor Name=nameOfVariable")
	assert.Contains(t, line, "timeStamp=2024-05-01 12:00:00.000 (latency 12ms)")
	assert.Contains(t, line, "temp=48.500000")
	assert.Contains(t, line, "missing=<BadNodeIdUnknown>")
}

type memPublisher struct {
	mu       sync.Mutex
	messages map[string][]byte
	handlers map[string]func(string, []byte)
}

func newMemPublisher() *memPublisher {
	return &memPublisher{messages: map[string][]byte{}, handlers: map[string]func(string, []byte){}}
}

func (m *memPublisher) Publish(topic string, payload []byte, retain bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.messages[topic] = payload
	return nil
}

func (m *memPublisher) Subscribe(filter string, handler func(string, []byte)) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handlers[filter] = handler
	return nil
}

func (m *memPublisher) Close() {}

func TestPubData(t *testing.T) {
	pub := newMemPublisher()
	err := PubData(pub, "opcua-demo", []Sample{
		{Endpoint: "raspi", Name: "Serial Number", Value: int32(123456), Good: true, Status: "Good"},
		{Endpoint: "raspi", Name: "missing", Good: false},
	})
	require.NoError(t, err)
	require.Len(t, pub.messages, 1)

	var payload map[string]interface{}
	require.NoError(t, json.Unmarshal(pub.messages["opcua-demo/data/raspi/Serial_Number"], &payload))
	assert.Equal(t, float64(123456), payload["value"])
}

func TestWriteBackListener(t *testing.T) {
	conn := &fakeConn{readFn: goodReads}
	addOpcuaClient("writer", conn)
	t.Cleanup(func() { removeOpcuaClient("writer") })

	pub := newMemPublisher()
	require.NoError(t, StartMqttDataUpdateListener(pub, "opcua-demo", time.Second))
	handler := pub.handlers["opcua-demo/write/#"]
	require.NotNil(t, handler)

	handler("opcua-demo/write/writer", []byte(`{"endpoint":"writer","nodeId":"ns=2;s=testVariable","value":3.5}`))
	require.Len(t, conn.writes, 1)
	assert.Equal(t, 3.5, conn.writes[0].Value.Value.Value())

	assert.Error(t, HandleWriteRequest(context.Background(), []byte(`{"endpoint":"unknown","nodeId":"ns=2;s=x","value":1}`)))
	assert.Error(t, HandleWriteRequest(context.Background(), []byte(`not json`)))
}

func TestCallMethod(t *testing.T) {
	conn := &fakeConn{callOut: []*ua.Variant{ua.MustVariant("Case 2 selected.")}}
	out, err := CallMethod(context.Background(), conn, "i=85", "ns=1;i=62541", "2")
	require.NoError(t, err)
	assert.Equal(t, []interface{}{"Case 2 selected."}, out)
	require.Len(t, conn.calls, 1)
	assert.Equal(t, "2", conn.calls[0].InputArguments[0].Value())
}
