package uaserver

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/awcullen/opcua/client"
	"github.com/awcullen/opcua/ua"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// startServer runs a minimal server on a fixed test port with a constant temperature.
func startServer(t *testing.T) *Server {
	t.Helper()
	return startServerWith(t, Settings{Host: "localhost", Port: 48410, Minimal: true}, func() (float32, error) {
		return 42.5, nil
	})
}

func startServerWith(t *testing.T, settings Settings, temperature func() (float32, error)) *Server {
	t.Helper()
	if testing.Short() {
		t.Skip("starts an opc.tcp listener")
	}

	settings.PKIDir = t.TempDir()
	srv, err := New(settings)
	require.NoError(t, err)
	srv.temperature = temperature

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	time.Sleep(200 * time.Millisecond)
	return srv
}

func dial(t *testing.T, srv *Server, opts ...client.Option) *client.Client {
	t.Helper()
	ch, err := tryDial(srv, opts...)
	require.NoError(t, err)
	t.Cleanup(func() { ch.Close(context.Background()) })
	return ch
}

func tryDial(srv *Server, opts ...client.Option) (*client.Client, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	opts = append([]client.Option{
		client.WithSecurityPolicyURI(ua.SecurityPolicyURINone, ua.MessageSecurityModeNone),
		client.WithInsecureSkipVerify(),
	}, opts...)
	return client.Dial(ctx, srv.EndpointURL(), opts...)
}

func readValue(t *testing.T, ch *client.Client, id ua.NodeID) ua.DataValue {
	t.Helper()
	resp, err := ch.Read(context.Background(), &ua.ReadRequest{
		NodesToRead:        []ua.ReadValueID{{NodeID: id, AttributeID: ua.AttributeIDValue}},
		TimestampsToReturn: ua.TimestampsToReturnBoth,
	})
	require.NoError(t, err)
	require.Len(t, resp.Results, 1)
	return resp.Results[0]
}

func callMethod(t *testing.T, ch *client.Client, req ua.CallMethodRequest) ua.CallMethodResult {
	t.Helper()
	resp, err := ch.Call(context.Background(), &ua.CallRequest{MethodsToCall: []ua.CallMethodRequest{req}})
	require.NoError(t, err)
	require.Len(t, resp.Results, 1)
	return resp.Results[0]
}

func TestServerReadsTestObject(t *testing.T) {
	srv := startServer(t)
	ch := dial(t, srv)

	ns := srv.NamespaceIndex()
	resp, err := ch.Read(context.Background(), &ua.ReadRequest{
		NodesToRead: []ua.ReadValueID{
			{NodeID: ua.NewNodeIDString(ns, SerialNumberID), AttributeID: ua.AttributeIDValue},
			{NodeID: ua.NewNodeIDString(ns, SysTempID), AttributeID: ua.AttributeIDValue},
			{NodeID: ua.NewNodeIDString(ns, VendorNameID), AttributeID: ua.AttributeIDValue},
		},
		TimestampsToReturn: ua.TimestampsToReturnBoth,
	})
	require.NoError(t, err)
	require.Len(t, resp.Results, 3)

	assert.Equal(t, int32(123456), resp.Results[0].Value)
	assert.Equal(t, float32(42.5), resp.Results[1].Value)
	assert.Equal(t, "nameOfVariable", resp.Results[2].Value)

	// operations of one Read are served concurrently, so the counter is read twice
	first, ok := readValue(t, ch, ua.NewNodeIDString(ns, CounterID)).Value.(float64)
	require.True(t, ok)
	second := readValue(t, ch, ua.NewNodeIDString(ns, CounterID))
	assert.Equal(t, first+1, second.Value)
}

func TestServerKeepsLastSensorValueOnError(t *testing.T) {
	var failing atomic.Bool
	srv := startServerWith(t, Settings{Host: "localhost", Port: 48411, Minimal: true}, func() (float32, error) {
		if failing.Load() {
			return 0, errors.New("thermal zone gone")
		}
		return 51.25, nil
	})
	ch := dial(t, srv)
	id := ua.NewNodeIDString(srv.NamespaceIndex(), SysTempID)

	good := readValue(t, ch, id)
	require.True(t, good.StatusCode.IsGood())
	assert.Equal(t, float32(51.25), good.Value)

	failing.Store(true)
	bad := readValue(t, ch, id)
	assert.Equal(t, ua.BadResourceUnavailable, bad.StatusCode)
	assert.Equal(t, float32(51.25), bad.Value)
}

func TestMinimalServerRejectsUserNames(t *testing.T) {
	user, err := NewUser("operator", "secret")
	require.NoError(t, err)
	srv := startServerWith(t, Settings{Host: "localhost", Port: 48412, Minimal: true, Users: []User{user}}, func() (float32, error) {
		return 42.5, nil
	})

	_, err = tryDial(srv, client.WithUserNameIdentity("operator", "secret"))
	assert.Error(t, err)

	ch := dial(t, srv)
	assert.True(t, readValue(t, ch, ua.NewNodeIDString(srv.NamespaceIndex(), SerialNumberID)).StatusCode.IsGood())
}

func TestServerCallsSelectMethod(t *testing.T) {
	srv := startServer(t)
	ch := dial(t, srv)

	res := callMethod(t, ch, ua.CallMethodRequest{
		ObjectID:       ua.ObjectIDObjectsFolder,
		MethodID:       SelectMethodNodeID(),
		InputArguments: []ua.Variant{"2"},
	})
	require.True(t, res.StatusCode.IsGood(), "status %v", res.StatusCode)
	assert.Equal(t, []ua.Variant{"Case 2 selected."}, res.OutputArguments)

	res = callMethod(t, ch, ua.CallMethodRequest{
		ObjectID: ua.ObjectIDObjectsFolder,
		MethodID: SelectMethodNodeID(),
	})
	assert.Equal(t, ua.BadArgumentsMissing, res.StatusCode)

	res = callMethod(t, ch, ua.CallMethodRequest{
		ObjectID:       ua.ObjectIDObjectsFolder,
		MethodID:       SelectMethodNodeID(),
		InputArguments: []ua.Variant{"1", "2"},
	})
	assert.Equal(t, ua.BadTooManyArguments, res.StatusCode)
}

func TestServerRaisesEvent(t *testing.T) {
	srv := startServer(t)
	ch := dial(t, srv)

	res := callMethod(t, ch, ua.CallMethodRequest{
		ObjectID: ua.ObjectIDObjectsFolder,
		MethodID: ua.NewNodeIDString(srv.NamespaceIndex(), OnEventMethodID),
	})
	require.True(t, res.StatusCode.IsGood(), "status %v", res.StatusCode)

	msg, at := srv.LastEvent()
	assert.Equal(t, OnEventMessage, msg)
	assert.False(t, at.IsZero())

	evt := srv.events.lastEvent()
	require.NotNil(t, evt)
	assert.Equal(t, uint16(100), evt.Severity)
	assert.Equal(t, "Server", evt.SourceName)
	assert.Equal(t, ua.ObjectIDServer, evt.SourceNode)
	assert.Equal(t, ua.NewNodeIDString(srv.NamespaceIndex(), TestEventTypeID), evt.EventType)
	assert.Len(t, evt.EventID, 16)

	res = callMethod(t, ch, ua.CallMethodRequest{
		ObjectID: ua.ObjectIDObjectsFolder,
		MethodID: ua.NewNodeIDString(srv.NamespaceIndex(), OffEventMethodID),
	})
	require.True(t, res.StatusCode.IsGood(), "status %v", res.StatusCode)
	msg, _ = srv.LastEvent()
	assert.Equal(t, OffEventMessage, msg)

	ev := readValue(t, ch, ua.NewNodeIDString(srv.NamespaceIndex(), LastEventTextID))
	assert.Equal(t, OffEventMessage, ev.Value)
}
