package mqtt_broker

import (
	"sync"
	"testing"
	"time"

	opcua "opcua-demo/driver/opcua"
	"opcua-demo/logic"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStartBrokerInlineRoundTrip(t *testing.T) {
	cfg := logic.BrokerConfig{
		Enabled:   true,
		Listeners: []logic.ListenerConfig{{ID: "tcp-test", Address: "127.0.0.1:0", Type: "tcp"}, {ID: "x", Type: "carrier-pigeon"}},
		Users:     []logic.BrokerUser{{Username: "gateway", Password: "secret", Allow: true}},
	}
	s, err := StartBroker(cfg)
	require.NoError(t, err)
	defer StopBroker()

	again, err := StartBroker(cfg)
	require.NoError(t, err)
	assert.Same(t, s, again)

	pub := opcua.NewInlinePublisher(s)
	var (
		mu  sync.Mutex
		got []string
	)
	require.NoError(t, pub.Subscribe("opcua-demo/data/#", func(topic string, payload []byte) {
		mu.Lock()
		defer mu.Unlock()
		got = append(got, topic+"="+string(payload))
	}))
	require.NoError(t, pub.Publish(opcua.DataTopic("opcua-demo", "raspi", "systemTemperature"), []byte("48.3"), false))

	assert.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(got) == 1 && got[0] == "opcua-demo/data/raspi/systemTemperature=48.3"
	}, 2*time.Second, 10*time.Millisecond)
}

func TestStopBrokerWithoutServer(t *testing.T) {
	StopBroker()
}
