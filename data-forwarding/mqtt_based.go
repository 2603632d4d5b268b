package dataforwarding

import (
	"context"
	"sync"

	opcua "opcua-demo/driver/opcua"
	"opcua-demo/logic"
)

// mqttForwarder veröffentlicht auf einem externen Broker. Die Verbindung wird
// beim ersten Send aufgebaut und nach einem Fehler neu versucht.
type mqttForwarder struct {
	cfg    opcua.MqttConfig
	prefix string

	mu  sync.Mutex
	pub opcua.Publisher
}

// connect wird in Tests ersetzt.
var connect = func(cfg opcua.MqttConfig) (opcua.Publisher, error) {
	return opcua.NewMqttPublisher(cfg)
}

func newMqttForwarder(cfg logic.RouteConfig) *mqttForwarder {
	prefix := cfg.Prefix
	if prefix == "" {
		prefix = "opcua-demo"
	}
	return &mqttForwarder{
		cfg: opcua.MqttConfig{
			Broker:   cfg.Broker,
			ClientID: "opcua-demo-route-" + cfg.Name,
			Username: cfg.Username,
			Password: cfg.Password,
		},
		prefix: prefix,
	}
}

func (f *mqttForwarder) Send(_ context.Context, samples []opcua.Sample) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.pub == nil {
		pub, err := connect(f.cfg)
		if err != nil {
			return err
		}
		f.pub = pub
	}
	return opcua.PubData(f.pub, f.prefix, samples)
}

func (f *mqttForwarder) Close() {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.pub != nil {
		f.pub.Close()
		f.pub = nil
	}
}
