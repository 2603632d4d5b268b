package opcua

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	MQTT "github.com/mochi-mqtt/server/v2"
	"github.com/mochi-mqtt/server/v2/packets"
	"github.com/sirupsen/logrus"
)

// Publisher ist eine Verbindung zum eingebetteten oder zu einem externen Broker.
type Publisher interface {
	Publish(topic string, payload []byte, retain bool) error
	Subscribe(filter string, handler func(topic string, payload []byte)) error
	Close()
}

// MQTT-Konfigurationsstruktur
type MqttConfig struct {
	Broker   string `yaml:"broker" json:"broker"`
	ClientID string `yaml:"clientId" json:"clientId"`
	Username string `yaml:"username" json:"username"`
	Password string `yaml:"password" json:"-"`
}

// DataTopic liefert <prefix>/data/<endpoint>/<node>.
func DataTopic(prefix, endpoint, node string) string {
	return fmt.Sprintf("%s/data/%s/%s", prefix, topicSafe(endpoint), topicSafe(node))
}

// StateTopic liefert <prefix>/poller/states/<endpoint>.
func StateTopic(prefix, endpoint string) string {
	return fmt.Sprintf("%s/poller/states/%s", prefix, topicSafe(endpoint))
}

// WriteTopic ist der Filter des Write-Back-Listeners.
func WriteTopic(prefix string) string {
	return prefix + "/write/#"
}

// topicSafe ersetzt Wildcards und Trenner, die in Knotennamen vorkommen können.
func topicSafe(s string) string {
	return strings.NewReplacer("/", "_", "#", "_", "+", "_", " ", "_").Replace(s)
}

// MqttPublisher verbindet sich über paho mit einem externen Broker.
type MqttPublisher struct {
	client mqtt.Client
}

func NewMqttPublisher(cfg MqttConfig) (*MqttPublisher, error) {
	clientID := cfg.ClientID
	if clientID == "" {
		clientID = fmt.Sprintf("opcua-demo-%d", time.Now().UnixNano())
	}
	opts := mqtt.NewClientOptions().
		AddBroker(cfg.Broker).
		SetClientID(clientID).
		SetUsername(cfg.Username).
		SetPassword(cfg.Password).
		SetPingTimeout(10 * time.Second).
		SetConnectTimeout(5 * time.Second).
		SetAutoReconnect(true)

	client := mqtt.NewClient(opts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		return nil, fmt.Errorf("connect to MQTT broker %s: %v", cfg.Broker, token.Error())
	}
	logrus.Infof("OPC-UA: connected to MQTT broker %s", cfg.Broker)
	return &MqttPublisher{client: client}, nil
}

func (p *MqttPublisher) Publish(topic string, payload []byte, retain bool) error {
	token := p.client.Publish(topic, 1, retain, payload)
	if !token.WaitTimeout(5 * time.Second) {
		return fmt.Errorf("publish to %s timed out", topic)
	}
	return token.Error()
}

func (p *MqttPublisher) Subscribe(filter string, handler func(topic string, payload []byte)) error {
	token := p.client.Subscribe(filter, 1, func(_ mqtt.Client, msg mqtt.Message) {
		handler(msg.Topic(), msg.Payload())
	})
	if token.Wait() && token.Error() != nil {
		return fmt.Errorf("subscribe to %s: %v", filter, token.Error())
	}
	return nil
}

func (p *MqttPublisher) Close() {
	p.client.Disconnect(250)
}

// InlinePublisher nutzt den Inline-Client des eingebetteten Brokers.
type InlinePublisher struct {
	server *MQTT.Server
	nextID atomic.Int32
}

func NewInlinePublisher(server *MQTT.Server) *InlinePublisher {
	return &InlinePublisher{server: server}
}

func (p *InlinePublisher) Publish(topic string, payload []byte, retain bool) error {
	return p.server.Publish(topic, payload, retain, 1)
}

func (p *InlinePublisher) Subscribe(filter string, handler func(topic string, payload []byte)) error {
	id := int(p.nextID.Add(1))
	return p.server.Subscribe(filter, id, func(_ *MQTT.Client, _ packets.Subscription, pk packets.Packet) {
		handler(pk.TopicName, pk.Payload)
	})
}

// Close macht nichts, der Broker gehört dem Aufrufer.
func (p *InlinePublisher) Close() {}

type samplePayload struct {
	Value      interface{} `json:"value"`
	Status     string      `json:"status"`
	SourceTime time.Time   `json:"sourceTime"`
	LatencyMs  float64     `json:"latencyMs,omitempty"`
}

// PubData veröffentlicht jedes gute Sample unter DataTopic.
func PubData(pub Publisher, prefix string, samples []Sample) error {
	for _, s := range samples {
		if !s.Good {
			continue
		}
		payload, err := json.Marshal(samplePayload{
			Value:      ConvValue(s.Value),
			Status:     s.Status,
			SourceTime: s.SourceTime,
			LatencyMs:  float64(s.Latency) / float64(time.Millisecond),
		})
		if err != nil {
			return fmt.Errorf("failed to marshal data for node-name %s: %v", s.Name, err)
		}
		if err := pub.Publish(DataTopic(prefix, s.Endpoint, s.Name), payload, false); err != nil {
			return fmt.Errorf("failed to publish data for node-name %s: %v", s.Name, err)
		}
	}
	return nil
}

// WriteRequest ist der Payload auf WriteTopic.
type WriteRequest struct {
	Endpoint string      `json:"endpoint"`
	NodeID   string      `json:"nodeId"`
	Value    interface{} `json:"value"`
}

// HandleWriteRequest dekodiert payload und schreibt den Wert über den Client des Endpunkts.
func HandleWriteRequest(ctx context.Context, payload []byte) error {
	var update WriteRequest
	if err := json.Unmarshal(payload, &update); err != nil {
		return fmt.Errorf("failed to unmarshal write request: %v", err)
	}
	if update.Endpoint == "" || update.NodeID == "" {
		return fmt.Errorf("write request needs endpoint and nodeId")
	}

	client, ok := GetClient(update.Endpoint)
	if !ok {
		return fmt.Errorf("client for endpoint '%s' not connected", update.Endpoint)
	}
	return UpdateDataNode(ctx, client, update.NodeID, update.Value)
}

// StartMqttDataUpdateListener abonniert WriteTopic und schreibt empfangene Werte zurück.
func StartMqttDataUpdateListener(pub Publisher, prefix string, timeout time.Duration) error {
	return pub.Subscribe(WriteTopic(prefix), func(topic string, payload []byte) {
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		if err := HandleWriteRequest(ctx, payload); err != nil {
			logrus.Warnf("OPC-UA: write request on %s failed: %v", topic, err)
		}
	})
}
