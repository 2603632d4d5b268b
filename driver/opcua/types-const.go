package opcua

import (
	"context"
	"sync"
	"time"

	"github.com/gopcua/opcua/ua"
)

// Standardwerte des Polling-Clients
const (
	DefaultAcquisitionTime = 500  // ms zwischen zwei Reads
	DefaultRetryDelay      = 1000 // ms zwischen zwei Verbindungsversuchen
	DefaultRequestTimeout  = 1000 // ms pro Read-Request
)

// State ist der Zustand eines Pollers, so gespeichert und veröffentlicht.
type State string

const (
	StateStopped      State = "0 (stopped)"
	StateRunning      State = "1 (running)"
	StateInitializing State = "2 (initializing)"
	StateError        State = "3 (error)"
	StateNoDatapoints State = "4 (no datapoints)"
)

// Gerätekonfigurationsstruktur
type DeviceConfig struct {
	Name            string     `yaml:"name" json:"name"`
	Address         string     `yaml:"address" json:"address"`
	SecurityMode    string     `yaml:"securityMode,omitempty" json:"securityMode,omitempty"`
	SecurityPolicy  string     `yaml:"securityPolicy,omitempty" json:"securityPolicy,omitempty"`
	CertFile        string     `yaml:"certificate,omitempty" json:"certificate,omitempty"`
	KeyFile         string     `yaml:"key,omitempty" json:"key,omitempty"`
	Username        string     `yaml:"username,omitempty" json:"username,omitempty"`
	Password        string     `yaml:"password,omitempty" json:"-"`
	DataNode        []DataNode `yaml:"dataNodes" json:"dataNodes"`
	AcquisitionTime int        `yaml:"acquisitionTime" json:"acquisitionTime"`
	RetryDelay      int        `yaml:"retryDelay" json:"retryDelay"`
	RequestTimeout  int        `yaml:"requestTimeout" json:"requestTimeout"`
}

// DataNode ist ein gepollter Knoten. Ein leerer Name wird nach dem Verbinden aus dem DisplayName gelesen.
type DataNode struct {
	Name string `yaml:"name" json:"name"`
	Node string `yaml:"node" json:"node"`
}

// WithDefaults setzt für leere Zeiten die Standardwerte.
func (d DeviceConfig) WithDefaults() DeviceConfig {
	if d.AcquisitionTime <= 0 {
		d.AcquisitionTime = DefaultAcquisitionTime
	}
	if d.RetryDelay <= 0 {
		d.RetryDelay = DefaultRetryDelay
	}
	if d.RequestTimeout <= 0 {
		d.RequestTimeout = DefaultRequestTimeout
	}
	return d
}

func (d DeviceConfig) acquisitionInterval() time.Duration {
	return time.Duration(d.AcquisitionTime) * time.Millisecond
}

func (d DeviceConfig) retryInterval() time.Duration {
	return time.Duration(d.RetryDelay) * time.Millisecond
}

func (d DeviceConfig) requestTimeout() time.Duration {
	return time.Duration(d.RequestTimeout) * time.Millisecond
}

// Sample ist das Ergebnis eines Reads für einen Knoten.
type Sample struct {
	Endpoint   string        `json:"endpoint"`
	NodeID     string        `json:"nodeId"`
	Name       string        `json:"name"`
	Value      interface{}   `json:"value"`
	Good       bool          `json:"good"`
	Status     string        `json:"status"`
	SourceTime time.Time     `json:"sourceTime"`
	ReceivedAt time.Time     `json:"receivedAt"`
	Latency    time.Duration `json:"latency,omitempty"`
}

// Sink empfängt Samples und Zustände eines Pollers.
type Sink interface {
	HandleSamples(endpoint string, samples []Sample)
	HandleState(endpoint string, state State)
}

// Conn ist der Teil von *opcua.Client, den der Poller nutzt.
type Conn interface {
	Read(ctx context.Context, req *ua.ReadRequest) (*ua.ReadResponse, error)
	Write(ctx context.Context, req *ua.WriteRequest) (*ua.WriteResponse, error)
	Call(ctx context.Context, req *ua.CallMethodRequest) (*ua.CallMethodResult, error)
	Close(ctx context.Context) error
}

// verbundene Clients nach Endpunktname, für Write-Back über MQTT
var (
	clientsMu    sync.RWMutex
	opcuaClients = make(map[string]Conn)
)

func addOpcuaClient(name string, c Conn) {
	clientsMu.Lock()
	defer clientsMu.Unlock()
	opcuaClients[name] = c
}

func removeOpcuaClient(name string) {
	clientsMu.Lock()
	defer clientsMu.Unlock()
	delete(opcuaClients, name)
}

// GetClient liefert den verbundenen Client eines Endpunkts.
func GetClient(name string) (Conn, bool) {
	clientsMu.RLock()
	defer clientsMu.RUnlock()
	c, ok := opcuaClients[name]
	return c, ok
}
