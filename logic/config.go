package logic

import (
	"fmt"
	"os"
	"strconv"
	"time"

	opcua "opcua-demo/driver/opcua"

	"github.com/sirupsen/logrus"
	yaml "gopkg.in/yaml.v2"
)

// DefaultConfigPath wird verwendet, wenn kein -config Flag gesetzt ist.
const DefaultConfigPath = "config.yaml"

// Config ist die komplette Gateway-Konfiguration.
type Config struct {
	LogLevel   string               `yaml:"logLevel"`
	Endpoints  []opcua.DeviceConfig `yaml:"endpoints"`
	Database   DatabaseConfig       `yaml:"database"`
	MQTT       MQTTConfig           `yaml:"mqtt"`
	Broker     BrokerConfig         `yaml:"broker"`
	Forwarding []RouteConfig        `yaml:"forwarding"`
	WebUI      WebUIConfig          `yaml:"webui"`
	Supervisor SupervisorConfig     `yaml:"supervisor"`
	Watch      WatchSettings        `yaml:"watch"`
	Workers    int                  `yaml:"workers"`
}

type DatabaseConfig struct {
	Driver    string `yaml:"driver"` // sqlite | postgres
	DSN       string `yaml:"dsn"`
	BatchSize int    `yaml:"batchSize"`
	Retention int    `yaml:"retentionMinutes"`
}

// MQTTConfig beschreibt, wohin Samples veröffentlicht werden. Ohne Broker-Adresse
// wird der eingebettete Broker über den Inline-Client verwendet.
type MQTTConfig struct {
	Enabled      bool   `yaml:"enabled"`
	Prefix       string `yaml:"prefix"`
	Broker       string `yaml:"broker"`
	Username     string `yaml:"username"`
	Password     string `yaml:"password"`
	SendMode     string `yaml:"sendMode"`     // cyclic | on-change
	SendInterval int    `yaml:"sendInterval"` // ms, nur für cyclic
	WriteBack    bool   `yaml:"writeBack"`
}

type BrokerConfig struct {
	Enabled   bool             `yaml:"enabled"`
	Listeners []ListenerConfig `yaml:"listeners"`
	Users     []BrokerUser     `yaml:"users"`
	CertFile  string           `yaml:"certFile"`
	KeyFile   string           `yaml:"keyFile"`
}

type ListenerConfig struct {
	ID      string `yaml:"id"`
	Address string `yaml:"address"`
	Type    string `yaml:"type"` // tcp | websocket | http
	TLS     bool   `yaml:"tls"`
}

// BrokerUser ist ein Eintrag der Benutzerliste des Brokers.
type BrokerUser struct {
	Username string  `yaml:"username"`
	Password string  `yaml:"password"`
	Allow    bool    `yaml:"allow"`
	Filters  Filters `yaml:"filters"`
}

type RouteConfig struct {
	Name      string   `yaml:"name"`
	Type      string   `yaml:"type"` // file | rest | mqtt | influx
	Interval  int      `yaml:"interval"`
	Endpoints []string `yaml:"endpoints"`

	FilePath string   `yaml:"filePath,omitempty"`
	URL      string   `yaml:"url,omitempty"`
	Headers  []Header `yaml:"headers,omitempty"`

	Broker   string `yaml:"broker,omitempty"`
	Username string `yaml:"username,omitempty"`
	Password string `yaml:"password,omitempty"`
	Prefix   string `yaml:"prefix,omitempty"`

	Token  string `yaml:"token,omitempty"`
	Org    string `yaml:"org,omitempty"`
	Bucket string `yaml:"bucket,omitempty"`
}

type Header struct {
	Name  string `yaml:"name" json:"name"`
	Value string `yaml:"value" json:"value"`
}

type WebUIConfig struct {
	Enabled  bool              `yaml:"enabled"`
	Address  string            `yaml:"address"`
	TLS      bool              `yaml:"tls"`
	CertFile string            `yaml:"certFile"`
	KeyFile  string            `yaml:"keyFile"`
	Users    map[string]string `yaml:"users"` // Basic-Auth, leer = offen
}

// SupervisorConfig hält optional den Demo-Server als Unterprozess am Leben.
type SupervisorConfig struct {
	Enabled       bool     `yaml:"enabled"`
	Command       string   `yaml:"command"`
	Args          []string `yaml:"args"`
	CheckInterval int      `yaml:"checkInterval"` // s
}

type WatchSettings struct {
	Enabled  bool `yaml:"enabled"`
	Interval int  `yaml:"interval"` // s
}

// DefaultDataNodes sind die Knoten des Testobjekts des Demo-Servers.
func DefaultDataNodes() []opcua.DataNode {
	return []opcua.DataNode{
		{Name: "Vendor Name", Node: "ns=2;s=testVariableName"},
		{Name: "Serial Number", Node: "ns=2;s=testSerial"},
		{Name: "timeStamp", Node: "ns=2;s=testTimeStamp"},
		{Name: "systemTemperature", Node: "ns=2;s=testSysTemp"},
		{Name: "sysIdlePercentage", Node: "ns=2;s=testSysIdle"},
	}
}

// DefaultConfig liefert eine lauffähige Konfiguration gegen einen lokalen Demo-Server.
func DefaultConfig() *Config {
	return &Config{
		LogLevel: "info",
		Endpoints: []opcua.DeviceConfig{{
			Name:            "demo",
			Address:         "opc.tcp://localhost:4840",
			SecurityMode:    "None",
			SecurityPolicy:  "None",
			DataNode:        DefaultDataNodes(),
			AcquisitionTime: opcua.DefaultAcquisitionTime,
			RetryDelay:      opcua.DefaultRetryDelay,
			RequestTimeout:  opcua.DefaultRequestTimeout,
		}},
		Database: DatabaseConfig{
			Driver:    "sqlite",
			DSN:       "opcua-demo.db",
			BatchSize: 20,
			Retention: 10,
		},
		MQTT: MQTTConfig{
			Enabled:      true,
			Prefix:       "opcua-demo",
			SendMode:     "cyclic",
			SendInterval: 1000,
			WriteBack:    true,
		},
		Broker: BrokerConfig{
			Enabled: true,
			Listeners: []ListenerConfig{
				{ID: "tcp1", Address: ":1883", Type: "tcp"},
			},
		},
		WebUI: WebUIConfig{Enabled: true, Address: ":8088"},
		Watch: WatchSettings{Enabled: true, Interval: 5},
		Supervisor: SupervisorConfig{
			Command:       "opcua-server",
			CheckInterval: 10,
		},
		Workers: 4,
	}
}

// LoadConfig liest path (fehlt die Datei, gelten die Standardwerte), wendet die
// Umgebungsvariablen an und prüft das Ergebnis.
func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()

	raw, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(raw, cfg); err != nil {
			return nil, fmt.Errorf("parse %s: %v", path, err)
		}
	case os.IsNotExist(err):
		logrus.Warnf("CONFIG: %s not found, using defaults", path)
	default:
		return nil, fmt.Errorf("read %s: %v", path, err)
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func envInt(name string) (int, bool, error) {
	val := os.Getenv(name)
	if val == "" {
		return 0, false, nil
	}
	i, err := strconv.Atoi(val)
	if err != nil {
		return 0, false, fmt.Errorf("%s: %v", name, err)
	}
	return i, true, nil
}

// applyEnv überschreibt einzelne Werte aus Umgebungsvariablen
func (c *Config) applyEnv() error {
	if val := os.Getenv("OPCUA_ENDPOINT"); val != "" {
		if len(c.Endpoints) == 0 {
			c.Endpoints = DefaultConfig().Endpoints
		}
		c.Endpoints[0].Address = val
	}
	if ms, ok, err := envInt("OPCUA_POLL_INTERVAL_MS"); err != nil {
		return err
	} else if ok {
		for i := range c.Endpoints {
			c.Endpoints[i].AcquisitionTime = ms
		}
	}
	if ms, ok, err := envInt("OPCUA_RETRY_DELAY_MS"); err != nil {
		return err
	} else if ok {
		for i := range c.Endpoints {
			c.Endpoints[i].RetryDelay = ms
		}
	}
	if val := os.Getenv("OPCUA_MQTT_BROKER"); val != "" {
		c.MQTT.Broker = val
	}
	if val := os.Getenv("OPCUA_DB_DRIVER"); val != "" {
		c.Database.Driver = val
	}
	if val := os.Getenv("OPCUA_DB_DSN"); val != "" {
		c.Database.DSN = val
	}
	if val := os.Getenv("OPCUA_LOG_LEVEL"); val != "" {
		c.LogLevel = val
	}
	return nil
}

func (c *Config) applyDefaults() {
	for i := range c.Endpoints {
		c.Endpoints[i] = c.Endpoints[i].WithDefaults()
	}
	if c.Database.BatchSize <= 0 {
		c.Database.BatchSize = 20
	}
	if c.Database.Retention <= 0 {
		c.Database.Retention = 10
	}
	if c.MQTT.Prefix == "" {
		c.MQTT.Prefix = "opcua-demo"
	}
	if c.MQTT.SendMode == "" {
		c.MQTT.SendMode = "cyclic"
	}
	if c.Workers <= 0 {
		c.Workers = 4
	}
	if c.Watch.Interval <= 0 {
		c.Watch.Interval = 5
	}
	if c.Supervisor.CheckInterval <= 0 {
		c.Supervisor.CheckInterval = 10
	}
	for i := range c.Forwarding {
		if c.Forwarding[i].Interval <= 0 {
			c.Forwarding[i].Interval = 10
		}
	}
}

// Validate prüft die Konfiguration auf Gültigkeit
func (c *Config) Validate() error {
	if _, err := logrus.ParseLevel(c.LogLevel); err != nil {
		return fmt.Errorf("logLevel: %v", err)
	}

	names := make(map[string]bool)
	for i, ep := range c.Endpoints {
		if ep.Name == "" {
			return fmt.Errorf("endpoint %d has no name", i)
		}
		if names[ep.Name] {
			return fmt.Errorf("endpoint name %q used twice", ep.Name)
		}
		names[ep.Name] = true
		if _, err := opcua.ValidateAndFixOPCUAAddress(ep.Address); err != nil {
			return fmt.Errorf("endpoint %s: %v", ep.Name, err)
		}
		for _, n := range ep.DataNode {
			if n.Node == "" {
				return fmt.Errorf("endpoint %s has a data node without node id", ep.Name)
			}
		}
	}

	switch c.Database.Driver {
	case "sqlite", "postgres":
	default:
		return fmt.Errorf("database driver must be sqlite or postgres, got %q", c.Database.Driver)
	}
	if c.Database.DSN == "" {
		return fmt.Errorf("database dsn is empty")
	}

	switch c.MQTT.SendMode {
	case SendCyclic, SendOnChange:
	default:
		return fmt.Errorf("mqtt sendMode must be %s or %s, got %q", SendCyclic, SendOnChange, c.MQTT.SendMode)
	}
	if c.MQTT.Enabled && c.MQTT.Broker == "" && !c.Broker.Enabled {
		return fmt.Errorf("mqtt is enabled but neither an external broker nor the embedded broker is configured")
	}

	for _, l := range c.Broker.Listeners {
		switch l.Type {
		case "tcp", "websocket", "http":
		default:
			return fmt.Errorf("broker listener %s: unknown type %q", l.ID, l.Type)
		}
	}

	for _, r := range c.Forwarding {
		switch r.Type {
		case "file":
			if r.FilePath == "" {
				return fmt.Errorf("route %s: filePath is empty", r.Name)
			}
		case "rest":
			if r.URL == "" {
				return fmt.Errorf("route %s: url is empty", r.Name)
			}
		case "mqtt":
			if r.Broker == "" {
				return fmt.Errorf("route %s: broker is empty", r.Name)
			}
		case "influx":
			// url, token, org und bucket dürfen aus INFLUXDB_* kommen
		default:
			return fmt.Errorf("route %s: unknown type %q", r.Name, r.Type)
		}
	}

	if c.Supervisor.Enabled && c.Supervisor.Command == "" {
		return fmt.Errorf("supervisor is enabled without command")
	}
	return nil
}

// Endpoint liefert die Konfiguration des Endpunkts name.
func (c *Config) Endpoint(name string) (opcua.DeviceConfig, bool) {
	for _, ep := range c.Endpoints {
		if ep.Name == name {
			return ep, true
		}
	}
	return opcua.DeviceConfig{}, false
}

func (c *Config) SendInterval() time.Duration {
	return time.Duration(c.MQTT.SendInterval) * time.Millisecond
}
