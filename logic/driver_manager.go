package logic

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	opcua "opcua-demo/driver/opcua"

	"github.com/gammazero/workerpool"
	"github.com/sirupsen/logrus"
)

// PollerStatus ist die Sicht auf einen Poller, die die Web-API ausgibt.
type PollerStatus struct {
	Name       string      `json:"name"`
	Address    string      `json:"address"`
	State      opcua.State `json:"state"`
	Active     bool        `json:"active"`
	Since      time.Time   `json:"since"`
	LastSample time.Time   `json:"lastSample,omitempty"`
	Samples    int64       `json:"samples"`
}

type poller struct {
	device opcua.DeviceConfig
	cancel context.CancelFunc
	done   chan struct{}
	status PollerStatus
}

// Manager startet je Endpunkt einen Poller und verteilt dessen Samples an
// Datenbank, MQTT und registrierte Listener.
type Manager struct {
	store  *SampleStore
	pub    opcua.Publisher
	filter *SendFilter
	pool   *workerpool.WorkerPool

	mu        sync.Mutex
	cfg       *Config
	parent    context.Context
	pollers   map[string]*poller
	listeners []func(endpoint string, samples []opcua.Sample)
}

// NewManager: store und pub dürfen nil sein.
func NewManager(cfg *Config, store *SampleStore, pub opcua.Publisher) *Manager {
	workers := cfg.Workers
	if workers <= 0 {
		workers = 4
	}
	return &Manager{
		cfg:     cfg,
		store:   store,
		pub:     pub,
		filter:  NewSendFilter(),
		pool:    workerpool.New(workers),
		parent:  context.Background(),
		pollers: make(map[string]*poller),
	}
}

// OnSamples registriert einen Listener, der jeden Read eines Pollers erhält.
func (m *Manager) OnSamples(fn func(endpoint string, samples []opcua.Sample)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.listeners = append(m.listeners, fn)
}

// StartAllPollers startet die Poller aller konfigurierten Endpunkte.
// Sie laufen, bis ctx beendet oder StopAllPollers aufgerufen wird.
func (m *Manager) StartAllPollers(ctx context.Context) {
	m.mu.Lock()
	m.parent = ctx
	endpoints := append([]opcua.DeviceConfig(nil), m.cfg.Endpoints...)
	m.mu.Unlock()

	logrus.Infof("DM: Starting %d poller(s)...", len(endpoints))
	for _, device := range endpoints {
		m.startPoller(device)
	}
}

func (m *Manager) startPoller(device opcua.DeviceConfig) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if p, ok := m.pollers[device.Name]; ok && p.status.Active {
		logrus.Warnf("DM: poller %s is already running", device.Name)
		return
	}

	ctx, cancel := context.WithCancel(m.parent)
	p := &poller{
		device: device,
		cancel: cancel,
		done:   make(chan struct{}),
		status: PollerStatus{
			Name:    device.Name,
			Address: device.Address,
			State:   opcua.StateInitializing,
			Active:  true,
			Since:   time.Now(),
		},
	}
	m.pollers[device.Name] = p

	go func() {
		defer close(p.done)
		if err := opcua.Run(ctx, device, m); err != nil {
			logrus.Errorf("DM: poller %s stopped: %v", device.Name, err)
		}
		m.mu.Lock()
		p.status.Active = false
		m.mu.Unlock()
	}()
	logrus.Infof("DM: poller started for endpoint %s.", device.Name)
}

func (m *Manager) stopPoller(name string) bool {
	m.mu.Lock()
	p, ok := m.pollers[name]
	m.mu.Unlock()
	if !ok {
		return false
	}
	p.cancel()
	<-p.done
	logrus.Infof("DM: stopped poller for endpoint %s.", name)
	return true
}

// StopAllPollers stoppt alle Poller und wartet auf sie.
func (m *Manager) StopAllPollers() {
	logrus.Info("DM: Stopping all pollers...")

	m.mu.Lock()
	names := make([]string, 0, len(m.pollers))
	for name := range m.pollers {
		names = append(names, name)
	}
	m.mu.Unlock()

	var wg sync.WaitGroup
	for _, name := range names {
		wg.Add(1)
		go func(name string) {
			defer wg.Done()
			m.stopPoller(name)
		}(name)
	}
	wg.Wait()
	logrus.Info("DM: All pollers have been stopped.")
}

// RestartPoller stoppt den Poller name und startet ihn mit der aktuellen Konfiguration neu.
func (m *Manager) RestartPoller(name string) error {
	m.mu.Lock()
	device, ok := m.cfg.Endpoint(name)
	m.mu.Unlock()
	if !ok {
		return fmt.Errorf("unknown endpoint %q", name)
	}

	logrus.Infof("DM: Restarting poller for endpoint %s...", name)
	m.stopPoller(name)
	m.startPoller(device)
	return nil
}

// ApplyConfig ersetzt die Konfiguration und startet alle Poller neu.
func (m *Manager) ApplyConfig(cfg *Config) {
	m.StopAllPollers()

	m.mu.Lock()
	m.cfg = cfg
	m.pollers = make(map[string]*poller)
	parent := m.parent
	m.mu.Unlock()

	m.filter.Reset()
	m.StartAllPollers(parent)
}

// Close stoppt alle Poller, arbeitet offene Aufträge ab und schreibt den Puffer.
func (m *Manager) Close() {
	m.StopAllPollers()
	m.pool.StopWait()
	if m.store != nil {
		if err := m.store.Flush(); err != nil {
			logrus.Errorf("DB: error writing last batch: %v", err)
		}
	}
}

// Statuses liefert den Zustand aller Poller, sortiert nach Name.
func (m *Manager) Statuses() []PollerStatus {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]PollerStatus, 0, len(m.pollers))
	for _, p := range m.pollers {
		out = append(out, p.status)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Status liefert den Zustand eines Pollers.
func (m *Manager) Status(name string) (PollerStatus, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	p, ok := m.pollers[name]
	if !ok {
		return PollerStatus{}, false
	}
	return p.status, true
}

// HandleState implementiert opcua.Sink.
func (m *Manager) HandleState(endpoint string, state opcua.State) {
	m.mu.Lock()
	var address string
	if p, ok := m.pollers[endpoint]; ok {
		if p.status.State != state {
			p.status.Since = time.Now()
		}
		p.status.State = state
		address = p.device.Address
	}
	prefix := m.cfg.MQTT.Prefix
	m.mu.Unlock()

	publishDeviceState(m.pub, m.store, prefix, endpoint, address, state)
}

// HandleSamples implementiert opcua.Sink. Die Verteilung läuft im Worker-Pool,
// damit ein langsamer Broker den Poller nicht aufhält.
func (m *Manager) HandleSamples(endpoint string, samples []opcua.Sample) {
	m.mu.Lock()
	if p, ok := m.pollers[endpoint]; ok {
		p.status.Samples += int64(len(samples))
		p.status.LastSample = time.Now()
	}
	listeners := append(([]func(string, []opcua.Sample))(nil), m.listeners...)
	mqttCfg := m.cfg.MQTT
	interval := m.cfg.SendInterval()
	m.mu.Unlock()

	m.pool.Submit(func() {
		if m.store != nil {
			m.store.Add(samples...)
		}
		if m.pub != nil && mqttCfg.Enabled {
			var send []opcua.Sample
			for _, s := range samples {
				if s.Good && m.filter.ShouldSend(s.Endpoint+"/"+s.NodeID, s.Value, mqttCfg.SendMode, interval) {
					send = append(send, s)
				}
			}
			if err := opcua.PubData(m.pub, mqttCfg.Prefix, send); err != nil {
				logrus.Warnf("DM: %s: %v", endpoint, err)
			}
		}
		for _, fn := range listeners {
			fn(endpoint, samples)
		}
	})
}
