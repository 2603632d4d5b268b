package logic

import (
	"reflect"
	"sync"
	"time"
)

// Versandmodi für MQTT
const (
	SendCyclic   = "cyclic"
	SendOnChange = "on-change"
)

// SendFilter merkt sich je Knoten den letzten Wert und Sendezeitpunkt.
type SendFilter struct {
	mu              sync.Mutex
	lastKnownValues map[string]interface{}
	lastSentTimes   map[string]time.Time
	now             func() time.Time
}

func NewSendFilter() *SendFilter {
	return &SendFilter{
		lastKnownValues: make(map[string]interface{}),
		lastSentTimes:   make(map[string]time.Time),
		now:             time.Now,
	}
}

var defaultFilter = NewSendFilter()

// ShouldSendData prüft mit dem globalen Filter, ob die Daten gesendet werden sollen.
func ShouldSendData(nodeID string, newValue interface{}, mode string, interval time.Duration) bool {
	return defaultFilter.ShouldSend(nodeID, newValue, mode, interval)
}

// ShouldSend: cyclic sendet höchstens einmal pro interval, on-change nur bei
// geändertem Wert. Der erste Wert eines Knotens wird immer gesendet.
func (f *SendFilter) ShouldSend(nodeID string, newValue interface{}, mode string, interval time.Duration) bool {
	f.mu.Lock()
	defer f.mu.Unlock()

	currentTime := f.now()

	switch mode {
	case SendCyclic, "zyklisch":
		if lastTime, ok := f.lastSentTimes[nodeID]; ok && currentTime.Sub(lastTime) < interval {
			return false
		}
		f.lastSentTimes[nodeID] = currentTime
		return true
	case SendOnChange, "beiAenderung":
		if lastValue, ok := f.lastKnownValues[nodeID]; ok && reflect.DeepEqual(lastValue, newValue) {
			return false
		}
		f.lastKnownValues[nodeID] = newValue
		return true
	}
	return false
}

// Reset vergisst alle Knoten, z.B. nach einem Konfigurationswechsel.
func (f *SendFilter) Reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lastKnownValues = make(map[string]interface{})
	f.lastSentTimes = make(map[string]time.Time)
}
