package sensors

import (
	"errors"
	"sync"

	"github.com/shirou/gopsutil/cpu"
)

// CPUSampler berechnet die CPU-Auslastung (busy %) aus der Differenz zweier
// aufeinanderfolgender Jiffy-Zähler. Der vorige Stand wird zwischen den Aufrufen
// gehalten, der erste Aufruf misst seit dem Systemstart.
type CPUSampler struct {
	mu    sync.Mutex
	prev  cpu.TimesStat
	last  float64
	times func() (cpu.TimesStat, error)
}

// NewCPUSampler erstellt einen Sampler auf Basis von gopsutil cpu.Times.
func NewCPUSampler() *CPUSampler {
	return &CPUSampler{times: totalTimes}
}

func totalTimes() (cpu.TimesStat, error) {
	stats, err := cpu.Times(false)
	if err != nil {
		return cpu.TimesStat{}, err
	}
	if len(stats) == 0 {
		return cpu.TimesStat{}, errors.New("no cpu times reported")
	}
	return stats[0], nil
}

// Sample liefert die Auslastung seit dem letzten Aufruf in Prozent.
// Ist seit dem letzten Aufruf keine Zeit vergangen, wird der letzte Wert wiederholt.
func (s *CPUSampler) Sample() (float64, error) {
	cur, err := s.times()
	if err != nil {
		return 0, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	busy, ok := busyPercent(s.prev, cur)
	s.prev = cur
	if ok {
		s.last = busy
	}
	return s.last, nil
}

// busyPercent = 100 - idleΔ*100/totalΔ
func busyPercent(prev, cur cpu.TimesStat) (float64, bool) {
	total := jiffies(cur) - jiffies(prev)
	if total <= 0 {
		return 0, false
	}
	idle := cur.Idle - prev.Idle
	busy := 100 - idle*100/total
	if busy < 0 {
		busy = 0
	}
	if busy > 100 {
		busy = 100
	}
	return busy, true
}

// jiffies summiert die Felder der cpu-Zeile aus /proc/stat.
// Guest und GuestNice sind in User bzw. Nice bereits enthalten.
func jiffies(t cpu.TimesStat) float64 {
	return t.User + t.Nice + t.System + t.Idle + t.Iowait + t.Irq + t.Softirq + t.Steal
}
