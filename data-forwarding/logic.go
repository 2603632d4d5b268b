package dataforwarding

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"opcua-demo/logic"

	"github.com/sirupsen/logrus"
)

// Routes hält die laufenden Weiterleitungen.
type Routes struct {
	wg     sync.WaitGroup
	cancel context.CancelFunc

	mu     sync.Mutex
	status map[string]*RouteStatus
}

func newForwarder(cfg logic.RouteConfig) (forwarder, error) {
	switch cfg.Type {
	case "file":
		return newFileForwarder(cfg.FilePath), nil
	case "rest":
		return newRESTForwarder(cfg.URL, cfg.Headers), nil
	case "mqtt":
		return newMqttForwarder(cfg), nil
	case "influx":
		return newInfluxForwarder(cfg)
	default:
		return nil, fmt.Errorf("unsupported destination type: %s", cfg.Type)
	}
}

// StartDataRoutes startet je Route eine Goroutine, die alle Interval Sekunden
// die seit dem letzten erfolgreichen Senden gespeicherten Samples weiterleitet.
func StartDataRoutes(ctx context.Context, routes []logic.RouteConfig, store Store) *Routes {
	ctx, cancel := context.WithCancel(ctx)
	r := &Routes{
		cancel: cancel,
		status: make(map[string]*RouteStatus),
	}

	for _, cfg := range routes {
		fw, err := newForwarder(cfg)
		if err != nil {
			logrus.Errorf("DF: route %s: %v", cfg.Name, err)
			continue
		}
		r.status[cfg.Name] = &RouteStatus{Name: cfg.Name, Type: cfg.Type}

		interval := time.Duration(cfg.Interval) * time.Second
		if interval <= 0 {
			interval = 10 * time.Second
		}

		r.wg.Add(1)
		go func(cfg logic.RouteConfig, fw forwarder) {
			defer r.wg.Done()
			defer fw.Close()
			logrus.Infof("DF: starting %s forwarding %s every %v for endpoints: %v", cfg.Type, cfg.Name, interval, cfg.Endpoints)
			r.run(ctx, cfg, fw, store, interval)
		}(cfg, fw)
	}
	return r
}

func (r *Routes) run(ctx context.Context, cfg logic.RouteConfig, fw forwarder, store Store, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	// nur Samples ab dem Start der Route
	lastSeq := store.Seq()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		samples, next, err := store.After(cfg.Endpoints, lastSeq)
		if err != nil {
			logrus.Errorf("DF: %s: error getting samples: %v", cfg.Name, err)
			r.record(cfg.Name, 0, err)
			continue
		}
		if len(samples) == 0 {
			lastSeq = next
			continue
		}

		sendCtx, cancel := context.WithTimeout(ctx, interval)
		err = fw.Send(sendCtx, samples)
		cancel()
		if err != nil {
			// lastSeq bleibt, der nächste Tick versucht es erneut
			logrus.Errorf("DF: %s: error forwarding %d samples: %v", cfg.Name, len(samples), err)
			r.record(cfg.Name, 0, err)
			continue
		}
		lastSeq = next
		r.record(cfg.Name, len(samples), nil)
	}
}

func (r *Routes) record(name string, sent int, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	st, ok := r.status[name]
	if !ok {
		return
	}
	if err != nil {
		st.LastError = err.Error()
		return
	}
	st.LastError = ""
	st.LastSent = time.Now()
	st.Sent += int64(sent)
}

// Statuses liefert den Zustand aller Routen.
func (r *Routes) Statuses() []RouteStatus {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]RouteStatus, 0, len(r.status))
	for _, st := range r.status {
		out = append(out, *st)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Stop beendet alle Routen und wartet auf sie.
func (r *Routes) Stop() {
	r.cancel()
	r.wg.Wait()
}
