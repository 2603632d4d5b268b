package opcua

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
)

func dialClient(ctx context.Context, device DeviceConfig) (Conn, error) {
	return InitClient(ctx, device)
}

// dial wird in Tests ersetzt.
var dial = dialClient

// Run pollt die konfigurierten Knoten eines Endpunkts, bis ctx beendet ist.
//
// Schlägt der Verbindungsaufbau oder ein Read fehl, wird nach RetryDelay erneut
// verbunden, ohne Backoff und ohne Abbruch. Run gibt nil zurück, sobald ctx beendet ist.
func Run(ctx context.Context, device DeviceConfig, sink Sink) error {
	device = device.WithDefaults()
	if len(device.DataNode) == 0 {
		logrus.Warnf("OPC-UA: no data nodes configured for %s", device.Name)
		sink.HandleState(device.Name, StateNoDatapoints)
		return nil
	}
	if _, err := parseNodes(device.DataNode); err != nil {
		sink.HandleState(device.Name, StateError)
		return fmt.Errorf("endpoint %s: %v", device.Name, err)
	}

	defer sink.HandleState(device.Name, StateStopped)

	for {
		sink.HandleState(device.Name, StateInitializing)

		connectCtx, cancel := context.WithTimeout(ctx, device.retryInterval()+device.requestTimeout())
		client, err := dial(connectCtx, device)
		cancel()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			logrus.Warnf("OPC-UA: %s not connected (%v). Retrying in %v...", device.Name, err, device.retryInterval())
			sink.HandleState(device.Name, StateError)
			if !sleep(ctx, device.retryInterval()) {
				return nil
			}
			continue
		}

		logrus.Infof("OPC-UA: connected to %s at %s", device.Name, device.Address)
		addOpcuaClient(device.Name, client)
		sink.HandleState(device.Name, StateRunning)

		err = collectData(ctx, device, client, sink)

		removeOpcuaClient(device.Name)
		closeCtx, cancel := context.WithTimeout(context.Background(), device.requestTimeout())
		client.Close(closeCtx)
		cancel()

		if err == nil {
			return nil
		}
		logrus.Warnf("OPC-UA: %s: %v. Reconnecting in %v...", device.Name, err, device.retryInterval())
		sink.HandleState(device.Name, StateError)
		if !sleep(ctx, device.retryInterval()) {
			return nil
		}
	}
}

// collectData liest zyklisch alle Knoten und reicht die Samples an sink weiter.
// Gibt nil zurück wenn ctx beendet ist, sonst den Lesefehler.
func collectData(ctx context.Context, device DeviceConfig, client Conn, sink Sink) error {
	nodes := ResolveNodeNames(ctx, client, device.DataNode)

	ticker := time.NewTicker(device.acquisitionInterval())
	defer ticker.Stop()

	for {
		readCtx, cancel := context.WithTimeout(ctx, device.requestTimeout())
		samples, err := ReadData(readCtx, client, device.Name, nodes)
		cancel()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
		logrus.Debugf("OPC-UA: %s: %s", device.Name, FormatSamples(samples))
		sink.HandleSamples(device.Name, samples)

		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

// LogSink schreibt Samples und Zustände nur ins Log.
type LogSink struct{}

func (LogSink) HandleSamples(endpoint string, samples []Sample) {
	logrus.Infof("OPC-UA: %s: %s", endpoint, FormatSamples(samples))
}

func (LogSink) HandleState(endpoint string, state State) {
	logrus.Infof("OPC-UA: %s is %s", endpoint, state)
}
