package mqtt_broker

import (
	"crypto/tls"
	"fmt"
	"sync"

	"opcua-demo/logic"

	MQTT "github.com/mochi-mqtt/server/v2"
	"github.com/mochi-mqtt/server/v2/hooks/auth"
	"github.com/mochi-mqtt/server/v2/listeners"
	"github.com/sirupsen/logrus"
)

var (
	mu     sync.Mutex
	server *MQTT.Server
)

// StartBroker erstellt den eingebetteten Broker und startet den blockierenden
// Serve-Loop asynchron. Ein zweiter Aufruf gibt den laufenden Broker zurück.
func StartBroker(cfg logic.BrokerConfig) (*MQTT.Server, error) {
	mu.Lock()
	defer mu.Unlock()

	if server != nil {
		return server, nil
	}

	s, err := newBroker(cfg)
	if err != nil {
		return nil, err
	}
	if err := s.Serve(); err != nil {
		s.Close()
		return nil, fmt.Errorf("MQTT-Broker: serve: %v", err)
	}
	server = s
	logrus.Infof("MQTT-Broker: started with %d listener(s)", len(cfg.Listeners))
	return server, nil
}

func newBroker(cfg logic.BrokerConfig) (*MQTT.Server, error) {
	authData, err := logic.BrokerAuthData(logic.EnsureAdminUser(cfg.Users))
	if err != nil {
		return nil, err
	}

	s := MQTT.New(&MQTT.Options{
		InlineClient: true,
	})

	if err := s.AddHook(new(auth.Hook), &auth.Options{Data: authData}); err != nil {
		return nil, fmt.Errorf("MQTT-Broker: failed to add auth hook: %v", err)
	}

	var tlsConfig *tls.Config
	for _, l := range cfg.Listeners {
		if l.TLS {
			cert, err := logic.GenerateSelfSignedCert(cfg.CertFile, cfg.KeyFile)
			if err != nil {
				return nil, fmt.Errorf("MQTT-Broker: failed to generate self-signed certificate: %v", err)
			}
			tlsConfig = &tls.Config{Certificates: []tls.Certificate{cert}}
			break
		}
	}

	if err := createListeners(s, cfg.Listeners, tlsConfig); err != nil {
		return nil, fmt.Errorf("MQTT-Broker: error adding listeners: %v", err)
	}
	return s, nil
}

func createListeners(server *MQTT.Server, configs []logic.ListenerConfig, tlsConfig *tls.Config) error {
	for _, listener := range configs {
		var l listeners.Listener
		lc := listeners.Config{
			ID:        listener.ID,
			Address:   listener.Address,
			TLSConfig: getTLSConfig(listener.TLS, tlsConfig),
		}

		switch listener.Type {
		case "tcp":
			l = listeners.NewTCP(lc)
		case "websocket":
			l = listeners.NewWebsocket(lc)
		case "http":
			l = listeners.NewHTTPStats(lc, server.Info)
		default:
			logrus.Warn("MQTT-Broker: unknown listener type: ", listener.Type)
			continue
		}

		if err := server.AddListener(l); err != nil {
			return err
		}
	}
	return nil
}

func getTLSConfig(tlsRequired bool, tlsConfig *tls.Config) *tls.Config {
	if tlsRequired {
		return tlsConfig
	}
	return nil
}

// StopBroker stoppt den MQTT Broker
func StopBroker() {
	mu.Lock()
	defer mu.Unlock()

	if server == nil {
		logrus.Info("MQTT-Broker is not running.")
		return
	}
	if err := server.Close(); err != nil {
		logrus.Warnf("MQTT-Broker: close: %v", err)
	}
	server = nil
	logrus.Info("MQTT-Broker stopped successfully.")
}
