package main

import (
	"context"
	"flag"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	dataforwarding "opcua-demo/data-forwarding"
	opcua "opcua-demo/driver/opcua"
	"opcua-demo/features"
	"opcua-demo/logic"
	mqtt_broker "opcua-demo/mqtt_broker"
	"opcua-demo/webui"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to the gateway configuration")
	flag.Parse()

	cfg, err := logic.LoadConfig(*configPath)
	if err != nil {
		logrus.Fatalf("MAIN: error loading configuration: %v", err)
	}
	if err := logic.SetLogLevel(cfg.LogLevel); err != nil {
		logrus.Fatalf("MAIN: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Datenbank
	db, err := logic.InitDB(cfg.Database.Driver, cfg.Database.DSN)
	if err != nil {
		logrus.Fatalf("MAIN: error initializing database: %v", err)
	}
	defer db.Close()
	store := logic.NewSampleStore(db, cfg.Database.Driver, cfg.Database.BatchSize, time.Duration(cfg.Database.Retention)*time.Minute)

	// Broker bzw. MQTT-Verbindung
	var pub opcua.Publisher
	if cfg.Broker.Enabled {
		server, err := mqtt_broker.StartBroker(cfg.Broker)
		if err != nil {
			logrus.Fatalf("MAIN: error starting broker: %v", err)
		}
		defer mqtt_broker.StopBroker()
		logrus.Info("MAIN: Broker started.")
		if cfg.MQTT.Enabled && cfg.MQTT.Broker == "" {
			pub = opcua.NewInlinePublisher(server)
		}
	}
	if cfg.MQTT.Enabled && pub == nil {
		p, err := opcua.NewMqttPublisher(opcua.MqttConfig{
			Broker:   cfg.MQTT.Broker,
			Username: cfg.MQTT.Username,
			Password: cfg.MQTT.Password,
		})
		if err != nil {
			logrus.Errorf("MAIN: MQTT not available, continuing without: %v", err)
		} else {
			pub = p
			defer p.Close()
		}
	}
	if pub != nil && cfg.MQTT.WriteBack {
		if err := opcua.StartMqttDataUpdateListener(pub, cfg.MQTT.Prefix, 5*time.Second); err != nil {
			logrus.Errorf("MAIN: write-back listener: %v", err)
		}
	}

	// Poller
	manager := logic.NewManager(cfg, store, pub)
	hub := webui.NewHub()
	manager.OnSamples(hub.Broadcast)
	manager.StartAllPollers(ctx)
	defer manager.Close()

	// Weiterleitung
	routes := dataforwarding.StartDataRoutes(ctx, cfg.Forwarding, store)
	defer routes.Stop()

	// Web-API
	var ui *webui.Server
	if cfg.WebUI.Enabled {
		ui = webui.New(cfg.WebUI, manager, store, routes, hub)
		if err := ui.Start(); err != nil {
			logrus.Fatalf("MAIN: error starting web server: %v", err)
		}
		logrus.Info("MAIN: Web-UI-server started.")
	}

	if cfg.Supervisor.Enabled {
		go features.NewSupervisor(cfg.Supervisor).Run(ctx)
	}

	if cfg.Watch.Enabled {
		go logic.WatchConfig(ctx, *configPath, time.Duration(cfg.Watch.Interval)*time.Second, func(next *logic.Config) {
			if err := logic.SetLogLevel(next.LogLevel); err != nil {
				logrus.Warnf("MAIN: %v", err)
			}
			manager.ApplyConfig(next)
		})
	}

	<-ctx.Done()
	logrus.Info("MAIN: shutting down...")

	if ui != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := ui.Shutdown(shutdownCtx); err != nil {
			logrus.Warnf("MAIN: web server shutdown: %v", err)
		}
	}
}
