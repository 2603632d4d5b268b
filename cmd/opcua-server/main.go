// opcua-server starts the demo address space.
//
//	opcua-server [flags] [hostname] [port]
//
// Without a port the default configuration is used (port 4840, all security
// policies, anonymous and user name identities). Giving a port switches to the
// minimal configuration on that port.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"opcua-demo/logic"
	"opcua-demo/uaserver"

	"github.com/sirupsen/logrus"
)

func main() {
	pki := flag.String("pki", "./pki", "directory with server.crt and server.key, created if missing")
	thermal := flag.String("thermal", "/sys/class/thermal/thermal_zone0/temp", "thermal zone file for systemTemperature")
	usersFile := flag.String("users", "", "yaml file with user name identities")
	logLevel := flag.String("log-level", "info", "log level")
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "usage: %s [flags] [hostname] [port]\n", os.Args[0])
		flag.PrintDefaults()
	}
	flag.Parse()

	if err := logic.SetLogLevel(*logLevel); err != nil {
		logrus.Fatalf("SERVER: %v", err)
	}

	settings, err := uaserver.ParseArgs(flag.Args())
	if err != nil {
		flag.Usage()
		logrus.Fatalf("SERVER: %v", err)
	}
	settings.PKIDir = *pki
	settings.ThermalZone = *thermal
	if *usersFile != "" {
		users, err := uaserver.LoadUsers(*usersFile)
		if err != nil {
			logrus.Fatalf("SERVER: %v", err)
		}
		settings.Users = users
	}

	srv, err := uaserver.New(settings)
	if err != nil {
		logrus.Fatalf("SERVER: error creating server: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logrus.Info("SERVER: press Ctrl-C to exit...")
	if err := srv.Run(ctx); err != nil {
		logrus.Errorf("SERVER: %v", err)
		os.Exit(1)
	}
}
