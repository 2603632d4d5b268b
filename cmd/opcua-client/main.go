// opcua-client polls the test object of the demo server and logs the values.
// It reconnects after a fixed delay whenever the connection fails.
package main

import (
	"context"
	"flag"
	"os/signal"
	"syscall"

	opcua "opcua-demo/driver/opcua"
	"opcua-demo/logic"

	"github.com/sirupsen/logrus"
)

func main() {
	endpoint := flag.String("endpoint", "opc.tcp://localhost:4840", "server endpoint url")
	interval := flag.Int("interval", opcua.DefaultAcquisitionTime, "poll interval in ms")
	retry := flag.Int("retry", 2000, "reconnect delay in ms")
	logLevel := flag.String("log-level", "info", "log level")
	flag.Parse()

	if err := logic.SetLogLevel(*logLevel); err != nil {
		logrus.Fatalf("CLIENT: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	device := opcua.DeviceConfig{
		Name:            "client",
		Address:         *endpoint,
		DataNode:        append(logic.DefaultDataNodes(), opcua.DataNode{Name: "Variable", Node: "ns=2;s=testVariable"}),
		AcquisitionTime: *interval,
		RetryDelay:      *retry,
	}
	if err := opcua.Run(ctx, device, opcua.LogSink{}); err != nil {
		logrus.Fatalf("CLIENT: %v", err)
	}
	logrus.Info("CLIENT: received ctrl-c")
}
