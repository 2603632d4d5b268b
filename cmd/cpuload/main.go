// cpuload keeps the CPU busy until SIGINT or SIGTERM, to watch
// sysIdlePercentage of the demo server move.
package main

import (
	"context"
	"flag"
	"os/signal"
	"syscall"

	"opcua-demo/features"
	"opcua-demo/logic"

	"github.com/sirupsen/logrus"
)

func main() {
	workers := flag.Int("workers", 1, "number of busy goroutines, 0 = one per cpu")
	logLevel := flag.String("log-level", "info", "log level")
	flag.Parse()

	if err := logic.SetLogLevel(*logLevel); err != nil {
		logrus.Fatalf("LOAD: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	features.BurnCPU(ctx, *workers)
	logrus.Info("LOAD: received ctrl-c")
}
