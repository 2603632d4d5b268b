// opcua-call calls the methods of the demo server once and prints the results.
//
//	opcua-call [-endpoint opc.tcp://host:4840] select <1|2|3|...>
//	opcua-call [-endpoint opc.tcp://host:4840] event <on|off>
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	opcua "opcua-demo/driver/opcua"
	"opcua-demo/logic"

	"github.com/sirupsen/logrus"
)

const objectsFolder = "i=85"

func main() {
	endpoint := flag.String("endpoint", "opc.tcp://localhost:4840", "server endpoint url")
	timeout := flag.Duration("timeout", 10*time.Second, "connect and call timeout")
	username := flag.String("username", "", "user name identity")
	password := flag.String("password", "", "password of the user name identity")
	logLevel := flag.String("log-level", "warn", "log level")
	flag.Parse()

	if err := logic.SetLogLevel(*logLevel); err != nil {
		logrus.Fatalf("CALL: %v", err)
	}

	methodID, args, err := methodFor(flag.Args())
	if err != nil {
		fmt.Fprintf(os.Stderr, "usage: %s [flags] select <input> | event <on|off>\n", os.Args[0])
		flag.PrintDefaults()
		os.Exit(2)
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	client, err := opcua.InitClient(ctx, opcua.DeviceConfig{
		Name:     "call",
		Address:  *endpoint,
		Username: *username,
		Password: *password,
	})
	if err != nil {
		logrus.Fatalf("CALL: %v", err)
	}
	defer client.Close(context.Background())

	out, err := opcua.CallMethod(ctx, client, objectsFolder, methodID, args...)
	if err != nil {
		logrus.Fatalf("CALL: %v", err)
	}
	if len(out) == 0 {
		fmt.Println("OK")
		return
	}
	for _, v := range out {
		fmt.Println(opcua.FormatValue(v))
	}
}

// methodFor maps the command line to the method node id and its input arguments.
func methodFor(args []string) (string, []interface{}, error) {
	if len(args) != 2 {
		return "", nil, fmt.Errorf("expected 2 arguments, got %d", len(args))
	}
	switch args[0] {
	case "select":
		return "ns=1;i=62541", []interface{}{args[1]}, nil
	case "event":
		switch args[1] {
		case "on":
			return "ns=2;s=onEvent", nil, nil
		case "off":
			return "ns=2;s=offEvent", nil, nil
		}
	}
	return "", nil, fmt.Errorf("unknown command %q %q", args[0], args[1])
}
