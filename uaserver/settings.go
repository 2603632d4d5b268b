package uaserver

import (
	"fmt"
	"os"
	"strconv"

	"github.com/pkg/errors"
)

// DefaultPort is the IANA registered port for opc.tcp.
const DefaultPort = 4840

// Settings describe how the server binds and which identities it accepts.
type Settings struct {
	// Host is used in the endpoint url and the application uri.
	Host string
	Port int
	// Minimal disables user name identities and keeps only anonymous access
	// over SecurityPolicy None.
	Minimal bool

	PKIDir      string
	ThermalZone string
	Users       []User
}

// ParseArgs reads the positional arguments `[hostname] [port]`.
//
// Without arguments the server runs the default configuration on port 4840.
// A hostname alone changes the endpoint host. A port switches to the
// minimal configuration on that port.
func ParseArgs(args []string) (Settings, error) {
	host, _ := os.Hostname()
	if host == "" {
		host = "localhost"
	}
	s := Settings{
		Host:   host,
		Port:   DefaultPort,
		PKIDir: "./pki",
	}

	if len(args) > 0 && args[0] != "" {
		s.Host = args[0]
	}
	if len(args) > 1 {
		port, err := strconv.Atoi(args[1])
		if err != nil {
			return s, errors.Wrapf(err, "invalid port %q", args[1])
		}
		if port <= 0 || port > 65535 {
			return s, errors.Errorf("port %d out of range", port)
		}
		s.Port = port
		s.Minimal = true
	}
	if len(args) > 2 {
		return s, errors.Errorf("unexpected arguments %v", args[2:])
	}
	return s, nil
}

// EndpointURL returns opc.tcp://host:port.
func (s Settings) EndpointURL() string {
	return fmt.Sprintf("opc.tcp://%s:%d", s.Host, s.Port)
}

func (s Settings) applicationURI() string {
	return fmt.Sprintf("urn:%s:%s", s.Host, applicationName)
}
