// Package uaserver populates an awcullen/opcua server with the demo address
// space: the test object with its sensor variables, the select method, the
// event methods, the POWERLINK device profile and the device/pump types.
package uaserver

import (
	"context"
	"fmt"
	"time"

	"opcua-demo/sensors"

	"github.com/awcullen/opcua/server"
	"github.com/awcullen/opcua/ua"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

const (
	applicationName = "opcua-demo"
	// NamespaceURI is registered as the first application namespace (ns=2).
	NamespaceURI = "urn:opcua-demo:nodes"
)

var SoftwareVersion = "0.1.0"

// Server wraps the sdk server together with the value sources of the read callbacks.
type Server struct {
	settings Settings
	srv      *server.Server
	nm       *server.NamespaceManager
	ns       uint16

	cpu         *sensors.CPUSampler
	counter     *sensors.Counter
	temperature func() (float32, error)
	events      *eventLog
}

// New creates the server and installs all nodes. It does not start listening.
func New(settings Settings) (*Server, error) {
	if settings.Port == 0 {
		settings.Port = DefaultPort
	}
	if settings.PKIDir == "" {
		settings.PKIDir = "./pki"
	}

	certFile, keyFile, err := EnsurePKI(settings.PKIDir, settings.Host)
	if err != nil {
		return nil, errors.Wrap(err, "ensure pki")
	}

	users := settings.Users
	if settings.Minimal {
		users = nil
	}

	endpointURL := settings.EndpointURL()
	srv, err := server.New(
		ua.ApplicationDescription{
			ApplicationURI: settings.applicationURI(),
			ProductURI:     "urn:opcua-demo",
			ApplicationName: ua.LocalizedText{
				Text:   fmt.Sprintf("%s@%s", applicationName, settings.Host),
				Locale: "en",
			},
			ApplicationType: ua.ApplicationTypeServer,
			DiscoveryURLs:   []string{endpointURL},
		},
		certFile,
		keyFile,
		endpointURL,
		server.WithBuildInfo(
			ua.BuildInfo{
				ProductURI:       "urn:opcua-demo",
				ManufacturerName: "opcua-demo",
				ProductName:      applicationName,
				SoftwareVersion:  SoftwareVersion,
			}),
		server.WithAuthenticateUserNameIdentityFunc(authenticateUser(users)),
		server.WithRolePermissions(rolePermissions()),
		server.WithAnonymousIdentity(true),
		server.WithSecurityPolicyNone(true),
		server.WithInsecureSkipVerify(),
	)
	if err != nil {
		return nil, errors.Wrap(err, "create server")
	}

	thermalZone := settings.ThermalZone
	s := &Server{
		settings: settings,
		srv:      srv,
		nm:       srv.NamespaceManager(),
		cpu:      sensors.NewCPUSampler(),
		counter:  sensors.NewCounter(20.0),
		temperature: func() (float32, error) {
			return sensors.Temperature(thermalZone)
		},
		events: &eventLog{},
	}
	s.ns = s.nm.Add(NamespaceURI)

	steps := []struct {
		name string
		fn   func() error
	}{
		{"test object", s.addTestObject},
		{"select method", s.addSelectMethod},
		{"event type", s.addEventType},
		{"event methods", s.addEventMethods},
		{"powerlink profile", s.addPowerlinkProfile},
		{"device types", s.addDeviceTypes},
	}
	for _, step := range steps {
		if err := step.fn(); err != nil {
			srv.Close()
			return nil, errors.Wrapf(err, "add %s", step.name)
		}
	}

	mode := "default"
	if settings.Minimal {
		mode = "minimal"
	}
	logrus.Infof("SERVER: address space ready (%s configuration, namespace %d)", mode, s.ns)
	return s, nil
}

// Run blocks in ListenAndServe until ctx is done or the server is closed.
func (s *Server) Run(ctx context.Context) error {
	go func() {
		select {
		case <-ctx.Done():
			logrus.Info("SERVER: stopping server...")
			s.srv.Close()
		case <-s.srv.Closing():
		}
	}()

	logrus.Infof("SERVER: starting at %s", s.settings.EndpointURL())
	if err := s.srv.ListenAndServe(); err != ua.BadServerHalted {
		return errors.Wrap(err, "listen and serve")
	}
	logrus.Info("SERVER: stopped")
	return nil
}

// Close stops the server.
func (s *Server) Close() error {
	return s.srv.Close()
}

func (s *Server) EndpointURL() string {
	return s.settings.EndpointURL()
}

// NamespaceIndex is the index NamespaceURI was registered under.
func (s *Server) NamespaceIndex() uint16 {
	return s.ns
}

// LastEvent returns the message and time of the most recent generated event.
func (s *Server) LastEvent() (string, time.Time) {
	return s.events.last()
}
