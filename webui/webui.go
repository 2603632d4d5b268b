package webui

import (
	"context"
	"crypto/tls"
	"errors"
	"net"
	"net/http"
	"time"

	dataforwarding "opcua-demo/data-forwarding"
	opcua "opcua-demo/driver/opcua"
	"opcua-demo/logic"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// Pollers ist der Teil von *logic.Manager, den die Web-API nutzt.
type Pollers interface {
	Statuses() []logic.PollerStatus
	Status(name string) (logic.PollerStatus, bool)
	RestartPoller(name string) error
}

// Samples ist der Teil von *logic.SampleStore, den die Web-API nutzt.
type Samples interface {
	Latest() []opcua.Sample
	History(endpoint, node string, limit int) ([]opcua.Sample, error)
}

// RouteStatuses wird von *dataforwarding.Routes implementiert.
type RouteStatuses interface {
	Statuses() []dataforwarding.RouteStatus
}

// Server ist die Web-API des Gateways.
type Server struct {
	cfg     logic.WebUIConfig
	pollers Pollers
	samples Samples
	routes  RouteStatuses
	hub     *Hub
	timeout time.Duration

	engine  *gin.Engine
	httpSrv *http.Server
}

// New baut die Routen auf; routes darf nil sein.
func New(cfg logic.WebUIConfig, pollers Pollers, samples Samples, routes RouteStatuses, hub *Hub) *Server {
	gin.SetMode(gin.ReleaseMode)

	s := &Server{
		cfg:     cfg,
		pollers: pollers,
		samples: samples,
		routes:  routes,
		hub:     hub,
		timeout: 5 * time.Second,
		engine:  gin.New(),
	}
	s.engine.Use(gin.Recovery(), requestLogger())
	setupRoutes(s.engine, s)
	return s
}

// Handler gibt die gin-Engine zurück, z.B. für httptest.
func (s *Server) Handler() http.Handler {
	return s.engine
}

// Start öffnet den Listener und bedient ihn im Hintergrund.
func (s *Server) Start() error {
	s.httpSrv = &http.Server{
		Addr:              s.cfg.Address,
		Handler:           s.engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	if s.cfg.TLS {
		cert, err := logic.GenerateSelfSignedCert(s.cfg.CertFile, s.cfg.KeyFile)
		if err != nil {
			return err
		}
		s.httpSrv.TLSConfig = &tls.Config{Certificates: []tls.Certificate{cert}}
	}

	ln, err := net.Listen("tcp", s.cfg.Address)
	if err != nil {
		return err
	}

	go func() {
		var err error
		if s.cfg.TLS {
			logrus.Infof("WEBUI: starting HTTPS server on %s", s.cfg.Address)
			err = s.httpSrv.ServeTLS(ln, "", "")
		} else {
			logrus.Infof("WEBUI: starting HTTP server on %s", s.cfg.Address)
			err = s.httpSrv.Serve(ln)
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logrus.Errorf("WEBUI: server stopped: %v", err)
		}
	}()
	return nil
}

// Shutdown schließt den Server und alle WebSocket-Verbindungen.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.hub != nil {
		s.hub.Close()
	}
	if s.httpSrv == nil {
		return nil
	}
	return s.httpSrv.Shutdown(ctx)
}

// requestLogger loggt jede Anfrage über logrus statt über den gin-Logger.
func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logrus.Debugf("WEBUI: %s %s %d (%v)", c.Request.Method, c.Request.URL.Path, c.Writer.Status(), time.Since(start))
	}
}
