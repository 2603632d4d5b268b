package features

import (
	"bufio"
	"context"
	"io"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"opcua-demo/logic"

	"github.com/shirou/gopsutil/process"
	"github.com/sirupsen/logrus"
)

// Supervisor hält den Demo-Server als Unterprozess am Leben. Läuft bereits ein
// Prozess mit demselben Namen, wird kein zweiter gestartet.
type Supervisor struct {
	cfg logic.SupervisorConfig

	mu       sync.Mutex
	cmd      *exec.Cmd
	exited   chan struct{}
	endpoint string

	running   func(name string) bool
	lookPath  func(file string) (string, error)
	startProc func(cmd *exec.Cmd) error
}

func NewSupervisor(cfg logic.SupervisorConfig) *Supervisor {
	return &Supervisor{
		cfg:       cfg,
		running:   ProcessRunning,
		lookPath:  exec.LookPath,
		startProc: func(cmd *exec.Cmd) error { return cmd.Start() },
	}
}

// Run prüft alle CheckInterval Sekunden den Prozess und startet ihn bei Bedarf neu.
// Beim Ende von ctx wird ein selbst gestarteter Prozess beendet.
func (s *Supervisor) Run(ctx context.Context) {
	interval := time.Duration(s.cfg.CheckInterval) * time.Second
	if interval <= 0 {
		interval = 10 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	s.check()
	for {
		select {
		case <-ctx.Done():
			s.Stop()
			return
		case <-ticker.C:
			s.check()
		}
	}
}

func (s *Supervisor) check() {
	if s.ownProcessAlive() {
		return
	}
	name := processName(s.cfg.Command)
	if s.running(name) {
		logrus.Debugf("SUPERVISOR: %s läuft bereits", name)
		return
	}
	if _, err := s.Start(); err != nil {
		logrus.Errorf("SUPERVISOR: %v", err)
	}
}

func (s *Supervisor) ownProcessAlive() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cmd == nil {
		return false
	}
	select {
	case <-s.exited:
		s.cmd = nil
		return false
	default:
		return true
	}
}

// Start startet den Server und wartet bis zu 10 s auf die Endpoint-URL in dessen Ausgabe.
// Wird keine URL gefunden, ist der Rückgabewert leer.
func (s *Supervisor) Start() (string, error) {
	if _, err := s.lookPath(s.cfg.Command); err != nil {
		logrus.Errorf("SUPERVISOR: %s ist nicht installiert oder nicht im Systempfad verfügbar", s.cfg.Command)
		return "", err
	}

	s.mu.Lock()
	if s.cmd != nil {
		url := s.endpoint
		s.mu.Unlock()
		return url, nil
	}

	cmd := exec.Command(s.cfg.Command, s.cfg.Args...)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		s.mu.Unlock()
		return "", err
	}
	// logrus schreibt nach stderr
	cmd.Stderr = cmd.Stdout

	if err := s.startProc(cmd); err != nil {
		s.mu.Unlock()
		logrus.Errorf("SUPERVISOR: Fehler beim Starten von %s: %v", s.cfg.Command, err)
		return "", err
	}
	exited := make(chan struct{})
	s.cmd = cmd
	s.exited = exited
	s.mu.Unlock()

	urlChan := make(chan string, 1)
	go func() {
		scanForEndpoint(stdout, urlChan)
		cmd.Wait()
		close(exited)
		logrus.Warnf("SUPERVISOR: %s beendet", s.cfg.Command)
	}()

	logrus.Infof("SUPERVISOR: %s gestartet (pid %d)", s.cfg.Command, cmd.Process.Pid)

	select {
	case url := <-urlChan:
		s.mu.Lock()
		s.endpoint = url
		s.mu.Unlock()
		return url, nil
	case <-exited:
		return "", nil
	case <-time.After(10 * time.Second):
		return "", nil
	}
}

// Stop beendet den Prozess, falls er von Start gestartet wurde.
func (s *Supervisor) Stop() {
	s.mu.Lock()
	cmd, exited := s.cmd, s.exited
	s.cmd = nil
	s.mu.Unlock()

	if cmd == nil || cmd.Process == nil {
		return
	}
	if err := cmd.Process.Kill(); err != nil {
		logrus.Errorf("SUPERVISOR: Fehler beim Stoppen von %s: %v", s.cfg.Command, err)
		return
	}
	select {
	case <-exited:
	case <-time.After(5 * time.Second):
	}
	logrus.Infof("SUPERVISOR: %s gestoppt", s.cfg.Command)
}

// Endpoint ist die zuletzt aus der Ausgabe gelesene opc.tcp-URL.
func (s *Supervisor) Endpoint() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.endpoint
}

// scanForEndpoint liest die Ausgabe bis EOF und meldet die erste opc.tcp-URL.
func scanForEndpoint(r io.Reader, urlChan chan<- string) {
	found := false
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		if found {
			continue
		}
		if url := extractEndpointURL(scanner.Text()); url != "" {
			urlChan <- url
			found = true
		}
	}
	if err := scanner.Err(); err != nil {
		logrus.Debugf("SUPERVISOR: Fehler beim Lesen der Ausgabe: %v", err)
	}
}

// extractEndpointURL schneidet "opc.tcp://host:port" aus einer Logzeile.
func extractEndpointURL(line string) string {
	idx := strings.Index(line, "opc.tcp://")
	if idx == -1 {
		return ""
	}
	url := line[idx:]
	if end := strings.IndexAny(url, " \t\"',}"); end != -1 {
		url = url[:end]
	}
	return strings.TrimRight(url, "/.")
}

// ProcessRunning prüft über die Prozessliste, ob ein Prozess dieses Namens läuft.
func ProcessRunning(name string) bool {
	processes, err := process.Processes()
	if err != nil {
		logrus.Errorf("SUPERVISOR: Fehler beim Abrufen der Prozessliste: %v", err)
		return false
	}

	for _, p := range processes {
		n, err := p.Name()
		if err != nil {
			continue
		}
		if n == name || n == name+".exe" {
			return true
		}
	}
	return false
}

func processName(command string) string {
	return strings.TrimSuffix(filepath.Base(command), ".exe")
}
