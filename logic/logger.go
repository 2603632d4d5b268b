package logic

import (
	"strings"
	"sync"

	"github.com/sirupsen/logrus"
)

// In-Memory-Logging für /api/logs
var logMutex sync.Mutex
var inMemoryLogs []string
var maxLogEntries = 300

// init konfiguriert den globalen logrus.Logger, damit alle Einträge
// zusätzlich im Speicher landen.
func init() {
	logrus.SetFormatter(&logrus.JSONFormatter{})
	logrus.SetLevel(logrus.InfoLevel)
	logrus.AddHook(&memoryHook{})

	inMemoryLogs = make([]string, 0, maxLogEntries)
}

// SetLogLevel setzt das Level des globalen Loggers, z.B. "debug" oder "warn".
func SetLogLevel(level string) error {
	lvl, err := logrus.ParseLevel(strings.TrimSpace(level))
	if err != nil {
		return err
	}
	logrus.SetLevel(lvl)
	return nil
}

// GetLogs gibt eine Kopie der gespeicherten Logs zurück, älteste zuerst.
func GetLogs() []string {
	logMutex.Lock()
	defer logMutex.Unlock()

	logsCopy := make([]string, len(inMemoryLogs))
	copy(logsCopy, inMemoryLogs)
	return logsCopy
}

// ClearLogs löscht alle gespeicherten Logs
func ClearLogs() {
	logMutex.Lock()
	defer logMutex.Unlock()

	inMemoryLogs = make([]string, 0, maxLogEntries)
}

// addLogEntry verwirft den ältesten Eintrag, wenn der Speicher voll ist.
func addLogEntry(entry string) {
	logMutex.Lock()
	defer logMutex.Unlock()

	if len(inMemoryLogs) >= maxLogEntries {
		inMemoryLogs = inMemoryLogs[1:]
	}
	inMemoryLogs = append(inMemoryLogs, strings.TrimRight(entry, "\n"))
}

type memoryHook struct{}

func (hook *memoryHook) Fire(entry *logrus.Entry) error {
	line, err := entry.String()
	if err != nil {
		return err
	}
	addLogEntry(line)
	return nil
}

func (hook *memoryHook) Levels() []logrus.Level {
	return logrus.AllLevels
}
