package logic

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/sirupsen/logrus"
)

func getConfigModTime(configPath string) (time.Time, error) {
	fileInfo, err := os.Stat(configPath)
	if err != nil {
		return time.Time{}, fmt.Errorf("could not get file info: %v", err)
	}
	return fileInfo.ModTime(), nil
}

// WatchConfig prüft alle interval die Änderungszeit von configPath und ruft
// onChange mit der neu geladenen Konfiguration auf. Ungültige Dateien werden
// geloggt und ignoriert. Blockiert, bis ctx beendet ist.
func WatchConfig(ctx context.Context, configPath string, interval time.Duration, onChange func(*Config)) {
	lastModTime, _ := getConfigModTime(configPath)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		currentModTime, err := getConfigModTime(configPath)
		if err != nil {
			logrus.Debugf("CONFIG: error checking config change: %v", err)
			continue
		}
		if currentModTime.Equal(lastModTime) {
			continue
		}
		lastModTime = currentModTime

		cfg, err := LoadConfig(configPath)
		if err != nil {
			logrus.Errorf("CONFIG: %s changed but is invalid: %v", configPath, err)
			continue
		}
		logrus.Infof("CONFIG: %s has changed, applying", configPath)
		onChange(cfg)
	}
}
