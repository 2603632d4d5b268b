package dataforwarding

import (
	"context"
	"fmt"
	"os"
	"time"

	opcua "opcua-demo/driver/opcua"

	"github.com/sirupsen/logrus"
)

type fileForwarder struct {
	filePath string
}

func newFileForwarder(filePath string) *fileForwarder {
	return &fileForwarder{filePath: filePath}
}

// Send hängt je Sample eine Zeile an die Datei an.
func (f *fileForwarder) Send(_ context.Context, samples []opcua.Sample) error {
	file, err := os.OpenFile(f.filePath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("failed to open file: %v", err)
	}
	defer file.Close()

	for _, s := range samples {
		value := opcua.FormatValue(s.Value)
		if !s.Good {
			value = "<" + s.Status + ">"
		}
		dataLine := fmt.Sprintf("%s - Endpoint: %s, Node: %s, Name: %s, Value: %s\n",
			s.ReceivedAt.Format(time.RFC3339Nano), s.Endpoint, s.NodeID, s.Name, value)
		if _, err := file.WriteString(dataLine); err != nil {
			return fmt.Errorf("failed to write to file: %v", err)
		}
	}

	logrus.Debugf("DF: wrote %d samples to file %s", len(samples), f.filePath)
	return nil
}

func (f *fileForwarder) Close() {}
