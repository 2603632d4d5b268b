package dataforwarding

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	opcua "opcua-demo/driver/opcua"
	"opcua-demo/logic"
)

type restForwarder struct {
	url     string
	headers []logic.Header
	client  *http.Client
}

func newRESTForwarder(url string, headers []logic.Header) *restForwarder {
	return &restForwarder{
		url:     url,
		headers: headers,
		client:  &http.Client{Timeout: 10 * time.Second},
	}
}

// Send schickt alle Samples als JSON-Array per POST.
func (f *restForwarder) Send(ctx context.Context, samples []opcua.Sample) error {
	jsonData, err := json.Marshal(toReadings(samples))
	if err != nil {
		return fmt.Errorf("error marshalling data: %v", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, f.url, bytes.NewReader(jsonData))
	if err != nil {
		return fmt.Errorf("error creating HTTP request: %v", err)
	}
	for _, header := range f.headers {
		req.Header.Add(header.Name, header.Value)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := f.client.Do(req)
	if err != nil {
		return fmt.Errorf("error sending request: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated && resp.StatusCode != http.StatusAccepted {
		return fmt.Errorf("received non-OK HTTP status: %d", resp.StatusCode)
	}
	return nil
}

func (f *restForwarder) Close() {
	f.client.CloseIdleConnections()
}
