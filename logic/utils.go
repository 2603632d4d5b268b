package logic

import (
	"crypto/rand"
	"encoding/base64"
	"time"

	opcua "opcua-demo/driver/opcua"

	"github.com/sirupsen/logrus"
)

// genRandomPW generiert ein zufälliges Passwort
func genRandomPW() string {
	b := make([]byte, 10)
	_, err := rand.Read(b)
	if err != nil {
		logrus.Fatal(err)
	}
	return base64.URLEncoding.EncodeToString(b)
}

// Startwert des Backoffs, in Tests verkürzt.
var backoffBase = 1000 * time.Millisecond

// publishDeviceState veröffentlicht den Zustand retained und speichert ihn in der DB.
func publishDeviceState(pub opcua.Publisher, store *SampleStore, prefix, endpoint, address string, state opcua.State) {
	if pub != nil {
		publishWithBackoff(pub, opcua.StateTopic(prefix, endpoint), string(state), 5)
	}
	if store != nil {
		if err := store.UpdateEndpointState(endpoint, address, state); err != nil {
			logrus.Errorf("DM: Error updating endpoint state in the database: %v", err)
		}
	}
}

// publishWithBackoff verdoppelt die Wartezeit nach jedem Fehlversuch.
func publishWithBackoff(pub opcua.Publisher, topic string, payload string, maxRetries int) bool {
	backoff := backoffBase
	for i := 0; i < maxRetries; i++ {
		err := pub.Publish(topic, []byte(payload), true)
		if err == nil {
			return true
		}
		if i < maxRetries-1 {
			time.Sleep(backoff)
			backoff *= 2
		}
	}
	logrus.Errorf("Failed to publish message to %s after %d retries", topic, maxRetries)
	return false
}
