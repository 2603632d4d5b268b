// USER MANAGEMENT FÜR MQTT-BROKER
package logic

import (
	"fmt"

	"github.com/sirupsen/logrus"
	yaml "gopkg.in/yaml.v2"
)

// AddUser fügt users einen Benutzer hinzu, sofern der Name noch frei ist.
func AddUser(users []BrokerUser, username, password string, allow bool, filters Filters) ([]BrokerUser, error) {
	if username == "" {
		return users, fmt.Errorf("username is empty")
	}
	if UserExists(users, username) {
		return users, fmt.Errorf("user %s already exists", username)
	}
	return append(users, BrokerUser{
		Username: username,
		Password: password,
		Allow:    allow,
		Filters:  filters,
	}), nil
}

func UserExists(users []BrokerUser, username string) bool {
	for _, u := range users {
		if u.Username == username {
			return true
		}
	}
	return false
}

// EnsureAdminUser legt einen admin mit Vollzugriff an, wenn keine Benutzer konfiguriert sind.
func EnsureAdminUser(users []BrokerUser) []BrokerUser {
	if len(users) > 0 {
		return users
	}
	password := genRandomPW()
	users, _ = AddUser(users, "admin", password, true, Filters{"#": 3})
	logrus.Warnf("MQTT-Broker: no users configured, created user admin with password %s", password)
	return users
}

// BrokerAuthData erzeugt das YAML-Ledger für den Auth-Hook des Brokers.
// Benutzer ohne Passwort bekommen ein zufälliges, können sich also nicht anmelden.
func BrokerAuthData(users []BrokerUser) ([]byte, error) {
	var auth []Auth
	var acl []ACL

	seen := make(map[string]bool)
	for _, u := range users {
		if seen[u.Username] {
			return nil, fmt.Errorf("broker user %s defined twice", u.Username)
		}
		seen[u.Username] = true

		password := u.Password
		if password == "" {
			logrus.Warnf("MQTT-Broker: user %s has no password, login disabled", u.Username)
			password = genRandomPW()
		}
		auth = append(auth, Auth{Username: u.Username, Password: password, Allow: u.Allow})
		if len(u.Filters) > 0 {
			acl = append(acl, ACL{Username: u.Username, Filters: u.Filters})
		}
	}

	data := map[string]interface{}{
		"auth": auth,
		"acl":  acl,
	}
	return yaml.Marshal(data)
}
