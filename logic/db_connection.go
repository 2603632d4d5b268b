package logic

import (
	"database/sql"
	"fmt"
	"os"
	"strconv"
	"strings"

	_ "github.com/glebarez/go-sqlite"
	_ "github.com/lib/pq"
	"github.com/sirupsen/logrus"
)

// Zeitstempel werden als Unix-Millisekunden gespeichert, damit sqlite und
// postgres gleich sortieren und vergleichen.
const (
	createEndpointsTable = `
		CREATE TABLE IF NOT EXISTS endpoints (
			name VARCHAR(100) PRIMARY KEY,
			address TEXT NOT NULL,
			status TEXT NOT NULL,
			updated_at BIGINT NOT NULL
		);
	`

	createSamplesTable = `
		CREATE TABLE IF NOT EXISTS samples (
			seq BIGINT NOT NULL,
			endpoint VARCHAR(100) NOT NULL,
			node TEXT NOT NULL,
			name TEXT NOT NULL,
			value TEXT,
			good BOOLEAN NOT NULL,
			status TEXT NOT NULL,
			source_time BIGINT NOT NULL,
			received_at BIGINT NOT NULL
		);
	`

	createSamplesIndex = `
		CREATE INDEX IF NOT EXISTS samples_endpoint_received
			ON samples (endpoint, received_at);
	`

	createSeqIndex = `
		CREATE INDEX IF NOT EXISTS samples_seq ON samples (seq);
	`
)

// InitDB öffnet die Datenbank (sqlite oder postgres) und legt die Tabellen an.
func InitDB(driver, dsn string) (*sql.DB, error) {
	switch driver {
	case "sqlite":
		// Datenbankdatei anlegen, falls sie noch nicht existiert
		if !strings.HasPrefix(dsn, ":memory:") && !strings.HasPrefix(dsn, "file:") {
			if _, err := os.Stat(dsn); os.IsNotExist(err) {
				file, err := os.Create(dsn)
				if err != nil {
					return nil, err
				}
				file.Close()
			}
		}
	case "postgres":
	default:
		return nil, fmt.Errorf("unsupported database driver %q", driver)
	}

	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, err
	}
	if driver == "sqlite" {
		// eine Verbindung, sonst sieht jede :memory: Verbindung eine eigene Datenbank
		db.SetMaxOpenConns(1)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("connect to %s database: %v", driver, err)
	}

	tables := []string{
		createEndpointsTable,
		createSamplesTable,
		createSamplesIndex,
		createSeqIndex,
	}
	for _, table := range tables {
		if _, err := db.Exec(table); err != nil {
			db.Close()
			return nil, err
		}
	}

	logrus.Infof("DB: %s database ready", driver)
	return db, nil
}

// rebind ersetzt ? durch $1..$n für postgres.
func rebind(driver, query string) string {
	if driver != "postgres" {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteString("$" + strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}
