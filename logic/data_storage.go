package logic

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	opcua "opcua-demo/driver/opcua"

	"github.com/lib/pq"
	"github.com/sirupsen/logrus"
)

// maxPendingBatches begrenzt den Puffer, wenn die Datenbank dauerhaft nicht schreibbar ist.
const maxPendingBatches = 50

// SampleStore puffert Samples und schreibt sie in Batches in die Datenbank.
// Ältere Einträge als die Retention werden bei jedem Batch gelöscht.
//
// Jedes Sample bekommt beim Add eine fortlaufende Nummer (seq). Routen lesen
// über After nach seq, so geht kein Sample verloren, das nach einer Abfrage
// mit älterem Zeitstempel eintrifft.
type SampleStore struct {
	db        *sql.DB
	driver    string
	batchSize int
	maxBatch  int
	retention time.Duration

	mu      sync.Mutex
	seq     int64
	batch   []storedSample
	dropped int64
	latest  map[string]opcua.Sample
}

type storedSample struct {
	seq int64
	opcua.Sample
}

func NewSampleStore(db *sql.DB, driver string, batchSize int, retention time.Duration) *SampleStore {
	if batchSize <= 0 {
		batchSize = 20
	}
	s := &SampleStore{
		db:        db,
		driver:    driver,
		batchSize: batchSize,
		maxBatch:  batchSize * maxPendingBatches,
		retention: retention,
		batch:     make([]storedSample, 0, batchSize),
		latest:    make(map[string]opcua.Sample),
	}
	if err := db.QueryRow("SELECT COALESCE(MAX(seq), 0) FROM samples").Scan(&s.seq); err != nil {
		logrus.Warnf("DB: could not read last sequence number: %v", err)
	}
	return s
}

func latestKey(endpoint, node string) string {
	return endpoint + "|" + node
}

// Add übernimmt Samples in den Puffer und schreibt ihn, sobald er voll ist.
func (s *SampleStore) Add(samples ...opcua.Sample) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, sample := range samples {
		s.latest[latestKey(sample.Endpoint, sample.NodeID)] = sample
		s.seq++
		s.batch = append(s.batch, storedSample{seq: s.seq, Sample: sample})
	}
	if len(s.batch) >= s.batchSize {
		if err := s.flushLocked(); err != nil {
			logrus.Errorf("DB: error writing batch: %v", err)
		}
	}
	if over := len(s.batch) - s.maxBatch; over > 0 {
		s.dropped += int64(over)
		s.batch = append(s.batch[:0], s.batch[over:]...)
		logrus.Warnf("DB: buffer full, dropped %d oldest samples (%d total)", over, s.dropped)
	}
}

// Flush schreibt den Puffer sofort.
func (s *SampleStore) Flush() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.flushLocked()
}

func (s *SampleStore) flushLocked() error {
	if len(s.batch) == 0 {
		return nil
	}
	if err := s.writeBatchToDB(s.batch); err != nil {
		return err
	}
	s.batch = s.batch[:0]
	return nil
}

func (s *SampleStore) writeBatchToDB(batch []storedSample) error {
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}

	stmt, err := tx.Prepare(rebind(s.driver,
		"INSERT INTO samples (seq, endpoint, node, name, value, good, status, source_time, received_at) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)"))
	if err != nil {
		tx.Rollback()
		return err
	}
	defer stmt.Close()

	for _, sample := range batch {
		value, err := encodeValue(sample.Value)
		if err != nil {
			tx.Rollback()
			return fmt.Errorf("encode value of %s: %v", sample.NodeID, err)
		}
		_, err = stmt.Exec(sample.seq, sample.Endpoint, sample.NodeID, sample.Name, value, sample.Good, sample.Status,
			sample.SourceTime.UnixMilli(), sample.ReceivedAt.UnixMilli())
		if err != nil {
			tx.Rollback()
			return err
		}
	}

	if s.retention > 0 {
		cutoff := time.Now().Add(-s.retention).UnixMilli()
		if _, err := tx.Exec(rebind(s.driver, "DELETE FROM samples WHERE received_at < ?"), cutoff); err != nil {
			tx.Rollback()
			return err
		}
	}

	return tx.Commit()
}

func encodeValue(v interface{}) (sql.NullString, error) {
	if v == nil {
		return sql.NullString{}, nil
	}
	b, err := json.Marshal(opcua.ConvValue(v))
	if err != nil {
		return sql.NullString{}, err
	}
	return sql.NullString{String: string(b), Valid: true}, nil
}

func decodeValue(v sql.NullString) interface{} {
	if !v.Valid {
		return nil
	}
	var out interface{}
	if err := json.Unmarshal([]byte(v.String), &out); err != nil {
		return v.String
	}
	return out
}

// Latest gibt den zuletzt empfangenen Wert je Endpunkt und Knoten zurück.
func (s *SampleStore) Latest() []opcua.Sample {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]opcua.Sample, 0, len(s.latest))
	for _, sample := range s.latest {
		out = append(out, sample)
	}
	return out
}

const sampleColumns = "endpoint, node, name, value, good, status, source_time, received_at"

func scanSamples(rows *sql.Rows) ([]opcua.Sample, error) {
	return scanRows(rows, false)
}

// scanRows liest Samples; mit withSeq steht seq als erste Spalte vorn.
func scanRows(rows *sql.Rows, withSeq bool) ([]opcua.Sample, error) {
	defer rows.Close()

	var out []opcua.Sample
	for rows.Next() {
		var (
			sample             opcua.Sample
			seq                int64
			value              sql.NullString
			source, receivedAt int64
		)
		dest := []interface{}{&sample.Endpoint, &sample.NodeID, &sample.Name, &value, &sample.Good,
			&sample.Status, &source, &receivedAt}
		if withSeq {
			dest = append([]interface{}{&seq}, dest...)
		}
		if err := rows.Scan(dest...); err != nil {
			return nil, err
		}
		sample.Value = decodeValue(value)
		sample.SourceTime = time.UnixMilli(source)
		sample.ReceivedAt = time.UnixMilli(receivedAt)
		out = append(out, sample)
	}
	return out, rows.Err()
}

// History liefert die letzten limit Samples eines Knotens, neueste zuerst.
// Der Puffer wird vorher geschrieben.
func (s *SampleStore) History(endpoint, node string, limit int) ([]opcua.Sample, error) {
	if err := s.Flush(); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = 100
	}
	query := "SELECT " + sampleColumns + " FROM samples WHERE endpoint = ? AND node = ? ORDER BY received_at DESC LIMIT ?"
	rows, err := s.db.Query(rebind(s.driver, query), endpoint, node, limit)
	if err != nil {
		return nil, fmt.Errorf("query history: %v", err)
	}
	return scanSamples(rows)
}

// Seq ist die Nummer des zuletzt übernommenen Samples.
func (s *SampleStore) Seq() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.seq
}

// After liefert alle Samples mit seq > afterSeq in Einfügereihenfolge, optional
// auf endpoints beschränkt, und die Nummer, ab der die nächste Abfrage weiterliest.
// Der Puffer wird vorher geschrieben.
func (s *SampleStore) After(endpoints []string, afterSeq int64) ([]opcua.Sample, int64, error) {
	s.mu.Lock()
	head := s.seq
	err := s.flushLocked()
	s.mu.Unlock()
	if err != nil {
		return nil, afterSeq, err
	}

	query := "SELECT seq, " + sampleColumns + " FROM samples WHERE seq > ? AND seq <= ?"
	args := []interface{}{afterSeq, head}
	if len(endpoints) > 0 {
		if s.driver == "postgres" {
			query += " AND endpoint = ANY(?)"
			args = append(args, pq.Array(endpoints))
		} else {
			query += " AND endpoint IN (?" + strings.Repeat(", ?", len(endpoints)-1) + ")"
			for _, ep := range endpoints {
				args = append(args, ep)
			}
		}
	}
	query += " ORDER BY seq ASC"

	rows, err := s.db.Query(rebind(s.driver, query), args...)
	if err != nil {
		return nil, afterSeq, fmt.Errorf("query samples: %v", err)
	}
	samples, err := scanRows(rows, true)
	if err != nil {
		return nil, afterSeq, err
	}
	// bis head ist alles geschrieben, auch wenn die Endpunkt-Filterung nichts liefert
	return samples, head, nil
}

// UpdateEndpointState speichert den Zustand eines Pollers.
func (s *SampleStore) UpdateEndpointState(name, address string, state opcua.State) error {
	query := `INSERT INTO endpoints (name, address, status, updated_at) VALUES (?, ?, ?, ?)
		ON CONFLICT (name) DO UPDATE SET address = excluded.address, status = excluded.status, updated_at = excluded.updated_at`
	_, err := s.db.Exec(rebind(s.driver, query), name, address, string(state), time.Now().UnixMilli())
	return err
}

// EndpointStates liest die gespeicherten Zustände aller Endpunkte.
func (s *SampleStore) EndpointStates() (map[string]opcua.State, error) {
	rows, err := s.db.Query("SELECT name, status FROM endpoints")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[string]opcua.State)
	for rows.Next() {
		var name, status string
		if err := rows.Scan(&name, &status); err != nil {
			return nil, err
		}
		out[name] = opcua.State(status)
	}
	return out, rows.Err()
}
