package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// Event is one archived pipeline event: the flattened sample vector
// plus its gesture label ("" for inference events).
type Event struct {
	ID          string
	Time        time.Time
	Label       string
	Calibrating bool
	Vector      []float64
}

// EventStore archives accepted events in a local SQLite database so
// collected training data survives broker outages and can be
// re-exported later.
type EventStore struct {
	db *sql.DB
}

const schema = `
CREATE TABLE IF NOT EXISTS events (
	id            TEXT PRIMARY KEY,
	ts_unix_nanos INTEGER NOT NULL,
	label         TEXT NOT NULL DEFAULT '',
	calibrating   INTEGER NOT NULL DEFAULT 0,
	vector        TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_events_ts ON events(ts_unix_nanos);
`

// Open opens (creating if needed) the archive database at path. Use
// ":memory:" for an ephemeral store.
func Open(path string) (*EventStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open archive db: %w", err)
	}
	// One connection: keeps :memory: coherent and serialises writers.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create archive schema: %w", err)
	}

	return &EventStore{db: db}, nil
}

// RecordEvent inserts one event row. Satisfies the pipeline's Archive
// interface.
func (s *EventStore) RecordEvent(vector []float64, label string, calibrating bool) error {
	vec, err := json.Marshal(vector)
	if err != nil {
		return fmt.Errorf("marshal vector: %w", err)
	}

	_, err = s.db.Exec(
		`INSERT INTO events (id, ts_unix_nanos, label, calibrating, vector) VALUES (?, ?, ?, ?, ?)`,
		uuid.NewString(), time.Now().UnixNano(), label, boolToInt(calibrating), string(vec),
	)
	if err != nil {
		return fmt.Errorf("insert event: %w", err)
	}
	return nil
}

// RecentEvents returns the newest events, newest first.
func (s *EventStore) RecentEvents(limit int) ([]Event, error) {
	rows, err := s.db.Query(
		`SELECT id, ts_unix_nanos, label, calibrating, vector
		 FROM events ORDER BY ts_unix_nanos DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	defer rows.Close()

	var out []Event
	for rows.Next() {
		var (
			ev     Event
			nanos  int64
			calInt int
			vecStr string
		)
		if err := rows.Scan(&ev.ID, &nanos, &ev.Label, &calInt, &vecStr); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		if err := json.Unmarshal([]byte(vecStr), &ev.Vector); err != nil {
			return nil, fmt.Errorf("decode vector for %s: %w", ev.ID, err)
		}
		ev.Time = time.Unix(0, nanos)
		ev.Calibrating = calInt != 0
		out = append(out, ev)
	}
	return out, rows.Err()
}

// CountByLabel returns how many events carry each label. Inference
// events show up under the empty label.
func (s *EventStore) CountByLabel() (map[string]int, error) {
	rows, err := s.db.Query(`SELECT label, COUNT(*) FROM events GROUP BY label`)
	if err != nil {
		return nil, fmt.Errorf("count events: %w", err)
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var label string
		var n int
		if err := rows.Scan(&label, &n); err != nil {
			return nil, fmt.Errorf("scan count: %w", err)
		}
		counts[label] = n
	}
	return counts, rows.Err()
}

// Close closes the underlying database.
func (s *EventStore) Close() error {
	return s.db.Close()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
