// Package audit keeps a persistent trail of mutating control plane requests.
package audit

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"grimm.is/wlanctl/internal/clock"
)

// DefaultRetentionDays applies when NewStore is given zero.
const DefaultRetentionDays = 30

// Event is one audited request.
type Event struct {
	ID        int64     `json:"id"`
	Timestamp time.Time `json:"timestamp"`
	Action    string    `json:"action"`
	Resource  string    `json:"resource,omitempty"`
	Peer      string    `json:"peer,omitempty"`
	Error     string    `json:"error,omitempty"`
	Codes     []string  `json:"codes,omitempty"`
}

func (e Event) OK() bool { return e.Error == "" }

const schema = `
CREATE TABLE IF NOT EXISTS trail (
	id       INTEGER PRIMARY KEY AUTOINCREMENT,
	at       INTEGER NOT NULL,
	action   TEXT NOT NULL,
	resource TEXT NOT NULL DEFAULT '',
	peer     TEXT NOT NULL DEFAULT '',
	error    TEXT NOT NULL DEFAULT '',
	codes    TEXT NOT NULL DEFAULT ''
);
CREATE INDEX IF NOT EXISTS trail_at ON trail(at);
CREATE INDEX IF NOT EXISTS trail_action ON trail(action, at);
`

// Store is an sqlite-backed audit trail. Times are stored as Unix
// nanoseconds; codes as a comma separated list.
type Store struct {
	db     *sql.DB
	keep   int
	insert *sql.Stmt

	// mu serializes writers against readers; sqlite has one writer anyway.
	mu sync.RWMutex
}

// NewStore opens (creating if needed) the trail at dbPath. Events older than
// retentionDays are removed by Prune.
func NewStore(dbPath string, retentionDays int) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o750); err != nil {
		return nil, fmt.Errorf("create audit dir: %w", err)
	}
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open audit db: %w", err)
	}
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create audit schema: %w", err)
	}
	ins, err := db.Prepare(`INSERT INTO trail (at, action, resource, peer, error, codes) VALUES (?, ?, ?, ?, ?, ?)`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("prepare audit insert: %w", err)
	}

	if retentionDays <= 0 {
		retentionDays = DefaultRetentionDays
	}
	return &Store{db: db, keep: retentionDays, insert: ins}, nil
}

// Write appends evt. A zero Timestamp is replaced with the current time.
func (s *Store) Write(evt Event) error {
	at := evt.Timestamp
	if at.IsZero() {
		at = clock.Now()
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := s.insert.Exec(at.UnixNano(), evt.Action, evt.Resource, evt.Peer, evt.Error, strings.Join(evt.Codes, ",")); err != nil {
		return fmt.Errorf("write audit event %s: %w", evt.Action, err)
	}
	return nil
}

// Recent returns up to limit events, newest first.
func (s *Store) Recent(limit int) ([]Event, error) {
	return s.Query(time.Time{}, time.Time{}, "", limit)
}

// Query returns events with start <= time <= end, newest first. A zero bound
// is open and an empty action matches all. limit <= 0 means no limit.
func (s *Store) Query(start, end time.Time, action string, limit int) ([]Event, error) {
	var (
		where []string
		args  []any
	)
	if !start.IsZero() {
		where = append(where, "at >= ?")
		args = append(args, start.UnixNano())
	}
	if !end.IsZero() {
		where = append(where, "at <= ?")
		args = append(args, end.UnixNano())
	}
	if action != "" {
		where = append(where, "action = ?")
		args = append(args, action)
	}

	var q strings.Builder
	q.WriteString("SELECT id, at, action, resource, peer, error, codes FROM trail")
	if len(where) > 0 {
		q.WriteString(" WHERE " + strings.Join(where, " AND "))
	}
	q.WriteString(" ORDER BY at DESC, id DESC")
	if limit > 0 {
		q.WriteString(" LIMIT ?")
		args = append(args, limit)
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.Query(q.String(), args...)
	if err != nil {
		return nil, fmt.Errorf("query audit trail: %w", err)
	}
	defer rows.Close()

	var out []Event
	for rows.Next() {
		var (
			e     Event
			at    int64
			codes string
		)
		if err := rows.Scan(&e.ID, &at, &e.Action, &e.Resource, &e.Peer, &e.Error, &codes); err != nil {
			return nil, fmt.Errorf("read audit row: %w", err)
		}
		e.Timestamp = time.Unix(0, at)
		if codes != "" {
			e.Codes = strings.Split(codes, ",")
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// Prune deletes events past the retention window and reports how many.
func (s *Store) Prune() (int64, error) {
	cutoff := clock.Now().AddDate(0, 0, -s.keep)

	s.mu.Lock()
	defer s.mu.Unlock()
	res, err := s.db.Exec("DELETE FROM trail WHERE at < ?", cutoff.UnixNano())
	if err != nil {
		return 0, fmt.Errorf("prune audit trail: %w", err)
	}
	return res.RowsAffected()
}

func (s *Store) Count() (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var n int64
	err := s.db.QueryRow("SELECT COUNT(*) FROM trail").Scan(&n)
	return n, err
}

// PingContext lets the health checker probe the database.
func (s *Store) PingContext(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *Store) Close() error {
	s.insert.Close()
	return s.db.Close()
}
