package props

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"grimm.is/wlanctl/internal/clock"
)

// Options configures NewSQLiteStore.
type Options struct {
	Path    string // ":memory:" for a throwaway database
	WALMode bool
	Clock   clock.Clock
}

func DefaultOptions(path string) Options {
	return Options{Path: path, WALMode: true}
}

const propsSchema = `
CREATE TABLE IF NOT EXISTS props (
	name    TEXT PRIMARY KEY,
	value   TEXT NOT NULL,
	serial  INTEGER NOT NULL,
	changed INTEGER NOT NULL
);
CREATE TABLE IF NOT EXISTS counters (
	name  TEXT PRIMARY KEY,
	value INTEGER NOT NULL
);
`

// SQLiteStore keeps properties in an sqlite file. The serial counter is
// persisted next to the rows so serials keep increasing across restarts.
type SQLiteStore struct {
	notifier

	db    *sql.DB
	clock clock.Clock

	mu     sync.Mutex
	last   uint64
	closed bool
}

// NewSQLiteStore opens or creates the database at opts.Path.
func NewSQLiteStore(opts Options) (*SQLiteStore, error) {
	dsn := opts.Path
	if dsn != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(dsn), 0o755); err != nil {
			return nil, fmt.Errorf("create property dir: %w", err)
		}
		if opts.WALMode {
			dsn += "?_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)&_pragma=busy_timeout(5000)"
		}
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open property db: %w", err)
	}
	// ":memory:" is per connection.
	db.SetMaxOpenConns(1)

	s := &SQLiteStore{db: db, clock: opts.Clock}
	if s.clock == nil {
		s.clock = clock.Default
	}
	if err := s.open(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *SQLiteStore) open() error {
	if _, err := s.db.Exec(propsSchema); err != nil {
		return fmt.Errorf("create property schema: %w", err)
	}
	var last int64
	err := s.db.QueryRow(`SELECT value FROM counters WHERE name = 'serial'`).Scan(&last)
	switch {
	case errors.Is(err, sql.ErrNoRows):
	case err != nil:
		return fmt.Errorf("read serial counter: %w", err)
	default:
		s.last = uint64(last)
	}
	return nil
}

func (s *SQLiteStore) Get(key string) (string, uint64, bool) {
	e, err := s.GetEntry(key)
	if err != nil {
		return "", 0, false
	}
	return e.Value, e.Serial, true
}

// GetEntry returns sql.ErrNoRows for an unknown key.
func (s *SQLiteStore) GetEntry(key string) (*Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, ErrStoreClosed
	}
	var (
		e       Entry
		serial  int64
		changed int64
	)
	err := s.db.QueryRow(`SELECT value, serial, changed FROM props WHERE name = ?`, key).
		Scan(&e.Value, &serial, &changed)
	if err != nil {
		return nil, err
	}
	e.Serial, e.UpdatedAt = uint64(serial), time.Unix(0, changed).UTC()
	return &e, nil
}

// Set writes value under key with the next serial and notifies subscribers.
func (s *SQLiteStore) Set(key, value string) error {
	if key == "" {
		return ErrEmptyKey
	}
	serial, err := s.write(key, value)
	if err != nil {
		return err
	}
	s.notify(Change{Key: key, Value: value, Serial: serial})
	return nil
}

// write stores the row and the counter in one transaction.
func (s *SQLiteStore) write(key, value string) (uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return 0, ErrStoreClosed
	}

	next := s.last + 1
	tx, err := s.db.Begin()
	if err != nil {
		return 0, fmt.Errorf("set %s: %w", key, err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`INSERT INTO props (name, value, serial, changed) VALUES (?, ?, ?, ?)
		ON CONFLICT(name) DO UPDATE SET value = excluded.value, serial = excluded.serial, changed = excluded.changed`,
		key, value, int64(next), s.clock.Now().UnixNano()); err != nil {
		return 0, fmt.Errorf("set %s: %w", key, err)
	}
	if _, err := tx.Exec(`INSERT INTO counters (name, value) VALUES ('serial', ?)
		ON CONFLICT(name) DO UPDATE SET value = excluded.value`, int64(next)); err != nil {
		return 0, fmt.Errorf("set %s: bump serial: %w", key, err)
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("set %s: commit: %w", key, err)
	}
	s.last = next
	return next, nil
}

func (s *SQLiteStore) List() (map[string]Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, ErrStoreClosed
	}

	rows, err := s.db.Query(`SELECT name, value, serial, changed FROM props`)
	if err != nil {
		return nil, fmt.Errorf("list properties: %w", err)
	}
	defer rows.Close()

	out := make(map[string]Entry)
	for rows.Next() {
		var (
			name            string
			e               Entry
			serial, changed int64
		)
		if err := rows.Scan(&name, &e.Value, &serial, &changed); err != nil {
			return nil, fmt.Errorf("list properties: %w", err)
		}
		e.Serial, e.UpdatedAt = uint64(serial), time.Unix(0, changed).UTC()
		out[name] = e
	}
	return out, rows.Err()
}

// Subscribe streams changes until ctx is done or the store is closed.
func (s *SQLiteStore) Subscribe(ctx context.Context) <-chan Change {
	return s.subscribe(ctx)
}

func (s *SQLiteStore) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	s.closeAll()
	return s.db.Close()
}
