package events

import (
	"context"
	"database/sql"
	"sync"
	"time"

	"grimm.is/wlanctl/internal/logging"
)

// Journal subscribes to supplicant events and keeps a queryable history in
// SQLite: raw lines for a short window and per-hour counts per event name
// for longer.
type Journal struct {
	db     *sql.DB
	hub    *Hub
	logger *logging.Logger

	// Write buffer to reduce SQLite IOPS
	buffer   []journalEntry
	bufferMu sync.Mutex

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

type journalEntry struct {
	at   time.Time
	typ  EventType
	data WifiEventData
}

// JournalConfig configures the journal.
type JournalConfig struct {
	// FlushInterval is how often buffered events are written (default: 5s)
	FlushInterval time.Duration

	// JanitorInterval is how often rollups run (default: 1h)
	JanitorInterval time.Duration

	// RawRetention is how long raw lines are kept before they are folded
	// into hourly counts (default: 24h)
	RawRetention time.Duration

	// HourlyRetention is how long hourly counts are kept (default: 30d)
	HourlyRetention time.Duration
}

// DefaultJournalConfig returns the default retention settings.
func DefaultJournalConfig() JournalConfig {
	return JournalConfig{
		FlushInterval:   5 * time.Second,
		JanitorInterval: time.Hour,
		RawRetention:    24 * time.Hour,
		HourlyRetention: 30 * 24 * time.Hour,
	}
}

// JournalEntry is one recorded event line.
type JournalEntry struct {
	Timestamp time.Time `json:"timestamp"`
	Type      EventType `json:"type"`
	Iface     string    `json:"iface"`
	Name      string    `json:"name"`
	Line      string    `json:"line"`
}

// HourlyCount is the number of events of one name in one hour.
type HourlyCount struct {
	Hour  time.Time `json:"hour"`
	Name  string    `json:"name"`
	Count int64     `json:"count"`
}

// NewJournal creates a journal on db.
func NewJournal(db *sql.DB, hub *Hub) (*Journal, error) {
	ctx, cancel := context.WithCancel(context.Background())

	j := &Journal{
		db:     db,
		hub:    hub,
		logger: logging.WithComponent("events"),
		buffer: make([]journalEntry, 0, 256),
		ctx:    ctx,
		cancel: cancel,
	}
	if err := j.initSchema(); err != nil {
		cancel()
		return nil, err
	}
	return j, nil
}

func (j *Journal) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS event_raw (
		timestamp INTEGER NOT NULL,
		type TEXT NOT NULL,
		iface TEXT NOT NULL,
		name TEXT NOT NULL,
		line TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_event_raw_ts ON event_raw(timestamp);

	CREATE TABLE IF NOT EXISTS event_hourly (
		hour_bucket TEXT NOT NULL,
		name TEXT NOT NULL,
		count INTEGER DEFAULT 0,
		PRIMARY KEY (hour_bucket, name)
	);
	`
	_, err := j.db.Exec(schema)
	return err
}

// Start begins background processing.
func (j *Journal) Start(cfg JournalConfig) {
	events := j.hub.Subscribe(1024, EventWifi, EventTerminating)

	j.wg.Add(1)
	go func() {
		defer j.wg.Done()
		defer j.hub.Unsubscribe(events)
		for {
			select {
			case <-j.ctx.Done():
				return
			case e := <-events:
				j.Record(e)
			}
		}
	}()

	j.wg.Add(1)
	go func() {
		defer j.wg.Done()
		ticker := time.NewTicker(cfg.FlushInterval)
		defer ticker.Stop()
		for {
			select {
			case <-j.ctx.Done():
				j.Flush()
				return
			case <-ticker.C:
				j.Flush()
			}
		}
	}()

	j.wg.Add(1)
	go func() {
		defer j.wg.Done()
		ticker := time.NewTicker(cfg.JanitorInterval)
		defer ticker.Stop()
		for {
			select {
			case <-j.ctx.Done():
				return
			case <-ticker.C:
				j.RunJanitor(cfg, time.Now())
			}
		}
	}()
}

// Stop flushes pending events and shuts down.
func (j *Journal) Stop() {
	j.cancel()
	j.wg.Wait()
}

// Record buffers one event. Events without a WifiEventData payload are ignored.
func (j *Journal) Record(e Event) {
	data, ok := e.Data.(WifiEventData)
	if !ok {
		return
	}
	j.bufferMu.Lock()
	j.buffer = append(j.buffer, journalEntry{at: e.Timestamp, typ: e.Type, data: data})
	j.bufferMu.Unlock()
}

// Flush writes buffered events to SQLite.
func (j *Journal) Flush() {
	j.bufferMu.Lock()
	if len(j.buffer) == 0 {
		j.bufferMu.Unlock()
		return
	}
	toFlush := j.buffer
	j.buffer = make([]journalEntry, 0, 256)
	j.bufferMu.Unlock()

	tx, err := j.db.Begin()
	if err != nil {
		j.logger.Error("begin transaction failed", "error", err)
		return
	}

	stmt, err := tx.Prepare(`INSERT INTO event_raw (timestamp, type, iface, name, line) VALUES (?, ?, ?, ?, ?)`)
	if err != nil {
		tx.Rollback()
		j.logger.Error("prepare failed", "error", err)
		return
	}
	defer stmt.Close()

	for _, e := range toFlush {
		if _, err := stmt.Exec(e.at.Unix(), string(e.typ), e.data.Iface, e.data.Name, e.data.Line); err != nil {
			j.logger.Warn("insert failed", "error", err)
		}
	}

	if err := tx.Commit(); err != nil {
		j.logger.Error("commit failed", "error", err)
	}
}

// RunJanitor folds raw lines older than the raw retention into hourly
// counts, deletes them, and drops hourly counts past their retention.
func (j *Journal) RunJanitor(cfg JournalConfig, now time.Time) {
	j.logger.Debug("running janitor")

	rawCutoff := now.Add(-cfg.RawRetention).Unix()
	tx, err := j.db.Begin()
	if err != nil {
		j.logger.Error("begin transaction failed", "error", err)
		return
	}
	_, err = tx.Exec(`
		INSERT OR REPLACE INTO event_hourly (hour_bucket, name, count)
		SELECT
			strftime('%Y-%m-%d %H:00', timestamp, 'unixepoch') as hb,
			name,
			COALESCE((SELECT count FROM event_hourly WHERE hour_bucket = hb AND event_hourly.name = event_raw.name), 0) + count(*)
		FROM event_raw
		WHERE timestamp < ?
		GROUP BY 1, 2
	`, rawCutoff)
	if err != nil {
		tx.Rollback()
		j.logger.Warn("rollup raw to hourly failed", "error", err)
		return
	}
	if _, err := tx.Exec(`DELETE FROM event_raw WHERE timestamp < ?`, rawCutoff); err != nil {
		tx.Rollback()
		j.logger.Warn("cleanup raw failed", "error", err)
		return
	}
	if err := tx.Commit(); err != nil {
		j.logger.Error("commit failed", "error", err)
		return
	}

	hourlyCutoff := now.Add(-cfg.HourlyRetention).UTC().Format("2006-01-02 15:00")
	if _, err := j.db.Exec(`DELETE FROM event_hourly WHERE hour_bucket < ?`, hourlyCutoff); err != nil {
		j.logger.Warn("cleanup hourly failed", "error", err)
	}
}

// Recent returns up to limit of the newest recorded lines, newest first.
func (j *Journal) Recent(limit int) ([]JournalEntry, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := j.db.Query(`
		SELECT timestamp, type, iface, name, line
		FROM event_raw
		ORDER BY timestamp DESC, rowid DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []JournalEntry
	for rows.Next() {
		var e JournalEntry
		var ts int64
		var typ string
		if err := rows.Scan(&ts, &typ, &e.Iface, &e.Name, &e.Line); err != nil {
			continue
		}
		e.Timestamp = time.Unix(ts, 0)
		e.Type = EventType(typ)
		out = append(out, e)
	}
	return out, rows.Err()
}

// Hourly returns hourly counts for name (all names when empty) over the last
// days.
func (j *Journal) Hourly(name string, days int) ([]HourlyCount, error) {
	cutoff := time.Now().AddDate(0, 0, -days).UTC().Format("2006-01-02 15:00")

	rows, err := j.db.Query(`
		SELECT hour_bucket, name, count
		FROM event_hourly
		WHERE (? = '' OR name = ?) AND hour_bucket >= ?
		ORDER BY hour_bucket, name
	`, name, name, cutoff)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []HourlyCount
	for rows.Next() {
		var c HourlyCount
		var bucket string
		if err := rows.Scan(&bucket, &c.Name, &c.Count); err != nil {
			continue
		}
		c.Hour, _ = time.Parse("2006-01-02 15:04", bucket)
		out = append(out, c)
	}
	return out, rows.Err()
}
