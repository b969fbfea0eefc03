package logging

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"
)

// DefaultBufferSize is how many log lines the process keeps for /api/logs.
const DefaultBufferSize = 2000

// AppLogEntry is one log line retained for the API.
type AppLogEntry struct {
	Timestamp time.Time         `json:"timestamp"`
	Level     string            `json:"level"`
	Source    string            `json:"source"`
	Message   string            `json:"message"`
	Extra     map[string]string `json:"extra,omitempty"`
}

// LogQuery filters buffered entries. Empty fields match everything.
type LogQuery struct {
	Source   string
	MinLevel string // debug, info, warn, error
	Limit    int    // newest N matches; zero means all
}

var levelRank = map[string]int{"debug": 0, "info": 1, "warn": 2, "error": 3}

// RingBuffer keeps the most recent log entries. It is safe for concurrent use.
type RingBuffer struct {
	mu      sync.RWMutex
	entries []AppLogEntry
	next    int
	full    bool
}

// NewRingBuffer creates a buffer holding size entries.
func NewRingBuffer(size int) *RingBuffer {
	if size <= 0 {
		size = 1
	}
	return &RingBuffer{entries: make([]AppLogEntry, size)}
}

// Add appends an entry, overwriting the oldest when full.
func (rb *RingBuffer) Add(entry AppLogEntry) {
	rb.mu.Lock()
	defer rb.mu.Unlock()
	rb.entries[rb.next] = entry
	rb.next++
	if rb.next == len(rb.entries) {
		rb.next, rb.full = 0, true
	}
}

// snapshot returns the entries oldest first. Callers hold the read lock.
func (rb *RingBuffer) snapshot() []AppLogEntry {
	if !rb.full {
		return append([]AppLogEntry(nil), rb.entries[:rb.next]...)
	}
	out := make([]AppLogEntry, 0, len(rb.entries))
	out = append(out, rb.entries[rb.next:]...)
	return append(out, rb.entries[:rb.next]...)
}

// GetLast returns the last n entries oldest first; n <= 0 returns all.
func (rb *RingBuffer) GetLast(n int) []AppLogEntry {
	return rb.Query(LogQuery{Limit: n})
}

// Query returns the newest matching entries, oldest first.
func (rb *RingBuffer) Query(q LogQuery) []AppLogEntry {
	rb.mu.RLock()
	all := rb.snapshot()
	rb.mu.RUnlock()

	min := levelRank[strings.ToLower(q.MinLevel)]
	out := all[:0]
	for _, e := range all {
		if q.Source != "" && e.Source != q.Source {
			continue
		}
		if levelRank[e.Level] < min {
			continue
		}
		out = append(out, e)
	}
	if q.Limit > 0 && len(out) > q.Limit {
		out = out[len(out)-q.Limit:]
	}
	return out
}

// Count returns the number of buffered entries.
func (rb *RingBuffer) Count() int {
	rb.mu.RLock()
	defer rb.mu.RUnlock()
	if rb.full {
		return len(rb.entries)
	}
	return rb.next
}

// Clear drops every entry.
func (rb *RingBuffer) Clear() {
	rb.mu.Lock()
	defer rb.mu.Unlock()
	rb.next, rb.full = 0, false
}

var (
	appLogBuffer *RingBuffer
	bufferOnce   sync.Once
)

// GetAppLogBuffer returns the process-wide buffer every Logger feeds.
func GetAppLogBuffer() *RingBuffer {
	bufferOnce.Do(func() {
		appLogBuffer = NewRingBuffer(DefaultBufferSize)
	})
	return appLogBuffer
}

// LevelFromSlog converts slog.Level to string
func LevelFromSlog(level slog.Level) string {
	switch {
	case level <= slog.LevelDebug:
		return "debug"
	case level <= slog.LevelInfo:
		return "info"
	case level <= slog.LevelWarn:
		return "warn"
	default:
		return "error"
	}
}

// captureHandler mirrors every record it passes on into a RingBuffer. The
// "component" attribute becomes the entry's Source.
type captureHandler struct {
	next  slog.Handler
	buf   *RingBuffer
	attrs []slog.Attr
}

func newCaptureHandler(next slog.Handler, buf *RingBuffer) slog.Handler {
	return &captureHandler{next: next, buf: buf}
}

func (h *captureHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.next.Enabled(ctx, level)
}

func (h *captureHandler) Handle(ctx context.Context, r slog.Record) error {
	entry := AppLogEntry{
		Timestamp: r.Time,
		Level:     LevelFromSlog(r.Level),
		Source:    "system",
		Message:   r.Message,
	}
	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now()
	}
	add := func(a slog.Attr) bool {
		if a.Key == "component" {
			entry.Source = strings.ToLower(a.Value.String())
			return true
		}
		if entry.Extra == nil {
			entry.Extra = make(map[string]string)
		}
		entry.Extra[a.Key] = a.Value.String()
		return true
	}
	for _, a := range h.attrs {
		add(a)
	}
	r.Attrs(add)
	h.buf.Add(entry)

	return h.next.Handle(ctx, r)
}

func (h *captureHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	merged := make([]slog.Attr, 0, len(h.attrs)+len(attrs))
	merged = append(merged, h.attrs...)
	merged = append(merged, attrs...)
	return &captureHandler{next: h.next.WithAttrs(attrs), buf: h.buf, attrs: merged}
}

func (h *captureHandler) WithGroup(name string) slog.Handler {
	return &captureHandler{next: h.next.WithGroup(name), buf: h.buf, attrs: h.attrs}
}
