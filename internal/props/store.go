// Package props provides the system property store and the service control
// primitives the daemon lifecycle is built on.
//
// A property is a string value with a serial that changes on every write.
// Serials let callers tell a restarted daemon from one that never left its
// previous state.
package props

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"grimm.is/wlanctl/internal/clock"
)

// Common errors
var (
	ErrStoreClosed = errors.New("property store is closed")
	ErrEmptyKey    = errors.New("property key is empty")
)

// Status values written to daemon status keys.
const (
	StatusRunning = "running"
	StatusStopped = "stopped"
)

// Entry is a stored property with its metadata.
type Entry struct {
	Value     string    `json:"value"`
	Serial    uint64    `json:"serial"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Change is emitted to subscribers after each write.
type Change struct {
	Key    string `json:"key"`
	Value  string `json:"value"`
	Serial uint64 `json:"serial"`
}

// StatusReader reads a property together with its serial.
type StatusReader interface {
	Get(key string) (value string, serial uint64, ok bool)
}

// Store is a readable and writable property store.
type Store interface {
	StatusReader
	Set(key, value string) error
	List() (map[string]Entry, error)
	Subscribe(ctx context.Context) <-chan Change
	Close() error
}

// notifier fans changes out to subscribers without blocking writers.
type notifier struct {
	mu     sync.RWMutex
	subs   map[uint64]chan Change
	nextID uint64
}

func (n *notifier) subscribe(ctx context.Context) <-chan Change {
	ch := make(chan Change, 64)

	n.mu.Lock()
	if n.subs == nil {
		n.subs = make(map[uint64]chan Change)
	}
	id := n.nextID
	n.nextID++
	n.subs[id] = ch
	n.mu.Unlock()

	go func() {
		<-ctx.Done()
		n.mu.Lock()
		if c, ok := n.subs[id]; ok {
			delete(n.subs, id)
			close(c)
		}
		n.mu.Unlock()
	}()
	return ch
}

func (n *notifier) notify(c Change) {
	n.mu.RLock()
	defer n.mu.RUnlock()
	for _, ch := range n.subs {
		select {
		case ch <- c:
		default:
			// Slow subscriber, drop
		}
	}
}

func (n *notifier) closeAll() {
	n.mu.Lock()
	defer n.mu.Unlock()
	for id, ch := range n.subs {
		close(ch)
		delete(n.subs, id)
	}
}

// MemoryStore is an in-process Store.
type MemoryStore struct {
	mu      sync.RWMutex
	entries map[string]Entry
	serial  uint64
	closed  bool
	clock   clock.Clock
	notifier
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		entries: make(map[string]Entry),
		clock:   clock.Default,
	}
}

// Get returns the value and serial for key.
func (m *MemoryStore) Get(key string) (string, uint64, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.entries[key]
	return e.Value, e.Serial, ok
}

// Set stores value under key with a fresh serial.
func (m *MemoryStore) Set(key, value string) error {
	if key == "" {
		return ErrEmptyKey
	}
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return ErrStoreClosed
	}
	m.serial++
	e := Entry{Value: value, Serial: m.serial, UpdatedAt: m.clock.Now()}
	m.entries[key] = e
	m.mu.Unlock()

	m.notify(Change{Key: key, Value: value, Serial: e.Serial})
	return nil
}

// List returns a copy of all entries.
func (m *MemoryStore) List() (map[string]Entry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(map[string]Entry, len(m.entries))
	for k, v := range m.entries {
		out[k] = v
	}
	return out, nil
}

// Subscribe streams changes until ctx is done or the store is closed.
func (m *MemoryStore) Subscribe(ctx context.Context) <-chan Change {
	return m.subscribe(ctx)
}

// Close marks the store closed and ends subscriptions.
func (m *MemoryStore) Close() error {
	m.mu.Lock()
	m.closed = true
	m.mu.Unlock()
	m.closeAll()
	return nil
}

// SortedKeys returns the keys of entries in lexical order.
func SortedKeys(entries map[string]Entry) []string {
	keys := make([]string, 0, len(entries))
	for k := range entries {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
