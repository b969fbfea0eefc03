// Package stats keeps short sliding windows of event rates for the API's
// sparklines. A Collector samples monotonic counters on an interval and
// stores per-second rates.
package stats

import (
	"context"
	"sort"
	"sync"
	"time"

	"grimm.is/wlanctl/internal/clock"
	"grimm.is/wlanctl/internal/logging"
)

// DefaultCapacity is 60 points: two minutes at the default interval.
const (
	DefaultCapacity = 60
	DefaultInterval = 2 * time.Second
)

// RingBuffer holds a sliding window of data points.
type RingBuffer struct {
	data     []float64
	head     int
	capacity int
	isFull   bool
}

// NewRingBuffer creates a ring buffer holding size points.
func NewRingBuffer(size int) *RingBuffer {
	if size <= 0 {
		size = DefaultCapacity
	}
	return &RingBuffer{data: make([]float64, size), capacity: size}
}

// Add inserts a value, overwriting the oldest if full.
func (r *RingBuffer) Add(val float64) {
	r.data[r.head] = val
	r.head = (r.head + 1) % r.capacity
	if r.head == 0 {
		r.isFull = true
	}
}

// Snapshot returns the data ordered oldest to newest.
func (r *RingBuffer) Snapshot() []float64 {
	result := make([]float64, 0, r.capacity)
	if r.isFull {
		result = append(result, r.data[r.head:]...)
	}
	return append(result, r.data[:r.head]...)
}

// Len returns the number of points currently held.
func (r *RingBuffer) Len() int {
	if r.isFull {
		return r.capacity
	}
	return r.head
}

// CounterFetcher returns monotonic counters keyed by series name.
type CounterFetcher interface {
	FetchCounters() (map[string]uint64, error)
}

// Series is one named rate window.
type Series struct {
	Name   string    `json:"name"`
	Total  uint64    `json:"total"`
	Points []float64 `json:"points"` // per-second rates, oldest first
}

// Collector samples a CounterFetcher and keeps a rate window per series.
type Collector struct {
	mu       sync.RWMutex
	buffers  map[string]*RingBuffer
	lastRaw  map[string]uint64
	lastAt   time.Time
	interval time.Duration
	capacity int
	fetcher  CounterFetcher
	clock    clock.Clock
	logger   *logging.Logger

	cancel context.CancelFunc
	done   chan struct{}
}

// CollectorOption configures the Collector.
type CollectorOption func(*Collector)

// WithCapacity sets the window size in points.
func WithCapacity(n int) CollectorOption {
	return func(c *Collector) { c.capacity = n }
}

// WithClock replaces the wall clock, for tests.
func WithClock(clk clock.Clock) CollectorOption {
	return func(c *Collector) { c.clock = clk }
}

// WithLogger sets the logger for fetch failures.
func WithLogger(l *logging.Logger) CollectorOption {
	return func(c *Collector) { c.logger = l }
}

// NewCollector creates a collector sampling fetcher every interval.
func NewCollector(fetcher CounterFetcher, interval time.Duration, opts ...CollectorOption) *Collector {
	if interval <= 0 {
		interval = DefaultInterval
	}
	c := &Collector{
		buffers:  make(map[string]*RingBuffer),
		lastRaw:  make(map[string]uint64),
		interval: interval,
		capacity: DefaultCapacity,
		fetcher:  fetcher,
		clock:    clock.Default,
		logger:   logging.WithComponent("stats"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Start begins sampling in the background. Calling it twice is a no-op.
func (c *Collector) Start() {
	c.mu.Lock()
	if c.cancel != nil {
		c.mu.Unlock()
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	c.cancel = cancel
	c.done = make(chan struct{})
	done := c.done
	c.mu.Unlock()

	go func() {
		defer close(done)
		ticker := time.NewTicker(c.interval)
		defer ticker.Stop()
		c.tick()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				c.tick()
			}
		}
	}()
}

// Stop halts sampling and waits for the sampler to exit.
func (c *Collector) Stop() {
	c.mu.Lock()
	cancel, done := c.cancel, c.done
	c.cancel, c.done = nil, nil
	c.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	<-done
}

// Sparkline returns the rate window for one series, empty if unknown.
func (c *Collector) Sparkline(name string) []float64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if buf, ok := c.buffers[name]; ok {
		return buf.Snapshot()
	}
	return []float64{}
}

// All returns every series sorted by name.
func (c *Collector) All() []Series {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make([]Series, 0, len(c.buffers))
	for name, buf := range c.buffers {
		out = append(out, Series{Name: name, Total: c.lastRaw[name], Points: buf.Snapshot()})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// tick performs one sampling cycle. The first sample only sets the
// baseline; a series that appears later is counted from zero. Rates divide by
// the time since the previous sample.
func (c *Collector) tick() {
	if c.fetcher == nil {
		return
	}
	counters, err := c.fetcher.FetchCounters()
	if err != nil {
		c.logger.Debug("counter fetch failed", "error", err)
		return
	}
	now := c.clock.Now()

	c.mu.Lock()
	defer c.mu.Unlock()

	first := c.lastAt.IsZero()
	seconds := c.interval.Seconds()
	if !first {
		if elapsed := now.Sub(c.lastAt).Seconds(); elapsed > 0 {
			seconds = elapsed
		}
	}
	c.lastAt = now

	for name, current := range counters {
		buf, ok := c.buffers[name]
		if !ok {
			buf = NewRingBuffer(c.capacity)
			c.buffers[name] = buf
		}
		if first {
			c.lastRaw[name] = current
			continue
		}
		prev := c.lastRaw[name]
		delta := current
		if current >= prev {
			delta = current - prev
		}
		buf.Add(float64(delta) / seconds)
		c.lastRaw[name] = current
	}
}

// Reset clears every series.
func (c *Collector) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.buffers = make(map[string]*RingBuffer)
	c.lastRaw = make(map[string]uint64)
	c.lastAt = time.Time{}
}
