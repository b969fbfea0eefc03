// Package health runs named component checks for the API health endpoint.
package health

import (
	"context"
	"fmt"
	"maps"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"grimm.is/wlanctl/internal/clock"
)

// Status is the outcome of a check. Overall status is the worst of all checks.
type Status string

const (
	StatusHealthy   Status = "healthy"
	StatusDegraded  Status = "degraded"
	StatusUnhealthy Status = "unhealthy"
)

func (s Status) rank() int {
	switch s {
	case StatusHealthy:
		return 0
	case StatusDegraded:
		return 1
	default:
		return 2
	}
}

// worse returns whichever of s and o is less healthy.
func (s Status) worse(o Status) Status {
	if o.rank() > s.rank() {
		return o
	}
	return s
}

// DefaultTTL is how long a report is served from cache.
const DefaultTTL = 5 * time.Second

// CheckTimeout bounds a single check.
const CheckTimeout = 3 * time.Second

// Check is one component's result.
type Check struct {
	Name        string        `json:"name"`
	Status      Status        `json:"status"`
	Message     string        `json:"message,omitempty"`
	LastChecked time.Time     `json:"last_checked"`
	Duration    time.Duration `json:"duration_ms"`
}

type Report struct {
	Status    Status           `json:"status"`
	Checks    map[string]Check `json:"checks"`
	Timestamp time.Time        `json:"timestamp"`
}

// Names returns the check names in sorted order.
func (r Report) Names() []string {
	names := make([]string, 0, len(r.Checks))
	for name := range r.Checks {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

type CheckFunc func(ctx context.Context) Check

// Checker runs registered checks concurrently and caches the report.
type Checker struct {
	clock clock.Clock
	ttl   time.Duration

	mu     sync.Mutex
	checks map[string]CheckFunc
	last   *Report
}

// NewChecker creates an empty checker. A nil clock uses clock.Default.
func NewChecker(clk clock.Clock) *Checker {
	if clk == nil {
		clk = clock.Default
	}
	return &Checker{clock: clk, ttl: DefaultTTL, checks: make(map[string]CheckFunc)}
}

// Register adds or replaces a named check and drops the cached report.
func (c *Checker) Register(name string, fn CheckFunc) {
	c.mu.Lock()
	c.checks[name] = fn
	c.last = nil
	c.mu.Unlock()
}

// Check returns the cached report while it is younger than the TTL,
// otherwise runs every check.
func (c *Checker) Check(ctx context.Context) Report {
	c.mu.Lock()
	if c.last != nil && c.clock.Since(c.last.Timestamp) < c.ttl {
		r := *c.last
		c.mu.Unlock()
		return r
	}
	fns := maps.Clone(c.checks)
	c.mu.Unlock()

	results := make(chan Check, len(fns))
	var wg sync.WaitGroup
	for name, fn := range fns {
		wg.Go(func() { results <- c.run(ctx, name, fn) })
	}
	wg.Wait()
	close(results)

	report := Report{Status: StatusHealthy, Checks: make(map[string]Check, len(fns))}
	for chk := range results {
		report.Checks[chk.Name] = chk
		report.Status = report.Status.worse(chk.Status)
	}
	report.Timestamp = c.clock.Now()

	c.mu.Lock()
	c.last = &report
	c.mu.Unlock()
	return report
}

func (c *Checker) run(ctx context.Context, name string, fn CheckFunc) Check {
	ctx, cancel := context.WithTimeout(ctx, CheckTimeout)
	defer cancel()

	start := c.clock.Now()
	chk := fn(ctx)
	chk.Name = name
	if chk.LastChecked.IsZero() {
		chk.LastChecked = start
	}
	if chk.Duration == 0 {
		chk.Duration = c.clock.Since(start)
	}
	return chk
}

// Pinger is satisfied by *sql.DB and *audit.Store.
type Pinger interface {
	PingContext(ctx context.Context) error
}

// CheckDB reports unhealthy when db does not answer a ping.
func CheckDB(db Pinger) CheckFunc {
	return func(ctx context.Context) Check {
		if err := db.PingContext(ctx); err != nil {
			return Check{Status: StatusUnhealthy, Message: fmt.Sprintf("ping failed: %v", err)}
		}
		return Check{Status: StatusHealthy, Message: "database reachable"}
	}
}

// CheckWritableDir verifies files can be created in dir.
func CheckWritableDir(dir string) CheckFunc {
	return func(ctx context.Context) Check {
		f, err := os.CreateTemp(dir, ".probe-*")
		if err != nil {
			return Check{Status: StatusDegraded, Message: fmt.Sprintf("%s not writable: %v", dir, err)}
		}
		f.Close()
		os.Remove(f.Name())
		return Check{Status: StatusHealthy, Message: filepath.Clean(dir) + " writable"}
	}
}
