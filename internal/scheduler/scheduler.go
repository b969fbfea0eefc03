// Package scheduler runs the periodic maintenance jobs of "wlanctl serve".
//
// Jobs are checked once per tick against the injected clock, so a test can
// jump a MockClock forward and watch due jobs fire. A job never overlaps
// itself: a run that is still in progress when the job comes due again is
// skipped, and the next run is planned from when it finishes.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"grimm.is/wlanctl/internal/clock"
	"grimm.is/wlanctl/internal/logging"
)

var (
	ErrTaskNotFound = errors.New("task not found")
	ErrTaskExists   = errors.New("task already exists")
	ErrNotRunning   = errors.New("scheduler not running")
)

// TaskFunc does the work. ctx ends on Stop or when the task's Timeout passes.
type TaskFunc func(ctx context.Context) error

// Schedule answers when a job is next due.
type Schedule interface {
	Next(after time.Time) time.Time
}

// Task describes a job. Only ID, Schedule and Func are required.
type Task struct {
	ID          string
	Name        string
	Description string
	Schedule    Schedule
	Func        TaskFunc
	Enabled     bool
	RunOnStart  bool
	Timeout     time.Duration
}

func (t *Task) validate() error {
	var missing []string
	if t.ID == "" {
		missing = append(missing, "id")
	}
	if t.Schedule == nil {
		missing = append(missing, "schedule")
	}
	if t.Func == nil {
		missing = append(missing, "func")
	}
	if len(missing) > 0 {
		return fmt.Errorf("task %q: missing %s", t.ID, strings.Join(missing, ", "))
	}
	return nil
}

// TaskStatus is a snapshot of one job for /api/tasks.
type TaskStatus struct {
	ID           string        `json:"id"`
	Name         string        `json:"name"`
	Description  string        `json:"description"`
	Enabled      bool          `json:"enabled"`
	Running      bool          `json:"running"`
	LastRun      time.Time     `json:"last_run,omitempty"`
	LastDuration time.Duration `json:"last_duration,omitempty"`
	LastError    string        `json:"last_error,omitempty"`
	NextRun      time.Time     `json:"next_run,omitempty"`
	RunCount     int64         `json:"run_count"`
	ErrorCount   int64         `json:"error_count"`
}

// job is a Task plus its run bookkeeping. Fields are guarded by Scheduler.mu.
type job struct {
	task    *Task
	due     time.Time // zero while disabled
	active  context.CancelFunc
	lastRun time.Time
	lastDur time.Duration
	lastErr string
	runs    int64
	fails   int64
}

func (j *job) status() TaskStatus {
	return TaskStatus{
		ID:           j.task.ID,
		Name:         j.task.Name,
		Description:  j.task.Description,
		Enabled:      j.task.Enabled,
		Running:      j.active != nil,
		LastRun:      j.lastRun,
		LastDuration: j.lastDur,
		LastError:    j.lastErr,
		NextRun:      j.due,
		RunCount:     j.runs,
		ErrorCount:   j.fails,
	}
}

// Scheduler owns a set of jobs and the goroutine that fires them.
type Scheduler struct {
	logger *logging.Logger
	clock  clock.Clock
	tick   time.Duration

	mu   sync.Mutex
	jobs map[string]*job
	life context.Context // nil while stopped
	stop context.CancelFunc
	wg   sync.WaitGroup
}

// New creates a stopped scheduler. Nil arguments use the defaults.
func New(logger *logging.Logger, clk clock.Clock) *Scheduler {
	if logger == nil {
		logger = logging.Default()
	}
	if clk == nil {
		clk = clock.Default
	}
	return &Scheduler{
		logger: logger.WithComponent("scheduler"),
		clock:  clk,
		tick:   time.Second,
		jobs:   make(map[string]*job),
	}
}

// lookup returns the job for id. s.mu is held.
func (s *Scheduler) lookup(id string) (*job, error) {
	j, ok := s.jobs[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrTaskNotFound, id)
	}
	return j, nil
}

// plan sets the next due time from now, or clears it for a disabled job.
func (s *Scheduler) plan(j *job) {
	j.due = time.Time{}
	if j.task.Enabled {
		j.due = j.task.Schedule.Next(s.clock.Now())
	}
}

// AddTask registers a job. IDs are unique.
func (s *Scheduler) AddTask(task *Task) error {
	if err := task.validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.jobs[task.ID]; ok {
		return fmt.Errorf("%w: %s", ErrTaskExists, task.ID)
	}
	j := &job{task: task}
	s.plan(j)
	s.jobs[task.ID] = j
	s.logger.Debug("task added", "id", task.ID, "next_run", j.due)
	return nil
}

// RemoveTask drops a job and cancels its current run, if any.
func (s *Scheduler) RemoveTask(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	j, err := s.lookup(id)
	if err != nil {
		return err
	}
	if j.active != nil {
		j.active()
	}
	delete(s.jobs, id)
	return nil
}

// EnableTask turns scheduled runs of a job on or off. RunTask still works on
// a disabled job.
func (s *Scheduler) EnableTask(id string, enabled bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	j, err := s.lookup(id)
	if err != nil {
		return err
	}
	j.task.Enabled = enabled
	s.plan(j)
	return nil
}

// RunTask fires a job now, outside its schedule.
func (s *Scheduler) RunTask(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	j, err := s.lookup(id)
	if err != nil {
		return err
	}
	if s.life == nil {
		return ErrNotRunning
	}
	s.fire(j)
	return nil
}

// Status returns every job sorted by name.
func (s *Scheduler) Status() []TaskStatus {
	s.mu.Lock()
	out := make([]TaskStatus, 0, len(s.jobs))
	for _, j := range s.jobs {
		out = append(out, j.status())
	}
	s.mu.Unlock()
	slices.SortFunc(out, func(a, b TaskStatus) int { return strings.Compare(a.Name, b.Name) })
	return out
}

// TaskStatus returns one job's status.
func (s *Scheduler) TaskStatus(id string) (TaskStatus, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	j, ok := s.jobs[id]
	if !ok {
		return TaskStatus{}, false
	}
	return j.status(), true
}

// Start fires RunOnStart jobs and begins ticking. Starting twice is a no-op.
func (s *Scheduler) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.life != nil {
		return
	}
	s.life, s.stop = context.WithCancel(context.Background())
	for _, j := range s.jobs {
		if j.task.Enabled && j.task.RunOnStart {
			s.fire(j)
		}
	}
	s.wg.Add(1)
	go s.loop(s.life)
	s.logger.Debug("scheduler started", "tasks", len(s.jobs))
}

// Stop cancels in-flight runs and waits for them to return.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if s.life == nil {
		s.mu.Unlock()
		return
	}
	s.stop()
	s.life, s.stop = nil, nil
	s.mu.Unlock()

	s.wg.Wait()
	s.logger.Debug("scheduler stopped")
}

// IsRunning reports whether Start was called without a matching Stop.
func (s *Scheduler) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.life != nil
}

func (s *Scheduler) loop(ctx context.Context) {
	defer s.wg.Done()
	t := time.NewTicker(s.tick)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			s.fireDue(s.clock.Now())
		}
	}
}

// fireDue starts every enabled job whose due time has been reached.
func (s *Scheduler) fireDue(now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.life == nil {
		return
	}
	for _, j := range s.jobs {
		if !j.due.IsZero() && !now.Before(j.due) {
			s.fire(j)
		}
	}
}

// fire starts one run of j unless it is already running. s.mu is held and
// the scheduler is started.
func (s *Scheduler) fire(j *job) {
	if j.active != nil {
		return
	}
	var (
		ctx    context.Context
		cancel context.CancelFunc
	)
	if j.task.Timeout > 0 {
		ctx, cancel = context.WithTimeout(s.life, j.task.Timeout)
	} else {
		ctx, cancel = context.WithCancel(s.life)
	}
	j.active = cancel

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer cancel()

		start := s.clock.Now()
		err := invoke(ctx, j.task.Func)
		s.finish(j, start, s.clock.Since(start), err)
	}()
}

func (s *Scheduler) finish(j *job, start time.Time, took time.Duration, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	j.active = nil
	j.lastRun, j.lastDur = start, took
	j.runs++
	j.lastErr = ""
	if err != nil {
		j.lastErr = err.Error()
		j.fails++
		s.logger.Warn("task failed", "id", j.task.ID, "error", err, "duration", took)
	} else {
		s.logger.Debug("task completed", "id", j.task.ID, "duration", took)
	}
	s.plan(j)
}

// invoke runs fn, reporting a panic as an error.
func invoke(ctx context.Context, fn TaskFunc) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("task panicked: %v", r)
		}
	}()
	return fn(ctx)
}
