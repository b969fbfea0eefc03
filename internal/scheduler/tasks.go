package scheduler

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"grimm.is/wlanctl/internal/clock"
	"grimm.is/wlanctl/internal/health"
	"grimm.is/wlanctl/internal/logging"
	"grimm.is/wlanctl/internal/props"
)

// Pruner deletes expired rows. *audit.Store implements it.
type Pruner interface {
	Prune() (int64, error)
}

// PropertyLister snapshots the property store. Every props.Store implements it.
type PropertyLister interface {
	List() (map[string]props.Entry, error)
}

const snapshotPrefix = "props_"

// NewAuditPruneTask prunes the audit trail at startup and every night.
func NewAuditPruneTask(p Pruner, logger *logging.Logger) *Task {
	return &Task{
		ID:          "audit-prune",
		Name:        "Audit Prune",
		Description: "Remove audit events past their retention",
		Schedule:    Daily(3, 0),
		Enabled:     true,
		RunOnStart:  true,
		Timeout:     time.Minute,
		Func: func(ctx context.Context) error {
			n, err := p.Prune()
			if err != nil {
				return err
			}
			if n > 0 {
				logger.Info("pruned audit trail", "removed", n)
			}
			return nil
		},
	}
}

// NewHealthWatchTask runs the health checks every interval and logs each
// change of the overall status.
func NewHealthWatchTask(checker *health.Checker, interval time.Duration, logger *logging.Logger) *Task {
	last := health.StatusHealthy
	return &Task{
		ID:          "health-watch",
		Name:        "Health Watch",
		Description: "Log component health transitions",
		Schedule:    Every(interval),
		Enabled:     true,
		RunOnStart:  true,
		Timeout:     30 * time.Second,
		Func: func(ctx context.Context) error {
			report := checker.Check(ctx)
			if report.Status == last {
				return nil
			}
			var failing []string
			for _, name := range report.Names() {
				if c := report.Checks[name]; c.Status != health.StatusHealthy {
					failing = append(failing, name+": "+c.Message)
				}
			}
			args := []any{"from", last, "to", report.Status}
			if len(failing) > 0 {
				args = append(args, "checks", strings.Join(failing, "; "))
			}
			if report.Status == health.StatusHealthy {
				logger.Info("health recovered", args...)
			} else {
				logger.Warn("health changed", args...)
			}
			last = report.Status
			return nil
		},
	}
}

// NewPropsSnapshotTask writes the property store to dir as JSON once a day
// and keeps the newest keep snapshots.
func NewPropsSnapshotTask(store PropertyLister, dir string, keep int) *Task {
	if keep <= 0 {
		keep = 7
	}
	return &Task{
		ID:          "props-snapshot",
		Name:        "Property Snapshot",
		Description: "Snapshot the property store",
		Schedule:    Daily(3, 30),
		Enabled:     true,
		Timeout:     time.Minute,
		Func: func(ctx context.Context) error {
			_, err := WritePropsSnapshot(store, dir, keep)
			return err
		},
	}
}

// WritePropsSnapshot writes one snapshot and prunes old ones. It returns the
// snapshot path.
func WritePropsSnapshot(store PropertyLister, dir string, keep int) (string, error) {
	entries, err := store.List()
	if err != nil {
		return "", fmt.Errorf("list properties: %w", err)
	}
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return "", fmt.Errorf("create snapshot directory: %w", err)
	}

	data, err := json.MarshalIndent(entries, "", "  ")
	if err != nil {
		return "", fmt.Errorf("encode properties: %w", err)
	}

	name := snapshotPrefix + clock.Now().UTC().Format("20060102T150405.000") + ".json"
	path := filepath.Join(dir, name)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o640); err != nil {
		return "", fmt.Errorf("write snapshot: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return "", fmt.Errorf("write snapshot: %w", err)
	}

	if err := pruneSnapshots(dir, keep); err != nil {
		logging.Warn("failed to prune old property snapshots", "dir", dir, "error", err)
	}
	return path, nil
}

// pruneSnapshots keeps the newest keep snapshots. Names sort by time.
func pruneSnapshots(dir string, keep int) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return err
	}

	var snapshots []string
	for _, e := range entries {
		if !e.IsDir() && strings.HasPrefix(e.Name(), snapshotPrefix) && filepath.Ext(e.Name()) == ".json" {
			snapshots = append(snapshots, e.Name())
		}
	}
	if len(snapshots) <= keep {
		return nil
	}
	sort.Strings(snapshots)

	for _, name := range snapshots[:len(snapshots)-keep] {
		if err := os.Remove(filepath.Join(dir, name)); err != nil {
			return err
		}
	}
	return nil
}
