package props

import (
	"fmt"
	"strconv"
	"strings"

	"grimm.is/wlanctl/internal/logging"
	"grimm.is/wlanctl/internal/network"
)

// Service control actions.
const (
	ActionStart = "start"
	ActionStop  = "stop"
)

// StatusKeyPrefix is the property namespace for daemon status keys.
const StatusKeyPrefix = "init.svc."

// ServiceControl asks the platform's init system to start or stop a daemon.
type ServiceControl interface {
	Signal(name, action string) error
}

func checkAction(action string) error {
	if action != ActionStart && action != ActionStop {
		return fmt.Errorf("unknown service action %q", action)
	}
	return nil
}

// PropertyControl signals the init system by writing ctl.start / ctl.stop,
// the way an Android-style init watches for them.
type PropertyControl struct {
	store Store
}

// NewPropertyControl creates a property-backed ServiceControl.
func NewPropertyControl(store Store) *PropertyControl {
	return &PropertyControl{store: store}
}

// Signal writes the daemon name to ctl.<action>.
func (p *PropertyControl) Signal(name, action string) error {
	if err := checkAction(action); err != nil {
		return err
	}
	return p.store.Set("ctl."+action, name)
}

// SystemdControl starts and stops daemons as systemd units.
type SystemdControl struct {
	exec   network.CommandExecutor
	suffix string
	logger *logging.Logger
}

// NewSystemdControl creates a systemctl-backed ServiceControl.
// The unit name is the daemon name plus suffix (usually ".service").
func NewSystemdControl(exec network.CommandExecutor, suffix string) *SystemdControl {
	if exec == nil {
		exec = network.DefaultCommandExecutor
	}
	return &SystemdControl{exec: exec, suffix: suffix, logger: logging.WithComponent("lifecycle")}
}

// Signal runs systemctl --no-block <action> <unit>.
func (s *SystemdControl) Signal(name, action string) error {
	if err := checkAction(action); err != nil {
		return err
	}
	unit := name + s.suffix
	s.logger.Debug("systemctl", "action", action, "unit", unit)
	_, err := s.exec.RunCommand("systemctl", "--no-block", action, unit)
	return err
}

// SystemdStatus answers daemon status keys from systemd unit state.
// Keys outside StatusKeyPrefix are read from the fallback reader.
//
// The serial is ExecMainStartTimestampMonotonic, which changes on every
// start of the unit.
type SystemdStatus struct {
	exec     network.CommandExecutor
	suffix   string
	fallback StatusReader
}

// NewSystemdStatus creates a systemd-backed StatusReader.
func NewSystemdStatus(exec network.CommandExecutor, suffix string, fallback StatusReader) *SystemdStatus {
	if exec == nil {
		exec = network.DefaultCommandExecutor
	}
	return &SystemdStatus{exec: exec, suffix: suffix, fallback: fallback}
}

// Get implements StatusReader.
func (s *SystemdStatus) Get(key string) (string, uint64, bool) {
	name, ok := strings.CutPrefix(key, StatusKeyPrefix)
	if !ok {
		if s.fallback == nil {
			return "", 0, false
		}
		return s.fallback.Get(key)
	}

	out, err := s.exec.RunCommand("systemctl", "show",
		"--property=ActiveState,ExecMainStartTimestampMonotonic", name+s.suffix)
	if err != nil {
		return "", 0, false
	}

	var state string
	var serial uint64
	for _, line := range strings.Split(out, "\n") {
		k, v, found := strings.Cut(strings.TrimSpace(line), "=")
		if !found {
			continue
		}
		switch k {
		case "ActiveState":
			state = v
		case "ExecMainStartTimestampMonotonic":
			serial, _ = strconv.ParseUint(v, 10, 64)
		}
	}
	if state == "" {
		return "", 0, false
	}
	return unitStatus(state), serial, true
}

func unitStatus(activeState string) string {
	switch activeState {
	case "active":
		return StatusRunning
	case "inactive", "failed":
		return StatusStopped
	}
	// activating, deactivating, reloading: still in transition
	return activeState
}

// Open returns the Store, StatusReader and ServiceControl for the given
// backends. The status reader is the store itself unless systemd backs
// service control.
func Open(propBackend, path, serviceBackend, unitSuffix string, exec network.CommandExecutor) (Store, StatusReader, ServiceControl, error) {
	var store Store
	switch propBackend {
	case "memory":
		store = NewMemoryStore()
	case "sqlite", "":
		s, err := NewSQLiteStore(DefaultOptions(path))
		if err != nil {
			return nil, nil, nil, err
		}
		store = s
	default:
		return nil, nil, nil, fmt.Errorf("unknown property backend %q", propBackend)
	}

	switch serviceBackend {
	case "systemd":
		return store, NewSystemdStatus(exec, unitSuffix, store), NewSystemdControl(exec, unitSuffix), nil
	case "property", "":
		return store, store, NewPropertyControl(store), nil
	default:
		store.Close()
		return nil, nil, nil, fmt.Errorf("unknown service backend %q", serviceBackend)
	}
}
