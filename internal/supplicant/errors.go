package supplicant

import (
	"errors"
	"fmt"
)

var (
	// ErrNotConnected is returned when no session is open.
	ErrNotConnected = errors.New("not connected to supplicant")
	// ErrNotRunning is the cause of a status-stage ConnectError.
	ErrNotRunning = errors.New("supplicant not running")
	// ErrCommandTimeout is returned when the daemon did not reply in time.
	// The session's event reader is cancelled as a side effect.
	ErrCommandTimeout = errors.New("command timed out")
	// ErrCommandFailed covers transport errors and FAIL replies.
	ErrCommandFailed = errors.New("command failed")
)

// Connect stages reported by ConnectError.
const (
	StageStatus     = "status"
	StageOpen       = "open"
	StageMonitor    = "monitor"
	StageAttach     = "attach"
	StageSocketpair = "socketpair"
)

// ConnectError describes which step of Connect failed. Nothing opened
// before the failing step survives it.
type ConnectError struct {
	Stage string
	Path  string
	Err   error
}

func (e *ConnectError) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("connect %s: %v", e.Stage, e.Err)
	}
	return fmt.Sprintf("connect %s %s: %v", e.Stage, e.Path, e.Err)
}

func (e *ConnectError) Unwrap() error {
	return e.Err
}
