// RPC request and reply types.
//
// All RPC types follow the pattern:
//   - Request: {MethodName}Args
//   - Response: {MethodName}Reply
//
// Empty is used for methods with no arguments. Replies embed Result instead
// of returning an error from the handler, so failures keep their codes.
package ctlplane

import (
	"errors"
	"slices"
	"strings"

	"grimm.is/wlanctl/internal/brand"
	"grimm.is/wlanctl/internal/driver"
	"grimm.is/wlanctl/internal/lifecycle"
	"grimm.is/wlanctl/internal/network"
	"grimm.is/wlanctl/internal/supplicant"
	"grimm.is/wlanctl/internal/wifi"
)

// SocketPath is the default control socket.
var SocketPath = brand.GetSocketPath()

// LockPath is the default single-instance lock file.
var LockPath = brand.GetLockPath()

// Empty is used for methods with no arguments or no reply payload.
type Empty struct{}

// Result is embedded in every reply that can fail.
type Result struct {
	Error string
	Codes []string
}

// Err rebuilds the error carried by r, or nil.
func (r Result) Err() error {
	if r.Error == "" {
		return nil
	}
	return &RemoteError{Msg: r.Error, Codes: r.Codes}
}

func (r *Result) set(err error) {
	if err == nil {
		return
	}
	r.Error = err.Error()
	r.Codes = errorCodes(err)
}

type RoleArgs struct {
	Role string
}

type ResultReply struct {
	Result
}

type ConnectReply struct {
	Result
	Session string
}

type DisconnectArgs struct {
	// Wait for the daemon to report stopped after closing.
	Wait bool
}

type CommandArgs struct {
	Command string
}

type CommandReply struct {
	Result
	Reply string
}

type StatusReply struct {
	Status wifi.Status
}

type DHCPRequestReply struct {
	Result
	Lease network.LeaseInfo
}

// Codes maps wire names to the sentinel errors they stand for.
var Codes = map[string]error{
	"not_connected":     supplicant.ErrNotConnected,
	"not_running":       supplicant.ErrNotRunning,
	"command_timeout":   supplicant.ErrCommandTimeout,
	"command_failed":    supplicant.ErrCommandFailed,
	"start_failed":      lifecycle.ErrStartFailed,
	"stop_failed":       lifecycle.ErrStopFailed,
	"lifecycle_timeout": lifecycle.ErrTimeout,
	"unknown_role":      lifecycle.ErrUnknownRole,
	"driver_busy":       driver.ErrDriverBusy,
	"no_driver":         wifi.ErrNoDriver,
}

func errorCodes(err error) []string {
	var codes []string
	for name, sentinel := range Codes {
		if errors.Is(err, sentinel) {
			codes = append(codes, name)
		}
	}
	slices.Sort(codes)
	return codes
}

// RemoteError is an error returned by the server.
type RemoteError struct {
	Msg   string
	Codes []string
}

func (e *RemoteError) Error() string { return e.Msg }

// Is matches the sentinels named by the error's codes.
func (e *RemoteError) Is(target error) bool {
	for _, c := range e.Codes {
		if Codes[c] == target {
			return true
		}
	}
	return false
}

// HasCode reports whether the error carries the named code.
func (e *RemoteError) HasCode(code string) bool {
	for _, c := range e.Codes {
		if strings.EqualFold(c, code) {
			return true
		}
	}
	return false
}
