package supplicant

import (
	"bytes"
	"errors"
	"fmt"
	"strings"
	"time"

	"grimm.is/wlanctl/internal/logging"
	"grimm.is/wlanctl/internal/metrics"
	"grimm.is/wlanctl/internal/wpactrl"
)

// ReplySize is the buffer size used by Request.
const ReplySize = 4096

var failMarker = []byte("FAIL")

// Send issues cmd on the command connection and copies the reply into reply.
// It returns the reply length.
//
// A timeout cancels the session's event reader as well, since a daemon that
// stopped answering commands is not going to deliver events either.
func (s *Session) Send(cmd string, reply []byte) (int, error) {
	if s == nil || s.ctrl == nil {
		logDropped(cmd)
		return 0, ErrNotConnected
	}

	s.cmdMu.Lock()
	defer s.cmdMu.Unlock()

	if s.Closed() {
		s.metrics.RecordCommand(cmd, metrics.ResultNotConnected, 0)
		s.logger.Debug("not connected, dropping command", "command", metrics.CommandVerb(cmd))
		return 0, ErrNotConnected
	}

	start := time.Now()
	n, err := s.ctrl.Request(cmd, reply, s.timeout, nil)
	elapsed := time.Since(start).Seconds()

	switch {
	case errors.Is(err, wpactrl.ErrTimeout):
		s.logger.Warn("command timed out", "command", metrics.CommandVerb(cmd), "timeout", s.timeout)
		s.interrupt()
		s.metrics.RecordCommand(cmd, metrics.ResultTimeout, elapsed)
		return 0, ErrCommandTimeout
	case err != nil:
		s.logger.Warn("command failed", "command", metrics.CommandVerb(cmd), "error", err)
		s.metrics.RecordCommand(cmd, metrics.ResultFail, elapsed)
		return 0, fmt.Errorf("%w: %w", ErrCommandFailed, err)
	}

	if bytes.HasPrefix(reply[:n], failMarker) {
		s.logger.Debug("command rejected", "command", metrics.CommandVerb(cmd))
		s.metrics.RecordCommand(cmd, metrics.ResultFail, elapsed)
		return n, fmt.Errorf("%w: %s", ErrCommandFailed, strings.TrimSpace(string(reply[:n])))
	}

	if strings.HasPrefix(cmd, "PING") && n < len(reply) {
		reply[n] = 0
	}
	s.metrics.RecordCommand(cmd, metrics.ResultOK, elapsed)
	return n, nil
}

// Command is Send for commands that may carry an "IFNAME=<iface> " token.
// The token is dropped; the session is already bound to one interface.
func (s *Session) Command(cmd string, reply []byte) (int, error) {
	stripped, ok := stripIfname(cmd)
	if !ok {
		return 0, fmt.Errorf("%w: malformed interface prefix", ErrCommandFailed)
	}
	return s.Send(stripped, reply)
}

// Request runs Command with a ReplySize buffer and returns the reply text.
// For FAIL replies the text is returned alongside the error.
func (s *Session) Request(cmd string) (string, error) {
	buf := make([]byte, ReplySize)
	n, err := s.Command(cmd, buf)
	return string(buf[:n]), err
}

func logDropped(cmd string) {
	metrics.Get().RecordCommand(cmd, metrics.ResultNotConnected, 0)
	logging.WithComponent("supplicant").Debug("not connected, dropping command", "command", metrics.CommandVerb(cmd))
}
