package supplicant

import (
	"errors"
	"iter"

	"golang.org/x/sys/unix"
)

// EventBufSize is the largest event datagram read from the monitor.
const EventBufSize = 4096

// Terminal reasons recorded in metrics.
const (
	reasonClosed    = "closed"
	reasonRecvError = "recv_error"
	reasonEOF       = "eof"
)

// Next blocks until the next event and returns it in canonical form.
//
// The wait has no timeout. It ends when the monitor delivers a datagram,
// when Close is called, or when a command times out. Those last two, as well
// as receive failures, yield a terminal event (see IsTerminal); callers stop
// reading after one. A session that is closed or was never attached returns
// EventConnectionClosed without blocking.
func (s *Session) Next() string {
	if s == nil {
		return EventConnectionClosed
	}

	s.mu.Lock()
	if s.closed || s.monitor == nil {
		s.mu.Unlock()
		return EventConnectionClosed
	}
	if s.readerDone != nil {
		s.mu.Unlock()
		s.logger.Error("concurrent event reader")
		return EventRecvError
	}
	done := make(chan struct{})
	s.readerDone = done
	s.state = StateWaiting
	s.mu.Unlock()

	ev, state, reason := s.wait()

	s.mu.Lock()
	s.readerDone = nil
	if !s.closed {
		s.state = state
	}
	s.mu.Unlock()
	close(done)

	if reason != "" {
		s.metrics.TerminalsTotal.WithLabelValues(reason).Inc()
	} else {
		s.metrics.RecordEvent(EventName(ev))
	}
	return ev
}

func (s *Session) wait() (string, State, string) {
	fds := []unix.PollFd{
		{Fd: int32(s.monitor.Fd()), Events: unix.POLLIN},
		{Fd: int32(s.cancel[1]), Events: unix.POLLIN},
	}
	for {
		_, err := unix.Poll(fds, -1)
		if errors.Is(err, unix.EINTR) {
			continue
		}
		if err != nil {
			s.logger.Error("event wait failed", "error", err)
			return EventRecvError, StateError, reasonRecvError
		}
		break
	}

	if fds[1].Revents&unix.POLLIN != 0 {
		s.logger.Debug("event wait cancelled")
		return EventConnectionClosed, StateCancelled, reasonClosed
	}
	if fds[0].Revents&unix.POLLIN == 0 {
		s.logger.Debug("event wait woke without data", "revents", fds[0].Revents)
		return EventConnectionClosed, StateCancelled, reasonClosed
	}

	buf := make([]byte, EventBufSize)
	n, err := s.monitor.Recv(buf)
	if err != nil {
		s.logger.Error("event receive failed", "error", err)
		return EventRecvError, StateError, reasonRecvError
	}
	if n == 0 {
		s.logger.Debug("event stream ended")
		return EventSignalZero, StateCancelled, reasonEOF
	}

	ev := Canonicalize(s.iface, string(buf[:n]))
	s.logger.Debug("event", "event", ev)
	return ev, StateDelivered, ""
}

// WaitForEvent copies the next event into buf, truncated to its length,
// and returns the number of bytes copied.
func (s *Session) WaitForEvent(buf []byte) int {
	return copy(buf, s.Next())
}

// Events returns the session's event stream. The sequence ends after the
// first terminal event or when the consumer stops. It reads from the
// session, so ranging over it again continues where the last range left off.
func (s *Session) Events() iter.Seq[string] {
	return func(yield func(string) bool) {
		for {
			ev := s.Next()
			if !yield(ev) || IsTerminal(ev) {
				return
			}
		}
	}
}
