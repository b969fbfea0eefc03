// Package wpactrl implements the client side of the wpa_supplicant control
// interface: request/response and unsolicited event datagrams exchanged over
// AF_UNIX SOCK_DGRAM sockets.
//
// A destination beginning with '@' is an abstract-namespace address. The
// client always binds a local socket file so the daemon has an address to
// reply to.
package wpactrl

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"time"

	"golang.org/x/sys/unix"
)

// ClientPrefix is the name prefix of local client sockets.
const ClientPrefix = "wpa_ctrl_"

// DefaultClientDir is where local client sockets are created.
const DefaultClientDir = "/tmp"

var (
	// ErrTimeout is returned when no reply arrives within the request timeout.
	ErrTimeout = errors.New("wpa_ctrl: request timed out")
	// ErrAttachRejected is returned when ATTACH/DETACH is not answered with OK.
	ErrAttachRejected = errors.New("wpa_ctrl: attach rejected")
	// ErrClosed is returned for operations on a closed connection.
	ErrClosed = errors.New("wpa_ctrl: connection closed")
)

var counter atomic.Uint64

// Options configures Open.
type Options struct {
	// ClientDir holds the local socket file. Defaults to DefaultClientDir.
	ClientDir string
}

// Conn is one control connection to the daemon.
type Conn struct {
	fd     int
	local  string
	dest   string
	closed atomic.Bool

	// stale is set after a timed out request: its reply may still arrive.
	stale atomic.Bool
}

// Open creates a datagram socket bound to a fresh local path and connects it
// to dest.
func Open(dest string, opts Options) (*Conn, error) {
	if dest == "" {
		return nil, errors.New("wpa_ctrl: empty destination")
	}
	dir := opts.ClientDir
	if dir == "" {
		dir = DefaultClientDir
	}

	fd, err := unix.Socket(unix.AF_UNIX, unix.SOCK_DGRAM|unix.SOCK_CLOEXEC, 0)
	if err != nil {
		return nil, fmt.Errorf("socket: %w", err)
	}

	local := filepath.Join(dir, fmt.Sprintf("%s%d-%d", ClientPrefix, os.Getpid(), counter.Add(1)))
	if err := bindLocal(fd, local); err != nil {
		unix.Close(fd)
		return nil, err
	}

	if err := unix.Connect(fd, &unix.SockaddrUnix{Name: dest}); err != nil {
		unix.Close(fd)
		os.Remove(local)
		return nil, fmt.Errorf("connect %s: %w", dest, err)
	}

	return &Conn{fd: fd, local: local, dest: dest}, nil
}

// bindLocal binds fd to path, removing a stale file once on EADDRINUSE.
func bindLocal(fd int, path string) error {
	err := unix.Bind(fd, &unix.SockaddrUnix{Name: path})
	if errors.Is(err, unix.EADDRINUSE) {
		os.Remove(path)
		err = unix.Bind(fd, &unix.SockaddrUnix{Name: path})
	}
	if err != nil {
		return fmt.Errorf("bind %s: %w", path, err)
	}
	return nil
}

// Fd returns the socket descriptor for polling.
func (c *Conn) Fd() int {
	return c.fd
}

// Dest returns the address the connection was opened to.
func (c *Conn) Dest() string {
	return c.dest
}

// Request sends cmd and waits up to timeout for the reply, which is copied
// into reply. Unsolicited messages ('<' prefixed) arriving in between are
// handed to onEvent (may be nil) and skipped.
//
// After a timeout, datagrams already queued when the next Request starts are
// discarded as late replies. A reply still in flight at that point is not
// caught; callers that need strict pairing drop the connection instead.
func (c *Conn) Request(cmd string, reply []byte, timeout time.Duration, onEvent func(string)) (int, error) {
	if c.closed.Load() {
		return 0, ErrClosed
	}
	if c.stale.CompareAndSwap(true, false) {
		c.drain(reply, onEvent)
	}
	if _, err := unix.Write(c.fd, []byte(cmd)); err != nil {
		return 0, fmt.Errorf("send %q: %w", firstWord(cmd), err)
	}

	deadline := time.Now().Add(timeout)
	for {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			c.stale.Store(true)
			return 0, ErrTimeout
		}
		ready, err := waitReadable(c.fd, remaining)
		if err != nil {
			return 0, err
		}
		if !ready {
			c.stale.Store(true)
			return 0, ErrTimeout
		}

		n, err := unix.Read(c.fd, reply)
		if err != nil {
			if errors.Is(err, unix.EINTR) || errors.Is(err, unix.EAGAIN) {
				continue
			}
			return 0, fmt.Errorf("recv: %w", err)
		}
		if n > 0 && reply[0] == '<' {
			if onEvent != nil {
				onEvent(string(reply[:n]))
			}
			continue
		}
		return n, nil
	}
}

// drain reads every queued datagram without blocking. Events still go to
// onEvent; anything else is a reply nobody is waiting for.
func (c *Conn) drain(buf []byte, onEvent func(string)) {
	for {
		n, _, err := unix.Recvfrom(c.fd, buf, unix.MSG_DONTWAIT)
		if errors.Is(err, unix.EINTR) {
			continue
		}
		if err != nil {
			return
		}
		if n > 0 && buf[0] == '<' && onEvent != nil {
			onEvent(string(buf[:n]))
		}
	}
}

// Attach registers this connection as an event monitor.
func (c *Conn) Attach(timeout time.Duration) error {
	return c.attachHelper("ATTACH", timeout)
}

// Detach unregisters this connection as an event monitor.
func (c *Conn) Detach(timeout time.Duration) error {
	return c.attachHelper("DETACH", timeout)
}

func (c *Conn) attachHelper(cmd string, timeout time.Duration) error {
	buf := make([]byte, 10)
	n, err := c.Request(cmd, buf, timeout, nil)
	if err != nil {
		return err
	}
	if n == 3 && string(buf[:3]) == "OK\n" {
		return nil
	}
	return fmt.Errorf("%w: %s replied %q", ErrAttachRejected, cmd, buf[:n])
}

// Recv reads one pending datagram into buf.
func (c *Conn) Recv(buf []byte) (int, error) {
	if c.closed.Load() {
		return 0, ErrClosed
	}
	for {
		n, err := unix.Read(c.fd, buf)
		if errors.Is(err, unix.EINTR) {
			continue
		}
		return n, err
	}
}

// Pending reports whether a datagram is ready to be read.
func (c *Conn) Pending() (bool, error) {
	return waitReadable(c.fd, 0)
}

// Close closes the socket and removes the local socket file.
// Closing twice is a no-op.
func (c *Conn) Close() error {
	if !c.closed.CompareAndSwap(false, true) {
		return nil
	}
	err := unix.Close(c.fd)
	os.Remove(c.local)
	return err
}

// Cleanup removes local client socket files left behind by earlier
// processes in dir. Sockets owned by this process are kept.
func Cleanup(dir string) error {
	if dir == "" {
		dir = DefaultClientDir
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	own := fmt.Sprintf("%s%d-", ClientPrefix, os.Getpid())
	for _, e := range entries {
		name := e.Name()
		if strings.HasPrefix(name, ClientPrefix) && !strings.HasPrefix(name, own) {
			os.Remove(filepath.Join(dir, name))
		}
	}
	return nil
}

// waitReadable polls fd for input for up to timeout (0 means don't block).
func waitReadable(fd int, timeout time.Duration) (bool, error) {
	ms := int(timeout / time.Millisecond)
	if timeout > 0 && ms == 0 {
		ms = 1
	}
	fds := []unix.PollFd{{Fd: int32(fd), Events: unix.POLLIN}}
	for {
		n, err := unix.Poll(fds, ms)
		if errors.Is(err, unix.EINTR) {
			continue
		}
		if err != nil {
			return false, fmt.Errorf("poll: %w", err)
		}
		return n > 0 && fds[0].Revents&unix.POLLIN != 0, nil
	}
}

func firstWord(cmd string) string {
	if i := strings.IndexByte(cmd, ' '); i >= 0 {
		return cmd[:i]
	}
	return cmd
}
