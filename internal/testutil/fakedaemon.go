package testutil

import (
	"errors"
	"net"
	"os"
	"strings"
	"sync"
	"testing"
	"time"
)

// FakeDaemon answers the control-socket protocol on a real unixgram socket.
//
// ATTACH and DETACH are handled internally; other commands are answered from
// the table set with Handle. Commands with no entry get "UNKNOWN COMMAND\n".
type FakeDaemon struct {
	t    *testing.T
	Path string
	conn *net.UnixConn

	mu       sync.Mutex
	handlers map[string][]string
	monitors map[string]*net.UnixAddr
	received []string
	attachOK bool
	delays   map[string]time.Duration

	done chan struct{}
}

// NewFakeDaemon listens on path (a file path, or "@name" for the abstract
// namespace) and serves until the test ends.
func NewFakeDaemon(t *testing.T, path string) *FakeDaemon {
	t.Helper()
	conn, err := net.ListenUnixgram("unixgram", &net.UnixAddr{Name: path, Net: "unixgram"})
	if err != nil {
		t.Fatalf("fake daemon listen %s: %v", path, err)
	}
	d := &FakeDaemon{
		t:        t,
		Path:     path,
		conn:     conn,
		handlers: map[string][]string{"PING": {"PONG\n"}},
		monitors: make(map[string]*net.UnixAddr),
		delays:   make(map[string]time.Duration),
		attachOK: true,
		done:     make(chan struct{}),
	}
	go d.serve()
	t.Cleanup(d.Close)
	return d
}

// Handle sets the datagrams sent in reply to cmd. No replies means the
// daemon stays silent and the client times out.
func (d *FakeDaemon) Handle(cmd string, replies ...string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.handlers[cmd] = replies
}

// Delay holds back the replies to cmd for d, as a daemon that answers
// after the client gave up.
func (d *FakeDaemon) Delay(cmd string, delay time.Duration) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.delays[cmd] = delay
}

// RejectAttach makes ATTACH reply FAIL.
func (d *FakeDaemon) RejectAttach() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.attachOK = false
}

// Received returns the commands seen so far, in order.
func (d *FakeDaemon) Received() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.received...)
}

// Monitors returns the number of attached monitor sockets.
func (d *FakeDaemon) Monitors() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.monitors)
}

// Emit sends an event datagram to every attached monitor.
func (d *FakeDaemon) Emit(event string) {
	d.EmitBytes([]byte(event))
}

// EmitBytes sends raw bytes to every attached monitor.
func (d *FakeDaemon) EmitBytes(b []byte) {
	d.mu.Lock()
	addrs := make([]*net.UnixAddr, 0, len(d.monitors))
	for _, a := range d.monitors {
		addrs = append(addrs, a)
	}
	d.mu.Unlock()

	for _, a := range addrs {
		if _, err := d.conn.WriteToUnix(b, a); err != nil {
			d.t.Logf("fake daemon emit to %s: %v", a.Name, err)
		}
	}
}

// Close stops the daemon and removes its socket file.
func (d *FakeDaemon) Close() {
	select {
	case <-d.done:
		return
	default:
	}
	close(d.done)
	d.conn.Close()
	if !strings.HasPrefix(d.Path, "@") {
		os.Remove(d.Path)
	}
}

func (d *FakeDaemon) serve() {
	buf := make([]byte, 4096)
	for {
		n, from, err := d.conn.ReadFromUnix(buf)
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return
			}
			select {
			case <-d.done:
				return
			default:
			}
			time.Sleep(time.Millisecond)
			continue
		}
		if from == nil {
			continue
		}
		cmd := string(buf[:n])

		d.mu.Lock()
		d.received = append(d.received, cmd)
		var replies []string
		switch cmd {
		case "ATTACH":
			if d.attachOK {
				d.monitors[from.Name] = from
				replies = []string{"OK\n"}
			} else {
				replies = []string{"FAIL\n"}
			}
		case "DETACH":
			delete(d.monitors, from.Name)
			replies = []string{"OK\n"}
		default:
			r, ok := d.handlers[cmd]
			if !ok {
				r = []string{"UNKNOWN COMMAND\n"}
			}
			replies = r
		}
		d.mu.Unlock()

		for _, r := range replies {
			d.conn.WriteToUnix([]byte(r), from)
		}
	}
}
