package supplicant

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"grimm.is/wlanctl/internal/props"
	"grimm.is/wlanctl/internal/testutil"
	"grimm.is/wlanctl/internal/wpactrl"
)

type fixture struct {
	dir    string
	daemon *testutil.FakeDaemon
	status *props.MemoryStore
	opts   Options
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	dir := t.TempDir()
	sockDir := filepath.Join(dir, "sock")
	require.NoError(t, os.Mkdir(sockDir, 0o770))

	status := props.NewMemoryStore()
	require.NoError(t, status.Set("init.svc.wpa_supplicant", props.StatusRunning))

	return &fixture{
		dir:    dir,
		daemon: testutil.NewFakeDaemon(t, filepath.Join(sockDir, "wlan0")),
		status: status,
		opts: Options{
			SocketDir:      sockDir,
			ClientDir:      dir,
			CommandTimeout: time.Second,
			Status:         status,
			StatusKey:      "init.svc.wpa_supplicant",
		},
	}
}

func (f *fixture) connect(t *testing.T) *Session {
	t.Helper()
	s, err := Connect(context.Background(), "wlan0", f.opts)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func clientSockets(t *testing.T, dir string) []string {
	t.Helper()
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	var out []string
	for _, e := range entries {
		if strings.HasPrefix(e.Name(), wpactrl.ClientPrefix) {
			out = append(out, e.Name())
		}
	}
	return out
}

func nextAsync(s *Session) <-chan string {
	ch := make(chan string, 1)
	go func() { ch <- s.Next() }()
	return ch
}

func waitState(t *testing.T, s *Session, want State) {
	t.Helper()
	require.Eventually(t, func() bool { return s.State() == want }, time.Second, time.Millisecond)
}

func TestResolveEndpoint(t *testing.T) {
	dir := t.TempDir()
	assert.Equal(t, filepath.Join(dir, "wlan0"), ResolveEndpoint(dir, "@android:wpa_", "wlan0"))
	assert.Equal(t, "@android:wpa_wlan0", ResolveEndpoint(filepath.Join(dir, "missing"), "@android:wpa_", "wlan0"))
	assert.Equal(t, DefaultAbstractPrefix+"p2p0", ResolveEndpoint("", "", "p2p0"))
}

func TestConnect(t *testing.T) {
	f := newFixture(t)
	s := f.connect(t)

	assert.Equal(t, "wlan0", s.Iface())
	assert.Equal(t, f.daemon.Path, s.Endpoint())
	assert.NotEmpty(t, s.ID())
	assert.Equal(t, StateIdle, s.State())
	assert.Equal(t, 1, f.daemon.Monitors())
	assert.Len(t, clientSockets(t, f.dir), 2)
}

func TestConnect_Failures(t *testing.T) {
	t.Run("not running", func(t *testing.T) {
		f := newFixture(t)
		require.NoError(t, f.status.Set("init.svc.wpa_supplicant", props.StatusStopped))

		_, err := Connect(context.Background(), "wlan0", f.opts)
		var ce *ConnectError
		require.ErrorAs(t, err, &ce)
		assert.Equal(t, StageStatus, ce.Stage)
		assert.ErrorIs(t, err, ErrNotRunning)
		assert.Empty(t, f.daemon.Received())
	})

	t.Run("status missing", func(t *testing.T) {
		f := newFixture(t)
		f.opts.StatusKey = "init.svc.other"
		_, err := Connect(context.Background(), "wlan0", f.opts)
		assert.ErrorIs(t, err, ErrNotRunning)
	})

	t.Run("no daemon", func(t *testing.T) {
		f := newFixture(t)
		_, err := Connect(context.Background(), "p2p0", f.opts)
		var ce *ConnectError
		require.ErrorAs(t, err, &ce)
		assert.Equal(t, StageOpen, ce.Stage)
		assert.Equal(t, filepath.Join(f.opts.SocketDir, "p2p0"), ce.Path)
		assert.Empty(t, clientSockets(t, f.dir))
	})

	t.Run("attach rejected", func(t *testing.T) {
		f := newFixture(t)
		f.daemon.RejectAttach()
		_, err := Connect(context.Background(), "wlan0", f.opts)
		var ce *ConnectError
		require.ErrorAs(t, err, &ce)
		assert.Equal(t, StageAttach, ce.Stage)
		assert.ErrorIs(t, err, wpactrl.ErrAttachRejected)
		assert.Empty(t, clientSockets(t, f.dir), "partially opened connections must be closed")
	})

	t.Run("context cancelled", func(t *testing.T) {
		f := newFixture(t)
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		_, err := Connect(ctx, "wlan0", f.opts)
		assert.ErrorIs(t, err, context.Canceled)
	})
}

func TestClose_Idempotent(t *testing.T) {
	f := newFixture(t)
	s := f.connect(t)

	require.NoError(t, s.Close())
	assert.NoError(t, s.Close())
	assert.Equal(t, StateClosed, s.State())
	assert.True(t, s.Closed())
	assert.Empty(t, clientSockets(t, f.dir))

	var nilSession *Session
	assert.NoError(t, nilSession.Close())
}

func TestNext_NeverAttached(t *testing.T) {
	var nilSession *Session
	assert.Equal(t, EventConnectionClosed, nilSession.Next())

	var empty Session
	start := time.Now()
	assert.Equal(t, EventConnectionClosed, empty.Next())
	assert.Less(t, time.Since(start), 50*time.Millisecond)
}

func TestNext_AfterClose(t *testing.T) {
	f := newFixture(t)
	s := f.connect(t)
	require.NoError(t, s.Close())
	assert.Equal(t, EventConnectionClosed, s.Next())
}

func TestNext_Delivers(t *testing.T) {
	f := newFixture(t)
	s := f.connect(t)

	ch := nextAsync(s)
	waitState(t, s, StateWaiting)
	f.daemon.Emit("<3>CTRL-EVENT-CONNECTED - Connection to 00:11:22:33:44:55 completed")

	select {
	case ev := <-ch:
		assert.Equal(t, "IFNAME=wlan0 CTRL-EVENT-CONNECTED - Connection to 00:11:22:33:44:55 completed", ev)
	case <-time.After(time.Second):
		t.Fatal("no event delivered")
	}
	assert.Equal(t, StateDelivered, s.State())
}

func TestNext_ZeroLength(t *testing.T) {
	f := newFixture(t)
	s := f.connect(t)

	f.daemon.EmitBytes(nil)
	assert.Equal(t, EventSignalZero, s.Next())
	assert.Equal(t, StateCancelled, s.State())
}

func TestWaitForEvent_Truncates(t *testing.T) {
	f := newFixture(t)
	s := f.connect(t)

	f.daemon.Emit("<2>CTRL-EVENT-SCAN-RESULTS ")
	buf := make([]byte, 8)
	n := s.WaitForEvent(buf)
	assert.Equal(t, 8, n)
	assert.Equal(t, "IFNAME=w", string(buf))
}

func TestClose_DuringNext(t *testing.T) {
	f := newFixture(t)
	s := f.connect(t)

	ch := nextAsync(s)
	waitState(t, s, StateWaiting)

	closed := make(chan error, 1)
	go func() { closed <- s.Close() }()

	select {
	case ev := <-ch:
		assert.Equal(t, EventConnectionClosed, ev)
	case <-time.After(time.Second):
		t.Fatal("Next did not return after Close")
	}
	select {
	case err := <-closed:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("Close did not return")
	}
	assert.Equal(t, StateClosed, s.State())
}

func TestSend(t *testing.T) {
	f := newFixture(t)
	s := f.connect(t)
	f.daemon.Handle("STATUS", "wpa_state=COMPLETED\n")

	buf := make([]byte, 64)
	n, err := s.Send("STATUS", buf)
	require.NoError(t, err)
	assert.Equal(t, "wpa_state=COMPLETED\n", string(buf[:n]))
}

func TestSend_PingTerminated(t *testing.T) {
	f := newFixture(t)
	s := f.connect(t)

	buf := []byte("xxxxxxxx")
	n, err := s.Send("PING", buf)
	require.NoError(t, err)
	assert.Equal(t, 5, n)
	assert.Equal(t, byte(0), buf[5])

	exact := make([]byte, 5)
	n, err = s.Send("PING", exact)
	require.NoError(t, err)
	assert.Equal(t, "PONG\n", string(exact[:n]))
}

func TestSend_Fail(t *testing.T) {
	f := newFixture(t)
	s := f.connect(t)
	f.daemon.Handle("SELECT_NETWORK 9", "FAIL\n")

	reply, err := s.Request("SELECT_NETWORK 9")
	assert.ErrorIs(t, err, ErrCommandFailed)
	assert.Equal(t, "FAIL\n", reply)
}

func TestSend_NotConnected(t *testing.T) {
	var nilSession *Session
	_, err := nilSession.Send("PING", make([]byte, 8))
	assert.ErrorIs(t, err, ErrNotConnected)

	f := newFixture(t)
	s := f.connect(t)
	require.NoError(t, s.Close())
	_, err = s.Send("PING", make([]byte, 8))
	assert.ErrorIs(t, err, ErrNotConnected)
}

func TestSend_TimeoutCancelsReader(t *testing.T) {
	f := newFixture(t)
	f.opts.CommandTimeout = 50 * time.Millisecond
	s := f.connect(t)
	f.daemon.Handle("DISCONNECT")

	ch := nextAsync(s)
	waitState(t, s, StateWaiting)

	_, err := s.Send("DISCONNECT", make([]byte, 64))
	require.ErrorIs(t, err, ErrCommandTimeout)

	select {
	case ev := <-ch:
		assert.Equal(t, EventConnectionClosed, ev)
	case <-time.After(500 * time.Millisecond):
		t.Fatal("Next still blocked after command timeout")
	}
	assert.Equal(t, StateCancelled, s.State())

	// The cancellation is sticky.
	assert.Equal(t, EventConnectionClosed, s.Next())
}

func TestCommand_Ifname(t *testing.T) {
	f := newFixture(t)
	s := f.connect(t)
	f.daemon.Handle(`SET_NETWORK 0 ssid "home net"`, "OK\n")

	reply, err := s.Request(`IFNAME=wlan0 SET_NETWORK 0 ssid "home net"`)
	require.NoError(t, err)
	assert.Equal(t, "OK\n", reply)

	_, err = s.Request("IFNAME=wlan0")
	assert.ErrorIs(t, err, ErrCommandFailed)

	assert.Equal(t, []string{"ATTACH", `SET_NETWORK 0 ssid "home net"`}, f.daemon.Received())
}

func TestSend_Serialized(t *testing.T) {
	f := newFixture(t)
	s := f.connect(t)
	f.daemon.Handle("STATUS", "wpa_state=SCANNING\n")

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			reply, err := s.Request("STATUS")
			assert.NoError(t, err)
			assert.Equal(t, "wpa_state=SCANNING\n", reply)
		}()
	}
	wg.Wait()
}

func TestEvents(t *testing.T) {
	f := newFixture(t)
	s := f.connect(t)

	f.daemon.Emit("<3>CTRL-EVENT-SCAN-STARTED ")
	f.daemon.Emit("<3>CTRL-EVENT-SCAN-RESULTS ")
	f.daemon.EmitBytes(nil)

	var got []string
	for ev := range s.Events() {
		got = append(got, ev)
	}
	assert.Equal(t, []string{
		"IFNAME=wlan0 CTRL-EVENT-SCAN-STARTED ",
		"IFNAME=wlan0 CTRL-EVENT-SCAN-RESULTS ",
		EventSignalZero,
	}, got)
}

func TestEvents_ConsumerStops(t *testing.T) {
	f := newFixture(t)
	s := f.connect(t)

	f.daemon.Emit("<3>CTRL-EVENT-SCAN-STARTED ")
	f.daemon.Emit("<3>CTRL-EVENT-SCAN-RESULTS ")

	for ev := range s.Events() {
		assert.Equal(t, "IFNAME=wlan0 CTRL-EVENT-SCAN-STARTED ", ev)
		break
	}
	assert.Equal(t, "IFNAME=wlan0 CTRL-EVENT-SCAN-RESULTS ", s.Next())
}

func TestCancel(t *testing.T) {
	f := newFixture(t)
	s := f.connect(t)

	ch := nextAsync(s)
	waitState(t, s, StateWaiting)
	s.Cancel()

	select {
	case ev := <-ch:
		assert.Equal(t, EventConnectionClosed, ev)
	case <-time.After(time.Second):
		t.Fatal("Next did not return after Cancel")
	}
	assert.False(t, s.Closed())

	reply, err := s.Request("PING")
	require.NoError(t, err)
	assert.Equal(t, "PONG\n", strings.TrimRight(reply, "\x00"))

	var nilSession *Session
	nilSession.Cancel()
}

func TestCancel_ConcurrentWithClose(t *testing.T) {
	for range 20 {
		f := newFixture(t)
		s := f.connect(t)

		var wg sync.WaitGroup
		for range 4 {
			wg.Go(s.Cancel)
		}
		wg.Go(func() { assert.NoError(t, s.Close()) })
		wg.Wait()

		assert.True(t, s.Closed())
		assert.Equal(t, StateClosed, s.State())
		s.Cancel()
	}
}
