package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"grimm.is/wlanctl/internal/events"
	"grimm.is/wlanctl/internal/health"
	"grimm.is/wlanctl/internal/logging"
	"grimm.is/wlanctl/internal/scheduler"
	"grimm.is/wlanctl/internal/services"
	"grimm.is/wlanctl/internal/stats"
	"grimm.is/wlanctl/internal/wifi"
)

type fakeStatus struct {
	st wifi.Status
}

func (f fakeStatus) Status() wifi.Status { return f.st }

type fakeJournal struct {
	entries   []events.JournalEntry
	counts    []events.HourlyCount
	err       error
	lastLimit int
	lastName  string
	lastDays  int
}

func (f *fakeJournal) Recent(limit int) ([]events.JournalEntry, error) {
	f.lastLimit = limit
	return f.entries, f.err
}

func (f *fakeJournal) Hourly(name string, days int) ([]events.HourlyCount, error) {
	f.lastName = name
	f.lastDays = days
	return f.counts, f.err
}

func newTestServer(t *testing.T, opts ServerOptions) *Server {
	t.Helper()
	if opts.Status == nil {
		opts.Status = fakeStatus{}
	}
	s, err := NewServer(opts)
	require.NoError(t, err)
	return s
}

func serve(s *Server, method, target string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(method, target, nil))
	return rec
}

func TestNewServer_RequiresStatus(t *testing.T) {
	_, err := NewServer(ServerOptions{})
	assert.Error(t, err)
}

func TestHandleStatus(t *testing.T) {
	s := newTestServer(t, ServerOptions{Status: fakeStatus{st: wifi.Status{
		Platform:  "generic",
		Mode:      "station",
		Interface: "wlan0",
		Connected: true,
		Daemons:   map[string]string{"station": "running", "ap": "stopped"},
	}}})

	rec := serve(s, http.MethodGet, "/api/status")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var st wifi.Status
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &st))
	assert.Equal(t, "station", st.Mode)
	assert.Equal(t, "wlan0", st.Interface)
	assert.True(t, st.Connected)
	assert.Equal(t, "running", st.Daemons["station"])
}

func TestHandleStatus_MethodNotAllowed(t *testing.T) {
	s := newTestServer(t, ServerOptions{})
	rec := serve(s, http.MethodPost, "/api/status")
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestHandleHealth(t *testing.T) {
	s := newTestServer(t, ServerOptions{})
	rec := serve(s, http.MethodGet, "/api/health")
	require.Equal(t, http.StatusOK, rec.Code)

	var h HealthResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &h))
	assert.Equal(t, "ok", h.Status)
	assert.Empty(t, h.Checks)
}

func TestHandleHealth_Checks(t *testing.T) {
	checker := health.NewChecker(nil)
	checker.Register("state_dir", health.CheckWritableDir(t.TempDir()))
	s := newTestServer(t, ServerOptions{Health: checker})

	rec := serve(s, http.MethodGet, "/api/health")
	require.Equal(t, http.StatusOK, rec.Code)
	var h HealthResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &h))
	assert.Equal(t, "healthy", h.Status)
	assert.Equal(t, health.StatusHealthy, h.Checks["state_dir"].Status)

	broken := health.NewChecker(nil)
	broken.Register("audit_db", func(ctx context.Context) health.Check {
		return health.Check{Status: health.StatusUnhealthy, Message: "database is closed"}
	})
	s = newTestServer(t, ServerOptions{Health: broken})
	rec = serve(s, http.MethodGet, "/api/health")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, rec.Body.String(), "database is closed")
}

func TestHandleRecentEvents(t *testing.T) {
	j := &fakeJournal{entries: []events.JournalEntry{
		{Type: events.EventWifi, Iface: "wlan0", Name: "CTRL-EVENT-CONNECTED", Line: "IFNAME=wlan0 CTRL-EVENT-CONNECTED"},
	}}
	s := newTestServer(t, ServerOptions{Journal: j})

	rec := serve(s, http.MethodGet, "/api/events/recent")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 50, j.lastLimit)

	var got []events.JournalEntry
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	require.Len(t, got, 1)
	assert.Equal(t, "CTRL-EVENT-CONNECTED", got[0].Name)

	rec = serve(s, http.MethodGet, "/api/events/recent?limit=5000")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1000, j.lastLimit)
}

func TestHandleRecentEvents_Empty(t *testing.T) {
	s := newTestServer(t, ServerOptions{Journal: &fakeJournal{}})
	rec := serve(s, http.MethodGet, "/api/events/recent")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, "[]", rec.Body.String())
}

func TestHandleRecentEvents_Errors(t *testing.T) {
	tests := []struct {
		name    string
		journal EventLog
		target  string
		want    int
	}{
		{"no journal", nil, "/api/events/recent", http.StatusServiceUnavailable},
		{"bad limit", &fakeJournal{}, "/api/events/recent?limit=abc", http.StatusBadRequest},
		{"zero limit", &fakeJournal{}, "/api/events/recent?limit=0", http.StatusBadRequest},
		{"query failure", &fakeJournal{err: errors.New("disk I/O error")}, "/api/events/recent", http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newTestServer(t, ServerOptions{Journal: tt.journal})
			rec := serve(s, http.MethodGet, tt.target)
			assert.Equal(t, tt.want, rec.Code)

			var resp ErrorResponse
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
			assert.NotEmpty(t, resp.Error)
		})
	}
}

func TestHandleHourlyEvents(t *testing.T) {
	hour := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	j := &fakeJournal{counts: []events.HourlyCount{{Hour: hour, Name: "CTRL-EVENT-DISCONNECTED", Count: 3}}}
	s := newTestServer(t, ServerOptions{Journal: j})

	rec := serve(s, http.MethodGet, "/api/events/hourly?name=CTRL-EVENT-DISCONNECTED&days=7")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "CTRL-EVENT-DISCONNECTED", j.lastName)
	assert.Equal(t, 7, j.lastDays)

	var got []events.HourlyCount
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	require.Len(t, got, 1)
	assert.Equal(t, int64(3), got[0].Count)
	assert.True(t, hour.Equal(got[0].Hour))

	rec = serve(s, http.MethodGet, "/api/events/hourly?days=365")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 90, j.lastDays)

	rec = serve(s, http.MethodGet, "/api/events/hourly?days=-1")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestMetricsEndpoint(t *testing.T) {
	s := newTestServer(t, ServerOptions{})
	serve(s, http.MethodGet, "/api/health")

	rec := serve(s, http.MethodGet, "/metrics")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "wlanctl_api_requests_total")
}

func TestRouteLabel(t *testing.T) {
	assert.Equal(t, "/api/status", routeLabel("/api/status"))
	assert.Equal(t, "/api/status", routeLabel("/api/status/"))
	assert.Equal(t, "/api/events/recent", routeLabel("/api/events/recent"))
	assert.Equal(t, "other", routeLabel("/api/../../etc/passwd"))
	assert.Equal(t, "other", routeLabel("/random/123"))
}

func TestAccessLogWriter_CapturesStatus(t *testing.T) {
	rec := httptest.NewRecorder()
	rw := &accessLogWriter{ResponseWriter: rec, status: http.StatusOK}

	rw.WriteHeader(http.StatusNotFound)
	n, err := rw.Write([]byte("gone"))
	require.NoError(t, err)

	assert.Equal(t, http.StatusNotFound, rw.status)
	assert.Equal(t, 4, n)
	assert.Equal(t, 4, rw.size)
}

func TestAccessLogWriter_HijackUnsupported(t *testing.T) {
	rw := &accessLogWriter{ResponseWriter: httptest.NewRecorder()}
	_, _, err := rw.Hijack()
	assert.ErrorIs(t, err, http.ErrNotSupported)
}

func TestServerConfig_HasRequiredTimeouts(t *testing.T) {
	cfg := DefaultServerConfig()
	assert.NotZero(t, cfg.ReadHeaderTimeout)
	assert.NotZero(t, cfg.ReadTimeout)
	assert.NotZero(t, cfg.IdleTimeout)
	assert.Zero(t, cfg.WriteTimeout)
}

func TestServeListener_Shutdown(t *testing.T) {
	s := newTestServer(t, ServerOptions{Hub: events.NewHub()})

	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() { done <- s.ServeListener(l) }()

	url := "http://" + l.Addr().String() + "/api/health"
	require.Eventually(t, func() bool {
		resp, err := http.Get(url)
		if err != nil {
			return false
		}
		io.Copy(io.Discard, resp.Body)
		resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, 2*time.Second, 20*time.Millisecond)

	require.NoError(t, s.Shutdown(t.Context()))
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("ServeListener did not return after Shutdown")
	}

	// A second shutdown is harmless.
	assert.NoError(t, s.Shutdown(t.Context()))
}

func TestHandler_UnknownRoute(t *testing.T) {
	s := newTestServer(t, ServerOptions{})
	rec := serve(s, http.MethodGet, "/api/nope")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.True(t, strings.HasPrefix(rec.Body.String(), "404"))
}

type fakeTasks []scheduler.TaskStatus

func (f fakeTasks) Status() []scheduler.TaskStatus { return f }

func TestHandleTasks(t *testing.T) {
	s := newTestServer(t, ServerOptions{})
	assert.Equal(t, http.StatusServiceUnavailable, serve(s, http.MethodGet, "/api/tasks").Code)

	s = newTestServer(t, ServerOptions{Tasks: fakeTasks{
		{ID: "audit-prune", Name: "Audit Prune", Enabled: true, RunCount: 2},
	}})
	rec := serve(s, http.MethodGet, "/api/tasks")
	require.Equal(t, http.StatusOK, rec.Code)

	var got []scheduler.TaskStatus
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	require.Len(t, got, 1)
	assert.Equal(t, "audit-prune", got[0].ID)
	assert.Equal(t, int64(2), got[0].RunCount)
}

type fakeRates []stats.Series

func (f fakeRates) All() []stats.Series { return f }

func TestHandleEventRates(t *testing.T) {
	s := newTestServer(t, ServerOptions{})
	assert.Equal(t, http.StatusServiceUnavailable, serve(s, http.MethodGet, "/api/events/rates").Code)

	s = newTestServer(t, ServerOptions{Rates: fakeRates{
		{Name: "wifi.CTRL-EVENT-CONNECTED", Total: 4, Points: []float64{0, 0.5}},
	}})
	rec := serve(s, http.MethodGet, "/api/events/rates")
	require.Equal(t, http.StatusOK, rec.Code)

	var got []stats.Series
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	require.Len(t, got, 1)
	assert.Equal(t, []float64{0, 0.5}, got[0].Points)
}

func TestHandleLogs(t *testing.T) {
	rb := logging.NewRingBuffer(10)
	rb.Add(logging.AppLogEntry{Source: "lifecycle", Level: "info", Message: "daemon started"})
	rb.Add(logging.AppLogEntry{Source: "api", Level: "warn", Message: "slow client"})
	rb.Add(logging.AppLogEntry{Source: "lifecycle", Level: "error", Message: "daemon stop timed out"})

	s := newTestServer(t, ServerOptions{Logs: rb})

	rec := serve(s, http.MethodGet, "/api/logs?source=lifecycle")
	require.Equal(t, http.StatusOK, rec.Code)
	var got []logging.AppLogEntry
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	require.Len(t, got, 2)
	assert.Equal(t, "daemon started", got[0].Message)

	rec = serve(s, http.MethodGet, "/api/logs?level=warn&limit=1")
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	require.Len(t, got, 1)
	assert.Equal(t, "daemon stop timed out", got[0].Message)

	rec = serve(s, http.MethodGet, "/api/logs?source=nobody")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "[]", strings.TrimSpace(rec.Body.String()))

	assert.Equal(t, http.StatusBadRequest, serve(s, http.MethodGet, "/api/logs?level=loud").Code)
	assert.Equal(t, http.StatusBadRequest, serve(s, http.MethodGet, "/api/logs?limit=x").Code)
}

type fakeServices []services.ServiceStatus

func (f fakeServices) Status() []services.ServiceStatus { return f }

func TestHandleServices(t *testing.T) {
	s := newTestServer(t, ServerOptions{})
	assert.Equal(t, http.StatusServiceUnavailable, serve(s, http.MethodGet, "/api/services").Code)

	s = newTestServer(t, ServerOptions{Services: fakeServices{
		{Name: "notifier", Running: true},
		{Name: "event-rates", Running: false, Error: "stopped"},
	}})
	rec := serve(s, http.MethodGet, "/api/services")
	require.Equal(t, http.StatusOK, rec.Code)

	var got []services.ServiceStatus
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	require.Len(t, got, 2)
	assert.True(t, got[0].Running)
	assert.Equal(t, "stopped", got[1].Error)
}
