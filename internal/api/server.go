package api

import (
	"context"
	"errors"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"grimm.is/wlanctl/internal/audit"
	"grimm.is/wlanctl/internal/clock"
	"grimm.is/wlanctl/internal/events"
	"grimm.is/wlanctl/internal/health"
	"grimm.is/wlanctl/internal/i18n"
	"grimm.is/wlanctl/internal/logging"
	"grimm.is/wlanctl/internal/metrics"
	"grimm.is/wlanctl/internal/ratelimit"
	"grimm.is/wlanctl/internal/scheduler"
	"grimm.is/wlanctl/internal/services"
	"grimm.is/wlanctl/internal/stats"
	"grimm.is/wlanctl/internal/wifi"
)

// ServerConfig holds HTTP server timeouts.
type ServerConfig struct {
	ReadHeaderTimeout time.Duration // Slowloris prevention
	ReadTimeout       time.Duration
	WriteTimeout      time.Duration
	IdleTimeout       time.Duration
	MaxHeaderBytes    int
}

// DefaultServerConfig returns the default server configuration.
// WriteTimeout stays zero so websocket streams are not cut off.
func DefaultServerConfig() *ServerConfig {
	return &ServerConfig{
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		IdleTimeout:       60 * time.Second,
		MaxHeaderBytes:    1 << 16,
	}
}

// StatusSource reports the manager's state. *wifi.Manager implements it.
type StatusSource interface {
	Status() wifi.Status
}

// EventLog answers journal queries. *events.Journal implements it.
type EventLog interface {
	Recent(limit int) ([]events.JournalEntry, error)
	Hourly(name string, days int) ([]events.HourlyCount, error)
}

// AuditLog answers audit trail queries. *audit.Store implements it.
type AuditLog interface {
	Query(start, end time.Time, action string, limit int) ([]audit.Event, error)
}

// TaskSource lists maintenance tasks. *scheduler.Scheduler implements it.
type TaskSource interface {
	Status() []scheduler.TaskStatus
}

// RateSource reports event rate windows. *stats.Collector implements it.
type RateSource interface {
	All() []stats.Series
}

// ServiceSource reports background services. *services.Group implements it.
type ServiceSource interface {
	Status() []services.ServiceStatus
}

// LogSource answers queries over buffered log lines. *logging.RingBuffer
// implements it.
type LogSource interface {
	Query(q logging.LogQuery) []logging.AppLogEntry
}

var knownRoutes = map[string]struct{}{
	"/api/logs":          {},
	"/api/services":      {},
	"/api/audit":         {},
	"/api/tasks":         {},
	"/metrics":           {},
	"/api/status":        {},
	"/api/health":        {},
	"/api/events":        {},
	"/api/events/recent": {},
	"/api/events/hourly": {},
	"/api/events/rates":  {},
}

// Server handles API requests.
type Server struct {
	status    StatusSource
	journal   EventLog
	audit     AuditLog
	hub       *events.Hub
	collector *metrics.Collector
	health    *health.Checker
	tasks     TaskSource
	rates     RateSource
	logs      LogSource
	services  ServiceSource
	wsManager *WSManager
	bridge    *events.WSBridge
	logger    *logging.Logger
	metrics   *metrics.Registry
	limiter   *ratelimit.Limiter
	startTime time.Time

	stopCleanup context.CancelFunc

	mux      *http.ServeMux
	mu       sync.Mutex
	http     *http.Server
	stopOnce sync.Once
}

// ServerOptions holds dependencies for the API server
type ServerOptions struct {
	Status    StatusSource
	Journal   EventLog           // Optional: journal endpoints return 503 without it
	Audit     AuditLog           // Optional: /api/audit returns 503 without it
	Hub       *events.Hub        // Optional: the websocket stream is disabled without it
	Collector *metrics.Collector // Optional
	Health    *health.Checker    // Optional: /api/health reports only uptime without it
	Tasks     TaskSource         // Optional: /api/tasks returns 503 without it
	Rates     RateSource         // Optional: /api/events/rates returns 503 without it
	Logs      LogSource          // Optional: defaults to the process log buffer
	Services  ServiceSource      // Optional: /api/services returns 503 without it
	Logger    *logging.Logger

	// RateLimit is requests per minute per client address; zero or less
	// disables limiting.
	RateLimit int
	Clock     clock.Clock
}

// NewServer creates a new API server with the provided options
func NewServer(opts ServerOptions) (*Server, error) {
	if opts.Status == nil {
		return nil, errors.New("api: status source is required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = logging.Default()
	}

	s := &Server{
		status:    opts.Status,
		journal:   opts.Journal,
		audit:     opts.Audit,
		hub:       opts.Hub,
		collector: opts.Collector,
		health:    opts.Health,
		tasks:     opts.Tasks,
		rates:     opts.Rates,
		logs:      opts.Logs,
		services:  opts.Services,
		logger:    logger.WithComponent("api"),
		metrics:   metrics.Get(),
		startTime: time.Now(),
		mux:       http.NewServeMux(),
	}
	if s.logs == nil {
		s.logs = logging.GetAppLogBuffer()
	}
	if opts.RateLimit > 0 {
		s.limiter = ratelimit.NewLimiter(opts.RateLimit, rateLimitWindow, opts.Clock)
	}
	if opts.Hub != nil {
		s.wsManager = NewWSManager(s.logger)
		s.bridge = events.NewWSBridge(opts.Hub, s.wsManager.Publish)
	}
	s.initRoutes()
	return s, nil
}

func (s *Server) initRoutes() {
	s.mux.Handle("GET /metrics", promhttp.Handler())
	s.mux.HandleFunc("GET /api/health", s.handleHealth)
	s.mux.HandleFunc("GET /api/status", s.handleStatus)
	s.mux.HandleFunc("GET /api/events", s.handleEventsWS)
	s.mux.HandleFunc("GET /api/events/recent", s.handleRecentEvents)
	s.mux.HandleFunc("GET /api/events/hourly", s.handleHourlyEvents)
	s.mux.HandleFunc("GET /api/events/rates", s.handleEventRates)
	s.mux.HandleFunc("GET /api/audit", s.handleAudit)
	s.mux.HandleFunc("GET /api/tasks", s.handleTasks)
	s.mux.HandleFunc("GET /api/logs", s.handleLogs)
	s.mux.HandleFunc("GET /api/services", s.handleServices)
}

// Handler returns the HTTP handler with middleware applied.
func (s *Server) Handler() http.Handler {
	return s.loggingMiddleware(i18n.Middleware(s.rateLimitMiddleware(s.mux)))
}

// Start listens on addr and serves until Shutdown.
func (s *Server) Start(addr string) error {
	l, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	return s.ServeListener(l)
}

// ServeListener serves on an existing listener until Shutdown. It returns
// nil after a clean shutdown.
func (s *Server) ServeListener(listener net.Listener) error {
	cfg := DefaultServerConfig()
	srv := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
		ReadTimeout:       cfg.ReadTimeout,
		WriteTimeout:      cfg.WriteTimeout,
		IdleTimeout:       cfg.IdleTimeout,
		MaxHeaderBytes:    cfg.MaxHeaderBytes,
	}
	s.mu.Lock()
	s.http = srv
	if s.limiter != nil && s.stopCleanup == nil {
		ctx, cancel := context.WithCancel(context.Background())
		s.stopCleanup = cancel
		s.limiter.StartCleanup(ctx, rateLimitCleanup, rateLimitCleanup)
	}
	s.mu.Unlock()

	if s.collector != nil {
		go s.collector.Start()
	}
	if s.bridge != nil {
		s.bridge.Start()
	}

	s.logger.Info("API server starting", "addr", listener.Addr())
	err := srv.Serve(listener)
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Shutdown stops the HTTP server and the websocket fan-out.
func (s *Server) Shutdown(ctx context.Context) error {
	s.stopOnce.Do(func() {
		if s.bridge != nil {
			s.bridge.Stop()
		}
		if s.wsManager != nil {
			s.wsManager.Close()
		}
		if s.collector != nil {
			s.collector.Stop()
		}
	})
	s.mu.Lock()
	srv := s.http
	if s.stopCleanup != nil {
		s.stopCleanup()
	}
	s.mu.Unlock()
	if srv == nil {
		return nil
	}
	return srv.Shutdown(ctx)
}

// HealthResponse is the body of /api/health.
type HealthResponse struct {
	Status string                  `json:"status"`
	Uptime string                  `json:"uptime"`
	Checks map[string]health.Check `json:"checks,omitempty"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := HealthResponse{
		Status: "ok",
		Uptime: time.Since(s.startTime).Round(time.Second).String(),
	}
	if s.health == nil {
		WriteJSON(w, http.StatusOK, resp)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()
	report := s.health.Check(ctx)
	resp.Status = string(report.Status)
	resp.Checks = report.Checks

	code := http.StatusOK
	if report.Status == health.StatusUnhealthy {
		code = http.StatusServiceUnavailable
	}
	WriteJSON(w, code, resp)
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	WriteJSON(w, http.StatusOK, s.status.Status())
}

func (s *Server) handleRecentEvents(w http.ResponseWriter, r *http.Request) {
	if s.journal == nil {
		WriteErrorCtx(w, r, http.StatusServiceUnavailable, "Event journal not enabled")
		return
	}
	limit, ok := queryInt(r, "limit", 50, 1000)
	if !ok {
		WriteErrorCtx(w, r, http.StatusBadRequest, "Invalid limit")
		return
	}
	entries, err := s.journal.Recent(limit)
	if err != nil {
		s.logger.Error("journal query failed", "error", err)
		WriteErrorCtx(w, r, http.StatusInternalServerError, "Failed to query events")
		return
	}
	if entries == nil {
		entries = []events.JournalEntry{}
	}
	WriteJSON(w, http.StatusOK, entries)
}

func (s *Server) handleHourlyEvents(w http.ResponseWriter, r *http.Request) {
	if s.journal == nil {
		WriteErrorCtx(w, r, http.StatusServiceUnavailable, "Event journal not enabled")
		return
	}
	days, ok := queryInt(r, "days", 1, 90)
	if !ok {
		WriteErrorCtx(w, r, http.StatusBadRequest, "Invalid days")
		return
	}
	counts, err := s.journal.Hourly(r.URL.Query().Get("name"), days)
	if err != nil {
		s.logger.Error("journal query failed", "error", err)
		WriteErrorCtx(w, r, http.StatusInternalServerError, "Failed to query events")
		return
	}
	if counts == nil {
		counts = []events.HourlyCount{}
	}
	WriteJSON(w, http.StatusOK, counts)
}

func (s *Server) handleEventRates(w http.ResponseWriter, r *http.Request) {
	if s.rates == nil {
		WriteErrorCtx(w, r, http.StatusServiceUnavailable, "Event rates not enabled")
		return
	}
	WriteJSON(w, http.StatusOK, s.rates.All())
}

func (s *Server) handleAudit(w http.ResponseWriter, r *http.Request) {
	if s.audit == nil {
		WriteErrorCtx(w, r, http.StatusServiceUnavailable, "Audit trail not enabled")
		return
	}
	limit, ok := queryInt(r, "limit", 100, 1000)
	if !ok {
		WriteErrorCtx(w, r, http.StatusBadRequest, "Invalid limit")
		return
	}
	var since time.Time
	if raw := r.URL.Query().Get("since"); raw != "" {
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			WriteErrorCtx(w, r, http.StatusBadRequest, "Invalid since")
			return
		}
		since = t
	}
	entries, err := s.audit.Query(since, time.Time{}, r.URL.Query().Get("action"), limit)
	if err != nil {
		s.logger.Error("audit query failed", "error", err)
		WriteErrorCtx(w, r, http.StatusInternalServerError, "Failed to query audit trail")
		return
	}
	if entries == nil {
		entries = []audit.Event{}
	}
	WriteJSON(w, http.StatusOK, entries)
}

func (s *Server) handleTasks(w http.ResponseWriter, r *http.Request) {
	if s.tasks == nil {
		WriteErrorCtx(w, r, http.StatusServiceUnavailable, "Scheduler not enabled")
		return
	}
	WriteJSON(w, http.StatusOK, s.tasks.Status())
}

func (s *Server) handleServices(w http.ResponseWriter, r *http.Request) {
	if s.services == nil {
		WriteErrorCtx(w, r, http.StatusServiceUnavailable, "Service status not enabled")
		return
	}
	WriteJSON(w, http.StatusOK, s.services.Status())
}

func (s *Server) handleLogs(w http.ResponseWriter, r *http.Request) {
	limit, ok := queryInt(r, "limit", 200, logging.DefaultBufferSize)
	if !ok {
		WriteErrorCtx(w, r, http.StatusBadRequest, "Invalid limit")
		return
	}
	q := r.URL.Query()
	level := q.Get("level")
	switch level {
	case "", "debug", "info", "warn", "error":
	default:
		WriteErrorCtx(w, r, http.StatusBadRequest, "Invalid level")
		return
	}
	entries := s.logs.Query(logging.LogQuery{Source: q.Get("source"), MinLevel: level, Limit: limit})
	if entries == nil {
		entries = []logging.AppLogEntry{}
	}
	WriteJSON(w, http.StatusOK, entries)
}
