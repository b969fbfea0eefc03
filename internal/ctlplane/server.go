package ctlplane

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/rpc"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/gofrs/flock"

	"grimm.is/wlanctl/internal/audit"
	"grimm.is/wlanctl/internal/lifecycle"
	"grimm.is/wlanctl/internal/logging"
	"grimm.is/wlanctl/internal/metrics"
	"grimm.is/wlanctl/internal/network"
	"grimm.is/wlanctl/internal/wifi"
)

// DefaultOpTimeout bounds one RPC-triggered operation.
const DefaultOpTimeout = 60 * time.Second

// ErrAlreadyServing is returned by Start when another server holds the lock.
var ErrAlreadyServing = errors.New("another wlanctl server is running")

// Backend carries out control plane requests. *wifi.Manager implements it.
type Backend interface {
	StartSupplicant(ctx context.Context, role lifecycle.Role) error
	StopSupplicant(ctx context.Context, role lifecycle.Role) error
	Connect(ctx context.Context) (string, error)
	Disconnect(ctx context.Context) error
	CloseSupplicantConnection(ctx context.Context) error
	Command(cmd string) (string, error)
	Status() wifi.Status
	LoadDriver() error
	UnloadDriver() error
	DHCPRequest(ctx context.Context) (*network.LeaseInfo, error)
}

var _ Backend = (*wifi.Manager)(nil)

// Auditor records mutating requests. *audit.Store implements it.
type Auditor interface {
	Write(evt audit.Event) error
}

// Server is the control plane RPC server
type Server struct {
	backend    Backend
	auditor    Auditor
	socketPath string
	lock       *flock.Flock
	timeout    time.Duration
	logger     *logging.Logger

	listener net.Listener
	conns    map[net.Conn]struct{}
	ctx      context.Context
	cancel   context.CancelFunc
	wg       sync.WaitGroup
	mu       sync.Mutex
}

// NewServer creates a server for backend. Empty paths use SocketPath and
// LockPath.
func NewServer(backend Backend, socketPath, lockPath string) *Server {
	if socketPath == "" {
		socketPath = SocketPath
	}
	if lockPath == "" {
		lockPath = LockPath
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Server{
		backend:    backend,
		socketPath: socketPath,
		lock:       flock.New(lockPath),
		timeout:    DefaultOpTimeout,
		conns:      make(map[net.Conn]struct{}),
		logger:     logging.WithComponent("ctlplane"),
		ctx:        ctx,
		cancel:     cancel,
	}
}

// SetTimeout overrides DefaultOpTimeout.
func (s *Server) SetTimeout(d time.Duration) {
	s.timeout = d
}

// SetAuditor records every mutating request to a. Call before Start.
func (s *Server) SetAuditor(a Auditor) {
	s.auditor = a
}

// Start acquires the instance lock and starts the RPC server on the Unix socket
func (s *Server) Start() error {
	if err := os.MkdirAll(filepath.Dir(s.socketPath), 0o755); err != nil {
		return fmt.Errorf("create socket dir: %w", err)
	}

	ok, err := s.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return fmt.Errorf("%w (lock %s)", ErrAlreadyServing, s.lock.Path())
	}

	// The lock guarantees nobody else is serving on a leftover socket.
	os.Remove(s.socketPath)

	listener, err := net.Listen("unix", s.socketPath)
	if err != nil {
		s.lock.Unlock()
		return fmt.Errorf("failed to listen on %s: %w", s.socketPath, err)
	}
	if err := os.Chmod(s.socketPath, 0o660); err != nil {
		listener.Close()
		s.lock.Unlock()
		return fmt.Errorf("failed to set socket permissions: %w", err)
	}

	if err := s.StartWithListener(listener); err != nil {
		listener.Close()
		s.lock.Unlock()
		return err
	}
	return nil
}

// newRPCServer exposes h as the "Wlan" service.
func newRPCServer(h *Handler) (*rpc.Server, error) {
	srv := rpc.NewServer()
	if err := srv.RegisterName("Wlan", h); err != nil {
		return nil, fmt.Errorf("failed to register RPC service: %w", err)
	}
	return srv, nil
}

// StartWithListener starts the RPC server with an existing listener.
//
// Every connection gets its own rpc.Server (see serveConn). The registration
// here is only a startup check, so a Handler method set that net/rpc rejects
// fails Start rather than each client connection.
func (s *Server) StartWithListener(listener net.Listener) error {
	if _, err := newRPCServer(&Handler{srv: s}); err != nil {
		return err
	}

	s.mu.Lock()
	s.listener = listener
	s.mu.Unlock()

	s.logger.Info("control plane listening", "addr", listener.Addr())

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		for {
			conn, err := listener.Accept()
			if err != nil {
				if !errors.Is(err, net.ErrClosed) {
					s.logger.Error("accept failed", "error", err)
				}
				return
			}
			s.mu.Lock()
			s.conns[conn] = struct{}{}
			s.mu.Unlock()
			go s.serveConn(conn)
		}
	}()
	return nil
}

// serveConn runs one RPC session. Each connection gets its own Handler so
// audit records carry the peer's credentials.
func (s *Server) serveConn(conn net.Conn) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("RPC connection handler panicked", "panic", r)
		}
		s.mu.Lock()
		delete(s.conns, conn)
		s.mu.Unlock()
	}()

	h := &Handler{srv: s, peer: peerCred(conn)}
	srv, err := newRPCServer(h)
	if err != nil {
		s.logger.Error("control client rejected", "error", err)
		conn.Close()
		return
	}
	s.logger.Debug("control client connected", "peer", h.peer)
	srv.ServeConn(conn)
}

// Stop closes the listener and every client connection, cancels in-flight
// operations and releases the lock.
func (s *Server) Stop() error {
	s.cancel()
	s.mu.Lock()
	l := s.listener
	s.listener = nil
	for c := range s.conns {
		c.Close()
	}
	s.mu.Unlock()
	if l != nil {
		l.Close()
	}
	s.wg.Wait()
	if s.lock.Locked() {
		os.Remove(s.socketPath)
		return s.lock.Unlock()
	}
	return nil
}

func (s *Server) opContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(s.ctx, s.timeout)
}

// Handler serves the "Wlan" RPC service for one connection.
type Handler struct {
	srv  *Server
	peer string
}

// finish logs the outcome of op and writes it to the audit trail.
func (h *Handler) finish(op, resource string, err error) {
	s := h.srv
	if err != nil {
		s.logger.Warn(op+" failed", "resource", resource, "peer", h.peer, "error", err)
	} else {
		s.logger.Debug(op, "resource", resource, "peer", h.peer)
	}
	if s.auditor == nil {
		return
	}
	evt := audit.Event{Action: op, Resource: resource, Peer: h.peer}
	if err != nil {
		evt.Error = err.Error()
		evt.Codes = errorCodes(err)
	}
	if werr := s.auditor.Write(evt); werr != nil {
		s.logger.Warn("audit write failed", "action", op, "error", werr)
	}
}

// StartSupplicant starts the daemon for a role
func (h *Handler) StartSupplicant(args *RoleArgs, reply *ResultReply) error {
	ctx, cancel := h.srv.opContext()
	defer cancel()
	err := h.srv.backend.StartSupplicant(ctx, lifecycle.Role(args.Role))
	h.finish("start", args.Role, err)
	reply.set(err)
	return nil
}

// StopSupplicant stops the daemon for a role
func (h *Handler) StopSupplicant(args *RoleArgs, reply *ResultReply) error {
	ctx, cancel := h.srv.opContext()
	defer cancel()
	err := h.srv.backend.StopSupplicant(ctx, lifecycle.Role(args.Role))
	h.finish("stop", args.Role, err)
	reply.set(err)
	return nil
}

// Connect opens the supplicant session
func (h *Handler) Connect(args *Empty, reply *ConnectReply) error {
	ctx, cancel := h.srv.opContext()
	defer cancel()
	id, err := h.srv.backend.Connect(ctx)
	h.finish("connect", id, err)
	reply.Session = id
	reply.set(err)
	return nil
}

// Disconnect closes the supplicant session
func (h *Handler) Disconnect(args *DisconnectArgs, reply *ResultReply) error {
	ctx, cancel := h.srv.opContext()
	defer cancel()
	var err error
	if args.Wait {
		err = h.srv.backend.CloseSupplicantConnection(ctx)
	} else {
		err = h.srv.backend.Disconnect(ctx)
	}
	h.finish("disconnect", "", err)
	reply.set(err)
	return nil
}

// Command sends a control command on the open session. Only the verb is
// logged and audited; arguments may carry credentials.
func (h *Handler) Command(args *CommandArgs, reply *CommandReply) error {
	r, err := h.srv.backend.Command(args.Command)
	h.finish("command", metrics.CommandVerb(args.Command), err)
	reply.Reply = r
	reply.set(err)
	return nil
}

// Status returns a snapshot of the manager
func (h *Handler) Status(args *Empty, reply *StatusReply) error {
	reply.Status = h.srv.backend.Status()
	return nil
}

// LoadDriver powers on and loads the radio driver
func (h *Handler) LoadDriver(args *Empty, reply *ResultReply) error {
	err := h.srv.backend.LoadDriver()
	h.finish("driver_load", "", err)
	reply.set(err)
	return nil
}

// UnloadDriver unloads the radio driver
func (h *Handler) UnloadDriver(args *Empty, reply *ResultReply) error {
	err := h.srv.backend.UnloadDriver()
	h.finish("driver_unload", "", err)
	reply.set(err)
	return nil
}

// DHCPRequest obtains a lease on the primary interface
func (h *Handler) DHCPRequest(args *Empty, reply *DHCPRequestReply) error {
	ctx, cancel := h.srv.opContext()
	defer cancel()
	info, err := h.srv.backend.DHCPRequest(ctx)
	resource := ""
	if info != nil {
		resource = info.Interface
		reply.Lease = *info
	}
	h.finish("dhcp", resource, err)
	reply.set(err)
	return nil
}
