package ctlplane

import (
	"errors"
	"fmt"
	"io"
	"net"
	"net/rpc"
	"sync"
	"syscall"

	"grimm.is/wlanctl/internal/network"
	"grimm.is/wlanctl/internal/wifi"
)

// Client talks to a running "wlanctl serve" over its control socket. A call
// that finds the connection dead redials once and retries.
type Client struct {
	path string

	mu  sync.Mutex
	rpc *rpc.Client
}

var _ ControlPlaneClient = (*Client)(nil)

// NewClient connects to the control plane at path, or SocketPath when empty.
func NewClient(path string) (*Client, error) {
	if path == "" {
		path = SocketPath
	}
	c := &Client{path: path}
	if _, err := c.conn(nil); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.rpc == nil {
		return nil
	}
	err := c.rpc.Close()
	c.rpc = nil
	return err
}

// conn returns the live connection, dialing a new one when there is none or
// when the current one is stale.
func (c *Client) conn(stale *rpc.Client) (*rpc.Client, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.rpc != nil && c.rpc != stale {
		return c.rpc, nil
	}
	if c.rpc != nil {
		c.rpc.Close()
		c.rpc = nil
	}
	rc, err := rpc.Dial("unix", c.path)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to control plane at %s: %w", c.path, err)
	}
	c.rpc = rc
	return rc, nil
}

// connectionLost reports whether err means the socket went away, as opposed
// to an error returned by the daemon.
func connectionLost(err error) bool {
	var opErr *net.OpError
	return errors.Is(err, rpc.ErrShutdown) ||
		errors.Is(err, io.EOF) ||
		errors.Is(err, io.ErrUnexpectedEOF) ||
		errors.Is(err, net.ErrClosed) ||
		errors.Is(err, syscall.EPIPE) ||
		errors.As(err, &opErr)
}

func (c *Client) call(method string, args, reply any) error {
	rc, err := c.conn(nil)
	if err != nil {
		return err
	}
	err = rc.Call("Wlan."+method, args, reply)
	if err == nil || !connectionLost(err) {
		return err
	}
	rc, dialErr := c.conn(rc)
	if dialErr != nil {
		return fmt.Errorf("%s: %v; redial: %w", method, err, dialErr)
	}
	return rc.Call("Wlan."+method, args, reply)
}

// do runs a method whose reply carries nothing but a Result.
func (c *Client) do(method string, args any) error {
	var reply ResultReply
	if err := c.call(method, args, &reply); err != nil {
		return err
	}
	return reply.Err()
}

func (c *Client) StartSupplicant(role string) error {
	return c.do("StartSupplicant", &RoleArgs{Role: role})
}

func (c *Client) StopSupplicant(role string) error {
	return c.do("StopSupplicant", &RoleArgs{Role: role})
}

// Connect returns the session id.
func (c *Client) Connect() (string, error) {
	var reply ConnectReply
	if err := c.call("Connect", &Empty{}, &reply); err != nil {
		return "", err
	}
	return reply.Session, reply.Err()
}

func (c *Client) Disconnect(wait bool) error {
	return c.do("Disconnect", &DisconnectArgs{Wait: wait})
}

// Command returns the daemon's reply text. A FAIL reply comes back together
// with an error matching supplicant.ErrCommandFailed.
func (c *Client) Command(cmd string) (string, error) {
	var reply CommandReply
	if err := c.call("Command", &CommandArgs{Command: cmd}, &reply); err != nil {
		return "", err
	}
	return reply.Reply, reply.Err()
}

func (c *Client) Status() (*wifi.Status, error) {
	var reply StatusReply
	if err := c.call("Status", &Empty{}, &reply); err != nil {
		return nil, err
	}
	return &reply.Status, nil
}

func (c *Client) LoadDriver() error   { return c.do("LoadDriver", &Empty{}) }
func (c *Client) UnloadDriver() error { return c.do("UnloadDriver", &Empty{}) }

func (c *Client) DHCPRequest() (*network.LeaseInfo, error) {
	var reply DHCPRequestReply
	if err := c.call("DHCPRequest", &Empty{}, &reply); err != nil {
		return nil, err
	}
	if err := reply.Err(); err != nil {
		return nil, err
	}
	return &reply.Lease, nil
}
