package network

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/insomniacslk/dhcp/dhcpv4"
	"github.com/insomniacslk/dhcp/dhcpv4/nclient4"
	"github.com/vishvananda/netlink"

	"grimm.is/wlanctl/internal/logging"
)

// DefaultDHCPTimeout bounds a full DORA exchange.
const DefaultDHCPTimeout = 30 * time.Second

// LeaseRequester performs the DHCP exchange on an interface.
type LeaseRequester func(ctx context.Context, iface string) (*nclient4.Lease, error)

// DHCPClient obtains a lease on the primary interface and applies it.
type DHCPClient struct {
	nl       Netlinker
	request  LeaseRequester
	testIfc  string
	timeout  time.Duration
	logger   *logging.Logger
	mu       sync.Mutex
	lastErr  string
	lastInfo *LeaseInfo
}

// DHCPOption configures a DHCPClient.
type DHCPOption func(*DHCPClient)

// WithLeaseRequester replaces the nclient4 exchange, mainly for tests.
func WithLeaseRequester(r LeaseRequester) DHCPOption {
	return func(c *DHCPClient) { c.request = r }
}

// WithTestInterface names the interface that always succeeds without I/O.
func WithTestInterface(name string) DHCPOption {
	return func(c *DHCPClient) { c.testIfc = name }
}

// WithDHCPTimeout overrides DefaultDHCPTimeout.
func WithDHCPTimeout(d time.Duration) DHCPOption {
	return func(c *DHCPClient) { c.timeout = d }
}

// NewDHCPClient creates a DHCP client using nl to apply leases.
func NewDHCPClient(nl Netlinker, opts ...DHCPOption) *DHCPClient {
	if nl == nil {
		nl = DefaultNetlinker
	}
	c := &DHCPClient{
		nl:      nl,
		request: nclientRequest,
		testIfc: "sta",
		timeout: DefaultDHCPTimeout,
		logger:  logging.WithComponent("dhcp"),
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

func nclientRequest(ctx context.Context, iface string) (*nclient4.Lease, error) {
	client, err := nclient4.New(iface)
	if err != nil {
		return nil, fmt.Errorf("failed to create DHCP client for %s: %w", iface, err)
	}
	defer client.Close()
	return client.Request(ctx)
}

// Request runs a DHCP exchange on iface, applies the lease and returns it.
// The test interface reports success with an empty lease.
func (c *DHCPClient) Request(ctx context.Context, iface string) (*LeaseInfo, error) {
	if iface == c.testIfc {
		return &LeaseInfo{Interface: iface}, nil
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	lease, err := c.request(ctx, iface)
	if err != nil {
		c.setError(err)
		return nil, fmt.Errorf("dhcp request on %s: %w", iface, err)
	}
	if lease == nil || lease.ACK == nil {
		err := errors.New("no ACK received")
		c.setError(err)
		return nil, fmt.Errorf("dhcp request on %s: %w", iface, err)
	}

	if err := c.apply(iface, lease.ACK); err != nil {
		c.setError(err)
		return nil, err
	}

	info := leaseInfo(iface, lease.ACK)
	c.mu.Lock()
	c.lastErr = ""
	c.lastInfo = info
	c.mu.Unlock()

	c.logger.Info("lease obtained", "iface", iface, "ip", info.IPAddress, "gateway", info.Gateway, "lease", info.LeaseTime)
	return info, nil
}

// LastError returns the text of the most recent failure, or "".
func (c *DHCPClient) LastError() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastErr
}

// LastLease returns the most recent successful lease, if any.
func (c *DHCPClient) LastLease() *LeaseInfo {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastInfo
}

func (c *DHCPClient) setError(err error) {
	c.mu.Lock()
	c.lastErr = err.Error()
	c.mu.Unlock()
	c.logger.Warn("dhcp failed", "error", err)
}

func leaseInfo(iface string, ack *dhcpv4.DHCPv4) *LeaseInfo {
	info := &LeaseInfo{
		Interface: iface,
		IPAddress: ack.YourIPAddr,
		Server:    ack.ServerIdentifier(),
		LeaseTime: ack.IPAddressLeaseTime(0),
	}
	if m := ack.SubnetMask(); m != nil {
		info.Mask = net.IP(m)
	}
	if routers := ack.Router(); len(routers) > 0 {
		info.Gateway = routers[0]
	}
	dns := ack.DNS()
	if len(dns) > 0 {
		info.DNS1 = dns[0]
	}
	if len(dns) > 1 {
		info.DNS2 = dns[1]
	}
	return info
}

// apply assigns the leased address and installs the gateway route.
func (c *DHCPClient) apply(iface string, ack *dhcpv4.DHCPv4) error {
	link, err := c.nl.LinkByName(iface)
	if err != nil {
		return fmt.Errorf("interface %s not found: %w", iface, err)
	}

	addr := &netlink.Addr{IPNet: &net.IPNet{IP: ack.YourIPAddr, Mask: ack.SubnetMask()}}
	c.logger.Debug("assigning address", "iface", iface, "addr", addr.IPNet)
	if err := c.nl.AddrReplace(link, addr); err != nil {
		return fmt.Errorf("failed to assign %s: %w", addr.IPNet, err)
	}

	routers := ack.Router()
	if len(routers) == 0 {
		return nil
	}
	route := &netlink.Route{Gw: routers[0], LinkIndex: link.Attrs().Index}
	if err := c.nl.RouteReplace(route); err != nil {
		return fmt.Errorf("failed to install default route via %s: %w", routers[0], err)
	}
	return nil
}
