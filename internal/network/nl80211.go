//go:build linux

package network

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/mdlayher/genetlink"
	"github.com/mdlayher/netlink"
	"golang.org/x/sys/unix"

	"grimm.is/wlanctl/internal/logging"
)

// DefaultPhyRoot is where the kernel lists wireless phys.
const DefaultPhyRoot = "/sys/class/ieee80211"

// genlConn is the subset of *genetlink.Conn used here.
type genlConn interface {
	GetFamily(name string) (genetlink.Family, error)
	Execute(m genetlink.Message, family uint16, flags netlink.HeaderFlags) ([]genetlink.Message, error)
	Close() error
}

// NL80211 adds and removes virtual wireless interfaces.
type NL80211 struct {
	nl      Netlinker
	phyRoot string
	dial    func() (genlConn, error)
	logger  *logging.Logger
}

// NewNL80211 creates an nl80211 helper using nl for ifindex lookups.
func NewNL80211(nl Netlinker) *NL80211 {
	if nl == nil {
		nl = DefaultNetlinker
	}
	return &NL80211{
		nl:      nl,
		phyRoot: DefaultPhyRoot,
		dial: func() (genlConn, error) {
			return genetlink.Dial(nil)
		},
		logger: logging.WithComponent("nl80211"),
	}
}

// PhyLookup returns the index of the only phy on the system.
// Zero or several phys is an error.
func (n *NL80211) PhyLookup() (uint32, error) {
	entries, err := os.ReadDir(n.phyRoot)
	if err != nil {
		return 0, fmt.Errorf("read %s: %w", n.phyRoot, err)
	}
	if len(entries) != 1 {
		return 0, fmt.Errorf("unexpected - found %d phys in %s", len(entries), n.phyRoot)
	}
	data, err := os.ReadFile(filepath.Join(n.phyRoot, entries[0].Name(), "index"))
	if err != nil {
		return 0, err
	}
	idx, err := strconv.ParseUint(strings.TrimSpace(string(data)), 10, 32)
	if err != nil {
		return 0, fmt.Errorf("parse phy index: %w", err)
	}
	return uint32(idx), nil
}

// AddInterface creates a station-type interface named ifname on the phy.
func (n *NL80211) AddInterface(ifname string) error {
	wiphy, err := n.PhyLookup()
	if err != nil {
		return err
	}
	data, err := encodeNewInterface(wiphy, ifname, unix.NL80211_IFTYPE_STATION)
	if err != nil {
		return err
	}
	if err := n.execute(unix.NL80211_CMD_NEW_INTERFACE, data); err != nil {
		return fmt.Errorf("could not add interface %s: %w", ifname, err)
	}
	n.logger.Info("added interface", "iface", ifname, "wiphy", wiphy)
	return nil
}

// RemoveInterface deletes ifname.
func (n *NL80211) RemoveInterface(ifname string) error {
	link, err := n.nl.LinkByName(ifname)
	if err != nil {
		return fmt.Errorf("failed to translate ifname to idx: %w", err)
	}
	data, err := encodeDelInterface(uint32(link.Attrs().Index))
	if err != nil {
		return err
	}
	if err := n.execute(unix.NL80211_CMD_DEL_INTERFACE, data); err != nil {
		return fmt.Errorf("could not remove interface %s: %w", ifname, err)
	}
	n.logger.Info("removed interface", "iface", ifname)
	return nil
}

func (n *NL80211) execute(cmd uint8, data []byte) error {
	conn, err := n.dial()
	if err != nil {
		return fmt.Errorf("genetlink dial: %w", err)
	}
	defer conn.Close()

	family, err := conn.GetFamily(unix.NL80211_GENL_NAME)
	if err != nil {
		return fmt.Errorf("nl80211 not found: %w", err)
	}

	msg := genetlink.Message{
		Header: genetlink.Header{
			Command: cmd,
			Version: family.Version,
		},
		Data: data,
	}
	_, err = conn.Execute(msg, family.ID, netlink.Request|netlink.Acknowledge)
	return err
}

func encodeNewInterface(wiphy uint32, ifname string, iftype uint32) ([]byte, error) {
	ae := netlink.NewAttributeEncoder()
	ae.Uint32(unix.NL80211_ATTR_WIPHY, wiphy)
	ae.String(unix.NL80211_ATTR_IFNAME, ifname)
	ae.Uint32(unix.NL80211_ATTR_IFTYPE, iftype)
	return ae.Encode()
}

func encodeDelInterface(ifindex uint32) ([]byte, error) {
	ae := netlink.NewAttributeEncoder()
	ae.Uint32(unix.NL80211_ATTR_IFINDEX, ifindex)
	return ae.Encode()
}
