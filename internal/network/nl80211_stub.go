//go:build !linux

package network

import "errors"

var errNL80211Unsupported = errors.New("nl80211 is only available on linux")

// NL80211 is unavailable on this platform.
type NL80211 struct{}

// NewNL80211 returns a helper whose operations always fail.
func NewNL80211(nl Netlinker) *NL80211 { return &NL80211{} }

func (n *NL80211) PhyLookup() (uint32, error)          { return 0, errNL80211Unsupported }
func (n *NL80211) AddInterface(ifname string) error    { return errNL80211Unsupported }
func (n *NL80211) RemoveInterface(ifname string) error { return errNL80211Unsupported }
