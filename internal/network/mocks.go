package network

import (
	"github.com/stretchr/testify/mock"
	"github.com/vishvananda/netlink"
)

// MockNetlinker records netlink calls for tests.
type MockNetlinker struct {
	mock.Mock
}

func (m *MockNetlinker) LinkByName(name string) (netlink.Link, error) {
	args := m.Called(name)
	link, _ := args.Get(0).(netlink.Link)
	return link, args.Error(1)
}

func (m *MockNetlinker) AddrReplace(link netlink.Link, addr *netlink.Addr) error {
	return m.Called(link, addr).Error(0)
}

func (m *MockNetlinker) RouteReplace(route *netlink.Route) error {
	return m.Called(route).Error(0)
}

// MockCommandExecutor matches expectations against the program name
// followed by each argument, e.g. On("RunCommand", "systemctl", "start", "x").
type MockCommandExecutor struct {
	mock.Mock
}

func (m *MockCommandExecutor) RunCommand(name string, arg ...string) (string, error) {
	call := make([]any, 0, len(arg)+1)
	call = append(call, name)
	for _, a := range arg {
		call = append(call, a)
	}
	args := m.Called(call...)
	return args.String(0), args.Error(1)
}
