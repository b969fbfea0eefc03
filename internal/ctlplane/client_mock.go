package ctlplane

import (
	"grimm.is/wlanctl/internal/network"
	"grimm.is/wlanctl/internal/wifi"

	"github.com/stretchr/testify/mock"
)

// MockControlPlaneClient is a mock implementation of ControlPlaneClient for testing.
type MockControlPlaneClient struct {
	mock.Mock
}

func (m *MockControlPlaneClient) Close() error {
	args := m.Called()
	return args.Error(0)
}

func (m *MockControlPlaneClient) StartSupplicant(role string) error {
	args := m.Called(role)
	return args.Error(0)
}

func (m *MockControlPlaneClient) StopSupplicant(role string) error {
	args := m.Called(role)
	return args.Error(0)
}

func (m *MockControlPlaneClient) Connect() (string, error) {
	args := m.Called()
	return args.String(0), args.Error(1)
}

func (m *MockControlPlaneClient) Disconnect(wait bool) error {
	args := m.Called(wait)
	return args.Error(0)
}

func (m *MockControlPlaneClient) Command(cmd string) (string, error) {
	args := m.Called(cmd)
	return args.String(0), args.Error(1)
}

func (m *MockControlPlaneClient) Status() (*wifi.Status, error) {
	args := m.Called()
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*wifi.Status), args.Error(1)
}

func (m *MockControlPlaneClient) LoadDriver() error {
	args := m.Called()
	return args.Error(0)
}

func (m *MockControlPlaneClient) UnloadDriver() error {
	args := m.Called()
	return args.Error(0)
}

func (m *MockControlPlaneClient) DHCPRequest() (*network.LeaseInfo, error) {
	args := m.Called()
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*network.LeaseInfo), args.Error(1)
}
