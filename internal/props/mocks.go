package props

import "github.com/stretchr/testify/mock"

// MockServiceControl is a mock implementation of the ServiceControl interface.
type MockServiceControl struct {
	mock.Mock
}

func (m *MockServiceControl) Signal(name, action string) error {
	args := m.Called(name, action)
	return args.Error(0)
}
