package directory

import (
	"github.com/stretchr/testify/mock"
)

type MockDirectory struct {
	mock.Mock
}

func (m *MockDirectory) ResolveUsername(username string) (int, error) {
	args := m.Called(username)
	return args.Int(0), args.Error(1)
}

func (m *MockDirectory) GetDisplayName(accountId int) (string, error) {
	args := m.Called(accountId)
	return args.String(0), args.Error(1)
}

func (m *MockDirectory) IsUserActive(accountId int) (bool, error) {
	args := m.Called(accountId)
	return args.Bool(0), args.Error(1)
}
