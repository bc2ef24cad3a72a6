package database

import (
	"time"

	"github.com/stretchr/testify/mock"
)

type MockChatRepository struct {
	mock.Mock
}

func (m *MockChatRepository) Ping() error {
	args := m.Called()
	return args.Error(0)
}
func (m *MockChatRepository) CreateAccount(params CreateAccountParams) (User, error) {
	args := m.Called(params)
	return args.Get(0).(User), args.Error(1)
}
func (m *MockChatRepository) UpdateAccount(params UpdateAccountParams) (User, error) {
	args := m.Called(params)
	return args.Get(0).(User), args.Error(1)
}
func (m *MockChatRepository) GetAccountById(accountId int) (User, error) {
	args := m.Called(accountId)
	return args.Get(0).(User), args.Error(1)
}
func (m *MockChatRepository) GetAccountByEmail(email string) (User, error) {
	args := m.Called(email)
	return args.Get(0).(User), args.Error(1)
}
func (m *MockChatRepository) GetRoomByExternalId(externalId string) (Room, error) {
	args := m.Called(externalId)
	return args.Get(0).(Room), args.Error(1)
}
func (m *MockChatRepository) FindPrivateRoomForPair(userA, userB int) (Room, error) {
	args := m.Called(userA, userB)
	return args.Get(0).(Room), args.Error(1)
}
func (m *MockChatRepository) FindRoomsForUser(accountId int) ([]Room, error) {
	args := m.Called(accountId)
	return args.Get(0).([]Room), args.Error(1)
}
func (m *MockChatRepository) CreatePrivateRoom(externalId string, userA, userB int) (Room, error) {
	args := m.Called(externalId, userA, userB)
	return args.Get(0).(Room), args.Error(1)
}
func (m *MockChatRepository) CreateGroupRoom(externalId, name string, memberIds []int) (Room, error) {
	args := m.Called(externalId, name, memberIds)
	return args.Get(0).(Room), args.Error(1)
}
func (m *MockChatRepository) RenameRoom(roomId int, name string) error {
	args := m.Called(roomId, name)
	return args.Error(0)
}
func (m *MockChatRepository) GetMembership(roomId, accountId int) (Membership, error) {
	args := m.Called(roomId, accountId)
	return args.Get(0).(Membership), args.Error(1)
}
func (m *MockChatRepository) ListActiveMemberships(roomId int) ([]Membership, error) {
	args := m.Called(roomId)
	return args.Get(0).([]Membership), args.Error(1)
}
func (m *MockChatRepository) ListAllMemberships(roomId int) ([]Membership, error) {
	args := m.Called(roomId)
	return args.Get(0).([]Membership), args.Error(1)
}
func (m *MockChatRepository) CreateMembership(roomId, accountId int) (Membership, error) {
	args := m.Called(roomId, accountId)
	return args.Get(0).(Membership), args.Error(1)
}
func (m *MockChatRepository) SetMembershipActive(roomId, accountId int, active bool) error {
	args := m.Called(roomId, accountId, active)
	return args.Error(0)
}
func (m *MockChatRepository) UpdateLastReadAt(roomId, accountId int, readAt time.Time) error {
	args := m.Called(roomId, accountId, readAt)
	return args.Error(0)
}
func (m *MockChatRepository) CreateMessage(params CreateMessageParams) (Message, error) {
	args := m.Called(params)
	return args.Get(0).(Message), args.Error(1)
}
func (m *MockChatRepository) GetMessages(roomId, offset, limit int) ([]Message, error) {
	args := m.Called(roomId, offset, limit)
	return args.Get(0).([]Message), args.Error(1)
}
func (m *MockChatRepository) CountUnreadMessages(roomId, accountId int, since *time.Time) (int, error) {
	args := m.Called(roomId, accountId, since)
	return args.Int(0), args.Error(1)
}
