package database

import "time"

type ChatRepository interface {
	Ping() error

	CreateAccount(params CreateAccountParams) (User, error)
	UpdateAccount(params UpdateAccountParams) (User, error)
	GetAccountById(accountId int) (User, error)
	GetAccountByEmail(email string) (User, error)

	GetRoomByExternalId(externalId string) (Room, error)
	FindPrivateRoomForPair(userA, userB int) (Room, error)
	FindRoomsForUser(accountId int) ([]Room, error)
	CreatePrivateRoom(externalId string, userA, userB int) (Room, error)
	CreateGroupRoom(externalId, name string, memberIds []int) (Room, error)
	RenameRoom(roomId int, name string) error

	GetMembership(roomId, accountId int) (Membership, error)
	ListActiveMemberships(roomId int) ([]Membership, error)
	ListAllMemberships(roomId int) ([]Membership, error)
	CreateMembership(roomId, accountId int) (Membership, error)
	SetMembershipActive(roomId, accountId int, active bool) error
	UpdateLastReadAt(roomId, accountId int, readAt time.Time) error

	CreateMessage(params CreateMessageParams) (Message, error)
	GetMessages(roomId, offset, limit int) ([]Message, error)
	CountUnreadMessages(roomId, accountId int, since *time.Time) (int, error)
}
