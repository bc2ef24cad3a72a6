package database

import (
	"database/sql"
	"fmt"
	"time"
)

const (
	RoomKindPrivate = "private"
	RoomKindGroup   = "group"
)

type User struct {
	Id           int
	Username     string
	EmailAddress string
	PasswordHash string
	Active       bool
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

type Room struct {
	Id                 int
	ExternalId         string
	Kind               string
	Name               sql.NullString
	PairKey            sql.NullString
	LastMessagePreview string
	LastMessageAt      sql.NullTime
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

type Membership struct {
	Id         int
	RoomId     int
	AccountId  int
	Username   string
	Active     bool
	JoinedAt   time.Time
	LastReadAt sql.NullTime
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

type Message struct {
	Id         int
	RoomId     int
	SenderId   int
	SenderName string
	Kind       string
	Content    string
	FileName   sql.NullString
	FileUrl    sql.NullString
	FileSize   sql.NullInt64
	CreatedAt  time.Time
}

type CreateAccountParams struct {
	Username     string
	EmailAddress string
	PasswordHash string
}

type UpdateAccountParams struct {
	UserId       int
	Username     string
	PasswordHash string
}

type CreateMessageParams struct {
	RoomId   int
	SenderId int
	Kind     string
	Content  string
	FileName sql.NullString
	FileUrl  sql.NullString
	FileSize sql.NullInt64
	// Preview is written to the room's last_message_preview in the same
	// transaction as the message insert.
	Preview string
	// ReactivateIds are memberships flipped active in the same transaction
	// as the insert. A failed send must not revive a departed member.
	ReactivateIds []int
}

// PairKey is the unordered identity of a private room's two participants.
// The unique index on rooms.pair_key is what prevents two concurrent
// get-or-create calls from producing two rooms for the same pair.
func PairKey(userA, userB int) string {
	if userB < userA {
		userA, userB = userB, userA
	}
	return fmt.Sprintf("%d:%d", userA, userB)
}
