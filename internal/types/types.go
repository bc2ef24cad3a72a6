package types

import (
	"time"
)

type RoomKind string

const (
	RoomPrivate RoomKind = "private"
	RoomGroup   RoomKind = "group"
)

type MessageKind string

const (
	MessageText  MessageKind = "text"
	MessageImage MessageKind = "image"
	MessageFile  MessageKind = "file"
)

type User struct {
	Id           int       `json:"id"`
	Username     string    `json:"username"`
	EmailAddress string    `json:"email_address,omitempty"`
	Password     string    `json:"-"`
	CreatedAt    time.Time `json:"created_at,omitempty"`
	UpdatedAt    time.Time `json:"updated_at,omitempty"`
}

// Participant is a room member as rendered to clients. Active is false for
// members who left a private room but are kept for history display.
type Participant struct {
	Id       int    `json:"id"`
	Username string `json:"username"`
	Active   bool   `json:"active"`
}

type Room struct {
	Id                 int           `json:"id"`
	ExternalId         string        `json:"external_id"`
	Kind               RoomKind      `json:"kind"`
	Name               string        `json:"name,omitempty"`
	LastMessagePreview string        `json:"last_message_preview,omitempty"`
	LastMessageAt      *time.Time    `json:"last_message_at,omitempty"`
	UnreadCount        int           `json:"unread_count"`
	Participants       []Participant `json:"participants,omitempty"`
	CreatedAt          time.Time     `json:"created_at,omitempty"`
	UpdatedAt          time.Time     `json:"updated_at,omitempty"`
}

type Message struct {
	Id         int         `json:"id"`
	RoomId     string      `json:"room_id"`
	SenderId   int         `json:"sender_id"`
	SenderName string      `json:"sender_name,omitempty"`
	Kind       MessageKind `json:"kind"`
	Content    string      `json:"content,omitempty"`
	FileName   string      `json:"file_name,omitempty"`
	FileUrl    string      `json:"file_url,omitempty"`
	FileSize   int64       `json:"file_size,omitempty"`
	Timestamp  time.Time   `json:"timestamp"`
}
