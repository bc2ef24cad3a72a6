// Package notify turns committed chat state changes into typed events on
// per-user and per-room topics. It owns no transport: a Publisher delivers
// the events, whether that is the in-process websocket hub or a redis
// channel bridging several nodes.
package notify

import (
	"strconv"
	"strings"
	"time"

	"github.com/sitechat/sitechat/internal/types"
)

// Publisher delivers an event to every subscriber of a topic. Publishing is
// best-effort: implementations must not block on slow consumers.
type Publisher interface {
	Publish(topic string, event *Event)
}

type Event struct {
	Timestamp    time.Time          `json:"timestamp"`
	NewMessage   *NewMessage        `json:"new_message,omitempty"`
	UnreadDelta  *UnreadDelta       `json:"unread_delta,omitempty"`
	NewRoom      *NewRoom           `json:"new_room,omitempty"`
	Participants *ParticipantChange `json:"participants,omitempty"`
	System       *SystemNotice      `json:"system,omitempty"`
	Typing       *Typing            `json:"typing,omitempty"`
}

// NewMessage is sent to each other active participant's personal topic.
// RoomLabel is what the recipient's client shows as the conversation title:
// the room name for groups, the sender's display name for private rooms.
type NewMessage struct {
	RoomId    string        `json:"room_id"`
	RoomLabel string        `json:"room_label"`
	Message   types.Message `json:"message"`
}

// UnreadDelta carries a full recomputed count, never an increment, so it
// stays correct when sends and read-marks interleave.
type UnreadDelta struct {
	RoomId      string `json:"room_id"`
	UnreadCount int    `json:"unread_count"`
}

// NewRoom carries a full room snapshot so the recipient's client can
// materialize the room without polling.
type NewRoom struct {
	Room types.Room `json:"room"`
}

type ParticipantChange struct {
	RoomId       string              `json:"room_id"`
	Participants []types.Participant `json:"participants"`
}

// SystemNotice is a human-readable room event ("bob joined") broadcast to the
// room topic for chat-log display. It is never persisted.
type SystemNotice struct {
	RoomId string `json:"room_id"`
	Text   string `json:"text"`
}

type Typing struct {
	RoomId   string `json:"room_id"`
	UserId   int    `json:"user_id"`
	Username string `json:"username"`
}

// Topic kinds. This package owns the topic naming scheme; consumers switch
// on these instead of the literal prefixes.
const (
	TopicKindPersonal = "usr"
	TopicKindRoom     = "room"
)

func PersonalTopic(accountId int) string {
	return TopicKindPersonal + ":" + strconv.Itoa(accountId)
}

func RoomTopic(externalId string) string {
	return TopicKindRoom + ":" + externalId
}

// SplitTopic returns the topic kind and its subject.
func SplitTopic(topic string) (kind, subject string, ok bool) {
	return strings.Cut(topic, ":")
}
