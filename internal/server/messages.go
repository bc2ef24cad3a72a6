package server

import (
	"net/http"
	"time"

	"github.com/sitechat/sitechat/internal/notify"
	"github.com/sitechat/sitechat/internal/types"
)

type BaseFrame struct {
	Id        int       `json:"id,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// ClientFrame is one websocket request from a client. Exactly one of the
// operation fields is set.
type ClientFrame struct {
	BaseFrame
	Send   *SendFrame   `json:"send,omitempty"`
	Join   *JoinFrame   `json:"join,omitempty"`
	Leave  *LeaveFrame  `json:"leave,omitempty"`
	Read   *ReadFrame   `json:"read,omitempty"`
	Typing *TypingFrame `json:"typing,omitempty"`
}

type SendFrame struct {
	RoomId   string            `json:"room_id"`
	Kind     types.MessageKind `json:"kind"`
	Content  string            `json:"content"`
	FileName string            `json:"file_name,omitempty"`
	FileUrl  string            `json:"file_url,omitempty"`
	FileSize int64             `json:"file_size,omitempty"`
}

// JoinFrame subscribes the connection to a room's broadcast topic. It does
// not touch membership; joining a room is a REST operation.
type JoinFrame struct {
	RoomId string `json:"room_id"`
}

// LeaveFrame drops the topic subscription only, the membership survives.
type LeaveFrame struct {
	RoomId string `json:"room_id"`
}

type ReadFrame struct {
	RoomId string `json:"room_id"`
}

// TypingFrame is relayed to the room's other subscribers and never persisted.
type TypingFrame struct {
	RoomId string `json:"room_id"`
}

// ServerFrame is one websocket message to a client: either a response to a
// client frame (correlated by Id) or a pushed event.
type ServerFrame struct {
	BaseFrame
	Response *Response     `json:"response,omitempty"`
	Event    *notify.Event `json:"event,omitempty"`
}

type Response struct {
	ResponseCode int            `json:"response_code"`
	Error        string         `json:"error,omitempty"`
	Data         map[string]any `json:"data,omitempty"`
}

func NoErrOK(id int, data map[string]any) *ServerFrame {
	return &ServerFrame{
		BaseFrame: BaseFrame{
			Id:        id,
			Timestamp: Now(),
		},
		Response: &Response{
			ResponseCode: http.StatusOK,
			Data:         data,
		},
	}
}

func NoErrAccepted(id int) *ServerFrame {
	return &ServerFrame{
		BaseFrame: BaseFrame{
			Id:        id,
			Timestamp: Now(),
		},
		Response: &Response{
			ResponseCode: http.StatusAccepted,
		},
	}
}

func ErrResponse(id, code int, text string) *ServerFrame {
	return &ServerFrame{
		BaseFrame: BaseFrame{
			Id:        id,
			Timestamp: Now(),
		},
		Response: &Response{
			ResponseCode: code,
			Error:        text,
		},
	}
}

func ErrInvalidFrame(id int) *ServerFrame {
	return ErrResponse(id, http.StatusBadRequest, "invalid message format")
}

func EventFrame(event *notify.Event) *ServerFrame {
	return &ServerFrame{
		BaseFrame: BaseFrame{Timestamp: Now()},
		Event:     event,
	}
}

func Now() time.Time {
	return time.Now().UTC().Round(time.Millisecond)
}
