package server

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sitechat/sitechat/internal/chat"
	"github.com/sitechat/sitechat/internal/notify"
	"github.com/sitechat/sitechat/internal/types"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingInterval   = (pongWait * 9) / 10
	maxMessageSize = 4096
)

type Client struct {
	conn       *websocket.Conn
	hub        *Hub
	log        *log.Logger
	user       types.User
	send       chan *ServerFrame
	topics     map[string]struct{}
	topicsLock sync.RWMutex
	stop       chan struct{}
	stopOnce   sync.Once
}

func NewClient(user types.User, conn *websocket.Conn, hub *Hub, l *log.Logger) *Client {
	return &Client{
		conn:   conn,
		hub:    hub,
		log:    l,
		user:   user,
		send:   make(chan *ServerFrame, 256),
		topics: make(map[string]struct{}),
		stop:   make(chan struct{}),
	}
}

func (c *Client) Write() {
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		c.conn.Close()
		c.log.Println("write exiting")
	}()

	for {
		select {
		case frame, ok := <-c.send:
			if !ok {
				return
			}

			bytes, err := json.Marshal(frame)
			if err != nil {
				c.log.Println("failed to serialize frame:", err)
				continue
			}

			if !c.writeFrame(websocket.TextMessage, bytes) {
				return
			}
		case <-c.stop:
			return
		case <-ticker.C:
			if !c.writeFrame(websocket.PingMessage, nil) {
				return
			}
		}
	}
}

func (c *Client) Read() {
	defer func() {
		c.conn.Close()
		c.cleanup()
		c.log.Println("read exiting")
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(appData string) error { c.conn.SetReadDeadline(time.Now().Add(pongWait)); return nil })
	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure,
				websocket.CloseNormalClosure) {
				c.log.Printf("ws: read: %v", err)
			}
			break
		}

		var frame ClientFrame
		if err := json.Unmarshal(raw, &frame); err != nil {
			c.log.Println("error parsing frame:", err)
			c.queueFrame(ErrInvalidFrame(-1))
			continue
		}

		c.dispatch(&frame)
	}
}

func (c *Client) dispatch(frame *ClientFrame) {
	switch {
	case frame.Send != nil:
		c.handleSend(frame)
	case frame.Join != nil:
		c.handleJoin(frame)
	case frame.Leave != nil:
		c.handleLeave(frame)
	case frame.Read != nil:
		c.handleRead(frame)
	case frame.Typing != nil:
		c.handleTyping(frame)
	default:
		c.queueFrame(ErrInvalidFrame(frame.Id))
	}
}

func (c *Client) handleSend(frame *ClientFrame) {
	msg, err := c.hub.chat.SendMessage(frame.Send.RoomId, c.user.Id, chat.MessagePayload{
		Kind:     frame.Send.Kind,
		Content:  frame.Send.Content,
		FileName: frame.Send.FileName,
		FileUrl:  frame.Send.FileUrl,
		FileSize: frame.Send.FileSize,
	})
	if err != nil {
		c.queueFrame(errFrame(frame.Id, err))
		return
	}

	c.queueFrame(NoErrOK(frame.Id, map[string]any{"message": msg}))
}

func (c *Client) handleJoin(frame *ClientFrame) {
	room, err := c.hub.chat.GetRoom(frame.Join.RoomId, c.user.Id)
	if err != nil {
		c.queueFrame(errFrame(frame.Id, err))
		return
	}

	topic := notify.RoomTopic(room.ExternalId)
	c.addTopic(topic)
	c.hub.subscribe(c, topic)
	c.queueFrame(NoErrOK(frame.Id, map[string]any{"room": room}))
}

func (c *Client) handleLeave(frame *ClientFrame) {
	topic := notify.RoomTopic(frame.Leave.RoomId)
	c.delTopic(topic)
	c.hub.unsubscribe(c, topic)
	c.queueFrame(NoErrAccepted(frame.Id))
}

func (c *Client) handleRead(frame *ClientFrame) {
	if err := c.hub.chat.MarkRead(frame.Read.RoomId, c.user.Id); err != nil {
		c.queueFrame(errFrame(frame.Id, err))
		return
	}

	c.queueFrame(NoErrAccepted(frame.Id))
}

func (c *Client) handleTyping(frame *ClientFrame) {
	topic := notify.RoomTopic(frame.Typing.RoomId)
	if !c.hasTopic(topic) {
		return
	}

	c.hub.Broadcast(topic, &notify.Event{Typing: &notify.Typing{
		RoomId:   frame.Typing.RoomId,
		UserId:   c.user.Id,
		Username: c.user.Username,
	}}, c)
}

func (c *Client) queueFrame(frame *ServerFrame) bool {
	select {
	case c.send <- frame:
	default:
		c.log.Println("failed to send frame to client, channel is full")
		return false
	}

	return true
}

func (c *Client) writeFrame(msgType int, data []byte) bool {
	c.conn.SetWriteDeadline(time.Now().Add(writeWait))

	if err := c.conn.WriteMessage(msgType, data); err != nil {
		if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure,
			websocket.CloseNormalClosure) {
			c.log.Printf("write frame: %s", err)
		}
		return false
	}

	return true
}

func (c *Client) stopClient() {
	c.stopOnce.Do(func() {
		close(c.stop)
	})
}

func (c *Client) cleanup() {
	c.hub.deRegisterChan <- c
	c.stopClient()
}

func (c *Client) addTopic(topic string) {
	c.topicsLock.Lock()
	defer c.topicsLock.Unlock()
	c.topics[topic] = struct{}{}
}

func (c *Client) delTopic(topic string) {
	c.topicsLock.Lock()
	defer c.topicsLock.Unlock()
	delete(c.topics, topic)
}

func (c *Client) hasTopic(topic string) bool {
	c.topicsLock.RLock()
	defer c.topicsLock.RUnlock()
	_, ok := c.topics[topic]
	return ok
}

// errFrame translates a chat service error into a response frame with the
// matching status code.
func errFrame(id int, err error) *ServerFrame {
	switch {
	case errors.Is(err, chat.ErrRoomNotFound), errors.Is(err, chat.ErrUserNotFound):
		return ErrResponse(id, http.StatusNotFound, err.Error())
	case errors.Is(err, chat.ErrNotParticipant):
		return ErrResponse(id, http.StatusForbidden, err.Error())
	case errors.Is(err, chat.ErrEmptyMessage),
		errors.Is(err, chat.ErrFileTooLarge),
		errors.Is(err, chat.ErrFileType),
		errors.Is(err, chat.ErrUnsupportedKind),
		errors.Is(err, chat.ErrSelfTarget),
		errors.Is(err, chat.ErrEmptyRoomName),
		errors.Is(err, chat.ErrPrivateRoomRename),
		errors.Is(err, chat.ErrNoUsersToAdd):
		return ErrResponse(id, http.StatusBadRequest, err.Error())
	default:
		return ErrResponse(id, http.StatusInternalServerError, "internal server error")
	}
}
