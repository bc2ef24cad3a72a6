package server

import (
	"log"
	"strconv"
	"sync"

	"github.com/sitechat/sitechat/internal/chat"
	"github.com/sitechat/sitechat/internal/notify"
)

type subscription struct {
	client *Client
	topic  string
}

type delivery struct {
	topic string
	event *notify.Event
	skip  *Client
}

// Hub routes notification events to websocket connections. It is the
// in-process notify.Publisher: personal topics reach every connection of the
// user, room topics reach every connection subscribed to the room. All
// routing state is owned by the Run loop.
type Hub struct {
	log            *log.Logger
	chat           *chat.Service
	RegisterChan   chan *Client
	deRegisterChan chan *Client
	subChan        chan subscription
	unsubChan      chan subscription
	deliverChan    chan delivery
	users          map[int]map[*Client]struct{}
	rooms          map[string]map[*Client]struct{}
	clients        map[*Client]struct{}
	clientsLock    sync.Mutex
	stop           chan struct{}
	done           chan struct{}
}

func NewHub(logger *log.Logger, chatService *chat.Service) *Hub {
	return &Hub{
		log:            logger,
		chat:           chatService,
		RegisterChan:   make(chan *Client),
		deRegisterChan: make(chan *Client),
		subChan:        make(chan subscription, 256),
		unsubChan:      make(chan subscription, 256),
		deliverChan:    make(chan delivery, 1024),
		users:          make(map[int]map[*Client]struct{}),
		rooms:          make(map[string]map[*Client]struct{}),
		clients:        make(map[*Client]struct{}),
		stop:           make(chan struct{}),
		done:           make(chan struct{}),
	}
}

// SetChatService breaks the construction cycle: the hub is the notifier's
// publisher and the chat service needs the notifier, so the hub is built
// first and receives the service once it exists. Must be called before Run.
func (h *Hub) SetChatService(chatService *chat.Service) {
	h.chat = chatService
}

// Publish implements notify.Publisher. Delivery is best-effort: if the hub's
// queue is full the event is dropped rather than blocking the caller.
func (h *Hub) Publish(topic string, event *notify.Event) {
	h.broadcast(topic, event, nil)
}

// Broadcast is Publish with an excluded connection, used for relaying
// client-originated events like typing back to the room.
func (h *Hub) Broadcast(topic string, event *notify.Event, skip *Client) {
	h.broadcast(topic, event, skip)
}

func (h *Hub) broadcast(topic string, event *notify.Event, skip *Client) {
	select {
	case h.deliverChan <- delivery{topic: topic, event: event, skip: skip}:
	default:
		h.log.Printf("hub queue full, dropping event for topic %q", topic)
	}
}

func (h *Hub) Run() {
	for {
		select {
		case client := <-h.RegisterChan:
			h.log.Printf("adding connection from %q", client.user.Username)
			h.addClient(client)
		case client := <-h.deRegisterChan:
			h.log.Printf("removing connection from %q", client.user.Username)
			h.removeClient(client)
		case sub := <-h.subChan:
			if _, ok := h.rooms[sub.topic]; !ok {
				h.rooms[sub.topic] = make(map[*Client]struct{})
			}
			h.rooms[sub.topic][sub.client] = struct{}{}
		case sub := <-h.unsubChan:
			if clients, ok := h.rooms[sub.topic]; ok {
				delete(clients, sub.client)
				if len(clients) == 0 {
					delete(h.rooms, sub.topic)
				}
			}
		case d := <-h.deliverChan:
			h.deliver(d)
		case <-h.stop:
			close(h.done)
			return
		}
	}
}

func (h *Hub) deliver(d delivery) {
	kind, subject, ok := notify.SplitTopic(d.topic)
	if !ok {
		h.log.Printf("malformed topic %q", d.topic)
		return
	}

	frame := EventFrame(d.event)
	switch kind {
	case notify.TopicKindPersonal:
		accountId, err := strconv.Atoi(subject)
		if err != nil {
			h.log.Printf("malformed personal topic %q", d.topic)
			return
		}
		for c := range h.users[accountId] {
			if c == d.skip {
				continue
			}
			c.queueFrame(frame)
		}
	case notify.TopicKindRoom:
		for c := range h.rooms[d.topic] {
			if c == d.skip {
				continue
			}
			c.queueFrame(frame)
		}
	default:
		h.log.Printf("unknown topic kind %q", kind)
	}
}

func (h *Hub) addClient(c *Client) {
	h.clientsLock.Lock()
	h.clients[c] = struct{}{}
	h.clientsLock.Unlock()

	if _, ok := h.users[c.user.Id]; !ok {
		h.users[c.user.Id] = make(map[*Client]struct{})
	}
	h.users[c.user.Id][c] = struct{}{}
}

func (h *Hub) removeClient(c *Client) {
	h.clientsLock.Lock()
	delete(h.clients, c)
	h.clientsLock.Unlock()

	if conns, ok := h.users[c.user.Id]; ok {
		delete(conns, c)
		if len(conns) == 0 {
			delete(h.users, c.user.Id)
		}
	}
	for topic, clients := range h.rooms {
		delete(clients, c)
		if len(clients) == 0 {
			delete(h.rooms, topic)
		}
	}
}

func (h *Hub) subscribe(c *Client, topic string) {
	select {
	case h.subChan <- subscription{client: c, topic: topic}:
	default:
		h.log.Printf("subscribe queue full for topic %q", topic)
	}
}

func (h *Hub) unsubscribe(c *Client, topic string) {
	select {
	case h.unsubChan <- subscription{client: c, topic: topic}:
	default:
		h.log.Printf("unsubscribe queue full for topic %q", topic)
	}
}

func (h *Hub) Shutdown() {
	h.log.Println("received shutdown signal")
	h.clientsLock.Lock()
	for c := range h.clients {
		c.stopClient()
	}
	h.clientsLock.Unlock()

	close(h.stop)
	<-h.done
}
