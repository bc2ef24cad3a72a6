package notify

import (
	"context"
	"encoding/json"
	"log"
	"time"

	"github.com/redis/go-redis/v9"
)

const publishTimeout = 5 * time.Second

// RedisBridge fans events out across nodes: published events go to a redis
// channel named after the topic, and a subscriber loop feeds remote events
// into the local publisher (the websocket hub). With a single node the
// bridge is unnecessary and the hub is used directly.
type RedisBridge struct {
	log    *log.Logger
	client *redis.Client
	local  Publisher
}

func NewRedisBridge(redisURL string, local Publisher, logger *log.Logger) (*RedisBridge, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, err
	}

	client := redis.NewClient(opts)
	if err := client.Ping(context.Background()).Err(); err != nil {
		return nil, err
	}

	return &RedisBridge{
		log:    logger,
		client: client,
		local:  local,
	}, nil
}

func (b *RedisBridge) Publish(topic string, event *Event) {
	data, err := json.Marshal(event)
	if err != nil {
		b.log.Println("redis bridge: marshal event:", err)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
	defer cancel()

	if err := b.client.Publish(ctx, topic, data).Err(); err != nil {
		b.log.Println("redis bridge: publish:", err)
	}
}

// Run consumes remote events until ctx is cancelled. It must run on every
// node, including the one that published: local delivery goes through redis
// too, so an event is delivered exactly once per node.
func (b *RedisBridge) Run(ctx context.Context) {
	sub := b.client.PSubscribe(ctx,
		TopicKindPersonal+":*",
		TopicKindRoom+":*",
	)
	defer sub.Close()

	ch := sub.Channel()
	for {
		select {
		case msg, ok := <-ch:
			if !ok {
				return
			}

			var event Event
			if err := json.Unmarshal([]byte(msg.Payload), &event); err != nil {
				b.log.Println("redis bridge: unmarshal event:", err)
				continue
			}

			b.local.Publish(msg.Channel, &event)
		case <-ctx.Done():
			return
		}
	}
}

func (b *RedisBridge) Close() error {
	return b.client.Close()
}
