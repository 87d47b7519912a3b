package realtime

import (
	"context"
	"encoding/json"

	"github.com/redis/go-redis/v9"
)

// Channel is the Redis pub/sub channel shared by every producer and the
// realtime service.
const Channel = "broadcast"

// Message is the envelope published on Channel. Messages carrying a
// UserID are delivered only to that user's sockets.
type Message struct {
	Type    string `json:"type"`
	Payload any    `json:"payload"`
	UserID  string `json:"userId,omitempty"`
}

// Publisher writes messages to Redis. A nil client turns it into a no-op,
// which keeps local runs without Redis working.
type Publisher struct {
	rdb *redis.Client
}

func NewPublisher(rdb *redis.Client) *Publisher {
	return &Publisher{rdb: rdb}
}

func (p *Publisher) send(ctx context.Context, m Message) error {
	if p == nil || p.rdb == nil {
		return nil
	}
	data, err := json.Marshal(m)
	if err != nil {
		return err
	}
	return p.rdb.Publish(ctx, Channel, string(data)).Err()
}

// Publish sends msgType to every connected client.
func (p *Publisher) Publish(ctx context.Context, msgType string, payload any) error {
	return p.send(ctx, Message{Type: msgType, Payload: payload})
}

// PublishToUser sends msgType to userID only.
func (p *Publisher) PublishToUser(ctx context.Context, userID, msgType string, payload any) error {
	return p.send(ctx, Message{Type: msgType, Payload: payload, UserID: userID})
}
