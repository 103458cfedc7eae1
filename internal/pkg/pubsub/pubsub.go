package pubsub

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/go-redis/redis/v8"
)

const (
	ChannelBatchEvents = "site_compare_events"
)

// BatchMessage worker 发布的批次事件，Data 为事件 payload 原文
type BatchMessage struct {
	BatchID string          `json:"batch_id"`
	Event   string          `json:"event"`
	Data    json.RawMessage `json:"data"`
}

// Publisher Redis 发布者
type Publisher struct {
	client *redis.Client
}

// NewPublisher 创建发布者
func NewPublisher(client *redis.Client) *Publisher {
	return &Publisher{client: client}
}

// Publish 发布批次事件
func (p *Publisher) Publish(ctx context.Context, batchID, event string, data []byte) error {
	msg := BatchMessage{BatchID: batchID, Event: event, Data: data}
	if len(msg.Data) == 0 {
		msg.Data = json.RawMessage("null")
	}

	payload, err := json.Marshal(&msg)
	if err != nil {
		return fmt.Errorf("failed to marshal batch event: %w", err)
	}

	return p.client.Publish(ctx, ChannelBatchEvents, payload).Err()
}

// Subscriber Redis 订阅者
type Subscriber struct {
	client *redis.Client
}

// NewSubscriber 创建订阅者
func NewSubscriber(client *redis.Client) *Subscriber {
	return &Subscriber{client: client}
}

// Subscribe 订阅批次事件，直到 ctx 结束
func (s *Subscriber) Subscribe(ctx context.Context, handler func(*BatchMessage)) error {
	pubsub := s.client.Subscribe(ctx, ChannelBatchEvents)
	defer pubsub.Close()

	ch := pubsub.Channel()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-ch:
			if !ok {
				return nil
			}

			var batchMsg BatchMessage
			if err := json.Unmarshal([]byte(msg.Payload), &batchMsg); err != nil {
				continue // 忽略解析错误
			}

			handler(&batchMsg)
		}
	}
}
