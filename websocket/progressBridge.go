package websocket

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"boleto-import-backend/imports/services"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const progressChannelPrefix = "imports:progress:"

// ProgressChannel is the Redis channel carrying the events of one import
func ProgressChannel(importID string) string {
	return progressChannelPrefix + importID
}

// RedisProgressPublisher publishes processor events so every API instance can relay them
type RedisProgressPublisher struct {
	client *redis.Client
}

func NewRedisProgressPublisher(client *redis.Client) *RedisProgressPublisher {
	return &RedisProgressPublisher{client: client}
}

func (p *RedisProgressPublisher) Publish(ctx context.Context, event services.ProgressEvent) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal progress event: %w", err)
	}
	if err := p.client.Publish(ctx, ProgressChannel(event.ImportID), data).Err(); err != nil {
		return fmt.Errorf("publish progress event: %w", err)
	}
	return nil
}

// RunProgressBridge relays every published progress event into the hub until ctx ends
func RunProgressBridge(ctx context.Context, client *redis.Client, hub *Hub, logger *zap.Logger) error {
	pubsub := client.PSubscribe(ctx, progressChannelPrefix+"*")
	defer pubsub.Close()

	if _, err := pubsub.Receive(ctx); err != nil {
		return fmt.Errorf("subscribe to progress channels: %w", err)
	}
	logger.Info("Progress bridge subscribed", zap.String("pattern", progressChannelPrefix+"*"))

	messages := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-messages:
			if !ok {
				return nil
			}
			event, err := decodeProgressMessage(msg.Channel, msg.Payload)
			if err != nil {
				logger.Warn("Dropping malformed progress event",
					zap.String("channel", msg.Channel),
					zap.Error(err),
				)
				continue
			}
			hub.Broadcast(event)
		}
	}
}

func decodeProgressMessage(channel, payload string) (services.ProgressEvent, error) {
	var event services.ProgressEvent
	if err := json.Unmarshal([]byte(payload), &event); err != nil {
		return event, err
	}
	if event.ImportID == "" {
		event.ImportID = strings.TrimPrefix(channel, progressChannelPrefix)
	}
	return event, nil
}
