package realtime

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
)

// RedisBridge publie les événements sur un canal Redis partagé ; chaque
// instance les relit et les remet à son Hub local.
type RedisBridge struct {
	client  *redis.Client
	channel string
	hub     *Hub
	logger  *zap.Logger
	ready   chan struct{}
}

func NewRedisBridge(client *redis.Client, channel string, hub *Hub, logger *zap.Logger) *RedisBridge {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RedisBridge{
		client:  client,
		channel: channel,
		hub:     hub,
		logger:  logger,
		ready:   make(chan struct{}),
	}
}

func (b *RedisBridge) Publish(ctx context.Context, room, event string, payload interface{}) error {
	ev, err := newEvent(room, event, payload)
	if err != nil {
		return err
	}
	body, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	if err := b.client.Publish(ctx, b.channel, body).Err(); err != nil {
		return fmt.Errorf("failed to publish realtime event: %w", err)
	}
	return nil
}

// Ready est fermé une fois l'abonnement confirmé par Redis.
func (b *RedisBridge) Ready() <-chan struct{} {
	return b.ready
}

func (b *RedisBridge) Start(ctx context.Context) error {
	pubsub := b.client.Subscribe(ctx, b.channel)
	defer func() {
		if err := pubsub.Close(); err != nil {
			b.logger.Warn("failed to close pubsub", zap.Error(err))
		}
	}()

	if _, err := pubsub.Receive(ctx); err != nil {
		return fmt.Errorf("failed to subscribe to %s: %w", b.channel, err)
	}
	close(b.ready)
	b.logger.Info("realtime redis bridge running", zap.String("channel", b.channel))

	msgCh := pubsub.Channel()
	for {
		select {
		case msg, ok := <-msgCh:
			if !ok {
				b.logger.Warn("pubsub channel closed by Redis")
				return nil
			}
			var ev Event
			if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
				b.logger.Warn("malformed realtime event", zap.Error(err))
				continue
			}
			b.hub.Emit(ev)
		case <-ctx.Done():
			return nil
		}
	}
}
