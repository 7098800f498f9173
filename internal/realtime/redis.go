package realtime

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"je-portal/backend/internal/metrics"
)

type bridgeMessage struct {
	Origin string          `json:"origin"`
	UserID string          `json:"userId"`
	Event  string          `json:"event"`
	Data   json.RawMessage `json:"data"`
}

// RedisBridge is a Broadcaster for multi-instance deployments. Events are
// delivered to the local hub immediately and published on a redis channel
// for the other instances; each instance skips its own publications. A user
// absent from one instance is not counted as a dropped event on this path.
type RedisBridge struct {
	client  *redis.Client
	channel string
	hub     *Hub
	origin  string
	queue   chan []byte
	ready   chan struct{}
	log     *zap.Logger
}

func NewRedisBridge(client *redis.Client, channel string, hub *Hub, log *zap.Logger, queueSize int) *RedisBridge {
	if log == nil {
		log = zap.NewNop()
	}
	if queueSize <= 0 {
		queueSize = 256
	}
	return &RedisBridge{
		client:  client,
		channel: channel,
		hub:     hub,
		origin:  uuid.NewString(),
		queue:   make(chan []byte, queueSize),
		ready:   make(chan struct{}),
		log:     log.Named("redis_bridge"),
	}
}

// Ready is closed once the subscription is confirmed.
func (b *RedisBridge) Ready() <-chan struct{} {
	return b.ready
}

func (b *RedisBridge) EmitToUser(userID, event string, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		b.log.Warn("encode event failed", zap.String("event", event), zap.Error(err))
		return
	}
	frame, _ := json.Marshal(Envelope{Event: event, Data: data})
	b.hub.deliver(userID, event, frame, false)

	msg, _ := json.Marshal(bridgeMessage{Origin: b.origin, UserID: userID, Event: event, Data: data})
	select {
	case b.queue <- msg:
	default:
		metrics.EventsDropped.WithLabelValues(metrics.DropBridgeQueueFull).Inc()
		b.log.Warn("bridge queue full, event not published", zap.String("event", event))
	}
}

// Run subscribes and publishes until ctx is cancelled.
func (b *RedisBridge) Run(ctx context.Context) error {
	sub := b.client.Subscribe(ctx, b.channel)
	defer sub.Close()
	if _, err := sub.Receive(ctx); err != nil {
		return err
	}
	close(b.ready)
	b.log.Info("subscribed", zap.String("channel", b.channel))

	go b.publishLoop(ctx)

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			b.handle(msg.Payload)
		}
	}
}

func (b *RedisBridge) handle(payload string) {
	var msg bridgeMessage
	if err := json.Unmarshal([]byte(payload), &msg); err != nil {
		b.log.Warn("malformed bridge message", zap.Error(err))
		return
	}
	if msg.Origin == b.origin {
		return
	}
	frame, err := json.Marshal(Envelope{Event: msg.Event, Data: msg.Data})
	if err != nil {
		return
	}
	b.hub.deliver(msg.UserID, msg.Event, frame, false)
}

func (b *RedisBridge) publishLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case msg := <-b.queue:
			pubCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
			if err := b.client.Publish(pubCtx, b.channel, msg).Err(); err != nil {
				b.log.Warn("publish failed", zap.Error(err))
			}
			cancel()
		}
	}
}
