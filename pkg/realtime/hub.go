package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const (
	userChannelPrefix = "notifications:"
	broadcastChannel  = "notifications:broadcast"
	presencePrefix    = "presence:"
)

// ErrRelayDisabled is returned by Subscribe when no Redis client is configured.
var ErrRelayDisabled = errors.New("realtime relay disabled")

// Event is the "something changed" signal pushed to connected clients.
type Event struct {
	Type    string          `json:"type"`
	UserID  string          `json:"user_id,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
	SentAt  time.Time       `json:"sent_at"`
}

// NewEvent encodes payload into an Event of the given type.
func NewEvent(eventType string, payload interface{}) (Event, error) {
	evt := Event{Type: eventType, SentAt: time.Now().UTC()}
	if payload == nil {
		return evt, nil
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return Event{}, fmt.Errorf("encode %s payload: %w", eventType, err)
	}
	evt.Payload = raw
	return evt, nil
}

// Hub relays events over Redis pub/sub and keeps the user -> connection registry
// in Redis so every API instance sees the same presence data.
type Hub struct {
	client      *redis.Client
	presenceTTL time.Duration
	logger      *zap.Logger
}

// NewHub constructs a hub. A nil client turns publishing into a no-op.
func NewHub(client *redis.Client, presenceTTL time.Duration, logger *zap.Logger) *Hub {
	if presenceTTL <= 0 {
		presenceTTL = 2 * time.Minute
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Hub{client: client, presenceTTL: presenceTTL, logger: logger}
}

// Enabled reports whether a Redis backend is configured.
func (h *Hub) Enabled() bool {
	return h != nil && h.client != nil
}

// Publish sends evt to a single user's channel.
func (h *Hub) Publish(ctx context.Context, userID string, evt Event) error {
	if !h.Enabled() {
		return nil
	}
	evt.UserID = userID
	return h.publish(ctx, userChannelPrefix+userID, evt)
}

// Broadcast sends evt to every connected client.
func (h *Hub) Broadcast(ctx context.Context, evt Event) error {
	if !h.Enabled() {
		return nil
	}
	return h.publish(ctx, broadcastChannel, evt)
}

func (h *Hub) publish(ctx context.Context, channel string, evt Event) error {
	if evt.SentAt.IsZero() {
		evt.SentAt = time.Now().UTC()
	}
	raw, err := json.Marshal(evt)
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}
	if err := h.client.Publish(ctx, channel, raw).Err(); err != nil {
		return fmt.Errorf("redis publish %s: %w", channel, err)
	}
	return nil
}

// Register records connID as a live connection of userID.
func (h *Hub) Register(ctx context.Context, userID, connID string) error {
	if !h.Enabled() {
		return nil
	}
	key := presencePrefix + userID
	pipe := h.client.TxPipeline()
	pipe.SAdd(ctx, key, connID)
	pipe.Expire(ctx, key, h.presenceTTL)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("register presence: %w", err)
	}
	return nil
}

// Touch extends the presence TTL while a connection is alive.
func (h *Hub) Touch(ctx context.Context, userID string) error {
	if !h.Enabled() {
		return nil
	}
	if err := h.client.Expire(ctx, presencePrefix+userID, h.presenceTTL).Err(); err != nil {
		return fmt.Errorf("refresh presence: %w", err)
	}
	return nil
}

// Unregister removes connID from the user's presence set.
func (h *Hub) Unregister(ctx context.Context, userID, connID string) error {
	if !h.Enabled() {
		return nil
	}
	if err := h.client.SRem(ctx, presencePrefix+userID, connID).Err(); err != nil {
		return fmt.Errorf("unregister presence: %w", err)
	}
	return nil
}

// Online reports whether the user has at least one registered connection.
func (h *Hub) Online(ctx context.Context, userID string) (bool, error) {
	if !h.Enabled() {
		return false, nil
	}
	count, err := h.client.SCard(ctx, presencePrefix+userID).Result()
	if err != nil {
		return false, fmt.Errorf("read presence: %w", err)
	}
	return count > 0, nil
}

// Subscription delivers events for one user plus broadcasts.
type Subscription struct {
	pubsub *redis.PubSub
	events chan Event
	done   chan struct{}
}

// Subscribe listens on the user's channel and the broadcast channel until ctx ends or Close is called.
func (h *Hub) Subscribe(ctx context.Context, userID string) (*Subscription, error) {
	if !h.Enabled() {
		return nil, ErrRelayDisabled
	}
	pubsub := h.client.Subscribe(ctx, userChannelPrefix+userID, broadcastChannel)
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return nil, fmt.Errorf("subscribe notifications: %w", err)
	}

	sub := &Subscription{pubsub: pubsub, events: make(chan Event, 16), done: make(chan struct{})}
	go sub.pump(ctx, h.logger)
	return sub, nil
}

func (s *Subscription) pump(ctx context.Context, logger *zap.Logger) {
	defer close(s.events)
	messages := s.pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case <-s.done:
			return
		case msg, ok := <-messages:
			if !ok {
				return
			}
			var evt Event
			if err := json.Unmarshal([]byte(msg.Payload), &evt); err != nil {
				logger.Warn("dropping malformed realtime event", zap.String("channel", msg.Channel), zap.Error(err))
				continue
			}
			select {
			case s.events <- evt:
			case <-ctx.Done():
				return
			case <-s.done:
				return
			}
		}
	}
}

// Events returns the delivery channel; it is closed when the subscription ends.
func (s *Subscription) Events() <-chan Event {
	return s.events
}

// Close stops delivery and releases the Redis connection.
func (s *Subscription) Close() error {
	select {
	case <-s.done:
		return nil
	default:
		close(s.done)
	}
	return s.pubsub.Close()
}
