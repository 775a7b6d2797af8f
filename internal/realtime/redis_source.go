package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/trailbook/slotsync/internal/models"
)

const slotChannelPrefix = "experience-slots:"

// RedisSource delivers slot change events over Redis pub/sub, one channel per
// experience. Payloads are JSON-encoded ChangeEvents; anything that fails to
// decode or validate is dropped at this boundary with a log line and never
// reaches a subscriber.
type RedisSource struct {
	client *redis.Client

	mu   sync.Mutex
	subs map[Handle]*redisSubscription
}

type redisSubscription struct {
	pubsub *redis.PubSub
	done   chan struct{}
}

func NewRedisSource(client *redis.Client) *RedisSource {
	return &RedisSource{
		client: client,
		subs:   make(map[Handle]*redisSubscription),
	}
}

func slotChannel(experienceID uuid.UUID) string {
	return slotChannelPrefix + experienceID.String()
}

// Subscribe opens a pub/sub channel for the experience and confirms channel
// creation before returning, so a down transport surfaces here as a
// synchronous error rather than as silence later.
func (s *RedisSource) Subscribe(experienceID uuid.UUID, callback EventCallback) (Handle, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	pubsub := s.client.Subscribe(ctx, slotChannel(experienceID))

	// Wait for the subscription confirmation
	if _, err := pubsub.Receive(ctx); err != nil {
		pubsub.Close()
		return "", fmt.Errorf("failed to subscribe to slot changes: %w", err)
	}

	handle := Handle(fmt.Sprintf("slots-%s-%d", experienceID, time.Now().UnixNano()))
	sub := &redisSubscription{
		pubsub: pubsub,
		done:   make(chan struct{}),
	}

	s.mu.Lock()
	s.subs[handle] = sub
	s.mu.Unlock()

	go s.readLoop(sub, callback)

	return handle, nil
}

func (s *RedisSource) readLoop(sub *redisSubscription, callback EventCallback) {
	defer close(sub.done)

	for msg := range sub.pubsub.Channel() {
		var event models.ChangeEvent
		if err := json.Unmarshal([]byte(msg.Payload), &event); err != nil {
			log.Printf("realtime: dropping undecodable slot event: %v", err)
			continue
		}
		if err := event.Validate(); err != nil {
			log.Printf("realtime: dropping invalid slot event: %v", err)
			continue
		}
		callback(event)
	}
}

// Unsubscribe closes the channel and waits for in-flight delivery to drain.
// Unknown handles are a no-op.
func (s *RedisSource) Unsubscribe(ctx context.Context, handle Handle) error {
	s.mu.Lock()
	sub, ok := s.subs[handle]
	delete(s.subs, handle)
	s.mu.Unlock()

	if !ok {
		return nil
	}

	if err := sub.pubsub.Close(); err != nil {
		return fmt.Errorf("failed to close pubsub channel: %w", err)
	}

	select {
	case <-sub.done:
	case <-ctx.Done():
		return ctx.Err()
	}
	return nil
}

// PublishSlotChange pushes a change event to every subscriber of the slot's
// experience. The experience is taken from the new record, falling back to
// the old one for deletes.
func (s *RedisSource) PublishSlotChange(ctx context.Context, event models.ChangeEvent) error {
	if err := event.Validate(); err != nil {
		return err
	}

	record := event.New
	if record == nil {
		record = event.Old
	}

	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal slot event: %w", err)
	}

	if err := s.client.Publish(ctx, slotChannel(record.ExperienceID), data).Err(); err != nil {
		return fmt.Errorf("failed to publish slot event: %w", err)
	}
	return nil
}
