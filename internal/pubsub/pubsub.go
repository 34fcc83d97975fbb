package pubsub

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"

	"github.com/encounter-sync/internal/config"
	"github.com/encounter-sync/internal/domain"
)

// Broker publishes game events on game-scoped Redis channels and subscribes
// to them for relay. Delivery is at-most-once: a subscriber disconnected at
// publish time misses the event and reconciles via the refresh path.
type Broker struct {
	client *redis.Client
	logger *slog.Logger
}

// NewBroker creates a Redis-backed event broker
func NewBroker(cfg *config.RedisConfig, logger *slog.Logger) (*Broker, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     cfg.PoolSize,
		MinIdleConns: cfg.MinIdleConns,
		DialTimeout:  cfg.DialTimeout,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	})

	ctx := context.Background()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("connecting to redis: %w", err)
	}

	return &Broker{
		client: client,
		logger: logger,
	}, nil
}

// Close closes the Redis connection
func (b *Broker) Close() error {
	return b.client.Close()
}

// Client returns the underlying Redis client
func (b *Broker) Client() *redis.Client {
	return b.client
}

// channel returns the Redis channel name for a game
func (b *Broker) channel(gameID string) string {
	return fmt.Sprintf("game:%s", gameID)
}

// Publish broadcasts an event on the game's channel. Fire-and-forget: a
// failure is logged and swallowed so the originating mutation, already
// persisted, never fails on propagation.
func (b *Broker) Publish(ctx context.Context, event domain.GameEvent) {
	data, err := json.Marshal(event)
	if err != nil {
		b.logger.Error("failed to marshal game event", "type", event.Type, "error", err)
		return
	}

	if err := b.client.Publish(ctx, b.channel(event.GameID), data).Err(); err != nil {
		b.logger.Warn("failed to publish game event",
			"type", event.Type,
			"game_id", event.GameID,
			"error", err,
		)
	}
}

// Subscribe listens on all game channels and invokes handler for every
// decoded event until ctx is cancelled. Malformed payloads are logged and
// discarded without crashing the loop.
func (b *Broker) Subscribe(ctx context.Context, handler func(domain.GameEvent)) error {
	sub := b.client.PSubscribe(ctx, "game:*")

	// Force the subscription to be established before returning
	if _, err := sub.Receive(ctx); err != nil {
		sub.Close()
		return fmt.Errorf("subscribing to game channels: %w", err)
	}

	go func() {
		defer sub.Close()
		ch := sub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				var event domain.GameEvent
				if err := json.Unmarshal([]byte(msg.Payload), &event); err != nil {
					b.logger.Warn("discarding malformed game event",
						"channel", msg.Channel,
						"error", err,
					)
					continue
				}
				handler(event)
			}
		}
	}()

	b.logger.Info("subscribed to game event channels")
	return nil
}
