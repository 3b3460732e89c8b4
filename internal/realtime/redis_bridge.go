package realtime

import (
	"context"
	"encoding/json"
	"time"

	"crmboard/internal/board/domain"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

const DefaultChannel = "crmboard:changes"

type envelope struct {
	Origin string             `json:"origin"`
	Event  domain.ChangeEvent `json:"event"`
}

// RedisBridge shares change events between API instances.
// Publish delivers locally and forwards to redis; Run replays events published by other instances.
type RedisBridge struct {
	client  *redis.Client
	hub     *Hub
	channel string
	origin  string
	timeout time.Duration
	log     zerolog.Logger
}

func NewRedisBridge(client *redis.Client, hub *Hub, channel string, log zerolog.Logger) *RedisBridge {
	if channel == "" {
		channel = DefaultChannel
	}
	return &RedisBridge{
		client:  client,
		hub:     hub,
		channel: channel,
		origin:  uuid.New().String(),
		timeout: 2 * time.Second,
		log:     log.With().Str("component", "redis_bridge").Logger(),
	}
}

// NewRedisClient parses a redis:// URL and checks the server answers
func NewRedisClient(ctx context.Context, url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, err
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, err
	}
	return client, nil
}

// Publish implements the board publisher
func (b *RedisBridge) Publish(ev domain.ChangeEvent) {
	b.hub.Publish(ev)

	payload, err := json.Marshal(envelope{Origin: b.origin, Event: ev})
	if err != nil {
		b.log.Error().Err(err).Msg("failed to encode event")
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), b.timeout)
	defer cancel()
	if err := b.client.Publish(ctx, b.channel, payload).Err(); err != nil {
		b.log.Error().Err(err).Str("table", ev.Table).Msg("failed to forward event to redis")
	}
}

// Run consumes the redis channel until ctx ends
func (b *RedisBridge) Run(ctx context.Context) error {
	pubsub := b.client.Subscribe(ctx, b.channel)
	defer pubsub.Close()

	if _, err := pubsub.Receive(ctx); err != nil {
		return err
	}
	b.log.Info().Str("channel", b.channel).Msg("listening for remote change events")

	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			var env envelope
			if err := json.Unmarshal([]byte(msg.Payload), &env); err != nil {
				b.log.Warn().Err(err).Msg("skipping malformed event")
				continue
			}
			if env.Origin == b.origin {
				continue
			}
			b.hub.Publish(env.Event)
		}
	}
}
