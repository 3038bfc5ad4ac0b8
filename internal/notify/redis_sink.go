package notify

import (
	"context"
	"encoding/json"
	"fmt"

	"proxy-auction/internal/models"

	"github.com/redis/go-redis/v9"
)

// streamMaxLen caps the event stream through XADD MAXLEN ~.
const streamMaxLen int64 = 10000

// RedisConfig holds connection and naming settings for the Redis sink.
type RedisConfig struct {
	Addr          string
	Password      string
	DB            int
	PoolSize      int
	ChannelPrefix string
	Stream        string
}

// NewRedisClient connects and pings, closing the client if the ping fails.
func NewRedisClient(ctx context.Context, cfg RedisConfig) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
		PoolSize: cfg.PoolSize,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis: ping: %w", err)
	}
	return rdb, nil
}

// RedisSink publishes public events on a per-auction channel and private
// ones on a per-recipient channel. Every event is also appended to a trimmed
// stream so late consumers can catch up.
type RedisSink struct {
	rdb    *redis.Client
	prefix string
	stream string
}

func NewRedisSink(rdb *redis.Client, prefix, stream string) *RedisSink {
	if prefix == "" {
		prefix = "auction"
	}
	if stream == "" {
		stream = prefix + ":events"
	}
	return &RedisSink{rdb: rdb, prefix: prefix, stream: stream}
}

func (s *RedisSink) Name() string { return "redis" }

// AuctionChannel is where public events for auctionID are published.
func (s *RedisSink) AuctionChannel(auctionID string) string {
	return s.prefix + ":" + auctionID
}

// RecipientChannel is where events addressed to one user are published.
func (s *RedisSink) RecipientChannel(userID string) string {
	return s.prefix + ":user:" + userID
}

func (s *RedisSink) Emit(ctx context.Context, e models.Event) error {
	payload, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("redis: encode event %s: %w", e.EventID, err)
	}

	channel := s.AuctionChannel(e.AuctionID)
	if !e.Kind.Public() {
		channel = s.RecipientChannel(e.RecipientID)
	}

	_, err = s.rdb.Pipelined(ctx, func(p redis.Pipeliner) error {
		p.Publish(ctx, channel, payload)
		p.XAdd(ctx, &redis.XAddArgs{
			Stream: s.stream,
			MaxLen: streamMaxLen,
			Approx: true,
			Values: map[string]any{
				"event_id":   e.EventID,
				"auction_id": e.AuctionID,
				"kind":       string(e.Kind),
				"payload":    payload,
			},
		})
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis: publish %s: %w", channel, err)
	}
	return nil
}
