package events

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// RedisConfig configures the Redis pub/sub sink.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	Channel  string
}

// DefaultRedisChannel is the pub/sub channel used when none is configured.
const DefaultRedisChannel = "voxbrief:events"

type publisher interface {
	Publish(ctx context.Context, channel string, message any) *redis.IntCmd
	Ping(ctx context.Context) *redis.StatusCmd
	Close() error
}

// RedisSink publishes events on a Redis pub/sub channel.
type RedisSink struct {
	client  publisher
	channel string
}

// NewRedisSink connects to Redis and verifies the connection.
func NewRedisSink(ctx context.Context, cfg RedisConfig) (*RedisSink, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("connect to redis: %w", err)
	}
	channel := cfg.Channel
	if channel == "" {
		channel = DefaultRedisChannel
	}
	return &RedisSink{client: rdb, channel: channel}, nil
}

func (r *RedisSink) Name() string { return "redis" }

func (r *RedisSink) Publish(ctx context.Context, ev Event) error {
	payload, err := ev.Encode()
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}
	if err := r.client.Publish(ctx, r.channel, payload).Err(); err != nil {
		return fmt.Errorf("redis publish %s: %w", r.channel, err)
	}
	return nil
}

// Ping checks the connection. Used as a readiness check.
func (r *RedisSink) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

func (r *RedisSink) Close() error { return r.client.Close() }
