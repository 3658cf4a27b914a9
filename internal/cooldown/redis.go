package cooldown

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisTracker shares cooldowns across restarts and replicas.
// Keys expire after the cooldown interval.
type RedisTracker struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

// RedisOptions configures the Redis tracker
type RedisOptions struct {
	Addr     string
	Password string
	DB       int
	Prefix   string
	TTL      time.Duration
}

// NewRedisTracker connects and pings the server
func NewRedisTracker(opts RedisOptions) (*RedisTracker, error) {
	if opts.Prefix == "" {
		opts.Prefix = "forecaster"
	}

	client := redis.NewClient(&redis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	return NewRedisTrackerWithClient(client, opts.Prefix, opts.TTL), nil
}

// NewRedisTrackerWithClient wraps an existing client
func NewRedisTrackerWithClient(client *redis.Client, prefix string, ttl time.Duration) *RedisTracker {
	return &RedisTracker{client: client, prefix: prefix, ttl: ttl}
}

func (r *RedisTracker) key(symbol string) string {
	return r.prefix + ":cooldown:" + symbol
}

// LastSignal reads the stored unix-millisecond timestamp
func (r *RedisTracker) LastSignal(ctx context.Context, symbol string) (time.Time, bool, error) {
	val, err := r.client.Get(ctx, r.key(symbol)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return time.Time{}, false, nil
		}
		return time.Time{}, false, fmt.Errorf("redis get %s: %w", symbol, err)
	}

	ms, err := strconv.ParseInt(val, 10, 64)
	if err != nil {
		return time.Time{}, false, fmt.Errorf("parse cooldown %s: %w", symbol, err)
	}
	return time.UnixMilli(ms).UTC(), true, nil
}

// Record stores at with the tracker TTL
func (r *RedisTracker) Record(ctx context.Context, symbol string, at time.Time) error {
	if err := r.client.Set(ctx, r.key(symbol), strconv.FormatInt(at.UnixMilli(), 10), r.ttl).Err(); err != nil {
		return fmt.Errorf("redis set %s: %w", symbol, err)
	}
	return nil
}

// Close closes the Redis connection
func (r *RedisTracker) Close() error {
	return r.client.Close()
}
