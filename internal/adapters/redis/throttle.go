package redis

import (
	"context"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/kevin07696/squareup-service/internal/domain/ports"
)

// DefaultKeyPrefix namespaces the throttle keys
const DefaultKeyPrefix = "squareup:notify:"

// Config contains the Redis connection settings
type Config struct {
	Addr     string
	Username string
	Password string
	DB       int
}

// NewClient connects to Redis and verifies the connection
func NewClient(ctx context.Context, cfg Config, logger ports.Logger) (*goredis.Client, error) {
	client := goredis.NewClient(&goredis.Options{
		Addr:     cfg.Addr,
		Username: cfg.Username,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to redis at %s: %w", cfg.Addr, err)
	}

	logger.Info("Connected to Redis", ports.String("addr", cfg.Addr), ports.Int("db", cfg.DB))
	return client, nil
}

// Throttle implements ports.NotificationThrottle with one expiring key per notification kind
type Throttle struct {
	client goredis.UniversalClient
	prefix string
}

// NewThrottle creates a throttle on client
func NewThrottle(client goredis.UniversalClient, prefix string) *Throttle {
	if prefix == "" {
		prefix = DefaultKeyPrefix
	}
	return &Throttle{client: client, prefix: prefix}
}

// Allow claims the kind's slot for window. Only the first caller within the window wins.
func (t *Throttle) Allow(ctx context.Context, kind string, window time.Duration) (bool, error) {
	ok, err := t.client.SetNX(ctx, t.prefix+kind, time.Now().UTC().Format(time.RFC3339), window).Result()
	if err != nil {
		return false, fmt.Errorf("claim notification slot %s: %w", kind, err)
	}
	return ok, nil
}

// Reset clears the kind's slot so the next notification is sent immediately
func (t *Throttle) Reset(ctx context.Context, kind string) error {
	if err := t.client.Del(ctx, t.prefix+kind).Err(); err != nil {
		return fmt.Errorf("reset notification slot %s: %w", kind, err)
	}
	return nil
}
