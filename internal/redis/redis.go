package redis

import (
	"context"
	"crypto/tls"
	"fmt"

	r "github.com/redis/go-redis/v9"
)

// Reexport go-redis's Nil constant for DX purposes.
const (
	Nil = r.Nil
)

type (
	Cmdable = r.Cmdable
	Message = r.Message
	PubSub  = r.PubSub
)

// Client is the subset of go-redis the relay uses: commands plus pub/sub.
type Client interface {
	Cmdable
	Subscribe(ctx context.Context, channels ...string) *r.PubSub
	Close() error
}

type RedisConfig struct {
	Host       string
	Port       int
	Password   string
	Database   int
	TLSEnabled bool
}

// New creates a Redis client and verifies connectivity with a ping.
func New(ctx context.Context, config *RedisConfig) (Client, error) {
	options := &r.Options{
		Addr:     fmt.Sprintf("%s:%d", config.Host, config.Port),
		Password: config.Password,
		DB:       config.Database,
	}

	if config.TLSEnabled {
		options.TLSConfig = &tls.Config{
			MinVersion: tls.VersionTLS12,
		}
	}

	client := r.NewClient(options)

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}

	return client, nil
}
