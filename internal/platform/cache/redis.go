package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// New creates a Redis client and pings it. The client is closed when the
// ping fails.
func New(ctx context.Context, addr string, pingTimeout time.Duration) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{Addr: addr})
	if pingTimeout <= 0 {
		pingTimeout = 5 * time.Second
	}

	ctx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("platform/cache: ping %s: %w", addr, err)
	}
	return client, nil
}
