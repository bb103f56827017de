package support

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const defaultRedisDialTimeout = 5 * time.Second

// RedisSettings locates the redis server shared by every instance.
type RedisSettings struct {
	URL         string
	DialTimeout time.Duration
}

// NewRedisClient connects to redis and checks the server answers before
// returning. The caller owns the client and closes it.
func NewRedisClient(ctx context.Context, settings RedisSettings) (*redis.Client, error) {
	if settings.URL == "" {
		return nil, errors.New("redis: no URL configured")
	}

	// the URL may carry credentials, keep it out of errors
	opt, err := redis.ParseURL(settings.URL)
	if err != nil {
		return nil, fmt.Errorf("redis: invalid URL: %w", err)
	}

	timeout := settings.DialTimeout
	if timeout <= 0 {
		timeout = defaultRedisDialTimeout
	}
	opt.DialTimeout = timeout

	client := redis.NewClient(opt)
	pingCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis: connect to %s: %w", opt.Addr, err)
	}
	return client, nil
}
