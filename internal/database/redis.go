package database

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const redisPingTimeout = 3 * time.Second

// ConnectRedis opens the client used for the evaluation history cache and
// cross-node notification fan-out. The connection is named after the service
// so it can be told apart in CLIENT LIST.
func ConnectRedis(ctx context.Context, url, clientName string) (*redis.Client, error) {
	if url == "" {
		return nil, fmt.Errorf("redis url must not be empty")
	}

	options, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis url: %w", err)
	}
	if options.ClientName == "" {
		options.ClientName = clientName
	}

	client := redis.NewClient(options)

	pingCtx, cancel := context.WithTimeout(ctx, redisPingTimeout)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("unable to connect to redis: %w", err)
	}

	return client, nil
}
