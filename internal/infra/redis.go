package infra

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// NewRedisClient configures a Redis client and verifies connectivity.
func NewRedisClient(ctx context.Context, url string) (*redis.Client, error) {
	if url == "" {
		return nil, fmt.Errorf("redis url is required")
	}

	opt, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}

	client := redis.NewClient(opt)

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}

	return client, nil
}

// NewRedisClients connects one client per lock node. Nodes must be
// independent Redis servers, not replicas of each other. A node that does not
// answer the ping fails the whole set so the process never starts with a
// smaller quorum than configured.
func NewRedisClients(ctx context.Context, urls []string) ([]*redis.Client, error) {
	if len(urls) == 0 {
		return nil, errors.New("at least one lock redis url is required")
	}
	clients := make([]*redis.Client, 0, len(urls))
	for i, url := range urls {
		client, err := NewRedisClient(ctx, url)
		if err != nil {
			CloseRedisClients(clients)
			return nil, fmt.Errorf("lock node %d: %w", i, err)
		}
		clients = append(clients, client)
	}
	return clients, nil
}

// CloseRedisClients closes every client and joins the errors.
func CloseRedisClients(clients []*redis.Client) error {
	var errs []error
	for _, c := range clients {
		if err := c.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
