// Package redis stores snapshot buckets as plain string keys in Redis.
package redis

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/redis/go-redis/v9"
)

// DefaultPrefix namespaces bucket keys when NewBackend receives an empty prefix.
const DefaultPrefix = "rollcall:state:"

// Backend keeps one key per bucket: <prefix><bucket>.
type Backend struct {
	client *redis.Client
	prefix string
}

// NewClient parses url (redis://...) or falls back to treating it as host:port.
func NewClient(url string) *redis.Client {
	opts, err := redis.ParseURL(url)
	if err != nil {
		opts = &redis.Options{Addr: url}
	}
	opts.MaxRetries = 3
	return redis.NewClient(opts)
}

// Dial connects to url and pings the server before returning a backend.
func Dial(ctx context.Context, url, prefix string) (*Backend, error) {
	client := NewClient(url)
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return NewBackend(client, prefix), nil
}

// NewBackend wraps an existing client.
func NewBackend(client *redis.Client, prefix string) *Backend {
	if prefix == "" {
		prefix = DefaultPrefix
	}
	return &Backend{client: client, prefix: prefix}
}

// Key returns the redis key holding bucket.
func (b *Backend) Key(bucket string) string { return b.prefix + bucket }

// Load returns the payload stored for bucket. ok is false when the key is absent.
func (b *Backend) Load(ctx context.Context, bucket string) ([]byte, bool, error) {
	payload, err := b.client.Get(ctx, b.Key(bucket)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("get %s: %w", bucket, err)
	}
	return payload, true, nil
}

// Save writes a single bucket.
func (b *Backend) Save(ctx context.Context, bucket string, payload []byte) error {
	if err := b.client.Set(ctx, b.Key(bucket), payload, 0).Err(); err != nil {
		return fmt.Errorf("set %s: %w", bucket, err)
	}
	return nil
}

// SaveBuckets writes every bucket in one MULTI/EXEC block, in bucket order.
func (b *Backend) SaveBuckets(ctx context.Context, buckets map[string][]byte) error {
	names := make([]string, 0, len(buckets))
	for name := range buckets {
		names = append(names, name)
	}
	sort.Strings(names)
	_, err := b.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		for _, name := range names {
			pipe.Set(ctx, b.Key(name), buckets[name], 0)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("save buckets: %w", err)
	}
	return nil
}

// Ping reports whether the server is reachable.
func (b *Backend) Ping(ctx context.Context) error {
	return b.client.Ping(ctx).Err()
}

// Close releases the client.
func (b *Backend) Close() error { return b.client.Close() }
