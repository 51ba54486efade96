// Package blobkv stores snapshot buckets as objects in a blob store, one
// object per bucket under a key prefix.
package blobkv

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"rollcall/internal/blob/core"
)

// DefaultPrefix is used when NewBackend receives an empty prefix.
const DefaultPrefix = "state/"

const contentType = "application/json"

// Backend adapts a blob store to the bucket Load/Save contract.
type Backend struct {
	store  core.Store
	prefix string
}

// NewBackend wraps store. Keys are <prefix><bucket>.json.
func NewBackend(store core.Store, prefix string) *Backend {
	if prefix == "" {
		prefix = DefaultPrefix
	}
	return &Backend{store: store, prefix: prefix}
}

// Key returns the object key holding bucket.
func (b *Backend) Key(bucket string) string { return b.prefix + bucket + ".json" }

// Load returns the payload stored for bucket. ok is false when the object is absent.
func (b *Backend) Load(ctx context.Context, bucket string) ([]byte, bool, error) {
	_, rc, err := b.store.Get(ctx, b.Key(bucket))
	if errors.Is(err, core.ErrNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("get %s: %w", bucket, err)
	}
	defer func() { _ = rc.Close() }()
	payload, err := io.ReadAll(rc)
	if err != nil {
		return nil, false, fmt.Errorf("read %s: %w", bucket, err)
	}
	return payload, true, nil
}

// Save replaces the object for bucket.
func (b *Backend) Save(ctx context.Context, bucket string, payload []byte) error {
	_, err := b.store.Put(ctx, b.Key(bucket), bytes.NewReader(payload), core.PutOptions{
		ContentType: contentType,
		Metadata:    map[string]string{"bucket": bucket},
	})
	if err != nil {
		return fmt.Errorf("put %s: %w", bucket, err)
	}
	return nil
}

// Buckets lists the buckets currently stored under the prefix.
func (b *Backend) Buckets(ctx context.Context) ([]string, error) {
	infos, err := b.store.List(ctx, b.prefix)
	if err != nil {
		return nil, err
	}
	out := make([]string, 0, len(infos))
	for _, info := range infos {
		name, ok := strings.CutSuffix(strings.TrimPrefix(info.Key, b.prefix), ".json")
		if ok && name != "" {
			out = append(out, name)
		}
	}
	return out, nil
}

// Driver names the underlying blob driver.
func (b *Backend) Driver() core.Driver { return b.store.Driver() }

// Close is a no-op; blob stores hold no long-lived handles.
func (b *Backend) Close() error { return nil }
