// Package redis implements store.Backend on Redis. Values live under
// per-key strings; a sorted set with equal scores indexes the keys so that
// prefix scans become lexicographic range queries.
package redis

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/rmax-ai/gfs/pkg/store"
)

const (
	defaultNamespace = "gfs"
	indexSuffix      = ":resources"
)

type Backend struct {
	client    *redis.Client
	namespace string
}

// NewBackend wraps client. namespace prefixes every Redis key and defaults
// to "gfs".
func NewBackend(client *redis.Client, namespace string) *Backend {
	if namespace == "" {
		namespace = defaultNamespace
	}
	return &Backend{client: client, namespace: namespace}
}

func (b *Backend) makeKey(key string) string {
	return fmt.Sprintf("%s:res:%s", b.namespace, key)
}

func (b *Backend) indexKey() string {
	return b.namespace + indexSuffix
}

func (b *Backend) Put(ctx context.Context, key string, value []byte) error {
	_, err := b.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, b.makeKey(key), value, 0)
		pipe.ZAdd(ctx, b.indexKey(), redis.Z{Score: 0, Member: key})
		return nil
	})
	if err != nil {
		return fmt.Errorf("%w: put %s: %w", store.ErrBackend, key, err)
	}
	return nil
}

func (b *Backend) Get(ctx context.Context, key string) ([]byte, error) {
	data, err := b.client.Get(ctx, b.makeKey(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("%s: %w", key, store.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: get %s: %w", store.ErrBackend, key, err)
	}
	return data, nil
}

func (b *Backend) ScanPrefix(ctx context.Context, prefix string) ([]store.Entry, error) {
	by := &redis.ZRangeBy{Min: "-", Max: "+"}
	if prefix != "" {
		// keys are UTF-8, so 0xff sorts after every continuation of prefix
		by = &redis.ZRangeBy{Min: "[" + prefix, Max: "(" + prefix + "\xff"}
	}
	keys, err := b.client.ZRangeByLex(ctx, b.indexKey(), by).Result()
	if err != nil {
		return nil, fmt.Errorf("%w: scan %s: %w", store.ErrBackend, prefix, err)
	}
	if len(keys) == 0 {
		return []store.Entry{}, nil
	}

	dataKeys := make([]string, len(keys))
	for i, k := range keys {
		dataKeys[i] = b.makeKey(k)
	}
	values, err := b.client.MGet(ctx, dataKeys...).Result()
	if err != nil {
		return nil, fmt.Errorf("%w: scan %s: %w", store.ErrBackend, prefix, err)
	}

	entries := make([]store.Entry, 0, len(keys))
	for i, val := range values {
		if val == nil {
			// indexed but deleted out of band
			continue
		}
		str, ok := val.(string)
		if !ok {
			return nil, fmt.Errorf("%w: scan %s: non-string value for %s", store.ErrBackend, prefix, keys[i])
		}
		entries = append(entries, store.Entry{Key: keys[i], Value: []byte(str)})
	}
	return entries, nil
}

// Close closes the underlying client.
func (b *Backend) Close() error {
	return b.client.Close()
}
