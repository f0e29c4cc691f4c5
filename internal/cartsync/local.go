package cartsync

import (
	"context"
	"errors"

	"go.uber.org/zap"
)

// KeyValueStore is the persistent key/value storage behind the local cart cache.
type KeyValueStore interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
}

// LocalCache stores cart lines in a KeyValueStore. Storage failures and unreadable payloads are
// logged and reported as a missing entry.
type LocalCache struct {
	store  KeyValueStore
	logger *zap.Logger
}

// NewLocalCache wraps store with the line codec.
func NewLocalCache(store KeyValueStore, logger *zap.Logger) (*LocalCache, error) {
	if store == nil {
		return nil, errors.New("cartsync: local store is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LocalCache{store: store, logger: logger}, nil
}

// Load returns the lines stored under key.
func (c *LocalCache) Load(ctx context.Context, key string) ([]Line, bool) {
	data, ok, err := c.store.Get(ctx, key)
	if err != nil {
		c.logger.Warn("local cart read failed", zap.String("key", key), zap.Error(err))
		return nil, false
	}
	if !ok {
		return nil, false
	}
	lines, err := DecodeLines(data)
	if err != nil {
		c.logger.Warn("discarding unreadable local cart", zap.String("key", key), zap.Error(err))
		return nil, false
	}
	return lines, true
}

// Save writes lines under key.
func (c *LocalCache) Save(ctx context.Context, key string, lines []Line) {
	data, err := EncodeLines(lines)
	if err != nil {
		c.logger.Warn("local cart encode failed", zap.String("key", key), zap.Error(err))
		return
	}
	if err := c.store.Set(ctx, key, data); err != nil {
		c.logger.Warn("local cart write failed", zap.String("key", key), zap.Error(err))
	}
}

// Remove deletes the entry under key.
func (c *LocalCache) Remove(ctx context.Context, key string) {
	if err := c.store.Delete(ctx, key); err != nil {
		c.logger.Warn("local cart delete failed", zap.String("key", key), zap.Error(err))
	}
}
