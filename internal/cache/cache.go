// Package cache is a TTL cache for region summaries over a pluggable
// key-value store. Expiry is checked lazily on read.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/lox/mpawatch/internal/logging"
	"github.com/lox/mpawatch/internal/metrics"
	"go.uber.org/zap"
)

// Store is the key-value backend. Values are opaque bytes; Get reports
// whether the key existed.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Put(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
}

// Scanner is implemented by stores that can enumerate their entries.
type Scanner interface {
	Scan(ctx context.Context, prefix string, fn func(key string, value []byte) error) error
}

var ErrScanUnsupported = errors.New("cache: store cannot enumerate entries")

// entry is the stored envelope. Times are epoch milliseconds.
type entry struct {
	Payload     json.RawMessage `json:"payload"`
	LastFetched int64           `json:"lastFetched"`
	ExpiresAt   int64           `json:"expiresAt"`
}

// Meta describes a cached entry's age.
type Meta struct {
	LastFetched time.Time
	ExpiresAt   time.Time
}

type ExpiringCache struct {
	store  Store
	logger *zap.Logger
	now    func() time.Time
}

func New(store Store, logger *zap.Logger) *ExpiringCache {
	return &ExpiringCache{
		store:  store,
		logger: logging.OrNop(logger),
		now:    time.Now,
	}
}

// SetClock replaces the time source used for expiry.
func (c *ExpiringCache) SetClock(now func() time.Time) {
	c.now = now
}

// Get decodes the payload for key into dst. An absent, expired or
// undecodable entry is a miss; expired and corrupt entries are deleted.
func (c *ExpiringCache) Get(ctx context.Context, key Key, dst any) (Meta, bool, error) {
	if err := key.Validate(); err != nil {
		return Meta{}, false, err
	}
	k := key.String()

	raw, ok, err := c.store.Get(ctx, k)
	if err != nil {
		return Meta{}, false, fmt.Errorf("cache get %s: %w", k, err)
	}
	if !ok {
		c.observe(key, "miss")
		return Meta{}, false, nil
	}

	var e entry
	if err := json.Unmarshal(raw, &e); err != nil || e.Payload == nil {
		c.discard(ctx, key, "corrupt", err)
		return Meta{}, false, nil
	}

	if c.now().UnixMilli() > e.ExpiresAt {
		c.discard(ctx, key, "expired", nil)
		return Meta{}, false, nil
	}

	if err := json.Unmarshal(e.Payload, dst); err != nil {
		c.discard(ctx, key, "corrupt", err)
		return Meta{}, false, nil
	}

	c.observe(key, "hit")
	return Meta{
		LastFetched: time.UnixMilli(e.LastFetched),
		ExpiresAt:   time.UnixMilli(e.ExpiresAt),
	}, true, nil
}

// Put overwrites key with payload, valid for ttl from now.
func (c *ExpiringCache) Put(ctx context.Context, key Key, payload any, ttl time.Duration) (Meta, error) {
	if err := key.Validate(); err != nil {
		return Meta{}, err
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return Meta{}, fmt.Errorf("cache marshal %s: %w", key, err)
	}

	now := c.now()
	e := entry{
		Payload:     body,
		LastFetched: now.UnixMilli(),
		ExpiresAt:   now.Add(ttl).UnixMilli(),
	}
	raw, err := json.Marshal(e)
	if err != nil {
		return Meta{}, fmt.Errorf("cache marshal %s: %w", key, err)
	}

	if err := c.store.Put(ctx, key.String(), raw); err != nil {
		return Meta{}, fmt.Errorf("cache put %s: %w", key, err)
	}
	return Meta{
		LastFetched: time.UnixMilli(e.LastFetched),
		ExpiresAt:   time.UnixMilli(e.ExpiresAt),
	}, nil
}

func (c *ExpiringCache) Delete(ctx context.Context, key Key) error {
	if err := key.Validate(); err != nil {
		return err
	}
	if err := c.store.Delete(ctx, key.String()); err != nil {
		return fmt.Errorf("cache delete %s: %w", key, err)
	}
	return nil
}

// Counter is implemented by stores that can count their entries directly.
type Counter interface {
	CacheEntryCount(ctx context.Context) (int, error)
}

// Len reports how many entries the store holds, expired ones included.
func (c *ExpiringCache) Len(ctx context.Context) (int, error) {
	if counter, ok := c.store.(Counter); ok {
		return counter.CacheEntryCount(ctx)
	}
	scanner, ok := c.store.(Scanner)
	if !ok {
		return 0, ErrScanUnsupported
	}
	var n int
	err := scanner.Scan(ctx, "", func(key string, _ []byte) error {
		if _, err := ParseKey(key); err == nil {
			n++
		}
		return nil
	})
	return n, err
}

// Purge deletes every expired or undecodable entry and returns how many were
// removed. Keys that are not cache keys are left alone. The store must
// implement Scanner.
func (c *ExpiringCache) Purge(ctx context.Context) (int, error) {
	scanner, ok := c.store.(Scanner)
	if !ok {
		return 0, ErrScanUnsupported
	}

	now := c.now().UnixMilli()
	var stale []Key
	err := scanner.Scan(ctx, "", func(raw string, value []byte) error {
		key, err := ParseKey(raw)
		if err != nil {
			return nil
		}
		var e entry
		if err := json.Unmarshal(value, &e); err != nil || now > e.ExpiresAt {
			stale = append(stale, key)
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("cache scan: %w", err)
	}

	byNamespace := make(map[string]int)
	for _, k := range stale {
		if err := c.store.Delete(ctx, k.String()); err != nil {
			return 0, fmt.Errorf("cache delete %s: %w", k, err)
		}
		byNamespace[k.Namespace]++
	}

	c.logger.Info("cache purged", zap.Int("removed", len(stale)), zap.Any("by_namespace", byNamespace))
	return len(stale), nil
}

func (c *ExpiringCache) discard(ctx context.Context, key Key, result string, cause error) {
	c.observe(key, result)
	if err := c.store.Delete(ctx, key.String()); err != nil {
		c.logger.Warn("failed to delete stale cache entry", zap.String("key", key.String()), zap.Error(err))
	}
	if cause != nil {
		c.logger.Debug("discarding undecodable cache entry", zap.String("key", key.String()), zap.Error(cause))
	}
}

func (c *ExpiringCache) observe(key Key, result string) {
	metrics.CacheLookups.WithLabelValues(key.Namespace, result).Inc()
}
