package cache

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// Result is what Loader hands back.
type Result struct {
	Value []byte
	Hit   bool
	Stale bool
}

// Loader reads through a Store. Concurrent misses for one key share a single
// upstream call, and a failed refresh falls back to whatever was stored last.
type Loader struct {
	store  Store
	group  singleflight.Group
	logger *zap.Logger
	now    func() time.Time
}

func NewLoader(store Store, logger *zap.Logger) *Loader {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Loader{store: store, logger: logger, now: time.Now}
}

// Get returns the fresh cached value for key, or calls load and stores its
// result for ttl.
func (l *Loader) Get(ctx context.Context, key string, ttl time.Duration, load func(context.Context) ([]byte, error)) (Result, error) {
	cached, err := l.store.Get(ctx, key)
	if err != nil {
		if !errors.Is(err, ErrCacheMiss) {
			l.logger.Warn("Cache read failed", zap.String("key", key), zap.Error(err))
		}
		cached = nil
	}
	if cached != nil && cached.Fresh(l.now()) {
		return Result{Value: cached.Value, Hit: true}, nil
	}

	v, err, _ := l.group.Do(key, func() (interface{}, error) {
		value, err := load(ctx)
		if err != nil {
			return nil, err
		}
		entry := Entry{Value: value, InsertedAt: l.now(), TTL: ttl}
		if err := l.store.Set(ctx, key, entry); err != nil {
			l.logger.Warn("Cache write failed", zap.String("key", key), zap.Error(err))
		}
		return value, nil
	})
	if err != nil {
		if cached != nil {
			l.logger.Warn("Serving stale cache entry after refresh failure",
				zap.String("key", key),
				zap.Time("inserted_at", cached.InsertedAt),
				zap.Error(err))
			return Result{Value: cached.Value, Stale: true}, nil
		}
		return Result{}, err
	}
	return Result{Value: v.([]byte)}, nil
}
