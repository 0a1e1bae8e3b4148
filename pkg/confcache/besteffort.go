package confcache

import (
	"context"
	"log/slog"
	"time"
)

// BestEffort degrades a failing backing store to plain misses and no-ops so
// the configuration layer keeps working when the shared cache process is
// unreachable. Errors are logged and swallowed.
type BestEffort struct {
	Store  Store
	Logger *slog.Logger
}

func (b BestEffort) logger() *slog.Logger {
	if b.Logger != nil {
		return b.Logger
	}
	return slog.Default()
}

func (b BestEffort) Get(ctx context.Context, key string) ([]byte, bool, error) {
	value, ok, err := b.Store.Get(ctx, key)
	if err != nil {
		b.logger().Warn("cache get failed, treating as miss", "key", key, "error", err)
		return nil, false, nil
	}
	return value, ok, nil
}

func (b BestEffort) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if err := b.Store.Set(ctx, key, value, ttl); err != nil {
		b.logger().Warn("cache set failed, skipped", "key", key, "error", err)
	}
	return nil
}

func (b BestEffort) Invalidate(ctx context.Context, key string) error {
	if err := b.Store.Invalidate(ctx, key); err != nil {
		b.logger().Warn("cache invalidate failed, skipped", "key", key, "error", err)
	}
	return nil
}

func (b BestEffort) InvalidateAll(ctx context.Context) error {
	if err := b.Store.InvalidateAll(ctx); err != nil {
		b.logger().Warn("cache invalidate-all failed, skipped", "error", err)
	}
	return nil
}
