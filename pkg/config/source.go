package config

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/mcpfleet/mcpfleet/pkg/confcache"
	"github.com/mcpfleet/mcpfleet/pkg/fleet"
	"github.com/mcpfleet/mcpfleet/pkg/observability"
)

// Source provides the ordered server definitions consumed by reconciliation.
type Source interface {
	Definitions(ctx context.Context) ([]fleet.ServerDefinition, error)
}

// FileSource re-reads the YAML file on every call; the file stays the source
// of truth.
type FileSource struct {
	Path string
}

func (s FileSource) Definitions(context.Context) ([]fleet.ServerDefinition, error) {
	cfg, err := Load(s.Path)
	if err != nil {
		return nil, err
	}
	return cfg.Definitions(), nil
}

const cacheKey = "server-definitions"

// CachedSource caches the parsed definitions of an inner Source in a
// confcache.Store. A miss always falls through to the inner source and
// repopulates the cache; Invalidate forces the next read through.
type CachedSource struct {
	src   Source
	store confcache.Store
	ttl   time.Duration
}

// NewCachedSource wraps src with a cache layer.
func NewCachedSource(src Source, store confcache.Store, ttl time.Duration) *CachedSource {
	return &CachedSource{src: src, store: store, ttl: ttl}
}

func (s *CachedSource) Definitions(ctx context.Context) ([]fleet.ServerDefinition, error) {
	data, ok, err := s.store.Get(ctx, cacheKey)
	if err == nil && ok {
		var defs []fleet.ServerDefinition
		if err := json.Unmarshal(data, &defs); err == nil {
			observability.CacheRequestsTotal.WithLabelValues("hit").Inc()
			return defs, nil
		}
		// A corrupt entry is treated as a miss and overwritten below.
		_ = s.store.Invalidate(ctx, cacheKey)
	}
	observability.CacheRequestsTotal.WithLabelValues("miss").Inc()

	defs, err := s.src.Definitions(ctx)
	if err != nil {
		return nil, err
	}
	encoded, err := json.Marshal(defs)
	if err != nil {
		return nil, fmt.Errorf("config: encoding definitions for cache: %w", err)
	}
	if err := s.store.Set(ctx, cacheKey, encoded, s.ttl); err != nil {
		return nil, err
	}
	return defs, nil
}

// Invalidate drops the cached definitions, forcing the next Definitions call
// through to the underlying source.
func (s *CachedSource) Invalidate(ctx context.Context) error {
	return s.store.Invalidate(ctx, cacheKey)
}
