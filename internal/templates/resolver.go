package templates

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/zerodha/logf"
)

const cacheKeyFormat = "queuebot:template:%s:%s"

// Store loads an organization's override for a message key. It returns an
// empty string and no error when there is none.
type Store interface {
	TemplateContent(ctx context.Context, orgID uuid.UUID, key string) (string, error)
}

// Resolver picks the organization's override for a key, falling back to the
// built-in default. Lookups never fail; store and cache errors are logged.
type Resolver struct {
	store Store
	cache *redis.Client
	ttl   time.Duration
	log   logf.Logger
}

// NewResolver creates a resolver. store and cache may be nil.
func NewResolver(store Store, cache *redis.Client, ttl time.Duration, log logf.Logger) *Resolver {
	return &Resolver{store: store, cache: cache, ttl: ttl, log: log}
}

// Lookup returns the template text for key.
func (r *Resolver) Lookup(ctx context.Context, orgID uuid.UUID, key string) string {
	if custom, ok := r.custom(ctx, orgID, key); ok {
		return custom
	}
	return Defaults[key]
}

// Render looks up key and renders it with vars.
func (r *Resolver) Render(ctx context.Context, orgID uuid.UUID, key string, vars map[string]interface{}) string {
	return Render(r.Lookup(ctx, orgID, key), vars)
}

// Invalidate drops a cached override after it changes.
func (r *Resolver) Invalidate(ctx context.Context, orgID uuid.UUID, key string) {
	if r.cache == nil {
		return
	}
	if err := r.cache.Del(ctx, fmt.Sprintf(cacheKeyFormat, orgID, key)).Err(); err != nil {
		r.log.Warn("Failed to invalidate template cache", "error", err, "key", key)
	}
}

func (r *Resolver) custom(ctx context.Context, orgID uuid.UUID, key string) (string, bool) {
	if r.store == nil || orgID == uuid.Nil {
		return "", false
	}

	cacheKey := fmt.Sprintf(cacheKeyFormat, orgID, key)
	if r.cache != nil {
		cached, err := r.cache.Get(ctx, cacheKey).Result()
		if err == nil {
			// "-" marks a known absence of an override
			if cached == "-" || cached == "" {
				return "", false
			}
			return cached[1:], true
		}
		if err != redis.Nil {
			r.log.Warn("Template cache read failed", "error", err, "key", key)
		}
	}

	content, err := r.store.TemplateContent(ctx, orgID, key)
	if err != nil {
		r.log.Error("Failed to load message template", "error", err, "organization_id", orgID, "key", key)
		return "", false
	}

	if r.cache != nil {
		value := "-"
		if content != "" {
			value = "+" + content
		}
		if err := r.cache.Set(ctx, cacheKey, value, r.ttl).Err(); err != nil {
			r.log.Warn("Template cache write failed", "error", err, "key", key)
		}
	}

	return content, content != ""
}
