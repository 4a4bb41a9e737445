package plans

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/quanghuyng/feastly-backend/pkg/db/models"
	pkgredis "github.com/quanghuyng/feastly-backend/pkg/redis"
)

const (
	cacheScope   = "plans"
	cacheListKey = "active"
)

// catalogCache is a read-through cache in front of the plan repository.
// Plans change rarely, so the TTL is long and admin upserts invalidate.
type catalogCache struct {
	store pkgredis.Cache
	ttl   time.Duration
}

func newCatalogCache(store pkgredis.Cache, ttl time.Duration) *catalogCache {
	if store == nil {
		return nil
	}
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &catalogCache{store: store, ttl: ttl}
}

func (c *catalogCache) getList(ctx context.Context) ([]models.Plan, bool) {
	if c == nil {
		return nil, false
	}
	raw, err := c.store.Get(ctx, c.store.CacheKey(cacheScope, cacheListKey))
	if err != nil || raw == "" {
		return nil, false
	}
	var plans []models.Plan
	if err := json.Unmarshal([]byte(raw), &plans); err != nil {
		return nil, false
	}
	return plans, true
}

func (c *catalogCache) setList(ctx context.Context, plans []models.Plan) {
	if c == nil {
		return
	}
	payload, err := json.Marshal(plans)
	if err != nil {
		return
	}
	_ = c.store.Set(ctx, c.store.CacheKey(cacheScope, cacheListKey), string(payload), c.ttl)
}

func (c *catalogCache) getPlan(ctx context.Context, id string) (*models.Plan, bool) {
	if c == nil {
		return nil, false
	}
	raw, err := c.store.Get(ctx, c.store.CacheKey(cacheScope, id))
	if err != nil || raw == "" {
		return nil, false
	}
	var plan models.Plan
	if err := json.Unmarshal([]byte(raw), &plan); err != nil {
		return nil, false
	}
	return &plan, true
}

func (c *catalogCache) setPlan(ctx context.Context, plan *models.Plan) {
	if c == nil || plan == nil {
		return
	}
	payload, err := json.Marshal(plan)
	if err != nil {
		return
	}
	_ = c.store.Set(ctx, c.store.CacheKey(cacheScope, plan.ID.String()), string(payload), c.ttl)
}

func (c *catalogCache) invalidate(ctx context.Context, planIDs ...string) error {
	if c == nil {
		return nil
	}
	keys := []string{c.store.CacheKey(cacheScope, cacheListKey)}
	for _, id := range planIDs {
		if id != "" {
			keys = append(keys, c.store.CacheKey(cacheScope, id))
		}
	}
	if err := c.store.Del(ctx, keys...); err != nil && !errors.Is(err, pkgredis.Nil) {
		return err
	}
	return nil
}
