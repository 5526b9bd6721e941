package cache

import (
	"context"
	"encoding/json"
	"time"

	"go.uber.org/zap"

	"github.com/iliyamo/restaurant-table-reservation/internal/model"
)

// RestaurantCache caches restaurants with their floor plans as JSON.
type RestaurantCache struct {
	store  Store
	prefix string
	ttl    time.Duration
	log    *zap.Logger
}

func NewRestaurantCache(store Store, prefix string, ttl time.Duration, log *zap.Logger) *RestaurantCache {
	if log == nil {
		log = zap.NewNop()
	}
	if prefix == "" {
		prefix = "restaurant"
	}
	return &RestaurantCache{store: store, prefix: prefix, ttl: ttl, log: log}
}

func (c *RestaurantCache) key(id string) string { return c.prefix + ":" + id }

func (c *RestaurantCache) Get(ctx context.Context, id string) (*model.Restaurant, bool) {
	bs, ok := c.store.Get(ctx, c.key(id))
	if !ok {
		return nil, false
	}
	var r model.Restaurant
	if err := json.Unmarshal(bs, &r); err != nil {
		c.log.Warn("dropping undecodable cache entry", zap.String("restaurant_id", id), zap.Error(err))
		_ = c.store.Delete(ctx, c.key(id))
		return nil, false
	}
	return &r, true
}

func (c *RestaurantCache) Set(ctx context.Context, r *model.Restaurant) {
	bs, err := json.Marshal(r)
	if err != nil {
		return
	}
	if err := c.store.Set(ctx, c.key(r.ID), bs, c.ttl); err != nil {
		c.log.Warn("restaurant cache write failed", zap.String("restaurant_id", r.ID), zap.Error(err))
	}
}

func (c *RestaurantCache) Invalidate(ctx context.Context, id string) {
	if err := c.store.Delete(ctx, c.key(id)); err != nil {
		c.log.Warn("restaurant cache invalidation failed", zap.String("restaurant_id", id), zap.Error(err))
	}
}
