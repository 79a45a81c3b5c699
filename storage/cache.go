package storage

import (
	"context"
	"time"

	gocache "github.com/patrickmn/go-cache"

	"property-map-search/models"
	"property-map-search/utils"
)

const allPropertiesKey = "properties:all"

// CachedSource memoises FetchAll of another source for a fixed TTL.
type CachedSource struct {
	inner  PropertySource
	cache  *gocache.Cache
	logger *utils.Logger
}

// NewCachedSource wraps inner. A non-positive ttl disables expiry.
func NewCachedSource(inner PropertySource, ttl time.Duration, logger *utils.Logger) *CachedSource {
	if ttl <= 0 {
		ttl = gocache.NoExpiration
	}
	return &CachedSource{
		inner:  inner,
		cache:  gocache.New(ttl, 2*ttl),
		logger: logger,
	}
}

// FetchAll returns the cached set when fresh, otherwise reloads it.
// Failed loads are not cached.
func (c *CachedSource) FetchAll(ctx context.Context) ([]models.PropertyRecord, error) {
	if v, ok := c.cache.Get(allPropertiesKey); ok {
		return v.([]models.PropertyRecord), nil
	}

	records, err := c.inner.FetchAll(ctx)
	if err != nil {
		return nil, err
	}
	if c.logger != nil {
		c.logger.Debug("[cache] loaded %d properties from source", len(records))
	}
	c.cache.SetDefault(allPropertiesKey, records)
	return records, nil
}

// Invalidate drops the cached set so the next FetchAll reloads.
func (c *CachedSource) Invalidate() {
	c.cache.Delete(allPropertiesKey)
}
