package fetcher

import (
	"context"
	"encoding/json"
	"log"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/mohammad-safakhou/prosora/models"
)

const cacheKeyPrefix = "fetch:"

// snapshot is the cached per-source fetch result. FreshUntil marks the end
// of the source's refresh interval; past it the snapshot is stale but still
// usable as an outage fallback, until redis expires it.
type snapshot struct {
	Items      []models.ContentItem `json:"items"`
	FreshUntil time.Time            `json:"fresh_until"`
}

// Cache stores per-source item snapshots in redis.
type Cache struct {
	rdb    *redis.Client
	logger *log.Logger
}

// NewCache wraps a redis client. A nil client yields a nil cache, which the
// fetcher treats as "no cache".
func NewCache(rdb *redis.Client, logger *log.Logger) *Cache {
	if rdb == nil {
		return nil
	}
	if logger == nil {
		logger = log.New(log.Writer(), "[FETCH] ", log.LstdFlags)
	}
	return &Cache{rdb: rdb, logger: logger}
}

// Get returns the cached snapshot for a source and whether it is still
// within the source's refresh interval.
func (c *Cache) Get(ctx context.Context, sourceID string) (items []models.ContentItem, fresh bool, ok bool) {
	if c == nil {
		return nil, false, false
	}
	raw, err := c.rdb.Get(ctx, cacheKeyPrefix+sourceID).Bytes()
	if err != nil {
		if err != redis.Nil {
			c.logger.Printf("cache get %s: %v", sourceID, err)
		}
		return nil, false, false
	}
	var snap snapshot
	if err := json.Unmarshal(raw, &snap); err != nil {
		c.logger.Printf("cache decode %s: %v", sourceID, err)
		return nil, false, false
	}
	return snap.Items, time.Now().Before(snap.FreshUntil), true
}

// Put stores the snapshot. It stays fresh for refreshInterval and is kept
// around three times as long to serve as an outage fallback.
func (c *Cache) Put(ctx context.Context, sourceID string, items []models.ContentItem, refreshInterval time.Duration) {
	if c == nil {
		return
	}
	if refreshInterval <= 0 {
		refreshInterval = 6 * time.Hour
	}
	raw, err := json.Marshal(snapshot{Items: items, FreshUntil: time.Now().Add(refreshInterval)})
	if err != nil {
		c.logger.Printf("cache encode %s: %v", sourceID, err)
		return
	}
	if err := c.rdb.Set(ctx, cacheKeyPrefix+sourceID, raw, 3*refreshInterval).Err(); err != nil {
		c.logger.Printf("cache put %s: %v", sourceID, err)
	}
}
