package cache

import (
	"context"
	"sync"
	"time"

	"github.com/scaleflower/otrs-updater/common/logger"
	"github.com/scaleflower/otrs-updater/common/models"
)

// ReleaseCache stores recently fetched release metadata so repeated status
// checks within the TTL window do not burn provider API quota.
type ReleaseCache interface {
	Get(ctx context.Context, key string) (*models.ReleaseMetadata, bool)
	Set(ctx context.Context, key string, meta *models.ReleaseMetadata, ttl time.Duration)
	Delete(ctx context.Context, key string)
	Close() error
}

// MemoryReleaseCache is an in-memory ReleaseCache implementation
type MemoryReleaseCache struct {
	data   map[string]*cacheEntry
	mu     sync.RWMutex
	stop   chan struct{}
	closed bool
	log    *logger.Logger
}

type cacheEntry struct {
	meta      *models.ReleaseMetadata
	expiresAt time.Time
}

// NewMemoryReleaseCache creates a new in-memory release cache
func NewMemoryReleaseCache(log *logger.Logger) *MemoryReleaseCache {
	c := &MemoryReleaseCache{
		data: make(map[string]*cacheEntry),
		stop: make(chan struct{}),
		log:  log,
	}

	go c.cleanup()

	return c
}

// Get retrieves cached release metadata if present and unexpired
func (c *MemoryReleaseCache) Get(ctx context.Context, key string) (*models.ReleaseMetadata, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	entry, exists := c.data[key]
	if !exists {
		return nil, false
	}

	if time.Now().After(entry.expiresAt) {
		return nil, false
	}

	return entry.meta, true
}

// Set stores release metadata with a TTL. Writes after Close are dropped so
// a late in-flight fetch cannot race shutdown.
func (c *MemoryReleaseCache) Set(ctx context.Context, key string, meta *models.ReleaseMetadata, ttl time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return
	}

	c.data[key] = &cacheEntry{
		meta:      meta,
		expiresAt: time.Now().Add(ttl),
	}
}

// Delete removes an entry, used when a force check must bypass the cache
func (c *MemoryReleaseCache) Delete(ctx context.Context, key string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	delete(c.data, key)
}

// Close stops the cleanup goroutine and drops all entries. Close is
// idempotent; Get and Set on a closed cache are safe no-ops.
func (c *MemoryReleaseCache) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil
	}
	c.closed = true
	close(c.stop)
	c.data = nil
	c.log.Info("release cache closed")
	return nil
}

// cleanup removes expired entries periodically
func (c *MemoryReleaseCache) cleanup() {
	ticker := time.NewTicker(1 * time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-c.stop:
			return
		case <-ticker.C:
			c.mu.Lock()
			now := time.Now()
			for key, entry := range c.data {
				if now.After(entry.expiresAt) {
					delete(c.data, key)
				}
			}
			c.mu.Unlock()
		}
	}
}

// Stats returns cache statistics
func (c *MemoryReleaseCache) Stats() map[string]interface{} {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return map[string]interface{}{
		"entries": len(c.data),
		"type":    "memory",
	}
}
