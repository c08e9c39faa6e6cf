package backend

import (
	"sync"
	"time"
)

// modelCache is a TTL-boxed cache of a provider's model catalog.
// Every read and write takes the mutex; drivers never touch the
// fields directly.
type modelCache struct {
	mu        sync.Mutex
	models    []ModelInfo
	fetchedAt time.Time
	ttl       time.Duration
}

func newModelCache(ttl time.Duration) *modelCache {
	return &modelCache{ttl: ttl}
}

// get returns the cached catalog when it is still fresh.
func (c *modelCache) get() ([]ModelInfo, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.models == nil || time.Since(c.fetchedAt) > c.ttl {
		return nil, false
	}
	out := make([]ModelInfo, len(c.models))
	copy(out, c.models)
	return out, true
}

// set stores a fresh catalog.
func (c *modelCache) set(models []ModelInfo) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.models = make([]ModelInfo, len(models))
	copy(c.models, models)
	c.fetchedAt = time.Now()
}

// invalidate drops the cached catalog so the next read re-fetches.
func (c *modelCache) invalidate() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.models = nil
}
