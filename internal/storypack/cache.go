package storypack

import (
	"fmt"
	"sync"
)

// Cache is a thread-safe in-memory cache of resolved StoryPacks, keyed by
// (story_id, version). Resolution is pure and versions are immutable once
// published, so entries never expire on their own; Invalidate removes one
// explicitly when a publication event arrives, per spec.md §5's
// "caching is permitted provided invalidation on publication events is
// implemented".
type Cache struct {
	mu      sync.RWMutex
	entries map[string]*StoryPack
	src     Source
}

// NewCache returns a Cache that resolves misses through src.
func NewCache(src Source) *Cache {
	return &Cache{
		entries: make(map[string]*StoryPack),
		src:     src,
	}
}

func cacheKey(storyID string, version int) string {
	return fmt.Sprintf("%s@%d", storyID, version)
}

// Resolve returns the cached StoryPack for (story_id, version), resolving
// and caching it on first access.
func (c *Cache) Resolve(storyID string, version int) (*StoryPack, error) {
	key := cacheKey(storyID, version)

	c.mu.RLock()
	sp, ok := c.entries[key]
	c.mu.RUnlock()
	if ok {
		return sp, nil
	}

	sp, err := Resolve(c.src, storyID, version)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	c.entries[key] = sp
	c.mu.Unlock()

	return sp, nil
}

// Invalidate drops a single (story_id, version) from the cache, forcing
// the next Resolve to reload it from src.
func (c *Cache) Invalidate(storyID string, version int) {
	c.mu.Lock()
	delete(c.entries, cacheKey(storyID, version))
	c.mu.Unlock()
}

// InvalidateAll clears every cached pack, for a bulk republish event.
func (c *Cache) InvalidateAll() {
	c.mu.Lock()
	c.entries = make(map[string]*StoryPack)
	c.mu.Unlock()
}

// Len reports how many (story_id, version) packs are currently cached, for
// the health endpoint's "story packs loaded" figure.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}
