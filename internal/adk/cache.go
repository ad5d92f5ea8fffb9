package adk

import (
	lru "github.com/hashicorp/golang-lru/v2"
)

// DefaultCacheSize is the default number of events whose trace (or graph)
// is kept per client.
const DefaultCacheSize = 1024

// payloadCache maps an event id to a decoded payload. A stored nil payload is
// a sentinel meaning "fetch attempted and failed"; it is a hit like any other.
// Entries are never invalidated, only displaced once the cache is full.
type payloadCache struct {
	entries *lru.Cache[string, map[string]any]
}

func newPayloadCache(size int) *payloadCache {
	if size <= 0 {
		size = DefaultCacheSize
	}
	// lru.New only fails for a non-positive size.
	entries, _ := lru.New[string, map[string]any](size)
	return &payloadCache{entries: entries}
}

func (c *payloadCache) get(eventID string) (map[string]any, bool) {
	return c.entries.Get(eventID)
}

func (c *payloadCache) add(eventID string, payload map[string]any) {
	c.entries.Add(eventID, payload)
}

func (c *payloadCache) len() int {
	return c.entries.Len()
}
