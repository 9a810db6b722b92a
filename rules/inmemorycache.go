package rules

import (
	"context"
	"slices"
	"sync"
	"time"
)

type cacheEntry struct {
	rules    []Rule
	cachedAt time.Time
}

// InMemoryRulesCache is an in-process RulesCache.
// Thread-safe for concurrent access.
type InMemoryRulesCache struct {
	entries map[string]cacheEntry
	config  CacheConfig
	now     func() time.Time
	mu      sync.RWMutex
}

// NewInMemoryRulesCache creates a new in-memory rules cache
func NewInMemoryRulesCache(config CacheConfig) *InMemoryRulesCache {
	return &InMemoryRulesCache{
		entries: make(map[string]cacheEntry),
		config:  config,
		now:     time.Now,
	}
}

// Get returns a copy of the cached rules for a case type
func (c *InMemoryRulesCache) Get(_ context.Context, caseType string) ([]Rule, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	entry, ok := c.entries[caseType]
	if !ok {
		return nil, false
	}
	if c.config.TTL > 0 && c.now().Sub(entry.cachedAt) > c.config.TTL {
		return nil, false
	}
	return slices.Clone(entry.rules), true
}

// Set stores a copy of rules for a case type
func (c *InMemoryRulesCache) Set(_ context.Context, caseType string, rules []Rule) {
	c.mu.Lock()
	defer c.mu.Unlock()

	stored := slices.Clone(rules)
	if stored == nil {
		stored = []Rule{}
	}
	c.entries[caseType] = cacheEntry{rules: stored, cachedAt: c.now()}
}

// Invalidate drops the entry for a case type
func (c *InMemoryRulesCache) Invalidate(_ context.Context, caseType string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	delete(c.entries, caseType)
}
