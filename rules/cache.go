package rules

import (
	"context"
	"time"
)

// RulesCache caches the rule set of each case type.
// Implementations may be in-process or shared between instances.
type RulesCache interface {
	// Get returns the cached rules of a case type. ok is false on a miss or
	// when the entry expired.
	Get(ctx context.Context, caseType string) (rules []Rule, ok bool)

	// Set stores the rules of a case type
	Set(ctx context.Context, caseType string, rules []Rule)

	// Invalidate drops the entry for a case type, forcing a reload on next Get
	Invalidate(ctx context.Context, caseType string)
}

// CacheConfig holds configuration for cache behavior
type CacheConfig struct {
	// TTL is the time-to-live for cached entries.
	// Set to 0 for no expiration (invalidation on writes only).
	TTL time.Duration
}

// DefaultCacheConfig returns the default rule caching behaviour
func DefaultCacheConfig() CacheConfig {
	return CacheConfig{TTL: 0}
}
