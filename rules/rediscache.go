package rules

import (
	"context"
	"encoding/json"
	"errors"

	backend "github.com/redis/go-redis/v9"

	"github.com/liamcoop/casework/internal/logger"
)

// RedisRulesCache implements RulesCache on Redis so that several API
// instances share one view of the rule sets. Redis failures are logged and
// treated as cache misses; the store stays the source of truth.
type RedisRulesCache struct {
	client *backend.Client
	prefix string
	config CacheConfig
}

// RedisCacheOption customizes a RedisRulesCache
type RedisCacheOption func(*RedisRulesCache)

// WithKeyPrefix sets the key prefix for cached rule sets
func WithKeyPrefix(prefix string) RedisCacheOption {
	return func(c *RedisRulesCache) {
		c.prefix = prefix
	}
}

// NewRedisRulesCache creates a rules cache over an existing client
func NewRedisRulesCache(client *backend.Client, config CacheConfig, opts ...RedisCacheOption) *RedisRulesCache {
	c := &RedisRulesCache{
		client: client,
		prefix: "casework:rules:",
		config: config,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *RedisRulesCache) key(caseType string) string {
	return c.prefix + caseType
}

// Get returns the cached rules of a case type
func (c *RedisRulesCache) Get(ctx context.Context, caseType string) ([]Rule, bool) {
	val, err := c.client.Get(ctx, c.key(caseType)).Bytes()
	if err != nil {
		if !errors.Is(err, backend.Nil) {
			logger.Warn("rules cache read failed", "case_type", caseType, "err", err)
		}
		return nil, false
	}

	var rules []Rule
	if err := json.Unmarshal(val, &rules); err != nil {
		logger.Warn("rules cache entry is corrupt", "case_type", caseType, "err", err)
		return nil, false
	}
	if rules == nil {
		rules = []Rule{}
	}
	return rules, true
}

// Set stores the rules of a case type with the configured TTL (0 = no expiry)
func (c *RedisRulesCache) Set(ctx context.Context, caseType string, rules []Rule) {
	if rules == nil {
		rules = []Rule{}
	}
	data, err := json.Marshal(rules)
	if err != nil {
		logger.Warn("failed to marshal rules for cache", "case_type", caseType, "err", err)
		return
	}
	if err := c.client.Set(ctx, c.key(caseType), data, c.config.TTL).Err(); err != nil {
		logger.Warn("rules cache write failed", "case_type", caseType, "err", err)
	}
}

// Invalidate drops the entry for a case type
func (c *RedisRulesCache) Invalidate(ctx context.Context, caseType string) {
	if err := c.client.Del(ctx, c.key(caseType)).Err(); err != nil {
		logger.Warn("rules cache invalidation failed", "case_type", caseType, "err", err)
	}
}

// Close closes the redis client
func (c *RedisRulesCache) Close() error {
	return c.client.Close()
}
