package config

import "time"

// CacheConfig controls the restaurant directory cache and the response cache
// in front of the public restaurant listing.  Redis is used when a client is
// available; otherwise an in-process cache with the same TTLs takes over.
// Prefix namespaces the Redis keys.
type CacheConfig struct {
	Enabled         bool
	TTL             time.Duration // directory entries
	ResponseTTL     time.Duration // cached GET responses
	MaxBodyBytes    int           // responses larger than this are not cached
	Prefix          string
	CleanupInterval time.Duration
}

// LoadCacheConfig reads CACHE_* variables.  Defaults are used when variables
// are not set.
func LoadCacheConfig() CacheConfig {
	cfg := CacheConfig{
		Enabled:         envBool("CACHE_ENABLED", true),
		TTL:             envDur("CACHE_TTL", 30*time.Second),
		ResponseTTL:     envDur("CACHE_RESPONSE_TTL", 5*time.Second),
		MaxBodyBytes:    envInt("CACHE_MAX_BODY_BYTES", 1<<20),
		Prefix:          envStr("CACHE_PREFIX", "restaurant"),
		CleanupInterval: envDur("CACHE_CLEANUP_INTERVAL", time.Minute),
	}
	if cfg.TTL <= 0 {
		cfg.TTL = time.Second
	}
	if cfg.ResponseTTL <= 0 {
		cfg.ResponseTTL = time.Second
	}
	return cfg
}
