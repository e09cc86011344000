package app

import (
	"strings"

	"github.com/charlesng35/get2knowme/internal/cache"
)

// RedisClientConfig returns the shared Redis settings and whether Redis-backed
// rate limiting is enabled.
func (c CacheConfig) RedisClientConfig() (cache.RedisConfig, bool) {
	cfg := cache.RedisConfig{
		Address:  strings.TrimSpace(c.Redis.Address),
		Username: strings.TrimSpace(c.Redis.Username),
		Password: c.Redis.Password,
		DB:       c.Redis.DB,
		TLS:      c.Redis.TLS,
		Timeout:  c.Redis.Timeout,
	}
	return cfg, c.Redis.Enabled && cfg.Address != ""
}
