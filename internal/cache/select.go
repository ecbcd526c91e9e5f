package cache

import (
	"context"
	"fmt"
	"time"
)

const defaultConnectRetries = 3

// New attempts to connect to the configured Redis primary with capped
// backoff (min(attempt*200ms, 1000ms), per the spec's retry strategy), and
// falls back to the in-process tier on any hard failure or when no URL is
// configured. Once connected, the returned Cache is a FailoverCache: a
// background watcher keeps pinging Redis and swaps to the in-process tier
// the first time it goes unhealthy. The swap is one-way — the service
// degrades to the memory tier for the rest of the process's life instead
// of flapping as Redis recovers.
func New(cfg Config) Cache {
	if cfg.RedisURL == "" {
		fmt.Println("cache: no redis url configured, using in-process fallback")
		return NewMemoryCache(cfg.MaxMemoryKeys)
	}

	retries := cfg.ConnectRetries
	if retries <= 0 {
		retries = defaultConnectRetries
	}

	var lastErr error
	for attempt := 1; attempt <= retries; attempt++ {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		redisCache, err := DialRedis(ctx, cfg.RedisURL)
		cancel()
		if err == nil {
			return newFailoverCache(redisCache, NewMemoryCache(cfg.MaxMemoryKeys))
		}
		lastErr = err

		if attempt == retries {
			break
		}
		backoff := time.Duration(attempt) * 200 * time.Millisecond
		if backoff > time.Second {
			backoff = time.Second
		}
		time.Sleep(backoff)
	}

	fmt.Printf("cache: failed to connect to redis after %d attempts (%v), using in-process fallback\n", retries, lastErr)
	return NewMemoryCache(cfg.MaxMemoryKeys)
}
