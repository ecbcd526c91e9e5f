package cache

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"
)

// healthCheckInterval is how often FailoverCache pings the Redis primary
// once it's live, matching New's own connect-retry timescale.
const healthCheckInterval = 5 * time.Second

// FailoverCache wraps a live Redis primary with an in-process fallback and
// watches the primary's health in the background. The swap is one-way, per
// the spec: once the primary is declared down, every subsequent call is
// served by the fallback tier for the rest of the process's life rather
// than flapping back and forth as Redis recovers.
type FailoverCache struct {
	primary  *RedisCache
	fallback Cache
	degraded atomic.Bool
	stop     chan struct{}
}

// newFailoverCache starts the background health-check watcher and returns
// the wrapper. Call Close to stop the watcher and release both tiers.
func newFailoverCache(primary *RedisCache, fallback Cache) *FailoverCache {
	fc := &FailoverCache{primary: primary, fallback: fallback, stop: make(chan struct{})}
	go fc.watch()
	return fc
}

func (fc *FailoverCache) watch() {
	ticker := time.NewTicker(healthCheckInterval)
	defer ticker.Stop()
	if fc.checkOnce() {
		return
	}
	for {
		select {
		case <-fc.stop:
			return
		case <-ticker.C:
			if fc.checkOnce() {
				return
			}
		}
	}
}

// checkOnce pings the primary once and, on failure, latches the failover.
// Returns true once the watcher should stop (degraded, or already was).
func (fc *FailoverCache) checkOnce() bool {
	if fc.degraded.Load() {
		return true
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	err := fc.primary.client.Ping(ctx).Err()
	cancel()
	if err != nil {
		fmt.Printf("cache: redis health check failed, failing over to in-process fallback: %v\n", err)
		fc.degraded.Store(true)
		return true
	}
	return false
}

func (fc *FailoverCache) active() Cache {
	if fc.degraded.Load() {
		return fc.fallback
	}
	return fc.primary
}

func (fc *FailoverCache) Mode() Mode { return fc.active().Mode() }

func (fc *FailoverCache) Get(ctx context.Context, key string) ([]byte, bool) {
	return fc.active().Get(ctx, key)
}

func (fc *FailoverCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) {
	fc.active().Set(ctx, key, value, ttl)
}

func (fc *FailoverCache) Delete(ctx context.Context, key string) {
	fc.active().Delete(ctx, key)
}

func (fc *FailoverCache) InvalidatePattern(ctx context.Context, pattern string) {
	fc.active().InvalidatePattern(ctx, pattern)
}

func (fc *FailoverCache) Flush(ctx context.Context) {
	fc.active().Flush(ctx)
}

func (fc *FailoverCache) Close() error {
	close(fc.stop)
	if err := fc.primary.Close(); err != nil {
		return err
	}
	return fc.fallback.Close()
}
