// Package cache implements the two-tier result cache: a Redis-backed
// primary tier and an in-process fallback, selected once at startup and
// latched until the next failover event. Grounded on the cache abstraction
// in rezaabdurahman-Link/backend/shared-libs/cache (CacheInterface,
// CacheConfig, NewCache factory), narrowed to the handful of operations the
// recognition coordinator actually needs.
package cache

import (
	"context"
	"crypto/md5" //nolint:gosec // used as a fingerprint, not for security
	"encoding/hex"
	"time"
)

// Mode identifies which tier is currently serving traffic.
type Mode string

const (
	ModeRedis  Mode = "redis"
	ModeMemory Mode = "memory"
)

// KeyPrefix namespaces every cache key the coordinator writes.
const KeyPrefix = "face_recog_"

// DefaultTTL is the cache entry lifetime used for identification results.
const DefaultTTL = 30 * time.Minute

// Cache is the narrow interface the recognition coordinator and batch
// engine depend on. Every implementation swallows its own errors: a cache
// must never be a failure source for a caller.
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, bool)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration)
	Delete(ctx context.Context, key string)
	InvalidatePattern(ctx context.Context, pattern string)
	Flush(ctx context.Context)
	Mode() Mode
	Close() error
}

// FingerprintKey derives the cache key for a raw image payload: an md5 of
// the bytes, prefixed per the spec's on-wire key convention.
func FingerprintKey(imageBytes []byte) string {
	sum := md5.Sum(imageBytes) //nolint:gosec // fingerprint, not a security boundary
	return KeyPrefix + hex.EncodeToString(sum[:])
}

// Config selects and tunes the backing stores.
type Config struct {
	RedisURL      string
	DefaultTTL    time.Duration
	MaxMemoryKeys int
	ConnectRetries int
}
