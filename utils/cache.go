package utils

import (
	"context"
	"encoding/json"
	"time"
)

// Cache access is best effort end to end: every helper swallows Redis
// failures so a cache outage costs latency, never correctness. Summaries go
// stale the moment an award lands, so TTLs stay short and each successful
// award additionally invalidates the user's key prefix.
const (
	defaultCacheTTL = time.Minute
	cacheOpTimeout  = 2 * time.Second
	scanBatchSize   = 1000
	maxScanRounds   = 10
)

func cacheCtx() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), cacheOpTimeout)
}

// CacheGetBytes reads a key, reporting a miss on any error.
func CacheGetBytes(key string) ([]byte, bool) {
	ctx, cancel := cacheCtx()
	defer cancel()

	b, err := GetRedis().Get(ctx, key).Bytes()
	if err != nil {
		return nil, false
	}
	return b, true
}

// CacheSetBytes stores a value under the TTL, falling back to the default
// when the caller passes zero.
func CacheSetBytes(key string, b []byte, ttl time.Duration) {
	if ttl <= 0 {
		ttl = defaultCacheTTL
	}

	ctx, cancel := cacheCtx()
	defer cancel()

	if err := GetRedis().Set(ctx, key, b, ttl).Err(); err != nil {
		Sugar.Debugf("cache set skipped key=%s err=%v", key, err)
	}
}

// CacheSetJSON marshals v and stores the JSON bytes.
func CacheSetJSON(key string, v interface{}, ttl time.Duration) {
	b, err := json.Marshal(v)
	if err != nil {
		return
	}
	CacheSetBytes(key, b, ttl)
}

// InvalidateByPrefix deletes every key under the prefix, scanning in bounded
// rounds so a huge keyspace cannot pin the award path.
func InvalidateByPrefix(prefix string) {
	ctx, cancel := cacheCtx()
	defer cancel()

	rc := GetRedis()
	var cursor uint64
	for round := 0; round < maxScanRounds; round++ {
		keys, next, err := rc.Scan(ctx, cursor, prefix+"*", scanBatchSize).Result()
		if err != nil {
			return
		}
		if len(keys) > 0 {
			pipe := rc.Pipeline()
			for _, k := range keys {
				pipe.Del(ctx, k)
			}
			_, _ = pipe.Exec(ctx)
		}
		cursor = next
		if cursor == 0 {
			return
		}
	}
}
