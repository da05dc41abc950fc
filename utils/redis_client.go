package utils

import (
	"context"
	"net"
	"strconv"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/vitalog/points-engine/config"
)

var (
	rdb     *redis.Client
	rdbOnce sync.Once
)

// GetRedis returns the process-wide Redis client, created on first use.
// Connectivity is probed but never required: the cache layer treats an
// unreachable Redis as a miss and reads fall through to the database.
func GetRedis() *redis.Client {
	rdbOnce.Do(func() {
		cfg := config.Get()
		rdb = redis.NewClient(&redis.Options{
			Addr:         net.JoinHostPort(cfg.RedisHost, strconv.Itoa(cfg.RedisPort)),
			Password:     cfg.RedisPassword,
			DB:           cfg.RedisDB,
			DialTimeout:  3 * time.Second,
			ReadTimeout:  2 * time.Second,
			WriteTimeout: 2 * time.Second,
		})

		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := rdb.Ping(ctx).Err(); err != nil {
			Sugar.Warnf("redis unreachable at startup, summary cache disabled: %v", err)
		}
	})
	return rdb
}
