package cache

import (
	"context"
	"time"

	"github.com/ayevbeosa/crypto-portfolio-tracker/internal/logger"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

var RedisClient *redis.Client // Exported for redis_rate

// Cache key layout. Per-symbol reads and the all-assets aggregate are cached
// separately so a refresh can invalidate exactly what it touched.
const (
	keyPrefixAsset   = "asset:"
	keyPrefixHistory = "history:"
	KeyAllAssets     = "assets:all"
)

func KeyAsset(symbol string) string   { return keyPrefixAsset + symbol }
func KeyHistory(symbol string) string { return keyPrefixHistory + symbol }

var (
	cacheHitsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cache_hits_total",
			Help: "Total number of cache hits",
		},
		[]string{"endpoint", "instance"},
	)
	cacheMissesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cache_misses_total",
			Help: "Total number of cache misses",
		},
		[]string{"endpoint", "instance"},
	)
)

func init() {
	prometheus.MustRegister(cacheHitsTotal)
	prometheus.MustRegister(cacheMissesTotal)
}

// InitRedis connects the shared client. A failed ping is returned, not
// fatal: the service runs without a cache, only slower.
func InitRedis(addr string) error {
	RedisClient = redis.NewClient(&redis.Options{
		Addr: addr,
	})
	_, err := RedisClient.Ping(context.Background()).Result()
	return err
}

// GetCache returns the cached value for key, or "" on a miss. Errors other
// than a miss are returned so callers can fall back to the store.
func GetCache(ctx context.Context, key string, endpoint, instance string) (string, error) {
	if RedisClient == nil {
		return "", nil
	}
	val, err := RedisClient.Get(ctx, key).Result()
	if err == redis.Nil {
		cacheMissesTotal.WithLabelValues(endpoint, instance).Inc()
		return "", nil
	}
	if err != nil {
		return "", err
	}
	cacheHitsTotal.WithLabelValues(endpoint, instance).Inc()
	return val, err
}

// SetCache stores value under key with a TTL.
func SetCache(ctx context.Context, key, value string, ttl time.Duration, endpoint, instance string) error {
	if RedisClient == nil {
		return nil
	}
	return RedisClient.Set(ctx, key, value, ttl).Err()
}

// DeleteCache removes specific keys. Used by the price synchronizer to
// invalidate a refreshed asset and the all-assets aggregate.
func DeleteCache(ctx context.Context, keys ...string) {
	if RedisClient == nil || len(keys) == 0 {
		return
	}
	if err := RedisClient.Del(ctx, keys...).Err(); err != nil {
		logger.Log.Warn("Failed to invalidate cache keys",
			zap.Strings("keys", keys),
			zap.Error(err),
		)
	}
}

// InvalidateByPrefix deletes every key matching the prefix.
func InvalidateByPrefix(ctx context.Context, prefix string, endpoint string, instance string) {
	if RedisClient == nil {
		return
	}
	keys, err := getAllKeys(ctx, prefix)
	if err != nil {
		logger.Log.Error("Failed to get cache keys for invalidation",
			zap.String("prefix", prefix),
			zap.String("endpoint", endpoint),
			zap.String("instance", instance),
			zap.Error(err),
		)
		return
	}

	invalidatedCount := 0
	for _, key := range keys {
		if err := RedisClient.Del(ctx, key).Err(); err != nil {
			logger.Log.Warn("Failed to invalidate cache key",
				zap.String("key", key),
				zap.String("prefix", prefix),
				zap.Error(err),
			)
		} else {
			invalidatedCount++
		}
	}

	logger.Log.Info("Cache invalidation completed",
		zap.String("prefix", prefix),
		zap.String("endpoint", endpoint),
		zap.String("instance", instance),
		zap.Int("invalidated_keys", invalidatedCount),
	)
}

// Retrieve all keys matching a prefix from Redis
func getAllKeys(ctx context.Context, prefix string) ([]string, error) {
	var cursor uint64
	var keys []string
	for {
		// SCAN command with match filter for prefix
		foundKeys, nextCursor, err := RedisClient.Scan(ctx, cursor, prefix+"*", 1000).Result()
		if err != nil {
			return nil, err
		}

		keys = append(keys, foundKeys...)
		cursor = nextCursor

		// If cursor is 0, we've scanned everything
		if cursor == 0 {
			break
		}
	}
	return keys, nil
}
