package cache

import (
	"context"
	"testing"

	"github.com/ayevbeosa/crypto-portfolio-tracker/internal/logger"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func TestMain(m *testing.M) {
	logger.InitTestLogger()
	m.Run()
}

func TestInvalidateByPrefixDeletesOnlyMatchingKeys(t *testing.T) {
	mr := miniredis.RunT(t)
	RedisClient = redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer func() { RedisClient = nil }()

	mr.Set("history:BTC:aaaa", "v")
	mr.Set("history:BTC:bbbb", "v")
	mr.Set("history:ETH:cccc", "v")
	mr.Set("asset:BTC", "v")

	InvalidateByPrefix(context.Background(), "history:BTC:", "/assets/{symbol}/history", "test-1")

	if mr.Exists("history:BTC:aaaa") || mr.Exists("history:BTC:bbbb") {
		t.Error("prefixed keys survived invalidation")
	}
	if !mr.Exists("history:ETH:cccc") {
		t.Error("unrelated history key was deleted")
	}
	if !mr.Exists("asset:BTC") {
		t.Error("asset key was deleted by a history invalidation")
	}
}

func TestInvalidateByPrefixWithoutRedisIsNoop(t *testing.T) {
	RedisClient = nil
	// Must not panic.
	InvalidateByPrefix(context.Background(), "history:BTC:", "/assets/{symbol}/history", "test-1")
}
