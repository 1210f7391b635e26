//go:build integration

package retained

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func getRedisAddr() string {
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		addr = "localhost:6379"
	}
	return addr
}

func setupRedis(t *testing.T) string {
	t.Helper()
	addr := getRedisAddr()
	client := redis.NewClient(&redis.Options{Addr: addr})
	defer client.Close()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		t.Skipf("Redis not available at %s: %v", addr, err)
	}
	return addr
}

func newTestRedisStore(t *testing.T) *RedisStore {
	t.Helper()
	addr := setupRedis(t)
	s, err := NewRedisStore(RedisStoreConfig{Addr: addr, Prefix: "vigil-test:"})
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = s.GC("T", 1<<30)
		_ = s.Close()
	})
	return s
}

func TestRedisStoreAppendTailLen(t *testing.T) {
	s := newTestRedisStore(t)
	appendN(t, s, "T", 3)

	l, err := s.Len("T")
	require.NoError(t, err)
	assert.Equal(t, 3, l)

	tail, err := s.Tail("T", 1)
	require.NoError(t, err)
	assert.Len(t, tail, 2)
}

func TestRedisStoreGC(t *testing.T) {
	s := newTestRedisStore(t)
	for i := 0; i < 12; i++ {
		_, err := s.Append("T", Record{Topic: "T", Timestamp: ts(i)})
		require.NoError(t, err)
	}

	before, err := s.Tail("T", 5)
	require.NoError(t, err)

	require.NoError(t, s.GC("T", 5))

	l, err := s.Len("T")
	require.NoError(t, err)
	assert.Equal(t, 7, l)

	after, err := s.Tail("T", 0)
	require.NoError(t, err)
	assert.Equal(t, before[0], after[0])
}

func TestRedisStoreTailRejectsOutOfRange(t *testing.T) {
	s := newTestRedisStore(t)
	appendN(t, s, "T", 2)
	_, err := s.Tail("T", 5)
	assert.ErrorIs(t, err, ErrInvalidRange)
}
