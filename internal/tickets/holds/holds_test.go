package holds

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestRedis(t *testing.T) (*redis.Client, *miniredis.Miniredis) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("Failed to create miniredis: %v", err)
	}

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	if err := client.Ping(context.Background()).Err(); err != nil {
		mr.Close()
		t.Fatalf("Failed to connect to miniredis: %v", err)
	}

	t.Cleanup(func() {
		client.Close()
		mr.Close()
	})
	return client, mr
}

func TestHold_ExclusiveAcrossInstances(t *testing.T) {
	ctx := context.Background()
	client, mr := setupTestRedis(t)

	a := NewHolds(client, time.Minute)
	b := NewHolds(client, time.Minute)

	ok, err := a.Hold(ctx, "4821")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = b.Hold(ctx, "4821")
	require.NoError(t, err)
	assert.False(t, ok)

	// b does not own the hold, so its release is a no-op.
	require.NoError(t, b.Release(ctx, "4821"))
	assert.True(t, mr.Exists(key("4821")))

	require.NoError(t, a.Release(ctx, "4821"))
	assert.False(t, mr.Exists(key("4821")))

	ok, err = b.Hold(ctx, "4821")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestHold_ExpiresAfterTTL(t *testing.T) {
	ctx := context.Background()
	client, mr := setupTestRedis(t)

	h := NewHolds(client, 30*time.Second)
	ok, err := h.Hold(ctx, "0001")
	require.NoError(t, err)
	require.True(t, ok)

	mr.FastForward(31 * time.Second)

	assert.False(t, mr.Exists(key("0001")))
}

func TestRelease_UnknownNumberIsNoop(t *testing.T) {
	client, _ := setupTestRedis(t)
	h := NewHolds(client, 0)

	assert.Equal(t, 2*time.Minute, h.TTL)
	assert.NoError(t, h.Release(context.Background(), "9999"))
}

func TestHold_RedisDown(t *testing.T) {
	client, mr := setupTestRedis(t)
	h := NewHolds(client, time.Minute)
	mr.Close()

	_, err := h.Hold(context.Background(), "1234")
	assert.Error(t, err)
}
