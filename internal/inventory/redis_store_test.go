package inventory

import (
	"context"
	"ms-booking/internal/logger"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestRedis(t *testing.T) (*redis.Client, *miniredis.Miniredis) {
	mr, err := miniredis.Run()
	require.NoError(t, err)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() {
		client.Close()
		mr.Close()
	})
	return client, mr
}

func TestRedisStore(t *testing.T) {
	runStoreContract(t, func(t *testing.T) Store {
		client, _ := setupTestRedis(t)
		return NewRedisStore(client, logger.NewTestLogger(nil))
	})
}

func TestRedisStore_ValueFormat(t *testing.T) {
	client, mr := setupTestRedis(t)
	store := NewRedisStore(client, logger.NewTestLogger(nil))
	ctx := context.Background()
	now := time.UnixMilli(1_700_000_000_000)
	deadline := now.Add(time.Minute)

	conflicts, err := store.Transition(ctx, "s1", []string{"A1"}, "free", "held", "tok", deadline, now)
	require.NoError(t, err)
	require.Empty(t, conflicts)

	assert.Equal(t, "held:tok:1700000060000", mr.HGet("seat_state:s1", "A1"))

	conflicts, err = store.Transition(ctx, "s1", []string{"A1"}, "held", "booked", "tok", time.Time{}, now)
	require.NoError(t, err)
	require.Empty(t, conflicts)
	assert.Equal(t, "booked:tok:0", mr.HGet("seat_state:s1", "A1"))

	_, err = store.Transition(ctx, "s1", []string{"A1"}, "booked", "free", "tok", time.Time{}, now)
	require.NoError(t, err)
	assert.False(t, mr.Exists("seat_state:s1"))
}

func TestRedisStore_CorruptValueIsNeverFree(t *testing.T) {
	client, mr := setupTestRedis(t)
	store := NewRedisStore(client, logger.NewTestLogger(nil))
	mr.HSet("seat_state:s1", "A1", "garbage")

	conflicts, err := store.Transition(context.Background(), "s1", []string{"A1"}, "free", "held", "tok", time.Now().Add(time.Minute), time.Now())

	require.NoError(t, err)
	assert.Equal(t, []string{"A1"}, conflicts)
}

func TestRedisStore_Unreachable(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	defer client.Close()
	store := NewRedisStore(client, logger.NewTestLogger(nil))
	mr.Close()

	_, err = store.Snapshot(context.Background(), "s1", time.Now())
	assert.Error(t, err)
}
