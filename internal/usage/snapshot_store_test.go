package usage

import (
	"context"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestSnapshotStore(t *testing.T) (*RedisSnapshotStore, *miniredis.Miniredis) {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() {
		_ = rdb.Close()
		mr.Close()
	})
	return NewRedisSnapshotStore(rdb, ""), mr
}

func TestRedisSnapshotStore_NilClient(t *testing.T) {
	s := NewRedisSnapshotStore(nil, "k")
	assert.Nil(t, s)
	assert.NoError(t, s.Save(context.Background(), Counters{}))
	_, ok, err := s.Load(context.Background())
	assert.NoError(t, err)
	assert.False(t, ok)
}

func TestRedisSnapshotStore_LoadMissing(t *testing.T) {
	s, _ := newTestSnapshotStore(t)
	_, ok, err := s.Load(context.Background())
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRedisSnapshotStore_SaveLoadAndWarm(t *testing.T) {
	ctx := context.Background()
	s, mr := newTestSnapshotStore(t)
	clock := NewManualClock(time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC))

	src := NewLedger(2, clock, "api")
	src.Increment(CategorySearch)
	src.IncrementCredential(1)
	src.MarkExhausted(0)
	require.NoError(t, s.Save(ctx, src.Snapshot()))
	assert.True(t, mr.Exists(DefaultSnapshotKey))
	assert.Greater(t, mr.TTL(DefaultSnapshotKey), time.Duration(0))

	dst := NewLedger(2, clock, "api")
	Warm(ctx, dst, s)
	snap := dst.Snapshot()
	assert.Equal(t, 1, snap.Categories[CategorySearch])
	assert.Equal(t, 1, snap.PerCredential[1].Count)
	assert.False(t, snap.PerCredential[0].Active)
}

func TestRedisSnapshotStore_CorruptPayload(t *testing.T) {
	s, mr := newTestSnapshotStore(t)
	require.NoError(t, mr.Set(DefaultSnapshotKey, "{not json"))
	_, _, err := s.Load(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "op=usage.snapshot.load")

	// Warm swallows the error and leaves the ledger untouched.
	l := NewLedger(1, NewManualClock(time.Now()), "api")
	Warm(context.Background(), l, s)
	assert.Equal(t, 0, l.Snapshot().PerCredential[0].Count)
}
