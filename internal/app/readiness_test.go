package app

import (
	"context"
	"errors"
	"testing"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type pingerFunc func(ctx context.Context) error

func (f pingerFunc) Ping(ctx context.Context) error { return f(ctx) }

func TestBuildReadinessChecks(t *testing.T) {
	assert.Empty(t, BuildReadinessChecks(nil, nil, nil))

	mr, err := miniredis.Run()
	require.NoError(t, err)
	defer mr.Close()
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer rdb.Close()

	checks := BuildReadinessChecks(
		pingerFunc(func(context.Context) error { return errors.New("db down") }),
		rdb,
		func(context.Context) error { return nil },
	)
	require.Len(t, checks, 3)
	ctx := context.Background()
	assert.Equal(t, "db", checks[0].Name)
	assert.EqualError(t, checks[0].Fn(ctx), "db down")
	assert.Equal(t, "redis", checks[1].Name)
	assert.NoError(t, checks[1].Fn(ctx))
	assert.Equal(t, "telegram", checks[2].Name)
	assert.NoError(t, checks[2].Fn(ctx))

	mr.Close()
	assert.Error(t, checks[1].Fn(ctx))
}
