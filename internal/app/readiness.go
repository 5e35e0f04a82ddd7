package app

import (
	"context"

	"github.com/redis/go-redis/v9"

	httpserver "github.com/fairyhunter13/ai-chat-router/internal/adapter/httpserver"
)

// Pinger is the minimal interface for a database pool capable of Ping.
type Pinger interface {
	Ping(ctx context.Context) error
}

// RedisPinger is the slice of a go-redis client used for readiness.
type RedisPinger interface {
	Ping(ctx context.Context) *redis.StatusCmd
}

// BuildReadinessChecks returns probes for the configured backing services.
// Unconfigured services are skipped since the bot runs without them.
func BuildReadinessChecks(pool Pinger, rdb RedisPinger, telegram func(ctx context.Context) error) []httpserver.Check {
	var checks []httpserver.Check
	if pool != nil {
		checks = append(checks, httpserver.Check{Name: "db", Fn: pool.Ping})
	}
	if rdb != nil {
		checks = append(checks, httpserver.Check{Name: "redis", Fn: func(ctx context.Context) error {
			return rdb.Ping(ctx).Err()
		}})
	}
	if telegram != nil {
		checks = append(checks, httpserver.Check{Name: "telegram", Fn: telegram})
	}
	return checks
}
