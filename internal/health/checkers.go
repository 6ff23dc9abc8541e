package health

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
)

// RedisChecker returns a [Checker] that pings the session store. Redis is a
// hard dependency of the voice pipeline; when it is down the service cannot
// accept calls.
func RedisChecker(client *redis.Client) Checker {
	return Checker{
		Name: "redis",
		Check: func(ctx context.Context) error {
			return client.Ping(ctx).Err()
		},
	}
}

// PostgresChecker returns a [Checker] that pings the transcript archive pool.
func PostgresChecker(pool *pgxpool.Pool) Checker {
	return Checker{
		Name: "postgres",
		Check: func(ctx context.Context) error {
			return pool.Ping(ctx)
		},
	}
}
