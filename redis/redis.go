package redis

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// InitRedis connects to addr and returns nil when redis is not reachable, in
// which case callers run without it.
func InitRedis(ctx context.Context, addr string, log zerolog.Logger) *redis.Client {
	client := redis.NewClient(&redis.Options{
		Addr: addr,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	if _, err := client.Ping(pingCtx).Result(); err != nil {
		log.Warn().Err(err).Str("addr", addr).Msg("redis not available, running without redis")
		client.Close()
		return nil
	}

	log.Info().Str("addr", addr).Msg("redis connected")
	return client
}
