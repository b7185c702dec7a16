package ratelimit

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"github.com/tbourn/go-items-api/internal/config"
)

// NewCounterStore builds the backend selected by cfg.RateLimit.Store and
// returns it with its name and a close func.
//
// "auto" uses Redis when REDIS_ADDR is set and answers a ping, otherwise the
// process-local map. "redis" keeps the Redis store even if the ping fails;
// its faults then resolve to fail-open decisions at request time.
func NewCounterStore(ctx context.Context, cfg config.Config, db *gorm.DB) (CounterStore, string, func() error) {
	noop := func() error { return nil }
	rl := cfg.RateLimit

	switch rl.Store {
	case config.StoreMemory:
		return NewMemoryStore(WithSweepProbability(rl.SweepProbability)), config.StoreMemory, noop

	case config.StoreSQL:
		if db == nil {
			log.Warn().Msg("rate limit: sql store requested without a database; using memory")
			return NewMemoryStore(WithSweepProbability(rl.SweepProbability)), config.StoreMemory, noop
		}
		return NewSQLStore(db, WithSQLSweepProbability(rl.SweepProbability)), config.StoreSQL, noop

	case config.StoreRedis, config.StoreAuto:
		if cfg.Redis.Addr == "" {
			return NewMemoryStore(WithSweepProbability(rl.SweepProbability)), config.StoreMemory, noop
		}
		rs := NewRedisStore(NewRedisClient(cfg.Redis))
		pctx, cancel := context.WithTimeout(ctx, cfg.Redis.Timeout)
		err := rs.Ping(pctx)
		cancel()
		if err == nil {
			return rs, config.StoreRedis, rs.Close
		}
		if rl.Store == config.StoreRedis {
			log.Warn().Err(err).Str("addr", cfg.Redis.Addr).Msg("rate limit: redis unreachable at startup; decisions fail open until it recovers")
			return rs, config.StoreRedis, rs.Close
		}
		_ = rs.Close()
		log.Warn().Err(err).Str("addr", cfg.Redis.Addr).Msg("rate limit: redis unreachable; using process-local counters")
		return NewMemoryStore(WithSweepProbability(rl.SweepProbability)), config.StoreMemory, noop
	}

	panic(fmt.Sprintf("rate limit: unknown store %q", rl.Store))
}

// NewRedisClient builds a client whose per-command timeouts are bounded by
// cfg.Timeout, so a slow Redis delays a write by at most that much before the
// request fails open.
func NewRedisClient(cfg config.RedisConfig) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		DialTimeout:  cfg.Timeout,
		ReadTimeout:  cfg.Timeout,
		WriteTimeout: cfg.Timeout,
		MaxRetries:   -1,
	})
}
