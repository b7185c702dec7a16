package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"

	"github.com/tbourn/go-items-api/internal/config"
)

func storeCfg(store, redisAddr string) config.Config {
	return config.Config{
		RateLimit: config.RateLimitConfig{Store: store, SweepProbability: 0.01},
		Redis:     config.RedisConfig{Addr: redisAddr, Timeout: 100 * time.Millisecond},
	}
}

func TestNewCounterStore_Selection(t *testing.T) {
	ctx := context.Background()
	mr := miniredis.RunT(t)
	db := newCounterDB(t)

	cases := []struct {
		name     string
		cfg      config.Config
		wantName string
		check    func(CounterStore) bool
	}{
		{"memory", storeCfg(config.StoreMemory, ""), config.StoreMemory, func(s CounterStore) bool { _, ok := s.(*MemoryStore); return ok }},
		{"sql", storeCfg(config.StoreSQL, ""), config.StoreSQL, func(s CounterStore) bool { _, ok := s.(*SQLStore); return ok }},
		{"auto without redis", storeCfg(config.StoreAuto, ""), config.StoreMemory, func(s CounterStore) bool { _, ok := s.(*MemoryStore); return ok }},
		{"auto with redis", storeCfg(config.StoreAuto, mr.Addr()), config.StoreRedis, func(s CounterStore) bool { _, ok := s.(*RedisStore); return ok }},
		{"auto unreachable redis", storeCfg(config.StoreAuto, "127.0.0.1:1"), config.StoreMemory, func(s CounterStore) bool { _, ok := s.(*MemoryStore); return ok }},
		{"explicit unreachable redis", storeCfg(config.StoreRedis, "127.0.0.1:1"), config.StoreRedis, func(s CounterStore) bool { _, ok := s.(*RedisStore); return ok }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			s, name, closeFn := NewCounterStore(ctx, tc.cfg, db)
			defer closeFn()
			if name != tc.wantName || !tc.check(s) {
				t.Fatalf("got %T (%s); want %s", s, name, tc.wantName)
			}
		})
	}
}

func TestNewCounterStore_SQLWithoutDBFallsBack(t *testing.T) {
	s, name, _ := NewCounterStore(context.Background(), storeCfg(config.StoreSQL, ""), nil)
	if _, ok := s.(*MemoryStore); !ok || name != config.StoreMemory {
		t.Fatalf("got %T (%s)", s, name)
	}
}

func TestNewCounterStore_UnknownPanics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatalf("expected panic for unknown store")
		}
	}()
	NewCounterStore(context.Background(), storeCfg("carrier-pigeon", ""), nil)
}
