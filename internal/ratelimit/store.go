// Package ratelimit implements fixed-window admission control for write
// requests. Counters live in a pluggable CounterStore (in-process, Redis, or
// SQL) and every store fault resolves to allowing the request.
package ratelimit

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog/log"
)

// ErrNoStore is reported on decisions made without a backing store.
var ErrNoStore = errors.New("ratelimit: no counter store configured")

// CounterStore is the key-value contract every counter backend satisfies.
// Get reports found=false for absent or expired keys.
type CounterStore interface {
	Get(ctx context.Context, key string) (count int64, found bool, err error)
	Put(ctx context.Context, key string, count int64, ttl time.Duration) error
}

// Incrementer is implemented by stores that can bump a counter atomically.
// A key that is absent or expired starts at 1 and expires after ttl; later
// increments keep the original expiry.
type Incrementer interface {
	Increment(ctx context.Context, key string, ttl time.Duration) (int64, error)
}

// Sweeper is implemented by stores that can reclaim expired counters.
type Sweeper interface {
	SweepExpired(ctx context.Context) (int, error)
}

// JanitorTarget returns s as a Sweeper when its counters live outside the
// process. The process-local MemoryStore only sweeps on access and never gets
// a background janitor.
func JanitorTarget(s CounterStore) (Sweeper, bool) {
	if _, local := s.(*MemoryStore); local {
		return nil, false
	}
	sw, ok := s.(Sweeper)
	return sw, ok
}

// StartJanitor sweeps s every interval until ctx is cancelled.
func StartJanitor(ctx context.Context, s Sweeper, every time.Duration) {
	if s == nil || every <= 0 {
		return
	}
	t := time.NewTicker(every)
	go func() {
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-t.C:
				n, err := s.SweepExpired(ctx)
				if err != nil {
					log.Warn().Err(err).Msg("ratelimit sweep failed")
					continue
				}
				if n > 0 {
					log.Debug().Int("removed", n).Msg("ratelimit sweep")
				}
			}
		}
	}()
}
