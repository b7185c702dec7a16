package ratelimit

import (
	"context"
	"errors"
	"math/rand/v2"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/tbourn/go-items-api/internal/domain"
)

// SQLStore keeps counters in the rate_counters table of the primary
// database. It offers no atomic increment, so concurrent writers from the
// same client can both read the same count; admission may overshoot by the
// number of racing requests.
type SQLStore struct {
	db     *gorm.DB
	now    func() time.Time
	sweepP float64
	rnd    func() float64
}

// SQLOption configures a SQLStore.
type SQLOption func(*SQLStore)

// WithSQLClock overrides the time source.
func WithSQLClock(now func() time.Time) SQLOption {
	return func(s *SQLStore) { s.now = now }
}

// WithSQLSweepProbability sets the chance that a Put also deletes expired rows.
func WithSQLSweepProbability(p float64) SQLOption {
	return func(s *SQLStore) { s.sweepP = p }
}

// WithSQLRandom overrides the [0,1) source used for sweep sampling.
func WithSQLRandom(f func() float64) SQLOption {
	return func(s *SQLStore) { s.rnd = f }
}

// NewSQLStore returns a store over db. The rate_counters table must exist.
func NewSQLStore(db *gorm.DB, opts ...SQLOption) *SQLStore {
	s := &SQLStore{
		db:     db,
		now:    func() time.Time { return time.Now().UTC() },
		sweepP: 0.01,
		rnd:    rand.Float64,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Get implements CounterStore.
func (s *SQLStore) Get(ctx context.Context, key string) (int64, bool, error) {
	var rc domain.RateCounter
	err := s.db.WithContext(ctx).
		Where("key = ? AND expires_at > ?", key, s.now()).
		First(&rc).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	return rc.Count, true, nil
}

// Put implements CounterStore.
func (s *SQLStore) Put(ctx context.Context, key string, count int64, ttl time.Duration) error {
	now := s.now()
	rc := domain.RateCounter{Key: key, Count: count, ExpiresAt: now.Add(ttl)}
	err := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "key"}},
			DoUpdates: clause.AssignmentColumns([]string{"count", "expires_at"}),
		}).
		Create(&rc).Error
	if err != nil {
		return err
	}
	if s.sweepP > 0 && s.rnd() < s.sweepP {
		_, _ = s.sweep(ctx, now)
	}
	return nil
}

// SweepExpired implements Sweeper.
func (s *SQLStore) SweepExpired(ctx context.Context) (int, error) {
	return s.sweep(ctx, s.now())
}

func (s *SQLStore) sweep(ctx context.Context, now time.Time) (int, error) {
	res := s.db.WithContext(ctx).Where("expires_at <= ?", now).Delete(&domain.RateCounter{})
	return int(res.RowsAffected), res.Error
}
