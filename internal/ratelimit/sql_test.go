package ratelimit

import (
	"context"
	"fmt"
	"testing"
	"time"

	sqlite "github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/tbourn/go-items-api/internal/config"
	"github.com/tbourn/go-items-api/internal/domain"
	"github.com/tbourn/go-items-api/internal/repo"
)

func newCounterDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	sqlDB, _ := db.DB()
	t.Cleanup(func() { _ = sqlDB.Close() })
	if _, err := repo.Migrate(context.Background(), db, config.DriverSQLite); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db
}

func TestSQLStore_GetPutUpsertAndExpiry(t *testing.T) {
	db := newCounterDB(t)
	clk := &fakeClock{t: epoch.UTC()}
	s := NewSQLStore(db, WithSQLClock(clk.Now), WithSQLSweepProbability(0))
	ctx := context.Background()

	if _, found, err := s.Get(ctx, "k"); found || err != nil {
		t.Fatalf("empty: found=%v err=%v", found, err)
	}
	if err := s.Put(ctx, "k", 1, time.Second); err != nil {
		t.Fatalf("Put: %v", err)
	}
	if err := s.Put(ctx, "k", 2, time.Second); err != nil {
		t.Fatalf("Put upsert: %v", err)
	}
	n, found, err := s.Get(ctx, "k")
	if err != nil || !found || n != 2 {
		t.Fatalf("Get = %d,%v,%v; want 2,true,nil", n, found, err)
	}

	var rows int64
	db.Model(&domain.RateCounter{}).Count(&rows)
	if rows != 1 {
		t.Fatalf("upsert should keep one row, got %d", rows)
	}

	clk.Set(epoch.Add(2 * time.Second).UTC())
	if _, found, _ := s.Get(ctx, "k"); found {
		t.Fatalf("expired row must read as absent")
	}
}

func TestSQLStore_SweepExpired(t *testing.T) {
	db := newCounterDB(t)
	clk := &fakeClock{t: epoch.UTC()}
	s := NewSQLStore(db, WithSQLClock(clk.Now), WithSQLSweepProbability(0))
	ctx := context.Background()

	_ = s.Put(ctx, "old", 1, time.Second)
	_ = s.Put(ctx, "live", 1, time.Hour)
	clk.Set(epoch.Add(5 * time.Second).UTC())

	n, err := s.SweepExpired(ctx)
	if err != nil || n != 1 {
		t.Fatalf("SweepExpired = %d, %v; want 1", n, err)
	}
}

func TestSQLStore_OpportunisticSweepOnPut(t *testing.T) {
	db := newCounterDB(t)
	clk := &fakeClock{t: epoch.UTC()}
	s := NewSQLStore(db, WithSQLClock(clk.Now), WithSQLSweepProbability(1), WithSQLRandom(func() float64 { return 0 }))
	ctx := context.Background()

	_ = s.Put(ctx, "old", 1, time.Second)
	clk.Set(epoch.Add(5 * time.Second).UTC())
	_ = s.Put(ctx, "new", 1, time.Second)

	var rows int64
	db.Model(&domain.RateCounter{}).Count(&rows)
	if rows != 1 {
		t.Fatalf("expected expired row swept, %d rows remain", rows)
	}
}

func TestSQLStore_ErrorsWithoutTable(t *testing.T) {
	db, err := gorm.Open(sqlite.Open(fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	s := NewSQLStore(db)
	if _, _, err := s.Get(context.Background(), "k"); err == nil {
		t.Fatalf("expected Get error without table")
	}
	if err := s.Put(context.Background(), "k", 1, time.Second); err == nil {
		t.Fatalf("expected Put error without table")
	}

	// A broken SQL backend degrades to fail-open.
	d := NewController(s, time.Second, 1).Decide(context.Background(), "X")
	if d.Outcome != OutcomeFailOpen {
		t.Fatalf("expected fail-open, got %v", d.Outcome)
	}
}
