// Command server runs the items API.
//
// @title       Items API
// @version     1.0
// @description JSON CRUD API for items with fixed-window admission control on writes.
// @BasePath    /api
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"github.com/tbourn/go-items-api/internal/config"
	httpapi "github.com/tbourn/go-items-api/internal/http"
	"github.com/tbourn/go-items-api/internal/observability"
	"github.com/tbourn/go-items-api/internal/ratelimit"
	"github.com/tbourn/go-items-api/internal/repo"
	"github.com/tbourn/go-items-api/internal/sysutil"
)

// version is overridden at build time with -ldflags "-X main.version=...".
var version = ""

const (
	shutdownGrace   = 10 * time.Second
	janitorInterval = time.Minute
)

func main() {
	// Load .env if present; real environment variables win.
	_ = godotenv.Load()

	cfg := config.MustLoad()
	sysutil.SetupLogger(os.Stderr, cfg.LogLevel, cfg.LogPretty)
	gin.SetMode(cfg.GinMode)

	ver := sysutil.FirstNonEmpty(version, os.Getenv("APP_VERSION"), "dev")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownOTel, err := observability.SetupOTel(ctx, cfg.OTEL, ver)
	if err != nil {
		log.Fatal().Err(err).Msg("tracing setup failed")
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
		defer cancel()
		if err := shutdownOTel(sctx); err != nil {
			log.Warn().Err(err).Msg("tracing shutdown")
		}
	}()

	db, err := repo.Open(cfg)
	if err != nil {
		log.Fatal().Err(err).Str("driver", cfg.DBDriver).Msg("open database")
	}
	applied, err := repo.Migrate(ctx, db, cfg.DBDriver)
	if err != nil {
		log.Fatal().Err(err).Msg("migrate database")
	}
	log.Info().Int("applied", applied).Str("driver", cfg.DBDriver).Msg("database ready")
	if sysutil.IsTruthy(os.Getenv("MIGRATE_ONLY")) {
		return
	}

	store, storeName, closeStore := ratelimit.NewCounterStore(ctx, cfg, db)
	defer func() {
		if err := closeStore(); err != nil {
			log.Warn().Err(err).Msg("close counter store")
		}
	}()
	ctrl := ratelimit.NewController(store, cfg.RateLimit.Window, cfg.RateLimit.MaxPerWindow,
		ratelimit.WithKeyPrefix(cfg.RateLimit.KeyPrefix))
	if sw, ok := ratelimit.JanitorTarget(store); ok {
		ratelimit.StartJanitor(ctx, sw, janitorInterval)
	}
	startIdempotencyJanitor(ctx, db, janitorInterval)

	log.Info().
		Str("store", storeName).
		Dur("window", cfg.RateLimit.Window).
		Int("max_per_window", cfg.RateLimit.MaxPerWindow).
		Msg("admission control ready")

	r := gin.New()
	httpapi.RegisterRoutes(r, db, ctrl, cfg)

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           r,
		ReadTimeout:       cfg.ReadTimeout,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
		WriteTimeout:      cfg.WriteTimeout,
		IdleTimeout:       cfg.IdleTimeout,
		MaxHeaderBytes:    cfg.MaxHeaderBytes,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", srv.Addr).Str("version", ver).Msg("listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		log.Info().Msg("shutting down")
	case err := <-errCh:
		if err != nil {
			log.Error().Err(err).Msg("server failed")
		}
	}

	sctx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
	defer cancel()
	if err := srv.Shutdown(sctx); err != nil {
		log.Error().Err(err).Msg("forced shutdown")
	}
	if sqlDB, err := db.DB(); err == nil {
		_ = sqlDB.Close()
	}
	log.Info().Msg("server exited")
}

// startIdempotencyJanitor drops expired Idempotency-Key records every interval.
func startIdempotencyJanitor(ctx context.Context, db *gorm.DB, every time.Duration) {
	t := time.NewTicker(every)
	go func() {
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case now := <-t.C:
				n, err := repo.PurgeExpiredIdempotency(ctx, db, now.UTC())
				if err != nil {
					log.Warn().Err(err).Msg("purge idempotency keys")
					continue
				}
				if n > 0 {
					log.Debug().Int64("removed", n).Msg("purged idempotency keys")
				}
			}
		}
	}()
}
