// Package httpapi wires the HTTP transport (Gin) to application services,
// middleware, and route handlers. It centralizes cross-cutting concerns such
// as tracing, correlation IDs, logging/redaction, panic recovery, metrics,
// CORS, security headers, idempotency, and admission control.
//
// Design goals:
//   - Put observability first (OTel + Prometheus)
//   - Safe-by-default middleware ordering (RequestID, logging, recovery)
//   - Preflight answered before anything that could reject a request
//   - Deterministic, minimal router setup; all dependencies injected
package httpapi

import (
	"context"
	"errors"
	"net/http"
	"slices"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"gorm.io/gorm"

	"github.com/tbourn/go-items-api/docs"
	"github.com/tbourn/go-items-api/internal/config"
	"github.com/tbourn/go-items-api/internal/domain"
	"github.com/tbourn/go-items-api/internal/http/handlers"
	"github.com/tbourn/go-items-api/internal/http/middleware"
	"github.com/tbourn/go-items-api/internal/ratelimit"
	"github.com/tbourn/go-items-api/internal/repo"
	"github.com/tbourn/go-items-api/internal/services"
)

// itemRepoShim adapts the repository free functions to the services.ItemRepo
// interface expected by the ItemService. This keeps services decoupled from
// the concrete repo package while reusing existing functions.
type itemRepoShim struct{}

// CreateItem proxies repo.CreateItem.
func (itemRepoShim) CreateItem(ctx context.Context, db *gorm.DB, name string, description *string) (*domain.Item, error) {
	return repo.CreateItem(ctx, db, name, description)
}

// GetItem proxies repo.GetItem.
func (itemRepoShim) GetItem(ctx context.Context, db *gorm.DB, id int64) (*domain.Item, error) {
	return repo.GetItem(ctx, db, id)
}

// CountItems proxies repo.CountItems (pagination support).
func (itemRepoShim) CountItems(ctx context.Context, db *gorm.DB) (int64, error) {
	return repo.CountItems(ctx, db)
}

// ListItemsPage proxies repo.ListItemsPage (pagination support).
func (itemRepoShim) ListItemsPage(ctx context.Context, db *gorm.DB, offset, limit int) ([]domain.Item, error) {
	return repo.ListItemsPage(ctx, db, offset, limit)
}

// UpdateItem proxies repo.UpdateItem.
func (itemRepoShim) UpdateItem(ctx context.Context, db *gorm.DB, id int64, name string, description *string) error {
	return repo.UpdateItem(ctx, db, id, name, description)
}

// DeleteItem proxies repo.DeleteItem.
func (itemRepoShim) DeleteItem(ctx context.Context, db *gorm.DB, id int64) error {
	return repo.DeleteItem(ctx, db, id)
}

// GetIdempotency proxies repo.GetIdempotency.
func (itemRepoShim) GetIdempotency(ctx context.Context, db *gorm.DB, clientID, key string, now time.Time) (*domain.Idempotency, error) {
	return repo.GetIdempotency(ctx, db, clientID, key, now)
}

// CreateIdempotency proxies repo.CreateIdempotency.
func (itemRepoShim) CreateIdempotency(ctx context.Context, db *gorm.DB, clientID, key string, itemID int64, status int, ttl time.Duration) (*domain.Idempotency, error) {
	return repo.CreateIdempotency(ctx, db, clientID, key, itemID, status, ttl)
}

// pinger is implemented by counter stores that can report reachability.
type pinger interface {
	Ping(ctx context.Context) error
}

// RegisterRoutes attaches all middleware and HTTP endpoints to the given Gin
// engine. ctrl gates item writes; a nil ctrl disables admission control.
//
// Middleware order matters:
//  1. OpenTelemetry: trace everything
//  2. RequestID: generate/propagate correlation id
//  3. RedactingLogger: structured logs with PII scrubbing
//  4. Recovery: capture panics after logger
//  5. CORS headers on every response; OPTIONS answered here with 204
//  6. Optional allow-list enforcement and gzip
//  7. Body size limiter and metrics
//  8. Client identity (admission and idempotency key on it)
//  9. Idempotency validator (before admission to allow bypass on replay)
//  10. Security headers
//  11. Admission control, on the items group only
func RegisterRoutes(r *gin.Engine, db *gorm.DB, ctrl *ratelimit.Controller, cfg config.Config) {
	r.HandleMethodNotAllowed = true

	// 1) Trace all HTTP requests
	r.Use(otelgin.Middleware(cfg.OTEL.ServiceName))

	// 2) Correlate requests and logs
	r.Use(middleware.RequestID())

	// 3) Structured logging with redaction
	r.Use(middleware.RedactingLogger(middleware.RedactOptions{
		MaskHeaders: []string{"X-API-Key"},
		RedactIPs:   true,
	}))

	// 4) Panic recovery to JSON 500 (with request id)
	r.Use(middleware.Recovery())

	// 5) CORS headers everywhere, preflight short-circuit
	r.Use(middleware.CORSHeaders(middleware.CORSOptions{AllowedOrigins: cfg.CORS.AllowedOrigins}))

	// 6) Reject foreign origins when an allow-list is configured
	if len(cfg.CORS.AllowedOrigins) > 0 && !slices.Contains(cfg.CORS.AllowedOrigins, "*") {
		r.Use(cors.New(cors.Config{
			AllowOrigins:     cfg.CORS.AllowedOrigins,
			AllowMethods:     middleware.DefaultCORSMethods,
			AllowHeaders:     append([]string{"Origin"}, middleware.DefaultCORSHeaders...),
			ExposeHeaders:    middleware.ExposedHeaders,
			AllowCredentials: false,
			MaxAge:           12 * time.Hour,
		}))
	}
	if cfg.GzipEnabled {
		r.Use(gzip.Gzip(gzip.DefaultCompression, gzip.WithExcludedPaths([]string{"/metrics"})))
	}

	// 7) Body size limit and Prometheus metrics
	maxBody := cfg.MaxBodyBytes
	if maxBody <= 0 {
		maxBody = 1 << 20
	}
	r.Use(limitBody(maxBody))
	r.Use(middleware.Metrics())

	// 8) Client identity
	clientHeader := cfg.RateLimit.ClientHeader
	if clientHeader == "" {
		clientHeader = "X-Forwarded-For"
	}
	r.Use(middleware.ClientIdentity(clientHeader))

	// 9) Idempotency validation (before admission)
	r.Use(middleware.IdempotencyValidator(
		middleware.IdempotencyOptions{MaxLen: 200},
		func(ctx context.Context, clientID, key string, now time.Time) (bool, error) {
			rec, err := repo.GetIdempotency(ctx, db, clientID, key, now)
			if errors.Is(err, repo.ErrNotFound) {
				return false, nil
			}
			if err != nil {
				return false, err
			}
			return rec != nil, nil
		},
	))

	// 10) Security headers (HSTS only when enabled and request is HTTPS)
	r.Use(middleware.SecurityHeaders(middleware.SecurityOptions{
		EnableHSTS:   cfg.Security.EnableHSTS,
		HSTSMaxAge:   cfg.Security.HSTSMaxAge,
		NoStore:      true,
		EnablePolicy: true,
	}))

	// Fallbacks
	r.NoRoute(func(c *gin.Context) {
		handlers.Fail(c, http.StatusNotFound, handlers.ErrCodeNotFound, "route not found")
	})
	// 405 is reserved for the items resource; other paths stay 404.
	itemsBase := strings.TrimRight(cfg.APIBasePath, "/") + "/items"
	r.NoMethod(func(c *gin.Context) {
		if !underPrefix(c.Request.URL.Path, itemsBase) {
			c.Writer.Header().Del("Allow")
			handlers.Fail(c, http.StatusNotFound, handlers.ErrCodeNotFound, "route not found")
			return
		}
		handlers.MethodNotAllowed(c, allowedMethods(r.Routes(), c.Request.URL.Path))
	})

	// Operational endpoints
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	r.GET("/health", health(db, ctrl))
	if cfg.SwaggerEnabled {
		docs.SwaggerInfo.BasePath = cfg.APIBasePath
		r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	// Dependency injection: services <- repo/db
	itemSvc := services.NewItemService(db, itemRepoShim{})
	if cfg.IdempotencyTTL > 0 {
		itemSvc.IdempotencyTTL = cfg.IdempotencyTTL
	}
	h := handlers.New(itemSvc)

	// Public API
	api := groupWithPrefix(r, cfg.APIBasePath)
	items := api.Group("/items")
	if ctrl != nil {
		items.Use(middleware.Admission(ctrl, middleware.AdmissionOptions{}))
	}
	{
		items.GET("", h.ListItems)
		items.POST("", h.CreateItem)
		items.PUT("", h.MissingID)
		items.DELETE("", h.MissingID)

		items.GET("/:id", h.GetItem)
		items.PUT("/:id", h.UpdateItem)
		items.DELETE("/:id", h.DeleteItem)
	}
}

// health reports database reachability (503 when down) and, informationally,
// the counter store. A down counter store does not fail the check: admission
// fails open.
func health(db *gorm.DB, ctrl *ratelimit.Controller) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()

		status, code := "ok", http.StatusOK
		dbState := "ok"
		if sqlDB, err := db.DB(); err != nil || sqlDB.PingContext(ctx) != nil {
			status, code, dbState = "degraded", http.StatusServiceUnavailable, "unavailable"
		}

		body := gin.H{"status": status, "db": dbState}
		if ctrl != nil {
			storeState := "ok"
			if p, ok := ctrl.Store().(pinger); ok {
				if err := p.Ping(ctx); err != nil {
					storeState = "unavailable"
				}
			} else if ctrl.Store() == nil {
				storeState = "none"
			}
			body["rate_store"] = storeState
		}
		c.JSON(code, body)
	}
}

// underPrefix reports whether p equals base or names a path below it.
func underPrefix(p, base string) bool {
	return p == base || strings.HasPrefix(p, base+"/")
}

// allowedMethods lists the methods registered for any route pattern that
// matches path, in a fixed order, followed by OPTIONS.
func allowedMethods(routes gin.RoutesInfo, path string) []string {
	seen := map[string]bool{}
	for _, rt := range routes {
		if matchPattern(rt.Path, path) {
			seen[rt.Method] = true
		}
	}
	var out []string
	for _, m := range []string{http.MethodGet, http.MethodHead, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete} {
		if seen[m] {
			out = append(out, m)
		}
	}
	return append(out, http.MethodOptions)
}

// matchPattern reports whether path fits a gin route pattern (":param"
// matches one segment, "*param" the rest).
func matchPattern(pattern, path string) bool {
	ps := strings.Split(strings.Trim(pattern, "/"), "/")
	xs := strings.Split(strings.Trim(path, "/"), "/")
	for i, p := range ps {
		if strings.HasPrefix(p, "*") {
			return true
		}
		if i >= len(xs) {
			return false
		}
		if strings.HasPrefix(p, ":") {
			if xs[i] == "" {
				return false
			}
			continue
		}
		if p != xs[i] {
			return false
		}
	}
	return len(ps) == len(xs)
}

// limitBody returns a Gin middleware that caps the request body size for all
// endpoints to maxBytes using http.MaxBytesReader. Requests exceeding the cap
// will cause downstream body reads to error.
func limitBody(maxBytes int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBytes)
		c.Next()
	}
}

// groupWithPrefix mounts a group at prefix, treating "/" (or empty) as root.
func groupWithPrefix(r *gin.Engine, prefix string) *gin.RouterGroup {
	if prefix == "" || prefix == "/" {
		return r.Group("")
	}
	return r.Group(prefix)
}
