// Package httpapi wires the HTTP transport (Gin) to application services,
// middleware, and route handlers. It centralizes cross-cutting concerns such
// as tracing, correlation IDs, logging/redaction, panic recovery, metrics,
// compression, CORS, security headers, webhook replay detection, and rate
// limiting.
package httpapi

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	"github.com/juju/clock"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"gorm.io/gorm"

	"github.com/tbourn/go-travel-register/internal/codec"
	"github.com/tbourn/go-travel-register/internal/config"
	"github.com/tbourn/go-travel-register/internal/domain"
	"github.com/tbourn/go-travel-register/internal/fragment"
	"github.com/tbourn/go-travel-register/internal/http/handlers"
	"github.com/tbourn/go-travel-register/internal/http/middleware"
	"github.com/tbourn/go-travel-register/internal/repo"
	"github.com/tbourn/go-travel-register/internal/services"
)

// entryRepoShim adapts the repository free functions to the
// services.EntryRepo interface.
type entryRepoShim struct{}

// UpsertEntry proxies repo.UpsertEntry.
func (entryRepoShim) UpsertEntry(ctx context.Context, db *gorm.DB, e *domain.RegisterEntry) (bool, error) {
	return repo.UpsertEntry(ctx, db, e)
}

// GetEntry proxies repo.GetEntry.
func (entryRepoShim) GetEntry(ctx context.Context, db *gorm.DB, id string) (*domain.RegisterEntry, error) {
	return repo.GetEntry(ctx, db, id)
}

// ListEntriesPage proxies repo.ListEntriesPage.
func (entryRepoShim) ListEntriesPage(ctx context.Context, db *gorm.DB, f domain.EntryFilter, offset, limit int) ([]domain.RegisterEntry, error) {
	return repo.ListEntriesPage(ctx, db, f, offset, limit)
}

// CountEntries proxies repo.CountEntries.
func (entryRepoShim) CountEntries(ctx context.Context, db *gorm.DB, f domain.EntryFilter) (int64, error) {
	return repo.CountEntries(ctx, db, f)
}

// DeleteEntry proxies repo.DeleteEntry.
func (entryRepoShim) DeleteEntry(ctx context.Context, db *gorm.DB, id string) error {
	return repo.DeleteEntry(ctx, db, id)
}

// Services is the application graph shared by the HTTP layer, the
// housekeeping jobs, and the CLI.
type Services struct {
	DB        *gorm.DB
	Clock     clock.Clock
	Cache     *services.CacheService
	Register  *services.RegisterService
	Ingest    *services.IngestService
	Assembler *fragment.Assembler
}

// NewServices builds the service graph over db. A nil clock means the wall
// clock.
func NewServices(db *gorm.DB, cfg config.Config, clk clock.Clock) *Services {
	if clk == nil {
		clk = clock.WallClock
	}
	rc := cfg.Register

	cache := services.NewCacheService(db, clk)
	reg := services.NewRegisterService(db, entryRepoShim{}, cache)
	if rc.ExportLimit > 0 {
		reg.ExportLimit = rc.ExportLimit
	}
	asm := fragment.NewAssembler(repo.NewSessionStore(db),
		fragment.WithClock(clk),
		fragment.WithTTL(rc.FragmentTTL),
	)
	ingest := &services.IngestService{
		DB:         db,
		Repo:       entryRepoShim{},
		Codec:      codec.New(clk, rc.Location()),
		Assembler:  asm,
		Cache:      cache,
		Clock:      clk,
		AccountSID: rc.AccountSID,
		Number:     rc.Number,
		ReceiptTTL: rc.ReceiptTTL,
	}
	return &Services{DB: db, Clock: clk, Cache: cache, Register: reg, Ingest: ingest, Assembler: asm}
}

// RegisterRoutes attaches all middleware and HTTP endpoints to the given Gin
// engine and mounts the versioned API under cfg.APIBasePath.
//
// Middleware order matters:
//  1. OpenTelemetry: trace everything
//  2. RequestID: generate/propagate correlation id
//  3. Access logging (redacting unless LOG_REDACT=false)
//  4. Recovery: capture panics after logger
//  5. Body size limiter
//  6. Metrics
//  7. Compression (not for /metrics, which negotiates its own)
//  8. CORS and security headers
//
// The webhook route adds replay detection before its per-sender rate
// limiter, so provider retries are never throttled; the rest of the API is
// rate limited per client IP.
func RegisterRoutes(r *gin.Engine, svcs *Services, cfg config.Config) {
	r.HandleMethodNotAllowed = true

	r.Use(otelgin.Middleware(cfg.OTEL.ServiceName))
	r.Use(middleware.RequestID())
	if cfg.LogRedact {
		r.Use(middleware.RedactingLogger(middleware.RedactOptions{
			MaskHeaders: []string{"X-API-Key"},
		}))
	} else {
		r.Use(middleware.Logger())
	}
	r.Use(middleware.Recovery())

	bodyLimit := cfg.BodyLimit
	if bodyLimit <= 0 {
		bodyLimit = 1 << 20
	}
	r.Use(limitBody(bodyLimit))

	r.Use(middleware.Metrics())
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	r.Use(gzip.Gzip(gzip.DefaultCompression, gzip.WithExcludedPaths([]string{"/metrics"})))

	corsCfg := cors.Config{
		AllowMethods:  []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowHeaders:  []string{"Origin", "Content-Type", "Accept", "Authorization", "If-Modified-Since", middleware.HeaderIdempotencyKey},
		ExposeHeaders: []string{"X-Request-ID", "Content-Length", "Last-Modified"},
		MaxAge:        12 * time.Hour,
	}
	if len(cfg.CORS.AllowedOrigins) == 0 {
		// ACAO: * even without an Origin header (simple health checks).
		r.Use(func(c *gin.Context) {
			c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
			c.Next()
		})
		corsCfg.AllowAllOrigins = true
	} else {
		allowed := make(map[string]struct{}, len(cfg.CORS.AllowedOrigins))
		for _, o := range cfg.CORS.AllowedOrigins {
			allowed[o] = struct{}{}
		}
		r.Use(func(c *gin.Context) {
			if origin := c.GetHeader("Origin"); origin != "" {
				if _, ok := allowed[origin]; ok {
					h := c.Writer.Header()
					h.Set("Access-Control-Allow-Origin", origin)
					h.Add("Vary", "Origin")
				}
			}
			c.Next()
		})
		corsCfg.AllowOrigins = cfg.CORS.AllowedOrigins
	}
	r.Use(cors.New(corsCfg))

	r.Use(middleware.SecurityHeaders(middleware.SecurityOptions{
		EnableHSTS:   cfg.Security.EnableHSTS,
		HSTSMaxAge:   cfg.Security.HSTSMaxAge,
		EnablePolicy: true,
	}))

	r.NoRoute(func(c *gin.Context) {
		handlers.Fail(c, http.StatusNotFound, handlers.ErrCodeNotFound, "route not found")
	})
	r.NoMethod(func(c *gin.Context) {
		handlers.Fail(c, http.StatusMethodNotAllowed, handlers.ErrCodeMethodNotAllowed, "method not allowed")
	})

	r.GET("/health", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"status": "ok"}) })
	if cfg.SwaggerEnabled {
		r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	h := handlers.New(svcs.Ingest, svcs.Register, svcs.Cache)

	api := groupWithPrefix(r, cfg.APIBasePath)
	{
		smsLimiter := middleware.NewRateLimiter(cfg.RateRPS, cfg.RateBurst, middleware.KeyByFormOrIP("From"))
		api.POST("/register/sms",
			middleware.IdempotencyValidator(middleware.IdempotencyOptions{
				Channel: services.ChannelSMS,
				Key:     middleware.KeyFromForm("MessageSid"),
				Now:     svcs.Clock.Now,
			}, receiptLookup(svcs.DB)),
			smsLimiter.Handler(),
			h.ReceiveSMS,
		)

		ipLimiter := middleware.NewRateLimiter(cfg.RateRPS, cfg.RateBurst, middleware.KeyByIP())
		rl := api.Group("", ipLimiter.Handler())
		rl.GET("/register/entries", h.ListEntries)
		rl.GET("/register/entries/:id", h.GetEntry)
		rl.GET("/register/export", h.ExportEntries)
		rl.POST("/register/entries", h.SubmitEntries)
		rl.DELETE("/register/entries/:id", h.DeleteEntry)
		rl.POST("/cache/invalidate", h.InvalidateCache)
	}
}

// receiptLookup answers replay checks from the receipt table. Lookup errors
// count as "not seen": the pipeline checks again and fails loudly if the
// store is down.
func receiptLookup(db *gorm.DB) middleware.IdempotencyLookup {
	return func(ctx context.Context, channel, key string, now time.Time) (bool, error) {
		_, err := repo.GetReceipt(ctx, db, channel, key, now)
		switch {
		case err == nil:
			return true, nil
		case repo.IsNotFound(err):
			return false, nil
		default:
			return false, err
		}
	}
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
