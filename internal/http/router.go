// Package httpapi wires the HTTP transport (Gin) to application services,
// middleware, and route handlers. It centralizes cross-cutting concerns such
// as tracing, correlation IDs, logging, panic recovery, metrics, CORS,
// security headers, and rate limiting.
//
// Design goals:
//   - Put observability first (OTel + Prometheus)
//   - Safe-by-default middleware ordering (RequestID → logging → recovery)
//   - Deterministic, minimal router setup; all dependencies injected
//   - Production-ready CORS and security header posture
package httpapi

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"gorm.io/gorm"

	"github.com/dukahub/go-followup-backend/internal/config"
	"github.com/dukahub/go-followup-backend/internal/domain"
	"github.com/dukahub/go-followup-backend/internal/http/handlers"
	"github.com/dukahub/go-followup-backend/internal/http/middleware"
	"github.com/dukahub/go-followup-backend/internal/repo"
	"github.com/dukahub/go-followup-backend/internal/services"
	"github.com/dukahub/go-followup-backend/internal/whatsapp"
)

// followupRepoShim adapts the repository free functions to the
// services.FollowupRepo interface expected by the FollowupService. This keeps
// services decoupled from the concrete repo package while reusing existing
// functions.
type followupRepoShim struct{}

// CreateRecord proxies repo.CreateRecord.
func (followupRepoShim) CreateRecord(ctx context.Context, db *gorm.DB, orderID int64, email, phone string, productIDs []int64) (*domain.FollowupRecord, bool, error) {
	return repo.CreateRecord(ctx, db, orderID, email, phone, productIDs)
}

// GetRecord proxies repo.GetRecord.
func (followupRepoShim) GetRecord(ctx context.Context, db *gorm.DB, id uint) (*domain.FollowupRecord, error) {
	return repo.GetRecord(ctx, db, id)
}

// CountRecords proxies repo.CountRecords (pagination support).
func (followupRepoShim) CountRecords(ctx context.Context, db *gorm.DB, filter repo.StatusFilter) (int64, error) {
	return repo.CountRecords(ctx, db, filter)
}

// ListRecordsPage proxies repo.ListRecordsPage (pagination support).
func (followupRepoShim) ListRecordsPage(ctx context.Context, db *gorm.DB, filter repo.StatusFilter, offset, limit int) ([]domain.FollowupRecord, error) {
	return repo.ListRecordsPage(ctx, db, filter, offset, limit)
}

// IncrementMessages proxies repo.IncrementMessages (capped counter).
func (followupRepoShim) IncrementMessages(ctx context.Context, db *gorm.DB, id uint, maxMessages int, now time.Time) (bool, error) {
	return repo.IncrementMessages(ctx, db, id, maxMessages, now)
}

// ForceCommented proxies repo.ForceCommented (manual staff override).
func (followupRepoShim) ForceCommented(ctx context.Context, db *gorm.DB, id uint, now time.Time) error {
	return repo.ForceCommented(ctx, db, id, now)
}

// RegisterRoutes attaches all middleware and HTTP endpoints to the given Gin
// engine. It configures observability (tracing, metrics), rate limiting, CORS
// and security headers, health and metrics endpoints, and then mounts the
// versioned admin API under /api/v*.
//
// Middleware order matters:
//  1. OpenTelemetry: trace everything
//  2. RequestID: generate/propagate correlation id
//  3. Logger: structured request logs
//  4. Recovery: capture panics after logger
//  5. Body size limiter
//  6. Metrics
//  7. Rate limiter (per client IP)
//  8. CORS and Security headers
func RegisterRoutes(r *gin.Engine, db *gorm.DB, cfg config.Config) {
	r.HandleMethodNotAllowed = true

	// 1) Trace all HTTP requests
	r.Use(otelgin.Middleware(cfg.OTEL.ServiceName))

	// 2) Correlate requests and logs
	r.Use(middleware.RequestID())

	// 3) Structured request logging
	r.Use(middleware.Logger())

	// 4) Panic recovery to JSON 500 (with request id)
	r.Use(middleware.Recovery())

	// 5) Global body size limit (1 MiB)
	r.Use(limitBody(1 << 20))

	// 6) Prometheus metrics and /metrics endpoint
	r.Use(middleware.Metrics())
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// 7) Token-bucket rate limiter per client IP
	rl := middleware.NewRateLimiter(cfg.RateRPS, cfg.RateBurst, middleware.KeyByClientIP())
	r.Use(rl.Handler())

	// 8) CORS posture (safe defaults: allow all if none configured)
	if len(cfg.CORS.AllowedOrigins) == 0 {
		// Force ACAO: * even for requests without an Origin header (helps tests and simple health checks).
		r.Use(func(c *gin.Context) {
			c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
			c.Next()
		})
		r.Use(cors.New(cors.Config{
			AllowAllOrigins:  true,
			AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
			AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization"},
			ExposeHeaders:    []string{"X-Request-ID", "Content-Length"},
			AllowCredentials: false, // must remain false with AllowAllOrigins
			MaxAge:           12 * time.Hour,
		}))
	} else {
		// Echo ACAO with the request Origin when it is in the allowlist (in addition to gin-contrib/cors).
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
		r.Use(cors.New(cors.Config{
			AllowOrigins:     cfg.CORS.AllowedOrigins,
			AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
			AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization"},
			ExposeHeaders:    []string{"X-Request-ID", "Content-Length"},
			AllowCredentials: false,
			MaxAge:           12 * time.Hour,
		}))
	}

	// Security headers (HSTS only when enabled and request is HTTPS)
	r.Use(middleware.SecurityHeaders(middleware.SecurityOptions{
		EnableHSTS:   cfg.Security.EnableHSTS,
		HSTSMaxAge:   cfg.Security.HSTSMaxAge,
		NoStore:      false,
		EnablePolicy: true,
	}))

	// Fallbacks
	r.NoRoute(func(c *gin.Context) {
		handlers.Fail(c, http.StatusNotFound, handlers.ErrCodeNotFound, "route not found")
	})
	r.NoMethod(func(c *gin.Context) {
		handlers.Fail(c, http.StatusMethodNotAllowed, handlers.ErrCodeMethodNotAllowed, "method not allowed")
	})

	// Liveness/health
	r.GET("/health", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"status": "ok"}) })

	// Dependency injection: services ← repo/db
	fuSvc := services.NewFollowupService(db, followupRepoShim{})
	fuSvc.MaxMessages = cfg.MaxMessages
	rcSvc := &services.ReconcileService{DB: db}

	formatter := whatsapp.Formatter{
		DefaultCountryCode:   cfg.WhatsApp.DefaultCountryCode,
		LocalLengthThreshold: cfg.WhatsApp.LocalLengthThreshold,
	}
	h := handlers.New(fuSvc, rcSvc, formatter, cfg.StoreBaseURL, cfg.MaxMessages)

	// Admin API
	apiBase := cfg.APIBasePath // e.g. "/api/v1"
	api := groupWithPrefix(r, apiBase)
	{
		// Host platform events
		api.POST("/events/order-completed", h.OrderCompleted)
		api.POST("/events/comment", h.CommentCreated)

		// Follow-up records
		api.GET("/followups", h.ListFollowups)
		api.GET("/followups/analytics", h.GetAnalytics)
		api.POST("/followups/import", h.ImportOrders)
		api.GET("/followups/:id/link", h.GetLink)
		api.POST("/followups/:id/messages", h.RecordSent)
		api.POST("/followups/:id/commented", h.ForceCommented)
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
