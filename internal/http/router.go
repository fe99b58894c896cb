// Package httpapi wires the HTTP transport (Gin) to application services,
// middleware, and route handlers. It centralizes cross-cutting concerns such
// as tracing, correlation IDs, tenant identity, logging/redaction, panic
// recovery, metrics, CORS, security headers, idempotency, and rate limiting.
package httpapi

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"gorm.io/gorm"

	"github.com/tbourn/go-wa-inbox/docs"
	"github.com/tbourn/go-wa-inbox/internal/config"
	"github.com/tbourn/go-wa-inbox/internal/http/handlers"
	"github.com/tbourn/go-wa-inbox/internal/http/middleware"
	"github.com/tbourn/go-wa-inbox/internal/repo"
	"github.com/tbourn/go-wa-inbox/internal/services"
	"github.com/tbourn/go-wa-inbox/internal/webhook"
)

// idemStore adapts the idempotency repo functions to both the handler-side
// IdempotencyStore and the middleware lookup.
type idemStore struct {
	db  *gorm.DB
	ttl time.Duration
}

// Lookup returns the resource id remembered for (workspace, scope, key).
func (s idemStore) Lookup(ctx context.Context, ws, scope, key string, now time.Time) (string, bool, error) {
	rec, err := repo.GetIdempotency(ctx, s.db, ws, scope, key, now)
	if errors.Is(err, repo.ErrNotFound) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return rec.ResourceID, true, nil
}

// Remember stores the created resource id under the key for ttl.
func (s idemStore) Remember(ctx context.Context, ws, scope, key, resourceID string, status int) error {
	_, err := repo.CreateIdempotency(ctx, s.db, ws, scope, key, resourceID, status, s.ttl)
	return err
}

func (s idemStore) exists(ctx context.Context, ws, scope, key string, now time.Time) (bool, error) {
	_, ok, err := s.Lookup(ctx, ws, scope, key, now)
	return ok, err
}

// RegisterRoutes attaches all middleware and HTTP endpoints to the given Gin
// engine. disp is shared with the worker so that API-triggered drains and
// background drains run the same state machine.
//
// Middleware order matters:
//  1. OpenTelemetry
//  2. RequestID, then tenant identity headers
//  3. RedactingLogger
//  4. Recovery
//  5. Body size limiter
//  6. Metrics
//  7. Idempotency validator (before rate limiter to allow bypass on replay)
//  8. Rate limiter (per workspace/IP, bypass on replay)
//  9. CORS and Security headers
func RegisterRoutes(r *gin.Engine, db *gorm.DB, disp *services.Dispatcher, cfg config.Config) error {
	r.HandleMethodNotAllowed = true

	store := idemStore{db: db, ttl: cfg.IdempotencyTTL}
	if store.ttl <= 0 {
		store.ttl = 24 * time.Hour
	}

	r.Use(otelgin.Middleware(cfg.OTEL.ServiceName))
	r.Use(middleware.RequestID())
	r.Use(middleware.Identity())

	// webhook verify tokens arrive in the query string
	r.Use(middleware.RedactingLogger(middleware.RedactOptions{
		MaskHeaders: []string{"X-Hub-Signature-256"},
		MaskParams:  []string{"hub.verify_token"},
	}))

	r.Use(middleware.Recovery())
	r.Use(limitBody(1 << 20))

	r.Use(middleware.Metrics())
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	r.Use(middleware.IdempotencyValidator(middleware.IdempotencyOptions{MaxLen: 200}, store.exists))

	rl := middleware.NewRateLimiter(cfg.RateRPS, cfg.RateBurst, middleware.KeyByWorkspaceOrIP())
	r.Use(rl.Handler())

	allowHeaders := []string{
		"Origin", "Content-Type", "Accept", "Authorization",
		middleware.HeaderWorkspaceID, middleware.HeaderMemberID, middleware.HeaderRole,
		middleware.HeaderIdempotencyKey,
	}
	exposeHeaders := []string{"X-Request-ID", "Content-Length", middleware.HeaderIdempotentReplay}
	methods := []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"}

	if len(cfg.CORS.AllowedOrigins) == 0 {
		// Force ACAO: * even without an Origin header.
		r.Use(func(c *gin.Context) {
			c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
			c.Next()
		})
		r.Use(cors.New(cors.Config{
			AllowAllOrigins:  true,
			AllowMethods:     methods,
			AllowHeaders:     allowHeaders,
			ExposeHeaders:    exposeHeaders,
			AllowCredentials: false,
			MaxAge:           12 * time.Hour,
		}))
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
		r.Use(cors.New(cors.Config{
			AllowOrigins:     cfg.CORS.AllowedOrigins,
			AllowMethods:     methods,
			AllowHeaders:     allowHeaders,
			ExposeHeaders:    exposeHeaders,
			AllowCredentials: false,
			MaxAge:           12 * time.Hour,
		}))
	}

	r.Use(middleware.SecurityHeaders(middleware.SecurityOptions{
		EnableHSTS:   cfg.Security.EnableHSTS,
		HSTSMaxAge:   cfg.Security.HSTSMaxAge,
		NoStore:      false,
		EnablePolicy: true,
	}))

	r.Use(gzip.Gzip(gzip.DefaultCompression, gzip.WithExcludedPaths([]string{"/metrics"})))

	if cfg.SwaggerEnabled {
		docs.SwaggerInfo.BasePath = cfg.APIBasePath
		r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	r.NoRoute(func(c *gin.Context) {
		handlers.Fail(c, http.StatusNotFound, handlers.ErrCodeNotFound, "route not found")
	})
	r.NoMethod(func(c *gin.Context) {
		handlers.Fail(c, http.StatusMethodNotAllowed, handlers.ErrCodeMethodNotAllowed, "method not allowed")
	})

	r.GET("/health", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"status": "ok"}) })
	r.GET("/ready", func(c *gin.Context) {
		sqlDB, err := db.DB()
		if err == nil {
			err = sqlDB.PingContext(c.Request.Context())
		}
		if err != nil {
			handlers.Fail(c, http.StatusServiceUnavailable, handlers.ErrCodeInternal, "database unavailable")
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ready"})
	})

	decoder, err := webhook.NewValidator()
	if err != nil {
		return err
	}
	mat := disp.Materializer
	if mat == nil {
		mat = services.NewMaterializer(db)
	}
	h := handlers.New(handlers.Deps{
		Intake:      mat,
		Decoder:     decoder,
		Inbox:       services.NewInbox(db),
		Routing:     services.NewRouter(db),
		Outbox:      disp,
		Campaigns:   services.NewCampaigns(db, disp, cfg.CampaignBatchSize),
		Idempotency: store,
		VerifyToken: cfg.WebhookVerifyToken,
	})

	base := groupWithPrefix(r, cfg.APIBasePath)

	// provider callbacks carry no tenant headers; the workspace is resolved
	// from the phone number id in the payload
	base.GET("/webhook", h.VerifyWebhook)
	base.POST("/webhook", h.ReceiveWebhook)

	api := base.Group("", middleware.RequireWorkspace())
	{
		api.POST("/events", h.IngestEvent)

		api.GET("/conversations", h.ListConversations)
		api.GET("/conversations/:id/messages", h.ListMessages)
		api.GET("/conversations/:id/events", h.ListEvents)
		api.POST("/conversations/:id/read", h.MarkRead)

		api.POST("/conversations/:id/auto-assign", h.AutoAssign)
		api.POST("/conversations/:id/assign", h.Assign)
		api.PUT("/conversations/:id/category", h.SetCategory)
		api.POST("/conversations/:id/transfer", h.Transfer)
		api.POST("/conversations/:id/takeover", h.Takeover)
		api.DELETE("/conversations/:id/takeover", h.ReleaseTakeover)

		api.POST("/outbox", h.Enqueue)
		api.GET("/outbox", h.ListOutbox)
		api.POST("/outbox/:id/drain", h.Drain)
		api.POST("/outbox/:id/requeue", h.Requeue)

		api.POST("/campaigns", h.CreateCampaign)
		api.GET("/campaigns/:id/status", h.CampaignStatus)
		api.POST("/campaigns/:id/launch", h.LaunchCampaign)
	}
	return nil
}

// limitBody caps the request body at maxBytes; larger bodies fail on read.
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
