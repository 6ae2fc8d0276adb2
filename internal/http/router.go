// Package httpapi wires the HTTP transport (Gin) to the recipe service,
// middleware, and route handlers. It centralizes cross-cutting concerns such
// as tracing, correlation IDs, logging/redaction, panic recovery, metrics,
// compression, CORS, security headers, idempotency, and rate limiting.
package httpapi

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/tbourn/go-recipe-backend/internal/config"
	"github.com/tbourn/go-recipe-backend/internal/docs"
	"github.com/tbourn/go-recipe-backend/internal/http/handlers"
	"github.com/tbourn/go-recipe-backend/internal/http/middleware"
	"github.com/tbourn/go-recipe-backend/internal/repo"
	"github.com/tbourn/go-recipe-backend/internal/services"
	"github.com/tbourn/go-recipe-backend/internal/web"
)

const (
	maxBodyBytes   = 1 << 20
	maxIdemKeyLen  = 200
	metricsPath    = "/metrics"
	swaggerPattern = "/swagger/*any"
)

// NewRecipeService binds a RecipeService to the active backend.
func NewRecipeService(b *repo.Backend, cfg config.Config) *services.RecipeService {
	return &services.RecipeService{
		Store:          b.Recipes,
		Idempotency:    b.Idempotency,
		IdempotencyTTL: cfg.IdempotencyTTL,
	}
}

// idempotencyLookup reports whether key already has a live record in b.
func idempotencyLookup(b *repo.Backend) middleware.IdempotencyLookup {
	return func(ctx context.Context, key string, now time.Time) (bool, error) {
		rec, err := b.Idempotency.GetIdempotency(ctx, key, now)
		if errors.Is(err, repo.ErrNotFound) {
			return false, nil
		}
		if err != nil {
			return false, err
		}
		return rec != nil, nil
	}
}

// RegisterRoutes attaches all middleware and HTTP endpoints to the given Gin
// engine and mounts the recipe API under cfg.APIBasePath.
//
// Middleware order matters:
//  1. OpenTelemetry: trace everything
//  2. RequestID: generate/propagate correlation id
//  3. Logger or RedactingLogger (LOG_REDACT)
//  4. Recovery: capture panics after logger
//  5. Body size limiter
//  6. Metrics
//  7. Gzip (when enabled, never for /metrics)
//  8. Idempotency validator (before rate limiter to allow bypass on replay)
//  9. Rate limiter (per client IP, bypass on replay)
//  10. CORS and Security headers
func RegisterRoutes(r *gin.Engine, b *repo.Backend, cfg config.Config) error {
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
	r.Use(limitBody(maxBodyBytes))

	r.Use(middleware.Metrics())
	r.GET(metricsPath, gin.WrapH(promhttp.Handler()))

	if cfg.GzipEnabled {
		r.Use(skipBodiless(gzip.Gzip(gzip.DefaultCompression, gzip.WithExcludedPaths([]string{metricsPath}))))
	}

	r.Use(middleware.IdempotencyValidator(
		middleware.IdempotencyOptions{MaxLen: maxIdemKeyLen},
		idempotencyLookup(b),
	))

	rl := middleware.NewRateLimiter(middleware.RateLimitOptions{
		RPS:    cfg.RateRPS,
		Burst:  cfg.RateBurst,
		Key:    middleware.KeyByClientIP(),
		Exempt: []string{healthPath(cfg.APIBasePath), metricsPath},
	})
	r.Use(rl.Handler())

	r.Use(corsMiddleware(cfg.CORS.AllowedOrigins)...)
	r.Use(middleware.SecurityHeaders(middleware.SecurityOptions{
		EnableHSTS:   cfg.Security.EnableHSTS,
		HSTSMaxAge:   cfg.Security.HSTSMaxAge,
		EnablePolicy: true,
	}))

	r.NoRoute(func(c *gin.Context) {
		handlers.Fail(c, http.StatusNotFound, handlers.ErrCodeNotFound, "Route not found")
	})
	r.NoMethod(func(c *gin.Context) {
		handlers.Fail(c, http.StatusMethodNotAllowed, handlers.ErrCodeMethodNotAllowed, "Method not allowed")
	})

	if cfg.SwaggerEnabled {
		docs.SwaggerInfo.BasePath = cfg.APIBasePath
		r.GET(swaggerPattern, ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	if cfg.Client.Enabled {
		if err := web.Mount(r, web.Options{
			APIBaseURL:  cfg.Client.APIBaseURL,
			APIBasePath: cfg.APIBasePath,
		}); err != nil {
			return err
		}
	}

	h := handlers.New(NewRecipeService(b, cfg), cfg.Port).WithObserver(middleware.ObserveRecipeEvent)

	api := groupWithPrefix(r, cfg.APIBasePath)
	{
		api.GET("/health", h.Health)

		api.GET("/recipes", h.ListRecipes)
		api.POST("/recipes", h.CreateRecipe)
		api.GET("/recipes/:id", h.GetRecipe)
		api.DELETE("/recipes/:id", h.DeleteRecipe)
	}
	return nil
}

// corsMiddleware allows every origin when none are configured, otherwise
// only the listed ones. Credentials are never allowed.
func corsMiddleware(origins []string) []gin.HandlerFunc {
	base := cors.Config{
		AllowMethods:     []string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "If-None-Match", middleware.HeaderIdempotencyKey},
		ExposeHeaders:    []string{"X-Request-ID", "ETag", handlers.HeaderIdempotentReplayed, "Content-Length"},
		AllowCredentials: false,
		MaxAge:           12 * time.Hour,
	}

	if len(origins) == 0 {
		base.AllowAllOrigins = true
		// ACAO: * even without an Origin header, so plain curl and health probes see it.
		return []gin.HandlerFunc{
			func(c *gin.Context) {
				c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
				c.Next()
			},
			cors.New(base),
		}
	}

	allowed := make(map[string]struct{}, len(origins))
	for _, o := range origins {
		allowed[o] = struct{}{}
	}
	base.AllowOrigins = origins
	return []gin.HandlerFunc{
		func(c *gin.Context) {
			if origin := c.GetHeader("Origin"); origin != "" {
				if _, ok := allowed[origin]; ok {
					h := c.Writer.Header()
					h.Set("Access-Control-Allow-Origin", origin)
					h.Add("Vary", "Origin")
				}
			}
			c.Next()
		},
		cors.New(base),
	}
}

// healthPath is the route pattern of the health check under base.
func healthPath(base string) string {
	return strings.TrimSuffix(base, "/") + "/health"
}

// skipBodiless runs mw only for requests whose response can carry a body.
// DELETE answers 204 and HEAD has no body, so neither is compressed.
func skipBodiless(mw gin.HandlerFunc) gin.HandlerFunc {
	return func(c *gin.Context) {
		switch c.Request.Method {
		case http.MethodDelete, http.MethodHead:
			c.Next()
		default:
			mw(c)
		}
	}
}

// limitBody caps request bodies at maxBytes. Reads past the cap fail, which
// the JSON binder reports as a malformed body.
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
