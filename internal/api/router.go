package api

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"dbhandle/internal/middleware"
)

// RouterOptions configures the gateway middleware stack.
type RouterOptions struct {
	CORSAllowedOrigins []string
	RateLimit          middleware.RateLimitConfig
	// Auth enables bearer authentication on /v1 when non-nil.
	Auth *middleware.HS256Validator
}

// NewRouter mounts h behind the gateway middleware stack. ctx bounds the
// rate limiter's background sweep.
func NewRouter(ctx context.Context, h *Handler, opts RouterOptions) http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   opts.CORSAllowedOrigins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"},
		ExposedHeaders:   []string{"X-Request-ID"},
		AllowCredentials: false,
		MaxAge:           300,
	}))
	if opts.RateLimit.RequestsPerSecond > 0 {
		r.Use(middleware.RateLimiter(ctx, opts.RateLimit))
	}

	r.Get("/health", h.Health)

	r.Route("/v1", func(r chi.Router) {
		r.Use(middleware.BearerAuth(opts.Auth))
		r.Post("/fetch-one", h.FetchOne)
		r.Post("/fetch-all", h.FetchAll)
		r.Post("/commit", h.Commit)
	})

	return r
}
