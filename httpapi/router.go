// Package httpapi exposes the forest service over HTTP.
package httpapi

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"github.com/jacentio/grove/forest"
	"github.com/jacentio/grove/metrics"
)

// Forest is the service surface the handlers call.
type Forest interface {
	CreateNode(ctx context.Context, label string, parentID *int64) (forest.Node, error)
	GetForest(ctx context.Context) ([]*forest.View, error)
	CloneSubtree(ctx context.Context, targetID, parentID int64) (forest.Node, error)
}

// Options configures the router.
type Options struct {
	Logger         *zap.Logger
	Metrics        *metrics.Collector
	AllowedOrigins []string
	Timeout        time.Duration
}

// NewRouter returns the HTTP handler for the forest API.
func NewRouter(svc Forest, opts Options) http.Handler {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if len(opts.AllowedOrigins) == 0 {
		opts.AllowedOrigins = []string{"*"}
	}
	h := newHandler(svc, opts.Logger)

	r := chi.NewRouter()
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(requestLogger(opts.Logger))
	if opts.Metrics != nil {
		r.Use(instrument(opts.Metrics))
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: opts.AllowedOrigins,
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type", "X-Request-ID"},
		ExposedHeaders: []string{"X-Request-ID"},
		MaxAge:         300,
	}))

	r.Get("/health", h.health)
	if opts.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", opts.Metrics.Handler())
	}

	r.Route("/api/tree", func(r chi.Router) {
		if opts.Timeout > 0 {
			r.Use(chimiddleware.Timeout(opts.Timeout))
		}
		r.Get("/", h.getForest)
		r.Post("/", h.createNode)
		r.Post("/clone", h.cloneSubtree)
	})

	return r
}

func requestLogger(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := chimiddleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			next.ServeHTTP(ww, r)
			logger.Info("request",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.Status()),
				zap.Int("bytes", ww.BytesWritten()),
				zap.Duration("duration", time.Since(start)),
				zap.String("requestId", chimiddleware.GetReqID(r.Context())),
			)
		})
	}
}

func instrument(c *metrics.Collector) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := chimiddleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			next.ServeHTTP(ww, r)

			route := r.URL.Path
			if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
				route = rctx.RoutePattern()
			}
			c.ObserveHTTP(r.Method, route, ww.Status(), time.Since(start).Seconds())
		})
	}
}
