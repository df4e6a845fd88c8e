// Package api exposes the read surface over market_data: latest
// observation, chart ranges, point-in-time comparisons, derived change
// rates, and a WebSocket stream of inserts.
package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"market-data-service/internal/feed"
	"market-data-service/internal/logger"
	"market-data-service/internal/observability"
	"market-data-service/internal/storage"
)

// Server is the HTTP API server.
type Server struct {
	router  chi.Router
	store   storage.ObservationStore
	feed    feed.Feed
	metrics *observability.Metrics
	log     *logger.Entry
}

// NewServer creates a configured API server with all routes and middleware.
// metrics may be nil.
func NewServer(store storage.ObservationStore, fd feed.Feed, metrics *observability.Metrics, log *logger.Entry) *Server {
	s := &Server{
		store:   store,
		feed:    fd,
		metrics: metrics,
		log:     log,
	}
	s.router = s.buildRouter()
	return s
}

// Handler returns the root HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

// buildRouter assembles middleware and routes.
func (s *Server) buildRouter() chi.Router {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(s.metricsMiddleware)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{http.MethodGet, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))

	r.Get("/healthz", s.handleHealth)
	r.Handle("/metrics", observability.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/types", s.handleTypes)
		r.Route("/data/{type}", func(r chi.Router) {
			r.Get("/", s.handleSeries)
			r.Get("/latest", s.handleLatest)
			r.Get("/at", s.handleAtDates)
			r.Get("/inflation", s.handleInflation)
			r.Get("/stats", s.handleStats)
		})
		r.Get("/stream", s.handleStream)
		r.Get("/stream/{type}", s.handleStream)
	})

	return r
}

// metricsMiddleware records request latency by route, method and status.
func (s *Server) metricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.metrics == nil {
			next.ServeHTTP(w, r)
			return
		}

		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		route := chi.RouteContext(r.Context()).RoutePattern()
		if route == "" {
			route = "unmatched"
		}
		s.metrics.HTTPRequestDuration.
			WithLabelValues(route, r.Method, strconv.Itoa(ww.Status())).
			Observe(time.Since(start).Seconds())
	})
}
