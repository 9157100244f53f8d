package catalog

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"ProductCatalog/pkg/kit"
)

type HTTPDeps struct {
	Log      *zap.Logger
	Service  string
	Registry *prometheus.Registry

	MetricsEnabled bool
	MetricsToken   string

	// WriteLimitPerMin caps POST/PUT/DELETE requests per client IP per
	// minute. Zero disables the limiter.
	WriteLimitPerMin int
}

const limitWindow = 60 * time.Second

func NewHandler(s *Server, deps HTTPDeps) http.Handler {
	r := chi.NewRouter()

	metricsOn := deps.MetricsEnabled && deps.Registry != nil
	if deps.MetricsEnabled && deps.Registry == nil && deps.Log != nil {
		deps.Log.Warn("metrics enabled but Registry is nil")
	}

	setupMiddleware(r, deps)
	setupRoutes(r, s, deps, metricsOn)

	return r
}

func setupMiddleware(r *chi.Mux, deps HTTPDeps) {
	r.Use(chimw.RequestID)
	r.Use(kit.Recoverer)
	r.Use(kit.Logging(deps.Log))

	if deps.Registry != nil {
		metrics := kit.NewMetrics(deps.Registry)
		r.Use(metrics.Middleware(deps.Service, kit.ChiRoutePatternOrPath))
	}
}

func setupRoutes(r *chi.Mux, s *Server, deps HTTPDeps, metricsOn bool) {
	write := writeGuard(deps)

	r.Route("/products", func(rr chi.Router) {
		rr.With(write).Post("/", s.createProduct)
		rr.Get("/", s.listProducts)

		rr.Get("/category_summary", s.categorySummary)
		rr.Get("/average_price_by_category", s.averagePriceByCategory)
		rr.Get("/high_stock/{minStock}", s.highStock)

		rr.Get("/{id}", s.getProduct)
		rr.With(write).Put("/{id}", s.updateProduct)
		rr.With(write).Delete("/{id}", s.deleteProduct)
	})

	r.Route("/categories", func(rr chi.Router) {
		rr.With(write).Post("/", s.createCategory)
		rr.Get("/", s.listCategories)
	})

	r.Get("/healthz", healthz)
	r.Get("/readyz", s.handleReady)

	if metricsOn {
		r.With(kit.MetricsAuth(deps.MetricsToken)).Handle(
			"/metrics",
			promhttp.HandlerFor(deps.Registry, promhttp.HandlerOpts{}),
		)
	}
}

func writeGuard(deps HTTPDeps) func(http.Handler) http.Handler {
	if deps.WriteLimitPerMin <= 0 {
		return func(next http.Handler) http.Handler { return next }
	}
	limiter := kit.NewIPRateLimiter(deps.WriteLimitPerMin, int(limitWindow.Seconds()))
	return limiter.Middleware
}

func healthz(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 1*time.Second)
	defer cancel()

	if err := s.Store.Ping(ctx); err != nil {
		if s.Log != nil {
			s.Log.Warn("readyz failed", zap.Error(err))
		}
		kit.WriteError(w, r, http.StatusServiceUnavailable, "not ready")
		return
	}
	w.WriteHeader(http.StatusOK)
}
