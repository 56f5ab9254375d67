package handler

import (
	"net/http"
	"time"

	"github.com/Adithya-Monish-Kumar-K/query-yield-analyzer/pkg/health"
	"github.com/Adithya-Monish-Kumar-K/query-yield-analyzer/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/query-yield-analyzer/pkg/middleware"
	"github.com/Adithya-Monish-Kumar-K/query-yield-analyzer/pkg/ratelimit"
)

// RouterConfig carries the middleware settings for NewRouter.
type RouterConfig struct {
	Timeout         time.Duration
	AllowOrigins    []string
	Limiter         *ratelimit.Limiter
	ClientRateLimit int
	Metrics         *metrics.Metrics
}

// NewRouter builds the service's HTTP handler.
//
// Route table:
//
//	POST   /api/v1/analyze             → run an analysis
//	GET    /api/v1/analyses            → list past analyses
//	GET    /api/v1/analyses/{id}       → fetch one analysis
//	GET    /api/v1/platforms           → registered platforms
//	GET    /api/v1/classify?yield=N    → classify a yield
//	GET    /api/v1/stats               → aggregated analysis stats
//	GET    /api/v1/stats/snapshots     → persisted stats history
//	POST   /api/v1/cache/invalidate    → drop cached platform results
//	GET    /health/live, /health/ready → probes
//
// Middleware chain (outermost first):
//
//	RequestID → Metrics → CORS → RateLimit → Timeout → mux
func NewRouter(h *Handler, checker *health.Checker, cfg RouterConfig) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /api/v1/analyze", h.Analyze)
	mux.HandleFunc("GET /api/v1/analyses", h.ListAnalyses)
	mux.HandleFunc("GET /api/v1/analyses/{id}", h.GetAnalysis)
	mux.HandleFunc("GET /api/v1/platforms", h.Platforms)
	mux.HandleFunc("GET /api/v1/classify", h.Classify)
	mux.HandleFunc("GET /api/v1/stats", h.Stats)
	mux.HandleFunc("GET /api/v1/stats/snapshots", h.StatsSnapshots)
	mux.HandleFunc("POST /api/v1/cache/invalidate", h.CacheInvalidate)

	if checker != nil {
		mux.HandleFunc("GET /health/live", checker.LiveHandler())
		mux.HandleFunc("GET /health/ready", checker.ReadyHandler())
	}

	var chain http.Handler = mux
	if cfg.Timeout > 0 {
		chain = middleware.Timeout(cfg.Timeout)(chain)
	}
	chain = middleware.RateLimit(cfg.Limiter, cfg.ClientRateLimit)(chain)
	chain = middleware.CORS(cfg.AllowOrigins)(chain)
	chain = middleware.Metrics(cfg.Metrics)(chain)
	chain = middleware.RequestID(chain)
	return chain
}
