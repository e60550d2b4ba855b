package httpserver

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/preflight/governor/internal/admin"
	"github.com/preflight/governor/internal/api"
	"github.com/preflight/governor/internal/audit"
	"github.com/preflight/governor/internal/auth"
	"github.com/preflight/governor/internal/config"
	"github.com/preflight/governor/internal/lsh"
	"github.com/preflight/governor/internal/ratelimit"
	"github.com/preflight/governor/internal/store"
)

// Server holds the HTTP server dependencies and owns route wiring for
// every domain package. Unlike the base repo's NewServer, which exposed
// an APIRouter for handlers to be mounted onto later, this constructor
// mounts every route itself: the base repo's session-auth/OIDC layering
// (auth.Middleware → tenant.Middleware → auth.RequireAuth) collapses
// into a single auth.Middleware.RequireAPIKey, since every caller here
// authenticates with a service-issued API key.
type Server struct {
	Router *chi.Mux
	logger *slog.Logger
	db     *pgxpool.Pool
	rdb    *redis.Client
}

// Deps bundles the constructed dependencies NewServer wires onto the
// router; callers (internal/app) assemble these once at startup.
type Deps struct {
	Config     *config.Config
	Logger     *slog.Logger
	DB         *pgxpool.Pool
	Redis      *redis.Client
	Store      *store.Gateway
	MetricsReg *prometheus.Registry
	AuthMW     *auth.Middleware
	Limiter    *ratelimit.Limiter
	AuditW     *audit.Writer
	LSHIndex   *lsh.Index
	Providers  *store.ProviderStore
}

// NewServer builds the router: global middleware, health/metrics, then
// the authenticated /v1 governance surface and the /admin surface, which
// requires the "admin" scope.
func NewServer(d Deps) *Server {
	SetMaxBodySize(int64(d.Config.MaxRequestBodySize))

	s := &Server{
		Router: chi.NewRouter(),
		logger: d.Logger,
		db:     d.DB,
		rdb:    d.Redis,
	}

	s.Router.Use(RequestID)
	s.Router.Use(Logger(d.Logger))
	s.Router.Use(Metrics)
	s.Router.Use(SecurityHeaders)
	s.Router.Use(middleware.Recoverer)
	s.Router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   d.Config.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-API-Key", "X-Request-ID"},
		ExposedHeaders:   []string{"X-Request-ID", "X-RateLimit-Limit", "X-RateLimit-Remaining", "X-RateLimit-Reset"},
		AllowCredentials: true,
		MaxAge:           300,
	}))
	s.Router.Use(middleware.RequestSize(int64(d.Config.MaxRequestBodySize)))

	s.Router.Get("/healthz", s.handleHealthz)
	s.Router.Get("/readyz", s.handleReadyz)
	s.Router.Handle("/metrics", promhttp.HandlerFor(d.MetricsReg, promhttp.HandlerOpts{}))

	evaluateHandler := api.NewEvaluateHandler(d.Logger, d.AuditW, d.LSHIndex, d.Providers)
	templateHandler := api.NewTemplateHandler(d.Logger, d.AuditW, d.LSHIndex)

	s.Router.Route("/v1", func(r chi.Router) {
		r.Use(RateLimit(d.Limiter, d.Config.RateLimitUnauthenticated))
		r.Use(d.AuthMW.RequireAPIKey)

		r.Get("/status", s.handleStatus)
		r.Mount("/evaluate", evaluateHandler.Routes())
		r.Route("/templates", func(tr chi.Router) {
			tr.Use(d.AuthMW.RequireScope("templates:write"))
			tr.Mount("/", templateHandler.Routes())
		})
	})

	tenantHandler := admin.NewTenantHandler(d.Logger, d.AuditW, d.DB)
	apiKeyHandler := admin.NewAPIKeyHandler(d.Logger, d.AuditW, d.DB, d.Config.APIKeySalt)
	auditHandler := admin.NewAuditHandler(d.Logger, d.DB)
	evaluationHandler := admin.NewEvaluationHandler(d.Logger, d.Store)

	s.Router.Route("/admin", func(r chi.Router) {
		r.Use(RateLimit(d.Limiter, d.Config.RateLimitUnauthenticated))
		r.Use(d.AuthMW.RequireAPIKey)
		r.Use(d.AuthMW.RequireScope("admin"))

		r.Mount("/tenants", tenantHandler.Routes())
		r.Route("/tenants/{tenantID}/api-keys", func(kr chi.Router) {
			kr.Mount("/", apiKeyHandler.Routes())
		})
		r.Mount("/audit-logs", auditHandler.Routes())
		r.Mount("/evaluations", evaluationHandler.Routes())
	})

	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.Router.ServeHTTP(w, r)
}

func (s *Server) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	Respond(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleReadyz(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	if err := s.db.Ping(ctx); err != nil {
		s.logger.Error("readiness check: database ping failed", "error", err)
		RespondError(w, http.StatusServiceUnavailable, "unavailable", "database not ready")
		return
	}

	if err := s.rdb.Ping(ctx).Err(); err != nil {
		s.logger.Error("readiness check: redis ping failed", "error", err)
		RespondError(w, http.StatusServiceUnavailable, "unavailable", "redis not ready")
		return
	}

	Respond(w, http.StatusOK, map[string]string{"status": "ready"})
}

// dependencyStatus is one probed dependency's health in the /v1/status
// response.
type dependencyStatus struct {
	Name      string `json:"name"`
	Healthy   bool   `json:"healthy"`
	LatencyMS int64  `json:"latency_ms"`
	Error     string `json:"error,omitempty"`
}

// handleStatus runs a latency-timed probe against every infrastructure
// dependency, unlike /healthz (liveness only) and /readyz (binary
// ready/not-ready) above.
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	deps := []dependencyStatus{
		probeDependency("postgres", func() error { return s.db.Ping(ctx) }),
		probeDependency("redis", func() error { return s.rdb.Ping(ctx).Err() }),
	}

	overall := http.StatusOK
	for _, dep := range deps {
		if !dep.Healthy {
			overall = http.StatusServiceUnavailable
			break
		}
	}

	Respond(w, overall, map[string]any{"dependencies": deps})
}

func probeDependency(name string, probe func() error) dependencyStatus {
	start := time.Now()
	err := probe()
	d := dependencyStatus{
		Name:      name,
		Healthy:   err == nil,
		LatencyMS: time.Since(start).Milliseconds(),
	}
	if err != nil {
		d.Error = err.Error()
	}
	return d
}
