package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/zhouzirui/drafting/backend/internal/handler/account"
	"github.com/zhouzirui/drafting/backend/internal/handler/admin"
	"github.com/zhouzirui/drafting/backend/internal/handler/documents"
	"github.com/zhouzirui/drafting/backend/internal/handler/health"
	"github.com/zhouzirui/drafting/backend/internal/handler/history"
	"github.com/zhouzirui/drafting/backend/internal/metrics"
	middlewarePkg "github.com/zhouzirui/drafting/backend/internal/middleware"
	accountService "github.com/zhouzirui/drafting/backend/internal/service/account"
	"github.com/zhouzirui/drafting/backend/internal/service/auditfeed"
	"github.com/zhouzirui/drafting/backend/internal/service/generation"
	"github.com/zhouzirui/drafting/backend/pkg/logging"
)

// Store 路由层需要的持久化能力
type Store interface {
	history.Reader
	admin.AuditReader
}

// Deps 路由依赖
type Deps struct {
	Accounts   *accountService.Service
	Generation *generation.Service
	Store      Store
	// AIHealth 为空表示 AI 未配置
	AIHealth       health.Checker
	Feed           *auditfeed.Hub
	Metrics        *metrics.Collector
	JWTSecret      []byte
	AllowedOrigins []string
	// 限流器为空表示关闭
	DefaultLimit    *middlewarePkg.RateLimiter
	GenerationLimit *middlewarePkg.RateLimiter
	Logger          logging.Logger
}

// NewRouter wires HTTP routes to core services.
func NewRouter(deps Deps) http.Handler {
	logger := deps.Logger
	if logger == nil {
		logger = logging.NewNopLogger()
	}

	r := chi.NewRouter()

	r.Use(middlewarePkg.CorrelationID)
	r.Use(chimw.RealIP)
	r.Use(middlewarePkg.RequestLogger(logger))
	r.Use(chimw.Recoverer)
	r.Use(middlewarePkg.CORS(deps.AllowedOrigins))
	if deps.Metrics != nil {
		r.Use(middlewarePkg.Metrics(deps.Metrics))
	}
	r.Use(middlewarePkg.Identify(deps.JWTSecret))
	if deps.DefaultLimit != nil {
		r.Use(deps.DefaultLimit.Handler)
	}

	health.New(deps.AIHealth).RegisterRoutes(r)
	if deps.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", deps.Metrics.Handler())
	}

	r.Route("/api", func(api chi.Router) {
		account.New(deps.Accounts, logger).RegisterRoutes(api)

		api.Group(func(authed chi.Router) {
			authed.Use(middlewarePkg.RequireAuth)

			history.New(deps.Store, logger).RegisterRoutes(authed)

			authed.Group(func(gen chi.Router) {
				if deps.GenerationLimit != nil {
					gen.Use(deps.GenerationLimit.Handler)
				}
				documents.New(deps.Generation, logger).RegisterRoutes(gen)
			})
		})

		adminCfg := admin.Config{
			Accounts:       deps.Accounts,
			Audit:          deps.Store,
			AllowedOrigins: deps.AllowedOrigins,
			Logger:         logger,
		}
		if deps.Feed != nil {
			adminCfg.Feed = deps.Feed
		}
		if deps.Metrics != nil {
			adminCfg.Streams = deps.Metrics
		}
		admin.New(adminCfg).RegisterRoutes(api)
	})

	return r
}
