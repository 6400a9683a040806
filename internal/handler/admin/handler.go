package admin

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/zhouzirui/drafting/backend/internal/apperr"
	"github.com/zhouzirui/drafting/backend/internal/auth"
	"github.com/zhouzirui/drafting/backend/internal/middleware"
	"github.com/zhouzirui/drafting/backend/internal/model/audit"
	"github.com/zhouzirui/drafting/backend/internal/model/user"
	accountservice "github.com/zhouzirui/drafting/backend/internal/service/account"
	"github.com/zhouzirui/drafting/backend/internal/store"
	"github.com/zhouzirui/drafting/backend/pkg/logging"
	"github.com/zhouzirui/drafting/backend/pkg/utils"
)

// SummaryWindow 概览统计的时间窗口
const SummaryWindow = 24 * time.Hour

// Accounts 管理员需要的账号能力
type Accounts interface {
	Me(ctx context.Context, id int64) (user.User, error)
	CreateAdmin(ctx context.Context, in accountservice.Credentials) (user.User, error)
}

// AuditReader 审计日志与概览查询
type AuditReader interface {
	ListAudit(ctx context.Context, limit, offset int) ([]audit.Event, error)
	CountAudit(ctx context.Context) (int, error)
	Summary(ctx context.Context, since time.Time) (store.Summary, error)
}

// Feed 审计事件订阅源
type Feed interface {
	Subscribe() (<-chan audit.Event, func())
}

// StreamObserver 记录实时连接数
type StreamObserver interface {
	StreamOpened()
	StreamClosed()
}

// Config 管理员处理器依赖
type Config struct {
	Accounts       Accounts
	Audit          AuditReader
	Feed           Feed
	Streams        StreamObserver
	AllowedOrigins []string
	Logger         logging.Logger
}

// Handler 管理员接口
type Handler struct {
	accounts Accounts
	audit    AuditReader
	stream   *streamHandler
	logger   logging.Logger
	now      func() time.Time
}

// New 创建管理员处理器，Feed 为空时不提供实时流
func New(cfg Config) *Handler {
	if cfg.Logger == nil {
		cfg.Logger = logging.NewNopLogger()
	}
	h := &Handler{
		accounts: cfg.Accounts,
		audit:    cfg.Audit,
		logger:   cfg.Logger,
		now:      time.Now,
	}
	if cfg.Feed != nil {
		h.stream = newStreamHandler(cfg.Feed, cfg.Streams, cfg.AllowedOrigins, cfg.Logger)
	}
	return h
}

// RegisterRoutes 注册 /admin 路由，全部要求管理员
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/admin", func(r chi.Router) {
		r.Use(middleware.RequireAuth, middleware.RequireAdmin)
		r.Get("/ping", h.handlePing)
		r.Get("/audit-logs", h.handleAuditLogs)
		r.Get("/summary", h.handleSummary)
		r.Post("/users", h.handleCreateAdmin)
		if h.stream != nil {
			r.Get("/audit-logs/stream", h.stream.ServeHTTP)
		}
	})
}

func (h *Handler) handlePing(w http.ResponseWriter, r *http.Request) {
	principal, _ := auth.PrincipalFrom(r.Context())
	u, err := h.accounts.Me(r.Context(), principal.UserID)
	if errors.Is(err, accountservice.ErrUserNotFound) {
		utils.RespondError(w, http.StatusNotFound, "User not found")
		return
	}
	if err != nil {
		h.internalError(w, r, err, "admin ping")
		return
	}
	utils.RespondJSON(w, http.StatusOK, map[string]any{
		"message": "Admin access verified",
		"user":    u,
	})
}

func (h *Handler) handleAuditLogs(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit, offset := store.ClampPage(queryInt(q.Get("limit"), 50), queryInt(q.Get("offset"), 0))

	total, err := h.audit.CountAudit(r.Context())
	if err != nil {
		h.internalError(w, r, err, "count audit logs")
		return
	}
	events, err := h.audit.ListAudit(r.Context(), limit, offset)
	if err != nil {
		h.internalError(w, r, err, "list audit logs")
		return
	}
	if events == nil {
		events = []audit.Event{}
	}

	utils.RespondJSON(w, http.StatusOK, map[string]any{
		"audit_logs": events,
		"total":      total,
		"limit":      limit,
		"offset":     offset,
	})
}

func (h *Handler) handleSummary(w http.ResponseWriter, r *http.Request) {
	summary, err := h.audit.Summary(r.Context(), h.now().UTC().Add(-SummaryWindow))
	if err != nil {
		h.internalError(w, r, err, "summary")
		return
	}
	utils.RespondJSON(w, http.StatusOK, summary)
}

func (h *Handler) handleCreateAdmin(w http.ResponseWriter, r *http.Request) {
	var req accountservice.Credentials
	if err := utils.DecodeJSON(r, &req); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "Request body must be JSON")
		return
	}

	u, err := h.accounts.CreateAdmin(r.Context(), req)
	var invalid *apperr.InvalidInputError
	switch {
	case err == nil:
		utils.RespondJSON(w, http.StatusCreated, map[string]any{
			"message": "Admin user created successfully",
			"user":    u,
		})
	case errors.As(err, &invalid):
		utils.RespondError(w, http.StatusBadRequest, invalid.Error())
	case errors.Is(err, accountservice.ErrUserExists):
		utils.RespondError(w, http.StatusConflict, "User already exists")
	default:
		h.internalError(w, r, err, "create admin")
	}
}

func (h *Handler) internalError(w http.ResponseWriter, r *http.Request, err error, op string) {
	h.logger.WithError(err).WithFields(logging.Fields{
		"op":             op,
		"correlation_id": middleware.CorrelationIDFrom(r.Context()),
	}).Error("admin request failed")
	utils.RespondError(w, http.StatusInternalServerError, "Internal server error")
}

func queryInt(raw string, fallback int) int {
	n, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return fallback
	}
	return n
}
