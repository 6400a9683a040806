package health

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/zhouzirui/drafting/backend/internal/middleware"
	"github.com/zhouzirui/drafting/backend/internal/service/ai"
	"github.com/zhouzirui/drafting/backend/pkg/utils"
)

// Checker 生成客户端健康检查
type Checker interface {
	HealthCheck(ctx context.Context) ai.HealthStatus
}

// Handler 根路径与健康检查
type Handler struct {
	checker Checker
	now     func() time.Time
}

// New 创建健康检查处理器，checker 为空表示 AI 未配置
func New(checker Checker) *Handler {
	return &Handler{checker: checker, now: time.Now}
}

// RegisterRoutes 注册 /、/health 与仅管理员可见的 /health/ai
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/", h.handleRoot)
	r.Get("/health", h.handleHealth)
	r.With(middleware.RequireAuth, middleware.RequireAdmin).Get("/health/ai", h.handleAIHealth)
}

func (h *Handler) handleRoot(w http.ResponseWriter, r *http.Request) {
	utils.RespondJSON(w, http.StatusOK, map[string]string{
		"status":  "ok",
		"message": "GenAI Email & Report Drafting System API",
		"health":  "/health",
		"metrics": "/metrics",
	})
}

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	utils.RespondJSON(w, http.StatusOK, map[string]string{
		"status":  "healthy",
		"message": "GenAI Email & Report Drafting System",
	})
}

func (h *Handler) handleAIHealth(w http.ResponseWriter, r *http.Request) {
	if h.checker == nil {
		utils.RespondJSON(w, http.StatusServiceUnavailable, ai.HealthStatus{
			Status:    "unavailable",
			Error:     "AI service unavailable",
			Timestamp: h.now().UTC(),
		})
		return
	}

	status := h.checker.HealthCheck(r.Context())
	code := http.StatusOK
	if status.Status != "healthy" {
		code = http.StatusServiceUnavailable
	}
	utils.RespondJSON(w, code, status)
}
