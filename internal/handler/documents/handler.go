package documents

import (
	"context"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/zhouzirui/drafting/backend/internal/apperr"
	"github.com/zhouzirui/drafting/backend/internal/auth"
	"github.com/zhouzirui/drafting/backend/internal/middleware"
	"github.com/zhouzirui/drafting/backend/internal/model/user"
	"github.com/zhouzirui/drafting/backend/internal/service/generation"
	"github.com/zhouzirui/drafting/backend/pkg/logging"
	"github.com/zhouzirui/drafting/backend/pkg/utils"
)

// Generator 邮件与报告生成能力
type Generator interface {
	GenerateEmail(ctx context.Context, principal user.Principal, req generation.EmailRequest, correlationID string) (generation.Result, error)
	GenerateReport(ctx context.Context, principal user.Principal, req generation.ReportRequest, correlationID string) (generation.Result, error)
}

// Handler 文档生成接口
type Handler struct {
	generator Generator
	logger    logging.Logger
}

// New 创建文档处理器
func New(generator Generator, logger logging.Logger) *Handler {
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	return &Handler{generator: generator, logger: logger}
}

// RegisterRoutes 注册生成路由，调用方负责挂载鉴权与限流
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Post("/documents/email:generate", h.handleGenerateEmail)
	r.Post("/documents/report:generate", h.handleGenerateReport)
}

func (h *Handler) handleGenerateEmail(w http.ResponseWriter, r *http.Request) {
	var req generation.EmailRequest
	if err := utils.DecodeJSON(r, &req); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "Request body must be JSON")
		return
	}

	principal, _ := auth.PrincipalFrom(r.Context())
	result, err := h.generator.GenerateEmail(r.Context(), principal, req, middleware.CorrelationIDFrom(r.Context()))
	if err != nil {
		h.respondGenerationError(w, r, err)
		return
	}
	h.respondCreated(w, "Email generated successfully", result)
}

func (h *Handler) handleGenerateReport(w http.ResponseWriter, r *http.Request) {
	var req generation.ReportRequest
	if err := utils.DecodeJSON(r, &req); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "Request body must be JSON")
		return
	}

	principal, _ := auth.PrincipalFrom(r.Context())
	result, err := h.generator.GenerateReport(r.Context(), principal, req, middleware.CorrelationIDFrom(r.Context()))
	if err != nil {
		h.respondGenerationError(w, r, err)
		return
	}
	h.respondCreated(w, "Report generated successfully", result)
}

func (h *Handler) respondCreated(w http.ResponseWriter, message string, result generation.Result) {
	utils.RespondJSON(w, http.StatusCreated, map[string]any{
		"message":        message,
		"document":       result.Document,
		"request_id":     result.CorrelationID,
		"correlation_id": result.CorrelationID,
	})
}

func (h *Handler) respondGenerationError(w http.ResponseWriter, r *http.Request, err error) {
	var (
		invalid *apperr.InvalidInputError
		failure *generation.FailureError
	)
	switch {
	case errors.As(err, &invalid):
		utils.RespondError(w, http.StatusBadRequest, invalid.Error())
	case errors.Is(err, generation.ErrServiceUnavailable):
		utils.RespondError(w, http.StatusServiceUnavailable, "AI service unavailable")
	case errors.As(err, &failure):
		// 失败原因已在服务层记录，这里只返回通用提示
		utils.RespondError(w, http.StatusInternalServerError, failure.Error())
	default:
		h.logger.WithError(err).WithField("correlation_id", middleware.CorrelationIDFrom(r.Context())).
			Error("document request failed")
		utils.RespondError(w, http.StatusInternalServerError, "Internal server error")
	}
}
