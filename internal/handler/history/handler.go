package history

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/zhouzirui/drafting/backend/internal/auth"
	"github.com/zhouzirui/drafting/backend/internal/middleware"
	"github.com/zhouzirui/drafting/backend/internal/model/document"
	"github.com/zhouzirui/drafting/backend/internal/render"
	"github.com/zhouzirui/drafting/backend/internal/store"
	"github.com/zhouzirui/drafting/backend/pkg/logging"
	"github.com/zhouzirui/drafting/backend/pkg/utils"
)

const (
	defaultLimit = 50
	maxLimit     = 100
)

// Reader 按用户读取文档
type Reader interface {
	ListDocuments(ctx context.Context, filter document.ListFilter) ([]document.Document, error)
	CountDocuments(ctx context.Context, filter document.ListFilter) (int, error)
	GetDocument(ctx context.Context, id, userID int64) (document.Document, error)
}

// Handler 历史记录接口，所有查询都限定在当前用户
type Handler struct {
	docs   Reader
	logger logging.Logger
}

// New 创建历史记录处理器
func New(docs Reader, logger logging.Logger) *Handler {
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	return &Handler{docs: docs, logger: logger}
}

// RegisterRoutes 注册历史路由，调用方负责挂载鉴权
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/history", h.handleList)
	r.Get("/history/{id}", h.handleDetail)
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	principal, _ := auth.PrincipalFrom(r.Context())
	q := r.URL.Query()

	limit := queryInt(q.Get("limit"), defaultLimit)
	offset := queryInt(q.Get("offset"), 0)
	if limit < 1 || limit > maxLimit {
		utils.RespondError(w, http.StatusBadRequest, "limit must be between 1 and 100")
		return
	}
	if offset < 0 {
		utils.RespondError(w, http.StatusBadRequest, "offset must be non-negative")
		return
	}

	filter := document.ListFilter{UserID: principal.UserID, Limit: limit, Offset: offset}
	if raw := strings.TrimSpace(q.Get("doc_type")); raw != "" {
		docType, ok := document.ParseDocType(raw)
		if !ok {
			utils.RespondError(w, http.StatusBadRequest, `doc_type must be either "email" or "report"`)
			return
		}
		filter.DocType = docType
	}

	total, err := h.docs.CountDocuments(r.Context(), filter)
	if err != nil {
		h.internalError(w, r, err, "count documents")
		return
	}
	docs, err := h.docs.ListDocuments(r.Context(), filter)
	if err != nil {
		h.internalError(w, r, err, "list documents")
		return
	}

	summaries := make([]document.Summary, 0, len(docs))
	for _, d := range docs {
		summaries = append(summaries, d.Summarize())
	}

	utils.RespondJSON(w, http.StatusOK, map[string]any{
		"documents": summaries,
		"total":     total,
		"limit":     limit,
		"offset":    offset,
		"has_more":  offset+limit < total,
	})
}

type detailResponse struct {
	document.Document
	ContentHTML string `json:"content_html,omitempty"`
}

func (h *Handler) handleDetail(w http.ResponseWriter, r *http.Request) {
	principal, _ := auth.PrincipalFrom(r.Context())

	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		utils.RespondError(w, http.StatusNotFound, "Document not found")
		return
	}

	doc, err := h.docs.GetDocument(r.Context(), id, principal.UserID)
	if errors.Is(err, store.ErrNotFound) {
		utils.RespondError(w, http.StatusNotFound, "Document not found")
		return
	}
	if err != nil {
		h.internalError(w, r, err, "get document")
		return
	}

	resp := detailResponse{Document: doc}
	if strings.EqualFold(r.URL.Query().Get("format"), "html") {
		html, err := render.MarkdownToHTML(doc.Content)
		if err != nil {
			h.internalError(w, r, err, "render document")
			return
		}
		resp.ContentHTML = html
	}
	utils.RespondJSON(w, http.StatusOK, map[string]any{"document": resp})
}

func (h *Handler) internalError(w http.ResponseWriter, r *http.Request, err error, op string) {
	h.logger.WithError(err).WithFields(logging.Fields{
		"op":             op,
		"correlation_id": middleware.CorrelationIDFrom(r.Context()),
	}).Error("history request failed")
	utils.RespondError(w, http.StatusInternalServerError, "Internal server error")
}

// queryInt 解析失败时回退到默认值
func queryInt(raw string, fallback int) int {
	if raw == "" {
		return fallback
	}
	n, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return fallback
	}
	return n
}
