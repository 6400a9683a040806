package account

import (
	"context"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/zhouzirui/drafting/backend/internal/apperr"
	"github.com/zhouzirui/drafting/backend/internal/auth"
	"github.com/zhouzirui/drafting/backend/internal/middleware"
	"github.com/zhouzirui/drafting/backend/internal/model/user"
	accountservice "github.com/zhouzirui/drafting/backend/internal/service/account"
	"github.com/zhouzirui/drafting/backend/pkg/logging"
	"github.com/zhouzirui/drafting/backend/pkg/utils"
)

// Service 账号服务需要的能力
type Service interface {
	Register(ctx context.Context, in accountservice.Credentials) (accountservice.Session, error)
	Login(ctx context.Context, login, password string) (accountservice.Session, error)
	Me(ctx context.Context, id int64) (user.User, error)
}

// Handler 注册、登录与当前用户接口
type Handler struct {
	accounts Service
	logger   logging.Logger
}

// New 创建账号处理器
func New(accounts Service, logger logging.Logger) *Handler {
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	return &Handler{accounts: accounts, logger: logger}
}

// RegisterRoutes 注册 /auth 路由，/auth/me 需要登录
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/auth", func(r chi.Router) {
		r.Post("/register", h.handleRegister)
		r.Post("/login", h.handleLogin)
		r.With(middleware.RequireAuth).Get("/me", h.handleMe)
	})
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

func (h *Handler) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req accountservice.Credentials
	if err := utils.DecodeJSON(r, &req); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "Request body must be JSON")
		return
	}

	session, err := h.accounts.Register(r.Context(), req)
	if err != nil {
		h.respondAccountError(w, r, err)
		return
	}

	utils.RespondJSON(w, http.StatusCreated, map[string]any{
		"message":      "User registered successfully",
		"user":         session.User,
		"access_token": session.AccessToken,
	})
}

func (h *Handler) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := utils.DecodeJSON(r, &req); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "Request body must be JSON")
		return
	}

	session, err := h.accounts.Login(r.Context(), req.Username, req.Password)
	if err != nil {
		h.respondAccountError(w, r, err)
		return
	}

	utils.RespondJSON(w, http.StatusOK, map[string]any{
		"message":      "Login successful",
		"user":         session.User,
		"access_token": session.AccessToken,
	})
}

func (h *Handler) handleMe(w http.ResponseWriter, r *http.Request) {
	principal, _ := auth.PrincipalFrom(r.Context())
	u, err := h.accounts.Me(r.Context(), principal.UserID)
	if err != nil {
		h.respondAccountError(w, r, err)
		return
	}
	utils.RespondJSON(w, http.StatusOK, map[string]any{"user": u})
}

// respondAccountError 把服务层错误映射为状态码，不暴露内部错误信息
func (h *Handler) respondAccountError(w http.ResponseWriter, r *http.Request, err error) {
	var invalid *apperr.InvalidInputError
	switch {
	case errors.As(err, &invalid):
		utils.RespondError(w, http.StatusBadRequest, invalid.Error())
	case errors.Is(err, accountservice.ErrUserExists):
		utils.RespondError(w, http.StatusConflict, "User already exists")
	case errors.Is(err, accountservice.ErrInvalidCredentials):
		utils.RespondError(w, http.StatusUnauthorized, "Invalid username or password")
	case errors.Is(err, accountservice.ErrUserNotFound):
		utils.RespondError(w, http.StatusNotFound, "User not found")
	default:
		h.logger.WithError(err).WithField("correlation_id", middleware.CorrelationIDFrom(r.Context())).
			Error("account request failed")
		utils.RespondError(w, http.StatusInternalServerError, "Internal server error")
	}
}
