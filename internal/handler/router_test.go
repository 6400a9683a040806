package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/zhouzirui/drafting/backend/internal/metrics"
	middlewarePkg "github.com/zhouzirui/drafting/backend/internal/middleware"
	"github.com/zhouzirui/drafting/backend/internal/model/audit"
	"github.com/zhouzirui/drafting/backend/internal/service/account"
	"github.com/zhouzirui/drafting/backend/internal/service/ai"
	"github.com/zhouzirui/drafting/backend/internal/service/auditfeed"
	"github.com/zhouzirui/drafting/backend/internal/service/generation"
	"github.com/zhouzirui/drafting/backend/internal/store"
	"github.com/zhouzirui/drafting/backend/pkg/logging"
)

var testSecret = []byte("router-test-secret")

type stubBackend struct {
	text string
	err  error
}

func (b *stubBackend) Generate(context.Context, ai.BackendRequest) (ai.BackendResponse, error) {
	if b.err != nil {
		return ai.BackendResponse{}, b.err
	}
	return ai.BackendResponse{Text: b.text}, nil
}

func (b *stubBackend) Name() string  { return "stub" }
func (b *stubBackend) Model() string { return "stub-model" }

type testEnv struct {
	router   http.Handler
	store    *store.MemoryStore
	accounts *account.Service
	hub      *auditfeed.Hub
	backend  *stubBackend
}

type envOption func(*Deps, *testEnv)

func withoutAI() envOption {
	return func(d *Deps, _ *testEnv) {
		d.Generation = generation.NewService(nil, d.Store.(*store.MemoryStore), nil, nil)
		d.AIHealth = nil
	}
}

func withGenerationLimit(spec string) envOption {
	return func(d *Deps, _ *testEnv) {
		limits, err := middlewarePkg.ParseLimits(spec)
		if err != nil {
			panic(err)
		}
		d.GenerationLimit = middlewarePkg.NewRateLimiter("generation", limits, middlewarePkg.NewMemoryCounterStore(), nil)
	}
}

func newTestEnv(t *testing.T, opts ...envOption) *testEnv {
	t.Helper()
	logger := logging.NewNopLogger()
	hub := auditfeed.NewHub(16, logger)
	t.Cleanup(hub.Close)

	repo := store.NewMemoryStore(store.WithAuditObserver(hub.Publish))
	accounts := account.NewService(repo, testSecret, time.Hour, logger).WithBcryptCost(bcrypt.MinCost)
	backend := &stubBackend{text: "# Draft\n\nHello."}
	client := ai.NewClient(backend, ai.Options{Timeout: time.Second}, logger)

	env := &testEnv{store: repo, accounts: accounts, hub: hub, backend: backend}
	deps := Deps{
		Accounts:       accounts,
		Generation:     generation.NewService(client, repo, logger, nil),
		Store:          repo,
		AIHealth:       client,
		Feed:           hub,
		Metrics:        metrics.New(),
		JWTSecret:      testSecret,
		AllowedOrigins: []string{"http://localhost:5173"},
		Logger:         logger,
	}
	for _, opt := range opts {
		opt(&deps, env)
	}
	env.router = NewRouter(deps)
	return env
}

func (e *testEnv) do(t *testing.T, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(payload)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)
	return rec
}

func (e *testEnv) register(t *testing.T, username string) string {
	t.Helper()
	rec := e.do(t, http.MethodPost, "/api/auth/register", "", map[string]string{
		"username": username,
		"email":    username + "@example.com",
		"password": "password123",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var body struct {
		AccessToken string `json:"access_token"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body.AccessToken
}

func (e *testEnv) admin(t *testing.T) string {
	t.Helper()
	created, err := e.accounts.BootstrapAdmin(context.Background(), account.Credentials{
		Username: "root",
		Email:    "root@example.com",
		Password: "rootpass123",
	})
	require.NoError(t, err)
	require.True(t, created)
	session, err := e.accounts.Login(context.Background(), "root", "rootpass123")
	require.NoError(t, err)
	return session.AccessToken
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body), rec.Body.String())
	return body
}

func TestHealthAndRoot(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "healthy", decode(t, rec)["status"])
	assert.NotEmpty(t, rec.Header().Get(middlewarePkg.RequestIDHeader))

	rec = env.do(t, http.MethodGet, "/", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = env.do(t, http.MethodGet, "/metrics", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "drafting_http_requests_total")
}

func TestAIHealthRequiresAdmin(t *testing.T) {
	env := newTestEnv(t)
	userToken := env.register(t, "alice")

	assert.Equal(t, http.StatusUnauthorized, env.do(t, http.MethodGet, "/health/ai", "", nil).Code)
	assert.Equal(t, http.StatusForbidden, env.do(t, http.MethodGet, "/health/ai", userToken, nil).Code)

	rec := env.do(t, http.MethodGet, "/health/ai", env.admin(t), nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "healthy", decode(t, rec)["status"])
}

func TestAIHealthUnavailableWithoutBackend(t *testing.T) {
	env := newTestEnv(t, withoutAI())
	rec := env.do(t, http.MethodGet, "/health/ai", env.admin(t), nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestRegisterLoginMe(t *testing.T) {
	env := newTestEnv(t)
	env.register(t, "alice")

	rec := env.do(t, http.MethodPost, "/api/auth/register", "", map[string]string{
		"username": "alice", "email": "other@example.com", "password": "password123",
	})
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "User already exists", decode(t, rec)["error"])

	rec = env.do(t, http.MethodPost, "/api/auth/login", "", map[string]string{"username": "alice", "password": "wrongpass1"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "Invalid username or password", decode(t, rec)["error"])

	rec = env.do(t, http.MethodPost, "/api/auth/login", "", map[string]string{"username": "alice@example.com", "password": "password123"})
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, "Login successful", body["message"])
	token := body["access_token"].(string)

	rec = env.do(t, http.MethodGet, "/api/auth/me", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	me := decode(t, rec)["user"].(map[string]any)
	assert.Equal(t, "alice", me["username"])
	assert.Equal(t, "USER", me["role"])
	assert.NotContains(t, rec.Body.String(), "password")
}

func TestRegisterValidation(t *testing.T) {
	env := newTestEnv(t)

	req := httptest.NewRequest(http.MethodPost, "/api/auth/register", strings.NewReader("not json"))
	rec := httptest.NewRecorder()
	env.router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "Request body must be JSON", decode(t, rec)["error"])

	rec = env.do(t, http.MethodPost, "/api/auth/register", "", map[string]string{"username": "bob"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "Username, email, and password are required", decode(t, rec)["error"])
}

func TestGenerateEmailEndToEnd(t *testing.T) {
	env := newTestEnv(t)
	token := env.register(t, "alice")

	req := httptest.NewRequest(http.MethodPost, "/api/documents/email:generate",
		strings.NewReader(`{"context":"ask for a raise","recipient":"Boss","subject":"Raise","tone":"Formal"}`))
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set(middlewarePkg.RequestIDHeader, "req-123")
	rec := httptest.NewRecorder()
	env.router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	body := decode(t, rec)
	assert.Equal(t, "Email generated successfully", body["message"])
	assert.Equal(t, "req-123", body["request_id"])
	assert.Equal(t, "req-123", body["correlation_id"])
	doc := body["document"].(map[string]any)
	assert.Equal(t, "email", doc["doc_type"])
	assert.Equal(t, "formal", doc["tone"])
	assert.Equal(t, "Raise", doc["title"])
	assert.Equal(t, "# Draft\n\nHello.", doc["content"])
}

func TestGenerateRequiresAuth(t *testing.T) {
	env := newTestEnv(t)
	rec := env.do(t, http.MethodPost, "/api/documents/report:generate", "", map[string]string{"topic": "Q3"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "Authorization token required", decode(t, rec)["error"])
}

func TestGenerateErrorMapping(t *testing.T) {
	env := newTestEnv(t)
	token := env.register(t, "alice")

	rec := env.do(t, http.MethodPost, "/api/documents/report:generate", token, map[string]string{"topic": ""})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.do(t, http.MethodPost, "/api/documents/report:generate", token, map[string]string{"topic": "Q3", "structure": "haiku"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	env.backend.err = errors.New("upstream exploded with secret details")
	rec = env.do(t, http.MethodPost, "/api/documents/report:generate", token, map[string]string{"topic": "Q3"})
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "Failed to generate report. Please try again.", decode(t, rec)["error"])
	assert.NotContains(t, rec.Body.String(), "secret")
}

func TestGenerateUnavailableWithoutBackend(t *testing.T) {
	env := newTestEnv(t, withoutAI())
	token := env.register(t, "alice")

	rec := env.do(t, http.MethodPost, "/api/documents/email:generate", token, map[string]string{"context": "hello"})
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, "AI service unavailable", decode(t, rec)["error"])
}

func TestGenerationRateLimit(t *testing.T) {
	env := newTestEnv(t, withGenerationLimit("1 per minute"))
	token := env.register(t, "alice")

	rec := env.do(t, http.MethodPost, "/api/documents/email:generate", token, map[string]string{"context": "hello"})
	assert.Equal(t, http.StatusCreated, rec.Code)

	rec = env.do(t, http.MethodPost, "/api/documents/email:generate", token, map[string]string{"context": "hello"})
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "Rate limit exceeded", decode(t, rec)["error"])

	// 历史接口不受生成限流影响
	assert.Equal(t, http.StatusOK, env.do(t, http.MethodGet, "/api/history", token, nil).Code)
}

func TestHistoryListAndDetail(t *testing.T) {
	env := newTestEnv(t)
	alice := env.register(t, "alice")
	bob := env.register(t, "bobby")

	for i := 0; i < 3; i++ {
		rec := env.do(t, http.MethodPost, "/api/documents/email:generate", alice, map[string]string{"context": "hello"})
		require.Equal(t, http.StatusCreated, rec.Code)
	}
	rec := env.do(t, http.MethodPost, "/api/documents/report:generate", alice, map[string]string{"topic": "Q3"})
	require.Equal(t, http.StatusCreated, rec.Code)
	reportID := int64(decode(t, rec)["document"].(map[string]any)["id"].(float64))

	rec = env.do(t, http.MethodGet, "/api/history?limit=2&doc_type=email", alice, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode(t, rec)
	assert.Len(t, body["documents"], 2)
	assert.Equal(t, float64(3), body["total"])
	assert.Equal(t, true, body["has_more"])

	rec = env.do(t, http.MethodGet, "/api/history", bob, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, float64(0), decode(t, rec)["total"])

	for _, q := range []string{"limit=0", "limit=101", "offset=-1", "doc_type=memo"} {
		assert.Equal(t, http.StatusBadRequest, env.do(t, http.MethodGet, "/api/history?"+q, alice, nil).Code, q)
	}

	path := "/api/history/" + jsonInt(reportID)
	assert.Equal(t, http.StatusNotFound, env.do(t, http.MethodGet, path, bob, nil).Code)

	rec = env.do(t, http.MethodGet, path+"?format=html", alice, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	doc := decode(t, rec)["document"].(map[string]any)
	assert.Equal(t, "report", doc["doc_type"])
	assert.Contains(t, doc["content_html"], "<h1>Draft</h1>")
}

func jsonInt(n int64) string {
	b, _ := json.Marshal(n)
	return string(b)
}

func TestAdminEndpoints(t *testing.T) {
	env := newTestEnv(t)
	userToken := env.register(t, "alice")
	adminToken := env.admin(t)

	assert.Equal(t, http.StatusForbidden, env.do(t, http.MethodGet, "/api/admin/ping", userToken, nil).Code)

	rec := env.do(t, http.MethodGet, "/api/admin/ping", adminToken, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Admin access verified", decode(t, rec)["message"])

	rec = env.do(t, http.MethodGet, "/api/admin/audit-logs?limit=500", adminToken, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, float64(100), body["limit"])
	logs := body["audit_logs"].([]any)
	require.NotEmpty(t, logs)
	assert.Equal(t, audit.ActionLoginSuccess, logs[0].(map[string]any)["action"])
	assert.Equal(t, "root", logs[0].(map[string]any)["username"])

	rec = env.do(t, http.MethodGet, "/api/admin/summary", adminToken, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	summary := decode(t, rec)
	assert.Equal(t, float64(2), summary["total_users"])
	assert.Equal(t, float64(0), summary["total_documents"])

	rec = env.do(t, http.MethodPost, "/api/admin/users", adminToken, map[string]string{
		"username": "second", "email": "second@example.com", "password": "password123",
	})
	require.Equal(t, http.StatusCreated, rec.Code)
	created := decode(t, rec)["user"].(map[string]any)
	assert.Equal(t, "ADMIN", created["role"])

	rec = env.do(t, http.MethodPost, "/api/admin/users", adminToken, map[string]string{
		"username": "second", "email": "second@example.com", "password": "password123",
	})
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestAdminAuditStream(t *testing.T) {
	env := newTestEnv(t)
	adminToken := env.admin(t)

	srv := httptest.NewServer(env.router)
	defer srv.Close()

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/admin/audit-logs/stream?access_token=" + adminToken
	conn, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()
	assert.Equal(t, http.StatusSwitchingProtocols, resp.StatusCode)

	env.register(t, "alice")

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var ev audit.Event
	require.NoError(t, conn.ReadJSON(&ev))
	assert.Equal(t, audit.ActionUserRegistered, ev.Action)
	require.NotNil(t, ev.Details)
	assert.Equal(t, "New user registered: alice", *ev.Details)
}

func TestAdminAuditStreamRejectsUser(t *testing.T) {
	env := newTestEnv(t)
	userToken := env.register(t, "alice")

	srv := httptest.NewServer(env.router)
	defer srv.Close()

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/admin/audit-logs/stream?access_token=" + userToken
	_, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
}
