package middleware

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zhouzirui/drafting/backend/internal/auth"
	"github.com/zhouzirui/drafting/backend/internal/model/user"
)

func TestParseLimits(t *testing.T) {
	limits, err := ParseLimits("200 per day, 50 per hour")
	require.NoError(t, err)
	require.Len(t, limits, 2)
	assert.Equal(t, int64(200), limits[0].Count)
	assert.Equal(t, 24*time.Hour, limits[0].Window)
	assert.Equal(t, int64(50), limits[1].Count)
	assert.Equal(t, time.Hour, limits[1].Window)

	limits, err = ParseLimits("10 per minutes")
	require.NoError(t, err)
	assert.Equal(t, time.Minute, limits[0].Window)
	assert.Equal(t, "10 per minutes", limits[0].String())

	for _, bad := range []string{"", "ten per minute", "10 per fortnight", "10 minute", "0 per second"} {
		_, err := ParseLimits(bad)
		assert.Error(t, err, bad)
	}
}

func TestMemoryCounterStoreWindows(t *testing.T) {
	store := NewMemoryCounterStore()
	now := time.Date(2026, 1, 1, 10, 0, 0, 0, time.UTC)
	store.now = func() time.Time { return now }

	ctx := context.Background()
	for i := int64(1); i <= 3; i++ {
		n, err := store.Increment(ctx, "k", time.Minute)
		require.NoError(t, err)
		assert.Equal(t, i, n)
	}

	now = now.Add(time.Minute)
	n, err := store.Increment(ctx, "k", time.Minute)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

func TestRedisCounterStore(t *testing.T) {
	mr := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	store := NewRedisCounterStore(client)
	ctx := context.Background()

	n, err := store.Increment(ctx, "k", time.Minute)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
	n, err = store.Increment(ctx, "k", time.Minute)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	keys := mr.Keys()
	require.Len(t, keys, 1)
	assert.Equal(t, time.Minute, mr.TTL(keys[0]))
}

func TestNewCounterStoreFromURL(t *testing.T) {
	ctx := context.Background()

	s, err := NewCounterStore(ctx, "memory://")
	require.NoError(t, err)
	assert.IsType(t, &MemoryCounterStore{}, s)

	mr := miniredis.RunT(t)
	s, err = NewCounterStore(ctx, "redis://"+mr.Addr()+"/0")
	require.NoError(t, err)
	assert.IsType(t, &RedisCounterStore{}, s)

	_, err = NewCounterStore(ctx, "memcached://localhost")
	assert.Error(t, err)
}

func TestRateLimiterRejectsOverLimit(t *testing.T) {
	limits, err := ParseLimits("2 per minute")
	require.NoError(t, err)
	limiter := NewRateLimiter("test", limits, NewMemoryCounterStore(), nil)
	h := limiter.Handler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	call := func(remote string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.RemoteAddr = remote
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		return rec
	}

	assert.Equal(t, http.StatusOK, call("10.0.0.1:1000").Code)
	assert.Equal(t, http.StatusOK, call("10.0.0.1:1001").Code)

	rec := call("10.0.0.1:1002")
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "60", rec.Header().Get("Retry-After"))
	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "Rate limit exceeded", body["error"])
	assert.Equal(t, "Too many requests. Please try again later.", body["message"])

	// 其他来源不受影响
	assert.Equal(t, http.StatusOK, call("10.0.0.2:1000").Code)
}

func TestRateLimiterCountsSameWindowLimitsSeparately(t *testing.T) {
	limits, err := ParseLimits("3 per minute, 5 per minute")
	require.NoError(t, err)
	limiter := NewRateLimiter("test", limits, NewMemoryCounterStore(), nil)
	h := limiter.Handler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	codes := make([]int, 0, 4)
	for i := 0; i < 4; i++ {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.RemoteAddr = "10.0.0.9:1000"
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		codes = append(codes, rec.Code)
	}

	assert.Equal(t, []int{http.StatusOK, http.StatusOK, http.StatusOK, http.StatusTooManyRequests}, codes)
}

func TestRateLimitKeyPrefersPrincipal(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "192.0.2.1:5555"
	assert.Equal(t, "192.0.2.1", rateLimitKey(req))

	req = req.WithContext(auth.WithPrincipal(req.Context(), user.Principal{UserID: 7, Role: user.RoleUser}))
	assert.Equal(t, "user:7", rateLimitKey(req))
}

type failingStore struct{}

func (failingStore) Increment(context.Context, string, time.Duration) (int64, error) {
	return 0, assert.AnError
}

func TestRateLimiterFailsOpen(t *testing.T) {
	limits, _ := ParseLimits("1 per second")
	h := NewRateLimiter("test", limits, failingStore{}, nil).Handler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	for i := 0; i < 3; i++ {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
		assert.Equal(t, http.StatusNoContent, rec.Code)
	}
}
