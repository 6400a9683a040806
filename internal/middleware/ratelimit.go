package middleware

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/zhouzirui/drafting/backend/internal/auth"
	"github.com/zhouzirui/drafting/backend/pkg/logging"
	"github.com/zhouzirui/drafting/backend/pkg/utils"
)

// Limit is a fixed-window quota such as "10 per minute".
type Limit struct {
	Count  int64
	Window time.Duration
	raw    string
}

func (l Limit) String() string { return l.raw }

var windowUnits = map[string]time.Duration{
	"second": time.Second,
	"minute": time.Minute,
	"hour":   time.Hour,
	"day":    24 * time.Hour,
}

// ParseLimits parses "200 per day, 50 per hour" style specs.
func ParseLimits(spec string) ([]Limit, error) {
	var limits []Limit
	for _, part := range strings.FieldsFunc(spec, func(r rune) bool { return r == ',' || r == ';' }) {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		fields := strings.Fields(strings.ToLower(part))
		if len(fields) != 3 || (fields[1] != "per" && fields[1] != "/") {
			return nil, fmt.Errorf("invalid rate limit %q", part)
		}
		count, err := strconv.ParseInt(fields[0], 10, 64)
		if err != nil || count <= 0 {
			return nil, fmt.Errorf("invalid rate limit count in %q", part)
		}
		window, ok := windowUnits[strings.TrimSuffix(fields[2], "s")]
		if !ok {
			return nil, fmt.Errorf("invalid rate limit window in %q", part)
		}
		limits = append(limits, Limit{Count: count, Window: window, raw: strings.Join(fields, " ")})
	}
	if len(limits) == 0 {
		return nil, fmt.Errorf("empty rate limit spec")
	}
	return limits, nil
}

// CounterStore increments fixed-window counters.
type CounterStore interface {
	Increment(ctx context.Context, key string, window time.Duration) (int64, error)
}

// NewCounterStore selects storage from a URL: memory:// or redis://.
func NewCounterStore(ctx context.Context, storageURL string) (CounterStore, error) {
	switch {
	case storageURL == "" || strings.HasPrefix(storageURL, "memory://"):
		return NewMemoryCounterStore(), nil
	case strings.HasPrefix(storageURL, "redis://"), strings.HasPrefix(storageURL, "rediss://"):
		opts, err := goredis.ParseURL(storageURL)
		if err != nil {
			return nil, fmt.Errorf("parse redis url: %w", err)
		}
		client := goredis.NewClient(opts)
		if err := client.Ping(ctx).Err(); err != nil {
			_ = client.Close()
			return nil, fmt.Errorf("ping redis: %w", err)
		}
		return NewRedisCounterStore(client), nil
	default:
		return nil, fmt.Errorf("unsupported rate limit storage %q", storageURL)
	}
}

type memoryCounter struct {
	count   int64
	expires time.Time
}

// MemoryCounterStore keeps counters in process.
type MemoryCounterStore struct {
	mu       sync.Mutex
	counters map[string]memoryCounter
	now      func() time.Time
	calls    int
}

func NewMemoryCounterStore() *MemoryCounterStore {
	return &MemoryCounterStore{counters: make(map[string]memoryCounter), now: time.Now}
}

func (m *MemoryCounterStore) Increment(_ context.Context, key string, window time.Duration) (int64, error) {
	now := m.now()
	windowKey, end := windowFor(key, window, now)

	m.mu.Lock()
	defer m.mu.Unlock()

	m.calls++
	if m.calls%1024 == 0 {
		for k, c := range m.counters {
			if !now.Before(c.expires) {
				delete(m.counters, k)
			}
		}
	}

	c := m.counters[windowKey]
	c.count++
	c.expires = end
	m.counters[windowKey] = c
	return c.count, nil
}

// RedisCounterStore shares counters across instances.
type RedisCounterStore struct {
	client goredis.UniversalClient
	now    func() time.Time
}

func NewRedisCounterStore(client goredis.UniversalClient) *RedisCounterStore {
	return &RedisCounterStore{client: client, now: time.Now}
}

func (s *RedisCounterStore) Increment(ctx context.Context, key string, window time.Duration) (int64, error) {
	windowKey, _ := windowFor(key, window, s.now())

	pipe := s.client.TxPipeline()
	incr := pipe.Incr(ctx, windowKey)
	pipe.Expire(ctx, windowKey, window)
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, err
	}
	return incr.Val(), nil
}

func windowFor(key string, window time.Duration, now time.Time) (string, time.Time) {
	start := now.Truncate(window)
	return fmt.Sprintf("ratelimit:%s:%d:%d", key, int64(window/time.Second), start.Unix()), start.Add(window)
}

// RateLimiter enforces a set of limits per caller.
type RateLimiter struct {
	scope  string
	limits []Limit
	store  CounterStore
	logger logging.Logger
}

// NewRateLimiter builds a limiter; scope keeps counters of different limiters apart.
func NewRateLimiter(scope string, limits []Limit, store CounterStore, logger logging.Logger) *RateLimiter {
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	return &RateLimiter{scope: scope, limits: limits, store: store, logger: logger}
}

// Handler returns 429 once any limit is exceeded. Storage errors fail open.
func (l *RateLimiter) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := rateLimitKey(r)
		for i, limit := range l.limits {
			counterKey := fmt.Sprintf("%s:%s:%d", l.scope, key, i)
			count, err := l.store.Increment(r.Context(), counterKey, limit.Window)
			if err != nil {
				l.logger.WithError(err).WithField("scope", l.scope).Warn("rate limit storage unavailable")
				continue
			}
			if count > limit.Count {
				w.Header().Set("Retry-After", strconv.Itoa(int(limit.Window/time.Second)))
				utils.RespondJSON(w, http.StatusTooManyRequests, map[string]string{
					"error":   "Rate limit exceeded",
					"message": "Too many requests. Please try again later.",
				})
				return
			}
		}
		next.ServeHTTP(w, r)
	})
}

func rateLimitKey(r *http.Request) string {
	if p, ok := auth.PrincipalFrom(r.Context()); ok {
		return "user:" + strconv.FormatInt(p.UserID, 10)
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
