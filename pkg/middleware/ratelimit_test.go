package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/canopyhq/canopy/pkg/auth"
	"github.com/canopyhq/canopy/pkg/contextkeys"
)

func newTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	return mr, client
}

func TestRateLimiter_Allow(t *testing.T) {
	_, client := newTestRedis(t)
	ctx := context.Background()

	limiter := NewRateLimiter(client, &RateLimitConfig{
		RequestsPerWindow: 3,
		WindowDuration:    time.Minute,
	}, "test")

	for i := 0; i < 3; i++ {
		allowed, err := limiter.Allow(ctx, "key1")
		require.NoError(t, err)
		assert.True(t, allowed, "request %d should be allowed", i+1)
	}

	allowed, err := limiter.Allow(ctx, "key1")
	require.NoError(t, err)
	assert.False(t, allowed, "fourth request should be blocked")

	// A different key has its own window
	allowed, err = limiter.Allow(ctx, "key2")
	require.NoError(t, err)
	assert.True(t, allowed)
}

func TestRateLimiter_Remaining(t *testing.T) {
	_, client := newTestRedis(t)
	ctx := context.Background()

	limiter := NewRateLimiter(client, &RateLimitConfig{
		RequestsPerWindow: 5,
		WindowDuration:    time.Minute,
	}, "test")

	remaining, err := limiter.Remaining(ctx, "fresh")
	require.NoError(t, err)
	assert.Equal(t, 5, remaining)

	_, err = limiter.Allow(ctx, "fresh")
	require.NoError(t, err)

	remaining, err = limiter.Remaining(ctx, "fresh")
	require.NoError(t, err)
	assert.Equal(t, 4, remaining)
}

func TestRateLimiter_WindowReset(t *testing.T) {
	mr, client := newTestRedis(t)
	ctx := context.Background()

	limiter := NewRateLimiter(client, &RateLimitConfig{
		RequestsPerWindow: 1,
		WindowDuration:    time.Minute,
	}, "test")

	allowed, err := limiter.Allow(ctx, "key")
	require.NoError(t, err)
	assert.True(t, allowed)

	allowed, err = limiter.Allow(ctx, "key")
	require.NoError(t, err)
	assert.False(t, allowed)

	mr.FastForward(2 * time.Minute)

	allowed, err = limiter.Allow(ctx, "key")
	require.NoError(t, err)
	assert.True(t, allowed)
}

func TestRateLimitMiddleware(t *testing.T) {
	_, client := newTestRedis(t)

	m := NewRateLimitMiddleware(client)
	handler := m.Handler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	t.Run("sets rate limit headers", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/projects", nil)
		req.RemoteAddr = "10.0.0.1:1234"
		rec := httptest.NewRecorder()

		handler.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusOK, rec.Code)
		assert.NotEmpty(t, rec.Header().Get("X-RateLimit-Limit"))
		assert.NotEmpty(t, rec.Header().Get("X-RateLimit-Remaining"))
	})

	t.Run("keys authenticated callers by user id", func(t *testing.T) {
		identity := &auth.Identity{UserID: "22222222-2222-2222-2222-222222222222", Username: "ada"}

		req := httptest.NewRequest(http.MethodGet, "/api/v1/projects", nil)
		req = req.WithContext(contextkeys.WithIdentity(req.Context(), identity))
		rec := httptest.NewRecorder()

		handler.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusOK, rec.Code)
		// Authenticated limit is higher than the anonymous one
		assert.Equal(t, "1000", rec.Header().Get("X-RateLimit-Limit"))
	})

	t.Run("returns 429 when exhausted", func(t *testing.T) {
		limited := &RateLimitMiddleware{
			redis:           client,
			userLimiter:     NewRateLimiter(client, &RateLimitConfig{RequestsPerWindow: 1, WindowDuration: time.Minute}, "t:user"),
			anonLimiter:     NewRateLimiter(client, &RateLimitConfig{RequestsPerWindow: 1, WindowDuration: time.Minute}, "t:anon"),
			fallbackEnabled: true,
		}
		h := limited.Handler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
		}))

		req := httptest.NewRequest(http.MethodGet, "/api/v1/projects", nil)
		req.RemoteAddr = "10.0.0.9:1234"

		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusOK, rec.Code)

		rec = httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusTooManyRequests, rec.Code)
		assert.NotEmpty(t, rec.Header().Get("Retry-After"))
	})

	t.Run("fails open when redis is down", func(t *testing.T) {
		mr2, client2 := newTestRedis(t)
		m2 := NewRateLimitMiddleware(client2)
		h := m2.Handler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
		}))

		mr2.Close()

		req := httptest.NewRequest(http.MethodGet, "/api/v1/projects", nil)
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusOK, rec.Code)
	})
}
