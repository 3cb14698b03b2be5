package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"cod-fulfillment/config"
	"cod-fulfillment/internal/domain"
	"cod-fulfillment/pkg/utils"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"
)

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, ok := UserFromContext(r.Context())
		if ok {
			w.Header().Set("X-User", user.ID+"/"+user.Role)
		}
		w.WriteHeader(http.StatusOK)
	})
}

func TestAuthAndRequireRole(t *testing.T) {
	utils.SetSecret("test-secret")
	agentToken, err := utils.GenerateJWT("agent-7", "a@example.com", domain.RoleAgent, time.Hour)
	require.NoError(t, err)
	customerToken, err := utils.GenerateJWT("cust-1", "c@example.com", domain.RoleCustomer, time.Hour)
	require.NoError(t, err)

	h := AuthMiddleware(RequireRole(domain.RoleAgent, domain.RoleAdmin)(okHandler()))

	tests := []struct {
		name   string
		token  string
		status int
	}{
		{name: "no token", status: http.StatusUnauthorized},
		{name: "garbage token", token: "abc.def.ghi", status: http.StatusUnauthorized},
		{name: "wrong role", token: customerToken, status: http.StatusForbidden},
		{name: "agent", token: agentToken, status: http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if tt.token != "" {
				req.Header.Set("Authorization", "Bearer "+tt.token)
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)
			assert.Equal(t, tt.status, rec.Code)
		})
	}

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(&http.Cookie{Name: "accessToken", Value: agentToken})
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "agent-7/agent", rec.Header().Get("X-User"))
}

func TestCORS(t *testing.T) {
	h := NewCORSMiddleware(&config.Config{AllowedOrigin: "https://ops.example.com, https://agents.example.com"})(okHandler())

	req := httptest.NewRequest(http.MethodOptions, "/api/v1/cod/orders", nil)
	req.Header.Set("Origin", "https://agents.example.com")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "https://agents.example.com", rec.Header().Get("Access-Control-Allow-Origin"))

	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Origin", "https://evil.example.com")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestRateLimiter(t *testing.T) {
	rl := NewRateLimiter(context.Background(), rate.Limit(1), 2, time.Minute, time.Minute)
	defer rl.Shutdown()
	h := rl.Middleware()(okHandler())

	codes := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("X-Forwarded-For", "203.0.113.9, 10.0.0.1")
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		codes = append(codes, rec.Code)
	}
	assert.Equal(t, []int{http.StatusOK, http.StatusOK, http.StatusTooManyRequests}, codes)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Forwarded-For", "198.51.100.1")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code, "limits are per client")
}

func TestRateLimiter_KeysAuthenticatedCallersBySubject(t *testing.T) {
	utils.SetSecret("test-secret")
	rl := NewRateLimiter(context.Background(), rate.Limit(1), 1, time.Minute, time.Minute)
	defer rl.Shutdown()
	h := rl.Middleware()(okHandler())

	call := func(token string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/agent/cod/orders/x/outcome", nil)
		req.Header.Set("X-Forwarded-For", "203.0.113.50")
		if token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		return rec
	}

	first, err := utils.GenerateJWT("agent-1", "a1@example.com", domain.RoleAgent, time.Hour)
	require.NoError(t, err)
	second, err := utils.GenerateJWT("agent-2", "a2@example.com", domain.RoleAgent, time.Hour)
	require.NoError(t, err)

	assert.Equal(t, http.StatusOK, call(first).Code)
	assert.Equal(t, http.StatusOK, call(second).Code, "same address, different agent")

	rec := call(first)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "1", rec.Header().Get("Retry-After"))

	assert.Equal(t, http.StatusOK, call("").Code, "anonymous callers use the address bucket")
}

func TestRateLimiter_EvictsIdleBuckets(t *testing.T) {
	rl := NewRateLimiter(context.Background(), rate.Limit(1), 1, time.Hour, time.Minute)
	defer rl.Shutdown()

	now := time.Date(2026, 10, 16, 10, 0, 0, 0, time.UTC)
	rl.now = func() time.Time { return now }
	rl.limiterFor("ip:203.0.113.9")

	now = now.Add(2 * time.Minute)
	rl.limiterFor("ip:198.51.100.1")
	rl.evictIdle()

	assert.Len(t, rl.buckets, 1)
	assert.Contains(t, rl.buckets, "ip:198.51.100.1")
}

func TestRequestLogger_PropagatesRequestID(t *testing.T) {
	h := RequestLogger(okHandler())

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Request-ID", "abc123")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, "abc123", rec.Header().Get("X-Request-ID"))

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Len(t, rec.Header().Get("X-Request-ID"), 8)
}
