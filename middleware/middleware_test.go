package middleware

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/netip"
	"testing"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"minesweeperAPI/internal/user"
)

type stubResolver map[string]*user.User

func (s stubResolver) ResolveSession(ctx context.Context, token string) (*user.User, error) {
	if u, ok := s[token]; ok {
		return u, nil
	}
	return nil, errors.New("unknown token")
}

var (
	player = &user.User{ID: "p1", Username: "player", Role: user.RolePlayer}
	admin  = &user.User{ID: "a1", Username: "admin", Role: user.RoleAdmin}
)

func whoAmI(w http.ResponseWriter, r *http.Request) {
	u, ok := UserFromContext(r.Context())
	if !ok {
		w.WriteHeader(http.StatusTeapot)
		return
	}
	w.Write([]byte(u.ID))
}

func TestAuthenticate(t *testing.T) {
	h := Authenticate(stubResolver{"good": player}, zap.NewNop())(http.HandlerFunc(whoAmI))

	cases := []struct {
		name   string
		header string
		value  string
		status int
		body   string
	}{
		{"bearer", "Authorization", "Bearer good", http.StatusOK, "p1"},
		{"legacy header", LegacyTokenHeader, "good", http.StatusOK, "p1"},
		{"missing", "", "", http.StatusUnauthorized, ""},
		{"no bearer prefix", "Authorization", "good", http.StatusUnauthorized, ""},
		{"empty bearer", "Authorization", "Bearer ", http.StatusUnauthorized, ""},
		{"unknown token", "Authorization", "Bearer bad", http.StatusUnauthorized, ""},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/protected", nil)
			if c.header != "" {
				req.Header.Set(c.header, c.value)
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)

			assert.Equal(t, c.status, rec.Code)
			if c.body != "" {
				assert.Equal(t, c.body, rec.Body.String())
			} else {
				assert.Contains(t, rec.Body.String(), `"error"`)
			}
		})
	}
}

func TestRequireRole(t *testing.T) {
	resolver := stubResolver{"player": player, "admin": admin}
	h := Authenticate(resolver, zap.NewNop())(RequireRole(user.RoleAdmin)(http.HandlerFunc(whoAmI)))

	for token, want := range map[string]int{"admin": http.StatusOK, "player": http.StatusForbidden, "": http.StatusUnauthorized} {
		req := httptest.NewRequest(http.MethodGet, "/admin", nil)
		if token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		assert.Equal(t, want, rec.Code, token)
	}

	// Without Authenticate in front there is no user to check.
	rec := httptest.NewRecorder()
	RequireRole(user.RoleAdmin)(http.HandlerFunc(whoAmI)).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/admin", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestRateLimiter(t *testing.T) {
	rl := NewRateLimiter(1, 2)
	h := rl.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))

	codes := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.RemoteAddr = "10.0.0.1:1234"
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		codes = append(codes, rec.Code)
	}
	assert.Equal(t, []int{200, 200, 429}, codes)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "10.0.0.2:1234"
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code, "buckets are per client")

	rl.evictIdle(0)
	rl.mu.Lock()
	assert.Empty(t, rl.visitors)
	rl.mu.Unlock()
}

func TestClientIP(t *testing.T) {
	trusted := []netip.Prefix{netip.MustParsePrefix("10.0.0.0/8")}

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "192.0.2.1:5555"
	assert.Equal(t, "192.0.2.1", clientIP(req, trusted))

	req.Header.Set("X-Forwarded-For", "203.0.113.9")
	assert.Equal(t, "192.0.2.1", clientIP(req, trusted), "header from an untrusted peer is ignored")
	assert.Equal(t, "192.0.2.1", clientIP(req, nil))

	req.RemoteAddr = "10.1.2.3:5555"
	req.Header.Set("X-Forwarded-For", "198.51.100.7, 203.0.113.9, 10.0.0.1")
	assert.Equal(t, "203.0.113.9", clientIP(req, trusted), "spoofed leftmost entries are skipped")

	req.Header.Set("X-Forwarded-For", "10.0.0.5")
	assert.Equal(t, "10.0.0.5", clientIP(req, trusted))

	req.Header.Del("X-Forwarded-For")
	assert.Equal(t, "10.1.2.3", clientIP(req, trusted))
}

func TestRateLimiterIgnoresSpoofedForwardedFor(t *testing.T) {
	rl := NewRateLimiter(1, 1)
	h := rl.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))

	codes := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.RemoteAddr = "192.0.2.50:1234"
		req.Header.Set("X-Forwarded-For", fmt.Sprintf("203.0.113.%d", i))
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		codes = append(codes, rec.Code)
	}
	assert.Equal(t, []int{200, 429, 429}, codes)
}

func TestBasicAuthMiddleware(t *testing.T) {
	h := BasicAuthMiddleware("prom", "secret")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	req.SetBasicAuth("prom", "wrong")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	req.SetBasicAuth("prom", "secret")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)

	disabled := BasicAuthMiddleware("", "")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	req.SetBasicAuth("", "")
	rec = httptest.NewRecorder()
	disabled.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestMonitorMiddlewareUsesRouteTemplate(t *testing.T) {
	reg := prometheus.NewRegistry()
	InitPrometheus(reg)

	r := mux.NewRouter()
	r.Use(MonitorMiddleware)
	r.HandleFunc("/items/{id}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	})

	before := testutil.ToFloat64(authRejections.WithLabelValues("403_forbidden"))
	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/items/42", nil))

	assert.Equal(t, 1.0, testutil.ToFloat64(httpRequestsTotal.WithLabelValues("/items/{id}", http.MethodGet, "403")))
	assert.Equal(t, before+1, testutil.ToFloat64(authRejections.WithLabelValues("403_forbidden")))
}

func TestRequestLogger(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	h := RequestLogger(zap.New(core))(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))

	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/api/v1/login", nil))

	require.Equal(t, 1, logs.Len())
	entry := logs.All()[0]
	assert.Equal(t, zap.ErrorLevel, entry.Level)
	assert.Equal(t, "/api/v1/login", entry.ContextMap()["path"])
	assert.EqualValues(t, 500, entry.ContextMap()["status"])
}
