package main

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.uber.org/zap/zaptest"

	"github.com/BaSui01/diagramgate/api/handlers"
	"github.com/BaSui01/diagramgate/config"
	"github.com/BaSui01/diagramgate/internal/metrics"
	"github.com/BaSui01/diagramgate/types"
)

var (
	metricsOnce     sync.Once
	sharedCollector *metrics.Collector
)

func testCollector() *metrics.Collector {
	metricsOnce.Do(func() { sharedCollector = metrics.NewCollector("cmd_test", nil) })
	return sharedCollector
}

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
}

// subjectEcho 把 context 中的 subject 写回响应体
func subjectEcho() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sub, _ := types.Subject(r.Context())
		_, _ = w.Write([]byte(sub))
	})
}

func decodeError(t *testing.T, body []byte) handlers.Response {
	t.Helper()
	var resp handlers.Response
	require.NoError(t, json.Unmarshal(body, &resp))
	require.NotNil(t, resp.Error)
	return resp
}

func TestSecurityHeaders(t *testing.T) {
	w := httptest.NewRecorder()
	SecurityHeaders()(okHandler()).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "DENY", w.Header().Get("X-Frame-Options"))
	assert.Equal(t, "nosniff", w.Header().Get("X-Content-Type-Options"))
	assert.Equal(t, "strict-origin-when-cross-origin", w.Header().Get("Referrer-Policy"))
	assert.Contains(t, w.Header().Get("Content-Security-Policy"), "default-src 'none'")
}

func TestRequestID(t *testing.T) {
	var seen string
	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen, _ = types.RequestID(r.Context())
	})
	h := Chain(inner, SecurityHeaders(), RequestID())

	t.Run("generated", func(t *testing.T) {
		w := httptest.NewRecorder()
		h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
		id := w.Header().Get(handlers.RequestIDHeader)
		assert.Len(t, id, 36)
		assert.Equal(t, id, seen)
		assert.Equal(t, "DENY", w.Header().Get("X-Frame-Options"))
	})

	t.Run("client supplied", func(t *testing.T) {
		w := httptest.NewRecorder()
		r := httptest.NewRequest(http.MethodGet, "/", nil)
		r.Header.Set(handlers.RequestIDHeader, "abc-123")
		h.ServeHTTP(w, r)
		assert.Equal(t, "abc-123", w.Header().Get(handlers.RequestIDHeader))
		assert.Equal(t, "abc-123", seen)
	})
}

func TestRecovery(t *testing.T) {
	panicky := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { panic("boom") })
	h := Chain(panicky, RequestID(), Recovery(zaptest.NewLogger(t)))

	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/x", nil))

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	resp := decodeError(t, w.Body.Bytes())
	assert.False(t, resp.Success)
	assert.Equal(t, string(types.ErrInternalError), resp.Error.Code)
	assert.NotEmpty(t, resp.RequestID)
}

func TestNormalizePath(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"/health", "/health"},
		{routeGenerate, routeGenerate},
		{"/api/v1/diagrams/0123abcd4567", "/api/v1/diagrams/:id"},
		{"/api/v1/diagrams/42/raw", "/api/v1/diagrams/:id/raw"},
		{"/api/v1/diagrams/550e8400-e29b-41d4-a716-446655440000", "/api/v1/diagrams/:id"},
		{"/api/v1/unknown", "/api/v1/unknown"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, normalizePath(tt.in), tt.in)
	}
}

func TestMetricsMiddleware_PassesThrough(t *testing.T) {
	h := MetricsMiddleware(testCollector())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
		_, _ = w.Write([]byte("short and stout"))
	}))

	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/diagrams/icons", nil))
	assert.Equal(t, http.StatusTeapot, w.Code)
	assert.Equal(t, "short and stout", w.Body.String())
}

func TestOTelTracing(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	prev := otel.GetTracerProvider()
	otel.SetTracerProvider(tp)
	t.Cleanup(func() {
		otel.SetTracerProvider(prev)
		_ = tp.Shutdown(context.Background())
	})

	var traceID string
	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		traceID, _ = types.TraceID(r.Context())
		w.WriteHeader(http.StatusBadGateway)
	})
	w := httptest.NewRecorder()
	OTelTracing()(inner).ServeHTTP(w, httptest.NewRequest(http.MethodPost, routeScan, nil))

	spans := recorder.Ended()
	require.Len(t, spans, 1)
	assert.Equal(t, "POST "+routeScan, spans[0].Name())
	assert.Equal(t, spans[0].SpanContext().TraceID().String(), traceID)
	assert.Contains(t, spans[0].Attributes(), attribute.Int("http.response.status_code", http.StatusBadGateway))
}

// =============================================================================
// 认证
// =============================================================================

func TestAPIKeyAuth(t *testing.T) {
	h := APIKeyAuth([]string{"first", " second "}, []string{"/health"}, zaptest.NewLogger(t))(subjectEcho())

	tests := []struct {
		name   string
		path   string
		key    string
		status int
		body   string
	}{
		{"skip path", "/health", "", http.StatusOK, ""},
		{"missing key", "/api", "", http.StatusUnauthorized, ""},
		{"wrong key", "/api", "nope", http.StatusUnauthorized, ""},
		{"first key", "/api", "first", http.StatusOK, "api-key-0"},
		{"trimmed key", "/api", "second", http.StatusOK, "api-key-1"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodGet, tt.path, nil)
			if tt.key != "" {
				r.Header.Set("X-API-Key", tt.key)
			}
			w := httptest.NewRecorder()
			h.ServeHTTP(w, r)
			assert.Equal(t, tt.status, w.Code)
			if tt.status == http.StatusOK {
				assert.Equal(t, tt.body, w.Body.String())
			} else {
				assert.Equal(t, string(types.ErrUnauthorized), decodeError(t, w.Body.Bytes()).Error.Code)
			}
		})
	}
}

func TestJWTAuth(t *testing.T) {
	secret := []byte("s3cret")
	cfg := config.JWTConfig{Enabled: true, Secret: string(secret), Issuer: "diagramgate"}
	h := JWTAuth(cfg, []string{"/health"}, zaptest.NewLogger(t))(subjectEcho())

	sign := func(claims jwt.MapClaims, key []byte) string {
		tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(key)
		require.NoError(t, err)
		return tok
	}
	exp := time.Now().Add(time.Hour).Unix()

	tests := []struct {
		name   string
		header string
		status int
	}{
		{"missing header", "", http.StatusUnauthorized},
		{"not bearer", "Basic Zm9vOmJhcg==", http.StatusUnauthorized},
		{"wrong secret", "Bearer " + sign(jwt.MapClaims{"sub": "alice", "iss": "diagramgate", "exp": exp}, []byte("other")), http.StatusUnauthorized},
		{"wrong issuer", "Bearer " + sign(jwt.MapClaims{"sub": "alice", "iss": "elsewhere", "exp": exp}, secret), http.StatusUnauthorized},
		{"expired", "Bearer " + sign(jwt.MapClaims{"sub": "alice", "iss": "diagramgate", "exp": time.Now().Add(-time.Hour).Unix()}, secret), http.StatusUnauthorized},
		{"valid", "Bearer " + sign(jwt.MapClaims{"sub": "alice", "iss": "diagramgate", "exp": exp}, secret), http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodPost, routeGenerate, nil)
			if tt.header != "" {
				r.Header.Set("Authorization", tt.header)
			}
			w := httptest.NewRecorder()
			h.ServeHTTP(w, r)
			assert.Equal(t, tt.status, w.Code)
			if tt.status == http.StatusOK {
				assert.Equal(t, "alice", w.Body.String())
			}
		})
	}

	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, w.Code)
}

// =============================================================================
// 限流
// =============================================================================

func TestRateLimiter(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	rl := NewRateLimiter(ctx, 0.001, 2, zaptest.NewLogger(t))
	h := rl.Middleware([]string{"/health"})(okHandler())

	do := func(path, remote, subject string) *httptest.ResponseRecorder {
		r := httptest.NewRequest(http.MethodGet, path, nil)
		r.RemoteAddr = remote
		if subject != "" {
			r = r.WithContext(types.WithSubject(r.Context(), subject))
		}
		w := httptest.NewRecorder()
		h.ServeHTTP(w, r)
		return w
	}

	assert.Equal(t, http.StatusOK, do("/api", "10.0.0.1:1000", "").Code)
	assert.Equal(t, http.StatusOK, do("/api", "10.0.0.1:1001", "").Code)
	limited := do("/api", "10.0.0.1:1002", "")
	assert.Equal(t, http.StatusTooManyRequests, limited.Code)
	assert.Equal(t, "1", limited.Header().Get("Retry-After"))
	assert.Equal(t, string(types.ErrRateLimited), decodeError(t, limited.Body.Bytes()).Error.Code)

	// 其他 IP 与已认证调用方各自计数
	assert.Equal(t, http.StatusOK, do("/api", "10.0.0.2:1000", "").Code)
	assert.Equal(t, http.StatusOK, do("/api", "10.0.0.1:1003", "alice").Code)

	// 公共路径不计入
	for i := 0; i < 5; i++ {
		assert.Equal(t, http.StatusOK, do("/health", "10.0.0.1:1004", "").Code)
	}

	// 关闭限流后立即放行
	rl.SetLimit(0, 0)
	assert.Equal(t, http.StatusOK, do("/api", "10.0.0.1:1005", "").Code)
}

func TestRateLimiter_Sweep(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	rl := NewRateLimiter(ctx, 1, 1, zaptest.NewLogger(t))

	assert.True(t, rl.allow("ip:a"))
	rl.sweep(time.Now().Add(visitorTTL + time.Second))

	rl.mu.Lock()
	defer rl.mu.Unlock()
	assert.Empty(t, rl.visitors)
}

// =============================================================================
// CORS
// =============================================================================

func TestCORS(t *testing.T) {
	h := CORS([]string{"https://app.example.com"})(okHandler())

	t.Run("allowed origin", func(t *testing.T) {
		r := httptest.NewRequest(http.MethodGet, "/", nil)
		r.Header.Set("Origin", "https://app.example.com")
		w := httptest.NewRecorder()
		h.ServeHTTP(w, r)
		assert.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "https://app.example.com", w.Header().Get("Access-Control-Allow-Origin"))
	})

	t.Run("allowed preflight", func(t *testing.T) {
		r := httptest.NewRequest(http.MethodOptions, "/", nil)
		r.Header.Set("Origin", "https://app.example.com")
		w := httptest.NewRecorder()
		h.ServeHTTP(w, r)
		assert.Equal(t, http.StatusNoContent, w.Code)
	})

	t.Run("unknown origin", func(t *testing.T) {
		r := httptest.NewRequest(http.MethodGet, "/", nil)
		r.Header.Set("Origin", "https://evil.example.com")
		w := httptest.NewRecorder()
		h.ServeHTTP(w, r)
		assert.Equal(t, http.StatusOK, w.Code)
		assert.Empty(t, w.Header().Get("Access-Control-Allow-Origin"))
	})

	t.Run("unknown preflight", func(t *testing.T) {
		r := httptest.NewRequest(http.MethodOptions, "/", nil)
		r.Header.Set("Origin", "https://evil.example.com")
		w := httptest.NewRecorder()
		h.ServeHTTP(w, r)
		assert.Equal(t, http.StatusForbidden, w.Code)
	})

	t.Run("no origins configured", func(t *testing.T) {
		r := httptest.NewRequest(http.MethodGet, "/", nil)
		w := httptest.NewRecorder()
		CORS(nil)(okHandler()).ServeHTTP(w, r)
		assert.Equal(t, http.StatusOK, w.Code)
	})
}
