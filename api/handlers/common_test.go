package handlers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"

	"github.com/BaSui01/diagramgate/types"
)

// =============================================================================
// 🧪 Common 函数测试
// =============================================================================

func TestWriteJSON(t *testing.T) {
	w := httptest.NewRecorder()
	WriteJSON(w, http.StatusCreated, map[string]string{"message": "hello"})

	assert.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, "application/json; charset=utf-8", w.Header().Get("Content-Type"))
	assert.Equal(t, "nosniff", w.Header().Get("X-Content-Type-Options"))
	assert.JSONEq(t, `{"message":"hello"}`, w.Body.String())
}

func TestWriteSuccess_CarriesRequestID(t *testing.T) {
	w := httptest.NewRecorder()
	w.Header().Set(RequestIDHeader, "req-1")

	WriteSuccess(w, map[string]string{"key": "value"})

	var resp Response
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	assert.True(t, resp.Success)
	assert.Nil(t, resp.Error)
	assert.Equal(t, "req-1", resp.RequestID)
	assert.False(t, resp.Timestamp.IsZero())
}

func TestWriteError(t *testing.T) {
	tests := []struct {
		name       string
		err        *types.Error
		wantStatus int
	}{
		{"invalid request", types.NewError(types.ErrInvalidRequest, "source is required"), http.StatusBadRequest},
		{"unauthorized", types.NewError(types.ErrUnauthorized, "missing key"), http.StatusUnauthorized},
		{"forbidden", types.NewError(types.ErrForbidden, "no"), http.StatusForbidden},
		{"not found", types.NewError(types.ErrNotFound, "no route"), http.StatusNotFound},
		{"rate limited", types.NewError(types.ErrRateLimited, "slow down"), http.StatusTooManyRequests},
		{"scan rejected", types.NewError(types.ErrScanRejected, "rejected"), http.StatusUnprocessableEntity},
		{"runtime failure", types.NewError(types.ErrRuntimeFailure, "failed"), http.StatusUnprocessableEntity},
		{"timeout", types.NewError(types.ErrTimeout, "slow"), http.StatusGatewayTimeout},
		{"tool error", types.NewError(types.ErrToolError, "dot missing"), http.StatusInternalServerError},
		{"explicit status", types.NewError(types.ErrInvalidRequest, "big").WithHTTPStatus(http.StatusRequestEntityTooLarge), http.StatusRequestEntityTooLarge},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			WriteError(w, tt.err, zaptest.NewLogger(t))

			assert.Equal(t, tt.wantStatus, w.Code)
			var resp Response
			require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
			assert.False(t, resp.Success)
			require.NotNil(t, resp.Error)
			assert.Equal(t, string(tt.err.Code), resp.Error.Code)
			assert.Equal(t, tt.err.Message, resp.Error.Message)
		})
	}
}

func TestStatusForResult(t *testing.T) {
	tests := []struct {
		status types.ExecutionStatus
		want   int
	}{
		{types.StatusSuccess, http.StatusOK},
		{types.StatusScanRejected, http.StatusUnprocessableEntity},
		{types.StatusRuntimeFailure, http.StatusUnprocessableEntity},
		{types.StatusTimeout, http.StatusGatewayTimeout},
		{types.StatusToolError, http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(string(tt.status), func(t *testing.T) {
			assert.Equal(t, tt.want, StatusForResult(types.ExecutionResult{Status: tt.status}))
		})
	}
}

func TestDecodeJSONBody(t *testing.T) {
	type payload struct {
		Code string `json:"code"`
	}

	tests := []struct {
		name       string
		body       string
		limit      int64
		wantErr    bool
		wantStatus int
	}{
		{name: "valid", body: `{"code":"x = 1"}`},
		{name: "unknown field", body: `{"code":"x","extra":1}`, wantErr: true, wantStatus: http.StatusBadRequest},
		{name: "malformed", body: `{"code":`, wantErr: true, wantStatus: http.StatusBadRequest},
		{name: "empty", body: "", wantErr: true, wantStatus: http.StatusBadRequest},
		{name: "too large", body: `{"code":"` + strings.Repeat("a", 64) + `"}`, limit: 16, wantErr: true, wantStatus: http.StatusRequestEntityTooLarge},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var r *http.Request
			if tt.body == "" {
				r = httptest.NewRequest(http.MethodPost, "/", http.NoBody)
			} else {
				r = httptest.NewRequest(http.MethodPost, "/", strings.NewReader(tt.body))
			}
			w := httptest.NewRecorder()

			var dst payload
			err := DecodeJSONBody(w, r, &dst, tt.limit, zap.NewNop())
			if !tt.wantErr {
				require.NoError(t, err)
				assert.Equal(t, "x = 1", dst.Code)
				return
			}
			require.Error(t, err)
			assert.Equal(t, tt.wantStatus, w.Code)
			assert.True(t, types.IsErrorCode(err, types.ErrInvalidRequest))
		})
	}
}

func TestValidateContentType(t *testing.T) {
	tests := []struct {
		contentType string
		want        bool
	}{
		{"application/json", true},
		{"application/json; charset=utf-8", true},
		{"Application/JSON", true},
		{"text/plain", false},
		{"", false},
	}
	for _, tt := range tests {
		t.Run(tt.contentType, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodPost, "/", nil)
			r.Header.Set("Content-Type", tt.contentType)
			w := httptest.NewRecorder()
			assert.Equal(t, tt.want, ValidateContentType(w, r, zap.NewNop()))
			if !tt.want {
				assert.Equal(t, http.StatusUnsupportedMediaType, w.Code)
			}
		})
	}
}

func TestResponseWriter(t *testing.T) {
	rec := httptest.NewRecorder()
	rw := NewResponseWriter(rec)
	assert.Equal(t, http.StatusOK, rw.StatusCode)

	rw.WriteHeader(http.StatusTeapot)
	rw.WriteHeader(http.StatusInternalServerError)
	assert.Equal(t, http.StatusTeapot, rw.StatusCode)
	assert.Equal(t, http.StatusTeapot, rec.Code)

	rw2 := NewResponseWriter(httptest.NewRecorder())
	_, err := rw2.Write([]byte("x"))
	require.NoError(t, err)
	assert.True(t, rw2.Written)
	assert.Equal(t, http.StatusOK, rw2.StatusCode)
	assert.NotNil(t, rw2.Unwrap())
}
