package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCORS(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		cfg        CORSConfig
		origin     string
		preflight  bool
		wantStatus int
		wantOrigin string
	}{
		{
			name:       "no origins configured",
			cfg:        CORSConfig{},
			origin:     "http://localhost:3000",
			wantStatus: http.StatusOK,
		},
		{
			name:       "frontend origin",
			cfg:        CORSConfig{AllowedOrigins: []string{"http://localhost:3000"}},
			origin:     "http://localhost:3000",
			wantStatus: http.StatusOK,
			wantOrigin: "http://localhost:3000",
		},
		{
			name:       "preflight from frontend",
			cfg:        CORSConfig{AllowedOrigins: []string{"http://localhost:3000"}},
			origin:     "http://localhost:3000",
			preflight:  true,
			wantStatus: http.StatusNoContent,
			wantOrigin: "http://localhost:3000",
		},
		{
			name:       "preflight from unknown origin",
			cfg:        CORSConfig{AllowedOrigins: []string{"http://localhost:3000"}},
			origin:     "https://phish.example",
			preflight:  true,
			wantStatus: http.StatusForbidden,
		},
		{
			name:       "case insensitive",
			cfg:        CORSConfig{AllowedOrigins: []string{"HTTPS://APP.INFERCHAIN.IO"}},
			origin:     "https://app.inferchain.io",
			wantStatus: http.StatusOK,
			wantOrigin: "https://app.inferchain.io",
		},
		{
			name:       "subdomain pattern",
			cfg:        CORSConfig{AllowedOrigins: []string{"*.inferchain.io"}},
			origin:     "https://staging.inferchain.io",
			wantStatus: http.StatusOK,
			wantOrigin: "https://staging.inferchain.io",
		},
		{
			name:       "subdomain pattern rejects lookalike",
			cfg:        CORSConfig{AllowedOrigins: []string{"*.inferchain.io"}},
			origin:     "https://notinferchain.io",
			wantStatus: http.StatusOK,
		},
		{
			name:       "wildcard in development",
			cfg:        CORSConfig{AllowedOrigins: []string{"*"}, IsDevelopment: true},
			origin:     "http://127.0.0.1:5173",
			wantStatus: http.StatusOK,
			wantOrigin: "http://127.0.0.1:5173",
		},
		{
			name:       "wildcard ignored in production",
			cfg:        CORSConfig{AllowedOrigins: []string{"*"}},
			origin:     "http://127.0.0.1:5173",
			wantStatus: http.StatusOK,
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			handler := CORS(tt.cfg)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusOK)
			}))

			method := http.MethodGet
			if tt.preflight {
				method = http.MethodOptions
			}
			req := httptest.NewRequest(method, "/qa/ask", nil)
			req.Header.Set("Origin", tt.origin)
			if tt.preflight {
				req.Header.Set("Access-Control-Request-Method", http.MethodPost)
			}
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)

			assert.Equal(t, tt.wantStatus, rec.Code)
			assert.Equal(t, tt.wantOrigin, rec.Header().Get("Access-Control-Allow-Origin"))
		})
	}
}

func TestCORS_PreflightAllowsAPIKeyHeader(t *testing.T) {
	t.Parallel()
	handler := CORS(CORSConfig{AllowedOrigins: []string{"http://localhost:3000"}, MaxAge: 600})(
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			t.Error("preflight reached the handler")
		}))

	req := httptest.NewRequest(http.MethodOptions, "/qa/ask", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Contains(t, rec.Header().Get("Access-Control-Allow-Headers"), "X-API-Key")
	assert.Contains(t, rec.Header().Get("Access-Control-Allow-Methods"), http.MethodPut)
	assert.Equal(t, "600", rec.Header().Get("Access-Control-Max-Age"))
}

func TestCORS_NoOriginPassesThrough(t *testing.T) {
	t.Parallel()
	called := false
	handler := CORS(CORSConfig{AllowedOrigins: []string{"http://localhost:3000"}})(
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { called = true }))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/models", nil))

	assert.True(t, called)
	assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))
}
