package middleware

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSecurity(t *testing.T) {
	t.Parallel()

	serve := func(cfg SecurityConfig) http.Header {
		handler := Security(cfg)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Server", "leaky/1.0")
			w.WriteHeader(http.StatusOK)
		}))
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api-keys/generate", nil))
		return rec.Header()
	}

	prod := serve(SecurityConfig{})
	for header, want := range map[string]string{
		"X-Content-Type-Options":       "nosniff",
		"X-Frame-Options":              "DENY",
		"Content-Security-Policy":      "default-src 'none'; frame-ancestors 'none'",
		"Cache-Control":                "no-store",
		"Cross-Origin-Resource-Policy": "same-origin",
		"Strict-Transport-Security":    "max-age=31536000; includeSubDomains",
	} {
		assert.Equal(t, want, prod.Get(header), header)
	}

	dev := serve(SecurityConfig{IsDevelopment: true})
	assert.Empty(t, dev.Get("Strict-Transport-Security"))
	assert.Equal(t, "no-store", dev.Get("Cache-Control"))
}

func TestMaxBodySize(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name          string
		body          string
		contentLength int64
		wantStatus    int
	}{
		{"within limit", `{"modelId":"1"}`, 15, http.StatusOK},
		{"declared too large", `{"modelId":"1"}`, 4096, http.StatusRequestEntityTooLarge},
		{"streamed too large", strings.Repeat("a", 100), -1, http.StatusBadRequest},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			handler := MaxBodySize(32)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if _, err := io.ReadAll(r.Body); err != nil {
					w.WriteHeader(http.StatusBadRequest)
					return
				}
				w.WriteHeader(http.StatusOK)
			}))

			req := httptest.NewRequest(http.MethodPost, "/api-keys/generate", strings.NewReader(tt.body))
			req.ContentLength = tt.contentLength
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)

			assert.Equal(t, tt.wantStatus, rec.Code)
		})
	}
}
