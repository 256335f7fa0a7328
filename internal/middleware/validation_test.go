package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
)

func TestValidateParams(t *testing.T) {
	r := chi.NewRouter()
	r.With(ValidateWalletParam("wallet")).Get("/users/{wallet}", okHandler().ServeHTTP)
	r.With(ValidateEmailParam("email")).Get("/api/user/{email}", okHandler().ServeHTTP)

	tests := []struct {
		path       string
		wantStatus int
	}{
		{"/users/0x70997970C51812dc3A010C7d01b50e0d17dc79C8", http.StatusOK},
		{"/users/0x70997970c51812dc3a010c7d01b50e0d17dc79c8", http.StatusOK},
		{"/users/0x1234", http.StatusBadRequest},
		{"/users/alice", http.StatusBadRequest},
		{"/api/user/alice@example.com", http.StatusOK},
		{"/api/user/alice", http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			rec := httptest.NewRecorder()
			r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, tt.path, nil))
			if rec.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", rec.Code, tt.wantStatus)
			}
		})
	}
}
