package transport

import (
	"net/http"
	"testing"
	"time"

	"storefront-admin/internal/service"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

func newAuthRouter(t *testing.T, passwordHash string) (chi.Router, service.AuthService) {
	t.Helper()
	auth := service.NewAuthService("admin", passwordHash, "test-secret", time.Hour)
	router := chi.NewRouter()
	passthrough := func(next http.Handler) http.Handler { return next }
	NewAuthHandler(auth, zap.NewNop()).RegisterRoutes(router, passthrough)
	return router, auth
}

func TestLogin(t *testing.T) {
	hash, err := service.HashPassword("correct horse")
	if err != nil {
		t.Fatalf("Failed to hash password: %v", err)
	}
	router, auth := newAuthRouter(t, hash)

	w := serve(t, router, http.MethodPost, "/api/admin/login", LoginRequest{Username: "admin", Password: "correct horse"})
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", w.Code, w.Body.String())
	}

	var resp LoginResponse
	decodeBody(t, w, &resp)
	claims, err := auth.ValidateToken(resp.AccessToken)
	if err != nil || claims.Role != service.AdminRole {
		t.Errorf("Expected a valid admin token, got %v (%v)", claims, err)
	}
	if !resp.ExpiresAt.After(time.Now()) {
		t.Errorf("Expected future expiry, got %v", resp.ExpiresAt)
	}
}

func TestLoginFailures(t *testing.T) {
	hash, _ := service.HashPassword("correct horse")
	router, _ := newAuthRouter(t, hash)
	unconfigured, _ := newAuthRouter(t, "")

	tests := []struct {
		name   string
		router chi.Router
		body   LoginRequest
		want   int
	}{
		{"wrong password", router, LoginRequest{Username: "admin", Password: "battery staple"}, http.StatusUnauthorized},
		{"wrong user", router, LoginRequest{Username: "root", Password: "correct horse"}, http.StatusUnauthorized},
		{"missing password", router, LoginRequest{Username: "admin"}, http.StatusBadRequest},
		{"not configured", unconfigured, LoginRequest{Username: "admin", Password: "x"}, http.StatusServiceUnavailable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := serve(t, tt.router, http.MethodPost, "/api/admin/login", tt.body)
			if w.Code != tt.want {
				t.Errorf("Expected %d, got %d: %s", tt.want, w.Code, w.Body.String())
			}
		})
	}
}
