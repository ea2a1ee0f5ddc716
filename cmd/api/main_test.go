package main

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/creditshop/creditshop-api/internal/config"
	"github.com/creditshop/creditshop-api/internal/domain/catalog"
	"github.com/creditshop/creditshop-api/internal/domain/ledger"
	"github.com/creditshop/creditshop-api/internal/domain/notification"
	"github.com/creditshop/creditshop-api/internal/domain/user"
	"github.com/creditshop/creditshop-api/internal/pkg/jwt"
)

func testRouter(t *testing.T) (http.Handler, *jwt.Service) {
	t.Helper()
	jwtSvc := jwt.NewService("secret", time.Minute)
	cfg := &config.Config{AllowedOrigins: []string{"http://localhost:3000"}}

	var r http.Handler
	func() {
		defer func() {
			if rec := recover(); rec != nil {
				t.Fatalf("registering routes panicked: %v", rec)
			}
		}()
		r = newRouter(cfg, jwtSvc, handlers{
			catalog:       catalog.NewHandler(catalog.NewService(nil, nil, nil)),
			ledger:        ledger.NewHandler(nil, nil, 0),
			users:         user.NewHandler(nil),
			notifications: notification.NewHandler(nil),
			ws:            http.NotFoundHandler(),
			wsConnections: func() int { return 0 },
		})
	}()
	return r, jwtSvc
}

func TestRouterPublicEndpoints(t *testing.T) {
	r, _ := testRouter(t)

	for _, path := range []string{"/health", "/metrics"} {
		rr := httptest.NewRecorder()
		r.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, path, nil))
		if rr.Code != http.StatusOK {
			t.Fatalf("%s: expected 200, got %d", path, rr.Code)
		}
	}
}

func TestRouterGuardsLedgerAndAdminRoutes(t *testing.T) {
	r, jwtSvc := testRouter(t)
	userToken, _ := jwtSvc.GenerateAccessToken(uuid.New(), jwt.RoleUser, "Dana")

	tests := []struct {
		name   string
		method string
		path   string
		token  string
		status int
	}{
		{"credits need auth", http.MethodGet, "/api/v1/credits", "", http.StatusUnauthorized},
		{"purchase needs auth", http.MethodPost, "/api/v1/products/" + uuid.NewString() + "/purchase", "", http.StatusUnauthorized},
		{"session needs auth", http.MethodGet, "/api/v1/me", "", http.StatusUnauthorized},
		{"admin rejects users", http.MethodGet, "/api/admin/purchases", userToken, http.StatusForbidden},
		{"admin sweep rejects users", http.MethodPost, "/api/admin/users/" + uuid.NewString() + "/sweep", userToken, http.StatusForbidden},
		{"ws needs auth", http.MethodGet, "/ws", "", http.StatusUnauthorized},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, tt.path, nil)
			if tt.token != "" {
				req.Header.Set("Authorization", "Bearer "+tt.token)
			}
			rr := httptest.NewRecorder()
			r.ServeHTTP(rr, req)
			if rr.Code != tt.status {
				t.Fatalf("expected %d, got %d", tt.status, rr.Code)
			}
		})
	}
}
