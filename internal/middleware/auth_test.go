package middleware

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"officetrack-backend/internal/models"
)

func TestJWTMiddleware_ValidToken(t *testing.T) {
	auth := NewJWTAuth("test-secret")
	userID := uuid.New()

	token, err := auth.GenerateAccessToken(userID, "alice@example.com", models.RoleEmployee)
	if err != nil {
		t.Fatalf("GenerateAccessToken: %v", err)
	}

	var gotID uuid.UUID
	var gotRole string
	handler := auth.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotID = GetUserID(r.Context())
		gotRole = GetRole(r.Context())
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/v1/me", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rr := httptest.NewRecorder()

	handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", rr.Code)
	}
	if gotID != userID {
		t.Errorf("Expected user id %s in context, got %s", userID, gotID)
	}
	if gotRole != models.RoleEmployee {
		t.Errorf("Expected role EMPLOYEE in context, got %q", gotRole)
	}
}

func TestJWTMiddleware_Rejections(t *testing.T) {
	auth := NewJWTAuth("test-secret")
	other := NewJWTAuth("other-secret")

	validToken, _ := auth.GenerateAccessToken(uuid.New(), "a@b.com", models.RoleEmployee)
	wrongKeyToken, _ := other.GenerateAccessToken(uuid.New(), "a@b.com", models.RoleEmployee)

	expired := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"user_id": uuid.New().String(),
		"role":    models.RoleEmployee,
		"exp":     time.Now().Add(-time.Minute).Unix(),
	})
	expiredToken, _ := expired.SignedString(auth.Secret)

	tests := []struct {
		name     string
		header   string
		wantCode string
	}{
		{"missing header", "", "UNAUTHORIZED"},
		{"not bearer", "Basic " + validToken, "UNAUTHORIZED"},
		{"garbage token", "Bearer not.a.jwt", "UNAUTHORIZED"},
		{"wrong signing key", "Bearer " + wrongKeyToken, "UNAUTHORIZED"},
		{"expired token", "Bearer " + expiredToken, "TOKEN_EXPIRED"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			handler := auth.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				t.Error("Handler should not be reached")
			}))

			req := httptest.NewRequest(http.MethodGet, "/api/v1/me", nil)
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}
			rr := httptest.NewRecorder()

			handler.ServeHTTP(rr, req)

			if rr.Code != http.StatusUnauthorized {
				t.Fatalf("Expected status 401, got %d", rr.Code)
			}

			var resp map[string]map[string]interface{}
			if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
				t.Fatalf("Failed to decode response: %v", err)
			}
			if resp["error"]["code"] != tc.wantCode {
				t.Errorf("Expected code %q, got %v", tc.wantCode, resp["error"]["code"])
			}
		})
	}
}

func TestRequireAdmin(t *testing.T) {
	tests := []struct {
		name       string
		role       string
		wantStatus int
	}{
		{"admin passes", models.RoleAdmin, http.StatusOK},
		{"employee rejected", models.RoleEmployee, http.StatusForbidden},
		{"no role rejected", "", http.StatusForbidden},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			handler := RequireAdmin(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusOK)
			}))

			req := httptest.NewRequest(http.MethodGet, "/api/v1/admin/stats", nil)
			if tc.role != "" {
				ctx := context.WithValue(req.Context(), RoleKey, tc.role)
				req = req.WithContext(ctx)
			}
			rr := httptest.NewRecorder()

			handler.ServeHTTP(rr, req)

			if rr.Code != tc.wantStatus {
				t.Errorf("Expected status %d, got %d", tc.wantStatus, rr.Code)
			}
		})
	}
}
