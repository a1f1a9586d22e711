package backend

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const testSecret = "test-secret"

func mintToken(t *testing.T, secret string, deviceID string) string {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": deviceID,
		"exp": time.Now().Add(5 * time.Minute).Unix(),
	})
	signed, err := token.SignedString([]byte(secret))
	if err != nil {
		t.Fatalf("Failed to sign token: %v", err)
	}
	return signed
}

func TestAuthMiddleware_RejectsMissingAndInvalidTokens(t *testing.T) {
	handler := AuthMiddleware(testSecret)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	// No Authorization header
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/sync/members/pull", nil))
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("Expected 401 without a token, got %d", rec.Code)
	}

	// Token signed with the wrong secret
	rec = httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/v1/sync/members/pull", nil)
	req.Header.Set("Authorization", "Bearer "+mintToken(t, "wrong-secret", "device-1"))
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("Expected 401 for a bad signature, got %d", rec.Code)
	}
}

func TestAuthMiddleware_AcceptsValidTokenAndPropagatesDevice(t *testing.T) {
	var gotDevice string
	handler := AuthMiddleware(testSecret)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotDevice = deviceIDFrom(r.Context())
		w.WriteHeader(http.StatusOK)
	}))

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/v1/sync/members/pull", nil)
	req.Header.Set("Authorization", "Bearer "+mintToken(t, testSecret, "studio-device-7"))
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", rec.Code)
	}
	if gotDevice != "studio-device-7" {
		t.Errorf("Expected device id from token subject, got %q", gotDevice)
	}
}

func TestServer_RejectsUnknownEntityType(t *testing.T) {
	// Validation runs before any store access, so no database is needed
	srv := NewServer(&Store{}, nil)
	router := srv.Router(testSecret)
	token := mintToken(t, testSecret, "device-1")

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/v1/sync/gadgets/push", strings.NewReader(`{"id":"x"}`))
	req.Header.Set("Authorization", "Bearer "+token)
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnprocessableEntity {
		t.Errorf("Expected 422 for unknown entity type, got %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodGet, "/v1/sync/gadgets/pull", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnprocessableEntity {
		t.Errorf("Expected 422 for unknown entity type, got %d", rec.Code)
	}
}

func TestServer_RejectsMalformedCursor(t *testing.T) {
	srv := NewServer(&Store{}, nil)
	router := srv.Router(testSecret)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/v1/sync/members/pull?since=yesterday", nil)
	req.Header.Set("Authorization", "Bearer "+mintToken(t, testSecret, "device-1"))
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnprocessableEntity {
		t.Errorf("Expected 422 for a malformed since cursor, got %d", rec.Code)
	}
}
