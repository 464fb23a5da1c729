package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"
)

var testSigningKey = []byte("test-secret-key-for-unit-tests-only")

func createTestToken(t *testing.T, claims Claims, key []byte) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tokenStr, err := token.SignedString(key)
	if err != nil {
		t.Fatalf("failed to sign test token: %v", err)
	}
	return tokenStr
}

func runMiddleware(t *testing.T, cfg JWTConfig, header string) (echo.Context, bool, error) {
	t.Helper()
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	if header != "" {
		req.Header.Set("Authorization", header)
	}
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	var called bool
	var seen echo.Context
	handler := func(c echo.Context) error {
		called = true
		seen = c
		return c.String(http.StatusOK, "ok")
	}
	err := JWTMiddleware(cfg)(handler)(c)
	return seen, called, err
}

func TestJWTMiddleware_AnonymousPassesThrough(t *testing.T) {
	c, called, err := runMiddleware(t, JWTConfig{SigningKey: testSigningKey}, "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !called {
		t.Fatal("handler was not called")
	}
	if uid := UserIDFromContext(c.Request().Context()); uid != "" {
		t.Errorf("expected anonymous request, got user %q", uid)
	}
}

func TestJWTMiddleware_InvalidFormat(t *testing.T) {
	tests := []struct {
		name   string
		header string
	}{
		{"no bearer prefix", "Token abc123"},
		{"missing token", "Bearer"},
		{"empty value", "Bearer "},
		{"basic auth", "Basic dXNlcjpwYXNz"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, called, err := runMiddleware(t, JWTConfig{SigningKey: testSigningKey}, tt.header)
			if err == nil {
				t.Fatal("expected error for invalid format")
			}
			httpErr, ok := err.(*echo.HTTPError)
			if !ok {
				t.Fatalf("expected echo.HTTPError, got %T", err)
			}
			if httpErr.Code != http.StatusUnauthorized {
				t.Errorf("expected 401, got %d", httpErr.Code)
			}
			if called {
				t.Error("handler should not be called")
			}
		})
	}
}

func TestJWTMiddleware_ValidTokenSetsIdentity(t *testing.T) {
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "5b0c1a44-1f3e-4a4e-9a53-1f9b1e6e2d10",
			Issuer:    "healthadvocate",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(1 * time.Hour)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
		},
		Email: "jane@x.com",
		Roles: []string{"advocate"},
	}
	header := "Bearer " + createTestToken(t, claims, testSigningKey)

	c, called, err := runMiddleware(t, JWTConfig{Issuer: "healthadvocate", SigningKey: testSigningKey}, header)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !called {
		t.Fatal("handler was not called")
	}
	ctx := c.Request().Context()
	if got := UserIDFromContext(ctx); got != claims.Subject {
		t.Errorf("expected user id %s, got %s", claims.Subject, got)
	}
	if got := EmailFromContext(ctx); got != "jane@x.com" {
		t.Errorf("expected email jane@x.com, got %s", got)
	}
	if roles := RolesFromContext(ctx); len(roles) != 1 || roles[0] != "advocate" {
		t.Errorf("expected [advocate], got %v", roles)
	}
}

func TestJWTMiddleware_ExpiredToken(t *testing.T) {
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "user-123",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(-1 * time.Hour)),
			IssuedAt:  jwt.NewNumericDate(time.Now().Add(-2 * time.Hour)),
		},
	}
	header := "Bearer " + createTestToken(t, claims, testSigningKey)

	_, _, err := runMiddleware(t, JWTConfig{SigningKey: testSigningKey}, header)
	if err == nil {
		t.Fatal("expected error for expired token")
	}
}

func TestJWTMiddleware_WrongKeyOrIssuer(t *testing.T) {
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "user-123",
			Issuer:    "someone-else",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}

	header := "Bearer " + createTestToken(t, claims, []byte("other-key"))
	if _, _, err := runMiddleware(t, JWTConfig{SigningKey: testSigningKey}, header); err == nil {
		t.Error("expected error for token signed with a different key")
	}

	header = "Bearer " + createTestToken(t, claims, testSigningKey)
	if _, _, err := runMiddleware(t, JWTConfig{Issuer: "healthadvocate", SigningKey: testSigningKey}, header); err == nil {
		t.Error("expected error for token from another issuer")
	}
}
