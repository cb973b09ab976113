package api

import (
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v4"
)

func signedTestToken(t *testing.T, secret []byte, claims jwt.MapClaims) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(secret)
	if err != nil {
		t.Fatalf("failed to sign token: %v", err)
	}
	return signed
}

func testAuth(secret []byte) *Auth {
	return &Auth{
		Audience:   "api://aud",
		Issuer:     "https://issuer/",
		TestMode:   true,
		TestSecret: secret,
		parser:     jwt.NewParser(jwt.WithValidMethods([]string{"HS256"})),
	}
}

func baseClaims() jwt.MapClaims {
	return jwt.MapClaims{
		"sub":   "user-123",
		"email": "user@example.com",
		"aud":   "api://aud",
		"iss":   "https://issuer/",
		"exp":   time.Now().Add(5 * time.Minute).Unix(),
		"nbf":   time.Now().Add(-time.Minute).Unix(),
		"iat":   time.Now().Add(-time.Minute).Unix(),
	}
}

func TestBearerTokenFromStringSuccess(t *testing.T) {
	token, err := bearerTokenFromString("Bearer header.payload.signature")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if string(token) != "header.payload.signature" {
		t.Fatalf("unexpected token content: %s", string(token))
	}
}

func TestBearerTokenFromStringMissing(t *testing.T) {
	if _, err := bearerTokenFromString("   "); err == nil || err.Error() != "missing authorization header" {
		t.Fatalf("expected missing header error, got %v", err)
	}
}

func TestBearerTokenFromStringManyPeriods(t *testing.T) {
	header := "Bearer " + strings.Repeat(".", 1000)
	if _, err := bearerTokenFromString(header); err == nil || err.Error() != "bad auth header" {
		t.Fatalf("expected bad auth header error, got %v", err)
	}
}

func TestIdentityFromBearerHS256(t *testing.T) {
	secret := []byte("test-secret")
	signed := signedTestToken(t, secret, baseClaims())

	identity, err := testAuth(secret).IdentityFromBearer([]byte(signed))
	if err != nil {
		t.Fatalf("unexpected error verifying token: %v", err)
	}
	if identity.UserID != "user-123" {
		t.Fatalf("unexpected user id: %s", identity.UserID)
	}
	if identity.Email != "user@example.com" {
		t.Fatalf("email claim not extracted: %s", identity.Email)
	}
}

func TestIdentityFromBearerMissingEmailClaim(t *testing.T) {
	secret := []byte("test-secret")
	claims := baseClaims()
	delete(claims, "email")
	signed := signedTestToken(t, secret, claims)

	identity, err := testAuth(secret).IdentityFromBearer([]byte(signed))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if identity.Email != "" {
		t.Fatalf("expected empty email, got %s", identity.Email)
	}
}

func TestIdentityFromBearerExpired(t *testing.T) {
	secret := []byte("test-secret")
	claims := baseClaims()
	claims["exp"] = time.Now().Add(-10 * time.Minute).Unix()
	signed := signedTestToken(t, secret, claims)

	if _, err := testAuth(secret).IdentityFromBearer([]byte(signed)); err == nil {
		t.Fatal("expected expired token error")
	}
}

func TestIdentityFromBearerWrongAudience(t *testing.T) {
	secret := []byte("test-secret")
	claims := baseClaims()
	claims["aud"] = "api://other"
	signed := signedTestToken(t, secret, claims)

	if _, err := testAuth(secret).IdentityFromBearer([]byte(signed)); err == nil {
		t.Fatal("expected audience error")
	}
}

func TestIdentityFromBearerMissingSub(t *testing.T) {
	secret := []byte("test-secret")
	claims := baseClaims()
	delete(claims, "sub")
	signed := signedTestToken(t, secret, claims)

	if _, err := testAuth(secret).IdentityFromBearer([]byte(signed)); err == nil {
		t.Fatal("expected missing sub error")
	}
}

func TestIdentityFromAuthHeaderEmpty(t *testing.T) {
	if _, err := testAuth([]byte("s")).IdentityFromAuthHeader(""); err != errMissingAuthorization {
		t.Fatalf("expected missing authorization error, got %v", err)
	}
}
