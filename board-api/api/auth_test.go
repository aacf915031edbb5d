package api

import (
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v4"
)

func signHS256(t *testing.T, secret []byte, claims jwt.MapClaims) string {
	t.Helper()
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
	if err != nil {
		t.Fatalf("failed to sign token: %v", err)
	}
	return signed
}

func TestBearerToken(t *testing.T) {
	tests := []struct {
		name    string
		header  string
		want    string
		wantErr error
	}{
		{name: "ok", header: "  Bearer header.payload.signature ", want: "header.payload.signature"},
		{name: "missing", header: "  ", wantErr: errMissingAuthorization},
		{name: "scheme", header: "Basic abc.def.ghi", wantErr: errBadAuthorization},
		{name: "periods", header: "Bearer " + strings.Repeat(".", 1000), wantErr: errBadAuthorization},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := bearerToken(tt.header)
			if err != tt.wantErr {
				t.Fatalf("bearerToken(%q) error = %v, want %v", tt.header, err, tt.wantErr)
			}
			if got != tt.want {
				t.Fatalf("bearerToken(%q) = %q, want %q", tt.header, got, tt.want)
			}
		})
	}
}

func TestAuthenticateHS256(t *testing.T) {
	secret := []byte("test-secret")
	signed := signHS256(t, secret, jwt.MapClaims{
		"sub":  "user-123",
		"name": "Ada Lovelace",
		"aud":  "api://boards",
		"iss":  "https://issuer/",
		"exp":  time.Now().Add(5 * time.Minute).Unix(),
		"nbf":  time.Now().Add(-time.Minute).Unix(),
	})
	auth := NewTestAuth(secret)
	auth.Audience = "api://boards"
	auth.Issuer = "https://issuer/"

	id, err := auth.Authenticate("Bearer " + signed)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if id.UserID != "user-123" || id.Name != "Ada Lovelace" {
		t.Fatalf("unexpected identity %+v", id)
	}
}

func TestAuthenticateRejects(t *testing.T) {
	secret := []byte("test-secret")
	future := time.Now().Add(5 * time.Minute).Unix()
	tests := []struct {
		name   string
		secret []byte
		claims jwt.MapClaims
	}{
		{name: "expired", secret: secret, claims: jwt.MapClaims{"sub": "u", "exp": time.Now().Add(-5 * time.Minute).Unix()}},
		{name: "missing sub", secret: secret, claims: jwt.MapClaims{"exp": future}},
		{name: "wrong audience", secret: secret, claims: jwt.MapClaims{"sub": "u", "exp": future, "aud": "other"}},
		{name: "wrong secret", secret: []byte("other"), claims: jwt.MapClaims{"sub": "u", "exp": future}},
	}
	auth := NewTestAuth(secret)
	auth.Audience = "api://boards"
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := auth.Authenticate("Bearer " + signHS256(t, tt.secret, tt.claims)); err == nil {
				t.Fatalf("expected %s token to be rejected", tt.name)
			}
		})
	}
}

func TestAuthenticateWithoutJWKS(t *testing.T) {
	auth := NewAuth(nil, "", "")
	token := jwt.NewWithClaims(jwt.SigningMethodRS256, jwt.MapClaims{"sub": "u"})
	token.Header["kid"] = "k1"
	if _, err := auth.keyFor(token); err == nil || err.Error() != "jwks not configured" {
		t.Fatalf("expected jwks error, got %v", err)
	}
}
