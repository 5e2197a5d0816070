package auth

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const testSecret = "test-secret-key-for-jwt-signing-32b"

func TestGenerateAndParseAccessToken(t *testing.T) {
	token, err := GenerateAccessToken("user-001", testSecret, 15*time.Minute)
	if err != nil {
		t.Fatalf("GenerateAccessToken() error = %v", err)
	}

	claims, err := ParseToken(token, testSecret)
	if err != nil {
		t.Fatalf("ParseToken() error = %v", err)
	}
	if claims.Subject != "user-001" {
		t.Errorf("Subject = %q, want user-001", claims.Subject)
	}
	if claims.ID == "" {
		t.Error("jti should not be empty")
	}
	if claims.IssuedAt == nil || claims.ExpiresAt == nil {
		t.Fatal("iat and exp must be set")
	}
	if ttl := claims.ExpiresAt.Sub(claims.IssuedAt.Time); ttl != 15*time.Minute {
		t.Errorf("exp - iat = %v, want 15m", ttl)
	}

	id, err := UserIDFromToken(token, testSecret)
	if err != nil || id != "user-001" {
		t.Errorf("UserIDFromToken() = %q, %v", id, err)
	}
}

func TestGenerateAccessToken_DefaultTTL(t *testing.T) {
	token, err := GenerateAccessToken("user-001", testSecret, 0)
	if err != nil {
		t.Fatalf("GenerateAccessToken() error = %v", err)
	}
	claims, err := ParseToken(token, testSecret)
	if err != nil {
		t.Fatalf("ParseToken() error = %v", err)
	}
	if ttl := claims.ExpiresAt.Sub(claims.IssuedAt.Time); ttl != DefaultAccessTokenTTL {
		t.Errorf("default ttl = %v, want %v", ttl, DefaultAccessTokenTTL)
	}

	if _, err := GenerateAccessToken("", testSecret, time.Minute); err == nil {
		t.Error("GenerateAccessToken() accepted an empty subject")
	}
}

func TestParseToken_Rejections(t *testing.T) {
	valid, err := GenerateAccessToken("user-001", testSecret, time.Minute)
	if err != nil {
		t.Fatal(err)
	}

	sign := func(method jwt.SigningMethod, claims jwt.Claims, key any) string {
		t.Helper()
		s, err := jwt.NewWithClaims(method, claims).SignedString(key)
		if err != nil {
			t.Fatalf("signing: %v", err)
		}
		return s
	}
	now := time.Now()

	tests := []struct {
		name        string
		token       string
		wantExpired bool
	}{
		{"garbage", "not-a-jwt", false},
		{"wrong secret", valid, false},
		{"tampered payload", valid[:len(valid)-4] + "AAAA", false},
		{"expired", sign(jwt.SigningMethodHS256, jwt.RegisteredClaims{
			Subject:   "user-001",
			IssuedAt:  jwt.NewNumericDate(now.Add(-2 * time.Hour)),
			ExpiresAt: jwt.NewNumericDate(now.Add(-time.Hour)),
		}, []byte(testSecret)), true},
		{"no exp", sign(jwt.SigningMethodHS256, jwt.RegisteredClaims{
			Subject: "user-001",
		}, []byte(testSecret)), false},
		{"no subject", sign(jwt.SigningMethodHS256, jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(time.Hour)),
		}, []byte(testSecret)), false},
		{"HS512 rejected", sign(jwt.SigningMethodHS512, jwt.RegisteredClaims{
			Subject:   "user-001",
			ExpiresAt: jwt.NewNumericDate(now.Add(time.Hour)),
		}, []byte(testSecret)), false},
		{"alg none", sign(jwt.SigningMethodNone, jwt.RegisteredClaims{
			Subject:   "user-001",
			ExpiresAt: jwt.NewNumericDate(now.Add(time.Hour)),
		}, jwt.UnsafeAllowNoneSignatureType), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			secret := testSecret
			if tt.name == "wrong secret" {
				secret = strings.Repeat("x", 32)
			}
			_, err := ParseToken(tt.token, secret)
			if !errors.Is(err, ErrTokenInvalid) {
				t.Fatalf("ParseToken() error = %v, want ErrTokenInvalid", err)
			}
			if got := errors.Is(err, ErrTokenExpired); got != tt.wantExpired {
				t.Errorf("errors.Is(err, ErrTokenExpired) = %v, want %v", got, tt.wantExpired)
			}
		})
	}
}

func TestGenerateRefreshToken(t *testing.T) {
	a, err := GenerateRefreshToken()
	if err != nil {
		t.Fatalf("GenerateRefreshToken() error = %v", err)
	}
	b, err := GenerateRefreshToken()
	if err != nil {
		t.Fatalf("GenerateRefreshToken() error = %v", err)
	}
	if len(a) != 64 {
		t.Errorf("len = %d, want 64 hex chars", len(a))
	}
	if a == b {
		t.Error("two refresh tokens should differ")
	}
}
