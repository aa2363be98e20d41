package auth

import (
	"strings"
	"testing"
	"time"
)

func newTestTokenService(t *testing.T) *TokenService {
	t.Helper()
	ts, err := NewTokenService("test-secret-at-least-16-chars!!", time.Hour)
	if err != nil {
		t.Fatalf("NewTokenService: %v", err)
	}
	return ts
}

var alice = Principal{UserID: "user-123", Email: "alice@example.com"}

// =========================================================================
// CONSTRUCTION
// =========================================================================

func TestNewTokenService_ShortSecret(t *testing.T) {
	if _, err := NewTokenService("short", time.Hour); err == nil {
		t.Fatal("NewTokenService() should reject secrets shorter than 16 chars")
	}
}

func TestNewTokenService_DefaultTTL(t *testing.T) {
	ts, err := NewTokenService("this-is-16-chars", 0)
	if err != nil {
		t.Fatalf("NewTokenService() error = %v", err)
	}
	if ts.TTL() != DefaultTokenTTL {
		t.Errorf("TTL() = %v, want %v", ts.TTL(), DefaultTokenTTL)
	}
}

// =========================================================================
// GENERATE / VALIDATE
// =========================================================================

func TestGenerate_LooksLikeJWT(t *testing.T) {
	ts := newTestTokenService(t)

	token, err := ts.Generate(alice)
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}
	if strings.Count(token, ".") != 2 {
		t.Errorf("token %q should have 3 dot-separated parts", token)
	}
}

func TestGenerate_EmptyUserID(t *testing.T) {
	ts := newTestTokenService(t)

	if _, err := ts.Generate(Principal{Email: "x@example.com"}); err == nil {
		t.Fatal("Generate() should refuse a principal without a user ID")
	}
}

func TestValidate_RoundTrip(t *testing.T) {
	ts := newTestTokenService(t)

	token, err := ts.Generate(alice)
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}

	got, err := ts.Validate(token)
	if err != nil {
		t.Fatalf("Validate() error = %v", err)
	}
	if got != alice {
		t.Errorf("Validate() = %+v, want %+v", got, alice)
	}
}

func TestValidate_Rejects(t *testing.T) {
	ts := newTestTokenService(t)
	other, _ := NewTokenService("a-completely-different-secret", time.Hour)

	expired, _ := ts.GenerateWithDuration(alice, -time.Minute)
	valid, _ := ts.Generate(alice)
	foreign, _ := other.Generate(alice)
	tampered := valid[:len(valid)-4] + "AAAA"

	tests := map[string]string{
		"expired":      expired,
		"tampered":     tampered,
		"wrong secret": foreign,
		"empty":        "",
		"garbage":      "not.a.jwt",
	}

	for name, token := range tests {
		t.Run(name, func(t *testing.T) {
			if _, err := ts.Validate(token); err == nil {
				t.Errorf("Validate(%s) should fail", name)
			}
		})
	}
}
