package auth

import (
	"errors"
	"testing"
	"time"

	jwtv5 "github.com/golang-jwt/jwt/v5"
)

const (
	testSecret = "0123456789abcdef0123456789abcdef"
	testUserID = "a3f91a91-7fdd-43bf-bfd2-00bc02f6c53e"
)

func TestManagerRoundTrip(t *testing.T) {
	t.Parallel()

	m := NewManager(testSecret, "alumni")
	token, err := m.GenerateToken(testUserID, true, time.Minute)
	if err != nil {
		t.Fatalf("generate failed: %v", err)
	}

	actor, err := m.ParseToken(token)
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	if actor.UserID != testUserID || !actor.IsStaff {
		t.Fatalf("unexpected actor: %+v", actor)
	}
}

func TestManagerRejectsExpiredToken(t *testing.T) {
	t.Parallel()

	m := NewManager(testSecret, "")
	token, err := m.GenerateToken(testUserID, false, -time.Minute)
	if err != nil {
		t.Fatalf("generate failed: %v", err)
	}
	if _, err := m.ParseToken(token); !errors.Is(err, ErrTokenExpired) {
		t.Fatalf("expected ErrTokenExpired, got %v", err)
	}
}

func TestManagerRejectsInvalidTokens(t *testing.T) {
	t.Parallel()

	m := NewManager(testSecret, "alumni")

	otherSecret, _ := NewManager("another-secret-of-enough-length", "alumni").GenerateToken(testUserID, false, time.Minute)
	otherIssuer, _ := NewManager(testSecret, "someone-else").GenerateToken(testUserID, false, time.Minute)
	badSubject, _ := m.GenerateToken("not-a-uuid", false, time.Minute)
	unsigned, _ := jwtv5.NewWithClaims(jwtv5.SigningMethodNone, Claims{
		RegisteredClaims: jwtv5.RegisteredClaims{Subject: testUserID, Issuer: "alumni"},
	}).SignedString(jwtv5.UnsafeAllowNoneSignatureType)

	for name, token := range map[string]string{
		"garbage":      "not.a.token",
		"other secret": otherSecret,
		"other issuer": otherIssuer,
		"bad subject":  badSubject,
		"alg none":     unsigned,
	} {
		if _, err := m.ParseToken(token); !errors.Is(err, ErrTokenInvalid) {
			t.Fatalf("%s: expected ErrTokenInvalid, got %v", name, err)
		}
	}
}
