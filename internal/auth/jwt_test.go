package auth

import (
	"testing"
	"time"

	"je-portal/backend/internal/models"
)

func TestTokenRoundTrip(t *testing.T) {
	service, err := NewService("test-secret", time.Hour)
	if err != nil {
		t.Fatalf("service init: %v", err)
	}

	csrf, err := GenerateCSRFToken()
	if err != nil {
		t.Fatalf("csrf: %v", err)
	}

	user := models.User{ID: "6f1c2a", Name: "Alice", Email: "alice@je.fr", Role: models.RoleAdmin}
	token, err := service.GenerateToken(user, csrf)
	if err != nil {
		t.Fatalf("generate token: %v", err)
	}

	parsed, err := service.ParseToken(token)
	if err != nil {
		t.Fatalf("parse token: %v", err)
	}

	if parsed.ID != user.ID || parsed.Email != user.Email || parsed.Role != user.Role || !parsed.IsAdmin() {
		t.Fatalf("unexpected claims: %+v", parsed)
	}
	if parsed.CSRF != csrf {
		t.Fatalf("csrf mismatch")
	}
}

func TestParseTokenRejectsOtherSecret(t *testing.T) {
	issuer, _ := NewService("one", time.Hour)
	verifier, _ := NewService("two", time.Hour)

	token, err := issuer.GenerateToken(models.User{ID: "u1", Role: models.RoleRJE}, "c")
	if err != nil {
		t.Fatalf("generate token: %v", err)
	}
	if _, err := verifier.ParseToken(token); err == nil {
		t.Fatalf("expected signature error")
	}
}

func TestParseTokenRejectsExpired(t *testing.T) {
	service, _ := NewService("secret", -time.Minute)
	token, err := service.GenerateToken(models.User{ID: "u1"}, "c")
	if err != nil {
		t.Fatalf("generate token: %v", err)
	}
	if _, err := service.ParseToken(token); err == nil {
		t.Fatalf("expected expiry error")
	}
}

func TestPasswordHashing(t *testing.T) {
	hash, err := HashPassword("s3cret")
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	if !CheckPassword(hash, "s3cret") {
		t.Fatalf("expected password match")
	}
	if CheckPassword(hash, "wrong") {
		t.Fatalf("expected mismatch")
	}
}
