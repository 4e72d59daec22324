package auth

import (
	"errors"
	"testing"
	"time"

	"github.com/mentorlink/internal/model"
)

func TestGenerateAndValidateToken(t *testing.T) {
	a := NewAuthenticator("super-secret-key", "mentorlink-auth", time.Hour)

	token, err := a.GenerateToken("user-123", model.RoleMentor)
	if err != nil {
		t.Fatalf("failed to generate token: %v", err)
	}
	if token == "" {
		t.Fatal("generated token is empty")
	}

	claims, err := a.ValidateToken(token)
	if err != nil {
		t.Fatalf("failed to validate token: %v", err)
	}
	if claims.UserID != "user-123" {
		t.Errorf("expected user ID user-123, got %s", claims.UserID)
	}
	if claims.Role != model.RoleMentor {
		t.Errorf("expected role mentor, got %s", claims.Role)
	}
	if claims.Issuer != "mentorlink-auth" {
		t.Errorf("expected issuer mentorlink-auth, got %s", claims.Issuer)
	}
}

func TestExpiredToken(t *testing.T) {
	a := NewAuthenticator("super-secret-key", "mentorlink-auth", -time.Minute)

	token, err := a.GenerateToken("u1", model.RoleMentee)
	if err != nil {
		t.Fatalf("failed to generate token: %v", err)
	}
	if _, err := a.ValidateToken(token); !errors.Is(err, ErrExpiredToken) {
		t.Fatalf("expected ErrExpiredToken, got %v", err)
	}
}

func TestInvalidSignature(t *testing.T) {
	a1 := NewAuthenticator("secret1", "mentorlink-auth", time.Hour)
	a2 := NewAuthenticator("secret2", "mentorlink-auth", time.Hour)

	token, _ := a1.GenerateToken("u1", model.RoleMentee)
	if _, err := a2.ValidateToken(token); err == nil {
		t.Fatal("expected error for invalid signature, got nil")
	}
}
