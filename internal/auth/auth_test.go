package auth

import (
	"errors"
	"testing"
)

func TestPasswordHashing(t *testing.T) {
	hash, err := HashPassword("s3cret-pass")
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	if hash == "s3cret-pass" {
		t.Fatal("hash must not equal the plaintext")
	}
	if !CheckPassword(hash, "s3cret-pass") {
		t.Error("correct password rejected")
	}
	if CheckPassword(hash, "wrong-pass") {
		t.Error("wrong password accepted")
	}
}

func TestTokenRoundTrip(t *testing.T) {
	tokens := NewTokens("test-secret", 1)

	tok, err := tokens.Issue(42, "ana")
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	claims, err := tokens.Verify(tok)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if claims.UserID != 42 || claims.Username != "ana" {
		t.Errorf("claims = %+v", claims)
	}
}

func TestTokenWrongSecret(t *testing.T) {
	tok, err := NewTokens("secret-a", 1).Issue(1, "ana")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := NewTokens("secret-b", 1).Verify(tok); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("expected ErrInvalidToken, got %v", err)
	}
}

func TestTokenExpired(t *testing.T) {
	tokens := NewTokens("test-secret", -1)
	tok, err := tokens.Issue(1, "ana")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := tokens.Verify(tok); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("expected expired token to fail, got %v", err)
	}
}

func TestVerifyGarbage(t *testing.T) {
	if _, err := NewTokens("test-secret", 1).Verify("not.a.token"); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("expected ErrInvalidToken, got %v", err)
	}
}
