package auth

import (
	"testing"
	"time"
)

func TestVerifyAcceptsTokenFromIssueDevToken(t *testing.T) {
	v := NewVerifier("test-secret")
	token, err := v.IssueDevToken(42, "playerone", time.Minute)
	if err != nil {
		t.Fatalf("IssueDevToken: %v", err)
	}

	claims, err := v.Verify(token)
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if claims.PlayerID != 42 {
		t.Errorf("PlayerID = %d, want 42", claims.PlayerID)
	}
	if claims.Username != "playerone" {
		t.Errorf("Username = %q, want playerone", claims.Username)
	}
}

func TestVerifyRejectsExpiredToken(t *testing.T) {
	v := NewVerifier("test-secret")
	token, err := v.IssueDevToken(1, "stale", -time.Minute)
	if err != nil {
		t.Fatalf("IssueDevToken: %v", err)
	}
	if _, err := v.Verify(token); err == nil {
		t.Fatal("expected expired token to fail verification")
	}
}

func TestVerifyRejectsWrongSecret(t *testing.T) {
	issuer := NewVerifier("secret-a")
	token, err := issuer.IssueDevToken(1, "someone", time.Minute)
	if err != nil {
		t.Fatalf("IssueDevToken: %v", err)
	}

	verifier := NewVerifier("secret-b")
	if _, err := verifier.Verify(token); err == nil {
		t.Fatal("expected verification against a different secret to fail")
	}
}

func TestVerifyRejectsGarbage(t *testing.T) {
	v := NewVerifier("test-secret")
	if _, err := v.Verify("not-a-jwt"); err == nil {
		t.Fatal("expected malformed token to fail verification")
	}
}
