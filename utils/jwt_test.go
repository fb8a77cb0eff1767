package utils

import (
	"testing"
	"time"
)

func TestClientTokensRoundTrip(t *testing.T) {
	tokens, err := NewClientTokens("secret")
	if err != nil {
		t.Fatalf("NewClientTokens: %v", err)
	}
	signed, err := tokens.Generate("client-1")
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	id, err := tokens.ClientID(signed)
	if err != nil {
		t.Fatalf("ClientID: %v", err)
	}
	if id != "client-1" {
		t.Fatalf("id = %q", id)
	}
}

func TestClientTokensRejectsOtherSecret(t *testing.T) {
	a, _ := NewClientTokens("a")
	b, _ := NewClientTokens("b")
	signed, err := a.Generate("client-1")
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if _, err := b.ClientID(signed); err == nil {
		t.Fatal("expected signature error")
	}
}

func TestClientTokensRejectsExpired(t *testing.T) {
	tokens, _ := NewClientTokens("secret")
	tokens.now = func() time.Time { return time.Now().Add(-2 * ClientTokenTTL) }
	signed, err := tokens.Generate("client-1")
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	tokens.now = time.Now
	if _, err := tokens.ClientID(signed); err == nil {
		t.Fatal("expected expiry error")
	}
}

func TestNewClientTokensRequiresSecret(t *testing.T) {
	if _, err := NewClientTokens(""); err == nil {
		t.Fatal("expected error")
	}
}
