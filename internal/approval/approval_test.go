package approval

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/starford/dagaz/internal/apperr"
)

var secret = []byte("test-secret")

func freshToken(scopes ...string) Token {
	now := time.Now().UTC()
	return Token{
		Scopes:    scopes,
		Issuer:    "test",
		IssuedAt:  now,
		ExpiresAt: now.Add(time.Minute),
		Nonce:     "nonce-1",
		SingleUse: false,
	}
}

func TestAuthorizeValid(t *testing.T) {
	g := NewGate(secret)
	serialized := Sign(secret, freshToken(ScopeDeleteSlide))

	if err := g.Authorize(serialized, ScopeDeleteSlide); err != nil {
		t.Fatalf("Authorize: %v", err)
	}
	// Multi-use token verifies again.
	if err := g.Authorize(serialized, ScopeDeleteSlide); err != nil {
		t.Fatalf("second Authorize: %v", err)
	}
}

func TestAuthorizeMissing(t *testing.T) {
	g := NewGate(secret)
	err := g.Authorize("", ScopeDeleteSlide)
	if !errors.Is(err, apperr.ErrPermission) {
		t.Fatalf("err = %v, want ErrPermission", err)
	}
	if !strings.Contains(err.Error(), ScopeDeleteSlide) {
		t.Errorf("error does not name the required scope: %v", err)
	}
}

func TestAuthorizeMalformed(t *testing.T) {
	g := NewGate(secret)
	for _, tok := range []string{"no-dot", "a.b.c.d", "!!!.###", "."} {
		if err := g.Authorize(tok, ScopeDeleteSlide); !errors.Is(err, apperr.ErrPermission) {
			t.Errorf("Authorize(%q): err = %v, want ErrPermission", tok, err)
		}
	}
}

func TestAuthorizeBadSignature(t *testing.T) {
	g := NewGate(secret)
	forged := Sign([]byte("other-secret"), freshToken(ScopeDeleteSlide))
	err := g.Authorize(forged, ScopeDeleteSlide)
	if !errors.Is(err, apperr.ErrPermission) {
		t.Fatalf("err = %v, want ErrPermission", err)
	}
	if !strings.Contains(err.Error(), "signature") {
		t.Errorf("rejection does not name the signature: %v", err)
	}
}

func TestAuthorizeTamperedPayload(t *testing.T) {
	g := NewGate(secret)
	serialized := Sign(secret, freshToken(ScopeRemoveShape))
	// Flip a payload byte; the signature no longer matches.
	tampered := "A" + serialized[1:]
	if err := g.Authorize(tampered, ScopeRemoveShape); !errors.Is(err, apperr.ErrPermission) {
		t.Fatalf("err = %v, want ErrPermission", err)
	}
}

func TestAuthorizeExpired(t *testing.T) {
	g := NewGate(secret)
	tok := freshToken(ScopeDeleteSlide)
	serialized := Sign(secret, tok)

	g.now = func() time.Time { return tok.ExpiresAt.Add(time.Second) }
	err := g.Authorize(serialized, ScopeDeleteSlide)
	if !errors.Is(err, apperr.ErrPermission) {
		t.Fatalf("err = %v, want ErrPermission", err)
	}
	if !strings.Contains(err.Error(), "expired") {
		t.Errorf("rejection does not name expiry: %v", err)
	}
}

func TestAuthorizeWrongScope(t *testing.T) {
	g := NewGate(secret)
	serialized := Sign(secret, freshToken(ScopeRemoveShape))
	err := g.Authorize(serialized, ScopeDeleteSlide)
	if !errors.Is(err, apperr.ErrPermission) {
		t.Fatalf("err = %v, want ErrPermission", err)
	}
	if !strings.Contains(err.Error(), "scope") {
		t.Errorf("rejection does not name the scope: %v", err)
	}
}

func TestAuthorizeMultiScope(t *testing.T) {
	g := NewGate(secret)
	serialized := Sign(secret, freshToken(ScopeDeleteSlide, ScopeReplaceAllText))
	if err := g.Authorize(serialized, ScopeReplaceAllText); err != nil {
		t.Fatalf("Authorize: %v", err)
	}
}

func TestAuthorizeSingleUse(t *testing.T) {
	g := NewGate(secret)
	tok := freshToken(ScopeDeleteSlide)
	tok.SingleUse = true
	serialized := Sign(secret, tok)

	if err := g.Authorize(serialized, ScopeDeleteSlide); err != nil {
		t.Fatalf("first use: %v", err)
	}
	err := g.Authorize(serialized, ScopeDeleteSlide)
	if !errors.Is(err, apperr.ErrPermission) {
		t.Fatalf("second use: err = %v, want ErrPermission", err)
	}
	if !strings.Contains(err.Error(), "spent") {
		t.Errorf("rejection does not name reuse: %v", err)
	}
}

// Signature check runs before expiry, scope, and single-use tracking: a
// forged token must not spend a nonce.
func TestForgedTokenDoesNotSpendNonce(t *testing.T) {
	g := NewGate(secret)
	tok := freshToken(ScopeDeleteSlide)
	tok.SingleUse = true

	forged := Sign([]byte("other"), tok)
	if err := g.Authorize(forged, ScopeDeleteSlide); !errors.Is(err, apperr.ErrPermission) {
		t.Fatalf("forged: %v", err)
	}

	genuine := Sign(secret, tok)
	if err := g.Authorize(genuine, ScopeDeleteSlide); err != nil {
		t.Fatalf("genuine token rejected after forgery attempt: %v", err)
	}
}
