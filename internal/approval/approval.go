// Package approval validates signed, scoped, time-limited tokens gating
// destructive operations. Token issuance happens outside the engine; this
// side only verifies.
package approval

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/starford/dagaz/internal/apperr"
)

// Scopes required by the gated operations.
const (
	ScopeDeleteSlide    = "slides:delete"
	ScopeRemoveShape    = "shapes:delete"
	ScopeReplaceAllText = "text:replace_all"
)

// Token is the signed payload. Serialized form is
// base64url(JSON payload) + "." + base64url(HMAC-SHA256 signature).
type Token struct {
	Scopes    []string  `json:"scopes"`
	Issuer    string    `json:"issuer"`
	IssuedAt  time.Time `json:"issued_at"`
	ExpiresAt time.Time `json:"expires_at"`
	Nonce     string    `json:"nonce"`
	SingleUse bool      `json:"single_use"`
}

// Gate verifies tokens against a shared secret and tracks spent
// single-use nonces for its own lifetime.
type Gate struct {
	secret []byte

	mu   sync.Mutex
	used map[string]struct{}

	now func() time.Time // test seam
}

// NewGate creates a Gate. The secret must match the issuer's.
func NewGate(secret []byte) *Gate {
	return &Gate{
		secret: secret,
		used:   make(map[string]struct{}),
		now:    time.Now,
	}
}

// Authorize validates serialized for the required scope. Checks run in a
// fixed order (presence, structure, signature, expiry, scope, single-use)
// and every rejection names the violated condition. The caller must not
// run the gated mutation unless Authorize returns nil.
func (g *Gate) Authorize(serialized, requiredScope string) error {
	if serialized == "" {
		return fmt.Errorf("%w: approval token required for scope %q, none supplied", apperr.ErrPermission, requiredScope)
	}

	payload, sig, ok := strings.Cut(serialized, ".")
	if !ok {
		return fmt.Errorf("%w: malformed approval token", apperr.ErrPermission)
	}
	payloadRaw, err := base64.RawURLEncoding.DecodeString(payload)
	if err != nil {
		return fmt.Errorf("%w: malformed approval token payload", apperr.ErrPermission)
	}
	sigRaw, err := base64.RawURLEncoding.DecodeString(sig)
	if err != nil {
		return fmt.Errorf("%w: malformed approval token signature", apperr.ErrPermission)
	}

	if !hmac.Equal(sigRaw, g.sign(payloadRaw)) {
		return fmt.Errorf("%w: approval token signature mismatch", apperr.ErrPermission)
	}

	var tok Token
	if err := json.Unmarshal(payloadRaw, &tok); err != nil {
		return fmt.Errorf("%w: malformed approval token payload", apperr.ErrPermission)
	}

	if g.now().After(tok.ExpiresAt) {
		return fmt.Errorf("%w: approval token expired at %s", apperr.ErrPermission, tok.ExpiresAt.Format(time.RFC3339))
	}

	if !hasScope(tok.Scopes, requiredScope) {
		return fmt.Errorf("%w: approval token lacks required scope %q", apperr.ErrPermission, requiredScope)
	}

	if tok.SingleUse {
		g.mu.Lock()
		defer g.mu.Unlock()
		if _, spent := g.used[tok.Nonce]; spent {
			return fmt.Errorf("%w: single-use approval token already spent", apperr.ErrPermission)
		}
		g.used[tok.Nonce] = struct{}{}
	}
	return nil
}

// Sign serializes and signs a token with the given secret. The production
// issuer lives outside the engine; this exists for tests and tooling.
func Sign(secret []byte, tok Token) string {
	payload, _ := json.Marshal(tok)
	g := &Gate{secret: secret}
	return base64.RawURLEncoding.EncodeToString(payload) + "." +
		base64.RawURLEncoding.EncodeToString(g.sign(payload))
}

func (g *Gate) sign(payload []byte) []byte {
	mac := hmac.New(sha256.New, g.secret)
	mac.Write(payload)
	return mac.Sum(nil)
}

func hasScope(scopes []string, want string) bool {
	for _, s := range scopes {
		if s == want {
			return true
		}
	}
	return false
}
