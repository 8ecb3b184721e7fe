// internal/infra/auth/session_gate.go
package auth

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	fbauth "firebase.google.com/go/v4/auth"
)

var (
	ErrNoSession    = errors.New("auth: no session")
	ErrInvalidToken = errors.New("auth: invalid token")
)

// tokenVerifier is the slice of firebase auth we use (satisfied by
// *fbauth.Client; narrowed for testability).
type tokenVerifier interface {
	VerifyIDToken(ctx context.Context, idToken string) (*fbauth.Token, error)
}

// SessionGate holds the customer's Firebase ID token for one session and
// answers the engine's "is the user authenticated" question synchronously
// from the cached expiry. Verification happens once per SignIn, not per cart
// operation.
type SessionGate struct {
	mu       sync.RWMutex
	verifier tokenVerifier

	idToken   string
	uid       string
	expiresAt time.Time

	// now is swappable for tests
	now func() time.Time
}

func NewSessionGate(verifier *fbauth.Client) *SessionGate {
	return &SessionGate{verifier: verifier, now: time.Now}
}

// newSessionGateForTest injects a fake verifier and clock.
func newSessionGateForTest(verifier tokenVerifier, now func() time.Time) *SessionGate {
	if now == nil {
		now = time.Now
	}
	return &SessionGate{verifier: verifier, now: now}
}

// SignIn verifies idToken and caches it for the session.
func (g *SessionGate) SignIn(ctx context.Context, idToken string) error {
	if g == nil || g.verifier == nil {
		return errors.New("auth: session gate not initialized")
	}

	tok := strings.TrimSpace(idToken)
	if tok == "" {
		return ErrInvalidToken
	}

	decoded, err := g.verifier.VerifyIDToken(ctx, tok)
	if err != nil {
		return ErrInvalidToken
	}
	if decoded == nil || strings.TrimSpace(decoded.UID) == "" {
		return ErrInvalidToken
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	g.idToken = tok
	g.uid = decoded.UID
	g.expiresAt = time.Unix(decoded.Expires, 0)
	return nil
}

// SignOut drops the session. The cart session is torn down alongside.
func (g *SessionGate) SignOut() {
	if g == nil {
		return
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	g.idToken = ""
	g.uid = ""
	g.expiresAt = time.Time{}
}

// IsAuthenticated implements cart.AuthGate: a non-expired verified token is
// cached for this session.
func (g *SessionGate) IsAuthenticated() bool {
	if g == nil {
		return false
	}
	g.mu.RLock()
	defer g.mu.RUnlock()
	if g.idToken == "" {
		return false
	}
	return g.now().Before(g.expiresAt)
}

// IDToken implements httpout.TokenSource ("" when signed out / expired).
func (g *SessionGate) IDToken() string {
	if g == nil {
		return ""
	}
	g.mu.RLock()
	defer g.mu.RUnlock()
	if g.idToken == "" || !g.now().Before(g.expiresAt) {
		return ""
	}
	return g.idToken
}

// UID returns the signed-in customer's Firebase UID ("" when signed out).
func (g *SessionGate) UID() string {
	if g == nil {
		return ""
	}
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.uid
}

// ----------------------------
// StaticGate
// ----------------------------

// StaticGate is a fixed gate for local development (no Firebase project) and
// tests.
type StaticGate struct {
	Authenticated bool
	Token         string
}

func (g StaticGate) IsAuthenticated() bool { return g.Authenticated }
func (g StaticGate) IDToken() string       { return g.Token }
