// Package auth holds the identity port. The application stores its own user
// rows; the provider only answers who a credential or token belongs to.
package auth

import (
	"context"
	"time"
)

// Session is a bearer token bound to an auth identity.
type Session struct {
	Token     string
	AuthID    string
	ExpiresAt time.Time
}

type Provider interface {
	// Register creates credentials for a new identity and returns its auth ID.
	// An already-registered email fails with core.ErrConflict.
	Register(ctx context.Context, email, password string) (string, error)
	// SignIn verifies credentials and opens a session. Bad credentials fail
	// with core.ErrUnauthenticated.
	SignIn(ctx context.Context, email, password string) (Session, error)
	// SignOut revokes a session token. Unknown tokens are a no-op.
	SignOut(ctx context.Context, token string) error
	// Authenticate resolves a session token to its auth ID.
	Authenticate(ctx context.Context, token string) (string, error)
	// ChangePassword replaces the password for an identity.
	ChangePassword(ctx context.Context, authID, newPassword string) error
	// MagicLink issues a short-lived single-use sign-in token for a known
	// email. Unknown emails fail with core.ErrNotFound.
	MagicLink(ctx context.Context, email string) (string, error)
	// RedeemMagicLink consumes a magic-link token and opens a session.
	// Invalid, expired or already-used tokens fail with
	// core.ErrUnauthenticated.
	RedeemMagicLink(ctx context.Context, token string) (Session, error)
}
