package auth

import (
	"context"
	"errors"
	"time"
)

var (
	ErrInvalidToken = errors.New("invalid token")
	ErrExpiredToken = errors.New("token has expired")
	ErrStaleSignIn  = errors.New("sign-in is too old to start a session")
)

// Identity is the signed-in user a token or session cookie vouches for.
type Identity struct {
	UID           string
	Email         string
	EmailVerified bool
	Name          string
	// AdminClaim is the Firebase custom claim "admin".
	AdminClaim bool
	AuthTime   time.Time
}

// Verifier checks Firebase credentials and manages session cookies.
type Verifier interface {
	VerifyIDToken(ctx context.Context, idToken string) (*Identity, error)
	CreateSessionCookie(ctx context.Context, idToken string, expiresIn time.Duration) (string, error)
	VerifySessionCookie(ctx context.Context, cookie string) (*Identity, error)
	RevokeSessions(ctx context.Context, uid string) error
}

// DisabledVerifier rejects every credential. It stands in when Firebase is not
// configured so the public site still runs.
type DisabledVerifier struct{}

func (DisabledVerifier) VerifyIDToken(ctx context.Context, idToken string) (*Identity, error) {
	return nil, ErrInvalidToken
}

func (DisabledVerifier) CreateSessionCookie(ctx context.Context, idToken string, expiresIn time.Duration) (string, error) {
	return "", ErrInvalidToken
}

func (DisabledVerifier) VerifySessionCookie(ctx context.Context, cookie string) (*Identity, error) {
	return nil, ErrInvalidToken
}

func (DisabledVerifier) RevokeSessions(ctx context.Context, uid string) error {
	return nil
}
