package auth

import (
	"context"
	"fmt"
	"time"

	firebase "firebase.google.com/go/v4"
	"firebase.google.com/go/v4/auth"
	"google.golang.org/api/option"
)

// FirebaseVerifier implements Verifier with the Firebase Admin SDK.
type FirebaseVerifier struct {
	authClient *auth.Client
}

func NewFirebaseVerifier(ctx context.Context, projectID, credJSON string) (*FirebaseVerifier, error) {
	var opts []option.ClientOption
	if credJSON != "" {
		opts = append(opts, option.WithCredentialsJSON([]byte(credJSON)))
	}
	app, err := firebase.NewApp(ctx, &firebase.Config{ProjectID: projectID}, opts...)
	if err != nil {
		return nil, fmt.Errorf("error initializing app: %w", err)
	}

	authClient, err := app.Auth(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get Firebase Auth client: %w", err)
	}

	return &FirebaseVerifier{authClient: authClient}, nil
}

func identityOf(token *auth.Token) *Identity {
	id := &Identity{UID: token.UID, AuthTime: time.Unix(token.AuthTime, 0)}
	if email, ok := token.Claims["email"].(string); ok {
		id.Email = email
	}
	if verified, ok := token.Claims["email_verified"].(bool); ok {
		id.EmailVerified = verified
	}
	if name, ok := token.Claims["name"].(string); ok {
		id.Name = name
	}
	if admin, ok := token.Claims["admin"].(bool); ok {
		id.AdminClaim = admin
	}
	return id
}

func (f *FirebaseVerifier) VerifyIDToken(ctx context.Context, idToken string) (*Identity, error) {
	token, err := f.authClient.VerifyIDToken(ctx, idToken)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	return identityOf(token), nil
}

func (f *FirebaseVerifier) CreateSessionCookie(ctx context.Context, idToken string, expiresIn time.Duration) (string, error) {
	return f.authClient.SessionCookie(ctx, idToken, expiresIn)
}

func (f *FirebaseVerifier) VerifySessionCookie(ctx context.Context, cookie string) (*Identity, error) {
	token, err := f.authClient.VerifySessionCookieAndCheckRevoked(ctx, cookie)
	if err != nil {
		if auth.IsSessionCookieRevoked(err) {
			return nil, ErrExpiredToken
		}
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	return identityOf(token), nil
}

func (f *FirebaseVerifier) RevokeSessions(ctx context.Context, uid string) error {
	return f.authClient.RevokeRefreshTokens(ctx, uid)
}
