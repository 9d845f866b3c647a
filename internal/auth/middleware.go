package auth

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"github.com/gin-gonic/gin"

	apierrors "github.com/casaolivo/bnb-server/internal/errors"
	"github.com/casaolivo/bnb-server/internal/logger"
	"github.com/casaolivo/bnb-server/internal/models"
	"github.com/casaolivo/bnb-server/internal/storage"
)

type contextKey string

const (
	// IdentityKey holds the *Identity of the signed-in user.
	IdentityKey contextKey = "identity"
	// AdminKey is true when the user may use the admin console.
	AdminKey contextKey = "is_admin"
)

// AdminChecker decides admin access from the configured email list.
type AdminChecker interface {
	IsAdminEmail(email string) bool
}

// Middleware authenticates requests from the session cookie, or a Bearer ID
// token for API clients.
type Middleware struct {
	verifier   Verifier
	users      storage.UserStore
	admins     AdminChecker
	cookieName string
	logger     *logger.Logger
}

func NewMiddleware(verifier Verifier, users storage.UserStore, admins AdminChecker, cookieName string, log *logger.Logger) *Middleware {
	return &Middleware{
		verifier:   verifier,
		users:      users,
		admins:     admins,
		cookieName: cookieName,
		logger:     log.WithComponent("auth"),
	}
}

func (m *Middleware) identify(c *gin.Context) (*Identity, error) {
	ctx := c.Request.Context()
	if cookie, err := c.Cookie(m.cookieName); err == nil && cookie != "" {
		return m.verifier.VerifySessionCookie(ctx, cookie)
	}
	if header := c.GetHeader("Authorization"); strings.HasPrefix(header, "Bearer ") {
		token := strings.TrimPrefix(header, "Bearer ")
		if token == "" {
			return nil, ErrInvalidToken
		}
		return m.verifier.VerifyIDToken(ctx, token)
	}
	return nil, nil
}

// IsAdmin combines the custom claim, the stored role and ADMIN_EMAILS.
func (m *Middleware) IsAdmin(ctx context.Context, id *Identity) bool {
	if id == nil {
		return false
	}
	if id.AdminClaim {
		return true
	}
	if id.Email != "" && id.EmailVerified && m.admins != nil && m.admins.IsAdminEmail(id.Email) {
		return true
	}
	if m.users != nil {
		if u, err := m.users.GetUser(ctx, id.UID); err == nil && u.Role == models.RoleAdmin {
			return true
		}
	}
	return false
}

func (m *Middleware) attach(c *gin.Context, id *Identity) {
	ctx := logger.WithUserID(c.Request.Context(), id.UID)
	c.Request = c.Request.WithContext(ctx)
	c.Set(string(IdentityKey), id)
}

// OptionalUser attaches the identity when present and never rejects.
func (m *Middleware) OptionalUser() gin.HandlerFunc {
	return func(c *gin.Context) {
		if id, err := m.identify(c); err == nil && id != nil {
			m.attach(c, id)
		}
		c.Next()
	}
}

// RequireUser rejects requests without a valid session.
func (m *Middleware) RequireUser() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, err := m.identify(c)
		if err != nil || id == nil {
			if err != nil && !errors.Is(err, ErrExpiredToken) {
				m.logger.WithContext(c.Request.Context()).Debug("rejected credentials", slog.String("error", err.Error()))
			}
			apierrors.AbortWithUnauthorized(c, "sign in required", nil)
			return
		}
		m.attach(c, id)
		c.Next()
	}
}

// RequireAdmin rejects requests from users who are not admins.
func (m *Middleware) RequireAdmin() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, err := m.identify(c)
		if err != nil || id == nil {
			apierrors.AbortWithUnauthorized(c, "sign in required", nil)
			return
		}
		m.attach(c, id)
		if !m.IsAdmin(c.Request.Context(), id) {
			m.logger.WithContext(c.Request.Context()).Warn("admin access denied", slog.String("email", id.Email))
			apierrors.AbortWithForbidden(c, apierrors.AdminOnly())
			return
		}
		c.Set(string(AdminKey), true)
		c.Next()
	}
}

// GetIdentity returns the identity attached by the middleware.
func GetIdentity(c *gin.Context) (*Identity, bool) {
	v, exists := c.Get(string(IdentityKey))
	if !exists {
		return nil, false
	}
	id, ok := v.(*Identity)
	return id, ok && id != nil
}

// GetUserID returns the Firebase UID of the signed-in user.
func GetUserID(c *gin.Context) (string, bool) {
	id, ok := GetIdentity(c)
	if !ok {
		return "", false
	}
	return id.UID, true
}

// IsAdminRequest reports whether RequireAdmin admitted the request.
func IsAdminRequest(c *gin.Context) bool {
	return c.GetBool(string(AdminKey))
}
