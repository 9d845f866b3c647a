package auth

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	apierrors "github.com/casaolivo/bnb-server/internal/errors"
	"github.com/casaolivo/bnb-server/internal/models"
	"github.com/casaolivo/bnb-server/internal/storage"
)

// Firebase only mints session cookies for recent sign-ins.
const maxSignInAge = 5 * time.Minute

// Handler serves the session endpoints.
type Handler struct {
	mw           *Middleware
	sessionTTL   time.Duration
	secureCookie bool
	now          func() time.Time
}

func NewHandler(mw *Middleware, sessionTTL time.Duration, siteURL string) *Handler {
	return &Handler{
		mw:           mw,
		sessionTTL:   sessionTTL,
		secureCookie: strings.HasPrefix(siteURL, "https://"),
		now:          time.Now,
	}
}

func (h *Handler) setCookie(c *gin.Context, value string, maxAge int) {
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(h.mw.cookieName, value, maxAge, "/", "", h.secureCookie, true)
}

// CreateSession handles POST /api/auth/session. It exchanges a fresh Firebase
// ID token for an HttpOnly session cookie and makes sure the user document exists.
func (h *Handler) CreateSession(c *gin.Context) {
	ctx := c.Request.Context()
	log := h.mw.logger.WithContext(ctx)

	var body struct {
		IDToken string `json:"idToken" binding:"required"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		apierrors.BadRequest(c, "idToken is required", nil)
		return
	}

	id, err := h.mw.verifier.VerifyIDToken(ctx, body.IDToken)
	if err != nil {
		apierrors.Unauthorized(c, "invalid or expired token", nil)
		return
	}
	if h.now().Sub(id.AuthTime) > maxSignInAge {
		apierrors.Unauthorized(c, ErrStaleSignIn.Error(), nil)
		return
	}

	cookie, err := h.mw.verifier.CreateSessionCookie(ctx, body.IDToken, h.sessionTTL)
	if err != nil {
		log.Error("failed to create session cookie", slog.String("error", err.Error()))
		apierrors.Unauthorized(c, "could not start session", nil)
		return
	}

	admin := h.mw.IsAdmin(ctx, id)
	user, err := h.ensureUser(c, id, admin)
	if err != nil {
		log.Error("failed to store user", slog.String("user_id", id.UID), slog.String("error", err.Error()))
		apierrors.Internal(c, "failed to start session", nil)
		return
	}

	h.setCookie(c, cookie, int(h.sessionTTL.Seconds()))
	log.Info("session created", slog.String("user_id", id.UID), slog.Bool("admin", admin))
	c.JSON(http.StatusOK, gin.H{"user": user, "admin": admin})
}

func (h *Handler) ensureUser(c *gin.Context, id *Identity, admin bool) (*models.User, error) {
	ctx := c.Request.Context()
	user, err := h.mw.users.GetUser(ctx, id.UID)
	if err == nil {
		changed := false
		if user.Email != id.Email && id.Email != "" {
			user.Email, changed = id.Email, true
		}
		if admin && user.Role != models.RoleAdmin {
			user.Role, changed = models.RoleAdmin, true
		}
		if changed {
			return user, h.mw.users.SaveUser(ctx, user)
		}
		return user, nil
	}
	if !errors.Is(err, storage.ErrNotFound) {
		return nil, err
	}

	user = &models.User{ID: id.UID, Email: id.Email, Name: id.Name, Role: models.RoleGuest}
	if admin {
		user.Role = models.RoleAdmin
	}
	return user, h.mw.users.SaveUser(ctx, user)
}

// Logout handles POST /api/auth/logout: revokes the Firebase sessions and
// clears the cookie. It succeeds without a session too.
func (h *Handler) Logout(c *gin.Context) {
	ctx := c.Request.Context()
	if cookie, err := c.Cookie(h.mw.cookieName); err == nil && cookie != "" {
		if id, err := h.mw.verifier.VerifySessionCookie(ctx, cookie); err == nil {
			if err := h.mw.verifier.RevokeSessions(ctx, id.UID); err != nil {
				h.mw.logger.WithContext(ctx).Warn("failed to revoke sessions", slog.String("error", err.Error()))
			}
		}
	}
	h.setCookie(c, "", -1)
	c.JSON(http.StatusOK, gin.H{"status": "signed_out"})
}

// Me handles GET /api/auth/me behind RequireUser.
func (h *Handler) Me(c *gin.Context) {
	id, _ := GetIdentity(c)
	c.JSON(http.StatusOK, gin.H{
		"uid":   id.UID,
		"email": id.Email,
		"name":  id.Name,
		"admin": h.mw.IsAdmin(c.Request.Context(), id),
	})
}
