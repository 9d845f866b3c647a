package auth

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/casaolivo/bnb-server/internal/logger"
	"github.com/casaolivo/bnb-server/internal/models"
	"github.com/casaolivo/bnb-server/internal/storage/memory"
)

type fakeVerifier struct {
	tokens  map[string]*Identity
	revoked []string
}

func (f *fakeVerifier) VerifyIDToken(_ context.Context, token string) (*Identity, error) {
	if id, ok := f.tokens[token]; ok {
		return id, nil
	}
	return nil, ErrInvalidToken
}

func (f *fakeVerifier) CreateSessionCookie(_ context.Context, token string, _ time.Duration) (string, error) {
	if _, ok := f.tokens[token]; !ok {
		return "", ErrInvalidToken
	}
	return "session-" + token, nil
}

func (f *fakeVerifier) VerifySessionCookie(ctx context.Context, cookie string) (*Identity, error) {
	return f.VerifyIDToken(ctx, strings.TrimPrefix(cookie, "session-"))
}

func (f *fakeVerifier) RevokeSessions(_ context.Context, uid string) error {
	f.revoked = append(f.revoked, uid)
	return nil
}

type adminList []string

func (l adminList) IsAdminEmail(email string) bool {
	for _, e := range l {
		if strings.EqualFold(e, email) {
			return true
		}
	}
	return false
}

func newTestMiddleware(t *testing.T) (*Middleware, *fakeVerifier, *memory.Store) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	v := &fakeVerifier{tokens: map[string]*Identity{
		"guest":      {UID: "u-guest", Email: "guest@example.com", EmailVerified: true},
		"listed":     {UID: "u-listed", Email: "owner@example.com", EmailVerified: true},
		"unverified": {UID: "u-unverified", Email: "owner@example.com"},
		"claim":      {UID: "u-claim", Email: "x@example.com", AdminClaim: true},
		"stored":     {UID: "u-stored", Email: "y@example.com"},
	}}
	store := memory.New()
	if err := store.SaveUser(context.Background(), &models.User{ID: "u-stored", Role: models.RoleAdmin}); err != nil {
		t.Fatalf("SaveUser: %v", err)
	}
	return NewMiddleware(v, store, adminList{"owner@example.com"}, "__session", logger.Discard()), v, store
}

func TestRequireUserAndAdmin(t *testing.T) {
	mw, _, _ := newTestMiddleware(t)

	r := gin.New()
	r.GET("/me", mw.RequireUser(), func(c *gin.Context) {
		uid, _ := GetUserID(c)
		c.String(http.StatusOK, uid)
	})
	r.GET("/admin", mw.RequireAdmin(), func(c *gin.Context) {
		if !IsAdminRequest(c) {
			t.Error("IsAdminRequest = false inside RequireAdmin")
		}
		c.Status(http.StatusNoContent)
	})

	tests := []struct {
		name   string
		path   string
		bearer string
		cookie string
		want   int
	}{
		{name: "user without credentials", path: "/me", want: http.StatusUnauthorized},
		{name: "user with bad token", path: "/me", bearer: "nope", want: http.StatusUnauthorized},
		{name: "user with bearer", path: "/me", bearer: "guest", want: http.StatusOK},
		{name: "user with cookie", path: "/me", cookie: "session-guest", want: http.StatusOK},
		{name: "admin without credentials", path: "/admin", want: http.StatusUnauthorized},
		{name: "guest is not admin", path: "/admin", bearer: "guest", want: http.StatusForbidden},
		{name: "listed verified email", path: "/admin", bearer: "listed", want: http.StatusNoContent},
		{name: "listed unverified email", path: "/admin", bearer: "unverified", want: http.StatusForbidden},
		{name: "custom claim", path: "/admin", bearer: "claim", want: http.StatusNoContent},
		{name: "stored role", path: "/admin", cookie: "session-stored", want: http.StatusNoContent},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, tt.path, nil)
			if tt.bearer != "" {
				req.Header.Set("Authorization", "Bearer "+tt.bearer)
			}
			if tt.cookie != "" {
				req.AddCookie(&http.Cookie{Name: "__session", Value: tt.cookie})
			}
			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)
			if w.Code != tt.want {
				t.Fatalf("status = %d, want %d (body %s)", w.Code, tt.want, w.Body.String())
			}
		})
	}
}

func TestOptionalUser(t *testing.T) {
	mw, _, _ := newTestMiddleware(t)
	r := gin.New()
	r.GET("/", mw.OptionalUser(), func(c *gin.Context) {
		uid, _ := GetUserID(c)
		c.String(http.StatusOK, uid)
	})

	for token, want := range map[string]string{"": "", "nope": "", "guest": "u-guest"} {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		if token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		if w.Code != http.StatusOK || w.Body.String() != want {
			t.Errorf("token %q: got %d %q, want 200 %q", token, w.Code, w.Body.String(), want)
		}
	}
}

func TestCreateSession(t *testing.T) {
	mw, v, store := newTestMiddleware(t)
	now := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	v.tokens["guest"].AuthTime = now.Add(-time.Minute)
	v.tokens["listed"].AuthTime = now.Add(-10 * time.Minute)

	h := NewHandler(mw, 5*24*time.Hour, "https://casaolivo.example")
	h.now = func() time.Time { return now }
	r := gin.New()
	r.POST("/session", h.CreateSession)

	post := func(body string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/session", bytes.NewBufferString(body))
		req.Header.Set("Content-Type", "application/json")
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		return w
	}

	if w := post(`{}`); w.Code != http.StatusBadRequest {
		t.Errorf("missing token: status = %d, want 400", w.Code)
	}
	if w := post(`{"idToken":"nope"}`); w.Code != http.StatusUnauthorized {
		t.Errorf("bad token: status = %d, want 401", w.Code)
	}
	if w := post(`{"idToken":"listed"}`); w.Code != http.StatusUnauthorized {
		t.Errorf("stale sign-in: status = %d, want 401", w.Code)
	}

	w := post(`{"idToken":"guest"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200 (body %s)", w.Code, w.Body.String())
	}
	cookie := w.Header().Get("Set-Cookie")
	for _, part := range []string{"__session=session-guest", "HttpOnly", "Secure", "SameSite=Lax"} {
		if !strings.Contains(cookie, part) {
			t.Errorf("Set-Cookie %q missing %q", cookie, part)
		}
	}
	user, err := store.GetUser(context.Background(), "u-guest")
	if err != nil {
		t.Fatalf("user not stored: %v", err)
	}
	if user.Role != models.RoleGuest || user.Email != "guest@example.com" {
		t.Errorf("stored user = %+v", user)
	}
}

func TestLogoutRevokes(t *testing.T) {
	mw, v, _ := newTestMiddleware(t)
	h := NewHandler(mw, time.Hour, "http://localhost:8080")
	r := gin.New()
	r.POST("/logout", h.Logout)

	req := httptest.NewRequest(http.MethodPost, "/logout", nil)
	req.AddCookie(&http.Cookie{Name: "__session", Value: "session-guest"})
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	if len(v.revoked) != 1 || v.revoked[0] != "u-guest" {
		t.Errorf("revoked = %v", v.revoked)
	}
	if !strings.Contains(w.Header().Get("Set-Cookie"), "Max-Age=0") {
		t.Errorf("cookie not cleared: %q", w.Header().Get("Set-Cookie"))
	}
}

func TestManageTokens(t *testing.T) {
	secret := strings.Repeat("k", 32)
	if _, err := NewManageTokens("short", time.Hour); err == nil {
		t.Fatal("expected error for short secret")
	}

	tokens, err := NewManageTokens(secret, time.Hour)
	if err != nil {
		t.Fatal(err)
	}
	signed, err := tokens.Sign("b-1", "Guest@Example.com")
	if err != nil {
		t.Fatal(err)
	}
	claims, err := tokens.Parse(signed)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if claims.BookingID != "b-1" || claims.Email != "guest@example.com" {
		t.Errorf("claims = %+v", claims)
	}

	other, _ := NewManageTokens(strings.Repeat("z", 32), time.Hour)
	if _, err := other.Parse(signed); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("wrong secret: err = %v, want ErrInvalidToken", err)
	}
	if _, err := tokens.Parse("not-a-jwt"); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("garbage: err = %v, want ErrInvalidToken", err)
	}

	tokens.now = func() time.Time { return time.Now().Add(-2 * time.Hour) }
	old, _ := tokens.Sign("b-1", "guest@example.com")
	tokens.now = time.Now
	if _, err := tokens.Parse(old); !errors.Is(err, ErrExpiredToken) {
		t.Errorf("expired: err = %v, want ErrExpiredToken", err)
	}
}
