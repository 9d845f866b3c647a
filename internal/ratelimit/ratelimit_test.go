package ratelimit

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"

	"github.com/casaolivo/bnb-server/internal/logger"
)

func TestAllowPerKey(t *testing.T) {
	l := PerHour("contact", 2)
	now := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	l.now = func() time.Time { return now }

	for i := 0; i < 2; i++ {
		if ok, _ := l.Allow("1.2.3.4"); !ok {
			t.Fatalf("request %d rejected", i+1)
		}
	}
	ok, wait := l.Allow("1.2.3.4")
	if ok {
		t.Fatal("third request allowed")
	}
	if wait <= 0 || wait > 30*time.Minute {
		t.Errorf("wait = %v, want about 30m", wait)
	}
	if ok, _ := l.Allow("5.6.7.8"); !ok {
		t.Error("other client throttled")
	}

	// Rejected requests must not consume tokens.
	now = now.Add(30 * time.Minute)
	if ok, _ := l.Allow("1.2.3.4"); !ok {
		t.Error("token not refilled after 30 minutes")
	}
}

func TestEvict(t *testing.T) {
	l := New("test", 1, 1, time.Minute)
	now := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	l.now = func() time.Time { return now }

	l.Allow("a")
	now = now.Add(30 * time.Second)
	l.Allow("b")
	now = now.Add(45 * time.Second)

	if n := l.Evict(); n != 1 {
		t.Errorf("evicted %d, want 1", n)
	}
	if l.Size() != 1 {
		t.Errorf("size = %d, want 1", l.Size())
	}
}

func TestMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	l := New("booking", rate.Limit(0.001), 1, time.Hour)
	r := gin.New()
	r.POST("/", l.Middleware(logger.Discard()), func(c *gin.Context) { c.Status(http.StatusNoContent) })

	do := func() *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/", nil)
		req.RemoteAddr = "10.0.0.1:1234"
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		return w
	}

	if w := do(); w.Code != http.StatusNoContent {
		t.Fatalf("first status = %d", w.Code)
	}
	w := do()
	if w.Code != http.StatusTooManyRequests {
		t.Fatalf("second status = %d, want 429", w.Code)
	}
	if w.Header().Get("Retry-After") == "" {
		t.Error("missing Retry-After")
	}
}
