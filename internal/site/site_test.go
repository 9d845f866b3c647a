package site

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"cloud.google.com/go/civil"
	"github.com/gin-gonic/gin"

	"github.com/casaolivo/bnb-server/internal/booking"
	"github.com/casaolivo/bnb-server/internal/config"
	"github.com/casaolivo/bnb-server/internal/email"
	"github.com/casaolivo/bnb-server/internal/logger"
	"github.com/casaolivo/bnb-server/internal/models"
	"github.com/casaolivo/bnb-server/internal/reviews"
	"github.com/casaolivo/bnb-server/internal/storage/memory"
)

type recordingMailer struct {
	mu   sync.Mutex
	sent []email.Message
}

func (m *recordingMailer) Send(ctx context.Context, msg email.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = append(m.sent, msg)
	return nil
}

func (m *recordingMailer) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sent)
}

type testServer struct {
	router *gin.Engine
	store  *memory.Store
	mailer *recordingMailer
	cfg    *config.Config
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)
	ctx := context.Background()

	cfg := config.Defaults()
	cfg.Property.Timezone = "UTC"
	cfg.AdminNotifyEmail = "host@example.com"
	store := memory.New()
	for _, room := range []models.Room{
		{ID: "olive", Slug: "olive", Name: "Olive Room", Summary: "Garden view", Capacity: 2, BasePrice: 10000,
			MinNights: 1, SmoobuApartmentID: 42, Active: true},
		{ID: "attic", Slug: "attic", Name: "Attic", Capacity: 2, BasePrice: 8000, MinNights: 1},
	} {
		room := room
		if err := store.SaveRoom(ctx, &room); err != nil {
			t.Fatal(err)
		}
	}

	mailer := &recordingMailer{}
	log := logger.Discard()
	s := New(Dependencies{
		Store:    store,
		Bookings: booking.NewService(booking.Dependencies{Store: store, Mailer: mailer, Logger: log}, cfg),
		Reviews:  reviews.NewService(store, 2000, time.UTC, log),
		Mailer:   mailer,
		Logger:   log,
	}, cfg)

	tmpl, err := Templates()
	if err != nil {
		t.Fatal(err)
	}
	r := gin.New()
	r.SetHTMLTemplate(tmpl)
	r.GET("/", s.Home)
	r.GET("/rooms", s.Rooms)
	r.GET("/rooms/:slug", s.Room)
	r.GET("/contact", s.Contact)
	r.GET("/booking/success", s.BookingSuccess)
	r.GET("/booking/cancelled", s.BookingCancelled)
	r.GET("/account", s.Account)
	r.GET("/manage", s.Manage)
	r.GET("/api/rooms", s.ListRooms)
	r.GET("/api/rooms/slug/:slug", s.RoomBySlug)
	r.POST("/api/contact", s.SubmitContact)
	r.NoRoute(s.NotFound)

	return &testServer{router: r, store: store, mailer: mailer, cfg: cfg}
}

func (s *testServer) do(method, path, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, bytes.NewBufferString(body))
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	return w
}

func (s *testServer) seedBooking(t *testing.T, b models.Booking) {
	t.Helper()
	if err := s.store.SaveBooking(context.Background(), &b); err != nil {
		t.Fatal(err)
	}
}

func TestPages(t *testing.T) {
	s := newTestServer(t)
	future := civil.DateOf(time.Now().UTC()).AddDays(30)
	s.seedBooking(t, models.Booking{ID: "b-ok", RoomID: "olive", Channel: models.ChannelSite, Status: models.StatusConfirmed,
		CheckIn: future, CheckOut: future.AddDays(2), Guests: 2, TotalAmount: 20000, Currency: "eur"})

	tests := []struct {
		path     string
		want     int
		contains string
	}{
		{"/", http.StatusOK, "Olive Room"},
		{"/rooms", http.StatusOK, "from EUR 100.00 a night"},
		{"/rooms/olive", http.StatusOK, "Book your stay"},
		{"/rooms/attic", http.StatusNotFound, "This room does not exist."},
		{"/rooms/missing", http.StatusNotFound, "This room does not exist."},
		{"/contact", http.StatusOK, `name="message"`},
		{"/booking/success?booking=b-ok", http.StatusOK, "Your stay is confirmed"},
		{"/booking/success?booking=nope", http.StatusNotFound, "We could not find this booking."},
		{"/account", http.StatusOK, "Your account"},
		{"/manage?token=abc", http.StatusOK, "/api/manage?token="},
		{"/nowhere", http.StatusNotFound, "Page not found."},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			w := s.do(http.MethodGet, tt.path, "")
			if w.Code != tt.want {
				t.Fatalf("status = %d, want %d", w.Code, tt.want)
			}
			if !strings.Contains(w.Body.String(), tt.contains) {
				t.Errorf("body does not contain %q", tt.contains)
			}
		})
	}

	if body := s.do(http.MethodGet, "/", "").Body.String(); strings.Contains(body, "Attic") {
		t.Error("home page lists an inactive room")
	}
}

func TestBookingCancelledReleasesHold(t *testing.T) {
	s := newTestServer(t)
	future := civil.DateOf(time.Now().UTC()).AddDays(30)
	hold := time.Now().Add(20 * time.Minute)
	s.seedBooking(t, models.Booking{ID: "b-hold", RoomID: "olive", Channel: models.ChannelSite, Status: models.StatusPending,
		CheckIn: future, CheckOut: future.AddDays(2), StripeSessionID: "cs_test_1", HoldExpiresAt: &hold})

	w := s.do(http.MethodGet, "/booking/cancelled?booking=b-hold", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), "/rooms/olive") {
		t.Error("page does not link back to the room")
	}
	b, err := s.store.GetBooking(context.Background(), "b-hold")
	if err != nil {
		t.Fatal(err)
	}
	if b.Status != models.StatusExpired {
		t.Errorf("status = %s, want expired", b.Status)
	}

	if w := s.do(http.MethodGet, "/booking/cancelled", ""); w.Code != http.StatusOK {
		t.Errorf("page without booking status = %d, want 200", w.Code)
	}
}

func TestRoomsAPI(t *testing.T) {
	s := newTestServer(t)

	var list struct {
		Rooms []RoomCard `json:"rooms"`
	}
	w := s.do(http.MethodGet, "/api/rooms", "")
	if err := json.Unmarshal(w.Body.Bytes(), &list); err != nil {
		t.Fatal(err)
	}
	if len(list.Rooms) != 1 {
		t.Fatalf("got %d rooms, want only the active one", len(list.Rooms))
	}
	card := list.Rooms[0]
	if card.ID != "olive" || card.FromPrice != 10000 || card.Currency != "eur" {
		t.Errorf("card = %+v", card)
	}
	if card.SmoobuApartmentID != 0 {
		t.Error("public card exposes the Smoobu apartment ID")
	}
	if card.Reviews.Count != 0 || len(card.Reviews.Distribution) != 5 {
		t.Errorf("reviews = %+v, want an empty five-star distribution", card.Reviews)
	}

	if w := s.do(http.MethodGet, "/api/rooms/slug/olive", ""); w.Code != http.StatusOK {
		t.Errorf("olive status = %d", w.Code)
	}
	if w := s.do(http.MethodGet, "/api/rooms/slug/attic", ""); w.Code != http.StatusNotFound {
		t.Errorf("inactive room status = %d, want 404", w.Code)
	}
}

func TestSubmitContact(t *testing.T) {
	tests := []struct {
		name      string
		body      string
		noAdmin   bool
		want      int
		wantMails int
	}{
		{"sent", `{"name":"Ada","email":"Ada <ada@example.com>","message":"Is the garden open in May?","dates":"May 3-6"}`, false, http.StatusAccepted, 1},
		{"honeypot", `{"name":"Bot","email":"bot@example.com","message":"buy","website":"http://spam"}`, false, http.StatusAccepted, 0},
		{"no name", `{"email":"ada@example.com","message":"hi"}`, false, http.StatusBadRequest, 0},
		{"bad email", `{"name":"Ada","email":"not-an-email","message":"hi"}`, false, http.StatusBadRequest, 0},
		{"no message", `{"name":"Ada","email":"ada@example.com","message":"  "}`, false, http.StatusBadRequest, 0},
		{"no recipient", `{"name":"Ada","email":"ada@example.com","message":"hi"}`, true, http.StatusInternalServerError, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newTestServer(t)
			if tt.noAdmin {
				s.cfg.AdminNotifyEmail = ""
			}
			w := s.do(http.MethodPost, "/api/contact", tt.body)
			if w.Code != tt.want {
				t.Fatalf("status = %d, want %d: %s", w.Code, tt.want, w.Body.String())
			}
			if got := s.mailer.count(); got != tt.wantMails {
				t.Fatalf("sent %d emails, want %d", got, tt.wantMails)
			}
			if tt.wantMails == 1 {
				msg := s.mailer.sent[0]
				if msg.Template != email.TemplateContactMessage || msg.ReplyTo != "ada@example.com" || msg.To[0] != "host@example.com" {
					t.Errorf("message = %+v", msg)
				}
			}
		})
	}
}
