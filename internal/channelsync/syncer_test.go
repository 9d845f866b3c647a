package channelsync

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"cloud.google.com/go/civil"
	"github.com/gin-gonic/gin"

	"github.com/casaolivo/bnb-server/internal/config"
	"github.com/casaolivo/bnb-server/internal/email"
	"github.com/casaolivo/bnb-server/internal/logger"
	"github.com/casaolivo/bnb-server/internal/models"
	"github.com/casaolivo/bnb-server/internal/smoobu"
	"github.com/casaolivo/bnb-server/internal/storage"
	"github.com/casaolivo/bnb-server/internal/storage/memory"
)

type fakeSource struct {
	disabled bool
	err      error
	byApt    map[int64][]smoobu.Reservation
}

func (f *fakeSource) Enabled() bool { return !f.disabled }

func (f *fakeSource) ListReservations(_ context.Context, _, _ civil.Date, apartmentID int64) ([]smoobu.Reservation, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.byApt[apartmentID], nil
}

type fakeMailer struct {
	mu   sync.Mutex
	sent []email.Message
}

func (f *fakeMailer) Send(_ context.Context, msg email.Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, msg)
	return nil
}

func (f *fakeMailer) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.sent)
}

func newTestSyncer(t *testing.T) (*Syncer, *memory.Store, *fakeSource, *fakeMailer) {
	t.Helper()
	cfg := config.Defaults()
	cfg.Property.Timezone = "UTC"
	cfg.AdminNotifyEmail = "host@casaolivo.example"

	store := memory.New()
	ctx := context.Background()
	for _, r := range []models.Room{
		{ID: "olive", Slug: "olive", Name: "Olive Room", SmoobuApartmentID: 42, Active: true},
		{ID: "attic", Slug: "attic", Name: "Attic", Active: true},
	} {
		r := r
		if err := store.SaveRoom(ctx, &r); err != nil {
			t.Fatal(err)
		}
	}

	source := &fakeSource{byApt: map[int64][]smoobu.Reservation{}}
	mailer := &fakeMailer{}
	s := NewSyncer(store, source, mailer, cfg, logger.Discard())
	s.now = func() time.Time { return time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC) }
	return s, store, source, mailer
}

func reservation(id int64, in, out, channel string) smoobu.Reservation {
	return smoobu.Reservation{
		ID: id, Type: smoobu.TypeReservation, Arrival: in, Departure: out,
		Apartment: smoobu.Ref{ID: 42}, Channel: smoobu.Ref{ID: 1, Name: channel},
		GuestName: "Guest", Adults: 2, Price: 300,
	}
}

func TestRunImportsAndRecords(t *testing.T) {
	s, store, source, mailer := newTestSyncer(t)
	ctx := context.Background()
	source.byApt[42] = []smoobu.Reservation{
		reservation(1, "2026-06-01", "2026-06-04", "Airbnb"),
		reservation(2, "2026-06-10", "2026-06-12", "Booking.com"),
	}

	run, err := s.Run(ctx, TriggerAdmin)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if run.Fetched != 2 || run.Created != 2 || run.Conflicts != 0 {
		t.Errorf("run = %+v", run)
	}
	b, err := store.FindBookingByExternalID(ctx, "1")
	if err != nil {
		t.Fatal(err)
	}
	if b.Channel != models.ChannelAirbnb || b.TotalAmount != 30000 || b.RoomID != "olive" {
		t.Errorf("imported = %+v", b)
	}

	runs, _ := store.ListSyncRuns(ctx, 10)
	if len(runs) != 1 || runs[0].Trigger != TriggerAdmin {
		t.Errorf("sync runs = %+v", runs)
	}

	// Second run is a no-op; reservation 2 then disappears.
	if run, _ := s.Run(ctx, TriggerCron); run.Created != 0 || run.Updated != 0 {
		t.Errorf("repeat run = %+v", run)
	}
	source.byApt[42] = source.byApt[42][:1]
	run, _ = s.Run(ctx, TriggerCron)
	if run.Cancelled != 1 {
		t.Errorf("run = %+v, want one cancellation", run)
	}
	if b, _ := store.FindBookingByExternalID(ctx, "2"); b.Status != models.StatusCancelled {
		t.Errorf("removed reservation status = %s", b.Status)
	}
	if mailer.count() != 0 {
		t.Errorf("sent %d emails without conflicts", mailer.count())
	}
}

func TestRunKeepsBookingWhenReservationUnreadable(t *testing.T) {
	s, store, source, _ := newTestSyncer(t)
	ctx := context.Background()
	source.byApt[42] = []smoobu.Reservation{reservation(7, "2026-06-01", "2026-06-04", "Airbnb")}
	if _, err := s.Run(ctx, TriggerCron); err != nil {
		t.Fatal(err)
	}

	source.byApt[42][0].Departure = ""
	run, err := s.Run(ctx, TriggerCron)
	if err != nil {
		t.Fatal(err)
	}
	if run.Cancelled != 0 {
		t.Errorf("run = %+v, want no cancellation", run)
	}
	b, err := store.FindBookingByExternalID(ctx, "7")
	if err != nil {
		t.Fatal(err)
	}
	if b.Status != models.StatusConfirmed {
		t.Errorf("status = %s (%q), want confirmed", b.Status, b.CancelReason)
	}
}

func TestRunFollowsReservationMovedBetweenRooms(t *testing.T) {
	s, store, source, _ := newTestSyncer(t)
	ctx := context.Background()
	attic := &models.Room{ID: "attic", Slug: "attic", Name: "Attic", SmoobuApartmentID: 43, Active: true}
	if err := store.SaveRoom(ctx, attic); err != nil {
		t.Fatal(err)
	}

	r := reservation(5, "2026-06-01", "2026-06-04", "Booking.com")
	source.byApt[42] = []smoobu.Reservation{r}
	if _, err := s.Run(ctx, TriggerCron); err != nil {
		t.Fatal(err)
	}

	r.Apartment.ID = 43
	source.byApt[42] = nil
	source.byApt[43] = []smoobu.Reservation{r}
	if _, err := s.Run(ctx, TriggerCron); err != nil {
		t.Fatal(err)
	}

	all, err := store.ListBookings(ctx, storage.BookingFilter{})
	if err != nil {
		t.Fatal(err)
	}
	var copies []models.Booking
	for _, b := range all {
		if b.ExternalID == "5" {
			copies = append(copies, b)
		}
	}
	if len(copies) != 1 {
		t.Fatalf("%d bookings for reservation 5, want 1", len(copies))
	}
	if copies[0].RoomID != "attic" || copies[0].Status != models.StatusConfirmed {
		t.Errorf("moved booking = %+v, want confirmed in attic", copies[0])
	}
}

func TestRunAlertsOnNewConflictsOnce(t *testing.T) {
	s, store, source, mailer := newTestSyncer(t)
	ctx := context.Background()
	site := &models.Booking{
		RoomID: "olive", Channel: models.ChannelSite, Status: models.StatusConfirmed,
		CheckIn: civil.Date{Year: 2026, Month: 6, Day: 2}, CheckOut: civil.Date{Year: 2026, Month: 6, Day: 5},
		GuestName: "Ada",
	}
	if err := store.SaveBooking(ctx, site); err != nil {
		t.Fatal(err)
	}
	source.byApt[42] = []smoobu.Reservation{reservation(1, "2026-06-01", "2026-06-04", "Airbnb")}

	run, err := s.Run(ctx, TriggerSchedule)
	if err != nil {
		t.Fatal(err)
	}
	if run.Conflicts != 1 {
		t.Fatalf("conflicts = %d, want 1", run.Conflicts)
	}
	if mailer.count() != 1 || mailer.sent[0].Template != email.TemplateConflictAlert {
		t.Fatalf("alerts = %+v", mailer.sent)
	}
	rows := mailer.sent[0].Data["Conflicts"].([]map[string]string)
	if rows[0]["Room"] != "Olive Room" {
		t.Errorf("alert room = %q", rows[0]["Room"])
	}

	if _, err := s.Run(ctx, TriggerSchedule); err != nil {
		t.Fatal(err)
	}
	if mailer.count() != 1 {
		t.Errorf("conflict alerted %d times, want once", mailer.count())
	}

	conflicts, err := s.Conflicts(ctx)
	if err != nil || len(conflicts) != 1 {
		t.Errorf("Conflicts = %v, %v", conflicts, err)
	}
}

func TestRunErrors(t *testing.T) {
	s, store, source, _ := newTestSyncer(t)
	ctx := context.Background()

	source.disabled = true
	if _, err := s.Run(ctx, TriggerCron); !errors.Is(err, smoobu.ErrDisabled) {
		t.Errorf("disabled err = %v", err)
	}

	source.disabled = false
	source.err = &smoobu.APIError{StatusCode: http.StatusTooManyRequests}
	run, err := s.Run(ctx, TriggerCron)
	if err == nil || run == nil || run.Error == "" {
		t.Fatalf("run = %+v err = %v", run, err)
	}
	runs, _ := store.ListSyncRuns(ctx, 10)
	if len(runs) != 1 || runs[0].Error == "" {
		t.Errorf("failed run not recorded: %+v", runs)
	}

	s.running.Lock()
	if _, err := s.Run(ctx, TriggerCron); !errors.Is(err, ErrSyncRunning) {
		t.Errorf("concurrent run err = %v", err)
	}
	s.running.Unlock()
}

func TestApplyWebhook(t *testing.T) {
	s, store, _, _ := newTestSyncer(t)
	ctx := context.Background()

	r := reservation(9, "2026-07-01", "2026-07-03", "Booking.com")
	if err := s.ApplyWebhook(ctx, smoobu.ActionNewReservation, r); err != nil {
		t.Fatal(err)
	}
	b, err := store.FindBookingByExternalID(ctx, "9")
	if err != nil {
		t.Fatal(err)
	}
	if b.Status != models.StatusConfirmed || b.Channel != models.ChannelBookingCom {
		t.Errorf("booking = %+v", b)
	}

	r.Departure = "2026-07-05"
	if err := s.ApplyWebhook(ctx, smoobu.ActionUpdateReservation, r); err != nil {
		t.Fatal(err)
	}
	if b, _ := store.FindBookingByExternalID(ctx, "9"); b.CheckOut != (civil.Date{Year: 2026, Month: 7, Day: 5}) {
		t.Errorf("check-out = %s", b.CheckOut)
	}

	if err := s.ApplyWebhook(ctx, smoobu.ActionCancelReservation, r); err != nil {
		t.Fatal(err)
	}
	if b, _ := store.FindBookingByExternalID(ctx, "9"); b.Status != models.StatusCancelled {
		t.Errorf("status = %s", b.Status)
	}

	other := reservation(10, "2026-07-01", "2026-07-03", "Airbnb")
	other.Apartment.ID = 999
	if err := s.ApplyWebhook(ctx, smoobu.ActionNewReservation, other); err != nil {
		t.Fatal(err)
	}
	if _, err := store.FindBookingByExternalID(ctx, "10"); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("reservation for unknown apartment stored: %v", err)
	}
}

func TestApplyWebhookLinksSiteMirror(t *testing.T) {
	s, store, _, _ := newTestSyncer(t)
	ctx := context.Background()
	site := &models.Booking{
		RoomID: "olive", Channel: models.ChannelSite, Status: models.StatusConfirmed,
		CheckIn: civil.Date{Year: 2026, Month: 7, Day: 1}, CheckOut: civil.Date{Year: 2026, Month: 7, Day: 3},
	}
	if err := store.SaveBooking(ctx, site); err != nil {
		t.Fatal(err)
	}

	r := reservation(11, "2026-07-01", "2026-07-03", "Homepage")
	r.Notice = "site-booking:" + site.ID
	if err := s.ApplyWebhook(ctx, smoobu.ActionNewReservation, r); err != nil {
		t.Fatal(err)
	}
	got, _ := store.GetBooking(ctx, site.ID)
	if got.ExternalID != "11" {
		t.Errorf("ExternalID = %q, want 11", got.ExternalID)
	}
	all, _ := store.ListBookings(ctx, storage.BookingFilter{RoomID: "olive"})
	if len(all) != 1 {
		t.Errorf("mirror duplicated: %d bookings", len(all))
	}
}

func TestCronHandlers(t *testing.T) {
	gin.SetMode(gin.TestMode)
	s, _, _, _ := newTestSyncer(t)
	h := NewHandler(s, holdsFunc(func(context.Context) (int, error) { return 3, nil }), "cron-secret", "hook-token", logger.Discard())

	r := gin.New()
	cron := r.Group("/api/cron", h.RequireCronSecret())
	cron.POST("/expire-holds", h.ExpireHolds)
	cron.POST("/sync", h.RunSync)
	r.POST("/api/webhooks/smoobu", h.SmoobuWebhook)

	tests := []struct {
		name   string
		path   string
		header map[string]string
		body   string
		want   int
	}{
		{name: "no secret", path: "/api/cron/expire-holds", want: http.StatusForbidden},
		{name: "wrong secret", path: "/api/cron/expire-holds", header: map[string]string{"X-Cron-Secret": "nope"}, want: http.StatusForbidden},
		{name: "header secret", path: "/api/cron/expire-holds", header: map[string]string{"X-Cron-Secret": "cron-secret"}, want: http.StatusOK},
		{name: "bearer secret", path: "/api/cron/sync", header: map[string]string{"Authorization": "Bearer cron-secret"}, want: http.StatusOK},
		{name: "webhook bad token", path: "/api/webhooks/smoobu?token=x", body: `{}`, want: http.StatusUnauthorized},
		{name: "webhook ignored action", path: "/api/webhooks/smoobu?token=hook-token", body: `{"action":"updateRates"}`, want: http.StatusOK},
		{name: "webhook new reservation", path: "/api/webhooks/smoobu?token=hook-token",
			body: `{"action":"newReservation","data":{"id":5,"type":"reservation","arrival":"2026-08-01","departure":"2026-08-03","apartment":{"id":42},"channel":{"id":1,"name":"Airbnb"}}}`,
			want: http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, tt.path, strings.NewReader(tt.body))
			req.Header.Set("Content-Type", "application/json")
			for k, v := range tt.header {
				req.Header.Set(k, v)
			}
			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)
			if w.Code != tt.want {
				t.Errorf("status = %d, want %d (body %s)", w.Code, tt.want, w.Body.String())
			}
		})
	}
}

type holdsFunc func(context.Context) (int, error)

func (f holdsFunc) ExpireHolds(ctx context.Context) (int, error) { return f(ctx) }
