package booking

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"cloud.google.com/go/civil"

	"github.com/casaolivo/bnb-server/internal/availability"
	"github.com/casaolivo/bnb-server/internal/config"
	"github.com/casaolivo/bnb-server/internal/email"
	"github.com/casaolivo/bnb-server/internal/logger"
	"github.com/casaolivo/bnb-server/internal/models"
	"github.com/casaolivo/bnb-server/internal/pricing"
	"github.com/casaolivo/bnb-server/internal/smoobu"
	"github.com/casaolivo/bnb-server/internal/storage/memory"
	"github.com/casaolivo/bnb-server/internal/stripe"
)

type refundCall struct {
	paymentIntentID string
	amount          int64
}

type fakePayments struct {
	disabled    bool
	checkoutErr error
	refundErr   error
	sessions    []stripe.CheckoutRequest
	refunds     []refundCall
}

func (f *fakePayments) Enabled() bool { return !f.disabled }

func (f *fakePayments) CreateCheckoutSession(_ context.Context, req stripe.CheckoutRequest) (*stripe.CheckoutSession, error) {
	if f.checkoutErr != nil {
		return nil, f.checkoutErr
	}
	f.sessions = append(f.sessions, req)
	id := "cs_test_" + req.BookingID
	return &stripe.CheckoutSession{ID: id, URL: "https://checkout.stripe.test/" + id, ExpiresAt: req.ExpiresAt}, nil
}

func (f *fakePayments) Refund(_ context.Context, pi string, amount int64) (string, error) {
	if f.refundErr != nil {
		return "", f.refundErr
	}
	f.refunds = append(f.refunds, refundCall{pi, amount})
	return "re_test", nil
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

func (f *fakeMailer) templates() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.sent))
	for i, m := range f.sent {
		out[i] = m.Template
	}
	return out
}

type fakeChannel struct {
	nextID    int64
	created   []smoobu.NewReservation
	cancelled []int64
}

func (f *fakeChannel) Enabled() bool { return true }

func (f *fakeChannel) CreateReservation(_ context.Context, r smoobu.NewReservation) (int64, error) {
	f.nextID++
	f.created = append(f.created, r)
	return 1000 + f.nextID, nil
}

func (f *fakeChannel) CancelReservation(_ context.Context, id int64) error {
	f.cancelled = append(f.cancelled, id)
	return nil
}

type fakeLinks struct{}

func (fakeLinks) Sign(bookingID, _ string) (string, error) { return "tok-" + bookingID, nil }

type testEnv struct {
	svc      *Service
	store    *memory.Store
	payments *fakePayments
	mailer   *fakeMailer
	channel  *fakeChannel
	now      time.Time
}

func (e *testEnv) advance(d time.Duration) {
	e.now = e.now.Add(d)
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	cfg := config.Defaults()
	cfg.Property.Timezone = "UTC"
	cfg.AdminNotifyEmail = "host@casaolivo.example"

	store := memory.New()
	ctx := context.Background()
	rooms := []models.Room{
		{ID: "olive", Slug: "olive", Name: "Olive Room", Capacity: 2, BasePrice: 10000, MinNights: 1, Active: true, SmoobuApartmentID: 42},
		{ID: "attic", Slug: "attic", Name: "Attic", Capacity: 2, BasePrice: 8000, MinNights: 1},
	}
	for i := range rooms {
		if err := store.SaveRoom(ctx, &rooms[i]); err != nil {
			t.Fatalf("SaveRoom: %v", err)
		}
	}

	env := &testEnv{
		store:    store,
		payments: &fakePayments{},
		mailer:   &fakeMailer{},
		channel:  &fakeChannel{},
		now:      time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC),
	}
	env.svc = NewService(Dependencies{
		Store:    store,
		Payments: env.payments,
		Mailer:   env.mailer,
		Channel:  env.channel,
		Links:    fakeLinks{},
		Logger:   logger.Discard(),
	}, cfg)
	env.svc.now = func() time.Time { return env.now }
	return env
}

func guestRequest(checkIn, checkOut string) CreateRequest {
	return CreateRequest{
		RoomID:     "olive",
		CheckIn:    checkIn,
		CheckOut:   checkOut,
		Guests:     2,
		GuestName:  "Ada Lovelace",
		GuestEmail: "Ada@Example.com",
	}
}

func TestCreateHoldsDatesAndOpensCheckout(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	res, err := env.svc.Create(ctx, guestRequest("2026-06-10", "2026-06-13"))
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if res.Total != 30000 {
		t.Errorf("Total = %d, want 30000", res.Total)
	}
	if want := env.now.Add(30 * time.Minute); !res.HoldExpiresAt.Equal(want) {
		t.Errorf("HoldExpiresAt = %v, want %v", res.HoldExpiresAt, want)
	}
	if res.CheckoutURL == "" {
		t.Error("CheckoutURL is empty")
	}

	b, err := env.store.GetBooking(ctx, res.BookingID)
	if err != nil {
		t.Fatal(err)
	}
	if b.Status != models.StatusPending || b.StripeSessionID != "cs_test_"+b.ID {
		t.Errorf("booking = %s session %q", b.Status, b.StripeSessionID)
	}
	if b.GuestEmail != "ada@example.com" {
		t.Errorf("GuestEmail = %q, want lower-cased", b.GuestEmail)
	}
	if len(b.Lines) != 3 {
		t.Errorf("stored %d quote lines, want 3", len(b.Lines))
	}
	if got := env.payments.sessions[0].Amount; got != 30000 {
		t.Errorf("checkout amount = %d", got)
	}

	_, err = env.svc.Create(ctx, guestRequest("2026-06-12", "2026-06-14"))
	var conflict *availability.ConflictError
	if !errors.As(err, &conflict) {
		t.Fatalf("overlapping Create err = %v, want ConflictError", err)
	}

	if _, err := env.svc.Create(ctx, guestRequest("2026-06-13", "2026-06-15")); err != nil {
		t.Errorf("same-day turnover rejected: %v", err)
	}
}

func TestCreateValidation(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*CreateRequest, *testEnv)
		wantErr func(error) bool
	}{
		{
			name:    "check-in in the past",
			mutate:  func(r *CreateRequest, _ *testEnv) { r.CheckIn, r.CheckOut = "2026-04-28", "2026-05-02" },
			wantErr: isValidation("checkIn"),
		},
		{
			name:    "too far ahead",
			mutate:  func(r *CreateRequest, _ *testEnv) { r.CheckIn, r.CheckOut = "2028-01-10", "2028-01-12" },
			wantErr: isValidation("checkIn"),
		},
		{
			name:    "too many nights",
			mutate:  func(r *CreateRequest, _ *testEnv) { r.CheckIn, r.CheckOut = "2026-06-01", "2026-07-15" },
			wantErr: isValidation("checkOut"),
		},
		{
			name:    "check-out before check-in",
			mutate:  func(r *CreateRequest, _ *testEnv) { r.CheckIn, r.CheckOut = "2026-06-10", "2026-06-09" },
			wantErr: isValidation("dates"),
		},
		{
			name:    "bad email",
			mutate:  func(r *CreateRequest, _ *testEnv) { r.GuestEmail = "not an email" },
			wantErr: isValidation("guestEmail"),
		},
		{
			name:    "missing name",
			mutate:  func(r *CreateRequest, _ *testEnv) { r.GuestName = "  " },
			wantErr: isValidation("guestName"),
		},
		{
			name:    "too many guests",
			mutate:  func(r *CreateRequest, _ *testEnv) { r.Guests = 5 },
			wantErr: is(pricing.ErrInvalidGuests),
		},
		{
			name:    "inactive room",
			mutate:  func(r *CreateRequest, _ *testEnv) { r.RoomID = "attic" },
			wantErr: is(ErrRoomNotFound),
		},
		{
			name:    "unknown room",
			mutate:  func(r *CreateRequest, _ *testEnv) { r.RoomID = "cellar" },
			wantErr: is(ErrRoomNotFound),
		},
		{
			name:    "payments off",
			mutate:  func(_ *CreateRequest, e *testEnv) { e.payments.disabled = true },
			wantErr: is(ErrPaymentsUnavailable),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t)
			req := guestRequest("2026-06-10", "2026-06-13")
			tt.mutate(&req, env)
			_, err := env.svc.Create(context.Background(), req)
			if err == nil || !tt.wantErr(err) {
				t.Fatalf("err = %v", err)
			}
			if n := len(env.payments.sessions); n != 0 {
				t.Errorf("opened %d checkout sessions", n)
			}
		})
	}
}

func isValidation(field string) func(error) bool {
	return func(err error) bool {
		var v *ValidationError
		return errors.As(err, &v) && v.Field == field
	}
}

func is(target error) func(error) bool {
	return func(err error) bool { return errors.Is(err, target) }
}

func TestCreateReleasesHoldWhenCheckoutFails(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.payments.checkoutErr = errors.New("stripe down")

	if _, err := env.svc.Create(ctx, guestRequest("2026-06-10", "2026-06-13")); err == nil {
		t.Fatal("expected error")
	}
	env.payments.checkoutErr = nil
	if _, err := env.svc.Create(ctx, guestRequest("2026-06-10", "2026-06-13")); err != nil {
		t.Fatalf("dates still held after failed checkout: %v", err)
	}
}

func TestConfirmPayment(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	res, err := env.svc.Create(ctx, guestRequest("2026-06-10", "2026-06-13"))
	if err != nil {
		t.Fatal(err)
	}
	session := "cs_test_" + res.BookingID

	if err := env.svc.ConfirmPayment(ctx, session, "pi_1", 30000); err != nil {
		t.Fatalf("ConfirmPayment: %v", err)
	}
	b, _ := env.store.GetBooking(ctx, res.BookingID)
	if b.Status != models.StatusConfirmed || b.HoldExpiresAt != nil {
		t.Errorf("status = %s hold = %v", b.Status, b.HoldExpiresAt)
	}
	if b.StripePaymentIntentID != "pi_1" {
		t.Errorf("payment intent = %q", b.StripePaymentIntentID)
	}
	if b.ExternalID != "1001" {
		t.Errorf("ExternalID = %q, want mirrored reservation 1001", b.ExternalID)
	}
	if got := env.channel.created[0].Notice; got != SiteBookingTag+b.ID {
		t.Errorf("smoobu notice = %q", got)
	}

	want := []string{email.TemplateBookingConfirmed, email.TemplateAdminNewBooking}
	if got := env.mailer.templates(); !equalStrings(got, want) {
		t.Errorf("emails = %v, want %v", got, want)
	}
	if url := env.mailer.sent[0].Data["ManageURL"]; url != "http://localhost:8080/manage?token=tok-"+b.ID {
		t.Errorf("ManageURL = %v", url)
	}

	// Stripe retries deliveries.
	if err := env.svc.ConfirmPayment(ctx, session, "pi_1", 30000); err != nil {
		t.Fatal(err)
	}
	if n := len(env.mailer.sent); n != 2 {
		t.Errorf("repeat delivery sent %d emails, want 2", n)
	}
	if n := len(env.channel.created); n != 1 {
		t.Errorf("repeat delivery created %d mirrors", n)
	}

	if err := env.svc.ConfirmPayment(ctx, "cs_unknown", "pi_x", 100); err != nil {
		t.Errorf("unknown session: %v", err)
	}
}

func TestConfirmPaymentAfterDatesWereTaken(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	res, err := env.svc.Create(ctx, guestRequest("2026-06-10", "2026-06-13"))
	if err != nil {
		t.Fatal(err)
	}

	env.advance(time.Hour)
	manual, err := env.svc.CreateManual(ctx, ManualRequest{
		RoomID: "olive", CheckIn: "2026-06-11", CheckOut: "2026-06-12",
		Channel: models.ChannelDirect, GuestName: "Phone Guest",
	})
	if err != nil {
		t.Fatalf("CreateManual after lapsed hold: %v", err)
	}

	if err := env.svc.ConfirmPayment(ctx, "cs_test_"+res.BookingID, "pi_late", 30000); err != nil {
		t.Fatalf("ConfirmPayment: %v", err)
	}
	b, _ := env.store.GetBooking(ctx, res.BookingID)
	if b.Status != models.StatusPaymentConflict {
		t.Fatalf("status = %s, want payment_conflict", b.Status)
	}
	if b.RefundedAmount != 30000 {
		t.Errorf("RefundedAmount = %d", b.RefundedAmount)
	}
	if len(env.payments.refunds) != 1 || env.payments.refunds[0] != (refundCall{"pi_late", 30000}) {
		t.Errorf("refunds = %+v", env.payments.refunds)
	}
	want := []string{email.TemplateConflictAlert, email.TemplateBookingCancelled}
	if got := env.mailer.templates(); !equalStrings(got, want) {
		t.Errorf("emails = %v, want %v", got, want)
	}

	// The refunded conflict no longer holds the nights.
	if _, err := env.svc.Cancel(ctx, manual.ID, Actor{Admin: true}, CancelOptions{}); err != nil {
		t.Fatalf("Cancel manual booking: %v", err)
	}
	if _, err := env.svc.Create(ctx, guestRequest("2026-06-10", "2026-06-13")); err != nil {
		t.Errorf("rebooking freed nights: %v", err)
	}
}

func TestExpireHolds(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	first, err := env.svc.Create(ctx, guestRequest("2026-06-10", "2026-06-13"))
	if err != nil {
		t.Fatal(err)
	}
	env.advance(20 * time.Minute)
	second, err := env.svc.Create(ctx, guestRequest("2026-07-10", "2026-07-13"))
	if err != nil {
		t.Fatal(err)
	}

	env.advance(15 * time.Minute)
	n, err := env.svc.ExpireHolds(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if n != 1 {
		t.Errorf("expired %d holds, want 1", n)
	}
	if b, _ := env.store.GetBooking(ctx, first.BookingID); b.Status != models.StatusExpired {
		t.Errorf("first = %s, want expired", b.Status)
	}
	if b, _ := env.store.GetBooking(ctx, second.BookingID); b.Status != models.StatusPending {
		t.Errorf("second = %s, want pending", b.Status)
	}

	if err := env.svc.ReleaseHold(ctx, "cs_test_"+second.BookingID); err != nil {
		t.Fatal(err)
	}
	if b, _ := env.store.GetBooking(ctx, second.BookingID); b.Status != models.StatusExpired {
		t.Errorf("released = %s, want expired", b.Status)
	}
}

func confirmedBooking(t *testing.T, env *testEnv, checkIn, checkOut string) *models.Booking {
	t.Helper()
	ctx := context.Background()
	res, err := env.svc.Create(ctx, guestRequest(checkIn, checkOut))
	if err != nil {
		t.Fatal(err)
	}
	if err := env.svc.ConfirmPayment(ctx, "cs_test_"+res.BookingID, "pi_"+res.BookingID, res.Total); err != nil {
		t.Fatal(err)
	}
	b, _ := env.store.GetBooking(ctx, res.BookingID)
	return b
}

func TestCancel(t *testing.T) {
	guest := Actor{UserID: "", Email: "ada@example.com"}
	admin := Actor{UserID: "host", Admin: true}

	tests := []struct {
		name         string
		checkIn      string
		checkOut     string
		actor        Actor
		opts         CancelOptions
		wantErr      error
		wantRefunded int64
	}{
		{name: "guest inside free window", checkIn: "2026-06-10", checkOut: "2026-06-13", actor: guest, wantRefunded: 30000},
		{name: "guest on the deadline", checkIn: "2026-05-15", checkOut: "2026-05-16", actor: guest, wantRefunded: 10000},
		{name: "guest after the deadline", checkIn: "2026-05-10", checkOut: "2026-05-12", actor: guest, wantRefunded: 0},
		{name: "someone else", checkIn: "2026-06-10", checkOut: "2026-06-13", actor: Actor{Email: "eve@example.com"}, wantErr: ErrNotOwner},
		{name: "admin without refund", checkIn: "2026-06-10", checkOut: "2026-06-13", actor: admin, wantRefunded: 0},
		{name: "admin forced partial refund", checkIn: "2026-05-10", checkOut: "2026-05-12", actor: admin,
			opts: CancelOptions{Refund: true, RefundAmount: 5000}, wantRefunded: 5000},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t)
			b := confirmedBooking(t, env, tt.checkIn, tt.checkOut)
			before := len(env.mailer.sent)

			res, err := env.svc.Cancel(context.Background(), b.ID, tt.actor, tt.opts)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("err = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("Cancel: %v", err)
			}
			if res.Refunded != tt.wantRefunded {
				t.Errorf("Refunded = %d, want %d", res.Refunded, tt.wantRefunded)
			}
			if res.Booking.Status != models.StatusCancelled {
				t.Errorf("status = %s", res.Booking.Status)
			}
			if len(env.channel.cancelled) != 1 || env.channel.cancelled[0] != 1001 {
				t.Errorf("smoobu cancellations = %v", env.channel.cancelled)
			}
			if got := env.mailer.sent[before:]; len(got) != 1 || got[0].Template != email.TemplateBookingCancelled {
				t.Errorf("cancellation emails = %+v", got)
			}

			if _, err := env.svc.Cancel(context.Background(), b.ID, admin, CancelOptions{}); !errors.Is(err, ErrNotCancellable) {
				t.Errorf("second cancel err = %v, want ErrNotCancellable", err)
			}
		})
	}
}

func TestCancelKeepsBookingWhenRefundFails(t *testing.T) {
	env := newTestEnv(t)
	b := confirmedBooking(t, env, "2026-06-10", "2026-06-13")
	env.payments.refundErr = errors.New("card declined")

	if _, err := env.svc.Cancel(context.Background(), b.ID, Actor{Email: b.GuestEmail}, CancelOptions{}); err == nil {
		t.Fatal("expected refund error")
	}
	got, _ := env.store.GetBooking(context.Background(), b.ID)
	if got.Status != models.StatusConfirmed {
		t.Errorf("status = %s, want confirmed", got.Status)
	}
}

func TestCancelChannelBooking(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	b := &models.Booking{
		RoomID: "olive", Channel: models.ChannelAirbnb, Status: models.StatusConfirmed,
		CheckIn: civil.Date{Year: 2026, Month: 6, Day: 1}, CheckOut: civil.Date{Year: 2026, Month: 6, Day: 3},
		ExternalID: "555",
	}
	if err := env.store.SaveBooking(ctx, b); err != nil {
		t.Fatal(err)
	}
	if _, err := env.svc.Cancel(ctx, b.ID, Actor{UserID: "host", Admin: true}, CancelOptions{}); !errors.Is(err, ErrChannelManaged) {
		t.Errorf("err = %v, want ErrChannelManaged", err)
	}
}

func TestCreateManualBlock(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	b, err := env.svc.CreateManual(ctx, ManualRequest{
		RoomID: "olive", CheckIn: "2026-08-01", CheckOut: "2026-08-05",
		Channel: models.ChannelBlocked, Notes: "painting",
	})
	if err != nil {
		t.Fatal(err)
	}
	if b.Status != models.StatusConfirmed || b.ExternalID == "" {
		t.Errorf("block = %s external %q", b.Status, b.ExternalID)
	}
	if got := env.channel.created[0]; got.FirstName != "Blocked" || got.LastName != "painting" {
		t.Errorf("mirror name = %q %q", got.FirstName, got.LastName)
	}

	if _, err := env.svc.Create(ctx, guestRequest("2026-08-04", "2026-08-06")); err == nil {
		t.Error("site booking over a block was accepted")
	}
	if _, err := env.svc.CreateManual(ctx, ManualRequest{
		RoomID: "olive", CheckIn: "2026-08-01", CheckOut: "2026-08-02", Channel: models.ChannelAirbnb,
	}); !isValidation("channel")(err) {
		t.Errorf("airbnb manual booking err = %v", err)
	}
}

func TestCalendarAndQuote(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	confirmedBooking(t, env, "2026-06-10", "2026-06-12")

	from := civil.Date{Year: 2026, Month: 6, Day: 9}
	days, err := env.svc.Calendar(ctx, "olive", from, from.AddDays(4))
	if err != nil {
		t.Fatal(err)
	}
	avail := make([]bool, len(days))
	for i, d := range days {
		avail[i] = d.Available
		if d.Price != 10000 {
			t.Errorf("%s price = %d", d.Date, d.Price)
		}
	}
	if want := []bool{true, false, false, true}; !equalBools(avail, want) {
		t.Errorf("available = %v, want %v", avail, want)
	}

	q, err := env.svc.Quote(ctx, "olive", availability.Stay{CheckIn: from, CheckOut: from.AddDays(2)}, 2)
	if err != nil {
		t.Fatal(err)
	}
	if q.Available {
		t.Error("quote over a booked night reported available")
	}

	if _, err := env.svc.Calendar(ctx, "olive", from, from.AddDays(500)); !isValidation("to")(err) {
		t.Errorf("long calendar err = %v", err)
	}
}

func equalStrings(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func equalBools(a, b []bool) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
