// Package booking runs the site's reservation flow: quotes, payment holds,
// confirmation, cancellation and admin-made bookings.
package booking

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"cloud.google.com/go/civil"

	"github.com/casaolivo/bnb-server/internal/availability"
	"github.com/casaolivo/bnb-server/internal/config"
	"github.com/casaolivo/bnb-server/internal/email"
	"github.com/casaolivo/bnb-server/internal/logger"
	"github.com/casaolivo/bnb-server/internal/metrics"
	"github.com/casaolivo/bnb-server/internal/models"
	"github.com/casaolivo/bnb-server/internal/pricing"
	"github.com/casaolivo/bnb-server/internal/smoobu"
	"github.com/casaolivo/bnb-server/internal/storage"
	"github.com/casaolivo/bnb-server/internal/stripe"
)

var (
	ErrRoomNotFound        = errors.New("room not found")
	ErrBookingNotFound     = errors.New("booking not found")
	ErrPaymentsUnavailable = errors.New("online payments are not available")
	ErrNotOwner            = errors.New("booking belongs to someone else")
	ErrNotCancellable      = errors.New("booking cannot be cancelled")
	ErrChannelManaged      = errors.New("booking is managed by its channel")
)

// maxCalendarDays bounds one calendar request.
const maxCalendarDays = 400

// ValidationError is a rejected request field.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return e.Field + ": " + e.Message
}

// Payments is what the flow needs from Stripe.
type Payments interface {
	Enabled() bool
	CreateCheckoutSession(ctx context.Context, req stripe.CheckoutRequest) (*stripe.CheckoutSession, error)
	Refund(ctx context.Context, paymentIntentID string, amount int64) (string, error)
}

// ChannelManager mirrors site bookings so the channels close the dates.
type ChannelManager interface {
	Enabled() bool
	CreateReservation(ctx context.Context, r smoobu.NewReservation) (int64, error)
	CancelReservation(ctx context.Context, id int64) error
}

// LinkSigner issues manage-booking tokens for guests without an account.
type LinkSigner interface {
	Sign(bookingID, email string) (string, error)
}

type Dependencies struct {
	Store    storage.Store
	Payments Payments
	Mailer   email.Mailer
	Channel  ChannelManager
	Links    LinkSigner
	Logger   *logger.Logger
}

type Service struct {
	store    storage.Store
	payments Payments
	mailer   email.Mailer
	channel  ChannelManager
	links    LinkSigner
	logger   *logger.Logger

	cfg      *config.Config
	location *time.Location
	now      func() time.Time
}

func NewService(deps Dependencies, cfg *config.Config) *Service {
	return &Service{
		store:    deps.Store,
		payments: deps.Payments,
		mailer:   deps.Mailer,
		channel:  deps.Channel,
		links:    deps.Links,
		logger:   deps.Logger.WithComponent("booking"),
		cfg:      cfg,
		location: cfg.Location(),
		now:      time.Now,
	}
}

// Today is the current date at the property.
func (s *Service) Today() civil.Date {
	return civil.DateOf(s.now().In(s.location))
}

func (s *Service) room(ctx context.Context, roomID string) (*models.Room, error) {
	room, err := s.store.GetRoom(ctx, roomID)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, ErrRoomNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load room: %w", err)
	}
	return room, nil
}

func (s *Service) roomBookings(ctx context.Context, roomID string, stay availability.Stay) ([]models.Booking, error) {
	bookings, err := s.store.ListBookings(ctx, storage.BookingFilter{RoomID: roomID, From: stay.CheckIn, To: stay.CheckOut})
	if err != nil {
		return nil, fmt.Errorf("failed to list bookings: %w", err)
	}
	return bookings, nil
}

// QuoteResult is a priced stay plus whether the nights are free right now.
type QuoteResult struct {
	*pricing.Quote
	Available bool   `json:"available"`
	Currency  string `json:"currency"`
}

// Quote prices a stay for the site. It does not hold anything.
func (s *Service) Quote(ctx context.Context, roomID string, stay availability.Stay, guests int) (*QuoteResult, error) {
	room, err := s.room(ctx, roomID)
	if err != nil {
		return nil, err
	}
	if err := s.validateDates(stay); err != nil {
		return nil, err
	}

	quote, err := s.price(ctx, *room, stay, guests)
	if err != nil {
		return nil, err
	}

	bookings, err := s.roomBookings(ctx, roomID, stay)
	if err != nil {
		return nil, err
	}
	available := availability.Check(stay, bookings, s.now(), "") == nil

	return &QuoteResult{Quote: quote, Available: available, Currency: s.cfg.Property.Currency}, nil
}

func (s *Service) price(ctx context.Context, room models.Room, stay availability.Stay, guests int) (*pricing.Quote, error) {
	rules, err := storage.LoadRules(ctx, s.store, room.ID, stay.CheckIn, stay.CheckOut)
	if err != nil {
		return nil, err
	}
	return pricing.CalculateQuote(room, stay, guests, rules)
}

// validateDates applies the site's booking window.
func (s *Service) validateDates(stay availability.Stay) error {
	if err := stay.Validate(); err != nil {
		return err
	}
	today := s.Today()
	if stay.CheckIn.Before(today) {
		return &ValidationError{Field: "checkIn", Message: "check-in is in the past"}
	}
	if limit := today.AddDays(s.cfg.Booking.MaxAdvanceDays); stay.CheckIn.After(limit) {
		return &ValidationError{Field: "checkIn", Message: fmt.Sprintf("bookings open %d days ahead", s.cfg.Booking.MaxAdvanceDays)}
	}
	if n := stay.Nights(); s.cfg.Booking.MaxNights > 0 && n > s.cfg.Booking.MaxNights {
		return &ValidationError{Field: "checkOut", Message: fmt.Sprintf("at most %d nights can be booked online", s.cfg.Booking.MaxNights)}
	}
	return nil
}

// CalendarDay is one date of the public room calendar.
type CalendarDay struct {
	availability.Day
	Price     int64 `json:"price"`
	MinNights int   `json:"minNights"`
}

// Calendar returns availability with nightly prices for [from, to).
func (s *Service) Calendar(ctx context.Context, roomID string, from, to civil.Date) ([]CalendarDay, error) {
	if !to.After(from) {
		return nil, availability.ErrInvalidStay
	}
	if to.DaysSince(from) > maxCalendarDays {
		return nil, &ValidationError{Field: "to", Message: fmt.Sprintf("at most %d days per request", maxCalendarDays)}
	}

	room, err := s.room(ctx, roomID)
	if err != nil {
		return nil, err
	}
	rules, err := storage.LoadRules(ctx, s.store, roomID, from, to)
	if err != nil {
		return nil, err
	}
	nights := pricing.Range(*room, from, to, rules)

	// One day earlier so CanCheckOut on from sees the previous night.
	bookings, err := s.roomBookings(ctx, roomID, availability.Stay{CheckIn: from.AddDays(-1), CheckOut: to})
	if err != nil {
		return nil, err
	}

	days := availability.Calendar(from, to, bookings, rules.ClosedDates(roomID), s.now())
	out := make([]CalendarDay, len(days))
	for i, d := range days {
		out[i] = CalendarDay{Day: d}
		if i < len(nights) {
			out[i].Price = nights[i].Amount
			out[i].MinNights = nights[i].MinNights
		}
	}
	return out, nil
}

// CreateRequest is a guest's booking from the site.
type CreateRequest struct {
	RoomID      string `json:"roomId" binding:"required"`
	CheckIn     string `json:"checkIn" binding:"required"`
	CheckOut    string `json:"checkOut" binding:"required"`
	Guests      int    `json:"guests" binding:"required"`
	GuestName   string `json:"guestName" binding:"required"`
	GuestEmail  string `json:"guestEmail" binding:"required"`
	GuestPhone  string `json:"guestPhone"`
	Notes       string `json:"notes"`
	GuestUserID string `json:"-"`
}

type CreateResult struct {
	BookingID     string        `json:"bookingId"`
	CheckoutURL   string        `json:"checkoutUrl"`
	HoldExpiresAt time.Time     `json:"holdExpiresAt"`
	Total         int64         `json:"total"`
	Currency      string        `json:"currency"`
	Quote         pricing.Quote `json:"quote"`
}

func validateGuest(req *CreateRequest) error {
	req.GuestName = strings.TrimSpace(req.GuestName)
	req.GuestEmail = strings.TrimSpace(strings.ToLower(req.GuestEmail))
	req.GuestPhone = strings.TrimSpace(req.GuestPhone)
	if req.GuestName == "" {
		return &ValidationError{Field: "guestName", Message: "name is required"}
	}
	if len(req.GuestName) > 120 {
		return &ValidationError{Field: "guestName", Message: "name is too long"}
	}
	if addr, err := mail.ParseAddress(req.GuestEmail); err != nil || addr.Address != req.GuestEmail {
		return &ValidationError{Field: "guestEmail", Message: "invalid email address"}
	}
	if len(req.Notes) > 2000 {
		return &ValidationError{Field: "notes", Message: "notes are too long"}
	}
	return nil
}

// Create holds the nights as a pending booking and opens a Stripe checkout.
// The hold lasts HoldTTL; the webhook confirms it.
func (s *Service) Create(ctx context.Context, req CreateRequest) (*CreateResult, error) {
	if s.payments == nil || !s.payments.Enabled() {
		return nil, ErrPaymentsUnavailable
	}
	if err := validateGuest(&req); err != nil {
		return nil, err
	}
	stay, err := availability.ParseStay(req.CheckIn, req.CheckOut)
	if err != nil {
		return nil, &ValidationError{Field: "dates", Message: err.Error()}
	}

	room, err := s.room(ctx, req.RoomID)
	if err != nil {
		return nil, err
	}
	if !room.Active {
		return nil, ErrRoomNotFound
	}
	if err := s.validateDates(stay); err != nil {
		return nil, err
	}
	quote, err := s.price(ctx, *room, stay, req.Guests)
	if err != nil {
		return nil, err
	}

	now := s.now()
	holdUntil := now.Add(s.cfg.Booking.HoldTTL)
	b := &models.Booking{
		RoomID:        room.ID,
		Channel:       models.ChannelSite,
		Status:        models.StatusPending,
		CheckIn:       stay.CheckIn,
		CheckOut:      stay.CheckOut,
		Guests:        req.Guests,
		GuestUserID:   req.GuestUserID,
		GuestName:     req.GuestName,
		GuestEmail:    req.GuestEmail,
		GuestPhone:    req.GuestPhone,
		Notes:         strings.TrimSpace(req.Notes),
		Currency:      s.cfg.Property.Currency,
		TotalAmount:   quote.Total,
		Lines:         quote.Lines(),
		HoldExpiresAt: &holdUntil,
	}
	if err := s.store.ReserveStay(ctx, b, now); err != nil {
		return nil, err
	}
	ctx = logger.WithBookingID(ctx, b.ID)
	log := s.logger.WithContext(ctx)
	metrics.RecordBooking(metrics.EventCreated, string(b.Channel))

	sess, err := s.payments.CreateCheckoutSession(ctx, stripe.CheckoutRequest{
		BookingID:     b.ID,
		ProductName:   fmt.Sprintf("%s, %s", s.cfg.Property.Name, room.Name),
		Description:   fmt.Sprintf("%s to %s, %d nights, %d guests", b.CheckIn, b.CheckOut, b.Nights(), b.Guests),
		Currency:      b.Currency,
		Amount:        b.TotalAmount,
		CustomerEmail: b.GuestEmail,
		SuccessURL:    s.cfg.SiteURL + "/booking/success?booking=" + b.ID,
		CancelURL:     s.cfg.SiteURL + "/booking/cancelled?booking=" + b.ID,
		ExpiresAt:     holdUntil,
	})
	if err != nil {
		log.Error("checkout session failed, releasing hold", "error", err.Error())
		b.Status = models.StatusExpired
		b.CancelReason = "checkout could not be started"
		if saveErr := s.store.SaveBooking(ctx, b); saveErr != nil {
			log.Error("failed to release hold", "error", saveErr.Error())
		}
		return nil, fmt.Errorf("failed to start checkout: %w", err)
	}

	b.StripeSessionID = sess.ID
	if err := s.store.SaveBooking(ctx, b); err != nil {
		return nil, fmt.Errorf("failed to save checkout session: %w", err)
	}

	log.Info("booking hold created",
		"room_id", b.RoomID,
		"check_in", b.CheckIn.String(),
		"check_out", b.CheckOut.String(),
		"total", b.TotalAmount,
		"hold_expires_at", holdUntil)

	return &CreateResult{
		BookingID:     b.ID,
		CheckoutURL:   sess.URL,
		HoldExpiresAt: holdUntil,
		Total:         b.TotalAmount,
		Currency:      b.Currency,
		Quote:         *quote,
	}, nil
}

// PublicStatus is what the success page may show without authentication.
type PublicStatus struct {
	BookingID string               `json:"bookingId"`
	Status    models.BookingStatus `json:"status"`
	RoomName  string               `json:"roomName"`
	CheckIn   civil.Date           `json:"checkIn"`
	CheckOut  civil.Date           `json:"checkOut"`
	Guests    int                  `json:"guests"`
	Total     int64                `json:"total"`
	Currency  string               `json:"currency"`
}

// Status reports a booking's state for the payment return pages.
func (s *Service) Status(ctx context.Context, bookingID string) (*PublicStatus, error) {
	b, err := s.Get(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	st := &PublicStatus{
		BookingID: b.ID,
		Status:    b.Status,
		CheckIn:   b.CheckIn,
		CheckOut:  b.CheckOut,
		Guests:    b.Guests,
		Total:     b.TotalAmount,
		Currency:  b.Currency,
	}
	if room, err := s.store.GetRoom(ctx, b.RoomID); err == nil {
		st.RoomName = room.Name
	}
	return st, nil
}

// Get loads a booking.
func (s *Service) Get(ctx context.Context, bookingID string) (*models.Booking, error) {
	b, err := s.store.GetBooking(ctx, bookingID)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, ErrBookingNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load booking: %w", err)
	}
	return b, nil
}
