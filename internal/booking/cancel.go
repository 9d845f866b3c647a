package booking

import (
	"context"
	"fmt"
	"strings"

	"cloud.google.com/go/civil"

	"github.com/casaolivo/bnb-server/internal/availability"
	"github.com/casaolivo/bnb-server/internal/logger"
	"github.com/casaolivo/bnb-server/internal/metrics"
	"github.com/casaolivo/bnb-server/internal/models"
	"github.com/casaolivo/bnb-server/internal/storage"
)

// Actor is who asks for a change.
type Actor struct {
	UserID string
	Email  string
	Admin  bool
}

// Owns reports whether the actor may act on b as its guest.
func (a Actor) Owns(b *models.Booking) bool {
	if a.UserID != "" && b.GuestUserID == a.UserID {
		return true
	}
	return a.Email != "" && strings.EqualFold(a.Email, b.GuestEmail)
}

type CancelOptions struct {
	Reason string
	// Refund forces a refund outside the policy. Admin only.
	Refund bool
	// RefundAmount caps a forced refund; 0 means what is left of the payment.
	RefundAmount int64
}

type CancelResult struct {
	Booking  *models.Booking `json:"booking"`
	Refunded int64           `json:"refunded"`
}

// FreeCancelDeadline is the last date a guest can cancel with a full refund.
func (s *Service) FreeCancelDeadline(b *models.Booking) civil.Date {
	return b.CheckIn.AddDays(-s.cfg.Booking.FreeCancelDays)
}

// RefundDue is what the policy refunds if a guest cancels today: everything
// not yet refunded up to the free cancellation deadline, nothing after.
func (s *Service) RefundDue(b *models.Booking) int64 {
	if b.Status != models.StatusConfirmed || b.StripePaymentIntentID == "" {
		return 0
	}
	if s.Today().After(s.FreeCancelDeadline(b)) {
		return 0
	}
	return b.TotalAmount - b.RefundedAmount
}

func cancellableChannel(ch models.Channel) bool {
	switch ch {
	case models.ChannelSite, models.ChannelDirect, models.ChannelBlocked:
		return true
	}
	return false
}

// GuestCanCancel reports whether the guest may still cancel b online.
func (s *Service) GuestCanCancel(b *models.Booking) bool {
	return cancellableChannel(b.Channel) && b.IsActive() && b.CheckIn.After(s.Today())
}

// Cancel cancels a booking as a guest or an admin. Channel bookings can only
// be cancelled on their channel.
func (s *Service) Cancel(ctx context.Context, bookingID string, actor Actor, opts CancelOptions) (*CancelResult, error) {
	b, err := s.Get(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	ctx = logger.WithBookingID(ctx, b.ID)
	log := s.logger.WithContext(ctx)

	if !actor.Admin && !actor.Owns(b) {
		return nil, ErrNotOwner
	}
	if !cancellableChannel(b.Channel) {
		return nil, ErrChannelManaged
	}
	if !b.IsActive() {
		return nil, ErrNotCancellable
	}
	if !actor.Admin && !b.CheckIn.After(s.Today()) {
		return nil, &ValidationError{Field: "checkIn", Message: "stays that have started can only be cancelled by the host"}
	}

	refund := s.RefundDue(b)
	if actor.Admin && opts.Refund {
		refund = b.TotalAmount - b.RefundedAmount
		if opts.RefundAmount > 0 && opts.RefundAmount < refund {
			refund = opts.RefundAmount
		}
	} else if actor.Admin {
		refund = 0
	}
	if refund > 0 && b.StripePaymentIntentID == "" {
		refund = 0
	}

	if refund > 0 {
		if _, err := s.payments.Refund(ctx, b.StripePaymentIntentID, refund); err != nil {
			return nil, fmt.Errorf("refund failed, booking not cancelled: %w", err)
		}
		b.RefundedAmount += refund
	}

	b.Status = models.StatusCancelled
	b.HoldExpiresAt = nil
	b.CancelReason = strings.TrimSpace(opts.Reason)
	if b.CancelReason == "" {
		if actor.Admin {
			b.CancelReason = "cancelled by the host"
		} else {
			b.CancelReason = "cancelled by the guest"
		}
	}
	if err := s.store.SaveBooking(ctx, b); err != nil {
		return nil, fmt.Errorf("failed to cancel booking: %w", err)
	}
	metrics.RecordBooking(metrics.EventCancelled, string(b.Channel))
	log.Info("booking cancelled", "admin", actor.Admin, "refunded", refund)

	if err := s.removeFromChannel(ctx, b); err != nil {
		log.Error("failed to cancel smoobu mirror", "external_id", b.ExternalID, "error", err.Error())
	}

	room, err := s.store.GetRoom(ctx, b.RoomID)
	if err != nil {
		room = &models.Room{ID: b.RoomID, Name: b.RoomID}
	}
	if b.Channel == models.ChannelSite {
		s.sendCancellation(ctx, b, room, refund)
	}
	return &CancelResult{Booking: b, Refunded: refund}, nil
}

// ManualRequest is a booking the host enters: a direct booking taken by
// phone or email, or a block of nights.
type ManualRequest struct {
	RoomID      string         `json:"roomId" binding:"required"`
	CheckIn     string         `json:"checkIn" binding:"required"`
	CheckOut    string         `json:"checkOut" binding:"required"`
	Channel     models.Channel `json:"channel" binding:"required"`
	Guests      int            `json:"guests"`
	GuestName   string         `json:"guestName"`
	GuestEmail  string         `json:"guestEmail"`
	GuestPhone  string         `json:"guestPhone"`
	TotalAmount int64          `json:"totalAmount"`
	Notes       string         `json:"notes"`
}

// CreateManual records a confirmed direct booking or block after the same
// overlap check as the site, and mirrors it to Smoobu.
func (s *Service) CreateManual(ctx context.Context, req ManualRequest) (*models.Booking, error) {
	if req.Channel != models.ChannelDirect && req.Channel != models.ChannelBlocked {
		return nil, &ValidationError{Field: "channel", Message: "must be direct or blocked"}
	}
	stay, err := availability.ParseStay(req.CheckIn, req.CheckOut)
	if err != nil {
		return nil, &ValidationError{Field: "dates", Message: err.Error()}
	}
	room, err := s.room(ctx, req.RoomID)
	if err != nil {
		return nil, err
	}
	if req.Channel == models.ChannelDirect && strings.TrimSpace(req.GuestName) == "" {
		return nil, &ValidationError{Field: "guestName", Message: "name is required for a direct booking"}
	}
	if req.TotalAmount < 0 {
		return nil, &ValidationError{Field: "totalAmount", Message: "must not be negative"}
	}

	b := &models.Booking{
		RoomID:      room.ID,
		Channel:     req.Channel,
		Status:      models.StatusConfirmed,
		CheckIn:     stay.CheckIn,
		CheckOut:    stay.CheckOut,
		Guests:      req.Guests,
		GuestName:   strings.TrimSpace(req.GuestName),
		GuestEmail:  strings.ToLower(strings.TrimSpace(req.GuestEmail)),
		GuestPhone:  strings.TrimSpace(req.GuestPhone),
		Notes:       strings.TrimSpace(req.Notes),
		Currency:    s.cfg.Property.Currency,
		TotalAmount: req.TotalAmount,
	}
	if err := s.store.ReserveStay(ctx, b, s.now()); err != nil {
		return nil, err
	}
	ctx = logger.WithBookingID(ctx, b.ID)
	metrics.RecordBooking(metrics.EventCreated, string(b.Channel))
	s.logger.WithContext(ctx).Info("manual booking created", "channel", b.Channel, "room_id", b.RoomID)

	// A failed mirror is logged by pushToChannel; the booking stands.
	_ = s.pushToChannel(ctx, b, room)
	return b, nil
}

// ListForGuest returns the bookings of a signed-in guest, by account or email.
func (s *Service) ListForGuest(ctx context.Context, actor Actor) ([]models.Booking, error) {
	seen := make(map[string]bool)
	var out []models.Booking
	add := func(filter storage.BookingFilter) error {
		list, err := s.store.ListBookings(ctx, filter)
		if err != nil {
			return fmt.Errorf("failed to list guest bookings: %w", err)
		}
		for _, b := range list {
			if !seen[b.ID] && b.Status != models.StatusExpired {
				seen[b.ID] = true
				out = append(out, b)
			}
		}
		return nil
	}
	if actor.UserID != "" {
		if err := add(storage.BookingFilter{GuestUserID: actor.UserID}); err != nil {
			return nil, err
		}
	}
	if actor.Email != "" {
		if err := add(storage.BookingFilter{GuestEmail: strings.ToLower(actor.Email)}); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// UpdateStatus lets an admin resolve a booking by hand, e.g. confirm a
// payment_conflict after moving the other guest.
func (s *Service) UpdateStatus(ctx context.Context, bookingID string, status models.BookingStatus) (*models.Booking, error) {
	b, err := s.Get(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	switch status {
	case models.StatusConfirmed:
		bookings, err := s.roomBookings(ctx, b.RoomID, availability.StayOf(*b))
		if err != nil {
			return nil, err
		}
		if err := availability.Check(availability.StayOf(*b), bookings, s.now(), b.ID); err != nil {
			return nil, err
		}
	case models.StatusCancelled, models.StatusExpired:
	default:
		return nil, &ValidationError{Field: "status", Message: "must be confirmed, cancelled or expired"}
	}

	b.Status = status
	b.HoldExpiresAt = nil
	if err := s.store.SaveBooking(ctx, b); err != nil {
		return nil, fmt.Errorf("failed to update booking: %w", err)
	}
	s.logger.WithContext(logger.WithBookingID(ctx, b.ID)).Info("booking status changed by admin", "status", status)
	return b, nil
}
