package booking

import (
	"context"
	"errors"
	"fmt"

	"github.com/casaolivo/bnb-server/internal/availability"
	"github.com/casaolivo/bnb-server/internal/logger"
	"github.com/casaolivo/bnb-server/internal/metrics"
	"github.com/casaolivo/bnb-server/internal/models"
	"github.com/casaolivo/bnb-server/internal/storage"
)

// ConfirmPayment marks the booking of a paid checkout session confirmed.
// Repeated deliveries are no-ops. When the hold lapsed and the nights were
// sold meanwhile, the booking becomes payment_conflict and is refunded.
func (s *Service) ConfirmPayment(ctx context.Context, sessionID, paymentIntentID string, amount int64) error {
	b, err := s.store.FindBookingByStripeSession(ctx, sessionID)
	if errors.Is(err, storage.ErrNotFound) {
		s.logger.WithContext(ctx).Warn("payment for unknown checkout session", "session_id", sessionID)
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to find booking for session: %w", err)
	}

	ctx = logger.WithBookingID(ctx, b.ID)
	log := s.logger.WithContext(ctx)

	switch b.Status {
	case models.StatusConfirmed, models.StatusPaymentConflict:
		log.Info("payment already processed", "status", b.Status)
		return nil
	case models.StatusCancelled:
		// Cancelled while the guest was paying: give the money back.
		b.StripePaymentIntentID = paymentIntentID
		return s.refundConflict(ctx, b, amount, "booking was cancelled before payment completed")
	}

	if amount != b.TotalAmount {
		log.Warn("paid amount differs from booking total", "paid", amount, "total", b.TotalAmount)
	}

	bookings, err := s.roomBookings(ctx, b.RoomID, availability.StayOf(*b))
	if err != nil {
		return err
	}
	b.StripePaymentIntentID = paymentIntentID
	if err := availability.Check(availability.StayOf(*b), bookings, s.now(), b.ID); err != nil {
		var conflict *availability.ConflictError
		if errors.As(err, &conflict) {
			log.Warn("paid booking lost its dates", "blocking", len(conflict.Blocking))
			return s.refundConflict(ctx, b, amount, "dates were taken after the payment hold expired")
		}
		return err
	}

	b.Status = models.StatusConfirmed
	b.HoldExpiresAt = nil
	if err := s.store.SaveBooking(ctx, b); err != nil {
		return fmt.Errorf("failed to confirm booking: %w", err)
	}
	metrics.RecordBooking(metrics.EventConfirmed, string(b.Channel))
	log.Info("booking confirmed", "payment_intent_id", paymentIntentID, "amount", amount)

	room, err := s.store.GetRoom(ctx, b.RoomID)
	if err != nil {
		log.Error("failed to load room for confirmation", "error", err.Error())
		room = &models.Room{ID: b.RoomID, Name: b.RoomID}
	}
	channelErr := s.pushToChannel(ctx, b, room)
	s.sendConfirmation(ctx, b, room)
	s.notifyAdminNewBooking(ctx, b, room, channelErr)
	return nil
}

func (s *Service) refundConflict(ctx context.Context, b *models.Booking, amount int64, reason string) error {
	log := s.logger.WithContext(ctx)

	if b.Status != models.StatusCancelled {
		b.Status = models.StatusPaymentConflict
	}
	b.HoldExpiresAt = nil
	b.CancelReason = reason
	if err := s.store.SaveBooking(ctx, b); err != nil {
		return fmt.Errorf("failed to record payment conflict: %w", err)
	}
	metrics.RecordBooking(metrics.EventConflict, string(b.Channel))

	var refundErr error
	if amount > 0 && b.StripePaymentIntentID != "" {
		if _, refundErr = s.payments.Refund(ctx, b.StripePaymentIntentID, amount); refundErr == nil {
			b.RefundedAmount = amount
			if err := s.store.SaveBooking(ctx, b); err != nil {
				log.Error("failed to record refund", "error", err.Error())
			}
		} else {
			log.Error("automatic refund failed", "error", refundErr.Error())
		}
	}

	room, err := s.store.GetRoom(ctx, b.RoomID)
	if err != nil {
		room = &models.Room{ID: b.RoomID, Name: b.RoomID}
	}
	s.alertPaymentConflict(ctx, b, room, reason, refundErr)
	if refundErr == nil {
		s.sendCancellation(ctx, b, room, b.RefundedAmount)
	}
	return nil
}

// ReleaseHold expires the pending booking of an abandoned checkout session.
func (s *Service) ReleaseHold(ctx context.Context, sessionID string) error {
	b, err := s.store.FindBookingByStripeSession(ctx, sessionID)
	if errors.Is(err, storage.ErrNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to find booking for session: %w", err)
	}
	if b.Status != models.StatusPending {
		return nil
	}
	return s.expire(ctx, b, "checkout session expired")
}

func (s *Service) expire(ctx context.Context, b *models.Booking, reason string) error {
	b.Status = models.StatusExpired
	b.CancelReason = reason
	if err := s.store.SaveBooking(ctx, b); err != nil {
		return fmt.Errorf("failed to expire booking %s: %w", b.ID, err)
	}
	metrics.RecordBooking(metrics.EventExpired, string(b.Channel))
	s.logger.WithContext(logger.WithBookingID(ctx, b.ID)).Info("booking hold released", "reason", reason)
	return nil
}

// ExpireHolds marks every pending booking whose hold ended as expired and
// returns how many it changed.
func (s *Service) ExpireHolds(ctx context.Context) (int, error) {
	now := s.now()
	pending, err := s.store.ListBookings(ctx, storage.BookingFilter{
		Statuses:          []models.BookingStatus{models.StatusPending},
		HoldExpiredBefore: &now,
	})
	if err != nil {
		return 0, fmt.Errorf("failed to list lapsed holds: %w", err)
	}

	expired := 0
	for i := range pending {
		if ctx.Err() != nil {
			return expired, ctx.Err()
		}
		if err := s.expire(ctx, &pending[i], "payment hold expired"); err != nil {
			s.logger.Error("failed to expire hold", "booking_id", pending[i].ID, "error", err.Error())
			continue
		}
		expired++
	}
	return expired, nil
}

// RecordRefund stores the cumulative refunded amount Stripe reports.
func (s *Service) RecordRefund(ctx context.Context, paymentIntentID string, refundedAmount int64) error {
	b, err := s.store.FindBookingByPaymentIntent(ctx, paymentIntentID)
	if errors.Is(err, storage.ErrNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to find booking for payment: %w", err)
	}
	if b.RefundedAmount == refundedAmount {
		return nil
	}
	b.RefundedAmount = refundedAmount
	if err := s.store.SaveBooking(ctx, b); err != nil {
		return fmt.Errorf("failed to record refund: %w", err)
	}
	s.logger.WithContext(logger.WithBookingID(ctx, b.ID)).Info("refund recorded", "refunded", refundedAmount)
	return nil
}

