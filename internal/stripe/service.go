// Package stripe takes booking payments through Stripe Checkout.
package stripe

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/stripe/stripe-go/v84"
	"github.com/stripe/stripe-go/v84/checkout/session"
	"github.com/stripe/stripe-go/v84/refund"
	"github.com/stripe/stripe-go/v84/webhook"

	"github.com/casaolivo/bnb-server/internal/logger"
)

// MetadataBookingID links a checkout session to its booking.
const MetadataBookingID = "booking_id"

// Stripe refuses checkout sessions expiring sooner than 30 minutes.
const minSessionTTL = 31 * time.Minute

var (
	ErrNotConfigured    = errors.New("stripe is not configured")
	ErrInvalidSignature = errors.New("webhook signature verification failed")
)

// PaymentEvents receives verified webhook events. The booking service
// implements it.
type PaymentEvents interface {
	ConfirmPayment(ctx context.Context, sessionID, paymentIntentID string, amount int64) error
	ReleaseHold(ctx context.Context, sessionID string) error
	RecordRefund(ctx context.Context, paymentIntentID string, refundedAmount int64) error
}

// CheckoutRequest describes the single line item of a booking checkout.
type CheckoutRequest struct {
	BookingID     string
	Description   string
	ProductName   string
	Currency      string
	Amount        int64
	CustomerEmail string
	SuccessURL    string
	CancelURL     string
	ExpiresAt     time.Time
}

type CheckoutSession struct {
	ID        string
	URL       string
	ExpiresAt time.Time
}

// Service wraps the Stripe SDK.
type Service struct {
	webhookSecret string
	enabled       bool
	events        PaymentEvents
	logger        *logger.Logger
}

// NewService configures the Stripe SDK key. An empty key leaves the service
// disabled and every call returns ErrNotConfigured.
func NewService(secretKey, webhookSecret string, log *logger.Logger) *Service {
	log = log.WithComponent("stripe_service")

	if secretKey == "" {
		log.Warn("Stripe secret key is empty - payments are disabled")
	} else {
		prefix := secretKey
		if len(secretKey) > 12 {
			prefix = secretKey[:12] + "..."
		}
		log.Info("Stripe API key configured", "key_prefix", prefix)
		stripe.Key = secretKey
	}

	return &Service{
		webhookSecret: webhookSecret,
		enabled:       secretKey != "",
		logger:        log,
	}
}

// SetEventHandler wires the receiver of webhook events.
func (s *Service) SetEventHandler(events PaymentEvents) {
	s.events = events
}

func (s *Service) Enabled() bool { return s.enabled }

// SessionExpiry clamps a hold deadline to what Stripe accepts.
func SessionExpiry(holdUntil, now time.Time) time.Time {
	if earliest := now.Add(minSessionTTL); holdUntil.Before(earliest) {
		return earliest
	}
	return holdUntil
}

// CreateCheckoutSession starts a one-off payment for a booking.
func (s *Service) CreateCheckoutSession(ctx context.Context, req CheckoutRequest) (*CheckoutSession, error) {
	if !s.enabled {
		return nil, ErrNotConfigured
	}

	expiresAt := SessionExpiry(req.ExpiresAt, time.Now())
	params := &stripe.CheckoutSessionParams{
		Mode: stripe.String(string(stripe.CheckoutSessionModePayment)),
		LineItems: []*stripe.CheckoutSessionLineItemParams{
			{
				PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
					Currency:   stripe.String(req.Currency),
					UnitAmount: stripe.Int64(req.Amount),
					ProductData: &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
						Name:        stripe.String(req.ProductName),
						Description: stripe.String(req.Description),
					},
				},
				Quantity: stripe.Int64(1),
			},
		},
		CustomerEmail:     stripe.String(req.CustomerEmail),
		ClientReferenceID: stripe.String(req.BookingID),
		SuccessURL:        stripe.String(req.SuccessURL),
		CancelURL:         stripe.String(req.CancelURL),
		ExpiresAt:         stripe.Int64(expiresAt.Unix()),
		PaymentIntentData: &stripe.CheckoutSessionPaymentIntentDataParams{
			Metadata: map[string]string{MetadataBookingID: req.BookingID},
		},
	}
	params.AddMetadata(MetadataBookingID, req.BookingID)

	sess, err := session.New(params)
	if err != nil {
		return nil, fmt.Errorf("failed to create checkout session: %w", err)
	}

	s.logger.WithContext(ctx).Info("checkout session created",
		"booking_id", req.BookingID,
		"session_id", sess.ID,
		"amount", req.Amount,
		"expires_at", expiresAt)

	return &CheckoutSession{ID: sess.ID, URL: sess.URL, ExpiresAt: expiresAt}, nil
}

// Refund returns amount (minor units) of a payment and gives the refund ID.
func (s *Service) Refund(ctx context.Context, paymentIntentID string, amount int64) (string, error) {
	if !s.enabled {
		return "", ErrNotConfigured
	}
	if paymentIntentID == "" {
		return "", errors.New("refund: missing payment intent")
	}

	params := &stripe.RefundParams{
		PaymentIntent: stripe.String(paymentIntentID),
		Amount:        stripe.Int64(amount),
		Reason:        stripe.String(string(stripe.RefundReasonRequestedByCustomer)),
	}
	r, err := refund.New(params)
	if err != nil {
		return "", fmt.Errorf("failed to create refund: %w", err)
	}

	s.logger.WithContext(ctx).Info("refund created",
		"payment_intent_id", paymentIntentID,
		"refund_id", r.ID,
		"amount", amount)
	return r.ID, nil
}

// HandleWebhook verifies the signature and routes the event.
//
// Supported events:
//   - checkout.session.completed / async_payment_succeeded: confirm the booking
//   - checkout.session.expired: release the hold
//   - charge.refunded: record the refunded amount
func (s *Service) HandleWebhook(ctx context.Context, payload []byte, signature string) error {
	event, err := webhook.ConstructEvent(payload, signature, s.webhookSecret)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}
	if s.events == nil {
		return errors.New("no payment event handler configured")
	}

	s.logger.WithContext(ctx).Info("webhook event received", "type", event.Type, "event_id", event.ID)

	switch event.Type {
	case "checkout.session.completed", "checkout.session.async_payment_succeeded":
		return s.handleCheckoutCompleted(ctx, event)
	case "checkout.session.expired":
		var sess stripe.CheckoutSession
		if err := json.Unmarshal(event.Data.Raw, &sess); err != nil {
			return fmt.Errorf("failed to parse checkout session: %w", err)
		}
		return s.events.ReleaseHold(ctx, sess.ID)
	case "charge.refunded":
		var charge stripe.Charge
		if err := json.Unmarshal(event.Data.Raw, &charge); err != nil {
			return fmt.Errorf("failed to parse charge: %w", err)
		}
		if charge.PaymentIntent == nil {
			return nil
		}
		return s.events.RecordRefund(ctx, charge.PaymentIntent.ID, charge.AmountRefunded)
	default:
		s.logger.Info("unhandled webhook event type", "type", event.Type)
	}
	return nil
}

func (s *Service) handleCheckoutCompleted(ctx context.Context, event stripe.Event) error {
	var sess stripe.CheckoutSession
	if err := json.Unmarshal(event.Data.Raw, &sess); err != nil {
		return fmt.Errorf("failed to parse checkout session: %w", err)
	}

	// Delayed methods (SEPA, bank transfer) complete unpaid and succeed later.
	if sess.PaymentStatus == stripe.CheckoutSessionPaymentStatusUnpaid {
		s.logger.WithContext(ctx).Info("checkout completed but not yet paid", "session_id", sess.ID)
		return nil
	}

	var paymentIntentID string
	if sess.PaymentIntent != nil {
		paymentIntentID = sess.PaymentIntent.ID
	}
	return s.events.ConfirmPayment(ctx, sess.ID, paymentIntentID, sess.AmountTotal)
}
