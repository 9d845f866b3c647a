// Package storage defines the repositories the services read and write.
// firestoredb is the production implementation, memory backs local
// development and tests.
package storage

import (
	"context"
	"errors"
	"time"

	"cloud.google.com/go/civil"

	"github.com/casaolivo/bnb-server/internal/availability"
	"github.com/casaolivo/bnb-server/internal/models"
)

var (
	ErrNotFound      = errors.New("not found")
	ErrAlreadyExists = errors.New("already exists")
)

type RoomStore interface {
	ListRooms(ctx context.Context, activeOnly bool) ([]models.Room, error)
	GetRoom(ctx context.Context, id string) (*models.Room, error)
	GetRoomBySlug(ctx context.Context, slug string) (*models.Room, error)
	SaveRoom(ctx context.Context, room *models.Room) error
}

type BookingStore interface {
	GetBooking(ctx context.Context, id string) (*models.Booking, error)
	FindBookingByExternalID(ctx context.Context, externalID string) (*models.Booking, error)
	FindBookingByStripeSession(ctx context.Context, sessionID string) (*models.Booking, error)
	FindBookingByPaymentIntent(ctx context.Context, paymentIntentID string) (*models.Booking, error)
	ListBookings(ctx context.Context, filter BookingFilter) ([]models.Booking, error)
	// ReserveStay atomically checks the room is free for the booking's nights
	// and creates it. It returns an *availability.ConflictError when taken.
	ReserveStay(ctx context.Context, booking *models.Booking, now time.Time) error
	// SaveBooking upserts without an availability check. Channel imports use
	// it because the channel already sold the nights.
	SaveBooking(ctx context.Context, booking *models.Booking) error
}

type PricingStore interface {
	ListSeasons(ctx context.Context) ([]models.Season, error)
	SaveSeason(ctx context.Context, season *models.Season) error
	DeleteSeason(ctx context.Context, id string) error
	ListSpecialPeriods(ctx context.Context) ([]models.SpecialPeriod, error)
	SaveSpecialPeriod(ctx context.Context, period *models.SpecialPeriod) error
	DeleteSpecialPeriod(ctx context.Context, id string) error
	// ListOverrides returns roomID's overrides in [from, to). An empty roomID
	// returns every room's overrides.
	ListOverrides(ctx context.Context, roomID string, from, to civil.Date) ([]models.PriceOverride, error)
	SaveOverride(ctx context.Context, override *models.PriceOverride) error
	DeleteOverride(ctx context.Context, id string) error
}

type UserStore interface {
	GetUser(ctx context.Context, id string) (*models.User, error)
	SaveUser(ctx context.Context, user *models.User) error
}

type ReviewStore interface {
	ListReviews(ctx context.Context, filter ReviewFilter) ([]models.Review, error)
	GetReview(ctx context.Context, id string) (*models.Review, error)
	FindReviewByBooking(ctx context.Context, bookingID string) (*models.Review, error)
	SaveReview(ctx context.Context, review *models.Review) error
}

type SettingsStore interface {
	// GetContactSettings returns empty settings when none were saved yet.
	GetContactSettings(ctx context.Context) (*models.ContactSettings, error)
	SaveContactSettings(ctx context.Context, settings *models.ContactSettings) error
	GetPendingOTP(ctx context.Context, adminID string) (*models.PendingOTP, error)
	SavePendingOTP(ctx context.Context, otp *models.PendingOTP) error
	DeletePendingOTP(ctx context.Context, adminID string) error
	// UseOTPAttempt atomically counts one attempt against adminID's pending
	// code and returns it with the new count. It returns false without
	// counting when limit attempts were already used.
	UseOTPAttempt(ctx context.Context, adminID string, limit int) (*models.PendingOTP, bool, error)
}

type SyncRunStore interface {
	SaveSyncRun(ctx context.Context, run *models.SyncRun) error
	ListSyncRuns(ctx context.Context, limit int) ([]models.SyncRun, error)
}

// Store is everything the server persists.
type Store interface {
	RoomStore
	BookingStore
	PricingStore
	UserStore
	ReviewStore
	SettingsStore
	SyncRunStore
	Close() error
}

// BookingFilter selects bookings. Zero fields do not filter.
type BookingFilter struct {
	RoomID      string
	GuestUserID string
	GuestEmail  string
	Channel     models.Channel
	Statuses    []models.BookingStatus
	// From/To select bookings whose nights overlap [From, To).
	From civil.Date
	To   civil.Date
	// HoldExpiredBefore selects pending bookings whose hold ended before it.
	HoldExpiredBefore *time.Time
	OnlyExternal      bool
}

// Match reports whether b passes the filter.
func (f BookingFilter) Match(b models.Booking) bool {
	if f.RoomID != "" && b.RoomID != f.RoomID {
		return false
	}
	if f.GuestUserID != "" && b.GuestUserID != f.GuestUserID {
		return false
	}
	if f.GuestEmail != "" && b.GuestEmail != f.GuestEmail {
		return false
	}
	if f.Channel != "" && b.Channel != f.Channel {
		return false
	}
	if f.OnlyExternal && b.ExternalID == "" {
		return false
	}
	if len(f.Statuses) > 0 {
		found := false
		for _, s := range f.Statuses {
			if b.Status == s {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	if !f.From.IsZero() && !b.CheckOut.After(f.From) {
		return false
	}
	if !f.To.IsZero() && !b.CheckIn.Before(f.To) {
		return false
	}
	if f.HoldExpiredBefore != nil {
		if b.Status != models.StatusPending || b.HoldExpiresAt == nil || !b.HoldExpiresAt.Before(*f.HoldExpiredBefore) {
			return false
		}
	}
	return true
}

// ReviewFilter selects reviews. Zero fields do not filter.
type ReviewFilter struct {
	RoomID      string
	GuestUserID string
	Status      models.ReviewStatus
}

// Match reports whether r passes the filter.
func (f ReviewFilter) Match(r models.Review) bool {
	if f.RoomID != "" && r.RoomID != f.RoomID {
		return false
	}
	if f.GuestUserID != "" && r.GuestUserID != f.GuestUserID {
		return false
	}
	if f.Status != "" && r.Status != f.Status {
		return false
	}
	return true
}

// CheckReservation is the availability check both stores run inside their
// atomic section, against the room's bookings overlapping the new stay.
func CheckReservation(booking *models.Booking, existing []models.Booking, now time.Time) error {
	return availability.Check(availability.StayOf(*booking), existing, now, booking.ID)
}
