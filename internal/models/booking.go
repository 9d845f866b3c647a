package models

import (
	"time"

	"cloud.google.com/go/civil"
)

// Channel is where a booking came from.
type Channel string

const (
	ChannelSite       Channel = "site"
	ChannelBookingCom Channel = "booking_com"
	ChannelAirbnb     Channel = "airbnb"
	ChannelExpedia    Channel = "expedia"
	ChannelDirect     Channel = "direct"
	// ChannelBlocked marks owner blocks (maintenance, personal use).
	ChannelBlocked Channel = "blocked"
	ChannelOther   Channel = "other"
)

// Valid reports whether c is a known channel.
func (c Channel) Valid() bool {
	switch c {
	case ChannelSite, ChannelBookingCom, ChannelAirbnb, ChannelExpedia, ChannelDirect, ChannelBlocked, ChannelOther:
		return true
	}
	return false
}

// BookingStatus is the lifecycle state of a booking.
type BookingStatus string

const (
	// StatusPending is a site booking holding its dates while the guest pays.
	StatusPending   BookingStatus = "pending"
	StatusConfirmed BookingStatus = "confirmed"
	StatusCancelled BookingStatus = "cancelled"
	// StatusExpired is a pending hold whose checkout was never completed.
	StatusExpired BookingStatus = "expired"
	// StatusPaymentConflict is a paid booking whose dates were taken after the
	// hold lapsed. It blocks the dates until an admin resolves it.
	StatusPaymentConflict BookingStatus = "payment_conflict"
)

// QuoteLine is one priced night stored with the booking for later display.
type QuoteLine struct {
	Date   civil.Date `json:"date"`
	Amount int64      `json:"amount"`
	Source string     `json:"source"`
}

// Booking is a stay on one room, from any channel. Nights are [CheckIn, CheckOut).
type Booking struct {
	ID          string        `json:"id"`
	RoomID      string        `json:"roomId"`
	Channel     Channel       `json:"channel"`
	Status      BookingStatus `json:"status"`
	CheckIn     civil.Date    `json:"checkIn"`
	CheckOut    civil.Date    `json:"checkOut"`
	Guests      int           `json:"guests"`
	GuestUserID string        `json:"guestUserId,omitempty"`
	GuestName   string        `json:"guestName"`
	GuestEmail  string        `json:"guestEmail,omitempty"`
	GuestPhone  string        `json:"guestPhone,omitempty"`
	Notes       string        `json:"notes,omitempty"`

	Currency       string      `json:"currency"`
	TotalAmount    int64       `json:"totalAmount"`
	RefundedAmount int64       `json:"refundedAmount"`
	Lines          []QuoteLine `json:"lines,omitempty"`

	StripeSessionID       string `json:"-"`
	StripePaymentIntentID string `json:"-"`

	// ExternalID is the Smoobu reservation ID, for channel bookings and for
	// site bookings once they are mirrored to Smoobu.
	ExternalID string `json:"externalId,omitempty"`

	HoldExpiresAt *time.Time `json:"holdExpiresAt,omitempty"`
	CancelReason  string     `json:"cancelReason,omitempty"`
	CreatedAt     time.Time  `json:"createdAt"`
	UpdatedAt     time.Time  `json:"updatedAt"`
}

// Blocks reports whether the booking occupies its nights at time now. A
// payment conflict holds them until the guest is refunded.
func (b Booking) Blocks(now time.Time) bool {
	switch b.Status {
	case StatusConfirmed:
		return true
	case StatusPaymentConflict:
		return b.RefundedAmount == 0
	case StatusPending:
		return b.HoldExpiresAt == nil || now.Before(*b.HoldExpiresAt)
	}
	return false
}

// Nights is the number of nights booked.
func (b Booking) Nights() int {
	return b.CheckOut.DaysSince(b.CheckIn)
}

// IsActive is true for bookings that still matter to the guest.
func (b Booking) IsActive() bool {
	return b.Status == StatusPending || b.Status == StatusConfirmed || b.Status == StatusPaymentConflict
}
