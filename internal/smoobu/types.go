package smoobu

import (
	"encoding/json"
	"strconv"
)

// Reservation types as reported by Smoobu in the "type" field.
const (
	TypeReservation  = "reservation"
	TypeModification = "modification of booking"
	TypeCancellation = "cancellation"
)

// Webhook actions.
const (
	ActionNewReservation    = "newReservation"
	ActionUpdateReservation = "updateReservation"
	ActionCancelReservation = "cancelReservation"
	ActionDeleteReservation = "deleteReservation"
)

type Ref struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

// Reservation is a Smoobu booking. Dates are YYYY-MM-DD, departure exclusive.
type Reservation struct {
	ID         int64   `json:"id"`
	Type       string  `json:"type"`
	Arrival    string  `json:"arrival"`
	Departure  string  `json:"departure"`
	Apartment  Ref     `json:"apartment"`
	Channel    Ref     `json:"channel"`
	GuestName  string  `json:"guest-name"`
	Email      string  `json:"email"`
	Phone      string  `json:"phone"`
	Adults     int     `json:"adults"`
	Children   int     `json:"children"`
	Price      float64 `json:"price"`
	Notice     string  `json:"notice"`
	IsBlocked  bool    `json:"is-blocked-booking"`
	CreatedAt  string  `json:"created-at"`
	ModifiedAt string  `json:"modifiedAt"`
}

// Cancelled reports whether Smoobu marks the reservation as cancelled.
func (r Reservation) Cancelled() bool {
	return r.Type == TypeCancellation
}

// Key is the reservation ID as stored in Booking.ExternalID.
func (r Reservation) Key() string {
	return strconv.FormatInt(r.ID, 10)
}

type reservationsPage struct {
	PageCount  int           `json:"page_count"`
	PageSize   int           `json:"page_size"`
	TotalItems int           `json:"total_items"`
	Page       int           `json:"page"`
	Bookings   []Reservation `json:"bookings"`
}

// NewReservation is the payload for POST /reservations.
type NewReservation struct {
	ArrivalDate   string  `json:"arrivalDate"`
	DepartureDate string  `json:"departureDate"`
	ChannelID     int     `json:"channelId"`
	ApartmentID   int64   `json:"apartmentId"`
	FirstName     string  `json:"firstName"`
	LastName      string  `json:"lastName"`
	Email         string  `json:"email,omitempty"`
	Phone         string  `json:"phone,omitempty"`
	Adults        int     `json:"adults"`
	Children      int     `json:"children"`
	Price         float64 `json:"price"`
	PriceStatus   int     `json:"priceStatus"`
	Notice        string  `json:"notice,omitempty"`
}

type createResponse struct {
	ID int64 `json:"id"`
}

type Apartment struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

type apartmentsResponse struct {
	Apartments []Apartment `json:"apartments"`
}

// WebhookEvent is the body Smoobu posts to the webhook URL.
type WebhookEvent struct {
	Action string          `json:"action"`
	User   int64           `json:"user"`
	Data   json.RawMessage `json:"data"`
}

// Reservation decodes the event payload.
func (e WebhookEvent) Reservation() (Reservation, error) {
	var r Reservation
	err := json.Unmarshal(e.Data, &r)
	return r, err
}
