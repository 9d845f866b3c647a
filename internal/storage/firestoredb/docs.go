package firestoredb

import (
	"time"

	"cloud.google.com/go/civil"

	"github.com/casaolivo/bnb-server/internal/models"
)

// Dates are stored as "YYYY-MM-DD" strings so range queries sort correctly.

func dateString(d civil.Date) string {
	if d.IsZero() {
		return ""
	}
	return d.String()
}

func parseDate(s string) civil.Date {
	d, err := civil.ParseDate(s)
	if err != nil {
		return civil.Date{}
	}
	return d
}

type roomDoc struct {
	Slug                  string    `firestore:"slug"`
	Name                  string    `firestore:"name"`
	Summary               string    `firestore:"summary"`
	Description           string    `firestore:"description"`
	Capacity              int       `firestore:"capacity"`
	BaseOccupancy         int       `firestore:"base_occupancy"`
	BasePrice             int64     `firestore:"base_price"`
	ExtraGuestFee         int64     `firestore:"extra_guest_fee"`
	CleaningFee           int64     `firestore:"cleaning_fee"`
	WeeklyDiscountPercent int       `firestore:"weekly_discount_percent"`
	MinNights             int       `firestore:"min_nights"`
	Amenities             []string  `firestore:"amenities"`
	Images                []string  `firestore:"images"`
	SmoobuApartmentID     int64     `firestore:"smoobu_apartment_id"`
	Active                bool      `firestore:"active"`
	SortOrder             int       `firestore:"sort_order"`
	CreatedAt             time.Time `firestore:"created_at"`
	UpdatedAt             time.Time `firestore:"updated_at"`
}

func toRoomDoc(r *models.Room) roomDoc {
	return roomDoc{
		Slug: r.Slug, Name: r.Name, Summary: r.Summary, Description: r.Description,
		Capacity: r.Capacity, BaseOccupancy: r.BaseOccupancy,
		BasePrice: r.BasePrice, ExtraGuestFee: r.ExtraGuestFee, CleaningFee: r.CleaningFee,
		WeeklyDiscountPercent: r.WeeklyDiscountPercent, MinNights: r.MinNights,
		Amenities: r.Amenities, Images: r.Images,
		SmoobuApartmentID: r.SmoobuApartmentID, Active: r.Active, SortOrder: r.SortOrder,
		CreatedAt: r.CreatedAt, UpdatedAt: r.UpdatedAt,
	}
}

func (d roomDoc) model(id string) models.Room {
	return models.Room{
		ID: id, Slug: d.Slug, Name: d.Name, Summary: d.Summary, Description: d.Description,
		Capacity: d.Capacity, BaseOccupancy: d.BaseOccupancy,
		BasePrice: d.BasePrice, ExtraGuestFee: d.ExtraGuestFee, CleaningFee: d.CleaningFee,
		WeeklyDiscountPercent: d.WeeklyDiscountPercent, MinNights: d.MinNights,
		Amenities: d.Amenities, Images: d.Images,
		SmoobuApartmentID: d.SmoobuApartmentID, Active: d.Active, SortOrder: d.SortOrder,
		CreatedAt: d.CreatedAt, UpdatedAt: d.UpdatedAt,
	}
}

type lineDoc struct {
	Date   string `firestore:"date"`
	Amount int64  `firestore:"amount"`
	Source string `firestore:"source"`
}

type bookingDoc struct {
	RoomID                string     `firestore:"room_id"`
	Channel               string     `firestore:"channel"`
	Status                string     `firestore:"status"`
	CheckIn               string     `firestore:"check_in"`
	CheckOut              string     `firestore:"check_out"`
	Guests                int        `firestore:"guests"`
	GuestUserID           string     `firestore:"guest_user_id"`
	GuestName             string     `firestore:"guest_name"`
	GuestEmail            string     `firestore:"guest_email"`
	GuestPhone            string     `firestore:"guest_phone"`
	Notes                 string     `firestore:"notes"`
	Currency              string     `firestore:"currency"`
	TotalAmount           int64      `firestore:"total_amount"`
	RefundedAmount        int64      `firestore:"refunded_amount"`
	Lines                 []lineDoc  `firestore:"lines"`
	StripeSessionID       string     `firestore:"stripe_session_id"`
	StripePaymentIntentID string     `firestore:"stripe_payment_intent_id"`
	ExternalID            string     `firestore:"external_id"`
	HoldExpiresAt         *time.Time `firestore:"hold_expires_at"`
	CancelReason          string     `firestore:"cancel_reason"`
	CreatedAt             time.Time  `firestore:"created_at"`
	UpdatedAt             time.Time  `firestore:"updated_at"`
}

func toBookingDoc(b *models.Booking) bookingDoc {
	lines := make([]lineDoc, len(b.Lines))
	for i, l := range b.Lines {
		lines[i] = lineDoc{Date: dateString(l.Date), Amount: l.Amount, Source: l.Source}
	}
	return bookingDoc{
		RoomID: b.RoomID, Channel: string(b.Channel), Status: string(b.Status),
		CheckIn: dateString(b.CheckIn), CheckOut: dateString(b.CheckOut), Guests: b.Guests,
		GuestUserID: b.GuestUserID, GuestName: b.GuestName, GuestEmail: b.GuestEmail,
		GuestPhone: b.GuestPhone, Notes: b.Notes,
		Currency: b.Currency, TotalAmount: b.TotalAmount, RefundedAmount: b.RefundedAmount,
		Lines:                 lines,
		StripeSessionID:       b.StripeSessionID,
		StripePaymentIntentID: b.StripePaymentIntentID,
		ExternalID:            b.ExternalID,
		HoldExpiresAt:         b.HoldExpiresAt,
		CancelReason:          b.CancelReason,
		CreatedAt:             b.CreatedAt,
		UpdatedAt:             b.UpdatedAt,
	}
}

func (d bookingDoc) model(id string) models.Booking {
	var lines []models.QuoteLine
	for _, l := range d.Lines {
		lines = append(lines, models.QuoteLine{Date: parseDate(l.Date), Amount: l.Amount, Source: l.Source})
	}
	return models.Booking{
		ID: id, RoomID: d.RoomID, Channel: models.Channel(d.Channel), Status: models.BookingStatus(d.Status),
		CheckIn: parseDate(d.CheckIn), CheckOut: parseDate(d.CheckOut), Guests: d.Guests,
		GuestUserID: d.GuestUserID, GuestName: d.GuestName, GuestEmail: d.GuestEmail,
		GuestPhone: d.GuestPhone, Notes: d.Notes,
		Currency: d.Currency, TotalAmount: d.TotalAmount, RefundedAmount: d.RefundedAmount,
		Lines:                 lines,
		StripeSessionID:       d.StripeSessionID,
		StripePaymentIntentID: d.StripePaymentIntentID,
		ExternalID:            d.ExternalID,
		HoldExpiresAt:         d.HoldExpiresAt,
		CancelReason:          d.CancelReason,
		CreatedAt:             d.CreatedAt,
		UpdatedAt:             d.UpdatedAt,
	}
}

type seasonDoc struct {
	Name          string   `firestore:"name"`
	RoomIDs       []string `firestore:"room_ids"`
	StartMonthDay string   `firestore:"start_month_day"`
	EndMonthDay   string   `firestore:"end_month_day"`
	NightlyPrice  int64    `firestore:"nightly_price"`
	MinNights     int      `firestore:"min_nights"`
	Priority      int      `firestore:"priority"`
}

type specialPeriodDoc struct {
	Name          string   `firestore:"name"`
	RoomIDs       []string `firestore:"room_ids"`
	StartDate     string   `firestore:"start_date"`
	EndDate       string   `firestore:"end_date"`
	NightlyPrice  int64    `firestore:"nightly_price"`
	PercentAdjust int      `firestore:"percent_adjust"`
	MinNights     int      `firestore:"min_nights"`
	Priority      int      `firestore:"priority"`
}

type overrideDoc struct {
	RoomID    string    `firestore:"room_id"`
	Date      string    `firestore:"date"`
	Price     *int64    `firestore:"price"`
	Closed    bool      `firestore:"closed"`
	MinNights int       `firestore:"min_nights"`
	UpdatedAt time.Time `firestore:"updated_at"`
}

type userDoc struct {
	Email     string    `firestore:"email"`
	Name      string    `firestore:"name"`
	Phone     string    `firestore:"phone"`
	Role      string    `firestore:"role"`
	CreatedAt time.Time `firestore:"created_at"`
	UpdatedAt time.Time `firestore:"updated_at"`
}

type reviewDoc struct {
	BookingID   string     `firestore:"booking_id"`
	RoomID      string     `firestore:"room_id"`
	GuestUserID string     `firestore:"guest_user_id"`
	AuthorName  string     `firestore:"author_name"`
	Rating      int        `firestore:"rating"`
	Title       string     `firestore:"title"`
	Body        string     `firestore:"body"`
	Source      string     `firestore:"source"`
	Status      string     `firestore:"status"`
	CreatedAt   time.Time  `firestore:"created_at"`
	PublishedAt *time.Time `firestore:"published_at"`
}

type contactDoc struct {
	Email     string    `firestore:"email"`
	Phone     string    `firestore:"phone"`
	Address   string    `firestore:"address"`
	UpdatedAt time.Time `firestore:"updated_at"`
	UpdatedBy string    `firestore:"updated_by"`
}

type otpDoc struct {
	Purpose   string    `firestore:"purpose"`
	NewValue  string    `firestore:"new_value"`
	CodeHash  string    `firestore:"code_hash"`
	Attempts  int       `firestore:"attempts"`
	SentAt    time.Time `firestore:"sent_at"`
	ExpiresAt time.Time `firestore:"expires_at"`
}

type syncRunDoc struct {
	Trigger    string    `firestore:"trigger"`
	StartedAt  time.Time `firestore:"started_at"`
	FinishedAt time.Time `firestore:"finished_at"`
	Fetched    int       `firestore:"fetched"`
	Created    int       `firestore:"created"`
	Updated    int       `firestore:"updated"`
	Cancelled  int       `firestore:"cancelled"`
	Conflicts  int       `firestore:"conflicts"`
	Error      string    `firestore:"error"`
}
