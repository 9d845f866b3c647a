package pricing

import (
	"errors"
	"fmt"

	"cloud.google.com/go/civil"

	"github.com/casaolivo/bnb-server/internal/availability"
	"github.com/casaolivo/bnb-server/internal/models"
)

var (
	ErrInvalidGuests = errors.New("guest count outside room capacity")
	ErrClosed        = errors.New("stay includes dates closed for sale")
	ErrMinStay       = errors.New("stay is shorter than the minimum")
	ErrNoPrice       = errors.New("room has no price for a night")
)

// Night is the priced result for one date.
type Night struct {
	Date      civil.Date `json:"date"`
	Amount    int64      `json:"amount"`
	Source    Source     `json:"source"`
	RuleID    string     `json:"ruleId,omitempty"`
	Closed    bool       `json:"closed"`
	MinNights int        `json:"minNights"`
}

// Nightly prices one room on one date. rules must be normalized.
func Nightly(room models.Room, date civil.Date, rules Rules) Night {
	night := Night{
		Date:      date,
		Amount:    room.BasePrice,
		Source:    SourceBase,
		MinNights: room.MinNights,
	}

	if s := rules.season(room.ID, date); s != nil {
		night.Amount = s.NightlyPrice
		night.Source = SourceSeason
		night.RuleID = s.ID
		night.MinNights = maxInt(night.MinNights, s.MinNights)
	}

	if p := rules.special(room.ID, date); p != nil {
		if p.NightlyPrice > 0 {
			night.Amount = p.NightlyPrice
		} else {
			night.Amount = applyPercent(night.Amount, p.PercentAdjust)
		}
		night.Source = SourceSpecial
		night.RuleID = p.ID
		night.MinNights = maxInt(night.MinNights, p.MinNights)
	}

	if o := rules.override(room.ID, date); o != nil {
		if o.Price != nil {
			night.Amount = *o.Price
			night.Source = SourceOverride
			night.RuleID = o.ID
		}
		night.Closed = o.Closed
		if o.MinNights > 0 {
			// An override replaces the season minimum but never goes below the room's.
			night.MinNights = maxInt(room.MinNights, o.MinNights)
		}
	}

	return night
}

// Range prices every night in [from, to).
func Range(room models.Room, from, to civil.Date, rules Rules) []Night {
	rules = rules.Normalize()
	var out []Night
	for d := from; d.Before(to); d = d.AddDays(1) {
		out = append(out, Nightly(room, d, rules))
	}
	return out
}

// Quote is the full price of a stay.
type Quote struct {
	RoomID         string            `json:"roomId"`
	Stay           availability.Stay `json:"stay"`
	Guests         int               `json:"guests"`
	Nights         []Night           `json:"nights"`
	NightsSubtotal int64             `json:"nightsSubtotal"`
	ExtraGuestFees int64             `json:"extraGuestFees"`
	WeeklyDiscount int64             `json:"weeklyDiscount"`
	CleaningFee    int64             `json:"cleaningFee"`
	Total          int64             `json:"total"`
	MinNights      int               `json:"minNights"`
}

// Lines converts the nights to booking quote lines.
func (q Quote) Lines() []models.QuoteLine {
	lines := make([]models.QuoteLine, 0, len(q.Nights))
	for _, n := range q.Nights {
		lines = append(lines, models.QuoteLine{Date: n.Date, Amount: n.Amount, Source: string(n.Source)})
	}
	return lines
}

// MinStayError carries the minimum that was violated.
type MinStayError struct {
	Required int
	Got      int
}

func (e *MinStayError) Error() string {
	return fmt.Sprintf("minimum stay is %d nights, got %d", e.Required, e.Got)
}

func (e *MinStayError) Unwrap() error { return ErrMinStay }

// ClosedError names the first closed night.
type ClosedError struct {
	Date civil.Date
}

func (e *ClosedError) Error() string {
	return "date " + e.Date.String() + " is closed for sale"
}

func (e *ClosedError) Unwrap() error { return ErrClosed }

// CalculateQuote prices a stay. The minimum stay is set by the check-in night;
// any closed night in the stay makes it unsellable.
func CalculateQuote(room models.Room, stay availability.Stay, guests int, rules Rules) (*Quote, error) {
	if err := stay.Validate(); err != nil {
		return nil, err
	}
	if guests < 1 || (room.Capacity > 0 && guests > room.Capacity) {
		return nil, ErrInvalidGuests
	}

	nights := Range(room, stay.CheckIn, stay.CheckOut, rules)
	for _, n := range nights {
		if n.Closed {
			return nil, &ClosedError{Date: n.Date}
		}
	}
	first := nights[0]
	if len(nights) < first.MinNights {
		return nil, &MinStayError{Required: first.MinNights, Got: len(nights)}
	}

	q := &Quote{
		RoomID:      room.ID,
		Stay:        stay,
		Guests:      guests,
		Nights:      nights,
		CleaningFee: room.CleaningFee,
		MinNights:   first.MinNights,
	}
	for _, n := range nights {
		if n.Amount <= 0 {
			return nil, fmt.Errorf("%w: %s", ErrNoPrice, n.Date)
		}
		q.NightsSubtotal += n.Amount
	}

	if extra := guests - room.IncludedGuests(); extra > 0 {
		q.ExtraGuestFees = int64(extra) * room.ExtraGuestFee * int64(len(nights))
	}
	if len(nights) >= 7 && room.WeeklyDiscountPercent > 0 {
		q.WeeklyDiscount = q.NightsSubtotal * int64(room.WeeklyDiscountPercent) / 100
	}

	q.Total = q.NightsSubtotal + q.ExtraGuestFees - q.WeeklyDiscount + q.CleaningFee
	return q, nil
}

// FromPrice is the lowest nightly price in the given nights, for "from €X" labels.
func FromPrice(nights []Night) int64 {
	var min int64
	for _, n := range nights {
		if n.Closed || n.Amount <= 0 {
			continue
		}
		if min == 0 || n.Amount < min {
			min = n.Amount
		}
	}
	return min
}

// applyPercent adjusts amount by pct percent, rounding half away from zero.
func applyPercent(amount int64, pct int) int64 {
	v := amount * int64(100+pct)
	if v >= 0 {
		return (v + 50) / 100
	}
	return (v - 50) / 100
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
