// Package availability answers which nights of a room are taken. All ranges
// are half-open over nights: a stay [CheckIn, CheckOut) occupies the nights of
// CheckIn through CheckOut-1, so a departure and an arrival may share a date.
package availability

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"cloud.google.com/go/civil"

	"github.com/casaolivo/bnb-server/internal/models"
)

var (
	ErrInvalidStay     = errors.New("check-out must be after check-in")
	ErrStayUnavailable = errors.New("requested dates are not available")
)

// Stay is a requested or booked date range.
type Stay struct {
	CheckIn  civil.Date `json:"checkIn"`
	CheckOut civil.Date `json:"checkOut"`
}

// ParseStay parses two YYYY-MM-DD strings.
func ParseStay(checkIn, checkOut string) (Stay, error) {
	in, err := civil.ParseDate(checkIn)
	if err != nil {
		return Stay{}, fmt.Errorf("invalid check-in %q: %w", checkIn, err)
	}
	out, err := civil.ParseDate(checkOut)
	if err != nil {
		return Stay{}, fmt.Errorf("invalid check-out %q: %w", checkOut, err)
	}
	s := Stay{CheckIn: in, CheckOut: out}
	return s, s.Validate()
}

// StayOf returns the range a booking occupies.
func StayOf(b models.Booking) Stay {
	return Stay{CheckIn: b.CheckIn, CheckOut: b.CheckOut}
}

func (s Stay) Validate() error {
	if !s.CheckIn.IsValid() || !s.CheckOut.IsValid() || !s.CheckOut.After(s.CheckIn) {
		return ErrInvalidStay
	}
	return nil
}

// Nights is the number of nights in the stay.
func (s Stay) Nights() int {
	return s.CheckOut.DaysSince(s.CheckIn)
}

// Dates lists every night of the stay, starting with check-in.
func (s Stay) Dates() []civil.Date {
	n := s.Nights()
	if n <= 0 {
		return nil
	}
	out := make([]civil.Date, 0, n)
	for d := s.CheckIn; d.Before(s.CheckOut); d = d.AddDays(1) {
		out = append(out, d)
	}
	return out
}

// Covers reports whether night d is part of the stay.
func (s Stay) Covers(d civil.Date) bool {
	return !d.Before(s.CheckIn) && d.Before(s.CheckOut)
}

func (s Stay) String() string {
	return s.CheckIn.String() + ".." + s.CheckOut.String()
}

// Overlaps reports whether two stays share at least one night.
func Overlaps(a, b Stay) bool {
	return a.CheckIn.Before(b.CheckOut) && b.CheckIn.Before(a.CheckOut)
}

// ConflictError lists the bookings that block a requested stay.
type ConflictError struct {
	Stay     Stay
	Blocking []models.Booking
}

func (e *ConflictError) Error() string {
	ids := make([]string, 0, len(e.Blocking))
	for _, b := range e.Blocking {
		ids = append(ids, b.ID)
	}
	return fmt.Sprintf("stay %s overlaps bookings %s", e.Stay, strings.Join(ids, ","))
}

func (e *ConflictError) Unwrap() error {
	return ErrStayUnavailable
}

// Check returns a *ConflictError when any blocking booking in bookings
// overlaps stay. Bookings for other rooms must already be filtered out.
// ignoreID skips one booking, so a booking can be re-checked against the others.
func Check(stay Stay, bookings []models.Booking, now time.Time, ignoreID string) error {
	if err := stay.Validate(); err != nil {
		return err
	}
	var blocking []models.Booking
	for _, b := range bookings {
		if b.ID == ignoreID || !b.Blocks(now) {
			continue
		}
		if Overlaps(stay, StayOf(b)) {
			blocking = append(blocking, b)
		}
	}
	if len(blocking) == 0 {
		return nil
	}
	sort.Slice(blocking, func(i, j int) bool {
		return blocking[i].CheckIn.Before(blocking[j].CheckIn)
	})
	return &ConflictError{Stay: stay, Blocking: blocking}
}
