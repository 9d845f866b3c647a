package availability

import (
	"time"

	"cloud.google.com/go/civil"

	"github.com/casaolivo/bnb-server/internal/models"
)

// Day is one date of a room calendar as the date picker needs it.
type Day struct {
	Date civil.Date `json:"date"`
	// Available is true when the night starting on Date is free.
	Available bool `json:"available"`
	// CanCheckIn: the night is free, so a stay can start here.
	CanCheckIn bool `json:"canCheckIn"`
	// CanCheckOut: the previous night is free, so a stay can end here.
	CanCheckOut bool           `json:"canCheckOut"`
	Channel     models.Channel `json:"channel,omitempty"`
}

// Calendar builds the days in [from, to). closed holds nights not for sale
// (price overrides marked closed); they count as taken without a channel.
func Calendar(from, to civil.Date, bookings []models.Booking, closed map[civil.Date]bool, now time.Time) []Day {
	if !to.After(from) {
		return nil
	}

	// The day before from decides CanCheckOut on from.
	taken := make(map[civil.Date]models.Channel)
	window := Stay{CheckIn: from.AddDays(-1), CheckOut: to}
	for _, b := range bookings {
		if !b.Blocks(now) {
			continue
		}
		stay := StayOf(b)
		if !Overlaps(window, stay) {
			continue
		}
		for _, d := range stay.Dates() {
			if window.Covers(d) {
				taken[d] = b.Channel
			}
		}
	}

	days := make([]Day, 0, to.DaysSince(from))
	for d := from; d.Before(to); d = d.AddDays(1) {
		channel, booked := taken[d]
		_, prevBooked := taken[d.AddDays(-1)]
		free := !booked && !closed[d]
		prevFree := !prevBooked && !closed[d.AddDays(-1)]
		days = append(days, Day{
			Date:        d,
			Available:   free,
			CanCheckIn:  free,
			CanCheckOut: prevFree,
			Channel:     channel,
		})
	}
	return days
}
