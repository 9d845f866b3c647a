// Package channelsync keeps the local booking list in step with Smoobu, the
// channel manager behind Airbnb, Booking.com and the other portals.
package channelsync

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"cloud.google.com/go/civil"

	"github.com/casaolivo/bnb-server/internal/booking"
	"github.com/casaolivo/bnb-server/internal/models"
	"github.com/casaolivo/bnb-server/internal/smoobu"
)

// Remote is a Smoobu reservation converted to a booking of a local room.
type Remote struct {
	Booking models.Booking
	// SiteBookingID is set when the reservation mirrors a site or admin booking.
	SiteBookingID string
}

// Window is the date range a fetch covered. Local bookings missing from a
// Complete window were removed on the channel.
type Window struct {
	From     civil.Date
	To       civil.Date
	Complete bool
	// Skipped holds the IDs of fetched reservations that could not be
	// converted. Their local copies are left as they are.
	Skipped map[string]bool
}

func (w Window) covers(b models.Booking) bool {
	return b.CheckOut.After(w.From) && b.CheckIn.Before(w.To)
}

// Plan is what a sync must write. Bookings carry their final state.
type Plan struct {
	Create []models.Booking
	Update []models.Booking
	Cancel []models.Booking
	// Link gives site bookings the ID of their Smoobu mirror.
	Link      []models.Booking
	Unchanged int
}

// Empty reports whether the plan writes nothing.
func (p Plan) Empty() bool {
	return len(p.Create)+len(p.Update)+len(p.Cancel)+len(p.Link) == 0
}

// siteOwned bookings are managed here and only mirrored to Smoobu.
func siteOwned(b models.Booking) bool {
	return b.Channel == models.ChannelSite
}

// SiteBookingID extracts the local booking ID from a mirror's notice.
func SiteBookingID(notice string) string {
	i := strings.Index(notice, booking.SiteBookingTag)
	if i < 0 {
		return ""
	}
	rest := notice[i+len(booking.SiteBookingTag):]
	if j := strings.IndexFunc(rest, func(r rune) bool { return r == ' ' || r == '\n' || r == ',' || r == ';' }); j >= 0 {
		rest = rest[:j]
	}
	return strings.TrimSpace(rest)
}

// ToRemote converts a Smoobu reservation for roomID.
func ToRemote(r smoobu.Reservation, roomID string, channels *smoobu.ChannelMapper, currency string) (Remote, error) {
	in, err := civil.ParseDate(r.Arrival)
	if err != nil {
		return Remote{}, fmt.Errorf("reservation %d: invalid arrival %q: %w", r.ID, r.Arrival, err)
	}
	out, err := civil.ParseDate(r.Departure)
	if err != nil {
		return Remote{}, fmt.Errorf("reservation %d: invalid departure %q: %w", r.ID, r.Departure, err)
	}
	if !out.After(in) {
		return Remote{}, fmt.Errorf("reservation %d: departure %s not after arrival %s", r.ID, out, in)
	}

	status := models.StatusConfirmed
	if r.Cancelled() {
		status = models.StatusCancelled
	}
	b := models.Booking{
		RoomID:      roomID,
		Channel:     channels.Map(r),
		Status:      status,
		CheckIn:     in,
		CheckOut:    out,
		Guests:      r.Adults + r.Children,
		GuestName:   strings.TrimSpace(r.GuestName),
		GuestEmail:  strings.ToLower(strings.TrimSpace(r.Email)),
		GuestPhone:  strings.TrimSpace(r.Phone),
		Notes:       strings.TrimSpace(r.Notice),
		Currency:    currency,
		TotalAmount: int64(math.Round(r.Price * 100)),
		ExternalID:  r.Key(),
	}
	if b.Channel == models.ChannelBlocked && b.GuestName == "" {
		b.GuestName = "Blocked"
	}
	return Remote{Booking: b, SiteBookingID: SiteBookingID(r.Notice)}, nil
}

// merge applies the channel's view of a reservation to the local booking.
// It reports whether anything changed.
func merge(local models.Booking, remote models.Booking) (models.Booking, bool) {
	next := local
	next.RoomID = remote.RoomID
	next.Channel = remote.Channel
	next.CheckIn = remote.CheckIn
	next.CheckOut = remote.CheckOut
	next.Guests = remote.Guests
	next.GuestName = remote.GuestName
	next.GuestEmail = remote.GuestEmail
	next.GuestPhone = remote.GuestPhone
	next.Notes = remote.Notes
	next.TotalAmount = remote.TotalAmount
	next.Status = remote.Status
	if next.Currency == "" {
		next.Currency = remote.Currency
	}

	changed := next.RoomID != local.RoomID ||
		next.Channel != local.Channel ||
		next.CheckIn != local.CheckIn ||
		next.CheckOut != local.CheckOut ||
		next.Guests != local.Guests ||
		next.GuestName != local.GuestName ||
		next.GuestEmail != local.GuestEmail ||
		next.GuestPhone != local.GuestPhone ||
		next.Notes != local.Notes ||
		next.TotalAmount != local.TotalAmount ||
		next.Status != local.Status
	return next, changed
}

// Reconcile compares local bookings with what Smoobu reports and plans the
// writes. Mirrors of site bookings are linked, never imported again.
func Reconcile(local []models.Booking, remote []Remote, window Window) Plan {
	byID := make(map[string]models.Booking, len(local))
	byExternal := make(map[string]models.Booking, len(local))
	for _, b := range local {
		byID[b.ID] = b
		if b.ExternalID != "" {
			byExternal[b.ExternalID] = b
		}
	}

	var plan Plan
	seen := make(map[string]bool, len(remote)+len(window.Skipped))
	for ext := range window.Skipped {
		seen[ext] = true
	}
	for _, r := range remote {
		ext := r.Booking.ExternalID
		seen[ext] = true

		if mirror, ok := byExternal[ext]; ok && siteOwned(mirror) {
			plan.Unchanged++
			continue
		}
		if r.SiteBookingID != "" {
			if own, ok := byID[r.SiteBookingID]; ok {
				seen[own.ExternalID] = true
				if own.ExternalID == ext {
					plan.Unchanged++
					continue
				}
				own.ExternalID = ext
				plan.Link = append(plan.Link, own)
				continue
			}
		}

		existing, ok := byExternal[ext]
		if !ok {
			if r.Booking.Status == models.StatusCancelled {
				continue
			}
			plan.Create = append(plan.Create, r.Booking)
			continue
		}

		next, changed := merge(existing, r.Booking)
		switch {
		case !changed:
			plan.Unchanged++
		case next.Status == models.StatusCancelled && existing.Status != models.StatusCancelled:
			next.CancelReason = "cancelled on " + string(next.Channel)
			plan.Cancel = append(plan.Cancel, next)
		default:
			if next.Status != models.StatusCancelled {
				next.CancelReason = ""
			}
			plan.Update = append(plan.Update, next)
		}
	}

	if window.Complete {
		for _, b := range local {
			if b.ExternalID == "" || seen[b.ExternalID] || siteOwned(b) {
				continue
			}
			if !b.IsActive() || !window.covers(b) {
				continue
			}
			b.Status = models.StatusCancelled
			b.CancelReason = "removed from channel manager"
			plan.Cancel = append(plan.Cancel, b)
		}
	}

	sortBookings(plan.Create)
	sortBookings(plan.Update)
	sortBookings(plan.Cancel)
	sortBookings(plan.Link)
	return plan
}

func sortBookings(list []models.Booking) {
	sort.Slice(list, func(i, j int) bool {
		if list[i].CheckIn != list[j].CheckIn {
			return list[i].CheckIn.Before(list[j].CheckIn)
		}
		return list[i].ExternalID < list[j].ExternalID
	})
}
