package channelsync

import (
	"testing"

	"cloud.google.com/go/civil"

	"github.com/casaolivo/bnb-server/internal/models"
	"github.com/casaolivo/bnb-server/internal/smoobu"
)

func date(s string) civil.Date {
	d, err := civil.ParseDate(s)
	if err != nil {
		panic(err)
	}
	return d
}

func remoteBooking(ext, in, out string, ch models.Channel) Remote {
	return Remote{Booking: models.Booking{
		RoomID: "olive", Channel: ch, Status: models.StatusConfirmed,
		CheckIn: date(in), CheckOut: date(out), Guests: 2, GuestName: "Guest " + ext, ExternalID: ext,
	}}
}

func TestReconcile(t *testing.T) {
	window := Window{From: date("2026-05-01"), To: date("2026-12-31"), Complete: true}

	airbnb := models.Booking{
		ID: "b-air", RoomID: "olive", Channel: models.ChannelAirbnb, Status: models.StatusConfirmed,
		CheckIn: date("2026-06-01"), CheckOut: date("2026-06-04"), Guests: 2, GuestName: "Guest 100", ExternalID: "100",
	}
	site := models.Booking{
		ID: "b-site", RoomID: "olive", Channel: models.ChannelSite, Status: models.StatusConfirmed,
		CheckIn: date("2026-07-01"), CheckOut: date("2026-07-03"),
	}
	mirrored := site
	mirrored.ExternalID = "300"

	tests := []struct {
		name   string
		local  []models.Booking
		remote []Remote
		window Window
		check  func(t *testing.T, p Plan)
	}{
		{
			name:   "new reservation is imported",
			remote: []Remote{remoteBooking("200", "2026-08-01", "2026-08-05", models.ChannelBookingCom)},
			window: window,
			check: func(t *testing.T, p Plan) {
				if len(p.Create) != 1 || p.Create[0].ExternalID != "200" || p.Create[0].Channel != models.ChannelBookingCom {
					t.Errorf("Create = %+v", p.Create)
				}
			},
		},
		{
			name:   "unconvertible reservation keeps its local copy",
			local:  []models.Booking{airbnb},
			window: Window{From: window.From, To: window.To, Complete: true, Skipped: map[string]bool{"100": true}},
			check: func(t *testing.T, p Plan) {
				if len(p.Cancel) != 0 {
					t.Errorf("Cancel = %+v, want none", p.Cancel)
				}
			},
		},
		{
			name: "cancelled unknown reservation is skipped",
			remote: []Remote{func() Remote {
				r := remoteBooking("201", "2026-08-01", "2026-08-05", models.ChannelAirbnb)
				r.Booking.Status = models.StatusCancelled
				return r
			}()},
			window: window,
			check: func(t *testing.T, p Plan) {
				if !p.Empty() {
					t.Errorf("plan = %+v, want empty", p)
				}
			},
		},
		{
			name:   "unchanged reservation",
			local:  []models.Booking{airbnb},
			remote: []Remote{remoteBooking("100", "2026-06-01", "2026-06-04", models.ChannelAirbnb)},
			window: window,
			check: func(t *testing.T, p Plan) {
				if !p.Empty() || p.Unchanged != 1 {
					t.Errorf("plan = %+v", p)
				}
			},
		},
		{
			name:   "moved dates update the booking in place",
			local:  []models.Booking{airbnb},
			remote: []Remote{remoteBooking("100", "2026-06-02", "2026-06-06", models.ChannelAirbnb)},
			window: window,
			check: func(t *testing.T, p Plan) {
				if len(p.Update) != 1 {
					t.Fatalf("Update = %+v", p.Update)
				}
				u := p.Update[0]
				if u.ID != "b-air" || u.CheckIn != date("2026-06-02") || u.CheckOut != date("2026-06-06") {
					t.Errorf("updated = %+v", u)
				}
			},
		},
		{
			name:  "cancellation on the channel",
			local: []models.Booking{airbnb},
			remote: []Remote{func() Remote {
				r := remoteBooking("100", "2026-06-01", "2026-06-04", models.ChannelAirbnb)
				r.Booking.Status = models.StatusCancelled
				return r
			}()},
			window: window,
			check: func(t *testing.T, p Plan) {
				if len(p.Cancel) != 1 || p.Cancel[0].ID != "b-air" || p.Cancel[0].Status != models.StatusCancelled {
					t.Errorf("Cancel = %+v", p.Cancel)
				}
			},
		},
		{
			name:   "missing from a complete window is cancelled",
			local:  []models.Booking{airbnb},
			window: window,
			check: func(t *testing.T, p Plan) {
				if len(p.Cancel) != 1 || p.Cancel[0].CancelReason != "removed from channel manager" {
					t.Errorf("Cancel = %+v", p.Cancel)
				}
			},
		},
		{
			name:   "missing from a partial window is kept",
			local:  []models.Booking{airbnb},
			window: Window{From: window.From, To: window.To},
			check: func(t *testing.T, p Plan) {
				if !p.Empty() {
					t.Errorf("plan = %+v, want empty", p)
				}
			},
		},
		{
			name:   "missing outside the window is kept",
			local:  []models.Booking{airbnb},
			window: Window{From: date("2026-09-01"), To: date("2026-12-31"), Complete: true},
			check: func(t *testing.T, p Plan) {
				if !p.Empty() {
					t.Errorf("plan = %+v, want empty", p)
				}
			},
		},
		{
			name:  "site mirror is linked by notice tag",
			local: []models.Booking{site},
			remote: []Remote{func() Remote {
				r := remoteBooking("300", "2026-07-01", "2026-07-03", models.ChannelDirect)
				r.SiteBookingID = "b-site"
				return r
			}()},
			window: window,
			check: func(t *testing.T, p Plan) {
				if len(p.Create) != 0 {
					t.Errorf("mirror imported as new booking: %+v", p.Create)
				}
				if len(p.Link) != 1 || p.Link[0].ID != "b-site" || p.Link[0].ExternalID != "300" {
					t.Errorf("Link = %+v", p.Link)
				}
			},
		},
		{
			name:   "site mirror is linked by external id",
			local:  []models.Booking{mirrored},
			remote: []Remote{remoteBooking("300", "2026-07-02", "2026-07-09", models.ChannelDirect)},
			window: window,
			check: func(t *testing.T, p Plan) {
				if !p.Empty() || p.Unchanged != 1 {
					t.Errorf("site booking was changed by its mirror: %+v", p)
				}
			},
		},
		{
			name:   "site booking without mirror is never cancelled",
			local:  []models.Booking{mirrored},
			window: window,
			check: func(t *testing.T, p Plan) {
				if !p.Empty() {
					t.Errorf("plan = %+v, want empty", p)
				}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.check(t, Reconcile(tt.local, tt.remote, tt.window))
		})
	}
}

func TestSiteBookingID(t *testing.T) {
	tests := map[string]string{
		"":                                  "",
		"late arrival":                      "",
		"site-booking:abc-123":              "abc-123",
		"note\nsite-booking:abc-123\nmore":  "abc-123",
		"site-booking:abc-123, paid online": "abc-123",
	}
	for notice, want := range tests {
		if got := SiteBookingID(notice); got != want {
			t.Errorf("SiteBookingID(%q) = %q, want %q", notice, got, want)
		}
	}
}

func TestToRemote(t *testing.T) {
	channels := smoobu.NewChannelMapper(map[string]int{"booking_com": 1234})
	r := smoobu.Reservation{
		ID: 77, Type: smoobu.TypeReservation, Arrival: "2026-06-01", Departure: "2026-06-03",
		Channel: smoobu.Ref{ID: 1234, Name: "Booking.com"}, GuestName: " Mario Rossi ",
		Email: "Mario@Example.com", Adults: 2, Children: 1, Price: 250.5,
	}
	got, err := ToRemote(r, "olive", channels, "eur")
	if err != nil {
		t.Fatal(err)
	}
	b := got.Booking
	if b.ExternalID != "77" || b.Channel != models.ChannelBookingCom || b.Guests != 3 {
		t.Errorf("booking = %+v", b)
	}
	if b.TotalAmount != 25050 || b.GuestName != "Mario Rossi" || b.GuestEmail != "mario@example.com" {
		t.Errorf("amount %d name %q email %q", b.TotalAmount, b.GuestName, b.GuestEmail)
	}

	r.Type = smoobu.TypeCancellation
	if got, _ := ToRemote(r, "olive", channels, "eur"); got.Booking.Status != models.StatusCancelled {
		t.Errorf("status = %s, want cancelled", got.Booking.Status)
	}

	r.Departure = r.Arrival
	if _, err := ToRemote(r, "olive", channels, "eur"); err == nil {
		t.Error("expected error for zero-night reservation")
	}
}
