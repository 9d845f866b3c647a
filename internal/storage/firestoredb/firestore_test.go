package firestoredb

import (
	"errors"
	"testing"

	"cloud.google.com/go/civil"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/casaolivo/bnb-server/internal/models"
	"github.com/casaolivo/bnb-server/internal/storage"
)

func TestMapErr(t *testing.T) {
	tests := []struct {
		name string
		in   error
		want error
	}{
		{"nil", nil, nil},
		{"not found", status.Error(codes.NotFound, "gone"), storage.ErrNotFound},
		{"already exists", status.Error(codes.AlreadyExists, "dup"), storage.ErrAlreadyExists},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := mapErr(tt.in, "op"); got != tt.want {
				t.Errorf("mapErr() = %v, want %v", got, tt.want)
			}
		})
	}

	unavailable := status.Error(codes.Unavailable, "down")
	if got := mapErr(unavailable, "op"); !errors.Is(got, unavailable) {
		t.Errorf("mapErr() should wrap other errors, got %v", got)
	}
}

func TestBookingDocKeepsSortableDates(t *testing.T) {
	b := &models.Booking{
		RoomID:   "olive",
		CheckIn:  civil.Date{Year: 2026, Month: 7, Day: 1},
		CheckOut: civil.Date{Year: 2026, Month: 7, Day: 4},
		Lines:    []models.QuoteLine{{Date: civil.Date{Year: 2026, Month: 7, Day: 1}, Amount: 12000, Source: "base"}},
	}
	d := toBookingDoc(b)
	if d.CheckIn != "2026-07-01" || d.CheckOut != "2026-07-04" {
		t.Errorf("dates stored as %q/%q", d.CheckIn, d.CheckOut)
	}
	back := d.model("id-1")
	if back.ID != "id-1" || back.CheckOut != b.CheckOut || len(back.Lines) != 1 || back.Lines[0].Date != b.Lines[0].Date {
		t.Errorf("model() = %+v", back)
	}
	if !parseDate("not-a-date").IsZero() {
		t.Error("parseDate should return the zero date for bad input")
	}
}
