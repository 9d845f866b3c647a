package firestoredb

import (
	"context"
	"sort"
	"time"

	"cloud.google.com/go/firestore"
	"github.com/google/uuid"

	"github.com/casaolivo/bnb-server/internal/models"
	"github.com/casaolivo/bnb-server/internal/storage"
)

func (s *Store) ListRooms(ctx context.Context, activeOnly bool) ([]models.Room, error) {
	q := s.client.Collection(colRooms).Query
	if activeOnly {
		q = q.Where("active", "==", true)
	}
	var out []models.Room
	err := each(ctx, q, func(id string, d *roomDoc) error {
		out = append(out, d.model(id))
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].SortOrder != out[j].SortOrder {
			return out[i].SortOrder < out[j].SortOrder
		}
		return out[i].Name < out[j].Name
	})
	return out, nil
}

func (s *Store) GetRoom(ctx context.Context, id string) (*models.Room, error) {
	var d roomDoc
	if err := s.get(ctx, colRooms, id, &d); err != nil {
		return nil, err
	}
	r := d.model(id)
	return &r, nil
}

func (s *Store) GetRoomBySlug(ctx context.Context, slug string) (*models.Room, error) {
	var found *models.Room
	q := s.client.Collection(colRooms).Where("slug", "==", slug).Limit(1)
	err := each(ctx, q, func(id string, d *roomDoc) error {
		r := d.model(id)
		found = &r
		return nil
	})
	if err != nil {
		return nil, err
	}
	if found == nil {
		return nil, storage.ErrNotFound
	}
	return found, nil
}

func (s *Store) SaveRoom(ctx context.Context, room *models.Room) error {
	if existing, err := s.GetRoomBySlug(ctx, room.Slug); err == nil && existing.ID != room.ID {
		return storage.ErrAlreadyExists
	}
	if room.ID == "" {
		room.ID = uuid.NewString()
	}
	now := time.Now()
	if room.CreatedAt.IsZero() {
		room.CreatedAt = now
	}
	room.UpdatedAt = now
	return s.set(ctx, colRooms, room.ID, toRoomDoc(room))
}

func (s *Store) GetBooking(ctx context.Context, id string) (*models.Booking, error) {
	var d bookingDoc
	if err := s.get(ctx, colBookings, id, &d); err != nil {
		return nil, err
	}
	b := d.model(id)
	return &b, nil
}

func (s *Store) findBooking(ctx context.Context, field, value string) (*models.Booking, error) {
	if value == "" {
		return nil, storage.ErrNotFound
	}
	var found *models.Booking
	q := s.client.Collection(colBookings).Where(field, "==", value).Limit(1)
	err := each(ctx, q, func(id string, d *bookingDoc) error {
		b := d.model(id)
		found = &b
		return nil
	})
	if err != nil {
		return nil, err
	}
	if found == nil {
		return nil, storage.ErrNotFound
	}
	return found, nil
}

func (s *Store) FindBookingByExternalID(ctx context.Context, externalID string) (*models.Booking, error) {
	return s.findBooking(ctx, "external_id", externalID)
}

func (s *Store) FindBookingByStripeSession(ctx context.Context, sessionID string) (*models.Booking, error) {
	return s.findBooking(ctx, "stripe_session_id", sessionID)
}

func (s *Store) FindBookingByPaymentIntent(ctx context.Context, paymentIntentID string) (*models.Booking, error) {
	return s.findBooking(ctx, "stripe_payment_intent_id", paymentIntentID)
}

// ListBookings pushes the equality filters to Firestore and applies the rest
// in memory.
func (s *Store) ListBookings(ctx context.Context, filter storage.BookingFilter) ([]models.Booking, error) {
	q := s.client.Collection(colBookings).Query
	switch {
	case filter.RoomID != "":
		q = q.Where("room_id", "==", filter.RoomID)
	case filter.GuestUserID != "":
		q = q.Where("guest_user_id", "==", filter.GuestUserID)
	case filter.GuestEmail != "":
		q = q.Where("guest_email", "==", filter.GuestEmail)
	}
	if !filter.To.IsZero() {
		q = q.Where("check_in", "<", dateString(filter.To))
	}

	var out []models.Booking
	err := each(ctx, q, func(id string, d *bookingDoc) error {
		b := d.model(id)
		if filter.Match(b) {
			out = append(out, b)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CheckIn != out[j].CheckIn {
			return out[i].CheckIn.Before(out[j].CheckIn)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

// ReserveStay reads every booking of the room starting before the new
// check-out inside a transaction, so a concurrent reservation of the same
// nights makes one of the two commits retry and then fail the check.
func (s *Store) ReserveStay(ctx context.Context, booking *models.Booking, now time.Time) error {
	if booking.ID == "" {
		booking.ID = uuid.NewString()
	}
	if booking.CreatedAt.IsZero() {
		booking.CreatedAt = now
	}
	booking.UpdatedAt = now

	col := s.client.Collection(colBookings)
	q := col.Where("room_id", "==", booking.RoomID).Where("check_in", "<", dateString(booking.CheckOut))

	return s.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		snaps, err := tx.Documents(q).GetAll()
		if err != nil {
			return mapErr(err, "query room bookings")
		}
		existing := make([]models.Booking, 0, len(snaps))
		for _, snap := range snaps {
			var d bookingDoc
			if err := snap.DataTo(&d); err != nil {
				return err
			}
			existing = append(existing, d.model(snap.Ref.ID))
		}
		if err := storage.CheckReservation(booking, existing, now); err != nil {
			return err
		}
		return mapErr(tx.Create(col.Doc(booking.ID), toBookingDoc(booking)), "create booking")
	})
}

func (s *Store) SaveBooking(ctx context.Context, booking *models.Booking) error {
	if booking.ID == "" {
		booking.ID = uuid.NewString()
	}
	now := time.Now()
	if booking.CreatedAt.IsZero() {
		booking.CreatedAt = now
	}
	booking.UpdatedAt = now
	return s.set(ctx, colBookings, booking.ID, toBookingDoc(booking))
}
