// Package memory is an in-process storage.Store for local development
// (STORE_BACKEND=memory) and tests. Nothing survives a restart.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"cloud.google.com/go/civil"
	"github.com/google/uuid"

	"github.com/casaolivo/bnb-server/internal/models"
	"github.com/casaolivo/bnb-server/internal/storage"
)

type Store struct {
	mu        sync.RWMutex
	rooms     map[string]models.Room
	bookings  map[string]models.Booking
	seasons   map[string]models.Season
	specials  map[string]models.SpecialPeriod
	overrides map[string]models.PriceOverride
	users     map[string]models.User
	reviews   map[string]models.Review
	contact   *models.ContactSettings
	otps      map[string]models.PendingOTP
	syncRuns  []models.SyncRun
}

var _ storage.Store = (*Store)(nil)

func New() *Store {
	return &Store{
		rooms:     make(map[string]models.Room),
		bookings:  make(map[string]models.Booking),
		seasons:   make(map[string]models.Season),
		specials:  make(map[string]models.SpecialPeriod),
		overrides: make(map[string]models.PriceOverride),
		users:     make(map[string]models.User),
		reviews:   make(map[string]models.Review),
		otps:      make(map[string]models.PendingOTP),
	}
}

func (s *Store) Close() error { return nil }

func newID(id string) string {
	if id != "" {
		return id
	}
	return uuid.NewString()
}

// Rooms

func (s *Store) ListRooms(ctx context.Context, activeOnly bool) ([]models.Room, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.Room, 0, len(s.rooms))
	for _, r := range s.rooms {
		if activeOnly && !r.Active {
			continue
		}
		out = append(out, r)
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
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.rooms[id]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return &r, nil
}

func (s *Store) GetRoomBySlug(ctx context.Context, slug string) (*models.Room, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, r := range s.rooms {
		if r.Slug == slug {
			return &r, nil
		}
	}
	return nil, storage.ErrNotFound
}

func (s *Store) SaveRoom(ctx context.Context, room *models.Room) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range s.rooms {
		if r.Slug == room.Slug && r.ID != room.ID {
			return storage.ErrAlreadyExists
		}
	}
	room.ID = newID(room.ID)
	now := time.Now()
	if room.CreatedAt.IsZero() {
		room.CreatedAt = now
	}
	room.UpdatedAt = now
	s.rooms[room.ID] = *room
	return nil
}

// Bookings

func (s *Store) GetBooking(ctx context.Context, id string) (*models.Booking, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	b, ok := s.bookings[id]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return &b, nil
}

func (s *Store) findBooking(match func(models.Booking) bool) (*models.Booking, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, b := range s.bookings {
		if match(b) {
			return &b, nil
		}
	}
	return nil, storage.ErrNotFound
}

func (s *Store) FindBookingByExternalID(ctx context.Context, externalID string) (*models.Booking, error) {
	if externalID == "" {
		return nil, storage.ErrNotFound
	}
	return s.findBooking(func(b models.Booking) bool { return b.ExternalID == externalID })
}

func (s *Store) FindBookingByStripeSession(ctx context.Context, sessionID string) (*models.Booking, error) {
	if sessionID == "" {
		return nil, storage.ErrNotFound
	}
	return s.findBooking(func(b models.Booking) bool { return b.StripeSessionID == sessionID })
}

func (s *Store) FindBookingByPaymentIntent(ctx context.Context, paymentIntentID string) (*models.Booking, error) {
	if paymentIntentID == "" {
		return nil, storage.ErrNotFound
	}
	return s.findBooking(func(b models.Booking) bool { return b.StripePaymentIntentID == paymentIntentID })
}

func (s *Store) ListBookings(ctx context.Context, filter storage.BookingFilter) ([]models.Booking, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []models.Booking
	for _, b := range s.bookings {
		if filter.Match(b) {
			out = append(out, b)
		}
	}
	sortBookings(out)
	return out, nil
}

func sortBookings(list []models.Booking) {
	sort.Slice(list, func(i, j int) bool {
		if list[i].CheckIn != list[j].CheckIn {
			return list[i].CheckIn.Before(list[j].CheckIn)
		}
		return list[i].ID < list[j].ID
	})
}

func (s *Store) ReserveStay(ctx context.Context, booking *models.Booking, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var sameRoom []models.Booking
	for _, b := range s.bookings {
		if b.RoomID == booking.RoomID {
			sameRoom = append(sameRoom, b)
		}
	}
	if err := storage.CheckReservation(booking, sameRoom, now); err != nil {
		return err
	}

	booking.ID = newID(booking.ID)
	if _, exists := s.bookings[booking.ID]; exists {
		return storage.ErrAlreadyExists
	}
	stamp(booking)
	s.bookings[booking.ID] = *booking
	return nil
}

func (s *Store) SaveBooking(ctx context.Context, booking *models.Booking) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	booking.ID = newID(booking.ID)
	stamp(booking)
	s.bookings[booking.ID] = *booking
	return nil
}

func stamp(b *models.Booking) {
	now := time.Now()
	if b.CreatedAt.IsZero() {
		b.CreatedAt = now
	}
	b.UpdatedAt = now
}

// Pricing

func (s *Store) ListSeasons(ctx context.Context) ([]models.Season, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.Season, 0, len(s.seasons))
	for _, v := range s.seasons {
		out = append(out, v)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *Store) SaveSeason(ctx context.Context, season *models.Season) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	season.ID = newID(season.ID)
	s.seasons[season.ID] = *season
	return nil
}

func (s *Store) DeleteSeason(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.seasons[id]; !ok {
		return storage.ErrNotFound
	}
	delete(s.seasons, id)
	return nil
}

func (s *Store) ListSpecialPeriods(ctx context.Context) ([]models.SpecialPeriod, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.SpecialPeriod, 0, len(s.specials))
	for _, v := range s.specials {
		out = append(out, v)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *Store) SaveSpecialPeriod(ctx context.Context, period *models.SpecialPeriod) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	period.ID = newID(period.ID)
	s.specials[period.ID] = *period
	return nil
}

func (s *Store) DeleteSpecialPeriod(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.specials[id]; !ok {
		return storage.ErrNotFound
	}
	delete(s.specials, id)
	return nil
}

func (s *Store) ListOverrides(ctx context.Context, roomID string, from, to civil.Date) ([]models.PriceOverride, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []models.PriceOverride
	for _, o := range s.overrides {
		if roomID != "" && o.RoomID != roomID {
			continue
		}
		if o.Date.Before(from) || !o.Date.Before(to) {
			continue
		}
		out = append(out, o)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Date != out[j].Date {
			return out[i].Date.Before(out[j].Date)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (s *Store) SaveOverride(ctx context.Context, override *models.PriceOverride) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	override.ID = newID(override.ID)
	override.UpdatedAt = time.Now()
	s.overrides[override.ID] = *override
	return nil
}

func (s *Store) DeleteOverride(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.overrides[id]; !ok {
		return storage.ErrNotFound
	}
	delete(s.overrides, id)
	return nil
}

// Users

func (s *Store) GetUser(ctx context.Context, id string) (*models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.users[id]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return &u, nil
}

func (s *Store) SaveUser(ctx context.Context, user *models.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now()
	if user.CreatedAt.IsZero() {
		user.CreatedAt = now
	}
	user.UpdatedAt = now
	s.users[user.ID] = *user
	return nil
}

// Reviews

func (s *Store) ListReviews(ctx context.Context, filter storage.ReviewFilter) ([]models.Review, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []models.Review
	for _, r := range s.reviews {
		if filter.Match(r) {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (s *Store) GetReview(ctx context.Context, id string) (*models.Review, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.reviews[id]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return &r, nil
}

func (s *Store) FindReviewByBooking(ctx context.Context, bookingID string) (*models.Review, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, r := range s.reviews {
		if bookingID != "" && r.BookingID == bookingID {
			return &r, nil
		}
	}
	return nil, storage.ErrNotFound
}

func (s *Store) SaveReview(ctx context.Context, review *models.Review) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	review.ID = newID(review.ID)
	if review.CreatedAt.IsZero() {
		review.CreatedAt = time.Now()
	}
	s.reviews[review.ID] = *review
	return nil
}

// Settings

func (s *Store) GetContactSettings(ctx context.Context) (*models.ContactSettings, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.contact == nil {
		return &models.ContactSettings{}, nil
	}
	c := *s.contact
	return &c, nil
}

func (s *Store) SaveContactSettings(ctx context.Context, settings *models.ContactSettings) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := *settings
	s.contact = &c
	return nil
}

func (s *Store) GetPendingOTP(ctx context.Context, adminID string) (*models.PendingOTP, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	o, ok := s.otps[adminID]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return &o, nil
}

func (s *Store) SavePendingOTP(ctx context.Context, otp *models.PendingOTP) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.otps[otp.AdminID] = *otp
	return nil
}

func (s *Store) DeletePendingOTP(ctx context.Context, adminID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.otps, adminID)
	return nil
}

func (s *Store) UseOTPAttempt(ctx context.Context, adminID string, limit int) (*models.PendingOTP, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.otps[adminID]
	if !ok {
		return nil, false, storage.ErrNotFound
	}
	if o.Attempts >= limit {
		return &o, false, nil
	}
	o.Attempts++
	s.otps[adminID] = o
	return &o, true, nil
}

// Sync runs

func (s *Store) SaveSyncRun(ctx context.Context, run *models.SyncRun) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	run.ID = newID(run.ID)
	s.syncRuns = append(s.syncRuns, *run)
	return nil
}

func (s *Store) ListSyncRuns(ctx context.Context, limit int) ([]models.SyncRun, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.SyncRun, 0, len(s.syncRuns))
	for i := len(s.syncRuns) - 1; i >= 0; i-- {
		out = append(out, s.syncRuns[i])
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}
