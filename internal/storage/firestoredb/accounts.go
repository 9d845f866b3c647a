package firestoredb

import (
	"context"
	"errors"
	"fmt"
	"time"

	"cloud.google.com/go/firestore"
	"github.com/google/uuid"

	"github.com/casaolivo/bnb-server/internal/models"
	"github.com/casaolivo/bnb-server/internal/storage"
)

func (s *Store) GetUser(ctx context.Context, id string) (*models.User, error) {
	var d userDoc
	if err := s.get(ctx, colUsers, id, &d); err != nil {
		return nil, err
	}
	return &models.User{
		ID: id, Email: d.Email, Name: d.Name, Phone: d.Phone, Role: models.Role(d.Role),
		CreatedAt: d.CreatedAt, UpdatedAt: d.UpdatedAt,
	}, nil
}

func (s *Store) SaveUser(ctx context.Context, u *models.User) error {
	now := time.Now()
	if u.CreatedAt.IsZero() {
		u.CreatedAt = now
	}
	u.UpdatedAt = now
	return s.set(ctx, colUsers, u.ID, userDoc{
		Email: u.Email, Name: u.Name, Phone: u.Phone, Role: string(u.Role),
		CreatedAt: u.CreatedAt, UpdatedAt: u.UpdatedAt,
	})
}

func reviewModel(id string, d *reviewDoc) models.Review {
	return models.Review{
		ID: id, BookingID: d.BookingID, RoomID: d.RoomID, GuestUserID: d.GuestUserID,
		AuthorName: d.AuthorName, Rating: d.Rating, Title: d.Title, Body: d.Body,
		Source: d.Source, Status: models.ReviewStatus(d.Status),
		CreatedAt: d.CreatedAt, PublishedAt: d.PublishedAt,
	}
}

func (s *Store) ListReviews(ctx context.Context, filter storage.ReviewFilter) ([]models.Review, error) {
	q := s.client.Collection(colReviews).Query
	if filter.Status != "" {
		q = q.Where("status", "==", string(filter.Status))
	}
	if filter.RoomID != "" {
		q = q.Where("room_id", "==", filter.RoomID)
	}
	var out []models.Review
	err := each(ctx, q.OrderBy("created_at", firestore.Desc), func(id string, d *reviewDoc) error {
		r := reviewModel(id, d)
		if filter.Match(r) {
			out = append(out, r)
		}
		return nil
	})
	return out, err
}

func (s *Store) GetReview(ctx context.Context, id string) (*models.Review, error) {
	var d reviewDoc
	if err := s.get(ctx, colReviews, id, &d); err != nil {
		return nil, err
	}
	r := reviewModel(id, &d)
	return &r, nil
}

func (s *Store) FindReviewByBooking(ctx context.Context, bookingID string) (*models.Review, error) {
	if bookingID == "" {
		return nil, storage.ErrNotFound
	}
	var found *models.Review
	q := s.client.Collection(colReviews).Where("booking_id", "==", bookingID).Limit(1)
	err := each(ctx, q, func(id string, d *reviewDoc) error {
		r := reviewModel(id, d)
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

func (s *Store) SaveReview(ctx context.Context, r *models.Review) error {
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	if r.CreatedAt.IsZero() {
		r.CreatedAt = time.Now()
	}
	return s.set(ctx, colReviews, r.ID, reviewDoc{
		BookingID: r.BookingID, RoomID: r.RoomID, GuestUserID: r.GuestUserID,
		AuthorName: r.AuthorName, Rating: r.Rating, Title: r.Title, Body: r.Body,
		Source: r.Source, Status: string(r.Status),
		CreatedAt: r.CreatedAt, PublishedAt: r.PublishedAt,
	})
}

func (s *Store) GetContactSettings(ctx context.Context) (*models.ContactSettings, error) {
	var d contactDoc
	err := s.get(ctx, colSettings, contactDocID, &d)
	if errors.Is(err, storage.ErrNotFound) {
		return &models.ContactSettings{}, nil
	}
	if err != nil {
		return nil, err
	}
	return &models.ContactSettings{
		Email: d.Email, Phone: d.Phone, Address: d.Address,
		UpdatedAt: d.UpdatedAt, UpdatedBy: d.UpdatedBy,
	}, nil
}

func (s *Store) SaveContactSettings(ctx context.Context, c *models.ContactSettings) error {
	return s.set(ctx, colSettings, contactDocID, contactDoc{
		Email: c.Email, Phone: c.Phone, Address: c.Address,
		UpdatedAt: c.UpdatedAt, UpdatedBy: c.UpdatedBy,
	})
}

func (s *Store) GetPendingOTP(ctx context.Context, adminID string) (*models.PendingOTP, error) {
	var d otpDoc
	if err := s.get(ctx, colAdminOTPs, adminID, &d); err != nil {
		return nil, err
	}
	return &models.PendingOTP{
		AdminID: adminID, Purpose: models.OTPPurpose(d.Purpose), NewValue: d.NewValue,
		CodeHash: d.CodeHash, Attempts: d.Attempts, SentAt: d.SentAt, ExpiresAt: d.ExpiresAt,
	}, nil
}

func (s *Store) SavePendingOTP(ctx context.Context, o *models.PendingOTP) error {
	return s.set(ctx, colAdminOTPs, o.AdminID, otpDoc{
		Purpose: string(o.Purpose), NewValue: o.NewValue, CodeHash: o.CodeHash,
		Attempts: o.Attempts, SentAt: o.SentAt, ExpiresAt: o.ExpiresAt,
	})
}

func (s *Store) DeletePendingOTP(ctx context.Context, adminID string) error {
	_, err := s.client.Collection(colAdminOTPs).Doc(adminID).Delete(ctx)
	return mapErr(err, "delete pending otp")
}

// UseOTPAttempt increments the attempt counter in a transaction, so parallel
// guesses cannot share one remaining attempt.
func (s *Store) UseOTPAttempt(ctx context.Context, adminID string, limit int) (*models.PendingOTP, bool, error) {
	if adminID == "" {
		return nil, false, storage.ErrNotFound
	}
	ref := s.client.Collection(colAdminOTPs).Doc(adminID)

	var (
		pending *models.PendingOTP
		counted bool
	)
	err := s.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		snap, err := tx.Get(ref)
		if err != nil {
			return mapErr(err, "get pending otp")
		}
		var d otpDoc
		if err := snap.DataTo(&d); err != nil {
			return fmt.Errorf("failed to parse pending otp: %w", err)
		}
		counted = d.Attempts < limit
		if counted {
			d.Attempts++
			if err := tx.Update(ref, []firestore.Update{{Path: "attempts", Value: d.Attempts}}); err != nil {
				return err
			}
		}
		pending = &models.PendingOTP{
			AdminID: adminID, Purpose: models.OTPPurpose(d.Purpose), NewValue: d.NewValue,
			CodeHash: d.CodeHash, Attempts: d.Attempts, SentAt: d.SentAt, ExpiresAt: d.ExpiresAt,
		}
		return nil
	})
	if err != nil {
		return nil, false, err
	}
	return pending, counted, nil
}

func (s *Store) SaveSyncRun(ctx context.Context, run *models.SyncRun) error {
	if run.ID == "" {
		run.ID = uuid.NewString()
	}
	return s.set(ctx, colSyncRuns, run.ID, syncRunDoc{
		Trigger: run.Trigger, StartedAt: run.StartedAt, FinishedAt: run.FinishedAt,
		Fetched: run.Fetched, Created: run.Created, Updated: run.Updated,
		Cancelled: run.Cancelled, Conflicts: run.Conflicts, Error: run.Error,
	})
}

func (s *Store) ListSyncRuns(ctx context.Context, limit int) ([]models.SyncRun, error) {
	q := s.client.Collection(colSyncRuns).OrderBy("started_at", firestore.Desc)
	if limit > 0 {
		q = q.Limit(limit)
	}
	var out []models.SyncRun
	err := each(ctx, q, func(id string, d *syncRunDoc) error {
		out = append(out, models.SyncRun{
			ID: id, Trigger: d.Trigger, StartedAt: d.StartedAt, FinishedAt: d.FinishedAt,
			Fetched: d.Fetched, Created: d.Created, Updated: d.Updated,
			Cancelled: d.Cancelled, Conflicts: d.Conflicts, Error: d.Error,
		})
		return nil
	})
	return out, err
}
