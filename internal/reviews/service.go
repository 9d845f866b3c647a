// Package reviews collects guest reviews, moderates them and summarizes the
// published ones per room.
package reviews

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"
	"unicode/utf8"

	"cloud.google.com/go/civil"

	"github.com/casaolivo/bnb-server/internal/logger"
	"github.com/casaolivo/bnb-server/internal/models"
	"github.com/casaolivo/bnb-server/internal/storage"
)

var (
	ErrReviewNotFound  = errors.New("review not found")
	ErrBookingNotFound = errors.New("booking not found")
	ErrNotOwner        = errors.New("only the guest of a stay can review it")
	ErrStayNotFinished = errors.New("reviews open after check-out")
	ErrNotReviewable   = errors.New("only completed stays can be reviewed")
	ErrAlreadyReviewed = errors.New("this stay has already been reviewed")
)

// SourceSite marks reviews left on this site.
const SourceSite = "site"

const maxTitleChars = 120

// InvalidError is a rejected review field.
type InvalidError struct {
	Field   string
	Message string
}

func (e *InvalidError) Error() string {
	return e.Field + ": " + e.Message
}

type Store interface {
	storage.ReviewStore
	GetBooking(ctx context.Context, id string) (*models.Booking, error)
}

type Service struct {
	store        Store
	maxBodyChars int
	location     *time.Location
	logger       *logger.Logger
	now          func() time.Time
}

func NewService(store Store, maxBodyChars int, location *time.Location, log *logger.Logger) *Service {
	return &Service{
		store:        store,
		maxBodyChars: maxBodyChars,
		location:     location,
		logger:       log.WithComponent("reviews"),
		now:          time.Now,
	}
}

// Author is the signed-in guest writing a review.
type Author struct {
	UserID string
	Email  string
	Name   string
}

type SubmitRequest struct {
	BookingID string `json:"bookingId" binding:"required"`
	Rating    int    `json:"rating" binding:"required"`
	Title     string `json:"title"`
	Body      string `json:"body" binding:"required"`
}

func (s *Service) validate(rating int, title, body string) error {
	if rating < 1 || rating > 5 {
		return &InvalidError{Field: "rating", Message: "must be between 1 and 5"}
	}
	if utf8.RuneCountInString(title) > maxTitleChars {
		return &InvalidError{Field: "title", Message: fmt.Sprintf("at most %d characters", maxTitleChars)}
	}
	if body == "" {
		return &InvalidError{Field: "body", Message: "is required"}
	}
	if utf8.RuneCountInString(body) > s.maxBodyChars {
		return &InvalidError{Field: "body", Message: fmt.Sprintf("at most %d characters", s.maxBodyChars)}
	}
	return nil
}

func firstName(full string) string {
	full = strings.TrimSpace(full)
	if i := strings.IndexByte(full, ' '); i > 0 {
		return full[:i]
	}
	return full
}

// Submit stores a pending review for a finished stay of the author.
func (s *Service) Submit(ctx context.Context, author Author, req SubmitRequest) (*models.Review, error) {
	req.Title = strings.TrimSpace(req.Title)
	req.Body = strings.TrimSpace(req.Body)
	if err := s.validate(req.Rating, req.Title, req.Body); err != nil {
		return nil, err
	}

	b, err := s.store.GetBooking(ctx, req.BookingID)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, ErrBookingNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load booking: %w", err)
	}

	owns := (author.UserID != "" && b.GuestUserID == author.UserID) ||
		(author.Email != "" && strings.EqualFold(author.Email, b.GuestEmail))
	if !owns {
		return nil, ErrNotOwner
	}
	if b.Status != models.StatusConfirmed {
		return nil, ErrNotReviewable
	}
	if civil.DateOf(s.now().In(s.location)).Before(b.CheckOut) {
		return nil, ErrStayNotFinished
	}

	if _, err := s.store.FindReviewByBooking(ctx, b.ID); err == nil {
		return nil, ErrAlreadyReviewed
	} else if !errors.Is(err, storage.ErrNotFound) {
		return nil, fmt.Errorf("failed to check existing review: %w", err)
	}

	name := firstName(author.Name)
	if name == "" {
		name = firstName(b.GuestName)
	}
	r := &models.Review{
		BookingID:   b.ID,
		RoomID:      b.RoomID,
		GuestUserID: author.UserID,
		AuthorName:  name,
		Rating:      req.Rating,
		Title:       req.Title,
		Body:        req.Body,
		Source:      SourceSite,
		Status:      models.ReviewPending,
		CreatedAt:   s.now(),
	}
	if err := s.store.SaveReview(ctx, r); err != nil {
		return nil, fmt.Errorf("failed to save review: %w", err)
	}
	s.logger.WithContext(logger.WithBookingID(ctx, b.ID)).Info("review submitted", "review_id", r.ID, "rating", r.Rating)
	return r, nil
}

// Published returns a room's published reviews, or every room's when roomID
// is empty, with their summary.
func (s *Service) Published(ctx context.Context, roomID string) ([]models.Review, Summary, error) {
	list, err := s.store.ListReviews(ctx, storage.ReviewFilter{RoomID: roomID, Status: models.ReviewPublished})
	if err != nil {
		return nil, Summary{}, fmt.Errorf("failed to list reviews: %w", err)
	}
	return list, Aggregate(list), nil
}

// List is the moderation queue view.
func (s *Service) List(ctx context.Context, filter storage.ReviewFilter) ([]models.Review, error) {
	list, err := s.store.ListReviews(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("failed to list reviews: %w", err)
	}
	return list, nil
}

// Moderate publishes or rejects a review.
func (s *Service) Moderate(ctx context.Context, id string, status models.ReviewStatus) (*models.Review, error) {
	if status != models.ReviewPublished && status != models.ReviewRejected && status != models.ReviewPending {
		return nil, &InvalidError{Field: "status", Message: "must be published, rejected or pending"}
	}
	r, err := s.store.GetReview(ctx, id)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, ErrReviewNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load review: %w", err)
	}

	r.Status = status
	if status == models.ReviewPublished {
		if r.PublishedAt == nil {
			now := s.now()
			r.PublishedAt = &now
		}
	} else {
		r.PublishedAt = nil
	}
	if err := s.store.SaveReview(ctx, r); err != nil {
		return nil, fmt.Errorf("failed to save review: %w", err)
	}
	s.logger.WithContext(ctx).Info("review moderated", "review_id", r.ID, "status", status)
	return r, nil
}

// ImportRequest is a review copied from a channel listing.
type ImportRequest struct {
	RoomID     string    `json:"roomId" binding:"required"`
	AuthorName string    `json:"authorName" binding:"required"`
	Rating     int       `json:"rating" binding:"required"`
	Title      string    `json:"title"`
	Body       string    `json:"body" binding:"required"`
	Source     string    `json:"source" binding:"required"`
	CreatedAt  time.Time `json:"createdAt"`
}

// Import stores a channel review as published.
func (s *Service) Import(ctx context.Context, req ImportRequest) (*models.Review, error) {
	req.Source = strings.ToLower(strings.TrimSpace(req.Source))
	if req.Source == "" || req.Source == SourceSite {
		return nil, &InvalidError{Field: "source", Message: "name the channel the review comes from"}
	}
	req.Title = strings.TrimSpace(req.Title)
	req.Body = strings.TrimSpace(req.Body)
	if err := s.validate(req.Rating, req.Title, req.Body); err != nil {
		return nil, err
	}

	now := s.now()
	created := req.CreatedAt
	if created.IsZero() {
		created = now
	}
	r := &models.Review{
		RoomID:      req.RoomID,
		AuthorName:  strings.TrimSpace(req.AuthorName),
		Rating:      req.Rating,
		Title:       req.Title,
		Body:        req.Body,
		Source:      req.Source,
		Status:      models.ReviewPublished,
		CreatedAt:   created,
		PublishedAt: &now,
	}
	if err := s.store.SaveReview(ctx, r); err != nil {
		return nil, fmt.Errorf("failed to save review: %w", err)
	}
	return r, nil
}

// Summary is the star rating block shown on room pages.
type Summary struct {
	Count   int     `json:"count"`
	Average float64 `json:"average"`
	// Distribution counts reviews per star, 1 to 5.
	Distribution map[int]int `json:"distribution"`
}

// Aggregate summarizes published reviews. The average has one decimal.
func Aggregate(reviews []models.Review) Summary {
	s := Summary{Distribution: map[int]int{1: 0, 2: 0, 3: 0, 4: 0, 5: 0}}
	total := 0
	for _, r := range reviews {
		if r.Status != models.ReviewPublished || r.Rating < 1 || r.Rating > 5 {
			continue
		}
		s.Count++
		total += r.Rating
		s.Distribution[r.Rating]++
	}
	if s.Count > 0 {
		s.Average = math.Round(float64(total)/float64(s.Count)*10) / 10
	}
	return s
}
