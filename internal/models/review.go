package models

import "time"

type ReviewStatus string

const (
	ReviewPending   ReviewStatus = "pending"
	ReviewPublished ReviewStatus = "published"
	ReviewRejected  ReviewStatus = "rejected"
)

// Review is a guest review, either left on the site or imported from a channel.
type Review struct {
	ID          string       `json:"id"`
	BookingID   string       `json:"bookingId,omitempty"`
	RoomID      string       `json:"roomId"`
	GuestUserID string       `json:"-"`
	AuthorName  string       `json:"authorName"`
	Rating      int          `json:"rating"`
	Title       string       `json:"title"`
	Body        string       `json:"body"`
	Source      string       `json:"source"`
	Status      ReviewStatus `json:"status"`
	CreatedAt   time.Time    `json:"createdAt"`
	PublishedAt *time.Time   `json:"publishedAt,omitempty"`
}
