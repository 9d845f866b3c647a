package site

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/casaolivo/bnb-server/internal/booking"
	"github.com/casaolivo/bnb-server/internal/models"
	"github.com/casaolivo/bnb-server/internal/storage"
)

func (s *Site) errorPage(c *gin.Context, status int, msg string) {
	c.HTML(status, "error.html", s.page(c, msg, gin.H{"Message": msg}))
}

func (s *Site) failed(c *gin.Context, what string, err error) {
	s.logger.WithContext(c.Request.Context()).Error("page failed", "page", what, "error", err.Error())
	s.errorPage(c, http.StatusInternalServerError, "Something went wrong, please try again.")
}

// Home handles GET /.
func (s *Site) Home(c *gin.Context) {
	cards, err := s.roomCards(c.Request.Context())
	if err != nil {
		s.failed(c, "home", err)
		return
	}
	c.HTML(http.StatusOK, "home.html", s.page(c, s.cfg.Property.Name, gin.H{"Rooms": cards}))
}

// Rooms handles GET /rooms.
func (s *Site) Rooms(c *gin.Context) {
	cards, err := s.roomCards(c.Request.Context())
	if err != nil {
		s.failed(c, "rooms", err)
		return
	}
	c.HTML(http.StatusOK, "rooms.html", s.page(c, "Rooms", gin.H{"Rooms": cards}))
}

// Room handles GET /rooms/:slug.
func (s *Site) Room(c *gin.Context) {
	ctx := c.Request.Context()
	room, err := s.publicRoom(ctx, c.Param("slug"))
	if errors.Is(err, storage.ErrNotFound) {
		s.errorPage(c, http.StatusNotFound, "This room does not exist.")
		return
	}
	if err != nil {
		s.failed(c, "room", err)
		return
	}
	card, err := s.card(ctx, *room)
	if err != nil {
		s.failed(c, "room", err)
		return
	}
	list, _, err := s.reviews.Published(ctx, room.ID)
	if err != nil {
		s.failed(c, "room", err)
		return
	}
	c.HTML(http.StatusOK, "room.html", s.page(c, room.Name, gin.H{
		"Room":        card,
		"ReviewList":  list,
		"Today":       s.bookings.Today().String(),
		"Cancellable": s.cfg.Booking.FreeCancelDays,
	}))
}

// Contact handles GET /contact.
func (s *Site) Contact(c *gin.Context) {
	c.HTML(http.StatusOK, "contact.html", s.page(c, "Contact", nil))
}

// BookingSuccess handles GET /booking/success?booking=, the Stripe return page.
// The webhook may land after the guest does, so a pending booking is shown as
// being confirmed and the page polls the status endpoint.
func (s *Site) BookingSuccess(c *gin.Context) {
	st, err := s.bookings.Status(c.Request.Context(), c.Query("booking"))
	if errors.Is(err, booking.ErrBookingNotFound) {
		s.errorPage(c, http.StatusNotFound, "We could not find this booking.")
		return
	}
	if err != nil {
		s.failed(c, "booking_success", err)
		return
	}
	c.HTML(http.StatusOK, "booking_success.html", s.page(c, "Your booking", gin.H{
		"Booking": st,
		"Pending": st.Status == models.StatusPending,
	}))
}

// BookingCancelled handles GET /booking/cancelled?booking=, where Stripe sends
// a guest who left checkout. The hold is released so the dates reopen.
func (s *Site) BookingCancelled(c *gin.Context) {
	ctx := c.Request.Context()
	var roomSlug string
	if b, err := s.bookings.Get(ctx, c.Query("booking")); err == nil {
		if b.Status == models.StatusPending && b.StripeSessionID != "" {
			if err := s.bookings.ReleaseHold(ctx, b.StripeSessionID); err != nil {
				s.logger.WithContext(ctx).Error("failed to release hold", "booking_id", b.ID, "error", err.Error())
			}
		}
		if room, err := s.store.GetRoom(ctx, b.RoomID); err == nil {
			roomSlug = room.Slug
		}
	}
	c.HTML(http.StatusOK, "booking_cancelled.html", s.page(c, "Booking not completed", gin.H{"RoomSlug": roomSlug}))
}

// Account handles GET /account. The page loads its data from /api/account.
func (s *Site) Account(c *gin.Context) {
	c.HTML(http.StatusOK, "account.html", s.page(c, "Your account", nil))
}

// Manage handles GET /manage?token=, the emailed link for guests without an account.
func (s *Site) Manage(c *gin.Context) {
	c.HTML(http.StatusOK, "manage.html", s.page(c, "Your booking", gin.H{"Token": c.Query("token")}))
}

// NotFound renders the 404 page for unknown non-API paths.
func (s *Site) NotFound(c *gin.Context) {
	s.errorPage(c, http.StatusNotFound, "Page not found.")
}
