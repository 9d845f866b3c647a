// Package admin is the API behind the host's console: bookings, rooms,
// pricing rules, channel sync and the public contact details.
package admin

import (
	"errors"
	"fmt"
	"net/http"
	"regexp"
	"strings"
	"time"

	"cloud.google.com/go/civil"
	"github.com/gin-gonic/gin"

	"github.com/casaolivo/bnb-server/internal/auth"
	"github.com/casaolivo/bnb-server/internal/booking"
	"github.com/casaolivo/bnb-server/internal/channelsync"
	"github.com/casaolivo/bnb-server/internal/config"
	"github.com/casaolivo/bnb-server/internal/email"
	apierrors "github.com/casaolivo/bnb-server/internal/errors"
	"github.com/casaolivo/bnb-server/internal/logger"
	"github.com/casaolivo/bnb-server/internal/models"
	"github.com/casaolivo/bnb-server/internal/otp"
	"github.com/casaolivo/bnb-server/internal/storage"
)

type Dependencies struct {
	Store    storage.Store
	Bookings *booking.Service
	Syncer   *channelsync.Syncer
	Codes    *otp.Codes
	Mailer   email.Mailer
	Logger   *logger.Logger
}

type Handler struct {
	store    storage.Store
	bookings *booking.Service
	syncer   *channelsync.Syncer
	codes    *otp.Codes
	mailer   email.Mailer
	cfg      *config.Config
	logger   *logger.Logger
}

func NewHandler(deps Dependencies, cfg *config.Config) *Handler {
	return &Handler{
		store:    deps.Store,
		bookings: deps.Bookings,
		syncer:   deps.Syncer,
		codes:    deps.Codes,
		mailer:   deps.Mailer,
		cfg:      cfg,
		logger:   deps.Logger.WithComponent("admin"),
	}
}

func (h *Handler) internal(c *gin.Context, msg string, err error) {
	h.logger.WithContext(c.Request.Context()).Error(msg, "error", err.Error())
	apierrors.Internal(c, msg, nil)
}

func optionalDate(c *gin.Context, key string) (civil.Date, bool) {
	raw := c.Query(key)
	if raw == "" {
		return civil.Date{}, true
	}
	d, err := civil.ParseDate(raw)
	if err != nil {
		apierrors.BadRequest(c, key+" must be YYYY-MM-DD", map[string]interface{}{"field": key})
		return civil.Date{}, false
	}
	return d, true
}

// ListBookings handles GET /api/admin/bookings?room=&status=&channel=&from=&to=&email=.
func (h *Handler) ListBookings(c *gin.Context) {
	filter := storage.BookingFilter{
		RoomID:     c.Query("room"),
		Channel:    models.Channel(c.Query("channel")),
		GuestEmail: strings.ToLower(strings.TrimSpace(c.Query("email"))),
	}
	for _, s := range strings.Split(c.Query("status"), ",") {
		if s = strings.TrimSpace(s); s != "" {
			filter.Statuses = append(filter.Statuses, models.BookingStatus(s))
		}
	}
	var ok bool
	if filter.From, ok = optionalDate(c, "from"); !ok {
		return
	}
	if filter.To, ok = optionalDate(c, "to"); !ok {
		return
	}

	list, err := h.store.ListBookings(c.Request.Context(), filter)
	if err != nil {
		h.internal(c, "failed to list bookings", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"bookings": list})
}

// GetBooking handles GET /api/admin/bookings/:id.
func (h *Handler) GetBooking(c *gin.Context) {
	b, err := h.bookings.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		booking.RespondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"booking": b, "refundDue": h.bookings.RefundDue(b)})
}

// CreateBooking handles POST /api/admin/bookings for direct bookings and blocks.
func (h *Handler) CreateBooking(c *gin.Context) {
	var req booking.ManualRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		apierrors.BadRequest(c, fmt.Sprintf("invalid booking: %v", err), nil)
		return
	}
	b, err := h.bookings.CreateManual(c.Request.Context(), req)
	if err != nil {
		booking.RespondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusCreated, b)
}

// UpdateBookingStatus handles PATCH /api/admin/bookings/:id/status.
func (h *Handler) UpdateBookingStatus(c *gin.Context) {
	var body struct {
		Status models.BookingStatus `json:"status" binding:"required"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		apierrors.BadRequest(c, "status is required", nil)
		return
	}
	b, err := h.bookings.UpdateStatus(c.Request.Context(), c.Param("id"), body.Status)
	if err != nil {
		booking.RespondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, b)
}

// CancelBooking handles POST /api/admin/bookings/:id/cancel.
func (h *Handler) CancelBooking(c *gin.Context) {
	var body struct {
		Reason       string `json:"reason"`
		Refund       bool   `json:"refund"`
		RefundAmount int64  `json:"refundAmount"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		apierrors.BadRequest(c, "invalid cancellation", nil)
		return
	}
	if body.RefundAmount < 0 {
		apierrors.BadRequest(c, "refundAmount must not be negative", map[string]interface{}{"field": "refundAmount"})
		return
	}

	uid, _ := auth.GetUserID(c)
	res, err := h.bookings.Cancel(c.Request.Context(), c.Param("id"), booking.Actor{UserID: uid, Admin: true}, booking.CancelOptions{
		Reason:       body.Reason,
		Refund:       body.Refund,
		RefundAmount: body.RefundAmount,
	})
	if err != nil {
		booking.RespondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

var slugPattern = regexp.MustCompile(`^[a-z0-9]+(-[a-z0-9]+)*$`)

func validateRoom(r *models.Room) error {
	r.Name = strings.TrimSpace(r.Name)
	r.Slug = strings.TrimSpace(strings.ToLower(r.Slug))
	switch {
	case r.Name == "":
		return &booking.ValidationError{Field: "name", Message: "is required"}
	case !slugPattern.MatchString(r.Slug):
		return &booking.ValidationError{Field: "slug", Message: "use lowercase letters, digits and dashes"}
	case r.Capacity < 1:
		return &booking.ValidationError{Field: "capacity", Message: "must be at least 1"}
	case r.BaseOccupancy < 0 || r.BaseOccupancy > r.Capacity:
		return &booking.ValidationError{Field: "baseOccupancy", Message: "must be between 0 and capacity"}
	case r.BasePrice < 0 || r.ExtraGuestFee < 0 || r.CleaningFee < 0:
		return &booking.ValidationError{Field: "basePrice", Message: "prices must not be negative"}
	case r.WeeklyDiscountPercent < 0 || r.WeeklyDiscountPercent > 90:
		return &booking.ValidationError{Field: "weeklyDiscountPercent", Message: "must be between 0 and 90"}
	}
	if r.MinNights < 1 {
		r.MinNights = 1
	}
	return nil
}

// ListRooms handles GET /api/admin/rooms, inactive rooms included.
func (h *Handler) ListRooms(c *gin.Context) {
	rooms, err := h.store.ListRooms(c.Request.Context(), false)
	if err != nil {
		h.internal(c, "failed to list rooms", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"rooms": rooms})
}

// SaveRoom handles POST /api/admin/rooms and PUT /api/admin/rooms/:id.
func (h *Handler) SaveRoom(c *gin.Context) {
	ctx := c.Request.Context()
	var room models.Room
	if err := c.ShouldBindJSON(&room); err != nil {
		apierrors.BadRequest(c, "invalid room", nil)
		return
	}

	status := http.StatusCreated
	if id := c.Param("id"); id != "" {
		existing, err := h.store.GetRoom(ctx, id)
		if errors.Is(err, storage.ErrNotFound) {
			apierrors.NotFound(c, "room not found", nil)
			return
		}
		if err != nil {
			h.internal(c, "failed to load room", err)
			return
		}
		room.ID = id
		room.CreatedAt = existing.CreatedAt
		status = http.StatusOK
	} else {
		room.ID = ""
	}

	if err := validateRoom(&room); err != nil {
		booking.RespondError(c, h.logger, err)
		return
	}
	room.UpdatedAt = time.Now()
	if err := h.store.SaveRoom(ctx, &room); err != nil {
		if errors.Is(err, storage.ErrAlreadyExists) {
			apierrors.Conflict(c, "slug_taken", "another room uses this slug", map[string]interface{}{"slug": room.Slug})
			return
		}
		h.internal(c, "failed to save room", err)
		return
	}
	h.logger.WithContext(ctx).Info("room saved", "room_id", room.ID, "slug", room.Slug)
	c.JSON(status, room)
}

// ArchiveRoom handles DELETE /api/admin/rooms/:id. Rooms keep their bookings,
// so they are deactivated rather than removed.
func (h *Handler) ArchiveRoom(c *gin.Context) {
	ctx := c.Request.Context()
	room, err := h.store.GetRoom(ctx, c.Param("id"))
	if errors.Is(err, storage.ErrNotFound) {
		apierrors.NotFound(c, "room not found", nil)
		return
	}
	if err != nil {
		h.internal(c, "failed to load room", err)
		return
	}
	room.Active = false
	room.UpdatedAt = time.Now()
	if err := h.store.SaveRoom(ctx, room); err != nil {
		h.internal(c, "failed to archive room", err)
		return
	}
	c.JSON(http.StatusOK, room)
}
