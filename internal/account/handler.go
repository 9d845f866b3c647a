// Package account serves guest self-service: profile, own bookings, and the
// manage links sent to guests who booked without signing in.
package account

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	"cloud.google.com/go/civil"
	"github.com/gin-gonic/gin"

	"github.com/casaolivo/bnb-server/internal/auth"
	"github.com/casaolivo/bnb-server/internal/booking"
	apierrors "github.com/casaolivo/bnb-server/internal/errors"
	"github.com/casaolivo/bnb-server/internal/logger"
	"github.com/casaolivo/bnb-server/internal/models"
	"github.com/casaolivo/bnb-server/internal/storage"
)

// TokenParser checks manage-link tokens.
type TokenParser interface {
	Parse(token string) (*auth.ManageClaims, error)
}

type Store interface {
	storage.UserStore
	GetRoom(ctx context.Context, id string) (*models.Room, error)
}

type Handler struct {
	bookings *booking.Service
	store    Store
	tokens   TokenParser
	logger   *logger.Logger
}

func NewHandler(bookings *booking.Service, store Store, tokens TokenParser, log *logger.Logger) *Handler {
	return &Handler{
		bookings: bookings,
		store:    store,
		tokens:   tokens,
		logger:   log.WithComponent("account"),
	}
}

// BookingView is a booking as its guest sees it.
type BookingView struct {
	models.Booking
	RoomName        string      `json:"roomName"`
	CanCancel       bool        `json:"canCancel"`
	RefundIfCancel  int64       `json:"refundIfCancelled"`
	FreeCancelUntil *civil.Date `json:"freeCancelUntil,omitempty"`
}

func (h *Handler) view(ctx context.Context, b models.Booking, rooms map[string]string) BookingView {
	v := BookingView{Booking: b, CanCancel: h.bookings.GuestCanCancel(&b)}
	if v.CanCancel {
		v.RefundIfCancel = h.bookings.RefundDue(&b)
		if b.Channel == models.ChannelSite {
			d := h.bookings.FreeCancelDeadline(&b)
			v.FreeCancelUntil = &d
		}
	}
	name, ok := rooms[b.RoomID]
	if !ok {
		name = b.RoomID
		if room, err := h.store.GetRoom(ctx, b.RoomID); err == nil {
			name = room.Name
		}
		rooms[b.RoomID] = name
	}
	v.RoomName = name
	return v
}

// actor is the signed-in guest. Unverified emails do not prove ownership.
func actor(c *gin.Context) booking.Actor {
	id, _ := auth.GetIdentity(c)
	a := booking.Actor{UserID: id.UID}
	if id.EmailVerified {
		a.Email = id.Email
	}
	return a
}

// GetProfile handles GET /api/account/profile.
func (h *Handler) GetProfile(c *gin.Context) {
	id, _ := auth.GetIdentity(c)
	user, err := h.store.GetUser(c.Request.Context(), id.UID)
	if errors.Is(err, storage.ErrNotFound) {
		user = &models.User{ID: id.UID, Email: id.Email, Name: id.Name, Role: models.RoleGuest}
	} else if err != nil {
		h.logger.WithContext(c.Request.Context()).Error("failed to load profile", "error", err.Error())
		apierrors.Internal(c, "failed to load profile", nil)
		return
	}
	c.JSON(http.StatusOK, user)
}

type profileUpdate struct {
	Name  *string `json:"name"`
	Phone *string `json:"phone"`
}

// UpdateProfile handles PUT /api/account/profile. Email and role are managed
// by Firebase and admins.
func (h *Handler) UpdateProfile(c *gin.Context) {
	ctx := c.Request.Context()
	id, _ := auth.GetIdentity(c)

	var body profileUpdate
	if err := c.ShouldBindJSON(&body); err != nil {
		apierrors.BadRequest(c, "invalid profile", nil)
		return
	}

	user, err := h.store.GetUser(ctx, id.UID)
	if errors.Is(err, storage.ErrNotFound) {
		user = &models.User{ID: id.UID, Email: id.Email, Role: models.RoleGuest, CreatedAt: time.Now()}
	} else if err != nil {
		apierrors.Internal(c, "failed to load profile", nil)
		return
	}

	if body.Name != nil {
		name := strings.TrimSpace(*body.Name)
		if utf8.RuneCountInString(name) > 120 {
			apierrors.BadRequest(c, "name is too long", map[string]interface{}{"field": "name"})
			return
		}
		user.Name = name
	}
	if body.Phone != nil {
		phone := strings.TrimSpace(*body.Phone)
		if len(phone) > 32 {
			apierrors.BadRequest(c, "phone is too long", map[string]interface{}{"field": "phone"})
			return
		}
		user.Phone = phone
	}
	user.UpdatedAt = time.Now()

	if err := h.store.SaveUser(ctx, user); err != nil {
		h.logger.WithContext(ctx).Error("failed to save profile", "error", err.Error())
		apierrors.Internal(c, "failed to save profile", nil)
		return
	}
	c.JSON(http.StatusOK, user)
}

// ListBookings handles GET /api/account/bookings.
func (h *Handler) ListBookings(c *gin.Context) {
	ctx := c.Request.Context()
	list, err := h.bookings.ListForGuest(ctx, actor(c))
	if err != nil {
		booking.RespondError(c, h.logger, err)
		return
	}
	rooms := make(map[string]string)
	views := make([]BookingView, 0, len(list))
	for _, b := range list {
		views = append(views, h.view(ctx, b, rooms))
	}
	c.JSON(http.StatusOK, gin.H{"bookings": views})
}

type cancelBody struct {
	Reason string `json:"reason"`
}

// CancelBooking handles POST /api/account/bookings/:id/cancel.
func (h *Handler) CancelBooking(c *gin.Context) {
	var body cancelBody
	_ = c.ShouldBindJSON(&body)

	res, err := h.bookings.Cancel(c.Request.Context(), c.Param("id"), actor(c), booking.CancelOptions{Reason: body.Reason})
	if err != nil {
		booking.RespondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (h *Handler) claims(c *gin.Context, token string) (*auth.ManageClaims, bool) {
	if token == "" {
		apierrors.Unauthorized(c, "missing manage token", nil)
		return nil, false
	}
	claims, err := h.tokens.Parse(token)
	if errors.Is(err, auth.ErrExpiredToken) {
		apierrors.Unauthorized(c, "this link has expired, sign in to manage your booking", nil)
		return nil, false
	}
	if err != nil {
		apierrors.Unauthorized(c, "invalid manage link", nil)
		return nil, false
	}
	return claims, true
}

// ManageGet handles GET /api/manage?token=.
func (h *Handler) ManageGet(c *gin.Context) {
	ctx := c.Request.Context()
	claims, ok := h.claims(c, c.Query("token"))
	if !ok {
		return
	}
	b, err := h.bookings.Get(ctx, claims.BookingID)
	if err != nil {
		booking.RespondError(c, h.logger, err)
		return
	}
	if !(booking.Actor{Email: claims.Email}).Owns(b) {
		apierrors.Forbidden(c, apierrors.BookingNotOwned(b.ID))
		return
	}
	c.JSON(http.StatusOK, h.view(ctx, *b, make(map[string]string)))
}

// ManageCancel handles POST /api/manage/cancel.
func (h *Handler) ManageCancel(c *gin.Context) {
	var body struct {
		Token  string `json:"token"`
		Reason string `json:"reason"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		apierrors.BadRequest(c, "token is required", nil)
		return
	}
	claims, ok := h.claims(c, body.Token)
	if !ok {
		return
	}

	res, err := h.bookings.Cancel(c.Request.Context(), claims.BookingID, booking.Actor{Email: claims.Email}, booking.CancelOptions{Reason: body.Reason})
	if err != nil {
		booking.RespondError(c, h.logger, err)
		return
	}
	h.logger.WithContext(logger.WithBookingID(c.Request.Context(), claims.BookingID)).Info("booking cancelled with manage link")
	c.JSON(http.StatusOK, res)
}
