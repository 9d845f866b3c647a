package booking

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"cloud.google.com/go/civil"
	"github.com/gin-gonic/gin"

	"github.com/casaolivo/bnb-server/internal/auth"
	"github.com/casaolivo/bnb-server/internal/availability"
	apierrors "github.com/casaolivo/bnb-server/internal/errors"
	"github.com/casaolivo/bnb-server/internal/logger"
	"github.com/casaolivo/bnb-server/internal/pricing"
)

// defaultCalendarDays is used when the calendar request has no "to".
const defaultCalendarDays = 90

// Handler serves the public booking API.
type Handler struct {
	service *Service
	logger  *logger.Logger
}

func NewHandler(service *Service, log *logger.Logger) *Handler {
	return &Handler{service: service, logger: log.WithComponent("booking-api")}
}

// RespondError writes the API error for a booking flow failure.
func RespondError(c *gin.Context, log *logger.Logger, err error) {
	var (
		validation *ValidationError
		conflict   *availability.ConflictError
		minStay    *pricing.MinStayError
		closed     *pricing.ClosedError
	)
	switch {
	case errors.As(err, &validation):
		apierrors.BadRequest(c, validation.Message, map[string]interface{}{"field": validation.Field})
	case errors.Is(err, availability.ErrInvalidStay), errors.Is(err, pricing.ErrInvalidGuests):
		apierrors.BadRequest(c, err.Error(), nil)
	case errors.As(err, &conflict):
		apierrors.Conflict(c, "dates_unavailable", "these dates are no longer available", map[string]interface{}{
			"checkIn":  conflict.Stay.CheckIn.String(),
			"checkOut": conflict.Stay.CheckOut.String(),
		})
	case errors.As(err, &minStay):
		apierrors.Unprocessable(c, "min_stay", err.Error(), map[string]interface{}{"minNights": minStay.Required})
	case errors.As(err, &closed):
		apierrors.Unprocessable(c, "closed", err.Error(), map[string]interface{}{"date": closed.Date.String()})
	case errors.Is(err, pricing.ErrNoPrice):
		apierrors.Unprocessable(c, "no_price", "these dates cannot be booked online", nil)
	case errors.Is(err, ErrRoomNotFound), errors.Is(err, ErrBookingNotFound):
		apierrors.NotFound(c, err.Error(), nil)
	case errors.Is(err, ErrNotOwner):
		apierrors.Forbidden(c, apierrors.BookingNotOwned(c.Param("id")))
	case errors.Is(err, ErrNotCancellable), errors.Is(err, ErrChannelManaged):
		apierrors.Conflict(c, "not_cancellable", err.Error(), nil)
	case errors.Is(err, ErrPaymentsUnavailable):
		apierrors.Unprocessable(c, "payments_unavailable", "online booking is not available right now, please contact us", nil)
	default:
		log.WithContext(c.Request.Context()).Error("booking request failed", "path", c.FullPath(), "error", err.Error())
		apierrors.Internal(c, "something went wrong, please try again", nil)
	}
}

func parseGuests(raw string) (int, error) {
	if raw == "" {
		return 1, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, &ValidationError{Field: "guests", Message: "must be a number"}
	}
	return n, nil
}

// Quote handles GET /api/rooms/:id/quote?checkIn=&checkOut=&guests=.
func (h *Handler) Quote(c *gin.Context) {
	stay, err := availability.ParseStay(c.Query("checkIn"), c.Query("checkOut"))
	if err != nil {
		RespondError(c, h.logger, &ValidationError{Field: "dates", Message: err.Error()})
		return
	}
	guests, err := parseGuests(c.Query("guests"))
	if err != nil {
		RespondError(c, h.logger, err)
		return
	}

	quote, err := h.service.Quote(c.Request.Context(), c.Param("id"), stay, guests)
	if err != nil {
		RespondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, quote)
}

// Calendar handles GET /api/rooms/:id/calendar?from=&to=.
func (h *Handler) Calendar(c *gin.Context) {
	from := h.service.Today()
	if raw := c.Query("from"); raw != "" {
		d, err := civil.ParseDate(raw)
		if err != nil {
			RespondError(c, h.logger, &ValidationError{Field: "from", Message: "expected YYYY-MM-DD"})
			return
		}
		from = d
	}
	to := from.AddDays(defaultCalendarDays)
	if raw := c.Query("to"); raw != "" {
		d, err := civil.ParseDate(raw)
		if err != nil {
			RespondError(c, h.logger, &ValidationError{Field: "to", Message: "expected YYYY-MM-DD"})
			return
		}
		to = d
	}

	days, err := h.service.Calendar(c.Request.Context(), c.Param("id"), from, to)
	if err != nil {
		RespondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"roomId": c.Param("id"), "from": from, "to": to, "days": days})
}

// Create handles POST /api/bookings. Signed-in guests get the booking linked
// to their account.
func (h *Handler) Create(c *gin.Context) {
	var req CreateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		apierrors.BadRequest(c, fmt.Sprintf("invalid booking request: %v", err), nil)
		return
	}
	if uid, ok := auth.GetUserID(c); ok {
		req.GuestUserID = uid
	}

	result, err := h.service.Create(c.Request.Context(), req)
	if err != nil {
		RespondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusCreated, result)
}

// Status handles GET /api/bookings/:id/status.
func (h *Handler) Status(c *gin.Context) {
	st, err := h.service.Status(c.Request.Context(), c.Param("id"))
	if err != nil {
		RespondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, st)
}
