package errors

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// ForbiddenReason represents machine-readable reason codes for 403 errors.
type ForbiddenReason string

const (
	ReasonAdminOnly         ForbiddenReason = "admin_only"
	ReasonBookingNotOwned   ForbiddenReason = "booking_not_owned"
	ReasonCancelWindow      ForbiddenReason = "cancellation_window_closed"
	ReasonReviewNotAllowed  ForbiddenReason = "review_not_allowed"
	ReasonInvalidCronSecret ForbiddenReason = "invalid_cron_secret"
)

// ForbiddenError represents a standardized 403 Forbidden response.
type ForbiddenError struct {
	Error     string                 `json:"error"`     // Technical error message (for logs)
	UIMessage string                 `json:"uiMessage"` // Guest-facing message
	Reason    ForbiddenReason        `json:"reason"`
	Details   map[string]interface{} `json:"details,omitempty"`
}

// NewForbiddenError creates a new ForbiddenError with the given parameters.
func NewForbiddenError(reason ForbiddenReason, errorMsg, uiMessage string, details map[string]interface{}) *ForbiddenError {
	return &ForbiddenError{
		Error:     errorMsg,
		UIMessage: uiMessage,
		Reason:    reason,
		Details:   details,
	}
}

// AbortWithForbidden sends a 403 response with the ForbiddenError and aborts the request.
func AbortWithForbidden(c *gin.Context, err *ForbiddenError) {
	c.AbortWithStatusJSON(http.StatusForbidden, err)
}

// Forbidden sends a 403 response without aborting.
func Forbidden(c *gin.Context, err *ForbiddenError) {
	c.JSON(http.StatusForbidden, err)
}

// AdminOnly is returned by the admin middleware for signed-in non-admins.
func AdminOnly() *ForbiddenError {
	return NewForbiddenError(ReasonAdminOnly,
		"admin role required",
		"You don't have access to the admin console.",
		nil)
}

// BookingNotOwned is returned when a guest touches someone else's booking.
func BookingNotOwned(bookingID string) *ForbiddenError {
	return NewForbiddenError(ReasonBookingNotOwned,
		"booking does not belong to the current user",
		"We couldn't find this booking in your account.",
		map[string]interface{}{"booking_id": bookingID})
}

// ReviewNotAllowed explains why a review cannot be submitted.
func ReviewNotAllowed(reason string) *ForbiddenError {
	return NewForbiddenError(ReasonReviewNotAllowed,
		"review not allowed: "+reason,
		"Reviews can be left once per stay, after check-out.",
		nil)
}

// InvalidCronSecret rejects scheduler calls without the shared secret.
func InvalidCronSecret() *ForbiddenError {
	return NewForbiddenError(ReasonInvalidCronSecret, "invalid cron secret", "", nil)
}
