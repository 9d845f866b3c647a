package admin

import (
	"errors"
	"net/http"
	"net/mail"
	"regexp"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/casaolivo/bnb-server/internal/auth"
	"github.com/casaolivo/bnb-server/internal/booking"
	"github.com/casaolivo/bnb-server/internal/email"
	apierrors "github.com/casaolivo/bnb-server/internal/errors"
	"github.com/casaolivo/bnb-server/internal/models"
	"github.com/casaolivo/bnb-server/internal/otp"
)

var phonePattern = regexp.MustCompile(`^\+?[0-9 ().-]{6,24}$`)

// GetContact handles GET /api/admin/contact.
func (h *Handler) GetContact(c *gin.Context) {
	settings, err := h.store.GetContactSettings(c.Request.Context())
	if err != nil {
		h.internal(c, "failed to load contact settings", err)
		return
	}
	c.JSON(http.StatusOK, settings)
}

// UpdateAddress handles PUT /api/admin/contact. Only the address changes
// directly; email and phone go through a verification code.
func (h *Handler) UpdateAddress(c *gin.Context) {
	ctx := c.Request.Context()
	var body struct {
		Address string `json:"address"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		apierrors.BadRequest(c, "invalid contact settings", nil)
		return
	}
	settings, err := h.store.GetContactSettings(ctx)
	if err != nil {
		h.internal(c, "failed to load contact settings", err)
		return
	}
	settings.Address = strings.TrimSpace(body.Address)
	settings.UpdatedBy, _ = auth.GetUserID(c)
	settings.UpdatedAt = time.Now()
	if err := h.store.SaveContactSettings(ctx, settings); err != nil {
		h.internal(c, "failed to save contact settings", err)
		return
	}
	c.JSON(http.StatusOK, settings)
}

// ContactChangeRequest asks to change the public email or phone.
type ContactChangeRequest struct {
	Field string `json:"field" binding:"required"`
	Value string `json:"value" binding:"required"`
}

func normalizeContact(req ContactChangeRequest) (models.OTPPurpose, string, error) {
	value := strings.TrimSpace(req.Value)
	switch req.Field {
	case "email":
		addr, err := mail.ParseAddress(value)
		if err != nil || addr.Address != value {
			return "", "", &booking.ValidationError{Field: "value", Message: "is not a valid email address"}
		}
		return models.OTPContactEmail, strings.ToLower(value), nil
	case "phone":
		if !phonePattern.MatchString(value) {
			return "", "", &booking.ValidationError{Field: "value", Message: "is not a valid phone number"}
		}
		return models.OTPContactPhone, value, nil
	default:
		return "", "", &booking.ValidationError{Field: "field", Message: "must be email or phone"}
	}
}

// codeRecipient is where the code goes. A new email is proven by sending to
// it; a new phone is approved from the current contact inbox, or the admin's
// own address when none is set yet.
func codeRecipient(purpose models.OTPPurpose, newValue string, current *models.ContactSettings, adminEmail string) string {
	if purpose == models.OTPContactEmail {
		return newValue
	}
	if current.Email != "" {
		return current.Email
	}
	return adminEmail
}

// RequestContactChange handles POST /api/admin/contact/otp.
func (h *Handler) RequestContactChange(c *gin.Context) {
	ctx := c.Request.Context()
	id, _ := auth.GetIdentity(c)

	var req ContactChangeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		apierrors.BadRequest(c, "field and value are required", nil)
		return
	}
	purpose, value, err := normalizeContact(req)
	if err != nil {
		booking.RespondError(c, h.logger, err)
		return
	}
	current, err := h.store.GetContactSettings(ctx)
	if err != nil {
		h.internal(c, "failed to load contact settings", err)
		return
	}
	to := codeRecipient(purpose, value, current, id.Email)
	if to == "" {
		apierrors.Unprocessable(c, "no_recipient", "no email address to send the code to", nil)
		return
	}

	code, pending, err := h.codes.Issue(ctx, id.UID, purpose, value)
	var cooldown *otp.CooldownError
	if errors.As(err, &cooldown) {
		apierrors.AbortWithRateLimit(c, apierrors.TooManyRequests("otp", int(cooldown.RetryAfter.Seconds()+0.5)))
		return
	}
	if err != nil {
		h.internal(c, "failed to issue code", err)
		return
	}

	err = h.mailer.Send(ctx, email.Message{
		To:       []string{to},
		Template: email.TemplateOTPCode,
		Data: map[string]any{
			"Code":     code,
			"Field":    req.Field,
			"NewValue": value,
			"Minutes":  int(h.cfg.Booking.OTPTTL.Minutes()),
		},
	})
	if err != nil {
		h.logger.WithContext(ctx).Error("failed to send verification code", "error", err.Error())
		if err := h.codes.Discard(ctx, id.UID); err != nil {
			h.logger.WithContext(ctx).Error("failed to discard undelivered code", "error", err.Error())
		}
		apierrors.BadGateway(c, "could not send the verification code", nil)
		return
	}

	h.logger.WithContext(ctx).Info("contact change requested", "purpose", string(purpose), "admin_id", id.UID)
	c.JSON(http.StatusAccepted, gin.H{
		"sentTo":    maskEmail(to),
		"expiresAt": pending.ExpiresAt,
	})
}

// ConfirmContactChange handles POST /api/admin/contact/confirm.
func (h *Handler) ConfirmContactChange(c *gin.Context) {
	ctx := c.Request.Context()
	uid, _ := auth.GetUserID(c)

	var body struct {
		Code string `json:"code" binding:"required"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		apierrors.BadRequest(c, "code is required", nil)
		return
	}

	pending, err := h.codes.Verify(ctx, uid, strings.TrimSpace(body.Code))
	switch {
	case errors.Is(err, otp.ErrNoPending):
		apierrors.NotFound(c, "no change is waiting for confirmation", nil)
		return
	case errors.Is(err, otp.ErrExpired):
		apierrors.Unprocessable(c, "code_expired", "the code expired, request a new one", nil)
		return
	case errors.Is(err, otp.ErrTooManyAttempts):
		apierrors.Unprocessable(c, "too_many_attempts", "too many wrong codes, request a new one", nil)
		return
	case errors.Is(err, otp.ErrWrongCode):
		apierrors.Unprocessable(c, "wrong_code", "the code is not correct", nil)
		return
	case err != nil:
		h.internal(c, "failed to verify code", err)
		return
	}

	settings, err := h.store.GetContactSettings(ctx)
	if err != nil {
		h.internal(c, "failed to load contact settings", err)
		return
	}
	switch pending.Purpose {
	case models.OTPContactEmail:
		settings.Email = pending.NewValue
	case models.OTPContactPhone:
		settings.Phone = pending.NewValue
	}
	settings.UpdatedBy = uid
	settings.UpdatedAt = time.Now()
	if err := h.store.SaveContactSettings(ctx, settings); err != nil {
		h.internal(c, "failed to save contact settings", err)
		return
	}
	h.logger.WithContext(ctx).Info("contact settings changed", "purpose", string(pending.Purpose), "admin_id", uid)
	c.JSON(http.StatusOK, settings)
}

func maskEmail(addr string) string {
	at := strings.LastIndex(addr, "@")
	if at < 1 {
		return addr
	}
	return addr[:1] + strings.Repeat("*", at-1) + addr[at:]
}
