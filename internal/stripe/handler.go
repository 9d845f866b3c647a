package stripe

import (
	stderrors "errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/casaolivo/bnb-server/internal/errors"
	"github.com/casaolivo/bnb-server/internal/logger"
)

// Handler exposes the Stripe webhook endpoint.
type Handler struct {
	logger  *logger.Logger
	service *Service
}

func NewHandler(service *Service, logger *logger.Logger) *Handler {
	return &Handler{
		logger:  logger.WithComponent("stripe_handler"),
		service: service,
	}
}

// HandleWebhook handles POST /api/stripe/webhook. It is unauthenticated;
// the Stripe-Signature header is the credential.
func (h *Handler) HandleWebhook(c *gin.Context) {
	log := h.logger.WithContext(c.Request.Context())

	payload, err := io.ReadAll(io.LimitReader(c.Request.Body, 1<<16))
	if err != nil {
		log.Error("failed to read webhook payload", slog.String("error", err.Error()))
		errors.BadRequest(c, "invalid payload", nil)
		return
	}

	signature := c.GetHeader("Stripe-Signature")
	if signature == "" {
		log.Error("missing Stripe-Signature header")
		errors.BadRequest(c, "missing signature", nil)
		return
	}

	if err := h.service.HandleWebhook(c.Request.Context(), payload, signature); err != nil {
		if stderrors.Is(err, ErrInvalidSignature) {
			log.Warn("rejected webhook", slog.String("error", err.Error()))
			errors.BadRequest(c, "invalid signature", nil)
			return
		}
		// Stripe retries on 5xx.
		log.Error("webhook processing failed", slog.String("error", err.Error()))
		errors.Internal(c, "webhook processing failed", nil)
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "success"})
}
