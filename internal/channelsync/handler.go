package channelsync

import (
	"crypto/subtle"
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	apierrors "github.com/casaolivo/bnb-server/internal/errors"
	"github.com/casaolivo/bnb-server/internal/logger"
	"github.com/casaolivo/bnb-server/internal/models"
	"github.com/casaolivo/bnb-server/internal/smoobu"
)

// Handler serves the cron endpoints and the Smoobu webhook.
type Handler struct {
	syncer       *Syncer
	holds        HoldExpirer
	cronSecret   string
	webhookToken string
	logger       *logger.Logger
}

func NewHandler(syncer *Syncer, holds HoldExpirer, cronSecret, webhookToken string, log *logger.Logger) *Handler {
	return &Handler{
		syncer:       syncer,
		holds:        holds,
		cronSecret:   cronSecret,
		webhookToken: webhookToken,
		logger:       log.WithComponent("channelsync-api"),
	}
}

func secretEqual(got, want string) bool {
	return want != "" && subtle.ConstantTimeCompare([]byte(got), []byte(want)) == 1
}

// RequireCronSecret admits requests carrying CRON_SECRET as a Bearer token
// or in X-Cron-Secret. With no secret configured every request is refused.
func (h *Handler) RequireCronSecret() gin.HandlerFunc {
	return func(c *gin.Context) {
		got := c.GetHeader("X-Cron-Secret")
		if got == "" {
			got = strings.TrimPrefix(c.GetHeader("Authorization"), "Bearer ")
		}
		if !secretEqual(got, h.cronSecret) {
			h.logger.WithContext(c.Request.Context()).Warn("rejected cron request", "path", c.FullPath())
			apierrors.AbortWithForbidden(c, apierrors.InvalidCronSecret())
			return
		}
		c.Next()
	}
}

// RunSync handles POST /api/cron/sync.
func (h *Handler) RunSync(c *gin.Context) {
	run, err := h.syncer.Run(c.Request.Context(), TriggerCron)
	RespondRun(c, h.logger, run, err)
}

// RespondRun writes the result of a manual or cron sync.
func RespondRun(c *gin.Context, log *logger.Logger, run *models.SyncRun, err error) {
	switch {
	case errors.Is(err, ErrSyncRunning):
		apierrors.Conflict(c, "sync_running", err.Error(), nil)
	case errors.Is(err, smoobu.ErrDisabled):
		apierrors.Unprocessable(c, "sync_disabled", "Smoobu is not configured", nil)
	case err != nil && run == nil:
		log.WithContext(c.Request.Context()).Error("sync failed", "error", err.Error())
		apierrors.BadGateway(c, "channel sync failed", nil)
	default:
		// A run that failed for some rooms is still reported.
		c.JSON(http.StatusOK, gin.H{"run": run})
	}
}

// ExpireHolds handles POST /api/cron/expire-holds.
func (h *Handler) ExpireHolds(c *gin.Context) {
	n, err := h.holds.ExpireHolds(c.Request.Context())
	if err != nil {
		h.logger.WithContext(c.Request.Context()).Error("hold expiry failed", "error", err.Error())
		apierrors.Internal(c, "hold expiry failed", nil)
		return
	}
	c.JSON(http.StatusOK, gin.H{"expired": n})
}

// SmoobuWebhook handles POST /api/webhooks/smoobu?token=.
func (h *Handler) SmoobuWebhook(c *gin.Context) {
	ctx := c.Request.Context()
	log := h.logger.WithContext(ctx)

	if !secretEqual(c.Query("token"), h.webhookToken) {
		log.Warn("rejected smoobu webhook")
		apierrors.Unauthorized(c, "invalid webhook token", nil)
		return
	}

	var event smoobu.WebhookEvent
	if err := c.ShouldBindJSON(&event); err != nil {
		apierrors.BadRequest(c, "invalid webhook payload", nil)
		return
	}

	switch event.Action {
	case smoobu.ActionNewReservation, smoobu.ActionUpdateReservation,
		smoobu.ActionCancelReservation, smoobu.ActionDeleteReservation:
	default:
		log.Debug("ignoring smoobu webhook", "action", event.Action)
		c.JSON(http.StatusOK, gin.H{"status": "ignored"})
		return
	}

	r, err := event.Reservation()
	if err != nil {
		apierrors.BadRequest(c, "invalid reservation payload", nil)
		return
	}
	if err := h.syncer.ApplyWebhook(ctx, event.Action, r); err != nil {
		log.Error("failed to apply smoobu webhook", "action", event.Action, "reservation_id", r.ID, "error", err.Error())
		apierrors.Internal(c, "failed to apply reservation", nil)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
