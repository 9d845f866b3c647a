package reviews

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/casaolivo/bnb-server/internal/auth"
	apierrors "github.com/casaolivo/bnb-server/internal/errors"
	"github.com/casaolivo/bnb-server/internal/logger"
	"github.com/casaolivo/bnb-server/internal/models"
	"github.com/casaolivo/bnb-server/internal/storage"
)

type Handler struct {
	service *Service
	logger  *logger.Logger
}

func NewHandler(service *Service, log *logger.Logger) *Handler {
	return &Handler{service: service, logger: log.WithComponent("reviews-api")}
}

func (h *Handler) respondError(c *gin.Context, err error) {
	var invalid *InvalidError
	switch {
	case errors.As(err, &invalid):
		apierrors.BadRequest(c, invalid.Message, map[string]interface{}{"field": invalid.Field})
	case errors.Is(err, ErrReviewNotFound), errors.Is(err, ErrBookingNotFound):
		apierrors.NotFound(c, err.Error(), nil)
	case errors.Is(err, ErrNotOwner), errors.Is(err, ErrStayNotFinished), errors.Is(err, ErrNotReviewable):
		apierrors.Forbidden(c, apierrors.ReviewNotAllowed(err.Error()))
	case errors.Is(err, ErrAlreadyReviewed):
		apierrors.Conflict(c, "already_reviewed", err.Error(), nil)
	default:
		h.logger.WithContext(c.Request.Context()).Error("review request failed", "error", err.Error())
		apierrors.Internal(c, "failed to process review", nil)
	}
}

// Published handles GET /api/reviews?room=.
func (h *Handler) Published(c *gin.Context) {
	list, summary, err := h.service.Published(c.Request.Context(), c.Query("room"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"reviews": list, "summary": summary})
}

// Submit handles POST /api/account/reviews behind RequireUser.
func (h *Handler) Submit(c *gin.Context) {
	var req SubmitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		apierrors.BadRequest(c, "bookingId, rating and body are required", nil)
		return
	}
	id, _ := auth.GetIdentity(c)
	author := Author{UserID: id.UID, Email: id.Email, Name: id.Name}
	if !id.EmailVerified {
		author.Email = ""
	}

	review, err := h.service.Submit(c.Request.Context(), author, req)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, review)
}

// List handles GET /api/admin/reviews?status=&room=.
func (h *Handler) List(c *gin.Context) {
	list, err := h.service.List(c.Request.Context(), storage.ReviewFilter{
		RoomID: c.Query("room"),
		Status: models.ReviewStatus(c.Query("status")),
	})
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"reviews": list})
}

// Moderate handles PATCH /api/admin/reviews/:id.
func (h *Handler) Moderate(c *gin.Context) {
	var body struct {
		Status models.ReviewStatus `json:"status" binding:"required"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		apierrors.BadRequest(c, "status is required", nil)
		return
	}
	review, err := h.service.Moderate(c.Request.Context(), c.Param("id"), body.Status)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, review)
}

// Import handles POST /api/admin/reviews/import.
func (h *Handler) Import(c *gin.Context) {
	var req ImportRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		apierrors.BadRequest(c, "roomId, authorName, rating, body and source are required", nil)
		return
	}
	review, err := h.service.Import(c.Request.Context(), req)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, review)
}
