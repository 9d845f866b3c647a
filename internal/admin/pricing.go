package admin

import (
	"errors"
	"net/http"
	"strings"

	"cloud.google.com/go/civil"
	"github.com/gin-gonic/gin"

	"github.com/casaolivo/bnb-server/internal/booking"
	apierrors "github.com/casaolivo/bnb-server/internal/errors"
	"github.com/casaolivo/bnb-server/internal/models"
	"github.com/casaolivo/bnb-server/internal/pricing"
	"github.com/casaolivo/bnb-server/internal/storage"
)

// maxOverrideDays bounds one bulk override request.
const maxOverrideDays = 366

func validateSeason(s *models.Season) error {
	s.Name = strings.TrimSpace(s.Name)
	if s.Name == "" {
		return &booking.ValidationError{Field: "name", Message: "is required"}
	}
	if _, err := models.ParseMonthDay(s.StartMonthDay); err != nil {
		return &booking.ValidationError{Field: "startMonthDay", Message: err.Error()}
	}
	if _, err := models.ParseMonthDay(s.EndMonthDay); err != nil {
		return &booking.ValidationError{Field: "endMonthDay", Message: err.Error()}
	}
	if s.NightlyPrice <= 0 {
		return &booking.ValidationError{Field: "nightlyPrice", Message: "must be positive"}
	}
	if s.MinNights < 0 {
		return &booking.ValidationError{Field: "minNights", Message: "must not be negative"}
	}
	return nil
}

func validateSpecialPeriod(p *models.SpecialPeriod) error {
	p.Name = strings.TrimSpace(p.Name)
	switch {
	case p.Name == "":
		return &booking.ValidationError{Field: "name", Message: "is required"}
	case !p.StartDate.IsValid() || !p.EndDate.IsValid():
		return &booking.ValidationError{Field: "startDate", Message: "startDate and endDate are required"}
	case p.EndDate.Before(p.StartDate):
		return &booking.ValidationError{Field: "endDate", Message: "must not be before startDate"}
	case p.NightlyPrice < 0:
		return &booking.ValidationError{Field: "nightlyPrice", Message: "must not be negative"}
	case p.NightlyPrice == 0 && p.PercentAdjust == 0:
		return &booking.ValidationError{Field: "nightlyPrice", Message: "set a nightly price or a percent adjustment"}
	case p.PercentAdjust <= -100:
		return &booking.ValidationError{Field: "percentAdjust", Message: "must be above -100"}
	case p.MinNights < 0:
		return &booking.ValidationError{Field: "minNights", Message: "must not be negative"}
	}
	return nil
}

func (h *Handler) respondDeleted(c *gin.Context, what string, err error) {
	if errors.Is(err, storage.ErrNotFound) {
		apierrors.NotFound(c, what+" not found", nil)
		return
	}
	if err != nil {
		h.internal(c, "failed to delete "+what, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// ListPricing handles GET /api/admin/pricing: seasons and special periods.
func (h *Handler) ListPricing(c *gin.Context) {
	ctx := c.Request.Context()
	seasons, err := h.store.ListSeasons(ctx)
	if err != nil {
		h.internal(c, "failed to list seasons", err)
		return
	}
	periods, err := h.store.ListSpecialPeriods(ctx)
	if err != nil {
		h.internal(c, "failed to list special periods", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"seasons": seasons, "specialPeriods": periods})
}

// SaveSeason handles POST /api/admin/seasons and PUT /api/admin/seasons/:id.
func (h *Handler) SaveSeason(c *gin.Context) {
	var season models.Season
	if err := c.ShouldBindJSON(&season); err != nil {
		apierrors.BadRequest(c, "invalid season", nil)
		return
	}
	season.ID = c.Param("id")
	if err := validateSeason(&season); err != nil {
		booking.RespondError(c, h.logger, err)
		return
	}
	if err := h.store.SaveSeason(c.Request.Context(), &season); err != nil {
		h.internal(c, "failed to save season", err)
		return
	}
	c.JSON(http.StatusOK, season)
}

// DeleteSeason handles DELETE /api/admin/seasons/:id.
func (h *Handler) DeleteSeason(c *gin.Context) {
	h.respondDeleted(c, "season", h.store.DeleteSeason(c.Request.Context(), c.Param("id")))
}

// SaveSpecialPeriod handles POST /api/admin/special-periods and PUT /api/admin/special-periods/:id.
func (h *Handler) SaveSpecialPeriod(c *gin.Context) {
	var period models.SpecialPeriod
	if err := c.ShouldBindJSON(&period); err != nil {
		apierrors.BadRequest(c, "invalid special period", nil)
		return
	}
	period.ID = c.Param("id")
	if err := validateSpecialPeriod(&period); err != nil {
		booking.RespondError(c, h.logger, err)
		return
	}
	if err := h.store.SaveSpecialPeriod(c.Request.Context(), &period); err != nil {
		h.internal(c, "failed to save special period", err)
		return
	}
	c.JSON(http.StatusOK, period)
}

// DeleteSpecialPeriod handles DELETE /api/admin/special-periods/:id.
func (h *Handler) DeleteSpecialPeriod(c *gin.Context) {
	h.respondDeleted(c, "special period", h.store.DeleteSpecialPeriod(c.Request.Context(), c.Param("id")))
}

// dateRange reads required from/to query dates with to exclusive.
func dateRange(c *gin.Context) (civil.Date, civil.Date, bool) {
	from, err := civil.ParseDate(c.Query("from"))
	if err != nil {
		apierrors.BadRequest(c, "from must be YYYY-MM-DD", map[string]interface{}{"field": "from"})
		return civil.Date{}, civil.Date{}, false
	}
	to, err := civil.ParseDate(c.Query("to"))
	if err != nil || !from.Before(to) {
		apierrors.BadRequest(c, "to must be a date after from", map[string]interface{}{"field": "to"})
		return civil.Date{}, civil.Date{}, false
	}
	if to.DaysSince(from) > maxOverrideDays {
		apierrors.BadRequest(c, "range is too long", map[string]interface{}{"maxDays": maxOverrideDays})
		return civil.Date{}, civil.Date{}, false
	}
	return from, to, true
}

// ListOverrides handles GET /api/admin/overrides?room=&from=&to=.
func (h *Handler) ListOverrides(c *gin.Context) {
	from, to, ok := dateRange(c)
	if !ok {
		return
	}
	list, err := h.store.ListOverrides(c.Request.Context(), c.Query("room"), from, to)
	if err != nil {
		h.internal(c, "failed to list overrides", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"overrides": list})
}

// OverrideRequest pins every date in [From, To] for one room.
type OverrideRequest struct {
	RoomID    string     `json:"roomId" binding:"required"`
	From      civil.Date `json:"from"`
	To        civil.Date `json:"to"`
	Price     *int64     `json:"price"`
	Closed    bool       `json:"closed"`
	MinNights int        `json:"minNights"`
}

// SaveOverrides handles PUT /api/admin/overrides. A date that already has an
// override is replaced rather than stacked.
func (h *Handler) SaveOverrides(c *gin.Context) {
	ctx := c.Request.Context()
	var req OverrideRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		apierrors.BadRequest(c, "invalid override", nil)
		return
	}
	if req.To.IsZero() {
		req.To = req.From
	}
	switch {
	case !req.From.IsValid() || req.To.Before(req.From):
		booking.RespondError(c, h.logger, &booking.ValidationError{Field: "from", Message: "from and to must be dates with to not before from"})
		return
	case req.To.DaysSince(req.From) >= maxOverrideDays:
		booking.RespondError(c, h.logger, &booking.ValidationError{Field: "to", Message: "range is too long"})
		return
	case req.Price != nil && *req.Price <= 0:
		booking.RespondError(c, h.logger, &booking.ValidationError{Field: "price", Message: "must be positive"})
		return
	case req.Price == nil && !req.Closed && req.MinNights == 0:
		booking.RespondError(c, h.logger, &booking.ValidationError{Field: "price", Message: "set a price, closed or minNights"})
		return
	case req.MinNights < 0:
		booking.RespondError(c, h.logger, &booking.ValidationError{Field: "minNights", Message: "must not be negative"})
		return
	}
	if _, err := h.store.GetRoom(ctx, req.RoomID); err != nil {
		booking.RespondError(c, h.logger, booking.ErrRoomNotFound)
		return
	}

	existing, err := h.store.ListOverrides(ctx, req.RoomID, req.From, req.To.AddDays(1))
	if err != nil {
		h.internal(c, "failed to list overrides", err)
		return
	}
	byDate := make(map[civil.Date]string, len(existing))
	for _, o := range existing {
		byDate[o.Date] = o.ID
	}

	saved := make([]models.PriceOverride, 0, req.To.DaysSince(req.From)+1)
	for d := req.From; !d.After(req.To); d = d.AddDays(1) {
		o := models.PriceOverride{
			ID:        byDate[d],
			RoomID:    req.RoomID,
			Date:      d,
			Price:     req.Price,
			Closed:    req.Closed,
			MinNights: req.MinNights,
		}
		if err := h.store.SaveOverride(ctx, &o); err != nil {
			h.internal(c, "failed to save override", err)
			return
		}
		saved = append(saved, o)
	}
	h.logger.WithContext(ctx).Info("price overrides saved",
		"room_id", req.RoomID,
		"from", req.From.String(),
		"to", req.To.String(),
		"count", len(saved))
	c.JSON(http.StatusOK, gin.H{"overrides": saved})
}

// DeleteOverride handles DELETE /api/admin/overrides/:id.
func (h *Handler) DeleteOverride(c *gin.Context) {
	h.respondDeleted(c, "override", h.store.DeleteOverride(c.Request.Context(), c.Param("id")))
}

// PreviewPricing handles GET /api/admin/rooms/:id/pricing?from=&to=, the
// nightly prices the rules produce with the tier that set each one.
func (h *Handler) PreviewPricing(c *gin.Context) {
	ctx := c.Request.Context()
	from, to, ok := dateRange(c)
	if !ok {
		return
	}
	room, err := h.store.GetRoom(ctx, c.Param("id"))
	if err != nil {
		booking.RespondError(c, h.logger, booking.ErrRoomNotFound)
		return
	}
	rules, err := storage.LoadRules(ctx, h.store, room.ID, from, to)
	if err != nil {
		h.internal(c, "failed to load pricing rules", err)
		return
	}
	nights := pricing.Range(*room, from, to, rules)
	c.JSON(http.StatusOK, gin.H{"roomId": room.ID, "nights": nights, "fromPrice": pricing.FromPrice(nights)})
}
