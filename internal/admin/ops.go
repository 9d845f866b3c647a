package admin

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/casaolivo/bnb-server/internal/channelsync"
)

// Conflicts handles GET /api/admin/conflicts, overlapping bookings from today on.
func (h *Handler) Conflicts(c *gin.Context) {
	conflicts, err := h.syncer.Conflicts(c.Request.Context())
	if err != nil {
		h.internal(c, "failed to compute conflicts", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"conflicts": conflicts})
}

// TriggerSync handles POST /api/admin/sync.
func (h *Handler) TriggerSync(c *gin.Context) {
	run, err := h.syncer.Run(c.Request.Context(), channelsync.TriggerAdmin)
	channelsync.RespondRun(c, h.logger, run, err)
}

// ListSyncRuns handles GET /api/admin/sync/runs?limit=.
func (h *Handler) ListSyncRuns(c *gin.Context) {
	limit, err := strconv.Atoi(c.DefaultQuery("limit", "20"))
	if err != nil || limit < 1 || limit > 100 {
		limit = 20
	}
	runs, err := h.store.ListSyncRuns(c.Request.Context(), limit)
	if err != nil {
		h.internal(c, "failed to list sync runs", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"runs": runs, "enabled": h.syncer.Enabled()})
}
