package rest

import (
	"net/http"
	"strconv"

	"github.com/KevinKickass/OpenMatrixCore/internal/types"
	"github.com/gin-gonic/gin"
)

// GET /api/v1/journal/events?limit=50
func (s *Server) listJournalEvents(c *gin.Context) {
	store := s.lm.Storage()
	if store == nil {
		c.JSON(http.StatusServiceUnavailable, types.NewErrorResponse("JOURNAL_503", "Journal disabled", nil))
		return
	}

	limit, err := strconv.Atoi(c.DefaultQuery("limit", "50"))
	if err != nil || limit < 1 || limit > 500 {
		c.JSON(http.StatusBadRequest, types.NewErrorResponse("JOURNAL_400", "limit must be between 1 and 500", c.Query("limit")))
		return
	}

	events, err := store.RecentEvents(c.Request.Context(), limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, types.NewErrorResponse("JOURNAL_500", "Failed to read journal", err.Error()))
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"events": events,
		"count":  len(events),
	})
}
