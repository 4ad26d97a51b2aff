package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/yungbote/pathpilot/internal/engine"
	"github.com/yungbote/pathpilot/internal/logger"
	errs "github.com/yungbote/pathpilot/internal/pkg/errors"
	"github.com/yungbote/pathpilot/internal/types"
)

type OutcomeHandler struct {
	log   *logger.Logger
	coord *engine.FeedbackCoordinator
}

func NewOutcomeHandler(log *logger.Logger, coord *engine.FeedbackCoordinator) *OutcomeHandler {
	return &OutcomeHandler{
		log:   log.With("handler", "OutcomeHandler"),
		coord: coord,
	}
}

// POST /api/outcome
// Direct (synchronous) ingestion of a feedback event; the same events also
// arrive asynchronously on the outcome channel. Both paths are idempotent
// by event id.
func (h *OutcomeHandler) Outcome(c *gin.Context) {
	var ev types.FeedbackEvent
	if err := c.ShouldBindJSON(&ev); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid feedback event"})
		return
	}

	err := h.coord.OnOutcome(c.Request.Context(), ev)
	switch {
	case err == nil:
		c.JSON(http.StatusOK, gin.H{"status": "applied"})
	case errors.Is(err, errs.ErrInvalidArgument):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, errs.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "learner not found"})
	case errors.Is(err, errs.ErrUnavailable):
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "learner busy, retry"})
	case errors.Is(err, errs.ErrConcurrencyExhausted):
		c.JSON(http.StatusConflict, gin.H{"error": "state contention, retry"})
	default:
		h.log.Error("outcome ingestion failed", "event_id", ev.EventID, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "feedback failed"})
	}
}
