package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/yungbote/pathpilot/internal/engine"
	"github.com/yungbote/pathpilot/internal/logger"
	errs "github.com/yungbote/pathpilot/internal/pkg/errors"
)

type PlanHandler struct {
	log *logger.Logger
	svc *engine.PlanningService
}

func NewPlanHandler(log *logger.Logger, svc *engine.PlanningService) *PlanHandler {
	return &PlanHandler{
		log: log.With("handler", "PlanHandler"),
		svc: svc,
	}
}

type planRequest struct {
	LearnerID string `json:"learner_id" binding:"required"`
	Goal      string `json:"goal"`
}

// POST /api/plan
// Returns the next learning path for a learner. Planning degrades through
// the bandit fallback down to an explicit no-content result; the only
// client-visible failures are an unknown learner and internal errors.
func (h *PlanHandler) Plan(c *gin.Context) {
	var req planRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "learner_id is required"})
		return
	}
	learnerID, err := uuid.Parse(req.LearnerID)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "learner_id must be a uuid"})
		return
	}

	resp, err := h.svc.Plan(c.Request.Context(), learnerID, req.Goal)
	if err != nil {
		if errors.Is(err, errs.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "learner not found"})
			return
		}
		h.log.Error("plan request failed", "learner_id", learnerID, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "planning failed"})
		return
	}
	c.JSON(http.StatusOK, resp)
}
