package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/yungbote/pathpilot/internal/engine"
	"github.com/yungbote/pathpilot/internal/logger"
	"github.com/yungbote/pathpilot/internal/repos"
)

type LearnerHandler struct {
	log    *logger.Logger
	states repos.LearnerStateRepo
}

func NewLearnerHandler(log *logger.Logger, states repos.LearnerStateRepo) *LearnerHandler {
	return &LearnerHandler{
		log:    log.With("handler", "LearnerHandler"),
		states: states,
	}
}

type createLearnerRequest struct {
	// Style is a one-hot index into the four learning-style slots.
	Style             int     `json:"style"`
	SkillLevel        float64 `json:"skill_level"`
	TimeBudgetMinutes int     `json:"time_budget_minutes"`
}

// POST /api/learners
// Registers a learner with an empty mastery map and a context vector
// seeded from the intake profile.
func (h *LearnerHandler) Create(c *gin.Context) {
	var req createLearnerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid learner profile"})
		return
	}
	if req.Style < 0 || req.Style > 3 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "style must be in [0,3]"})
		return
	}
	if req.SkillLevel < 0 || req.SkillLevel > 1 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "skill_level must be in [0,1]"})
		return
	}
	if req.TimeBudgetMinutes <= 0 {
		req.TimeBudgetMinutes = 30
	}

	lc := engine.NewLearnerContext(uuid.New(), req.Style, req.SkillLevel, req.TimeBudgetMinutes)
	if err := h.states.Create(c.Request.Context(), lc); err != nil {
		h.log.Error("learner create failed", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not create learner"})
		return
	}
	c.JSON(http.StatusCreated, gin.H{
		"learner_id": lc.LearnerID,
		"created_at": time.Now().UTC().Format(time.RFC3339),
	})
}
