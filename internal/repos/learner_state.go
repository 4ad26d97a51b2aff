package repos

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/yungbote/pathpilot/internal/logger"
	errs "github.com/yungbote/pathpilot/internal/pkg/errors"
	"github.com/yungbote/pathpilot/internal/types"
)

type LearnerStateRepo interface {
	Create(ctx context.Context, lc *types.LearnerContext) error
	Load(ctx context.Context, learnerID uuid.UUID) (*types.LearnerContext, error)
	CompareAndSwap(ctx context.Context, learnerID uuid.UUID, expectedVersion int64, next *types.LearnerContext) error
}

type learnerStateRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewLearnerStateRepo(db *gorm.DB, baseLog *logger.Logger) LearnerStateRepo {
	return &learnerStateRepo{
		db:  db,
		log: baseLog.With("repo", "LearnerStateRepo"),
	}
}

func (r *learnerStateRepo) Create(ctx context.Context, lc *types.LearnerContext) error {
	if lc == nil || lc.LearnerID == uuid.Nil {
		return fmt.Errorf("create learner state: %w", errs.ErrInvalidArgument)
	}
	row, err := encodeState(lc)
	if err != nil {
		return err
	}
	row.ID = uuid.New()
	row.Version = 0
	now := time.Now().UTC()
	row.CreatedAt = now
	row.UpdatedAt = now
	return r.db.WithContext(ctx).Create(row).Error
}

func (r *learnerStateRepo) Load(ctx context.Context, learnerID uuid.UUID) (*types.LearnerContext, error) {
	if learnerID == uuid.Nil {
		return nil, fmt.Errorf("load learner state: %w", errs.ErrInvalidArgument)
	}
	var row types.LearnerState
	err := r.db.WithContext(ctx).
		Where("learner_id = ?", learnerID).
		Limit(1).
		Find(&row).Error
	if err != nil {
		return nil, err
	}
	if row.ID == uuid.Nil {
		return nil, fmt.Errorf("learner %s: %w", learnerID, errs.ErrNotFound)
	}
	return decodeState(&row)
}

// CompareAndSwap commits next with version expectedVersion+1 iff the
// stored row still carries expectedVersion. The guarded UPDATE makes the
// version check and bump a single statement, so a successful swap can
// never commit a version <= the one already stored.
func (r *learnerStateRepo) CompareAndSwap(ctx context.Context, learnerID uuid.UUID, expectedVersion int64, next *types.LearnerContext) error {
	if next == nil || learnerID == uuid.Nil {
		return fmt.Errorf("cas learner state: %w", errs.ErrInvalidArgument)
	}
	row, err := encodeState(next)
	if err != nil {
		return err
	}

	res := r.db.WithContext(ctx).
		Model(&types.LearnerState{}).
		Where("learner_id = ? AND version = ?", learnerID, expectedVersion).
		Updates(map[string]interface{}{
			"mastery":              row.Mastery,
			"last_seen":            row.LastSeen,
			"context_vector":       row.ContextVector,
			"schema_version":       row.SchemaVersion,
			"time_budget_minutes":  row.TimeBudgetMinutes,
			"last_outcome_concept": row.LastOutcomeConcept,
			"last_outcome_score":   row.LastOutcomeScore,
			"version":              expectedVersion + 1,
			"updated_at":           time.Now().UTC(),
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		// Distinguish a missing learner from a stale version.
		var count int64
		if err := r.db.WithContext(ctx).
			Model(&types.LearnerState{}).
			Where("learner_id = ?", learnerID).
			Count(&count).Error; err != nil {
			return err
		}
		if count == 0 {
			return fmt.Errorf("learner %s: %w", learnerID, errs.ErrNotFound)
		}
		return fmt.Errorf("learner %s at version %d: %w", learnerID, expectedVersion, errs.ErrVersionConflict)
	}
	return nil
}

func encodeState(lc *types.LearnerContext) (*types.LearnerState, error) {
	mastery, err := json.Marshal(lc.Mastery)
	if err != nil {
		return nil, fmt.Errorf("encode mastery: %w", err)
	}
	lastSeen, err := json.Marshal(lc.LastSeen)
	if err != nil {
		return nil, fmt.Errorf("encode last_seen: %w", err)
	}
	vector, err := json.Marshal(lc.Vector)
	if err != nil {
		return nil, fmt.Errorf("encode context vector: %w", err)
	}
	return &types.LearnerState{
		LearnerID:          lc.LearnerID,
		Mastery:            mastery,
		LastSeen:           lastSeen,
		ContextVector:      vector,
		SchemaVersion:      lc.SchemaVersion,
		TimeBudgetMinutes:  lc.TimeBudgetMinutes,
		LastOutcomeConcept: lc.LastOutcomeConcept,
		LastOutcomeScore:   lc.LastOutcomeScore,
		Version:            lc.Version,
	}, nil
}

func decodeState(row *types.LearnerState) (*types.LearnerContext, error) {
	lc := &types.LearnerContext{
		LearnerID:          row.LearnerID,
		Mastery:            map[string]float64{},
		LastSeen:           map[string]time.Time{},
		SchemaVersion:      row.SchemaVersion,
		TimeBudgetMinutes:  row.TimeBudgetMinutes,
		LastOutcomeConcept: row.LastOutcomeConcept,
		LastOutcomeScore:   row.LastOutcomeScore,
		Version:            row.Version,
	}
	if len(row.Mastery) > 0 {
		if err := json.Unmarshal(row.Mastery, &lc.Mastery); err != nil {
			return nil, fmt.Errorf("decode mastery: %w", err)
		}
	}
	if len(row.LastSeen) > 0 {
		if err := json.Unmarshal(row.LastSeen, &lc.LastSeen); err != nil {
			return nil, fmt.Errorf("decode last_seen: %w", err)
		}
	}
	if len(row.ContextVector) > 0 {
		if err := json.Unmarshal(row.ContextVector, &lc.Vector); err != nil {
			return nil, fmt.Errorf("decode context vector: %w", err)
		}
	}
	if len(lc.Vector) != 0 && len(lc.Vector) != types.ContextDim {
		return nil, errors.New("stored context vector has wrong dimensionality")
	}
	return lc, nil
}
