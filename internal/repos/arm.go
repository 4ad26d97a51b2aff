package repos

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/yungbote/pathpilot/internal/logger"
	errs "github.com/yungbote/pathpilot/internal/pkg/errors"
	"github.com/yungbote/pathpilot/internal/types"
)

type ArmRepo interface {
	LoadArm(ctx context.Context, conceptKey string) (*types.Arm, error)
	StoreArm(ctx context.Context, arm *types.Arm) error
}

type armRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewArmRepo(db *gorm.DB, baseLog *logger.Logger) ArmRepo {
	return &armRepo{
		db:  db,
		log: baseLog.With("repo", "ArmRepo"),
	}
}

func (r *armRepo) LoadArm(ctx context.Context, conceptKey string) (*types.Arm, error) {
	if conceptKey == "" {
		return nil, fmt.Errorf("load arm: %w", errs.ErrInvalidArgument)
	}
	var row types.ConceptArm
	err := r.db.WithContext(ctx).
		Where("concept_key = ?", conceptKey).
		Limit(1).
		Find(&row).Error
	if err != nil {
		return nil, err
	}
	if row.ID == uuid.Nil {
		return nil, fmt.Errorf("arm %q: %w", conceptKey, errs.ErrNotFound)
	}

	arm := &types.Arm{
		Key:         row.ConceptKey,
		Dim:         row.Dim,
		Pulls:       row.Pulls,
		TotalReward: row.TotalReward,
	}
	if err := json.Unmarshal(row.A, &arm.A); err != nil {
		return nil, fmt.Errorf("decode arm A: %w", err)
	}
	if err := json.Unmarshal(row.B, &arm.B); err != nil {
		return nil, fmt.Errorf("decode arm b: %w", err)
	}
	return arm, nil
}

// StoreArm writes the whole (A, b, pulls, total_reward) tuple as one
// upsert, so a reader can never observe A updated without b.
func (r *armRepo) StoreArm(ctx context.Context, arm *types.Arm) error {
	if arm == nil || arm.Key == "" {
		return fmt.Errorf("store arm: %w", errs.ErrInvalidArgument)
	}
	a, err := json.Marshal(arm.A)
	if err != nil {
		return fmt.Errorf("encode arm A: %w", err)
	}
	b, err := json.Marshal(arm.B)
	if err != nil {
		return fmt.Errorf("encode arm b: %w", err)
	}

	now := time.Now().UTC()
	row := &types.ConceptArm{
		ID:          uuid.New(),
		ConceptKey:  arm.Key,
		Dim:         arm.Dim,
		A:           a,
		B:           b,
		Pulls:       arm.Pulls,
		TotalReward: arm.TotalReward,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "concept_key"}},
			DoUpdates: clause.AssignmentColumns([]string{
				"dim", "a", "b", "pulls", "total_reward", "updated_at",
			}),
		}).
		Create(row).Error
}
