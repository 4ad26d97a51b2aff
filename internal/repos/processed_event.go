package repos

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/yungbote/pathpilot/internal/logger"
	errs "github.com/yungbote/pathpilot/internal/pkg/errors"
	"github.com/yungbote/pathpilot/internal/types"
)

type ProcessedEventRepo interface {
	IsProcessed(ctx context.Context, eventID uuid.UUID) (bool, error)
	MarkProcessed(ctx context.Context, eventID uuid.UUID) error
}

type processedEventRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewProcessedEventRepo(db *gorm.DB, baseLog *logger.Logger) ProcessedEventRepo {
	return &processedEventRepo{
		db:  db,
		log: baseLog.With("repo", "ProcessedEventRepo"),
	}
}

func (r *processedEventRepo) IsProcessed(ctx context.Context, eventID uuid.UUID) (bool, error) {
	if eventID == uuid.Nil {
		return false, fmt.Errorf("is processed: %w", errs.ErrInvalidArgument)
	}
	var count int64
	err := r.db.WithContext(ctx).
		Model(&types.ProcessedEvent{}).
		Where("event_id = ?", eventID).
		Count(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

func (r *processedEventRepo) MarkProcessed(ctx context.Context, eventID uuid.UUID) error {
	if eventID == uuid.Nil {
		return fmt.Errorf("mark processed: %w", errs.ErrInvalidArgument)
	}
	row := &types.ProcessedEvent{
		EventID:     eventID,
		ProcessedAt: time.Now().UTC(),
	}
	// Re-marking an already-processed id is a no-op.
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(row).Error
}
