package repository

import (
	"context"
	"errors"
	"time"

	"crmboard/internal/board/domain"
	"crmboard/internal/board/dto"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// stageRepository implements StageRepository interface
type stageRepository struct {
	db *gorm.DB
}

// NewStageRepository creates a new instance of stageRepository
func NewStageRepository(db *gorm.DB) StageRepository {
	return &stageRepository{
		db: db,
	}
}

func (r *stageRepository) scoped(ctx context.Context, tenantID string, boardType domain.BoardType) *gorm.DB {
	return r.db.WithContext(ctx).Where("tenant_id = ? AND board_type = ?", tenantID, boardType)
}

func (r *stageRepository) ListStages(ctx context.Context, tenantID string, boardType domain.BoardType) ([]*domain.Stage, error) {
	var stages []*domain.Stage
	err := r.scoped(ctx, tenantID, boardType).Order("display_order ASC").Find(&stages).Error
	if err != nil {
		return nil, err
	}
	return stages, nil
}

func (r *stageRepository) GetStage(ctx context.Context, tenantID string, boardType domain.BoardType, stageID string) (*domain.Stage, error) {
	var stage domain.Stage
	err := r.scoped(ctx, tenantID, boardType).Where("id = ?", stageID).First(&stage).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &stage, nil
}

func (r *stageRepository) CreateStage(ctx context.Context, stage *domain.Stage) error {
	if stage.ID == "" {
		stage.ID = uuid.New().String()
	}
	stage.CreatedAt = time.Now().UTC()
	stage.UpdatedAt = stage.CreatedAt
	return r.db.WithContext(ctx).Create(stage).Error
}

// lockBoard takes row locks on every stage of the board, so order changes run one at a time
func lockBoard(tx *gorm.DB, tenantID string, boardType domain.BoardType) ([]*domain.Stage, error) {
	var stages []*domain.Stage
	err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("tenant_id = ? AND board_type = ?", tenantID, boardType).
		Find(&stages).Error
	return stages, err
}

func (r *stageRepository) UpdateStage(ctx context.Context, tenantID string, boardType domain.BoardType, stageID string, patch dto.StagePatch) (*domain.Stage, error) {
	cols := patch.Columns()
	cols["updated_at"] = time.Now().UTC()

	var stage domain.Stage
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		stages, err := lockBoard(tx, tenantID, boardType)
		if err != nil {
			return err
		}
		if patch.Order != nil {
			for _, s := range stages {
				if s.ID != stageID && s.Order == *patch.Order {
					return ErrOrderTaken
				}
			}
		}
		res := tx.Model(&domain.Stage{}).
			Where("tenant_id = ? AND board_type = ? AND id = ?", tenantID, boardType, stageID).
			Updates(cols)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return gorm.ErrRecordNotFound
		}
		return tx.Where("tenant_id = ? AND board_type = ? AND id = ?", tenantID, boardType, stageID).First(&stage).Error
	})
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &stage, nil
}

func (r *stageRepository) UpdateStageOrders(ctx context.Context, tenantID string, boardType domain.BoardType, orders map[string]int) error {
	now := time.Now().UTC()
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if _, err := lockBoard(tx, tenantID, boardType); err != nil {
			return err
		}
		for stageID, order := range orders {
			err := tx.Model(&domain.Stage{}).
				Where("tenant_id = ? AND board_type = ? AND id = ?", tenantID, boardType, stageID).
				Updates(map[string]interface{}{"display_order": order, "updated_at": now}).Error
			if err != nil {
				return err
			}
		}
		return nil
	})
}

func (r *stageRepository) DeleteStage(ctx context.Context, tenantID string, boardType domain.BoardType, stageID, targetStageID string) ([]*domain.Card, error) {
	var moved []*domain.Card
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		scope := func() *gorm.DB {
			return tx.Where("tenant_id = ? AND board_type = ?", tenantID, boardType)
		}
		if targetStageID != "" {
			var ids []string
			if err := scope().Model(&domain.Card{}).Where("stage_id = ?", stageID).Pluck("id", &ids).Error; err != nil {
				return err
			}
			if len(ids) > 0 {
				err := scope().Model(&domain.Card{}).Where("id IN ?", ids).
					Updates(map[string]interface{}{"stage_id": targetStageID, "updated_at": time.Now().UTC()}).Error
				if err != nil {
					return err
				}
				if err := scope().Where("id IN ?", ids).Order("created_at ASC").Find(&moved).Error; err != nil {
					return err
				}
			}
		}
		return scope().Where("id = ?", stageID).Delete(&domain.Stage{}).Error
	})
	if err != nil {
		return nil, err
	}
	return moved, nil
}
