package repository

import (
	"context"
	"errors"
	"time"

	"crmboard/internal/board/domain"
	"crmboard/internal/board/dto"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type cardRepository struct {
	db *gorm.DB
}

func NewCardRepository(db *gorm.DB) CardRepository {
	return &cardRepository{db: db}
}

func (r *cardRepository) scoped(ctx context.Context, tenantID string, boardType domain.BoardType) *gorm.DB {
	return r.db.WithContext(ctx).Where("tenant_id = ? AND board_type = ?", tenantID, boardType)
}

func (r *cardRepository) ListCards(ctx context.Context, tenantID string, boardType domain.BoardType) ([]*domain.Card, error) {
	var cards []*domain.Card
	err := r.scoped(ctx, tenantID, boardType).Order("created_at ASC").Find(&cards).Error
	if err != nil {
		return nil, err
	}
	return cards, nil
}

func (r *cardRepository) GetCard(ctx context.Context, tenantID string, boardType domain.BoardType, cardID string) (*domain.Card, error) {
	var card domain.Card
	err := r.scoped(ctx, tenantID, boardType).Where("id = ?", cardID).First(&card).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &card, nil
}

func (r *cardRepository) CountByStage(ctx context.Context, tenantID string, boardType domain.BoardType, stageID string) (int64, error) {
	var count int64
	err := r.scoped(ctx, tenantID, boardType).Model(&domain.Card{}).Where("stage_id = ?", stageID).Count(&count).Error
	return count, err
}

func (r *cardRepository) CreateCard(ctx context.Context, card *domain.Card) error {
	if card.ID == "" {
		card.ID = uuid.New().String()
	}
	card.CreatedAt = time.Now().UTC()
	card.UpdatedAt = card.CreatedAt
	return r.db.WithContext(ctx).Create(card).Error
}

func (r *cardRepository) UpdateCard(ctx context.Context, tenantID string, boardType domain.BoardType, cardID string, patch dto.CardPatch) (*domain.Card, error) {
	cols := patch.Columns()
	cols["updated_at"] = time.Now().UTC()

	var card domain.Card
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&domain.Card{}).
			Where("tenant_id = ? AND board_type = ? AND id = ?", tenantID, boardType, cardID).
			Updates(cols)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return gorm.ErrRecordNotFound
		}
		return tx.Where("tenant_id = ? AND board_type = ? AND id = ?", tenantID, boardType, cardID).First(&card).Error
	})
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &card, nil
}

// MoveCard updates only the stage of the card, as a drag and drop does
func (r *cardRepository) MoveCard(ctx context.Context, card *domain.Card, history *domain.CardHistory) error {
	card.UpdatedAt = time.Now().UTC()
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		err := tx.Model(&domain.Card{}).
			Where("tenant_id = ? AND board_type = ? AND id = ?", card.TenantID, card.BoardType, card.ID).
			Updates(map[string]interface{}{"stage_id": card.StageID, "updated_at": card.UpdatedAt}).Error
		if err != nil {
			return err
		}
		if history.ID == "" {
			history.ID = uuid.New().String()
		}
		history.CreatedAt = card.UpdatedAt
		return tx.Create(history).Error
	})
}

func (r *cardRepository) DeleteCard(ctx context.Context, tenantID string, boardType domain.BoardType, cardID string) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("tenant_id = ? AND card_id = ?", tenantID, cardID).Delete(&domain.CardHistory{}).Error; err != nil {
			return err
		}
		return tx.Where("tenant_id = ? AND board_type = ? AND id = ?", tenantID, boardType, cardID).Delete(&domain.Card{}).Error
	})
}

func (r *cardRepository) ListHistory(ctx context.Context, tenantID, cardID string) ([]*domain.CardHistory, error) {
	var history []*domain.CardHistory
	err := r.db.WithContext(ctx).Where("tenant_id = ? AND card_id = ?", tenantID, cardID).Order("created_at ASC").Find(&history).Error
	if err != nil {
		return nil, err
	}
	return history, nil
}
