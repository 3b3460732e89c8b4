package repository

import (
	"context"
	"errors"
	"time"

	"crmboard/internal/board/domain"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type snapshotRepository struct {
	db *gorm.DB
}

func NewSnapshotRepository(db *gorm.DB) SnapshotRepository {
	return &snapshotRepository{db: db}
}

func (r *snapshotRepository) GetSnapshot(ctx context.Context, key domain.SnapshotKey) (*domain.Snapshot, error) {
	var snap domain.Snapshot
	err := r.db.WithContext(ctx).
		Where("user_id = ? AND tenant_id = ? AND board_type = ?", key.UserID, key.TenantID, key.BoardType).
		First(&snap).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	if snap.Columns == nil {
		snap.Columns = domain.Columns{}
	}
	return &snap, nil
}

// UpsertSnapshot overwrites the whole arrangement stored under the snapshot key
func (r *snapshotRepository) UpsertSnapshot(ctx context.Context, snap *domain.Snapshot) error {
	if snap.ID == "" {
		snap.ID = uuid.New().String()
	}
	now := time.Now().UTC()
	snap.CreatedAt = now
	snap.UpdatedAt = now
	if snap.Columns == nil {
		snap.Columns = domain.Columns{}
	}
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}, {Name: "tenant_id"}, {Name: "board_type"}},
		DoUpdates: clause.AssignmentColumns([]string{"columns", "updated_at"}),
	}).Create(snap).Error
}

func (r *snapshotRepository) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	res := r.db.WithContext(ctx).Where("updated_at < ?", cutoff).Delete(&domain.Snapshot{})
	return res.RowsAffected, res.Error
}
