package repository

import (
	"context"
	"errors"
	"time"

	"crmboard/internal/board/domain"
	"crmboard/internal/board/dto"
)

// ErrOrderTaken is returned when another stage of the board already uses the display order
var ErrOrderTaken = errors.New("display order taken")

// StageRepository defines the stage operations of a tenant board.
// Finders return (nil, nil) when nothing matches.
type StageRepository interface {
	// List stages ordered by display order
	ListStages(ctx context.Context, tenantID string, boardType domain.BoardType) ([]*domain.Stage, error)
	GetStage(ctx context.Context, tenantID string, boardType domain.BoardType, stageID string) (*domain.Stage, error)
	CreateStage(ctx context.Context, stage *domain.Stage) error
	// Write only the patched columns and return the stored row, or nil if the stage is gone
	UpdateStage(ctx context.Context, tenantID string, boardType domain.BoardType, stageID string, patch dto.StagePatch) (*domain.Stage, error)
	// Update display order for multiple stages in one transaction
	UpdateStageOrders(ctx context.Context, tenantID string, boardType domain.BoardType, orders map[string]int) error
	// Delete a stage, moving its cards to targetStageID first. Returns the moved cards.
	DeleteStage(ctx context.Context, tenantID string, boardType domain.BoardType, stageID, targetStageID string) ([]*domain.Card, error)
}

// CardRepository defines the card and card history operations
type CardRepository interface {
	// List cards in creation order
	ListCards(ctx context.Context, tenantID string, boardType domain.BoardType) ([]*domain.Card, error)
	GetCard(ctx context.Context, tenantID string, boardType domain.BoardType, cardID string) (*domain.Card, error)
	CountByStage(ctx context.Context, tenantID string, boardType domain.BoardType, stageID string) (int64, error)
	CreateCard(ctx context.Context, card *domain.Card) error
	// Write only the patched columns and return the stored row, or nil if the card is gone.
	// The stage is left to MoveCard.
	UpdateCard(ctx context.Context, tenantID string, boardType domain.BoardType, cardID string, patch dto.CardPatch) (*domain.Card, error)
	// Change the stage of a card and record the transition
	MoveCard(ctx context.Context, card *domain.Card, history *domain.CardHistory) error
	DeleteCard(ctx context.Context, tenantID string, boardType domain.BoardType, cardID string) error
	ListHistory(ctx context.Context, tenantID, cardID string) ([]*domain.CardHistory, error)
}

// SnapshotRepository stores whole board arrangements
type SnapshotRepository interface {
	GetSnapshot(ctx context.Context, key domain.SnapshotKey) (*domain.Snapshot, error)
	// Insert or overwrite the snapshot of snap.Key()
	UpsertSnapshot(ctx context.Context, snap *domain.Snapshot) error
	// Delete snapshots not updated since cutoff, returning how many were removed
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}
