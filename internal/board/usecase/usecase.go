package usecase

import (
	"context"
	"errors"

	"crmboard/internal/board/domain"
	"crmboard/internal/board/dto"
)

var (
	ErrInvalidInput   = errors.New("invalid input")
	ErrStageNotFound  = errors.New("stage not found")
	ErrCardNotFound   = errors.New("card not found")
	ErrStageNotEmpty  = errors.New("cannot delete the last stage while it still has cards")
	ErrDuplicateOrder = errors.New("stage order already in use")
	ErrConflict       = errors.New("id already exists")
)

// Publisher receives a change event after every successful write
type Publisher interface {
	Publish(ev domain.ChangeEvent)
}

// BoardUsecase defines the tenant board operations
type BoardUsecase interface {
	GetBoard(ctx context.Context, tenantID string, boardType domain.BoardType) (*dto.BoardResponse, error)

	ListStages(ctx context.Context, tenantID string, boardType domain.BoardType) ([]*domain.Stage, error)
	CreateStage(ctx context.Context, tenantID string, boardType domain.BoardType, in dto.StageInput) (*domain.Stage, error)
	UpdateStage(ctx context.Context, tenantID string, boardType domain.BoardType, stageID string, patch dto.StagePatch) (*domain.Stage, error)
	ReorderStages(ctx context.Context, tenantID string, boardType domain.BoardType, orders map[string]int) ([]*domain.Stage, error)
	DeleteStage(ctx context.Context, tenantID string, boardType domain.BoardType, stageID string) error

	ListCards(ctx context.Context, tenantID string, boardType domain.BoardType) ([]*domain.Card, error)
	CreateCard(ctx context.Context, tenantID string, boardType domain.BoardType, in dto.CardInput) (*domain.Card, error)
	UpdateCard(ctx context.Context, tenantID string, boardType domain.BoardType, cardID string, patch dto.CardPatch) (*domain.Card, error)
	MoveCard(ctx context.Context, tenantID string, boardType domain.BoardType, actorID, cardID, toStageID string) (*domain.Card, error)
	DeleteCard(ctx context.Context, tenantID string, boardType domain.BoardType, cardID string) error
	CardHistory(ctx context.Context, tenantID string, boardType domain.BoardType, cardID string) ([]*domain.CardHistory, error)
	SearchCards(ctx context.Context, tenantID string, boardType domain.BoardType, query string, limit int) ([]dto.CardSearchResult, error)

	GetSnapshot(ctx context.Context, key domain.SnapshotKey) (*domain.Snapshot, error)
	SaveSnapshot(ctx context.Context, key domain.SnapshotKey, columns domain.Columns) (*domain.Snapshot, error)
}
