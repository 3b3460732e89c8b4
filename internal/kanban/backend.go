package kanban

import (
	"context"

	"crmboard/internal/board/domain"
	"crmboard/internal/board/dto"
)

// Backend is the remote store the board mirrors its mutations to.
// Reads return raw rows; the store translates them before use.
type Backend interface {
	ListStages(ctx context.Context, tenantID string, boardType domain.BoardType) ([]dto.StageRow, error)
	ListCards(ctx context.Context, tenantID string, boardType domain.BoardType) ([]dto.CardRow, error)

	CreateStage(ctx context.Context, tenantID string, boardType domain.BoardType, in dto.StageInput) (dto.StageRow, error)
	UpdateStage(ctx context.Context, tenantID string, boardType domain.BoardType, stageID string, patch dto.StagePatch) (dto.StageRow, error)
	DeleteStage(ctx context.Context, tenantID string, boardType domain.BoardType, stageID string) error

	CreateCard(ctx context.Context, tenantID string, boardType domain.BoardType, in dto.CardInput) (dto.CardRow, error)
	UpdateCard(ctx context.Context, tenantID string, boardType domain.BoardType, cardID string, patch dto.CardPatch) (dto.CardRow, error)
	MoveCard(ctx context.Context, tenantID string, boardType domain.BoardType, cardID, toStageID string) (dto.CardRow, error)
	DeleteCard(ctx context.Context, tenantID string, boardType domain.BoardType, cardID string) error
}

// SnapshotWriter persists a whole board arrangement under its key
type SnapshotWriter interface {
	SaveSnapshot(ctx context.Context, key domain.SnapshotKey, columns domain.Columns) error
}

// Feed delivers row-level change events for a table, filtered server side.
// The returned channel is closed when the subscription drops or ctx ends.
type Feed interface {
	Subscribe(ctx context.Context, table, filter string) (<-chan domain.ChangeEvent, error)
}

// Notifier surfaces failed remote calls to the user (toast-style)
type Notifier interface {
	Notify(op string, err error)
}

// NotifierFunc adapts a function to Notifier
type NotifierFunc func(op string, err error)

func (f NotifierFunc) Notify(op string, err error) { f(op, err) }
