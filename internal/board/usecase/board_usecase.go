package usecase

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"

	"crmboard/internal/board/domain"
	"crmboard/internal/board/dto"
	"crmboard/internal/board/repository"
	"crmboard/pkg/fuzzy"
	"crmboard/pkg/metrics"

	"github.com/rs/zerolog"
)

// boardUsecase implements BoardUsecase interface
type boardUsecase struct {
	stageRepo    repository.StageRepository
	cardRepo     repository.CardRepository
	snapshotRepo repository.SnapshotRepository
	publisher    Publisher
	metrics      *metrics.Metrics
	log          zerolog.Logger
}

// Option configures the board usecase
type Option func(*boardUsecase)

// WithLogger sets the usecase logger
func WithLogger(l zerolog.Logger) Option {
	return func(u *boardUsecase) { u.log = l.With().Str("component", "board").Logger() }
}

// WithMetrics counts successful writes
func WithMetrics(m *metrics.Metrics) Option {
	return func(u *boardUsecase) { u.metrics = m }
}

// NewBoardUsecase creates a new instance of boardUsecase
func NewBoardUsecase(stageRepo repository.StageRepository, cardRepo repository.CardRepository, snapshotRepo repository.SnapshotRepository, publisher Publisher, opts ...Option) BoardUsecase {
	u := &boardUsecase{
		stageRepo:    stageRepo,
		cardRepo:     cardRepo,
		snapshotRepo: snapshotRepo,
		publisher:    publisher,
		log:          zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(u)
	}
	return u
}

func invalid(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrInvalidInput, fmt.Sprintf(format, args...))
}

func checkBoard(tenantID string, boardType domain.BoardType) error {
	if tenantID == "" {
		return invalid("tenant required")
	}
	if !boardType.Valid() {
		return invalid("unknown board type %q", boardType)
	}
	return nil
}

// publish emits a change event. newRow and oldRow must be nil (untyped) when absent.
func (u *boardUsecase) publish(table string, typ domain.EventType, tenantID string, boardType domain.BoardType, newRow, oldRow interface{}) {
	if u.metrics != nil {
		u.metrics.BoardMutations.WithLabelValues(table, string(typ)).Inc()
	}
	if u.publisher == nil {
		return
	}
	ev, err := domain.NewChangeEvent(table, typ, tenantID, boardType, newRow, oldRow)
	if err != nil {
		u.log.Error().Err(err).Str("table", table).Msg("failed to encode change event")
		return
	}
	u.publisher.Publish(ev)
}

// keyOnly is the old row image of a delete event
type keyOnly struct {
	ID string `json:"id"`
}

func (u *boardUsecase) GetBoard(ctx context.Context, tenantID string, boardType domain.BoardType) (*dto.BoardResponse, error) {
	stages, err := u.ListStages(ctx, tenantID, boardType)
	if err != nil {
		return nil, err
	}
	cards, err := u.ListCards(ctx, tenantID, boardType)
	if err != nil {
		return nil, err
	}
	return &dto.BoardResponse{Stages: stages, Cards: cards}, nil
}

func (u *boardUsecase) ListStages(ctx context.Context, tenantID string, boardType domain.BoardType) ([]*domain.Stage, error) {
	if err := checkBoard(tenantID, boardType); err != nil {
		return nil, err
	}
	stages, err := u.stageRepo.ListStages(ctx, tenantID, boardType)
	if err != nil {
		return nil, err
	}
	if stages == nil {
		stages = []*domain.Stage{}
	}
	return stages, nil
}

func (u *boardUsecase) CreateStage(ctx context.Context, tenantID string, boardType domain.BoardType, in dto.StageInput) (*domain.Stage, error) {
	if err := checkBoard(tenantID, boardType); err != nil {
		return nil, err
	}
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return nil, invalid("stage name required")
	}
	stages, err := u.stageRepo.ListStages(ctx, tenantID, boardType)
	if err != nil {
		return nil, err
	}

	order := 0
	for _, s := range stages {
		if in.ID != "" && s.ID == in.ID {
			return nil, ErrConflict
		}
		if s.Order >= order {
			order = s.Order + 1
		}
	}
	if in.Order != nil {
		if *in.Order < 0 {
			return nil, invalid("order must not be negative")
		}
		for _, s := range stages {
			if s.Order == *in.Order {
				return nil, ErrDuplicateOrder
			}
		}
		order = *in.Order
	}

	stage := &domain.Stage{
		ID:        in.ID,
		TenantID:  tenantID,
		BoardType: boardType,
		Name:      name,
		Color:     in.Color,
		Order:     order,
	}
	if err := u.stageRepo.CreateStage(ctx, stage); err != nil {
		return nil, err
	}
	u.publish(domain.TableStages, domain.EventInsert, tenantID, boardType, stage, nil)
	return stage, nil
}

func (u *boardUsecase) UpdateStage(ctx context.Context, tenantID string, boardType domain.BoardType, stageID string, patch dto.StagePatch) (*domain.Stage, error) {
	if err := checkBoard(tenantID, boardType); err != nil {
		return nil, err
	}
	stage, err := u.stageRepo.GetStage(ctx, tenantID, boardType, stageID)
	if err != nil {
		return nil, err
	}
	if stage == nil {
		return nil, ErrStageNotFound
	}
	if patch.Name != nil && strings.TrimSpace(*patch.Name) == "" {
		return nil, invalid("stage name required")
	}
	if patch.Order != nil && *patch.Order < 0 {
		return nil, invalid("order must not be negative")
	}

	// order uniqueness is checked by the repository under lock
	updated, err := u.stageRepo.UpdateStage(ctx, tenantID, boardType, stageID, patch)
	if errors.Is(err, repository.ErrOrderTaken) {
		return nil, ErrDuplicateOrder
	}
	if err != nil {
		return nil, err
	}
	if updated == nil {
		return nil, ErrStageNotFound
	}
	u.publish(domain.TableStages, domain.EventUpdate, tenantID, boardType, updated, stage)
	return updated, nil
}

// ReorderStages applies new display orders. The resulting orders must stay unique.
func (u *boardUsecase) ReorderStages(ctx context.Context, tenantID string, boardType domain.BoardType, orders map[string]int) ([]*domain.Stage, error) {
	if err := checkBoard(tenantID, boardType); err != nil {
		return nil, err
	}
	stages, err := u.stageRepo.ListStages(ctx, tenantID, boardType)
	if err != nil {
		return nil, err
	}

	byID := make(map[string]*domain.Stage, len(stages))
	for _, s := range stages {
		byID[s.ID] = s
	}
	final := make(map[int]string, len(stages))
	for _, s := range stages {
		order := s.Order
		if o, ok := orders[s.ID]; ok {
			order = o
		}
		if order < 0 {
			return nil, invalid("order must not be negative")
		}
		if other, taken := final[order]; taken && other != s.ID {
			return nil, ErrDuplicateOrder
		}
		final[order] = s.ID
	}
	for id := range orders {
		if _, ok := byID[id]; !ok {
			return nil, ErrStageNotFound
		}
	}

	if err := u.stageRepo.UpdateStageOrders(ctx, tenantID, boardType, orders); err != nil {
		return nil, err
	}
	updated, err := u.stageRepo.ListStages(ctx, tenantID, boardType)
	if err != nil {
		return nil, err
	}
	for _, s := range updated {
		if before, ok := byID[s.ID]; ok && before.Order != s.Order {
			u.publish(domain.TableStages, domain.EventUpdate, tenantID, boardType, s, before)
		}
	}
	return updated, nil
}

// DeleteStage removes a stage. Its cards move to the first remaining stage by
// order; the last stage cannot be deleted while it still has cards.
func (u *boardUsecase) DeleteStage(ctx context.Context, tenantID string, boardType domain.BoardType, stageID string) error {
	if err := checkBoard(tenantID, boardType); err != nil {
		return err
	}
	stages, err := u.stageRepo.ListStages(ctx, tenantID, boardType)
	if err != nil {
		return err
	}
	var target string
	found := false
	for _, s := range stages {
		if s.ID == stageID {
			found = true
		} else if target == "" {
			target = s.ID
		}
	}
	if !found {
		return ErrStageNotFound
	}
	if target == "" {
		count, err := u.cardRepo.CountByStage(ctx, tenantID, boardType, stageID)
		if err != nil {
			return err
		}
		if count > 0 {
			return ErrStageNotEmpty
		}
	}

	moved, err := u.stageRepo.DeleteStage(ctx, tenantID, boardType, stageID, target)
	if err != nil {
		return err
	}
	for _, c := range moved {
		u.publish(domain.TableCards, domain.EventUpdate, tenantID, boardType, c, nil)
	}
	u.publish(domain.TableStages, domain.EventDelete, tenantID, boardType, nil, keyOnly{ID: stageID})
	u.log.Info().Str("tenant_id", tenantID).Str("stage_id", stageID).Int("reassigned", len(moved)).Msg("stage deleted")
	return nil
}

func (u *boardUsecase) ListCards(ctx context.Context, tenantID string, boardType domain.BoardType) ([]*domain.Card, error) {
	if err := checkBoard(tenantID, boardType); err != nil {
		return nil, err
	}
	cards, err := u.cardRepo.ListCards(ctx, tenantID, boardType)
	if err != nil {
		return nil, err
	}
	if cards == nil {
		cards = []*domain.Card{}
	}
	return cards, nil
}

func validValue(v float64) bool {
	return v >= 0 && !math.IsInf(v, 0) && !math.IsNaN(v)
}

func (u *boardUsecase) CreateCard(ctx context.Context, tenantID string, boardType domain.BoardType, in dto.CardInput) (*domain.Card, error) {
	if err := checkBoard(tenantID, boardType); err != nil {
		return nil, err
	}
	title := strings.TrimSpace(in.Title)
	if title == "" {
		return nil, invalid("card title required")
	}
	if !validValue(in.Value) {
		return nil, invalid("value must not be negative")
	}
	stage, err := u.stageRepo.GetStage(ctx, tenantID, boardType, in.StageID)
	if err != nil {
		return nil, err
	}
	if stage == nil {
		return nil, ErrStageNotFound
	}
	if in.ID != "" {
		existing, err := u.cardRepo.GetCard(ctx, tenantID, boardType, in.ID)
		if err != nil {
			return nil, err
		}
		if existing != nil {
			return nil, ErrConflict
		}
	}

	card := &domain.Card{
		ID:          in.ID,
		TenantID:    tenantID,
		BoardType:   boardType,
		StageID:     stage.ID,
		Title:       title,
		Description: in.Description,
		Priority:    domain.ParsePriority(in.Priority),
		Value:       in.Value,
		AssigneeID:  in.AssigneeID,
		Source:      in.Source,
	}
	if err := u.cardRepo.CreateCard(ctx, card); err != nil {
		return nil, err
	}
	u.publish(domain.TableCards, domain.EventInsert, tenantID, boardType, card, nil)
	return card, nil
}

func (u *boardUsecase) getCard(ctx context.Context, tenantID string, boardType domain.BoardType, cardID string) (*domain.Card, error) {
	if err := checkBoard(tenantID, boardType); err != nil {
		return nil, err
	}
	card, err := u.cardRepo.GetCard(ctx, tenantID, boardType, cardID)
	if err != nil {
		return nil, err
	}
	if card == nil {
		return nil, ErrCardNotFound
	}
	return card, nil
}

func (u *boardUsecase) UpdateCard(ctx context.Context, tenantID string, boardType domain.BoardType, cardID string, patch dto.CardPatch) (*domain.Card, error) {
	card, err := u.getCard(ctx, tenantID, boardType, cardID)
	if err != nil {
		return nil, err
	}
	if patch.Empty() {
		return card, nil
	}
	if patch.Title != nil && strings.TrimSpace(*patch.Title) == "" {
		return nil, invalid("card title required")
	}
	if patch.Value != nil && !validValue(*patch.Value) {
		return nil, invalid("value must not be negative")
	}

	updated, err := u.cardRepo.UpdateCard(ctx, tenantID, boardType, cardID, patch)
	if err != nil {
		return nil, err
	}
	if updated == nil {
		return nil, ErrCardNotFound
	}
	u.publish(domain.TableCards, domain.EventUpdate, tenantID, boardType, updated, card)
	return updated, nil
}

// MoveCard changes only the stage of a card and records the transition.
// Any stage may follow any other.
func (u *boardUsecase) MoveCard(ctx context.Context, tenantID string, boardType domain.BoardType, actorID, cardID, toStageID string) (*domain.Card, error) {
	card, err := u.getCard(ctx, tenantID, boardType, cardID)
	if err != nil {
		return nil, err
	}
	stage, err := u.stageRepo.GetStage(ctx, tenantID, boardType, toStageID)
	if err != nil {
		return nil, err
	}
	if stage == nil {
		return nil, ErrStageNotFound
	}
	if card.StageID == toStageID {
		return card, nil
	}

	old := *card
	card.StageID = toStageID
	history := &domain.CardHistory{
		TenantID:    tenantID,
		CardID:      cardID,
		FromStageID: old.StageID,
		ToStageID:   toStageID,
		ActorID:     actorID,
	}
	if err := u.cardRepo.MoveCard(ctx, card, history); err != nil {
		return nil, err
	}
	u.publish(domain.TableCards, domain.EventUpdate, tenantID, boardType, card, &old)
	u.log.Debug().Str("tenant_id", tenantID).Str("card_id", cardID).Str("from", old.StageID).Str("to", toStageID).Msg("card moved")
	return card, nil
}

func (u *boardUsecase) DeleteCard(ctx context.Context, tenantID string, boardType domain.BoardType, cardID string) error {
	if _, err := u.getCard(ctx, tenantID, boardType, cardID); err != nil {
		return err
	}
	if err := u.cardRepo.DeleteCard(ctx, tenantID, boardType, cardID); err != nil {
		return err
	}
	u.publish(domain.TableCards, domain.EventDelete, tenantID, boardType, nil, keyOnly{ID: cardID})
	return nil
}

func (u *boardUsecase) CardHistory(ctx context.Context, tenantID string, boardType domain.BoardType, cardID string) ([]*domain.CardHistory, error) {
	if _, err := u.getCard(ctx, tenantID, boardType, cardID); err != nil {
		return nil, err
	}
	history, err := u.cardRepo.ListHistory(ctx, tenantID, cardID)
	if err != nil {
		return nil, err
	}
	if history == nil {
		history = []*domain.CardHistory{}
	}
	return history, nil
}

// SearchCards ranks the board's cards against a free text query, tolerating typos and accents
func (u *boardUsecase) SearchCards(ctx context.Context, tenantID string, boardType domain.BoardType, query string, limit int) ([]dto.CardSearchResult, error) {
	if strings.TrimSpace(query) == "" {
		return nil, invalid("query required")
	}
	cards, err := u.ListCards(ctx, tenantID, boardType)
	if err != nil {
		return nil, err
	}
	ranked := fuzzy.Rank(query, cards, func(c *domain.Card) []fuzzy.Field {
		return []fuzzy.Field{
			{Text: c.Title, Weight: 100},
			{Text: c.Source, Weight: 40},
			{Text: c.Description, Weight: 20},
		}
	}, limit)

	results := make([]dto.CardSearchResult, 0, len(ranked))
	for _, r := range ranked {
		results = append(results, dto.CardSearchResult{Card: r.Item, Score: r.Score})
	}
	return results, nil
}

func checkKey(key domain.SnapshotKey) error {
	if key.UserID == "" {
		return invalid("user required")
	}
	return checkBoard(key.TenantID, key.BoardType)
}

func (u *boardUsecase) GetSnapshot(ctx context.Context, key domain.SnapshotKey) (*domain.Snapshot, error) {
	if err := checkKey(key); err != nil {
		return nil, err
	}
	return u.snapshotRepo.GetSnapshot(ctx, key)
}

// SaveSnapshot overwrites the caller's snapshot of the board wholesale
func (u *boardUsecase) SaveSnapshot(ctx context.Context, key domain.SnapshotKey, columns domain.Columns) (*domain.Snapshot, error) {
	if err := checkKey(key); err != nil {
		return nil, err
	}
	for _, col := range columns {
		if col.Stage.TenantID != "" && col.Stage.TenantID != key.TenantID {
			return nil, invalid("snapshot contains stage %s of another tenant", col.Stage.ID)
		}
		for _, c := range col.Cards {
			if c.TenantID != "" && c.TenantID != key.TenantID {
				return nil, invalid("snapshot contains card %s of another tenant", c.ID)
			}
		}
	}
	snap := &domain.Snapshot{
		UserID:    key.UserID,
		TenantID:  key.TenantID,
		BoardType: key.BoardType,
		Columns:   columns,
	}
	if err := u.snapshotRepo.UpsertSnapshot(ctx, snap); err != nil {
		return nil, err
	}
	return snap, nil
}
