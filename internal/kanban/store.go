package kanban

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"crmboard/internal/board/domain"
	"crmboard/internal/board/dto"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// errUnchanged lets a mutation report that it left the board as it was
var errUnchanged = errors.New("unchanged")

// Store owns the in-memory board of one (tenant, board type) and exposes the
// mutation API used by the presentation layer. Every mutation is applied
// locally first and then mirrored to the Backend; a rejected remote write is
// compensated so local and remote state do not drift apart.
//
// Observers registered with Subscribe must not call mutating methods
// synchronously.
type Store struct {
	backend   Backend
	boardType domain.BoardType
	notifier  Notifier
	log       zerolog.Logger
	newID     func() string

	mu      sync.Mutex
	board   Board
	loaded  bool
	loadSeq uint64

	notifyMu  sync.Mutex
	observers map[int]func(Board)
	nextObs   int
}

// Option configures a Store
type Option func(*Store)

// WithLogger sets the store logger
func WithLogger(l zerolog.Logger) Option {
	return func(s *Store) { s.log = l.With().Str("component", "kanban.store").Logger() }
}

// WithNotifier sets where failed remote calls are surfaced
func WithNotifier(n Notifier) Option {
	return func(s *Store) { s.notifier = n }
}

// WithIDGenerator overrides the id generator used for optimistic inserts
func WithIDGenerator(fn func() string) Option {
	return func(s *Store) { s.newID = fn }
}

// NewStore creates a store for boardType backed by backend
func NewStore(backend Backend, boardType domain.BoardType, opts ...Option) *Store {
	s := &Store{
		backend:   backend,
		boardType: boardType,
		log:       zerolog.Nop(),
		newID:     func() string { return uuid.New().String() },
		observers: make(map[int]func(Board)),
		board:     Board{BoardType: boardType},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// BoardType returns the board type the store holds
func (s *Store) BoardType() domain.BoardType { return s.boardType }

// TenantID returns the tenant of the loaded board
func (s *Store) TenantID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.board.TenantID
}

// Board returns a copy of the current board
func (s *Store) Board() Board {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.board.Clone()
}

// Subscribe registers fn to receive a copy of the board after each change.
// The returned function unregisters it.
func (s *Store) Subscribe(fn func(Board)) func() {
	s.notifyMu.Lock()
	defer s.notifyMu.Unlock()
	id := s.nextObs
	s.nextObs++
	s.observers[id] = fn
	return func() {
		s.notifyMu.Lock()
		defer s.notifyMu.Unlock()
		delete(s.observers, id)
	}
}

// commit publishes snap to observers. It must be called with s.mu held and
// releases it; notifyMu keeps observers seeing changes in commit order.
func (s *Store) commit(snap Board) {
	s.notifyMu.Lock()
	s.mu.Unlock()
	defer s.notifyMu.Unlock()
	for _, fn := range s.observers {
		fn(snap)
	}
}

// apply runs fn against the loaded board and notifies observers when it
// changed something. It returns the tenant of the board.
func (s *Store) apply(fn func(b *Board) error) (string, error) {
	s.mu.Lock()
	if !s.loaded {
		s.mu.Unlock()
		return "", ErrNotLoaded
	}
	tenant := s.board.TenantID
	if err := fn(&s.board); err != nil {
		s.mu.Unlock()
		if errors.Is(err, errUnchanged) {
			return tenant, nil
		}
		return tenant, err
	}
	s.commit(s.board.Clone())
	return tenant, nil
}

func (s *Store) fail(op string, err error) {
	s.log.Error().Err(err).Str("op", op).Msg("remote call failed")
	if s.notifier != nil {
		s.notifier.Notify(op, err)
	}
}

// Load fetches all stages and cards of tenantID and replaces the board.
// On failure the previous board is kept. A load superseded by a later Load
// call is discarded.
func (s *Store) Load(ctx context.Context, tenantID string) (Board, error) {
	s.mu.Lock()
	s.loadSeq++
	seq := s.loadSeq
	s.mu.Unlock()

	stageRows, err := s.backend.ListStages(ctx, tenantID, s.boardType)
	if err != nil {
		s.fail("load board", err)
		return s.Board(), fmt.Errorf("load stages: %w", err)
	}
	cardRows, err := s.backend.ListCards(ctx, tenantID, s.boardType)
	if err != nil {
		s.fail("load board", err)
		return s.Board(), fmt.Errorf("load cards: %w", err)
	}

	stages := make([]domain.Stage, 0, len(stageRows))
	for _, row := range stageRows {
		stage, err := dto.ToStage(row)
		if err != nil {
			s.log.Warn().Err(err).Msg("dropping stage row")
			continue
		}
		if stage.TenantID != tenantID || stage.BoardType != s.boardType {
			s.log.Warn().Str("stage_id", stage.ID).Str("tenant_id", stage.TenantID).Msg("dropping stage of another board")
			continue
		}
		stages = append(stages, stage)
	}
	cards := make([]domain.Card, 0, len(cardRows))
	for _, row := range cardRows {
		card, err := dto.ToCard(row)
		if err != nil {
			s.log.Warn().Err(err).Msg("dropping card row")
			continue
		}
		if card.TenantID != tenantID || card.BoardType != s.boardType {
			s.log.Warn().Str("card_id", card.ID).Str("tenant_id", card.TenantID).Msg("dropping card of another board")
			continue
		}
		cards = append(cards, card)
	}
	board := assemble(tenantID, s.boardType, stages, cards)

	s.mu.Lock()
	if seq != s.loadSeq {
		current := s.board.Clone()
		s.mu.Unlock()
		s.log.Debug().Str("tenant_id", tenantID).Msg("discarding superseded load")
		return current, nil
	}
	s.board = board
	s.loaded = true
	result := board.Clone()
	s.commit(board.Clone())
	s.log.Debug().Str("tenant_id", tenantID).Int("stages", len(stages)).Int("cards", len(cards)).Msg("board loaded")
	return result, nil
}

// MoveCard moves a card from one stage to another. The card is appended to
// the destination immediately; if the backend rejects the move the card is
// put back at its original position.
func (s *Store) MoveCard(ctx context.Context, cardID, fromStageID, toStageID string) error {
	idx := -1
	tenant, err := s.apply(func(b *Board) error {
		var err error
		idx, err = b.moveCard(cardID, fromStageID, toStageID)
		return err
	})
	if err != nil {
		return err
	}

	row, err := s.backend.MoveCard(ctx, tenant, s.boardType, cardID, toStageID)
	if err != nil {
		_, _ = s.apply(func(b *Board) error {
			_, stageID, ok := b.FindCard(cardID)
			if !ok || stageID != toStageID {
				return errUnchanged
			}
			card, _, _, _ := b.removeCard(cardID)
			card.StageID = fromStageID
			return b.insertCardAt(card, idx)
		})
		s.fail("move card", err)
		return fmt.Errorf("move card %s: %w", cardID, err)
	}
	s.confirmCard(row)
	return nil
}

// AddStage appends a new stage. Without an explicit order it goes last.
func (s *Store) AddStage(ctx context.Context, in dto.StageInput) (domain.Stage, error) {
	var stage domain.Stage
	tenant, err := s.apply(func(b *Board) error {
		if in.ID == "" {
			in.ID = s.newID()
		}
		if b.stageIndex(in.ID) >= 0 {
			return ErrDuplicateStage
		}
		if in.Order == nil {
			next := 0
			for _, col := range b.Columns {
				if col.Stage.Order >= next {
					next = col.Stage.Order + 1
				}
			}
			in.Order = &next
		}
		stage = domain.Stage{
			ID:        in.ID,
			TenantID:  b.TenantID,
			BoardType: b.BoardType,
			Name:      in.Name,
			Color:     in.Color,
			Order:     *in.Order,
		}
		b.upsertStage(stage)
		return nil
	})
	if err != nil {
		return domain.Stage{}, err
	}

	row, err := s.backend.CreateStage(ctx, tenant, s.boardType, in)
	if err != nil {
		_, _ = s.apply(func(b *Board) error {
			_, _, _, err := b.removeStage(stage.ID)
			if err != nil {
				return errUnchanged
			}
			return nil
		})
		s.fail("add stage", err)
		return domain.Stage{}, fmt.Errorf("add stage: %w", err)
	}
	if confirmed, ok := s.confirmStage(row); ok {
		return confirmed, nil
	}
	return stage, nil
}

// EditStage updates name, color or order of a stage
func (s *Store) EditStage(ctx context.Context, stageID string, patch dto.StagePatch) (domain.Stage, error) {
	var before, after domain.Stage
	tenant, err := s.apply(func(b *Board) error {
		col, ok := b.Column(stageID)
		if !ok {
			return ErrStageNotFound
		}
		before = col.Stage
		after = before
		patch.Apply(&after)
		b.upsertStage(after)
		return nil
	})
	if err != nil {
		return domain.Stage{}, err
	}

	row, err := s.backend.UpdateStage(ctx, tenant, s.boardType, stageID, patch)
	if err != nil {
		_, _ = s.apply(func(b *Board) error {
			col, ok := b.Column(stageID)
			if !ok || col.Stage != after {
				return errUnchanged
			}
			b.upsertStage(before)
			return nil
		})
		s.fail("edit stage", err)
		return domain.Stage{}, fmt.Errorf("edit stage %s: %w", stageID, err)
	}
	if confirmed, ok := s.confirmStage(row); ok {
		return confirmed, nil
	}
	return after, nil
}

// DeleteStage removes a stage. Its cards move to the first remaining stage;
// the last stage cannot be deleted while it has cards.
func (s *Store) DeleteStage(ctx context.Context, stageID string) error {
	var removed domain.Column
	var target string
	tenant, err := s.apply(func(b *Board) error {
		var err error
		removed, _, target, err = b.removeStage(stageID)
		return err
	})
	if err != nil {
		return err
	}

	if err := s.backend.DeleteStage(ctx, tenant, s.boardType, stageID); err != nil {
		_, _ = s.apply(func(b *Board) error {
			if _, ok := b.Column(stageID); ok {
				return errUnchanged
			}
			b.restoreStage(removed, target)
			return nil
		})
		s.fail("delete stage", err)
		return fmt.Errorf("delete stage %s: %w", stageID, err)
	}
	return nil
}

// AddCard appends a new card to its stage
func (s *Store) AddCard(ctx context.Context, in dto.CardInput) (domain.Card, error) {
	var card domain.Card
	tenant, err := s.apply(func(b *Board) error {
		if in.ID == "" {
			in.ID = s.newID()
		}
		if _, _, exists := b.FindCard(in.ID); exists {
			return ErrDuplicateCard
		}
		card = domain.Card{
			ID:          in.ID,
			TenantID:    b.TenantID,
			BoardType:   b.BoardType,
			StageID:     in.StageID,
			Title:       in.Title,
			Description: in.Description,
			Priority:    domain.ParsePriority(in.Priority),
			Value:       in.Value,
			AssigneeID:  in.AssigneeID,
			Source:      in.Source,
		}
		return b.insertCardAt(card, -1)
	})
	if err != nil {
		return domain.Card{}, err
	}

	row, err := s.backend.CreateCard(ctx, tenant, s.boardType, in)
	if err != nil {
		_, _ = s.apply(func(b *Board) error {
			if _, _, _, ok := b.removeCard(card.ID); !ok {
				return errUnchanged
			}
			return nil
		})
		s.fail("add card", err)
		return domain.Card{}, fmt.Errorf("add card: %w", err)
	}
	if confirmed, ok := s.confirmCard(row); ok {
		return confirmed, nil
	}
	return card, nil
}

// EditCard changes card fields other than its stage
func (s *Store) EditCard(ctx context.Context, cardID string, patch dto.CardPatch) (domain.Card, error) {
	var before, after domain.Card
	tenant, err := s.apply(func(b *Board) error {
		card, _, ok := b.FindCard(cardID)
		if !ok {
			return ErrCardNotFound
		}
		before = card
		after = card
		patch.Apply(&after)
		return b.upsertCard(after)
	})
	if err != nil {
		return domain.Card{}, err
	}

	row, err := s.backend.UpdateCard(ctx, tenant, s.boardType, cardID, patch)
	if err != nil {
		_, _ = s.apply(func(b *Board) error {
			current, _, ok := b.FindCard(cardID)
			if !ok || current != after {
				return errUnchanged
			}
			return b.upsertCard(before)
		})
		s.fail("edit card", err)
		return domain.Card{}, fmt.Errorf("edit card %s: %w", cardID, err)
	}
	if confirmed, ok := s.confirmCard(row); ok {
		return confirmed, nil
	}
	return after, nil
}

// DeleteCard removes a card from the board
func (s *Store) DeleteCard(ctx context.Context, cardID string) error {
	var removed domain.Card
	idx := -1
	tenant, err := s.apply(func(b *Board) error {
		card, _, i, ok := b.removeCard(cardID)
		if !ok {
			return ErrCardNotFound
		}
		removed, idx = card, i
		return nil
	})
	if err != nil {
		return err
	}

	if err := s.backend.DeleteCard(ctx, tenant, s.boardType, cardID); err != nil {
		_, _ = s.apply(func(b *Board) error {
			if _, _, exists := b.FindCard(cardID); exists {
				return errUnchanged
			}
			if err := b.insertCardAt(removed, idx); err != nil {
				return errUnchanged
			}
			return nil
		})
		s.fail("delete card", err)
		return fmt.Errorf("delete card %s: %w", cardID, err)
	}
	return nil
}

// confirmCard applies the server's view of a card after a successful write
func (s *Store) confirmCard(row dto.CardRow) (domain.Card, bool) {
	card, err := dto.ToCard(row)
	if err != nil {
		s.log.Warn().Err(err).Msg("ignoring invalid card confirmation")
		return domain.Card{}, false
	}
	return card, s.upsertCard(card)
}

// confirmStage applies the server's view of a stage after a successful write
func (s *Store) confirmStage(row dto.StageRow) (domain.Stage, bool) {
	stage, err := dto.ToStage(row)
	if err != nil {
		s.log.Warn().Err(err).Msg("ignoring invalid stage confirmation")
		return domain.Stage{}, false
	}
	return stage, s.upsertStage(stage)
}

func (s *Store) belongs(tenantID string, boardType domain.BoardType) bool {
	return tenantID == s.board.TenantID && boardType == s.boardType
}

// upsertCard applies card unless the local copy is newer. Cards of another
// tenant or board, and cards of a stage missing locally, are ignored.
func (s *Store) upsertCard(card domain.Card) bool {
	applied := false
	_, _ = s.apply(func(b *Board) error {
		if !s.belongs(card.TenantID, card.BoardType) {
			return errUnchanged
		}
		if existing, _, ok := b.FindCard(card.ID); ok && card.UpdatedAt.Before(existing.UpdatedAt) {
			return errUnchanged
		}
		if err := b.upsertCard(card); err != nil {
			s.log.Warn().Str("card_id", card.ID).Str("stage_id", card.StageID).Msg("card references an unknown stage, ignoring")
			return errUnchanged
		}
		applied = true
		return nil
	})
	return applied
}

// upsertStage applies stage unless the local copy is newer
func (s *Store) upsertStage(stage domain.Stage) bool {
	applied := false
	_, _ = s.apply(func(b *Board) error {
		if !s.belongs(stage.TenantID, stage.BoardType) {
			return errUnchanged
		}
		if col, ok := b.Column(stage.ID); ok && stage.UpdatedAt.Before(col.Stage.UpdatedAt) {
			return errUnchanged
		}
		b.upsertStage(stage)
		applied = true
		return nil
	})
	return applied
}
