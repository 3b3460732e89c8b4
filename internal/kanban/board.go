// Package kanban keeps an in-memory board in sync with the CRM backend:
// optimistic local mutations, debounced snapshot persistence and realtime
// reconciliation of changes made by other sessions.
package kanban

import (
	"errors"
	"sort"

	"crmboard/internal/board/domain"
)

var (
	ErrCardNotFound   = errors.New("card not found in source stage")
	ErrStageNotFound  = errors.New("stage not found")
	ErrSameStage      = errors.New("source and destination stage are the same")
	ErrStageNotEmpty  = errors.New("cannot delete the last stage while it still has cards")
	ErrDuplicateStage = errors.New("stage already exists")
	ErrDuplicateCard  = errors.New("card already exists")
	ErrNotLoaded      = errors.New("board not loaded")
)

// Board is the ordered collection of stages with the cards partitioned by stage
type Board struct {
	TenantID  string
	BoardType domain.BoardType
	Columns   []domain.Column
}

// Clone returns a deep copy that shares no slices with b
func (b Board) Clone() Board {
	out := Board{TenantID: b.TenantID, BoardType: b.BoardType}
	if b.Columns == nil {
		return out
	}
	out.Columns = make([]domain.Column, len(b.Columns))
	for i, col := range b.Columns {
		cards := make([]domain.Card, len(col.Cards))
		copy(cards, col.Cards)
		out.Columns[i] = domain.Column{Stage: col.Stage, Cards: cards}
	}
	return out
}

// CardCount returns the number of cards across all stages
func (b Board) CardCount() int {
	n := 0
	for _, col := range b.Columns {
		n += len(col.Cards)
	}
	return n
}

// Column returns the column of stageID
func (b Board) Column(stageID string) (domain.Column, bool) {
	if i := b.stageIndex(stageID); i >= 0 {
		return b.Columns[i], true
	}
	return domain.Column{}, false
}

// FindCard locates a card and returns it with its stage id
func (b Board) FindCard(cardID string) (domain.Card, string, bool) {
	for _, col := range b.Columns {
		for _, c := range col.Cards {
			if c.ID == cardID {
				return c, col.Stage.ID, true
			}
		}
	}
	return domain.Card{}, "", false
}

func (b Board) stageIndex(stageID string) int {
	for i, col := range b.Columns {
		if col.Stage.ID == stageID {
			return i
		}
	}
	return -1
}

func (b Board) cardIndex(stageIdx int, cardID string) int {
	for i, c := range b.Columns[stageIdx].Cards {
		if c.ID == cardID {
			return i
		}
	}
	return -1
}

// assemble partitions cards into their stage columns. Cards whose stage is
// not on the board are dropped.
func assemble(tenantID string, boardType domain.BoardType, stages []domain.Stage, cards []domain.Card) Board {
	b := Board{TenantID: tenantID, BoardType: boardType, Columns: make([]domain.Column, 0, len(stages))}
	for _, s := range stages {
		b.Columns = append(b.Columns, domain.Column{Stage: s, Cards: []domain.Card{}})
	}
	b.sortStages()
	for _, c := range cards {
		if i := b.stageIndex(c.StageID); i >= 0 {
			b.Columns[i].Cards = append(b.Columns[i].Cards, c)
		}
	}
	for i := range b.Columns {
		cs := b.Columns[i].Cards
		sort.SliceStable(cs, func(x, y int) bool { return cs[x].CreatedAt.Before(cs[y].CreatedAt) })
	}
	return b
}

func (b *Board) sortStages() {
	sort.SliceStable(b.Columns, func(i, j int) bool { return b.Columns[i].Stage.Order < b.Columns[j].Stage.Order })
}

// moveCard removes cardID from fromStageID and appends it to toStageID.
// It returns the index the card had in the source column.
func (b *Board) moveCard(cardID, fromStageID, toStageID string) (int, error) {
	if fromStageID == toStageID {
		return -1, ErrSameStage
	}
	from := b.stageIndex(fromStageID)
	to := b.stageIndex(toStageID)
	if from < 0 || to < 0 {
		return -1, ErrStageNotFound
	}
	idx := b.cardIndex(from, cardID)
	if idx < 0 {
		return -1, ErrCardNotFound
	}
	card := b.Columns[from].Cards[idx]
	b.Columns[from].Cards = append(b.Columns[from].Cards[:idx:idx], b.Columns[from].Cards[idx+1:]...)
	card.StageID = toStageID
	b.Columns[to].Cards = append(b.Columns[to].Cards, card)
	return idx, nil
}

// insertCardAt places card in its stage at idx (clamped); idx < 0 appends
func (b *Board) insertCardAt(card domain.Card, idx int) error {
	si := b.stageIndex(card.StageID)
	if si < 0 {
		return ErrStageNotFound
	}
	cards := b.Columns[si].Cards
	if idx < 0 || idx > len(cards) {
		idx = len(cards)
	}
	cards = append(cards, domain.Card{})
	copy(cards[idx+1:], cards[idx:])
	cards[idx] = card
	b.Columns[si].Cards = cards
	return nil
}

// removeCard deletes cardID wherever it is. It reports the stage and index it
// was found at, or ok=false when absent.
func (b *Board) removeCard(cardID string) (card domain.Card, stageID string, idx int, ok bool) {
	for si := range b.Columns {
		if i := b.cardIndex(si, cardID); i >= 0 {
			card = b.Columns[si].Cards[i]
			b.Columns[si].Cards = append(b.Columns[si].Cards[:i:i], b.Columns[si].Cards[i+1:]...)
			return card, b.Columns[si].Stage.ID, i, true
		}
	}
	return domain.Card{}, "", -1, false
}

// upsertCard replaces the card in place when it stays in the same stage,
// otherwise removes it from its old stage and appends it to the new one.
// A card pointing to an unknown stage leaves the board untouched and
// returns ErrStageNotFound.
func (b *Board) upsertCard(card domain.Card) error {
	if b.stageIndex(card.StageID) < 0 {
		return ErrStageNotFound
	}
	for si := range b.Columns {
		if i := b.cardIndex(si, card.ID); i >= 0 {
			if b.Columns[si].Stage.ID == card.StageID {
				b.Columns[si].Cards[i] = card
				return nil
			}
			b.Columns[si].Cards = append(b.Columns[si].Cards[:i:i], b.Columns[si].Cards[i+1:]...)
			break
		}
	}
	return b.insertCardAt(card, -1)
}

// upsertStage inserts or replaces a stage and keeps columns sorted by order
func (b *Board) upsertStage(stage domain.Stage) {
	if i := b.stageIndex(stage.ID); i >= 0 {
		b.Columns[i].Stage = stage
	} else {
		b.Columns = append(b.Columns, domain.Column{Stage: stage, Cards: []domain.Card{}})
	}
	b.sortStages()
}

// fallbackStage returns the first stage by order other than stageID
func (b Board) fallbackStage(stageID string) (string, bool) {
	for _, col := range b.Columns {
		if col.Stage.ID != stageID {
			return col.Stage.ID, true
		}
	}
	return "", false
}

// removeStage deletes a stage, reassigning its cards to the first remaining
// stage. The removed column (with its original cards) and its index are
// returned for compensation.
func (b *Board) removeStage(stageID string) (domain.Column, int, string, error) {
	i := b.stageIndex(stageID)
	if i < 0 {
		return domain.Column{}, -1, "", ErrStageNotFound
	}
	removed := domain.Column{Stage: b.Columns[i].Stage, Cards: append([]domain.Card(nil), b.Columns[i].Cards...)}
	target, ok := b.fallbackStage(stageID)
	if !ok && len(removed.Cards) > 0 {
		return domain.Column{}, -1, "", ErrStageNotEmpty
	}
	b.Columns = append(b.Columns[:i:i], b.Columns[i+1:]...)
	if ok {
		ti := b.stageIndex(target)
		for _, c := range removed.Cards {
			c.StageID = target
			b.Columns[ti].Cards = append(b.Columns[ti].Cards, c)
		}
	}
	return removed, i, target, nil
}

// restoreStage reverses removeStage: the stage is reinserted and any of its
// original cards still sitting in target are moved back.
func (b *Board) restoreStage(removed domain.Column, target string) {
	if b.stageIndex(removed.Stage.ID) >= 0 {
		return
	}
	col := domain.Column{Stage: removed.Stage, Cards: []domain.Card{}}
	ti := b.stageIndex(target)
	for _, c := range removed.Cards {
		if ti >= 0 {
			if i := b.cardIndex(ti, c.ID); i >= 0 {
				b.Columns[ti].Cards = append(b.Columns[ti].Cards[:i:i], b.Columns[ti].Cards[i+1:]...)
				col.Cards = append(col.Cards, c)
			}
		}
	}
	b.Columns = append(b.Columns, col)
	b.sortStages()
}
