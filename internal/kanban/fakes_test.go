package kanban

import (
	"context"
	"encoding/json"
	"errors"
	"sort"
	"sync"
	"time"

	"crmboard/internal/board/domain"
	"crmboard/internal/board/dto"
)

var errRemote = errors.New("remote rejected")

type fakeBackend struct {
	mu     sync.Mutex
	stages []dto.StageRow
	cards  []dto.CardRow
	fail   map[string]error
	calls  map[string]int
	clock  time.Time
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{
		fail:  make(map[string]error),
		calls: make(map[string]int),
		clock: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
	}
}

func intPtr(i int) *int { return &i }

func (f *fakeBackend) tick() *time.Time {
	f.clock = f.clock.Add(time.Second)
	t := f.clock
	return &t
}

func (f *fakeBackend) addStage(tenant string, bt domain.BoardType, id, name string, order int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	now := f.tick()
	f.stages = append(f.stages, dto.StageRow{ID: id, TenantID: tenant, BoardType: string(bt), Name: name, Order: intPtr(order), CreatedAt: now, UpdatedAt: now})
}

func (f *fakeBackend) addCard(tenant string, bt domain.BoardType, id, stageID, title string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	now := f.tick()
	f.cards = append(f.cards, dto.CardRow{ID: id, TenantID: tenant, BoardType: string(bt), StageID: stageID, Title: title, Priority: "medium", CreatedAt: now, UpdatedAt: now})
}

func (f *fakeBackend) failOn(op string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fail[op] = err
}

func (f *fakeBackend) count(op string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[op]
}

func (f *fakeBackend) enter(op string) error {
	f.mu.Lock()
	f.calls[op]++
	return f.fail[op]
}

func (f *fakeBackend) ListStages(ctx context.Context, tenantID string, bt domain.BoardType) ([]dto.StageRow, error) {
	if err := f.enter("ListStages"); err != nil {
		f.mu.Unlock()
		return nil, err
	}
	defer f.mu.Unlock()
	var out []dto.StageRow
	for _, s := range f.stages {
		if s.TenantID == tenantID && s.BoardType == string(bt) {
			out = append(out, s)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return *out[i].Order < *out[j].Order })
	return out, nil
}

func (f *fakeBackend) ListCards(ctx context.Context, tenantID string, bt domain.BoardType) ([]dto.CardRow, error) {
	if err := f.enter("ListCards"); err != nil {
		f.mu.Unlock()
		return nil, err
	}
	defer f.mu.Unlock()
	var out []dto.CardRow
	for _, c := range f.cards {
		if c.TenantID == tenantID && c.BoardType == string(bt) {
			out = append(out, c)
		}
	}
	return out, nil
}

func (f *fakeBackend) CreateStage(ctx context.Context, tenantID string, bt domain.BoardType, in dto.StageInput) (dto.StageRow, error) {
	if err := f.enter("CreateStage"); err != nil {
		f.mu.Unlock()
		return dto.StageRow{}, err
	}
	defer f.mu.Unlock()
	now := f.tick()
	row := dto.StageRow{ID: in.ID, TenantID: tenantID, BoardType: string(bt), Name: in.Name, Color: in.Color, Order: in.Order, CreatedAt: now, UpdatedAt: now}
	f.stages = append(f.stages, row)
	return row, nil
}

func (f *fakeBackend) UpdateStage(ctx context.Context, tenantID string, bt domain.BoardType, stageID string, patch dto.StagePatch) (dto.StageRow, error) {
	if err := f.enter("UpdateStage"); err != nil {
		f.mu.Unlock()
		return dto.StageRow{}, err
	}
	defer f.mu.Unlock()
	for i := range f.stages {
		if f.stages[i].ID == stageID {
			if patch.Name != nil {
				f.stages[i].Name = *patch.Name
			}
			if patch.Color != nil {
				f.stages[i].Color = *patch.Color
			}
			if patch.Order != nil {
				f.stages[i].Order = intPtr(*patch.Order)
			}
			f.stages[i].UpdatedAt = f.tick()
			return f.stages[i], nil
		}
	}
	return dto.StageRow{}, errors.New("stage not found")
}

func (f *fakeBackend) DeleteStage(ctx context.Context, tenantID string, bt domain.BoardType, stageID string) error {
	if err := f.enter("DeleteStage"); err != nil {
		f.mu.Unlock()
		return err
	}
	defer f.mu.Unlock()
	for i := range f.stages {
		if f.stages[i].ID == stageID {
			f.stages = append(f.stages[:i], f.stages[i+1:]...)
			return nil
		}
	}
	return nil
}

func (f *fakeBackend) CreateCard(ctx context.Context, tenantID string, bt domain.BoardType, in dto.CardInput) (dto.CardRow, error) {
	if err := f.enter("CreateCard"); err != nil {
		f.mu.Unlock()
		return dto.CardRow{}, err
	}
	defer f.mu.Unlock()
	now := f.tick()
	row := dto.CardRow{
		ID: in.ID, TenantID: tenantID, BoardType: string(bt), StageID: in.StageID, Title: in.Title,
		Description: in.Description, Priority: string(domain.ParsePriority(in.Priority)),
		AssigneeID: in.AssigneeID, Source: in.Source, CreatedAt: now, UpdatedAt: now,
	}
	f.cards = append(f.cards, row)
	return row, nil
}

func (f *fakeBackend) UpdateCard(ctx context.Context, tenantID string, bt domain.BoardType, cardID string, patch dto.CardPatch) (dto.CardRow, error) {
	if err := f.enter("UpdateCard"); err != nil {
		f.mu.Unlock()
		return dto.CardRow{}, err
	}
	defer f.mu.Unlock()
	for i := range f.cards {
		if f.cards[i].ID == cardID {
			if patch.Title != nil {
				f.cards[i].Title = *patch.Title
			}
			if patch.Description != nil {
				f.cards[i].Description = *patch.Description
			}
			f.cards[i].UpdatedAt = f.tick()
			return f.cards[i], nil
		}
	}
	return dto.CardRow{}, errors.New("card not found")
}

func (f *fakeBackend) MoveCard(ctx context.Context, tenantID string, bt domain.BoardType, cardID, toStageID string) (dto.CardRow, error) {
	if err := f.enter("MoveCard"); err != nil {
		f.mu.Unlock()
		return dto.CardRow{}, err
	}
	defer f.mu.Unlock()
	for i := range f.cards {
		if f.cards[i].ID == cardID {
			f.cards[i].StageID = toStageID
			f.cards[i].UpdatedAt = f.tick()
			return f.cards[i], nil
		}
	}
	return dto.CardRow{}, errors.New("card not found")
}

func (f *fakeBackend) DeleteCard(ctx context.Context, tenantID string, bt domain.BoardType, cardID string) error {
	if err := f.enter("DeleteCard"); err != nil {
		f.mu.Unlock()
		return err
	}
	defer f.mu.Unlock()
	for i := range f.cards {
		if f.cards[i].ID == cardID {
			f.cards = append(f.cards[:i], f.cards[i+1:]...)
			return nil
		}
	}
	return nil
}

type recordedWrite struct {
	key     domain.SnapshotKey
	columns domain.Columns
}

type fakeWriter struct {
	mu     sync.Mutex
	writes []recordedWrite
	err    error

	// when set, each write signals entered and then waits for release
	entered chan struct{}
	release chan struct{}
}

func (w *fakeWriter) SaveSnapshot(ctx context.Context, key domain.SnapshotKey, columns domain.Columns) error {
	w.mu.Lock()
	w.writes = append(w.writes, recordedWrite{key: key, columns: columns})
	err := w.err
	w.mu.Unlock()
	if w.release != nil {
		w.entered <- struct{}{}
		<-w.release
	}
	return err
}

func (w *fakeWriter) Writes() []recordedWrite {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]recordedWrite(nil), w.writes...)
}

type subscription struct {
	table, filter string
	ch            chan domain.ChangeEvent
}

type fakeFeed struct {
	mu       sync.Mutex
	subs     []*subscription
	failures int // remaining calls that fail with errFeedDown
	attempts int
}

var errFeedDown = errors.New("feed unavailable")

// failNext makes the next n Subscribe calls fail
func (f *fakeFeed) failNext(n int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failures = n
}

func (f *fakeFeed) attemptCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.attempts
}

func (f *fakeFeed) Subscribe(ctx context.Context, table, filter string) (<-chan domain.ChangeEvent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.attempts++
	if f.failures > 0 {
		f.failures--
		return nil, errFeedDown
	}
	s := &subscription{table: table, filter: filter, ch: make(chan domain.ChangeEvent, 16)}
	f.subs = append(f.subs, s)
	return s.ch, nil
}

func (f *fakeFeed) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.subs)
}

func (f *fakeFeed) latest(table string) *subscription {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := len(f.subs) - 1; i >= 0; i-- {
		if f.subs[i].table == table {
			return f.subs[i]
		}
	}
	return nil
}

// dropAll closes every open subscription channel
func (f *fakeFeed) dropAll() {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, s := range f.subs {
		close(s.ch)
	}
	f.subs = nil
}

type notification struct {
	op  string
	err error
}

type recordingNotifier struct {
	mu   sync.Mutex
	seen []notification
}

func (n *recordingNotifier) Notify(op string, err error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.seen = append(n.seen, notification{op: op, err: err})
}

func (n *recordingNotifier) all() []notification {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]notification(nil), n.seen...)
}

func cardEvent(typ domain.EventType, row dto.CardRow) domain.ChangeEvent {
	raw, _ := json.Marshal(row)
	ev := domain.ChangeEvent{Table: domain.TableCards, Type: typ, TenantID: row.TenantID, BoardType: domain.BoardType(row.BoardType)}
	if typ == domain.EventDelete {
		ev.Old = raw
	} else {
		ev.New = raw
	}
	return ev
}

func stageEvent(typ domain.EventType, row dto.StageRow) domain.ChangeEvent {
	raw, _ := json.Marshal(row)
	ev := domain.ChangeEvent{Table: domain.TableStages, Type: typ, TenantID: row.TenantID, BoardType: domain.BoardType(row.BoardType)}
	if typ == domain.EventDelete {
		ev.Old = raw
	} else {
		ev.New = raw
	}
	return ev
}

func cardIDs(col domain.Column) []string {
	ids := make([]string, 0, len(col.Cards))
	for _, c := range col.Cards {
		ids = append(ids, c.ID)
	}
	return ids
}

func stageNames(b Board) []string {
	names := make([]string, 0, len(b.Columns))
	for _, col := range b.Columns {
		names = append(names, col.Stage.Name)
	}
	return names
}
