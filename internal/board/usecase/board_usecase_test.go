package usecase

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"testing"
	"time"

	"crmboard/internal/board/domain"
	"crmboard/internal/board/dto"
	"crmboard/internal/board/repository"
	"crmboard/pkg/metrics"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// memoryStore backs the three repository interfaces with maps
type memoryStore struct {
	mu        sync.Mutex
	seq       int
	stages    map[string]*domain.Stage
	cards     map[string]*domain.Card
	history   []*domain.CardHistory
	snapshots map[domain.SnapshotKey]*domain.Snapshot
	clock     time.Time

	// afterGet runs once after the next GetStage or GetCard, outside the lock
	afterGet func()
}

func (m *memoryStore) takeAfterGet() func() {
	fn := m.afterGet
	m.afterGet = nil
	return fn
}

func newMemoryStore() *memoryStore {
	return &memoryStore{
		stages:    make(map[string]*domain.Stage),
		cards:     make(map[string]*domain.Card),
		snapshots: make(map[domain.SnapshotKey]*domain.Snapshot),
		clock:     time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
	}
}

func (m *memoryStore) now() time.Time {
	m.clock = m.clock.Add(time.Second)
	return m.clock
}

func (m *memoryStore) nextID(prefix string) string {
	m.seq++
	return fmt.Sprintf("%s%d", prefix, m.seq)
}

type stageRepo struct{ *memoryStore }
type cardRepo struct{ *memoryStore }
type snapshotRepo struct{ *memoryStore }

func (r stageRepo) ListStages(ctx context.Context, tenantID string, bt domain.BoardType) ([]*domain.Stage, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*domain.Stage
	for _, s := range r.stages {
		if s.TenantID == tenantID && s.BoardType == bt {
			cp := *s
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Order < out[j].Order })
	return out, nil
}

func (r stageRepo) GetStage(ctx context.Context, tenantID string, bt domain.BoardType, id string) (*domain.Stage, error) {
	r.mu.Lock()
	hook := r.takeAfterGet()
	defer func() {
		if hook != nil {
			hook()
		}
	}()
	defer r.mu.Unlock()
	s, ok := r.stages[id]
	if !ok || s.TenantID != tenantID || s.BoardType != bt {
		return nil, nil
	}
	cp := *s
	return &cp, nil
}

func (r stageRepo) CreateStage(ctx context.Context, s *domain.Stage) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if s.ID == "" {
		s.ID = r.nextID("s")
	}
	s.CreatedAt = r.now()
	s.UpdatedAt = s.CreatedAt
	cp := *s
	r.stages[s.ID] = &cp
	return nil
}

func (r stageRepo) UpdateStage(ctx context.Context, tenantID string, bt domain.BoardType, id string, patch dto.StagePatch) (*domain.Stage, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.stages[id]
	if !ok || s.TenantID != tenantID || s.BoardType != bt {
		return nil, nil
	}
	if patch.Order != nil {
		for _, other := range r.stages {
			if other.ID != id && other.TenantID == tenantID && other.BoardType == bt && other.Order == *patch.Order {
				return nil, repository.ErrOrderTaken
			}
		}
	}
	patch.Apply(s)
	s.UpdatedAt = r.now()
	cp := *s
	return &cp, nil
}

func (r stageRepo) UpdateStageOrders(ctx context.Context, tenantID string, bt domain.BoardType, orders map[string]int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for id, o := range orders {
		if s, ok := r.stages[id]; ok && s.TenantID == tenantID {
			s.Order = o
			s.UpdatedAt = r.now()
		}
	}
	return nil
}

func (r stageRepo) DeleteStage(ctx context.Context, tenantID string, bt domain.BoardType, stageID, target string) ([]*domain.Card, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var moved []*domain.Card
	for _, c := range r.cards {
		if c.TenantID == tenantID && c.BoardType == bt && c.StageID == stageID && target != "" {
			c.StageID = target
			c.UpdatedAt = r.now()
			cp := *c
			moved = append(moved, &cp)
		}
	}
	delete(r.stages, stageID)
	return moved, nil
}

func (r cardRepo) ListCards(ctx context.Context, tenantID string, bt domain.BoardType) ([]*domain.Card, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*domain.Card
	for _, c := range r.cards {
		if c.TenantID == tenantID && c.BoardType == bt {
			cp := *c
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (r cardRepo) GetCard(ctx context.Context, tenantID string, bt domain.BoardType, id string) (*domain.Card, error) {
	r.mu.Lock()
	hook := r.takeAfterGet()
	defer func() {
		if hook != nil {
			hook()
		}
	}()
	defer r.mu.Unlock()
	c, ok := r.cards[id]
	if !ok || c.TenantID != tenantID || c.BoardType != bt {
		return nil, nil
	}
	cp := *c
	return &cp, nil
}

func (r cardRepo) CountByStage(ctx context.Context, tenantID string, bt domain.BoardType, stageID string) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	for _, c := range r.cards {
		if c.TenantID == tenantID && c.BoardType == bt && c.StageID == stageID {
			n++
		}
	}
	return n, nil
}

func (r cardRepo) CreateCard(ctx context.Context, c *domain.Card) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if c.ID == "" {
		c.ID = r.nextID("c")
	}
	c.CreatedAt = r.now()
	c.UpdatedAt = c.CreatedAt
	cp := *c
	r.cards[c.ID] = &cp
	return nil
}

func (r cardRepo) UpdateCard(ctx context.Context, tenantID string, bt domain.BoardType, id string, patch dto.CardPatch) (*domain.Card, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.cards[id]
	if !ok || c.TenantID != tenantID || c.BoardType != bt {
		return nil, nil
	}
	patch.Apply(c)
	c.UpdatedAt = r.now()
	cp := *c
	return &cp, nil
}

func (r cardRepo) MoveCard(ctx context.Context, c *domain.Card, h *domain.CardHistory) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	c.UpdatedAt = r.now()
	r.cards[c.ID].StageID = c.StageID
	r.cards[c.ID].UpdatedAt = c.UpdatedAt
	h.ID = r.nextID("h")
	h.CreatedAt = c.UpdatedAt
	r.history = append(r.history, h)
	return nil
}

func (r cardRepo) DeleteCard(ctx context.Context, tenantID string, bt domain.BoardType, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.cards, id)
	return nil
}

func (r cardRepo) ListHistory(ctx context.Context, tenantID, cardID string) ([]*domain.CardHistory, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*domain.CardHistory
	for _, h := range r.history {
		if h.TenantID == tenantID && h.CardID == cardID {
			out = append(out, h)
		}
	}
	return out, nil
}

func (r snapshotRepo) GetSnapshot(ctx context.Context, key domain.SnapshotKey) (*domain.Snapshot, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.snapshots[key], nil
}

func (r snapshotRepo) UpsertSnapshot(ctx context.Context, snap *domain.Snapshot) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	snap.UpdatedAt = r.now()
	r.snapshots[snap.Key()] = snap
	return nil
}

func (r snapshotRepo) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	for k, s := range r.snapshots {
		if s.UpdatedAt.Before(cutoff) {
			delete(r.snapshots, k)
			n++
		}
	}
	return n, nil
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []domain.ChangeEvent
}

func (p *recordingPublisher) Publish(ev domain.ChangeEvent) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, ev)
}

func (p *recordingPublisher) last() domain.ChangeEvent {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.events[len(p.events)-1]
}

func (p *recordingPublisher) reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = nil
}

type fixture struct {
	uc    BoardUsecase
	store *memoryStore
	pub   *recordingPublisher
	m     *metrics.Metrics
}

func newFixture() fixture {
	store := newMemoryStore()
	pub := &recordingPublisher{}
	m := metrics.New()
	uc := NewBoardUsecase(stageRepo{store}, cardRepo{store}, snapshotRepo{store}, pub, WithMetrics(m))
	return fixture{uc: uc, store: store, pub: pub, m: m}
}

var ctx = context.Background()

const funnel = domain.BoardFunnel

func (f fixture) stage(t *testing.T, name string) *domain.Stage {
	t.Helper()
	s, err := f.uc.CreateStage(ctx, "acme", funnel, dto.StageInput{Name: name})
	require.NoError(t, err)
	return s
}

func (f fixture) card(t *testing.T, stageID, title string) *domain.Card {
	t.Helper()
	c, err := f.uc.CreateCard(ctx, "acme", funnel, dto.CardInput{StageID: stageID, Title: title})
	require.NoError(t, err)
	return c
}

func intPtr(i int) *int { return &i }

func TestCreateStage(t *testing.T) {
	f := newFixture()
	lead := f.stage(t, "Lead")
	won := f.stage(t, "Won")
	assert.Equal(t, 0, lead.Order)
	assert.Equal(t, 1, won.Order)

	_, err := f.uc.CreateStage(ctx, "acme", funnel, dto.StageInput{Name: "Dup", Order: intPtr(1)})
	assert.ErrorIs(t, err, ErrDuplicateOrder)
	_, err = f.uc.CreateStage(ctx, "acme", funnel, dto.StageInput{Name: "  "})
	assert.ErrorIs(t, err, ErrInvalidInput)
	_, err = f.uc.CreateStage(ctx, "acme", "kanban", dto.StageInput{Name: "x"})
	assert.ErrorIs(t, err, ErrInvalidInput)
	_, err = f.uc.CreateStage(ctx, "acme", funnel, dto.StageInput{ID: lead.ID, Name: "again"})
	assert.ErrorIs(t, err, ErrConflict)

	client, err := f.uc.CreateStage(ctx, "acme", funnel, dto.StageInput{ID: "client-uuid", Name: "Lost"})
	require.NoError(t, err)
	assert.Equal(t, "client-uuid", client.ID)

	ev := f.pub.last()
	assert.Equal(t, domain.TableStages, ev.Table)
	assert.Equal(t, domain.EventInsert, ev.Type)
	assert.Equal(t, "acme", ev.TenantID)
	stage, err := dto.DecodeStage(ev.New)
	require.NoError(t, err)
	assert.Equal(t, "Lost", stage.Name)
	assert.Equal(t, 3.0, testutil.ToFloat64(f.m.BoardMutations.WithLabelValues("stages", "INSERT")))
}

func TestUpdateAndReorderStages(t *testing.T) {
	f := newFixture()
	lead := f.stage(t, "Lead")
	won := f.stage(t, "Won")

	name := "Qualified"
	updated, err := f.uc.UpdateStage(ctx, "acme", funnel, lead.ID, dto.StagePatch{Name: &name})
	require.NoError(t, err)
	assert.Equal(t, "Qualified", updated.Name)

	_, err = f.uc.UpdateStage(ctx, "acme", funnel, lead.ID, dto.StagePatch{Order: intPtr(won.Order)})
	assert.ErrorIs(t, err, ErrDuplicateOrder)
	_, err = f.uc.UpdateStage(ctx, "globex", funnel, lead.ID, dto.StagePatch{Name: &name})
	assert.ErrorIs(t, err, ErrStageNotFound)

	f.pub.reset()
	stages, err := f.uc.ReorderStages(ctx, "acme", funnel, map[string]int{lead.ID: 1, won.ID: 0})
	require.NoError(t, err)
	assert.Equal(t, []string{won.ID, lead.ID}, []string{stages[0].ID, stages[1].ID})
	assert.Len(t, f.pub.events, 2)

	_, err = f.uc.ReorderStages(ctx, "acme", funnel, map[string]int{lead.ID: 0})
	assert.ErrorIs(t, err, ErrDuplicateOrder)
	_, err = f.uc.ReorderStages(ctx, "acme", funnel, map[string]int{"ghost": 7})
	assert.ErrorIs(t, err, ErrStageNotFound)
}

func TestUpdatesKeepConcurrentChanges(t *testing.T) {
	t.Run("card edit does not undo a move", func(t *testing.T) {
		f := newFixture()
		lead := f.stage(t, "Lead")
		won := f.stage(t, "Won")
		c := f.card(t, lead.ID, "Acme renewal")

		// a move lands between the edit's read and its write
		f.store.afterGet = func() {
			_, err := f.uc.MoveCard(ctx, "acme", funnel, "u2", c.ID, won.ID)
			require.NoError(t, err)
		}
		title := "Acme renewal 2025"
		updated, err := f.uc.UpdateCard(ctx, "acme", funnel, c.ID, dto.CardPatch{Title: &title})
		require.NoError(t, err)
		assert.Equal(t, won.ID, updated.StageID)
		assert.Equal(t, title, updated.Title)

		var newRow dto.CardRow
		require.NoError(t, json.Unmarshal(f.pub.last().New, &newRow))
		assert.Equal(t, won.ID, newRow.StageID)

		cards, err := f.uc.ListCards(ctx, "acme", funnel)
		require.NoError(t, err)
		require.Len(t, cards, 1)
		assert.Equal(t, won.ID, cards[0].StageID)
	})

	t.Run("stage order change loses to a concurrent reorder", func(t *testing.T) {
		f := newFixture()
		lead := f.stage(t, "Lead")
		won := f.stage(t, "Won")

		f.store.afterGet = func() {
			_, err := f.uc.ReorderStages(ctx, "acme", funnel, map[string]int{won.ID: 5})
			require.NoError(t, err)
		}
		_, err := f.uc.UpdateStage(ctx, "acme", funnel, lead.ID, dto.StagePatch{Order: intPtr(5)})
		assert.ErrorIs(t, err, ErrDuplicateOrder)

		stages, err := f.uc.ListStages(ctx, "acme", funnel)
		require.NoError(t, err)
		assert.Equal(t, []int{0, 5}, []int{stages[0].Order, stages[1].Order})
	})
}

func TestDeleteStageReassignsCards(t *testing.T) {
	f := newFixture()
	lead := f.stage(t, "Lead")
	won := f.stage(t, "Won")
	c1 := f.card(t, won.ID, "Acme renewal")
	f.pub.reset()

	require.NoError(t, f.uc.DeleteStage(ctx, "acme", funnel, won.ID))

	cards, err := f.uc.ListCards(ctx, "acme", funnel)
	require.NoError(t, err)
	require.Len(t, cards, 1)
	assert.Equal(t, lead.ID, cards[0].StageID)
	require.Len(t, f.pub.events, 2)
	assert.Equal(t, domain.TableCards, f.pub.events[0].Table)
	assert.Equal(t, domain.EventDelete, f.pub.events[1].Type)
	id, err := dto.RowID(f.pub.events[1].Old)
	require.NoError(t, err)
	assert.Equal(t, won.ID, id)

	assert.ErrorIs(t, f.uc.DeleteStage(ctx, "acme", funnel, won.ID), ErrStageNotFound)
	assert.ErrorIs(t, f.uc.DeleteStage(ctx, "acme", funnel, lead.ID), ErrStageNotEmpty)

	require.NoError(t, f.uc.DeleteCard(ctx, "acme", funnel, c1.ID))
	require.NoError(t, f.uc.DeleteStage(ctx, "acme", funnel, lead.ID))
}

func TestCards(t *testing.T) {
	f := newFixture()
	lead := f.stage(t, "Lead")
	won := f.stage(t, "Won")

	_, err := f.uc.CreateCard(ctx, "acme", funnel, dto.CardInput{StageID: "ghost", Title: "x"})
	assert.ErrorIs(t, err, ErrStageNotFound)
	_, err = f.uc.CreateCard(ctx, "acme", funnel, dto.CardInput{StageID: lead.ID, Title: "x", Value: -1})
	assert.ErrorIs(t, err, ErrInvalidInput)

	c, err := f.uc.CreateCard(ctx, "acme", funnel, dto.CardInput{StageID: lead.ID, Title: "Acme renewal", Priority: "urgent", Value: 1200})
	require.NoError(t, err)
	assert.Equal(t, domain.PriorityMedium, c.Priority)

	_, err = f.uc.CreateCard(ctx, "acme", funnel, dto.CardInput{ID: c.ID, StageID: lead.ID, Title: "dup"})
	assert.ErrorIs(t, err, ErrConflict)

	title := "Acme renewal 2025"
	updated, err := f.uc.UpdateCard(ctx, "acme", funnel, c.ID, dto.CardPatch{Title: &title})
	require.NoError(t, err)
	assert.Equal(t, title, updated.Title)
	assert.Equal(t, lead.ID, updated.StageID)

	_, err = f.uc.UpdateCard(ctx, "globex", funnel, c.ID, dto.CardPatch{Title: &title})
	assert.ErrorIs(t, err, ErrCardNotFound)

	moved, err := f.uc.MoveCard(ctx, "acme", funnel, "u1", c.ID, won.ID)
	require.NoError(t, err)
	assert.Equal(t, won.ID, moved.StageID)
	ev := f.pub.last()
	assert.Equal(t, domain.EventUpdate, ev.Type)
	var newRow, oldRow dto.CardRow
	require.NoError(t, json.Unmarshal(ev.New, &newRow))
	require.NoError(t, json.Unmarshal(ev.Old, &oldRow))
	assert.Equal(t, won.ID, newRow.StageID)
	assert.Equal(t, lead.ID, oldRow.StageID)

	_, err = f.uc.MoveCard(ctx, "acme", funnel, "u1", c.ID, "ghost")
	assert.ErrorIs(t, err, ErrStageNotFound)

	history, err := f.uc.CardHistory(ctx, "acme", funnel, c.ID)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, "u1", history[0].ActorID)
	assert.Equal(t, won.ID, history[0].ToStageID)

	board, err := f.uc.GetBoard(ctx, "acme", funnel)
	require.NoError(t, err)
	assert.Len(t, board.Stages, 2)
	assert.Len(t, board.Cards, 1)

	empty, err := f.uc.GetBoard(ctx, "globex", funnel)
	require.NoError(t, err)
	assert.NotNil(t, empty.Stages)
	assert.Empty(t, empty.Cards)

	require.NoError(t, f.uc.DeleteCard(ctx, "acme", funnel, c.ID))
	assert.ErrorIs(t, f.uc.DeleteCard(ctx, "acme", funnel, c.ID), ErrCardNotFound)
}

func TestSearchCards(t *testing.T) {
	f := newFixture()
	lead := f.stage(t, "Lead")
	f.card(t, lead.ID, "Acme renewal")
	f.card(t, lead.ID, "Globex pilot")
	f.card(t, lead.ID, "Acmé expansion")

	results, err := f.uc.SearchCards(ctx, "acme", funnel, "acme", 10)
	require.NoError(t, err)
	require.Len(t, results, 2)
	for _, r := range results {
		assert.Contains(t, []string{"Acme renewal", "Acmé expansion"}, r.Card.Title)
	}

	results, err = f.uc.SearchCards(ctx, "acme", funnel, "globx", 10)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "Globex pilot", results[0].Card.Title)

	_, err = f.uc.SearchCards(ctx, "acme", funnel, " ", 10)
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestSnapshots(t *testing.T) {
	f := newFixture()
	key := domain.SnapshotKey{UserID: "u1", TenantID: "acme", BoardType: domain.BoardProduction}

	snap, err := f.uc.GetSnapshot(ctx, key)
	require.NoError(t, err)
	assert.Nil(t, snap)

	cols := domain.Columns{{Stage: domain.Stage{ID: "s1", TenantID: "acme"}, Cards: []domain.Card{{ID: "c1", TenantID: "acme", Title: "Cut"}}}}
	_, err = f.uc.SaveSnapshot(ctx, key, cols)
	require.NoError(t, err)
	cols[0].Cards[0].Title = "Sew"
	_, err = f.uc.SaveSnapshot(ctx, key, cols)
	require.NoError(t, err)

	snap, err = f.uc.GetSnapshot(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, "Sew", snap.Columns[0].Cards[0].Title)
	assert.Len(t, f.store.snapshots, 1)

	foreign := domain.Columns{{Stage: domain.Stage{ID: "s9", TenantID: "globex"}}}
	_, err = f.uc.SaveSnapshot(ctx, key, foreign)
	assert.ErrorIs(t, err, ErrInvalidInput)
	_, err = f.uc.SaveSnapshot(ctx, domain.SnapshotKey{TenantID: "acme", BoardType: domain.BoardProduction}, cols)
	assert.ErrorIs(t, err, ErrInvalidInput)
}
