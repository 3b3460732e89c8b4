package kanban

import (
	"context"
	"sync"
	"testing"

	"crmboard/internal/board/domain"
	"crmboard/internal/board/dto"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func loadedStore(t *testing.T, backend *fakeBackend, opts ...Option) *Store {
	t.Helper()
	s := NewStore(backend, domain.BoardFunnel, opts...)
	_, err := s.Load(context.Background(), "t1")
	require.NoError(t, err)
	return s
}

func backlogDone() *fakeBackend {
	backend := newFakeBackend()
	backend.addStage("t1", domain.BoardFunnel, "backlog", "Backlog", 0)
	backend.addStage("t1", domain.BoardFunnel, "done", "Done", 1)
	backend.addCard("t1", domain.BoardFunnel, "c1", "backlog", "Acme renewal")
	return backend
}

func TestStoreLoad(t *testing.T) {
	t.Run("empty remote data gives an empty board", func(t *testing.T) {
		s := NewStore(newFakeBackend(), domain.BoardFunnel)
		b, err := s.Load(context.Background(), "t1")
		require.NoError(t, err)
		assert.Empty(t, b.Columns)
		assert.Equal(t, 0, b.CardCount())
		assert.Equal(t, "t1", b.TenantID)
	})

	t.Run("is idempotent", func(t *testing.T) {
		s := NewStore(backlogDone(), domain.BoardFunnel)
		first, err := s.Load(context.Background(), "t1")
		require.NoError(t, err)
		second, err := s.Load(context.Background(), "t1")
		require.NoError(t, err)
		assert.Equal(t, first, second)
	})

	t.Run("keeps tenants isolated", func(t *testing.T) {
		backend := backlogDone()
		backend.addStage("t2", domain.BoardFunnel, "other", "Other", 0)
		backend.addCard("t2", domain.BoardFunnel, "foreign", "backlog", "Not yours")
		backend.addCard("t1", domain.BoardProduction, "task", "backlog", "Wrong board")

		s := NewStore(backend, domain.BoardFunnel)
		b, err := s.Load(context.Background(), "t1")
		require.NoError(t, err)
		for _, col := range b.Columns {
			assert.Equal(t, "t1", col.Stage.TenantID)
			for _, c := range col.Cards {
				assert.Equal(t, "t1", c.TenantID)
				assert.Equal(t, domain.BoardFunnel, c.BoardType)
			}
		}
		assert.Equal(t, []string{"Backlog", "Done"}, stageNames(b))
		assert.Equal(t, 1, b.CardCount())
	})

	t.Run("drops invalid rows", func(t *testing.T) {
		backend := backlogDone()
		backend.stages = append(backend.stages, dto.StageRow{ID: "broken", TenantID: "t1", BoardType: "funnel", Order: intPtr(2)})
		backend.cards = append(backend.cards, dto.CardRow{ID: "neg", TenantID: "t1", BoardType: "funnel", StageID: "backlog", Title: "x", Value: "-3"})

		s := NewStore(backend, domain.BoardFunnel)
		b, err := s.Load(context.Background(), "t1")
		require.NoError(t, err)
		assert.Len(t, b.Columns, 2)
		assert.Equal(t, 1, b.CardCount())
	})

	t.Run("failure leaves the board untouched", func(t *testing.T) {
		backend := backlogDone()
		notifier := &recordingNotifier{}
		s := loadedStore(t, backend, WithNotifier(notifier))
		before := s.Board()

		backend.failOn("ListCards", errRemote)
		b, err := s.Load(context.Background(), "t1")
		require.ErrorIs(t, err, errRemote)
		assert.Equal(t, before, b)
		assert.Equal(t, before, s.Board())
		require.Len(t, notifier.all(), 1)
		assert.Equal(t, "load board", notifier.all()[0].op)
	})
}

func TestStoreMoveCard(t *testing.T) {
	t.Run("moves the card", func(t *testing.T) {
		backend := backlogDone()
		s := loadedStore(t, backend)

		require.NoError(t, s.MoveCard(context.Background(), "c1", "backlog", "done"))

		b := s.Board()
		assert.Empty(t, b.Columns[0].Cards)
		assert.Equal(t, []string{"c1"}, cardIDs(b.Columns[1]))
		assert.Equal(t, 1, backend.count("MoveCard"))
	})

	t.Run("observers see the optimistic move before the remote call returns", func(t *testing.T) {
		backend := backlogDone()
		s := loadedStore(t, backend)
		var mu sync.Mutex
		var seen []Board
		s.Subscribe(func(b Board) {
			mu.Lock()
			defer mu.Unlock()
			seen = append(seen, b)
		})

		require.NoError(t, s.MoveCard(context.Background(), "c1", "backlog", "done"))
		mu.Lock()
		defer mu.Unlock()
		require.NotEmpty(t, seen)
		assert.Equal(t, []string{"c1"}, cardIDs(seen[0].Columns[1]))
	})

	t.Run("rolls back when the backend rejects the move", func(t *testing.T) {
		backend := backlogDone()
		backend.addCard("t1", domain.BoardFunnel, "c2", "backlog", "Globex")
		backend.addCard("t1", domain.BoardFunnel, "c3", "backlog", "Initech")
		notifier := &recordingNotifier{}
		s := loadedStore(t, backend, WithNotifier(notifier))
		backend.failOn("MoveCard", errRemote)

		err := s.MoveCard(context.Background(), "c2", "backlog", "done")
		require.ErrorIs(t, err, errRemote)

		b := s.Board()
		assert.Equal(t, []string{"c1", "c2", "c3"}, cardIDs(b.Columns[0]))
		assert.Empty(t, b.Columns[1].Cards)
		require.Len(t, notifier.all(), 1)
		assert.Equal(t, "move card", notifier.all()[0].op)
	})

	t.Run("invalid moves never reach the backend", func(t *testing.T) {
		backend := backlogDone()
		s := loadedStore(t, backend)
		assert.ErrorIs(t, s.MoveCard(context.Background(), "c1", "backlog", "backlog"), ErrSameStage)
		assert.ErrorIs(t, s.MoveCard(context.Background(), "c1", "done", "backlog"), ErrCardNotFound)
		assert.ErrorIs(t, s.MoveCard(context.Background(), "c1", "backlog", "nope"), ErrStageNotFound)
		assert.Equal(t, 0, backend.count("MoveCard"))
	})

	t.Run("requires a loaded board", func(t *testing.T) {
		s := NewStore(backlogDone(), domain.BoardFunnel)
		assert.ErrorIs(t, s.MoveCard(context.Background(), "c1", "backlog", "done"), ErrNotLoaded)
	})
}

func TestStoreStages(t *testing.T) {
	t.Run("add appends with next order", func(t *testing.T) {
		backend := backlogDone()
		s := loadedStore(t, backend, WithIDGenerator(func() string { return "won" }))

		stage, err := s.AddStage(context.Background(), dto.StageInput{Name: "Won", Color: "#0f0"})
		require.NoError(t, err)
		assert.Equal(t, "won", stage.ID)
		assert.Equal(t, 2, stage.Order)
		assert.False(t, stage.UpdatedAt.IsZero())
		assert.Equal(t, []string{"Backlog", "Done", "Won"}, stageNames(s.Board()))
	})

	t.Run("add is compensated on failure", func(t *testing.T) {
		backend := backlogDone()
		backend.failOn("CreateStage", errRemote)
		s := loadedStore(t, backend)

		_, err := s.AddStage(context.Background(), dto.StageInput{Name: "Won"})
		require.ErrorIs(t, err, errRemote)
		assert.Equal(t, []string{"Backlog", "Done"}, stageNames(s.Board()))
	})

	t.Run("edit reorders and is compensated on failure", func(t *testing.T) {
		backend := backlogDone()
		s := loadedStore(t, backend)
		name := "Leads"

		_, err := s.EditStage(context.Background(), "backlog", dto.StagePatch{Name: &name, Order: intPtr(5)})
		require.NoError(t, err)
		assert.Equal(t, []string{"Done", "Leads"}, stageNames(s.Board()))

		backend.failOn("UpdateStage", errRemote)
		other := "Closed"
		_, err = s.EditStage(context.Background(), "backlog", dto.StagePatch{Name: &other})
		require.ErrorIs(t, err, errRemote)
		assert.Equal(t, []string{"Done", "Leads"}, stageNames(s.Board()))
	})

	t.Run("delete reassigns cards", func(t *testing.T) {
		backend := backlogDone()
		backend.addCard("t1", domain.BoardFunnel, "c2", "done", "Closed deal")
		s := loadedStore(t, backend)

		require.NoError(t, s.DeleteStage(context.Background(), "done"))
		b := s.Board()
		assert.Equal(t, []string{"Backlog"}, stageNames(b))
		assert.Equal(t, []string{"c1", "c2"}, cardIDs(b.Columns[0]))
	})

	t.Run("delete of the last stage with cards is refused", func(t *testing.T) {
		backend := newFakeBackend()
		backend.addStage("t1", domain.BoardFunnel, "only", "Only", 0)
		backend.addCard("t1", domain.BoardFunnel, "c1", "only", "Stuck")
		s := loadedStore(t, backend)

		assert.ErrorIs(t, s.DeleteStage(context.Background(), "only"), ErrStageNotEmpty)
		assert.Equal(t, 0, backend.count("DeleteStage"))
	})

	t.Run("delete is compensated on failure", func(t *testing.T) {
		backend := backlogDone()
		backend.failOn("DeleteStage", errRemote)
		s := loadedStore(t, backend)
		before := s.Board()

		require.ErrorIs(t, s.DeleteStage(context.Background(), "backlog"), errRemote)
		assert.Equal(t, before, s.Board())
	})
}

func TestStoreCards(t *testing.T) {
	t.Run("add uses the confirmed row", func(t *testing.T) {
		backend := backlogDone()
		s := loadedStore(t, backend, WithIDGenerator(func() string { return "c9" }))

		card, err := s.AddCard(context.Background(), dto.CardInput{StageID: "done", Title: "Hooli", Priority: "high"})
		require.NoError(t, err)
		assert.Equal(t, "c9", card.ID)
		assert.Equal(t, domain.PriorityHigh, card.Priority)
		assert.False(t, card.CreatedAt.IsZero())
		assert.Equal(t, []string{"c9"}, cardIDs(s.Board().Columns[1]))
	})

	t.Run("add to an unknown stage fails locally", func(t *testing.T) {
		backend := backlogDone()
		s := loadedStore(t, backend)
		_, err := s.AddCard(context.Background(), dto.CardInput{StageID: "nope", Title: "x"})
		assert.ErrorIs(t, err, ErrStageNotFound)
		assert.Equal(t, 0, backend.count("CreateCard"))
	})

	t.Run("add is compensated on failure", func(t *testing.T) {
		backend := backlogDone()
		backend.failOn("CreateCard", errRemote)
		s := loadedStore(t, backend)
		_, err := s.AddCard(context.Background(), dto.CardInput{StageID: "done", Title: "Hooli"})
		require.ErrorIs(t, err, errRemote)
		assert.Equal(t, 1, s.Board().CardCount())
	})

	t.Run("edit is compensated on failure", func(t *testing.T) {
		backend := backlogDone()
		backend.failOn("UpdateCard", errRemote)
		s := loadedStore(t, backend)
		title := "Changed"

		_, err := s.EditCard(context.Background(), "c1", dto.CardPatch{Title: &title})
		require.ErrorIs(t, err, errRemote)
		card, _, ok := s.Board().FindCard("c1")
		require.True(t, ok)
		assert.Equal(t, "Acme renewal", card.Title)
	})

	t.Run("delete restores position on failure", func(t *testing.T) {
		backend := backlogDone()
		backend.addCard("t1", domain.BoardFunnel, "c2", "backlog", "Globex")
		backend.failOn("DeleteCard", errRemote)
		s := loadedStore(t, backend)

		require.ErrorIs(t, s.DeleteCard(context.Background(), "c1"), errRemote)
		assert.Equal(t, []string{"c1", "c2"}, cardIDs(s.Board().Columns[0]))
	})

	t.Run("delete", func(t *testing.T) {
		backend := backlogDone()
		s := loadedStore(t, backend)
		require.NoError(t, s.DeleteCard(context.Background(), "c1"))
		assert.Equal(t, 0, s.Board().CardCount())
		assert.ErrorIs(t, s.DeleteCard(context.Background(), "c1"), ErrCardNotFound)
	})
}

func TestStoreSubscribe(t *testing.T) {
	backend := backlogDone()
	s := loadedStore(t, backend)
	calls := 0
	unsubscribe := s.Subscribe(func(Board) { calls++ })

	require.NoError(t, s.MoveCard(context.Background(), "c1", "backlog", "done"))
	assert.Positive(t, calls)

	unsubscribe()
	seen := calls
	require.NoError(t, s.MoveCard(context.Background(), "c1", "done", "backlog"))
	assert.Equal(t, seen, calls)
}
