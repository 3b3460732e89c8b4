package kanban

import (
	"context"
	"fmt"
	"sync"
	"time"

	"crmboard/internal/board/domain"
	"crmboard/internal/board/dto"

	"github.com/rs/zerolog"
)

// TenantFilter is the server-side row filter selecting one tenant's rows
func TenantFilter(tenantID string) string {
	return fmt.Sprintf("tenant_id=eq.%s", tenantID)
}

// Apply reconciles a realtime change event into the board. It reports
// whether the board changed. Events are idempotent by row id: a repeated
// insert replaces the card instead of duplicating it, deletes of unknown ids
// are a no-op, and rows older than the local copy are ignored.
func (s *Store) Apply(ev domain.ChangeEvent) (bool, error) {
	s.mu.Lock()
	loaded := s.loaded
	ours := s.belongs(ev.TenantID, ev.BoardType)
	s.mu.Unlock()
	if !loaded || !ours {
		return false, nil
	}

	switch ev.Table {
	case domain.TableCards:
		if ev.Type == domain.EventDelete {
			id, err := dto.RowID(ev.Old)
			if err != nil {
				return false, err
			}
			return s.removeCardByID(id), nil
		}
		card, err := dto.DecodeCard(ev.New)
		if err != nil {
			return false, err
		}
		return s.upsertCard(card), nil

	case domain.TableStages:
		if ev.Type == domain.EventDelete {
			id, err := dto.RowID(ev.Old)
			if err != nil {
				return false, err
			}
			return s.removeStageByID(id), nil
		}
		stage, err := dto.DecodeStage(ev.New)
		if err != nil {
			return false, err
		}
		return s.upsertStage(stage), nil
	}
	return false, fmt.Errorf("unknown table %q", ev.Table)
}

func (s *Store) removeCardByID(id string) bool {
	removed := false
	_, _ = s.apply(func(b *Board) error {
		if _, _, _, ok := b.removeCard(id); !ok {
			return errUnchanged
		}
		removed = true
		return nil
	})
	return removed
}

func (s *Store) removeStageByID(id string) bool {
	removed := false
	_, _ = s.apply(func(b *Board) error {
		if _, _, _, err := b.removeStage(id); err != nil {
			return errUnchanged
		}
		removed = true
		return nil
	})
	return removed
}

// Listener keeps a Store in sync with the realtime feed of its tenant.
// Switching tenant tears the subscriptions down and re-establishes them. A
// dropped feed is re-subscribed after RetryDelay and followed by a full
// reload, since events missed while disconnected are not replayed.
type Listener struct {
	feed       Feed
	store      *Store
	log        zerolog.Logger
	retryDelay time.Duration

	mu       sync.Mutex
	cancel   context.CancelFunc
	done     chan struct{}
	tenantID string
}

// ListenerOption configures a Listener
type ListenerOption func(*Listener)

// WithRetryDelay sets the wait before re-subscribing a dropped feed
func WithRetryDelay(d time.Duration) ListenerOption {
	return func(l *Listener) { l.retryDelay = d }
}

// WithListenerLogger sets the listener logger
func WithListenerLogger(lg zerolog.Logger) ListenerOption {
	return func(l *Listener) { l.log = lg.With().Str("component", "kanban.listener").Logger() }
}

// NewListener creates a listener feeding store from feed
func NewListener(feed Feed, store *Store, opts ...ListenerOption) *Listener {
	l := &Listener{
		feed:       feed,
		store:      store,
		log:        zerolog.Nop(),
		retryDelay: 2 * time.Second,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Start subscribes to tenantID's stage and card feeds. Calling Start with a
// different tenant replaces the running subscriptions. The same tenant is a
// no-op while the listener runs, and restarts it once its context has ended.
func (l *Listener) Start(ctx context.Context, tenantID string) {
	l.mu.Lock()
	if l.runningLocked() && l.tenantID == tenantID {
		l.mu.Unlock()
		return
	}
	l.stopLocked()
	runCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	l.cancel = cancel
	l.done = done
	l.tenantID = tenantID
	l.mu.Unlock()

	go func() {
		defer close(done)
		l.run(runCtx, tenantID)
	}()
}

// Stop tears down the subscriptions and waits for the listener to exit
func (l *Listener) Stop() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.stopLocked()
}

func (l *Listener) runningLocked() bool {
	if l.cancel == nil {
		return false
	}
	select {
	case <-l.done:
		return false
	default:
		return true
	}
}

func (l *Listener) stopLocked() {
	if l.cancel == nil {
		return
	}
	l.cancel()
	<-l.done
	l.cancel = nil
	l.done = nil
	l.tenantID = ""
}

func (l *Listener) run(ctx context.Context, tenantID string) {
	filter := TenantFilter(tenantID)
	reconnect := false
	// set once events may have been missed, by a drop or a failed subscribe
	stale := false
	for {
		if reconnect {
			select {
			case <-ctx.Done():
				return
			case <-time.After(l.retryDelay):
			}
		}
		reconnect = true

		subCtx, cancel := context.WithCancel(ctx)
		stages, err := l.feed.Subscribe(subCtx, domain.TableStages, filter)
		if err != nil {
			cancel()
			l.log.Warn().Err(err).Str("table", domain.TableStages).Msg("subscribe failed")
			stale = true
			continue
		}
		cards, err := l.feed.Subscribe(subCtx, domain.TableCards, filter)
		if err != nil {
			cancel()
			l.log.Warn().Err(err).Str("table", domain.TableCards).Msg("subscribe failed")
			stale = true
			continue
		}
		l.log.Debug().Str("tenant_id", tenantID).Msg("subscribed")

		if stale || l.store.TenantID() != tenantID {
			if _, err := l.store.Load(subCtx, tenantID); err != nil {
				l.log.Warn().Err(err).Msg("reload after subscribe failed")
			}
		}

		l.consume(subCtx, stages, cards)
		cancel()
		if ctx.Err() != nil {
			return
		}
		l.log.Warn().Str("tenant_id", tenantID).Msg("feed dropped, re-subscribing")
		stale = true
	}
}

func (l *Listener) consume(ctx context.Context, stages, cards <-chan domain.ChangeEvent) {
	for {
		var ev domain.ChangeEvent
		var ok bool
		select {
		case <-ctx.Done():
			return
		case ev, ok = <-stages:
			if !ok {
				return
			}
		case ev, ok = <-cards:
			if !ok {
				return
			}
		}
		if _, err := l.store.Apply(ev); err != nil {
			l.log.Warn().Err(err).Str("table", ev.Table).Str("type", string(ev.Type)).Msg("ignoring malformed event")
		}
	}
}
