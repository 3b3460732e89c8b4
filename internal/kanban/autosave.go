package kanban

import (
	"context"
	"sync"
	"time"

	"crmboard/internal/board/domain"

	"github.com/rs/zerolog"
)

// DefaultQuietPeriod is how long the board must stay unchanged before the
// autosaver writes it
const DefaultQuietPeriod = time.Second

// Autosaver mirrors board changes to a SnapshotWriter with a trailing
// debounce: every change restarts the quiet period and only the board as of
// the last change is written. Failed writes are logged, not retried.
type Autosaver struct {
	writer       SnapshotWriter
	key          domain.SnapshotKey
	quiet        time.Duration
	writeTimeout time.Duration
	log          zerolog.Logger
	onResult     func(error)

	mu      sync.Mutex
	timer   *time.Timer
	pending *Board
	gen     uint64
	stopped bool
	writing sync.WaitGroup
}

// AutosaveOption configures an Autosaver
type AutosaveOption func(*Autosaver)

// WithQuietPeriod overrides DefaultQuietPeriod
func WithQuietPeriod(d time.Duration) AutosaveOption {
	return func(a *Autosaver) { a.quiet = d }
}

// WithWriteTimeout bounds a single snapshot write
func WithWriteTimeout(d time.Duration) AutosaveOption {
	return func(a *Autosaver) { a.writeTimeout = d }
}

// WithAutosaveLogger sets the autosaver logger
func WithAutosaveLogger(l zerolog.Logger) AutosaveOption {
	return func(a *Autosaver) { a.log = l.With().Str("component", "kanban.autosave").Logger() }
}

// WithResultHook is called after every write attempt with its error (nil on success)
func WithResultHook(fn func(error)) AutosaveOption {
	return func(a *Autosaver) { a.onResult = fn }
}

// NewAutosaver creates an autosaver writing snapshots under key
func NewAutosaver(writer SnapshotWriter, key domain.SnapshotKey, opts ...AutosaveOption) *Autosaver {
	a := &Autosaver{
		writer:       writer,
		key:          key,
		quiet:        DefaultQuietPeriod,
		writeTimeout: 10 * time.Second,
		log:          zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Attach schedules a save on every change of s. The returned function detaches.
func (a *Autosaver) Attach(s *Store) func() {
	return s.Subscribe(a.Schedule)
}

// Schedule records b as the latest board and restarts the quiet period
func (a *Autosaver) Schedule(b Board) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.stopped {
		return
	}
	snap := b.Clone()
	a.pending = &snap
	a.gen++
	gen := a.gen
	if a.timer != nil {
		a.timer.Stop()
	}
	a.timer = time.AfterFunc(a.quiet, func() { a.fire(gen) })
}

// fire writes the pending board if no newer change arrived since gen was scheduled
func (a *Autosaver) fire(gen uint64) {
	a.mu.Lock()
	if a.stopped || gen != a.gen || a.pending == nil {
		a.mu.Unlock()
		return
	}
	board := *a.pending
	a.pending = nil
	a.timer = nil
	a.writing.Add(1)
	a.mu.Unlock()

	defer a.writing.Done()
	ctx, cancel := context.WithTimeout(context.Background(), a.writeTimeout)
	defer cancel()
	_ = a.write(ctx, board)
}

func (a *Autosaver) write(ctx context.Context, b Board) error {
	err := a.writer.SaveSnapshot(ctx, a.key, domain.Columns(b.Columns))
	if err != nil {
		a.log.Error().Err(err).Str("tenant_id", a.key.TenantID).Str("board_type", string(a.key.BoardType)).Msg("snapshot save failed")
	} else {
		a.log.Debug().Str("tenant_id", a.key.TenantID).Int("cards", b.CardCount()).Msg("snapshot saved")
	}
	if a.onResult != nil {
		a.onResult(err)
	}
	return err
}

// Pending reports whether a save is scheduled
func (a *Autosaver) Pending() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.pending != nil
}

// Flush cancels the quiet period and writes the pending board now
func (a *Autosaver) Flush(ctx context.Context) error {
	a.mu.Lock()
	if a.stopped || a.pending == nil {
		a.mu.Unlock()
		return nil
	}
	if a.timer != nil {
		a.timer.Stop()
		a.timer = nil
	}
	board := *a.pending
	a.pending = nil
	a.gen++
	a.writing.Add(1)
	a.mu.Unlock()

	defer a.writing.Done()
	return a.write(ctx, board)
}

// Stop cancels any pending save without writing it and waits for in-flight
// writes, scheduled or flushed, to finish
func (a *Autosaver) Stop() {
	a.mu.Lock()
	a.stopped = true
	if a.timer != nil {
		a.timer.Stop()
		a.timer = nil
	}
	a.pending = nil
	a.mu.Unlock()
	a.writing.Wait()
}
