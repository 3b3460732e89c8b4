package scheduler

import (
	"context"
	"sync"
	"time"

	"crmboard/internal/board/repository"
	"crmboard/pkg/metrics"

	"github.com/rs/zerolog"
)

// SnapshotJanitor purges board snapshots nobody has saved for longer than the retention
type SnapshotJanitor struct {
	snapshotRepo repository.SnapshotRepository
	retention    time.Duration
	interval     time.Duration
	metrics      *metrics.Metrics
	log          zerolog.Logger
	now          func() time.Time
	stopChan     chan struct{}
	stopOnce     sync.Once
	done         chan struct{}
}

// NewSnapshotJanitor creates a new janitor. m may be nil.
func NewSnapshotJanitor(snapshotRepo repository.SnapshotRepository, retention, interval time.Duration, m *metrics.Metrics, log zerolog.Logger) *SnapshotJanitor {
	if interval <= 0 {
		interval = time.Hour
	}
	return &SnapshotJanitor{
		snapshotRepo: snapshotRepo,
		retention:    retention,
		interval:     interval,
		metrics:      m,
		log:          log.With().Str("component", "snapshot_janitor").Logger(),
		now:          time.Now,
		stopChan:     make(chan struct{}),
		done:         make(chan struct{}),
	}
}

// Start begins the janitor loop
func (j *SnapshotJanitor) Start() {
	if j.retention <= 0 {
		j.log.Info().Msg("snapshot retention disabled, janitor not started")
		close(j.done)
		return
	}

	j.log.Info().Dur("interval", j.interval).Dur("retention", j.retention).Msg("starting snapshot janitor")

	go func() {
		defer close(j.done)
		// Run immediately on start
		j.Purge(context.Background())

		ticker := time.NewTicker(j.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				j.Purge(context.Background())
			case <-j.stopChan:
				j.log.Info().Msg("snapshot janitor stopped")
				return
			}
		}
	}()
}

// Stop gracefully stops the janitor and waits for a running purge
func (j *SnapshotJanitor) Stop() {
	j.stopOnce.Do(func() { close(j.stopChan) })
	<-j.done
}

// Purge deletes the expired snapshots once and returns how many went
func (j *SnapshotJanitor) Purge(ctx context.Context) int64 {
	cutoff := j.now().Add(-j.retention)
	n, err := j.snapshotRepo.DeleteOlderThan(ctx, cutoff)
	if err != nil {
		j.log.Error().Err(err).Msg("failed to purge snapshots")
		return 0
	}
	if n == 0 {
		return 0
	}
	if j.metrics != nil {
		j.metrics.SnapshotsPurged.Add(float64(n))
	}
	j.log.Info().Int64("purged", n).Time("cutoff", cutoff).Msg("purged stale snapshots")
	return n
}
