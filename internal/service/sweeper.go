package service

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/fisschl/auth/internal/repository"
)

var tokensSweptTotal = promauto.NewCounter(prometheus.CounterOpts{
	Name: "auth_tokens_swept_total",
	Help: "Expired session tokens removed by the sweeper.",
})

// sweepTimeout bounds a single background sweep.
const sweepTimeout = 30 * time.Second

// Sweeper removes session tokens older than the retention window. Sweeps
// are triggered opportunistically from the login path and throttled so at
// most one runs per interval across all goroutines.
type Sweeper struct {
	tokens    repository.TokenRepository
	sessions  *Sessions
	retention time.Duration
	interval  time.Duration
	batchSize int
	logger    *slog.Logger

	// lastRun holds the unix nanosecond timestamp of the last accepted
	// trigger. Zero means never.
	lastRun atomic.Int64
	now     func() time.Time
}

// NewSweeper creates a sweeper over the token store.
func NewSweeper(
	tokens repository.TokenRepository,
	sessions *Sessions,
	retention, interval time.Duration,
	batchSize int,
	logger *slog.Logger,
) *Sweeper {
	return &Sweeper{
		tokens:    tokens,
		sessions:  sessions,
		retention: retention,
		interval:  interval,
		batchSize: batchSize,
		logger:    logger,
		now:       time.Now,
	}
}

// acquire claims the throttle window. It returns false when a sweep ran
// within the interval or another goroutine claimed the window first.
func (s *Sweeper) acquire() bool {
	now := s.now().UnixNano()
	last := s.lastRun.Load()
	if last != 0 && now-last < s.interval.Nanoseconds() {
		return false
	}
	return s.lastRun.CompareAndSwap(last, now)
}

// Trigger starts a background sweep if the throttle window allows one.
// It returns immediately; the caller never observes the sweep's outcome.
func (s *Sweeper) Trigger() {
	if !s.acquire() {
		return
	}

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), sweepTimeout)
		defer cancel()

		if _, err := s.Sweep(ctx); err != nil {
			s.logger.Error("token sweep failed",
				slog.String("error", err.Error()),
			)
		}
	}()
}

// Sweep deletes one batch of tokens older than the retention window and
// evicts them from the token cache. It reports how many rows were removed.
func (s *Sweeper) Sweep(ctx context.Context) (int64, error) {
	cutoff := s.now().UTC().Add(-s.retention)

	expired, err := s.tokens.ListOlderThan(ctx, cutoff, s.batchSize)
	if err != nil {
		return 0, fmt.Errorf("list expired tokens: %w", err)
	}
	if len(expired) == 0 {
		return 0, nil
	}

	deleted, err := s.tokens.DeleteBatch(ctx, expired)
	if err != nil {
		return 0, fmt.Errorf("delete expired tokens: %w", err)
	}

	for _, value := range expired {
		s.sessions.EvictToken(value)
	}

	tokensSweptTotal.Add(float64(deleted))

	s.logger.Info("token sweep completed",
		slog.Int64("deleted", deleted),
		slog.Time("cutoff", cutoff),
	)

	return deleted, nil
}
