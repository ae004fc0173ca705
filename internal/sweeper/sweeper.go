// Package sweeper periodically expires pending orders that were never confirmed.
package sweeper

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"canteen/internal/lock"
)

const leaseKey = "canteen:sweeper"

// Expirer expires every overdue pending order and reports how many it changed
type Expirer interface {
	ExpireDue(ctx context.Context) (int, error)
}

// Recorder receives one call per tick. monitoring.Metrics satisfies it.
type Recorder interface {
	SweepFinished(result string, expired int)
}

type nopRecorder struct{}

func (nopRecorder) SweepFinished(string, int) {}

// Sweeper runs an Expirer on a fixed interval
type Sweeper struct {
	expirer  Expirer
	interval time.Duration
	locker   lock.Locker
	metrics  Recorder
	log      *slog.Logger
	running  atomic.Bool
}

type Option func(*Sweeper)

// WithLocker requires a lease before each run
func WithLocker(l lock.Locker) Option {
	return func(s *Sweeper) { s.locker = l }
}

func WithMetrics(r Recorder) Option {
	return func(s *Sweeper) { s.metrics = r }
}

func WithLogger(l *slog.Logger) Option {
	return func(s *Sweeper) { s.log = l }
}

// New creates a sweeper calling e every interval
func New(e Expirer, interval time.Duration, opts ...Option) *Sweeper {
	s := &Sweeper{
		expirer:  e,
		interval: interval,
		locker:   lock.Noop{},
		metrics:  nopRecorder{},
		log:      slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Run ticks until ctx is cancelled. Each tick runs in its own goroutine so a
// slow sweep never delays the ticker; ticks that find a sweep in flight are skipped.
func (s *Sweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.log.Info("expiry sweeper started", "interval", s.interval)
	for {
		select {
		case <-ctx.Done():
			s.log.Info("expiry sweeper stopped")
			return
		case <-ticker.C:
			go s.RunOnce(ctx)
		}
	}
}

// RunOnce performs a single sweep. It returns the number of expired orders
// and whether the sweep actually ran.
func (s *Sweeper) RunOnce(ctx context.Context) (int, bool) {
	if !s.running.CompareAndSwap(false, true) {
		s.log.Debug("previous sweep still running, skipping tick")
		s.metrics.SweepFinished("skipped", 0)
		return 0, false
	}
	defer s.running.Store(false)

	release, ok, err := s.locker.TryLock(ctx, leaseKey, s.interval)
	if err != nil {
		s.log.Error("failed to acquire sweeper lease", "error", err)
		s.metrics.SweepFinished("error", 0)
		return 0, false
	}
	if !ok {
		s.log.Debug("sweeper lease held elsewhere, skipping tick")
		s.metrics.SweepFinished("skipped", 0)
		return 0, false
	}
	defer release()

	start := time.Now()
	n, err := s.expirer.ExpireDue(ctx)
	if err != nil {
		s.log.Error("expiry sweep failed", "expired", n, "error", err)
		s.metrics.SweepFinished("error", n)
		return n, true
	}

	if n > 0 {
		s.log.Info("expired pending orders", "count", n, "duration", time.Since(start))
	}
	s.metrics.SweepFinished("ok", n)
	return n, true
}
