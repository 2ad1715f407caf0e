package sweeper

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"stock-reservation-service/internal/ledger"
)

// ReleaseHook is invoked once per released reservation. Hook failures are
// logged and skipped so one bad reservation never halts the sweep.
type ReleaseHook func(ctx context.Context, release ledger.Release) error

// SweepObserver receives the duration and release count of each sweep.
type SweepObserver func(elapsed time.Duration, released int)

// Sweeper periodically returns expired holds to available stock. It runs
// independently of any inbound message and stops only via its context.
type Sweeper struct {
	ledger   *ledger.Ledger
	interval time.Duration
	hook     ReleaseHook
	observer SweepObserver
	now      func() time.Time
}

// Option configures a Sweeper.
type Option func(*Sweeper)

// WithReleaseHook registers a callback for each released reservation.
func WithReleaseHook(hook ReleaseHook) Option {
	return func(s *Sweeper) {
		s.hook = hook
	}
}

// WithSweepObserver registers a callback invoked after every sweep pass.
func WithSweepObserver(observer SweepObserver) Option {
	return func(s *Sweeper) {
		s.observer = observer
	}
}

// WithClock overrides the time source. Used by tests.
func WithClock(now func() time.Time) Option {
	return func(s *Sweeper) {
		s.now = now
	}
}

// New creates a sweeper over the given ledger.
func New(l *ledger.Ledger, interval time.Duration, opts ...Option) *Sweeper {
	s := &Sweeper{
		ledger:   l,
		interval: interval,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Run blocks until ctx is cancelled, sweeping on a fixed interval. An
// in-flight sweep is allowed to finish; no new sweep starts afterwards.
func (s *Sweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	log.Info().Dur("interval", s.interval).Msg("Starting reservation expiry sweeper")

	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("Stopping reservation expiry sweeper")
			return
		case <-ticker.C:
			s.Sweep(ctx)
		}
	}
}

// Sweep runs a single pass and returns the number of released holds.
func (s *Sweeper) Sweep(ctx context.Context) int {
	start := time.Now()
	released := s.ledger.ReleaseExpired(s.now())

	for _, rel := range released {
		log.Info().
			Int("item_id", rel.ItemID).
			Str("basket_id", rel.BasketID).
			Int("qty", rel.Quantity).
			Time("expired_at", rel.ExpiresAt).
			Msg("Released expired reservation")

		if s.hook == nil {
			continue
		}
		if err := s.hook(ctx, rel); err != nil {
			// The hold is already back in available stock; the hook only
			// observes the release, so a failure must not stop the sweep.
			log.Error().Err(err).
				Int("item_id", rel.ItemID).
				Str("basket_id", rel.BasketID).
				Msg("Release hook failed")
		}
	}

	if len(released) > 0 {
		log.Info().Int("count", len(released)).Msg("Expiry sweep released reservations")
	}

	if s.observer != nil {
		s.observer(time.Since(start), len(released))
	}

	return len(released)
}
