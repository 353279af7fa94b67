package scheduler

import (
	"context"
	"time"

	"github.com/rs/zerolog"
)

// TickFunc is invoked on every interval.
type TickFunc func(ctx context.Context, at time.Time) error

// Options tune scheduler behaviour.
type Options struct {
	Name         string
	Interval     time.Duration
	AlignToStart bool
	StartupDelay time.Duration
	// Immediate runs the first tick right away instead of waiting one interval.
	Immediate bool
	// ErrorBackoff replaces the interval for the wait following a failed tick.
	ErrorBackoff time.Duration
}

// Scheduler drives periodic execution of polling jobs.
type Scheduler struct {
	opts   Options
	logger zerolog.Logger
}

// New constructs a Scheduler instance.
func New(opts Options, logger zerolog.Logger) *Scheduler {
	if opts.Interval <= 0 {
		panic("scheduler interval must be positive")
	}
	name := opts.Name
	if name == "" {
		name = "scheduler"
	}
	return &Scheduler{opts: opts, logger: logger.With().Str("component", "scheduler").Str("job", name).Logger()}
}

// Run blocks, invoking the tick function at each interval until ctx is cancelled.
// Tick errors are logged and never stop the loop.
func (s *Scheduler) Run(ctx context.Context, tick TickFunc) error {
	if s.opts.StartupDelay > 0 {
		if err := sleep(ctx, s.opts.StartupDelay); err != nil {
			return err
		}
	}

	var next time.Time
	if s.opts.Immediate {
		next = time.Now().UTC()
	} else {
		next = s.nextTick(time.Now().UTC())
	}

	for {
		if delay := time.Until(next); delay > 0 {
			s.logger.Debug().Time("next_tick", next).Msg("waiting for next tick")
			if err := sleep(ctx, delay); err != nil {
				return err
			}
		} else if ctx.Err() != nil {
			return ctx.Err()
		}

		at := s.bucketStart(next)
		s.logger.Debug().Time("tick", at).Msg("executing scheduled tick")

		err := tick(ctx, at)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err != nil {
			s.logger.Error().Err(err).Time("tick", at).Msg("tick execution failed")
			if s.opts.ErrorBackoff > 0 {
				next = time.Now().UTC().Add(s.opts.ErrorBackoff)
				continue
			}
		}

		next = next.Add(s.opts.Interval)
		if now := time.Now().UTC(); next.Before(now) {
			next = s.nextTick(now)
		}
	}
}

func sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func (s *Scheduler) nextTick(now time.Time) time.Time {
	if !s.opts.AlignToStart {
		return now.Add(s.opts.Interval)
	}
	bucket := now.Truncate(s.opts.Interval)
	if !bucket.After(now) {
		bucket = bucket.Add(s.opts.Interval)
	}
	return bucket
}

func (s *Scheduler) bucketStart(t time.Time) time.Time {
	if !s.opts.AlignToStart {
		return t
	}
	return t.Truncate(s.opts.Interval)
}
