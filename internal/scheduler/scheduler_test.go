package scheduler

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func TestRunImmediateAndStopsOnCancel(t *testing.T) {
	s := New(Options{Interval: 10 * time.Millisecond, Immediate: true}, zerolog.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	var ticks atomic.Int32
	done := make(chan error, 1)
	go func() {
		done <- s.Run(ctx, func(ctx context.Context, at time.Time) error {
			if ticks.Add(1) == 3 {
				cancel()
			}
			return nil
		})
	}()

	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("Run 应返回 context.Canceled, 实际 %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("scheduler did not stop after cancel")
	}
	if ticks.Load() != 3 {
		t.Fatalf("expected 3 ticks, got %d", ticks.Load())
	}
}

func TestRunSurvivesTickErrors(t *testing.T) {
	s := New(Options{Interval: 5 * time.Millisecond, Immediate: true, ErrorBackoff: 5 * time.Millisecond}, zerolog.Nop())

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	var ticks atomic.Int32
	_ = s.Run(ctx, func(ctx context.Context, at time.Time) error {
		if ticks.Add(1) >= 3 {
			cancel()
			return nil
		}
		return errors.New("boom")
	})
	if ticks.Load() < 3 {
		t.Fatalf("tick errors must not stop the loop, ticks=%d", ticks.Load())
	}
}

func TestNextTickAligned(t *testing.T) {
	s := New(Options{Interval: time.Minute, AlignToStart: true}, zerolog.Nop())
	now := time.Date(2024, 1, 1, 10, 0, 30, 0, time.UTC)
	if got := s.nextTick(now); !got.Equal(time.Date(2024, 1, 1, 10, 1, 0, 0, time.UTC)) {
		t.Fatalf("对齐时间不正确: %s", got)
	}
	if got := s.bucketStart(now); !got.Equal(time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC)) {
		t.Fatalf("bucket start 不正确: %s", got)
	}
}

func TestNewPanicsOnZeroInterval(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatal("expected panic for zero interval")
		}
	}()
	New(Options{}, zerolog.Nop())
}
