package scheduler

import (
	"context"
	"sync/atomic"
	"testing"
	"time"
)

func TestScheduleRejectsBadSpec(t *testing.T) {
	t.Parallel()

	s := NewCronScheduler(time.UTC, nil)
	if err := s.Schedule("not a cron spec", func(time.Time) {}); err == nil {
		t.Fatal("expected an error for an unparseable spec")
	}
	if err := s.Schedule("0 6 * * *", nil); err == nil {
		t.Fatal("expected an error for a nil job")
	}
}

func TestScheduleFiresJob(t *testing.T) {
	t.Parallel()

	s := NewCronScheduler(time.UTC, nil)
	var fired atomic.Int32
	if err := s.Schedule("@every 50ms", func(time.Time) { fired.Add(1) }); err != nil {
		t.Fatalf("Schedule returned error: %v", err)
	}

	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("Start returned error: %v", err)
	}

	deadline := time.After(2 * time.Second)
	for fired.Load() == 0 {
		select {
		case <-deadline:
			t.Fatal("job never fired")
		case <-time.After(10 * time.Millisecond):
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := s.Stop(ctx); err != nil {
		t.Fatalf("Stop returned error: %v", err)
	}
}

func TestStopWithoutStart(t *testing.T) {
	t.Parallel()

	s := NewCronScheduler(nil, nil)
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := s.Stop(ctx); err != nil {
		t.Fatalf("Stop returned error: %v", err)
	}
}
