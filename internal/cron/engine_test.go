package cron

import (
	"sync/atomic"
	"testing"
	"time"
)

func TestScheduleFiresAndReschedules(t *testing.T) {
	e := NewEngine(time.UTC)
	defer e.Shutdown()

	var fires int32
	err := e.Schedule("task:1", "* * * * * *", func(time.Time) {
		atomic.AddInt32(&fires, 1)
	})
	if err != nil {
		t.Fatalf("Schedule: %v", err)
	}

	deadline := time.After(3 * time.Second)
	for atomic.LoadInt32(&fires) < 2 {
		select {
		case <-deadline:
			t.Fatalf("expected at least 2 fires, got %d", atomic.LoadInt32(&fires))
		case <-time.After(50 * time.Millisecond):
		}
	}
}

func TestScheduleRejectsInvalidExpr(t *testing.T) {
	e := NewEngine(time.UTC)
	defer e.Shutdown()

	if err := e.Schedule("task:1", "not a cron expr", func(time.Time) {}); err != ErrInvalidExpr {
		t.Fatalf("expected ErrInvalidExpr, got %v", err)
	}
}

func TestCancelStopsFiring(t *testing.T) {
	e := NewEngine(time.UTC)
	defer e.Shutdown()

	var fires int32
	e.Schedule("task:1", "* * * * * *", func(time.Time) {
		atomic.AddInt32(&fires, 1)
	})
	time.Sleep(1100 * time.Millisecond)
	e.Cancel("task:1")
	after := atomic.LoadInt32(&fires)
	time.Sleep(1200 * time.Millisecond)
	if atomic.LoadInt32(&fires) != after {
		t.Fatalf("expected no further fires after Cancel, had %d now %d", after, atomic.LoadInt32(&fires))
	}
}

func TestRescheduleReplacesPriorTrigger(t *testing.T) {
	e := NewEngine(time.UTC)
	defer e.Shutdown()

	var slowFires, fastFires int32
	e.Schedule("task:1", "0 0 1 1 *", func(time.Time) { atomic.AddInt32(&slowFires, 1) })
	e.Schedule("task:1", "* * * * * *", func(time.Time) { atomic.AddInt32(&fastFires, 1) })

	time.Sleep(1200 * time.Millisecond)
	if atomic.LoadInt32(&fastFires) == 0 {
		t.Fatalf("expected the rescheduled (fast) trigger to fire")
	}
	if atomic.LoadInt32(&slowFires) != 0 {
		t.Fatalf("expected the replaced (slow) trigger to never fire")
	}
}
