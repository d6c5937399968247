package logcache

import (
	"testing"
	"time"

	"github.com/google/uuid"
)

func TestAppendAndLines(t *testing.T) {
	c := New(time.Minute)
	taskID := uuid.New()
	c.Start(taskID, uuid.New())
	c.Append(taskID, "stdout", "hello")
	c.Append(taskID, "error", "oops")

	lines := c.Lines(taskID)
	if len(lines) != 2 {
		t.Fatalf("expected 2 lines, got %d", len(lines))
	}
	if lines[0].Text != "hello" || lines[1].Stream != "error" {
		t.Fatalf("unexpected lines: %+v", lines)
	}
}

func TestAppendWithoutStartIsNoop(t *testing.T) {
	c := New(time.Minute)
	c.Append(uuid.New(), "stdout", "ignored")
}

func TestFinishEvictsAfterRetention(t *testing.T) {
	c := New(50 * time.Millisecond)
	taskID := uuid.New()
	c.Start(taskID, uuid.New())
	c.Append(taskID, "stdout", "hi")
	c.Finish(taskID)

	if len(c.Lines(taskID)) == 0 {
		t.Fatalf("expected buffer to still be present immediately after Finish")
	}
	time.Sleep(150 * time.Millisecond)
	if len(c.Lines(taskID)) != 0 {
		t.Fatalf("expected buffer to be evicted after retention window")
	}
}

func TestEvictCancelsPendingTimer(t *testing.T) {
	c := New(50 * time.Millisecond)
	taskID := uuid.New()
	c.Start(taskID, uuid.New())
	c.Finish(taskID)
	c.Evict(taskID)
	if lines := c.Lines(taskID); lines != nil {
		t.Fatalf("expected nil after Evict, got %v", lines)
	}
}
