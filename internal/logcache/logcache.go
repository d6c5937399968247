// Package logcache holds the in-memory, per-task output buffer that
// backs the "replay" a LiveLog websocket client gets on first join:
// everything a task has printed since it started, not just what it
// prints from the moment of connection. Entries are evicted a
// configurable duration after the task reaches a terminal state.
package logcache

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// Line is one captured line of output.
type Line struct {
	Stream string // "stdout" or "stderr"
	Text   string
	At     time.Time
}

// entry is one task's accumulated output.
type entry struct {
	mu        sync.Mutex
	logID     uuid.UUID
	lines     []Line
	startedAt time.Time
	evictTime *time.Timer
}

// Cache holds one entry per currently-tracked task ID.
type Cache struct {
	retention time.Duration

	mu      sync.Mutex
	entries map[uuid.UUID]*entry
}

// New creates a Cache that evicts a task's buffer retention after
// Finish is called for that task. retention <= 0 defaults to 5 minutes,
// matching the reference scheduler's hardcoded delayed-cleanup window.
func New(retention time.Duration) *Cache {
	if retention <= 0 {
		retention = 5 * time.Minute
	}
	return &Cache{retention: retention, entries: make(map[uuid.UUID]*entry)}
}

// Start begins tracking taskID for a fresh run identified by logID,
// discarding any previous buffer (and canceling its eviction) for that
// task.
func (c *Cache) Start(taskID, logID uuid.UUID) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if old, ok := c.entries[taskID]; ok && old.evictTime != nil {
		old.evictTime.Stop()
	}
	c.entries[taskID] = &entry{logID: logID, startedAt: time.Now()}
}

// Append adds one output line to taskID's buffer. It is a no-op if
// Start was never called (or the buffer has already been evicted).
func (c *Cache) Append(taskID uuid.UUID, stream, text string) {
	c.mu.Lock()
	e, ok := c.entries[taskID]
	c.mu.Unlock()
	if !ok {
		return
	}
	e.mu.Lock()
	e.lines = append(e.lines, Line{Stream: stream, Text: text, At: time.Now()})
	e.mu.Unlock()
}

// Lines returns a snapshot of everything buffered for taskID.
func (c *Cache) Lines(taskID uuid.UUID) []Line {
	c.mu.Lock()
	e, ok := c.entries[taskID]
	c.mu.Unlock()
	if !ok {
		return nil
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]Line, len(e.lines))
	copy(out, e.lines)
	return out
}

// Finish marks taskID's run as having reached a terminal state,
// scheduling its buffer for eviction after the configured retention.
func (c *Cache) Finish(taskID uuid.UUID) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[taskID]
	if !ok {
		return
	}
	e.evictTime = time.AfterFunc(c.retention, func() {
		c.mu.Lock()
		if c.entries[taskID] == e {
			delete(c.entries, taskID)
		}
		c.mu.Unlock()
	})
}

// Evict immediately drops taskID's buffer, canceling any pending timer.
func (c *Cache) Evict(taskID uuid.UUID) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if e, ok := c.entries[taskID]; ok {
		if e.evictTime != nil {
			e.evictTime.Stop()
		}
		delete(c.entries, taskID)
	}
}
