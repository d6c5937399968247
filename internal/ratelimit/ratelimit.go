// Package ratelimit guards manual "run now" triggers against a client
// hammering a single Task, Probe, or Subscription -- a runaway script
// or a scripted retry loop shouldn't be able to spin a job far faster
// than its own cron schedule would ever fire it.
package ratelimit

import (
	"fmt"
	"sync"
	"time"
)

// Limiter is a sliding-window rate limiter keyed by an arbitrary string
// (typically "task:<id>", "probe:<id>", or "sub:<id>").
type Limiter struct {
	mu      sync.Mutex
	windows map[string][]time.Time
	max     int
	window  time.Duration
}

// New creates a Limiter allowing at most max actions per window for
// each key. Pass max <= 0 to disable limiting (Allow always succeeds).
func New(max int, window time.Duration) *Limiter {
	return &Limiter{
		windows: make(map[string][]time.Time),
		max:     max,
		window:  window,
	}
}

// Allow reports whether an action for key is permitted right now,
// recording it if so.
func (l *Limiter) Allow(key string) error {
	if l == nil || l.max <= 0 {
		return nil
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	now := time.Now()
	cutoff := now.Add(-l.window)

	entries := l.windows[key]
	start := 0
	for start < len(entries) && entries[start].Before(cutoff) {
		start++
	}
	entries = entries[start:]

	if len(entries) >= l.max {
		return fmt.Errorf("ratelimit: %s exceeded %d runs per %s", key, l.max, l.window)
	}

	l.windows[key] = append(entries, now)
	return nil
}

// Cleanup drops keys with no entries inside the current window. Call
// periodically so windows map doesn't grow unbounded across many
// distinct Task/Probe/Subscription IDs.
func (l *Limiter) Cleanup() {
	if l == nil {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	cutoff := time.Now().Add(-l.window)
	for key, entries := range l.windows {
		start := 0
		for start < len(entries) && entries[start].Before(cutoff) {
			start++
		}
		if start == len(entries) {
			delete(l.windows, key)
		} else {
			l.windows[key] = entries[start:]
		}
	}
}
