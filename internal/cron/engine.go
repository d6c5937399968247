// Package cron schedules recurring work by cron expression. It wraps
// adhocore/gronx for expression parsing and next-fire computation and
// adds a bounded cache of validated expressions so a busy scheduler
// with hundreds of jobs does not re-parse the same expression on every
// tick.
package cron

import (
	"errors"
	"sync"
	"time"

	"github.com/adhocore/gronx"
	lru "github.com/hashicorp/golang-lru/v2"
)

// ErrInvalidExpr is returned by Schedule when expr is not a valid 5- or
// 6-field cron expression.
var ErrInvalidExpr = errors.New("cron: invalid expression")

const exprCacheSize = 512

// entry tracks one scheduled key: its expression and the timer driving
// its next fire.
type entry struct {
	expr  string
	timer *time.Timer
}

// Engine drives an arbitrary set of cron-scheduled callbacks, keyed by
// caller-chosen string keys ("task:<id>", "probe:<id>", "sub:<id>", ...).
// Re-scheduling an existing key atomically replaces its prior trigger.
type Engine struct {
	loc *time.Location
	gx  gronx.Gronx

	validated *lru.Cache[string, bool]

	mu      sync.Mutex
	entries map[string]*entry
	closed  bool
}

// NewEngine creates an Engine whose next-fire computations are done in
// the given location (so "0 9 * * *" means 9am in that zone).
func NewEngine(loc *time.Location) *Engine {
	if loc == nil {
		loc = time.UTC
	}
	cache, _ := lru.New[string, bool](exprCacheSize)
	return &Engine{
		loc:       loc,
		gx:        gronx.New(),
		validated: cache,
		entries:   make(map[string]*entry),
	}
}

// Valid reports whether expr parses as a 5- or 6-field cron expression,
// consulting (and populating) the validation cache.
func (e *Engine) Valid(expr string) bool {
	if ok, hit := e.validated.Get(expr); hit {
		return ok
	}
	ok := e.gx.IsValid(expr)
	e.validated.Add(expr, ok)
	return ok
}

// Schedule arranges for fire to be called, in its own goroutine, at
// every future time expr produces from now on, until Cancel(key) or
// Shutdown. Scheduling an already-scheduled key cancels its previous
// timer first, so re-scheduling is atomic from the caller's point of
// view.
func (e *Engine) Schedule(key, expr string, fire func(time.Time)) error {
	if !e.Valid(expr) {
		return ErrInvalidExpr
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return errors.New("cron: engine shut down")
	}
	if prev, ok := e.entries[key]; ok {
		prev.timer.Stop()
	}

	ent := &entry{expr: expr}
	e.entries[key] = ent
	e.armLocked(key, ent, fire)
	return nil
}

// armLocked schedules the next single fire for key and reschedules
// itself from inside the fired goroutine, so drift does not accumulate
// across fires. Callers must hold e.mu.
func (e *Engine) armLocked(key string, ent *entry, fire func(time.Time)) {
	now := time.Now().In(e.loc)
	next, err := gronx.NextTickAfter(ent.expr, now, false)
	if err != nil {
		return
	}
	d := time.Until(next)
	if d < 0 {
		d = 0
	}
	ent.timer = time.AfterFunc(d, func() {
		e.mu.Lock()
		if e.closed || e.entries[key] != ent {
			e.mu.Unlock()
			return
		}
		e.armLocked(key, ent, fire)
		e.mu.Unlock()
		fire(next)
	})
}

// Cancel stops a scheduled key, if present. Canceling an unknown key is
// a no-op.
func (e *Engine) Cancel(key string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if ent, ok := e.entries[key]; ok {
		ent.timer.Stop()
		delete(e.entries, key)
	}
}

// Shutdown stops every scheduled key. The Engine may not be reused
// afterward.
func (e *Engine) Shutdown() {
	e.mu.Lock()
	defer e.mu.Unlock()
	for _, ent := range e.entries {
		ent.timer.Stop()
	}
	e.entries = make(map[string]*entry)
	e.closed = true
}
