// Package clock resolves "now" in the server's configured local zone.
package clock

import (
	"fmt"
	"sync"
	"time"
)

// Clock returns the current time in a configured local zone.
// The zone is swappable at runtime (the config file can change it),
// so callers must go through the interface rather than calling
// time.Now directly anywhere a persisted timestamp is produced.
type Clock interface {
	Now() time.Time
	Location() *time.Location
}

// Local is the default Clock, backed by time.Now and a mutable
// *time.Location set from Config.Timezone.
type Local struct {
	mu  sync.RWMutex
	loc *time.Location
}

// NewLocal creates a Clock for the named IANA zone (e.g. "Asia/Shanghai").
// An empty name falls back to UTC; an unrecognized zone is an error.
func NewLocal(zoneName string) (*Local, error) {
	loc := time.UTC
	if zoneName != "" {
		l, err := time.LoadLocation(zoneName)
		if err != nil {
			return nil, fmt.Errorf("clock: load location %q: %w", zoneName, err)
		}
		loc = l
	}
	return &Local{loc: loc}, nil
}

// SetLocation swaps the active zone, e.g. after a Config reload.
func (c *Local) SetLocation(zoneName string) error {
	loc, err := time.LoadLocation(zoneName)
	if err != nil {
		return fmt.Errorf("clock: load location %q: %w", zoneName, err)
	}
	c.mu.Lock()
	c.loc = loc
	c.mu.Unlock()
	return nil
}

// Now returns the current instant converted into the configured zone.
func (c *Local) Now() time.Time {
	c.mu.RLock()
	loc := c.loc
	c.mu.RUnlock()
	return time.Now().In(loc)
}

// Location returns the currently configured zone.
func (c *Local) Location() *time.Location {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.loc
}
