package ratelimit

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAllowWithinLimit(t *testing.T) {
	l := New(2, time.Minute)
	require.NoError(t, l.Allow("task:1"))
	require.NoError(t, l.Allow("task:1"))
	assert.Error(t, l.Allow("task:1"))
}

func TestAllowSeparateKeysIndependent(t *testing.T) {
	l := New(1, time.Minute)
	require.NoError(t, l.Allow("task:1"))
	require.NoError(t, l.Allow("task:2"))
}

func TestAllowDisabledWhenMaxZero(t *testing.T) {
	l := New(0, time.Minute)
	for i := 0; i < 100; i++ {
		require.NoError(t, l.Allow("task:1"))
	}
}

func TestAllowWindowExpires(t *testing.T) {
	l := New(1, 20*time.Millisecond)
	require.NoError(t, l.Allow("task:1"))
	assert.Error(t, l.Allow("task:1"))
	time.Sleep(30 * time.Millisecond)
	assert.NoError(t, l.Allow("task:1"))
}

func TestCleanupDropsExpiredKeys(t *testing.T) {
	l := New(1, 10*time.Millisecond)
	require.NoError(t, l.Allow("task:1"))
	time.Sleep(20 * time.Millisecond)
	l.Cleanup()
	l.mu.Lock()
	_, exists := l.windows["task:1"]
	l.mu.Unlock()
	assert.False(t, exists)
}

func TestNilLimiterAllowsEverything(t *testing.T) {
	var l *Limiter
	require.NoError(t, l.Allow("task:1"))
	l.Cleanup()
}
