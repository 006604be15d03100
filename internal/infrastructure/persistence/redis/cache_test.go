package redis

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestScheduleKey(t *testing.T) {
	assert.Equal(t, "schedule:TXM15S1:2026-09-01", ScheduleKey("TXM15S1", "2026-09-01"))
}

func TestLockKey(t *testing.T) {
	assert.Equal(t, "lock:warm_schedules", LockKey("warm_schedules"))
}

func TestIsMiss(t *testing.T) {
	assert.True(t, IsMiss(ErrCacheMiss))
	assert.True(t, IsMiss(fmt.Errorf("get: %w", ErrCacheMiss)))
	assert.False(t, IsMiss(assert.AnError))
	assert.False(t, IsMiss(nil))
}

func TestDefaultConfigAddr(t *testing.T) {
	cfg := DefaultConfig()
	assert.Equal(t, "localhost:6379", cfg.Addr())
}
