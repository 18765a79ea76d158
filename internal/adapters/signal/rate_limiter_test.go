package signal

import (
	"testing"
	"time"

	"github.com/dkeye/Consult/internal/domain"
	"github.com/stretchr/testify/assert"
)

func TestChatRateLimiterWindow(t *testing.T) {
	rl := NewChatRateLimiter(3, 10*time.Second)
	now := time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC)
	rl.now = func() time.Time { return now }

	for i := 0; i < 3; i++ {
		assert.True(t, rl.Allow("u1"), "message %d", i)
	}
	assert.False(t, rl.Allow("u1"))
	assert.True(t, rl.Allow("u2"), "limits are per user")

	now = now.Add(5 * time.Second)
	assert.False(t, rl.Allow("u1"))

	now = now.Add(5*time.Second + time.Millisecond)
	assert.True(t, rl.Allow("u1"))
}

func TestChatRateLimiterForgetsIdleUsers(t *testing.T) {
	rl := NewChatRateLimiter(2, 10*time.Second)
	now := time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC)
	rl.now = func() time.Time { return now }

	assert.True(t, rl.Allow("u1"))
	assert.True(t, rl.Allow("u1"))
	assert.False(t, rl.Allow("u1"))
	now = now.Add(5 * time.Second)
	assert.True(t, rl.Allow("u2"))
	assert.Len(t, rl.logs, 2)

	// u1 has been quiet for longer than a window, u2 has not
	now = now.Add(6 * time.Second)
	assert.True(t, rl.Allow("u3"))
	assert.Len(t, rl.logs, 2)
	assert.NotContains(t, rl.logs, domain.UserID("u1"))
	assert.Contains(t, rl.logs, domain.UserID("u2"))

	// a forgotten user starts with a fresh allowance
	assert.True(t, rl.Allow("u1"))
	assert.True(t, rl.Allow("u1"))
	assert.False(t, rl.Allow("u1"))
}

func TestOptionsDefaults(t *testing.T) {
	o := Options{PingPeriod: 2 * time.Minute}.withDefaults()
	assert.Equal(t, int64(64<<10), o.ReadLimit)
	assert.Less(t, o.PingPeriod, o.PongWait)
	assert.Equal(t, 64, o.SendBuffer)
}
