package limiter

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestCooldown_AdmitsFirstAttempt(t *testing.T) {
	c := NewCooldown(2 * time.Second)
	assert.True(t, c.Allow())
}

func TestCooldown_RejectsWithinInterval(t *testing.T) {
	c := NewCooldown(2 * time.Second)

	now := time.Unix(1000, 0)
	c.SetNow(func() time.Time { return now })

	assert.True(t, c.Allow())
	now = now.Add(500 * time.Millisecond)
	assert.False(t, c.Allow())
	now = now.Add(1999 * time.Millisecond)
	assert.True(t, c.Allow())
}

func TestCooldown_RejectedAttemptDoesNotExtendCooldown(t *testing.T) {
	c := NewCooldown(2 * time.Second)

	now := time.Unix(1000, 0)
	c.SetNow(func() time.Time { return now })

	assert.True(t, c.Allow())

	// Hammering Allow during the cooldown must not push the window forward.
	for i := 0; i < 10; i++ {
		now = now.Add(100 * time.Millisecond)
		assert.False(t, c.Allow())
	}
	now = now.Add(1100 * time.Millisecond) // 2.1s after the admitted attempt
	assert.True(t, c.Allow())
}

func TestCooldown_Reset(t *testing.T) {
	c := NewCooldown(time.Hour)
	assert.True(t, c.Allow())
	assert.False(t, c.Allow())
	c.Reset()
	assert.True(t, c.Allow())
}
