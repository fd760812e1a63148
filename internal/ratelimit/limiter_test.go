package ratelimit

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAllowBurstPerKey(t *testing.T) {
	l := NewLimiter(100, 3)

	for i := 0; i < 3; i++ {
		assert.True(t, l.Allow("s1"), "request %d", i)
	}
	assert.False(t, l.Allow("s1"))
	assert.Greater(t, l.RetryAfter("s1").Seconds(), 0.0)

	// buckets are independent
	assert.True(t, l.Allow("s2"))
}

func TestForgetResetsBucket(t *testing.T) {
	l := NewLimiter(1, 1)
	assert.True(t, l.Allow("s1"))
	assert.False(t, l.Allow("s1"))

	l.Forget("s1")
	assert.True(t, l.Allow("s1"))
	assert.Equal(t, 1, l.Limit())
}
