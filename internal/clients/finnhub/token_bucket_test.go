package finnhub

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestTokenBucketExhaustion(t *testing.T) {
	b := NewTokenBucket(2, time.Minute)
	assert.True(t, b.Allow())
	assert.True(t, b.Allow())
	assert.False(t, b.Allow())
}

func TestTokenBucketResetsAfterWindow(t *testing.T) {
	b := NewTokenBucket(1, 10*time.Millisecond)
	assert.True(t, b.Allow())
	assert.False(t, b.Allow())
	time.Sleep(20 * time.Millisecond)
	assert.True(t, b.Allow())
}
