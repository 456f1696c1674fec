package job

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

type fixedBackoff time.Duration

func (b fixedBackoff) Next(attempt int) time.Duration { return time.Duration(b) * time.Duration(attempt+1) }

func TestCanTransition(t *testing.T) {
	allowed := [][2]State{
		{Pending, InFlight},
		{Retrying, InFlight},
		{InFlight, InFlight},
		{InFlight, Delivered},
		{InFlight, Retrying},
		{InFlight, Failed},
		{InFlight, Cancelled},
	}
	for _, tr := range allowed {
		assert.True(t, CanTransition(tr[0], tr[1]), "%s -> %s", tr[0], tr[1])
	}

	denied := [][2]State{
		{Pending, Delivered},
		{Retrying, Pending},
		{InFlight, Pending},
		{Delivered, InFlight},
		{Failed, Retrying},
		{Cancelled, InFlight},
	}
	for _, tr := range denied {
		assert.False(t, CanTransition(tr[0], tr[1]), "%s -> %s", tr[0], tr[1])
	}
}

func TestTerminal(t *testing.T) {
	for _, s := range []State{Delivered, Failed, Cancelled} {
		assert.True(t, s.Terminal(), s)
	}
	for _, s := range []State{Pending, InFlight, Retrying} {
		assert.False(t, s.Terminal(), s)
	}
}

func TestRetryPolicyDecide(t *testing.T) {
	now := time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)
	p := RetryPolicy{MaxAttempts: 3, Backoff: fixedBackoff(time.Second)}

	s, at := p.Decide(&Job{Attempts: 1}, false, now)
	assert.Equal(t, Retrying, s)
	assert.Equal(t, now.Add(time.Second), at)

	s, at = p.Decide(&Job{Attempts: 2}, false, now)
	assert.Equal(t, Retrying, s)
	assert.Equal(t, now.Add(2*time.Second), at)

	s, _ = p.Decide(&Job{Attempts: 3}, false, now)
	assert.Equal(t, Failed, s)

	s, _ = p.Decide(&Job{Attempts: 1}, true, now)
	assert.Equal(t, Failed, s)
}

func TestRetryPolicyWithoutBackoffRetriesNow(t *testing.T) {
	now := time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)
	s, at := RetryPolicy{MaxAttempts: 2}.Decide(&Job{Attempts: 1}, false, now)
	assert.Equal(t, Retrying, s)
	assert.Equal(t, now, at)
}
