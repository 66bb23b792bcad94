package retry

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBackoffGrowsAndCaps(t *testing.T) {
	base := 10 * time.Millisecond
	max := 50 * time.Millisecond
	for attempt := 0; attempt < 10; attempt++ {
		d := Backoff(attempt, base, max)
		assert.GreaterOrEqual(t, d, base)
		assert.LessOrEqual(t, d, max+max/10)
	}
	assert.Greater(t, Backoff(2, base, max), Backoff(0, base, max))
}

func TestDoSucceedsEventually(t *testing.T) {
	calls := 0
	err := Do(3, time.Millisecond, 5*time.Millisecond, func(attempt int) error {
		calls++
		if attempt < 2 {
			return errors.New("transient")
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestDoExhaustsAttempts(t *testing.T) {
	calls := 0
	err := Do(3, time.Millisecond, 5*time.Millisecond, func(attempt int) error {
		calls++
		return errors.New("permanent")
	})
	require.Error(t, err)
	assert.Equal(t, 3, calls)
}
