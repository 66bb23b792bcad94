package coordinator

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPickLeastLoadedSubsetOfLive(t *testing.T) {
	lc := NewLoadCounters()
	live := []string{"a", "b", "c", "d"}

	picked := lc.PickLeastLoaded(live, 3)
	assert.Len(t, picked, 3)
	for _, p := range picked {
		assert.Contains(t, live, p)
	}
}

func TestPickLeastLoadedFewerThanR(t *testing.T) {
	lc := NewLoadCounters()
	live := []string{"a"}
	picked := lc.PickLeastLoaded(live, 3)
	assert.Equal(t, []string{"a"}, picked)
}

func TestPickLeastLoadedBalancesAcrossCalls(t *testing.T) {
	lc := NewLoadCounters()
	live := []string{"a", "b", "c"}

	// Three single-node picks in a row, with all counters starting at zero,
	// must land one placement on each node (stable tie-break over iteration order).
	seen := map[string]int{}
	for i := 0; i < 3; i++ {
		picked := lc.PickLeastLoaded(live, 1)
		seen[picked[0]]++
	}
	assert.Equal(t, map[string]int{"a": 1, "b": 1, "c": 1}, seen)
}

func TestPickLeastLoadedIncrementsCounters(t *testing.T) {
	lc := NewLoadCounters()
	live := []string{"a", "b", "c"}
	lc.PickLeastLoaded(live, 3)
	for _, addr := range live {
		assert.Equal(t, 1, lc.Load(addr))
	}
}
