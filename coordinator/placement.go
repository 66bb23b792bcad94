package coordinator

import (
	"sort"
	"sync"
)

// LoadCounters tracks per-node placement counts, used only to steer new
// placements toward the least-loaded live nodes. Not persisted.
type LoadCounters struct {
	mu    sync.Mutex
	count map[string]int
}

// NewLoadCounters creates an empty load counter table.
func NewLoadCounters() *LoadCounters {
	return &LoadCounters{count: map[string]int{}}
}

// PickLeastLoaded selects up to r of the given live nodes with the smallest
// current load, incrementing each chosen node's counter, all under one lock
// so the pick-then-increment sequence is atomic with respect to concurrent
// placements. Ties are broken by the order live appears in; if len(live) < r
// all of live is selected.
func (lc *LoadCounters) PickLeastLoaded(live []string, r int) []string {
	lc.mu.Lock()
	defer lc.mu.Unlock()

	if r > len(live) {
		r = len(live)
	}
	candidates := make([]string, len(live))
	copy(candidates, live)

	// sort.SliceStable, not an in-place selection sort: swapping elements
	// into position during selection reorders ties, which breaks the
	// "preserve input order on ties" guarantee above.
	sort.SliceStable(candidates, func(i, j int) bool {
		return lc.count[candidates[i]] < lc.count[candidates[j]]
	})
	for _, addr := range candidates[:r] {
		lc.count[addr]++
	}
	return candidates[:r]
}

// Load returns the current counter for a node (0 if never placed to).
func (lc *LoadCounters) Load(addr string) int {
	lc.mu.Lock()
	defer lc.mu.Unlock()
	return lc.count[addr]
}
