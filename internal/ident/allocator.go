// Package ident implements the short case-identifier allocator.
//
// Display IDs are small non-negative integers that dispatchers type by
// hand, so the allocator works to keep the active range compact (typically
// 0–15), to avoid re-issuing a number that was released moments ago, and to
// alternate numbering between the even and odd dispatch queues while
// spreading emergency load across both parities.
package ident

import (
	"math/rand"
	"sort"
	"time"
)

// codeRedWeight is how many ordinary cases one emergency counts for when
// balancing the two parities.
const codeRedWeight = 3

// ActiveCase is the allocator's view of one case currently on the board.
type ActiveCase struct {
	ID      int
	CodeRed bool
}

// Allocator hands out display IDs. It is not safe for concurrent use; the
// board serializes access.
type Allocator struct {
	// recency holds recently released IDs, oldest first. It is bounded by
	// max and deliberately not tied to any single case: it only biases
	// future allocation away from very recently reused numbers.
	recency []int
	max     int

	// coin breaks parity-weight ties. Overridable in tests.
	coin func() bool
}

// NewAllocator returns an allocator whose recency list keeps at most max
// entries. A max of zero disables recency bias entirely.
func NewAllocator(max int) *Allocator {
	rng := rand.New(rand.NewSource(time.Now().UnixNano()))
	return &Allocator{
		max:  max,
		coin: func() bool { return rng.Intn(2) == 0 },
	}
}

// Allocate picks a display ID given the set of currently active cases.
//
// If preferred is non-nil and free it is returned unchanged; this path is
// used when re-inserting a record whose remote copy already carries an ID.
// preferEven forces the parity when non-nil; otherwise the parity with the
// lower emergency-weighted load wins, ties broken by coin flip.
func (a *Allocator) Allocate(active []ActiveCase, preferred *int, preferEven *bool) int {
	inUse := make(map[int]bool, len(active))
	for _, c := range active {
		inUse[c.ID] = true
	}
	if preferred != nil && *preferred >= 0 && !inUse[*preferred] {
		return *preferred
	}

	// Candidate list: the n smallest free non-negative integers. Shrinks
	// to a single slot on a busy board so the range stays tight.
	n := 4
	if len(active) >= 10 {
		n = 1
	}
	cands := make([]int, 0, n)
	for id := 0; len(cands) < n; id++ {
		if !inUse[id] {
			cands = append(cands, id)
		}
	}

	// Rank: IDs released longer ago (or never seen) first, smaller value
	// on ties.
	sort.SliceStable(cands, func(i, j int) bool {
		ri, rj := a.rank(cands[i]), a.rank(cands[j])
		if ri != rj {
			return ri < rj
		}
		return cands[i] < cands[j]
	})

	// Nothing to balance on an empty board; take the best-ranked ID.
	if len(active) == 0 && preferEven == nil {
		return cands[0]
	}

	even := a.pickParity(active, preferEven)
	for _, id := range cands {
		if (id%2 == 0) == even {
			return id
		}
	}
	return cands[0]
}

// Release records an ID as recently issued. The board calls this when a
// case leaves the active set, not when the ID is allocated.
func (a *Allocator) Release(id int) {
	if a.max <= 0 {
		return
	}
	// Drop an older occurrence so the list reflects the latest release.
	for i, v := range a.recency {
		if v == id {
			a.recency = append(a.recency[:i], a.recency[i+1:]...)
			break
		}
	}
	a.recency = append(a.recency, id)
	if len(a.recency) > a.max {
		a.recency = a.recency[len(a.recency)-a.max:]
	}
}

// rank returns the recency position of id: -1 when absent (best), higher
// values for more recent releases (worse).
func (a *Allocator) rank(id int) int {
	for i := len(a.recency) - 1; i >= 0; i-- {
		if a.recency[i] == id {
			return i
		}
	}
	return -1
}

// pickParity chooses the parity for the next ID. Each parity's load is the
// number of active cases plus codeRedWeight extra per emergency, so that
// code-red cases do not cluster into one dispatch queue.
func (a *Allocator) pickParity(active []ActiveCase, preferEven *bool) bool {
	if preferEven != nil {
		return *preferEven
	}
	var wEven, wOdd int
	for _, c := range active {
		w := 1
		if c.CodeRed {
			w = codeRedWeight
		}
		if c.ID%2 == 0 {
			wEven += w
		} else {
			wOdd += w
		}
	}
	switch {
	case wEven < wOdd:
		return true
	case wOdd < wEven:
		return false
	default:
		return a.coin()
	}
}
