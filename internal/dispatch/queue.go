package dispatch

import (
	"sync"

	"github.com/nvandessel/rnmc/internal/simulation"
)

// SeedQueue hands out the seeds base, base+1, ..., base+n-1, each exactly once.
type SeedQueue struct {
	mu    sync.Mutex
	seeds []int64
	next  int
}

// NewSeedQueue pre-generates n consecutive seeds starting at base.
func NewSeedQueue(base int64, n int) *SeedQueue {
	seeds := make([]int64, max(n, 0))
	for i := range seeds {
		seeds[i] = base + int64(i)
	}
	return &SeedQueue{seeds: seeds}
}

// Take returns the next seed. ok is false once every seed has been taken.
func (q *SeedQueue) Take() (seed int64, ok bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.next >= len(q.seeds) {
		return 0, false
	}
	seed = q.seeds[q.next]
	q.next++
	return seed, true
}

// Len returns the total number of seeds.
func (q *SeedQueue) Len() int {
	return len(q.seeds)
}

// Remaining returns how many seeds have not been taken yet.
func (q *SeedQueue) Remaining() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.seeds) - q.next
}

// Result is a finished trajectory waiting to be persisted.
type Result struct {
	Seed    int64
	History *simulation.History
}

// HistoryQueue is a LIFO of finished trajectories. Workers push, the
// coordinator pops. Pop never blocks; Ready signals that a push happened.
type HistoryQueue struct {
	mu    sync.Mutex
	items []Result
	ready chan struct{}
}

// NewHistoryQueue creates an empty queue.
func NewHistoryQueue() *HistoryQueue {
	return &HistoryQueue{ready: make(chan struct{}, 1)}
}

// Push adds a finished trajectory.
func (q *HistoryQueue) Push(seed int64, h *simulation.History) {
	q.mu.Lock()
	q.items = append(q.items, Result{Seed: seed, History: h})
	q.mu.Unlock()

	select {
	case q.ready <- struct{}{}:
	default:
	}
}

// Pop removes the most recently pushed trajectory. ok is false if the queue
// is empty.
func (q *HistoryQueue) Pop() (r Result, ok bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	n := len(q.items)
	if n == 0 {
		return Result{}, false
	}
	r = q.items[n-1]
	q.items[n-1] = Result{}
	q.items = q.items[:n-1]
	return r, true
}

// Len returns the number of queued trajectories.
func (q *HistoryQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Ready returns a channel that receives after pushes. Several pushes may
// coalesce into one signal, so receivers must drain with Pop.
func (q *HistoryQueue) Ready() <-chan struct{} {
	return q.ready
}

// Drain empties the queue and returns what it held.
func (q *HistoryQueue) Drain() []Result {
	q.mu.Lock()
	defer q.mu.Unlock()

	items := q.items
	q.items = nil
	return items
}
