package pool

import (
	"container/heap"
	"sync"
	"time"

	"github.com/awsl-project/gproxy/internal/domain"
)

// deadlineItem is one pending recovery: the disallow key and when it ends.
type deadlineItem struct {
	key      domain.DisallowKey
	deadline time.Time
}

type deadlineHeap []deadlineItem

func (h deadlineHeap) Len() int           { return len(h) }
func (h deadlineHeap) Less(i, j int) bool { return h[i].deadline.Before(h[j].deadline) }
func (h deadlineHeap) Swap(i, j int)      { h[i], h[j] = h[j], h[i] }
func (h *deadlineHeap) Push(x any)        { *h = append(*h, x.(deadlineItem)) }
func (h *deadlineHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}

// recoveryQueue wakes at the earliest deadline, prunes expired disallow
// keys from the snapshot and emits the matching end events. Provider-scope
// and model-scope marks share one worker; the key distinguishes them.
type recoveryQueue struct {
	pool *Pool

	mu      sync.Mutex
	pending deadlineHeap
	wake    chan struct{}
	done    chan struct{}
	once    sync.Once
}

func newRecoveryQueue(pool *Pool) *recoveryQueue {
	q := &recoveryQueue{
		pool: pool,
		wake: make(chan struct{}, 1),
		done: make(chan struct{}),
	}
	go q.run()
	return q
}

// schedule registers a deadline for a timed mark.
func (q *recoveryQueue) schedule(key domain.DisallowKey, deadline time.Time) {
	q.mu.Lock()
	heap.Push(&q.pending, deadlineItem{key: key, deadline: deadline})
	q.mu.Unlock()
	select {
	case q.wake <- struct{}{}:
	default:
	}
}

// reseed rebuilds the queue from a fresh snapshot's timed entries.
func (q *recoveryQueue) reseed(snapshot *Snapshot) {
	q.mu.Lock()
	q.pending = q.pending[:0]
	for key, entry := range snapshot.Disallow {
		if entry.Level == domain.LevelDead {
			continue
		}
		heap.Push(&q.pending, deadlineItem{key: key, deadline: entry.Until})
	}
	q.mu.Unlock()
	select {
	case q.wake <- struct{}{}:
	default:
	}
}

func (q *recoveryQueue) run() {
	timer := time.NewTimer(time.Hour)
	defer timer.Stop()
	for {
		q.mu.Lock()
		var wait time.Duration
		if len(q.pending) == 0 {
			wait = time.Hour
		} else {
			wait = time.Until(q.pending[0].deadline)
		}
		q.mu.Unlock()
		if wait < 0 {
			wait = 0
		}
		if !timer.Stop() {
			select {
			case <-timer.C:
			default:
			}
		}
		timer.Reset(wait)

		select {
		case <-q.done:
			return
		case <-q.wake:
			continue
		case <-timer.C:
			q.expire()
		}
	}
}

// expire pops every due item and prunes it from the snapshot.
func (q *recoveryQueue) expire() {
	now := time.Now()
	for {
		q.mu.Lock()
		if len(q.pending) == 0 || q.pending[0].deadline.After(now) {
			q.mu.Unlock()
			return
		}
		item := heap.Pop(&q.pending).(deadlineItem)
		q.mu.Unlock()
		q.pool.removeExpired(item.key, now)
	}
}

func (q *recoveryQueue) stop() {
	q.once.Do(func() { close(q.done) })
}
