package taskengine

import (
	"container/heap"
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// CacheMode selects which worker path a task descriptor is dispatched to.
type CacheMode string

const (
	// CacheModeNone runs the FRESH path: a real stock/options analysis.
	CacheModeNone CacheMode = ""
	// CacheModeCached replays a pre-computed payload with simulated progress.
	CacheModeCached CacheMode = "cached"
	// CacheModeWaiting polls for a sibling task's result.
	CacheModeWaiting CacheMode = "waiting"
)

// taskDescriptor is the in-memory unit of work pushed onto the queue by
// CreateTask and popped by a worker.
type taskDescriptor struct {
	taskID       uuid.UUID
	userID       string
	taskType     string
	inputParams  map[string]any
	priority     int
	cacheMode    CacheMode
	cachedData   map[string]any
	sourceTaskID uuid.UUID
	seq          int64
}

// descriptorHeap orders by priority (lower value first), then by insertion
// order for tasks sharing a priority — a stable FIFO within each tier.
type descriptorHeap []taskDescriptor

func (h descriptorHeap) Len() int { return len(h) }
func (h descriptorHeap) Less(i, j int) bool {
	if h[i].priority != h[j].priority {
		return h[i].priority < h[j].priority
	}
	return h[i].seq < h[j].seq
}
func (h descriptorHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }
func (h *descriptorHeap) Push(x any)   { *h = append(*h, x.(taskDescriptor)) }
func (h *descriptorHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}

// descriptorQueue is the engine's in-memory priority queue. pop blocks
// until a descriptor is available or ctx is done, re-checking the heap at
// least once a second; cancelling ctx is what stops a waiting worker.
type descriptorQueue struct {
	mu     sync.Mutex
	items  descriptorHeap
	seq    int64
	notify chan struct{}
}

func newDescriptorQueue() *descriptorQueue {
	return &descriptorQueue{notify: make(chan struct{}, 1)}
}

func (q *descriptorQueue) push(d taskDescriptor) {
	q.mu.Lock()
	q.seq++
	d.seq = q.seq
	heap.Push(&q.items, d)
	q.mu.Unlock()

	select {
	case q.notify <- struct{}{}:
	default:
	}
}

// pop returns the next descriptor in priority order, or (zero, false) once
// ctx is done.
func (q *descriptorQueue) pop(ctx context.Context) (taskDescriptor, bool) {
	for {
		q.mu.Lock()
		if len(q.items) > 0 {
			d := heap.Pop(&q.items).(taskDescriptor)
			q.mu.Unlock()
			return d, true
		}
		q.mu.Unlock()

		select {
		case <-ctx.Done():
			return taskDescriptor{}, false
		case <-q.notify:
		case <-time.After(time.Second):
		}
	}
}
