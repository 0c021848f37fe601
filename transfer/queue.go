package transfer

import (
	"sync"
)

// WorkQueue hands out the descriptors of a plan, each exactly once, in plan order.
type WorkQueue struct {
	plan Plan
	next uint32
	mu   sync.Mutex
}

// NewWorkQueue creates a queue holding every descriptor of the plan.
func NewWorkQueue(plan Plan) *WorkQueue {
	return &WorkQueue{plan: plan}
}

// Take claims the next unclaimed descriptor. It never blocks; false means the queue is drained.
func (q *WorkQueue) Take() (ChunkDescriptor, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.next >= q.plan.TotalChunks() {
		return ChunkDescriptor{}, false
	}

	d := q.plan.Chunk(q.next)
	q.next++
	return d, true
}

// Remaining returns the number of descriptors not yet claimed.
func (q *WorkQueue) Remaining() uint32 {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.plan.TotalChunks() - q.next
}
