package transfer

import (
	"container/heap"
	"errors"
	"sync"
)

var errBufferAborted = errors.New("result buffer aborted")

type resultHeap []ChunkResult

func (h resultHeap) Len() int           { return len(h) }
func (h resultHeap) Less(i, j int) bool { return h[i].Sequence < h[j].Sequence }
func (h resultHeap) Swap(i, j int)      { h[i], h[j] = h[j], h[i] }

func (h *resultHeap) Push(x any) {
	*h = append(*h, x.(ChunkResult))
}

func (h *resultHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	old[n-1] = ChunkResult{}
	*h = old[:n-1]
	return item
}

// ResultBuffer holds completed chunks until the writer consumes them in sequence order.
//
// The buffer is bounded: Push blocks while capacity results are waiting, unless the pushed
// result would become the new minimum. The chunk the writer waits for is always smaller than
// everything buffered, so it is always admitted and the writer can never starve.
type ResultBuffer struct {
	results  resultHeap
	capacity int
	err      error
	mu       sync.Mutex
	cond     *sync.Cond
}

// NewResultBuffer creates a buffer that admits about capacity results before blocking producers.
func NewResultBuffer(capacity int) *ResultBuffer {
	if capacity < 1 {
		capacity = 1
	}

	b := &ResultBuffer{
		results:  make(resultHeap, 0, capacity),
		capacity: capacity,
	}
	b.cond = sync.NewCond(&b.mu)
	return b
}

// Push adds a result, blocking while the buffer is full.
// It returns the abort reason if the buffer is aborted before the result is admitted.
func (b *ResultBuffer) Push(r ChunkResult) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	for b.err == nil && !b.admits(r.Sequence) {
		b.cond.Wait()
	}
	if b.err != nil {
		return b.err
	}

	heap.Push(&b.results, r)
	b.cond.Broadcast()
	return nil
}

func (b *ResultBuffer) admits(sequence uint32) bool {
	if len(b.results) < b.capacity {
		return true
	}
	return sequence < b.results[0].Sequence
}

// PeekMin returns the smallest buffered sequence.
func (b *ResultBuffer) PeekMin() (uint32, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if len(b.results) == 0 {
		return 0, false
	}
	return b.results[0].Sequence, true
}

// PopIfMin removes and returns the minimum result only if its sequence equals expected.
// Nothing is removed otherwise.
func (b *ResultBuffer) PopIfMin(expected uint32) (ChunkResult, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	return b.popIfMinLocked(expected)
}

func (b *ResultBuffer) popIfMinLocked(expected uint32) (ChunkResult, bool) {
	if len(b.results) == 0 || b.results[0].Sequence != expected {
		return ChunkResult{}, false
	}

	r := heap.Pop(&b.results).(ChunkResult)
	b.cond.Broadcast()
	return r, true
}

// Next blocks until the result with the expected sequence is the minimum and pops it.
// It returns the abort reason if the buffer is aborted first.
func (b *ResultBuffer) Next(expected uint32) (ChunkResult, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for {
		if b.err != nil {
			return ChunkResult{}, b.err
		}
		if r, ok := b.popIfMinLocked(expected); ok {
			return r, nil
		}
		b.cond.Wait()
	}
}

// Len returns the number of buffered results.
func (b *ResultBuffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.results)
}

// Abort drops every buffered result and wakes all blocked producers and the consumer.
// The first abort reason sticks; a nil reason is replaced by a generic one.
func (b *ResultBuffer) Abort(reason error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.err == nil {
		if reason == nil {
			reason = errBufferAborted
		}
		b.err = reason
	}
	b.results = nil
	b.cond.Broadcast()
}
