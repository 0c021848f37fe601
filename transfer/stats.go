package transfer

import (
	"sync"
	"time"
)

// Stats tracks read performance metrics for progress and summary reporting.
type Stats struct {
	sum            time.Duration
	finishedChunks int64
	bytesRead      int64
	bytesWritten   int64
	retries        int64
	mu             sync.Mutex
}

// NewStats creates a new Stats instance.
func NewStats() *Stats {
	return &Stats{}
}

// Update records a successful chunk read of n bytes that took d.
func (s *Stats) Update(d time.Duration, n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sum += d
	s.finishedChunks++
	s.bytesRead += int64(n)
}

// AddRetry records a failed attempt that is going to be retried.
func (s *Stats) AddRetry() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.retries++
}

// AddWritten records n bytes appended to the destination.
func (s *Stats) AddWritten(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.bytesWritten += int64(n)
}

// Average returns the average read duration for completed chunks.
func (s *Stats) Average() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.finishedChunks == 0 {
		return 0
	}
	return s.sum / time.Duration(s.finishedChunks)
}

// FinishedCount returns the number of completed chunk reads.
func (s *Stats) FinishedCount() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.finishedChunks
}

// BytesRead returns the number of bytes read from the remote object.
func (s *Stats) BytesRead() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.bytesRead
}

// BytesWritten returns the number of bytes appended to the destination.
func (s *Stats) BytesWritten() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.bytesWritten
}

// Retries returns the number of retried chunk reads.
func (s *Stats) Retries() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.retries
}

// TotalDuration returns the sum of all read durations.
func (s *Stats) TotalDuration() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sum
}
