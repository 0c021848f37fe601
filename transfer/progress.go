package transfer

import (
	"context"
	"fmt"
	"time"

	"github.com/bitrise-io/go-utils/v2/log"
	"github.com/docker/go-units"
)

// ProgressMonitor periodically reports how far a job got. It only reads shared state.
type ProgressMonitor struct {
	queue       *WorkQueue
	results     *ResultBuffer
	stats       *Stats
	totalChunks uint32
	totalSize   uint64
	interval    time.Duration
	logger      log.Logger
}

// NewProgressMonitor ...
func NewProgressMonitor(queue *WorkQueue, results *ResultBuffer, stats *Stats, plan Plan, interval time.Duration, logger log.Logger) *ProgressMonitor {
	return &ProgressMonitor{
		queue:       queue,
		results:     results,
		stats:       stats,
		totalChunks: plan.TotalChunks(),
		totalSize:   plan.TotalSize,
		interval:    interval,
		logger:      logger,
	}
}

// Run emits a status line every interval until ctx is done.
func (m *ProgressMonitor) Run(ctx context.Context) {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.logger.Printf("%s", m.Status())
		}
	}
}

// Percent returns the share of chunks already claimed by readers.
func (m *ProgressMonitor) Percent() float64 {
	if m.totalChunks == 0 {
		return 100
	}
	remaining := m.queue.Remaining()
	return float64(m.totalChunks-remaining) / float64(m.totalChunks) * 100
}

// Status formats the current progress.
func (m *ProgressMonitor) Status() string {
	return fmt.Sprintf("Remaining: tq:%d %.1f%% wq:%d written: %s / %s avg chunk read: %s",
		m.queue.Remaining(),
		m.Percent(),
		m.results.Len(),
		units.HumanSizeWithPrecision(float64(m.stats.BytesWritten()), 3),
		units.HumanSizeWithPrecision(float64(m.totalSize), 3),
		m.stats.Average().Round(time.Millisecond),
	)
}
