package transfer

import (
	"fmt"
	"time"
)

const (
	// DefaultWorkers is the number of concurrent chunk readers.
	DefaultWorkers = 30
	// DefaultChunkSize is the size of a single ranged read (256 KiB).
	DefaultChunkSize = 256 * 1024
	// DefaultMaxRetries is the number of retries for a failing chunk read, on top of the first attempt.
	DefaultMaxRetries = 3
	// DefaultRetryWait is the pause between two attempts of the same chunk.
	DefaultRetryWait = 500 * time.Millisecond
	// DefaultProgressInterval is the period of progress status lines.
	DefaultProgressInterval = 5 * time.Second
)

// Config holds configuration for a fetch job.
type Config struct {
	// Workers is the number of parallel chunk readers.
	// Default: 30
	Workers int

	// ChunkSize is the size of every chunk except possibly the last one.
	// Default: 256 KiB
	ChunkSize int64

	// MaxRetries is the maximum number of retry attempts per chunk.
	// Default: 3
	MaxRetries int

	// RetryWait is the duration to wait between attempts of the same chunk.
	// Cancelling the job interrupts the wait.
	RetryWait time.Duration

	// MaxBufferedChunks bounds the number of completed chunks waiting for the writer.
	// Zero means twice the number of workers.
	MaxBufferedChunks int

	// Progress enables the periodic progress monitor.
	Progress bool

	// ProgressInterval is the period of the progress monitor.
	// Default: 5 seconds
	ProgressInterval time.Duration
}

// DefaultConfig returns the default configuration.
func DefaultConfig() Config {
	return Config{
		Workers:          DefaultWorkers,
		ChunkSize:        DefaultChunkSize,
		MaxRetries:       DefaultMaxRetries,
		RetryWait:        DefaultRetryWait,
		ProgressInterval: DefaultProgressInterval,
	}
}

// Validate checks that the configuration can drive a job.
func (c Config) Validate() error {
	if c.Workers < 1 {
		return fmt.Errorf("workers must be at least 1, got %d", c.Workers)
	}
	if c.ChunkSize < 1 {
		return fmt.Errorf("%w: chunk size must be positive, got %d", ErrInvalidPlan, c.ChunkSize)
	}
	if c.MaxRetries < 0 {
		return fmt.Errorf("max retries must not be negative, got %d", c.MaxRetries)
	}
	if c.MaxBufferedChunks < 0 {
		return fmt.Errorf("max buffered chunks must not be negative, got %d", c.MaxBufferedChunks)
	}
	if c.Progress && c.ProgressInterval <= 0 {
		return fmt.Errorf("progress interval must be positive, got %s", c.ProgressInterval)
	}
	return nil
}

// BufferCapacity returns the effective ResultBuffer bound.
func (c Config) BufferCapacity() int {
	if c.MaxBufferedChunks > 0 {
		return c.MaxBufferedChunks
	}
	if c.Workers < 1 {
		return 1
	}
	return 2 * c.Workers
}
