package transfer

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidPlan is returned for zero or negative sizes, or sizes the chunk layout cannot represent.
	ErrInvalidPlan = errors.New("invalid chunk plan")
	// ErrDestinationExists is returned when the local destination path is already taken.
	ErrDestinationExists = errors.New("destination already exists")
	// ErrContainer is returned when the remote path points to a collection instead of a data object.
	ErrContainer = errors.New("remote path is a collection")
	// ErrShortRead is returned when a chunk read returns fewer bytes than its declared length.
	ErrShortRead = errors.New("short read")
	// ErrRetryExhausted is returned when a chunk keeps failing after every retry.
	ErrRetryExhausted = errors.New("retries exhausted")
	// ErrWrite is returned when the destination file cannot be written, flushed or closed.
	ErrWrite = errors.New("write destination")
	// ErrCancelled is returned when the job is interrupted from the outside.
	ErrCancelled = errors.New("transfer cancelled")
)

// ChunkError describes a chunk that could not be read.
type ChunkError struct {
	Sequence uint32
	Attempts uint
	Err      error
}

func (e *ChunkError) Error() string {
	return fmt.Sprintf("chunk %d failed after %d attempts: %v", e.Sequence, e.Attempts, e.Err)
}

// Unwrap exposes both ErrRetryExhausted and the last read error to errors.Is and errors.As.
func (e *ChunkError) Unwrap() []error {
	return []error{ErrRetryExhausted, e.Err}
}
