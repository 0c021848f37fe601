// Package transfer fetches a remote object in parallel fixed-size chunks and reassembles
// them into a local file in strict sequence order.
// It supports bounded worker pools, per-chunk retries and backpressure between readers and the writer.
package transfer

import (
	"fmt"
	"math"
)

// ChunkDescriptor identifies one byte range of the remote object.
type ChunkDescriptor struct {
	Sequence uint32
	Offset   uint64
	Length   uint32
}

// End returns the offset right after the last byte of the chunk.
func (d ChunkDescriptor) End() uint64 {
	return d.Offset + uint64(d.Length)
}

// ChunkResult is the payload read for one descriptor.
type ChunkResult struct {
	Sequence uint32
	Payload  []byte
}

// Length returns the number of bytes actually read.
func (r ChunkResult) Length() uint32 {
	return uint32(len(r.Payload))
}

// Plan is the ordered chunk layout of one object.
// Descriptors are computed on demand, so a plan costs the same for any chunk count.
type Plan struct {
	TotalSize   uint64
	ChunkSize   uint32
	totalChunks uint32
}

// TotalChunks returns the number of chunks in the plan.
func (p Plan) TotalChunks() uint32 {
	return p.totalChunks
}

// Chunk returns the descriptor with the given sequence. The sequence must be below TotalChunks.
func (p Plan) Chunk(sequence uint32) ChunkDescriptor {
	offset := uint64(sequence) * uint64(p.ChunkSize)
	length := uint64(p.ChunkSize)
	if offset+length > p.TotalSize {
		length = p.TotalSize - offset
	}
	return ChunkDescriptor{
		Sequence: sequence,
		Offset:   offset,
		Length:   uint32(length),
	}
}

// NewPlan splits [0, totalSize) into consecutive chunks of chunkSize bytes.
// The last chunk is shorter when totalSize is not a multiple of chunkSize.
func NewPlan(totalSize, chunkSize int64) (Plan, error) {
	if totalSize <= 0 {
		return Plan{}, fmt.Errorf("%w: total size must be positive, got %d", ErrInvalidPlan, totalSize)
	}
	if chunkSize <= 0 {
		return Plan{}, fmt.Errorf("%w: chunk size must be positive, got %d", ErrInvalidPlan, chunkSize)
	}
	if chunkSize > totalSize {
		chunkSize = totalSize
	}
	if chunkSize > math.MaxUint32 {
		return Plan{}, fmt.Errorf("%w: chunk size %d does not fit a single read", ErrInvalidPlan, chunkSize)
	}

	count := totalSize / chunkSize
	if totalSize%chunkSize != 0 {
		count++
	}
	if count > math.MaxUint32 {
		return Plan{}, fmt.Errorf("%w: %d chunks exceed the supported chunk count", ErrInvalidPlan, count)
	}

	return Plan{
		TotalSize:   uint64(totalSize),
		ChunkSize:   uint32(chunkSize),
		totalChunks: uint32(count),
	}, nil
}
