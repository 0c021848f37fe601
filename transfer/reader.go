package transfer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/bitrise-io/go-chunkfetch/remote"
	"github.com/bitrise-io/go-utils/retry"
	"github.com/bitrise-io/go-utils/v2/log"
)

// chunkReader is one worker of the reader pool. It owns a single stream and a single
// buffer for its whole lifetime; neither is shared with other workers.
type chunkReader struct {
	id         int
	object     remote.Object
	stream     remote.Stream
	buf        []byte
	queue      *WorkQueue
	results    *ResultBuffer
	maxRetries uint
	retryWait  time.Duration
	stats      *Stats
	logger     log.Logger
}

func newChunkReader(id int, object remote.Object, bufferSize uint32, queue *WorkQueue, results *ResultBuffer, config Config, stats *Stats, logger log.Logger) *chunkReader {
	return &chunkReader{
		id:         id,
		object:     object,
		buf:        make([]byte, bufferSize),
		queue:      queue,
		results:    results,
		maxRetries: uint(config.MaxRetries),
		retryWait:  config.RetryWait,
		stats:      stats,
		logger:     logger,
	}
}

// run claims descriptors until the queue is drained, the job is cancelled or a chunk fails.
func (r *chunkReader) run(ctx context.Context) error {
	defer r.closeStream()

	for {
		d, ok := r.queue.Take()
		if !ok {
			return nil
		}

		if err := ctx.Err(); err != nil {
			return err
		}

		payload, err := r.readChunk(ctx, d)
		if err != nil {
			return err
		}

		if err := r.results.Push(ChunkResult{Sequence: d.Sequence, Payload: payload}); err != nil {
			return err
		}
	}
}

// readChunk reads one descriptor, retrying transient failures in place with the same descriptor.
// The stream is opened lazily, so opening it falls under the same retry policy as reading.
// The returned payload is a copy; the worker buffer is reused for the next chunk.
func (r *chunkReader) readChunk(ctx context.Context, d ChunkDescriptor) ([]byte, error) {
	var n int
	var attempts uint
	// The pause between attempts is taken inside the action so that cancellation cuts it short.
	err := retry.Times(r.maxRetries).TryWithAbort(func(attempt uint) (error, bool) {
		attempts = attempt + 1
		if attempt > 0 {
			if err := sleepContext(ctx, r.retryWait); err != nil {
				return err, true
			}
		}
		if err := ctx.Err(); err != nil {
			return err, true
		}

		if r.stream == nil {
			if err := r.openStream(ctx); err != nil {
				if isPermanent(ctx, err) {
					return err, true
				}

				r.logger.Debugf("Reader %d: chunk %d attempt %d: %s", r.id, d.Sequence, attempt+1, err)
				if attempt < r.maxRetries {
					r.stats.AddRetry()
				}
				return err, false
			}
		}

		start := time.Now()
		read, err := r.readOnce(ctx, d)
		if err != nil {
			if isPermanent(ctx, err) {
				return err, true
			}

			r.logger.Debugf("Reader %d: chunk %d attempt %d failed: %s", r.id, d.Sequence, attempt+1, err)
			if attempt < r.maxRetries {
				r.stats.AddRetry()
			}
			// The stream may be left mid-response; start the next attempt on a fresh one.
			r.closeStream()
			return err, false
		}

		r.stats.Update(time.Since(start), read)
		n = read
		return nil, false
	})
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		if isPermanent(ctx, err) {
			return nil, err
		}
		return nil, &ChunkError{Sequence: d.Sequence, Attempts: attempts, Err: err}
	}

	payload := make([]byte, n)
	copy(payload, r.buf[:n])
	return payload, nil
}

func (r *chunkReader) readOnce(ctx context.Context, d ChunkDescriptor) (int, error) {
	buf := r.buf[:d.Length]

	if err := r.stream.Seek(int64(d.Offset)); err != nil {
		return 0, fmt.Errorf("seek to offset %d: %w", d.Offset, err)
	}

	n, err := r.stream.ReadInto(ctx, buf)
	if n == len(buf) && (err == nil || errors.Is(err, io.EOF)) {
		return n, nil
	}
	if err == nil || errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return n, fmt.Errorf("chunk %d: %w: got %d of %d bytes at offset %d", d.Sequence, ErrShortRead, n, len(buf), d.Offset)
	}
	return n, fmt.Errorf("read chunk %d: %w", d.Sequence, err)
}

// sleepContext waits for d or until ctx is done, whichever comes first.
func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func (r *chunkReader) openStream(ctx context.Context) error {
	stream, err := r.object.OpenStream(ctx)
	if err != nil {
		return fmt.Errorf("reader %d: open stream: %w", r.id, err)
	}
	r.stream = stream
	return nil
}

func (r *chunkReader) closeStream() {
	if r.stream == nil {
		return
	}
	if err := r.stream.Close(); err != nil {
		r.logger.Debugf("Reader %d: close stream: %s", r.id, err)
	}
	r.stream = nil
}

// isPermanent reports whether retrying err cannot succeed.
func isPermanent(ctx context.Context, err error) bool {
	if ctx.Err() != nil {
		return true
	}
	return errors.Is(err, ErrShortRead) ||
		errors.Is(err, remote.ErrNotFound) ||
		errors.Is(err, remote.ErrAuthentication) ||
		errors.Is(err, context.Canceled) ||
		errors.Is(err, context.DeadlineExceeded)
}
