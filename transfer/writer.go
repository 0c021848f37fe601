package transfer

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/bitrise-io/go-chunkfetch/internal"
	"github.com/bitrise-io/go-utils/v2/log"
)

// Writer appends chunks to the destination file strictly in sequence order.
// It is the only owner of the destination handle and of the next expected sequence.
type Writer struct {
	osProxy      internal.OsProxy
	file         internal.File
	path         string
	nextExpected uint32
	stats        *Stats
	logger       log.Logger

	// advanced is called after every written chunk with the new cursor value.
	advanced func(next uint32)
}

// CreateDestination opens path for writing, failing if anything already exists at path.
func CreateDestination(osProxy internal.OsProxy, path string, stats *Stats, logger log.Logger) (*Writer, error) {
	f, err := osProxy.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0644)
	if err != nil {
		if errors.Is(err, fs.ErrExist) {
			return nil, fmt.Errorf("%w: %s", ErrDestinationExists, path)
		}
		return nil, fmt.Errorf("%w: create %s: %w", ErrWrite, path, err)
	}

	return &Writer{
		osProxy: osProxy,
		file:    f,
		path:    path,
		stats:   stats,
		logger:  logger,
	}, nil
}

// Run consumes results until totalChunks chunks are written, then flushes and closes the file.
// On any failure, including an aborted buffer, the partial file is removed.
func (w *Writer) Run(totalChunks uint32, results *ResultBuffer) error {
	for w.nextExpected < totalChunks {
		r, err := results.Next(w.nextExpected)
		if err != nil {
			w.discard()
			return err
		}

		if _, err := w.file.Write(r.Payload); err != nil {
			w.discard()
			return fmt.Errorf("%w: chunk %d: %w", ErrWrite, r.Sequence, err)
		}

		w.nextExpected++
		w.stats.AddWritten(len(r.Payload))
		if w.advanced != nil {
			w.advanced(w.nextExpected)
		}
	}

	if err := w.file.Sync(); err != nil {
		w.discard()
		return fmt.Errorf("%w: sync %s: %w", ErrWrite, w.path, err)
	}
	if err := w.file.Close(); err != nil {
		w.remove()
		return fmt.Errorf("%w: close %s: %w", ErrWrite, w.path, err)
	}

	w.logger.Debugf("Wrote %d chunks to %s", w.nextExpected, w.path)
	return nil
}

// Abandon removes the destination without consuming anything.
func (w *Writer) Abandon() {
	w.discard()
}

func (w *Writer) discard() {
	if err := w.file.Close(); err != nil {
		w.logger.Debugf("Close partial destination %s: %s", w.path, err)
	}
	w.remove()
}

func (w *Writer) remove() {
	if err := w.osProxy.Remove(w.path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		w.logger.Warnf("Failed to remove partial destination %s: %s", w.path, err)
	}
}
