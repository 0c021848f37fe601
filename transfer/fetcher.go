package transfer

import (
	"context"
	"errors"
	"fmt"
	"io/fs"

	"github.com/bitrise-io/go-chunkfetch/internal"
	"github.com/bitrise-io/go-chunkfetch/remote"
	"github.com/bitrise-io/go-utils/v2/log"
	"github.com/docker/go-units"
	"golang.org/x/sync/errgroup"
)

// Fetcher runs fetch jobs with a fixed configuration.
type Fetcher struct {
	config  Config
	osProxy internal.OsProxy
	logger  log.Logger
	stats   *Stats

	// cursorObserver receives every writer cursor advance.
	cursorObserver func(next uint32)
}

// NewFetcher creates a Fetcher writing to the local filesystem.
func NewFetcher(config Config, logger log.Logger) *Fetcher {
	return newFetcher(config, internal.RealOS{}, logger)
}

func newFetcher(config Config, osProxy internal.OsProxy, logger log.Logger) *Fetcher {
	return &Fetcher{
		config:  config,
		osProxy: osProxy,
		logger:  logger,
		stats:   NewStats(),
	}
}

// Stats returns the statistics of the last job run by this Fetcher.
func (f *Fetcher) Stats() *Stats {
	return f.stats
}

// CheckDestination fails with ErrDestinationExists if something is already at path.
// It must be called before any remote call so that no transfer is wasted.
func (f *Fetcher) CheckDestination(path string) error {
	_, err := f.osProxy.Stat(path)
	switch {
	case err == nil:
		return fmt.Errorf("%w: %s", ErrDestinationExists, path)
	case errors.Is(err, fs.ErrNotExist):
		return nil
	default:
		return fmt.Errorf("check destination %s: %w", path, err)
	}
}

// Fetch downloads object into destination.
//
// The returned job is nil only if the fetch failed before a plan could be made.
// A job that does not complete leaves no file at destination.
func (f *Fetcher) Fetch(ctx context.Context, object remote.Object, destination string) (*Job, error) {
	if err := f.config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	if err := f.CheckDestination(destination); err != nil {
		return nil, err
	}

	if object.IsContainer() {
		return nil, fmt.Errorf("%w: %s", ErrContainer, object.Name())
	}

	plan, err := NewPlan(object.Size(), f.config.ChunkSize)
	if err != nil {
		return nil, fmt.Errorf("plan %s: %w", object.Name(), err)
	}

	job := NewJob(object.Name(), plan, destination)
	f.stats = NewStats()

	writer, err := CreateDestination(f.osProxy, destination, f.stats, f.logger)
	if err != nil {
		f.resolve(job, err)
		return job, err
	}
	writer.advanced = f.cursorObserver

	if err := job.start(); err != nil {
		writer.Abandon()
		return job, err
	}

	f.logger.Infof("Starting download of %s (%s, %d bytes)", object.Name(), units.HumanSizeWithPrecision(float64(plan.TotalSize), 3), plan.TotalSize)
	f.logger.Debugf("Job %s: %d chunks of %d bytes", job.ID, plan.TotalChunks(), plan.ChunkSize)

	err = f.run(ctx, object, plan, writer)
	if err != nil && ctx.Err() != nil {
		err = fmt.Errorf("%w: %w", ErrCancelled, err)
	}
	f.resolve(job, err)
	return job, err
}

func (f *Fetcher) run(ctx context.Context, object remote.Object, plan Plan, writer *Writer) error {
	queue := NewWorkQueue(plan)
	results := NewResultBuffer(f.config.BufferCapacity())

	g, gctx := errgroup.WithContext(ctx)
	stopAbort := context.AfterFunc(gctx, func() {
		results.Abort(context.Cause(gctx))
	})
	defer stopAbort()

	workers := f.config.Workers
	if uint32(workers) > plan.TotalChunks() {
		workers = int(plan.TotalChunks())
	}
	f.logger.Debugf("Starting %d readers", workers)

	for i := 0; i < workers; i++ {
		reader := newChunkReader(i, object, plan.ChunkSize, queue, results, f.config, f.stats, f.logger)
		g.Go(func() error {
			return reader.run(gctx)
		})
	}

	monitorCtx, stopMonitor := context.WithCancel(gctx)
	defer stopMonitor()

	g.Go(func() error {
		defer stopMonitor()
		return writer.Run(plan.TotalChunks(), results)
	})

	if f.config.Progress {
		monitor := NewProgressMonitor(queue, results, f.stats, plan, f.config.ProgressInterval, f.logger)
		g.Go(func() error {
			monitor.Run(monitorCtx)
			return nil
		})
	}

	return g.Wait()
}

func (f *Fetcher) resolve(job *Job, err error) {
	var transitionErr error
	switch {
	case err == nil:
		transitionErr = job.complete()
	case errors.Is(err, ErrCancelled):
		transitionErr = job.cancel(err)
	default:
		transitionErr = job.fail(err)
	}
	if transitionErr != nil {
		f.logger.Warnf("%s", transitionErr)
	}
}
