package main

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/bitrise-io/go-chunkfetch/compression"
	"github.com/bitrise-io/go-chunkfetch/config"
	"github.com/bitrise-io/go-chunkfetch/remote"
	"github.com/bitrise-io/go-chunkfetch/transfer"
	"github.com/bitrise-io/go-chunkfetch/verify"
	"github.com/docker/go-units"
	"github.com/spf13/cobra"
)

type fetchOptions struct {
	outputDir   string
	workers     int
	chunkSize   string
	retries     int
	maxBuffered int
	sha256      string
	decompress  bool
}

// fetchError marks errors of the fetch flow, as opposed to usage errors.
type fetchError struct {
	err error
}

func (e *fetchError) Error() string { return e.err.Error() }
func (e *fetchError) Unwrap() error { return e.err }

func newFetchCommand(a *app) *cobra.Command {
	var opts fetchOptions

	cmd := &cobra.Command{
		Use:     "fetch <remote-path>",
		Aliases: []string{"get"},
		Short:   "Download a remote data object into the output directory",
		Long: `Download a remote data object in parallel chunks.

Supported paths:
  s3://bucket/key
  http(s)://host/path
  bytestream://host:port/[instance/]blobs/<hash>/<size>
  file:///path or a plain local path`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.fetch(cmd, args[0], opts); err != nil {
				return &fetchError{err: err}
			}
			return nil
		},
	}

	flags := cmd.Flags()
	flags.StringVarP(&opts.outputDir, "output-dir", "o", "", "Directory to write into, created if missing (default: working directory)")
	flags.IntVarP(&opts.workers, "workers", "w", 0, "Number of parallel readers")
	flags.StringVar(&opts.chunkSize, "chunk-size", "", "Size of a single ranged read, e.g. 256KiB or 8MB")
	flags.IntVar(&opts.retries, "retries", 0, "Retries per chunk before the fetch fails")
	flags.IntVar(&opts.maxBuffered, "max-buffered", 0, "Completed chunks held in memory before readers wait")
	flags.StringVar(&opts.sha256, "sha256", "", "Expected SHA-256 of the object; the file is removed on mismatch")
	flags.BoolVar(&opts.decompress, "decompress", false, "Decompress .zst objects after download")

	return cmd
}

// fetch reports any failure after the command context is done as a cancellation,
// including interrupts that hit before the transfer itself started.
func (a *app) fetch(cmd *cobra.Command, remotePath string, opts fetchOptions) error {
	err := a.fetchObject(cmd, remotePath, opts)
	if err != nil && cmd.Context().Err() != nil && !errors.Is(err, transfer.ErrCancelled) {
		return fmt.Errorf("%w: %w", transfer.ErrCancelled, err)
	}
	return err
}

func (a *app) fetchObject(cmd *cobra.Command, remotePath string, opts fetchOptions) error {
	ctx := cmd.Context()

	loaded, err := config.LoadDotEnv(config.DotEnvFile, a.envRepo)
	if err != nil {
		return err
	}
	if len(loaded) > 0 {
		a.logger.Debugf("Loaded %v from %s", loaded, config.DotEnvFile)
	}

	cfg, err := config.Load(a.envRepo)
	if err != nil {
		return err
	}
	if err := applyFlags(cmd, &cfg, opts); err != nil {
		return err
	}
	if a.verbose {
		config.Print(a.logger, cfg)
	}

	destination, err := a.destinationPath(opts.outputDir, remotePath)
	if err != nil {
		return err
	}

	fetcher := transfer.NewFetcher(cfg.TransferConfig(a.progress), a.logger)
	if err := fetcher.CheckDestination(destination); err != nil {
		return err
	}

	object, closeSession, err := a.openObject(ctx, remotePath, cfg)
	if err != nil {
		return err
	}
	defer closeSession()

	job, err := fetcher.Fetch(ctx, object, destination)
	if err != nil {
		return err
	}
	a.printSummary(job, fetcher.Stats())

	if opts.sha256 != "" {
		if err := verify.File(destination, opts.sha256, a.logger); err != nil {
			return err
		}
		a.logger.Donef("SHA-256 verified")
	}

	if opts.decompress {
		return a.decompress(destination)
	}
	return nil
}

func applyFlags(cmd *cobra.Command, cfg *config.Config, opts fetchOptions) error {
	flags := cmd.Flags()
	if flags.Changed("workers") {
		cfg.Workers = opts.workers
	}
	if flags.Changed("retries") {
		cfg.MaxRetries = opts.retries
	}
	if flags.Changed("max-buffered") {
		cfg.MaxBuffered = opts.maxBuffered
	}
	if flags.Changed("chunk-size") {
		size, err := config.ParseByteSize(opts.chunkSize)
		if err != nil {
			return fmt.Errorf("invalid --chunk-size %q: %w", opts.chunkSize, err)
		}
		cfg.ChunkSize = size
	}
	return nil
}

func (a *app) destinationPath(outputDir, remotePath string) (string, error) {
	if outputDir == "" {
		wd, err := a.osProxy.Getwd()
		if err != nil {
			return "", fmt.Errorf("get working directory: %w", err)
		}
		outputDir = wd
	}

	dir, err := a.osProxy.Abs(outputDir)
	if err != nil {
		return "", fmt.Errorf("resolve output directory %s: %w", outputDir, err)
	}
	if err := a.osProxy.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("create output directory %s: %w", dir, err)
	}

	name := remote.ObjectName(remotePath)
	if name == "" || name == "." || name == ".." {
		return "", fmt.Errorf("cannot derive a file name from %s", remotePath)
	}
	return filepath.Join(dir, name), nil
}

func (a *app) openObject(ctx context.Context, remotePath string, cfg config.Config) (remote.Object, func(), error) {
	session, err := a.newSession(ctx, remotePath, cfg.Credentials(), a.logger)
	if err != nil {
		return nil, nil, fmt.Errorf("create session: %w", err)
	}
	closeSession := func() {
		if err := session.Close(); err != nil {
			a.logger.Debugf("Close session: %s", err)
		}
	}

	object, err := session.Open(ctx, remotePath)
	if err != nil {
		closeSession()
		return nil, nil, err
	}
	return object, closeSession, nil
}

func (a *app) printSummary(job *transfer.Job, stats *transfer.Stats) {
	a.logger.Donef("Wrote %s", job.Destination)

	took := job.Duration()
	rate := ""
	if took > 0 {
		rate = fmt.Sprintf(" (%s/s)", units.HumanSizeWithPrecision(float64(job.TotalSize)/took.Seconds(), 3))
	}
	a.logger.Printf("%s in %s%s, %d chunks, avg chunk read %s, %d retries",
		units.HumanSizeWithPrecision(float64(job.TotalSize), 3),
		took.Round(time.Millisecond),
		rate,
		job.TotalChunks,
		stats.Average().Round(time.Millisecond),
		stats.Retries(),
	)
	a.logger.Debugf("Job %s %s", job.ID, job.State())
}

func (a *app) decompress(path string) error {
	if !compression.IsCompressed(path) {
		a.logger.Warnf("%s is not zstd compressed, skipping decompression", filepath.Base(path))
		return nil
	}

	dst := compression.DecompressedName(path)
	decompressor := compression.NewDecompressor(a.logger, a.envRepo, compression.NewDependencyChecker(a.logger, a.envRepo))
	if err := decompressor.Decompress(path, dst); err != nil {
		return err
	}
	if err := a.osProxy.Remove(path); err != nil {
		a.logger.Warnf("Failed to remove %s: %s", path, err)
	}
	a.logger.Donef("Wrote %s", dst)
	return nil
}
