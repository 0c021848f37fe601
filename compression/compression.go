// Package compression unpacks zstd compressed downloads.
package compression

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"os/exec"
	"strings"

	"github.com/bitrise-io/go-utils/v2/command"
	"github.com/bitrise-io/go-utils/v2/env"
	"github.com/bitrise-io/go-utils/v2/log"
	"github.com/klauspost/compress/zstd"
)

var zstdExtensions = []string{".tar.zst", ".tzst", ".zstd", ".zst"}

// DependencyChecker ...
type DependencyChecker interface {
	CheckDependencies() bool
}

type binaryChecker struct {
	logger  log.Logger
	envRepo env.Repository
}

// NewDependencyChecker returns a checker that looks up the zstd binary on PATH.
func NewDependencyChecker(logger log.Logger, envRepo env.Repository) DependencyChecker {
	return &binaryChecker{
		logger:  logger,
		envRepo: envRepo,
	}
}

// CheckDependencies ...
func (c *binaryChecker) CheckDependencies() bool {
	cmdFactory := command.NewFactory(c.envRepo)
	cmd := cmdFactory.Create("which", []string{"zstd"}, nil)
	c.logger.Debugf("$ %s", cmd.PrintableCommandArgs())

	_, err := cmd.RunAndReturnTrimmedCombinedOutput()
	return err == nil
}

// IsCompressed reports whether name has a zstd extension.
func IsCompressed(name string) bool {
	_, ok := trimExtension(name)
	return ok
}

// DecompressedName returns name without its zstd extension. A .tar.zst or .tzst file keeps a .tar extension.
func DecompressedName(name string) string {
	trimmed, ok := trimExtension(name)
	if !ok {
		return name + ".out"
	}
	return trimmed
}

func trimExtension(name string) (string, bool) {
	lower := strings.ToLower(name)
	for _, ext := range zstdExtensions {
		if strings.HasSuffix(lower, ext) {
			base := name[:len(name)-len(ext)]
			if ext == ".tar.zst" || ext == ".tzst" {
				return base + ".tar", true
			}
			return base, true
		}
	}
	return "", false
}

// Decompressor ...
type Decompressor struct {
	logger            log.Logger
	envRepo           env.Repository
	dependencyChecker DependencyChecker
}

// NewDecompressor ...
func NewDecompressor(logger log.Logger, envRepo env.Repository, dependencyChecker DependencyChecker) *Decompressor {
	return &Decompressor{
		logger:            logger,
		envRepo:           envRepo,
		dependencyChecker: dependencyChecker,
	}
}

// Decompress writes the decompressed content of src to dst. dst must not exist.
// A failed decompression leaves no file at dst.
func (d *Decompressor) Decompress(src, dst string) error {
	if _, err := os.Stat(dst); err == nil {
		return fmt.Errorf("decompress %s: %s already exists", src, dst)
	} else if !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("decompress %s: %w", src, err)
	}

	var err error
	if d.dependencyChecker.CheckDependencies() {
		d.logger.Infof("Using installed zstd binary")
		err = d.decompressWithBinary(src, dst)
	} else {
		d.logger.Infof("Falling back to native implementation of zstd.")
		err = d.decompressWithGoLib(src, dst)
	}
	if err != nil {
		if removeErr := os.Remove(dst); removeErr != nil && !errors.Is(removeErr, fs.ErrNotExist) {
			d.logger.Warnf("Failed to remove %s: %s", dst, removeErr)
		}
		return fmt.Errorf("decompress %s: %w", src, err)
	}
	return nil
}

func (d *Decompressor) decompressWithGoLib(src, dst string) error {
	compressedFile, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("open %s: %w", src, err)
	}
	defer compressedFile.Close() //nolint:errcheck

	zr, err := zstd.NewReader(compressedFile)
	if err != nil {
		return fmt.Errorf("create zstd reader: %w", err)
	}
	defer zr.Close()

	fileToWrite, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0644)
	if err != nil {
		return fmt.Errorf("create %s: %w", dst, err)
	}
	if _, err := io.Copy(fileToWrite, zr); err != nil {
		fileToWrite.Close() //nolint:errcheck
		return fmt.Errorf("copy content to file: %w", err)
	}
	if err := fileToWrite.Close(); err != nil {
		return fmt.Errorf("close %s: %w", dst, err)
	}
	return nil
}

func (d *Decompressor) decompressWithBinary(src, dst string) error {
	commandFactory := command.NewFactory(d.envRepo)

	/*
		zstd arguments:
		-d: Decompress
		-q: Quiet, no progress output
		-o: Output file, zstd refuses to overwrite it without -f
	*/
	cmd := commandFactory.Create("zstd", []string{"-d", "-q", src, "-o", dst}, nil)
	d.logger.Debugf("$ %s", cmd.PrintableCommandArgs())

	out, err := cmd.RunAndReturnTrimmedCombinedOutput()
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return fmt.Errorf("command failed with exit status %d (%s):\n%w", exitErr.ExitCode(), cmd.PrintableCommandArgs(), errors.New(out))
		}
		return fmt.Errorf("executing command failed (%s): %w", cmd.PrintableCommandArgs(), err)
	}

	return nil
}
