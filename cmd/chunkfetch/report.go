package main

import (
	"errors"

	"github.com/bitrise-io/go-chunkfetch/remote"
	"github.com/bitrise-io/go-chunkfetch/transfer"
	"github.com/bitrise-io/go-chunkfetch/verify"
)

const (
	exitOK                = 0
	exitFailure           = 1
	exitDestinationExists = 2
	exitNotFound          = 3
	exitAuthentication    = 4
	exitCancelled         = 5
)

func exitCode(err error) int {
	switch {
	case err == nil:
		return exitOK
	case errors.Is(err, transfer.ErrCancelled):
		return exitCancelled
	case errors.Is(err, transfer.ErrDestinationExists):
		return exitDestinationExists
	case errors.Is(err, remote.ErrNotFound):
		return exitNotFound
	case errors.Is(err, remote.ErrAuthentication):
		return exitAuthentication
	default:
		return exitFailure
	}
}

func terseMessage(err error) string {
	switch {
	case errors.Is(err, transfer.ErrCancelled):
		return "Transfer cancelled."
	case errors.Is(err, transfer.ErrDestinationExists):
		return "File already exists locally. Use --verbose to debug."
	case errors.Is(err, remote.ErrNotFound):
		return "No such remote data object. Use --verbose to debug."
	case errors.Is(err, remote.ErrAuthentication):
		return "Authentication failed. Use --verbose to debug."
	case errors.Is(err, transfer.ErrContainer):
		return "Remote path is a collection, only data objects can be fetched."
	case errors.Is(err, verify.ErrChecksumMismatch):
		return "Checksum mismatch, the downloaded file was removed. Use --verbose to debug."
	default:
		return "Fetch failed. Use --verbose to debug."
	}
}

// report prints err and returns the process exit code for it.
func (a *app) report(err error) int {
	if err == nil {
		return exitOK
	}

	var fe *fetchError
	if !errors.As(err, &fe) {
		a.logger.Errorf("%s", err)
		return exitFailure
	}

	if a.verbose {
		a.logger.Errorf("%s", fe.err)
	} else {
		a.logger.Errorf("%s", terseMessage(fe.err))
	}
	return exitCode(fe.err)
}
