// Package verify checks fetched files against an expected digest.
package verify

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/bitrise-io/go-utils/v2/log"
)

// ErrChecksumMismatch is returned when a file does not have the expected digest.
var ErrChecksumMismatch = errors.New("checksum mismatch")

// SHA256 returns the hex-encoded SHA-256 checksum of the file at path.
func SHA256(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close() //nolint:errcheck

	hash := sha256.New()
	if _, err := io.Copy(hash, f); err != nil {
		return "", fmt.Errorf("hash %s: %w", path, err)
	}
	return hex.EncodeToString(hash.Sum(nil)), nil
}

// File compares the SHA-256 checksum of path with expected.
// On mismatch the file is removed, so a corrupt download never stays on disk.
func File(path, expected string, logger log.Logger) error {
	expected = strings.ToLower(strings.TrimSpace(expected))
	if _, err := hex.DecodeString(expected); err != nil || len(expected) != sha256.Size*2 {
		return fmt.Errorf("invalid sha256 checksum %q", expected)
	}

	actual, err := SHA256(path)
	if err != nil {
		return fmt.Errorf("compute checksum: %w", err)
	}
	logger.Debugf("SHA-256 of %s: %s", path, actual)

	if actual != expected {
		if err := os.Remove(path); err != nil {
			logger.Warnf("Failed to remove %s: %s", path, err)
		}
		return fmt.Errorf("%w: %s: expected %s, got %s", ErrChecksumMismatch, path, expected, actual)
	}

	return nil
}
