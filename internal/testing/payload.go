package testing

import (
	"math/rand"
)

// Payload returns size deterministic pseudo-random bytes. Equal seeds give equal payloads.
func Payload(size int, seed int64) []byte {
	b := make([]byte, size)
	r := rand.New(rand.NewSource(seed)) //nolint:gosec
	_, _ = r.Read(b)
	return b
}
