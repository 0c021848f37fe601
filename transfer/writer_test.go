package transfer

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/bitrise-io/go-chunkfetch/internal"
	testhelpers "github.com/bitrise-io/go-chunkfetch/internal/testing"
	"github.com/bitrise-io/go-utils/v2/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriter_WritesInSequenceOrder(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.bin")
	stats := NewStats()
	w, err := CreateDestination(internal.RealOS{}, path, stats, log.NewLogger())
	require.NoError(t, err)

	var cursor []uint32
	w.advanced = func(next uint32) { cursor = append(cursor, next) }

	results := NewResultBuffer(8)
	for _, r := range []ChunkResult{
		{Sequence: 2, Payload: []byte("cc")},
		{Sequence: 0, Payload: []byte("aa")},
		{Sequence: 3, Payload: []byte("d")},
		{Sequence: 1, Payload: []byte("bb")},
	} {
		require.NoError(t, results.Push(r))
	}

	require.NoError(t, w.Run(4, results))

	assert.Equal(t, []uint32{1, 2, 3, 4}, cursor)
	assert.Equal(t, int64(7), stats.BytesWritten())
	require.NoError(t, testhelpers.NewFileChecker(path).IsFile().Content("aabbccd").Check())
}

func TestCreateDestination_Exists(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.bin")
	require.NoError(t, os.WriteFile(path, []byte("keep me"), 0600))

	_, err := CreateDestination(internal.RealOS{}, path, NewStats(), log.NewLogger())
	assert.ErrorIs(t, err, ErrDestinationExists)
	require.NoError(t, testhelpers.NewFileChecker(path).Content("keep me").Check())
}

func TestCreateDestination_MissingDirectory(t *testing.T) {
	path := filepath.Join(t.TempDir(), "missing", "out.bin")

	_, err := CreateDestination(internal.RealOS{}, path, NewStats(), log.NewLogger())
	assert.ErrorIs(t, err, ErrWrite)
}

func TestWriter_AbortRemovesPartialFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.bin")
	w, err := CreateDestination(internal.RealOS{}, path, NewStats(), log.NewLogger())
	require.NoError(t, err)

	results := NewResultBuffer(8)
	require.NoError(t, results.Push(ChunkResult{Sequence: 0, Payload: []byte("aa")}))

	done := make(chan error, 1)
	go func() { done <- w.Run(3, results) }()

	results.Abort(errFlaky)
	assert.ErrorIs(t, <-done, errFlaky)
	require.NoError(t, testhelpers.NewFileChecker(path).NotExists().Check())
}

func TestWriter_WriteFailureRemovesFile(t *testing.T) {
	file := &failingFile{failAt: 2}
	osProxy := &fakeOS{file: file}
	w, err := CreateDestination(osProxy, "/dest/out.bin", NewStats(), log.NewLogger())
	require.NoError(t, err)

	results := NewResultBuffer(4)
	require.NoError(t, results.Push(ChunkResult{Sequence: 0, Payload: []byte("a")}))
	require.NoError(t, results.Push(ChunkResult{Sequence: 1, Payload: []byte("b")}))

	err = w.Run(2, results)
	assert.ErrorIs(t, err, ErrWrite)
	assert.True(t, file.closed)
	assert.Equal(t, []string{"/dest/out.bin"}, osProxy.removed)
}
