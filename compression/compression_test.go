package compression

import (
	"os"
	"path/filepath"
	"testing"

	testhelpers "github.com/bitrise-io/go-chunkfetch/internal/testing"
	"github.com/bitrise-io/go-utils/v2/env"
	"github.com/bitrise-io/go-utils/v2/log"
	"github.com/klauspost/compress/zstd"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeChecker struct {
	available bool
}

func (c fakeChecker) CheckDependencies() bool {
	return c.available
}

func compress(t *testing.T, path string, content []byte) {
	enc, err := zstd.NewWriter(nil)
	require.NoError(t, err)
	defer enc.Close() //nolint:errcheck
	require.NoError(t, os.WriteFile(path, enc.EncodeAll(content, nil), 0644))
}

func TestNames(t *testing.T) {
	tests := []struct {
		name             string
		wantCompressed   bool
		wantDecompressed string
	}{
		{name: "cache.tar.zst", wantCompressed: true, wantDecompressed: "cache.tar"},
		{name: "cache.TAR.ZST", wantCompressed: true, wantDecompressed: "cache.tar"},
		{name: "cache.tzst", wantCompressed: true, wantDecompressed: "cache.tar"},
		{name: "/tmp/data.json.zst", wantCompressed: true, wantDecompressed: "/tmp/data.json"},
		{name: "data.zstd", wantCompressed: true, wantDecompressed: "data"},
		{name: "data.tar.gz", wantCompressed: false, wantDecompressed: "data.tar.gz.out"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.wantCompressed, IsCompressed(tt.name))
			assert.Equal(t, tt.wantDecompressed, DecompressedName(tt.name))
		})
	}
}

func TestDecompressor_GoLib(t *testing.T) {
	dir := t.TempDir()
	content := testhelpers.Payload(100_000, 1)
	src := filepath.Join(dir, "object.bin.zst")
	compress(t, src, content)
	dst := filepath.Join(dir, "object.bin")

	d := NewDecompressor(log.NewLogger(), env.NewRepository(), fakeChecker{available: false})
	require.NoError(t, d.Decompress(src, dst))

	require.NoError(t, testhelpers.NewFileChecker(dst).IsFile().Bytes(content).Check())
}

func TestDecompressor_Binary(t *testing.T) {
	logger := log.NewLogger()
	envRepo := env.NewRepository()
	if !NewDependencyChecker(logger, envRepo).CheckDependencies() {
		t.Skip("zstd binary is not installed")
	}

	dir := t.TempDir()
	content := []byte("compressed with the go library, decompressed with the binary")
	src := filepath.Join(dir, "object.zst")
	compress(t, src, content)
	dst := filepath.Join(dir, "object")

	d := NewDecompressor(logger, envRepo, fakeChecker{available: true})
	require.NoError(t, d.Decompress(src, dst))
	require.NoError(t, testhelpers.NewFileChecker(dst).Bytes(content).Check())
}

func TestDecompressor_Errors(t *testing.T) {
	dir := t.TempDir()
	d := NewDecompressor(log.NewLogger(), env.NewRepository(), fakeChecker{available: false})

	notZstd := filepath.Join(dir, "plain.zst")
	require.NoError(t, os.WriteFile(notZstd, []byte("not compressed"), 0644))
	dst := filepath.Join(dir, "plain")
	assert.Error(t, d.Decompress(notZstd, dst))
	require.NoError(t, testhelpers.NewFileChecker(dst).NotExists().Check(), "a failed decompression must not leave output behind")

	existing := filepath.Join(dir, "existing")
	require.NoError(t, os.WriteFile(existing, []byte("keep"), 0644))
	assert.ErrorContains(t, d.Decompress(notZstd, existing), "already exists")
	require.NoError(t, testhelpers.NewFileChecker(existing).Content("keep").Check())
}
