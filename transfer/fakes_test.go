package transfer

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/bitrise-io/go-chunkfetch/internal"
	"github.com/bitrise-io/go-chunkfetch/remote"
)

var errFlaky = errors.New("connection reset by peer")

// fakeObject serves data from memory. Reads can be delayed, failed or shortened per offset.
type fakeObject struct {
	name      string
	data      []byte
	container bool
	openErr   error
	// openFailures is the number of OpenStream calls failing with errFlaky before one succeeds.
	openFailures atomic.Int32

	// delay returns how long a read at offset takes.
	delay func(offset int64) time.Duration
	// failures holds how many reads at an offset fail before one succeeds. Negative means always.
	failures map[int64]int
	// failWith overrides errFlaky for injected failures.
	failWith error
	// short lists offsets whose reads return one byte less than requested.
	short map[int64]bool
	// block makes every read wait for cancellation.
	block bool
	// blockAt lists offsets whose reads wait for cancellation.
	blockAt map[int64]bool

	opened atomic.Int32
	mu     sync.Mutex
	reads  map[int64]int
}

func newFakeObject(name string, data []byte) *fakeObject {
	return &fakeObject{
		name:     name,
		data:     data,
		failures: map[int64]int{},
		short:    map[int64]bool{},
		blockAt:  map[int64]bool{},
		reads:    map[int64]int{},
	}
}

func (o *fakeObject) Name() string      { return o.name }
func (o *fakeObject) Size() int64       { return int64(len(o.data)) }
func (o *fakeObject) IsContainer() bool { return o.container }

func (o *fakeObject) OpenStream(_ context.Context) (remote.Stream, error) {
	o.opened.Add(1)
	if o.openErr != nil {
		return nil, o.openErr
	}
	if o.openFailures.Add(-1) >= 0 {
		return nil, errFlaky
	}
	return &fakeStream{object: o}, nil
}

func (o *fakeObject) readCount(offset int64) int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.reads[offset]
}

// record counts a read and reports whether it has to fail.
func (o *fakeObject) record(offset int64) bool {
	o.mu.Lock()
	defer o.mu.Unlock()

	o.reads[offset]++
	left, ok := o.failures[offset]
	if !ok || left == 0 {
		return false
	}
	if left > 0 {
		o.failures[offset] = left - 1
	}
	return true
}

type fakeStream struct {
	object *fakeObject
	offset int64
	closed bool
}

func (s *fakeStream) Seek(offset int64) error {
	if offset < 0 || offset > int64(len(s.object.data)) {
		return fmt.Errorf("seek out of range: %d", offset)
	}
	s.offset = offset
	return nil
}

func (s *fakeStream) ReadInto(ctx context.Context, buf []byte) (int, error) {
	o := s.object
	if s.closed {
		return 0, errors.New("read on closed stream")
	}

	if o.block || o.blockAt[s.offset] {
		<-ctx.Done()
		return 0, ctx.Err()
	}
	if o.delay != nil {
		select {
		case <-time.After(o.delay(s.offset)):
		case <-ctx.Done():
			return 0, ctx.Err()
		}
	}

	if o.record(s.offset) {
		if o.failWith != nil {
			return 0, o.failWith
		}
		return 0, errFlaky
	}

	want := len(buf)
	if o.short[s.offset] {
		want--
	}
	n := copy(buf[:want], o.data[s.offset:])
	s.offset += int64(n)
	return n, nil
}

func (s *fakeStream) Close() error {
	s.closed = true
	return nil
}

// failingFile fails its failAt-th write.
type failingFile struct {
	failAt int
	writes int
	closed bool
}

func (f *failingFile) Write(p []byte) (int, error) {
	f.writes++
	if f.writes == f.failAt {
		return 0, errors.New("no space left on device")
	}
	return len(p), nil
}

func (f *failingFile) Close() error { f.closed = true; return nil }
func (f *failingFile) Sync() error  { return nil }
func (f *failingFile) Name() string { return "failing" }

// fakeOS hands out file and records removals; everything else goes to the real filesystem.
type fakeOS struct {
	internal.RealOS
	file    internal.File
	removed []string
}

func (o *fakeOS) OpenFile(string, int, os.FileMode) (internal.File, error) {
	return o.file, nil
}

func (o *fakeOS) Remove(name string) error {
	o.removed = append(o.removed, name)
	return nil
}
