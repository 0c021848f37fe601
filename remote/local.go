package remote

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

const fileURLPrefix = "file://"

type localSession struct{}

// NewLocalSession returns a session that reads objects from the local filesystem.
func NewLocalSession() Session {
	return localSession{}
}

func (localSession) Open(_ context.Context, path string) (Object, error) {
	pth, err := filepath.Abs(strings.TrimPrefix(path, fileURLPrefix))
	if err != nil {
		return nil, fmt.Errorf("resolve %s: %w", path, err)
	}

	info, err := os.Stat(pth)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, path)
		}
		if errors.Is(err, fs.ErrPermission) {
			return nil, fmt.Errorf("%w: %s: %w", ErrAuthentication, path, err)
		}
		return nil, fmt.Errorf("stat %s: %w", path, err)
	}

	return &localObject{path: pth, info: info}, nil
}

func (localSession) Close() error {
	return nil
}

type localObject struct {
	path string
	info os.FileInfo
}

func (o *localObject) Name() string      { return o.info.Name() }
func (o *localObject) Size() int64       { return o.info.Size() }
func (o *localObject) IsContainer() bool { return o.info.IsDir() }

func (o *localObject) OpenStream(context.Context) (Stream, error) {
	f, err := os.Open(o.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, o.path)
		}
		return nil, fmt.Errorf("open %s: %w", o.path, err)
	}
	return &localStream{file: f}, nil
}

type localStream struct {
	file   *os.File
	offset int64
}

func (s *localStream) Seek(offset int64) error {
	if offset < 0 {
		return fmt.Errorf("negative offset %d", offset)
	}
	s.offset = offset
	return nil
}

func (s *localStream) ReadInto(_ context.Context, buf []byte) (int, error) {
	n, err := s.file.ReadAt(buf, s.offset)
	s.offset += int64(n)
	if errors.Is(err, io.EOF) && n < len(buf) {
		return n, io.ErrUnexpectedEOF
	}
	return n, err
}

func (s *localStream) Close() error {
	return s.file.Close()
}
