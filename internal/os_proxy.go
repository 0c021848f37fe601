package internal

import (
	"io"
	"os"
	"path/filepath"
)

// File is the subset of *os.File the destination writer needs.
type File interface {
	io.Writer
	io.Closer
	Sync() error
	Name() string
}

// OsProxy defines the subset of os package functions we want to proxy.
// Add more methods as you need them.
type OsProxy interface {
	Stat(name string) (os.FileInfo, error)
	OpenFile(name string, flag int, perm os.FileMode) (File, error)
	Remove(name string) error
	MkdirAll(path string, perm os.FileMode) error
	Getwd() (string, error)
	Abs(path string) (string, error)
}

// RealOS is the default implementation that delegates to the real os package.
type RealOS struct{}

func (RealOS) Stat(name string) (os.FileInfo, error)        { return os.Stat(name) }           //nolint:revive
func (RealOS) Remove(name string) error                     { return os.Remove(name) }         //nolint:revive
func (RealOS) MkdirAll(path string, perm os.FileMode) error { return os.MkdirAll(path, perm) } //nolint:revive
func (RealOS) Getwd() (string, error)                       { return os.Getwd() }              //nolint:revive
func (RealOS) Abs(path string) (string, error)              { return filepath.Abs(path) }      //nolint:revive

//nolint:revive
func (RealOS) OpenFile(name string, flag int, perm os.FileMode) (File, error) {
	f, err := os.OpenFile(name, flag, perm)
	if err != nil {
		return nil, err
	}
	return f, nil
}
