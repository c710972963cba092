// Package billyfile exposes an fd.Stream as a go-billy File so adopted
// descriptors can be handed to code written against billy.Filesystem.
package billyfile

import (
	"io"
	"io/fs"

	"github.com/go-git/go-billy/v5"

	"github.com/OpenListTeam/fdstream/manager/fd"
)

// File adapts an fd.Stream to billy.File.
type File struct {
	s *fd.Stream
}

// New wraps s. Closing the File closes s.
func New(s *fd.Stream) *File {
	return &File{s: s}
}

// Unwrap returns the underlying stream.
func (f *File) Unwrap() *fd.Stream {
	return f.s
}

func (f *File) Name() string {
	return f.s.Name()
}

func (f *File) Read(p []byte) (int, error) {
	return f.s.Read(p)
}

func (f *File) ReadAt(p []byte, off int64) (int, error) {
	return f.s.ReadAt(p, off)
}

func (f *File) Write(p []byte) (int, error) {
	return f.s.Write(p)
}

func (f *File) WriteAt(p []byte, off int64) (int, error) {
	return f.s.WriteAt(p, off)
}

func (f *File) Seek(offset int64, whence int) (int64, error) {
	return f.s.Seek(offset, whence)
}

func (f *File) Close() error {
	return f.s.Close()
}

// Lock takes a blocking exclusive lock, as billy's osfs does.
func (f *File) Lock() error {
	return f.s.LockExclusive(true)
}

func (f *File) Unlock() error {
	return f.s.Unlock()
}

func (f *File) Truncate(size int64) error {
	return f.s.Truncate(size)
}

// Stat is not part of billy.File but is used by callers that type-assert
// for it.
func (f *File) Stat() (fs.FileInfo, error) {
	return f.s.Info()
}

// Sync commits data and metadata to storage.
func (f *File) Sync() error {
	return f.s.Fsync(true)
}

var (
	_ billy.File  = (*File)(nil)
	_ io.WriterAt = (*File)(nil)
)
