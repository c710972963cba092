package fd

import (
	"github.com/OpenListTeam/fdstream/internal/sys"
)

// Fsync 刷新待写数据并把文件提交到存储。flushMetadata 未设置时，在平台支持的情况下
// 只提交数据以及读回数据所需的元数据。
func (s *Stream) Fsync(flushMetadata bool) error {
	if err := s.checkOpen("fsync"); err != nil {
		return err
	}
	if err := s.flushBuffer(); err != nil {
		return err
	}
	fd := s.h.fd()
	if flushMetadata {
		return newIOError("fsync", fd, sys.Fsync(fd))
	}
	return newIOError("fdatasync", fd, sys.Fdatasync(fd))
}

// Truncate 刷新待写数据并设置文件大小。
func (s *Stream) Truncate(size int64) error {
	if err := s.checkOpen("truncate"); err != nil {
		return err
	}
	if err := s.flushBuffer(); err != nil {
		return err
	}
	fd := s.h.fd()
	return newIOError("truncate", fd, sys.Ftruncate(fd, size))
}
