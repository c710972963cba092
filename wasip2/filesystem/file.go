// Package filesystem 通过 experimental/sys 文件接口把接管的描述符提供给 wazero guest。
package filesystem

import (
	"errors"
	"io"

	experimentalsys "github.com/tetratelabs/wazero/experimental/sys"
	"github.com/tetratelabs/wazero/sys"
	"golang.org/x/sys/unix"

	"github.com/OpenListTeam/fdstream/manager/fd"
)

// File 将 fd.Stream 适配为 wazero 的 experimentalsys.File。
// 未实现的方法（Readdir、Utimens）由 UnimplementedFile 返回 ENOSYS。
type File struct {
	experimentalsys.UnimplementedFile
	s *fd.Stream
}

var _ experimentalsys.File = (*File)(nil)

// NewFile 包装 s，关闭 File 时会关闭 s。
func NewFile(s *fd.Stream) *File {
	return &File{s: s}
}

// Unwrap 返回底层 stream。
func (f *File) Unwrap() *fd.Stream {
	return f.s
}

func (f *File) Dev() (uint64, experimentalsys.Errno) {
	st, errno := f.Stat()
	if errno != 0 {
		return 0, errno
	}
	return st.Dev, 0
}

func (f *File) Ino() (sys.Inode, experimentalsys.Errno) {
	st, errno := f.Stat()
	if errno != 0 {
		return 0, errno
	}
	return st.Ino, 0
}

func (f *File) IsDir() (bool, experimentalsys.Errno) {
	st, errno := f.Stat()
	if errno != 0 {
		return false, errno
	}
	return st.Mode.IsDir(), 0
}

// IsAppend 通过 fcntl 读取 O_APPEND，描述符可能由外部以追加模式打开。
func (f *File) IsAppend() bool {
	if f.s.Closed() {
		return false
	}
	flags, err := unix.FcntlInt(uintptr(f.s.Fd()), unix.F_GETFL, 0)
	return err == nil && flags&unix.O_APPEND != 0
}

func (f *File) SetAppend(enable bool) experimentalsys.Errno {
	if f.s.Closed() {
		return experimentalsys.EBADF
	}
	sysfd := uintptr(f.s.Fd())
	flags, err := unix.FcntlInt(sysfd, unix.F_GETFL, 0)
	if err != nil {
		return experimentalsys.UnwrapOSError(err)
	}
	if enable {
		flags |= unix.O_APPEND
	} else {
		flags &^= unix.O_APPEND
	}
	_, err = unix.FcntlInt(sysfd, unix.F_SETFL, flags)
	return experimentalsys.UnwrapOSError(err)
}

func (f *File) Stat() (sys.Stat_t, experimentalsys.Errno) {
	fi, err := f.s.Info()
	if err != nil {
		return sys.Stat_t{}, toErrno(err)
	}
	return sys.NewStat_t(fi), 0
}

func (f *File) Read(buf []byte) (int, experimentalsys.Errno) {
	n, err := f.s.Read(buf)
	return n, toErrno(err)
}

func (f *File) Pread(buf []byte, off int64) (int, experimentalsys.Errno) {
	n, err := f.s.ReadAt(buf, off)
	return n, toErrno(err)
}

func (f *File) Write(buf []byte) (int, experimentalsys.Errno) {
	n, err := f.s.Write(buf)
	return n, toErrno(err)
}

func (f *File) Pwrite(buf []byte, off int64) (int, experimentalsys.Errno) {
	n, err := f.s.WriteAt(buf, off)
	return n, toErrno(err)
}

func (f *File) Seek(offset int64, whence int) (int64, experimentalsys.Errno) {
	pos, err := f.s.Seek(offset, whence)
	return pos, toErrno(err)
}

func (f *File) Truncate(size int64) experimentalsys.Errno {
	return toErrno(f.s.Truncate(size))
}

func (f *File) Sync() experimentalsys.Errno {
	return toErrno(f.s.Fsync(true))
}

func (f *File) Datasync() experimentalsys.Errno {
	return toErrno(f.s.Fsync(false))
}

func (f *File) Close() experimentalsys.Errno {
	return toErrno(f.s.Close())
}

// toErrno 将 fd 包的错误映射为 wasm 可见的错误码。
// EOF 不是错误：guest 通过读到 0 字节判断结束。
func toErrno(err error) experimentalsys.Errno {
	if err == nil || errors.Is(err, io.EOF) {
		return 0
	}
	switch {
	case errors.Is(err, fd.ErrClosed):
		return experimentalsys.EBADF
	case errors.Is(err, fd.ErrTimeout), errors.Is(err, fd.ErrLockUnavailable):
		return experimentalsys.EAGAIN
	case errors.Is(err, fd.ErrConfiguration):
		return experimentalsys.ENOTSUP
	}
	var ioErr *fd.IOError
	if errors.As(err, &ioErr) {
		if errno := ioErr.Errno(); errno != 0 {
			return experimentalsys.UnwrapOSError(errno)
		}
	}
	return experimentalsys.EIO
}
