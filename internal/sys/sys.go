//go:build linux || darwin

// Package sys is the thin platform layer under the descriptor stream. Every
// function takes a raw descriptor, retries EINTR where POSIX allows it, and
// returns the bare syscall.Errno so callers can classify it.
package sys

import (
	"syscall"
	"time"

	"golang.org/x/sys/unix"
)

// MaxRW caps a single read or write. Darwin and FreeBSD can't transfer 2GB+
// at a time, even on 64-bit systems; 1GB keeps later transfers aligned.
const MaxRW = 1 << 30

// Read wraps read(2).
func Read(fd int, p []byte) (int, error) {
	if len(p) > MaxRW {
		p = p[:MaxRW]
	}
	for {
		n, err := unix.Read(fd, p)
		if err == unix.EINTR {
			continue
		}
		if err != nil {
			return 0, err
		}
		return n, nil
	}
}

// Write wraps write(2). A short count is returned as is; looping is the
// caller's job.
func Write(fd int, p []byte) (int, error) {
	if len(p) > MaxRW {
		p = p[:MaxRW]
	}
	for {
		n, err := unix.Write(fd, p)
		if err == unix.EINTR {
			continue
		}
		if err != nil {
			return 0, err
		}
		return n, nil
	}
}

// Pread wraps pread(2).
func Pread(fd int, p []byte, off int64) (int, error) {
	if len(p) > MaxRW {
		p = p[:MaxRW]
	}
	for {
		n, err := unix.Pread(fd, p, off)
		if err == unix.EINTR {
			continue
		}
		if err != nil {
			return 0, err
		}
		return n, nil
	}
}

// Pwrite wraps pwrite(2).
func Pwrite(fd int, p []byte, off int64) (int, error) {
	if len(p) > MaxRW {
		p = p[:MaxRW]
	}
	for {
		n, err := unix.Pwrite(fd, p, off)
		if err == unix.EINTR {
			continue
		}
		if err != nil {
			return 0, err
		}
		return n, nil
	}
}

// Seek wraps lseek(2).
func Seek(fd int, offset int64, whence int) (int64, error) {
	return unix.Seek(fd, offset, whence)
}

// Close wraps close(2). EINTR is not retried: POSIX leaves the descriptor
// state unspecified and a retry could close a descriptor opened meanwhile by
// another goroutine.
func Close(fd int) error {
	return unix.Close(fd)
}

// Fsync flushes data and metadata to stable storage.
func Fsync(fd int) error {
	return ignoringEINTR(func() error { return unix.Fsync(fd) })
}

// Ftruncate wraps ftruncate(2).
func Ftruncate(fd int, size int64) error {
	return ignoringEINTR(func() error { return unix.Ftruncate(fd, size) })
}

// Flock wraps flock(2). how is one of unix.LOCK_SH, unix.LOCK_EX or
// unix.LOCK_UN, optionally or-ed with unix.LOCK_NB.
func Flock(fd int, how int) error {
	return ignoringEINTR(func() error { return unix.Flock(fd, how) })
}

// IsNonblock reports whether O_NONBLOCK is set on the open file description.
func IsNonblock(fd int) (bool, error) {
	flags, err := unix.FcntlInt(uintptr(fd), unix.F_GETFL, 0)
	if err != nil {
		return false, err
	}
	return flags&unix.O_NONBLOCK != 0, nil
}

// SetNonblock toggles O_NONBLOCK.
func SetNonblock(fd int, nonblocking bool) error {
	return unix.SetNonblock(fd, nonblocking)
}

// CloseOnExec reports whether FD_CLOEXEC is set on fd.
func CloseOnExec(fd int) (bool, error) {
	flags, err := unix.FcntlInt(uintptr(fd), unix.F_GETFD, 0)
	if err != nil {
		return false, err
	}
	return flags&unix.FD_CLOEXEC != 0, nil
}

// SetCloseOnExec sets or clears FD_CLOEXEC on fd.
func SetCloseOnExec(fd int, on bool) error {
	flags, err := unix.FcntlInt(uintptr(fd), unix.F_GETFD, 0)
	if err != nil {
		return err
	}
	if on {
		flags |= unix.FD_CLOEXEC
	} else {
		flags &^= unix.FD_CLOEXEC
	}
	_, err = unix.FcntlInt(uintptr(fd), unix.F_SETFD, flags)
	return err
}

// Dup returns a new descriptor sharing fd's open file description. The copy
// is created close-on-exec and the bit is cleared afterwards when cloexec is
// false, so there is no window where it leaks into a forked child.
func Dup(fd int, cloexec bool) (int, error) {
	nfd, err := unix.FcntlInt(uintptr(fd), unix.F_DUPFD_CLOEXEC, 0)
	if err != nil {
		return -1, err
	}
	if !cloexec {
		if err := SetCloseOnExec(nfd, false); err != nil {
			_ = unix.Close(nfd)
			return -1, err
		}
	}
	return nfd, nil
}

// Fstat fills st for fd. The syscall package's Stat_t is used so the result
// can be handed to code expecting fs.FileInfo.Sys() to be *syscall.Stat_t.
func Fstat(fd int, st *syscall.Stat_t) error {
	return ignoringEINTR(func() error { return syscall.Fstat(fd, st) })
}

// SetReadTimeout installs SO_RCVTIMEO. Descriptors that are not sockets
// report ENOTSOCK, which callers treat as "no platform bound available".
func SetReadTimeout(fd int, d time.Duration) error {
	tv := unix.NsecToTimeval(d.Nanoseconds())
	return unix.SetsockoptTimeval(fd, unix.SOL_SOCKET, unix.SO_RCVTIMEO, &tv)
}

// SetWriteTimeout installs SO_SNDTIMEO.
func SetWriteTimeout(fd int, d time.Duration) error {
	tv := unix.NsecToTimeval(d.Nanoseconds())
	return unix.SetsockoptTimeval(fd, unix.SOL_SOCKET, unix.SO_SNDTIMEO, &tv)
}

// Pipe returns a close-on-exec pipe. Both ends are left in blocking mode.
func Pipe() (r, w int, err error) {
	var p [2]int
	if err := unix.Pipe(p[:]); err != nil {
		return -1, -1, err
	}
	for _, fd := range p {
		if err := SetCloseOnExec(fd, true); err != nil {
			_ = unix.Close(p[0])
			_ = unix.Close(p[1])
			return -1, -1, err
		}
	}
	return p[0], p[1], nil
}

// IsWouldBlock reports whether err is EAGAIN or EWOULDBLOCK.
func IsWouldBlock(err error) bool {
	return err == unix.EAGAIN || err == unix.EWOULDBLOCK
}

func ignoringEINTR(fn func() error) error {
	for {
		err := fn()
		if err != unix.EINTR {
			return err
		}
	}
}

// flock(2) operations.
const (
	LockShared    = unix.LOCK_SH
	LockExclusive = unix.LOCK_EX
	LockUnlock    = unix.LOCK_UN
	LockNonblock  = unix.LOCK_NB
)
