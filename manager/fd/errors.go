package fd

import (
	"errors"
	"fmt"
	"syscall"

	platformerrors "github.com/jmgilman/go/errors"
)

var (
	// ErrClosed 表示在 Close 之后发起的操作。
	ErrClosed = platformerrors.New(platformerrors.CodeConflict, "use of closed file descriptor")

	// ErrTimeout 表示读写超时，描述符保持打开。
	ErrTimeout = platformerrors.New(platformerrors.CodeTimeout, "i/o timeout")

	// ErrLockUnavailable 表示非阻塞的加锁请求需要等待。
	ErrLockUnavailable = platformerrors.New(platformerrors.CodeConflict, "lock held by another descriptor")

	// ErrConfiguration 表示无法把描述符切换到请求的模式。
	ErrConfiguration = platformerrors.New(platformerrors.CodeInvalidConfig, "descriptor mode not supported")
)

// IOError 记录失败的系统调用及其所在的描述符。
type IOError struct {
	Op  string
	Fd  int
	Err error
}

func (e *IOError) Error() string {
	return fmt.Sprintf("%s fd %d: %v", e.Op, e.Fd, e.Err)
}

func (e *IOError) Unwrap() error {
	return e.Err
}

// Errno 返回操作系统错误码，失败并非来自操作系统时返回零。
func (e *IOError) Errno() syscall.Errno {
	var errno syscall.Errno
	if errors.As(e.Err, &errno) {
		return errno
	}
	return 0
}

func newIOError(op string, fd int, err error) error {
	if err == nil {
		return nil
	}
	return &IOError{Op: op, Fd: fd, Err: err}
}

func opError(op string, sentinel error) error {
	return fmt.Errorf("%s: %w", op, sentinel)
}

func configError(op string, cause error) error {
	return fmt.Errorf("%s: %w: %w", op, ErrConfiguration, cause)
}
