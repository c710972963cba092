package fd

import (
	"io"
	"syscall"
	"time"

	"github.com/OpenListTeam/fdstream/internal/sys"
	"github.com/OpenListTeam/fdstream/manager/poll"
)

// Scheduler 挂起描述符会阻塞的 goroutine，生产环境使用 *poll.Poller。
type Scheduler interface {
	// Register 返回一个 Waiter，fd 在 dir 方向就绪时触发。
	Register(fd int, dir poll.Direction) (poll.Waiter, error)
	// Cancel 以 poll.SignalReady 唤醒 fd 上的所有等待者。
	Cancel(fd int)
	// NotifyClosed 以 poll.SignalClosed 唤醒 fd 上的所有等待者。
	NotifyClosed(fd int)
}

var _ Scheduler = (*poll.Poller)(nil)

func deadlineAfter(d time.Duration) time.Time {
	if d <= 0 {
		return time.Time{}
	}
	return time.Now().Add(d)
}

// ioLoop 反复执行 call，直到不再返回 would-block。非阻塞模式下 would-block
// 会把 goroutine 挂到调度器上，阻塞模式下只可能来自已过期的 socket 超时。
func (s *Stream) ioLoop(op string, dir poll.Direction, deadline time.Time, call func(fd int) (int, error)) (int, error) {
	for {
		if s.h.closed.Load() {
			return 0, opError(op, ErrClosed)
		}
		fd := s.h.fd()
		n, err := call(fd)
		if err == nil {
			return n, nil
		}
		if !sys.IsWouldBlock(err) {
			return 0, newIOError(op, fd, err)
		}
		if s.h.blocking.Load() {
			return 0, opError(op, ErrTimeout)
		}
		if err := s.park(op, fd, dir, deadline); err != nil {
			return 0, err
		}
	}
}

func (s *Stream) park(op string, fd int, dir poll.Direction, deadline time.Time) error {
	sched, err := s.h.scheduler()
	if err != nil {
		return newIOError(op, fd, err)
	}
	waiter, err := sched.Register(fd, dir)
	if err != nil {
		return newIOError(op, fd, err)
	}
	// 在系统调用和 Register 之间发生的 Close 不会通知到任何人。
	if s.h.closed.Load() {
		waiter.Cancel()
		return opError(op, ErrClosed)
	}
	switch waiter.Wait(deadline) {
	case poll.SignalClosed:
		if !s.h.closed.Load() {
			// 调度器自身关闭，stream 仍然打开。
			return newIOError(op, fd, poll.ErrClosed)
		}
		return opError(op, ErrClosed)
	case poll.SignalTimeout:
		return opError(op, ErrTimeout)
	}
	return nil
}

func (s *Stream) readDeadline() time.Time {
	return deadlineAfter(time.Duration(s.readTimeout.Load()))
}

func (s *Stream) writeDeadline() time.Time {
	return deadlineAfter(time.Duration(s.writeTimeout.Load()))
}

// Read 最多读取 len(p) 字节，绕过挂载的缓冲区。描述符报告流结束后返回 io.EOF。
func (s *Stream) Read(p []byte) (int, error) {
	if len(p) == 0 {
		if s.h.closed.Load() {
			return 0, opError("read", ErrClosed)
		}
		return 0, nil
	}
	n, err := s.ioLoop("read", poll.Read, s.readDeadline(), func(fd int) (int, error) {
		return sys.Read(fd, p)
	})
	if err != nil {
		return 0, err
	}
	if n == 0 {
		return 0, io.EOF
	}
	return n, nil
}

// Write 写入全部 p，部分写入时会重试。出错时返回已写入的字节数。
func (s *Stream) Write(p []byte) (int, error) {
	if len(p) == 0 {
		if s.h.closed.Load() {
			return 0, opError("write", ErrClosed)
		}
		return 0, nil
	}
	deadline := s.writeDeadline()
	var nn int
	for nn < len(p) {
		n, err := s.ioLoop("write", poll.Write, deadline, func(fd int) (int, error) {
			return sys.Write(fd, p[nn:])
		})
		if err != nil {
			return nn, err
		}
		if n == 0 {
			return nn, newIOError("write", s.h.fd(), io.ErrUnexpectedEOF)
		}
		nn += n
	}
	return nn, nil
}

// WriteString 是字符串版本的 Write。
func (s *Stream) WriteString(str string) (int, error) {
	return s.Write([]byte(str))
}

// ReadAt 在 off 处读取 len(p) 字节，不移动文件位置。
func (s *Stream) ReadAt(p []byte, off int64) (int, error) {
	if off < 0 {
		return 0, newIOError("pread", s.h.fd(), syscall.EINVAL)
	}
	deadline := s.readDeadline()
	var nn int
	for nn < len(p) {
		n, err := s.ioLoop("pread", poll.Read, deadline, func(fd int) (int, error) {
			return sys.Pread(fd, p[nn:], off+int64(nn))
		})
		if err != nil {
			return nn, err
		}
		if n == 0 {
			return nn, io.EOF
		}
		nn += n
	}
	return nn, nil
}

// WriteAt 在 off 处写入全部 p，不移动文件位置。
func (s *Stream) WriteAt(p []byte, off int64) (int, error) {
	if off < 0 {
		return 0, newIOError("pwrite", s.h.fd(), syscall.EINVAL)
	}
	deadline := s.writeDeadline()
	var nn int
	for nn < len(p) {
		n, err := s.ioLoop("pwrite", poll.Write, deadline, func(fd int) (int, error) {
			return sys.Pwrite(fd, p[nn:], off+int64(nn))
		})
		if err != nil {
			return nn, err
		}
		if n == 0 {
			return nn, newIOError("pwrite", s.h.fd(), io.ErrUnexpectedEOF)
		}
		nn += n
	}
	return nn, nil
}
