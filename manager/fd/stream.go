// Package fd 把原始的操作系统文件描述符接管为 stream。描述符未就绪时
// 只阻塞调用方 goroutine，不阻塞线程。
package fd

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"runtime"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/OpenListTeam/fdstream/internal/sys"
)

// Buffer 是缓冲层通过 AttachBuffer 注册的接口，让 Seek、Pos、Close 和 Reopen
// 与其持有的数据保持一致。
type Buffer interface {
	// FlushWrites 写出所有待写数据。
	FlushWrites() error
	// Unread 返回已预读但未消费的字节数。
	Unread() int
	// DiscardUnread 丢弃预读的数据。
	DiscardUnread()
}

var (
	_ io.ReadWriteCloser = (*Stream)(nil)
	_ io.Seeker          = (*Stream)(nil)
	_ io.ReaderAt        = (*Stream)(nil)
	_ io.WriterAt        = (*Stream)(nil)
	_ io.StringWriter    = (*Stream)(nil)
)

// Stream 是被接管的操作系统文件描述符，可以并发使用，
// 但并发读写会以系统调用为粒度交错。
type Stream struct {
	h *handle

	readTimeout  atomic.Int64
	writeTimeout atomic.Int64

	bufMu sync.Mutex
	buf   Buffer

	cleanup runtime.Cleanup
}

// Adopt 接管 sysfd，描述符必须处于打开状态。未设置 DontCloseOnFinalize 时，
// 从未 Close 且变得不可达的 Stream 会在垃圾回收时关闭 sysfd。
func Adopt(sysfd int, opts ...Option) (*Stream, error) {
	o := defaultOptions()
	for _, opt := range opts {
		opt(o)
	}
	if o.err != nil {
		return nil, o.err
	}

	var st syscall.Stat_t
	if err := sys.Fstat(sysfd, &st); err != nil {
		return nil, newIOError("adopt", sysfd, err)
	}

	name := o.name
	if name == "" {
		name = fmt.Sprintf("fd:%d", sysfd)
	}
	h := &handle{name: name, logger: o.logger, sched: o.sched}
	h.sysfd.Store(int64(sysfd))
	h.closeOnFinalize.Store(o.closeOnFinalize)

	blocking, err := resolveMode(sysfd, o)
	if err != nil {
		return nil, err
	}
	h.blocking.Store(blocking)
	if !blocking {
		if _, err := h.scheduler(); err != nil {
			return nil, newIOError("adopt", sysfd, err)
		}
	}

	s := &Stream{h: h}
	s.readTimeout.Store(int64(max(o.readTimeout, 0)))
	s.writeTimeout.Store(int64(max(o.writeTimeout, 0)))
	if blocking {
		s.pushSocketTimeouts(false)
	}
	s.cleanup = runtime.AddCleanup(s, (*handle).finalize, h)

	o.logger.Debug("adopted descriptor", "fd", sysfd, "name", name, "blocking", blocking)
	return s, nil
}

// resolveMode 应用请求的模式或查询当前模式，返回 stream 是否使用阻塞系统调用。
func resolveMode(sysfd int, o *options) (bool, error) {
	if o.blocking == nil {
		nonblocking, err := sys.IsNonblock(sysfd)
		if err != nil {
			return false, newIOError("adopt", sysfd, err)
		}
		return !nonblocking, nil
	}
	want := *o.blocking
	err := sys.SetNonblock(sysfd, !want)
	if err == nil {
		return want, nil
	}
	if o.strict {
		return false, configError("adopt", newIOError("fcntl", sysfd, err))
	}
	// 描述符最终处于哪种模式就按哪种模式处理。
	nonblocking, qerr := sys.IsNonblock(sysfd)
	actual := qerr != nil || !nonblocking
	o.logger.Debug("adopt: cannot change descriptor mode, keeping current mode",
		"fd", sysfd, "requested_blocking", want, "blocking", actual, "error", err)
	return actual, nil
}

func (s *Stream) checkOpen(op string) error {
	if s.h.closed.Load() {
		return opError(op, ErrClosed)
	}
	return nil
}

func (s *Stream) buffer() Buffer {
	s.bufMu.Lock()
	defer s.bufMu.Unlock()
	return s.buf
}

// AttachBuffer 把 b 注册为 s 之上的缓冲层，传 nil 表示卸载。
func (s *Stream) AttachBuffer(b Buffer) {
	s.bufMu.Lock()
	s.buf = b
	s.bufMu.Unlock()
}

// flushBuffer 写出挂载缓冲区中的待写数据。
func (s *Stream) flushBuffer() error {
	if b := s.buffer(); b != nil {
		return b.FlushWrites()
	}
	return nil
}

// Close 刷新挂载的缓冲区并关闭描述符，挂起的 goroutine 以 ErrClosed 唤醒。
// 即使刷新失败也会释放描述符，并同时返回两个错误。重复关闭不做任何事。
func (s *Stream) Close() error {
	if s.h.closed.Load() {
		return nil
	}
	var flushErr error
	if err := s.flushBuffer(); err != nil {
		flushErr = err
		s.h.logger.Warn("close: flush failed", "fd", s.h.fd(), "name", s.h.name, "error", err)
	}
	closeErr := s.h.release()
	s.cleanup.Stop()
	return errors.Join(flushErr, closeErr)
}

// Finalize 立即执行垃圾回收路径：自有描述符被关闭且忽略错误，借用的描述符保持打开。
// 不会刷新缓冲区。
func (s *Stream) Finalize() {
	s.h.finalize()
	s.cleanup.Stop()
}

// Closed 返回 Close 是否已经执行。
func (s *Stream) Closed() bool {
	return s.h.closed.Load()
}

// Fd 返回操作系统描述符编号，Close 之后仍可读取。
func (s *Stream) Fd() int {
	return s.h.fd()
}

// Name 返回接管时指定的名称。
func (s *Stream) Name() string {
	return s.h.name
}

// Blocking 返回 stream 是否使用阻塞系统调用。
func (s *Stream) Blocking() bool {
	return s.h.blocking.Load()
}

// SetBlocking 在阻塞和非阻塞模式之间切换描述符。
// 失败时模式不变，返回包装了 ErrConfiguration 的错误。
func (s *Stream) SetBlocking(blocking bool) error {
	if err := s.checkOpen("set blocking"); err != nil {
		return err
	}
	fd := s.h.fd()
	if !blocking {
		if _, err := s.h.scheduler(); err != nil {
			return newIOError("set blocking", fd, err)
		}
	}
	if err := sys.SetNonblock(fd, !blocking); err != nil {
		return configError("set blocking", newIOError("fcntl", fd, err))
	}
	s.h.blocking.Store(blocking)
	if blocking {
		s.pushSocketTimeouts(false)
	}
	return nil
}

// CloseOnExec 返回是否设置了 FD_CLOEXEC。
func (s *Stream) CloseOnExec() (bool, error) {
	if err := s.checkOpen("close on exec"); err != nil {
		return false, err
	}
	fd := s.h.fd()
	on, err := sys.CloseOnExec(fd)
	if err != nil {
		return false, newIOError("fcntl", fd, err)
	}
	return on, nil
}

// SetCloseOnExec 设置或清除 FD_CLOEXEC。
func (s *Stream) SetCloseOnExec(on bool) error {
	if err := s.checkOpen("set close on exec"); err != nil {
		return err
	}
	fd := s.h.fd()
	return newIOError("fcntl", fd, sys.SetCloseOnExec(fd, on))
}

// CloseOnFinalize 返回垃圾回收时是否关闭描述符。
func (s *Stream) CloseOnFinalize() bool {
	return s.h.closeOnFinalize.Load()
}

// SetCloseOnFinalize 设置垃圾回收时是否关闭描述符。
func (s *Stream) SetCloseOnFinalize(on bool) {
	s.h.closeOnFinalize.Store(on)
}

// ReadTimeout 返回读超时，零表示不限制。
func (s *Stream) ReadTimeout() time.Duration {
	return time.Duration(s.readTimeout.Load())
}

// WriteTimeout 返回写超时，零表示不限制。
func (s *Stream) WriteTimeout() time.Duration {
	return time.Duration(s.writeTimeout.Load())
}

// SetReadTimeout 以 d 限制之后的每次读，零或负数表示取消限制。
func (s *Stream) SetReadTimeout(d time.Duration) error {
	if err := s.checkOpen("set read timeout"); err != nil {
		return err
	}
	s.readTimeout.Store(int64(max(d, 0)))
	if s.h.blocking.Load() {
		s.pushSocketTimeouts(true)
	}
	return nil
}

// SetWriteTimeout 以 d 限制之后的每次写，零或负数表示取消限制。
func (s *Stream) SetWriteTimeout(d time.Duration) error {
	if err := s.checkOpen("set write timeout"); err != nil {
		return err
	}
	s.writeTimeout.Store(int64(max(d, 0)))
	if s.h.blocking.Load() {
		s.pushSocketTimeouts(true)
	}
	return nil
}

// pushSocketTimeouts 把超时交给内核，让 socket 上的阻塞系统调用遵守超时。
// 其他类型的描述符没有这个选项，会一直阻塞到完成。force 未设置时不下发零值超时。
func (s *Stream) pushSocketTimeouts(force bool) {
	fd := s.h.fd()
	rt, wt := s.ReadTimeout(), s.WriteTimeout()
	if force || rt > 0 {
		if err := sys.SetReadTimeout(fd, rt); err != nil && !errors.Is(err, syscall.ENOTSOCK) {
			s.h.logger.Debug("set SO_RCVTIMEO failed", "fd", fd, "error", err)
		}
	}
	if force || wt > 0 {
		if err := sys.SetWriteTimeout(fd, wt); err != nil && !errors.Is(err, syscall.ENOTSOCK) {
			s.h.logger.Debug("set SO_SNDTIMEO failed", "fd", fd, "error", err)
		}
	}
}

// Info 返回 fstat(2) 元数据，Sys 返回 *syscall.Stat_t。
func (s *Stream) Info() (fs.FileInfo, error) {
	if err := s.checkOpen("stat"); err != nil {
		return nil, err
	}
	fd := s.h.fd()
	fi := &fileInfo{name: s.h.name}
	if err := sys.Fstat(fd, &fi.st); err != nil {
		return nil, newIOError("stat", fd, err)
	}
	return fi, nil
}

// IsTTY 返回描述符是否为终端，关闭后返回 false。
func (s *Stream) IsTTY() bool {
	if s.h.closed.Load() {
		return false
	}
	return sys.IsTerminal(s.h.fd())
}

// Reopen 让 s 指向与 other 相同的打开文件描述，保留自身的 close-on-exec 标志。
// 先刷新待写数据并丢弃预读。挂在旧描述符上的 goroutine 会在新描述符上重试。
// other 不受影响。
func (s *Stream) Reopen(other *Stream) error {
	if err := s.checkOpen("reopen"); err != nil {
		return err
	}
	if err := other.checkOpen("reopen"); err != nil {
		return err
	}
	if other == s {
		return nil
	}
	if b := s.buffer(); b != nil {
		if err := b.FlushWrites(); err != nil {
			return err
		}
		b.DiscardUnread()
	}

	oldfd := s.h.fd()
	cloexec, err := sys.CloseOnExec(oldfd)
	if err != nil {
		return newIOError("reopen", oldfd, err)
	}
	newfd, err := sys.Dup(other.h.fd(), cloexec)
	if err != nil {
		return newIOError("reopen", other.h.fd(), err)
	}
	nonblocking, err := sys.IsNonblock(newfd)
	if err != nil {
		_ = sys.Close(newfd)
		return newIOError("reopen", newfd, err)
	}
	if nonblocking {
		if _, err := s.h.scheduler(); err != nil {
			_ = sys.Close(newfd)
			return newIOError("reopen", newfd, err)
		}
	}

	s.h.sysfd.Store(int64(newfd))
	s.h.blocking.Store(!nonblocking)
	if sched := s.h.currentScheduler(); sched != nil {
		sched.Cancel(oldfd)
	}
	s.h.logger.Debug("reopened descriptor", "old_fd", oldfd, "fd", newfd, "name", s.h.name)
	return newIOError("close", oldfd, sys.Close(oldfd))
}

// Flush 在这一层不做任何事，因为写入直接落到描述符上。只在已关闭时失败。
func (s *Stream) Flush() error {
	return s.checkOpen("flush")
}
