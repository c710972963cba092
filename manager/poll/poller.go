package poll

import (
	"errors"
	"log/slog"
	"sync"
	"syscall"

	"github.com/OpenListTeam/fdstream/internal/sys"
)

// ErrClosed 表示 Poller 已经关闭，不再接受新的注册。
var ErrClosed = errors.New("poll: poller closed")

// Poller 是就绪反应器。一个后台 goroutine 轮询所有存在登记的描述符，
// 外加一条自管道，登记集合变化时用它打断 poll。
//
// Poller 实现了 manager/fd 所需的调度器接口。
type Poller struct {
	mu     sync.Mutex
	regs   map[int][]*registration
	closed bool

	wakeR, wakeW int
	done         chan struct{}
	exited       chan struct{}
	closeOnce    sync.Once

	logger *slog.Logger
}

// Option 配置 Poller。
type Option func(*Poller)

// WithLogger 设置反应器诊断日志使用的 logger。
func WithLogger(logger *slog.Logger) Option {
	return func(p *Poller) {
		if logger != nil {
			p.logger = logger
		}
	}
}

// New 启动一个 Poller。
func New(opts ...Option) (*Poller, error) {
	r, w, err := sys.Pipe()
	if err != nil {
		return nil, err
	}
	for _, fd := range []int{r, w} {
		if err := sys.SetNonblock(fd, true); err != nil {
			_ = sys.Close(r)
			_ = sys.Close(w)
			return nil, err
		}
	}

	p := &Poller{
		regs:   make(map[int][]*registration),
		wakeR:  r,
		wakeW:  w,
		done:   make(chan struct{}),
		exited: make(chan struct{}),
		logger: slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(p)
	}
	go p.run()
	return p, nil
}

var (
	defaultOnce   sync.Once
	defaultPoller *Poller
	defaultErr    error
)

// Default 返回进程级共享的 Poller，首次使用时启动，永不关闭。
func Default() (*Poller, error) {
	defaultOnce.Do(func() {
		defaultPoller, defaultErr = New()
	})
	return defaultPoller, defaultErr
}

// registration 是某个 goroutine 对描述符单一方向的兴趣。
type registration struct {
	*pollable
	fd  int
	dir Direction
}

// Register 登记 fd 在 dir 方向上的就绪兴趣。poll(2) 报告该方向就绪，
// 或描述符处于错误/挂断状态时，返回的 Waiter 收到 SignalReady。
// Poller 关闭后返回 ErrClosed。
func (p *Poller) Register(fd int, dir Direction) (Waiter, error) {
	if fd < 0 {
		return nil, syscall.EBADF
	}
	reg := &registration{fd: fd, dir: dir}
	reg.pollable = newPollable(func() { p.remove(reg) })

	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil, ErrClosed
	}
	p.regs[fd] = append(p.regs[fd], reg)
	p.mu.Unlock()

	p.wake()
	return reg, nil
}

// Cancel 撤销 fd 上的全部登记，以 SignalReady 唤醒，让持有者重试系统调用。
// 用于替换仍在使用的 stream 底层的描述符。
func (p *Poller) Cancel(fd int) {
	p.fire(fd, SignalReady)
}

// NotifyClosed 撤销 fd 上的全部登记，以 SignalClosed 唤醒。
func (p *Poller) NotifyClosed(fd int) {
	p.fire(fd, SignalClosed)
}

// Close 停止反应器，尚未返回的等待者收到 SignalClosed。
func (p *Poller) Close() error {
	p.closeOnce.Do(func() {
		p.mu.Lock()
		p.closed = true
		regs := p.regs
		p.regs = make(map[int][]*registration)
		p.mu.Unlock()

		for _, list := range regs {
			for _, reg := range list {
				reg.SetReady(SignalClosed)
			}
		}

		close(p.done)
		p.wake()
		<-p.exited
		_ = sys.Close(p.wakeR)
		_ = sys.Close(p.wakeW)
	})
	return nil
}

func (p *Poller) fire(fd int, sig Signal) {
	p.mu.Lock()
	regs := p.regs[fd]
	delete(p.regs, fd)
	p.mu.Unlock()

	for _, reg := range regs {
		reg.SetReady(sig)
	}
	if len(regs) > 0 {
		p.wake()
	}
}

func (p *Poller) remove(reg *registration) {
	p.mu.Lock()
	regs := p.regs[reg.fd]
	kept := make([]*registration, 0, len(regs))
	for _, r := range regs {
		if r != reg {
			kept = append(kept, r)
		}
	}
	changed := len(kept) != len(regs)
	if len(kept) == 0 {
		delete(p.regs, reg.fd)
	} else {
		p.regs[reg.fd] = kept
	}
	p.mu.Unlock()

	if changed {
		p.wake()
	}
}

// wake 打断 poll。管道写满时已有待处理的唤醒，因此忽略 EAGAIN。
func (p *Poller) wake() {
	select {
	case <-p.exited:
		return
	default:
	}
	_, _ = sys.Write(p.wakeW, []byte{0})
}

func (p *Poller) drain() {
	var buf [64]byte
	for {
		if _, err := sys.Read(p.wakeR, buf[:]); err != nil {
			return
		}
	}
}

func (p *Poller) run() {
	defer close(p.exited)

	var fds []pollFd
	for {
		select {
		case <-p.done:
			return
		default:
		}

		fds = append(fds[:0], pollFd{Fd: int32(p.wakeR), Events: pollEventRead})
		p.mu.Lock()
		for fd, regs := range p.regs {
			var events int16
			for _, reg := range regs {
				if reg.dir == Read {
					events |= pollEventRead
				} else {
					events |= pollEventWrite
				}
			}
			fds = append(fds, pollFd{Fd: int32(fd), Events: events})
		}
		p.mu.Unlock()

		if _, err := poll(fds, -1); err != nil {
			// 已无可等待的对象，让所有持有者重试并各自返回错误。
			p.logger.Debug("poll failed, releasing waiters", "error", err, "descriptors", len(fds)-1)
			for _, pfd := range fds[1:] {
				p.fire(int(pfd.Fd), SignalReady)
			}
			continue
		}

		if fds[0].Revents != 0 {
			p.drain()
		}
		for _, pfd := range fds[1:] {
			if pfd.Revents != 0 {
				p.dispatch(int(pfd.Fd), pfd.Revents)
			}
		}
	}
}

func (p *Poller) dispatch(fd int, revents int16) {
	var fired []*registration

	p.mu.Lock()
	regs := p.regs[fd]
	kept := make([]*registration, 0, len(regs))
	for _, reg := range regs {
		switch {
		case revents&pollEventError != 0,
			reg.dir == Read && revents&pollEventRead != 0,
			reg.dir == Write && revents&pollEventWrite != 0:
			fired = append(fired, reg)
		default:
			kept = append(kept, reg)
		}
	}
	if len(kept) == 0 {
		delete(p.regs, fd)
	} else {
		p.regs[fd] = kept
	}
	p.mu.Unlock()

	for _, reg := range fired {
		reg.SetReady(SignalReady)
	}
}
