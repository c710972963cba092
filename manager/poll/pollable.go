package poll

import (
	"sync"
	"time"
)

// pollable 是一个一次性的就绪锁存器，就绪时关闭内部的 channel。
// 第一次 SetReady 决定最终的 Signal。这个实现是线程安全的。
type pollable struct {
	mu     sync.Mutex
	ready  chan struct{}
	signal Signal
	cancel func() // 用于 Cancel()
}

func newPollable(cancel func()) *pollable {
	return &pollable{
		ready:  make(chan struct{}),
		cancel: cancel,
	}
}

// SetReady 以 sig 将 pollable 设置为就绪，返回本次调用是否生效。
// 如果已经就绪，它不会做任何事情。
func (p *pollable) SetReady(sig Signal) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	select {
	case <-p.ready:
		// 已经关闭（已就绪），什么都不用做。
		return false
	default:
		p.signal = sig
		close(p.ready)
		return true
	}
}

// Signal 返回就绪时携带的信号，尚未就绪时为零值。
func (p *pollable) Signal() Signal {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.signal
}

// Wait 阻塞直到就绪或超过 deadline。零值 deadline 表示不超时。
func (p *pollable) Wait(deadline time.Time) Signal {
	if deadline.IsZero() {
		<-p.ready
		return p.Signal()
	}

	d := time.Until(deadline)
	if d <= 0 {
		p.expire()
		return p.Signal()
	}

	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-p.ready:
	case <-timer.C:
		p.expire()
	}
	return p.Signal()
}

func (p *pollable) expire() {
	if p.SetReady(SignalTimeout) {
		p.Cancel()
	}
}

// Cancel 取消注册，例如从 Poller 中移除自身。
func (p *pollable) Cancel() {
	if p.cancel != nil {
		p.cancel()
	}
}
