// Package poll 实现就绪反应器，负责挂起等待非阻塞描述符的 goroutine。
// goroutine 针对描述符的某个方向登记兴趣，拿到 Waiter 后在其上休眠，
// 直到反应器、关闭通知或自身的截止时间将其唤醒。
package poll

import "time"

// Direction 表示等待者关心的就绪方向。
type Direction uint8

const (
	Read Direction = iota
	Write
)

func (d Direction) String() string {
	switch d {
	case Read:
		return "read"
	case Write:
		return "write"
	default:
		return "unknown"
	}
}

// Signal 告诉被唤醒的 goroutine 唤醒原因。
type Signal uint8

const (
	// SignalReady 表示描述符可能可以继续推进，调用方重试系统调用。
	SignalReady Signal = iota + 1
	// SignalClosed 表示调用方休眠期间描述符已被关闭，之后不得再访问该描述符。
	SignalClosed
	// SignalTimeout 表示调用方的截止时间先到。
	SignalTimeout
)

func (s Signal) String() string {
	switch s {
	case SignalReady:
		return "ready"
	case SignalClosed:
		return "closed"
	case SignalTimeout:
		return "timeout"
	default:
		return "none"
	}
}

// Waiter 是一次兴趣登记。
type Waiter interface {
	// Wait 挂起当前 goroutine，直到登记收到信号或超过 deadline。
	// 零值 deadline 表示无限等待。以第一个送达的信号为准，之后的调用返回同一个值。
	Wait(deadline time.Time) Signal
	// Cancel 只撤销本次登记。
	Cancel()
}
