package fd

import (
	"log/slog"
	"time"
)

type options struct {
	name            string
	blocking        *bool
	closeOnFinalize bool
	strict          bool
	sched           Scheduler
	readTimeout     time.Duration
	writeTimeout    time.Duration
	logger          *slog.Logger
	err             error
}

func defaultOptions() *options {
	return &options{
		closeOnFinalize: true,
		logger:          slog.New(slog.DiscardHandler),
	}
}

// Option 配置 Adopt。
type Option func(*options)

// WithName 设置 Name 和 Info 返回的名称。
func WithName(name string) Option {
	return func(o *options) {
		o.name = name
	}
}

// WithBlocking 把描述符切换到指定模式。未设置时保留操作系统当前的模式。
func WithBlocking(blocking bool) Option {
	return func(o *options) {
		o.blocking = &blocking
	}
}

// DontCloseOnFinalize 表示描述符是借用的：Stream 未经 Close 就变得不可达时，
// 描述符留给其所有者，不会被关闭。
func DontCloseOnFinalize() Option {
	return func(o *options) {
		o.closeOnFinalize = false
	}
}

// StrictBlockingMode 让 Adopt 在描述符拒绝 WithBlocking 请求的模式时
// 返回 ErrConfiguration，而不是退回阻塞系统调用。
func StrictBlockingMode() Option {
	return func(o *options) {
		o.strict = true
	}
}

// WithScheduler 设置遇到 would-block 时挂起 goroutine 的调度器。
// 默认使用进程级的 poll.Default。
func WithScheduler(s Scheduler) Option {
	return func(o *options) {
		o.sched = s
	}
}

// WithReadTimeout 限制每次读的时长，零表示不限制。
func WithReadTimeout(d time.Duration) Option {
	return func(o *options) {
		o.readTimeout = d
	}
}

// WithWriteTimeout 限制每次写的时长，零表示不限制。
func WithWriteTimeout(d time.Duration) Option {
	return func(o *options) {
		o.writeTimeout = d
	}
}

// WithLogger 设置 logger，默认丢弃所有日志。
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithConfig 从 cfg 应用超时和严格模式。超时无法解析时 Adopt 返回 ErrConfiguration。
func WithConfig(cfg *Config) Option {
	return func(o *options) {
		if cfg == nil {
			return
		}
		read, write, err := cfg.Timeouts()
		if err != nil {
			o.err = err
			return
		}
		o.readTimeout = read
		o.writeTimeout = write
		o.strict = o.strict || cfg.StrictBlocking
	}
}
