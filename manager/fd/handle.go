package fd

import (
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/OpenListTeam/fdstream/internal/sys"
	"github.com/OpenListTeam/fdstream/manager/poll"
)

// handle 持有描述符。它不反向引用 Stream，因此可以作为 Stream cleanup 的参数。
type handle struct {
	sysfd           atomic.Int64
	closed          atomic.Bool
	blocking        atomic.Bool
	closeOnFinalize atomic.Bool

	name   string
	logger *slog.Logger

	schedMu sync.Mutex
	sched   Scheduler
}

func (h *handle) fd() int {
	return int(h.sysfd.Load())
}

// scheduler 返回配置的调度器，首次使用时退回共享的默认 poller。
func (h *handle) scheduler() (Scheduler, error) {
	h.schedMu.Lock()
	defer h.schedMu.Unlock()
	if h.sched != nil {
		return h.sched, nil
	}
	p, err := poll.Default()
	if err != nil {
		return nil, err
	}
	h.sched = p
	return h.sched, nil
}

// currentScheduler 返回曾经用到过的调度器。
func (h *handle) currentScheduler() Scheduler {
	h.schedMu.Lock()
	defer h.schedMu.Unlock()
	return h.sched
}

// release 把 handle 标记为关闭，唤醒挂起的 goroutine 并关闭描述符。
// 只有第一次调用生效。
func (h *handle) release() error {
	if !h.closed.CompareAndSwap(false, true) {
		return nil
	}
	fd := h.fd()
	if sched := h.currentScheduler(); sched != nil {
		sched.NotifyClosed(fd)
	}
	// close(2) 不重试：在 linux 上即使返回 EINTR 描述符也已释放。
	if err := sys.Close(fd); err != nil {
		return newIOError("close", fd, err)
	}
	return nil
}

// finalize 关闭从未显式关闭的自有描述符，错误只记录日志。
func (h *handle) finalize() {
	if h.closed.Load() || !h.closeOnFinalize.Load() {
		return
	}
	fd := h.fd()
	if err := h.release(); err != nil {
		h.logger.Debug("finalize: close failed", "fd", fd, "name", h.name, "error", err)
		return
	}
	h.logger.Debug("finalize: closed unreferenced descriptor", "fd", fd, "name", h.name)
}
