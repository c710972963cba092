package fd

import (
	"sync"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/OpenListTeam/fdstream/internal/sys"
	"github.com/OpenListTeam/fdstream/manager/poll"
)

// fakeScheduler 从不挂起：每次 Register 返回的 waiter 立即以脚本中的下一个信号结束。
type fakeScheduler struct {
	mu          sync.Mutex
	signals     []poll.Signal
	registerErr error
	onRegister  func()
	registered  []int
	notified    []int
	cancelled   []int
}

type fakeWaiter struct {
	sig poll.Signal
}

func (w fakeWaiter) Wait(time.Time) poll.Signal { return w.sig }
func (w fakeWaiter) Cancel()                    {}

func (f *fakeScheduler) Register(fd int, _ poll.Direction) (poll.Waiter, error) {
	f.mu.Lock()
	if f.registerErr != nil {
		f.mu.Unlock()
		return nil, f.registerErr
	}
	f.registered = append(f.registered, fd)
	sig := poll.SignalReady
	if len(f.signals) > 0 {
		sig, f.signals = f.signals[0], f.signals[1:]
	}
	onRegister := f.onRegister
	f.mu.Unlock()

	// onRegister 可能回调 Close，因此在锁外执行。
	if onRegister != nil {
		onRegister()
	}
	return fakeWaiter{sig: sig}, nil
}

func (f *fakeScheduler) Cancel(fd int) {
	f.mu.Lock()
	f.cancelled = append(f.cancelled, fd)
	f.mu.Unlock()
}

func (f *fakeScheduler) NotifyClosed(fd int) {
	f.mu.Lock()
	f.notified = append(f.notified, fd)
	f.mu.Unlock()
}

func fakePipe(t *testing.T, sched *fakeScheduler) (*Stream, int) {
	t.Helper()
	r, w, err := sys.Pipe()
	require.NoError(t, err)
	t.Cleanup(func() { _ = sys.Close(w) })
	return adopt(t, r, WithBlocking(false), WithScheduler(sched)), w
}

func TestBridgeRetriesAfterReady(t *testing.T) {
	sched := &fakeScheduler{}
	r, w := fakePipe(t, sched)
	sched.onRegister = func() {
		_, _ = sys.Write(w, []byte("late"))
	}

	buf := make([]byte, 8)
	n, err := r.Read(buf)
	require.NoError(t, err)
	require.Equal(t, "late", string(buf[:n]))
	require.Equal(t, []int{r.Fd()}, sched.registered)
}

func TestBridgeTimeoutSignal(t *testing.T) {
	sched := &fakeScheduler{signals: []poll.Signal{poll.SignalTimeout}}
	r, _ := fakePipe(t, sched)

	_, err := r.Read(make([]byte, 1))
	require.ErrorIs(t, err, ErrTimeout)
	require.False(t, r.Closed())
}

func TestBridgeClosedSignal(t *testing.T) {
	sched := &fakeScheduler{signals: []poll.Signal{poll.SignalClosed}}
	r, _ := fakePipe(t, sched)

	_, err := r.Read(make([]byte, 1))
	require.ErrorIs(t, err, poll.ErrClosed)
	require.NotErrorIs(t, err, ErrClosed)
	require.False(t, r.Closed())
	require.Len(t, sched.registered, 1)
}

func TestBridgeCloseDuringRegister(t *testing.T) {
	sched := &fakeScheduler{}
	r, _ := fakePipe(t, sched)
	fd := r.Fd()
	sched.onRegister = func() {
		require.NoError(t, r.Close())
	}

	_, err := r.Read(make([]byte, 1))
	require.ErrorIs(t, err, ErrClosed)
	require.Equal(t, []int{fd}, sched.notified)
}

func TestBridgeRegisterFailure(t *testing.T) {
	sched := &fakeScheduler{registerErr: syscall.EBADF}
	r, _ := fakePipe(t, sched)

	_, err := r.Read(make([]byte, 1))
	var ioErr *IOError
	require.ErrorAs(t, err, &ioErr)
	require.Equal(t, syscall.EBADF, ioErr.Errno())
}

func TestCloseNotifiesScheduler(t *testing.T) {
	sched := &fakeScheduler{}
	r, _ := fakePipe(t, sched)
	fd := r.Fd()

	require.NoError(t, r.Close())
	require.NoError(t, r.Close())
	require.Equal(t, []int{fd}, sched.notified)
}

func TestReopenCancelsOldRegistrations(t *testing.T) {
	sched := &fakeScheduler{}
	a, _ := fakePipe(t, sched)
	b, _ := fakePipe(t, sched)
	oldfd := a.Fd()

	require.NoError(t, a.Reopen(b))
	require.Equal(t, []int{oldfd}, sched.cancelled)
	require.False(t, a.Blocking())
}
