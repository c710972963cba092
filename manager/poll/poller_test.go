package poll

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/OpenListTeam/fdstream/internal/sys"
)

func newTestPoller(t *testing.T) *Poller {
	t.Helper()
	p, err := New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = p.Close() })
	return p
}

func newPipe(t *testing.T) (int, int) {
	t.Helper()
	r, w, err := sys.Pipe()
	require.NoError(t, err)
	require.NoError(t, sys.SetNonblock(r, true))
	require.NoError(t, sys.SetNonblock(w, true))
	t.Cleanup(func() {
		_ = sys.Close(r)
		_ = sys.Close(w)
	})
	return r, w
}

func pending(p *Poller, fd int) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.regs[fd])
}

func TestRegisterReadBecomesReady(t *testing.T) {
	p := newTestPoller(t)
	r, w := newPipe(t)

	waiter, err := p.Register(r, Read)
	require.NoError(t, err)

	go func() {
		time.Sleep(10 * time.Millisecond)
		_, _ = sys.Write(w, []byte("x"))
	}()

	require.Equal(t, SignalReady, waiter.Wait(time.Now().Add(5*time.Second)))
	require.Zero(t, pending(p, r))
}

func TestWriteReadyImmediately(t *testing.T) {
	p := newTestPoller(t)
	_, w := newPipe(t)

	waiter, err := p.Register(w, Write)
	require.NoError(t, err)
	require.Equal(t, SignalReady, waiter.Wait(time.Time{}))
}

func TestNotifyClosedWakesAllWaiters(t *testing.T) {
	p := newTestPoller(t)
	r, _ := newPipe(t)

	a, err := p.Register(r, Read)
	require.NoError(t, err)
	b, err := p.Register(r, Read)
	require.NoError(t, err)
	require.Equal(t, 2, pending(p, r))

	results := make(chan Signal, 2)
	for _, w := range []Waiter{a, b} {
		go func(w Waiter) { results <- w.Wait(time.Time{}) }(w)
	}

	p.NotifyClosed(r)
	for range 2 {
		select {
		case sig := <-results:
			require.Equal(t, SignalClosed, sig)
		case <-time.After(5 * time.Second):
			t.Fatal("waiter was not woken")
		}
	}
	require.Zero(t, pending(p, r))
}

func TestCancelWakesWithReady(t *testing.T) {
	p := newTestPoller(t)
	r, _ := newPipe(t)

	waiter, err := p.Register(r, Read)
	require.NoError(t, err)
	p.Cancel(r)
	require.Equal(t, SignalReady, waiter.Wait(time.Time{}))
}

func TestTimeoutRemovesOnlyOwnRegistration(t *testing.T) {
	p := newTestPoller(t)
	r, _ := newPipe(t)

	short, err := p.Register(r, Read)
	require.NoError(t, err)
	long, err := p.Register(r, Read)
	require.NoError(t, err)

	start := time.Now()
	require.Equal(t, SignalTimeout, short.Wait(time.Now().Add(20*time.Millisecond)))
	require.GreaterOrEqual(t, time.Since(start), 20*time.Millisecond)
	require.Equal(t, 1, pending(p, r))

	long.Cancel()
	require.Zero(t, pending(p, r))
}

func TestExpiredDeadline(t *testing.T) {
	p := newTestPoller(t)
	r, _ := newPipe(t)

	waiter, err := p.Register(r, Read)
	require.NoError(t, err)
	require.Equal(t, SignalTimeout, waiter.Wait(time.Now().Add(-time.Second)))
	// 以第一个信号为准
	require.Equal(t, SignalTimeout, waiter.Wait(time.Time{}))
}

func TestCloseWakesOutstandingAndRejectsNew(t *testing.T) {
	p, err := New()
	require.NoError(t, err)
	r, _ := newPipe(t)

	waiter, err := p.Register(r, Read)
	require.NoError(t, err)
	require.NoError(t, p.Close())
	require.Equal(t, SignalClosed, waiter.Wait(time.Time{}))

	_, err = p.Register(r, Read)
	require.ErrorIs(t, err, ErrClosed)
	require.NoError(t, p.Close())
}

func TestRegisterRejectsInvalidDescriptor(t *testing.T) {
	p := newTestPoller(t)
	_, err := p.Register(-1, Read)
	require.Error(t, err)
}

func TestDefaultIsShared(t *testing.T) {
	a, err := Default()
	require.NoError(t, err)
	b, err := Default()
	require.NoError(t, err)
	require.Same(t, a, b)
}
