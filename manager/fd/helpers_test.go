package fd

import (
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"

	"github.com/OpenListTeam/fdstream/internal/sys"
	"github.com/OpenListTeam/fdstream/manager/poll"
)

// recordingScheduler 包装真实的 poller，并上报每次登记，
// 测试据此判断 goroutine 是否已经挂起。
type recordingScheduler struct {
	*poll.Poller
	registered chan int
}

func newRecordingScheduler(t *testing.T) *recordingScheduler {
	t.Helper()
	p, err := poll.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = p.Close() })
	return &recordingScheduler{Poller: p, registered: make(chan int, 64)}
}

func (r *recordingScheduler) Register(fd int, dir poll.Direction) (poll.Waiter, error) {
	w, err := r.Poller.Register(fd, dir)
	r.registered <- fd
	return w, err
}

// fakeBuffer 代替缓冲层。
type fakeBuffer struct {
	mu        sync.Mutex
	unread    int
	flushErr  error
	flushes   int
	discarded int
}

func (b *fakeBuffer) FlushWrites() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.flushes++
	return b.flushErr
}

func (b *fakeBuffer) Unread() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.unread
}

func (b *fakeBuffer) DiscardUnread() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.unread = 0
	b.discarded++
}

func tempPath(t *testing.T) string {
	t.Helper()
	return filepath.Join(t.TempDir(), "data")
}

func openFile(t *testing.T, path string) int {
	t.Helper()
	fd, err := unix.Open(path, unix.O_RDWR|unix.O_CREAT|unix.O_CLOEXEC, 0o600)
	require.NoError(t, err)
	return fd
}

// adopt 包装 fd，测试结束时关闭 stream。
func adopt(t *testing.T, fd int, opts ...Option) *Stream {
	t.Helper()
	s, err := Adopt(fd, opts...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func pipePair(t *testing.T, opts ...Option) (*Stream, *Stream) {
	t.Helper()
	r, w, err := sys.Pipe()
	require.NoError(t, err)
	return adopt(t, r, opts...), adopt(t, w, opts...)
}

func fdIsOpen(fd int) bool {
	_, err := unix.FcntlInt(uintptr(fd), unix.F_GETFD, 0)
	return err == nil
}
