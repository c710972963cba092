package filesystem

import (
	"io"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	experimentalsys "github.com/tetratelabs/wazero/experimental/sys"
	"golang.org/x/sys/unix"

	"github.com/OpenListTeam/fdstream/internal/sys"
	"github.com/OpenListTeam/fdstream/manager/fd"
)

func openFile(t *testing.T, flags int) *File {
	t.Helper()
	path := filepath.Join(t.TempDir(), "data")
	sysfd, err := unix.Open(path, unix.O_RDWR|unix.O_CREAT|unix.O_CLOEXEC|flags, 0o600)
	require.NoError(t, err)
	s, err := fd.Adopt(sysfd)
	require.NoError(t, err)
	f := NewFile(s)
	t.Cleanup(func() { _ = f.Close() })
	return f
}

func TestFileReadWrite(t *testing.T) {
	f := openFile(t, 0)

	n, errno := f.Write([]byte("guest data"))
	require.Zero(t, errno)
	require.Equal(t, 10, n)

	pos, errno := f.Seek(0, io.SeekStart)
	require.Zero(t, errno)
	require.Zero(t, pos)

	buf := make([]byte, 5)
	n, errno = f.Read(buf)
	require.Zero(t, errno)
	require.Equal(t, "guest", string(buf[:n]))

	n, errno = f.Pread(buf, 6)
	require.Zero(t, errno, "short pread at EOF is not an error")
	require.Equal(t, "data", string(buf[:n]))

	_, errno = f.Pwrite([]byte("G"), 0)
	require.Zero(t, errno)
	n, errno = f.Pread(buf[:1], 0)
	require.Zero(t, errno)
	require.Equal(t, "G", string(buf[:n]))
}

func TestFileStat(t *testing.T) {
	f := openFile(t, 0)
	_, errno := f.Write([]byte("abc"))
	require.Zero(t, errno)
	require.Zero(t, f.Sync())
	require.Zero(t, f.Datasync())
	require.Zero(t, f.Truncate(2))

	st, errno := f.Stat()
	require.Zero(t, errno)
	require.EqualValues(t, 2, st.Size)
	require.True(t, st.Mode.IsRegular())

	ino, errno := f.Ino()
	require.Zero(t, errno)
	require.Equal(t, st.Ino, ino)

	dir, errno := f.IsDir()
	require.Zero(t, errno)
	require.False(t, dir)
}

func TestFileAppendFlag(t *testing.T) {
	f := openFile(t, unix.O_APPEND)
	require.True(t, f.IsAppend())
	require.Zero(t, f.SetAppend(false))
	require.False(t, f.IsAppend())
	require.Zero(t, f.SetAppend(true))
	require.True(t, f.IsAppend())
}

func TestFileErrnoMapping(t *testing.T) {
	r, w, err := sys.Pipe()
	require.NoError(t, err)
	defer sys.Close(w)
	s, err := fd.Adopt(r)
	require.NoError(t, err)
	f := NewFile(s)

	_, errno := f.Seek(0, io.SeekCurrent)
	require.NotZero(t, errno)

	_, errno = f.Readdir(1)
	require.Equal(t, experimentalsys.ENOSYS, errno)

	require.Zero(t, f.Close())
	require.Zero(t, f.Close())
	_, errno = f.Read(make([]byte, 1))
	require.Equal(t, experimentalsys.EBADF, errno)
	require.Equal(t, experimentalsys.EBADF, f.SetAppend(true))
	require.False(t, f.IsAppend())
}

func TestFileReadTimeoutIsEAGAIN(t *testing.T) {
	r, w, err := sys.Pipe()
	require.NoError(t, err)
	defer sys.Close(w)
	s, err := fd.Adopt(r, fd.WithBlocking(false), fd.WithReadTimeout(20*time.Millisecond))
	require.NoError(t, err)
	f := NewFile(s)
	defer f.Close()

	_, errno := f.Read(make([]byte, 1))
	require.Equal(t, experimentalsys.EAGAIN, errno)
}
