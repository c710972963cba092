package filesystem

import (
	"io/fs"
	"strings"

	experimentalsys "github.com/tetratelabs/wazero/experimental/sys"
	"github.com/tetratelabs/wazero/sys"

	hostsys "github.com/OpenListTeam/fdstream/internal/sys"
	"github.com/OpenListTeam/fdstream/manager/fd"
	fsmanager "github.com/OpenListTeam/fdstream/manager/filesystem"
)

// FS 按名字把 Manager 中注册的 stream 提供给 guest。
// 每次 OpenFile 都会 dup 一个新的描述符，guest 关闭文件不会影响 host 的 stream。
type FS struct {
	experimentalsys.UnimplementedFS
	m *fsmanager.Manager
}

var _ experimentalsys.FS = (*FS)(nil)

// NewFS 提供 m 中注册的 stream。
func NewFS(m *fsmanager.Manager) *FS {
	return &FS{m: m}
}

func (f *FS) lookup(path string) (*fd.Stream, experimentalsys.Errno) {
	s, ok := f.m.Lookup(strings.TrimPrefix(path, "/"))
	if !ok || s.Closed() {
		return nil, experimentalsys.ENOENT
	}
	return s, 0
}

func (f *FS) OpenFile(path string, flag experimentalsys.Oflag, _ fs.FileMode) (experimentalsys.File, experimentalsys.Errno) {
	s, errno := f.lookup(path)
	if errno != 0 {
		return nil, errno
	}
	if flag&experimentalsys.O_DIRECTORY != 0 {
		return nil, experimentalsys.ENOTDIR
	}

	sysfd, err := hostsys.Dup(s.Fd(), true)
	if err != nil {
		return nil, experimentalsys.UnwrapOSError(err)
	}
	dup, err := fd.Adopt(sysfd, fd.WithName(s.Name()))
	if err != nil {
		_ = hostsys.Close(sysfd)
		return nil, toErrno(err)
	}
	file := NewFile(dup)
	if flag&experimentalsys.O_TRUNC != 0 {
		if errno := file.Truncate(0); errno != 0 {
			_ = file.Close()
			return nil, errno
		}
	}
	return file, 0
}

func (f *FS) Stat(path string) (sys.Stat_t, experimentalsys.Errno) {
	s, errno := f.lookup(path)
	if errno != 0 {
		return sys.Stat_t{}, errno
	}
	fi, err := s.Info()
	if err != nil {
		return sys.Stat_t{}, toErrno(err)
	}
	return sys.NewStat_t(fi), 0
}

// Lstat 等同于 Stat：注册的 stream 不会是符号链接。
func (f *FS) Lstat(path string) (sys.Stat_t, experimentalsys.Errno) {
	return f.Stat(path)
}
