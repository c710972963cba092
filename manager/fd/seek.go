package fd

import (
	"errors"
	"io"

	"github.com/OpenListTeam/fdstream/internal/sys"
)

// Seek 刷新待写数据，移动系统文件位置并丢弃预读。使用 io.SeekCurrent 时偏移量
// 相对逻辑位置计算，已预读未消费的字节会被计入。
func (s *Stream) Seek(offset int64, whence int) (int64, error) {
	if err := s.checkOpen("seek"); err != nil {
		return 0, err
	}
	b := s.buffer()
	if b != nil {
		if err := b.FlushWrites(); err != nil {
			return 0, err
		}
		if whence == io.SeekCurrent {
			offset -= int64(b.Unread())
		}
	}
	fd := s.h.fd()
	pos, err := sys.Seek(fd, offset, whence)
	if err != nil {
		return 0, newIOError("seek", fd, err)
	}
	if b != nil {
		b.DiscardUnread()
	}
	return pos, nil
}

// RawPos 返回系统文件位置，不考虑挂载的缓冲区。
func (s *Stream) RawPos() (int64, error) {
	if err := s.checkOpen("pos"); err != nil {
		return 0, err
	}
	fd := s.h.fd()
	pos, err := sys.Seek(fd, 0, io.SeekCurrent)
	if err != nil {
		return 0, newIOError("pos", fd, err)
	}
	return pos, nil
}

// Pos 返回逻辑位置：刷新待写数据后的系统位置减去已预读未消费的字节数。
func (s *Stream) Pos() (int64, error) {
	if err := s.checkOpen("pos"); err != nil {
		return 0, err
	}
	b := s.buffer()
	if b != nil {
		if err := b.FlushWrites(); err != nil {
			return 0, err
		}
	}
	pos, err := s.RawPos()
	if err != nil {
		return 0, err
	}
	if b != nil {
		pos -= int64(b.Unread())
	}
	return pos, nil
}

// SetPos 定位到绝对偏移 off。
func (s *Stream) SetPos(off int64) error {
	_, err := s.Seek(off, io.SeekStart)
	return err
}

// Rewind 定位到开头。
func (s *Stream) Rewind() error {
	return s.SetPos(0)
}

// WithSeek 定位后执行 fn，再回到原来的逻辑位置，fn 返回错误或 panic 时也一样。
func (s *Stream) WithSeek(offset int64, whence int, fn func() error) (err error) {
	orig, err := s.Pos()
	if err != nil {
		return err
	}
	if _, err := s.Seek(offset, whence); err != nil {
		return err
	}
	defer func() {
		if _, serr := s.Seek(orig, io.SeekStart); serr != nil {
			err = errors.Join(err, serr)
		}
	}()
	return fn()
}
