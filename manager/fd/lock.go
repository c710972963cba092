package fd

import (
	"errors"

	"github.com/OpenListTeam/fdstream/internal/sys"
)

// LockShared 获取共享的建议锁。blocking 未设置时返回 ErrLockUnavailable，不等待。
func (s *Stream) LockShared(blocking bool) error {
	return s.flock("lock shared", sys.LockShared, blocking)
}

// LockExclusive 获取独占的建议锁。blocking 未设置时返回 ErrLockUnavailable，不等待。
func (s *Stream) LockExclusive(blocking bool) error {
	return s.flock("lock exclusive", sys.LockExclusive, blocking)
}

// Unlock 释放建议锁。
func (s *Stream) Unlock() error {
	return s.flock("unlock", sys.LockUnlock, true)
}

// WithLockShared 在共享锁下执行 fn，之后释放锁，fn 失败或 panic 时也会释放。
func (s *Stream) WithLockShared(blocking bool, fn func() error) error {
	if err := s.LockShared(blocking); err != nil {
		return err
	}
	return s.withUnlock(fn)
}

// WithLockExclusive 在独占锁下执行 fn，之后释放锁，fn 失败或 panic 时也会释放。
func (s *Stream) WithLockExclusive(blocking bool, fn func() error) error {
	if err := s.LockExclusive(blocking); err != nil {
		return err
	}
	return s.withUnlock(fn)
}

func (s *Stream) withUnlock(fn func() error) (err error) {
	defer func() {
		if uerr := s.Unlock(); uerr != nil {
			err = errors.Join(err, uerr)
		}
	}()
	return fn()
}

func (s *Stream) flock(op string, how int, blocking bool) error {
	if err := s.checkOpen(op); err != nil {
		return err
	}
	if !blocking {
		how |= sys.LockNonblock
	}
	fd := s.h.fd()
	if err := sys.Flock(fd, how); err != nil {
		if sys.IsWouldBlock(err) {
			return opError(op, ErrLockUnavailable)
		}
		return newIOError(op, fd, err)
	}
	return nil
}
