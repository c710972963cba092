// Package buffer 在 fd.Stream 之上提供预读和写合并。
// 通过 fd.Buffer 接口，底层 stream 的 Seek、Pos、Close 与 Reopen 和缓冲数据保持一致。
package buffer

import (
	"errors"
	"fmt"
	"io"
	"syscall"

	"github.com/OpenListTeam/fdstream/common/bytespool"
	"github.com/OpenListTeam/fdstream/manager/fd"
)

// DefaultSize 是未指定 WithSize 或 WithConfig 时的缓冲区大小。
const DefaultSize = 8192

var (
	_ fd.Buffer          = (*Stream)(nil)
	_ io.ReadWriteSeeker = (*Stream)(nil)
	_ io.ByteReader      = (*Stream)(nil)
	_ io.ByteWriter      = (*Stream)(nil)
	_ io.StringWriter    = (*Stream)(nil)
	_ io.Closer          = (*Stream)(nil)
)

// Stream 为 fd.Stream 提供缓冲。和 bufio 一样不支持并发使用，
// 需要并发访问时通过 Unwrap 使用无缓冲的 stream。
type Stream struct {
	s    *fd.Stream
	size int

	rbuf []byte
	r, w int

	wbuf []byte
	wn   int

	unseekable bool
}

type options struct {
	size int
}

// Option 配置 New。
type Option func(*options)

// WithSize 设置缓冲区大小，非正数会被忽略。
func WithSize(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.size = n
		}
	}
}

// WithConfig 从 cfg 读取缓冲区大小。
func WithConfig(cfg *fd.Config) Option {
	return func(o *options) {
		if cfg != nil && cfg.BufferSize > 0 {
			o.size = cfg.BufferSize
		}
	}
}

// New 包装 s 并把缓冲区挂到它上面。
func New(s *fd.Stream, opts ...Option) *Stream {
	o := &options{size: DefaultSize}
	for _, opt := range opts {
		opt(o)
	}
	b := &Stream{s: s, size: o.size}
	s.AttachBuffer(b)
	return b
}

// Unwrap 返回底层 stream。
func (b *Stream) Unwrap() *fd.Stream {
	return b.s
}

// Size 返回缓冲区大小。
func (b *Stream) Size() int {
	return b.size
}

func closedError(op string) error {
	return fmt.Errorf("%s: %w", op, fd.ErrClosed)
}

// FlushWrites 写出待写数据。部分写入后剩余数据仍留在缓冲区。
func (b *Stream) FlushWrites() error {
	if b.wn == 0 {
		return nil
	}
	n, err := b.s.Write(b.wbuf[:b.wn])
	if err != nil {
		copy(b.wbuf, b.wbuf[n:b.wn])
		b.wn -= n
		return err
	}
	b.wn = 0
	return nil
}

// Unread 返回已预读但尚未交给调用方的字节数。
func (b *Stream) Unread() int {
	return b.w - b.r
}

// DiscardUnread 丢弃预读数据。
func (b *Stream) DiscardUnread() {
	b.r, b.w = 0, 0
}

// Buffered 返回已写入但尚未刷新的字节数。
func (b *Stream) Buffered() int {
	return b.wn
}

func (b *Stream) fill() error {
	if b.rbuf == nil {
		b.rbuf = bytespool.Alloc(b.size)
	}
	n, err := b.s.Read(b.rbuf[:b.size])
	b.r, b.w = 0, n
	return err
}

func (b *Stream) Read(p []byte) (int, error) {
	if b.s.Closed() {
		return 0, closedError("read")
	}
	if len(p) == 0 {
		return 0, nil
	}
	if b.r < b.w {
		n := copy(p, b.rbuf[b.r:b.w])
		b.r += n
		return n, nil
	}
	if err := b.FlushWrites(); err != nil {
		return 0, err
	}
	if len(p) >= b.size {
		return b.s.Read(p)
	}
	if err := b.fill(); err != nil {
		return 0, err
	}
	n := copy(p, b.rbuf[b.r:b.w])
	b.r += n
	return n, nil
}

func (b *Stream) ReadByte() (byte, error) {
	if b.s.Closed() {
		return 0, closedError("read")
	}
	if b.r == b.w {
		if err := b.FlushWrites(); err != nil {
			return 0, err
		}
		if err := b.fill(); err != nil {
			return 0, err
		}
	}
	c := b.rbuf[b.r]
	b.r++
	return c, nil
}

// ReadString 读到第一个 delim 为止，返回包含 delim 在内的数据。
// 先遇到 EOF 时返回已读数据和 io.EOF。
func (b *Stream) ReadString(delim byte) (string, error) {
	if b.s.Closed() {
		return "", closedError("read")
	}
	var out []byte
	for {
		for i := b.r; i < b.w; i++ {
			if b.rbuf[i] == delim {
				out = append(out, b.rbuf[b.r:i+1]...)
				b.r = i + 1
				return string(out), nil
			}
		}
		out = append(out, b.rbuf[b.r:b.w]...)
		b.r = b.w
		if err := b.FlushWrites(); err != nil {
			return string(out), err
		}
		if err := b.fill(); err != nil {
			return string(out), err
		}
	}
}

// realign 在写入前把系统位置回退到预读之前，让数据落在调用方认为的位置。
// 不可 seek 的 stream 读写互不影响。
func (b *Stream) realign() error {
	if b.r == b.w || b.unseekable {
		return nil
	}
	_, err := b.s.Seek(0, io.SeekCurrent)
	if errors.Is(err, syscall.ESPIPE) {
		b.unseekable = true
		return nil
	}
	return err
}

func (b *Stream) Write(p []byte) (int, error) {
	if b.s.Closed() {
		return 0, closedError("write")
	}
	if err := b.realign(); err != nil {
		return 0, err
	}
	if b.wn+len(p) > b.size {
		if err := b.FlushWrites(); err != nil {
			return 0, err
		}
	}
	if len(p) >= b.size {
		return b.s.Write(p)
	}
	if b.wbuf == nil {
		b.wbuf = bytespool.Alloc(b.size)
	}
	n := copy(b.wbuf[b.wn:b.size], p)
	b.wn += n
	return n, nil
}

func (b *Stream) WriteByte(c byte) error {
	_, err := b.Write([]byte{c})
	return err
}

func (b *Stream) WriteString(s string) (int, error) {
	return b.Write([]byte(s))
}

// Flush 写出待写数据并刷新底层 stream。
func (b *Stream) Flush() error {
	if b.s.Closed() {
		return closedError("flush")
	}
	if err := b.FlushWrites(); err != nil {
		return err
	}
	return b.s.Flush()
}

// Seek 重新定位 stream。io.SeekCurrent 相对逻辑位置计算，不受预读影响。
func (b *Stream) Seek(offset int64, whence int) (int64, error) {
	return b.s.Seek(offset, whence)
}

// Pos 返回逻辑位置。
func (b *Stream) Pos() (int64, error) {
	return b.s.Pos()
}

// Rewind 定位到开头。
func (b *Stream) Rewind() error {
	return b.s.Rewind()
}

// WithSeek 定位后执行 fn，再恢复逻辑位置。
func (b *Stream) WithSeek(offset int64, whence int, fn func() error) error {
	return b.s.WithSeek(offset, whence, fn)
}

// Close 刷新缓冲、关闭底层 stream 并把缓冲区归还到池中。
// 即使刷新失败也会释放描述符。
func (b *Stream) Close() error {
	if b.s.Closed() {
		return nil
	}
	err := b.s.Close()
	b.s.AttachBuffer(nil)
	b.release()
	return err
}

func (b *Stream) release() {
	if b.rbuf != nil {
		bytespool.Free(b.rbuf)
		b.rbuf = nil
	}
	if b.wbuf != nil {
		bytespool.Free(b.wbuf)
		b.wbuf = nil
	}
	b.r, b.w, b.wn = 0, 0, 0
}
