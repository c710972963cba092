//go:build linux

package sys

import (
	"syscall"
	"time"

	"golang.org/x/sys/unix"
)

// Fdatasync flushes file data, and only the metadata needed to read it back.
func Fdatasync(fd int) error {
	return ignoringEINTR(func() error { return unix.Fdatasync(fd) })
}

// IsTerminal reports whether fd refers to a terminal.
func IsTerminal(fd int) bool {
	_, err := unix.IoctlGetTermios(fd, unix.TCGETS)
	return err == nil
}

// ModTime extracts the modification time from st.
func ModTime(st *syscall.Stat_t) time.Time {
	return time.Unix(int64(st.Mtim.Sec), int64(st.Mtim.Nsec))
}
