//go:build darwin

package sys

import (
	"syscall"
	"time"

	"golang.org/x/sys/unix"
)

// Fdatasync has no data-only variant on darwin; a full fsync is issued.
func Fdatasync(fd int) error {
	return Fsync(fd)
}

// IsTerminal reports whether fd refers to a terminal.
func IsTerminal(fd int) bool {
	_, err := unix.IoctlGetTermios(fd, unix.TIOCGETA)
	return err == nil
}

// ModTime extracts the modification time from st.
func ModTime(st *syscall.Stat_t) time.Time {
	return time.Unix(int64(st.Mtimespec.Sec), int64(st.Mtimespec.Nsec))
}
