//go:build linux || darwin

package poll

import "golang.org/x/sys/unix"

type pollFd = unix.PollFd

const (
	pollEventRead  = unix.POLLIN | unix.POLLPRI
	pollEventWrite = unix.POLLOUT
	pollEventError = unix.POLLERR | unix.POLLHUP | unix.POLLNVAL
)

func poll(fds []pollFd, timeout int) (int, error) {
	for {
		n, err := unix.Poll(fds, timeout)
		if err != unix.EINTR {
			return n, err
		}
	}
}
