//go:build linux

package asyncserial

import (
	"errors"
	"fmt"

	"golang.org/x/sys/unix"
)

var errHangup = errors.New("device hung up")

// pollEvent waits for a file descriptor to become readable. A self-pipe
// lets Signal interrupt the poll.
type pollEvent struct {
	fd    int
	pipeR int
	pipeW int
}

func platformWait(dev Device) (waitPrimitive, error) {
	hd, ok := dev.(HandleDevice)
	if !ok {
		return nil, nil
	}
	return newPollEvent(int(hd.RawHandle()))
}

func newPollEvent(fd int) (*pollEvent, error) {
	var p [2]int
	if err := unix.Pipe2(p[:], unix.O_CLOEXEC|unix.O_NONBLOCK); err != nil {
		return nil, fmt.Errorf("pipe: %w", err)
	}
	return &pollEvent{fd: fd, pipeR: p[0], pipeW: p[1]}, nil
}

func (e *pollEvent) Wait() error {
	for {
		pfd := []unix.PollFd{
			{Fd: int32(e.fd), Events: unix.POLLIN},
			{Fd: int32(e.pipeR), Events: unix.POLLIN},
		}
		_, err := unix.Poll(pfd, -1)
		if errors.Is(err, unix.EINTR) {
			continue
		}
		if err != nil {
			return fmt.Errorf("poll: %w", err)
		}
		if pfd[1].Revents&unix.POLLIN != 0 {
			// Drain pipe
			var b [16]byte
			for {
				n, err := unix.Read(e.pipeR, b[:])
				if n <= 0 || err != nil {
					break
				}
			}
			return nil
		}
		if pfd[0].Revents&unix.POLLIN != 0 {
			return nil
		}
		if pfd[0].Revents&(unix.POLLHUP|unix.POLLERR|unix.POLLNVAL) != 0 {
			return errHangup
		}
	}
}

func (e *pollEvent) Signal() error {
	_, err := unix.Write(e.pipeW, []byte{1})
	if errors.Is(err, unix.EAGAIN) {
		// pipe already full, the waiter will wake anyway
		return nil
	}
	return err
}

func (e *pollEvent) Release() error {
	return errors.Join(unix.Close(e.pipeR), unix.Close(e.pipeW))
}
