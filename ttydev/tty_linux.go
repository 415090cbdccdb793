//go:build linux

package ttydev

import (
	"errors"
	"fmt"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"go.uber.org/atomic"
	"golang.org/x/sys/unix"

	asyncserial "github.com/luhtfiimanal/go-async-serial"
)

// ErrHangup is returned once the other end of the line has gone away and
// no received bytes are left.
var ErrHangup = errors.New("ttydev: hang-up")

// Driver opens Linux tty devices by path.
type Driver struct {
	// Patterns used by List. Defaults to USB serial adapters.
	Patterns []string
}

var defaultPatterns = []string{"/dev/ttyUSB*", "/dev/ttyACM*"}

// List returns the devices matching Patterns, sorted by path within each
// pattern.
func (d Driver) List() ([]asyncserial.DeviceInfo, error) {
	patterns := d.Patterns
	if len(patterns) == 0 {
		patterns = defaultPatterns
	}
	var infos []asyncserial.DeviceInfo
	for _, p := range patterns {
		matches, err := filepath.Glob(p)
		if err != nil {
			return nil, fmt.Errorf("glob %q: %w", p, err)
		}
		sort.Strings(matches)
		for _, m := range matches {
			infos = append(infos, asyncserial.DeviceInfo{
				Path:        m,
				Description: filepath.Base(m),
			})
		}
	}
	return infos, nil
}

// Open opens the tty at path.
func (d Driver) Open(path string) (asyncserial.Device, error) {
	return Open(path)
}

// Device is a tty in raw mode. The descriptor stays non-blocking; reads and
// writes wait with poll so the configured timeouts apply.
type Device struct {
	fd int

	readTimeout  time.Duration
	writeTimeout time.Duration

	closed    atomic.Bool
	closeOnce sync.Once
}

// Open opens path and puts the line into raw mode. Serial parameters are
// applied separately with Configure.
func Open(path string) (*Device, error) {
	fd, err := unix.Open(path, unix.O_RDWR|unix.O_NOCTTY|unix.O_NONBLOCK|unix.O_CLOEXEC, 0666)
	if err != nil {
		return nil, fmt.Errorf("open failed: %w", err)
	}

	termios, err := unix.IoctlGetTermios(fd, unix.TCGETS)
	if err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("get termios: %w", err)
	}

	// Raw mode
	termios.Iflag &^= unix.IGNBRK | unix.BRKINT | unix.PARMRK | unix.ISTRIP | unix.INLCR | unix.IGNCR | unix.ICRNL | unix.IXON
	termios.Oflag &^= unix.OPOST
	termios.Lflag &^= unix.ECHO | unix.ECHONL | unix.ICANON | unix.ISIG | unix.IEXTEN
	termios.Cflag |= unix.CREAD | unix.CLOCAL
	termios.Cc[unix.VMIN] = 1
	termios.Cc[unix.VTIME] = 0

	if err := unix.IoctlSetTermios(fd, unix.TCSETS, termios); err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("set termios: %w", err)
	}

	return &Device{
		fd:           fd,
		readTimeout:  asyncserial.DefaultReadTimeout,
		writeTimeout: asyncserial.DefaultWriteTimeout,
	}, nil
}

// SetTimeouts sets how long Write and ReadExact wait before reporting a
// TimeoutError.
func (d *Device) SetTimeouts(read, write time.Duration) error {
	d.readTimeout = read
	d.writeTimeout = write
	return nil
}

// SetLatencyTimer is a no-op; a plain tty has no latency timer.
func (d *Device) SetLatencyTimer(time.Duration) error {
	return nil
}

// Configure applies baud rate, character size, stop bits and parity.
// Rates without a termios constant are rejected.
func (d *Device) Configure(p asyncserial.SerialParams) error {
	if d.closed.Load() {
		return unix.EBADF
	}
	baud, ok := baudToUnix(p.Baud)
	if !ok {
		return fmt.Errorf("unsupported baud rate %d", p.Baud)
	}

	termios, err := unix.IoctlGetTermios(d.fd, unix.TCGETS)
	if err != nil {
		return fmt.Errorf("get termios: %w", err)
	}

	termios.Cflag &^= unix.CBAUD | unix.CSIZE | unix.CSTOPB | unix.PARENB | unix.PARODD
	termios.Cflag |= baud
	termios.Ispeed = baud
	termios.Ospeed = baud

	switch p.DataBits {
	case asyncserial.DataBits7:
		termios.Cflag |= unix.CS7
	case asyncserial.DataBits8:
		termios.Cflag |= unix.CS8
	default:
		return fmt.Errorf("unsupported data bits %v", p.DataBits)
	}

	switch p.StopBits {
	case asyncserial.StopBits1:
	case asyncserial.StopBits2:
		termios.Cflag |= unix.CSTOPB
	default:
		return fmt.Errorf("unsupported stop bits %v", p.StopBits)
	}

	switch p.Parity {
	case asyncserial.ParityNone:
	case asyncserial.ParityOdd:
		termios.Cflag |= unix.PARENB | unix.PARODD
	case asyncserial.ParityEven:
		termios.Cflag |= unix.PARENB
	default:
		return fmt.Errorf("unsupported parity %v", p.Parity)
	}

	if err := unix.IoctlSetTermios(d.fd, unix.TCSETS, termios); err != nil {
		return fmt.Errorf("set termios: %w", err)
	}
	return nil
}

// Write writes p, waiting up to the write timeout for the line to accept
// it. A deadline expiry is reported as *asyncserial.TimeoutError.
func (d *Device) Write(p []byte) (int, error) {
	deadline := time.Now().Add(d.writeTimeout)
	written := 0
	for written < len(p) {
		n, err := unix.Write(d.fd, p[written:])
		if n > 0 {
			written += n
		}
		switch {
		case err == nil:
			continue
		case errors.Is(err, unix.EINTR):
			continue
		case !errors.Is(err, unix.EAGAIN):
			return written, fmt.Errorf("write: %w", err)
		}
		ready, err := d.wait(unix.POLLOUT, deadline)
		if err != nil {
			return written, err
		}
		if !ready {
			return written, &asyncserial.TimeoutError{Requested: len(p), Actual: written}
		}
	}
	return written, nil
}

// ReadExact fills p, waiting up to the read timeout for the bytes.
func (d *Device) ReadExact(p []byte) (int, error) {
	deadline := time.Now().Add(d.readTimeout)
	got := 0
	for got < len(p) {
		n, err := unix.Read(d.fd, p[got:])
		if n > 0 {
			got += n
			continue
		}
		switch {
		case err == nil:
			// zero-length read: the line hung up
			return got, ErrHangup
		case errors.Is(err, unix.EINTR):
			continue
		case !errors.Is(err, unix.EAGAIN):
			return got, fmt.Errorf("read: %w", err)
		}
		ready, err := d.wait(unix.POLLIN, deadline)
		if err != nil {
			return got, err
		}
		if !ready {
			return got, &asyncserial.TimeoutError{Requested: len(p), Actual: got}
		}
	}
	return got, nil
}

// QueuedReceiveCount reports the bytes waiting in the input queue.
func (d *Device) QueuedReceiveCount() (int, error) {
	n, err := unix.IoctlGetInt(d.fd, unix.TIOCINQ)
	if err != nil {
		return 0, fmt.Errorf("TIOCINQ: %w", err)
	}
	if n > 0 {
		return n, nil
	}
	pfd := []unix.PollFd{{Fd: int32(d.fd), Events: unix.POLLIN}}
	if _, err := unix.Poll(pfd, 0); err != nil && !errors.Is(err, unix.EINTR) {
		return 0, fmt.Errorf("poll: %w", err)
	}
	if pfd[0].Revents&(unix.POLLHUP|unix.POLLERR|unix.POLLNVAL) != 0 {
		return 0, ErrHangup
	}
	return 0, nil
}

// RawHandle returns the file descriptor for receive-event polling.
func (d *Device) RawHandle() uintptr {
	return uintptr(d.fd)
}

// Close is safe to call multiple times; later calls are no-ops.
func (d *Device) Close() error {
	var err error
	d.closeOnce.Do(func() {
		d.closed.Store(true)
		err = unix.Close(d.fd)
	})
	return err
}

// wait polls the descriptor for events until deadline. It reports false
// when the deadline passes first.
func (d *Device) wait(events int16, deadline time.Time) (bool, error) {
	for {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return false, nil
		}
		ms := int(remaining / time.Millisecond)
		if ms == 0 {
			ms = 1
		}
		pfd := []unix.PollFd{{Fd: int32(d.fd), Events: events}}
		n, err := unix.Poll(pfd, ms)
		if errors.Is(err, unix.EINTR) {
			continue
		}
		if err != nil {
			return false, fmt.Errorf("poll: %w", err)
		}
		if n == 0 {
			continue
		}
		if pfd[0].Revents&events != 0 {
			return true, nil
		}
		if pfd[0].Revents&(unix.POLLHUP|unix.POLLERR|unix.POLLNVAL) != 0 {
			return false, ErrHangup
		}
	}
}

func baudToUnix(baud uint32) (uint32, bool) {
	switch baud {
	case 1200:
		return unix.B1200, true
	case 2400:
		return unix.B2400, true
	case 4800:
		return unix.B4800, true
	case 9600:
		return unix.B9600, true
	case 19200:
		return unix.B19200, true
	case 38400:
		return unix.B38400, true
	case 57600:
		return unix.B57600, true
	case 115200:
		return unix.B115200, true
	case 230400:
		return unix.B230400, true
	case 460800:
		return unix.B460800, true
	case 921600:
		return unix.B921600, true
	default:
		return 0, false
	}
}
