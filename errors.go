package asyncserial

import (
	"errors"
	"fmt"
)

var (
	// ErrDisconnected is returned when the other end of a command or event
	// channel is gone, which means the device worker has exited.
	ErrDisconnected = errors.New("asyncserial: channel disconnected")

	// ErrClosed is returned by operations on a Port after Close.
	ErrClosed = errors.New("asyncserial: port closed")

	// ErrTimeout matches any *TimeoutError with errors.Is.
	ErrTimeout = errors.New("asyncserial: timeout")
)

// TimeoutError reports a driver read or write that moved fewer bytes than
// requested before its deadline.
type TimeoutError struct {
	Requested int
	Actual    int
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("asyncserial: timeout after %d of %d bytes", e.Actual, e.Requested)
}

func (e *TimeoutError) Is(target error) bool { return target == ErrTimeout }

// DeviceError is a failure reported by the device while the worker was
// opening, configuring or using it.
type DeviceError struct {
	Op  string
	Err error
}

func (e *DeviceError) Error() string {
	return fmt.Sprintf("asyncserial: %s: %v", e.Op, e.Err)
}

func (e *DeviceError) Unwrap() error { return e.Err }

func deviceError(op string, err error) error {
	if err == nil {
		return nil
	}
	var de *DeviceError
	if errors.As(err, &de) {
		return err
	}
	return &DeviceError{Op: op, Err: err}
}

// cloneError returns a copy of err that the caller may keep independently
// of the stored original.
func cloneError(err error) error {
	switch e := err.(type) {
	case *DeviceError:
		c := *e
		return &c
	case *TimeoutError:
		c := *e
		return &c
	default:
		return err
	}
}
