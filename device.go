package asyncserial

import (
	"context"
	"time"
)

// Device is a blocking driver handle. After Open returns, only the worker
// goroutine calls into it.
//
// Write and ReadExact report a deadline expiry as a *TimeoutError carrying
// the number of bytes actually moved; any other error is a device status
// error.
type Device interface {
	SetTimeouts(read, write time.Duration) error
	SetLatencyTimer(d time.Duration) error
	Configure(p SerialParams) error
	Write(p []byte) (int, error)
	ReadExact(p []byte) (int, error)
	QueuedReceiveCount() (int, error)
	Close() error
}

// HandleDevice is a Device backed by an OS handle that a platform wait
// primitive can block on directly, such as a tty file descriptor.
type HandleDevice interface {
	Device
	RawHandle() uintptr
}

// Signaler is woken by a driver when receive data becomes available.
type Signaler interface {
	Signal() error
}

// ReceiveEventRegistrar is implemented by devices whose driver signals a
// condition variable when bytes arrive.
type ReceiveEventRegistrar interface {
	RegisterReceiveEvent(s Signaler) error
}

// HandleEventRegistrar is implemented by devices whose driver sets an OS
// event object when bytes arrive. The event handle is owned by the caller.
type HandleEventRegistrar interface {
	RegisterReceiveHandle(event uintptr) error
}

// DeviceInfo describes a connected device as reported by a Driver.
type DeviceInfo struct {
	SerialNumber string
	Description  string
	Path         string
	VID          string
	PID          string
	IsUSB        bool
}

// Driver opens devices by identifier and enumerates connected ones.
type Driver interface {
	Open(identifier string) (Device, error)
	List() ([]DeviceInfo, error)
}

// List enumerates devices on a separate goroutine so a slow driver never
// holds up the caller past ctx.
func List(ctx context.Context, drv Driver) ([]DeviceInfo, error) {
	type result struct {
		infos []DeviceInfo
		err   error
	}
	ch := make(chan result, 1)
	go func() {
		infos, err := drv.List()
		ch <- result{infos, err}
	}()
	select {
	case r := <-ch:
		if r.err != nil {
			return nil, deviceError("list devices", r.err)
		}
		return r.infos, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}
