// Package bugst is a portable device backend for asyncserial built on
// go.bug.st/serial. Devices can be opened by port name or by the serial
// number of a USB adapter.
//
// The library has no receive notification, so ports opened here are served
// by the notifier's fallback poll.
package bugst

import (
	"errors"
	"fmt"
	"time"

	"go.bug.st/serial"
	"go.bug.st/serial/enumerator"

	asyncserial "github.com/luhtfiimanal/go-async-serial"
)

const probeSize = 4096

type portHandle interface {
	SetMode(mode *serial.Mode) error
	SetReadTimeout(t time.Duration) error
	Read(p []byte) (int, error)
	Write(p []byte) (int, error)
	Close() error
}

// allow tests to override external dependencies
var (
	openPort  = func(name string, mode *serial.Mode) (portHandle, error) { return serial.Open(name, mode) }
	listPorts = enumerator.GetDetailedPortsList
)

// Driver enumerates and opens ports through go.bug.st/serial.
type Driver struct{}

// List reports every port the enumerator finds.
func (Driver) List() ([]asyncserial.DeviceInfo, error) {
	ports, err := listPorts()
	if err != nil {
		return nil, err
	}
	infos := make([]asyncserial.DeviceInfo, 0, len(ports))
	for _, p := range ports {
		infos = append(infos, asyncserial.DeviceInfo{
			SerialNumber: p.SerialNumber,
			Description:  p.Product,
			Path:         p.Name,
			VID:          p.VID,
			PID:          p.PID,
			IsUSB:        p.IsUSB,
		})
	}
	return infos, nil
}

// Open opens identifier, which is either the serial number of a connected
// USB adapter or a port name.
func (d Driver) Open(identifier string) (asyncserial.Device, error) {
	name := identifier
	if ports, err := listPorts(); err == nil {
		for _, p := range ports {
			if p.IsUSB && p.SerialNumber != "" && p.SerialNumber == identifier {
				name = p.Name
				break
			}
		}
	}
	return Open(name)
}

// Device wraps a go.bug.st/serial port. Bytes pulled in while measuring the
// receive queue are staged until ReadExact hands them out.
type Device struct {
	port   portHandle
	staged []byte

	readTimeout    time.Duration
	currentTimeout time.Duration
	timeoutSet     bool
}

// Open opens the port named name at 115200 8N1.
func Open(name string) (*Device, error) {
	p, err := openPort(name, toMode(asyncserial.DefaultParams()))
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", name, err)
	}
	return &Device{
		port:        p,
		readTimeout: asyncserial.DefaultReadTimeout,
	}, nil
}

// SetTimeouts sets the read timeout used by ReadExact.
func (d *Device) SetTimeouts(read, write time.Duration) error {
	// go.bug.st/serial writes block until done; only the read side applies.
	d.readTimeout = read
	return nil
}

// SetLatencyTimer is a no-op; the library exposes no latency control.
func (d *Device) SetLatencyTimer(time.Duration) error {
	return nil
}

// Configure switches the port to the mode matching p.
func (d *Device) Configure(p asyncserial.SerialParams) error {
	mode := toMode(p)
	if mode == nil {
		return fmt.Errorf("unsupported parameters %s", p)
	}
	return d.port.SetMode(mode)
}

// Write blocks until p has been written.
func (d *Device) Write(p []byte) (int, error) {
	return d.port.Write(p)
}

// ReadExact fills p from staged bytes first, then from the port. A read
// that comes back empty ends with a TimeoutError carrying the bytes so far.
func (d *Device) ReadExact(p []byte) (int, error) {
	n := copy(p, d.staged)
	d.staged = d.staged[n:]
	if n == len(p) {
		return n, nil
	}
	if err := d.setReadTimeout(d.readTimeout); err != nil {
		return n, err
	}
	for n < len(p) {
		m, err := d.port.Read(p[n:])
		n += m
		if err != nil {
			return n, err
		}
		if m == 0 {
			return n, &asyncserial.TimeoutError{Requested: len(p), Actual: n}
		}
	}
	return n, nil
}

// QueuedReceiveCount drains whatever the port has ready without waiting
// and reports the number of staged bytes.
func (d *Device) QueuedReceiveCount() (int, error) {
	if err := d.setReadTimeout(0); err != nil {
		return 0, err
	}
	buf := make([]byte, probeSize)
	n, err := d.port.Read(buf)
	if n > 0 {
		d.staged = append(d.staged, buf[:n]...)
	}
	if err != nil {
		var pe *serial.PortError
		if errors.As(err, &pe) && pe.Code() == serial.PortClosed && len(d.staged) > 0 {
			return len(d.staged), nil
		}
		return len(d.staged), err
	}
	return len(d.staged), nil
}

// Close closes the underlying port.
func (d *Device) Close() error {
	return d.port.Close()
}

func (d *Device) setReadTimeout(t time.Duration) error {
	if d.timeoutSet && d.currentTimeout == t {
		return nil
	}
	if err := d.port.SetReadTimeout(t); err != nil {
		return err
	}
	d.currentTimeout = t
	d.timeoutSet = true
	return nil
}

func toMode(p asyncserial.SerialParams) *serial.Mode {
	mode := &serial.Mode{BaudRate: int(p.Baud)}
	switch p.DataBits {
	case asyncserial.DataBits7:
		mode.DataBits = 7
	case asyncserial.DataBits8:
		mode.DataBits = 8
	default:
		return nil
	}
	switch p.StopBits {
	case asyncserial.StopBits1:
		mode.StopBits = serial.OneStopBit
	case asyncserial.StopBits2:
		mode.StopBits = serial.TwoStopBits
	default:
		return nil
	}
	switch p.Parity {
	case asyncserial.ParityNone:
		mode.Parity = serial.NoParity
	case asyncserial.ParityOdd:
		mode.Parity = serial.OddParity
	case asyncserial.ParityEven:
		mode.Parity = serial.EvenParity
	default:
		return nil
	}
	return mode
}
