package asyncserial

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

var errFake = errors.New("fake driver failure")

// fakeDevice is a scripted Device. All fields are guarded by mu.
type fakeDevice struct {
	mu sync.Mutex

	rx     []byte
	writes [][]byte

	// writeScript holds, per Write call, how many bytes to accept before
	// reporting a timeout. Calls beyond the script accept everything.
	writeScript  []int
	writeErr     error
	queueErr     error
	readTimeouts int // ReadExact calls that time out before delivering
	configureErr error
	configs      []SerialParams

	closeCount     int
	usedAfterClose bool
}

func (f *fakeDevice) use() {
	if f.closeCount > 0 {
		f.usedAfterClose = true
	}
}

func (f *fakeDevice) SetTimeouts(read, write time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.use()
	return nil
}

func (f *fakeDevice) SetLatencyTimer(d time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.use()
	return nil
}

func (f *fakeDevice) Configure(p SerialParams) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.use()
	if f.configureErr != nil {
		return f.configureErr
	}
	f.configs = append(f.configs, p)
	return nil
}

func (f *fakeDevice) Write(p []byte) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.use()
	f.writes = append(f.writes, append([]byte(nil), p...))
	if f.writeErr != nil {
		return 0, f.writeErr
	}
	if len(f.writeScript) > 0 {
		k := f.writeScript[0]
		f.writeScript = f.writeScript[1:]
		if k < len(p) {
			return k, &TimeoutError{Requested: len(p), Actual: k}
		}
	}
	return len(p), nil
}

func (f *fakeDevice) ReadExact(p []byte) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.use()
	if f.readTimeouts > 0 {
		f.readTimeouts--
		return 0, &TimeoutError{Requested: len(p), Actual: 0}
	}
	n := copy(p, f.rx)
	f.rx = f.rx[n:]
	if n < len(p) {
		return n, &TimeoutError{Requested: len(p), Actual: n}
	}
	return n, nil
}

func (f *fakeDevice) QueuedReceiveCount() (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.use()
	if f.queueErr != nil {
		return 0, f.queueErr
	}
	return len(f.rx), nil
}

func (f *fakeDevice) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closeCount++
	return nil
}

func (f *fakeDevice) push(b ...byte) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rx = append(f.rx, b...)
}

func (f *fakeDevice) set(fn func(f *fakeDevice)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	fn(f)
}

func (f *fakeDevice) written() [][]byte {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([][]byte, len(f.writes))
	copy(out, f.writes)
	return out
}

func (f *fakeDevice) closes() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closeCount
}

// eventDevice adds driver-side receive notification to fakeDevice.
type eventDevice struct {
	*fakeDevice

	regMu       sync.Mutex
	signaler    Signaler
	registerErr error
}

func (e *eventDevice) RegisterReceiveEvent(s Signaler) error {
	e.regMu.Lock()
	defer e.regMu.Unlock()
	if e.registerErr != nil {
		return e.registerErr
	}
	e.signaler = s
	return nil
}

// arrive queues bytes and fires the receive event as a driver would.
func (e *eventDevice) arrive(b ...byte) {
	e.push(b...)
	e.regMu.Lock()
	s := e.signaler
	e.regMu.Unlock()
	if s != nil {
		_ = s.Signal()
	}
}

type fakeDriver struct {
	dev     Device
	openErr error
	infos   []DeviceInfo

	mu     sync.Mutex
	opened []string
}

func (d *fakeDriver) Open(identifier string) (Device, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.opened = append(d.opened, identifier)
	if d.openErr != nil {
		return nil, d.openErr
	}
	return d.dev, nil
}

func (d *fakeDriver) List() ([]DeviceInfo, error) {
	return d.infos, nil
}

// openFake opens a Port on dev. A PollInterval of zero in cfg selects an
// interval long enough that the fallback never fires during a test.
func openFake(t *testing.T, dev Device, cfg Config) *Port {
	t.Helper()
	cfg.Driver = &fakeDriver{dev: dev}
	cfg.Device = "FT0001"
	cfg.Params = DefaultParams()
	if cfg.PollInterval == 0 {
		cfg.PollInterval = time.Hour
	}
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	p, err := Open(ctx, cfg)
	require.NoError(t, err)
	t.Cleanup(func() { p.Close() })
	return p
}

// readN reads exactly n bytes or fails the test after a second.
func readN(t *testing.T, p *Port, n int) []byte {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	buf := make([]byte, n)
	got := 0
	for got < n {
		m, err := p.ReadContext(ctx, buf[got:])
		require.NoError(t, err)
		got += m
	}
	return buf
}
