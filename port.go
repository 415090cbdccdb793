package asyncserial

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"runtime"
	"sync"
)

// Port is a non-blocking view of a device served by a worker goroutine.
// Write never blocks on the device; Read parks the calling goroutine until
// bytes arrive. It is safe for concurrent use by multiple goroutines;
// concurrent reads are serialized.
//
// A Port that is garbage collected without Close still cancels its worker,
// but nothing waits for the device to be released. Call Close to be sure.
type Port struct {
	cmds     *queue[command]
	events   *queue[event]
	shutdown <-chan struct{}
	log      *slog.Logger

	readMu sync.Mutex // sole receiver of events

	mu  sync.Mutex
	buf bytes.Buffer // bytes received but not yet read
	err error        // sticky terminal error
}

// Open starts a worker for cfg.Device and waits until it reports that the
// device is open and configured.
func Open(ctx context.Context, cfg Config) (*Port, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	cfg = cfg.withDefaults()

	opened := make(chan error, 1)
	cmds := newQueue[command]()
	events := newQueue[event]()
	shutdown := make(chan struct{})
	go runWorker(cfg, opened, cmds, events, shutdown)

	select {
	case err := <-opened:
		if err != nil {
			return nil, err
		}
	case <-ctx.Done():
		go func() {
			if <-opened == nil {
				_ = cmds.Send(cancelCommand)
				events.Close()
			}
		}()
		return nil, ctx.Err()
	}

	p := &Port{
		cmds:     cmds,
		events:   events,
		shutdown: shutdown,
		log:      cfg.Logger,
	}
	runtime.AddCleanup(p, func(c *queue[command]) {
		_ = c.Send(cancelCommand)
	}, cmds)
	return p, nil
}

// Read implements io.Reader.
func (p *Port) Read(b []byte) (int, error) {
	return p.ReadContext(context.Background(), b)
}

// ReadContext reads buffered or newly received bytes into b, parking until
// at least one byte is available, the worker fails, or ctx is done.
func (p *Port) ReadContext(ctx context.Context, b []byte) (int, error) {
	p.readMu.Lock()
	defer p.readMu.Unlock()

	if err := p.sticky(); err != nil {
		return 0, err
	}
	if len(b) == 0 {
		return 0, nil
	}
	for {
		n := p.takeBuffered(b)
		if n == len(b) {
			return n, nil
		}
		err := p.drainEvents()
		n += p.takeBuffered(b[n:])
		if err != nil {
			return n, err
		}
		if n > 0 {
			return n, nil
		}
		select {
		case <-p.events.Ready():
		case <-ctx.Done():
			return 0, ctx.Err()
		}
	}
}

// Write queues a copy of b for transmission and returns len(b) once the
// worker has accepted it. Transmission order follows call order.
func (p *Port) Write(b []byte) (int, error) {
	p.pollEvents()
	if err := p.sticky(); err != nil {
		return 0, err
	}
	if len(b) == 0 {
		return 0, nil
	}
	if err := p.cmds.Send(command{kind: cmdSend, data: bytes.Clone(b)}); err != nil {
		return 0, p.fail(err)
	}
	return len(b), nil
}

// Flush waits until every byte written before the call has been handed
// to the device.
func (p *Port) Flush() error {
	return p.FlushContext(context.Background())
}

// FlushContext is Flush with a context bounding the wait. A cancelled
// context abandons the wait but not the flush itself.
func (p *Port) FlushContext(ctx context.Context) error {
	if err := p.sticky(); err != nil {
		return err
	}
	reply := make(chan error, 1)
	if err := p.cmds.Send(command{kind: cmdFlush, reply: reply}); err != nil {
		return p.fail(err)
	}
	select {
	case err := <-reply:
		if err != nil {
			return p.fail(err)
		}
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// SetParams reconfigures the line. Writes issued before the call go out
// with the old parameters. A rejected configuration is returned to the
// caller and leaves the Port usable.
func (p *Port) SetParams(ctx context.Context, params SerialParams) error {
	if err := p.sticky(); err != nil {
		return err
	}
	reply := make(chan error, 1)
	if err := p.cmds.Send(command{kind: cmdSetParams, params: params, reply: reply}); err != nil {
		return p.fail(err)
	}
	select {
	case err := <-reply:
		if errors.Is(err, ErrDisconnected) {
			return p.fail(err)
		}
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close implements io.Closer.
func (p *Port) Close() error {
	return p.CloseContext(context.Background())
}

// CloseContext cancels the worker and waits until it has closed the
// device. Calling it again returns once the device is released.
func (p *Port) CloseContext(ctx context.Context) error {
	p.pollEvents()
	p.mu.Lock()
	if p.err == nil {
		p.err = ErrClosed
	}
	p.mu.Unlock()

	if err := p.cmds.Send(cancelCommand); err != nil {
		p.log.Debug("cancel not delivered, worker already gone")
	}
	select {
	case <-p.shutdown:
	case <-ctx.Done():
		return ctx.Err()
	}
	p.events.Close()
	return nil
}

func (p *Port) sticky() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return cloneError(p.err)
	}
	return nil
}

// fail latches err unless a terminal error is already known, and returns a
// copy of whatever is latched. A disconnected channel means the worker is
// tearing down; its final event is published before shutdown is closed, so
// the reason is collected from the event queue first.
func (p *Port) fail(err error) error {
	if errors.Is(err, ErrDisconnected) {
		<-p.shutdown
		p.readMu.Lock()
		_ = p.drainEvents()
		p.readMu.Unlock()
	} else {
		p.pollEvents()
	}
	return p.latch(err)
}

// pollEvents drains events when no reader holds the receive side.
func (p *Port) pollEvents() {
	if !p.readMu.TryLock() {
		return
	}
	defer p.readMu.Unlock()
	_ = p.drainEvents()
}

// drainEvents moves every immediately available event into the local
// buffer. Callers hold readMu.
func (p *Port) drainEvents() error {
	for {
		ev, st := p.events.TryRecv()
		switch st {
		case recvEmpty:
			return nil
		case recvClosed:
			return p.latch(ErrDisconnected)
		}
		if ev.err != nil {
			return p.latch(ev.err)
		}
		p.mu.Lock()
		p.buf.Write(ev.data)
		p.mu.Unlock()
	}
}

func (p *Port) latch(err error) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err == nil {
		p.err = err
	}
	return cloneError(p.err)
}

func (p *Port) takeBuffered(b []byte) int {
	if len(b) == 0 {
		return 0
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	n, _ := p.buf.Read(b)
	return n
}
