package asyncserial

import (
	"errors"
	"log/slog"
	"sync"
	"time"

	"go.uber.org/atomic"
)

// waitPrimitive blocks a goroutine until the driver reports receive data.
// Signal wakes a blocked Wait explicitly. Release tears the primitive down
// and is called exactly once, after the last Wait has returned.
type waitPrimitive interface {
	Wait() error
	Signal() error
	Release() error
}

var errReleased = errors.New("wait primitive released")

// registerWait binds a wait primitive to dev. A driver that offers event
// registration and rejects it fails the open. A nil primitive with a nil
// error means the device can only be served by the fallback poll.
func registerWait(dev Device) (waitPrimitive, error) {
	if r, ok := dev.(ReceiveEventRegistrar); ok {
		ev := newCondEvent()
		if err := r.RegisterReceiveEvent(ev); err != nil {
			return nil, deviceError("register receive event", err)
		}
		return ev, nil
	}
	return platformWait(dev)
}

// condEvent is an auto-reset event built on a condition variable. Drivers
// call Signal from their own threads.
type condEvent struct {
	mu       sync.Mutex
	cond     sync.Cond
	set      bool
	released bool
}

func newCondEvent() *condEvent {
	e := &condEvent{}
	e.cond.L = &e.mu
	return e
}

func (e *condEvent) Signal() error {
	e.mu.Lock()
	e.set = true
	e.cond.Signal()
	e.mu.Unlock()
	return nil
}

func (e *condEvent) Wait() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	for !e.set && !e.released {
		e.cond.Wait()
	}
	if e.released {
		return errReleased
	}
	e.set = false
	return nil
}

func (e *condEvent) Release() error {
	e.mu.Lock()
	e.released = true
	e.cond.Broadcast()
	e.mu.Unlock()
	return nil
}

// notifier turns receive events and a fallback ticker into poll-read
// commands for the worker.
type notifier struct {
	cmds     *queue[command]
	wait     waitPrimitive
	interval time.Duration
	log      *slog.Logger

	cancel atomic.Bool
	done   chan struct{}
	rearmC chan struct{}

	mu       sync.Mutex // orders stop's Signal against Release
	released bool

	wg sync.WaitGroup
}

func startNotifier(cmds *queue[command], wait waitPrimitive, interval time.Duration, log *slog.Logger) *notifier {
	n := &notifier{
		cmds:     cmds,
		wait:     wait,
		interval: interval,
		log:      log,
		done:     make(chan struct{}),
		rearmC:   make(chan struct{}, 1),
	}
	if wait != nil {
		n.wg.Add(1)
		go n.waitLoop()
	} else {
		log.Debug("no receive event available, using fallback poll only")
	}
	n.wg.Add(1)
	go n.fallbackLoop()
	return n
}

func (n *notifier) waitLoop() {
	defer n.wg.Done()
	defer n.release()
	for {
		err := n.wait.Wait()
		if n.cancel.Load() {
			return
		}
		if err != nil {
			n.log.Debug("receive wait failed, fallback poll continues", "err", err)
			return
		}
		if n.cmds.Send(pollReadCommand) != nil {
			return
		}
		// Level-triggered primitives keep firing until the worker has
		// drained the device, so wait for it before blocking again.
		select {
		case <-n.rearmC:
		case <-n.done:
			return
		}
	}
}

func (n *notifier) fallbackLoop() {
	defer n.wg.Done()
	t := time.NewTicker(n.interval)
	defer t.Stop()
	for {
		select {
		case <-n.done:
			return
		case <-t.C:
		}
		if n.cancel.Load() {
			return
		}
		if n.cmds.Send(pollReadCommand) != nil {
			return
		}
	}
}

func (n *notifier) release() {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.released {
		return
	}
	n.released = true
	if err := n.wait.Release(); err != nil {
		n.log.Debug("releasing wait primitive", "err", err)
	}
	n.log.Debug("notifier wait loop exited")
}

// rearm tells the wait loop that a poll-read has been handled.
func (n *notifier) rearm() {
	select {
	case n.rearmC <- struct{}{}:
	default:
	}
}

// stop sets the cancellation flag, wakes the wait loop through its
// primitive and waits for both loops to exit. Calls after the first
// return immediately.
func (n *notifier) stop() {
	if !n.cancel.CompareAndSwap(false, true) {
		return
	}
	close(n.done)
	n.mu.Lock()
	if n.wait != nil && !n.released {
		if err := n.wait.Signal(); err != nil {
			n.log.Debug("signalling wait primitive", "err", err)
		}
	}
	n.mu.Unlock()
	n.wg.Wait()
}
