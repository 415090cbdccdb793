package asyncserial

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"runtime"
	"time"
)

// worker owns the device. It is the only goroutine that calls into it once
// the open has succeeded.
type worker struct {
	dev      Device
	cmds     *queue[command]
	events   *queue[event]
	notifier *notifier
	retries  int
	log      *slog.Logger
}

// runWorker opens and configures the device, reports the outcome on
// opened, and on success serves commands until cancel, a closed command
// queue or a fatal device error. shutdown is closed once the device has
// been released.
func runWorker(cfg Config, opened chan<- error, cmds *queue[command], events *queue[event], shutdown chan<- struct{}) {
	// Driver calls block; keep them on a thread of their own.
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	log := cfg.Logger.With("device", cfg.Device)

	dev, err := openDevice(cfg)
	if err != nil {
		log.Debug("open failed", "err", err)
		cmds.Close()
		opened <- err
		return
	}

	log.Debug("device configuration succeeded, starting notifier")
	wait, err := registerWait(dev)
	if err != nil {
		log.Debug("receive event registration failed", "err", err)
		_ = dev.Close()
		cmds.Close()
		opened <- err
		return
	}

	w := &worker{
		dev:      dev,
		cmds:     cmds,
		events:   events,
		notifier: startNotifier(cmds, wait, cfg.PollInterval, log),
		retries:  cfg.ReadRetries,
		log:      log,
	}
	opened <- nil

	err = w.loop()
	w.shutdown(err)
	close(shutdown)
	log.Debug("worker exited")
}

func openDevice(cfg Config) (Device, error) {
	dev, err := cfg.Driver.Open(cfg.Device)
	if err != nil {
		return nil, deviceError("open", err)
	}
	if err := dev.SetTimeouts(cfg.ReadTimeout, cfg.WriteTimeout); err != nil {
		_ = dev.Close()
		return nil, deviceError("set timeouts", err)
	}
	if err := dev.SetLatencyTimer(cfg.LatencyTimer); err != nil {
		_ = dev.Close()
		return nil, deviceError("set latency timer", err)
	}
	if err := dev.Configure(cfg.Params); err != nil {
		_ = dev.Close()
		return nil, deviceError("configure", err)
	}
	return dev, nil
}

func (w *worker) loop() error {
	for {
		cmd, ok := w.cmds.Recv()
		if !ok {
			return nil
		}
		switch cmd.kind {
		case cmdCancel:
			w.log.Debug("cancelling run loop")
			return nil
		case cmdPollRead:
			data, err := w.pollRead()
			w.notifier.rearm()
			if err != nil {
				return err
			}
			if data != nil && w.events.Send(event{data: data}) != nil {
				w.log.Debug("event receiver gone, stopping")
				return nil
			}
		case cmdSend:
			if err := w.send(cmd.data); err != nil {
				return err
			}
		case cmdSetParams:
			w.log.Debug("applying new params", "params", cmd.params.String())
			err := deviceError("configure", w.dev.Configure(cmd.params))
			if err != nil {
				w.log.Debug("applying params failed", "err", err)
			}
			cmd.answer(err)
		case cmdFlush:
			// Every earlier send has been written by now.
			cmd.answer(nil)
		}
	}
}

func (w *worker) pollRead() ([]byte, error) {
	n, err := w.dev.QueuedReceiveCount()
	if err != nil {
		return nil, deviceError("queue status", err)
	}
	if n == 0 {
		return nil, nil
	}
	w.log.Debug("reading queued bytes", "n", n)
	buf := make([]byte, n)
	got := 0
	for attempt := 0; ; attempt++ {
		_, err := w.dev.ReadExact(buf[got:])
		if err == nil {
			return buf, nil
		}
		var te *TimeoutError
		if !errors.As(err, &te) {
			return nil, deviceError("read", err)
		}
		got += te.Actual
		if got >= n {
			return buf, nil
		}
		if attempt >= w.retries {
			return nil, deviceError("read", fmt.Errorf("emptying receive queue: %w", err))
		}
		w.log.Debug("read timeout, retrying", "got", got, "want", n)
		time.Sleep(time.Duration(attempt+1) * time.Millisecond)
	}
}

// send writes data in full, resending the unsent suffix after each
// partial write.
func (w *worker) send(data []byte) error {
	w.log.Debug("sending data", "len", len(data))
	for start := 0; start < len(data); {
		n, err := w.dev.Write(data[start:])
		var te *TimeoutError
		switch {
		case err == nil:
			if n <= 0 {
				return deviceError("write", io.ErrShortWrite)
			}
			start += n
		case errors.As(err, &te):
			w.log.Debug("send timeout", "sent", te.Actual, "remaining", len(data)-start-te.Actual)
			start += te.Actual
		default:
			w.log.Debug("send error", "err", err)
			return deviceError("write", err)
		}
	}
	return nil
}

// shutdown runs once after the loop. A loop-ending error is published
// before the command queue closes, so a caller whose send is refused can
// always find the reason. The notifier is stopped before the device is
// closed, and replies of commands still queued are answered last.
func (w *worker) shutdown(err error) {
	if err != nil {
		w.log.Debug("run loop failed", "err", err)
		_ = w.events.Send(event{err: err})
	}
	w.cmds.Close()
	w.notifier.stop()
	if cerr := w.dev.Close(); cerr != nil {
		w.log.Debug("closing device", "err", cerr)
	}
	w.events.Close()
	for {
		cmd, st := w.cmds.TryRecv()
		if st != recvOK {
			break
		}
		cmd.answer(ErrDisconnected)
	}
}
