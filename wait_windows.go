//go:build windows

package asyncserial

import (
	"fmt"

	"golang.org/x/sys/windows"
)

// winEvent is an auto-reset event object the driver sets on receive.
type winEvent struct {
	h windows.Handle
}

func platformWait(dev Device) (waitPrimitive, error) {
	r, ok := dev.(HandleEventRegistrar)
	if !ok {
		return nil, nil
	}
	// Created signalled so the first pass polls straight away.
	h, err := windows.CreateEvent(nil, 0, 1, nil)
	if err != nil {
		return nil, fmt.Errorf("create event: %w", err)
	}
	if err := r.RegisterReceiveHandle(uintptr(h)); err != nil {
		windows.CloseHandle(h)
		return nil, deviceError("register receive event", err)
	}
	return &winEvent{h: h}, nil
}

func (e *winEvent) Wait() error {
	ev, err := windows.WaitForSingleObject(e.h, windows.INFINITE)
	if err != nil {
		return fmt.Errorf("wait: %w", err)
	}
	if ev != windows.WAIT_OBJECT_0 {
		return fmt.Errorf("wait: unexpected result %#x", ev)
	}
	return nil
}

func (e *winEvent) Signal() error {
	return windows.SetEvent(e.h)
}

func (e *winEvent) Release() error {
	return windows.CloseHandle(e.h)
}
