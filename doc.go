// Package asyncserial turns a blocking serial device driver into a
// non-blocking byte stream for goroutine callers.
//
// Each open Port is served by a worker goroutine locked to its own OS
// thread. The worker owns the driver handle and is the only code that calls
// into it. Callers talk to it through an unbounded command queue and read
// its results from an event queue, so Write never waits on the hardware and
// Read waits only for data.
//
// Incoming bytes are detected without busy-polling. When the driver can
// signal receive readiness (a condition variable, a Windows event object,
// or a pollable tty descriptor on Linux) a notifier goroutine blocks on it
// and asks the worker to drain the device. A periodic fallback poll runs
// alongside it to catch notifications the driver drops or coalesces.
//
// Features:
//   - Ordered, fire-and-forget writes with partial-write recovery
//   - Flush as a barrier behind all earlier writes
//   - Reconfiguration that fails locally without poisoning the Port
//   - Sticky terminal errors: after a device failure every call reports it
//   - Deterministic Close that waits until the device is released
//
// Device backends live in subpackages: ttydev for Linux tty devices and
// bugst for go.bug.st/serial.
//
// Example usage:
//
//	port, err := asyncserial.Open(ctx, asyncserial.Config{
//	    Driver: ttydev.Driver{},
//	    Device: "/dev/ttyUSB0",
//	    Params: asyncserial.DefaultParams(),
//	})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer port.Close()
//
//	if _, err := port.Write([]byte("C,START\r\n")); err != nil {
//	    log.Println("Write failed:", err)
//	}
//
//	buf := make([]byte, 64)
//	n, err := port.ReadContext(ctx, buf)
//	if err != nil {
//	    log.Println("Read failed:", err)
//	}
//	fmt.Printf("Received: %q\n", buf[:n])
package asyncserial
