// Package ttydev is a Linux device backend for asyncserial built directly
// on tty file descriptors.
//
// The line is put into raw mode on open. Reads and writes poll the
// descriptor so that the timeouts set by the worker apply, the receive
// queue depth comes from TIOCINQ, and the descriptor is exposed through
// RawHandle so the notifier can poll it for incoming bytes.
//
// This package does not support Windows.
package ttydev
