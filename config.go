package asyncserial

import (
	"errors"
	"log/slog"
	"time"
)

// Values used for zero durations in Config.
const (
	DefaultReadTimeout  = 100 * time.Millisecond
	DefaultWriteTimeout = 100 * time.Millisecond
	DefaultLatencyTimer = 2 * time.Millisecond
	DefaultPollInterval = 20 * time.Millisecond
)

// Config holds the parameters for opening a Port.
type Config struct {
	Driver Driver
	Device string // identifier passed to Driver.Open
	Params SerialParams

	ReadTimeout  time.Duration // driver read deadline
	WriteTimeout time.Duration // driver write deadline
	LatencyTimer time.Duration
	// PollInterval is the period of the fallback poll that catches missed
	// receive notifications.
	PollInterval time.Duration
	// ReadRetries is how many times a read that timed out after the device
	// reported queued bytes is retried before the worker gives up.
	ReadRetries int

	Logger *slog.Logger
}

func (c Config) withDefaults() Config {
	if c.ReadTimeout <= 0 {
		c.ReadTimeout = DefaultReadTimeout
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = DefaultWriteTimeout
	}
	if c.LatencyTimer <= 0 {
		c.LatencyTimer = DefaultLatencyTimer
	}
	if c.PollInterval <= 0 {
		c.PollInterval = DefaultPollInterval
	}
	if c.ReadRetries < 0 {
		c.ReadRetries = 0
	}
	if c.Logger == nil {
		c.Logger = slog.New(slog.DiscardHandler)
	}
	return c
}

func (c Config) validate() error {
	if c.Driver == nil {
		return errors.New("asyncserial: driver required")
	}
	if c.Device == "" {
		return errors.New("asyncserial: device identifier required")
	}
	return nil
}
