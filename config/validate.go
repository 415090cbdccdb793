package config

import (
	"errors"
	"fmt"
	"strings"
)

// Validate checks configuration correctness.
// It MUST NOT mutate configuration.
func Validate(cfg *Config) error {
	if cfg == nil {
		return errors.New("config: nil")
	}
	s := cfg.Serial

	if strings.TrimSpace(s.Device) == "" {
		return errors.New("serial: device is required")
	}

	switch strings.ToLower(strings.TrimSpace(s.Backend)) {
	case "", BackendTTY, BackendBugst:
	default:
		return fmt.Errorf("serial: unknown backend %q", s.Backend)
	}

	switch s.DataBits {
	case 0, 7, 8:
	default:
		return fmt.Errorf("serial: data_bits must be 7 or 8, got %d", s.DataBits)
	}

	switch s.StopBits {
	case 0, 1, 2:
	default:
		return fmt.Errorf("serial: stop_bits must be 1 or 2, got %d", s.StopBits)
	}

	switch strings.ToLower(strings.TrimSpace(s.Parity)) {
	case "", "none", "odd", "even":
	default:
		return fmt.Errorf("serial: parity must be none, odd or even, got %q", s.Parity)
	}

	t := s.Timeouts
	for _, f := range []struct {
		name string
		v    int
	}{
		{"read_ms", t.ReadMs},
		{"write_ms", t.WriteMs},
		{"latency_ms", t.LatencyMs},
		{"poll_interval_ms", t.PollIntervalMs},
		{"read_retries", t.ReadRetries},
	} {
		if f.v < 0 {
			return fmt.Errorf("serial: timeouts.%s must be >= 0, got %d", f.name, f.v)
		}
	}

	return nil
}
