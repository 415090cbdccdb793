package config

import (
	"strings"

	asyncserial "github.com/luhtfiimanal/go-async-serial"
)

// Normalize fills in defaults for omitted settings.
// It MUST be called only after Validate().
func Normalize(cfg *Config) {
	if cfg == nil {
		return
	}
	s := &cfg.Serial

	s.Backend = strings.ToLower(strings.TrimSpace(s.Backend))
	if s.Backend == "" {
		s.Backend = BackendTTY
	}

	def := asyncserial.DefaultParams()
	if s.Baud == 0 {
		s.Baud = def.Baud
	}
	if s.DataBits == 0 {
		s.DataBits = 8
	}
	if s.StopBits == 0 {
		s.StopBits = 1
	}
	s.Parity = strings.ToLower(strings.TrimSpace(s.Parity))
	if s.Parity == "" {
		s.Parity = "none"
	}

	// Zero timeouts are left for asyncserial to default.
}
