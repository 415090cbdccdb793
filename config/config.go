// Package config loads the YAML description of a serial port.
package config

import (
	"bytes"
	"fmt"
	"log/slog"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	asyncserial "github.com/luhtfiimanal/go-async-serial"
)

// Config is the root of a port description file.
type Config struct {
	Serial SerialConfig `yaml:"serial"`
}

// ---- SERIAL ----

// SerialConfig names the device, the backend that opens it and the line
// settings. Zero values are filled in by Normalize.
type SerialConfig struct {
	Backend string `yaml:"backend"` // "tty" or "bugst"
	Device  string `yaml:"device"`  // path, port name or USB serial number

	Baud     uint32 `yaml:"baud"`
	DataBits int    `yaml:"data_bits"`
	StopBits int    `yaml:"stop_bits"`
	Parity   string `yaml:"parity"` // none | odd | even

	Timeouts TimeoutConfig `yaml:"timeouts"`
}

// ---- TIMEOUTS ----

// TimeoutConfig holds durations in milliseconds.
type TimeoutConfig struct {
	ReadMs         int `yaml:"read_ms"`
	WriteMs        int `yaml:"write_ms"`
	LatencyMs      int `yaml:"latency_ms"`
	PollIntervalMs int `yaml:"poll_interval_ms"`
	ReadRetries    int `yaml:"read_retries"`
}

// Backends selectable in SerialConfig.Backend.
const (
	BackendTTY   = "tty"
	BackendBugst = "bugst"
)

// Load reads, decodes, validates and normalizes the file at path.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	return Parse(data)
}

// Parse decodes YAML, rejecting unknown keys, then validates and
// normalizes the result.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := Validate(&cfg); err != nil {
		return nil, err
	}
	Normalize(&cfg)
	return &cfg, nil
}

// Params converts the line settings. The config must be normalized.
func (s SerialConfig) Params() asyncserial.SerialParams {
	p := asyncserial.SerialParams{
		Baud:     s.Baud,
		DataBits: asyncserial.DataBits8,
		StopBits: asyncserial.StopBits1,
		Parity:   asyncserial.ParityNone,
	}
	if s.DataBits == 7 {
		p.DataBits = asyncserial.DataBits7
	}
	if s.StopBits == 2 {
		p.StopBits = asyncserial.StopBits2
	}
	switch s.Parity {
	case "odd":
		p.Parity = asyncserial.ParityOdd
	case "even":
		p.Parity = asyncserial.ParityEven
	}
	return p
}

// PortConfig builds the asyncserial.Config for opening the port with drv.
func (s SerialConfig) PortConfig(drv asyncserial.Driver, log *slog.Logger) asyncserial.Config {
	return asyncserial.Config{
		Driver:       drv,
		Device:       s.Device,
		Params:       s.Params(),
		ReadTimeout:  ms(s.Timeouts.ReadMs),
		WriteTimeout: ms(s.Timeouts.WriteMs),
		LatencyTimer: ms(s.Timeouts.LatencyMs),
		PollInterval: ms(s.Timeouts.PollIntervalMs),
		ReadRetries:  s.Timeouts.ReadRetries,
		Logger:       log,
	}
}

func ms(n int) time.Duration {
	return time.Duration(n) * time.Millisecond
}
