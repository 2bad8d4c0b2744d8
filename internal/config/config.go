// Package config parses the shared and per-role command-line flags into an
// immutable Config built once at start-up and handed read-only to every
// component.
package config

import (
	"fmt"

	"github.com/spf13/pflag"
)

// SampleFormat selects the wire/PCM sample representation.
type SampleFormat int

const (
	FormatS16 SampleFormat = iota
	FormatFloat
)

// Role distinguishes the sender and receiver subcommands.
type Role int

const (
	RoleSender Role = iota
	RoleReceiver
)

// Config is the fully resolved, immutable configuration for one run of mtx
// or mrx. It is built once at start-up and never mutated afterward; every
// component receives a copy or a read-only reference.
type Config struct {
	Role Role

	Addr   string
	Port   int
	Device string // "-" selects stdin/stdout

	Format     SampleFormat
	Rate       int
	Channels   int
	PeriodMs   int
	BufferMult int

	TimeSync bool
	Verbose  bool

	// Sender-only.
	Kbps int
	RTP  bool

	// Receiver-only.
	DelayMs int
}

// Defaults returns the stock configuration for role: multicast group
// 239.48.48.1:1350, 48 kHz stereo S16, 20 ms packets, time sync on.
func Defaults(role Role) Config {
	return Config{
		Role:       role,
		Addr:       "239.48.48.1",
		Port:       1350,
		Device:     "default",
		Format:     FormatS16,
		Rate:       48000,
		Channels:   2,
		PeriodMs:   20,
		BufferMult: 3,
		TimeSync:   true,
		Kbps:       128,
		DelayMs:    80,
	}
}

// Parse parses args (excluding the program name) into a Config for role,
// starting from Defaults(role).
func Parse(role Role, args []string) (Config, error) {
	cfg := Defaults(role)

	fs := pflag.NewFlagSet("audiosync", pflag.ContinueOnError)
	fs.StringVarP(&cfg.Addr, "addr", "h", cfg.Addr, "destination/bind address")
	fs.IntVarP(&cfg.Port, "port", "p", cfg.Port, "UDP port")
	fs.StringVarP(&cfg.Device, "device", "d", cfg.Device, "PCM device, or - for stdin/stdout")

	var format int
	fs.IntVarP(&format, "format", "f", int(cfg.Format), "sample format: 0=S16, 1=float")

	fs.IntVarP(&cfg.Rate, "rate", "r", cfg.Rate, "sample rate in Hz")
	fs.IntVarP(&cfg.Channels, "channels", "c", cfg.Channels, "channel count")
	fs.IntVarP(&cfg.PeriodMs, "period", "t", cfg.PeriodMs, "packet period in ms")
	fs.IntVarP(&cfg.BufferMult, "buffer-mult", "b", cfg.BufferMult, "device buffer size as a multiple of the period")

	var timeSync int
	fs.IntVarP(&timeSync, "time-sync", "T", boolToInt(cfg.TimeSync), "enable time sync: 0 or 1")

	var verbose int
	fs.IntVarP(&verbose, "verbose", "v", boolToInt(cfg.Verbose), "verbose logging: 0 or 1")

	var rtp int
	if role == RoleSender {
		fs.IntVarP(&cfg.Kbps, "kbps", "k", cfg.Kbps, "encoder bitrate in kbps")
		fs.IntVarP(&rtp, "rtp", "R", 0, "send RTP instead of the native frame format: 0 or 1")
	}
	if role == RoleReceiver {
		fs.IntVarP(&cfg.DelayMs, "delay", "e", cfg.DelayMs, "target jitter buffer delay in ms")
	}

	if err := fs.Parse(args); err != nil {
		return Config{}, err
	}

	cfg.Format = SampleFormat(format)
	cfg.TimeSync = timeSync != 0
	cfg.Verbose = verbose != 0
	cfg.RTP = rtp != 0

	if role == RoleSender && cfg.RTP {
		cfg.TimeSync = false
	}

	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) validate() error {
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("config: invalid port %d", c.Port)
	}
	if c.Rate <= 0 {
		return fmt.Errorf("config: invalid rate %d", c.Rate)
	}
	if c.Channels <= 0 {
		return fmt.Errorf("config: invalid channel count %d", c.Channels)
	}
	if c.PeriodMs <= 0 {
		return fmt.Errorf("config: invalid period %d", c.PeriodMs)
	}
	if c.Format != FormatS16 && c.Format != FormatFloat {
		return fmt.Errorf("config: invalid format %d", c.Format)
	}
	return nil
}

// SamplesPerPeriod is the number of samples per channel in one period.
func (c Config) SamplesPerPeriod() int {
	return c.Rate * c.PeriodMs / 1000
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
