package relay

import (
	"io"
	"log/slog"
	"time"
)

// Timing defaults taken from the host SDK.
const (
	DefaultAuthMonitorInterval = 100 * time.Millisecond
	DefaultQueueDrainInterval  = 100 * time.Millisecond
	DefaultCloseGrace          = 200 * time.Millisecond
)

// Config tunes a relay. The zero value is usable.
type Config struct {
	// AllowedOrigins replaces DefaultAllowedOrigins when non-empty.
	AllowedOrigins []string
	// RequestTimeout expires pending calls; zero keeps them pending until
	// answered or the relay is uninitialized.
	RequestTimeout      time.Duration
	AuthMonitorInterval time.Duration
	QueueDrainInterval  time.Duration
	CloseGrace          time.Duration
	Logger              *slog.Logger
}

func (c Config) withDefaults() Config {
	if len(c.AllowedOrigins) == 0 {
		c.AllowedOrigins = DefaultAllowedOrigins
	}
	if c.AuthMonitorInterval <= 0 {
		c.AuthMonitorInterval = DefaultAuthMonitorInterval
	}
	if c.QueueDrainInterval <= 0 {
		c.QueueDrainInterval = DefaultQueueDrainInterval
	}
	if c.CloseGrace <= 0 {
		c.CloseGrace = DefaultCloseGrace
	}
	if c.Logger == nil {
		c.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return c
}
