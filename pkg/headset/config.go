package headset

import (
	"fmt"
	"time"
)

// Limits of Config.MaxConnections.
const (
	MinConnections = 1
	MaxConnections = 5
)

// Config contains the tunables of a Service.
type Config struct {
	// MaxConnections is the number of devices that may be connecting or
	// connected at the same time. The native layer is initialized with one
	// extra slot for a device that is connecting or disconnecting.
	// Default is 1.
	MaxConnections int

	// ConnectTimeout bounds every transient state (Connecting,
	// Disconnecting, AudioConnecting, AudioDisconnecting).
	// Default is 30 seconds.
	ConnectTimeout time.Duration

	// ClccResponseTimeout bounds the wait for the call list after AT+CLCC.
	// Default is 5 seconds.
	ClccResponseTimeout time.Duration

	// VoiceRecognitionTimeout bounds the wait for the platform to confirm a
	// voice recognition session requested by a headset.
	// Default is 5 seconds.
	VoiceRecognitionTimeout time.Duration

	// DialingOutTimeout bounds the wait for a dial requested by a headset
	// to show up as a dialing call.
	// Default is 10 seconds.
	DialingOutTimeout time.Duration

	// InbandRingingSupported enables in-band ring tones when a single
	// device is connected.
	// Unlike the other fields, false is kept as given: a zero Config
	// disables in-band ringing. Start from DefaultConfig to keep it on.
	InbandRingingSupported bool

	// Logger is used for logging. If nil, DefaultLogger() is used.
	Logger Logger
}

// DefaultConfig returns the default configuration.
func DefaultConfig() Config {
	return Config{
		MaxConnections:          1,
		ConnectTimeout:          30 * time.Second,
		ClccResponseTimeout:     5 * time.Second,
		VoiceRecognitionTimeout: 5 * time.Second,
		DialingOutTimeout:       10 * time.Second,
		InbandRingingSupported:  true,
	}
}

// normalize fills zero fields with defaults and validates the rest.
func (c Config) normalize() (Config, error) {
	d := DefaultConfig()
	if c.MaxConnections == 0 {
		c.MaxConnections = d.MaxConnections
	}
	if c.MaxConnections < MinConnections || c.MaxConnections > MaxConnections {
		return c, fmt.Errorf("headset: MaxConnections %d out of range [%d, %d]", c.MaxConnections, MinConnections, MaxConnections)
	}
	if c.ConnectTimeout <= 0 {
		c.ConnectTimeout = d.ConnectTimeout
	}
	if c.ClccResponseTimeout <= 0 {
		c.ClccResponseTimeout = d.ClccResponseTimeout
	}
	if c.VoiceRecognitionTimeout <= 0 {
		c.VoiceRecognitionTimeout = d.VoiceRecognitionTimeout
	}
	if c.DialingOutTimeout <= 0 {
		c.DialingOutTimeout = d.DialingOutTimeout
	}
	if c.Logger == nil {
		c.Logger = DefaultLogger()
	}
	return c, nil
}
