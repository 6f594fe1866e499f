package broker

import "time"

// Defaults for Config fields left at zero by DefaultConfig callers.
const (
	DefaultPort           = 7624
	DefaultMaxQueueBytes  = 128 * 1024 * 1024
	DefaultMaxStreamBytes = 5 * 1024 * 1024
	DefaultRestartDelay   = 10 * time.Second
	DefaultTickInterval   = time.Second

	// MaxWriteSize bounds a single write to one peer.
	MaxWriteSize = 49152
)

// Config holds the broker's operational limits.
type Config struct {
	// MaxQueueBytes is the queued byte count above which a client is
	// disconnected.
	MaxQueueBytes int

	// MaxStreamBytes is the queued byte count above which stream BLOB
	// frames are dropped for a client. Zero disables dropping.
	MaxStreamBytes int

	// MaxRestarts caps restarts per driver. Zero means unlimited.
	MaxRestarts int

	// RestartDelay is how long a failed driver waits before relaunch.
	RestartDelay time.Duration

	// TickInterval is how often the restart list is serviced.
	TickInterval time.Duration

	// ControlChannel reports whether drivers can be started at runtime.
	// Without one, the broker exits once every driver is retired.
	ControlChannel bool

	// DriverLogDir, when set, receives driver message attributes in
	// per-day .islog files.
	DriverLogDir string

	// Drivers are started when Run begins.
	Drivers []string
}

// DefaultConfig returns the stock limits.
func DefaultConfig() Config {
	return Config{
		MaxQueueBytes:  DefaultMaxQueueBytes,
		MaxStreamBytes: DefaultMaxStreamBytes,
		RestartDelay:   DefaultRestartDelay,
		TickInterval:   DefaultTickInterval,
	}
}

func (c *Config) applyDefaults() {
	if c.MaxQueueBytes <= 0 {
		c.MaxQueueBytes = DefaultMaxQueueBytes
	}
	if c.MaxStreamBytes < 0 {
		c.MaxStreamBytes = 0
	}
	if c.RestartDelay <= 0 {
		c.RestartDelay = DefaultRestartDelay
	}
	if c.TickInterval <= 0 {
		c.TickInterval = DefaultTickInterval
	}
}
