package config

import "time"

const (
	defaultSessionTimeout    = 30 * time.Minute
	defaultSweepInterval     = time.Minute
	defaultTerminalRetention = 5 * time.Minute
)

// SessionConfig controls session expiry.
type SessionConfig struct {
	// Timeout is the idle period after which a session expires. Negative disables idle expiry.
	Timeout time.Duration `env:"SESSION_TIMEOUT" envDefault:"30m"`

	// SweepInterval is how often the background sweep scans for idle sessions.
	SweepInterval time.Duration `env:"SESSION_SWEEP_INTERVAL" envDefault:"1m"`

	// SweepEnabled toggles the background sweep. Expiry is still detected on access.
	SweepEnabled bool `env:"SESSION_SWEEP_ENABLED" envDefault:"true"`

	// TerminalRetention is how long stopped/expired sessions are remembered so that
	// later calls report which terminal state occurred.
	TerminalRetention time.Duration `env:"SESSION_TERMINAL_RETENTION" envDefault:"5m"`
}

// Sanitize applies defaults for unset or invalid values.
func (c *SessionConfig) Sanitize() {
	if c.Timeout == 0 {
		c.Timeout = defaultSessionTimeout
	}
	if c.SweepInterval <= 0 {
		c.SweepInterval = defaultSweepInterval
	}
	if c.TerminalRetention < 0 {
		c.TerminalRetention = defaultTerminalRetention
	}
}
