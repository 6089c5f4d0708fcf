package config

import (
	"errors"
	"time"

	"warden/internal/tokens/models"
)

// Config holds default time-to-live values per kind. A zero PersistenceTTL
// issues non-expiring persistence tokens.
type Config struct {
	ActivationTTL  time.Duration
	ReminderTTL    time.Duration
	PersistenceTTL time.Duration
	// ExpiredRetention is how long expired tokens stay classifiable as
	// Expired before garbage collection may remove them.
	ExpiredRetention time.Duration
}

func DefaultConfig() Config {
	return Config{
		ActivationTTL:    259200 * time.Second,
		ReminderTTL:      14400 * time.Second,
		ExpiredRetention: 24 * time.Hour,
	}
}

func (c Config) Validate() error {
	if c.ActivationTTL <= 0 {
		return errors.New("activation ttl must be positive")
	}
	if c.ReminderTTL <= 0 {
		return errors.New("reminder ttl must be positive")
	}
	if c.PersistenceTTL < 0 {
		return errors.New("persistence ttl must not be negative")
	}
	if c.ExpiredRetention < 0 {
		return errors.New("expired retention must not be negative")
	}
	return nil
}

// DefaultTTL returns the configured ttl for kind; zero means non-expiring.
func (c Config) DefaultTTL(kind models.Kind) time.Duration {
	switch kind {
	case models.KindActivation:
		return c.ActivationTTL
	case models.KindReminder:
		return c.ReminderTTL
	default:
		return c.PersistenceTTL
	}
}
