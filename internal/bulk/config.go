package bulk

import (
	"errors"
	"time"
)

const (
	DefaultConcurrency      = 5
	DefaultExternalTimeout  = 60 * time.Second
	DefaultSubscriberBuffer = 16
	MaxConcurrency          = 64
)

// Config holds engine settings fixed at construction.
type Config struct {
	// Concurrency bounds how many items run at once within one operation.
	Concurrency int
	// ExternalTimeout bounds the external mutation of a single item, retries included.
	ExternalTimeout time.Duration
	// SubscriberBuffer is the event buffer of each live subscription.
	SubscriberBuffer int
}

// ApplyDefaults sets default values for unset fields.
func (c *Config) ApplyDefaults() {
	if c.Concurrency <= 0 {
		c.Concurrency = DefaultConcurrency
	}
	if c.ExternalTimeout <= 0 {
		c.ExternalTimeout = DefaultExternalTimeout
	}
	if c.SubscriberBuffer <= 0 {
		c.SubscriberBuffer = DefaultSubscriberBuffer
	}
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	if c.Concurrency < 1 || c.Concurrency > MaxConcurrency {
		return errors.New("concurrency must be between 1 and 64")
	}
	if c.SubscriberBuffer < 1 {
		return errors.New("subscriber buffer must be positive")
	}
	return nil
}
