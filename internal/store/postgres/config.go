package postgres

import (
	"context"
	"errors"
	"time"
)

// StoreConfig holds the settings shared by the PostgreSQL stores.
// Pool configuration is handled separately via PoolConfig.
type StoreConfig struct {
	// QueryTimeout is the maximum time a query can run before timing out.
	// Default: 10 seconds
	// Negative disables the extra timeout so only context deadlines apply.
	QueryTimeout time.Duration
}

// Validate checks that the configuration is valid.
func (c *StoreConfig) Validate() error {
	if c.QueryTimeout > 5*time.Minute {
		return errors.New("query timeout must not exceed 5 minutes")
	}
	return nil
}

// ApplyDefaults applies default values to unset configuration fields.
func (c *StoreConfig) ApplyDefaults() {
	if c.QueryTimeout == 0 {
		c.QueryTimeout = 10 * time.Second
	}
}

func (c StoreConfig) queryContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if c.QueryTimeout < 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, c.QueryTimeout)
}
