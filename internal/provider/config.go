package provider

import (
	"errors"
	"fmt"
	"net/url"
	"time"
)

const (
	DefaultBaseURL        = "https://admin.googleapis.com"
	DefaultTokenURL       = "https://oauth2.googleapis.com/token"
	DefaultRequestsPerSec = 10.0
	DefaultBurst          = 10
	DefaultMaxAttempts    = 3
	DefaultAttemptTimeout = 10 * time.Second
)

// DefaultScopes are the directory scopes needed by every supported operation.
var DefaultScopes = []string{
	"https://www.googleapis.com/auth/admin.directory.user",
	"https://www.googleapis.com/auth/admin.directory.group.member",
}

// Config holds the external directory provider settings.
type Config struct {
	BaseURL string

	// Client credentials, ignored when Token is set.
	TokenURL     string
	ClientID     string
	ClientSecret string
	Scopes       []string

	// Token is a static bearer token, mainly for development.
	Token string

	RequestsPerSecond float64
	Burst             int

	// MaxAttempts bounds retries of requests that time out.
	MaxAttempts    int
	AttemptTimeout time.Duration
}

// ApplyDefaults sets default values for unset fields.
func (c *Config) ApplyDefaults() {
	if c.BaseURL == "" {
		c.BaseURL = DefaultBaseURL
	}
	if c.TokenURL == "" {
		c.TokenURL = DefaultTokenURL
	}
	if len(c.Scopes) == 0 {
		c.Scopes = DefaultScopes
	}
	if c.RequestsPerSecond <= 0 {
		c.RequestsPerSecond = DefaultRequestsPerSec
	}
	if c.Burst <= 0 {
		c.Burst = DefaultBurst
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = DefaultMaxAttempts
	}
	if c.AttemptTimeout <= 0 {
		c.AttemptTimeout = DefaultAttemptTimeout
	}
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	u, err := url.Parse(c.BaseURL)
	if err != nil {
		return fmt.Errorf("invalid base URL: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("base URL must be http or https, got %q", c.BaseURL)
	}
	if c.Token == "" && (c.ClientID == "" || c.ClientSecret == "") {
		return errors.New("provider requires either a token or client ID and client secret")
	}
	return nil
}
