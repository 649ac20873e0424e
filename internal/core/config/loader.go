package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v2"

	"github.com/vietddude/portalgate/internal/resilience/retry"
)

// ErrMissingEndpoint is returned when endpoint.url is not configured.
var ErrMissingEndpoint = errors.New("endpoint.url is required")

// Load reads configuration from a YAML file, applies defaults and validates
// the result.
func Load(path string) (*AppConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return Parse(data)
}

// Parse decodes YAML configuration. Environment variables are expanded
// before decoding.
func Parse(data []byte) (*AppConfig, error) {
	var cfg AppConfig
	expandedData := os.ExpandEnv(string(data))
	if err := yaml.Unmarshal([]byte(expandedData), &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// ApplyDefaults fills unset fields.
func (c *AppConfig) ApplyDefaults() {
	if c.Server.Port == 0 {
		c.Server.Port = 8080
	}
	if c.Endpoint.Timeout == 0 {
		c.Endpoint.Timeout = 30 * time.Second
	}

	if c.Retry.Ceiling == nil {
		ceiling := retry.DefaultConfig.Ceiling
		c.Retry.Ceiling = &ceiling
	}
	if c.Retry.BaseDelay == 0 {
		c.Retry.BaseDelay = retry.DefaultConfig.BaseDelay
	}
	if c.Retry.SweepInterval == 0 {
		c.Retry.SweepInterval = time.Minute
	}
	if c.Retry.StaleAfter == 0 {
		c.Retry.StaleAfter = 10 * time.Minute
	}

	if c.Cache.Backend == "" {
		c.Cache.Backend = CacheMemory
	}
	if c.Cache.InvalidationInterval == 0 {
		c.Cache.InvalidationInterval = 5 * time.Minute
	}
	if c.Cache.TTL == 0 {
		c.Cache.TTL = time.Hour
	}
	if c.Cache.Namespace == "" {
		c.Cache.Namespace = "portal"
	}

	if c.Database.Driver == "" {
		c.Database.Driver = "sqlite"
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
}

// RetryPolicy converts the retry section to coordinator settings.
func (c *AppConfig) RetryPolicy() retry.Config {
	cfg := retry.Config{BaseDelay: c.Retry.BaseDelay, MaxDelay: c.Retry.MaxDelay}
	if c.Retry.Ceiling != nil {
		cfg.Ceiling = *c.Retry.Ceiling
	}
	return cfg
}

// Validate checks that the configuration is usable.
func (c *AppConfig) Validate() error {
	if c.Endpoint.URL == "" {
		return ErrMissingEndpoint
	}

	policy := c.RetryPolicy()
	if err := policy.Validate(); err != nil {
		return fmt.Errorf("invalid retry config: %w", err)
	}
	// An entry must outlive one full retry cycle: its longest backoff plus
	// the attempt it re-issues.
	if cycle := retry.Backoff(policy, policy.Ceiling) + c.Endpoint.Timeout; c.Retry.StaleAfter <= cycle {
		return fmt.Errorf("retry.stale_after (%v) must exceed endpoint.timeout plus the largest backoff (%v)", c.Retry.StaleAfter, cycle)
	}

	switch c.Cache.Backend {
	case CacheMemory:
	case CacheRedis:
		if c.Redis.URL == "" {
			return fmt.Errorf("redis.url is required for cache backend %q", c.Cache.Backend)
		}
	case CacheSQL:
		if c.Database.URL == "" {
			return fmt.Errorf("database.url is required for cache backend %q", c.Cache.Backend)
		}
	default:
		return fmt.Errorf("unknown cache backend %q", c.Cache.Backend)
	}

	if o := c.Auth.OAuth2; o.ClientID != "" && o.TokenURL == "" {
		return fmt.Errorf("auth.oauth2.token_url is required when client_id is set")
	}
	return nil
}
