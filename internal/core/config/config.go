package config

import (
	"time"

	"github.com/vietddude/portalgate/internal/infra/auth"
	redisclient "github.com/vietddude/portalgate/internal/infra/redis"
	"github.com/vietddude/portalgate/internal/infra/storage/sqlstore"
)

// Cache backends.
const (
	CacheMemory = "memory"
	CacheRedis  = "redis"
	CacheSQL    = "sql"
)

// AppConfig represents the top-level configuration.
type AppConfig struct {
	Server   ServerConfig       `yaml:"server"`
	Endpoint EndpointConfig     `yaml:"endpoint"`
	Auth     AuthConfig         `yaml:"auth"`
	Retry    RetryConfig        `yaml:"retry"`
	Cache    CacheConfig        `yaml:"cache"`
	Redis    redisclient.Config `yaml:"redis"`
	Database sqlstore.Config    `yaml:"database"`
	Logging  LoggingConfig      `yaml:"logging"`
}

// ServerConfig holds HTTP and gRPC server settings.
type ServerConfig struct {
	Port     int `yaml:"port"`
	GRPCPort int `yaml:"grpc_port"` // 0 = disabled
}

// EndpointConfig holds the GraphQL endpoint.
type EndpointConfig struct {
	URL     string        `yaml:"url"`
	Timeout time.Duration `yaml:"timeout"`
}

// AuthConfig selects the credential provider. OAuth2 client credentials win
// over a static token when both are set.
type AuthConfig struct {
	Token  string            `yaml:"token"`
	OAuth2 auth.OAuth2Config `yaml:"oauth2"`
}

// RetryConfig holds retry coordinator settings.
type RetryConfig struct {
	Ceiling       *int          `yaml:"ceiling"` // nil = default; 0 disables retries
	BaseDelay     time.Duration `yaml:"base_delay"`
	MaxDelay      time.Duration `yaml:"max_delay"`
	SweepInterval time.Duration `yaml:"sweep_interval"`
	StaleAfter    time.Duration `yaml:"stale_after"`
}

// CacheConfig holds result cache settings.
type CacheConfig struct {
	Backend              string        `yaml:"backend"` // memory, redis, sql
	InvalidationInterval time.Duration `yaml:"invalidation_interval"`
	TTL                  time.Duration `yaml:"ttl"`
	Namespace            string        `yaml:"namespace"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // json, text
}
