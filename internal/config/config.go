// Package config loads the dataspace gateway configuration.
//
// Configuration is read from a YAML file with environment variable expansion
// (${VAR} or $VAR), so secrets such as the management API key or the client
// secret can be injected at runtime.
//
// # Example Configuration
//
//	server:
//	  port: 8080
//	logging:
//	  level: info
//	auth:
//	  url: https://centralidp.example.com/auth/
//	  realm: CX-Central
//	  clientId: sa-gateway
//	  clientSecret: ${GATEWAY_CLIENT_SECRET}
//	discovery:
//	  finderUrl: https://discovery.example.com/api/v1.0/administration/connectors/discovery/search
//	  cacheTimeout: 12h
//	connector:
//	  managementUrl: https://edc.example.com/management
//	  apiKey: ${EDC_API_KEY}
//	connections:
//	  backend: redis
//	  redis:
//	    address: redis:6379
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/eclipse-tractusx/tractusx-sdk-go/pkg/logging"
	"gopkg.in/yaml.v3"
)

// Connection cache backends.
const (
	BackendMemory = "memory"
	BackendRedis  = "redis"
)

// Config is the root configuration structure.
type Config struct {
	Server      ServerConfig      `yaml:"server"`
	Logging     logging.Config    `yaml:"logging"`
	Auth        AuthConfig        `yaml:"auth"`
	Discovery   DiscoveryConfig   `yaml:"discovery"`
	Connector   ConnectorConfig   `yaml:"connector"`
	Connections ConnectionsConfig `yaml:"connections"`

	// Verbose enables cache and translator debug logging.
	Verbose bool `yaml:"verbose"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port            int           `yaml:"port"`
	ReadTimeout     time.Duration `yaml:"readTimeout"`
	WriteTimeout    time.Duration `yaml:"writeTimeout"`
	ShutdownTimeout time.Duration `yaml:"shutdownTimeout"`
}

// AuthConfig holds the identity provider used for discovery services.
type AuthConfig struct {
	URL          string `yaml:"url"`
	Realm        string `yaml:"realm"`
	ClientID     string `yaml:"clientId"`
	ClientSecret string `yaml:"clientSecret"`
}

// DiscoveryConfig holds discovery finder settings.
type DiscoveryConfig struct {
	FinderURL    string        `yaml:"finderUrl"`
	CacheTimeout time.Duration `yaml:"cacheTimeout"`

	// ConnectorKey is the discovery type of the connector discovery service.
	ConnectorKey string `yaml:"connectorKey"`
}

// ConnectorConfig holds the consumer connector's management API settings.
type ConnectorConfig struct {
	ManagementURL      string           `yaml:"managementUrl"`
	APIKey             string           `yaml:"apiKey"`
	Protocol           string           `yaml:"protocol"`
	PollInterval       time.Duration    `yaml:"pollInterval"`
	NegotiationTimeout time.Duration    `yaml:"negotiationTimeout"`
	DefaultPolicies    []map[string]any `yaml:"defaultPolicies"`
}

// ConnectionsConfig selects where negotiated transfers are cached.
type ConnectionsConfig struct {
	Backend string      `yaml:"backend"`
	Redis   RedisConfig `yaml:"redis"`
}

// RedisConfig holds Redis connection settings.
type RedisConfig struct {
	Address  string `yaml:"address"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	Hash     string `yaml:"hash"`
}

// Load reads configuration from a YAML file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}
	return Parse(data)
}

// Parse expands environment variables in data and decodes it.
func Parse(data []byte) (*Config, error) {
	expanded := os.ExpandEnv(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	cfg.applyDefaults()

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Server.Port == 0 {
		c.Server.Port = 8080
	}
	if c.Server.ReadTimeout == 0 {
		c.Server.ReadTimeout = 15 * time.Second
	}
	if c.Server.WriteTimeout == 0 {
		c.Server.WriteTimeout = 90 * time.Second
	}
	if c.Server.ShutdownTimeout == 0 {
		c.Server.ShutdownTimeout = 10 * time.Second
	}
	if c.Logging.Level == "" {
		c.Logging.Level = logging.LevelInfo
	}
	if c.Discovery.CacheTimeout == 0 {
		c.Discovery.CacheTimeout = 12 * time.Hour
	}
	if c.Discovery.ConnectorKey == "" {
		c.Discovery.ConnectorKey = "bpn"
	}
	if c.Connector.PollInterval == 0 {
		c.Connector.PollInterval = time.Second
	}
	if c.Connector.NegotiationTimeout == 0 {
		c.Connector.NegotiationTimeout = 60 * time.Second
	}
	if c.Connections.Backend == "" {
		c.Connections.Backend = BackendMemory
	}
	if c.Connections.Redis.Address == "" {
		c.Connections.Redis.Address = "localhost:6379"
	}
}

func (c *Config) validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be between 1 and 65535, got %d", c.Server.Port)
	}
	if c.Connector.ManagementURL == "" {
		return fmt.Errorf("connector.managementUrl is required")
	}

	switch c.Connections.Backend {
	case BackendMemory, BackendRedis:
		// Valid backends
	default:
		return fmt.Errorf("connections.backend must be 'memory' or 'redis', got '%s'", c.Connections.Backend)
	}

	if c.Discovery.FinderURL != "" {
		if c.Auth.URL == "" || c.Auth.Realm == "" || c.Auth.ClientID == "" || c.Auth.ClientSecret == "" {
			return fmt.Errorf("auth.url, auth.realm, auth.clientId and auth.clientSecret are required when discovery.finderUrl is set")
		}
	}

	return nil
}
