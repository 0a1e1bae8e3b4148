// Package config loads the fleet configuration with a layered approach:
//
//  1. Built-in defaults
//  2. YAML config file
//  3. Environment variable overrides (MCPFLEET_ prefix)
//  4. Validation
//
// The file is the source of truth for server definitions; the confcache
// layer in front of it is purely an optimization.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/mcpfleet/mcpfleet/pkg/fleet"
)

// Config holds all configuration for the fleet daemon.
type Config struct {
	Admin      AdminConfig      `yaml:"admin"`
	Health     HealthConfig     `yaml:"health"`
	Resilience ResilienceConfig `yaml:"resilience"`
	Cache      CacheConfig      `yaml:"cache"`
	Servers    []ServerConfig   `yaml:"servers"`
}

// AdminConfig holds the inbound control surface settings.
type AdminConfig struct {
	Addr           string   `yaml:"addr"`            // default: ":8700"
	AllowedOrigins []string `yaml:"allowed_origins"` // default: ["*"]
}

// HealthConfig holds health-monitor settings.
type HealthConfig struct {
	Interval     time.Duration `yaml:"interval"`      // default: 30s
	ProbeTimeout time.Duration `yaml:"probe_timeout"` // default: 10s
}

// ResilienceConfig tunes per-server breakers and retries.
type ResilienceConfig struct {
	FailureThreshold int           `yaml:"failure_threshold"` // default: 5
	ResetTimeout     time.Duration `yaml:"reset_timeout"`     // default: 30s
	MaxRetries       int           `yaml:"max_retries"`       // default: 2
	RetryBaseDelay   time.Duration `yaml:"retry_base_delay"`  // default: 250ms
	RetryMaxDelay    time.Duration `yaml:"retry_max_delay"`   // default: 5s
	CallTimeout      time.Duration `yaml:"call_timeout"`      // default: 30s
}

// CacheConfig holds config-cache settings. An empty Redis address selects the
// in-process store.
type CacheConfig struct {
	TTL   time.Duration `yaml:"ttl"` // default: 60s
	Redis RedisConfig   `yaml:"redis"`
}

// RedisConfig points at the optional shared cache process.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

// ServerConfig is the YAML shape of one server definition. Enabled defaults
// to true when omitted.
type ServerConfig struct {
	ID        string            `yaml:"id"`
	Name      string            `yaml:"name"`
	Transport string            `yaml:"transport"`
	Command   string            `yaml:"command"`
	Args      []string          `yaml:"args"`
	Env       map[string]string `yaml:"env"`
	Dir       string            `yaml:"dir"`
	URL       string            `yaml:"url"`
	Headers   map[string]string `yaml:"headers"`
	Timeout   time.Duration     `yaml:"timeout"`
	Enabled   *bool             `yaml:"enabled"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Admin: AdminConfig{
			Addr:           ":8700",
			AllowedOrigins: []string{"*"},
		},
		Health: HealthConfig{
			Interval:     30 * time.Second,
			ProbeTimeout: 10 * time.Second,
		},
		Resilience: ResilienceConfig{
			FailureThreshold: 5,
			ResetTimeout:     30 * time.Second,
			MaxRetries:       2,
			RetryBaseDelay:   250 * time.Millisecond,
			RetryMaxDelay:    5 * time.Second,
			CallTimeout:      30 * time.Second,
		},
		Cache: CacheConfig{
			TTL: time.Minute,
		},
	}
}

// Load reads the file at path on top of the defaults and applies environment
// overrides.
func Load(path string) (Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("config: reading %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("config: parsing %s: %w", path, err)
	}
	cfg.applyEnv()
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() {
	if addr := os.Getenv("MCPFLEET_ADMIN_ADDR"); addr != "" {
		c.Admin.Addr = addr
	}
	if addr := os.Getenv("MCPFLEET_REDIS_ADDR"); addr != "" {
		c.Cache.Redis.Addr = addr
	}
	if ttl := os.Getenv("MCPFLEET_CACHE_TTL"); ttl != "" {
		if parsed, err := time.ParseDuration(ttl); err == nil {
			c.Cache.TTL = parsed
		}
	}
}

// Validate checks cross-entry constraints; per-definition shape is validated
// again by the fleet registry at registration time.
func (c Config) Validate() error {
	seen := make(map[string]struct{}, len(c.Servers))
	for _, server := range c.Servers {
		if server.ID == "" {
			return fmt.Errorf("config: server with empty id")
		}
		if _, dup := seen[server.ID]; dup {
			return fmt.Errorf("config: duplicate server id %q", server.ID)
		}
		seen[server.ID] = struct{}{}
	}
	return nil
}

// Definitions converts the file's server entries to fleet definitions,
// preserving file order.
func (c Config) Definitions() []fleet.ServerDefinition {
	defs := make([]fleet.ServerDefinition, 0, len(c.Servers))
	for _, server := range c.Servers {
		enabled := true
		if server.Enabled != nil {
			enabled = *server.Enabled
		}
		defs = append(defs, fleet.ServerDefinition{
			ID:        server.ID,
			Name:      server.Name,
			Transport: fleet.TransportKind(server.Transport),
			Command:   server.Command,
			Args:      server.Args,
			Env:       server.Env,
			Dir:       server.Dir,
			URL:       server.URL,
			Headers:   server.Headers,
			Timeout:   server.Timeout,
			Enabled:   enabled,
		})
	}
	return defs
}
