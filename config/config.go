//
// Copyright (c) 2026 Markku Rossi
//
// All rights reserved.
//

// Package config implements the YAML configuration of the resharing
// and checking tools.
package config

import (
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/markkurossi/irismpc/iris"
	"github.com/markkurossi/irismpc/shares"
)

// Store backends.
const (
	BackendMemory = "memory"
	BackendFile   = "file"
)

// Config defines the configuration of the tools.
type Config struct {
	Party   PartyConfig   `yaml:"party"`
	Reshare ReshareConfig `yaml:"reshare"`
	TLS     TLSConfig     `yaml:"tls"`
	Store   StoreConfig   `yaml:"store"`
	Checker CheckerConfig `yaml:"checker"`
	Seed    SeedConfig    `yaml:"seed"`
	Logging LoggingConfig `yaml:"logging"`
	Metrics MetricsConfig `yaml:"metrics"`
}

// PartyConfig identifies the local party.
type PartyConfig struct {
	ID      int    `yaml:"id"`
	Eye     string `yaml:"eye"`
	Workers int    `yaml:"workers"`
}

// ReshareConfig configures the resharing server and client.
type ReshareConfig struct {
	// Listen is the server's bind address.
	Listen string `yaml:"listen"`
	// Server is the server address the client connects to.
	Server string `yaml:"server"`
	// Start and End define the identity range [Start, End).
	Start uint64 `yaml:"start"`
	End   uint64 `yaml:"end"`
	// Shards splits the range into concurrent sessions.
	Shards    int           `yaml:"shards"`
	BatchSize int           `yaml:"batch_size"`
	Timeout   time.Duration `yaml:"timeout"`
	// Seed is the hex encoded server conversion seed. If empty, the
	// server creates a random seed on startup.
	Seed string `yaml:"seed"`
}

// StoreConfig configures the share stores.
type StoreConfig struct {
	Legacy     StoreSpec `yaml:"legacy"`
	Replicated StoreSpec `yaml:"replicated"`
}

// StoreSpec defines a store backend and its location.
type StoreSpec struct {
	Backend string `yaml:"backend"`
	Path    string `yaml:"path"`
}

// CheckerConfig configures the consistency checker.
type CheckerConfig struct {
	Sample    int     `yaml:"sample"`
	Tolerance float64 `yaml:"tolerance"`
	Seed      uint64  `yaml:"seed"`
	Reference *uint64 `yaml:"reference"`

	// Stores maps roles to their replicated store paths.
	Stores map[int]string `yaml:"stores"`
}

// SeedConfig configures the legacy store seeding harness.
type SeedConfig struct {
	Count     uint64  `yaml:"count"`
	Seed      uint64  `yaml:"seed"`
	RateLimit float64 `yaml:"rate_limit"`
}

// LoggingConfig configures logging.
type LoggingConfig struct {
	Level string `yaml:"level"`
}

// MetricsConfig configures the metrics endpoint.
type MetricsConfig struct {
	Listen string `yaml:"listen"`
}

// Default returns the default configuration.
func Default() *Config {
	return &Config{
		Party: PartyConfig{
			Eye: iris.Left.String(),
		},
		Reshare: ReshareConfig{
			Listen:    ":7100",
			Server:    "localhost:7100",
			Shards:    1,
			BatchSize: 64,
			Timeout:   30 * time.Second,
		},
		TLS: TLSConfig{
			MinVersion: "TLS1.3",
			ClientAuth: "require_and_verify",
		},
		Store: StoreConfig{
			Legacy: StoreSpec{
				Backend: BackendMemory,
			},
			Replicated: StoreSpec{
				Backend: BackendMemory,
			},
		},
		Checker: CheckerConfig{
			Sample:    100,
			Tolerance: 1e-6,
		},
		Seed: SeedConfig{
			Count:     1000,
			RateLimit: 0,
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// Load loads the configuration file. Values missing from the file
// keep their defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return Parse(data)
}

// Parse parses the YAML configuration data.
func Parse(data []byte) (*Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}
	if err := applyEnvOverrides(cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func applyEnvOverrides(cfg *Config) error {
	if v := os.Getenv("IRISMPC_PARTY_ID"); v != "" {
		id, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid IRISMPC_PARTY_ID value %q: %w", v, err)
		}
		cfg.Party.ID = id
	}
	if v := os.Getenv("IRISMPC_RESHARE_LISTEN"); v != "" {
		cfg.Reshare.Listen = v
	}
	if v := os.Getenv("IRISMPC_RESHARE_SERVER"); v != "" {
		cfg.Reshare.Server = v
	}
	if v := os.Getenv("IRISMPC_RESHARE_TIMEOUT"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("invalid IRISMPC_RESHARE_TIMEOUT value %q: %w",
				v, err)
		}
		cfg.Reshare.Timeout = d
	}
	if v := os.Getenv("IRISMPC_LEGACY_PATH"); v != "" {
		cfg.Store.Legacy.Backend = BackendFile
		cfg.Store.Legacy.Path = v
	}
	if v := os.Getenv("IRISMPC_REPLICATED_PATH"); v != "" {
		cfg.Store.Replicated.Backend = BackendFile
		cfg.Store.Replicated.Path = v
	}
	if v := os.Getenv("IRISMPC_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("IRISMPC_METRICS_LISTEN"); v != "" {
		cfg.Metrics.Listen = v
	}
	return nil
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if _, err := shares.ParseRole(c.Party.ID); err != nil {
		return fmt.Errorf("party.id: %w", err)
	}
	if _, err := iris.ParseEye(c.Party.Eye); err != nil {
		return fmt.Errorf("party.eye: %w", err)
	}
	if c.Party.Workers < 0 {
		return errors.New("party.workers must not be negative")
	}
	if c.Reshare.End != 0 && c.Reshare.End < c.Reshare.Start {
		return fmt.Errorf("reshare: end %d before start %d",
			c.Reshare.End, c.Reshare.Start)
	}
	if c.Reshare.BatchSize <= 0 {
		return errors.New("reshare.batch_size must be positive")
	}
	if c.Reshare.Shards <= 0 {
		return errors.New("reshare.shards must be positive")
	}
	if c.Reshare.Shards > 1 && c.Reshare.End == 0 {
		return errors.New("reshare.shards requires a bounded range (reshare.end)")
	}
	if c.Reshare.Timeout <= 0 {
		return errors.New("reshare.timeout must be positive")
	}
	if _, err := c.Reshare.SeedBytes(); err != nil {
		return err
	}
	for name, spec := range map[string]StoreSpec{
		"store.legacy":     c.Store.Legacy,
		"store.replicated": c.Store.Replicated,
	} {
		switch spec.Backend {
		case BackendMemory:
		case BackendFile:
			if spec.Path == "" {
				return fmt.Errorf("%s: path required for file backend", name)
			}
		default:
			return fmt.Errorf("%s: unknown backend '%s'", name, spec.Backend)
		}
	}
	if c.Checker.Sample < 0 {
		return errors.New("checker.sample must not be negative")
	}
	if c.Checker.Tolerance < 0 {
		return errors.New("checker.tolerance must not be negative")
	}
	for id := range c.Checker.Stores {
		if _, err := shares.ParseRole(id); err != nil {
			return fmt.Errorf("checker.stores: %w", err)
		}
	}
	if c.Seed.RateLimit < 0 {
		return errors.New("seed.rate_limit must not be negative")
	}
	if c.TLS.Enabled {
		if c.TLS.CertFile == "" || c.TLS.KeyFile == "" {
			return errors.New("tls: cert_file and key_file required")
		}
	}
	switch c.Logging.Level {
	case "debug", "info":
	default:
		return fmt.Errorf("logging.level: unknown level '%s'", c.Logging.Level)
	}
	return nil
}

// Debug tests if debug logging is enabled.
func (c *Config) Debug() bool {
	return c.Logging.Level == "debug"
}

// GetEye returns the configured eye.
func (p *PartyConfig) GetEye() (iris.Eye, error) {
	return iris.ParseEye(p.Eye)
}

// SeedBytes decodes the conversion seed. It returns nil if no seed is
// configured.
func (c *ReshareConfig) SeedBytes() ([]byte, error) {
	if c.Seed == "" {
		return nil, nil
	}
	seed, err := hex.DecodeString(c.Seed)
	if err != nil {
		return nil, fmt.Errorf("reshare.seed: %w", err)
	}
	if len(seed) != 32 {
		return nil, fmt.Errorf("reshare.seed: invalid length %d", len(seed))
	}
	return seed, nil
}
