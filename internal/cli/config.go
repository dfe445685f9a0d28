// Package cli wires configuration, adapters and the engine for cmd/redline.
package cli

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/aretw0/redline/internal/logging"
	"github.com/aretw0/redline/pkg/adapters/redis"
	"github.com/aretw0/redline/pkg/domain"
	"github.com/aretw0/redline/pkg/persistence/middleware"
	"gopkg.in/yaml.v3"
)

// DefaultConfigFile is read when --config is not given. A missing default
// file means built-in defaults.
const DefaultConfigFile = "redline.yaml"

// Graph sources.
const (
	GraphsBuiltin = "builtin"
	GraphsFile    = "file"
	GraphsLoam    = "loam"
)

// Store backends.
const (
	StoreMemory = "memory"
	StoreRedis  = "redis"
)

// Config is the redline.yaml layout.
type Config struct {
	LogLevel string       `yaml:"log_level"`
	Port     int          `yaml:"port"`
	Graphs   GraphsConfig `yaml:"graphs"`
	Store    StoreConfig  `yaml:"store"`
	// Identities maps bearer tokens to actors.
	Identities map[string]domain.Actor `yaml:"identities"`
}

// GraphsConfig selects where stage graphs come from.
type GraphsConfig struct {
	Source string `yaml:"source"`
	Dir    string `yaml:"dir"`
	Strict bool   `yaml:"strict"`
}

// StoreConfig selects the persistence backend.
type StoreConfig struct {
	Backend  string        `yaml:"backend"`
	Address  string        `yaml:"address"`
	Password string        `yaml:"password"`
	DB       int           `yaml:"db"`
	Prefix   string        `yaml:"prefix"`
	LockTTL  time.Duration `yaml:"lock_ttl"`
	// EncryptionKey (base64, 32 bytes) seals document versions at rest.
	// FallbackKeys still decrypt versions written before a rotation.
	EncryptionKey string   `yaml:"encryption_key"`
	FallbackKeys  []string `yaml:"fallback_keys"`
}

// DefaultConfig returns an in-memory setup with the built-in graphs.
func DefaultConfig() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	return cfg
}

// LoadConfig reads path. An empty path tries DefaultConfigFile and falls back
// to DefaultConfig when it does not exist.
func LoadConfig(path string) (*Config, error) {
	explicit := path != ""
	if !explicit {
		path = DefaultConfigFile
	}
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) && !explicit {
		return DefaultConfig(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}
	return ParseConfig(data)
}

// ParseConfig decodes and validates a YAML config.
func ParseConfig(data []byte) (*Config, error) {
	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Port == 0 {
		c.Port = 8080
	}
	if c.Graphs.Source == "" {
		c.Graphs.Source = GraphsBuiltin
	}
	if c.Store.Backend == "" {
		c.Store.Backend = StoreMemory
	}
	if c.Store.Backend == StoreRedis {
		if c.Store.Address == "" {
			c.Store.Address = "localhost:6379"
		}
		if c.Store.Prefix == "" {
			c.Store.Prefix = redis.DefaultPrefix
		}
		if c.Store.LockTTL == 0 {
			c.Store.LockTTL = 10 * time.Second
		}
	}
}

// Validate reports every configuration problem at once.
func (c *Config) Validate() error {
	var errs []error
	if _, err := logging.ParseLevel(c.LogLevel); err != nil {
		errs = append(errs, err)
	}
	if c.Port < 0 || c.Port > 65535 {
		errs = append(errs, fmt.Errorf("port %d out of range", c.Port))
	}
	switch c.Graphs.Source {
	case GraphsBuiltin:
	case GraphsFile, GraphsLoam:
		if c.Graphs.Dir == "" {
			errs = append(errs, fmt.Errorf("graphs.dir is required for source %q", c.Graphs.Source))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown graphs.source %q", c.Graphs.Source))
	}
	switch c.Store.Backend {
	case StoreMemory, StoreRedis:
	default:
		errs = append(errs, fmt.Errorf("unknown store.backend %q", c.Store.Backend))
	}
	if c.Store.EncryptionKey != "" {
		if _, err := middleware.ParseKeys(c.Store.EncryptionKey, c.Store.FallbackKeys...); err != nil {
			errs = append(errs, fmt.Errorf("store encryption: %w", err))
		}
	} else if len(c.Store.FallbackKeys) > 0 {
		errs = append(errs, errors.New("store.fallback_keys need store.encryption_key"))
	}
	for token, actor := range c.Identities {
		if token == "" || actor.ID == "" || actor.Role == "" {
			errs = append(errs, fmt.Errorf("identity %q needs a token, an id and a role", token))
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("invalid config: %w", errors.Join(errs...))
	}
	return nil
}
