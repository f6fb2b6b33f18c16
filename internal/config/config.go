// Package config loads the feeder's YAML configuration file into the
// BUFFER/FILTER/NETWORK/INPUT/IDENT surface the core components consume.
// The loader is a thin convenience used by cmd/feeder; it is not part of
// any core state machine.
//
// Grounded on nishisan-dev-n-backup/internal/config/agent.go's
// load-then-validate-then-default shape.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/openskynetwork/opensky-sensor-sub000/internal/network"
	"gopkg.in/yaml.v3"
)

// Config is the feeder's full configuration surface.
type Config struct {
	Buffer  Buffer  `yaml:"buffer"`
	Filter  Filter  `yaml:"filter"`
	Network Network `yaml:"network"`
	Input   Input   `yaml:"input"`
	Ident   Ident   `yaml:"ident"`
	Logging Logging `yaml:"logging"`
}

// Buffer is BUFFER.* — see internal/buffer.Configuration, which this is
// converted into.
type Buffer struct {
	StaticBacklog     int           `yaml:"static_backlog"`
	DynamicBacklog    int           `yaml:"dynamic_backlog"`
	DynamicIncrements int           `yaml:"dynamic_increments"`
	History           bool          `yaml:"history"`
	GC                bool          `yaml:"gc"`
	GCInterval        time.Duration `yaml:"gc_interval"`
	GCLevel           int           `yaml:"gc_level"`
}

// Filter is FILTER.* — see internal/filter.Configuration.
type Filter struct {
	CRC                  bool `yaml:"crc"`
	ModeSExtSquitterOnly bool `yaml:"mode_s_ext_squitter_only"`
	SyncFilter           bool `yaml:"sync_filter"`
}

// Network is NETWORK.*. Timeout is the keep-alive cadence. DSCP and
// RateLimitBytesPerSec are additions beyond spec.md's named surface,
// wiring golang.org/x/sys/unix TOS marking and golang.org/x/time/rate
// uplink throttling respectively; both default to disabled.
type Network struct {
	Host                 string        `yaml:"host"`
	Port                 int           `yaml:"port"`
	Timeout              time.Duration `yaml:"timeout"`
	DSCP                 string        `yaml:"dscp"`
	RateLimitBytesPerSec int64         `yaml:"rate_limit_bytes_per_sec"`
}

// Input is INPUT.*. It is loaded but not read by any component: cmd/feeder
// does not pass FEC on to the input driver.
type Input struct {
	FEC bool `yaml:"fec"`
}

// Ident is IDENT.*: the Login handshake's device identity and username.
// Serial feeds internal/serialprovider.StaticProvider; spec.md scopes
// real serial acquisition (MAC-derived or remote-issued) out of the core.
type Ident struct {
	Username     string `yaml:"username"`
	Serial       uint32 `yaml:"serial"`
	DeviceType   uint32 `yaml:"device_type"`
	VersionMajor uint32 `yaml:"version_major"`
	VersionMinor uint32 `yaml:"version_minor"`
	VersionPatch uint32 `yaml:"version_patch"`
}

// Logging configures internal/logging.New.
type Logging struct {
	Level    string `yaml:"level"`
	Format   string `yaml:"format"`
	FilePath string `yaml:"file_path"`
}

// Load reads and validates the YAML configuration file at path, filling
// in defaults for anything left unset.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Buffer.StaticBacklog <= 0 {
		c.Buffer.StaticBacklog = 200
	}
	if c.Buffer.DynamicIncrements <= 0 {
		c.Buffer.DynamicIncrements = 1080
	}
	if c.Buffer.GCInterval <= 0 {
		c.Buffer.GCInterval = 120 * time.Second
	}
	if c.Buffer.GCLevel <= 0 {
		c.Buffer.GCLevel = 2
	}
	if c.Network.Port == 0 {
		c.Network.Port = 30005
	}
	if c.Network.Timeout <= 0 {
		c.Network.Timeout = time.Second
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "json"
	}
}

func (c *Config) validate() error {
	if c.Buffer.StaticBacklog < 2 {
		return fmt.Errorf("buffer.static_backlog must be at least 2, got %d", c.Buffer.StaticBacklog)
	}
	if c.Buffer.DynamicBacklog < 0 {
		return fmt.Errorf("buffer.dynamic_backlog must not be negative")
	}
	if c.Network.Host == "" {
		return fmt.Errorf("network.host is required")
	}
	if c.Network.Port <= 0 || c.Network.Port > 65535 {
		return fmt.Errorf("network.port must be between 1 and 65535, got %d", c.Network.Port)
	}
	if c.Network.DSCP != "" {
		if _, err := network.ParseDSCP(c.Network.DSCP); err != nil {
			return fmt.Errorf("network.dscp: %w", err)
		}
	}
	if len(c.Ident.Username) > 40 {
		return fmt.Errorf("ident.username must be at most 40 bytes, got %d", len(c.Ident.Username))
	}
	return nil
}
