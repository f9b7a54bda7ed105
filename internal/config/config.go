// Package config loads the sacnrx configuration from TOML or YAML files.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"

	"github.com/Hundemeier/go-sacn/sacn"
)

// Environment variables that override file values.
const (
	EnvUniverse = "SACNRX_UNIVERSE"
	EnvDebug    = "SACNRX_DEBUG"
	EnvLogLevel = "SACNRX_LOG_LEVEL"
)

// MinStaleAfter is the shortest liveness window the daemon accepts.
const MinStaleAfter = 10 * time.Millisecond

// Config is the root configuration of the receiver daemon.
type Config struct {
	Receiver ReceiverConfig `toml:"receiver" yaml:"receiver"`
	Logging  LoggingConfig  `toml:"logging" yaml:"logging"`
	Status   StatusConfig   `toml:"status" yaml:"status"`
	MQTT     MQTTConfig     `toml:"mqtt" yaml:"mqtt"`
}

// ReceiverConfig selects the universe and how it is received.
type ReceiverConfig struct {
	Universe uint16 `toml:"universe" yaml:"universe"`
	// Interface is the name of the network interface used to join the multicast group.
	// Empty lets the OS choose.
	Interface string `toml:"interface" yaml:"interface"`
	Debug     bool   `toml:"debug" yaml:"debug"`
	// StaleAfter is the time without valid packets after which the source is considered lost.
	StaleAfter Duration `toml:"stale_after" yaml:"stale_after"`
	// Mode is "poll" (WaitForNewData loop) or "callback".
	Mode string `toml:"mode" yaml:"mode"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Level  string `toml:"level" yaml:"level"`
	Format string `toml:"format" yaml:"format"`
}

// StatusConfig contains the HTTP status/metrics listener settings.
type StatusConfig struct {
	Enabled bool   `toml:"enabled" yaml:"enabled"`
	Addr    string `toml:"addr" yaml:"addr"`
}

// MQTTConfig contains settings for forwarding frames to an MQTT broker.
type MQTTConfig struct {
	Enabled     bool   `toml:"enabled" yaml:"enabled"`
	Broker      string `toml:"broker" yaml:"broker"`
	ClientID    string `toml:"client_id" yaml:"client_id"`
	Username    string `toml:"username" yaml:"username"`
	Password    string `toml:"password" yaml:"password"`
	TopicPrefix string `toml:"topic_prefix" yaml:"topic_prefix"`
	QoS         int    `toml:"qos" yaml:"qos"`
}

// Duration is a time.Duration written as "2.5s" in config files.
type Duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler (used by toml).
func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(strings.TrimSpace(string(text)))
	if err != nil {
		return err
	}
	d.Duration = v
	return nil
}

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	return d.UnmarshalText([]byte(node.Value))
}

// Default returns the configuration used for values missing in the file.
func Default() Config {
	return Config{
		Receiver: ReceiverConfig{
			Universe:   1,
			StaleAfter: Duration{2500 * time.Millisecond},
			Mode:       ModePoll,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
		Status: StatusConfig{
			Addr: ":9568",
		},
		MQTT: MQTTConfig{
			Broker:      "tcp://127.0.0.1:1883",
			ClientID:    "sacnrx",
			TopicPrefix: "sacn",
			QoS:         0,
		},
	}
}

// Receive modes.
const (
	ModePoll     = "poll"
	ModeCallback = "callback"
)

// Load reads the file at path on top of Default, applies environment overrides and validates
// the result. Files ending in .yaml or .yml are parsed as YAML, everything else as TOML.
// An empty path only applies defaults and environment.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		if err := loadFile(path, &cfg); err != nil {
			return Config{}, err
		}
	}
	if err := applyEnvOverrides(&cfg); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func loadFile(path string, cfg *Config) error {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("config load failed (%s): %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return fmt.Errorf("config parse failed (%s): %w", path, err)
		}
	default:
		meta, err := toml.DecodeFile(path, cfg)
		if err != nil {
			return fmt.Errorf("config parse failed (%s): %w", path, err)
		}
		if undecoded := meta.Undecoded(); len(undecoded) > 0 {
			return fmt.Errorf("config parse failed (%s): unknown key %q", path, undecoded[0].String())
		}
	}
	return nil
}

func applyEnvOverrides(cfg *Config) error {
	if raw := strings.TrimSpace(os.Getenv(EnvUniverse)); raw != "" {
		v, err := strconv.ParseUint(raw, 10, 16)
		if err != nil {
			return fmt.Errorf("parse %s: %w", EnvUniverse, err)
		}
		cfg.Receiver.Universe = uint16(v)
	}
	if raw := strings.TrimSpace(os.Getenv(EnvDebug)); raw != "" {
		v, err := strconv.ParseBool(raw)
		if err != nil {
			return fmt.Errorf("parse %s: %w", EnvDebug, err)
		}
		cfg.Receiver.Debug = v
	}
	if raw := strings.TrimSpace(os.Getenv(EnvLogLevel)); raw != "" {
		cfg.Logging.Level = raw
	}
	return nil
}

// Validate checks the configuration for values the receiver cannot work with.
func (c Config) Validate() error {
	if c.Receiver.Universe < sacn.MinUniverse || c.Receiver.Universe > sacn.MaxUniverse {
		return fmt.Errorf("receiver.universe %d not in range [%d-%d]",
			c.Receiver.Universe, sacn.MinUniverse, sacn.MaxUniverse)
	}
	if c.Receiver.StaleAfter.Duration < MinStaleAfter {
		return fmt.Errorf("receiver.stale_after %s must be at least %s", c.Receiver.StaleAfter.Duration, MinStaleAfter)
	}
	switch c.Receiver.Mode {
	case ModePoll, ModeCallback:
	default:
		return fmt.Errorf("receiver.mode %q must be %q or %q", c.Receiver.Mode, ModePoll, ModeCallback)
	}
	switch strings.ToLower(c.Logging.Format) {
	case "text", "json":
	default:
		return fmt.Errorf("logging.format %q must be text or json", c.Logging.Format)
	}
	if c.Status.Enabled && strings.TrimSpace(c.Status.Addr) == "" {
		return fmt.Errorf("status.addr missing")
	}
	if c.MQTT.Enabled {
		if strings.TrimSpace(c.MQTT.Broker) == "" {
			return fmt.Errorf("mqtt.broker missing")
		}
		if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
			return fmt.Errorf("mqtt.qos %d must be 0, 1 or 2", c.MQTT.QoS)
		}
	}
	return nil
}
