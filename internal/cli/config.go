package cli

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	defaultHeartbeatInterval = 15 * time.Second
	defaultInstanceTTL       = time.Minute
)

// Config is the optional peerlock config file. Every field has a default;
// a missing file is not an error.
type Config struct {
	DBPath            string `yaml:"db_path"`
	HeartbeatInterval string `yaml:"heartbeat_interval"`
	InstanceTTL       string `yaml:"instance_ttl"`
}

// LoadConfig reads the YAML config at path. When path is empty it falls
// back to $PEERLOCK_CONFIG, then ~/.peerlock/config.yaml.
func LoadConfig(path string) (Config, error) {
	if path == "" {
		path = os.Getenv("PEERLOCK_CONFIG")
	}
	if path == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return Config{}, fmt.Errorf("get home dir: %w", err)
		}
		path = filepath.Join(home, ".peerlock", "config.yaml")
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return Config{}, nil
		}
		return Config{}, fmt.Errorf("read config: %w", err)
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse config: %w", err)
	}
	return cfg, nil
}

// DefaultDBPath returns the registry path used when neither the flag nor
// the config file sets one.
func DefaultDBPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("get home dir: %w", err)
	}
	return filepath.Join(home, ".peerlock", "locks.db"), nil
}

func (c Config) heartbeatInterval() (time.Duration, error) {
	return parseDuration(c.HeartbeatInterval, defaultHeartbeatInterval)
}

func (c Config) instanceTTL() (time.Duration, error) {
	return parseDuration(c.InstanceTTL, defaultInstanceTTL)
}

func parseDuration(s string, def time.Duration) (time.Duration, error) {
	if s == "" {
		return def, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("parse duration %q: %w", s, err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("duration %q must be positive", s)
	}
	return d, nil
}
