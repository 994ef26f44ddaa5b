// Package config loads the realtime client settings from defaults, an
// optional YAML file and REALTIME_ prefixed environment variables.
package config

import (
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/yanun0323/errors"
	"gopkg.in/yaml.v3"
)

const (
	EnvPrefix  = "REALTIME_"
	DefaultURL = "ws://localhost:8080"
)

var (
	ErrInvalidConfig = errors.New("config: invalid")
)

type Config struct {
	SocketURL            string        `yaml:"socket_url" env:"SOCKET_URL"`
	Origin               string        `yaml:"origin" env:"ORIGIN"`
	MaxReconnectAttempts int           `yaml:"max_reconnect_attempts" env:"MAX_RECONNECT_ATTEMPTS"`
	ReconnectDelay       time.Duration `yaml:"reconnect_delay" env:"RECONNECT_DELAY"`
	ReconnectMultiplier  float64       `yaml:"reconnect_multiplier" env:"RECONNECT_MULTIPLIER"`
	ReconnectMaxDelay    time.Duration `yaml:"reconnect_max_delay" env:"RECONNECT_MAX_DELAY"`
	TypingTTL            time.Duration `yaml:"typing_ttl" env:"TYPING_TTL"`
	SweepInterval        time.Duration `yaml:"sweep_interval" env:"SWEEP_INTERVAL"`
	DefaultRoom          string        `yaml:"default_room" env:"DEFAULT_ROOM"`
	PingInterval         time.Duration `yaml:"ping_interval" env:"PING_INTERVAL"`
	HandshakeTimeout     time.Duration `yaml:"handshake_timeout" env:"HANDSHAKE_TIMEOUT"`
	WriteTimeout         time.Duration `yaml:"write_timeout" env:"WRITE_TIMEOUT"`
	WriteQueueSize       int           `yaml:"write_queue_size" env:"WRITE_QUEUE_SIZE"`
}

// Default returns the built-in settings.
func Default() Config {
	return Config{
		MaxReconnectAttempts: 5,
		ReconnectDelay:       3 * time.Second,
		ReconnectMultiplier:  1,
		ReconnectMaxDelay:    30 * time.Second,
		TypingTTL:            5 * time.Second,
		SweepInterval:        5 * time.Second,
		DefaultRoom:          "global",
		PingInterval:         30 * time.Second,
		HandshakeTimeout:     10 * time.Second,
		WriteTimeout:         10 * time.Second,
		WriteQueueSize:       256,
	}
}

// Load layers defaults, the YAML file at path (skipped when empty) and the
// environment, then validates the result.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		if err := cfg.LoadFile(path); err != nil {
			return Config{}, err
		}
	}
	if err := cfg.LoadEnv(); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// LoadFile overlays the fields present in a YAML file.
func (c *Config) LoadFile(path string) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return errors.Wrap(err, "read config "+path)
	}
	if err := yaml.Unmarshal(raw, c); err != nil {
		return errors.Wrap(err, "parse config "+path)
	}
	return nil
}

// LoadEnv overlays the REALTIME_ environment variables that are set.
func (c *Config) LoadEnv() error {
	if err := env.ParseWithOptions(c, env.Options{Prefix: EnvPrefix}); err != nil {
		return errors.Wrap(err, "parse env")
	}
	return nil
}

// URL resolves the endpoint: SocketURL, then the websocket form of Origin,
// then DefaultURL.
func (c Config) URL() string {
	if c.SocketURL != "" {
		return c.SocketURL
	}
	if c.Origin != "" {
		if u, err := url.Parse(c.Origin); err == nil && u.Host != "" {
			switch u.Scheme {
			case "https", "wss":
				u.Scheme = "wss"
			default:
				u.Scheme = "ws"
			}
			u.Path = strings.TrimSuffix(u.Path, "/")
			return u.String()
		}
	}
	return DefaultURL
}

func (c Config) Validate() error {
	u, err := url.Parse(c.URL())
	if err != nil {
		return errors.Wrap(ErrInvalidConfig, "socket url: "+err.Error())
	}
	if u.Scheme != "ws" && u.Scheme != "wss" {
		return errors.Wrap(ErrInvalidConfig, "socket url scheme must be ws or wss")
	}
	if u.Host == "" {
		return errors.Wrap(ErrInvalidConfig, "socket url has no host")
	}
	if c.MaxReconnectAttempts < 0 {
		return errors.Wrap(ErrInvalidConfig, "max reconnect attempts must not be negative")
	}
	if c.ReconnectDelay <= 0 {
		return errors.Wrap(ErrInvalidConfig, "reconnect delay must be positive")
	}
	if c.ReconnectMultiplier < 0 {
		return errors.Wrap(ErrInvalidConfig, "reconnect multiplier must not be negative")
	}
	if c.TypingTTL <= 0 {
		return errors.Wrap(ErrInvalidConfig, "typing ttl must be positive")
	}
	if c.SweepInterval <= 0 {
		return errors.Wrap(ErrInvalidConfig, "sweep interval must be positive")
	}
	if c.WriteQueueSize < 0 {
		return errors.Wrap(ErrInvalidConfig, "write queue size must not be negative")
	}
	return nil
}
