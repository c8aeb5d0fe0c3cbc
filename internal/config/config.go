package config

import (
	"fmt"
	"net/url"
	"os"
	"time"

	"github.com/BurntSushi/toml"
)

// DefaultEndpoint is the answer service the client talks to unless
// configured otherwise.
const DefaultEndpoint = "ws://localhost:8000/ws/chat"

// Config holds application configuration. Values come from an optional TOML
// file, overridden by command-line flags.
type Config struct {
	// Endpoint is the WebSocket URL of the answer service.
	Endpoint string `toml:"endpoint"`
	// HandshakeTimeoutSecs bounds the channel open. 0 means the default.
	HandshakeTimeoutSecs int `toml:"handshake_timeout_secs"`
	// ReadTimeoutSecs bounds the wait for each inbound frame. 0 disables
	// the deadline and restores the unbounded wait of the original client.
	ReadTimeoutSecs int `toml:"read_timeout_secs"`
	// LogDir is where rotated logs, traces and metrics are written.
	LogDir string `toml:"log_dir"`
	Debug  bool   `toml:"debug"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Endpoint:             DefaultEndpoint,
		HandshakeTimeoutSecs: 10,
		ReadTimeoutSecs:      120,
		LogDir:               "logs",
	}
}

// Load reads a TOML config file over the defaults. A missing file is fine;
// the defaults stand.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}
	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, fmt.Errorf("failed to load config file %s: %w", path, err)
	}
	return cfg, nil
}

// Validate checks that the configuration is usable.
func (c Config) Validate() error {
	u, err := url.Parse(c.Endpoint)
	if err != nil {
		return fmt.Errorf("invalid endpoint %q: %w", c.Endpoint, err)
	}
	if u.Scheme != "ws" && u.Scheme != "wss" {
		return fmt.Errorf("endpoint %q must use ws:// or wss://", c.Endpoint)
	}
	if c.HandshakeTimeoutSecs < 0 || c.ReadTimeoutSecs < 0 {
		return fmt.Errorf("timeouts must not be negative")
	}
	return nil
}

// HandshakeTimeout returns the channel open deadline.
func (c Config) HandshakeTimeout() time.Duration {
	if c.HandshakeTimeoutSecs <= 0 {
		return 10 * time.Second
	}
	return time.Duration(c.HandshakeTimeoutSecs) * time.Second
}

// ReadTimeout returns the per-frame read deadline; 0 means no deadline.
func (c Config) ReadTimeout() time.Duration {
	return time.Duration(c.ReadTimeoutSecs) * time.Second
}
