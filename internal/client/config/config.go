package config

import "time"

// Config holds runtime settings for the NutriTrack offline client.
//
// Fields:
//   - BackendURL: base URL of the REST backend (json-server compatible).
//   - DatabasePath: SQLite file holding the write queue.
//   - OnlineCheckInterval: how often the client probes backend reachability.
//   - RequestTimeout: per-request deadline for probes and deliveries.
//   - LogLevel: debug, info, warn or error.
type Config struct {
	BackendURL          string
	DatabasePath        string
	OnlineCheckInterval time.Duration
	RequestTimeout      time.Duration
	LogLevel            string
}

// LoadDefaults populates c with sensible defaults.
func (c *Config) LoadDefaults() {
	c.BackendURL = "http://localhost:3001"
	c.DatabasePath = "nutritrack.db"
	c.OnlineCheckInterval = 3 * time.Second
	c.RequestTimeout = 10 * time.Second
	c.LogLevel = "info"
}

// LoadConfig constructs a Config, applies defaults, then overlays values from
// JSON (if present) and command-line flags (if present). Later sources take
// precedence over earlier ones.
func LoadConfig() *Config {
	cfg := &Config{}
	cfg.LoadDefaults()
	parseJson(cfg)
	parseFlags(cfg)
	return cfg
}
