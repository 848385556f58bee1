package config

import (
	"time"

	"github.com/dmitrijs2005/nutritrack/internal/edge"
)

const (
	StorageMemory = "memory"
	StorageSQLite = "sqlite"
	StorageS3     = "s3"
)

// Config holds runtime settings for the edge proxy.
//
// Fields:
//   - ListenAddr: bind address of the proxy and its control surface.
//   - OriginURL: where the web app is served from.
//   - BackendURL: REST backend that background sync delivers to.
//   - CacheVersion / CachePrefix: generation names are <prefix>-<purpose>-<version>.
//   - Manifest: paths pre-cached on install.
//   - APIPrefixes / BypassHosts: traffic that is never intercepted.
//   - Storage: memory, sqlite or s3.
//   - SQLitePath: cache database for the sqlite storage.
//   - QueueDatabase: write queue database; empty disables background sync.
//   - PushSecret: HMAC secret for push sender tokens (HS256).
//   - MaxEntryBytes: responses above this size are not stored.
//   - BackgroundTimeout: deadline of background revalidation and stores.
//   - RequestTimeout: deadline of outbound requests.
//   - S3*: object storage settings for the s3 storage.
type Config struct {
	ListenAddr        string
	OriginURL         string
	BackendURL        string
	CacheVersion      string
	CachePrefix       string
	Manifest          []string
	APIPrefixes       []string
	BypassHosts       []string
	Storage           string
	SQLitePath        string
	QueueDatabase     string
	PushSecret        string
	MaxEntryBytes     int64
	BackgroundTimeout time.Duration
	RequestTimeout    time.Duration
	LogLevel          string
	LogFormat         string
	S3RootUser        string
	S3RootPassword    string
	S3Bucket          string
	S3Region          string
	S3BaseEndpoint    string
	S3Root            string
}

// LoadDefaults populates Config with development defaults.
// NOTE: the push secret and S3 credentials must be overridden in production.
func (c *Config) LoadDefaults() {
	c.ListenAddr = ":8080"
	c.OriginURL = "http://localhost:5173"
	c.BackendURL = "http://localhost:3001"
	c.CacheVersion = "v2"
	c.CachePrefix = edge.DefaultPrefix
	c.Manifest = append([]string(nil), edge.DefaultManifest...)
	c.APIPrefixes = []string{"/api/"}
	c.BypassHosts = []string{"localhost:3001"}
	c.Storage = StorageMemory
	c.SQLitePath = "edge-cache.db"
	c.QueueDatabase = ""
	c.PushSecret = "secretKey"
	c.MaxEntryBytes = edge.DefaultMaxEntryBytes
	c.BackgroundTimeout = edge.DefaultBackgroundTimeout
	c.RequestTimeout = 10 * time.Second
	c.LogLevel = "info"
	c.LogFormat = "json"
	c.S3RootUser = "admin"
	c.S3RootPassword = "secretpassword"
	c.S3Bucket = "nutritrack-cache"
	c.S3Region = "us-east-1"
	c.S3BaseEndpoint = "http://127.0.0.1:9000/"
	c.S3Root = "edge/"
}

// LoadConfig builds a Config by applying defaults, then overlaying values
// from an optional JSON file and finally from command-line flags.
func LoadConfig() *Config {
	cfg := &Config{}
	cfg.LoadDefaults()
	parseJson(cfg)
	parseFlags(cfg)
	return cfg
}
