package config

import (
	"encoding/json"
	"os"

	"github.com/dmitrijs2005/nutritrack/internal/flagx"
	"github.com/dmitrijs2005/nutritrack/internal/timex"
)

// JsonConfig is a DTO used exclusively for JSON unmarshalling. Pointer
// fields tell "absent" apart from "zero"; durations accept "30s" or
// integer nanoseconds.
type JsonConfig struct {
	ListenAddr        *string         `json:"listen_addr"`
	OriginURL         *string         `json:"origin_url"`
	BackendURL        *string         `json:"backend_url"`
	CacheVersion      *string         `json:"cache_version"`
	CachePrefix       *string         `json:"cache_prefix"`
	Manifest          []string        `json:"manifest"`
	APIPrefixes       []string        `json:"api_prefixes"`
	BypassHosts       []string        `json:"bypass_hosts"`
	Storage           *string         `json:"storage"`
	SQLitePath        *string         `json:"sqlite_path"`
	QueueDatabase     *string         `json:"queue_database"`
	PushSecret        *string         `json:"push_secret"`
	MaxEntryBytes     *int64          `json:"max_entry_bytes"`
	BackgroundTimeout *timex.Duration `json:"background_timeout"`
	RequestTimeout    *timex.Duration `json:"request_timeout"`
	LogLevel          *string         `json:"log_level"`
	LogFormat         *string         `json:"log_format"`
	S3RootUser        *string         `json:"s3_root_user"`
	S3RootPassword    *string         `json:"s3_root_password"`
	S3Bucket          *string         `json:"s3_bucket"`
	S3Region          *string         `json:"s3_region"`
	S3BaseEndpoint    *string         `json:"s3_base_endpoint"`
	S3Root            *string         `json:"s3_root"`
}

// parseJson overlays cfg with the JSON file named by -c/-config. It does
// nothing when neither flag is given and panics on read or unmarshal errors.
func parseJson(cfg *Config) {
	jsonConfigFile := flagx.JsonConfigFlags()
	if jsonConfigFile == "" {
		return
	}

	var jc JsonConfig

	data, err := os.ReadFile(jsonConfigFile)
	if err != nil {
		panic(err)
	}
	if err := json.Unmarshal(data, &jc); err != nil {
		panic(err)
	}

	setString(&cfg.ListenAddr, jc.ListenAddr)
	setString(&cfg.OriginURL, jc.OriginURL)
	setString(&cfg.BackendURL, jc.BackendURL)
	setString(&cfg.CacheVersion, jc.CacheVersion)
	setString(&cfg.CachePrefix, jc.CachePrefix)
	if jc.Manifest != nil {
		cfg.Manifest = jc.Manifest
	}
	if jc.APIPrefixes != nil {
		cfg.APIPrefixes = jc.APIPrefixes
	}
	if jc.BypassHosts != nil {
		cfg.BypassHosts = jc.BypassHosts
	}
	setString(&cfg.Storage, jc.Storage)
	setString(&cfg.SQLitePath, jc.SQLitePath)
	setString(&cfg.QueueDatabase, jc.QueueDatabase)
	setString(&cfg.PushSecret, jc.PushSecret)
	if jc.MaxEntryBytes != nil {
		cfg.MaxEntryBytes = *jc.MaxEntryBytes
	}
	if jc.BackgroundTimeout != nil {
		cfg.BackgroundTimeout = jc.BackgroundTimeout.Duration
	}
	if jc.RequestTimeout != nil {
		cfg.RequestTimeout = jc.RequestTimeout.Duration
	}
	setString(&cfg.LogLevel, jc.LogLevel)
	setString(&cfg.LogFormat, jc.LogFormat)
	setString(&cfg.S3RootUser, jc.S3RootUser)
	setString(&cfg.S3RootPassword, jc.S3RootPassword)
	setString(&cfg.S3Bucket, jc.S3Bucket)
	setString(&cfg.S3Region, jc.S3Region)
	setString(&cfg.S3BaseEndpoint, jc.S3BaseEndpoint)
	setString(&cfg.S3Root, jc.S3Root)
}

func setString(dst *string, v *string) {
	if v != nil {
		*dst = *v
	}
}
