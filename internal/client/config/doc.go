// Package config loads runtime configuration for the NutriTrack client.
//
// Sources & precedence
//
//  1. Built-in defaults (see (*Config).LoadDefaults).
//  2. Optional JSON file (see parseJson) selected via flags: -c or -config.
//  3. Command-line flags (see parseFlags), which override earlier values.
//
// Supported flags
//
//	-b string   backend base URL
//	-d string   path of the queue database
//	-i int      online status check interval (seconds)
//	-t int      request timeout (seconds)
//	-l string   log level
//
// # JSON schema
//
// Durations use timex.Duration, so values can be strings like "3s" or
// integer nanoseconds. Keys that are absent keep their earlier value:
//
//	{
//	  "backend_url": "http://localhost:3001",
//	  "database_path": "nutritrack.db",
//	  "online_check_interval": "3s",
//	  "request_timeout": "10s",
//	  "log_level": "info"
//	}
package config
