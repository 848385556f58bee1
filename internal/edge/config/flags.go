package config

import (
	"flag"
	"os"
	"time"

	"github.com/dmitrijs2005/nutritrack/internal/flagx"
)

// parseFlags populates selected Config fields from command-line flags.
//
// Supported flags (short forms):
//
//	-a string   listen address (e.g., ":8080")
//	-o string   origin URL
//	-b string   backend URL
//	-v string   cache version
//	-p string   cache prefix
//	-m list     manifest paths, comma separated
//	-s string   storage: memory, sqlite or s3
//	-d string   sqlite cache database
//	-q string   write queue database (enables background sync)
//	-k string   push secret key
//	-t int      request timeout, seconds
//	-l string   log level
//	-u string   S3 root user
//	-w string   S3 root password
//	-n string   S3 bucket name
//	-g string   S3 region
//	-e string   S3 base endpoint (e.g., "http://127.0.0.1:9000/")
//
// os.Args is filtered with flagx.FilterArgs first. A malformed value panics.
func parseFlags(cfg *Config) {
	args := flagx.FilterArgs(os.Args[1:], []string{
		"-a", "-o", "-b", "-v", "-p", "-m", "-s", "-d", "-q", "-k", "-t", "-l",
		"-u", "-w", "-n", "-g", "-e",
	})

	fs := flag.NewFlagSet("main", flag.ContinueOnError)

	fs.StringVar(&cfg.ListenAddr, "a", cfg.ListenAddr, "address and port to listen on")
	fs.StringVar(&cfg.OriginURL, "o", cfg.OriginURL, "origin URL of the web app")
	fs.StringVar(&cfg.BackendURL, "b", cfg.BackendURL, "backend URL")
	fs.StringVar(&cfg.CacheVersion, "v", cfg.CacheVersion, "cache version")
	fs.StringVar(&cfg.CachePrefix, "p", cfg.CachePrefix, "cache prefix")
	manifest := flagx.StringList(cfg.Manifest)
	fs.Var(&manifest, "m", "paths pre-cached on install")
	fs.StringVar(&cfg.Storage, "s", cfg.Storage, "cache storage (memory, sqlite, s3)")
	fs.StringVar(&cfg.SQLitePath, "d", cfg.SQLitePath, "sqlite cache database")
	fs.StringVar(&cfg.QueueDatabase, "q", cfg.QueueDatabase, "write queue database")
	fs.StringVar(&cfg.PushSecret, "k", cfg.PushSecret, "push secret key")
	requestTimeout := fs.Int("t", int(cfg.RequestTimeout.Seconds()), "request timeout (in seconds)")
	fs.StringVar(&cfg.LogLevel, "l", cfg.LogLevel, "log level (debug, info, warn, error)")

	fs.StringVar(&cfg.S3RootUser, "u", cfg.S3RootUser, "S3 root user")
	fs.StringVar(&cfg.S3RootPassword, "w", cfg.S3RootPassword, "S3 root password")
	fs.StringVar(&cfg.S3Bucket, "n", cfg.S3Bucket, "S3 bucket")
	fs.StringVar(&cfg.S3Region, "g", cfg.S3Region, "S3 region")
	fs.StringVar(&cfg.S3BaseEndpoint, "e", cfg.S3BaseEndpoint, "S3 base endpoint")

	if err := fs.Parse(args); err != nil {
		panic(err)
	}

	cfg.Manifest = manifest
	cfg.RequestTimeout = time.Duration(*requestTimeout) * time.Second
}
