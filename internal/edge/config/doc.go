// Package config handles configuration for the edge proxy, including
// defaults, JSON overlay, and command-line flags.
package config
