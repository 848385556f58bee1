package config

import (
	"os"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseFlags(t *testing.T) {
	origArgs := os.Args
	t.Cleanup(func() { os.Args = origArgs })

	tests := []struct {
		expected    *Config
		name        string
		args        []string
		expectPanic bool
	}{
		{
			name: "all flags",
			args: []string{"cmd", "-b", "http://api.test:3001", "-d", "/tmp/q.db", "-i", "10", "-t", "4", "-l", "debug"},
			expected: &Config{
				BackendURL: "http://api.test:3001", DatabasePath: "/tmp/q.db",
				OnlineCheckInterval: 10 * time.Second, RequestTimeout: 4 * time.Second, LogLevel: "debug",
			},
		},
		{
			name: "foreign flags are ignored",
			args: []string{"cmd", "-c", "cfg.json", "-x", "1", "-i", "5"},
			expected: &Config{
				BackendURL: "http://localhost:3001", DatabasePath: "nutritrack.db",
				OnlineCheckInterval: 5 * time.Second, RequestTimeout: 10 * time.Second, LogLevel: "info",
			},
		},
		{name: "incorrect check interval", args: []string{"cmd", "-i", "abc"}, expectPanic: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			os.Args = tt.args

			config := &Config{}
			config.LoadDefaults()

			if !tt.expectPanic {
				require.NotPanics(t, func() { parseFlags(config) })
				assert.Empty(t, cmp.Diff(config, tt.expected))
			} else {
				require.Panics(t, func() { parseFlags(config) })
			}
		})
	}
}
