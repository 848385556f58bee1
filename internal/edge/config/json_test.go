package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTempJSON(t *testing.T, dir, name string, data map[string]any) string {
	t.Helper()
	path := filepath.Join(dir, name)
	b, err := json.Marshal(data)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, b, 0o600))
	return path
}

func Test_parseJson(t *testing.T) {
	origArgs := os.Args
	t.Cleanup(func() { os.Args = origArgs })

	dir := t.TempDir()
	path := writeTempJSON(t, dir, "edge.json", map[string]any{
		"origin_url":         "http://app.example",
		"cache_version":      "v7",
		"manifest":           []string{"/", "/offline.html"},
		"storage":            "sqlite",
		"max_entry_bytes":    1024,
		"background_timeout": "5s",
		"request_timeout":    int64(2 * time.Second),
		"s3_root":            "",
	})

	t.Run("overlays present keys", func(t *testing.T) {
		os.Args = []string{"testbin", "-c", path}

		cfg := &Config{}
		cfg.LoadDefaults()
		parseJson(cfg)

		assert.Equal(t, "http://app.example", cfg.OriginURL)
		assert.Equal(t, "v7", cfg.CacheVersion)
		assert.Equal(t, []string{"/", "/offline.html"}, cfg.Manifest)
		assert.Equal(t, StorageSQLite, cfg.Storage)
		assert.Equal(t, int64(1024), cfg.MaxEntryBytes)
		assert.Equal(t, 5*time.Second, cfg.BackgroundTimeout)
		assert.Equal(t, 2*time.Second, cfg.RequestTimeout)
		assert.Equal(t, "", cfg.S3Root)

		// untouched
		assert.Equal(t, ":8080", cfg.ListenAddr)
		assert.Equal(t, []string{"/api/"}, cfg.APIPrefixes)
	})

	t.Run("no flags → no changes", func(t *testing.T) {
		os.Args = []string{"testbin"}

		cfg := &Config{OriginURL: "http://keep"}
		parseJson(cfg)
		assert.Equal(t, "http://keep", cfg.OriginURL)
	})

	t.Run("invalid JSON → panics", func(t *testing.T) {
		bad := filepath.Join(dir, "bad.json")
		require.NoError(t, os.WriteFile(bad, []byte(`{"cache_version": `), 0o600))
		os.Args = []string{"testbin", "-config", bad}
		require.Panics(t, func() { parseJson(&Config{}) })
	})
}
