package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse_Defaults(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)

	opts, err := Parse(nil)
	require.NoError(t, err)
	assert.Equal(t, DefaultAddr, opts.Addr)
	assert.Equal(t, filepath.Join(home, ".oroio"), opts.DataDir)
	assert.Equal(t, "native", opts.Codec)
	assert.Equal(t, 4*time.Second, opts.FetchTimeout)
	assert.Equal(t, 6, opts.FetchWorkers)
	assert.Equal(t, "info", opts.LogLevel)
	assert.Empty(t, opts.DatabaseDSN)
	assert.Empty(t, opts.WebDir)
}

func TestParse_Flags(t *testing.T) {
	dir := t.TempDir()
	opts, err := Parse([]string{
		"-a", "127.0.0.1:9000",
		"--data-dir", dir,
		"--codec", "openssl",
		"--fetch-timeout", "2s",
		"--fetch-workers", "3",
		"-d", "postgres://localhost/oroio",
	})
	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1:9000", opts.Addr)
	assert.Equal(t, dir, opts.DataDir)
	assert.Equal(t, "openssl", opts.Codec)
	assert.Equal(t, 2*time.Second, opts.FetchTimeout)
	assert.Equal(t, 3, opts.FetchWorkers)
	assert.Equal(t, "postgres://localhost/oroio", opts.DatabaseDSN)
}

func TestParse_Env(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("SERVER_ADDRESS", "127.0.0.1:7000")
	t.Setenv("OROIO_DATA_DIR", dir)
	t.Setenv("OROIO_FETCH_WORKERS", "2")

	opts, err := Parse(nil)
	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1:7000", opts.Addr)
	assert.Equal(t, dir, opts.DataDir)
	assert.Equal(t, 2, opts.FetchWorkers)

	// An explicit flag wins over the environment.
	opts, err = Parse([]string{"--addr", "127.0.0.1:7001"})
	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1:7001", opts.Addr)
}

func TestParse_ConfigFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "oroio.json")
	body := `{"addr":"127.0.0.1:8800","data_dir":"` + filepath.ToSlash(dir) + `","web_dir":"/srv/web","history_retention":"48h"}`
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))

	t.Setenv("CONFIG", path)
	opts, err := Parse(nil)
	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1:8800", opts.Addr)
	assert.Equal(t, "/srv/web", opts.WebDir)
	assert.Equal(t, 48*time.Hour, opts.HistoryRetention)
	assert.Equal(t, path, opts.Config)
}

func TestParse_ConfigInDataDir(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte("codec: openssl\nlog_level: debug\n"), 0o600))

	opts, err := Parse([]string{"--data-dir", dir})
	require.NoError(t, err)
	assert.Equal(t, "openssl", opts.Codec)
	assert.Equal(t, "debug", opts.LogLevel)
}

func TestParse_Errors(t *testing.T) {
	dir := t.TempDir()
	cases := [][]string{
		{"--data-dir", dir, "--codec", "rot13"},
		{"--data-dir", dir, "--fetch-workers", "0"},
		{"--data-dir", dir, "--fetch-timeout", "0s"},
		{"--config", filepath.Join(dir, "missing.json")},
		{"--no-such-flag"},
	}
	for _, args := range cases {
		_, err := Parse(args)
		assert.Error(t, err, "args %v", args)
	}
}
