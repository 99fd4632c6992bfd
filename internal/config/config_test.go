package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/go-ini/ini"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeINI(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), DefaultFileName)
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	path := writeINI(t, "[paths]\nsavedvariables = /tmp/TellMeWhen.lua\n")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "/tmp/TellMeWhen.lua", cfg.Destination())
	assert.Equal(t, filepath.Join(filepath.Dir(path), DefaultSource), cfg.SourceRoot())
	assert.Equal(t, ".lua", cfg.Watch.Extension)
	assert.Empty(t, cfg.Watch.Exclude)
	assert.Equal(t, DefaultSourceDebounce, cfg.Watch.SourceDebounce)
	assert.Equal(t, DefaultDestinationDebounce, cfg.Watch.DestinationDebounce)
	assert.Equal(t, DefaultCooldown, cfg.Watch.Cooldown)
	assert.Equal(t, DefaultPollInterval, cfg.Watch.PollInterval)
	assert.Equal(t, DefaultLogMaxSizeMB, cfg.Log.MaxSizeMB)
	assert.Empty(t, cfg.Log.File)
	assert.Empty(t, cfg.History.Path)
	assert.Equal(t, DefaultDashboardHost, cfg.Dashboard.Host)
	assert.Zero(t, cfg.Dashboard.Port)
	assert.Equal(t, path, cfg.Path)
}

func TestLoad_AllSections(t *testing.T) {
	path := writeINI(t, `[paths]
savedvariables = /games/wow/TellMeWhen.lua
source = /src/aio

[watch]
extension = lua
exclude = *_test.lua, .*
source_debounce = 150ms
destination_debounce = 1s
cooldown = 5s
poll_interval = 250ms

[log]
file = logs/svsync.log
max_size_mb = 5
compress = true

[history]
path = .svsync/history.db

[dashboard]
host = 0.0.0.0
port = 9090
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	dir := filepath.Dir(path)
	assert.Equal(t, "/src/aio", cfg.SourceRoot())
	assert.Equal(t, ".lua", cfg.Watch.Extension)
	assert.Equal(t, []string{"*_test.lua", ".*"}, cfg.Watch.Exclude)
	assert.Equal(t, 150*time.Millisecond, cfg.Watch.SourceDebounce)
	assert.Equal(t, time.Second, cfg.Watch.DestinationDebounce)
	assert.Equal(t, 5*time.Second, cfg.Watch.Cooldown)
	assert.Equal(t, 250*time.Millisecond, cfg.Watch.PollInterval)
	assert.Equal(t, filepath.Join(dir, "logs/svsync.log"), cfg.Log.File)
	assert.Equal(t, 5, cfg.Log.MaxSizeMB)
	assert.True(t, cfg.Log.Compress)
	assert.Equal(t, filepath.Join(dir, ".svsync/history.db"), cfg.History.Path)
	assert.Equal(t, "0.0.0.0", cfg.Dashboard.Host)
	assert.Equal(t, 9090, cfg.Dashboard.Port)
}

func TestLoad_RelativeConfigPath(t *testing.T) {
	path := writeINI(t, "[paths]\nsavedvariables = /tmp/TellMeWhen.lua\n[history]\npath = .svsync/history.db\n")
	t.Chdir(filepath.Dir(path))

	cfg, err := Load(DefaultFileName)
	require.NoError(t, err)

	wd, err := os.Getwd()
	require.NoError(t, err)
	assert.True(t, filepath.IsAbs(cfg.SourceRoot()), "source root %q should be absolute", cfg.SourceRoot())
	assert.Equal(t, filepath.Join(wd, DefaultSource), cfg.SourceRoot())
	assert.Equal(t, filepath.Join(wd, ".svsync", "history.db"), cfg.History.Path)
	assert.Equal(t, DefaultFileName, cfg.Path)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.ini"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not found")
}

func TestLoad_MissingDestination(t *testing.T) {
	path := writeINI(t, "[paths]\nsource = src\n")

	_, err := Load(path)
	assert.True(t, errors.Is(err, ErrMissingDestination), "got %v", err)
}

func TestLoad_InvalidDuration(t *testing.T) {
	path := writeINI(t, "[paths]\nsavedvariables = x.lua\n[watch]\ncooldown = soon\n")

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "cooldown")
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		return &Config{
			Paths: PathsConfig{Destination: "x.lua", Source: "src"},
			Watch: WatchConfig{
				SourceDebounce:      DefaultSourceDebounce,
				DestinationDebounce: DefaultDestinationDebounce,
				Cooldown:            DefaultCooldown,
				PollInterval:        DefaultPollInterval,
			},
		}
	}

	tests := []struct {
		name   string
		mutate func(c *Config)
		want   error
	}{
		{"valid", func(c *Config) {}, nil},
		{"no destination", func(c *Config) { c.Paths.Destination = "" }, ErrMissingDestination},
		{"zero debounce", func(c *Config) { c.Watch.SourceDebounce = 0 }, ErrInvalidDuration},
		{"negative poll", func(c *Config) { c.Watch.PollInterval = -time.Second }, ErrInvalidDuration},
		{"cooldown equals poll", func(c *Config) { c.Watch.Cooldown = c.Watch.PollInterval }, ErrCooldownTooShort},
		{"cooldown below poll", func(c *Config) { c.Watch.Cooldown = 500 * time.Millisecond }, ErrCooldownTooShort},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := valid()
			tt.mutate(c)
			err := c.Validate()
			if tt.want == nil {
				assert.NoError(t, err)
				return
			}
			assert.True(t, errors.Is(err, tt.want), "Validate() = %v, want %v", err, tt.want)
		})
	}
}

func TestParse_InvalidPort(t *testing.T) {
	file, err := ini.Load([]byte("[paths]\nsavedvariables = x.lua\n[dashboard]\nport = http\n"))
	require.NoError(t, err)

	_, err = Parse(file, "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "port")
}
