// Package config loads the svsync dev.ini file.
//
// The file is a plain INI document. Only [paths] savedvariables is required;
// every other key falls back to a default:
//
//	[paths]
//	savedvariables = /path/to/SavedVariables/TellMeWhen.lua
//	source = source/aio
//
//	[watch]
//	extension = .lua
//	exclude = *_test.lua, .*
//	source_debounce = 300ms
//	destination_debounce = 500ms
//	cooldown = 2s
//	poll_interval = 1s
//
//	[log]
//	file = svsync.log
//
//	[history]
//	path = .svsync/history.db
//
//	[dashboard]
//	host = 127.0.0.1
//	port = 8080
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-ini/ini"
)

// Defaults used when a key is absent from the ini file.
const (
	DefaultFileName            = "dev.ini"
	DefaultSource              = "source/aio"
	DefaultExtension           = ".lua"
	DefaultSourceDebounce      = 300 * time.Millisecond
	DefaultDestinationDebounce = 500 * time.Millisecond
	DefaultCooldown            = 2 * time.Second
	DefaultPollInterval        = 1 * time.Second
	DefaultLogMaxSizeMB        = 10
	DefaultLogMaxBackups       = 3
	DefaultLogMaxAgeDays       = 28
	DefaultDashboardHost       = "127.0.0.1"
)

var (
	// ErrMissingDestination indicates [paths] savedvariables is unset.
	ErrMissingDestination = errors.New("dev.ini missing [paths] savedvariables")

	// ErrCooldownTooShort indicates the cooldown cannot outlast the poll
	// latency, so self-writes would be mistaken for external overwrites.
	ErrCooldownTooShort = errors.New("cooldown must be longer than poll_interval")

	// ErrInvalidDuration indicates a debounce, cooldown or poll value is not positive.
	ErrInvalidDuration = errors.New("durations must be positive")
)

// PathsConfig is the [paths] section.
type PathsConfig struct {
	Destination string // savedvariables
	Source      string // source, resolved against the ini directory
}

// WatchConfig is the [watch] section.
type WatchConfig struct {
	Extension           string
	Exclude             []string
	SourceDebounce      time.Duration
	DestinationDebounce time.Duration
	Cooldown            time.Duration
	PollInterval        time.Duration
}

// LogConfig is the [log] section. An empty File logs to stderr only.
type LogConfig struct {
	File       string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
	Compress   bool
}

// HistoryConfig is the [history] section. An empty Path disables history.
type HistoryConfig struct {
	Path string
}

// DashboardConfig is the [dashboard] section. Port 0 disables the dashboard.
type DashboardConfig struct {
	Host string
	Port int
}

// Config is the parsed dev.ini.
type Config struct {
	Path      string
	Paths     PathsConfig
	Watch     WatchConfig
	Log       LogConfig
	History   HistoryConfig
	Dashboard DashboardConfig
}

// Load reads and validates the ini file at path.
func Load(path string) (*Config, error) {
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%s not found (copy dev.ini.example and set [paths] savedvariables)", path)
		}
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}

	file, err := ini.Load(path)
	if err != nil {
		return nil, fmt.Errorf("failed to load config file: %w", err)
	}

	baseDir, err := filepath.Abs(filepath.Dir(path))
	if err != nil {
		return nil, fmt.Errorf("failed to resolve config directory: %w", err)
	}

	cfg, err := Parse(file, baseDir)
	if err != nil {
		return nil, err
	}
	cfg.Path = path

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Parse converts an ini document into a Config. Relative paths are resolved
// against baseDir. Parse does not validate; call Validate.
func Parse(file *ini.File, baseDir string) (*Config, error) {
	cfg := &Config{}

	paths := file.Section("paths")
	cfg.Paths.Destination = strings.TrimSpace(paths.Key("savedvariables").String())
	cfg.Paths.Source = resolve(baseDir, paths.Key("source").MustString(DefaultSource))

	watch := file.Section("watch")
	cfg.Watch.Extension = normalizeExtension(watch.Key("extension").MustString(DefaultExtension))
	cfg.Watch.Exclude = splitList(watch.Key("exclude").String())

	durations := []struct {
		key  string
		def  time.Duration
		dest *time.Duration
	}{
		{"source_debounce", DefaultSourceDebounce, &cfg.Watch.SourceDebounce},
		{"destination_debounce", DefaultDestinationDebounce, &cfg.Watch.DestinationDebounce},
		{"cooldown", DefaultCooldown, &cfg.Watch.Cooldown},
		{"poll_interval", DefaultPollInterval, &cfg.Watch.PollInterval},
	}
	for _, d := range durations {
		*d.dest = d.def
		if !watch.HasKey(d.key) {
			continue
		}
		v, err := watch.Key(d.key).Duration()
		if err != nil {
			return nil, fmt.Errorf("invalid [watch] %s: %w", d.key, err)
		}
		*d.dest = v
	}

	logSec := file.Section("log")
	if f := strings.TrimSpace(logSec.Key("file").String()); f != "" {
		cfg.Log.File = resolve(baseDir, f)
	}
	cfg.Log.MaxSizeMB = logSec.Key("max_size_mb").MustInt(DefaultLogMaxSizeMB)
	cfg.Log.MaxBackups = logSec.Key("max_backups").MustInt(DefaultLogMaxBackups)
	cfg.Log.MaxAgeDays = logSec.Key("max_age_days").MustInt(DefaultLogMaxAgeDays)
	cfg.Log.Compress = logSec.Key("compress").MustBool(false)

	if p := strings.TrimSpace(file.Section("history").Key("path").String()); p != "" {
		cfg.History.Path = resolve(baseDir, p)
	}

	dash := file.Section("dashboard")
	cfg.Dashboard.Host = strings.TrimSpace(dash.Key("host").MustString(DefaultDashboardHost))
	if dash.HasKey("port") {
		port, err := dash.Key("port").Int()
		if err != nil {
			return nil, fmt.Errorf("invalid [dashboard] port: %w", err)
		}
		cfg.Dashboard.Port = port
	}

	return cfg, nil
}

// Validate checks the invariants the watcher depends on.
func (c *Config) Validate() error {
	if c.Paths.Destination == "" {
		return ErrMissingDestination
	}
	if c.Watch.SourceDebounce <= 0 || c.Watch.DestinationDebounce <= 0 ||
		c.Watch.Cooldown <= 0 || c.Watch.PollInterval <= 0 {
		return ErrInvalidDuration
	}
	if c.Watch.Cooldown <= c.Watch.PollInterval {
		return fmt.Errorf("%w (cooldown=%s, poll_interval=%s)", ErrCooldownTooShort, c.Watch.Cooldown, c.Watch.PollInterval)
	}
	if c.Dashboard.Port < 0 || c.Dashboard.Port > 65535 {
		return fmt.Errorf("invalid [dashboard] port: %d", c.Dashboard.Port)
	}
	return nil
}

// SourceRoot returns the directory whose top-level subdirectories are units.
func (c *Config) SourceRoot() string {
	return c.Paths.Source
}

// Destination returns the generated file the watcher keeps in sync.
func (c *Config) Destination() string {
	return c.Paths.Destination
}

func resolve(baseDir, p string) string {
	if filepath.IsAbs(p) || baseDir == "" {
		return filepath.Clean(p)
	}
	return filepath.Join(baseDir, p)
}

func normalizeExtension(ext string) string {
	ext = strings.TrimSpace(ext)
	if ext != "" && !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}
	return ext
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
