// Package config loads the runtime's configuration surface (spec §6):
// environment variables, all optional, plus an optional TOML file for
// environments that prefer file-based config over an env var per
// option. Environment variables always take precedence over the file,
// matching "all optional" from spec.md.
//
// Grounded on sicm_runtime.c/high.c's set_options env-var reads; the
// TOML file source is new, adopted from the examples pack's
// github.com/BurntSushi/toml dependency (reachable via
// joeycumines-go-utilpkg's go.mod) for a config surface this project
// didn't otherwise need a library for.
package config

import (
	"fmt"
	"os"
	"runtime"
	"strconv"
	"strings"

	"github.com/BurntSushi/toml"

	"github.com/nmxmxh/tiermem/internal/device"
	"github.com/nmxmxh/tiermem/internal/layout"
)

const (
	envArenaLayout           = "SH_ARENA_LAYOUT"
	envMaxThreads            = "SH_MAX_THREADS"
	envMaxArenas             = "SH_MAX_ARENAS"
	envDefaultDevice         = "SH_DEFAULT_DEVICE"
	envProfiling             = "SH_PROFILING"
	envProfileRateNsec       = "SH_PROFILE_RATE_NSEC"
	envProfileAllEvents      = "SH_PROFILE_ALL_EVENTS"
	envProfileRSSSkip        = "SH_PROFILE_RSS_SKIP_INTERVALS"
	envBigSmallThreshold     = "SH_BIG_SMALL_THRESHOLD"
	defaultMaxArenas         = 4096
	defaultBigSmallThreshold = 1 << 20 // 1 MiB, implementation-defined per spec §6
	defaultProfileRateNsec   = int64(100_000_000)
	defaultMaxSites          = 1 << 16
)

// ErrInvalidMaxArenas reports SH_MAX_ARENAS exceeding the upstream
// allocator's hard limit of 4096 (spec §6), a fatal configuration
// error.
var ErrInvalidMaxArenas = fmt.Errorf("config: SH_MAX_ARENAS must be a positive integer <= %d", defaultMaxArenas)

// Config is the fully resolved runtime configuration.
type Config struct {
	Layout            layout.Layout
	MaxThreads        int
	MaxArenas         int
	MaxSites          int
	DefaultDeviceTag  device.Tag
	ProfilingEnabled  bool
	ProfileRateNsec   int64
	ProfileAllEvents  []string
	RSSSkipIntervals  int
	BigSmallThreshold int64
}

// fileConfig mirrors the recognized TOML keys, one per env var, for
// unmarshaling the optional TOML file LoadFromFile reads. The TOML
// keys are the snake_case names given in the struct tags.
type fileConfig struct {
	ArenaLayout           string   `toml:"arena_layout"`
	MaxThreads            int      `toml:"max_threads"`
	MaxArenas             int      `toml:"max_arenas"`
	DefaultDevice         string   `toml:"default_device"`
	Profiling             bool     `toml:"profiling"`
	ProfileRateNsec       int64    `toml:"profile_rate_nsec"`
	ProfileAllEvents      []string `toml:"profile_all_events"`
	ProfileRSSSkip        int      `toml:"profile_rss_skip_intervals"`
	BigSmallThresholdByte int64    `toml:"big_small_threshold"`
}

// LoadFromFile reads a TOML file at path and applies Load's env-var
// overrides on top of it (env vars always win when both are set).
func LoadFromFile(path string) (Config, error) {
	var fc fileConfig
	if _, err := toml.DecodeFile(path, &fc); err != nil {
		return Config{}, fmt.Errorf("config: decode %s: %w", path, err)
	}
	return load(fc)
}

// Load resolves configuration from environment variables alone.
func Load() (Config, error) {
	return load(fileConfig{})
}

func load(base fileConfig) (Config, error) {
	cfg := Config{
		MaxSites:          defaultMaxSites,
		MaxArenas:         defaultMaxArenas,
		BigSmallThreshold: defaultBigSmallThreshold,
		ProfileRateNsec:   defaultProfileRateNsec,
		RSSSkipIntervals:  1,
	}

	layoutStr := firstNonEmpty(os.Getenv(envArenaLayout), base.ArenaLayout)
	cfg.Layout = layout.ParseLayout(layoutStr)
	// An unrecognized layout degrades to pass-through per spec §6/§7;
	// ParseLayout already returns InvalidLayout for "", so no error.

	cfg.MaxThreads = runtime.NumCPU()
	if base.MaxThreads > 0 {
		cfg.MaxThreads = base.MaxThreads
	}
	if v, ok := os.LookupEnv(envMaxThreads); ok {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			return Config{}, fmt.Errorf("config: %s must be a positive integer: %q", envMaxThreads, v)
		}
		cfg.MaxThreads = n
	}

	if base.MaxArenas > 0 {
		cfg.MaxArenas = base.MaxArenas
	}
	if v, ok := os.LookupEnv(envMaxArenas); ok {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 || n > defaultMaxArenas {
			return Config{}, ErrInvalidMaxArenas
		}
		cfg.MaxArenas = n
	} else if cfg.MaxArenas > defaultMaxArenas {
		return Config{}, ErrInvalidMaxArenas
	}

	cfg.DefaultDeviceTag = device.Tag(firstNonEmpty(os.Getenv(envDefaultDevice), base.DefaultDevice))

	_, profilingSet := os.LookupEnv(envProfiling)
	cfg.ProfilingEnabled = profilingSet || base.Profiling

	if base.ProfileRateNsec > 0 {
		cfg.ProfileRateNsec = base.ProfileRateNsec
	}
	if v, ok := os.LookupEnv(envProfileRateNsec); ok {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil || n <= 0 {
			return Config{}, fmt.Errorf("config: %s must be a positive integer: %q", envProfileRateNsec, v)
		}
		cfg.ProfileRateNsec = n
	}

	cfg.ProfileAllEvents = base.ProfileAllEvents
	if v, ok := os.LookupEnv(envProfileAllEvents); ok {
		cfg.ProfileAllEvents = splitNonEmpty(v, ",")
	}

	cfg.RSSSkipIntervals = 1
	if base.ProfileRSSSkip > 0 {
		cfg.RSSSkipIntervals = base.ProfileRSSSkip
	}
	if v, ok := os.LookupEnv(envProfileRSSSkip); ok {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			return Config{}, fmt.Errorf("config: %s must be an integer >= 1: %q", envProfileRSSSkip, v)
		}
		cfg.RSSSkipIntervals = n
	}

	if base.BigSmallThresholdByte > 0 {
		cfg.BigSmallThreshold = base.BigSmallThresholdByte
	}
	if v, ok := os.LookupEnv(envBigSmallThreshold); ok {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil || n <= 0 {
			return Config{}, fmt.Errorf("config: %s must be a positive integer: %q", envBigSmallThreshold, v)
		}
		cfg.BigSmallThreshold = n
	}

	return cfg, nil
}

// ResolveDefaultDevice returns the configured default device from
// list, or list's first device on a miss (spec §6: "on miss the first
// enumerated device is used").
func (c Config) ResolveDefaultDevice(list *device.List) *device.Device {
	if c.DefaultDeviceTag != "" {
		if d := list.ByTag(c.DefaultDeviceTag); d != nil {
			return d
		}
	}
	if len(list.Devices) == 0 {
		return nil
	}
	return list.Devices[0]
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}

func splitNonEmpty(s, sep string) []string {
	var out []string
	for _, part := range strings.Split(s, sep) {
		part = strings.TrimSpace(part)
		if part != "" {
			out = append(out, part)
		}
	}
	return out
}
