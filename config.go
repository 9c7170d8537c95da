package tinyterrain

import (
	"fmt"
	"os"
	"time"

	"github.com/pelletier/go-toml"
	"github.com/sirupsen/logrus"
)

const (
	// DefaultCacheCapacity is the number of decoded chunks a terrain keeps
	// resident when no capacity is configured.
	DefaultCacheCapacity = 64

	// DefaultScanInterval is the pause between streaming worker passes when
	// no interval is configured.
	DefaultScanInterval = 500 * time.Millisecond
)

// Config holds the optional settings of a Terrain. The zero value is ready
// to use: Create and Open fill in defaults for any field left unset.
type Config struct {
	// Log is the logger the terrain and its streaming worker report to.
	// Defaults to a logrus logger writing to stderr.
	Log logrus.FieldLogger
	// CacheCapacity is the maximum number of decoded chunks held in memory.
	// Defaults to DefaultCacheCapacity.
	CacheCapacity int
	// ScanInterval is the pause between streaming worker passes. Defaults
	// to DefaultScanInterval.
	ScanInterval time.Duration
	// ReadOnly opens the file without write access. SetChunk and SetVertex
	// fail, evictees are dropped instead of written back, and Close skips
	// the flush.
	ReadOnly bool
}

// withDefaults returns the config with unset fields replaced by defaults.
func (conf Config) withDefaults() Config {
	if conf.Log == nil {
		conf.Log = logrus.New()
	}
	if conf.CacheCapacity <= 0 {
		conf.CacheCapacity = DefaultCacheCapacity
	}
	if conf.ScanInterval <= 0 {
		conf.ScanInterval = DefaultScanInterval
	}
	return conf
}

// Options is the TOML-serialisable subset of Config, for deployments that
// keep terrain tuning in a config file next to the world data.
type Options struct {
	CacheCapacity  int  `toml:"cache_capacity"`
	ScanIntervalMS int  `toml:"scan_interval_ms"`
	ReadOnly       bool `toml:"read_only"`
}

// DefaultOptions returns options mirroring the built-in defaults.
func DefaultOptions() Options {
	return Options{
		CacheCapacity:  DefaultCacheCapacity,
		ScanIntervalMS: int(DefaultScanInterval / time.Millisecond),
	}
}

// ReadOptions loads options from a TOML file. Fields absent from the file
// keep their default values.
func ReadOptions(path string) (Options, error) {
	o := DefaultOptions()
	data, err := os.ReadFile(path)
	if err != nil {
		return o, fmt.Errorf("read options: %w", err)
	}
	if err := toml.Unmarshal(data, &o); err != nil {
		return o, fmt.Errorf("decode options: %w", err)
	}
	return o, nil
}

// WriteOptions saves options to a TOML file.
func WriteOptions(path string, o Options) error {
	data, err := toml.Marshal(o)
	if err != nil {
		return fmt.Errorf("encode options: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("write options: %w", err)
	}
	return nil
}

// Config converts the options into a Config.
func (o Options) Config() Config {
	return Config{
		CacheCapacity: o.CacheCapacity,
		ScanInterval:  time.Duration(o.ScanIntervalMS) * time.Millisecond,
		ReadOnly:      o.ReadOnly,
	}
}
