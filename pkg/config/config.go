// Package config loads and hot-reloads replication tuning knobs.
package config

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

// Config holds replication and transport tuning values shared by the
// reference server and client binaries.
type Config struct {
	// SnapshotFrequency is how many ticks elapse between full
	// snapshot frames; every other tick sends a delta frame.
	SnapshotFrequency int `mapstructure:"SnapshotFrequency"`
	// TickPeriod is the server's fixed simulation/send tick interval.
	TickPeriod time.Duration `mapstructure:"TickPeriod"`
	// JitterMinFill is the minimum number of buffered frames the
	// client's jitter buffer holds before it starts releasing frames
	// to the applier.
	JitterMinFill int `mapstructure:"JitterMinFill"`
	// SnapshotCacheSize bounds how many past full snapshots the
	// client retains as bases for incoming deltas.
	SnapshotCacheSize int `mapstructure:"SnapshotCacheSize"`
	// ServerAddr is the address the client dials.
	ServerAddr string `mapstructure:"ServerAddr"`
	// BindAddr is the address the server listens on.
	BindAddr string `mapstructure:"BindAddr"`
	// SendRateLimit caps outbound datagrams per second per
	// destination (golang.org/x/time/rate token bucket).
	SendRateLimit int `mapstructure:"SendRateLimit"`
	// CompressSnapshots enables zstd compression of server message
	// payloads (snapshots and deltas) at or above CompressThresholdBytes.
	CompressSnapshots     bool `mapstructure:"CompressSnapshots"`
	CompressThresholdBytes int `mapstructure:"CompressThresholdBytes"`
	// MetricsAddr, when non-empty, serves Prometheus metrics on this
	// address (e.g. ":9100").
	MetricsAddr string `mapstructure:"MetricsAddr"`
}

// C is the global configuration instance.
var C Config

// mu protects concurrent access to C during hot-reload.
var mu sync.RWMutex

var (
	watcherMu       sync.Mutex
	watcherActive   bool
	watcherCtx      context.Context
	watcherCancel   context.CancelFunc
	currentCallback ReloadCallback
)

// ReloadCallback is called when the configuration is hot-reloaded.
type ReloadCallback func(old, new Config)

// Load reads configuration from file and environment, populating C.
func Load() error {
	viper.SetConfigName("config")
	viper.SetConfigType("toml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("$HOME/.replicate")

	viper.SetDefault("SnapshotFrequency", 10)
	viper.SetDefault("TickPeriod", 50*time.Millisecond)
	viper.SetDefault("JitterMinFill", 2)
	viper.SetDefault("SnapshotCacheSize", 64)
	viper.SetDefault("ServerAddr", "127.0.0.1:7777")
	viper.SetDefault("BindAddr", "0.0.0.0:7777")
	viper.SetDefault("SendRateLimit", 120)
	viper.SetDefault("CompressSnapshots", false)
	viper.SetDefault("CompressThresholdBytes", 512)
	viper.SetDefault("MetricsAddr", "")
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return err
		}
	}

	return viper.Unmarshal(&C)
}

// Save writes the current configuration to file.
func Save() error {
	mu.RLock()
	defer mu.RUnlock()

	viper.Set("SnapshotFrequency", C.SnapshotFrequency)
	viper.Set("TickPeriod", C.TickPeriod)
	viper.Set("JitterMinFill", C.JitterMinFill)
	viper.Set("SnapshotCacheSize", C.SnapshotCacheSize)
	viper.Set("ServerAddr", C.ServerAddr)
	viper.Set("BindAddr", C.BindAddr)
	viper.Set("SendRateLimit", C.SendRateLimit)
	viper.Set("CompressSnapshots", C.CompressSnapshots)
	viper.Set("CompressThresholdBytes", C.CompressThresholdBytes)
	viper.Set("MetricsAddr", C.MetricsAddr)

	return viper.WriteConfig()
}

// Watch starts watching the config file for changes and calls the
// callback on reload. Returns a stop function to cancel watching.
// Only one watcher can be active at a time; calling Watch again while
// active replaces the callback but keeps the same underlying file
// watcher, avoiding duplicate viper.OnConfigChange registrations.
func Watch(callback ReloadCallback) (stop func(), err error) {
	watcherMu.Lock()
	defer watcherMu.Unlock()

	if !watcherActive {
		ctx, cancel := context.WithCancel(context.Background())
		watcherCtx = ctx
		watcherCancel = cancel
		currentCallback = callback
		watcherActive = true

		viper.WatchConfig()
		viper.OnConfigChange(func(e fsnotify.Event) {
			watcherMu.Lock()
			cb := currentCallback
			ctx := watcherCtx
			watcherMu.Unlock()

			if ctx != nil {
				select {
				case <-ctx.Done():
					return
				default:
				}
			}

			mu.Lock()
			old := C
			var newCfg Config
			if err := viper.Unmarshal(&newCfg); err == nil {
				C = newCfg
				mu.Unlock()
				if cb != nil {
					cb(old, newCfg)
				}
			} else {
				mu.Unlock()
			}
		})
	} else {
		currentCallback = callback
	}

	return func() {
		watcherMu.Lock()
		defer watcherMu.Unlock()
		if watcherCancel != nil {
			watcherCancel()
			watcherCancel = nil
			watcherCtx = nil
		}
		watcherActive = false
		currentCallback = nil
	}, nil
}

// Get returns a copy of the current config safely.
func Get() Config {
	mu.RLock()
	defer mu.RUnlock()
	return C
}

// Set updates the config safely.
func Set(cfg Config) {
	mu.Lock()
	C = cfg
	mu.Unlock()
}
