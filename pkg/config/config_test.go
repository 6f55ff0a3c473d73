package config

import (
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/spf13/viper"
)

func TestLoad_DefaultValues(t *testing.T) {
	viper.Reset()

	if err := Load(); err != nil {
		t.Fatalf("Load() failed: %v", err)
	}

	cfg := Get()
	tests := []struct {
		name     string
		got      interface{}
		expected interface{}
	}{
		{"SnapshotFrequency", cfg.SnapshotFrequency, 10},
		{"TickPeriod", cfg.TickPeriod, 50 * time.Millisecond},
		{"JitterMinFill", cfg.JitterMinFill, 2},
		{"SnapshotCacheSize", cfg.SnapshotCacheSize, 64},
		{"ServerAddr", cfg.ServerAddr, "127.0.0.1:7777"},
		{"BindAddr", cfg.BindAddr, "0.0.0.0:7777"},
		{"SendRateLimit", cfg.SendRateLimit, 120},
		{"CompressSnapshots", cfg.CompressSnapshots, false},
		{"CompressThresholdBytes", cfg.CompressThresholdBytes, 512},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.got != tt.expected {
				t.Errorf("Config.%s = %v, want %v", tt.name, tt.got, tt.expected)
			}
		})
	}
}

func TestLoad_TOMLParsing(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.toml")

	configData := `
SnapshotFrequency = 20
JitterMinFill = 4
SnapshotCacheSize = 128
ServerAddr = "10.0.0.5:9000"
BindAddr = "0.0.0.0:9000"
SendRateLimit = 240
CompressSnapshots = true
`

	if err := os.WriteFile(configPath, []byte(configData), 0o644); err != nil {
		t.Fatalf("Failed to write test config: %v", err)
	}

	viper.Reset()
	viper.SetConfigName("config")
	viper.SetConfigType("toml")
	viper.AddConfigPath(tmpDir)

	viper.SetDefault("SnapshotFrequency", 10)
	viper.SetDefault("JitterMinFill", 2)
	viper.SetDefault("SnapshotCacheSize", 64)
	viper.SetDefault("ServerAddr", "127.0.0.1:7777")
	viper.SetDefault("BindAddr", "0.0.0.0:7777")
	viper.SetDefault("SendRateLimit", 120)
	viper.SetDefault("CompressSnapshots", false)

	if err := viper.ReadInConfig(); err != nil {
		t.Fatalf("viper.ReadInConfig() failed: %v", err)
	}
	if err := viper.Unmarshal(&C); err != nil {
		t.Fatalf("viper.Unmarshal() failed: %v", err)
	}

	cfg := Get()
	tests := []struct {
		name     string
		got      interface{}
		expected interface{}
	}{
		{"SnapshotFrequency", cfg.SnapshotFrequency, 20},
		{"JitterMinFill", cfg.JitterMinFill, 4},
		{"SnapshotCacheSize", cfg.SnapshotCacheSize, 128},
		{"ServerAddr", cfg.ServerAddr, "10.0.0.5:9000"},
		{"BindAddr", cfg.BindAddr, "0.0.0.0:9000"},
		{"SendRateLimit", cfg.SendRateLimit, 240},
		{"CompressSnapshots", cfg.CompressSnapshots, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.got != tt.expected {
				t.Errorf("Config.%s = %v, want %v", tt.name, tt.got, tt.expected)
			}
		})
	}
}

func TestLoad_MissingFileFallback(t *testing.T) {
	viper.Reset()
	viper.SetConfigName("config")
	viper.SetConfigType("toml")
	viper.AddConfigPath("/nonexistent/path")

	if err := Load(); err != nil {
		t.Errorf("Load() with missing file should not error, got: %v", err)
	}

	cfg := Get()
	if cfg.SnapshotFrequency != 10 {
		t.Errorf("Default SnapshotFrequency = %d, want 10", cfg.SnapshotFrequency)
	}
}

func TestSave_RoundTrip(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.toml")

	viper.Reset()
	viper.SetConfigName("config")
	viper.SetConfigType("toml")
	viper.AddConfigPath(tmpDir)

	if err := Load(); err != nil {
		t.Fatalf("Load() failed: %v", err)
	}

	cfg := Config{
		SnapshotFrequency:      15,
		JitterMinFill:          3,
		SnapshotCacheSize:      32,
		ServerAddr:             "192.168.1.1:8000",
		BindAddr:               "0.0.0.0:8000",
		SendRateLimit:          60,
		CompressSnapshots:      true,
		CompressThresholdBytes: 1024,
	}
	Set(cfg)

	viper.Set("SnapshotFrequency", cfg.SnapshotFrequency)
	viper.Set("JitterMinFill", cfg.JitterMinFill)
	viper.Set("SnapshotCacheSize", cfg.SnapshotCacheSize)
	viper.Set("ServerAddr", cfg.ServerAddr)
	viper.Set("BindAddr", cfg.BindAddr)
	viper.Set("SendRateLimit", cfg.SendRateLimit)
	viper.Set("CompressSnapshots", cfg.CompressSnapshots)
	viper.Set("CompressThresholdBytes", cfg.CompressThresholdBytes)

	if err := viper.WriteConfigAs(configPath); err != nil {
		t.Fatalf("viper.WriteConfigAs() failed: %v", err)
	}

	viper.Reset()
	viper.SetConfigName("config")
	viper.SetConfigType("toml")
	viper.AddConfigPath(tmpDir)

	if err := Load(); err != nil {
		t.Fatalf("Load() after save failed: %v", err)
	}

	newCfg := Get()
	if newCfg.SnapshotFrequency != 15 {
		t.Errorf("SnapshotFrequency = %d, want 15", newCfg.SnapshotFrequency)
	}
	if newCfg.ServerAddr != "192.168.1.1:8000" {
		t.Errorf("ServerAddr = %s, want 192.168.1.1:8000", newCfg.ServerAddr)
	}
}

func TestWatch_HotReload(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.toml")

	initialData := `
SnapshotFrequency = 10
ServerAddr = "127.0.0.1:7777"
`
	if err := os.WriteFile(configPath, []byte(initialData), 0o644); err != nil {
		t.Fatalf("Failed to write initial config: %v", err)
	}

	viper.Reset()
	mu.Lock()
	C = Config{}
	mu.Unlock()

	viper.SetConfigName("config")
	viper.SetConfigType("toml")
	viper.AddConfigPath(tmpDir)
	viper.SetDefault("SnapshotFrequency", 10)
	viper.SetDefault("ServerAddr", "127.0.0.1:7777")

	if err := viper.ReadInConfig(); err != nil {
		t.Fatalf("viper.ReadInConfig() failed: %v", err)
	}
	mu.Lock()
	if err := viper.Unmarshal(&C); err != nil {
		mu.Unlock()
		t.Fatalf("viper.Unmarshal() failed: %v", err)
	}
	mu.Unlock()

	initialCfg := Get()
	if initialCfg.SnapshotFrequency != 10 {
		t.Fatalf("Initial SnapshotFrequency = %d, want 10", initialCfg.SnapshotFrequency)
	}

	var callbackCalled bool
	var newCfg Config
	var cbMu sync.Mutex

	callback := func(old, new Config) {
		cbMu.Lock()
		callbackCalled = true
		newCfg = new
		cbMu.Unlock()
	}

	stop, err := Watch(callback)
	if err != nil {
		t.Fatalf("Watch() failed: %v", err)
	}
	defer stop()

	time.Sleep(100 * time.Millisecond)

	modifiedData := `
SnapshotFrequency = 30
ServerAddr = "10.0.0.9:7777"
`
	if err := os.WriteFile(configPath, []byte(modifiedData), 0o644); err != nil {
		t.Fatalf("Failed to write modified config: %v", err)
	}

	time.Sleep(500 * time.Millisecond)

	cbMu.Lock()
	called := callbackCalled
	cbMu.Unlock()

	if !called {
		t.Error("Callback was not called after config change")
		return
	}

	cbMu.Lock()
	if newCfg.SnapshotFrequency != 30 {
		t.Errorf("Callback new.SnapshotFrequency = %d, want 30", newCfg.SnapshotFrequency)
	}
	cbMu.Unlock()

	cfg := Get()
	if cfg.SnapshotFrequency != 30 {
		t.Errorf("Global SnapshotFrequency = %d, want 30", cfg.SnapshotFrequency)
	}
	if cfg.ServerAddr != "10.0.0.9:7777" {
		t.Errorf("Global ServerAddr = %s, want 10.0.0.9:7777", cfg.ServerAddr)
	}
}

func TestWatch_NilCallback(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.toml")

	initialData := `SnapshotFrequency = 10`
	if err := os.WriteFile(configPath, []byte(initialData), 0o644); err != nil {
		t.Fatalf("Failed to write config: %v", err)
	}

	viper.Reset()
	viper.SetConfigName("config")
	viper.SetConfigType("toml")
	viper.AddConfigPath(tmpDir)

	if err := Load(); err != nil {
		t.Fatalf("Load() failed: %v", err)
	}

	stop, err := Watch(nil)
	if err != nil {
		t.Fatalf("Watch(nil) failed: %v", err)
	}
	defer stop()

	time.Sleep(100 * time.Millisecond)

	modifiedData := `SnapshotFrequency = 40`
	if err := os.WriteFile(configPath, []byte(modifiedData), 0o644); err != nil {
		t.Fatalf("Failed to write modified config: %v", err)
	}

	time.Sleep(500 * time.Millisecond)

	cfg := Get()
	if cfg.SnapshotFrequency != 40 {
		t.Errorf("SnapshotFrequency = %d, want 40", cfg.SnapshotFrequency)
	}
}

func TestGetSet_Concurrency(t *testing.T) {
	viper.Reset()
	if err := Load(); err != nil {
		t.Fatalf("Load() failed: %v", err)
	}

	var wg sync.WaitGroup
	iterations := 100

	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < iterations; j++ {
				_ = Get()
			}
		}()
	}

	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			for j := 0; j < iterations; j++ {
				cfg := Get()
				cfg.SnapshotFrequency = 10 + id
				Set(cfg)
			}
		}(i)
	}

	wg.Wait()

	cfg := Get()
	if cfg.SnapshotFrequency < 10 || cfg.SnapshotFrequency >= 20 {
		t.Logf("Final SnapshotFrequency = %d (expected in range [10, 20))", cfg.SnapshotFrequency)
	}
}

func TestLoad_InvalidTOML(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.toml")

	invalidData := `
SnapshotFrequency = "not a number"
[[[invalid structure
`
	if err := os.WriteFile(configPath, []byte(invalidData), 0o644); err != nil {
		t.Fatalf("Failed to write invalid config: %v", err)
	}

	viper.Reset()
	viper.SetConfigName("config")
	viper.SetConfigType("toml")
	viper.AddConfigPath(tmpDir)

	err := Load()
	if err == nil {
		t.Error("Load() should return error for invalid TOML")
	}
}

func BenchmarkGet(b *testing.B) {
	viper.Reset()
	if err := Load(); err != nil {
		b.Fatalf("Load() failed: %v", err)
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = Get()
	}
}

func BenchmarkSet(b *testing.B) {
	viper.Reset()
	if err := Load(); err != nil {
		b.Fatalf("Load() failed: %v", err)
	}

	cfg := Get()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		Set(cfg)
	}
}
