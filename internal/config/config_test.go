/*
 * Copyright (c) 2026 Firefly Software Solutions Inc.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package config

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.Port != 5000 {
		t.Errorf("Expected default port 5000, got %d", cfg.Port)
	}
	if cfg.RegistrationPort != 5001 {
		t.Errorf("Expected default registration port 5001, got %d", cfg.RegistrationPort)
	}
	if cfg.MaxNameLength != 32 {
		t.Errorf("Expected default max_name_length 32, got %d", cfg.MaxNameLength)
	}
	if cfg.MaxPasswordLength != 64 {
		t.Errorf("Expected default max_password_length 64, got %d", cfg.MaxPasswordLength)
	}
	if cfg.StorageBackend != StorageMemory {
		t.Errorf("Expected default storage_backend 'memory', got '%s'", cfg.StorageBackend)
	}
	if cfg.NotifyBackend != NotifyLocal {
		t.Errorf("Expected default notify_backend 'local', got '%s'", cfg.NotifyBackend)
	}
	if cfg.LogLevel != "info" {
		t.Errorf("Expected default log_level 'info', got '%s'", cfg.LogLevel)
	}
	if cfg.LogJSON {
		t.Errorf("Expected default log_json false")
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Defaults must validate: %v", err)
	}
}

func TestConfigValidation(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"defaults", func(c *Config) {}, false},
		{"disk backend", func(c *Config) { c.StorageBackend = StorageDisk }, false},
		{"registration disabled", func(c *Config) { c.RegistrationPort = 0 }, false},
		{"invalid port", func(c *Config) { c.Port = 70000 }, true},
		{"same ports", func(c *Config) { c.RegistrationPort = c.Port }, true},
		{"no workers", func(c *Config) { c.Workers = 0 }, true},
		{"no queue", func(c *Config) { c.QueueSize = 0 }, true},
		{"zero sections", func(c *Config) { c.MaxSections = 0 }, true},
		{"huge sections", func(c *Config) { c.MaxSectionSize = 32 * 1024 * 1024 }, true},
		{"bolt without data dir", func(c *Config) { c.StorageBackend = StorageBolt; c.DataDir = "" }, true},
		{"unknown storage", func(c *Config) { c.StorageBackend = "postgres" }, true},
		{"unknown compression", func(c *Config) { c.Compression = "brotli" }, true},
		{"redis without addr", func(c *Config) { c.NotifyBackend = NotifyRedis; c.RedisAddr = "" }, true},
		{"multicast bad port", func(c *Config) { c.NotifyBackend = NotifyMulticast; c.MulticastPort = 0 }, true},
		{"unknown notify", func(c *Config) { c.NotifyBackend = "kafka" }, true},
		{"invalid log level", func(c *Config) { c.LogLevel = "invalid" }, true},
		{"zero write timeout", func(c *Config) { c.WriteTimeout = 0 }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func writeConfig(t *testing.T, dir, content string) string {
	t.Helper()
	path := filepath.Join(dir, "turing.conf")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("Failed to write config file: %v", err)
	}
	return path
}

func TestLoadFromFile(t *testing.T) {
	configPath := writeConfig(t, t.TempDir(), `# Test configuration
port = 9000
registration_port = 9001
workers = 4
storage_backend = "bolt"
data_dir = "/tmp/turing"
compression = "zstd"
notify_backend = "redis"
redis_addr = "cache:6379"
write_timeout = "250ms"
discovery = true
log_level = "debug"   # inline comment
log_json = true
`)

	mgr := NewManager()
	if err := mgr.LoadFromFile(configPath); err != nil {
		t.Fatalf("LoadFromFile failed: %v", err)
	}

	cfg := mgr.Get()
	if cfg.Port != 9000 || cfg.RegistrationPort != 9001 {
		t.Errorf("Expected ports 9000/9001, got %d/%d", cfg.Port, cfg.RegistrationPort)
	}
	if cfg.Workers != 4 {
		t.Errorf("Expected workers 4, got %d", cfg.Workers)
	}
	if cfg.StorageBackend != StorageBolt || cfg.DataDir != "/tmp/turing" {
		t.Errorf("Unexpected storage: %s %s", cfg.StorageBackend, cfg.DataDir)
	}
	if cfg.Compression != "zstd" {
		t.Errorf("Expected compression zstd, got %s", cfg.Compression)
	}
	if cfg.NotifyBackend != NotifyRedis || cfg.RedisAddr != "cache:6379" {
		t.Errorf("Unexpected notify: %s %s", cfg.NotifyBackend, cfg.RedisAddr)
	}
	if cfg.WriteTimeout != 250*time.Millisecond {
		t.Errorf("Expected write_timeout 250ms, got %s", cfg.WriteTimeout)
	}
	if !cfg.Discovery || !cfg.LogJSON {
		t.Errorf("Expected discovery and log_json true")
	}
	if cfg.LogLevel != "debug" {
		t.Errorf("Expected log_level 'debug', got '%s'", cfg.LogLevel)
	}
	if cfg.ConfigFile != configPath {
		t.Errorf("Expected ConfigFile '%s', got '%s'", configPath, cfg.ConfigFile)
	}
}

func TestLoadFromFileErrors(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    string
	}{
		{"unknown key", "colour = \"red\"\n", "unknown key"},
		{"missing equals", "port 9000\n", "expected key = value"},
		{"bad integer", "port = nine\n", "expected integer"},
		{"unquoted string", "data_dir = /tmp\n", "expected quoted string"},
		{"bad bool", "discovery = maybe\n", "expected true or false"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeConfig(t, t.TempDir(), tt.content)
			err := NewManager().LoadFromFile(path)
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Errorf("Expected error containing %q, got %v", tt.want, err)
			}
			if err != nil && !strings.Contains(err.Error(), ":1:") {
				t.Errorf("Expected line number in error, got %v", err)
			}
		})
	}

	if err := NewManager().LoadFromFile(filepath.Join(t.TempDir(), "missing.conf")); err == nil {
		t.Error("Expected error for missing file")
	}
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv(EnvPort, "7777")
	t.Setenv(EnvStorageBackend, "disk")
	t.Setenv(EnvLogLevel, "debug")
	t.Setenv(EnvLogJSON, "true")
	t.Setenv(EnvDiscovery, "1")

	mgr := NewManager()
	mgr.LoadFromEnv()

	cfg := mgr.Get()
	if cfg.Port != 7777 {
		t.Errorf("Expected port 7777 from env, got %d", cfg.Port)
	}
	if cfg.StorageBackend != StorageDisk {
		t.Errorf("Expected storage_backend 'disk' from env, got '%s'", cfg.StorageBackend)
	}
	if cfg.LogLevel != "debug" {
		t.Errorf("Expected log_level 'debug' from env, got '%s'", cfg.LogLevel)
	}
	if !cfg.LogJSON || !cfg.Discovery {
		t.Errorf("Expected log_json and discovery true from env")
	}
}

func TestConfigPrecedence(t *testing.T) {
	configPath := writeConfig(t, t.TempDir(), "port = 9000\nworkers = 3\n")
	t.Setenv(EnvPort, "7777")

	mgr := NewManager()
	if err := mgr.LoadFromFile(configPath); err != nil {
		t.Fatalf("LoadFromFile failed: %v", err)
	}
	mgr.LoadFromEnv()
	mgr.SetOverrides(func(c *Config) { c.Workers = 12 })

	cfg := mgr.Get()
	if cfg.Port != 7777 {
		t.Errorf("Expected port 7777 (env override), got %d", cfg.Port)
	}
	if cfg.Workers != 12 {
		t.Errorf("Expected workers 12 (flag override), got %d", cfg.Workers)
	}

	// Every layer survives a reload.
	if err := mgr.Reload(); err != nil {
		t.Fatalf("Reload failed: %v", err)
	}
	cfg = mgr.Get()
	if cfg.Port != 7777 || cfg.Workers != 12 {
		t.Errorf("Precedence lost on reload: port=%d workers=%d", cfg.Port, cfg.Workers)
	}
}

func TestToTOML(t *testing.T) {
	cfg := DefaultConfig()
	cfg.StorageBackend = StorageDisk
	cfg.DataDir = "/var/lib/turing"

	toml := cfg.ToTOML()
	for _, want := range []string{
		"port = 5000",
		"registration_port = 5001",
		`storage_backend = "disk"`,
		`data_dir = "/var/lib/turing"`,
		`write_timeout = "5s"`,
		"audit_enabled = true",
		`audit_file = ""`,
	} {
		if !strings.Contains(toml, want) {
			t.Errorf("TOML output missing %q", want)
		}
	}
}

func TestSaveToFile(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Port = 7777
	cfg.Compression = "lz4"

	configPath := filepath.Join(t.TempDir(), "subdir", "turing.conf")
	if err := cfg.SaveToFile(configPath); err != nil {
		t.Fatalf("SaveToFile failed: %v", err)
	}

	mgr := NewManager()
	if err := mgr.LoadFromFile(configPath); err != nil {
		t.Fatalf("Failed to load saved config: %v", err)
	}

	loaded := mgr.Get()
	if loaded.Port != 7777 {
		t.Errorf("Expected port 7777, got %d", loaded.Port)
	}
	if loaded.Compression != "lz4" {
		t.Errorf("Expected compression 'lz4', got '%s'", loaded.Compression)
	}
	if loaded.WriteTimeout != cfg.WriteTimeout {
		t.Errorf("Expected write_timeout %s, got %s", cfg.WriteTimeout, loaded.WriteTimeout)
	}
}

func TestReload(t *testing.T) {
	dir := t.TempDir()
	configPath := writeConfig(t, dir, "port = 9000\nlog_level = \"info\"\n")

	mgr := NewManager()
	if err := mgr.LoadFromFile(configPath); err != nil {
		t.Fatalf("LoadFromFile failed: %v", err)
	}

	var got *Config
	mgr.OnReload(func(c *Config) { got = c })

	writeConfig(t, dir, "port = 8000\nlog_level = \"debug\"\n")
	if err := mgr.Reload(); err != nil {
		t.Fatalf("Reload failed: %v", err)
	}

	cfg := mgr.Get()
	if cfg.Port != 8000 {
		t.Errorf("Expected reloaded port 8000, got %d", cfg.Port)
	}
	if got == nil || got.LogLevel != "debug" {
		t.Error("Reload callback was not called with the new configuration")
	}

	// An invalid file keeps the previous configuration.
	writeConfig(t, dir, "port = 0\n")
	if err := mgr.Reload(); err == nil {
		t.Error("Expected reload of invalid config to fail")
	}
	if mgr.Get().Port != 8000 {
		t.Errorf("Invalid reload replaced the configuration")
	}
}

func TestWatch(t *testing.T) {
	dir := t.TempDir()
	configPath := writeConfig(t, dir, "log_level = \"info\"\n")

	mgr := NewManager()
	if err := mgr.LoadFromFile(configPath); err != nil {
		t.Fatalf("LoadFromFile failed: %v", err)
	}

	reloaded := make(chan string, 8)
	mgr.OnReload(func(c *Config) { reloaded <- c.LogLevel })

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := mgr.Watch(ctx); err != nil {
		t.Fatalf("Watch failed: %v", err)
	}

	writeConfig(t, dir, "log_level = \"error\"\n")

	deadline := time.After(5 * time.Second)
	for {
		select {
		case level := <-reloaded:
			if level == "error" {
				return
			}
		case <-deadline:
			t.Fatal("Config change was not picked up")
		}
	}
}

func TestWatchWithoutFile(t *testing.T) {
	if err := NewManager().Watch(context.Background()); err == nil {
		t.Error("Expected error when no file is loaded")
	}
}

func TestGlobalManager(t *testing.T) {
	mgr := Global()
	if mgr == nil {
		t.Fatal("Global() returned nil")
	}
	if mgr != Global() {
		t.Error("Global() returned different instances")
	}
}

func TestConfigString(t *testing.T) {
	str := DefaultConfig().String()
	for _, want := range []string{"Port:", "Storage:", "memory"} {
		if !strings.Contains(str, want) {
			t.Errorf("String() missing %q", want)
		}
	}
}
