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

/*
Package config manages the Turing server configuration.

Sources and Precedence:
=======================

Configuration is assembled from, lowest to highest precedence:

 1. Built-in defaults (DefaultConfig)
 2. A configuration file in a small TOML subset (key = value)
 3. TURING_* environment variables
 4. Overrides registered by the caller (command-line flags)

Every reload repeats the whole chain so flags keep winning over a file that
changed on disk.

File Format:
============

	# Turing server
	port = 5000
	workers = 8
	storage_backend = "disk"
	data_dir = "/var/lib/turing"
	write_timeout = "5s"
	log_level = "debug"

Only flat keys are supported. Strings are double-quoted, booleans are true
or false, durations are quoted Go duration strings.

Hot Reload:
===========

Manager.Watch follows the file with fsnotify and reloads on change.
Callbacks registered with OnReload receive the new configuration; the
server uses this to change the log level and format without a restart.
Listener ports, pool sizes and backends are read once at startup.
*/
package config

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"turing/internal/compression"
	"turing/internal/logging"
)

// Environment variable names.
const (
	EnvConfigFile       = "TURING_CONFIG"
	EnvListenAddr       = "TURING_LISTEN_ADDR"
	EnvPort             = "TURING_PORT"
	EnvRegistrationPort = "TURING_REGISTRATION_PORT"
	EnvWorkers          = "TURING_WORKERS"
	EnvStorageBackend   = "TURING_STORAGE_BACKEND"
	EnvDataDir          = "TURING_DATA_DIR"
	EnvCompression      = "TURING_COMPRESSION"
	EnvNotifyBackend    = "TURING_NOTIFY_BACKEND"
	EnvRedisAddr        = "TURING_REDIS_ADDR"
	EnvDiscovery        = "TURING_DISCOVERY"
	EnvAuditEnabled     = "TURING_AUDIT_ENABLED"
	EnvAuditFile        = "TURING_AUDIT_FILE"
	EnvLogLevel         = "TURING_LOG_LEVEL"
	EnvLogJSON          = "TURING_LOG_JSON"
)

// Storage backends.
const (
	StorageMemory = "memory"
	StorageDisk   = "disk"
	StorageBolt   = "bolt"
)

// Notification backends.
const (
	NotifyLocal     = "local"
	NotifyMulticast = "multicast"
	NotifyRedis     = "redis"
)

// Config holds the server configuration.
type Config struct {
	ListenAddr       string
	Port             int
	RegistrationPort int // 0 disables the side channel
	Workers          int
	QueueSize        int

	MaxNameLength     int
	MaxPasswordLength int
	MaxSections       int
	MaxSectionSize    int
	MaxMessageLength  int
	WriteTimeout      time.Duration

	StorageBackend string
	DataDir        string
	Compression    string

	NotifyBackend      string
	MulticastPort      int
	MulticastInterface string
	RedisAddr          string

	Discovery bool

	AuditEnabled bool
	AuditFile    string // empty keeps the trail in memory only

	LogLevel string
	LogJSON  bool

	ConfigFile string
}

// DefaultConfig returns the built-in defaults.
func DefaultConfig() *Config {
	return &Config{
		ListenAddr:        "0.0.0.0",
		Port:              5000,
		RegistrationPort:  5001,
		Workers:           8,
		QueueSize:         256,
		MaxNameLength:     32,
		MaxPasswordLength: 64,
		MaxSections:       20,
		MaxSectionSize:    1024 * 1024,
		MaxMessageLength:  1024,
		WriteTimeout:      5 * time.Second,
		StorageBackend:    StorageMemory,
		DataDir:           "turing-data",
		Compression:       "none",
		NotifyBackend:     NotifyLocal,
		MulticastPort:     6000,
		RedisAddr:         "localhost:6379",
		AuditEnabled:      true,
		LogLevel:          "info",
	}
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	// Port 0 picks a free port.
	if c.Port < 0 || c.Port > 65535 {
		return fmt.Errorf("invalid port: %d", c.Port)
	}
	if c.RegistrationPort < 0 || c.RegistrationPort > 65535 {
		return fmt.Errorf("invalid registration_port: %d", c.RegistrationPort)
	}
	if c.RegistrationPort != 0 && c.RegistrationPort == c.Port {
		return fmt.Errorf("registration_port must differ from port (%d)", c.Port)
	}
	if c.Workers < 1 {
		return fmt.Errorf("workers must be at least 1, got %d", c.Workers)
	}
	if c.QueueSize < 1 {
		return fmt.Errorf("queue_size must be at least 1, got %d", c.QueueSize)
	}
	if c.MaxNameLength < 1 || c.MaxPasswordLength < 1 || c.MaxMessageLength < 1 {
		return fmt.Errorf("length limits must be positive")
	}
	if c.MaxSections < 1 {
		return fmt.Errorf("max_sections must be at least 1, got %d", c.MaxSections)
	}
	if c.MaxSectionSize < 1 || c.MaxSectionSize > 16*1024*1024 {
		return fmt.Errorf("max_section_size must be between 1 and 16777216, got %d", c.MaxSectionSize)
	}
	if c.WriteTimeout <= 0 {
		return fmt.Errorf("write_timeout must be positive")
	}

	switch c.StorageBackend {
	case StorageMemory:
	case StorageDisk, StorageBolt:
		if c.DataDir == "" {
			return fmt.Errorf("data_dir is required for the %s storage backend", c.StorageBackend)
		}
	default:
		return fmt.Errorf("invalid storage_backend: %s (must be memory, disk, or bolt)", c.StorageBackend)
	}
	if _, err := compression.ParseAlgorithm(c.Compression); err != nil {
		return err
	}

	switch c.NotifyBackend {
	case NotifyLocal:
	case NotifyMulticast:
		if c.MulticastPort < 1 || c.MulticastPort > 65535 {
			return fmt.Errorf("invalid multicast_port: %d", c.MulticastPort)
		}
	case NotifyRedis:
		if c.RedisAddr == "" {
			return fmt.Errorf("redis_addr is required for the redis notify backend")
		}
	default:
		return fmt.Errorf("invalid notify_backend: %s (must be local, multicast, or redis)", c.NotifyBackend)
	}

	switch strings.ToLower(c.LogLevel) {
	case "debug", "info", "warn", "warning", "error":
	default:
		return fmt.Errorf("invalid log_level: %s", c.LogLevel)
	}
	return nil
}

// Addr returns the host:port of the request listener.
func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.ListenAddr, c.Port)
}

// RegistrationAddr returns the host:port of the registration side channel.
func (c *Config) RegistrationAddr() string {
	return fmt.Sprintf("%s:%d", c.ListenAddr, c.RegistrationPort)
}

// String returns a human-readable summary.
func (c *Config) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "Listen:        %s\n", c.Addr())
	fmt.Fprintf(&b, "Port:          %d\n", c.Port)
	fmt.Fprintf(&b, "Registration:  %d\n", c.RegistrationPort)
	fmt.Fprintf(&b, "Workers:       %d (queue %d)\n", c.Workers, c.QueueSize)
	fmt.Fprintf(&b, "Storage:       %s (%s, compression %s)\n", c.StorageBackend, c.DataDir, c.Compression)
	fmt.Fprintf(&b, "Notify:        %s\n", c.NotifyBackend)
	fmt.Fprintf(&b, "Discovery:     %t\n", c.Discovery)
	fmt.Fprintf(&b, "Audit:         %t %s\n", c.AuditEnabled, c.AuditFile)
	fmt.Fprintf(&b, "Log:           %s (json %t)\n", c.LogLevel, c.LogJSON)
	return b.String()
}

// ToTOML renders the configuration in the file format.
func (c *Config) ToTOML() string {
	var b strings.Builder
	b.WriteString("# Turing server configuration\n\n")
	fmt.Fprintf(&b, "listen_addr = %q\n", c.ListenAddr)
	fmt.Fprintf(&b, "port = %d\n", c.Port)
	fmt.Fprintf(&b, "registration_port = %d\n", c.RegistrationPort)
	fmt.Fprintf(&b, "workers = %d\n", c.Workers)
	fmt.Fprintf(&b, "queue_size = %d\n\n", c.QueueSize)
	fmt.Fprintf(&b, "max_name_length = %d\n", c.MaxNameLength)
	fmt.Fprintf(&b, "max_password_length = %d\n", c.MaxPasswordLength)
	fmt.Fprintf(&b, "max_sections = %d\n", c.MaxSections)
	fmt.Fprintf(&b, "max_section_size = %d\n", c.MaxSectionSize)
	fmt.Fprintf(&b, "max_message_length = %d\n", c.MaxMessageLength)
	fmt.Fprintf(&b, "write_timeout = %q\n\n", c.WriteTimeout.String())
	fmt.Fprintf(&b, "storage_backend = %q\n", c.StorageBackend)
	fmt.Fprintf(&b, "data_dir = %q\n", c.DataDir)
	fmt.Fprintf(&b, "compression = %q\n\n", c.Compression)
	fmt.Fprintf(&b, "notify_backend = %q\n", c.NotifyBackend)
	fmt.Fprintf(&b, "multicast_port = %d\n", c.MulticastPort)
	fmt.Fprintf(&b, "multicast_interface = %q\n", c.MulticastInterface)
	fmt.Fprintf(&b, "redis_addr = %q\n\n", c.RedisAddr)
	fmt.Fprintf(&b, "discovery = %t\n", c.Discovery)
	fmt.Fprintf(&b, "audit_enabled = %t\n", c.AuditEnabled)
	fmt.Fprintf(&b, "audit_file = %q\n", c.AuditFile)
	fmt.Fprintf(&b, "log_level = %q\n", c.LogLevel)
	fmt.Fprintf(&b, "log_json = %t\n", c.LogJSON)
	return b.String()
}

// SaveToFile writes the configuration to path, creating parent directories.
func (c *Config) SaveToFile(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}
	return os.WriteFile(path, []byte(c.ToTOML()), 0644)
}

// set assigns one key from the file format.
func (c *Config) set(key, raw string) error {
	str := func() (string, error) {
		if len(raw) >= 2 && raw[0] == '"' && raw[len(raw)-1] == '"' {
			return strconv.Unquote(raw)
		}
		return "", fmt.Errorf("expected quoted string, got %s", raw)
	}
	num := func(dst *int) error {
		v, err := strconv.Atoi(raw)
		if err != nil {
			return fmt.Errorf("expected integer, got %s", raw)
		}
		*dst = v
		return nil
	}
	boolean := func(dst *bool) error {
		v, err := strconv.ParseBool(raw)
		if err != nil {
			return fmt.Errorf("expected true or false, got %s", raw)
		}
		*dst = v
		return nil
	}
	text := func(dst *string) error {
		v, err := str()
		if err != nil {
			return err
		}
		*dst = v
		return nil
	}

	switch key {
	case "listen_addr":
		return text(&c.ListenAddr)
	case "port":
		return num(&c.Port)
	case "registration_port":
		return num(&c.RegistrationPort)
	case "workers":
		return num(&c.Workers)
	case "queue_size":
		return num(&c.QueueSize)
	case "max_name_length":
		return num(&c.MaxNameLength)
	case "max_password_length":
		return num(&c.MaxPasswordLength)
	case "max_sections":
		return num(&c.MaxSections)
	case "max_section_size":
		return num(&c.MaxSectionSize)
	case "max_message_length":
		return num(&c.MaxMessageLength)
	case "write_timeout":
		s, err := str()
		if err != nil {
			return err
		}
		d, err := time.ParseDuration(s)
		if err != nil {
			return err
		}
		c.WriteTimeout = d
		return nil
	case "storage_backend":
		return text(&c.StorageBackend)
	case "data_dir":
		return text(&c.DataDir)
	case "compression":
		return text(&c.Compression)
	case "notify_backend":
		return text(&c.NotifyBackend)
	case "multicast_port":
		return num(&c.MulticastPort)
	case "multicast_interface":
		return text(&c.MulticastInterface)
	case "redis_addr":
		return text(&c.RedisAddr)
	case "discovery":
		return boolean(&c.Discovery)
	case "audit_enabled":
		return boolean(&c.AuditEnabled)
	case "audit_file":
		return text(&c.AuditFile)
	case "log_level":
		return text(&c.LogLevel)
	case "log_json":
		return boolean(&c.LogJSON)
	default:
		return fmt.Errorf("unknown key %q", key)
	}
}

// parseFile applies every key of the file at path to c.
func (c *Config) parseFile(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		key, value, ok := strings.Cut(line, "=")
		if !ok {
			return fmt.Errorf("%s:%d: expected key = value", path, lineNo)
		}
		value = strings.TrimSpace(value)
		if !strings.HasPrefix(value, `"`) {
			if i := strings.Index(value, "#"); i >= 0 {
				value = strings.TrimSpace(value[:i])
			}
		}
		if err := c.set(strings.TrimSpace(key), value); err != nil {
			return fmt.Errorf("%s:%d: %w", path, lineNo, err)
		}
	}
	return scanner.Err()
}

// applyEnv applies TURING_* variables to c.
func (c *Config) applyEnv() {
	str := func(name string, dst *string) {
		if v := os.Getenv(name); v != "" {
			*dst = v
		}
	}
	num := func(name string, dst *int) {
		if v := os.Getenv(name); v != "" {
			if n, err := strconv.Atoi(v); err == nil {
				*dst = n
			}
		}
	}
	boolean := func(name string, dst *bool) {
		if v := os.Getenv(name); v != "" {
			if b, err := strconv.ParseBool(v); err == nil {
				*dst = b
			}
		}
	}

	str(EnvListenAddr, &c.ListenAddr)
	num(EnvPort, &c.Port)
	num(EnvRegistrationPort, &c.RegistrationPort)
	num(EnvWorkers, &c.Workers)
	str(EnvStorageBackend, &c.StorageBackend)
	str(EnvDataDir, &c.DataDir)
	str(EnvCompression, &c.Compression)
	str(EnvNotifyBackend, &c.NotifyBackend)
	str(EnvRedisAddr, &c.RedisAddr)
	boolean(EnvDiscovery, &c.Discovery)
	boolean(EnvAuditEnabled, &c.AuditEnabled)
	str(EnvAuditFile, &c.AuditFile)
	str(EnvLogLevel, &c.LogLevel)
	boolean(EnvLogJSON, &c.LogJSON)
}

// Manager owns the current configuration and notifies listeners of reloads.
type Manager struct {
	mu        sync.RWMutex
	cfg       *Config
	useEnv    bool
	overrides func(*Config)
	callbacks []func(*Config)
	logger    *logging.Logger
}

// NewManager creates a manager holding the defaults.
func NewManager() *Manager {
	return &Manager{
		cfg:    DefaultConfig(),
		logger: logging.NewLogger("config"),
	}
}

var (
	globalOnce sync.Once
	global     *Manager
)

// Global returns the process-wide manager.
func Global() *Manager {
	globalOnce.Do(func() {
		global = NewManager()
	})
	return global
}

// Get returns a copy of the current configuration.
func (m *Manager) Get() *Config {
	m.mu.RLock()
	defer m.mu.RUnlock()
	cp := *m.cfg
	return &cp
}

// LoadFromFile applies the file at path on top of the current configuration
// and remembers the path for Reload and Watch.
func (m *Manager) LoadFromFile(path string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	cfg := *m.cfg
	if err := cfg.parseFile(path); err != nil {
		return err
	}
	cfg.ConfigFile = path
	m.cfg = &cfg
	return nil
}

// LoadFromEnv applies TURING_* environment variables. Later reloads apply
// them again.
func (m *Manager) LoadFromEnv() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.useEnv = true
	m.cfg.applyEnv()
}

// SetOverrides registers a function applied last on every load, typically
// command-line flags.
func (m *Manager) SetOverrides(fn func(*Config)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.overrides = fn
	if fn != nil {
		fn(m.cfg)
	}
}

// OnReload registers a callback invoked after every successful reload.
func (m *Manager) OnReload(fn func(*Config)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.callbacks = append(m.callbacks, fn)
}

// Reload rebuilds the configuration from defaults, file, environment and
// overrides. The previous configuration stays active if the result does
// not validate.
func (m *Manager) Reload() error {
	m.mu.RLock()
	path := m.cfg.ConfigFile
	useEnv := m.useEnv
	overrides := m.overrides
	m.mu.RUnlock()

	cfg := DefaultConfig()
	if path != "" {
		if err := cfg.parseFile(path); err != nil {
			return err
		}
		cfg.ConfigFile = path
	}
	if useEnv {
		cfg.applyEnv()
	}
	if overrides != nil {
		overrides(cfg)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("reloaded configuration is invalid: %w", err)
	}

	m.mu.Lock()
	m.cfg = cfg
	callbacks := append(([]func(*Config))(nil), m.callbacks...)
	m.mu.Unlock()

	for _, fn := range callbacks {
		cp := *cfg
		fn(&cp)
	}
	return nil
}

// Watch reloads the configuration whenever the file changes, until ctx is
// done. The parent directory is watched so that editors replacing the file
// through a rename are noticed.
func (m *Manager) Watch(ctx context.Context) error {
	path := m.Get().ConfigFile
	if path == "" {
		return fmt.Errorf("no configuration file to watch")
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create config watcher: %w", err)
	}
	if err := watcher.Add(filepath.Dir(path)); err != nil {
		watcher.Close()
		return fmt.Errorf("watch %s: %w", path, err)
	}

	go func() {
		defer watcher.Close()
		target := filepath.Clean(path)
		for {
			select {
			case <-ctx.Done():
				return
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if filepath.Clean(event.Name) != target || !event.Has(fsnotify.Write|fsnotify.Create) {
					continue
				}
				if err := m.Reload(); err != nil {
					m.logger.Warn("config reload failed", "file", path, "error", err)
					continue
				}
				m.logger.Info("config reloaded", "file", path)
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				m.logger.Error("config watcher error", "error", err)
			}
		}
	}()
	return nil
}
