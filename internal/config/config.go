// Package config manages application-level configuration.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"github.com/joeshaw/envdecode"
	"gopkg.in/yaml.v3"

	"github.com/imorning/chat/internal/fileutil"
)

const (
	// AppName is the application identifier used for XDG paths.
	AppName = "imorning-chat"
	// ConfigFileName is the name of the main configuration file.
	ConfigFileName = "config.json"
	// YAMLConfigFileName is used instead of ConfigFileName when present.
	YAMLConfigFileName = "config.yaml"
	// DataDirName is the name of the directory holding stored sessions.
	DataDirName = "data"
)

// Credential backends.
const (
	BackendKeyring = "keyring"
	BackendFile    = "file"
	BackendBadger  = "badger"
)

// Config represents the application configuration.
// Every field can be overridden by the environment variable in its env tag.
type Config struct {
	// Server is the messaging gateway address as host:port.
	Server                string `json:"server" yaml:"server" env:"IMORNING_CHAT_SERVER"`
	ReconnectDelaySeconds int    `json:"reconnect_delay_seconds" yaml:"reconnect_delay_seconds" env:"IMORNING_CHAT_RECONNECT_DELAY"`
	MaxReconnectAttempts  int    `json:"max_reconnect_attempts" yaml:"max_reconnect_attempts" env:"IMORNING_CHAT_MAX_RECONNECT_ATTEMPTS"`
	PingIntervalSeconds   int    `json:"ping_interval_seconds" yaml:"ping_interval_seconds" env:"IMORNING_CHAT_PING_INTERVAL"`
	ShowNotifications     bool   `json:"show_notifications" yaml:"show_notifications" env:"IMORNING_CHAT_NOTIFICATIONS"`
	// AutoLogin signs in with the stored session at startup.
	AutoLogin         bool   `json:"auto_login" yaml:"auto_login" env:"IMORNING_CHAT_AUTO_LOGIN"`
	CredentialBackend string `json:"credential_backend" yaml:"credential_backend" env:"IMORNING_CHAT_CREDENTIALS"`
	// ControlSocket overrides the control socket path.
	ControlSocket string `json:"control_socket,omitempty" yaml:"control_socket,omitempty" env:"IMORNING_CHAT_CONTROL_SOCKET"`
	// MetricsAddr enables the metrics endpoint when set, e.g. "127.0.0.1:9464".
	MetricsAddr string `json:"metrics_addr,omitempty" yaml:"metrics_addr,omitempty" env:"IMORNING_CHAT_METRICS_ADDR"`
	Debug       bool   `json:"debug" yaml:"debug" env:"IMORNING_CHAT_DEBUG"`
}

// DefaultConfig returns a configuration with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Server:                "localhost:5222",
		ReconnectDelaySeconds: 5,
		MaxReconnectAttempts:  5,
		PingIntervalSeconds:   60,
		ShowNotifications:     true,
		AutoLogin:             true,
		CredentialBackend:     BackendKeyring,
	}
}

// Paths holds the resolved configuration directories.
type Paths struct {
	ConfigDir  string
	DataDir    string
	ConfigFile string
}

// GetPaths returns the configuration paths following the XDG Base Directory layout.
// An existing config.yaml takes precedence over config.json.
func GetPaths() (*Paths, error) {
	configHome := os.Getenv("XDG_CONFIG_HOME")
	if configHome == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("failed to get home directory: %w", err)
		}
		configHome = filepath.Join(homeDir, ".config")
	}

	configDir := filepath.Join(configHome, AppName)
	configFile := filepath.Join(configDir, ConfigFileName)
	if yamlFile := filepath.Join(configDir, YAMLConfigFileName); fileExists(yamlFile) {
		configFile = yamlFile
	}

	return &Paths{
		ConfigDir:  configDir,
		DataDir:    filepath.Join(configDir, DataDirName),
		ConfigFile: configFile,
	}, nil
}

// EnsurePaths creates all necessary configuration directories.
func (p *Paths) EnsurePaths() error {
	if err := os.MkdirAll(p.ConfigDir, 0700); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	if err := os.MkdirAll(p.DataDir, 0700); err != nil {
		return fmt.Errorf("failed to create data directory: %w", err)
	}
	return nil
}

// Load reads the configuration from disk. A missing file yields the defaults.
// Files ending in .yaml or .yml are parsed as YAML, anything else as JSON.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return DefaultConfig(), nil
		}
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := DefaultConfig()
	if isYAML(path) {
		err = yaml.Unmarshal(data, cfg)
	} else {
		err = json.Unmarshal(data, cfg)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return cfg, nil
}

// Save writes the configuration to disk atomically.
func Save(path string, cfg *Config) error {
	var (
		data []byte
		err  error
	)
	if isYAML(path) {
		data, err = yaml.Marshal(cfg)
	} else {
		data, err = json.MarshalIndent(cfg, "", "  ")
	}
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := fileutil.AtomicWrite(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// ApplyEnv overrides cfg with any IMORNING_CHAT_* variables that are set.
func ApplyEnv(cfg *Config) error {
	if err := envdecode.Decode(cfg); err != nil && !errors.Is(err, envdecode.ErrNoTargetFieldsAreSet) {
		return fmt.Errorf("failed to apply environment overrides: %w", err)
	}
	return nil
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if err := validateServer(c.Server); err != nil {
		return err
	}
	if c.ReconnectDelaySeconds < 0 {
		return fmt.Errorf("reconnect delay must be non-negative")
	}
	if c.MaxReconnectAttempts < 0 {
		return fmt.Errorf("max reconnect attempts must be non-negative")
	}
	if c.PingIntervalSeconds < 0 {
		return fmt.Errorf("ping interval must be non-negative")
	}
	switch c.CredentialBackend {
	case "", BackendKeyring, BackendFile, BackendBadger:
	default:
		return fmt.Errorf("unknown credential backend %q", c.CredentialBackend)
	}
	if c.MetricsAddr != "" {
		if _, _, err := net.SplitHostPort(c.MetricsAddr); err != nil {
			return fmt.Errorf("invalid metrics address: %w", err)
		}
	}
	return nil
}

// validateServer validates a host:port gateway address.
func validateServer(server string) error {
	if server == "" {
		return errors.New("server is required")
	}

	host, port, err := net.SplitHostPort(server)
	if err != nil {
		return fmt.Errorf("invalid server address: %w", err)
	}
	if err := validateHost(host); err != nil {
		return err
	}

	n, err := strconv.Atoi(port)
	if err != nil || n < 1 || n > 65535 {
		return fmt.Errorf("invalid server port %q", port)
	}
	return nil
}

// validateHost validates that the host is a valid hostname or IP address.
func validateHost(host string) error {
	if host == "" {
		return errors.New("host is required")
	}

	for _, r := range host {
		if r < 32 || r == 127 {
			return errors.New("invalid host: contains control characters")
		}
	}

	if net.ParseIP(host) != nil {
		return nil
	}

	// RFC 1123 hostname
	if len(host) > 253 {
		return errors.New("invalid host: hostname too long (max 253 characters)")
	}
	if strings.HasPrefix(host, ".") || strings.HasSuffix(host, ".") {
		return errors.New("invalid host: hostname cannot start or end with dot")
	}

	for _, label := range strings.Split(host, ".") {
		if len(label) == 0 {
			return errors.New("invalid host: empty label in hostname")
		}
		if len(label) > 63 {
			return errors.New("invalid host: label too long (max 63 characters)")
		}
		if strings.HasPrefix(label, "-") || strings.HasSuffix(label, "-") {
			return errors.New("invalid host: label cannot start or end with hyphen")
		}
		for _, r := range label {
			isLower := r >= 'a' && r <= 'z'
			isUpper := r >= 'A' && r <= 'Z'
			isDigit := r >= '0' && r <= '9'
			if !isLower && !isUpper && !isDigit && r != '-' {
				return fmt.Errorf("invalid host: invalid character %q in hostname", r)
			}
		}
	}

	return nil
}

func isYAML(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	return ext == ".yaml" || ext == ".yml"
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

// Manager provides high-level configuration management.
// It is safe for concurrent use from multiple goroutines.
type Manager struct {
	paths *Paths // Immutable after construction

	mu        sync.RWMutex
	config    *Config // As stored on disk
	effective *Config // config with environment overrides
	listeners []func(*Config)
}

// NewManager creates a configuration manager for the XDG paths.
// It ensures all necessary directories exist and loads the configuration.
func NewManager() (*Manager, error) {
	paths, err := GetPaths()
	if err != nil {
		return nil, fmt.Errorf("failed to get config paths: %w", err)
	}
	return NewManagerWithPaths(paths)
}

// NewManagerWithPaths creates a configuration manager for explicit paths.
func NewManagerWithPaths(paths *Paths) (*Manager, error) {
	if err := paths.EnsurePaths(); err != nil {
		return nil, fmt.Errorf("failed to create config directories: %w", err)
	}

	cfg, err := Load(paths.ConfigFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	effective, err := withEnv(cfg)
	if err != nil {
		return nil, err
	}

	return &Manager{
		paths:     paths,
		config:    cfg,
		effective: effective,
	}, nil
}

// GetConfig returns a copy of the effective configuration.
func (m *Manager) GetConfig() *Config {
	m.mu.RLock()
	defer m.mu.RUnlock()
	cfg := *m.effective
	return &cfg
}

// GetDataDir returns the path to the data directory.
func (m *Manager) GetDataDir() string {
	return m.paths.DataDir
}

// GetConfigDir returns the path to the configuration directory.
func (m *Manager) GetConfigDir() string {
	return m.paths.ConfigDir
}

// GetConfigFile returns the path to the configuration file.
func (m *Manager) GetConfigFile() string {
	return m.paths.ConfigFile
}

// OnChange registers a callback invoked with the new effective configuration
// after every successful update or reload. Callbacks run outside the lock.
func (m *Manager) OnChange(callback func(*Config)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.listeners = append(m.listeners, callback)
}

// SaveConfig saves the stored configuration to disk.
func (m *Manager) SaveConfig() error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return Save(m.paths.ConfigFile, m.config)
}

// UpdateConfig replaces the stored configuration and saves it.
func (m *Manager) UpdateConfig(cfg *Config) error {
	return m.UpdateField(func(c *Config) { *c = *cfg })
}

// UpdateField atomically updates the stored configuration using a mutator function.
// If validation fails, the original config is preserved.
func (m *Manager) UpdateField(mutator func(cfg *Config)) error {
	m.mu.Lock()

	configCopy := *m.config
	mutator(&configCopy)

	effective, err := withEnv(&configCopy)
	if err != nil {
		m.mu.Unlock()
		return err
	}

	if err := Save(m.paths.ConfigFile, &configCopy); err != nil {
		m.mu.Unlock()
		return err
	}

	*m.config = configCopy
	m.effective = effective
	listeners := m.listeners
	m.mu.Unlock()

	notify(listeners, effective)
	return nil
}

// Reload re-reads the configuration file. An invalid file leaves the
// current configuration in place and returns the error.
func (m *Manager) Reload() error {
	cfg, err := Load(m.paths.ConfigFile)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	effective, err := withEnv(cfg)
	if err != nil {
		return fmt.Errorf("validate config: %w", err)
	}

	m.mu.Lock()
	m.config = cfg
	m.effective = effective
	listeners := m.listeners
	m.mu.Unlock()

	notify(listeners, effective)
	return nil
}

func withEnv(cfg *Config) (*Config, error) {
	effective := *cfg
	if err := ApplyEnv(&effective); err != nil {
		return nil, err
	}
	if err := effective.Validate(); err != nil {
		return nil, err
	}
	return &effective, nil
}

func notify(listeners []func(*Config), cfg *Config) {
	for _, listener := range listeners {
		c := *cfg
		listener(&c)
	}
}
