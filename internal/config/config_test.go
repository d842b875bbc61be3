package config

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testPaths(t *testing.T) *Paths {
	t.Helper()
	dir := filepath.Join(t.TempDir(), AppName)
	return &Paths{
		ConfigDir:  dir,
		DataDir:    filepath.Join(dir, DataDirName),
		ConfigFile: filepath.Join(dir, ConfigFileName),
	}
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.Equal(t, "localhost:5222", cfg.Server)
	assert.Equal(t, 5, cfg.ReconnectDelaySeconds)
	assert.Equal(t, 5, cfg.MaxReconnectAttempts)
	assert.True(t, cfg.ShowNotifications)
	assert.True(t, cfg.AutoLogin)
	assert.Equal(t, BackendKeyring, cfg.CredentialBackend)
	assert.Empty(t, cfg.MetricsAddr)
	require.NoError(t, cfg.Validate())
}

func TestGetPaths(t *testing.T) {
	t.Run("with XDG_CONFIG_HOME set", func(t *testing.T) {
		tmpDir := t.TempDir()
		t.Setenv("XDG_CONFIG_HOME", tmpDir)

		paths, err := GetPaths()
		require.NoError(t, err)

		assert.Equal(t, filepath.Join(tmpDir, AppName), paths.ConfigDir)
		assert.Equal(t, filepath.Join(tmpDir, AppName, DataDirName), paths.DataDir)
		assert.Equal(t, filepath.Join(tmpDir, AppName, ConfigFileName), paths.ConfigFile)
	})

	t.Run("prefers existing yaml file", func(t *testing.T) {
		tmpDir := t.TempDir()
		t.Setenv("XDG_CONFIG_HOME", tmpDir)
		require.NoError(t, os.MkdirAll(filepath.Join(tmpDir, AppName), 0700))
		require.NoError(t, os.WriteFile(filepath.Join(tmpDir, AppName, YAMLConfigFileName), []byte("server: a:1\n"), 0600))

		paths, err := GetPaths()
		require.NoError(t, err)
		assert.Equal(t, filepath.Join(tmpDir, AppName, YAMLConfigFileName), paths.ConfigFile)
	})

	t.Run("without XDG_CONFIG_HOME (uses HOME/.config)", func(t *testing.T) {
		t.Setenv("XDG_CONFIG_HOME", "")

		paths, err := GetPaths()
		require.NoError(t, err)

		homeDir, err := os.UserHomeDir()
		require.NoError(t, err)
		assert.Equal(t, filepath.Join(homeDir, ".config", AppName), paths.ConfigDir)
	})
}

func TestPaths_EnsurePaths(t *testing.T) {
	paths := testPaths(t)

	require.NoError(t, paths.EnsurePaths())
	assert.DirExists(t, paths.ConfigDir)
	assert.DirExists(t, paths.DataDir)

	// Idempotent
	require.NoError(t, paths.EnsurePaths())
}

func TestLoad(t *testing.T) {
	t.Run("loads existing json config", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "config.json")
		content := `{"server": "chat.example.org:5222", "reconnect_delay_seconds": 10, "show_notifications": false}`
		require.NoError(t, os.WriteFile(path, []byte(content), 0600))

		cfg, err := Load(path)
		require.NoError(t, err)
		assert.Equal(t, "chat.example.org:5222", cfg.Server)
		assert.Equal(t, 10, cfg.ReconnectDelaySeconds)
		assert.False(t, cfg.ShowNotifications)
		// Unset fields keep defaults
		assert.Equal(t, 5, cfg.MaxReconnectAttempts)
	})

	t.Run("loads existing yaml config", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "config.yaml")
		content := "server: 10.0.0.1:5222\ncredential_backend: badger\nauto_login: false\n"
		require.NoError(t, os.WriteFile(path, []byte(content), 0600))

		cfg, err := Load(path)
		require.NoError(t, err)
		assert.Equal(t, "10.0.0.1:5222", cfg.Server)
		assert.Equal(t, BackendBadger, cfg.CredentialBackend)
		assert.False(t, cfg.AutoLogin)
		assert.True(t, cfg.ShowNotifications)
	})

	t.Run("returns defaults for missing file", func(t *testing.T) {
		cfg, err := Load(filepath.Join(t.TempDir(), "missing.json"))
		require.NoError(t, err)
		assert.Equal(t, DefaultConfig(), cfg)
	})

	t.Run("returns error for invalid json", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "config.json")
		require.NoError(t, os.WriteFile(path, []byte("{invalid"), 0600))

		_, err := Load(path)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "failed to unmarshal config")
	})

	t.Run("returns error for directory", func(t *testing.T) {
		_, err := Load(t.TempDir())
		require.Error(t, err)
		assert.Contains(t, err.Error(), "failed to read config file")
	})
}

func TestSave(t *testing.T) {
	for _, name := range []string{"config.json", "config.yaml"} {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), name)
			cfg := DefaultConfig()
			cfg.Server = "chat.example.org:443"
			cfg.MetricsAddr = "127.0.0.1:9464"

			require.NoError(t, Save(path, cfg))

			info, err := os.Stat(path)
			require.NoError(t, err)
			assert.Equal(t, os.FileMode(0600), info.Mode().Perm())

			loaded, err := Load(path)
			require.NoError(t, err)
			assert.Equal(t, cfg, loaded)
		})
	}
}

func TestApplyEnv(t *testing.T) {
	t.Setenv("IMORNING_CHAT_SERVER", "env.example.org:5223")
	t.Setenv("IMORNING_CHAT_DEBUG", "1")
	t.Setenv("IMORNING_CHAT_MAX_RECONNECT_ATTEMPTS", "9")

	cfg := DefaultConfig()
	require.NoError(t, ApplyEnv(cfg))
	assert.Equal(t, "env.example.org:5223", cfg.Server)
	assert.True(t, cfg.Debug)
	assert.Equal(t, 9, cfg.MaxReconnectAttempts)
	// Untouched fields keep their values
	assert.Equal(t, 5, cfg.ReconnectDelaySeconds)
}

func TestApplyEnv_NothingSet(t *testing.T) {
	cfg := DefaultConfig()
	require.NoError(t, ApplyEnv(cfg))
	assert.Equal(t, DefaultConfig(), cfg)
}

func TestApplyEnv_Invalid(t *testing.T) {
	t.Setenv("IMORNING_CHAT_RECONNECT_DELAY", "soon")
	require.Error(t, ApplyEnv(DefaultConfig()))
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{name: "defaults", mutate: func(*Config) {}},
		{name: "ip server", mutate: func(c *Config) { c.Server = "192.168.1.1:5222" }},
		{name: "ipv6 server", mutate: func(c *Config) { c.Server = "[::1]:5222" }},
		{name: "empty server", mutate: func(c *Config) { c.Server = "" }, wantErr: "server is required"},
		{name: "missing port", mutate: func(c *Config) { c.Server = "chat.example.org" }, wantErr: "invalid server address"},
		{name: "bad port", mutate: func(c *Config) { c.Server = "chat.example.org:99999" }, wantErr: "invalid server port"},
		{name: "bad host", mutate: func(c *Config) { c.Server = "chat;rm.example.org:5222" }, wantErr: "invalid character"},
		{name: "hyphen label", mutate: func(c *Config) { c.Server = "-chat.example.org:5222" }, wantErr: "hyphen"},
		{name: "empty label", mutate: func(c *Config) { c.Server = "chat..example.org:5222" }, wantErr: "empty label"},
		{name: "negative delay", mutate: func(c *Config) { c.ReconnectDelaySeconds = -1 }, wantErr: "reconnect delay must be non-negative"},
		{name: "negative attempts", mutate: func(c *Config) { c.MaxReconnectAttempts = -1 }, wantErr: "max reconnect attempts must be non-negative"},
		{name: "negative ping", mutate: func(c *Config) { c.PingIntervalSeconds = -1 }, wantErr: "ping interval must be non-negative"},
		{name: "unknown backend", mutate: func(c *Config) { c.CredentialBackend = "vault" }, wantErr: "unknown credential backend"},
		{name: "bad metrics addr", mutate: func(c *Config) { c.MetricsAddr = "9464" }, wantErr: "invalid metrics address"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestNewManager(t *testing.T) {
	tmpDir := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", tmpDir)

	manager, err := NewManager()
	require.NoError(t, err)

	assert.Equal(t, filepath.Join(tmpDir, AppName), manager.GetConfigDir())
	assert.Equal(t, filepath.Join(tmpDir, AppName, DataDirName), manager.GetDataDir())
	assert.DirExists(t, manager.GetDataDir())
	assert.Equal(t, DefaultConfig(), manager.GetConfig())
}

func TestManager_EnvOverridesAreNotPersisted(t *testing.T) {
	t.Setenv("IMORNING_CHAT_SERVER", "env.example.org:5223")

	manager, err := NewManagerWithPaths(testPaths(t))
	require.NoError(t, err)
	assert.Equal(t, "env.example.org:5223", manager.GetConfig().Server)

	require.NoError(t, manager.UpdateField(func(cfg *Config) { cfg.AutoLogin = false }))

	stored, err := Load(manager.GetConfigFile())
	require.NoError(t, err)
	assert.Equal(t, "localhost:5222", stored.Server)
	assert.False(t, stored.AutoLogin)
}

func TestManager_ConcurrentAccess(t *testing.T) {
	manager, err := NewManagerWithPaths(testPaths(t))
	require.NoError(t, err)

	var wg sync.WaitGroup
	var validationErrors int64

	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				// Don't use assert in goroutines
				if manager.GetConfig().Validate() != nil {
					atomic.AddInt64(&validationErrors, 1)
				}
			}
		}()
	}

	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			for j := 0; j < 10; j++ {
				_ = manager.UpdateField(func(cfg *Config) {
					cfg.ReconnectDelaySeconds = id + j
				})
			}
		}(i)
	}

	wg.Wait()

	assert.Zero(t, validationErrors)
	require.NoError(t, manager.GetConfig().Validate())
}

func TestManager_GetConfigReturnsCopy(t *testing.T) {
	manager, err := NewManagerWithPaths(testPaths(t))
	require.NoError(t, err)

	cfg1 := manager.GetConfig()
	cfg1.ReconnectDelaySeconds = 999

	assert.Equal(t, 5, manager.GetConfig().ReconnectDelaySeconds)
}

func TestManager_UpdateField(t *testing.T) {
	t.Run("atomically updates single field", func(t *testing.T) {
		manager, err := NewManagerWithPaths(testPaths(t))
		require.NoError(t, err)

		var changed *Config
		manager.OnChange(func(cfg *Config) { changed = cfg })

		require.NoError(t, manager.UpdateField(func(cfg *Config) {
			cfg.Debug = true
		}))

		cfg := manager.GetConfig()
		assert.True(t, cfg.Debug)
		assert.True(t, cfg.ShowNotifications)
		require.NotNil(t, changed)
		assert.True(t, changed.Debug)

		stored, err := Load(manager.GetConfigFile())
		require.NoError(t, err)
		assert.True(t, stored.Debug)
	})

	t.Run("rejects invalid config after mutation", func(t *testing.T) {
		manager, err := NewManagerWithPaths(testPaths(t))
		require.NoError(t, err)

		err = manager.UpdateField(func(cfg *Config) {
			cfg.ReconnectDelaySeconds = -5
		})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "reconnect delay must be non-negative")

		assert.Equal(t, 5, manager.GetConfig().ReconnectDelaySeconds)
		assert.NoFileExists(t, manager.GetConfigFile())
	})
}

func TestManager_UpdateConfig(t *testing.T) {
	manager, err := NewManagerWithPaths(testPaths(t))
	require.NoError(t, err)

	cfg := DefaultConfig()
	cfg.Server = "chat.example.org:5222"
	require.NoError(t, manager.UpdateConfig(cfg))
	assert.Equal(t, "chat.example.org:5222", manager.GetConfig().Server)

	bad := DefaultConfig()
	bad.Server = ""
	require.Error(t, manager.UpdateConfig(bad))
	assert.Equal(t, "chat.example.org:5222", manager.GetConfig().Server)
}

func TestManager_Reload(t *testing.T) {
	manager, err := NewManagerWithPaths(testPaths(t))
	require.NoError(t, err)
	require.NoError(t, manager.SaveConfig())

	cfg := DefaultConfig()
	cfg.MaxReconnectAttempts = 2
	require.NoError(t, Save(manager.GetConfigFile(), cfg))

	require.NoError(t, manager.Reload())
	assert.Equal(t, 2, manager.GetConfig().MaxReconnectAttempts)

	// Invalid file keeps the current config
	require.NoError(t, os.WriteFile(manager.GetConfigFile(), []byte(`{"server": ""}`), 0600))
	require.Error(t, manager.Reload())
	assert.Equal(t, 2, manager.GetConfig().MaxReconnectAttempts)
}

func TestManager_Watch(t *testing.T) {
	manager, err := NewManagerWithPaths(testPaths(t))
	require.NoError(t, err)
	require.NoError(t, manager.SaveConfig())

	changes := make(chan *Config, 4)
	manager.OnChange(func(cfg *Config) { changes <- cfg })

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, manager.Watch(ctx, 20*time.Millisecond))

	cfg := DefaultConfig()
	cfg.Debug = true
	require.NoError(t, Save(manager.GetConfigFile(), cfg))

	select {
	case got := <-changes:
		assert.True(t, got.Debug)
	case <-time.After(3 * time.Second):
		t.Fatal("config change not observed")
	}
	assert.True(t, manager.GetConfig().Debug)
}
