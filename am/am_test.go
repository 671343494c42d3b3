package am

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teranos/regalsync/errors"
)

func TestLoad_Defaults(t *testing.T) {
	v := viper.New()
	SetDefaults(v)

	cfg, err := LoadWithViper(v)
	require.NoError(t, err)

	assert.Equal(t, DefaultDatabasePath, cfg.Database.Path)
	assert.Equal(t, 1, cfg.Sync.Workers)
	assert.Equal(t, "oai_dc", cfg.Sync.MetadataFormat)
	assert.Equal(t, "http", cfg.Repository.Scheme)
	assert.Equal(t, DefaultURNSubnamespace, cfg.Repository.URNSubnamespace)
	assert.Equal(t, DefaultConfig(), *cfg)
}

func TestLoadFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "am.toml")
	content := `
[sync]
namespace = "edoweb"
set = "ellinet,edoweb"
workers = 4

[repository]
host = "api.localhost"
user = "admin"
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	cfg, err := LoadFromFile(path)
	require.NoError(t, err)

	assert.Equal(t, "edoweb", cfg.Sync.Namespace)
	assert.Equal(t, "ellinet,edoweb", cfg.Sync.Set)
	assert.Equal(t, 4, cfg.Sync.Workers)
	assert.Equal(t, "api.localhost", cfg.Repository.Host)
	// untouched keys keep their defaults
	assert.Equal(t, 2, cfg.Repository.Retries)
}

func TestMergeConfigFiles_Precedence(t *testing.T) {
	dir := t.TempDir()
	system := filepath.Join(dir, "system.toml")
	project := filepath.Join(dir, "project.toml")
	require.NoError(t, os.WriteFile(system, []byte("[sync]\nnamespace = \"system\"\nset = \"a\"\n"), 0644))
	require.NoError(t, os.WriteFile(project, []byte("[sync]\nnamespace = \"project\"\n"), 0644))

	v := viper.New()
	SetDefaults(v)
	mergeConfigFiles(v, []string{system, filepath.Join(dir, "missing.toml"), project})

	cfg, err := LoadWithViper(v)
	require.NoError(t, err)
	assert.Equal(t, "project", cfg.Sync.Namespace)
	assert.Equal(t, "a", cfg.Sync.Set)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"defaults are valid", func(c *Config) {}, false},
		{"zero workers is valid", func(c *Config) { c.Sync.Workers = 0 }, false},
		{"negative workers", func(c *Config) { c.Sync.Workers = -1 }, true},
		{"negative rps", func(c *Config) { c.Source.RequestsPerSecond = -1 }, true},
		{"bad scheme", func(c *Config) { c.Repository.Scheme = "ftp" }, true},
		{"bad id strategy", func(c *Config) { c.Sync.IDStrategy = "handle" }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func completeConfig() Config {
	cfg := DefaultConfig()
	cfg.Sync.Namespace = "edoweb"
	cfg.Sync.Set = "edoweb"
	cfg.Sync.CacheDir = "/tmp/cache"
	cfg.Sync.PIDList = "pids.txt"
	cfg.Source.BaseURL = "http://dtl.localhost"
	cfg.Source.OAIEndpoint = "http://dtl.localhost/oai"
	cfg.Repository.Host = "api.localhost"
	cfg.Repository.User = "admin"
	cfg.Repository.Password = "secret"
	return cfg
}

func TestValidateForMode(t *testing.T) {
	modes := []string{"INIT", "SYNC", "CONT", "UPDT", "DWNL", "PIDL", "DELE", "TEST"}
	for _, mode := range modes {
		t.Run(mode+" complete", func(t *testing.T) {
			cfg := completeConfig()
			assert.NoError(t, cfg.ValidateForMode(mode))
		})
	}

	t.Run("missing namespace is fatal", func(t *testing.T) {
		cfg := completeConfig()
		cfg.Sync.Namespace = ""
		err := cfg.ValidateForMode("INIT")
		require.Error(t, err)
		assert.True(t, errors.Is(err, ErrMissingOption))
		assert.True(t, errors.IsFatal(err))
		assert.Contains(t, err.Error(), "sync.namespace")
		assert.NotEmpty(t, errors.GetAllHints(err))
	})

	t.Run("DELE needs list file but no cache", func(t *testing.T) {
		cfg := completeConfig()
		cfg.Sync.CacheDir = ""
		assert.NoError(t, cfg.ValidateForMode("dele"))
		cfg.Sync.PIDList = ""
		assert.Error(t, cfg.ValidateForMode("DELE"))
	})

	t.Run("dry run skips repository credentials", func(t *testing.T) {
		cfg := completeConfig()
		cfg.Repository.Password = ""
		assert.Error(t, cfg.ValidateForMode("SYNC"))
		cfg.Sync.DryRun = true
		assert.NoError(t, cfg.ValidateForMode("SYNC"))
	})
}

func TestRedacted(t *testing.T) {
	cfg := completeConfig()
	red := cfg.Redacted()
	assert.Equal(t, "********", red.Repository.Password)
	assert.Equal(t, "secret", cfg.Repository.Password)
}

func TestWriteConfig_RotatesBackups(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "am.toml")

	cfg := completeConfig()
	require.NoError(t, WriteConfig(path, cfg))
	cfg.Sync.Namespace = "second"
	require.NoError(t, WriteConfig(path, cfg))

	_, err := os.Stat(path + ".back1")
	require.NoError(t, err)

	loaded, err := LoadFromFile(path)
	require.NoError(t, err)
	assert.Equal(t, "second", loaded.Sync.Namespace)
	assert.Equal(t, "secret", loaded.Repository.Password)
}

func TestUseConfigFile(t *testing.T) {
	Reset()
	t.Cleanup(Reset)

	path := filepath.Join(t.TempDir(), "run.toml")
	require.NoError(t, os.WriteFile(path, []byte("[sync]\nnamespace = \"edoweb\"\nworkers = 4\n"), 0600))

	require.NoError(t, UseConfigFile(path))
	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "edoweb", cfg.Sync.Namespace)
	assert.Equal(t, 4, cfg.Sync.Workers)

	assert.Error(t, UseConfigFile(filepath.Join(t.TempDir(), "missing.toml")))
}
