package am

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/teranos/regalsync/errors"
)

var globalConfig *Config
var viperInstance *viper.Viper

// EnvPrefix is the prefix of every environment variable regalsync reads
const EnvPrefix = "REGALSYNC"

// Load reads the configuration using Viper. The result is cached; call
// Reset to force a reload.
func Load() (*Config, error) {
	if globalConfig != nil {
		return globalConfig, nil
	}

	config, err := LoadWithViper(initViper())
	if err != nil {
		return nil, err
	}

	globalConfig = config
	return globalConfig, nil
}

// GetViper returns the Viper instance so commands can bind their flags
// before Load runs.
func GetViper() *viper.Viper {
	return initViper()
}

// LoadWithViper loads configuration using a provided Viper instance
func LoadWithViper(v *viper.Viper) (*Config, error) {
	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, errors.Wrap(err, "failed to unmarshal config")
	}
	return &config, nil
}

// LoadFromFile loads configuration from a specific file path, without
// environment or user config.
func LoadFromFile(configPath string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(configPath)
	v.SetConfigType("toml")
	SetDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		return nil, errors.Wrapf(err, "failed to read config file %s", configPath)
	}

	return LoadWithViper(v)
}

// UseConfigFile merges an explicit config file (--config) on top of the
// discovered ones. Environment variables and flags still win.
func UseConfigFile(path string) error {
	if _, err := os.Stat(path); err != nil {
		return errors.Wrapf(err, "config file %s", path)
	}
	v := initViper()
	v.SetConfigFile(path)
	v.SetConfigType("toml")
	if err := v.MergeInConfig(); err != nil {
		return errors.Wrapf(err, "failed to read config file %s", path)
	}
	globalConfig = nil
	return nil
}

// Reset clears the cached configuration (useful for testing)
func Reset() {
	globalConfig = nil
	viperInstance = nil
}

// initViper initializes Viper with configuration sources and defaults
func initViper() *viper.Viper {
	if viperInstance != nil {
		return viperInstance
	}

	loadDotEnv()

	v := viper.New()

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	BindSensitiveEnvVars(v)
	SetDefaults(v)

	// system -> user -> project, env vars and flags stay on top
	mergeConfigFiles(v, ConfigPaths())

	viperInstance = v
	return v
}

// loadDotEnv reads ./.env into the process environment. Variables that are
// already set win over the file.
func loadDotEnv() {
	if _, err := os.Stat(".env"); err != nil {
		return
	}
	_ = godotenv.Load(".env")
}

// findProjectConfig searches for am.toml by walking up the directory tree
func findProjectConfig() string {
	dir, err := os.Getwd()
	if err != nil {
		return ""
	}

	for {
		amPath := filepath.Join(dir, "am.toml")
		if _, err := os.Stat(amPath); err == nil {
			return amPath
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}

	return ""
}

// ConfigPaths lists the candidate config files, lowest precedence first.
// Files that do not exist are skipped during the merge.
func ConfigPaths() []string {
	paths := []string{"/etc/regalsync/config.toml"}

	if homeDir, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(homeDir, ".regalsync", "am.toml"))
	}
	if projectConfig := findProjectConfig(); projectConfig != "" {
		paths = append(paths, projectConfig)
	}
	return paths
}

// mergeConfigFiles merges configuration files in the given order
func mergeConfigFiles(v *viper.Viper, paths []string) {
	for _, configPath := range paths {
		if _, err := os.Stat(configPath); err != nil {
			continue
		}
		v.SetConfigFile(configPath)
		v.SetConfigType("toml")
		_ = v.MergeInConfig()
	}
}
