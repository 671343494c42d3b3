package am

import (
	"github.com/spf13/viper"
)

// Default values referenced outside of SetDefaults
const (
	DefaultDatabasePath    = "regalsync.db"
	DefaultMetadataFormat  = "oai_dc"
	DefaultURNSubnamespace = "hbz:929:02"
)

// SetDefaults configures default values for all configuration options
func SetDefaults(v *viper.Viper) {
	v.SetDefault("sync.workers", 1)
	v.SetDefault("sync.metadata_format", DefaultMetadataFormat)
	v.SetDefault("sync.id_strategy", "digitool")
	v.SetDefault("sync.dry_run", false)

	v.SetDefault("source.rps", 5.0)
	v.SetDefault("source.retries", 3)
	v.SetDefault("source.timeout_seconds", 60)
	v.SetDefault("source.user_agent", "regalsync")

	v.SetDefault("repository.scheme", "http")
	v.SetDefault("repository.rps", 10.0)
	v.SetDefault("repository.retries", 2)
	v.SetDefault("repository.timeout_seconds", 120)
	v.SetDefault("repository.urn_subnamespace", DefaultURNSubnamespace)
	v.SetDefault("repository.init_content_models", false)
	v.SetDefault("repository.created_by", "regalsync")
	v.SetDefault("repository.imported_from", "digitool")

	v.SetDefault("database.path", DefaultDatabasePath)
}

// BindSensitiveEnvVars explicitly binds credentials to environment variables
// so they can come from the environment or a .env file instead of TOML.
func BindSensitiveEnvVars(v *viper.Viper) {
	_ = v.BindEnv("repository.user", "REGALSYNC_REPOSITORY_USER")
	_ = v.BindEnv("repository.password", "REGALSYNC_REPOSITORY_PASSWORD")
	_ = v.BindEnv("database.path", "REGALSYNC_DATABASE_PATH")
}

// GetDatabasePath returns the configured database path
func (c *Config) GetDatabasePath() string {
	if c.Database.Path == "" {
		return DefaultDatabasePath
	}
	return c.Database.Path
}

// GetURNSubnamespace returns the URN sub-namespace used for monographs
func (c *Config) GetURNSubnamespace() string {
	if c.Repository.URNSubnamespace == "" {
		return DefaultURNSubnamespace
	}
	return c.Repository.URNSubnamespace
}
