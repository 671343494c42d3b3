package am

import (
	"os"
	"path/filepath"

	"github.com/pelletier/go-toml/v2"

	"github.com/teranos/regalsync/errors"
)

// createBackup creates rotating backups (.back1, .back2, .back3) before modifying config
func createBackup(configPath string) error {
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return nil
	}

	back3 := configPath + ".back3"
	back2 := configPath + ".back2"
	back1 := configPath + ".back1"

	if err := os.Remove(back3); err != nil && !os.IsNotExist(err) {
		return errors.Wrapf(err, "failed to delete old backup %s", back3)
	}
	if _, err := os.Stat(back2); err == nil {
		if err := os.Rename(back2, back3); err != nil {
			return errors.Wrap(err, "failed to rotate .back2 to .back3")
		}
	}
	if _, err := os.Stat(back1); err == nil {
		if err := os.Rename(back1, back2); err != nil {
			return errors.Wrap(err, "failed to rotate .back1 to .back2")
		}
	}

	content, err := os.ReadFile(configPath)
	if err != nil {
		return errors.Wrap(err, "failed to read config for backup")
	}
	if err := os.WriteFile(back1, content, DefaultFilePermissions); err != nil {
		return errors.Wrap(err, "failed to create .back1")
	}
	return nil
}

// DefaultConfig returns the configuration produced by SetDefaults alone
func DefaultConfig() Config {
	return Config{
		Sync: SyncConfig{
			Workers:        1,
			MetadataFormat: DefaultMetadataFormat,
			IDStrategy:     "digitool",
		},
		Source: SourceConfig{
			RequestsPerSecond: 5,
			Retries:           3,
			TimeoutSeconds:    60,
			UserAgent:         "regalsync",
		},
		Repository: RepositoryConfig{
			Scheme:            "http",
			RequestsPerSecond: 10,
			Retries:           2,
			TimeoutSeconds:    120,
			URNSubnamespace:   DefaultURNSubnamespace,
			CreatedBy:         "regalsync",
			ImportedFrom:      "digitool",
		},
		Database: DatabaseConfig{Path: DefaultDatabasePath},
	}
}

// WriteConfig writes cfg as TOML to path, rotating backups of an existing file.
func WriteConfig(path string, cfg Config) error {
	if err := os.MkdirAll(filepath.Dir(path), DefaultDirPermissions); err != nil {
		return errors.Wrap(err, "failed to create config directory")
	}
	if err := createBackup(path); err != nil {
		return errors.Wrap(err, "failed to create backup")
	}

	data, err := toml.Marshal(cfg)
	if err != nil {
		return errors.Wrap(err, "failed to marshal config")
	}
	header := []byte("# regalsync configuration\n")
	if err := os.WriteFile(path, append(header, data...), 0600); err != nil {
		return errors.Wrapf(err, "failed to write %s", path)
	}
	return nil
}
