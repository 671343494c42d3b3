// Package am loads and validates the regalsync configuration ("I am").
//
// Values are merged from TOML files, a .env file, REGALSYNC_* environment
// variables and command line flags. See load.go for the precedence order.
package am

// Config represents the regalsync configuration
type Config struct {
	Sync        SyncConfig        `mapstructure:"sync" toml:"sync" json:"sync" yaml:"sync"`
	Source      SourceConfig      `mapstructure:"source" toml:"source" json:"source" yaml:"source"`
	Repository  RepositoryConfig  `mapstructure:"repository" toml:"repository" json:"repository" yaml:"repository"`
	Database    DatabaseConfig    `mapstructure:"database" toml:"database" json:"database" yaml:"database"`
	Concordance ConcordanceConfig `mapstructure:"concordance" toml:"concordance" json:"concordance" yaml:"concordance"`
	Selftest    SelftestConfig    `mapstructure:"selftest" toml:"selftest" json:"selftest" yaml:"selftest"`
}

// SyncConfig configures a single sync run
type SyncConfig struct {
	Mode           string `mapstructure:"mode" toml:"mode" json:"mode" yaml:"mode"`
	Set            string `mapstructure:"set" toml:"set" json:"set" yaml:"set"` // comma-separated OAI set specs
	Namespace      string `mapstructure:"namespace" toml:"namespace" json:"namespace" yaml:"namespace"`
	CacheDir       string `mapstructure:"cache_dir" toml:"cache_dir" json:"cache_dir" yaml:"cache_dir"`
	PIDList        string `mapstructure:"pid_list" toml:"pid_list" json:"pid_list" yaml:"pid_list"` // PIDL and DELE input
	Workers        int    `mapstructure:"workers" toml:"workers" json:"workers" yaml:"workers"`      // 0 or 1 = sequential
	DryRun         bool   `mapstructure:"dry_run" toml:"dry_run" json:"dry_run" yaml:"dry_run"`
	MetadataFormat string `mapstructure:"metadata_format" toml:"metadata_format" json:"metadata_format" yaml:"metadata_format"`
	IDStrategy     string `mapstructure:"id_strategy" toml:"id_strategy" json:"id_strategy" yaml:"id_strategy"` // digitool, identity
}

// SourceConfig configures the legacy source system (OAI-PMH + record API)
type SourceConfig struct {
	BaseURL           string  `mapstructure:"base_url" toml:"base_url" json:"base_url" yaml:"base_url"`
	OAIEndpoint       string  `mapstructure:"oai_endpoint" toml:"oai_endpoint" json:"oai_endpoint" yaml:"oai_endpoint"`
	RequestsPerSecond float64 `mapstructure:"rps" toml:"rps" json:"rps" yaml:"rps"`
	Retries           int     `mapstructure:"retries" toml:"retries" json:"retries" yaml:"retries"`
	TimeoutSeconds    int     `mapstructure:"timeout_seconds" toml:"timeout_seconds" json:"timeout_seconds" yaml:"timeout_seconds"`
	UserAgent         string  `mapstructure:"user_agent" toml:"user_agent" json:"user_agent" yaml:"user_agent"`
}

// RepositoryConfig configures the target repository REST API
type RepositoryConfig struct {
	Host                 string  `mapstructure:"host" toml:"host" json:"host" yaml:"host"`
	Scheme               string  `mapstructure:"scheme" toml:"scheme" json:"scheme" yaml:"scheme"`
	User                 string  `mapstructure:"user" toml:"user" json:"user" yaml:"user"`
	Password             string  `mapstructure:"password" toml:"password" json:"password" yaml:"password"`
	RequestsPerSecond    float64 `mapstructure:"rps" toml:"rps" json:"rps" yaml:"rps"`
	Retries              int     `mapstructure:"retries" toml:"retries" json:"retries" yaml:"retries"`
	TimeoutSeconds       int     `mapstructure:"timeout_seconds" toml:"timeout_seconds" json:"timeout_seconds" yaml:"timeout_seconds"`
	URNSubnamespace      string  `mapstructure:"urn_subnamespace" toml:"urn_subnamespace" json:"urn_subnamespace" yaml:"urn_subnamespace"`
	APIVersionConstraint string  `mapstructure:"api_version_constraint" toml:"api_version_constraint" json:"api_version_constraint" yaml:"api_version_constraint"`
	InitContentModels    bool    `mapstructure:"init_content_models" toml:"init_content_models" json:"init_content_models" yaml:"init_content_models"`
	CreatedBy            string  `mapstructure:"created_by" toml:"created_by" json:"created_by" yaml:"created_by"`
	ImportedFrom         string  `mapstructure:"imported_from" toml:"imported_from" json:"imported_from" yaml:"imported_from"`
}

// DatabaseConfig configures the SQLite database holding harvest checkpoints and the run log
type DatabaseConfig struct {
	Path string `mapstructure:"path" toml:"path" json:"path" yaml:"path"`
}

// ConcordanceConfig points at the optional legacy-id crosswalk table
type ConcordanceConfig struct {
	Path string `mapstructure:"path" toml:"path" json:"path" yaml:"path"`
}

// SelftestConfig configures TEST mode
type SelftestConfig struct {
	Fixtures string `mapstructure:"fixtures" toml:"fixtures" json:"fixtures" yaml:"fixtures"` // empty = embedded fixtures
}

// File system constants
const (
	DefaultDirPermissions  = 0755
	DefaultFilePermissions = 0644
)

// Redacted returns a copy safe to print: the repository password is masked.
func (c Config) Redacted() Config {
	if c.Repository.Password != "" {
		c.Repository.Password = "********"
	}
	return c
}
