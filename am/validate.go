package am

import (
	"fmt"
	"strings"

	"github.com/teranos/regalsync/errors"
)

// ErrMissingOption is returned when a mode runs without a required option
var ErrMissingOption = errors.New("missing required option")

// Validate checks value ranges independent of the selected mode
func (c *Config) Validate() error {
	if c.Sync.Workers < 0 {
		return errors.Newf("sync.workers must be >= 0, got %d", c.Sync.Workers)
	}
	if c.Source.RequestsPerSecond < 0 {
		return errors.Newf("source.rps must be >= 0, got %f", c.Source.RequestsPerSecond)
	}
	if c.Repository.RequestsPerSecond < 0 {
		return errors.Newf("repository.rps must be >= 0, got %f", c.Repository.RequestsPerSecond)
	}
	if c.Source.Retries < 0 || c.Repository.Retries < 0 {
		return errors.New("retries must be >= 0")
	}
	switch c.Repository.Scheme {
	case "", "http", "https":
	default:
		return errors.Newf("repository.scheme must be http or https, got %q", c.Repository.Scheme)
	}
	switch c.Sync.IDStrategy {
	case "", "digitool", "identity":
	default:
		return errors.Newf("sync.id_strategy must be digitool or identity, got %q", c.Sync.IDStrategy)
	}
	return nil
}

// RequiredOptions lists the config keys a mode cannot run without.
// Unknown modes return nil; mode parsing reports those.
func RequiredOptions(mode string) []string {
	repo := []string{"sync.namespace", "repository.host", "repository.user", "repository.password"}
	source := []string{"sync.cache_dir", "source.base_url"}
	harvest := []string{"sync.set", "source.oai_endpoint"}

	switch strings.ToUpper(mode) {
	case "INIT", "SYNC", "CONT", "UPDT":
		return concat(repo, source, harvest)
	case "DWNL":
		return concat(source, harvest)
	case "PIDL":
		return concat(repo, source, []string{"sync.pid_list"})
	case "DELE":
		return concat(repo, []string{"sync.pid_list"})
	case "TEST":
		return repo
	default:
		return nil
	}
}

// ValidateForMode checks that every option required by mode is set.
// Dry runs do not talk to the repository, so repository credentials are
// not required for them.
func (c *Config) ValidateForMode(mode string) error {
	if err := c.Validate(); err != nil {
		return errors.MarkFatal(err)
	}

	var missing []string
	for _, key := range RequiredOptions(mode) {
		if c.Sync.DryRun && strings.HasPrefix(key, "repository.") {
			continue
		}
		if c.lookup(key) == "" {
			missing = append(missing, key)
		}
	}
	if len(missing) == 0 {
		return nil
	}

	err := errors.Wrapf(ErrMissingOption, "mode %s needs %s", strings.ToUpper(mode), strings.Join(missing, ", "))
	err = errors.WithHint(err, fmt.Sprintf("set them in am.toml, as %s_* environment variables or as flags", EnvPrefix))
	return errors.MarkFatal(err)
}

func (c *Config) lookup(key string) string {
	switch key {
	case "sync.namespace":
		return c.Sync.Namespace
	case "sync.set":
		return c.Sync.Set
	case "sync.cache_dir":
		return c.Sync.CacheDir
	case "sync.pid_list":
		return c.Sync.PIDList
	case "source.base_url":
		return c.Source.BaseURL
	case "source.oai_endpoint":
		return c.Source.OAIEndpoint
	case "repository.host":
		return c.Repository.Host
	case "repository.user":
		return c.Repository.User
	case "repository.password":
		return c.Repository.Password
	default:
		return ""
	}
}

func concat(groups ...[]string) []string {
	var out []string
	for _, g := range groups {
		out = append(out, g...)
	}
	return out
}
