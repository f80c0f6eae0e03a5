// Package config loads flowyard configuration from flowyard.yaml and
// FLOWYARD_* environment variables.
package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// Config is the process-level configuration. Tracker credentials are not
// here: adapters read those from the config store with env fallback, so
// secrets can live in the database instead of a file.
type Config struct {
	// DSN is the MySQL connection string. Ignored when Ephemeral is set.
	DSN string

	// Ephemeral runs against the in-memory store. Nothing survives the
	// process; useful for dry runs and tests.
	Ephemeral bool

	// Tracker names the adapter to sync with ("jira", "pipeboard").
	Tracker string

	CompanyID int64
	ProjectID int64
	TeamID    int64

	// PageSize for change-history fetches.
	PageSize int

	// Workers bounds concurrent demand reconciliations. 0 means CPU count.
	Workers int

	// WebhookURL receives notification payloads. Empty logs instead.
	WebhookURL string

	// StageMappings points at the optional stage_mappings.yaml file.
	StageMappings string
}

// Load reads configuration. path may name a config file explicitly; when
// empty, flowyard.yaml is searched for in the working directory and
// ~/.config/flowyard. Environment variables prefixed FLOWYARD_ override file
// values (FLOWYARD_DSN, FLOWYARD_TRACKER, ...). A missing file is fine; a
// malformed one is not.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix("FLOWYARD")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("page_size", 100)
	v.SetDefault("workers", 0)
	v.SetDefault("company_id", 1)
	v.SetDefault("team_id", 1)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("flowyard")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/.config/flowyard")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("reading config: %w", err)
		}
	}

	cfg := &Config{
		DSN:           v.GetString("dsn"),
		Ephemeral:     v.GetBool("ephemeral"),
		Tracker:       v.GetString("tracker"),
		CompanyID:     v.GetInt64("company_id"),
		ProjectID:     v.GetInt64("project_id"),
		TeamID:        v.GetInt64("team_id"),
		PageSize:      v.GetInt("page_size"),
		Workers:       v.GetInt("workers"),
		WebhookURL:    v.GetString("webhook_url"),
		StageMappings: v.GetString("stage_mappings"),
	}
	return cfg, nil
}

// Validate checks the fields every sync run needs.
func (c *Config) Validate() error {
	if c.Tracker == "" {
		return fmt.Errorf("no tracker configured (set tracker or FLOWYARD_TRACKER)")
	}
	if !c.Ephemeral && c.DSN == "" {
		return fmt.Errorf("no database configured (set dsn or FLOWYARD_DSN, or run with --ephemeral)")
	}
	if c.ProjectID == 0 {
		return fmt.Errorf("no project configured (set project_id or FLOWYARD_PROJECT_ID)")
	}
	return nil
}
