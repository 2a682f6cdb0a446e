// Package config loads the bot configuration: the shared core settings
// plus the CRM-specific sections (Supabase project, session behaviour,
// tenant defaults, admin allow-list).
package config

import (
	"fmt"
	"os"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"

	coreconfig "github.com/fakto/crmbot/core/config"
	"github.com/fakto/crmbot/core/database"
	"github.com/fakto/crmbot/internal/supabase"
)

const defaultSessionTimeoutSeconds = 300

// SessionConfig controls conversation session behaviour.
type SessionConfig struct {
	// TimeoutSeconds is the idle window after which a conversation is
	// expired. Zero selects the 300s default.
	TimeoutSeconds int `yaml:"timeout_seconds" envconfig:"SESSION_TIMEOUT_SECONDS"`
	// AuthGate hides the management menus until the user signs in.
	// Unset means enabled.
	AuthGate *bool `yaml:"auth_gate" envconfig:"SESSION_AUTH_GATE"`
}

// TenantConfig carries the tenant assigned to fresh registrations.
type TenantConfig struct {
	DefaultID string `yaml:"default_id" envconfig:"TENANT_DEFAULT_ID"`
}

// AdminConfig is the allow-list for administrative commands.
type AdminConfig struct {
	IDs []int64 `yaml:"ids" envconfig:"ADMIN_IDS"`
}

// Config aggregates everything the bot and the admin CLI read.
type Config struct {
	Core     coreconfig.Config `yaml:",inline"`
	Supabase supabase.Config   `yaml:"supabase"`
	Database database.Config   `yaml:"database"`
	Session  SessionConfig     `yaml:"session"`
	Tenant   TenantConfig      `yaml:"tenant"`
	Admin    AdminConfig       `yaml:"admin"`
}

// CoreConfig exposes the embedded core configuration.
func (c *Config) CoreConfig() *coreconfig.Config {
	return &c.Core
}

// AuthGateEnabled resolves the auth gate setting with its default.
func (c *Config) AuthGateEnabled() bool {
	if c.Session.AuthGate == nil {
		return true
	}
	return *c.Session.AuthGate
}

// Load reads configuration from a YAML file and environment variables.
func Load(path string) (*Config, error) {
	var cfg Config

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse YAML config: %w", err)
	}
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to process env: %w", err)
	}

	if err := coreconfig.Normalize(&cfg.Core); err != nil {
		return nil, err
	}
	if err := cfg.Supabase.Validate(); err != nil {
		return nil, err
	}
	if cfg.Session.TimeoutSeconds < 0 {
		return nil, fmt.Errorf("session.timeout_seconds must be >= 0")
	}
	if cfg.Session.TimeoutSeconds == 0 {
		cfg.Session.TimeoutSeconds = defaultSessionTimeoutSeconds
	}
	if cfg.Tenant.DefaultID == "" {
		return nil, fmt.Errorf("tenant.default_id is required")
	}
	return &cfg, nil
}
