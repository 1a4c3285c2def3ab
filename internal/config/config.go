// Package config defines the quotapace configuration surface. The core
// treats it as read-only input; live updates arrive through the watcher.
package config

import (
	"strings"
	"time"
)

// PlanMode selects which long-lived-token billing scope to query when the
// delegated-session path yields nothing.
type PlanMode string

const (
	// PlanModeAuto probes personal billing first and falls back to org
	// billing when personal usage reads zero.
	PlanModeAuto PlanMode = "auto"

	// PlanModeIndividual queries personal billing only.
	PlanModeIndividual PlanMode = "individual"

	// PlanModeBusiness queries org billing only.
	PlanModeBusiness PlanMode = "business"
)

// Defaults applied by NewDefaultConfig and Sanitize.
const (
	DefaultMonthlyLimit           = 300
	DefaultRefreshIntervalMinutes = 30
	MinRefreshIntervalMinutes     = 5
	DefaultFreshnessWindow        = 5 * time.Minute
)

// Config is the full configuration for a quotapace process.
type Config struct {
	// PlanMode selects the billing scope: auto, individual or business.
	PlanMode PlanMode `yaml:"plan-mode,omitempty" json:"plan-mode,omitempty"`

	// MonthlyLimit is the premium-request entitlement used when the
	// upstream does not report a ceiling. Default: 300.
	MonthlyLimit int `yaml:"monthly-limit,omitempty" json:"monthly-limit,omitempty"`

	// OrgName pins org billing to a specific organization. When empty in
	// business mode the org is auto-detected.
	OrgName string `yaml:"org-name,omitempty" json:"org-name,omitempty"`

	// RefreshIntervalMinutes is the periodic refresh cadence. Default: 30,
	// values below 5 are raised to 5.
	RefreshIntervalMinutes int `yaml:"refresh-interval-minutes,omitempty" json:"refresh-interval-minutes,omitempty"`

	// APIBaseURL overrides the upstream API host. Used by tests and
	// GitHub Enterprise deployments.
	APIBaseURL string `yaml:"api-base-url,omitempty" json:"api-base-url,omitempty"`

	// Port is the serve-mode listen port.
	Port int `yaml:"port,omitempty" json:"port,omitempty"`

	// AuthDir holds the long-lived token file. Defaults to the config
	// file's directory.
	AuthDir string `yaml:"auth-dir,omitempty" json:"auth-dir,omitempty"`

	// LoggingToFile, when set, mirrors logs into a rotated file.
	LoggingToFile string `yaml:"logging-to-file,omitempty" json:"logging-to-file,omitempty"`
}

// NewDefaultConfig returns a config with all defaults applied.
func NewDefaultConfig() *Config {
	cfg := &Config{}
	cfg.Sanitize()
	return cfg
}

// RefreshInterval returns the sanitized periodic refresh cadence.
func (c *Config) RefreshInterval() time.Duration {
	return time.Duration(c.RefreshIntervalMinutes) * time.Minute
}

// Sanitize normalizes fields and fills defaults in place.
func (c *Config) Sanitize() {
	c.PlanMode = PlanMode(strings.TrimSpace(strings.ToLower(string(c.PlanMode))))
	switch c.PlanMode {
	case PlanModeAuto, PlanModeIndividual, PlanModeBusiness:
	default:
		c.PlanMode = PlanModeAuto
	}

	if c.MonthlyLimit <= 0 {
		c.MonthlyLimit = DefaultMonthlyLimit
	}
	if c.RefreshIntervalMinutes <= 0 {
		c.RefreshIntervalMinutes = DefaultRefreshIntervalMinutes
	}
	if c.RefreshIntervalMinutes < MinRefreshIntervalMinutes {
		c.RefreshIntervalMinutes = MinRefreshIntervalMinutes
	}
	if c.Port == 0 {
		c.Port = 8412
	}

	c.OrgName = strings.TrimSpace(c.OrgName)
	c.APIBaseURL = strings.TrimRight(strings.TrimSpace(c.APIBaseURL), "/")
	if c.APIBaseURL == "" {
		c.APIBaseURL = "https://api.github.com"
	}
}
