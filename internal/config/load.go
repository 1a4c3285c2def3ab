package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/tailscale/hujson"
	"gopkg.in/yaml.v3"

	"github.com/quotapace/quotapace/internal/json"
)

// LoadConfig reads and sanitizes the config file at path. YAML is the
// primary format; .json/.hujson files are accepted as HuJSON (JSON with
// comments and trailing commas).
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}

	cfg := &Config{}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json", ".hujson":
		std, errStd := hujson.Standardize(data)
		if errStd != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, errStd)
		}
		if errUnmarshal := json.Unmarshal(std, cfg); errUnmarshal != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, errUnmarshal)
		}
	default:
		if errUnmarshal := yaml.Unmarshal(data, cfg); errUnmarshal != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, errUnmarshal)
		}
	}

	if cfg.AuthDir == "" {
		cfg.AuthDir = filepath.Dir(path)
	}
	cfg.Sanitize()
	return cfg, nil
}

// LoadConfigOptional behaves like LoadConfig but returns defaults when the
// file does not exist.
func LoadConfigOptional(path string) (*Config, error) {
	cfg, err := LoadConfig(path)
	if err != nil {
		if os.IsNotExist(unwrapPathError(err)) {
			return NewDefaultConfig(), nil
		}
		return nil, err
	}
	return cfg, nil
}

func unwrapPathError(err error) error {
	for {
		unwrapper, ok := err.(interface{ Unwrap() error })
		if !ok {
			return err
		}
		inner := unwrapper.Unwrap()
		if inner == nil {
			return err
		}
		err = inner
	}
}

// ApplyEnvOverrides lets environment variables win over file values.
func ApplyEnvOverrides(cfg *Config) {
	if v := os.Getenv("QUOTAPACE_PLAN_MODE"); v != "" {
		cfg.PlanMode = PlanMode(v)
	}
	if v := os.Getenv("QUOTAPACE_MONTHLY_LIMIT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.MonthlyLimit = n
		}
	}
	if v := os.Getenv("QUOTAPACE_ORG"); v != "" {
		cfg.OrgName = v
	}
	if v := os.Getenv("QUOTAPACE_REFRESH_MINUTES"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.RefreshIntervalMinutes = n
		}
	}
	if v := os.Getenv("QUOTAPACE_API_BASE_URL"); v != "" {
		cfg.APIBaseURL = v
	}
	if v := os.Getenv("QUOTAPACE_PORT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Port = n
		}
	}
	cfg.Sanitize()
}
