// Package bootstrap initializes configuration and wires the resolution
// engine for quotapace commands.
package bootstrap

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/joho/godotenv"

	"github.com/quotapace/quotapace/internal/config"
	"github.com/quotapace/quotapace/internal/githubauth"
	log "github.com/quotapace/quotapace/internal/logging"
	"github.com/quotapace/quotapace/internal/resolve"
	"github.com/quotapace/quotapace/internal/source"
	"github.com/quotapace/quotapace/internal/transport"
)

// Result carries what every command needs after bootstrap.
type Result struct {
	Config         *config.Holder
	ConfigFilePath string
}

// Bootstrap loads .env, resolves the config path and loads + sanitizes the
// config. Call before anything that needs configuration.
func Bootstrap(configPath string) (*Result, error) {
	wd, err := os.Getwd()
	if err != nil {
		return nil, fmt.Errorf("get working directory: %w", err)
	}

	if errLoad := godotenv.Load(filepath.Join(wd, ".env")); errLoad != nil {
		if !errors.Is(errLoad, os.ErrNotExist) {
			log.WithError(errLoad).Warn("failed to load .env file")
		}
	}

	if configPath == "" {
		configPath = DefaultConfigPath()
	}

	cfg, err := config.LoadConfigOptional(configPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if cfg.AuthDir == "" {
		cfg.AuthDir = filepath.Dir(configPath)
	}
	config.ApplyEnvOverrides(cfg)

	return &Result{Config: config.NewHolder(cfg), ConfigFilePath: configPath}, nil
}

// DefaultConfigPath prefers the XDG config dir, falling back to HOME.
func DefaultConfigPath() string {
	base := os.Getenv("XDG_CONFIG_HOME")
	if base == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "config.yaml"
		}
		base = filepath.Join(home, ".config")
	}
	return filepath.Join(base, "quotapace", "config.yaml")
}

// Engine bundles the wired resolution stack.
type Engine struct {
	Tokens       *githubauth.FileTokenStore
	Session      *githubauth.SessionManager
	Identity     *githubauth.Identity
	Orchestrator *resolve.Orchestrator
}

// BuildEngine wires transport, credentials, drivers and the orchestrator
// around the config holder.
func BuildEngine(holder *config.Holder) *Engine {
	cfg := holder.Get()
	client := transport.NewClient()

	tokens := githubauth.NewFileTokenStore(cfg.AuthDir)
	session := githubauth.NewSessionManager(cfg.APIBaseURL, client, tokens)
	identity := githubauth.NewIdentity(cfg.APIBaseURL, client, tokens)

	deps := source.Deps{
		BaseURL:  cfg.APIBaseURL,
		Client:   client,
		Session:  session,
		Tokens:   tokens,
		Identity: identity,
	}

	orch := resolve.New(
		holder.Get,
		identity,
		source.NewPrimaryInternal(deps),
		source.NewSecondaryInternal(deps),
		source.NewPersonalBilling(deps),
		source.NewOrgBilling(deps, func() string { return holder.Get().OrgName }),
	)

	return &Engine{Tokens: tokens, Session: session, Identity: identity, Orchestrator: orch}
}
