package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Settings is the effective configuration after merging all sources.
// Empty APIEndpoint means the control-plane client's default.
type Settings struct {
	PodID           string
	APIEndpoint     string
	APIKey          string
	SSHHost         string
	SSHPort         int
	SSHUser         string
	SSHKeyPath      string
	WorkspaceRoot   string
	LocalOutputBase string
	KeepBatches     int
	Timeout         time.Duration

	ConfigPath  string
	ContextName string
}

// Overrides carries flag values. Zero values mean "not set".
type Overrides struct {
	PodID   string
	SSHHost string
	SSHPort int
	Timeout time.Duration
}

// ResolveSettings merges sources in precedence order:
// 1) flags, 2) config file context, 3) environment (PODCTL_*, with a RUNPOD_API_KEY
// fallback for the key), 4) defaults. A .env file in the working directory is
// folded into the environment first, without overriding variables already set.
func ResolveSettings(configPath, contextName string, flags Overrides) (*Settings, error) {
	// Best effort: a missing .env is the common case, not an error.
	_ = godotenv.Load(".env")

	s := &Settings{
		PodID:       flags.PodID,
		SSHHost:     flags.SSHHost,
		SSHPort:     flags.SSHPort,
		Timeout:     flags.Timeout,
		ConfigPath:  configPath,
		ContextName: contextName,
		KeepBatches: -1,
	}

	cfg, err := Load(configPath)
	if err != nil {
		return nil, err
	}
	ctx, name, err := cfg.Resolve(contextName)
	if err != nil {
		return nil, err
	}
	s.ContextName = name

	if ctx != nil {
		if s.PodID == "" {
			s.PodID = ctx.PodID
		}
		if s.SSHHost == "" {
			s.SSHHost = ctx.SSHHost
		}
		if s.SSHPort == 0 {
			s.SSHPort = ctx.SSHPort
		}
		s.APIEndpoint = ctx.APIEndpoint
		s.SSHUser = ctx.SSHUser
		s.SSHKeyPath = ctx.SSHKeyPath
		s.WorkspaceRoot = ctx.WorkspaceRoot
		s.LocalOutputBase = ctx.LocalOutputBase
		if ctx.KeepBatches != nil {
			s.KeepBatches = *ctx.KeepBatches
		}
		if s.Timeout == 0 && ctx.TimeoutSeconds > 0 {
			s.Timeout = time.Duration(ctx.TimeoutSeconds) * time.Second
		}
	}

	if s.PodID == "" {
		s.PodID = os.Getenv("PODCTL_POD_ID")
	}
	if s.APIEndpoint == "" {
		s.APIEndpoint = os.Getenv("PODCTL_API_ENDPOINT")
	}
	s.APIKey = os.Getenv("PODCTL_API_KEY")
	if s.APIKey == "" {
		s.APIKey = os.Getenv("RUNPOD_API_KEY")
	}
	if s.SSHHost == "" {
		s.SSHHost = os.Getenv("PODCTL_SSH_HOST")
	}
	if s.SSHPort == 0 {
		if v := os.Getenv("PODCTL_SSH_PORT"); v != "" {
			port, err := strconv.Atoi(v)
			if err != nil {
				return nil, fmt.Errorf("PODCTL_SSH_PORT: %w", err)
			}
			s.SSHPort = port
		}
	}
	if s.SSHUser == "" {
		s.SSHUser = os.Getenv("PODCTL_SSH_USER")
	}
	if s.SSHKeyPath == "" {
		s.SSHKeyPath = os.Getenv("PODCTL_SSH_KEY")
	}
	if s.WorkspaceRoot == "" {
		s.WorkspaceRoot = os.Getenv("PODCTL_WORKSPACE")
	}

	if s.SSHPort == 0 {
		s.SSHPort = 22
	}
	if s.SSHUser == "" {
		s.SSHUser = "root"
	}
	if s.SSHKeyPath == "" {
		if home, err := os.UserHomeDir(); err == nil {
			s.SSHKeyPath = home + "/.ssh/id_ed25519"
		}
	}
	if s.WorkspaceRoot == "" {
		s.WorkspaceRoot = "/workspace"
	}
	if s.LocalOutputBase == "" {
		s.LocalOutputBase = "data/output_images"
	}
	if s.Timeout == 0 {
		s.Timeout = 5 * time.Minute
	}

	return s, nil
}
