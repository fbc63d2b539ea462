// Command podctl manages a single remote GPU pod: lifecycle, shell access,
// artifact exchange and the end-to-end generation pipeline.
package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/forgeline/podctl/internal/config"
	"github.com/forgeline/podctl/internal/controlplane"
	"github.com/forgeline/podctl/internal/lifecycle"
	"github.com/forgeline/podctl/internal/sshx"
	"github.com/forgeline/podctl/internal/transfer"
	"github.com/forgeline/podctl/internal/workspace"
)

type rootOptions struct {
	configPath  string
	contextName string
	podID       string
	sshHost     string
	sshPort     int
	autoStart   bool
	timeout     time.Duration

	settings *config.Settings
	logger   *slog.Logger
}

func (r *rootOptions) prepare() error {
	s, err := config.ResolveSettings(r.configPath, r.contextName, config.Overrides{
		PodID:   r.podID,
		SSHHost: r.sshHost,
		SSHPort: r.sshPort,
		Timeout: r.timeout,
	})
	if err != nil {
		return err
	}
	r.settings = s
	return nil
}

func (r *rootOptions) ssh() *sshx.Client {
	s := r.settings
	return sshx.NewClient(sshx.Target{
		Host:    s.SSHHost,
		Port:    s.SSHPort,
		User:    s.SSHUser,
		KeyPath: s.SSHKeyPath,
	}, r.logger)
}

func (r *rootOptions) control() *controlplane.Client {
	return controlplane.NewClient(r.settings.APIEndpoint, r.settings.APIKey, 30*time.Second, r.logger)
}

func (r *rootOptions) controller() *lifecycle.Controller {
	s := r.settings
	return &lifecycle.Controller{
		WorkerID:     s.PodID,
		Probe:        r.ssh(),
		ControlPlane: r.control(),
		SSHHost:      s.SSHHost,
		SSHPort:      s.SSHPort,
		Logger:       r.logger,
	}
}

func (r *rootOptions) transfer() *transfer.Pipeline {
	return &transfer.Pipeline{
		Shell:         r.ssh(),
		WorkspaceRoot: r.settings.WorkspaceRoot,
		Logger:        r.logger,
	}
}

func (r *rootOptions) workspace() *workspace.Ops {
	return &workspace.Ops{
		Runner: r.ssh(),
		Root:   r.settings.WorkspaceRoot,
		Logger: r.logger,
	}
}

func main() {
	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))
	slog.SetDefault(logger)

	opts := &rootOptions{logger: logger}
	rootCmd := &cobra.Command{
		Use:           "podctl",
		Short:         "Manage a remote GPU pod: lifecycle, shell, artifacts, pipeline",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	defaultConfig := os.Getenv("PODCTL_CONFIG")
	if defaultConfig == "" {
		defaultConfig = config.DefaultConfigPath()
	}
	rootCmd.PersistentFlags().StringVar(&opts.configPath, "config", defaultConfig, "path to podctl config file (default $HOME/.podctl/config)")
	rootCmd.PersistentFlags().StringVar(&opts.contextName, "context", "", "context name within the config (overrides currentContext)")
	rootCmd.PersistentFlags().StringVar(&opts.podID, "pod", "", "pod identifier (overrides config)")
	rootCmd.PersistentFlags().StringVar(&opts.sshHost, "ssh-host", "", "pod SSH host (overrides config)")
	rootCmd.PersistentFlags().IntVar(&opts.sshPort, "ssh-port", 0, "pod SSH port (overrides config)")
	rootCmd.PersistentFlags().BoolVar(&opts.autoStart, "auto-start", false, "start the pod via the control plane when unreachable")
	rootCmd.PersistentFlags().DurationVar(&opts.timeout, "timeout", 0, "readiness budget; defaults to config or 5m")
	rootCmd.PersistentPreRunE = func(cmd *cobra.Command, _ []string) error {
		return opts.prepare()
	}

	rootCmd.AddCommand(newStatusCmd(opts))
	rootCmd.AddCommand(newStartCmd(opts))
	rootCmd.AddCommand(newStopCmd(opts))
	rootCmd.AddCommand(newConnectCmd(opts))
	rootCmd.AddCommand(newExecCmd(opts))
	rootCmd.AddCommand(newUploadCmd(opts))
	rootCmd.AddCommand(newDownloadCmd(opts))
	rootCmd.AddCommand(newFetchCmd(opts))
	rootCmd.AddCommand(newPurgeCmd(opts))
	rootCmd.AddCommand(newPruneCmd(opts))
	rootCmd.AddCommand(newSetupCmd(opts))
	rootCmd.AddCommand(newInfoCmd(opts))
	rootCmd.AddCommand(newLogsCmd(opts))
	rootCmd.AddCommand(newMonitorCmd(opts))
	rootCmd.AddCommand(newBackupCmd(opts))
	rootCmd.AddCommand(newRunCmd(opts))
	rootCmd.AddCommand(newConfigCmd(opts))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		logger.Error("command failed", "err", err)
		os.Exit(1)
	}
}
