package main

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/forgeline/podctl/internal/pipeline"
)

func (r *rootOptions) orchestrator() *pipeline.Orchestrator {
	return &pipeline.Orchestrator{
		Lifecycle:     r.controller(),
		Transfer:      r.transfer(),
		Workspace:     r.workspace(),
		Runner:        r.ssh(),
		WorkspaceRoot: r.settings.WorkspaceRoot,
		Logger:        r.logger,
	}
}

// execFlags are the output-handling flags shared by exec and run.
type execFlags struct {
	fetch        bool
	remoteOutput string
	localOutput  string
	purge        bool
	prune        bool
	keep         int
	jobTimeout   time.Duration

	flags *pflag.FlagSet
}

func (f *execFlags) register(cmd *cobra.Command, root *rootOptions) {
	f.flags = cmd.Flags()
	cmd.Flags().BoolVar(&f.fetch, "fetch-outputs", false, "download remote outputs into a local batch directory after the command")
	cmd.Flags().StringVar(&f.remoteOutput, "remote-output", "", "remote output directory (default <workspace>/data/outputs)")
	cmd.Flags().StringVar(&f.localOutput, "local-output", "", "local batch base directory (default from config)")
	cmd.Flags().BoolVar(&f.purge, "purge", false, "clear the remote output directory before the command")
	cmd.Flags().BoolVar(&f.prune, "prune", false, "prune old local batch directories after fetching")
	cmd.Flags().IntVar(&f.keep, "keep", 0, "batches to keep when pruning (default from config)")
	cmd.Flags().DurationVar(&f.jobTimeout, "job-timeout", 0, "remote command timeout (default 30m)")
}

func (f *execFlags) options(root *rootOptions, jobCommand string) pipeline.Options {
	s := root.settings
	// --keep 0 means "remove every batch"; only an untouched flag falls back
	// to the configured default.
	keep := f.keep
	if f.flags == nil || !f.flags.Changed("keep") {
		keep = s.KeepBatches
	}
	local := f.localOutput
	if local == "" {
		local = s.LocalOutputBase
	}
	return pipeline.Options{
		AutoStart:       root.autoStart,
		ReadyTimeout:    s.Timeout,
		PurgeOutputs:    f.purge,
		RemoteOutputDir: f.remoteOutput,
		JobCommand:      jobCommand,
		JobTimeout:      f.jobTimeout,
		FetchOutputs:    f.fetch,
		LocalOutputBase: local,
		PruneLocal:      f.prune,
		KeepBatches:     keep,
	}
}

func newRunCmd(root *rootOptions) *cobra.Command {
	exec := &execFlags{}
	var (
		setup       bool
		installDeps bool
		upload      bool
		projectPath string
		skipService bool
		serviceURL  string
		serviceBoot string
	)
	cmd := &cobra.Command{
		Use:   "run <command...>",
		Short: "Run the full pipeline: ready, prepare, upload, execute, fetch, prune",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts := exec.options(root, strings.Join(args, " "))
			opts.Setup = setup
			opts.InstallDeps = installDeps
			opts.UploadProject = upload
			opts.ProjectPath = projectPath
			opts.EnsureService = !skipService
			opts.ServiceURL = serviceURL
			opts.ServiceBoot = serviceBoot

			report, err := root.orchestrator().Run(cmd.Context(), opts)
			if report != nil {
				fmt.Fprint(os.Stdout, report.Job.Stdout)
				fmt.Fprint(os.Stderr, report.Job.Stderr)
			}
			if err != nil {
				return err
			}
			fmt.Printf("run %s completed\n", report.RunID)
			if report.BatchDir != "" {
				fmt.Printf("outputs saved to %s\n", report.BatchDir)
			}
			if report.Pruned > 0 {
				fmt.Printf("pruned %d old batch directories\n", report.Pruned)
			}
			if report.FetchErr != nil {
				fmt.Fprintf(os.Stderr, "warning: fetching outputs failed: %v\n", report.FetchErr)
			}
			return nil
		},
	}
	exec.register(cmd, root)
	// run fetches by default; exec opts in.
	cmd.Flags().Lookup("fetch-outputs").DefValue = "true"
	exec.fetch = true
	cmd.Flags().BoolVar(&setup, "setup", false, "create the workspace directory layout first")
	cmd.Flags().BoolVar(&installDeps, "install-deps", false, "install remote dependencies first")
	cmd.Flags().BoolVar(&upload, "upload", false, "upload the local project before executing")
	cmd.Flags().StringVar(&projectPath, "project", ".", "local project path to upload")
	cmd.Flags().BoolVar(&skipService, "skip-service-check", false, "do not probe or boot the image service")
	cmd.Flags().StringVar(&serviceURL, "service-url", "", "image service base URL (default http://127.0.0.1:7860)")
	cmd.Flags().StringVar(&serviceBoot, "service-boot", "", "override command used to boot the image service")
	return cmd
}
