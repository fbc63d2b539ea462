package main

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
)

func newConnectCmd(root *rootOptions) *cobra.Command {
	var command string
	cmd := &cobra.Command{
		Use:   "connect",
		Short: "Open an interactive shell on the pod (or run one command)",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if _, err := root.controller().EnsureReady(cmd.Context(), root.autoStart, root.settings.Timeout); err != nil {
				return err
			}
			if command != "" {
				res := root.ssh().Run(cmd.Context(), command, 10*time.Minute)
				fmt.Fprint(os.Stdout, res.Stdout)
				fmt.Fprint(os.Stderr, res.Stderr)
				if !res.Success {
					return fmt.Errorf("command exited with status %d", res.ExitCode)
				}
				return nil
			}
			return root.ssh().Shell(cmd.Context(), 30*time.Second)
		},
	}
	cmd.Flags().StringVar(&command, "cmd", "", "run a single command instead of an interactive shell")
	return cmd
}

func newExecCmd(root *rootOptions) *cobra.Command {
	opts := &execFlags{}
	cmd := &cobra.Command{
		Use:   "exec <command...>",
		Short: "Run a command on the pod, optionally fetching generated outputs",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			report, err := root.orchestrator().Run(cmd.Context(), opts.options(root, strings.Join(args, " ")))
			if report != nil {
				fmt.Fprint(os.Stdout, report.Job.Stdout)
				fmt.Fprint(os.Stderr, report.Job.Stderr)
			}
			if err != nil {
				return err
			}
			if report.BatchDir != "" {
				fmt.Printf("outputs saved to %s\n", report.BatchDir)
			}
			if report.FetchErr != nil {
				fmt.Fprintf(os.Stderr, "warning: fetching outputs failed: %v\n", report.FetchErr)
			}
			return nil
		},
	}
	opts.register(cmd, root)
	return cmd
}
