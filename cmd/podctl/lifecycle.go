package main

import (
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
)

func newStatusCmd(root *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show pod state and SSH reachability",
		RunE: func(cmd *cobra.Command, _ []string) error {
			s := root.settings
			desc, err := root.control().Describe(cmd.Context(), s.PodID)
			if err != nil {
				return err
			}
			reachable := root.ssh().Probe(10 * time.Second)

			w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintf(w, "POD\t%s\n", s.PodID)
			switch {
			case desc == nil:
				fmt.Fprintf(w, "STATE\tnot found\n")
			case desc.Running():
				fmt.Fprintf(w, "STATE\trunning\n")
			default:
				fmt.Fprintf(w, "STATE\tstopped\n")
			}
			fmt.Fprintf(w, "SSH\t%s:%d\n", s.SSHHost, s.SSHPort)
			fmt.Fprintf(w, "REACHABLE\t%t\n", reachable)
			return w.Flush()
		},
	}
}

func newStartCmd(root *rootOptions) *cobra.Command {
	var wait bool
	cmd := &cobra.Command{
		Use:   "start",
		Short: "Start the pod via the control plane",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if wait {
				status, err := root.controller().EnsureReady(cmd.Context(), true, root.settings.Timeout)
				if err != nil {
					return err
				}
				fmt.Printf("pod %s ready at %s:%d\n", status.ID, status.SSHHost, status.SSHPort)
				return nil
			}
			if err := root.control().Start(cmd.Context(), root.settings.PodID); err != nil {
				return err
			}
			fmt.Printf("start requested for pod %s\n", root.settings.PodID)
			return nil
		},
	}
	cmd.Flags().BoolVar(&wait, "wait", false, "wait until the pod is SSH-reachable")
	return cmd
}

func newStopCmd(root *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "stop",
		Short: "Stop the pod via the control plane",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := root.control().Stop(cmd.Context(), root.settings.PodID); err != nil {
				return err
			}
			fmt.Printf("stop requested for pod %s\n", root.settings.PodID)
			return nil
		},
	}
}
