package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

func newConfigCmd(root *rootOptions) *cobra.Command {
	configCmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect the effective configuration",
	}

	viewCmd := &cobra.Command{
		Use:   "view",
		Short: "Print the resolved settings (API key redacted)",
		RunE: func(cmd *cobra.Command, _ []string) error {
			s := root.settings
			key := "(not set)"
			if s.APIKey != "" {
				key = "(set)"
			}
			w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintf(w, "CONFIG\t%s\n", s.ConfigPath)
			fmt.Fprintf(w, "CONTEXT\t%s\n", s.ContextName)
			fmt.Fprintf(w, "POD\t%s\n", s.PodID)
			fmt.Fprintf(w, "API KEY\t%s\n", key)
			fmt.Fprintf(w, "SSH\t%s@%s:%d\n", s.SSHUser, s.SSHHost, s.SSHPort)
			fmt.Fprintf(w, "SSH KEY\t%s\n", s.SSHKeyPath)
			fmt.Fprintf(w, "WORKSPACE\t%s\n", s.WorkspaceRoot)
			fmt.Fprintf(w, "LOCAL OUTPUT\t%s\n", s.LocalOutputBase)
			fmt.Fprintf(w, "KEEP BATCHES\t%d\n", s.KeepBatches)
			fmt.Fprintf(w, "TIMEOUT\t%s\n", s.Timeout)
			return w.Flush()
		},
	}

	configCmd.AddCommand(viewCmd)
	return configCmd
}
