package main

import (
	"fmt"
	"os"
	"path"
	"time"

	"github.com/spf13/cobra"

	"github.com/forgeline/podctl/internal/retention"
)

func newUploadCmd(root *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "upload [path]",
		Short: "Upload a local project directory into the remote workspace",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			localPath := "."
			if len(args) == 1 {
				localPath = args[0]
			}
			if _, err := root.controller().EnsureReady(cmd.Context(), root.autoStart, root.settings.Timeout); err != nil {
				return err
			}
			if err := root.transfer().PushProject(cmd.Context(), localPath); err != nil {
				return err
			}
			fmt.Printf("uploaded %s to %s\n", localPath, root.settings.WorkspaceRoot)
			return nil
		},
	}
	return cmd
}

func newDownloadCmd(root *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "download <remote-file> <local-file>",
		Short: "Download a single file from the pod",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := root.controller().EnsureReady(cmd.Context(), root.autoStart, root.settings.Timeout); err != nil {
				return err
			}
			out, err := os.Create(args[1])
			if err != nil {
				return err
			}
			defer out.Close()
			if err := root.ssh().ReadFile(cmd.Context(), args[0], out, 15*time.Minute); err != nil {
				return err
			}
			fmt.Printf("downloaded %s to %s\n", args[0], args[1])
			return nil
		},
	}
}

func newFetchCmd(root *rootOptions) *cobra.Command {
	var (
		localBase string
		prefix    string
	)
	cmd := &cobra.Command{
		Use:   "fetch [remote-dir]",
		Short: "Archive a remote directory and unpack it into a local batch directory",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s := root.settings
			remoteDir := path.Join(s.WorkspaceRoot, "data", "outputs")
			if len(args) == 1 {
				remoteDir = args[0]
			}
			if localBase == "" {
				localBase = s.LocalOutputBase
			}
			if _, err := root.controller().EnsureReady(cmd.Context(), root.autoStart, s.Timeout); err != nil {
				return err
			}
			batch, err := root.transfer().FetchArtifacts(cmd.Context(), remoteDir, localBase, prefix)
			if err != nil {
				return err
			}
			fmt.Printf("outputs saved to %s\n", batch)
			return nil
		},
	}
	cmd.Flags().StringVar(&localBase, "local-output", "", "local batch base directory (default from config)")
	cmd.Flags().StringVar(&prefix, "prefix", "outputs", "remote archive name prefix")
	return cmd
}

func newPurgeCmd(root *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "purge [remote-dir]",
		Short: "Clear the contents of a directory under the remote workspace",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dir := path.Join(root.settings.WorkspaceRoot, "data", "outputs")
			if len(args) == 1 {
				dir = args[0]
			}
			if _, err := root.controller().EnsureReady(cmd.Context(), root.autoStart, root.settings.Timeout); err != nil {
				return err
			}
			if err := root.transfer().ClearRemoteDir(cmd.Context(), dir); err != nil {
				return err
			}
			fmt.Printf("cleared %s\n", dir)
			return nil
		},
	}
}

func newPruneCmd(root *rootOptions) *cobra.Command {
	var keep int
	cmd := &cobra.Command{
		Use:   "prune",
		Short: "Remove old local batch directories, keeping the newest N",
		RunE: func(cmd *cobra.Command, _ []string) error {
			k := keep
			if !cmd.Flags().Changed("keep") {
				k = root.settings.KeepBatches
			}
			removed, err := retention.Prune(root.settings.LocalOutputBase, k, root.logger)
			if err != nil {
				return err
			}
			fmt.Printf("removed %d batch directories\n", removed)
			return nil
		},
	}
	cmd.Flags().IntVar(&keep, "keep", 5, "number of newest batch directories to keep")
	return cmd
}
