package main

import (
	"fmt"
	"os"
	"path"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
)

func newSetupCmd(root *rootOptions) *cobra.Command {
	var (
		installDeps bool
		upload      bool
	)
	cmd := &cobra.Command{
		Use:   "setup",
		Short: "Create the workspace directory layout on the pod",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if _, err := root.controller().EnsureReady(cmd.Context(), root.autoStart, root.settings.Timeout); err != nil {
				return err
			}
			ops := root.workspace()
			if err := ops.Setup(cmd.Context()); err != nil {
				return err
			}
			if installDeps {
				if err := ops.InstallDeps(cmd.Context()); err != nil {
					return err
				}
			}
			if upload {
				if err := root.transfer().PushProject(cmd.Context(), "."); err != nil {
					return err
				}
			}
			fmt.Println("workspace ready")
			return nil
		},
	}
	cmd.Flags().BoolVar(&installDeps, "install-deps", false, "install remote dependencies after creating directories")
	cmd.Flags().BoolVar(&upload, "upload", false, "upload the current project after setup")
	return cmd
}

func newInfoCmd(root *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "info",
		Short: "Show GPU, memory, disk and python details from the pod",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if _, err := root.controller().EnsureReady(cmd.Context(), root.autoStart, root.settings.Timeout); err != nil {
				return err
			}
			info := root.workspace().SystemInfo(cmd.Context())
			w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintf(w, "GPU\t%s\n", info.GPU)
			fmt.Fprintf(w, "MEMORY\t%s\n", info.Memory)
			fmt.Fprintf(w, "DISK\t%s\n", info.Disk)
			fmt.Fprintf(w, "PYTHON\t%s\n", info.Python)
			return w.Flush()
		},
	}
}

func newLogsCmd(root *rootOptions) *cobra.Command {
	var (
		dir   string
		lines int
	)
	cmd := &cobra.Command{
		Use:   "logs",
		Short: "Show recent log lines from the pod workspace",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if _, err := root.controller().EnsureReady(cmd.Context(), root.autoStart, root.settings.Timeout); err != nil {
				return err
			}
			logDir := dir
			if logDir == "" {
				logDir = path.Join(root.settings.WorkspaceRoot, "logs")
			}
			out, err := root.workspace().TailLogs(cmd.Context(), logDir, lines)
			if err != nil {
				return err
			}
			fmt.Print(out)
			return nil
		},
	}
	cmd.Flags().StringVar(&dir, "dir", "", "remote log directory (default <workspace>/logs)")
	cmd.Flags().IntVar(&lines, "lines", 50, "lines per log file")
	return cmd
}

func newMonitorCmd(root *rootOptions) *cobra.Command {
	var wait time.Duration
	cmd := &cobra.Command{
		Use:   "monitor <process>",
		Short: "Wait for a remote process to exit",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := root.controller().EnsureReady(cmd.Context(), root.autoStart, root.settings.Timeout); err != nil {
				return err
			}
			if err := root.workspace().MonitorProcess(cmd.Context(), args[0], wait); err != nil {
				return err
			}
			fmt.Printf("process %s finished\n", args[0])
			return nil
		},
	}
	cmd.Flags().DurationVar(&wait, "wait", 30*time.Minute, "how long to wait for the process to exit")
	return cmd
}

func newBackupCmd(root *rootOptions) *cobra.Command {
	backupCmd := &cobra.Command{
		Use:   "backup",
		Short: "Create or restore workspace backups on the pod",
	}

	var name string
	createCmd := &cobra.Command{
		Use:   "create [remote-dir]",
		Short: "Archive a workspace directory into the workspace root",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			src := "data"
			if len(args) == 1 {
				src = args[0]
			}
			if _, err := root.controller().EnsureReady(cmd.Context(), root.autoStart, root.settings.Timeout); err != nil {
				return err
			}
			archive, err := root.workspace().Backup(cmd.Context(), src, name)
			if err != nil {
				return err
			}
			fmt.Printf("backup created at %s\n", archive)
			return nil
		},
	}
	createCmd.Flags().StringVar(&name, "name", "", "archive file name (default backup_<timestamp>.tar.gz)")

	var target string
	restoreCmd := &cobra.Command{
		Use:   "restore <archive>",
		Short: "Extract a backup archive on the pod",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := root.controller().EnsureReady(cmd.Context(), root.autoStart, root.settings.Timeout); err != nil {
				return err
			}
			if err := root.workspace().Restore(cmd.Context(), args[0], target); err != nil {
				return err
			}
			fmt.Printf("restored %s\n", args[0])
			return nil
		},
	}
	restoreCmd.Flags().StringVar(&target, "target", "", "extraction directory (default workspace root)")

	backupCmd.AddCommand(createCmd)
	backupCmd.AddCommand(restoreCmd)
	return backupCmd
}
