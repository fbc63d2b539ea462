// Package workspace performs maintenance operations on the pod's managed
// directory tree: layout setup, dependency installation, diagnostics, backup
// and restore, process monitoring. All of it is thin composition over the
// command channel.
package workspace

import (
	"context"
	"fmt"
	"log/slog"
	"path"
	"strings"
	"time"

	"github.com/forgeline/podctl/internal/sshx"
)

// Runner executes one remote command. Implemented by sshx.Client.
type Runner interface {
	Run(ctx context.Context, command string, timeout time.Duration) sshx.Result
}

// Ops operates on the remote workspace rooted at Root (default /workspace).
type Ops struct {
	Runner         Runner
	Root           string
	CommandTimeout time.Duration // default 5m
	InstallTimeout time.Duration // per install command, default 10m
	Logger         *slog.Logger

	// Overridable for tests.
	Now   func() time.Time
	Sleep func(time.Duration)
}

func (o *Ops) logger() *slog.Logger {
	if o.Logger == nil {
		return slog.Default()
	}
	return o.Logger
}

func (o *Ops) root() string {
	if strings.TrimSpace(o.Root) == "" {
		return "/workspace"
	}
	return path.Clean(o.Root)
}

func (o *Ops) cmdTimeout() time.Duration {
	if o.CommandTimeout <= 0 {
		return 5 * time.Minute
	}
	return o.CommandTimeout
}

func (o *Ops) installTimeout() time.Duration {
	if o.InstallTimeout <= 0 {
		return 10 * time.Minute
	}
	return o.InstallTimeout
}

func (o *Ops) now() time.Time {
	if o.Now != nil {
		return o.Now()
	}
	return time.Now()
}

func (o *Ops) sleep(d time.Duration) {
	if o.Sleep != nil {
		o.Sleep(d)
		return
	}
	time.Sleep(d)
}

// Setup creates the managed directory layout. Idempotent.
func (o *Ops) Setup(ctx context.Context) error {
	root := o.root()
	dirs := []string{
		root,
		path.Join(root, "data"),
		path.Join(root, "data", "input"),
		path.Join(root, "data", "outputs"),
		path.Join(root, "scripts"),
		path.Join(root, "logs"),
	}
	quoted := make([]string, len(dirs))
	for i, d := range dirs {
		quoted[i] = sshx.Quote(d)
	}
	res := o.Runner.Run(ctx, "mkdir -p "+strings.Join(quoted, " "), o.cmdTimeout())
	if !res.Success {
		return fmt.Errorf("workspace setup: %s", res.Stderr)
	}
	o.logger().Info("workspace layout ready", "root", root)
	return nil
}

// InstallDeps installs the image-generation toolchain on the pod. Each step
// runs with the long install timeout; the first failure aborts.
func (o *Ops) InstallDeps(ctx context.Context) error {
	root := o.root()
	webui := path.Join(root, "stable-diffusion-webui")
	commands := []string{
		"apt-get update",
		"apt-get install -y git python3-pip python3-venv wget curl",
		"cd " + sshx.Quote(root) + " && git clone https://github.com/AUTOMATIC1111/stable-diffusion-webui.git || true",
		"python3 -m pip install --upgrade pip",
		"cd " + sshx.Quote(webui) + " && pip install -r requirements.txt",
		"cd " + sshx.Quote(webui) + " && git clone https://github.com/Bing-su/adetailer.git extensions/adetailer || true",
		"cd " + sshx.Quote(webui) + " && git clone https://github.com/Mikubill/sd-webui-controlnet extensions/sd-webui-controlnet || true",
	}
	for _, cmd := range commands {
		o.logger().Info("installing", "cmd", cmd)
		res := o.Runner.Run(ctx, cmd, o.installTimeout())
		if !res.Success {
			return fmt.Errorf("install step %q: %s", cmd, res.Stderr)
		}
	}
	o.logger().Info("dependencies installed")
	return nil
}

// Info is a point-in-time snapshot of the pod's resources.
type Info struct {
	GPU    string
	Memory string
	Disk   string
	Python string
}

const notAvailable = "not available"

// SystemInfo gathers GPU, memory, disk and interpreter details. Individual
// probe failures degrade to "not available" rather than failing the call.
func (o *Ops) SystemInfo(ctx context.Context) Info {
	info := Info{GPU: notAvailable, Memory: notAvailable, Disk: notAvailable, Python: notAvailable}

	res := o.Runner.Run(ctx, "nvidia-smi --query-gpu=name,memory.total,memory.used --format=csv,noheader,nounits", o.cmdTimeout())
	if res.Success && strings.TrimSpace(res.Stdout) != "" {
		if parts := strings.Split(strings.TrimSpace(res.Stdout), ", "); len(parts) >= 3 {
			info.GPU = fmt.Sprintf("%s (%sMB total, %sMB used)", parts[0], parts[1], parts[2])
		}
	}

	res = o.Runner.Run(ctx, "free -h | grep Mem", o.cmdTimeout())
	if res.Success {
		if parts := strings.Fields(res.Stdout); len(parts) >= 4 {
			info.Memory = fmt.Sprintf("%s total, %s used, %s free", parts[1], parts[2], parts[3])
		}
	}

	res = o.Runner.Run(ctx, "df -h "+sshx.Quote(o.root()), o.cmdTimeout())
	if res.Success {
		if lines := strings.Split(strings.TrimSpace(res.Stdout), "\n"); len(lines) > 1 {
			if parts := strings.Fields(lines[1]); len(parts) >= 4 {
				info.Disk = fmt.Sprintf("%s total, %s used, %s available", parts[1], parts[2], parts[3])
			}
		}
	}

	res = o.Runner.Run(ctx, "python3 --version", o.cmdTimeout())
	if res.Success {
		info.Python = strings.TrimSpace(res.Stdout)
	}

	return info
}

// TailLogs returns the last lines of every *.log file under dir (defaults to
// the workspace logs directory).
func (o *Ops) TailLogs(ctx context.Context, dir string, lines int) (string, error) {
	if strings.TrimSpace(dir) == "" {
		dir = path.Join(o.root(), "logs")
	}
	if lines <= 0 {
		lines = 50
	}
	cmd := fmt.Sprintf("find %s -name '*.log' -exec tail -n %d {} \\;", sshx.Quote(dir), lines)
	res := o.Runner.Run(ctx, cmd, o.cmdTimeout())
	if !res.Success {
		return "", fmt.Errorf("tail logs: %s", res.Stderr)
	}
	return res.Stdout, nil
}

// Backup archives srcPath (relative to the workspace root) into a tar.gz
// beside it and returns the archive name.
func (o *Ops) Backup(ctx context.Context, srcPath, name string) (string, error) {
	if strings.TrimSpace(name) == "" {
		name = fmt.Sprintf("backup_%s.tar.gz", o.now().Format("20060102_150405"))
	}
	cmd := "cd " + sshx.Quote(o.root()) + " && tar -czf " + sshx.Quote(name) + " " + sshx.Quote(srcPath)
	res := o.Runner.Run(ctx, cmd, o.cmdTimeout())
	if !res.Success {
		return "", fmt.Errorf("backup %s: %s", srcPath, res.Stderr)
	}
	o.logger().Info("backup created", "name", name)
	return name, nil
}

// Restore extracts a backup archive into targetDir (defaults to the
// workspace root).
func (o *Ops) Restore(ctx context.Context, archivePath, targetDir string) error {
	if strings.TrimSpace(targetDir) == "" {
		targetDir = o.root()
	}
	cmd := "cd " + sshx.Quote(targetDir) + " && tar -xzf " + sshx.Quote(archivePath)
	res := o.Runner.Run(ctx, cmd, o.cmdTimeout())
	if !res.Success {
		return fmt.Errorf("restore %s: %s", archivePath, res.Stderr)
	}
	o.logger().Info("backup restored", "archive", archivePath, "target", targetDir)
	return nil
}

// MonitorProcess polls for a process matching name until it exits or the
// wall-clock budget is exhausted. Returns nil once the process is gone; a
// timeout while it is still running is an error.
func (o *Ops) MonitorProcess(ctx context.Context, name string, budget time.Duration) error {
	deadline := o.now().Add(budget)
	interval := 30 * time.Second
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		res := o.Runner.Run(ctx, "pgrep -f "+sshx.Quote(name), o.cmdTimeout())
		if !res.Success || strings.TrimSpace(res.Stdout) == "" {
			o.logger().Info("process finished", "name", name)
			return nil
		}
		o.logger().Info("process running", "name", name, "pid", strings.TrimSpace(res.Stdout))
		if !o.now().Add(interval).Before(deadline) {
			return fmt.Errorf("process %s still running after %s", name, budget)
		}
		o.sleep(interval)
	}
}
