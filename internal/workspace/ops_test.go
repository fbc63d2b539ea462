package workspace

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/forgeline/podctl/internal/sshx"
)

type fakeRunner struct {
	commands []string
	// respond maps a command prefix to a canned result.
	respond func(command string) sshx.Result
}

func (f *fakeRunner) Run(_ context.Context, command string, _ time.Duration) sshx.Result {
	f.commands = append(f.commands, command)
	if f.respond != nil {
		return f.respond(command)
	}
	return sshx.Result{Success: true, ExitStatusKnown: true}
}

func newOps(r *fakeRunner) *Ops {
	clockNow := time.Date(2025, 6, 1, 9, 30, 0, 0, time.UTC)
	return &Ops{
		Runner: r,
		Root:   "/workspace",
		Now:    func() time.Time { return clockNow },
	}
}

func TestSetupCreatesLayout(t *testing.T) {
	r := &fakeRunner{}
	if err := newOps(r).Setup(context.Background()); err != nil {
		t.Fatalf("setup: %v", err)
	}
	if len(r.commands) != 1 {
		t.Fatalf("want one mkdir command, got %v", r.commands)
	}
	cmd := r.commands[0]
	for _, dir := range []string{
		"'/workspace'",
		"'/workspace/data/input'",
		"'/workspace/data/outputs'",
		"'/workspace/scripts'",
		"'/workspace/logs'",
	} {
		if !strings.Contains(cmd, dir) {
			t.Fatalf("setup command missing %s: %q", dir, cmd)
		}
	}
	if !strings.HasPrefix(cmd, "mkdir -p ") {
		t.Fatalf("setup must be a plain mkdir -p, got %q", cmd)
	}
}

func TestInstallDepsStopsOnFirstFailure(t *testing.T) {
	r := &fakeRunner{respond: func(command string) sshx.Result {
		if strings.HasPrefix(command, "apt-get install") {
			return sshx.Result{Stderr: "no network", ExitCode: 100, ExitStatusKnown: true}
		}
		return sshx.Result{Success: true, ExitStatusKnown: true}
	}}
	err := newOps(r).InstallDeps(context.Background())
	if err == nil || !strings.Contains(err.Error(), "no network") {
		t.Fatalf("expected install failure, got %v", err)
	}
	if len(r.commands) != 2 {
		t.Fatalf("install must stop at first failure, ran %v", r.commands)
	}
}

func TestSystemInfo(t *testing.T) {
	r := &fakeRunner{respond: func(command string) sshx.Result {
		switch {
		case strings.HasPrefix(command, "nvidia-smi"):
			return sshx.Result{Success: true, Stdout: "NVIDIA A40, 46068, 1203\n", ExitStatusKnown: true}
		case strings.HasPrefix(command, "free"):
			return sshx.Result{Success: true, Stdout: "Mem:  50Gi  12Gi  38Gi  0B  1Gi  37Gi\n", ExitStatusKnown: true}
		case strings.HasPrefix(command, "df"):
			return sshx.Result{Success: true, Stdout: "Filesystem Size Used Avail Use% Mounted\noverlay 200G 48G 152G 24% /workspace\n", ExitStatusKnown: true}
		case strings.HasPrefix(command, "python3"):
			return sshx.Result{Success: true, Stdout: "Python 3.11.4\n", ExitStatusKnown: true}
		}
		return sshx.Result{Stderr: "unexpected"}
	}}
	info := newOps(r).SystemInfo(context.Background())
	if info.GPU != "NVIDIA A40 (46068MB total, 1203MB used)" {
		t.Fatalf("gpu = %q", info.GPU)
	}
	if info.Memory != "50Gi total, 12Gi used, 38Gi free" {
		t.Fatalf("memory = %q", info.Memory)
	}
	if info.Disk != "200G total, 48G used, 152G available" {
		t.Fatalf("disk = %q", info.Disk)
	}
	if info.Python != "Python 3.11.4" {
		t.Fatalf("python = %q", info.Python)
	}
}

func TestSystemInfoDegradesPerProbe(t *testing.T) {
	r := &fakeRunner{respond: func(command string) sshx.Result {
		if strings.HasPrefix(command, "python3") {
			return sshx.Result{Success: true, Stdout: "Python 3.11.4\n", ExitStatusKnown: true}
		}
		return sshx.Result{Stderr: "command not found", ExitCode: 127, ExitStatusKnown: true}
	}}
	info := newOps(r).SystemInfo(context.Background())
	if info.GPU != notAvailable || info.Memory != notAvailable || info.Disk != notAvailable {
		t.Fatalf("failed probes must degrade: %+v", info)
	}
	if info.Python != "Python 3.11.4" {
		t.Fatalf("surviving probe lost: %+v", info)
	}
}

func TestBackupDefaultName(t *testing.T) {
	r := &fakeRunner{}
	name, err := newOps(r).Backup(context.Background(), "data/outputs", "")
	if err != nil {
		t.Fatalf("backup: %v", err)
	}
	if name != "backup_20250601_093000.tar.gz" {
		t.Fatalf("name = %q", name)
	}
	cmd := r.commands[0]
	if !strings.Contains(cmd, "tar -czf 'backup_20250601_093000.tar.gz' 'data/outputs'") {
		t.Fatalf("backup command = %q", cmd)
	}
}

func TestRestoreDefaultsToRoot(t *testing.T) {
	r := &fakeRunner{}
	if err := newOps(r).Restore(context.Background(), "backup_x.tar.gz", ""); err != nil {
		t.Fatalf("restore: %v", err)
	}
	if cmd := r.commands[0]; !strings.Contains(cmd, "cd '/workspace' && tar -xzf 'backup_x.tar.gz'") {
		t.Fatalf("restore command = %q", cmd)
	}
}

func TestMonitorProcessUntilExit(t *testing.T) {
	polls := 0
	r := &fakeRunner{respond: func(command string) sshx.Result {
		if !strings.HasPrefix(command, "pgrep") {
			t.Fatalf("unexpected command %q", command)
		}
		polls++
		if polls < 3 {
			return sshx.Result{Success: true, Stdout: "4242\n", ExitStatusKnown: true}
		}
		return sshx.Result{ExitCode: 1, ExitStatusKnown: true}
	}}
	now := time.Date(2025, 6, 1, 9, 30, 0, 0, time.UTC)
	ops := &Ops{
		Runner: r,
		Now:    func() time.Time { return now },
		Sleep:  func(d time.Duration) { now = now.Add(d) },
	}
	if err := ops.MonitorProcess(context.Background(), "process_faces.py", time.Hour); err != nil {
		t.Fatalf("monitor: %v", err)
	}
	if polls != 3 {
		t.Fatalf("polls = %d, want 3", polls)
	}
}

func TestMonitorProcessTimeout(t *testing.T) {
	r := &fakeRunner{respond: func(string) sshx.Result {
		return sshx.Result{Success: true, Stdout: "4242\n", ExitStatusKnown: true}
	}}
	now := time.Date(2025, 6, 1, 9, 30, 0, 0, time.UTC)
	ops := &Ops{
		Runner: r,
		Now:    func() time.Time { return now },
		Sleep:  func(d time.Duration) { now = now.Add(d) },
	}
	if err := ops.MonitorProcess(context.Background(), "stuck.py", time.Minute); err == nil {
		t.Fatalf("expected timeout while process keeps running")
	}
}
