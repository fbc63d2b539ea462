// Package pipeline sequences one end-to-end run against the pod: ensure
// ready, optional preparation stages, the remote job itself, artifact fetch
// and local retention. One orchestrator instance drives one pod at a time;
// concurrent invocations against the same pod are out of scope and unguarded.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/forgeline/podctl/internal/lifecycle"
	"github.com/forgeline/podctl/internal/retention"
	"github.com/forgeline/podctl/internal/sshx"
)

// ReadyEnsurer drives the pod to verified-ready. See lifecycle.Controller.
type ReadyEnsurer interface {
	EnsureReady(ctx context.Context, autoStart bool, budget time.Duration) (*lifecycle.WorkerStatus, error)
}

// Transferer exchanges artifacts with the pod. See transfer.Pipeline.
type Transferer interface {
	FetchArtifacts(ctx context.Context, remoteDir, localBase, prefix string) (string, error)
	PushProject(ctx context.Context, localPath string) error
	ClearRemoteDir(ctx context.Context, dir string) error
}

// Preparer runs the optional remote preparation stages. See workspace.Ops.
type Preparer interface {
	Setup(ctx context.Context) error
	InstallDeps(ctx context.Context) error
}

// Runner executes one remote command. Implemented by sshx.Client.
type Runner interface {
	Run(ctx context.Context, command string, timeout time.Duration) sshx.Result
}

// Options selects and parameterizes the stages of one run. Every optional
// stage that is selected becomes required: its failure before the job aborts
// the run.
type Options struct {
	AutoStart    bool
	ReadyTimeout time.Duration // default 5m

	Setup       bool
	InstallDeps bool

	UploadProject bool
	ProjectPath   string // default "."

	PurgeOutputs    bool
	RemoteOutputDir string // default <root>/data/outputs

	EnsureService bool
	ServiceURL    string // default http://127.0.0.1:7860
	ServiceBoot   string // detached boot command; default starts the bundled webui launcher

	JobCommand string // required
	JobTimeout time.Duration // default 30m

	FetchOutputs    bool
	LocalOutputBase string // default data/output_images
	ArchivePrefix   string // default outputs

	// PruneLocal removes old local batch directories after a successful
	// fetch. It never runs when FetchOutputs is off or the fetch failed.
	PruneLocal  bool
	KeepBatches int
}

// Report is the outcome of one run. FetchErr is set when the job succeeded
// but fetching its outputs did not; the run still counts as successful.
type Report struct {
	RunID    string
	Status   *lifecycle.WorkerStatus
	Job      sshx.Result
	BatchDir string
	FetchErr error
	Pruned   int
}

// Orchestrator wires the components for one pod.
type Orchestrator struct {
	Lifecycle     ReadyEnsurer
	Transfer      Transferer
	Workspace     Preparer
	Runner        Runner
	WorkspaceRoot string
	Logger        *slog.Logger
}

func (o *Orchestrator) logger() *slog.Logger {
	if o.Logger == nil {
		return slog.Default()
	}
	return o.Logger
}

func (o *Orchestrator) root() string {
	if strings.TrimSpace(o.WorkspaceRoot) == "" {
		return "/workspace"
	}
	return path.Clean(o.WorkspaceRoot)
}

func (opts *Options) normalize(root string) {
	if opts.ReadyTimeout <= 0 {
		opts.ReadyTimeout = 5 * time.Minute
	}
	if opts.ProjectPath == "" {
		opts.ProjectPath = "."
	}
	if opts.RemoteOutputDir == "" {
		opts.RemoteOutputDir = path.Join(root, "data", "outputs")
	}
	if opts.ServiceURL == "" {
		opts.ServiceURL = "http://127.0.0.1:7860"
	}
	if opts.JobTimeout <= 0 {
		opts.JobTimeout = 30 * time.Minute
	}
	if opts.LocalOutputBase == "" {
		opts.LocalOutputBase = "data/output_images"
	}
	if opts.ArchivePrefix == "" {
		opts.ArchivePrefix = "outputs"
	}
}

// Run executes the full sequence. The returned report is non-nil whenever
// the job was attempted, even on failure, so callers can surface captured
// output.
func (o *Orchestrator) Run(ctx context.Context, opts Options) (*Report, error) {
	if strings.TrimSpace(opts.JobCommand) == "" {
		return nil, errors.New("job command is required")
	}
	opts.normalize(o.root())

	report := &Report{RunID: uuid.NewString()[:8]}
	log := o.logger().With("run", report.RunID)

	status, err := o.Lifecycle.EnsureReady(ctx, opts.AutoStart, opts.ReadyTimeout)
	if err != nil {
		return nil, fmt.Errorf("ensure ready: %w", err)
	}
	report.Status = status

	if opts.Setup {
		log.Info("setting up workspace")
		if err := o.Workspace.Setup(ctx); err != nil {
			return nil, err
		}
	}
	if opts.InstallDeps {
		log.Info("installing dependencies")
		if err := o.Workspace.InstallDeps(ctx); err != nil {
			return nil, err
		}
	}
	if opts.UploadProject {
		log.Info("uploading project", "path", opts.ProjectPath)
		if err := o.Transfer.PushProject(ctx, opts.ProjectPath); err != nil {
			return nil, err
		}
	}
	if opts.PurgeOutputs {
		log.Info("clearing remote outputs", "dir", opts.RemoteOutputDir)
		if err := o.Transfer.ClearRemoteDir(ctx, opts.RemoteOutputDir); err != nil {
			return nil, err
		}
	}
	if opts.EnsureService {
		o.ensureService(ctx, opts, log)
	}

	log.Info("executing job", "cmd", opts.JobCommand)
	report.Job = o.Runner.Run(ctx, opts.JobCommand, opts.JobTimeout)
	if !report.Job.Success {
		return report, fmt.Errorf("job failed (exit %d): %s", report.Job.ExitCode, strings.TrimSpace(report.Job.Stderr))
	}
	log.Info("job completed", "exitStatusKnown", report.Job.ExitStatusKnown)

	if opts.FetchOutputs {
		batch, err := o.Transfer.FetchArtifacts(ctx, opts.RemoteOutputDir, opts.LocalOutputBase, opts.ArchivePrefix)
		if err != nil {
			// The job itself succeeded; report the fetch problem without
			// failing the run.
			log.Error("fetching outputs failed", "err", err)
			report.FetchErr = err
			if opts.PruneLocal {
				log.Info("prune skipped", "reason", "fetch failed")
			}
			return report, nil
		}
		report.BatchDir = batch

		if opts.PruneLocal {
			removed, err := retention.Prune(opts.LocalOutputBase, opts.KeepBatches, log)
			if err != nil {
				log.Warn("prune failed", "err", err)
			}
			report.Pruned = removed
		}
	} else if opts.PruneLocal {
		log.Info("prune skipped", "reason", "outputs not fetched")
	}

	return report, nil
}

// ensureService probes the downstream image-generation HTTP service on the
// pod and boots it detached when unreachable. Best effort: the job command
// is still attempted even if the boot did not confirm readiness.
func (o *Orchestrator) ensureService(ctx context.Context, opts Options, log *slog.Logger) {
	probeURL := strings.TrimRight(opts.ServiceURL, "/") + "/sdapi/v1/progress"
	probe := "curl -s --max-time 5 " + sshx.Quote(probeURL) + " >/dev/null 2>&1 && echo UP || echo DOWN"
	res := o.Runner.Run(ctx, probe, time.Minute)
	if res.Success && strings.Contains(res.Stdout, "UP") {
		log.Info("image service reachable", "url", opts.ServiceURL)
		return
	}

	log.Info("image service not reachable, starting it", "url", opts.ServiceURL)
	boot := opts.ServiceBoot
	if strings.TrimSpace(boot) == "" {
		boot = "setsid python3 " + sshx.Quote(path.Join(o.root(), "stable-diffusion-webui", "launch.py")) +
			" --api --nowebui </dev/null > " + sshx.Quote(path.Join(o.root(), "logs", "webui_boot.log")) + " 2>&1 &"
	}
	// Start detached, then poll the endpoint until it answers or the attempt
	// budget runs out. `... &` reports success even when the process dies
	// immediately, so only the probe loop is trusted.
	script := "mkdir -p " + sshx.Quote(path.Join(o.root(), "logs")) + "\n" +
		boot + "\nsleep 5\n" +
		"for i in $(seq 1 60); do curl -s --max-time 5 " + sshx.Quote(probeURL) + " >/dev/null 2>&1 && echo READY && break; sleep 5; done"
	res = o.Runner.Run(ctx, "bash -lc "+sshx.Quote(script), 10*time.Minute)
	if !res.Success || !strings.Contains(res.Stdout, "READY") {
		log.Warn("image service did not confirm readiness", "stderr", strings.TrimSpace(res.Stderr))
	}
}
