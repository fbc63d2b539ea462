// Package transfer moves artifacts between the pod and the local machine.
// Transfers are always archive-then-copy-then-extract over the SSH channel,
// never raw directory sync; every remote archive created here is removed
// (best-effort) before the operation returns, on success and failure alike.
package transfer

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/forgeline/podctl/internal/sshx"
)

// Stamp layout for archive and batch names: lexical order equals
// chronological order.
const stampLayout = "20060102_150405"

// BatchPrefix names local batch directories; the retention manager only ever
// deletes directories carrying it.
const BatchPrefix = "batch_"

// Shell is the command-and-copy surface the pipeline needs from the pod.
// Implemented by sshx.Client.
type Shell interface {
	Run(ctx context.Context, command string, timeout time.Duration) sshx.Result
	WriteFile(ctx context.Context, remotePath string, r io.Reader, timeout time.Duration) error
	ReadFile(ctx context.Context, remotePath string, w io.Writer, timeout time.Duration) error
}

// Pipeline performs bidirectional artifact exchange rooted at the remote
// workspace. Zero timeout fields fall back to 5m commands / 15m transfers.
type Pipeline struct {
	Shell           Shell
	WorkspaceRoot   string
	CommandTimeout  time.Duration
	TransferTimeout time.Duration
	Logger          *slog.Logger

	// Overridable for tests.
	Now func() time.Time
}

func (p *Pipeline) logger() *slog.Logger {
	if p.Logger == nil {
		return slog.Default()
	}
	return p.Logger
}

func (p *Pipeline) root() string {
	if strings.TrimSpace(p.WorkspaceRoot) == "" {
		return "/workspace"
	}
	return path.Clean(p.WorkspaceRoot)
}

func (p *Pipeline) cmdTimeout() time.Duration {
	if p.CommandTimeout <= 0 {
		return 5 * time.Minute
	}
	return p.CommandTimeout
}

func (p *Pipeline) copyTimeout() time.Duration {
	if p.TransferTimeout <= 0 {
		return 15 * time.Minute
	}
	return p.TransferTimeout
}

func (p *Pipeline) stamp() string {
	if p.Now != nil {
		return p.Now().Format(stampLayout)
	}
	return time.Now().Format(stampLayout)
}

// FetchArtifacts archives remoteDir on the pod, downloads and extracts it
// into a fresh timestamped batch directory under localBase, and returns the
// batch path. An extraction failure leaves the batch directory on disk for
// inspection but still reports failure.
func (p *Pipeline) FetchArtifacts(ctx context.Context, remoteDir, localBase, prefix string) (string, error) {
	remoteDir = path.Clean(strings.TrimSpace(remoteDir))
	if prefix == "" {
		prefix = "outputs"
	}

	check := p.Shell.Run(ctx, "test -d "+sshx.Quote(remoteDir), p.cmdTimeout())
	if !check.Success {
		return "", fmt.Errorf("remote directory not found: %s", remoteDir)
	}

	// Archive by parent and leaf so extraction yields one top-level directory.
	parent := path.Dir(remoteDir)
	leaf := path.Base(remoteDir)

	ts := p.stamp()
	remoteArchive := path.Join(p.root(), fmt.Sprintf("%s_%s.tar.gz", prefix, ts))

	res := p.Shell.Run(ctx, "tar -C "+sshx.Quote(parent)+" -czf "+sshx.Quote(remoteArchive)+" "+sshx.Quote(leaf), p.cmdTimeout())
	if !res.Success {
		return "", fmt.Errorf("create remote archive: %s", res.Stderr)
	}
	defer p.removeRemote(ctx, remoteArchive)

	tmp, err := os.CreateTemp("", prefix+"_*.tar.gz")
	if err != nil {
		return "", fmt.Errorf("local temp archive: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if err := p.Shell.ReadFile(ctx, remoteArchive, tmp, p.copyTimeout()); err != nil {
		_ = tmp.Close()
		return "", fmt.Errorf("download archive: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return "", err
	}

	batchDir := filepath.Join(localBase, BatchPrefix+ts)
	if err := os.MkdirAll(batchDir, 0o755); err != nil {
		return "", fmt.Errorf("create batch dir: %w", err)
	}

	f, err := os.Open(tmpName)
	if err != nil {
		return "", err
	}
	defer f.Close()
	if err := Unpack(f, batchDir); err != nil {
		return "", fmt.Errorf("extract into %s: %w", batchDir, err)
	}

	p.logger().Info("artifacts downloaded", "remote", remoteDir, "batch", batchDir)
	return batchDir, nil
}

// PushProject archives localPath (minus version-control, cache and bytecode
// artifacts), uploads it and extracts it under the workspace root. Both
// archive copies are removed before returning.
func (p *Pipeline) PushProject(ctx context.Context, localPath string) error {
	tmp, err := os.CreateTemp("", "project_*.tar.gz")
	if err != nil {
		return fmt.Errorf("local temp archive: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if err := Pack(localPath, tmp, DefaultExclude); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("archive project: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return err
	}

	remoteArchive := path.Join(p.root(), fmt.Sprintf("project_%s.tar.gz", p.stamp()))
	f, err := os.Open(tmpName)
	if err != nil {
		return err
	}
	defer f.Close()
	if err := p.Shell.WriteFile(ctx, remoteArchive, f, p.copyTimeout()); err != nil {
		return fmt.Errorf("upload archive: %w", err)
	}
	defer p.removeRemote(ctx, remoteArchive)

	res := p.Shell.Run(ctx, "cd "+sshx.Quote(p.root())+" && tar -xzf "+sshx.Quote(remoteArchive), p.cmdTimeout())
	if !res.Success {
		return fmt.Errorf("remote extraction failed: %s", res.Stderr)
	}

	p.logger().Info("project uploaded", "path", localPath, "root", p.root())
	return nil
}

// ClearRemoteDir recreates dir and removes its contents (not the directory
// itself). It refuses any path not rooted under the workspace prefix before
// issuing a single command. Hard safety invariant; never lift this check.
func (p *Pipeline) ClearRemoteDir(ctx context.Context, dir string) error {
	dir = path.Clean(strings.TrimSpace(dir))
	root := p.root()
	if dir != root && !strings.HasPrefix(dir, root+"/") {
		return fmt.Errorf("refusing to clear %s: outside workspace %s", dir, root)
	}
	res := p.Shell.Run(ctx, "mkdir -p "+sshx.Quote(dir)+" && rm -rf "+sshx.Quote(dir)+"/*", p.cmdTimeout())
	if !res.Success {
		return fmt.Errorf("clear %s: %s", dir, res.Stderr)
	}
	return nil
}

func (p *Pipeline) removeRemote(ctx context.Context, remotePath string) {
	res := p.Shell.Run(ctx, "rm -f "+sshx.Quote(remotePath), p.cmdTimeout())
	if !res.Success {
		p.logger().Warn("remote archive cleanup failed", "path", remotePath, "err", res.Stderr)
	}
}
