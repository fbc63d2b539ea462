// Package sshx implements the SSH side of pod management: reachability
// probes, one-shot command execution and streamed file copy. Every call is a
// fresh connect-execute-close; no connection is held across calls.
package sshx

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os"
	"strconv"
	"time"

	"golang.org/x/crypto/ssh"
)

// Target identifies the SSH endpoint of a pod.
type Target struct {
	Host    string
	Port    int
	User    string
	KeyPath string
}

func (t Target) addr() string {
	return net.JoinHostPort(t.Host, strconv.Itoa(t.Port))
}

// Client executes commands on a single pod. Safe for sequential use; the
// orchestrator never issues two remote operations concurrently.
type Client struct {
	target Target
	logger *slog.Logger
}

func NewClient(target Target, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{target: target, logger: logger}
}

// Result captures one command execution. Success is true iff the remote
// process reported exit status 0 (or none at all, see ExitStatusKnown).
// Connection-level failures share this shape: Success=false, ExitCode
// meaningless, Stderr holds the failure description instead of remote output.
type Result struct {
	Success  bool
	Stdout   string
	Stderr   string
	ExitCode int

	// ExitStatusKnown is false when the remote channel closed without
	// delivering an exit status. ExitCode then defaults to 0 and the command
	// counts as successful; strict callers branch on this field.
	ExitStatusKnown bool
}

// Probe attempts an SSH handshake and authentication, then disconnects.
// It returns true only on successful auth within timeout. It never retries;
// callers own the retry cadence.
func (c *Client) Probe(timeout time.Duration) bool {
	if c.target.Host == "" || c.target.Port == 0 {
		c.logger.Error("no ssh connection details configured")
		return false
	}
	conn, err := c.dial(timeout)
	if err != nil {
		c.logger.Warn("ssh probe failed", "host", c.target.Host, "port", c.target.Port, "err", err)
		return false
	}
	_ = conn.Close()
	return true
}

// Run opens one session, executes command as a single shell-interpreted
// string, reads stdout and stderr to completion and retrieves the exit
// status. The session and connection are closed on every path. Command
// strings must be built with Quote applied to any embedded path or argument.
func (c *Client) Run(ctx context.Context, command string, timeout time.Duration) Result {
	if c.target.Host == "" || c.target.Port == 0 {
		return connFailure(errors.New("no ssh connection details configured"))
	}
	conn, err := c.dial(timeout)
	if err != nil {
		return connFailure(err)
	}
	defer conn.Close()

	session, err := conn.NewSession()
	if err != nil {
		return connFailure(err)
	}
	defer session.Close()

	var stdout, stderr bytes.Buffer
	session.Stdout = &stdout
	session.Stderr = &stderr

	done := make(chan error, 1)
	go func() { done <- session.Run(command) }()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case err = <-done:
		return classify(err, stdout.String(), stderr.String())
	case <-timer.C:
		_ = session.Close()
		return connFailure(fmt.Errorf("command timed out after %s", timeout))
	case <-ctx.Done():
		_ = session.Close()
		return connFailure(ctx.Err())
	}
}

func (c *Client) dial(timeout time.Duration) (*ssh.Client, error) {
	cfg, err := c.clientConfig(timeout)
	if err != nil {
		return nil, err
	}
	return ssh.Dial("tcp", c.target.addr(), cfg)
}

func (c *Client) clientConfig(timeout time.Duration) (*ssh.ClientConfig, error) {
	key, err := os.ReadFile(c.target.KeyPath)
	if err != nil {
		return nil, fmt.Errorf("read ssh key: %w", err)
	}
	signer, err := ssh.ParsePrivateKey(key)
	if err != nil {
		return nil, fmt.Errorf("parse ssh key: %w", err)
	}
	return &ssh.ClientConfig{
		User: c.target.User,
		Auth: []ssh.AuthMethod{ssh.PublicKeys(signer)},
		// Pod hosts rotate on every provisioning cycle, so host keys are
		// never stable enough to pin.
		HostKeyCallback: ssh.InsecureIgnoreHostKey(),
		Timeout:         timeout,
	}, nil
}

// classify maps a session.Run error to a Result. A missing exit status
// (channel closed without reporting one) defaults to exit 0.
func classify(err error, stdout, stderr string) Result {
	switch e := err.(type) {
	case nil:
		return Result{Success: true, Stdout: stdout, Stderr: stderr, ExitStatusKnown: true}
	case *ssh.ExitError:
		return Result{Stdout: stdout, Stderr: stderr, ExitCode: e.ExitStatus(), ExitStatusKnown: true}
	case *ssh.ExitMissingError:
		return Result{Success: true, Stdout: stdout, Stderr: stderr}
	default:
		msg := stderr
		if msg == "" {
			msg = err.Error()
		}
		return Result{Stdout: stdout, Stderr: msg}
	}
}

func connFailure(err error) Result {
	return Result{Stderr: err.Error()}
}
