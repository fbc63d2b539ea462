// Package lifecycle brings a pod from unknown/stopped to verified-ready.
// Readiness is only ever confirmed by a successful SSH probe; a control-plane
// "running" signal alone is not enough.
package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/forgeline/podctl/internal/controlplane"
)

// State of the readiness machine. Ready and TimedOut are terminal for one
// EnsureReady call.
type State int

const (
	StateUnknown State = iota
	StateStarting
	StateProbing
	StateReady
	StateTimedOut
)

func (s State) String() string {
	switch s {
	case StateStarting:
		return "starting"
	case StateProbing:
		return "probing"
	case StateReady:
		return "ready"
	case StateTimedOut:
		return "timed-out"
	default:
		return "unknown"
	}
}

// ErrTimedOut is returned when the pod did not become ready within budget,
// including the autoStart=false case where provisioning was never requested.
var ErrTimedOut = errors.New("pod did not become ready")

// Prober tests SSH reachability. See sshx.Client.
type Prober interface {
	Probe(timeout time.Duration) bool
}

// ControlPlane is the subset of the management API the controller needs.
type ControlPlane interface {
	Describe(ctx context.Context, podID string) (*controlplane.Descriptor, error)
	Start(ctx context.Context, podID string) error
}

// WorkerStatus records a probe-confirmed ready pod. Held in memory for the
// duration of one run; Reset discards it.
type WorkerStatus struct {
	ID               string
	Running          bool
	SSHHost          string
	SSHPort          int
	ReadyConfirmedAt time.Time
}

// Controller composes the probe and the control-plane client. Zero values of
// ProbeTimeout and PollInterval fall back to 10s.
type Controller struct {
	WorkerID     string
	Probe        Prober
	ControlPlane ControlPlane
	SSHHost      string
	SSHPort      int
	ProbeTimeout time.Duration
	PollInterval time.Duration
	Logger       *slog.Logger

	// Overridable for tests.
	Now   func() time.Time
	Sleep func(time.Duration)

	state  State
	status *WorkerStatus
}

func (c *Controller) logger() *slog.Logger {
	if c.Logger == nil {
		return slog.Default()
	}
	return c.Logger
}

func (c *Controller) probeTimeout() time.Duration {
	if c.ProbeTimeout <= 0 {
		return 10 * time.Second
	}
	return c.ProbeTimeout
}

func (c *Controller) pollInterval() time.Duration {
	if c.PollInterval <= 0 {
		return 10 * time.Second
	}
	return c.PollInterval
}

func (c *Controller) now() time.Time {
	if c.Now != nil {
		return c.Now()
	}
	return time.Now()
}

func (c *Controller) sleep(d time.Duration) {
	if c.Sleep != nil {
		c.Sleep(d)
		return
	}
	time.Sleep(d)
}

// State reports the last observed machine state.
func (c *Controller) State() State { return c.state }

// Status returns the confirmed worker status, or nil before readiness.
func (c *Controller) Status() *WorkerStatus { return c.status }

// Reset discards the confirmed status, returning the machine to unknown.
func (c *Controller) Reset() {
	c.state = StateUnknown
	c.status = nil
}

// EnsureReady drives the pod to a verified-ready state.
//
// Fast path: if the probe succeeds immediately the pod is ready, regardless
// of what the control plane would report; no control-plane call is made.
// Otherwise, with autoStart, the pod is started and polled: whenever the
// descriptor shows a running runtime the probe is retried, until the
// wall-clock budget runs out. Provisioning latency and SSH reachability
// latency are decoupled and both tolerated.
func (c *Controller) EnsureReady(ctx context.Context, autoStart bool, budget time.Duration) (*WorkerStatus, error) {
	log := c.logger()

	c.state = StateProbing
	if c.Probe.Probe(c.probeTimeout()) {
		return c.confirmReady(), nil
	}

	if !autoStart {
		c.state = StateTimedOut
		return nil, fmt.Errorf("pod %s unreachable and auto-start not requested: %w", c.WorkerID, ErrTimedOut)
	}

	c.state = StateStarting
	log.Info("pod not reachable, requesting start", "pod", c.WorkerID)
	if err := c.ControlPlane.Start(ctx, c.WorkerID); err != nil {
		c.state = StateTimedOut
		return nil, fmt.Errorf("start pod: %w", err)
	}

	deadline := c.now().Add(budget)
	for c.now().Before(deadline) {
		if err := ctx.Err(); err != nil {
			c.state = StateTimedOut
			return nil, err
		}

		desc, err := c.ControlPlane.Describe(ctx, c.WorkerID)
		switch {
		case err != nil:
			log.Warn("describe failed", "pod", c.WorkerID, "err", err)
		case desc == nil:
			log.Warn("pod not found on control plane", "pod", c.WorkerID)
		case desc.Running():
			c.state = StateProbing
			if c.Probe.Probe(c.probeTimeout()) {
				return c.confirmReady(), nil
			}
			log.Info("pod is running, waiting for ssh", "pod", c.WorkerID)
		default:
			log.Info("pod is starting", "pod", c.WorkerID)
		}

		c.sleep(c.pollInterval())
	}

	c.state = StateTimedOut
	return nil, fmt.Errorf("pod %s not ready within %s: %w", c.WorkerID, budget, ErrTimedOut)
}

func (c *Controller) confirmReady() *WorkerStatus {
	c.state = StateReady
	c.status = &WorkerStatus{
		ID:               c.WorkerID,
		Running:          true,
		SSHHost:          c.SSHHost,
		SSHPort:          c.SSHPort,
		ReadyConfirmedAt: c.now(),
	}
	c.logger().Info("pod is ready", "pod", c.WorkerID, "host", c.SSHHost, "port", c.SSHPort)
	return c.status
}
