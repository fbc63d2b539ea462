package sshx

import (
	"context"
	"errors"
	"testing"

	"golang.org/x/crypto/ssh"
)

func TestClassifyNilError(t *testing.T) {
	res := classify(nil, "out", "err")
	if !res.Success {
		t.Fatalf("expected success")
	}
	if res.ExitCode != 0 || !res.ExitStatusKnown {
		t.Fatalf("unexpected exit fields: %+v", res)
	}
	if res.Stdout != "out" || res.Stderr != "err" {
		t.Fatalf("streams not preserved: %+v", res)
	}
}

func TestClassifyMissingExitStatusDefaultsToSuccess(t *testing.T) {
	res := classify(&ssh.ExitMissingError{}, "partial", "")
	if !res.Success {
		t.Fatalf("missing exit status must default to success")
	}
	if res.ExitStatusKnown {
		t.Fatalf("ExitStatusKnown must flag the fallback")
	}
	if res.ExitCode != 0 {
		t.Fatalf("exit code must default to 0, got %d", res.ExitCode)
	}
}

func TestClassifyGenericErrorUsesStderr(t *testing.T) {
	res := classify(errors.New("channel torn down"), "", "remote complained")
	if res.Success {
		t.Fatalf("expected failure")
	}
	if res.Stderr != "remote complained" {
		t.Fatalf("expected captured stderr, got %q", res.Stderr)
	}

	res = classify(errors.New("channel torn down"), "", "")
	if res.Stderr != "channel torn down" {
		t.Fatalf("expected error text in stderr, got %q", res.Stderr)
	}
}

func TestConnFailureShape(t *testing.T) {
	res := connFailure(errors.New("dial tcp: connection refused"))
	if res.Success {
		t.Fatalf("expected failure")
	}
	if res.Stderr == "" {
		t.Fatalf("stderr must carry the failure description")
	}
	if res.ExitStatusKnown {
		t.Fatalf("connection failures have no exit status")
	}
}

func TestProbeWithoutConnectionDetails(t *testing.T) {
	c := NewClient(Target{}, nil)
	if c.Probe(0) {
		t.Fatalf("probe must fail without host/port")
	}
}

func TestRunWithoutConnectionDetails(t *testing.T) {
	c := NewClient(Target{User: "root"}, nil)
	res := c.Run(context.Background(), "true", 0)
	if res.Success {
		t.Fatalf("expected failure")
	}
	if res.Stderr == "" {
		t.Fatalf("expected failure description in stderr")
	}
}
