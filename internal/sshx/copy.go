package sshx

import (
	"context"
	"fmt"
	"io"
	"time"

	"golang.org/x/crypto/ssh"
)

// WriteFile streams r into remotePath over a fresh SSH session. The remote
// parent directory must already exist.
func (c *Client) WriteFile(ctx context.Context, remotePath string, r io.Reader, timeout time.Duration) error {
	return c.copySession(ctx, "cat > "+Quote(remotePath), timeout, func(s *ssh.Session) {
		s.Stdin = r
	})
}

// ReadFile streams remotePath into w over a fresh SSH session.
func (c *Client) ReadFile(ctx context.Context, remotePath string, w io.Writer, timeout time.Duration) error {
	return c.copySession(ctx, "cat "+Quote(remotePath), timeout, func(s *ssh.Session) {
		s.Stdout = w
	})
}

func (c *Client) copySession(ctx context.Context, command string, timeout time.Duration, wire func(*ssh.Session)) error {
	conn, err := c.dial(timeout)
	if err != nil {
		return fmt.Errorf("ssh connect: %w", err)
	}
	defer conn.Close()

	session, err := conn.NewSession()
	if err != nil {
		return fmt.Errorf("ssh session: %w", err)
	}
	defer session.Close()

	wire(session)

	done := make(chan error, 1)
	go func() { done <- session.Run(command) }()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case err = <-done:
		if err != nil {
			return fmt.Errorf("remote copy: %w", err)
		}
		return nil
	case <-timer.C:
		_ = session.Close()
		return fmt.Errorf("copy timed out after %s", timeout)
	case <-ctx.Done():
		_ = session.Close()
		return ctx.Err()
	}
}
