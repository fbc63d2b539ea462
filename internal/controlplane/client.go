// Package controlplane talks to the pod management API (GraphQL over HTTP).
// It is independent of the SSH channel: describing, starting and stopping a
// pod works even when the pod itself is unreachable.
package controlplane

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

const DefaultEndpoint = "https://api.runpod.io/graphql"

// ErrMissingAPIKey is returned by mutating calls when no credential is
// configured. No network request is attempted in that case.
var ErrMissingAPIKey = errors.New("control plane api key is not set")

// Descriptor is the control plane's view of a pod.
type Descriptor struct {
	ID      string   `json:"id"`
	Name    string   `json:"name"`
	Runtime *Runtime `json:"runtime"`
}

// Runtime is present only while the pod has a running container.
type Runtime struct {
	Ports []Port `json:"ports"`
}

// Port maps a private container port to its public endpoint.
type Port struct {
	PrivatePort int    `json:"privatePort"`
	PublicPort  int    `json:"publicPort"`
	Type        string `json:"type"`
}

// Running reports whether the control plane considers the pod's container up.
func (d *Descriptor) Running() bool {
	return d != nil && d.Runtime != nil
}

type Client struct {
	http     *http.Client
	endpoint string
	apiKey   string
	logger   *slog.Logger
}

func NewClient(endpoint, apiKey string, timeout time.Duration, logger *slog.Logger) *Client {
	if strings.TrimSpace(endpoint) == "" {
		endpoint = DefaultEndpoint
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		http:     &http.Client{Timeout: timeout},
		endpoint: endpoint,
		apiKey:   apiKey,
		logger:   logger,
	}
}

const describeQuery = `query Pod($podId: String!) {
  pod(input: { podId: $podId }) {
    id
    name
    runtime {
      ports {
        privatePort
        publicPort
        type
      }
    }
  }
}`

const startMutation = `mutation StartPod($podId: String!) {
  podStart(input: { podId: $podId }) {
    id
    desiredStatus
  }
}`

const stopMutation = `mutation StopPod($podId: String!) {
  podStop(input: { podId: $podId }) {
    id
    desiredStatus
  }
}`

// Describe fetches the pod descriptor. An unknown pod returns (nil, nil).
// Without an API key it returns a stub descriptor with an empty runtime so
// lifecycle polling can still proceed on configured connection details.
func (c *Client) Describe(ctx context.Context, podID string) (*Descriptor, error) {
	if c.apiKey == "" {
		c.logger.Warn("api key not set; skipping pod describe", "pod", podID)
		return &Descriptor{ID: podID, Runtime: &Runtime{}}, nil
	}
	var data struct {
		Pod *Descriptor `json:"pod"`
	}
	if err := c.post(ctx, describeQuery, podID, &data); err != nil {
		return nil, fmt.Errorf("describe pod %s: %w", podID, err)
	}
	if data.Pod == nil {
		c.logger.Error("pod not found", "pod", podID)
		return nil, nil
	}
	return data.Pod, nil
}

// Start requests the pod to be started. One request, no retries.
func (c *Client) Start(ctx context.Context, podID string) error {
	if c.apiKey == "" {
		return ErrMissingAPIKey
	}
	var data struct {
		PodStart *struct {
			ID string `json:"id"`
		} `json:"podStart"`
	}
	if err := c.post(ctx, startMutation, podID, &data); err != nil {
		return fmt.Errorf("start pod %s: %w", podID, err)
	}
	if data.PodStart == nil {
		return fmt.Errorf("start pod %s: empty mutation result", podID)
	}
	c.logger.Info("pod start requested", "pod", podID)
	return nil
}

// Stop requests the pod to be stopped. One request, no retries.
func (c *Client) Stop(ctx context.Context, podID string) error {
	if c.apiKey == "" {
		return ErrMissingAPIKey
	}
	var data struct {
		PodStop *struct {
			ID string `json:"id"`
		} `json:"podStop"`
	}
	if err := c.post(ctx, stopMutation, podID, &data); err != nil {
		return fmt.Errorf("stop pod %s: %w", podID, err)
	}
	if data.PodStop == nil {
		return fmt.Errorf("stop pod %s: empty mutation result", podID)
	}
	c.logger.Info("pod stop requested", "pod", podID)
	return nil
}

type gqlRequest struct {
	Query     string         `json:"query"`
	Variables map[string]any `json:"variables,omitempty"`
}

type gqlError struct {
	Message string `json:"message"`
}

// post issues one GraphQL request and decodes the data payload into out.
// Non-2xx statuses and GraphQL-level errors include the raw response body so
// failures stay diagnosable.
func (c *Client) post(ctx context.Context, query, podID string, out any) error {
	payload, err := json.Marshal(gqlRequest{
		Query:     query,
		Variables: map[string]any{"podId": podID},
	})
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var envelope struct {
		Data   json.RawMessage `json:"data"`
		Errors []gqlError      `json:"errors"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil {
		return fmt.Errorf("malformed response %q: %w", strings.TrimSpace(string(body)), err)
	}
	if len(envelope.Errors) > 0 {
		msgs := make([]string, 0, len(envelope.Errors))
		for _, e := range envelope.Errors {
			msgs = append(msgs, e.Message)
		}
		return fmt.Errorf("graphql: %s", strings.Join(msgs, "; "))
	}
	if len(envelope.Data) == 0 {
		return fmt.Errorf("malformed response: missing data in %q", strings.TrimSpace(string(body)))
	}
	return json.Unmarshal(envelope.Data, out)
}
