// Package devin is an HTTP client for the Devin agent API: session
// creation, status polling, messaging, and the enterprise analysis
// endpoint.
//
// Sessions follow a two-phase workflow. Phase 1 creates the session and
// polls until it blocks (work done, waiting for input). Phase 2 sends a
// "sleep" message, waits for the sleeping state, then collects the
// session analysis and any structured output.
package devin

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"
)

// DefaultBaseURL is the production Devin API endpoint.
const DefaultBaseURL = "https://api.devin.ai"

// DefaultPollInterval is the default session status polling interval.
const DefaultPollInterval = 10 * time.Second

// Session statuses reported by the API. "finished" means sleeping.
const (
	StatusPlanning = "planning"
	StatusWorking  = "working"
	StatusBlocked  = "blocked"
	StatusFinished = "finished"
	StatusExpired  = "expired"
)

// Client calls the Devin API.
type Client struct {
	BaseURL      string
	HTTPClient   *http.Client
	PollInterval time.Duration
	Logf         func(format string, args ...interface{})

	apiKey string
}

// NewClient creates a Devin API client. apiKey falls back to the
// DEVIN_API_KEY environment variable.
func NewClient(apiKey string) (*Client, error) {
	if apiKey == "" {
		apiKey = os.Getenv("DEVIN_API_KEY")
	}
	if apiKey == "" {
		return nil, fmt.Errorf("DEVIN_API_KEY not set")
	}
	return &Client{
		BaseURL:      DefaultBaseURL,
		HTTPClient:   &http.Client{Timeout: 30 * time.Second},
		PollInterval: DefaultPollInterval,
		Logf:         func(string, ...interface{}) {},
		apiKey:       apiKey,
	}, nil
}

// CreateSessionRequest is the body for session creation. Schema fields
// are merged directly into the request body, the shape the API expects
// for structured output.
type CreateSessionRequest struct {
	Prompt     string
	Title      string
	Idempotent bool
	Schema     map[string]interface{}
}

// Session is the response from session creation.
type Session struct {
	SessionID string `json:"session_id"`
	URL       string `json:"url"`
}

// SessionDetails is the polled session state.
type SessionDetails struct {
	SessionID        string                 `json:"session_id"`
	StatusEnum       string                 `json:"status_enum"`
	StructuredOutput map[string]interface{} `json:"structured_output"`
}

// PullRequest is a PR record from the enterprise endpoint.
type PullRequest struct {
	PRURL string `json:"pr_url"`
	State string `json:"state"`
}

// EnterpriseSession is the enterprise endpoint payload: post-session
// analysis plus the PRs the session opened.
type EnterpriseSession struct {
	SessionAnalysis map[string]interface{} `json:"session_analysis"`
	PRs             []PullRequest          `json:"prs"`
}

func (c *Client) do(ctx context.Context, method, path string, body, out interface{}) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return fmt.Errorf("%s %s: status %d: %s", method, path, resp.StatusCode, strings.TrimSpace(string(data)))
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("decode %s response: %w", path, err)
		}
	}
	return nil
}

// CreateSession creates a new agent session and returns its ID and URL.
func (c *Client) CreateSession(ctx context.Context, req CreateSessionRequest) (*Session, error) {
	body := map[string]interface{}{
		"prompt":     req.Prompt,
		"title":      req.Title,
		"idempotent": req.Idempotent,
	}
	if body["title"] == "" {
		body["title"] = "Orchestrated Session"
	}
	for k, v := range req.Schema {
		body[k] = v
	}

	var s Session
	if err := c.do(ctx, http.MethodPost, "/v1/sessions", body, &s); err != nil {
		return nil, err
	}
	c.Logf("session created: %s (%s)", s.SessionID, s.URL)
	return &s, nil
}

// GetSession returns the current session details.
func (c *Client) GetSession(ctx context.Context, sessionID string) (*SessionDetails, error) {
	var d SessionDetails
	if err := c.do(ctx, http.MethodGet, "/v1/sessions/"+sessionID, nil, &d); err != nil {
		return nil, err
	}
	return &d, nil
}

// SendMessage posts a message into a running session.
func (c *Client) SendMessage(ctx context.Context, sessionID, message string) error {
	body := map[string]string{"message": message}
	return c.do(ctx, http.MethodPost, "/v1/sessions/"+sessionID+"/message", body, nil)
}

// Sleep sends the "sleep" message that ends the session and triggers
// analysis generation.
func (c *Client) Sleep(ctx context.Context, sessionID string) error {
	if err := c.SendMessage(ctx, sessionID, "sleep"); err != nil {
		return err
	}
	c.Logf("sleep message sent, session ending and analysis triggered")
	return nil
}

// GetEnterpriseSession returns the enterprise view of a session:
// analysis plus opened PRs.
func (c *Client) GetEnterpriseSession(ctx context.Context, sessionID string) (*EnterpriseSession, error) {
	var e EnterpriseSession
	if err := c.do(ctx, http.MethodGet, "/beta/v2/enterprise/sessions/"+sessionID, nil, &e); err != nil {
		return nil, err
	}
	return &e, nil
}

// SessionURL derives the app URL for a session ID.
func SessionURL(sessionID string) string {
	return "https://app.devin.ai/sessions/" + strings.TrimPrefix(sessionID, "devin-")
}

var statusLabels = map[string]string{
	StatusPlanning: "planning phase",
	StatusWorking:  "working on implementation",
	StatusBlocked:  "blocked, waiting for input",
	StatusFinished: "sleeping",
	StatusExpired:  "session expired",
}

func statusLabel(status string) string {
	if l, ok := statusLabels[status]; ok {
		return l
	}
	return status
}

// WaitForStatus polls the session until it reaches one of the target
// statuses, logging transitions. When trackOutput is set it also logs
// the first time structured output appears. Returns the final status.
func (c *Client) WaitForStatus(ctx context.Context, sessionID string, targets []string, trackOutput bool) (string, error) {
	start := time.Now()
	previous := ""
	sawOutput := false

	interval := c.PollInterval
	if interval <= 0 {
		interval = DefaultPollInterval
	}

	for {
		details, err := c.GetSession(ctx, sessionID)
		if err != nil {
			return "", err
		}
		status := details.StatusEnum
		elapsed := int(time.Since(start).Seconds())

		if status != previous {
			if previous == "" {
				c.Logf("initial status: %s (at %ds)", statusLabel(status), elapsed)
			} else if previous == StatusPlanning && status == StatusWorking {
				c.Logf("planning complete, now working on implementation (at %ds)", elapsed)
			} else if previous == StatusWorking && status == StatusBlocked {
				c.Logf("work phase complete, session is now blocked (at %ds)", elapsed)
			} else {
				c.Logf("status changed: %s -> %s (at %ds)", statusLabel(previous), statusLabel(status), elapsed)
			}
			previous = status
		}

		if trackOutput && !sawOutput && len(details.StructuredOutput) > 0 {
			sawOutput = true
			c.Logf("structured output first appeared at %ds (status %s)", elapsed, status)
		}

		for _, target := range targets {
			if status == target {
				return status, nil
			}
		}

		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(interval):
		}
	}
}

// WaitForAnalysis polls the enterprise endpoint until the session
// analysis is available.
func (c *Client) WaitForAnalysis(ctx context.Context, sessionID string) (map[string]interface{}, error) {
	start := time.Now()
	interval := c.PollInterval
	if interval <= 0 {
		interval = DefaultPollInterval
	}

	for {
		es, err := c.GetEnterpriseSession(ctx, sessionID)
		if err != nil {
			return nil, err
		}
		if len(es.SessionAnalysis) > 0 {
			c.Logf("analysis available (elapsed: %ds)", int(time.Since(start).Seconds()))
			return es.SessionAnalysis, nil
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(interval):
		}
	}
}
