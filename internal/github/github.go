// Package github checks the merge state of GitHub pull requests opened
// by agent sessions.
package github

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"
)

// DefaultBaseURL is the GitHub REST API endpoint.
const DefaultBaseURL = "https://api.github.com"

// DefaultPollInterval is how often WaitForMerges re-checks open PRs.
const DefaultPollInterval = 30 * time.Second

// PRRef identifies a pull request.
type PRRef struct {
	Owner  string
	Repo   string
	Number int
}

func (r PRRef) String() string {
	return fmt.Sprintf("%s/%s#%d", r.Owner, r.Repo, r.Number)
}

// PRStatus is the merge-relevant state of a pull request.
type PRStatus struct {
	Ref       PRRef
	Title     string
	State     string
	Merged    bool
	Draft     bool
	CreatedAt time.Time
	MergedAt  time.Time
}

// Done reports whether the PR no longer needs waiting on: merged, or
// closed without merge.
func (s *PRStatus) Done() bool {
	return s.Merged || s.State == "closed"
}

// Client calls the GitHub API. The token is optional: unauthenticated
// requests work for public repos at a lower rate limit.
type Client struct {
	BaseURL      string
	HTTPClient   *http.Client
	PollInterval time.Duration
	Logf         func(format string, args ...interface{})

	token string
}

// NewClient creates a GitHub client. token falls back to the
// GITHUB_TOKEN environment variable and may be empty.
func NewClient(token string) *Client {
	if token == "" {
		token = os.Getenv("GITHUB_TOKEN")
	}
	return &Client{
		BaseURL:      DefaultBaseURL,
		HTTPClient:   &http.Client{Timeout: 30 * time.Second},
		PollInterval: DefaultPollInterval,
		Logf:         func(string, ...interface{}) {},
		token:        token,
	}
}

// ParsePRURL extracts owner, repo and PR number from a GitHub PR URL
// like https://github.com/owner/repo/pull/123.
func ParsePRURL(prURL string) (PRRef, error) {
	u, err := url.Parse(prURL)
	if err != nil {
		return PRRef{}, fmt.Errorf("parse PR URL %q: %w", prURL, err)
	}
	parts := strings.Split(strings.Trim(u.Path, "/"), "/")
	if len(parts) < 4 || parts[2] != "pull" {
		return PRRef{}, fmt.Errorf("not a PR URL: %q", prURL)
	}
	num, err := strconv.Atoi(parts[3])
	if err != nil {
		return PRRef{}, fmt.Errorf("bad PR number in %q: %w", prURL, err)
	}
	return PRRef{Owner: parts[0], Repo: parts[1], Number: num}, nil
}

// GetPR fetches the current status of a pull request.
func (c *Client) GetPR(ctx context.Context, ref PRRef) (*PRStatus, error) {
	path := fmt.Sprintf("/repos/%s/%s/pulls/%d", ref.Owner, ref.Repo, ref.Number)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.BaseURL+path, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/vnd.github.v3+json")
	if c.token != "" {
		req.Header.Set("Authorization", "token "+c.token)
	}

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("get %s: %w", ref, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return nil, fmt.Errorf("get %s: status %d: %s", ref, resp.StatusCode, strings.TrimSpace(string(data)))
	}

	var body struct {
		Title     string     `json:"title"`
		State     string     `json:"state"`
		Merged    bool       `json:"merged"`
		Draft     bool       `json:"draft"`
		CreatedAt time.Time  `json:"created_at"`
		MergedAt  *time.Time `json:"merged_at"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("decode PR %s: %w", ref, err)
	}

	status := &PRStatus{
		Ref:       ref,
		Title:     body.Title,
		State:     body.State,
		Merged:    body.Merged,
		Draft:     body.Draft,
		CreatedAt: body.CreatedAt,
	}
	if body.MergedAt != nil {
		status.MergedAt = *body.MergedAt
	}
	return status, nil
}

// WaitForMerges polls the given PR URLs until every one is merged or
// closed, or until maxWait elapses. It returns true when all PRs are
// done. A PR closed without merging counts as done but is logged as a
// warning. Unparseable URLs are skipped with a warning.
func (c *Client) WaitForMerges(ctx context.Context, prURLs []string, maxWait time.Duration) (bool, error) {
	var refs []PRRef
	seen := make(map[PRRef]bool)
	for _, raw := range prURLs {
		ref, err := ParsePRURL(raw)
		if err != nil {
			c.Logf("skipping unparseable PR URL: %v", err)
			continue
		}
		if seen[ref] {
			continue
		}
		seen[ref] = true
		refs = append(refs, ref)
	}
	if len(refs) == 0 {
		return true, nil
	}

	interval := c.PollInterval
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	deadline := time.Now().Add(maxWait)
	done := make(map[PRRef]bool)

	for {
		for _, ref := range refs {
			if done[ref] {
				continue
			}
			status, err := c.GetPR(ctx, ref)
			if err != nil {
				c.Logf("check %s: %v", ref, err)
				continue
			}
			if status.Merged {
				done[ref] = true
				c.Logf("%s merged", ref)
			} else if status.State == "closed" {
				done[ref] = true
				c.Logf("warning: %s closed without merging", ref)
			}
		}

		if len(done) == len(refs) {
			return true, nil
		}
		if time.Now().After(deadline) {
			c.Logf("%d of %d PRs still open after %s", len(refs)-len(done), len(refs), maxWait)
			return false, nil
		}
		select {
		case <-ctx.Done():
			return false, ctx.Err()
		case <-time.After(interval):
		}
	}
}
