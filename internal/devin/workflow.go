package devin

import (
	"context"
	"fmt"
	"time"
)

// WorkResult is the outcome of the working phase of a session.
type WorkResult struct {
	SessionID  string
	SessionURL string
	Status     string
	Elapsed    time.Duration
	HasSchema  bool
	Title      string
}

// AnalysisResult is the outcome of the analysis phase.
type AnalysisResult struct {
	SessionID        string
	SessionURL       string
	Title            string
	Analysis         map[string]interface{}
	SuggestedPrompt  string
	StructuredOutput map[string]interface{}
	Elapsed          time.Duration
}

// SessionResult is the outcome of a session run for the orchestrator:
// where it ran and which PRs it opened.
type SessionResult struct {
	TaskID     string
	SessionID  string
	SessionURL string
	Status     string
	PRs        []PullRequest
}

// RunUntilBlocked creates a session and polls until it blocks, finishes,
// or expires.
func (c *Client) RunUntilBlocked(ctx context.Context, req CreateSessionRequest) (*WorkResult, error) {
	start := time.Now()

	c.Logf("starting session work phase")
	s, err := c.CreateSession(ctx, req)
	if err != nil {
		return nil, err
	}

	status, err := c.WaitForStatus(ctx, s.SessionID,
		[]string{StatusBlocked, StatusFinished, StatusExpired},
		req.Schema != nil)
	if err != nil {
		return nil, err
	}
	c.Logf("session reached %s state", status)

	return &WorkResult{
		SessionID:  s.SessionID,
		SessionURL: SessionURL(s.SessionID),
		Status:     status,
		Elapsed:    time.Since(start),
		HasSchema:  req.Schema != nil,
		Title:      req.Title,
	}, nil
}

// GenerateAnalysis ends a blocked session with a sleep message, waits
// for the sleeping state, then collects the analysis and (when a schema
// was supplied) the final structured output.
func (c *Client) GenerateAnalysis(ctx context.Context, work *WorkResult) (*AnalysisResult, error) {
	start := time.Now()
	c.Logf("starting analysis generation phase for %s (status %s)", work.SessionID, work.Status)

	switch work.Status {
	case StatusBlocked:
		if err := c.Sleep(ctx, work.SessionID); err != nil {
			return nil, err
		}
		status, err := c.WaitForStatus(ctx, work.SessionID, []string{StatusFinished, StatusExpired}, false)
		if err != nil {
			return nil, err
		}
		if status != StatusFinished {
			return nil, fmt.Errorf("session %s ended with status %s", work.SessionID, status)
		}
	case StatusFinished:
		// Already sleeping, go straight to the analysis.
	default:
		return nil, fmt.Errorf("unexpected session status %s", work.Status)
	}

	analysis, err := c.WaitForAnalysis(ctx, work.SessionID)
	if err != nil {
		return nil, err
	}

	var structured map[string]interface{}
	if work.HasSchema {
		details, err := c.GetSession(ctx, work.SessionID)
		if err != nil {
			return nil, err
		}
		structured = details.StructuredOutput
		if structured == nil {
			c.Logf("no structured output available at session end")
		}
	}

	return &AnalysisResult{
		SessionID:        work.SessionID,
		SessionURL:       work.SessionURL,
		Title:            work.Title,
		Analysis:         analysis,
		SuggestedPrompt:  suggestedPrompt(analysis),
		StructuredOutput: structured,
		Elapsed:          time.Since(start),
	}, nil
}

// RunWithAnalysis runs the full two-phase workflow: work until blocked,
// then sleep and collect the analysis.
func (c *Client) RunWithAnalysis(ctx context.Context, req CreateSessionRequest) (*AnalysisResult, error) {
	work, err := c.RunUntilBlocked(ctx, req)
	if err != nil {
		return nil, err
	}
	return c.GenerateAnalysis(ctx, work)
}

// RunAndWaitForPR runs a session until it stops working, then polls the
// enterprise endpoint for the PRs it opened, up to maxWait. A session
// that opens no PR within the window still returns successfully with an
// empty PR list.
func (c *Client) RunAndWaitForPR(ctx context.Context, req CreateSessionRequest, maxWait time.Duration) (*SessionResult, error) {
	work, err := c.RunUntilBlocked(ctx, req)
	if err != nil {
		return nil, err
	}

	result := &SessionResult{
		SessionID:  work.SessionID,
		SessionURL: work.SessionURL,
		Status:     work.Status,
	}

	interval := c.PollInterval
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	deadline := time.Now().Add(maxWait)

	for {
		es, err := c.GetEnterpriseSession(ctx, work.SessionID)
		if err != nil {
			c.Logf("check session PRs: %v", err)
		} else if len(es.PRs) > 0 {
			result.PRs = es.PRs
			return result, nil
		}

		if time.Now().After(deadline) {
			c.Logf("no PR appeared for session %s within %s", work.SessionID, maxWait)
			return result, nil
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(interval):
		}
	}
}

// MaxPromptIterations caps how many refinement rounds IteratePrompt
// will run.
const MaxPromptIterations = 10

// IterationResult records a prompt refinement run: the sessions that
// ran, their analyses, and every prompt version tried, initial prompt
// first.
type IterationResult struct {
	SessionIDs    []string
	PromptHistory []string
	Analyses      []*AnalysisResult
	MaxIterations int
}

// IteratePrompt repeatedly runs a session and replaces the prompt with
// the improved version the analysis suggests, stopping when no new
// suggestion comes back or the iteration limit is reached.
func (c *Client) IteratePrompt(ctx context.Context, initialPrompt, baseTitle string, iterations int) (*IterationResult, error) {
	if iterations > MaxPromptIterations {
		c.Logf("iterations capped at %d (requested %d)", MaxPromptIterations, iterations)
		iterations = MaxPromptIterations
	}
	if baseTitle == "" {
		baseTitle = "Prompt Iteration"
	}

	result := &IterationResult{
		PromptHistory: []string{initialPrompt},
		MaxIterations: iterations,
	}
	current := initialPrompt

	for i := 0; i < iterations; i++ {
		c.Logf("prompt iteration %d/%d", i+1, iterations)

		analysis, err := c.RunWithAnalysis(ctx, CreateSessionRequest{
			Prompt: current,
			Title:  fmt.Sprintf("%s - Iteration %d", baseTitle, i+1),
		})
		if err != nil {
			return result, err
		}
		result.SessionIDs = append(result.SessionIDs, analysis.SessionID)
		result.Analyses = append(result.Analyses, analysis)

		improved := analysis.SuggestedPrompt
		if improved == "" || improved == current {
			c.Logf("no improved prompt suggested, stopping iteration")
			break
		}
		current = improved
		result.PromptHistory = append(result.PromptHistory, improved)
	}

	return result, nil
}

// suggestedPrompt digs the improved prompt text out of the nested
// suggested_prompt structure the analysis endpoint returns.
func suggestedPrompt(analysis map[string]interface{}) string {
	nested, ok := analysis["suggested_prompt"].(map[string]interface{})
	if !ok {
		return ""
	}
	improved, _ := nested["suggested_prompt"].(string)
	return improved
}
