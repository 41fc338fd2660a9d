// Package claude wraps the Anthropic SDK for the two LLM-assisted
// operations: inferring missing dependencies between migration tasks
// and narrating a finished orchestration run.
package claude

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

// TaskSummary is the minimal task info sent to Claude for dependency inference.
type TaskSummary struct {
	ID             string   `json:"id"`
	Title          string   `json:"title"`
	Action         string   `json:"action,omitempty"`
	EstimatedHours float64  `json:"estimated_hours,omitempty"`
	DependsOn      []string `json:"depends_on,omitempty"`
}

// DepEdge is a single inferred dependency.
type DepEdge struct {
	BlockedID string `json:"blocked_id"` // task that is blocked
	BlockerID string `json:"blocker_id"` // task that must finish first
	Reason    string `json:"reason"`
}

// InferDepsResult holds the full response from Claude.
type InferDepsResult struct {
	Edges   []DepEdge `json:"edges"`
	Summary string    `json:"summary"`
}

// Client wraps the Anthropic SDK for Claude API calls.
type Client struct {
	inner anthropic.Client
	model anthropic.Model
}

// NewClient creates a Claude client. apiKey defaults to ANTHROPIC_API_KEY env.
// model defaults to Claude Sonnet.
func NewClient(apiKey, model string) (*Client, error) {
	if apiKey == "" {
		apiKey = os.Getenv("ANTHROPIC_API_KEY")
	}
	if apiKey == "" {
		return nil, fmt.Errorf("ANTHROPIC_API_KEY not set")
	}

	inner := anthropic.NewClient(
		option.WithAPIKey(apiKey),
	)

	m := anthropic.Model("claude-sonnet-4-6")
	if model != "" {
		m = anthropic.Model(model)
	}

	return &Client{inner: inner, model: m}, nil
}

const inferDepsPrompt = `You are an expert on legacy system migrations. Given a list of tasks from a COBOL-to-Java migration plan, infer dependency edges that are missing from the plan.

Rules:
- Only add a dependency when there is a strong causal reason (task B cannot start until task A is complete).
- Prefer fewer edges — do not add transitive or speculative dependencies.
- Do not repeat dependencies already present in depends_on.
- Do not create cycles.
- Only use task IDs from the provided list.
- A task cannot depend on itself.

Return your answer as JSON with this exact structure:
{
  "edges": [
    {"blocked_id": "<task that is blocked>", "blocker_id": "<task that must finish first>", "reason": "<short explanation>"}
  ],
  "summary": "<one paragraph summary of the dependency structure>"
}

Return ONLY the JSON object. No markdown fences, no commentary outside the JSON.

Here are the tasks:
`

// buildPrompt constructs the full prompt for dependency inference.
func buildPrompt(tasks []TaskSummary) (string, error) {
	data, err := json.MarshalIndent(tasks, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal tasks: %w", err)
	}
	return inferDepsPrompt + string(data), nil
}

// InferDeps calls the Claude API to infer task dependencies.
func (c *Client) InferDeps(ctx context.Context, tasks []TaskSummary) (*InferDepsResult, error) {
	prompt, err := buildPrompt(tasks)
	if err != nil {
		return nil, err
	}

	resp, err := c.inner.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     c.model,
		MaxTokens: int64(4096),
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(prompt)),
		},
	})
	if err != nil {
		return nil, fmt.Errorf("claude API call: %w", err)
	}

	// Extract text from response
	var text string
	for _, block := range resp.Content {
		if block.Type == "text" {
			text += block.Text
		}
	}

	text = stripJSONFences(text)

	var result InferDepsResult
	if err := json.Unmarshal([]byte(text), &result); err != nil {
		return nil, fmt.Errorf("parse claude response: %w\nraw: %s", err, text)
	}

	return &result, nil
}

// FilterEdges drops edges that reference unknown task IDs, duplicate an
// existing dependency, point a task at itself, or would introduce a
// cycle given the existing edges plus those accepted so far. Each
// rejection is reported through reject.
func FilterEdges(tasks []TaskSummary, edges []DepEdge, reject func(edge DepEdge, reason string)) []DepEdge {
	if reject == nil {
		reject = func(DepEdge, string) {}
	}

	known := make(map[string]bool, len(tasks))
	deps := make(map[string]map[string]bool, len(tasks))
	for _, task := range tasks {
		known[task.ID] = true
		deps[task.ID] = make(map[string]bool)
		for _, dep := range task.DependsOn {
			deps[task.ID][dep] = true
		}
	}

	// reaches reports whether `to` is reachable from `from` via deps.
	var reaches func(from, to string, seen map[string]bool) bool
	reaches = func(from, to string, seen map[string]bool) bool {
		if from == to {
			return true
		}
		if seen[from] {
			return false
		}
		seen[from] = true
		for dep := range deps[from] {
			if reaches(dep, to, seen) {
				return true
			}
		}
		return false
	}

	var kept []DepEdge
	for _, edge := range edges {
		switch {
		case !known[edge.BlockedID]:
			reject(edge, fmt.Sprintf("unknown task %q", edge.BlockedID))
		case !known[edge.BlockerID]:
			reject(edge, fmt.Sprintf("unknown task %q", edge.BlockerID))
		case edge.BlockedID == edge.BlockerID:
			reject(edge, "self-dependency")
		case deps[edge.BlockedID][edge.BlockerID]:
			reject(edge, "already present")
		case reaches(edge.BlockerID, edge.BlockedID, make(map[string]bool)):
			reject(edge, "would create a cycle")
		default:
			deps[edge.BlockedID][edge.BlockerID] = true
			kept = append(kept, edge)
		}
	}
	return kept
}

const summariseRunPrompt = `You are a technical project manager summarising an automated migration orchestration run.

You will receive:
1. A structured run summary (plan, status, iterations, task outcomes).
2. Per-task agent session analyses.

Produce a concise narrative summary covering:
- What each task accomplished (or why it failed).
- Any notable issues, warnings, or unexpected behaviour from the sessions.
- An overall assessment of the migration's progress.

Keep it concise — aim for 1-2 sentences per task and a short overall paragraph.
Do not repeat raw analysis content verbatim. Focus on the human-readable takeaway.
`

// SummariseRun sends a run summary and per-task session analyses to
// Claude and returns a human-readable narrative of the run.
func (c *Client) SummariseRun(ctx context.Context, runSummary string, sessionAnalyses map[string]string) (string, error) {
	var userContent strings.Builder
	userContent.WriteString("## Run Summary\n\n")
	userContent.WriteString(runSummary)
	userContent.WriteString("\n\n## Session Analyses\n\n")

	for taskID, analysis := range sessionAnalyses {
		userContent.WriteString(fmt.Sprintf("### Task: %s\n```\n%s\n```\n\n", taskID, analysis))
	}

	resp, err := c.inner.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     c.model,
		MaxTokens: int64(4096),
		System: []anthropic.TextBlockParam{
			{Text: summariseRunPrompt},
		},
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(userContent.String())),
		},
	})
	if err != nil {
		return "", fmt.Errorf("claude API call: %w", err)
	}

	var text string
	for _, block := range resp.Content {
		if block.Type == "text" {
			text += block.Text
		}
	}

	return strings.TrimSpace(text), nil
}

// stripJSONFences removes markdown code fences that Claude sometimes adds.
func stripJSONFences(s string) string {
	s = strings.TrimSpace(s)
	// Remove ```json ... ``` or ``` ... ```
	if strings.HasPrefix(s, "```") {
		// Strip opening fence line
		if idx := strings.Index(s, "\n"); idx >= 0 {
			s = s[idx+1:]
		}
		// Strip closing fence
		if idx := strings.LastIndex(s, "```"); idx >= 0 {
			s = s[:idx]
		}
		s = strings.TrimSpace(s)
	}
	return s
}
