// Package report writes run artifacts and terminal status displays.
//
// Artifacts are markdown files saved under .cutover/artifacts/, one per
// session and kind: the session link, the analysis timeline, suggested
// improvements, quick stats, the structured output table, and the PRs a
// session opened.
package report

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/tidwall/gjson"

	"github.com/taylor-curran/migration-orchestration/internal/analyzer"
	"github.com/taylor-curran/migration-orchestration/internal/devin"
)

// DefaultArtifactDir is where artifacts land relative to the run root.
const DefaultArtifactDir = ".cutover/artifacts"

// Store writes markdown artifacts to a directory.
type Store struct {
	Dir string
}

// NewStore creates a Store rooted at dir, falling back to
// DefaultArtifactDir when dir is empty.
func NewStore(dir string) *Store {
	if dir == "" {
		dir = DefaultArtifactDir
	}
	return &Store{Dir: dir}
}

func (s *Store) write(key, content string) (string, error) {
	if err := os.MkdirAll(s.Dir, 0755); err != nil {
		return "", fmt.Errorf("create artifact dir: %w", err)
	}
	path := filepath.Join(s.Dir, key+".md")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		return "", fmt.Errorf("write artifact %s: %w", key, err)
	}
	return path, nil
}

// SessionLink writes the session link artifact and returns its path.
func (s *Store) SessionLink(sessionID, sessionURL, title string) (string, error) {
	if title == "" {
		title = "Untitled"
	}
	var b strings.Builder
	fmt.Fprintf(&b, "## Devin Session: %s\n\n", title)
	fmt.Fprintf(&b, "Session ID: `%s`\n\n", sessionID)
	fmt.Fprintf(&b, "[%s](%s)\n", sessionURL, sessionURL)
	return s.write("session-url-"+sessionID, b.String())
}

// Timeline writes the main analysis artifact: detected issues followed
// by the chronological event timeline.
func (s *Store) Timeline(sessionID, sessionURL string, analysis map[string]interface{}) (string, error) {
	doc, err := json.Marshal(analysis)
	if err != nil {
		return "", fmt.Errorf("marshal analysis: %w", err)
	}

	var b strings.Builder
	b.WriteString("# 📊 Analysis\n\n## 🐛 ISSUES DETECTED\n\n")

	issues := gjson.GetBytes(doc, "issues")
	if len(issues.Array()) > 0 {
		issues.ForEach(func(_, issue gjson.Result) bool {
			impact := issue.Get("impact").String()
			label := issue.Get("label").String()
			if label == "" {
				label = "Issue"
			}
			description := issue.Get("issue").String()
			if description == "" {
				description = "No description"
			}
			fmt.Fprintf(&b, "### %s %s (%s)\n\n%s\n\n", impactEmoji(impact), label, impactLabel(impact), description)
			return true
		})
	} else {
		b.WriteString("✅ **No issues detected**\n\n")
	}

	b.WriteString("## 📅 TIMELINE\n\n")
	gjson.GetBytes(doc, "timeline").ForEach(func(_, event gjson.Result) bool {
		title := event.Get("title").String()
		desc := event.Get("description").String()
		fmt.Fprintf(&b, "%s **%s**\n", timelineEmoji(title), title)
		if desc != "" {
			fmt.Fprintf(&b, "   > %s\n\n", desc)
		} else {
			b.WriteString("\n")
		}
		return true
	})

	fmt.Fprintf(&b, "\n---\n\n🔗 [View Full Session](%s)\n", sessionURL)
	return s.write("analysis-"+sessionID, b.String())
}

func impactEmoji(impact string) string {
	switch impact {
	case "high":
		return "🚨"
	case "medium":
		return "⚠️"
	case "low":
		return "🟡"
	}
	return "⚪"
}

func impactLabel(impact string) string {
	if impact == "" {
		return "unknown"
	}
	return impact
}

// timelineEmoji picks an emoji for a timeline event by keyword, most
// specific first. Events with no match get the neutral green dot.
func timelineEmoji(title string) string {
	lower := strings.ToLower(title)
	contains := func(words ...string) bool {
		for _, w := range words {
			if strings.Contains(lower, w) {
				return true
			}
		}
		return false
	}

	switch {
	case contains("error", "fail", "issue") && !contains("fixed", "resolved"):
		return "❌"
	case contains("unnecessary", "waste"):
		return "🐌"
	case contains("asks", "user"):
		return "👤"
	case contains("select", "choose", "plan"):
		return "🎯"
	case contains("analyze", "analysis", "research", "deep"):
		return "📚"
	case contains("knowledge"):
		return "✨"
	case contains("document", "guide"):
		return "📝"
	case contains("setup", "config"):
		return "⚙️"
	case contains("install"):
		return "⬇️"
	case contains("pr ", "pull request", "push"):
		return "📗"
	case contains("test") && contains("pass", "implement", "improve", "increase"):
		return "📋"
	case contains("success", "complete", "finish", "resolved", "fixed"):
		return "✅"
	}
	return "🟢"
}

// Improvements writes the prompt optimization and action item artifact.
func (s *Store) Improvements(sessionID string, analysis map[string]interface{}) (string, error) {
	doc, err := json.Marshal(analysis)
	if err != nil {
		return "", fmt.Errorf("marshal analysis: %w", err)
	}

	var b strings.Builder
	b.WriteString("# 🚀 Session Improvements\n\n")

	suggestion := gjson.GetBytes(doc, "suggested_prompt")
	hasSuggestion := suggestion.Exists() && suggestion.Type != gjson.Null
	if hasSuggestion {
		b.WriteString("## 💡 Prompt Optimization\n\n")
		if suggestion.IsObject() {
			fmt.Fprintf(&b, "### 📝 Original Prompt\n```\n%s\n```\n\n", suggestion.Get("original_prompt").String())
			fmt.Fprintf(&b, "### ✨ Improved Prompt\n```\n%s\n```\n\n", suggestion.Get("suggested_prompt").String())

			feedback := suggestion.Get("feedback_items")
			if len(feedback.Array()) > 0 {
				b.WriteString("### 🎯 Why These Changes?\n\n")
				feedback.ForEach(func(_, item gjson.Result) bool {
					fmt.Fprintf(&b, "🔸 **%s**\n", item.Get("summary").String())
					if details := item.Get("details").String(); details != "" {
						fmt.Fprintf(&b, "   _%s_\n\n", details)
					}
					return true
				})
			}
		} else {
			fmt.Fprintf(&b, "```\n%s\n```\n\n", suggestion.String())
		}
	}

	actionItems := gjson.GetBytes(doc, "action_items")
	if len(actionItems.Array()) > 0 {
		b.WriteString("\n## 🎬 Action Items\n\n")
		actionItems.ForEach(func(_, item gjson.Result) bool {
			itemType := item.Get("type").String()
			if itemType == "" {
				itemType = "general"
			}
			fmt.Fprintf(&b, "%s **%s**", actionEmoji(itemType), titleCase(itemType))
			if issueRef := item.Get("issue_id").String(); issueRef != "" {
				fmt.Fprintf(&b, " (%s)", issueOrdinal(issueRef))
			}
			fmt.Fprintf(&b, "\n\n> %s\n\n", item.Get("action_item").String())
			return true
		})
	}

	if !hasSuggestion && len(actionItems.Array()) == 0 {
		b.WriteString("*No specific improvements identified for this session.*\n")
	}

	return s.write("improvements-"+sessionID, b.String())
}

func actionEmoji(itemType string) string {
	switch itemType {
	case "machine_setup":
		return "🖥️"
	case "knowledge":
		return "🧠"
	case "external":
		return "📁"
	case "process":
		return "🔄"
	}
	return "📌"
}

func titleCase(s string) string {
	words := strings.Split(s, "_")
	for i, w := range words {
		if w != "" {
			words[i] = strings.ToUpper(w[:1]) + w[1:]
		}
	}
	return strings.Join(words, " ")
}

func issueOrdinal(issueRef string) string {
	switch issueRef {
	case "1":
		return "first issue"
	case "2":
		return "second issue"
	case "3":
		return "third issue"
	}
	return "issue " + issueRef
}

// QuickStats writes the quick stats summary artifact.
func (s *Store) QuickStats(sessionID, sessionURL string, analysis map[string]interface{}, executionTime time.Duration, title string) (string, error) {
	doc, err := json.Marshal(analysis)
	if err != nil {
		return "", fmt.Errorf("marshal analysis: %w", err)
	}
	if title == "" {
		title = "Untitled"
	}

	hasPrompt := "No"
	if sp := gjson.GetBytes(doc, "suggested_prompt"); sp.Exists() && sp.Type != gjson.Null {
		hasPrompt = "Yes"
	}
	status := "✅ Completed With Analysis"
	if len(analysis) == 0 {
		status = "⚠️ Completed (No Analysis)"
	}

	var b strings.Builder
	b.WriteString("# Session Quick Stats\n\n")
	fmt.Fprintf(&b, "**Session**: %s\n", title)
	fmt.Fprintf(&b, "**Session ID**: `%s`\n", sessionID)
	fmt.Fprintf(&b, "**Execution Time**: %.1f seconds\n", executionTime.Seconds())
	fmt.Fprintf(&b, "**Session URL**: [View Session](%s)\n\n", sessionURL)
	b.WriteString("## Quick Stats\n\n")
	fmt.Fprintf(&b, "- **Issues Found**: %d\n", len(gjson.GetBytes(doc, "issues").Array()))
	fmt.Fprintf(&b, "- **Action Items**: %d\n", len(gjson.GetBytes(doc, "action_items").Array()))
	fmt.Fprintf(&b, "- **Timeline Events**: %d\n", len(gjson.GetBytes(doc, "timeline").Array()))
	fmt.Fprintf(&b, "- **Has Suggested Prompt**: %s\n\n", hasPrompt)
	fmt.Fprintf(&b, "## Status\n\n%s\n", status)

	return s.write("session-quick-stats-"+sessionID, b.String())
}

// StructuredOutput writes the structured output table artifact. When
// the output holds exactly one list of objects, that list becomes an
// indexed table; otherwise everything is rendered as a key-value table.
// Returns "" with no error for empty output.
func (s *Store) StructuredOutput(sessionID string, output map[string]interface{}) (string, error) {
	if len(output) == 0 {
		return "", nil
	}

	doc, err := json.Marshal(output)
	if err != nil {
		return "", fmt.Errorf("marshal structured output: %w", err)
	}
	parsed := gjson.ParseBytes(doc)

	// Object keys come out sorted because encoding/json sorts map keys.
	var listKeys []string
	parsed.ForEach(func(key, value gjson.Result) bool {
		arr := value.Array()
		if value.IsArray() && len(arr) > 0 && arr[0].IsObject() {
			listKeys = append(listKeys, key.String())
		}
		return true
	})

	var b strings.Builder
	key := "structured-output-" + sessionID
	if len(listKeys) == 1 {
		listKey := listKeys[0]
		key = "structured-output-" + listKey + "-" + sessionID
		fmt.Fprintf(&b, "# Structured Output: %s\n\n", listKey)
		writeObjectTable(&b, parsed.Get(listKey))
	} else {
		b.WriteString("# Structured Output\n\n")
		b.WriteString("| Field | Value |\n|---|---|\n")
		parsed.ForEach(func(k, v gjson.Result) bool {
			fmt.Fprintf(&b, "| %s | %s |\n", k.String(), cellValue(v))
			return true
		})
	}

	return s.write(key, b.String())
}

// writeObjectTable renders a list of objects as an indexed markdown
// table. Columns follow first appearance order across the rows.
func writeObjectTable(b *strings.Builder, list gjson.Result) {
	var columns []string
	seen := make(map[string]bool)
	list.ForEach(func(_, item gjson.Result) bool {
		item.ForEach(func(k, _ gjson.Result) bool {
			if !seen[k.String()] {
				seen[k.String()] = true
				columns = append(columns, k.String())
			}
			return true
		})
		return true
	})

	b.WriteString("| # |")
	for _, c := range columns {
		fmt.Fprintf(b, " %s |", c)
	}
	b.WriteString("\n|---|")
	for range columns {
		b.WriteString("---|")
	}
	b.WriteString("\n")

	i := 0
	list.ForEach(func(_, item gjson.Result) bool {
		i++
		fmt.Fprintf(b, "| %d |", i)
		for _, c := range columns {
			fmt.Fprintf(b, " %s |", cellValue(item.Get(c)))
		}
		b.WriteString("\n")
		return true
	})
}

// cellValue renders a JSON value for a single table cell. Objects and
// arrays stay as compact JSON so the table rows survive.
func cellValue(v gjson.Result) string {
	var s string
	if v.IsObject() || v.IsArray() {
		s = v.Raw
	} else {
		s = v.String()
	}
	s = strings.ReplaceAll(s, "\n", " ")
	return strings.ReplaceAll(s, "|", "\\|")
}

// PullRequests writes the PR list artifact. Returns "" with no error
// when the session opened no PRs.
func (s *Store) PullRequests(sessionID string, prs []devin.PullRequest) (string, error) {
	if len(prs) == 0 {
		return "", nil
	}

	var b strings.Builder
	b.WriteString("## 🔧 Pull Requests Created\n\n")
	fmt.Fprintf(&b, "Session `%s` created %d PR(s):\n\n", sessionID, len(prs))

	for i, pr := range prs {
		number := "N/A"
		if idx := strings.LastIndex(pr.PRURL, "/pull/"); idx >= 0 {
			number = pr.PRURL[idx+len("/pull/"):]
		}
		fmt.Fprintf(&b, "### %d. PR #%s %s\n", i+1, number, prStateEmoji(pr.State))
		fmt.Fprintf(&b, "- **URL:** [%s](%s)\n", pr.PRURL, pr.PRURL)
		fmt.Fprintf(&b, "- **State:** %s\n\n", pr.State)
	}

	return s.write("session-prs-"+sessionID, b.String())
}

// SessionArtifacts writes the full artifact set for an analyzed
// session: timeline, improvements, quick stats, and the structured
// output table when the session produced one.
func (s *Store) SessionArtifacts(result *devin.AnalysisResult) ([]string, error) {
	var paths []string

	path, err := s.Timeline(result.SessionID, result.SessionURL, result.Analysis)
	if err != nil {
		return paths, err
	}
	paths = append(paths, path)

	path, err = s.Improvements(result.SessionID, result.Analysis)
	if err != nil {
		return paths, err
	}
	paths = append(paths, path)

	path, err = s.QuickStats(result.SessionID, result.SessionURL, result.Analysis, result.Elapsed, result.Title)
	if err != nil {
		return paths, err
	}
	paths = append(paths, path)

	path, err = s.StructuredOutput(result.SessionID, result.StructuredOutput)
	if err != nil {
		return paths, err
	}
	if path != "" {
		paths = append(paths, path)
	}
	return paths, nil
}

// PlanAnalysis writes the parallelism analysis of a plan as a report.
func (s *Store) PlanAnalysis(planName string, summary *analyzer.Summary) (string, error) {
	if planName == "" {
		planName = "Migration Plan"
	}

	var b strings.Builder
	fmt.Fprintf(&b, "# 🔀 %s — Parallelism Analysis\n\n", planName)
	b.WriteString("## Summary\n\n")
	fmt.Fprintf(&b, "- **Total Tasks**: %d\n", summary.TotalTasks)
	fmt.Fprintf(&b, "- **Parallel Groups**: %d\n", summary.ParallelGroups)
	fmt.Fprintf(&b, "- **Parallelizable Tasks**: %d\n", summary.ParallelizableTasks)
	fmt.Fprintf(&b, "- **Max Parallelism**: %d\n", summary.MaxParallelism)
	fmt.Fprintf(&b, "- **Serial Duration**: %.1fh\n", summary.TotalDurationSerial)
	fmt.Fprintf(&b, "- **Parallel Duration**: %.1fh\n", summary.TotalDurationParallel)
	fmt.Fprintf(&b, "- **Time Saved**: %.1fh (%.1f%% faster)\n\n", summary.TimeSaved, summary.EfficiencyGain)

	fmt.Fprintf(&b, "## ⚡ Critical Path (%.1fh)\n\n", summary.CriticalPathDuration)
	for i, id := range summary.CriticalPath {
		fmt.Fprintf(&b, "%d. `%s`\n", i+1, id)
	}
	b.WriteString("\n")

	if len(summary.GroupDetail) > 0 {
		b.WriteString("## 🌊 Parallel Groups\n\n")
		b.WriteString("| Group | Level | Tasks | Max Duration | Time Saved |\n")
		b.WriteString("|---|---|---|---|---|\n")
		for i, g := range summary.GroupDetail {
			fmt.Fprintf(&b, "| %d | %d | %s | %.1fh | %.1fh |\n",
				i+1, g.Level, strings.Join(g.Tasks, ", "), g.MaxDuration, g.TimeSaved)
		}
	}

	return s.write("plan-analysis", b.String())
}

// IterationProgress writes the prompt evolution artifact for a prompt
// refinement run.
func (s *Store) IterationProgress(promptHistory, sessionIDs []string, maxIterations int) (string, error) {
	unique := make(map[string]bool)
	for _, p := range promptHistory {
		unique[p] = true
	}

	var b strings.Builder
	b.WriteString("# 📈 Prompt Iteration Progress\n\n")
	fmt.Fprintf(&b, "**Total Iterations**: %d\n", len(sessionIDs))
	fmt.Fprintf(&b, "**Max Iterations**: %d\n", maxIterations)
	fmt.Fprintf(&b, "**Unique Prompts**: %d\n\n", len(unique))
	b.WriteString("## 🔄 Prompt Evolution\n\n")

	for i, p := range promptHistory {
		if i == 0 {
			b.WriteString("### 🎯 Initial Prompt\n")
		} else {
			fmt.Fprintf(&b, "### 💡 Iteration %d - Improved Prompt\n", i)
		}
		fmt.Fprintf(&b, "```\n%s\n```\n\n", p)
		if i < len(sessionIDs) {
			id := sessionIDs[i]
			fmt.Fprintf(&b, "**Session**: [%s](%s)\n\n", id, devin.SessionURL(id))
		}
	}

	stopReason := "⚠️ Stopped early - No further improvements suggested"
	if len(sessionIDs) == maxIterations {
		stopReason = "✅ Completed all iterations"
	}
	fmt.Fprintf(&b, "---\n*Status: %s*\n", stopReason)

	return s.write("prompt-iteration-progress", b.String())
}

func prStateEmoji(state string) string {
	switch strings.ToLower(state) {
	case "open":
		return "🟢"
	case "closed":
		return "🔴"
	case "merged":
		return "🟣"
	case "draft":
		return "⚪"
	}
	return "⚫"
}
