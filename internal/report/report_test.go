package report

import (
	"bytes"
	"encoding/json"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/taylor-curran/migration-orchestration/internal/analyzer"
	"github.com/taylor-curran/migration-orchestration/internal/devin"
	"github.com/taylor-curran/migration-orchestration/internal/plan"
	"github.com/taylor-curran/migration-orchestration/internal/state"
)

func makePlan() *plan.Plan {
	return &plan.Plan{
		Name:       "cics-to-springboot",
		TargetRepo: "acme/billing-java",
		SourceRepo: "acme/billing-cobol",
		Tasks: []plan.Task{
			{ID: "setup_001", Title: "Scaffold Spring Boot project", Status: "complete"},
			{ID: "migrate_001", Title: "Migrate billing batch job", DependsOn: []string{"setup_001"}},
			{ID: "validate_001", Title: "Validate outputs", DependsOn: []string{"migrate_001"}},
		},
	}
}

func makeState(t *testing.T) *state.RunState {
	t.Helper()
	st, err := state.New(t.TempDir(), "migration_plan.yaml", 3)
	if err != nil {
		t.Fatalf("state.New: %v", err)
	}
	now := time.Now()
	st.UpdateSession("migrate_001", &state.SessionState{
		Status:     state.StatusRunning,
		SessionURL: "https://app.devin.ai/sessions/abc",
		StartedAt:  &now,
	})
	return st
}

func TestPrintStatus(t *testing.T) {
	rpt := NewReporter(makePlan(), makeState(t))

	var buf bytes.Buffer
	rpt.PrintStatus(&buf)
	output := buf.String()

	if !strings.Contains(output, "Cutover") {
		t.Error("expected output to contain 'Cutover'")
	}
	if !strings.Contains(output, "1 of 3 tasks complete") {
		t.Errorf("expected progress line, got:\n%s", output)
	}
	if !strings.Contains(output, "Migrate billing batch job") {
		t.Error("expected output to contain the running task title")
	}
	if !strings.Contains(output, "waiting on migrate_001") {
		t.Error("expected blocked task to show its dependency")
	}
}

func TestPrintBlockedDiagnosis(t *testing.T) {
	rpt := NewReporter(makePlan(), makeState(t))

	var buf bytes.Buffer
	rpt.PrintBlockedDiagnosis(&buf)
	output := buf.String()

	if !strings.Contains(output, "validate_001") {
		t.Error("expected blocked diagnosis to name validate_001")
	}
	if !strings.Contains(output, "migrate_001") {
		t.Error("expected the incomplete dependency to be listed")
	}
}

func TestReporterJSON(t *testing.T) {
	rpt := NewReporter(makePlan(), makeState(t))

	data, err := rpt.JSON()
	if err != nil {
		t.Fatalf("JSON: %v", err)
	}

	var out struct {
		Completed int `json:"completed"`
		Total     int `json:"total"`
		Tasks     []struct {
			TaskID string `json:"task_id"`
			Status string `json:"status"`
		} `json:"tasks"`
	}
	if err := json.Unmarshal(data, &out); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}

	if out.Completed != 1 || out.Total != 3 {
		t.Errorf("expected 1/3 complete, got %d/%d", out.Completed, out.Total)
	}
	statuses := make(map[string]string)
	for _, task := range out.Tasks {
		statuses[task.TaskID] = task.Status
	}
	if statuses["setup_001"] != "complete" {
		t.Errorf("expected setup_001 complete, got %s", statuses["setup_001"])
	}
	if statuses["migrate_001"] != "running" {
		t.Errorf("expected migrate_001 running, got %s", statuses["migrate_001"])
	}
}

func TestSummary_FailedTasks(t *testing.T) {
	st := makeState(t)
	st.SetStatus("failed")
	st.UpdateSession("validate_001", &state.SessionState{
		Status:     state.StatusFailed,
		SessionURL: "https://app.devin.ai/sessions/v1",
	})

	summary := NewReporter(makePlan(), st).Summary()
	if !strings.Contains(summary, "Failed tasks:") {
		t.Error("expected failed task section")
	}
	if !strings.Contains(summary, "validate_001") {
		t.Error("expected failed task ID in summary")
	}
}

func readArtifact(t *testing.T, path string) string {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read artifact: %v", err)
	}
	return string(data)
}

func TestTimelineArtifact(t *testing.T) {
	store := NewStore(t.TempDir())

	analysis := map[string]interface{}{
		"issues": []interface{}{
			map[string]interface{}{"impact": "high", "label": "Communication issue", "issue": "Agent stalled on unclear criteria"},
		},
		"timeline": []interface{}{
			map[string]interface{}{"title": "Setup environment", "description": "Cloned and configured the repo"},
			map[string]interface{}{"title": "Tests pass", "description": ""},
		},
	}

	path, err := store.Timeline("devin-abc", "https://app.devin.ai/sessions/abc", analysis)
	if err != nil {
		t.Fatalf("Timeline: %v", err)
	}
	content := readArtifact(t, path)

	if !strings.Contains(content, "Communication issue (high)") {
		t.Error("expected high impact issue heading")
	}
	if !strings.Contains(content, "**Setup environment**") {
		t.Error("expected timeline event")
	}
	if !strings.Contains(content, "View Full Session") {
		t.Error("expected session link footer")
	}
}

func TestTimelineArtifact_NoIssues(t *testing.T) {
	store := NewStore(t.TempDir())

	path, err := store.Timeline("devin-abc", "https://app.devin.ai/sessions/abc", map[string]interface{}{})
	if err != nil {
		t.Fatalf("Timeline: %v", err)
	}
	if !strings.Contains(readArtifact(t, path), "No issues detected") {
		t.Error("expected no-issues message")
	}
}

func TestImprovementsArtifact(t *testing.T) {
	store := NewStore(t.TempDir())

	analysis := map[string]interface{}{
		"suggested_prompt": map[string]interface{}{
			"original_prompt":  "migrate the job",
			"suggested_prompt": "migrate the job and list acceptance criteria",
			"feedback_items": []interface{}{
				map[string]interface{}{"summary": "Be explicit about validation", "details": "The agent guessed the expected output format"},
			},
		},
		"action_items": []interface{}{
			map[string]interface{}{"type": "machine_setup", "action_item": "Preinstall JDK 21", "issue_id": "1"},
		},
	}

	path, err := store.Improvements("devin-abc", analysis)
	if err != nil {
		t.Fatalf("Improvements: %v", err)
	}
	content := readArtifact(t, path)

	if !strings.Contains(content, "migrate the job and list acceptance criteria") {
		t.Error("expected improved prompt")
	}
	if !strings.Contains(content, "Be explicit about validation") {
		t.Error("expected feedback item")
	}
	if !strings.Contains(content, "Machine Setup") {
		t.Error("expected title-cased action item type")
	}
	if !strings.Contains(content, "(first issue)") {
		t.Error("expected ordinal issue reference")
	}
}

func TestImprovementsArtifact_Empty(t *testing.T) {
	store := NewStore(t.TempDir())

	path, err := store.Improvements("devin-abc", map[string]interface{}{})
	if err != nil {
		t.Fatalf("Improvements: %v", err)
	}
	if !strings.Contains(readArtifact(t, path), "No specific improvements identified") {
		t.Error("expected default message")
	}
}

func TestQuickStatsArtifact(t *testing.T) {
	store := NewStore(t.TempDir())

	analysis := map[string]interface{}{
		"issues":           []interface{}{map[string]interface{}{}},
		"timeline":         []interface{}{map[string]interface{}{}, map[string]interface{}{}},
		"suggested_prompt": map[string]interface{}{"suggested_prompt": "x"},
	}

	path, err := store.QuickStats("devin-abc", "https://app.devin.ai/sessions/abc", analysis, 90*time.Second, "migrate_001")
	if err != nil {
		t.Fatalf("QuickStats: %v", err)
	}
	content := readArtifact(t, path)

	if !strings.Contains(content, "**Issues Found**: 1") {
		t.Error("expected issue count")
	}
	if !strings.Contains(content, "**Timeline Events**: 2") {
		t.Error("expected timeline count")
	}
	if !strings.Contains(content, "**Has Suggested Prompt**: Yes") {
		t.Error("expected suggested prompt flag")
	}
	if !strings.Contains(content, "90.0 seconds") {
		t.Error("expected execution time")
	}
}

func TestStructuredOutputArtifact_SingleList(t *testing.T) {
	store := NewStore(t.TempDir())

	output := map[string]interface{}{
		"services": []interface{}{
			map[string]interface{}{"name": "billing", "status": "migrated"},
			map[string]interface{}{"name": "accounts", "status": "pending"},
		},
	}

	path, err := store.StructuredOutput("devin-abc", output)
	if err != nil {
		t.Fatalf("StructuredOutput: %v", err)
	}
	content := readArtifact(t, path)

	if !strings.Contains(path, "structured-output-services-devin-abc") {
		t.Errorf("expected list key in artifact name, got %s", path)
	}
	if !strings.Contains(content, "| 1 | billing | migrated |") {
		t.Errorf("expected indexed table row, got:\n%s", content)
	}
}

func TestStructuredOutputArtifact_KeyValue(t *testing.T) {
	store := NewStore(t.TempDir())

	output := map[string]interface{}{
		"services_migrated": float64(3),
		"notes":             map[string]interface{}{"reviewer": "pending"},
	}

	path, err := store.StructuredOutput("devin-abc", output)
	if err != nil {
		t.Fatalf("StructuredOutput: %v", err)
	}
	content := readArtifact(t, path)

	if !strings.Contains(content, "| services_migrated | 3 |") {
		t.Errorf("expected key-value row, got:\n%s", content)
	}
	if !strings.Contains(content, `{"reviewer":"pending"}`) {
		t.Error("expected complex value rendered as JSON")
	}
}

func TestStructuredOutputArtifact_Empty(t *testing.T) {
	store := NewStore(t.TempDir())

	path, err := store.StructuredOutput("devin-abc", nil)
	if err != nil {
		t.Fatalf("StructuredOutput: %v", err)
	}
	if path != "" {
		t.Errorf("expected no artifact for empty output, got %s", path)
	}
}

func TestSessionArtifacts(t *testing.T) {
	store := NewStore(t.TempDir())

	paths, err := store.SessionArtifacts(&devin.AnalysisResult{
		SessionID:  "devin-abc",
		SessionURL: "https://app.devin.ai/sessions/abc",
		Title:      "migrate_001: Migrate billing batch job",
		Analysis: map[string]interface{}{
			"issues":   []interface{}{},
			"timeline": []interface{}{map[string]interface{}{"event": "Completed migration"}},
		},
		StructuredOutput: map[string]interface{}{"status": "done"},
		Elapsed:          90 * time.Second,
	})
	if err != nil {
		t.Fatalf("SessionArtifacts: %v", err)
	}
	if len(paths) != 4 {
		t.Fatalf("expected 4 artifacts, got %d: %v", len(paths), paths)
	}
	if !strings.Contains(paths[0], "analysis-devin-abc") {
		t.Errorf("expected analysis artifact path, got %s", paths[0])
	}
	stats := readArtifact(t, paths[2])
	if !strings.Contains(stats, "migrate_001: Migrate billing batch job") {
		t.Error("expected session title in quick stats")
	}
}

func TestSessionArtifacts_NoStructuredOutput(t *testing.T) {
	store := NewStore(t.TempDir())

	paths, err := store.SessionArtifacts(&devin.AnalysisResult{
		SessionID: "devin-abc",
		Analysis:  map[string]interface{}{"issues": []interface{}{}},
	})
	if err != nil {
		t.Fatalf("SessionArtifacts: %v", err)
	}
	if len(paths) != 3 {
		t.Fatalf("expected 3 artifacts without structured output, got %d", len(paths))
	}
}

func TestPlanAnalysisArtifact(t *testing.T) {
	store := NewStore(t.TempDir())

	path, err := store.PlanAnalysis("CICS Cutover", &analyzer.Summary{
		TotalTasks:            4,
		ParallelGroups:        1,
		ParallelizableTasks:   2,
		MaxParallelism:        2,
		CriticalPathDuration:  14,
		TotalDurationSerial:   20,
		TotalDurationParallel: 14,
		TimeSaved:             6,
		EfficiencyGain:        30,
		CriticalPath:          []string{"setup_001", "migrate_002", "validate_001"},
		GroupDetail: []analyzer.GroupDetail{
			{Level: 1, Tasks: []string{"migrate_001", "migrate_002"}, Size: 2, MaxDuration: 8, TimeSaved: 6},
		},
	})
	if err != nil {
		t.Fatalf("PlanAnalysis: %v", err)
	}
	content := readArtifact(t, path)

	if !strings.Contains(content, "# 🔀 CICS Cutover — Parallelism Analysis") {
		t.Error("expected plan name in header")
	}
	if !strings.Contains(content, "2. `migrate_002`") {
		t.Error("expected ordered critical path")
	}
	if !strings.Contains(content, "| 1 | 1 | migrate_001, migrate_002 | 8.0h | 6.0h |") {
		t.Error("expected group table row")
	}
}

func TestIterationProgressArtifact(t *testing.T) {
	store := NewStore(t.TempDir())

	path, err := store.IterationProgress(
		[]string{"do the thing", "do the thing with tests"},
		[]string{"devin-a", "devin-b"},
		3,
	)
	if err != nil {
		t.Fatalf("IterationProgress: %v", err)
	}
	content := readArtifact(t, path)

	if !strings.Contains(content, "### 🎯 Initial Prompt") {
		t.Error("expected initial prompt section")
	}
	if !strings.Contains(content, "### 💡 Iteration 1 - Improved Prompt") {
		t.Error("expected improved prompt section")
	}
	if !strings.Contains(content, "https://app.devin.ai/sessions/a") {
		t.Error("expected session links")
	}
	if !strings.Contains(content, "Stopped early") {
		t.Error("expected early-stop status for 2 of 3 iterations")
	}
}

func TestPullRequestsArtifact(t *testing.T) {
	store := NewStore(t.TempDir())

	prs := []devin.PullRequest{
		{PRURL: "https://github.com/acme/billing-java/pull/7", State: "open"},
	}

	path, err := store.PullRequests("devin-abc", prs)
	if err != nil {
		t.Fatalf("PullRequests: %v", err)
	}
	content := readArtifact(t, path)

	if !strings.Contains(content, "PR #7") {
		t.Error("expected PR number heading")
	}
	if !strings.Contains(content, "**State:** open") {
		t.Error("expected PR state")
	}

	empty, err := store.PullRequests("devin-abc", nil)
	if err != nil {
		t.Fatalf("PullRequests empty: %v", err)
	}
	if empty != "" {
		t.Error("expected no artifact for empty PR list")
	}
}
