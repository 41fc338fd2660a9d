package orchestrator

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/taylor-curran/migration-orchestration/internal/devin"
	"github.com/taylor-curran/migration-orchestration/internal/plan"
	"github.com/taylor-curran/migration-orchestration/internal/report"
)

// fakeRunner records session requests and can mutate the plan file to
// simulate agents marking tasks complete.
type fakeRunner struct {
	mu       sync.Mutex
	requests []devin.CreateSessionRequest
	prs      map[string][]devin.PullRequest // keyed by task ID prefix of the title
	onRun    func(req devin.CreateSessionRequest)
}

func (f *fakeRunner) RunAndWaitForPR(ctx context.Context, req devin.CreateSessionRequest, maxWait time.Duration) (*devin.SessionResult, error) {
	f.mu.Lock()
	f.requests = append(f.requests, req)
	f.mu.Unlock()

	if f.onRun != nil {
		f.onRun(req)
	}

	taskID := strings.SplitN(req.Title, ":", 2)[0]
	return &devin.SessionResult{
		SessionID:  "devin-" + taskID,
		SessionURL: "https://app.devin.ai/sessions/" + taskID,
		Status:     devin.StatusBlocked,
		PRs:        f.prs[taskID],
	}, nil
}

func (f *fakeRunner) GenerateAnalysis(ctx context.Context, work *devin.WorkResult) (*devin.AnalysisResult, error) {
	return &devin.AnalysisResult{
		SessionID:  work.SessionID,
		SessionURL: work.SessionURL,
		Title:      work.Title,
		Analysis: map[string]interface{}{
			"issues":   []interface{}{},
			"timeline": []interface{}{map[string]interface{}{"event": "Completed migration"}},
		},
	}, nil
}

func (f *fakeRunner) titles() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	titles := make([]string, len(f.requests))
	for i, req := range f.requests {
		titles[i] = req.Title
	}
	return titles
}

type fakeMerger struct {
	mu    sync.Mutex
	waits [][]string
}

func (f *fakeMerger) WaitForMerges(ctx context.Context, prURLs []string, maxWait time.Duration) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.waits = append(f.waits, prURLs)
	return true, nil
}

const testPlanYAML = `name: cics-to-springboot
source_repo: acme/billing-cobol
target_repo: acme/billing-java
tasks:
  - id: setup_001
    title: Scaffold Spring Boot project
    status: complete
  - id: migrate_001
    title: Migrate billing batch job
    depends_on: [setup_001]
    estimated_hours: 6
  - id: migrate_002
    title: Migrate account lookup
    depends_on: [setup_001]
    estimated_hours: 8
  - id: validate_001
    title: Validate outputs
    depends_on: [migrate_001, migrate_002]
`

func writeTestPlan(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "migration_plan.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func newTestOrchestrator(t *testing.T, runner *fakeRunner, merger *fakeMerger, cfg Config) *Orchestrator {
	t.Helper()
	o := New(runner, merger, cfg)
	o.Out = &bytes.Buffer{}
	return o
}

func TestRun_SingleBatch(t *testing.T) {
	planPath := writeTestPlan(t, testPlanYAML)
	runner := &fakeRunner{
		prs: map[string][]devin.PullRequest{
			"migrate_001": {{PRURL: "https://github.com/acme/billing-java/pull/1", State: "open"}},
			"migrate_002": {{PRURL: "https://github.com/acme/billing-java/pull/2", State: "open"}},
		},
	}
	merger := &fakeMerger{}

	stateDir := t.TempDir()
	require.NoError(t, os.Chdir(stateDir))

	o := newTestOrchestrator(t, runner, merger, Config{
		PlanPath:    planPath,
		SingleBatch: true,
	})
	require.NoError(t, o.Run(context.Background()))

	titles := runner.titles()
	// Two migrate tasks in parallel, then compatibility, then verification.
	assert.Len(t, titles, 4)
	assert.Contains(t, titles, "migrate_001: Migrate billing batch job")
	assert.Contains(t, titles, "migrate_002: Migrate account lookup")
	assert.Contains(t, titles, "Ensure PR compatibility and integration")
	assert.Contains(t, titles, "Verify task completion status")

	// The batch's PRs were waited on.
	require.NotEmpty(t, merger.waits)
	assert.Contains(t, merger.waits[0], "https://github.com/acme/billing-java/pull/1")
	assert.Contains(t, merger.waits[0], "https://github.com/acme/billing-java/pull/2")

	// Parallel siblings appear in each task prompt.
	for _, req := range runner.requests {
		if strings.HasPrefix(req.Title, "migrate_001") {
			assert.Contains(t, req.Prompt, "migrate_002: Migrate account lookup")
			assert.Contains(t, req.Prompt, "Avoid file conflicts")
		}
	}

	assert.Equal(t, "completed", o.State.Status)
}

func TestRun_ArchivesSessionAnalyses(t *testing.T) {
	planPath := writeTestPlan(t, testPlanYAML)
	runner := &fakeRunner{}
	merger := &fakeMerger{}

	require.NoError(t, os.Chdir(t.TempDir()))

	artifactDir := t.TempDir()
	o := newTestOrchestrator(t, runner, merger, Config{
		PlanPath:    planPath,
		SingleBatch: true,
		SkipVerify:  true,
	})
	o.Artifacts = report.NewStore(artifactDir)
	out := &bytes.Buffer{}
	o.Out = out

	require.NoError(t, o.Run(context.Background()))

	// Each task session's analysis lands as an artifact set.
	for _, id := range []string{"devin-migrate_001", "devin-migrate_002"} {
		for _, prefix := range []string{"analysis-", "improvements-", "session-quick-stats-"} {
			path := filepath.Join(artifactDir, prefix+id+".md")
			if _, err := os.Stat(path); err != nil {
				t.Errorf("missing artifact %s: %v", path, err)
			}
		}
	}

	// The completion log carries the session status.
	assert.Contains(t, out.String(), "blocked")
}

func TestRun_CompletesWhenPlanDone(t *testing.T) {
	planPath := writeTestPlan(t, `name: done
tasks:
  - id: a
    title: Task A
    status: complete
`)
	runner := &fakeRunner{}
	o := newTestOrchestrator(t, runner, &fakeMerger{}, Config{PlanPath: planPath})

	require.NoError(t, os.Chdir(t.TempDir()))
	require.NoError(t, o.Run(context.Background()))
	assert.Empty(t, runner.titles(), "no sessions should run for a complete plan")
}

func TestRun_DryRun(t *testing.T) {
	planPath := writeTestPlan(t, testPlanYAML)
	runner := &fakeRunner{}
	o := newTestOrchestrator(t, runner, &fakeMerger{}, Config{
		PlanPath: planPath,
		DryRun:   true,
	})
	out := &bytes.Buffer{}
	o.Out = out

	require.NoError(t, os.Chdir(t.TempDir()))
	require.NoError(t, o.Run(context.Background()))

	assert.Empty(t, runner.titles(), "dry run must not start sessions")
	assert.Contains(t, out.String(), "migrate_001")
	assert.Contains(t, out.String(), "Dry run complete")
}

func TestRun_BlockedPlanFails(t *testing.T) {
	planPath := writeTestPlan(t, `name: stuck
tasks:
  - id: a
    title: Task A
    depends_on: [ghost]
`)
	o := newTestOrchestrator(t, &fakeRunner{}, &fakeMerger{}, Config{PlanPath: planPath})
	out := &bytes.Buffer{}
	o.Out = out

	require.NoError(t, os.Chdir(t.TempDir()))
	err := o.Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no tasks ready")
	assert.Contains(t, out.String(), "Blocked tasks")
	assert.Equal(t, "failed", o.State.Status)
}

func TestRun_IteratesUntilComplete(t *testing.T) {
	planPath := writeTestPlan(t, testPlanYAML)

	// Each task session marks its task complete in the plan file, the
	// way real sessions update the plan in the target repo.
	var mu sync.Mutex
	runner := &fakeRunner{}
	runner.onRun = func(req devin.CreateSessionRequest) {
		taskID := strings.SplitN(req.Title, ":", 2)[0]
		if !strings.HasPrefix(taskID, "migrate") && !strings.HasPrefix(taskID, "validate") {
			return
		}
		mu.Lock()
		defer mu.Unlock()
		p, err := plan.Load(planPath)
		if err != nil {
			panic(err)
		}
		if task := p.Task(taskID); task != nil {
			task.Status = plan.StatusComplete
		}
		if err := p.Save(planPath); err != nil {
			panic(err)
		}
	}

	o := newTestOrchestrator(t, runner, &fakeMerger{}, Config{
		PlanPath:   planPath,
		SkipVerify: true,
	})

	require.NoError(t, os.Chdir(t.TempDir()))
	require.NoError(t, o.Run(context.Background()))

	// Iteration 1 runs the two migrates, iteration 2 the validator,
	// iteration 3 sees a complete plan.
	titles := runner.titles()
	assert.Len(t, titles, 3)
	assert.Equal(t, "validate_001: Validate outputs", titles[2])
	assert.Equal(t, "completed", o.State.Status)
	assert.Equal(t, 3, o.State.Iteration)
}

func TestRun_RespectsMaxParallel(t *testing.T) {
	planPath := writeTestPlan(t, testPlanYAML)
	runner := &fakeRunner{}
	o := newTestOrchestrator(t, runner, &fakeMerger{}, Config{
		PlanPath:    planPath,
		MaxParallel: 1,
		SingleBatch: true,
		SkipVerify:  true,
	})

	require.NoError(t, os.Chdir(t.TempDir()))
	require.NoError(t, o.Run(context.Background()))

	titles := runner.titles()
	require.Len(t, titles, 1)
	assert.Equal(t, "migrate_001: Migrate billing batch job", titles[0])
}
