// Package orchestrator drives the migration plan to completion. Each
// iteration loads the current plan state, picks the batch of ready
// tasks with the best parallelism, runs one agent session per task,
// reconciles the PRs they open, and verifies completion before the
// next iteration.
package orchestrator

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/taylor-curran/migration-orchestration/internal/analyzer"
	"github.com/taylor-curran/migration-orchestration/internal/devin"
	"github.com/taylor-curran/migration-orchestration/internal/plan"
	"github.com/taylor-curran/migration-orchestration/internal/prompt"
	"github.com/taylor-curran/migration-orchestration/internal/report"
	"github.com/taylor-curran/migration-orchestration/internal/state"
	"github.com/taylor-curran/migration-orchestration/internal/ui"
)

// SessionRunner runs one agent session to completion and reports the
// PRs it opened. *devin.Client satisfies it.
type SessionRunner interface {
	RunAndWaitForPR(ctx context.Context, req devin.CreateSessionRequest, maxWait time.Duration) (*devin.SessionResult, error)
}

// MergeWaiter waits for a set of PRs to merge. *github.Client
// satisfies it.
type MergeWaiter interface {
	WaitForMerges(ctx context.Context, prURLs []string, maxWait time.Duration) (bool, error)
}

// AnalysisGenerator ends a stopped session and collects its analysis.
// *devin.Client satisfies it. Runners that implement it get their task
// sessions analyzed and archived as artifacts.
type AnalysisGenerator interface {
	GenerateAnalysis(ctx context.Context, work *devin.WorkResult) (*devin.AnalysisResult, error)
}

// Config controls an orchestration run.
type Config struct {
	PlanPath      string
	RemotePlanURL string // when set, later iterations reload the plan from here
	MaxParallel   int    // 0 = no limit
	DryRun        bool
	SingleBatch   bool
	SkipVerify    bool

	TaskTemplate   string
	CompatTemplate string
	VerifyTemplate string

	TaskPRWait  time.Duration // per-task wait for a PR to appear
	BatchPRWait time.Duration // wait for compat/verify session PRs
	MergeWait   time.Duration // wait for the batch's PRs to merge
}

// Orchestrator executes the iteration loop.
type Orchestrator struct {
	Sessions  SessionRunner
	Merges    MergeWaiter
	Artifacts *report.Store
	Config    Config
	State     *state.RunState
	Out       io.Writer

	mu sync.Mutex
}

// New creates an Orchestrator with config defaults applied.
func New(sessions SessionRunner, merges MergeWaiter, cfg Config) *Orchestrator {
	if cfg.TaskPRWait == 0 {
		cfg.TaskPRWait = 10 * time.Minute
	}
	if cfg.BatchPRWait == 0 {
		cfg.BatchPRWait = 5 * time.Minute
	}
	if cfg.MergeWait == 0 {
		cfg.MergeWait = 60 * time.Minute
	}

	return &Orchestrator{
		Sessions: sessions,
		Merges:   merges,
		Config:   cfg,
		Out:      os.Stderr,
	}
}

func (o *Orchestrator) logf(format string, args ...interface{}) {
	fmt.Fprintf(o.Out, format+"\n", args...)
}

// loadPlan returns the current plan state. After the first iteration a
// remote URL takes priority so plan updates made by verification
// sessions are picked up.
func (o *Orchestrator) loadPlan(ctx context.Context, iteration int) (*plan.Plan, error) {
	if o.Config.RemotePlanURL != "" {
		p, err := plan.FetchRemote(ctx, o.Config.RemotePlanURL)
		if err == nil {
			return p, nil
		}
		if iteration > 1 {
			return nil, err
		}
		o.logf("  %s fetch remote plan: %v, using local", ui.Yellow("warning:"), err)
	}
	return plan.Load(o.Config.PlanPath)
}

// Run executes iterations until the plan is complete, a batch fails,
// or no task is ready.
func (o *Orchestrator) Run(ctx context.Context) error {
	mode := ""
	if o.Config.DryRun {
		mode = ui.Dim(" (dry run)")
	}
	o.logf("🎯 %s%s", ui.BoldCyan("Starting migration orchestrator"), mode)

	iteration := 0
	for {
		iteration++
		o.logf("\n%s", ui.Cyan(strings.Repeat("═", 60)))
		o.logf("📍 %s %d", ui.Bold("Iteration"), iteration)
		o.logf("%s", ui.Cyan(strings.Repeat("═", 60)))

		p, err := o.loadPlan(ctx, iteration)
		if err != nil {
			return fmt.Errorf("load plan: %w", err)
		}

		if o.State == nil {
			st, err := state.New("", o.Config.PlanPath, len(p.Tasks))
			if err != nil {
				return fmt.Errorf("init state: %w", err)
			}
			o.State = st
		}
		o.State.SetIteration(iteration)

		done, total := p.Progress()
		if total == 0 {
			return fmt.Errorf("plan has no tasks")
		}
		o.logf("📊 Progress: %d/%d tasks complete (%.1f%%)", done, total, float64(done)/float64(total)*100)

		if done == total {
			o.logf("\n🎉 %s", ui.BoldGreen("All tasks complete!"))
			o.State.SetStatus("completed")
			return nil
		}

		ready := p.Ready()
		if len(ready) == 0 {
			o.diagnoseBlocked(p)
			o.State.SetStatus("failed")
			return fmt.Errorf("no tasks ready but %d tasks incomplete", total-done)
		}

		batch := plan.SelectBatch(ready, o.Config.MaxParallel)
		o.logf("🚀 Executing batch of %d task(s): %s", len(batch), strings.Join(taskIDs(batch), ", "))
		if len(batch) > 1 {
			o.logParallelEfficiency(batch)
		}

		if o.Config.DryRun {
			for _, task := range batch {
				o.logf("  %s %s %s", ui.StatusIcon("pending"), ui.TaskPrefix(task.ID), task.Title)
			}
			o.logf("\n%s", ui.Dim("Dry run complete, no sessions started."))
			return nil
		}

		results, err := o.executeBatch(ctx, p, batch)
		if err != nil {
			o.State.SetStatus("failed")
			return fmt.Errorf("batch execution: %w", err)
		}

		prURLs := collectPRURLs(results)
		if len(prURLs) > 0 {
			compatPRs, err := o.runCompatibilityCheck(ctx, p, prURLs)
			if err != nil {
				o.logf("  %s compatibility check: %v", ui.Yellow("warning:"), err)
			}
			prURLs = append(prURLs, compatPRs...)

			o.logf("⏳ Waiting for %d PR(s) to merge...", len(prURLs))
			merged, err := o.Merges.WaitForMerges(ctx, prURLs, o.Config.MergeWait)
			if err != nil {
				return fmt.Errorf("wait for merges: %w", err)
			}
			if !merged {
				o.logf("  %s some PRs did not merge in time, continuing anyway", ui.Yellow("warning:"))
			}
		} else {
			o.logf("ℹ️  No PRs opened in this batch")
		}

		if !o.Config.SkipVerify {
			if err := o.runVerification(ctx, p); err != nil {
				o.logf("  %s completion verification: %v", ui.Yellow("warning:"), err)
			}
		}

		if o.Config.SingleBatch {
			o.logf("\n%s", ui.Dim("Single batch mode, stopping after one iteration."))
			o.State.SetStatus("completed")
			return nil
		}
	}
}

// diagnoseBlocked explains a stuck plan: incomplete tasks whose
// dependencies never completed.
func (o *Orchestrator) diagnoseBlocked(p *plan.Plan) {
	o.logf("")
	report.NewReporter(p, o.State).PrintBlockedDiagnosis(o.Out)
}

// logParallelEfficiency reports the time the batch saves over serial
// execution.
func (o *Orchestrator) logParallelEfficiency(batch []plan.Task) {
	summary, err := analyzer.New(plan.AnalyzerTasks(batch)).Summarize()
	if err != nil || summary.TimeSaved <= 0 {
		return
	}
	o.logf("⚡ Parallel execution saves %.1f hours (%.1f%% faster)", summary.TimeSaved, summary.EfficiencyGain)
}

// executeBatch runs one agent session per task concurrently and
// records each outcome in the run state.
func (o *Orchestrator) executeBatch(ctx context.Context, p *plan.Plan, batch []plan.Task) ([]*devin.SessionResult, error) {
	results := make([]*devin.SessionResult, len(batch))

	g, ctx := errgroup.WithContext(ctx)
	for i, task := range batch {
		i, task := i, task
		g.Go(func() error {
			result, err := o.runTask(ctx, p, task, batch)
			if err != nil {
				o.recordSession(task.ID, &state.SessionState{Status: state.StatusFailed})
				return fmt.Errorf("task %s: %w", task.ID, err)
			}
			results[i] = result
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

func (o *Orchestrator) runTask(ctx context.Context, p *plan.Plan, task plan.Task, batch []plan.Task) (*devin.SessionResult, error) {
	var siblings []prompt.ParallelTask
	for _, other := range batch {
		if other.ID != task.ID {
			siblings = append(siblings, prompt.ParallelTask{ID: other.ID, Title: other.Title})
		}
	}

	text, err := prompt.RenderTask(prompt.TaskData{
		TaskID:           task.ID,
		Title:            task.Title,
		Action:           task.Action,
		DefinitionOfDone: task.DefinitionOfDone,
		Validation:       task.ValidationMechanism,
		ParallelTasks:    siblings,
		TargetRepo:       p.TargetRepo,
		SourceRepo:       p.SourceRepo,
	}, o.Config.TaskTemplate)
	if err != nil {
		return nil, fmt.Errorf("render prompt: %w", err)
	}

	o.logf("🚀 Starting: %s %s", ui.TaskPrefix(task.ID), task.Title)
	started := time.Now()
	o.recordSession(task.ID, &state.SessionState{Status: state.StatusRunning, StartedAt: &started})

	result, err := o.Sessions.RunAndWaitForPR(ctx, devin.CreateSessionRequest{
		Prompt: text,
		Title:  sessionTitle(task),
	}, o.Config.TaskPRWait)
	if err != nil {
		return nil, err
	}
	result.TaskID = task.ID

	finished := time.Now()
	o.recordSession(task.ID, &state.SessionState{
		Status:     state.StatusCompleted,
		SessionID:  result.SessionID,
		SessionURL: result.SessionURL,
		PRs:        prURLs(result.PRs),
		StartedAt:  &started,
		FinishedAt: &finished,
	})
	o.logf("✅ Completed: %s %s %s", ui.TaskPrefix(task.ID), ui.SessionStatus(result.Status), ui.Dim(result.SessionURL))

	if o.Artifacts != nil {
		if _, err := o.Artifacts.SessionLink(result.SessionID, result.SessionURL, task.Title); err != nil {
			o.logf("  %s session artifact: %v", ui.Yellow("warning:"), err)
		}
		if _, err := o.Artifacts.PullRequests(result.SessionID, result.PRs); err != nil {
			o.logf("  %s PR artifact: %v", ui.Yellow("warning:"), err)
		}
		o.archiveAnalysis(ctx, result, task)
	}
	return result, nil
}

// archiveAnalysis sleeps the finished session, collects its analysis,
// and writes the per-session artifact set.
func (o *Orchestrator) archiveAnalysis(ctx context.Context, result *devin.SessionResult, task plan.Task) {
	gen, ok := o.Sessions.(AnalysisGenerator)
	if !ok {
		return
	}
	analysis, err := gen.GenerateAnalysis(ctx, &devin.WorkResult{
		SessionID:  result.SessionID,
		SessionURL: result.SessionURL,
		Status:     result.Status,
		Title:      sessionTitle(task),
	})
	if err != nil {
		o.logf("  %s session analysis: %v", ui.Yellow("warning:"), err)
		return
	}
	if _, err := o.Artifacts.SessionArtifacts(analysis); err != nil {
		o.logf("  %s analysis artifacts: %v", ui.Yellow("warning:"), err)
	}
}

// runCompatibilityCheck runs a session that reconciles the batch's PRs
// with each other. Returns any PRs that session opens itself.
func (o *Orchestrator) runCompatibilityCheck(ctx context.Context, p *plan.Plan, urls []string) ([]string, error) {
	text, err := prompt.RenderCompatibility(prompt.RepoData{
		TargetRepo: p.TargetRepo,
		SourceRepo: p.SourceRepo,
		PRURLs:     urls,
	}, o.Config.CompatTemplate)
	if err != nil {
		return nil, fmt.Errorf("render prompt: %w", err)
	}

	o.logf("🔧 Running PR compatibility analysis for %d PR(s)", len(urls))
	result, err := o.Sessions.RunAndWaitForPR(ctx, devin.CreateSessionRequest{
		Prompt: text,
		Title:  "Ensure PR compatibility and integration",
	}, o.Config.BatchPRWait)
	if err != nil {
		return nil, err
	}
	o.logf("✅ Compatibility check complete %s", ui.Dim(result.SessionURL))
	o.recordSession("pr_compatibility_check", &state.SessionState{
		Status:     state.StatusCompleted,
		SessionID:  result.SessionID,
		SessionURL: result.SessionURL,
		PRs:        prURLs(result.PRs),
	})
	return prURLs(result.PRs), nil
}

// runVerification runs the completion verification session and waits
// for its plan-update PR to merge.
func (o *Orchestrator) runVerification(ctx context.Context, p *plan.Plan) error {
	text, err := prompt.RenderVerification(prompt.RepoData{
		TargetRepo: p.TargetRepo,
		SourceRepo: p.SourceRepo,
	}, o.Config.VerifyTemplate)
	if err != nil {
		return fmt.Errorf("render prompt: %w", err)
	}

	o.logf("🔍 Verifying task completion status")
	result, err := o.Sessions.RunAndWaitForPR(ctx, devin.CreateSessionRequest{
		Prompt: text,
		Title:  "Verify task completion status",
	}, o.Config.BatchPRWait)
	if err != nil {
		return err
	}
	o.logf("✅ Verification complete %s", ui.Dim(result.SessionURL))
	o.recordSession("completion_verification", &state.SessionState{
		Status:     state.StatusCompleted,
		SessionID:  result.SessionID,
		SessionURL: result.SessionURL,
		PRs:        prURLs(result.PRs),
	})

	if urls := prURLs(result.PRs); len(urls) > 0 {
		merged, err := o.Merges.WaitForMerges(ctx, urls, o.Config.MergeWait)
		if err != nil {
			return err
		}
		if !merged {
			o.logf("  %s verification PR did not merge in time", ui.Yellow("warning:"))
		}
	}
	return nil
}

func (o *Orchestrator) recordSession(taskID string, ss *state.SessionState) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.State == nil {
		return
	}
	if err := o.State.UpdateSession(taskID, ss); err != nil {
		o.logf("  %s persist state: %v", ui.Yellow("warning:"), err)
	}
}

func sessionTitle(task plan.Task) string {
	title := task.Title
	if len(title) > 50 {
		title = title[:50]
	}
	return task.ID + ": " + title
}

func taskIDs(tasks []plan.Task) []string {
	ids := make([]string, len(tasks))
	for i, task := range tasks {
		ids[i] = task.ID
	}
	return ids
}

func prURLs(prs []devin.PullRequest) []string {
	var urls []string
	for _, pr := range prs {
		if pr.PRURL != "" {
			urls = append(urls, pr.PRURL)
		}
	}
	return urls
}

func collectPRURLs(results []*devin.SessionResult) []string {
	var urls []string
	for _, result := range results {
		if result != nil {
			urls = append(urls, prURLs(result.PRs)...)
		}
	}
	return urls
}
