package report

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/taylor-curran/migration-orchestration/internal/plan"
	"github.com/taylor-curran/migration-orchestration/internal/state"
	"github.com/taylor-curran/migration-orchestration/internal/ui"
)

// Reporter renders the live status of an orchestration run.
type Reporter struct {
	Plan      *plan.Plan
	State     *state.RunState
	StartTime time.Time
}

// NewReporter creates a Reporter over a plan and its run state.
func NewReporter(p *plan.Plan, st *state.RunState) *Reporter {
	return &Reporter{
		Plan:      p,
		State:     st,
		StartTime: st.StartedAt,
	}
}

// taskStatus derives a display status for a task from the plan status
// and the session record, session record first.
func (r *Reporter) taskStatus(task plan.Task) string {
	if ss := r.State.GetSession(task.ID); ss != nil {
		switch ss.Status {
		case state.StatusRunning:
			return "running"
		case state.StatusFailed:
			return "failed"
		case state.StatusSkipped:
			return "skipped"
		}
	}
	if task.Complete() {
		return "complete"
	}
	return "pending"
}

// PrintStatus writes a terminal-friendly status table.
func (r *Reporter) PrintStatus(w io.Writer) {
	elapsed := time.Since(r.StartTime).Truncate(time.Second)
	done, total := r.Plan.Progress()

	fmt.Fprintf(w, "%s — %s %d — %d of %d tasks complete %s\n\n",
		ui.BoldCyan("🔀 Cutover"),
		ui.Bold("Iteration"), r.State.Iteration,
		done, total,
		ui.Dim(fmt.Sprintf("[%s elapsed]", elapsed)))

	blocked := r.Plan.Blocked()
	for _, task := range r.Plan.Tasks {
		r.printTask(w, task, blocked[task.ID])
	}

	running := 0
	failed := 0
	for _, ss := range r.State.Sessions {
		switch ss.Status {
		case state.StatusRunning:
			running++
		case state.StatusFailed:
			failed++
		}
	}
	fmt.Fprintln(w)
	fmt.Fprintf(w, "  %s", ui.Green(fmt.Sprintf("%d complete", done)))
	if running > 0 {
		fmt.Fprintf(w, "  %s", ui.Cyan(fmt.Sprintf("%d running", running)))
	}
	if failed > 0 {
		fmt.Fprintf(w, "  %s", ui.Red(fmt.Sprintf("%d failed", failed)))
	}
	fmt.Fprintf(w, "  %s\n", ui.Dim(fmt.Sprintf("%d remaining", total-done)))
}

func (r *Reporter) printTask(w io.Writer, task plan.Task, blockedOn []string) {
	status := r.taskStatus(task)
	icon := ui.StatusIcon(status)

	title := task.Title
	if len(title) > 40 {
		title = title[:37] + "..."
	}

	detail := ""
	switch {
	case status == "running":
		if ss := r.State.GetSession(task.ID); ss != nil && ss.StartedAt != nil {
			detail = ui.Cyan(fmt.Sprintf("[running %s]", time.Since(*ss.StartedAt).Truncate(time.Second)))
		}
	case len(blockedOn) > 0:
		detail = ui.Dim("waiting on " + strings.Join(blockedOn, ", "))
	case status == "complete":
		if ss := r.State.GetSession(task.ID); ss != nil && ss.SessionURL != "" {
			detail = ui.Dim(ss.SessionURL)
		}
	}

	fmt.Fprintf(w, "  %s %s %-40s %s\n", icon, ui.TaskPrefix(task.ID), title, detail)
}

// PrintBlockedDiagnosis explains why no task is ready, listing the
// first few blocked tasks with their incomplete dependencies.
func (r *Reporter) PrintBlockedDiagnosis(w io.Writer) {
	blocked := r.Plan.Blocked()
	if len(blocked) == 0 {
		return
	}

	ids := make([]string, 0, len(blocked))
	for id := range blocked {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	if len(ids) > 5 {
		ids = ids[:5]
	}

	fmt.Fprintf(w, "%s\n", ui.BoldYellow("No tasks ready to execute. Blocked tasks:"))
	for _, id := range ids {
		fmt.Fprintf(w, "  %s %s %s\n",
			ui.StatusIcon("blocked"),
			ui.TaskPrefix(id),
			ui.Dim("waiting on "+strings.Join(blocked[id], ", ")))
	}
}

// JSON returns machine-readable status.
func (r *Reporter) JSON() ([]byte, error) {
	type taskEntry struct {
		TaskID     string   `json:"task_id"`
		Title      string   `json:"title"`
		Status     string   `json:"status"`
		SessionURL string   `json:"session_url,omitempty"`
		BlockedOn  []string `json:"blocked_on,omitempty"`
	}

	type output struct {
		PlanPath  string      `json:"plan_path"`
		Status    string      `json:"status"`
		Iteration int         `json:"iteration"`
		Completed int         `json:"completed"`
		Total     int         `json:"total"`
		Elapsed   string      `json:"elapsed"`
		Tasks     []taskEntry `json:"tasks"`
	}

	done, total := r.Plan.Progress()
	o := output{
		PlanPath:  r.State.PlanPath,
		Status:    r.State.Status,
		Iteration: r.State.Iteration,
		Completed: done,
		Total:     total,
		Elapsed:   time.Since(r.StartTime).Truncate(time.Second).String(),
	}

	blocked := r.Plan.Blocked()
	for _, task := range r.Plan.Tasks {
		entry := taskEntry{
			TaskID:    task.ID,
			Title:     task.Title,
			Status:    r.taskStatus(task),
			BlockedOn: blocked[task.ID],
		}
		if ss := r.State.GetSession(task.ID); ss != nil {
			entry.SessionURL = ss.SessionURL
		}
		o.Tasks = append(o.Tasks, entry)
	}

	return json.MarshalIndent(o, "", "  ")
}

// Summary returns a final run summary string.
func (r *Reporter) Summary() string {
	var b strings.Builder
	elapsed := time.Since(r.StartTime).Truncate(time.Second)
	done, total := r.Plan.Progress()

	statusText := ui.BoldGreen("completed")
	statusEmoji := "✅"
	if r.State.Status == "failed" {
		statusText = ui.BoldRed("failed")
		statusEmoji = "❌"
	}

	fmt.Fprintf(&b, "\n%s %s\n", statusEmoji, ui.BoldCyan("Cutover Run Complete"))
	fmt.Fprintf(&b, "%s\n", ui.Cyan("═════════════════════════"))
	fmt.Fprintf(&b, "Plan:        %s\n", ui.Dim(r.State.PlanPath))
	fmt.Fprintf(&b, "Duration:    %s\n", ui.Bold(elapsed))
	fmt.Fprintf(&b, "Iterations:  %d\n", r.State.Iteration)
	fmt.Fprintf(&b, "Tasks:       %s of %d total\n",
		ui.Green(fmt.Sprintf("%d complete", done)), total)
	fmt.Fprintf(&b, "Status:      %s\n", statusText)

	failedIDs := make([]string, 0)
	for taskID, ss := range r.State.Sessions {
		if ss.Status == state.StatusFailed {
			failedIDs = append(failedIDs, taskID)
		}
	}
	if len(failedIDs) > 0 {
		sort.Strings(failedIDs)
		fmt.Fprintf(&b, "\n%s\n", ui.BoldRed("Failed tasks:"))
		for _, taskID := range failedIDs {
			line := fmt.Sprintf("  %s %s", ui.Red("✗"), ui.BoldMagenta(taskID))
			if ss := r.State.GetSession(taskID); ss != nil && ss.SessionURL != "" {
				line += "  " + ui.Dim(ss.SessionURL)
			}
			fmt.Fprintln(&b, line)
		}
	}

	return b.String()
}
