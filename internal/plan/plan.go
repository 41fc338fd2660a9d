// Package plan loads and queries migration plans: the ordered task list
// with dependency edges that drives the orchestration loop.
package plan

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/taylor-curran/migration-orchestration/internal/analyzer"
)

// StatusComplete marks a finished task. Anything else counts as not
// complete, matching the loose status vocabulary plans arrive with.
const StatusComplete = "complete"

// Task is a single migration work item.
type Task struct {
	ID                  string   `yaml:"id" json:"id"`
	Title               string   `yaml:"title" json:"title"`
	Status              string   `yaml:"status,omitempty" json:"status,omitempty"`
	DependsOn           []string `yaml:"depends_on,omitempty" json:"depends_on,omitempty"`
	EstimatedHours      float64  `yaml:"estimated_hours,omitempty" json:"estimated_hours,omitempty"`
	Action              string   `yaml:"action,omitempty" json:"action,omitempty"`
	DefinitionOfDone    string   `yaml:"definition_of_done,omitempty" json:"definition_of_done,omitempty"`
	ValidationMechanism string   `yaml:"validation_mechanism,omitempty" json:"validation_mechanism,omitempty"`
}

// Complete reports whether the task is done.
func (t Task) Complete() bool { return t.Status == StatusComplete }

// Plan is a full migration plan.
type Plan struct {
	Name       string `yaml:"name,omitempty" json:"name,omitempty"`
	SourceRepo string `yaml:"source_repo,omitempty" json:"source_repo,omitempty"`
	TargetRepo string `yaml:"target_repo,omitempty" json:"target_repo,omitempty"`
	Tasks      []Task `yaml:"tasks" json:"tasks"`
}

// Load reads a plan from a YAML or JSON file, chosen by extension.
func Load(path string) (*Plan, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read plan: %w", err)
	}
	return Parse(data, filepath.Ext(path))
}

// Parse decodes plan bytes. ext selects the codec (".json" for JSON,
// anything else is treated as YAML, which also accepts JSON input).
func Parse(data []byte, ext string) (*Plan, error) {
	var p Plan
	if strings.EqualFold(ext, ".json") {
		if err := json.Unmarshal(data, &p); err != nil {
			return nil, fmt.Errorf("parse plan: %w", err)
		}
	} else {
		if err := yaml.Unmarshal(data, &p); err != nil {
			return nil, fmt.Errorf("parse plan: %w", err)
		}
	}
	return &p, nil
}

// FetchRemote downloads a plan from a raw URL (typically
// raw.githubusercontent.com) so iterations after the first pick up
// status edits merged into the plan repository.
func FetchRemote(ctx context.Context, rawURL string) (*Plan, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch plan: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch plan: %s returned %d", rawURL, resp.StatusCode)
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read plan body: %w", err)
	}
	return Parse(data, filepath.Ext(rawURL))
}

// Save writes the plan back to a YAML or JSON file, chosen by extension.
func (p *Plan) Save(path string) error {
	var (
		data []byte
		err  error
	)
	if strings.EqualFold(filepath.Ext(path), ".json") {
		data, err = json.MarshalIndent(p, "", "  ")
	} else {
		data, err = yaml.Marshal(p)
	}
	if err != nil {
		return fmt.Errorf("marshal plan: %w", err)
	}
	return os.WriteFile(path, data, 0644)
}

// Task returns the task with the given ID, or nil.
func (p *Plan) Task(id string) *Task {
	for i := range p.Tasks {
		if p.Tasks[i].ID == id {
			return &p.Tasks[i]
		}
	}
	return nil
}

// Progress returns completed and total task counts.
func (p *Plan) Progress() (done, total int) {
	for _, t := range p.Tasks {
		if t.Complete() {
			done++
		}
	}
	return done, len(p.Tasks)
}

// Ready returns the incomplete tasks whose dependencies are all
// complete. Dependencies on unknown IDs never become complete, so a
// task referencing one stays blocked until the plan is fixed.
func (p *Plan) Ready() []Task {
	status := make(map[string]string, len(p.Tasks))
	for _, t := range p.Tasks {
		status[t.ID] = t.Status
	}

	var ready []Task
	for _, t := range p.Tasks {
		if t.Complete() {
			continue
		}
		blocked := false
		for _, dep := range t.DependsOn {
			if status[dep] != StatusComplete {
				blocked = true
				break
			}
		}
		if !blocked {
			ready = append(ready, t)
		}
	}
	return ready
}

// Blocked returns incomplete tasks paired with their incomplete
// dependencies, for diagnosing a stalled plan.
func (p *Plan) Blocked() map[string][]string {
	status := make(map[string]string, len(p.Tasks))
	for _, t := range p.Tasks {
		status[t.ID] = t.Status
	}

	blocked := make(map[string][]string)
	for _, t := range p.Tasks {
		if t.Complete() {
			continue
		}
		var waiting []string
		for _, dep := range t.DependsOn {
			if _, known := status[dep]; known && status[dep] != StatusComplete {
				waiting = append(waiting, dep)
			}
		}
		if len(waiting) > 0 {
			blocked[t.ID] = waiting
		}
	}
	return blocked
}

// AnalyzerTasks converts plan tasks to analyzer inputs.
func AnalyzerTasks(tasks []Task) []analyzer.Task {
	out := make([]analyzer.Task, len(tasks))
	for i, t := range tasks {
		out[i] = analyzer.Task{
			ID:             t.ID,
			DependsOn:      t.DependsOn,
			EstimatedHours: t.EstimatedHours,
		}
	}
	return out
}

// SelectBatch picks the tasks to run concurrently from the ready set:
// the first parallel group the analyzer finds, truncated to maxParallel
// (0 = no limit). When the analyzer finds no group (or errors on a
// malformed ready set), the first ready task runs alone.
func SelectBatch(ready []Task, maxParallel int) []Task {
	if len(ready) == 0 {
		return nil
	}
	if len(ready) == 1 {
		return ready
	}

	an := analyzer.New(AnalyzerTasks(ready))
	groups, err := an.ParallelGroups()
	if err != nil || len(groups) == 0 {
		return ready[:1]
	}

	selected := groups[0].TaskIDs
	if maxParallel > 0 && len(selected) > maxParallel {
		selected = selected[:maxParallel]
	}
	keep := make(map[string]bool, len(selected))
	for _, id := range selected {
		keep[id] = true
	}

	var batch []Task
	for _, t := range ready {
		if keep[t.ID] {
			batch = append(batch, t)
		}
	}
	return batch
}

// Validate reports non-fatal plan problems: duplicate IDs and
// dependencies on unknown tasks. Cycles surface from the analyzer when
// the plan is analyzed, not here.
func (p *Plan) Validate() []string {
	var warnings []string
	seen := make(map[string]bool, len(p.Tasks))
	for _, t := range p.Tasks {
		if seen[t.ID] {
			warnings = append(warnings, fmt.Sprintf("duplicate task id %q", t.ID))
		}
		seen[t.ID] = true
	}
	for _, t := range p.Tasks {
		for _, dep := range t.DependsOn {
			if !seen[dep] {
				warnings = append(warnings, fmt.Sprintf("task %q depends on unknown task %q", t.ID, dep))
			}
		}
	}
	return warnings
}
