// Package prompt renders the session prompts the orchestrator sends to
// the agent: per-task migration prompts with parallel-batch context,
// the merge compatibility prompt, and the completion verification
// prompt. Each has a default template that a file on disk can override.
package prompt

import (
	"bytes"
	"os"
	"text/template"
)

const defaultTaskTemplate = `# Task: {{.Title}}

**Task ID**: {{.TaskID}}
**Status**: Starting execution
{{- if .ParallelTasks}}

## Running in Parallel With:
{{- range .ParallelTasks}}
- {{.ID}}: {{.Title}}
{{- end}}

Avoid file conflicts with parallel tasks.
{{- end}}

## Your Mission
{{.Action}}

## Success Criteria
{{.DefinitionOfDone}}

## Validation
{{.Validation}}

## Important
- Complete ALL work for this task
- Create tests if this is a validator task
- Update the migration plan to mark this task as "complete" when done
- Create a PR with your changes

## Repository Context
**Target Repository**: {{.TargetRepo}}
**Source Repository**: {{.SourceRepo}}
`

const defaultCompatibilityTemplate = `# Ensure PR Compatibility

The following pull requests were opened by parallel migration tasks
against {{.TargetRepo}}:

{{range .PRURLs}}- {{.}}
{{end}}
Review them together. Resolve merge conflicts between the branches,
rebase where needed, and make sure the combined changes build and pass
tests. Open a PR with any fixes required for the set to merge cleanly.

## Repository Context
**Primary Focus - Target Repository**: {{.TargetRepo}}
This is where all merge conflicts should be resolved and where the migrated code lives.

**Context - Source Repository**: {{.SourceRepo}}
This is the original application being migrated from (for reference only).
`

const defaultVerificationTemplate = `# Verify Task Completion Status

Inspect the migration plan in {{.TargetRepo}} and verify the status of
every task against the actual state of the code:

1. For each task marked "complete", confirm the work really landed.
2. For tasks still incomplete, check whether recently merged PRs have
   in fact finished them.
3. Update the plan so the status fields match reality.
4. Open a PR with the corrected plan.

## Repository Context
**Target Repository**: {{.TargetRepo}}
**Source Repository**: {{.SourceRepo}}
`

// ParallelTask names a sibling task running in the same batch.
type ParallelTask struct {
	ID    string
	Title string
}

// TaskData holds the data used to render a per-task prompt.
type TaskData struct {
	TaskID           string
	Title            string
	Action           string
	DefinitionOfDone string
	Validation       string
	ParallelTasks    []ParallelTask
	TargetRepo       string
	SourceRepo       string
}

// RepoData holds the data for the batch-level prompts.
type RepoData struct {
	TargetRepo string
	SourceRepo string
	PRURLs     []string
}

func render(name, defaultTmpl, templatePath string, data interface{}) (string, error) {
	tmplStr := defaultTmpl
	if templatePath != "" {
		content, err := os.ReadFile(templatePath)
		if err != nil {
			return "", err
		}
		tmplStr = string(content)
	}

	tmpl, err := template.New(name).Parse(tmplStr)
	if err != nil {
		return "", err
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// RenderTask renders the prompt for a single migration task, using
// either a custom template file or the default.
func RenderTask(data TaskData, templatePath string) (string, error) {
	return render("task", defaultTaskTemplate, templatePath, data)
}

// RenderCompatibility renders the merge compatibility prompt for a
// batch of PRs.
func RenderCompatibility(data RepoData, templatePath string) (string, error) {
	return render("compatibility", defaultCompatibilityTemplate, templatePath, data)
}

// RenderVerification renders the completion verification prompt.
func RenderVerification(data RepoData, templatePath string) (string, error) {
	return render("verification", defaultVerificationTemplate, templatePath, data)
}
