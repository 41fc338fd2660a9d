package prompt

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestRenderTask_Default(t *testing.T) {
	data := TaskData{
		TaskID:           "migrate_001",
		Title:            "Migrate billing batch job",
		Action:           "Port the COBOL batch job to a Spring Batch job",
		DefinitionOfDone: "Job runs against the sample dataset",
		Validation:       "Compare output records with the COBOL run",
		ParallelTasks: []ParallelTask{
			{ID: "migrate_002", Title: "Migrate account lookup"},
		},
		TargetRepo: "acme/billing-java",
		SourceRepo: "acme/billing-cobol",
	}

	out, err := RenderTask(data, "")
	if err != nil {
		t.Fatalf("RenderTask failed: %v", err)
	}
	if !strings.Contains(out, "migrate_001") {
		t.Error("prompt should contain the task ID")
	}
	if !strings.Contains(out, "Port the COBOL batch job") {
		t.Error("prompt should contain the action")
	}
	if !strings.Contains(out, "migrate_002: Migrate account lookup") {
		t.Error("prompt should list parallel tasks")
	}
	if !strings.Contains(out, "Avoid file conflicts") {
		t.Error("prompt should warn about file conflicts")
	}
	if !strings.Contains(out, "acme/billing-java") {
		t.Error("prompt should contain the target repo")
	}
}

func TestRenderTask_NoParallelTasks(t *testing.T) {
	data := TaskData{
		TaskID: "migrate_001",
		Title:  "Migrate billing batch job",
		Action: "Port the job",
	}

	out, err := RenderTask(data, "")
	if err != nil {
		t.Fatalf("RenderTask failed: %v", err)
	}
	if strings.Contains(out, "Running in Parallel") {
		t.Error("solo task prompt should not mention parallel tasks")
	}
}

func TestRenderTask_CustomTemplate(t *testing.T) {
	path := filepath.Join(t.TempDir(), "task.tmpl")
	if err := os.WriteFile(path, []byte("do {{.TaskID}} now"), 0644); err != nil {
		t.Fatal(err)
	}

	out, err := RenderTask(TaskData{TaskID: "migrate_001"}, path)
	if err != nil {
		t.Fatalf("RenderTask failed: %v", err)
	}
	if out != "do migrate_001 now" {
		t.Errorf("unexpected rendering: %q", out)
	}
}

func TestRenderTask_MissingTemplateFile(t *testing.T) {
	_, err := RenderTask(TaskData{TaskID: "x"}, "/nonexistent/task.tmpl")
	if err == nil {
		t.Error("expected error for missing template file")
	}
}

func TestRenderCompatibility(t *testing.T) {
	data := RepoData{
		TargetRepo: "acme/billing-java",
		SourceRepo: "acme/billing-cobol",
		PRURLs: []string{
			"https://github.com/acme/billing-java/pull/1",
			"https://github.com/acme/billing-java/pull/2",
		},
	}

	out, err := RenderCompatibility(data, "")
	if err != nil {
		t.Fatalf("RenderCompatibility failed: %v", err)
	}
	if !strings.Contains(out, "- https://github.com/acme/billing-java/pull/1") {
		t.Error("prompt should list each PR URL")
	}
	if !strings.Contains(out, "merge conflicts") {
		t.Error("prompt should mention merge conflicts")
	}
}

func TestRenderVerification(t *testing.T) {
	out, err := RenderVerification(RepoData{
		TargetRepo: "acme/billing-java",
		SourceRepo: "acme/billing-cobol",
	}, "")
	if err != nil {
		t.Fatalf("RenderVerification failed: %v", err)
	}
	if !strings.Contains(out, "acme/billing-java") {
		t.Error("prompt should contain the target repo")
	}
	if !strings.Contains(out, `marked "complete"`) {
		t.Error("prompt should instruct status verification")
	}
}
