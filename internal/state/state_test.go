package state

import (
	"testing"
	"time"
)

func TestNewAndLoad(t *testing.T) {
	dir := t.TempDir()

	s, err := New(dir, "migration_plan.yaml", 5)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	if s.PlanPath != "migration_plan.yaml" {
		t.Errorf("expected plan path migration_plan.yaml, got %s", s.PlanPath)
	}
	if s.Status != "running" {
		t.Errorf("expected status running, got %s", s.Status)
	}
	if s.TotalTasks != 5 {
		t.Errorf("expected 5 total tasks, got %d", s.TotalTasks)
	}

	// Load from disk
	loaded, err := Load(dir)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if loaded.PlanPath != "migration_plan.yaml" {
		t.Errorf("loaded plan path mismatch: %s", loaded.PlanPath)
	}
	if loaded.TotalTasks != 5 {
		t.Errorf("loaded total tasks mismatch: %d", loaded.TotalTasks)
	}
}

func TestUpdateSession(t *testing.T) {
	dir := t.TempDir()

	s, err := New(dir, "migration_plan.yaml", 3)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	now := time.Now()
	ss := &SessionState{
		Status:     StatusRunning,
		SessionID:  "devin-abc123",
		SessionURL: "https://app.devin.ai/sessions/abc123",
		Iteration:  1,
		StartedAt:  &now,
	}

	if err := s.UpdateSession("migrate_001", ss); err != nil {
		t.Fatalf("UpdateSession: %v", err)
	}

	got := s.GetSession("migrate_001")
	if got == nil {
		t.Fatal("expected session, got nil")
	}
	if got.Status != StatusRunning {
		t.Errorf("expected running, got %s", got.Status)
	}
	if got.SessionID != "devin-abc123" {
		t.Errorf("expected session devin-abc123, got %s", got.SessionID)
	}

	// Survives a reload
	loaded, err := Load(dir)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if loaded.GetSession("migrate_001") == nil {
		t.Error("expected session after reload")
	}
}

func TestSessionURLs(t *testing.T) {
	dir := t.TempDir()

	s, err := New(dir, "migration_plan.yaml", 3)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	s.UpdateSession("a", &SessionState{Status: StatusCompleted, SessionURL: "https://app.devin.ai/sessions/a1"})
	s.UpdateSession("b", &SessionState{Status: StatusFailed})
	s.UpdateSession("c", &SessionState{Status: StatusCompleted, SessionURL: "https://app.devin.ai/sessions/c1"})

	urls := s.SessionURLs()
	if len(urls) != 2 {
		t.Errorf("expected 2 session URLs, got %d: %v", len(urls), urls)
	}
	if urls["a"] != "https://app.devin.ai/sessions/a1" {
		t.Errorf("unexpected URL for a: %s", urls["a"])
	}
}

func TestExists(t *testing.T) {
	dir := t.TempDir()

	if Exists(dir) {
		t.Error("expected Exists()=false before creation")
	}

	New(dir, "plan.yaml", 1)

	if !Exists(dir) {
		t.Error("expected Exists()=true after creation")
	}

	Clean(dir)

	if Exists(dir) {
		t.Error("expected Exists()=false after Clean()")
	}
}

func TestSetIterationAndStatus(t *testing.T) {
	dir := t.TempDir()

	s, err := New(dir, "plan.yaml", 10)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	s.SetIteration(2)
	s.SetStatus("completed")

	loaded, err := Load(dir)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if loaded.Iteration != 2 {
		t.Errorf("expected iteration 2, got %d", loaded.Iteration)
	}
	if loaded.Status != "completed" {
		t.Errorf("expected completed, got %s", loaded.Status)
	}
}
