package claude

import (
	"encoding/json"
	"strings"
	"testing"
)

func TestStripJSONFences_Clean(t *testing.T) {
	input := `{"edges": [], "summary": "no deps"}`
	got := stripJSONFences(input)
	if got != input {
		t.Errorf("expected unchanged, got %q", got)
	}
}

func TestStripJSONFences_WithJSONTag(t *testing.T) {
	input := "```json\n{\"edges\": []}\n```"
	got := stripJSONFences(input)
	if got != `{"edges": []}` {
		t.Errorf("expected clean JSON, got %q", got)
	}
}

func TestStripJSONFences_WithPlainFence(t *testing.T) {
	input := "```\n{\"edges\": []}\n```"
	got := stripJSONFences(input)
	if got != `{"edges": []}` {
		t.Errorf("expected clean JSON, got %q", got)
	}
}

func TestStripJSONFences_WithWhitespace(t *testing.T) {
	input := "  \n```json\n{\"edges\": []}\n```\n  "
	got := stripJSONFences(input)
	if got != `{"edges": []}` {
		t.Errorf("expected clean JSON, got %q", got)
	}
}

func TestBuildPrompt_ContainsTaskData(t *testing.T) {
	tasks := []TaskSummary{
		{ID: "setup_001", Title: "Scaffold Spring Boot project"},
		{ID: "migrate_001", Title: "Migrate billing batch job", DependsOn: []string{"setup_001"}},
	}
	prompt, err := buildPrompt(tasks)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(prompt, "setup_001") || !strings.Contains(prompt, "Scaffold Spring Boot project") {
		t.Error("prompt should contain task IDs and titles")
	}
	if !strings.Contains(prompt, "migrate_001") {
		t.Error("prompt should contain all tasks")
	}
	if !strings.Contains(prompt, "strong causal reason") {
		t.Error("prompt should contain dependency rules")
	}
}

func TestInferDepsResult_Unmarshal(t *testing.T) {
	raw := `{
		"edges": [
			{"blocked_id": "migrate_001", "blocker_id": "setup_001", "reason": "needs the project scaffold"}
		],
		"summary": "migrate_001 depends on setup_001"
	}`
	var result InferDepsResult
	if err := json.Unmarshal([]byte(raw), &result); err != nil {
		t.Fatalf("unmarshal error: %v", err)
	}
	if len(result.Edges) != 1 {
		t.Fatalf("expected 1 edge, got %d", len(result.Edges))
	}
	if result.Edges[0].BlockedID != "migrate_001" {
		t.Errorf("expected blocked_id=migrate_001, got %s", result.Edges[0].BlockedID)
	}
	if result.Edges[0].BlockerID != "setup_001" {
		t.Errorf("expected blocker_id=setup_001, got %s", result.Edges[0].BlockerID)
	}
}

func TestFilterEdges(t *testing.T) {
	tasks := []TaskSummary{
		{ID: "a"},
		{ID: "b", DependsOn: []string{"a"}},
		{ID: "c"},
	}
	edges := []DepEdge{
		{BlockedID: "c", BlockerID: "b"},  // kept
		{BlockedID: "b", BlockerID: "a"},  // already present
		{BlockedID: "a", BlockerID: "a"},  // self-dependency
		{BlockedID: "x", BlockerID: "a"},  // unknown blocked
		{BlockedID: "a", BlockerID: "c"},  // cycle: c -> b -> a accepted above
	}

	rejections := make(map[string]string)
	kept := FilterEdges(tasks, edges, func(edge DepEdge, reason string) {
		rejections[edge.BlockedID+"<-"+edge.BlockerID] = reason
	})

	if len(kept) != 1 {
		t.Fatalf("expected 1 kept edge, got %d: %v", len(kept), kept)
	}
	if kept[0].BlockedID != "c" || kept[0].BlockerID != "b" {
		t.Errorf("unexpected kept edge: %+v", kept[0])
	}
	if rejections["b<-a"] != "already present" {
		t.Errorf("expected duplicate rejection, got %q", rejections["b<-a"])
	}
	if rejections["a<-a"] != "self-dependency" {
		t.Errorf("expected self-dependency rejection, got %q", rejections["a<-a"])
	}
	if rejections["a<-c"] != "would create a cycle" {
		t.Errorf("expected cycle rejection, got %q", rejections["a<-c"])
	}
	if !strings.Contains(rejections["x<-a"], "unknown task") {
		t.Errorf("expected unknown-task rejection, got %q", rejections["x<-a"])
	}
}

func TestFilterEdges_NilReject(t *testing.T) {
	tasks := []TaskSummary{{ID: "a"}, {ID: "b"}}
	kept := FilterEdges(tasks, []DepEdge{{BlockedID: "b", BlockerID: "a"}}, nil)
	if len(kept) != 1 {
		t.Fatalf("expected 1 kept edge, got %d", len(kept))
	}
}
