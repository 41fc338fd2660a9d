// Package state persists orchestration run state under the .cutover
// directory so an interrupted run can be inspected and resumed.
package state

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

const stateDirName = ".cutover"
const stateFile = "state.json"

// SessionStatus represents the status of an agent session record.
type SessionStatus string

const (
	StatusPending   SessionStatus = "pending"
	StatusRunning   SessionStatus = "running"
	StatusCompleted SessionStatus = "completed"
	StatusFailed    SessionStatus = "failed"
	StatusSkipped   SessionStatus = "skipped"
)

// RunState is the persistent state of an orchestration run.
type RunState struct {
	PlanPath   string                   `json:"plan_path"`
	StartedAt  time.Time                `json:"started_at"`
	Status     string                   `json:"status"` // "running", "completed", "failed"
	Iteration  int                      `json:"iteration"`
	TotalTasks int                      `json:"total_tasks"`
	Sessions   map[string]*SessionState `json:"sessions"`

	mu   sync.Mutex `json:"-"`
	path string     `json:"-"`
}

// SessionState is the persistent record of a single agent session.
type SessionState struct {
	Status     SessionStatus `json:"status"`
	SessionID  string        `json:"session_id,omitempty"`
	SessionURL string        `json:"session_url,omitempty"`
	PRs        []string      `json:"prs,omitempty"`
	Iteration  int           `json:"iteration"`
	StartedAt  *time.Time    `json:"started_at,omitempty"`
	FinishedAt *time.Time    `json:"finished_at,omitempty"`
}

// New creates a new RunState rooted at dir and persists it. An empty
// dir means the current directory.
func New(dir, planPath string, totalTasks int) (*RunState, error) {
	stateDir := filepath.Join(dir, stateDirName)
	if err := os.MkdirAll(stateDir, 0755); err != nil {
		return nil, fmt.Errorf("create state dir: %w", err)
	}

	s := &RunState{
		PlanPath:   planPath,
		StartedAt:  time.Now(),
		Status:     "running",
		TotalTasks: totalTasks,
		Sessions:   make(map[string]*SessionState),
		path:       filepath.Join(stateDir, stateFile),
	}

	if err := s.Save(); err != nil {
		return nil, err
	}
	return s, nil
}

// Load reads existing state from disk.
func Load(dir string) (*RunState, error) {
	path := filepath.Join(dir, stateDirName, stateFile)
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read state: %w", err)
	}

	var s RunState
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("parse state: %w", err)
	}
	s.path = path
	return &s, nil
}

// Exists checks if a state file exists under dir.
func Exists(dir string) bool {
	_, err := os.Stat(filepath.Join(dir, stateDirName, stateFile))
	return err == nil
}

// Save persists the current state to disk.
func (s *RunState) Save() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal state: %w", err)
	}
	return os.WriteFile(s.path, data, 0644)
}

// SetIteration updates the current iteration and saves.
func (s *RunState) SetIteration(n int) error {
	s.Iteration = n
	return s.Save()
}

// SetStatus updates the overall run status and saves.
func (s *RunState) SetStatus(status string) error {
	s.Status = status
	return s.Save()
}

// UpdateSession updates a session record and saves.
func (s *RunState) UpdateSession(taskID string, ss *SessionState) error {
	s.mu.Lock()
	s.Sessions[taskID] = ss
	s.mu.Unlock()
	return s.Save()
}

// GetSession returns the session record for a task.
func (s *RunState) GetSession(taskID string) *SessionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.Sessions[taskID]
}

// SessionURLs returns the session URLs recorded so far, keyed by task.
func (s *RunState) SessionURLs() map[string]string {
	s.mu.Lock()
	defer s.mu.Unlock()

	urls := make(map[string]string)
	for taskID, ss := range s.Sessions {
		if ss.SessionURL != "" {
			urls[taskID] = ss.SessionURL
		}
	}
	return urls
}

// Clean removes the state directory under dir.
func Clean(dir string) error {
	return os.RemoveAll(filepath.Join(dir, stateDirName))
}
