// Package analyzer detects parallel execution opportunities in a task
// dependency graph. It computes dependency levels, groups independent
// tasks, finds the critical path, and derives an execution plan with
// serial-vs-parallel timing statistics.
package analyzer

import (
	"fmt"
	"math"
	"sort"
)

// DefaultDuration is the estimated-hours value assumed for tasks that
// carry no estimate.
const DefaultDuration = 8.0

// Task is the input record for analysis. Only ID, DependsOn, and
// EstimatedHours participate; other plan fields are ignored here.
type Task struct {
	ID             string
	DependsOn      []string
	EstimatedHours float64
}

// CyclicDependencyError reports a dependency cycle. TaskID names a task
// on the cycle (the first one at which the cycle was observed).
type CyclicDependencyError struct {
	TaskID string
}

func (e *CyclicDependencyError) Error() string {
	return fmt.Sprintf("circular dependency detected involving task: %s", e.TaskID)
}

// Group is a set of tasks at the same dependency level with no
// dependency relationship between any pair, so they can run
// simultaneously.
type Group struct {
	Level         int                `json:"level"`
	TaskIDs       []string           `json:"task_ids"`
	EarliestStart float64            `json:"earliest_start"`
	MaxDuration   float64            `json:"max_duration"`
	TaskDurations map[string]float64 `json:"task_durations"`
}

// Size returns the number of tasks in the group.
func (g *Group) Size() int { return len(g.TaskIDs) }

// TimeSaved returns the hours saved by running the group in parallel
// instead of serially.
func (g *Group) TimeSaved() float64 {
	if g.Size() <= 1 {
		return 0
	}
	sum := 0.0
	for _, d := range g.TaskDurations {
		sum += d
	}
	return sum - g.MaxDuration
}

// ExecutionPlan is the complete parallelization analysis.
type ExecutionPlan struct {
	ParallelGroups       []Group  `json:"parallel_groups"`
	SerialTasks          []string `json:"serial_tasks"`
	CriticalPath         []string `json:"critical_path"`
	CriticalPathDuration float64  `json:"critical_path_duration"`
	TotalDurationSerial  float64  `json:"total_duration_serial"`
	// TotalDurationParallel assumes level-synchronized execution: each
	// level waits for its slowest task before the next level starts.
	TotalDurationParallel float64 `json:"total_duration_parallel"`
	MaxParallelism        int     `json:"max_parallelism"`
}

// TimeSaved returns the total hours saved through parallelization.
func (p *ExecutionPlan) TimeSaved() float64 {
	return p.TotalDurationSerial - p.TotalDurationParallel
}

// EfficiencyGain returns the percentage improvement from parallelization.
func (p *ExecutionPlan) EfficiencyGain() float64 {
	if p.TotalDurationSerial == 0 {
		return 0
	}
	return p.TimeSaved() / p.TotalDurationSerial * 100
}

// Analyzer analyzes a fixed task list. It holds no mutable state after
// construction, so one Analyzer may serve concurrent callers.
type Analyzer struct {
	order           []string // task IDs in first-occurrence input order
	tasks           map[string]Task
	defaultDuration float64
}

// Option configures an Analyzer.
type Option func(*Analyzer)

// WithDefaultDuration overrides the duration assumed for tasks without
// an estimate.
func WithDefaultDuration(hours float64) Option {
	return func(a *Analyzer) { a.defaultDuration = hours }
}

// New builds an Analyzer over the given tasks. Duplicate IDs are
// tolerated: the last occurrence wins, and iteration follows first
// occurrence so results are deterministic for a given input ordering.
// Dependencies on unknown task IDs are ignored during analysis.
func New(tasks []Task, opts ...Option) *Analyzer {
	a := &Analyzer{
		tasks:           make(map[string]Task, len(tasks)),
		defaultDuration: DefaultDuration,
	}
	for _, opt := range opts {
		opt(a)
	}
	for _, t := range tasks {
		if _, seen := a.tasks[t.ID]; !seen {
			a.order = append(a.order, t.ID)
		}
		a.tasks[t.ID] = t
	}
	return a
}

// TaskCount returns the number of distinct tasks.
func (a *Analyzer) TaskCount() int { return len(a.order) }

func (a *Analyzer) duration(taskID string) float64 {
	t := a.tasks[taskID]
	if t.EstimatedHours == 0 {
		return a.defaultDuration
	}
	return t.EstimatedHours
}

// Levels computes the dependency depth of every task. Level 0 tasks
// have no dependencies (or only dangling ones); a task's level is one
// more than the deepest of its known dependencies.
func (a *Analyzer) Levels() (map[string]int, error) {
	levels := make(map[string]int, len(a.order))
	visiting := make(map[string]bool)

	var level func(taskID string) (int, error)
	level = func(taskID string) (int, error) {
		if l, ok := levels[taskID]; ok {
			return l, nil
		}
		if visiting[taskID] {
			return 0, &CyclicDependencyError{TaskID: taskID}
		}
		visiting[taskID] = true
		defer delete(visiting, taskID)

		maxDep := -1
		for _, dep := range a.tasks[taskID].DependsOn {
			if _, ok := a.tasks[dep]; !ok {
				continue // dangling reference
			}
			dl, err := level(dep)
			if err != nil {
				return 0, err
			}
			if dl > maxDep {
				maxDep = dl
			}
		}
		levels[taskID] = maxDep + 1
		return levels[taskID], nil
	}

	for _, id := range a.order {
		if _, err := level(id); err != nil {
			return nil, err
		}
	}
	return levels, nil
}

// ParallelGroups finds groups of tasks that can run simultaneously.
// Tasks are bucketed by level, then greedily clustered within each
// level; only clusters of two or more tasks are reported. Clustering is
// first-fit in input order, so it is not guaranteed to be optimal, but
// it is deterministic and cheap.
func (a *Analyzer) ParallelGroups() ([]Group, error) {
	levels, err := a.Levels()
	if err != nil {
		return nil, err
	}

	byLevel := make(map[int][]string)
	for _, id := range a.order {
		l := levels[id]
		byLevel[l] = append(byLevel[l], id)
	}

	sorted := make([]int, 0, len(byLevel))
	for l := range byLevel {
		sorted = append(sorted, l)
	}
	sort.Ints(sorted)

	var groups []Group
	cumulative := 0.0

	for _, l := range sorted {
		taskIDs := byLevel[l]

		for _, cluster := range a.independentClusters(taskIDs) {
			if len(cluster) <= 1 {
				continue
			}
			durations := make(map[string]float64, len(cluster))
			maxDur := 0.0
			for _, id := range cluster {
				d := a.duration(id)
				durations[id] = d
				if d > maxDur {
					maxDur = d
				}
			}
			groups = append(groups, Group{
				Level:         l,
				TaskIDs:       cluster,
				EarliestStart: cumulative,
				MaxDuration:   maxDur,
				TaskDurations: durations,
			})
		}

		// The whole level gates the next one, grouped or not.
		levelDur := 0.0
		for _, id := range taskIDs {
			if d := a.duration(id); d > levelDur {
				levelDur = d
			}
		}
		cumulative += levelDur
	}

	return groups, nil
}

// independentClusters greedily partitions taskIDs into clusters with no
// dependency relationship between any two members. Each unused task
// seeds a cluster, then later tasks join the first cluster they fit.
func (a *Analyzer) independentClusters(taskIDs []string) [][]string {
	if len(taskIDs) == 0 {
		return nil
	}
	if len(taskIDs) == 1 {
		return [][]string{taskIDs}
	}

	var clusters [][]string
	used := make(map[string]bool, len(taskIDs))

	for _, id := range taskIDs {
		if used[id] {
			continue
		}
		cluster := []string{id}
		used[id] = true

		for _, other := range taskIDs {
			if used[other] {
				continue
			}
			fits := true
			for _, member := range cluster {
				if a.related(member, other) {
					fits = false
					break
				}
			}
			if fits {
				cluster = append(cluster, other)
				used[other] = true
			}
		}
		clusters = append(clusters, cluster)
	}
	return clusters
}

// related reports whether one task depends on the other, directly or
// transitively.
func (a *Analyzer) related(task1, task2 string) bool {
	for _, dep := range a.tasks[task1].DependsOn {
		if dep == task2 {
			return true
		}
	}
	for _, dep := range a.tasks[task2].DependsOn {
		if dep == task1 {
			return true
		}
	}
	return a.hasPath(task1, task2) || a.hasPath(task2, task1)
}

// hasPath walks the dependency edges from `from` via BFS looking for
// `to`. Dangling references are not traversed.
func (a *Analyzer) hasPath(from, to string) bool {
	visited := make(map[string]bool)
	queue := []string{from}

	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]

		if current == to {
			return true
		}
		if visited[current] {
			continue
		}
		visited[current] = true

		for _, dep := range a.tasks[current].DependsOn {
			if _, ok := a.tasks[dep]; ok {
				queue = append(queue, dep)
			}
		}
	}
	return false
}

// CriticalPath returns the longest weighted dependency chain and its
// total duration. Ties keep the first chain found in input order.
func (a *Analyzer) CriticalPath() ([]string, float64, error) {
	// The memoized walk below would recurse forever on a cycle.
	if _, err := a.Levels(); err != nil {
		return nil, 0, err
	}

	times := make(map[string]float64, len(a.order))
	paths := make(map[string][]string, len(a.order))

	var longest func(taskID string) (float64, []string)
	longest = func(taskID string) (float64, []string) {
		if t, ok := times[taskID]; ok {
			return t, paths[taskID]
		}

		duration := a.duration(taskID)
		maxDepTime := 0.0
		var maxDepPath []string

		for _, dep := range a.tasks[taskID].DependsOn {
			if _, ok := a.tasks[dep]; !ok {
				continue
			}
			depTime, depPath := longest(dep)
			if depTime > maxDepTime {
				maxDepTime = depTime
				maxDepPath = depPath
			}
		}

		times[taskID] = maxDepTime + duration
		paths[taskID] = append(append([]string{}, maxDepPath...), taskID)
		return times[taskID], paths[taskID]
	}

	maxTime := 0.0
	var critical []string
	for _, id := range a.order {
		t, path := longest(id)
		if t > maxTime {
			maxTime = t
			critical = path
		}
	}
	return critical, maxTime, nil
}

// ExecutionPlan generates the full parallelization analysis.
func (a *Analyzer) ExecutionPlan() (*ExecutionPlan, error) {
	groups, err := a.ParallelGroups()
	if err != nil {
		return nil, err
	}
	critical, criticalDur, err := a.CriticalPath()
	if err != nil {
		return nil, err
	}

	grouped := make(map[string]bool)
	for _, g := range groups {
		for _, id := range g.TaskIDs {
			grouped[id] = true
		}
	}
	var serial []string
	for _, id := range a.order {
		if !grouped[id] {
			serial = append(serial, id)
		}
	}

	totalSerial := 0.0
	for _, id := range a.order {
		totalSerial += a.duration(id)
	}

	levels, err := a.Levels()
	if err != nil {
		return nil, err
	}
	levelDurations := make(map[int]float64)
	for _, id := range a.order {
		d := a.duration(id)
		if d > levelDurations[levels[id]] {
			levelDurations[levels[id]] = d
		}
	}
	totalParallel := 0.0
	for _, d := range levelDurations {
		totalParallel += d
	}

	maxParallelism := 1
	for _, g := range groups {
		if g.Size() > maxParallelism {
			maxParallelism = g.Size()
		}
	}

	return &ExecutionPlan{
		ParallelGroups:        groups,
		SerialTasks:           serial,
		CriticalPath:          critical,
		CriticalPathDuration:  criticalDur,
		TotalDurationSerial:   totalSerial,
		TotalDurationParallel: totalParallel,
		MaxParallelism:        maxParallelism,
	}, nil
}

// Summary is the condensed analysis used by reports and CLI output.
type Summary struct {
	TotalTasks            int           `json:"total_tasks"`
	ParallelGroups        int           `json:"parallel_groups"`
	SerialTasks           int           `json:"serial_tasks"`
	ParallelizableTasks   int           `json:"parallelizable_tasks"`
	MaxParallelism        int           `json:"max_parallelism"`
	CriticalPathLength    int           `json:"critical_path_length"`
	CriticalPathDuration  float64       `json:"critical_path_duration"`
	TotalDurationSerial   float64       `json:"total_duration_serial"`
	TotalDurationParallel float64       `json:"total_duration_parallel"`
	TimeSaved             float64       `json:"time_saved"`
	EfficiencyGain        float64       `json:"efficiency_gain"`
	CriticalPath          []string      `json:"critical_path"`
	GroupDetail           []GroupDetail `json:"parallel_groups_detail"`
}

// GroupDetail is the per-group slice of a Summary.
type GroupDetail struct {
	Level       int      `json:"level"`
	Tasks       []string `json:"tasks"`
	Size        int      `json:"size"`
	MaxDuration float64  `json:"max_duration"`
	TimeSaved   float64  `json:"time_saved"`
}

// Summarize runs the full analysis and condenses it. EfficiencyGain is
// rounded to one decimal place.
func (a *Analyzer) Summarize() (*Summary, error) {
	plan, err := a.ExecutionPlan()
	if err != nil {
		return nil, err
	}

	s := &Summary{
		TotalTasks:            a.TaskCount(),
		ParallelGroups:        len(plan.ParallelGroups),
		SerialTasks:           len(plan.SerialTasks),
		ParallelizableTasks:   a.TaskCount() - len(plan.SerialTasks),
		MaxParallelism:        plan.MaxParallelism,
		CriticalPathLength:    len(plan.CriticalPath),
		CriticalPathDuration:  plan.CriticalPathDuration,
		TotalDurationSerial:   plan.TotalDurationSerial,
		TotalDurationParallel: plan.TotalDurationParallel,
		TimeSaved:             plan.TimeSaved(),
		EfficiencyGain:        math.Round(plan.EfficiencyGain()*10) / 10,
		CriticalPath:          plan.CriticalPath,
	}
	for _, g := range plan.ParallelGroups {
		s.GroupDetail = append(s.GroupDetail, GroupDetail{
			Level:       g.Level,
			Tasks:       g.TaskIDs,
			Size:        g.Size(),
			MaxDuration: g.MaxDuration,
			TimeSaved:   g.TimeSaved(),
		})
	}
	return s, nil
}
