// Package viz renders a migration plan and its parallelism analysis as
// Mermaid, Graphviz DOT, or a standalone HTML page.
package viz

import (
	"fmt"
	"html/template"
	"strings"

	"github.com/taylor-curran/migration-orchestration/internal/analyzer"
	"github.com/taylor-curran/migration-orchestration/internal/plan"
)

// Category buckets a task for styling, inferred from its ID.
func Category(taskID string) string {
	id := strings.ToLower(taskID)
	switch {
	case strings.Contains(id, "setup") || strings.Contains(id, "pre_"):
		return "setup"
	case strings.Contains(id, "valid"):
		return "validator"
	case strings.Contains(id, "migrate") || strings.Contains(id, "mig_"):
		return "migration"
	}
	return "other"
}

// escapeLabel sanitises task text for a Mermaid node label.
func escapeLabel(text string) string {
	r := strings.NewReplacer(`"`, "'", "\n", " ", "(", "", ")", "")
	return r.Replace(text)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

// Mermaid renders the plan as a Mermaid graph. Tasks on the critical
// path get the critical class, tasks inside parallel groups get the
// parallel class and a subgraph per group.
func Mermaid(p *plan.Plan, summary *analyzer.Summary) string {
	var b strings.Builder
	b.WriteString("graph TD\n\n")
	b.WriteString("    %% Style definitions\n")
	b.WriteString("    classDef setup fill:#e1f5fe,stroke:#01579b,stroke-width:2px\n")
	b.WriteString("    classDef validator fill:#f0e7ff,stroke:#6a1b9a,stroke-width:2px\n")
	b.WriteString("    classDef migration fill:#c8e6c9,stroke:#2e7d32,stroke-width:2px\n")
	b.WriteString("    classDef other fill:#fff9c4,stroke:#f57f17,stroke-width:2px\n")
	b.WriteString("    classDef critical stroke:#ff0000,stroke-width:4px\n")
	b.WriteString("    classDef parallel fill:#fce4ec,stroke:#c2185b,stroke-width:3px,stroke-dasharray: 5 5\n\n")

	inParallel := make(map[string]bool)
	for _, group := range summary.GroupDetail {
		for _, id := range group.Tasks {
			inParallel[id] = true
		}
	}
	critical := make(map[string]bool)
	for _, id := range summary.CriticalPath {
		critical[id] = true
	}

	b.WriteString("    %% Task nodes\n")
	for _, task := range p.Tasks {
		hours := task.EstimatedHours
		if hours == 0 {
			hours = analyzer.DefaultDuration
		}
		label := fmt.Sprintf("%s\\n%s\\n%gh", task.ID, escapeLabel(truncate(task.Title, 40)), hours)
		fmt.Fprintf(&b, "    %s[\"%s\"]:::%s\n", task.ID, label, Category(task.ID))
		if critical[task.ID] {
			fmt.Fprintf(&b, "    class %s critical\n", task.ID)
		}
		if inParallel[task.ID] {
			fmt.Fprintf(&b, "    class %s parallel\n", task.ID)
		}
	}

	b.WriteString("\n    %% Dependencies\n")
	for _, task := range p.Tasks {
		for _, dep := range task.DependsOn {
			fmt.Fprintf(&b, "    %s --> %s\n", dep, task.ID)
		}
	}

	b.WriteString("\n    %% Parallel group annotations\n")
	for i, group := range summary.GroupDetail {
		fmt.Fprintf(&b, "    subgraph parallel_group_%d[Parallel Group - Level %d]\n", i, group.Level)
		b.WriteString("        direction LR\n")
		for _, id := range group.Tasks {
			fmt.Fprintf(&b, "        %s\n", id)
		}
		b.WriteString("    end\n")
		fmt.Fprintf(&b, "    style parallel_group_%d fill:#fce4ec,stroke:#c2185b,stroke-width:2px,stroke-dasharray: 5 5\n", i)
	}

	return b.String()
}

// DOT renders the plan as a Graphviz digraph with the critical path
// highlighted in red.
func DOT(p *plan.Plan, summary *analyzer.Summary) string {
	critical := make(map[string]bool)
	for _, id := range summary.CriticalPath {
		critical[id] = true
	}

	var b strings.Builder
	b.WriteString("digraph cutover {\n")
	b.WriteString("  rankdir=LR;\n")
	b.WriteString("  node [shape=box, style=rounded];\n\n")

	for _, task := range p.Tasks {
		attrs := fmt.Sprintf(`label="%s\n%s"`, task.ID, escapeLabel(task.Title))
		if critical[task.ID] {
			attrs += `, style="rounded,bold", color=red`
		}
		fmt.Fprintf(&b, "  %q [%s];\n", task.ID, attrs)
	}

	b.WriteString("\n")
	for _, task := range p.Tasks {
		for _, dep := range task.DependsOn {
			style := ""
			if critical[dep] && critical[task.ID] {
				style = ` [color=red, penwidth=2]`
			}
			fmt.Fprintf(&b, "  %q -> %q%s;\n", dep, task.ID, style)
		}
	}

	b.WriteString("}\n")
	return b.String()
}

const htmlTemplate = `<!DOCTYPE html>
<html lang="en">
<head>
    <meta charset="UTF-8">
    <meta name="viewport" content="width=device-width, initial-scale=1.0">
    <title>Migration Plan Visualization</title>
    <script src="https://cdn.jsdelivr.net/npm/mermaid/dist/mermaid.min.js"></script>
    <style>
        body { font-family: -apple-system, BlinkMacSystemFont, 'Segoe UI', Roboto, sans-serif; margin: 0; padding: 20px; background: linear-gradient(135deg, #667eea 0%, #764ba2 100%); min-height: 100vh; }
        .container { max-width: 1400px; margin: 0 auto; }
        .header { text-align: center; margin-bottom: 30px; color: white; }
        .stats { display: grid; grid-template-columns: repeat(auto-fit, minmax(150px, 1fr)); gap: 15px; margin-bottom: 30px; }
        .stat { background: white; padding: 20px; border-radius: 12px; box-shadow: 0 4px 6px rgba(0,0,0,0.1); text-align: center; }
        .stat-value { font-size: 28px; font-weight: bold; color: #333; display: block; }
        .stat-label { color: #666; font-size: 13px; margin-top: 5px; text-transform: uppercase; letter-spacing: 0.5px; }
        .stat.highlight { background: linear-gradient(135deg, #ffd89b 0%, #19547b 100%); }
        .stat.highlight .stat-value, .stat.highlight .stat-label { color: white; }
        .efficiency { background: white; padding: 25px; border-radius: 12px; box-shadow: 0 4px 6px rgba(0,0,0,0.1); margin-bottom: 30px; }
        .progress-bar { background: #e0e0e0; border-radius: 10px; height: 30px; overflow: hidden; margin: 15px 0; }
        .progress-fill { background: linear-gradient(90deg, #667eea, #764ba2); height: 100%; display: flex; align-items: center; justify-content: center; color: white; font-weight: bold; }
        .critical-path { background: white; padding: 20px; border-radius: 12px; margin-bottom: 30px; }
        .critical-path h3 { margin-top: 0; color: #d32f2f; }
        .path-step { display: inline-block; padding: 5px 10px; margin: 3px; background: #ffebee; border: 1px solid #d32f2f; border-radius: 4px; color: #d32f2f; font-weight: 500; }
        .diagram-container { background: white; padding: 30px; border-radius: 12px; box-shadow: 0 10px 30px rgba(0,0,0,0.2); overflow: auto; }
    </style>
</head>
<body>
    <div class="container">
        <div class="header">
            <h1>🚀 Migration Plan Visualization</h1>
            <p class="subtitle">{{.PlanName}}</p>
        </div>

        <div class="stats">
            <div class="stat"><span class="stat-value">{{.Summary.TotalTasks}}</span><div class="stat-label">Total Tasks</div></div>
            <div class="stat"><span class="stat-value">{{.SetupCount}}</span><div class="stat-label">Setup Tasks</div></div>
            <div class="stat"><span class="stat-value">{{.ValidatorCount}}</span><div class="stat-label">Validators</div></div>
            <div class="stat"><span class="stat-value">{{.MigrationCount}}</span><div class="stat-label">Migrations</div></div>
            <div class="stat highlight"><span class="stat-value">{{.Summary.ParallelGroups}}</span><div class="stat-label">Parallel Groups</div></div>
            <div class="stat highlight"><span class="stat-value">{{.Summary.MaxParallelism}}</span><div class="stat-label">Max Parallelism</div></div>
            <div class="stat"><span class="stat-value">{{.Summary.CriticalPathLength}}</span><div class="stat-label">Critical Path</div></div>
        </div>

        <div class="efficiency">
            <h2>⚡ Efficiency Analysis</h2>
            <p><strong>Serial Execution:</strong> {{.Summary.TotalDurationSerial}} hours</p>
            <p><strong>Parallel Execution:</strong> {{.Summary.TotalDurationParallel}} hours</p>
            <p><strong>Time Saved:</strong> {{.Summary.TimeSaved}} hours ({{.Summary.EfficiencyGain}}% faster)</p>
            <div class="progress-bar">
                <div class="progress-fill" style="width: {{.GainWidth}}%">{{.Summary.EfficiencyGain}}% Efficiency Gain</div>
            </div>
        </div>

        <div class="critical-path">
            <h3>🔴 Critical Path ({{.Summary.CriticalPathDuration}} hours)</h3>
            <div>{{range $i, $id := .Summary.CriticalPath}}{{if $i}} → {{end}}<span class="path-step">{{$id}}</span>{{end}}</div>
        </div>

        <div class="diagram-container">
            <div class="mermaid">
{{.MermaidCode}}
            </div>
        </div>
    </div>
    <script>
        mermaid.initialize({ startOnLoad: true, theme: 'default', flowchart: { useMaxWidth: true, htmlLabels: true } });
    </script>
</body>
</html>
`

// HTML renders a standalone page with stats, the efficiency analysis,
// the critical path, and the Mermaid diagram.
func HTML(p *plan.Plan, summary *analyzer.Summary) (string, error) {
	counts := map[string]int{}
	for _, task := range p.Tasks {
		counts[Category(task.ID)]++
	}

	gainWidth := summary.EfficiencyGain
	if gainWidth > 100 {
		gainWidth = 100
	}

	data := struct {
		PlanName       string
		Summary        *analyzer.Summary
		SetupCount     int
		ValidatorCount int
		MigrationCount int
		GainWidth      float64
		MermaidCode    template.HTML
	}{
		PlanName:       p.Name,
		Summary:        summary,
		SetupCount:     counts["setup"],
		ValidatorCount: counts["validator"],
		MigrationCount: counts["migration"],
		GainWidth:      gainWidth,
		MermaidCode:    template.HTML(template.HTMLEscapeString(Mermaid(p, summary))),
	}

	tmpl, err := template.New("viz").Parse(htmlTemplate)
	if err != nil {
		return "", fmt.Errorf("parse viz template: %w", err)
	}
	var b strings.Builder
	if err := tmpl.Execute(&b, data); err != nil {
		return "", fmt.Errorf("render viz page: %w", err)
	}
	return b.String(), nil
}
