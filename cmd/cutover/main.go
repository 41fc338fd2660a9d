package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/taylor-curran/migration-orchestration/internal/analyzer"
	"github.com/taylor-curran/migration-orchestration/internal/claude"
	"github.com/taylor-curran/migration-orchestration/internal/devin"
	"github.com/taylor-curran/migration-orchestration/internal/github"
	"github.com/taylor-curran/migration-orchestration/internal/orchestrator"
	"github.com/taylor-curran/migration-orchestration/internal/plan"
	"github.com/taylor-curran/migration-orchestration/internal/report"
	"github.com/taylor-curran/migration-orchestration/internal/state"
	"github.com/taylor-curran/migration-orchestration/internal/ui"
	"github.com/taylor-curran/migration-orchestration/internal/viz"
)

var (
	flagPlan         string
	flagArtifacts    string
	flagJSON         bool
	flagMaxParallel  int
	flagDryRun       bool
	flagFormat       string
	flagOutput       string
	flagWatch        bool
	flagRemotePlan   string
	flagPollInterval time.Duration
)

func main() {
	_ = godotenv.Load()

	rootCmd := &cobra.Command{
		Use:   "cutover",
		Short: "Orchestrate a COBOL-to-Java migration across Devin sessions",
		Long: `Cutover reads a migration plan, computes which tasks can run in
parallel, then drives Devin agent sessions to execute them concurrently,
waiting for the pull requests of each batch to merge before moving on.`,
	}

	rootCmd.PersistentFlags().StringVar(&flagPlan, "plan", "migration_plan.yaml", "Migration plan file (yaml or json)")
	rootCmd.PersistentFlags().StringVar(&flagArtifacts, "artifacts-dir", report.DefaultArtifactDir, "Directory for session artifacts")
	rootCmd.PersistentFlags().BoolVar(&flagJSON, "json", false, "Machine-readable JSON output")

	rootCmd.AddCommand(analyzeCmd())
	rootCmd.AddCommand(runCmd())
	rootCmd.AddCommand(statusCmd())
	rootCmd.AddCommand(vizCmd())
	rootCmd.AddCommand(inferDepsCmd())
	rootCmd.AddCommand(iterateCmd())
	rootCmd.AddCommand(summarizeCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// loadPlanAndSummary is shared by analyze and viz.
func loadPlanAndSummary() (*plan.Plan, *analyzer.Summary, error) {
	p, err := plan.Load(flagPlan)
	if err != nil {
		return nil, nil, err
	}
	for _, w := range p.Validate() {
		fmt.Fprintf(os.Stderr, "%s %s\n", ui.Yellow("warning:"), w)
	}

	a := analyzer.New(plan.AnalyzerTasks(p.Tasks))
	summary, err := a.Summarize()
	if err != nil {
		return nil, nil, fmt.Errorf("analyze plan: %w", err)
	}
	return p, summary, nil
}

func analyzeCmd() *cobra.Command {
	var flagSave bool

	cmd := &cobra.Command{
		Use:   "analyze",
		Short: "Analyze the plan for parallelizable work and the critical path",
		RunE: func(cmd *cobra.Command, args []string) error {
			p, summary, err := loadPlanAndSummary()
			if err != nil {
				return err
			}

			if flagSave {
				path, err := report.NewStore(flagArtifacts).PlanAnalysis(p.Name, summary)
				if err != nil {
					return fmt.Errorf("save analysis: %w", err)
				}
				fmt.Fprintf(os.Stderr, "📝 Analysis written to %s\n", ui.Dim(path))
			}

			if flagJSON {
				return outputJSON(summary)
			}

			printAnalysis(p, summary)
			return nil
		},
	}

	cmd.Flags().BoolVar(&flagSave, "save", false, "Also write the analysis as a markdown artifact")

	return cmd
}

func runCmd() *cobra.Command {
	var (
		flagSingle     bool
		flagSkipVerify bool
		flagPRWait     time.Duration
		flagMergeWait  time.Duration
		flagTaskTmpl   string
		flagCompatTmpl string
		flagVerifyTmpl string
	)

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Execute the migration plan batch by batch",
		RunE: func(cmd *cobra.Command, args []string) error {
			sessions, err := devin.NewClient("")
			if err != nil {
				return err
			}
			merges := github.NewClient("")
			if flagPollInterval > 0 {
				sessions.PollInterval = flagPollInterval
				merges.PollInterval = flagPollInterval
			}
			sessions.Logf = stderrLogf
			merges.Logf = stderrLogf

			orch := orchestrator.New(sessions, merges, orchestrator.Config{
				PlanPath:       flagPlan,
				RemotePlanURL:  flagRemotePlan,
				MaxParallel:    flagMaxParallel,
				DryRun:         flagDryRun,
				SingleBatch:    flagSingle,
				SkipVerify:     flagSkipVerify,
				TaskTemplate:   flagTaskTmpl,
				CompatTemplate: flagCompatTmpl,
				VerifyTemplate: flagVerifyTmpl,
				TaskPRWait:     flagPRWait,
				MergeWait:      flagMergeWait,
			})
			orch.Artifacts = report.NewStore(flagArtifacts)

			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()

			sigCh := make(chan os.Signal, 1)
			signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
			go func() {
				<-sigCh
				fmt.Fprintf(os.Stderr, "\n🛑 %s\n", ui.Yellow("Received interrupt, cancelling..."))
				cancel()
			}()

			ui.PrintLogo()

			if err := orch.Run(ctx); err != nil {
				printRunSummary(orch)
				return err
			}

			printRunSummary(orch)
			return nil
		},
	}

	cmd.Flags().IntVar(&flagMaxParallel, "max-parallel", 3, "Max concurrent agent sessions (0 = unlimited)")
	cmd.Flags().BoolVar(&flagDryRun, "dry-run", false, "Show the next batch without executing")
	cmd.Flags().BoolVar(&flagSingle, "single", false, "Run one batch and stop")
	cmd.Flags().BoolVar(&flagSkipVerify, "skip-verify", false, "Skip the verification session after each batch")
	cmd.Flags().StringVar(&flagRemotePlan, "remote-plan", "", "Raw URL to reload the plan from between batches")
	cmd.Flags().DurationVar(&flagPollInterval, "poll-interval", 0, "Session and PR poll interval")
	cmd.Flags().DurationVar(&flagPRWait, "pr-wait", 0, "How long to wait for a task session to open a PR")
	cmd.Flags().DurationVar(&flagMergeWait, "merge-wait", 0, "How long to wait for a batch's PRs to merge")
	cmd.Flags().StringVar(&flagTaskTmpl, "task-template", "", "Custom task prompt template path")
	cmd.Flags().StringVar(&flagCompatTmpl, "compat-template", "", "Custom compatibility prompt template path")
	cmd.Flags().StringVar(&flagVerifyTmpl, "verify-template", "", "Custom verification prompt template path")

	return cmd
}

func printRunSummary(orch *orchestrator.Orchestrator) {
	if orch.State == nil {
		return
	}
	p, err := plan.Load(flagPlan)
	if err != nil {
		return
	}
	fmt.Println(report.NewReporter(p, orch.State).Summary())
}

func statusCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show session progress for the current run",
		RunE: func(cmd *cobra.Command, args []string) error {
			if !state.Exists("") {
				return fmt.Errorf("no active cutover run (no .cutover/state.json found)")
			}

			st, err := state.Load("")
			if err != nil {
				return err
			}
			p, err := plan.Load(flagPlan)
			if err != nil {
				return err
			}
			rpt := report.NewReporter(p, st)

			if flagJSON {
				data, err := rpt.JSON()
				if err != nil {
					return err
				}
				fmt.Println(string(data))
				return nil
			}

			if flagWatch {
				for {
					fmt.Print("\033[2J\033[H") // clear screen
					rpt.PrintStatus(os.Stdout)
					if st.Status != "running" {
						break
					}
					time.Sleep(5 * time.Second)

					st, err = state.Load("")
					if err != nil {
						return err
					}
					p, err = plan.Load(flagPlan)
					if err != nil {
						return err
					}
					rpt = report.NewReporter(p, st)
				}
				return nil
			}

			rpt.PrintStatus(os.Stdout)
			return nil
		},
	}

	cmd.Flags().BoolVar(&flagWatch, "watch", false, "Watch mode (refresh every 5s)")

	return cmd
}

func vizCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "viz",
		Short: "Render the plan as a mermaid, dot, or html diagram",
		RunE: func(cmd *cobra.Command, args []string) error {
			p, summary, err := loadPlanAndSummary()
			if err != nil {
				return err
			}

			var out string
			switch flagFormat {
			case "mermaid":
				out = viz.Mermaid(p, summary)
			case "dot":
				out = viz.DOT(p, summary)
			case "html":
				out, err = viz.HTML(p, summary)
				if err != nil {
					return fmt.Errorf("render html: %w", err)
				}
			default:
				return fmt.Errorf("unsupported format %q (use mermaid, dot, or html)", flagFormat)
			}

			if flagOutput != "" {
				if err := os.WriteFile(flagOutput, []byte(out), 0644); err != nil {
					return err
				}
				fmt.Printf("Wrote %s diagram to %s\n", flagFormat, ui.Bold(flagOutput))
				return nil
			}
			fmt.Print(out)
			return nil
		},
	}

	cmd.Flags().StringVar(&flagFormat, "format", "mermaid", "Output format (mermaid, dot, html)")
	cmd.Flags().StringVarP(&flagOutput, "output", "o", "", "Write diagram to file instead of stdout")

	return cmd
}

func inferDepsCmd() *cobra.Command {
	var (
		flagApply    bool
		flagModel    string
		flagFromFile string
		flagSaveTo   string
	)

	cmd := &cobra.Command{
		Use:   "infer-deps",
		Short: "Use Claude to infer missing dependencies between plan tasks",
		Long: `Sends the plan's task list to Claude and infers dependency edges.
By default runs in dry-run mode — use --apply to write deps to the plan.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := plan.Load(flagPlan)
			if err != nil {
				return err
			}
			if len(p.Tasks) == 0 {
				return fmt.Errorf("plan has no tasks")
			}

			summaries := make([]claude.TaskSummary, len(p.Tasks))
			for i, t := range p.Tasks {
				summaries[i] = claude.TaskSummary{
					ID:             t.ID,
					Title:          t.Title,
					Action:         t.Action,
					EstimatedHours: t.EstimatedHours,
					DependsOn:      t.DependsOn,
				}
			}

			var result *claude.InferDepsResult
			if flagFromFile != "" {
				data, err := os.ReadFile(flagFromFile)
				if err != nil {
					return fmt.Errorf("read from-file: %w", err)
				}
				result = &claude.InferDepsResult{}
				if err := json.Unmarshal(data, result); err != nil {
					return fmt.Errorf("parse from-file: %w", err)
				}
				fmt.Printf("📂 Loaded %s edges from %s\n", ui.Bold(len(result.Edges)), ui.Dim(flagFromFile))
			} else {
				fmt.Printf("🔍 Sending %s tasks to Claude for dependency inference...\n", ui.Bold(len(summaries)))

				claudeClient, err := claude.NewClient("", flagModel)
				if err != nil {
					return err
				}
				result, err = claudeClient.InferDeps(context.Background(), summaries)
				if err != nil {
					return fmt.Errorf("infer deps: %w", err)
				}
			}

			accepted := claude.FilterEdges(summaries, result.Edges, func(e claude.DepEdge, reason string) {
				fmt.Printf("  %s %s -> %s: %s\n", ui.Yellow("⏭️  SKIP:"), e.BlockerID, e.BlockedID, reason)
			})

			if flagJSON {
				out := struct {
					Edges   []claude.DepEdge `json:"edges"`
					Summary string           `json:"summary"`
				}{
					Edges:   accepted,
					Summary: result.Summary,
				}
				if flagSaveTo != "" {
					data, err := json.MarshalIndent(out, "", "  ")
					if err != nil {
						return err
					}
					if err := os.WriteFile(flagSaveTo, data, 0644); err != nil {
						return err
					}
					fmt.Printf("Wrote %d edges to %s\n", len(accepted), flagSaveTo)
					return nil
				}
				return outputJSON(out)
			}

			fmt.Printf("\n🔗 Inferred %s dependencies (%d from Claude, %d after validation):\n\n",
				ui.Bold(len(accepted)), len(result.Edges), len(accepted))
			for _, e := range accepted {
				fmt.Printf("  %s %s blocked by %s  — %s\n",
					ui.Cyan("→"), ui.BoldMagenta(e.BlockedID), ui.BoldMagenta(e.BlockerID), ui.Dim(e.Reason))
			}
			if result.Summary != "" {
				fmt.Printf("\n💡 %s %s\n", ui.BoldWhite("Summary:"), result.Summary)
			}

			if !flagApply {
				fmt.Printf("\n🎯 %s\n", ui.Yellow("Dry run — use --apply to write these dependencies to the plan."))
				return nil
			}

			for _, e := range accepted {
				t := p.Task(e.BlockedID)
				t.DependsOn = append(t.DependsOn, e.BlockerID)
			}
			if err := p.Save(flagPlan); err != nil {
				return fmt.Errorf("save plan: %w", err)
			}
			fmt.Printf("\n✅ Applied %s dependencies to %s\n", ui.Bold(len(accepted)), ui.Dim(flagPlan))
			return nil
		},
	}

	cmd.Flags().BoolVar(&flagApply, "apply", false, "Write inferred deps to the plan file")
	cmd.Flags().StringVar(&flagModel, "model", "", "Claude model override")
	cmd.Flags().StringVar(&flagFromFile, "from-file", "", "Load edges from a previous --json run instead of calling Claude")
	cmd.Flags().StringVar(&flagSaveTo, "output", "", "With --json, save edges to file")

	return cmd
}

func iterateCmd() *cobra.Command {
	var (
		flagIterations int
		flagTitle      string
	)

	cmd := &cobra.Command{
		Use:   "iterate [prompt]",
		Short: "Refine a prompt through repeated sessions with suggested-prompt feedback",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := devin.NewClient("")
			if err != nil {
				return err
			}
			client.Logf = stderrLogf
			if flagPollInterval > 0 {
				client.PollInterval = flagPollInterval
			}

			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()
			sigCh := make(chan os.Signal, 1)
			signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
			go func() {
				<-sigCh
				cancel()
			}()

			fmt.Printf("📈 %s up to %s iterations\n", ui.BoldCyan("Iterating prompt:"), ui.Bold(flagIterations))

			result, runErr := client.IteratePrompt(ctx, args[0], flagTitle, flagIterations)
			if result != nil && len(result.SessionIDs) > 0 {
				store := report.NewStore(flagArtifacts)
				for _, analysis := range result.Analyses {
					if _, err := store.SessionArtifacts(analysis); err != nil {
						fmt.Fprintf(os.Stderr, "%s write session artifacts: %v\n", ui.Yellow("warning:"), err)
					}
				}
				if path, err := store.IterationProgress(result.PromptHistory, result.SessionIDs, result.MaxIterations); err != nil {
					fmt.Fprintf(os.Stderr, "%s write progress artifact: %v\n", ui.Yellow("warning:"), err)
				} else {
					fmt.Printf("📝 Progress written to %s\n", ui.Dim(path))
				}
			}
			if runErr != nil {
				return runErr
			}

			final := result.PromptHistory[len(result.PromptHistory)-1]
			fmt.Printf("\n🏁 %s after %d sessions:\n\n%s\n",
				ui.BoldGreen("Final prompt"), len(result.SessionIDs), final)
			return nil
		},
	}

	cmd.Flags().IntVar(&flagIterations, "iterations", 3, "Max refinement rounds")
	cmd.Flags().DurationVar(&flagPollInterval, "poll-interval", 0, "Session poll interval")
	cmd.Flags().StringVar(&flagTitle, "title", "", "Base session title")

	return cmd
}

func summarizeCmd() *cobra.Command {
	var flagModel string

	cmd := &cobra.Command{
		Use:   "summarize",
		Short: "Narrate the current run with Claude",
		Long: `Sends the run's status report and per-task session analyses to
Claude and prints a human-readable narrative of what happened.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if !state.Exists("") {
				return fmt.Errorf("no cutover run to summarize (no .cutover/state.json found)")
			}
			st, err := state.Load("")
			if err != nil {
				return err
			}
			p, err := plan.Load(flagPlan)
			if err != nil {
				return err
			}

			runSummary := report.NewReporter(p, st).Summary()

			analyses := make(map[string]string)
			for taskID, ss := range st.Sessions {
				if ss.SessionID == "" {
					continue
				}
				path := filepath.Join(flagArtifacts, "analysis-"+ss.SessionID+".md")
				data, err := os.ReadFile(path)
				if err != nil {
					continue
				}
				analyses[taskID] = string(data)
			}

			claudeClient, err := claude.NewClient("", flagModel)
			if err != nil {
				return err
			}

			fmt.Fprintf(os.Stderr, "🔍 Summarizing %d sessions with Claude...\n", len(st.Sessions))
			narrative, err := claudeClient.SummariseRun(context.Background(), runSummary, analyses)
			if err != nil {
				return fmt.Errorf("summarise run: %w", err)
			}

			fmt.Println(narrative)
			return nil
		},
	}

	cmd.Flags().StringVar(&flagModel, "model", "", "Claude model override")

	return cmd
}

func stderrLogf(format string, args ...interface{}) {
	fmt.Fprintf(os.Stderr, "  "+format+"\n", args...)
}

func outputJSON(v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(data))
	return nil
}

func printAnalysis(p *plan.Plan, summary *analyzer.Summary) {
	done, total := p.Progress()

	fmt.Printf("🔀 %s\n", ui.BoldCyan("Migration Plan Analysis"))
	fmt.Println(ui.Cyan("═══════════════════════════"))
	fmt.Println()
	if p.Name != "" {
		fmt.Printf("Plan:      %s\n", ui.Bold(p.Name))
	}
	fmt.Printf("Tasks:     %s total, %s complete\n", ui.Bold(total), ui.Bold(done))
	fmt.Printf("⚡ Critical path: %s (%d tasks, est. %.1fh)\n",
		ui.BoldYellow(strings.Join(summary.CriticalPath, " → ")),
		summary.CriticalPathLength, summary.CriticalPathDuration)
	fmt.Printf("Parallel:  %s groups, %s tasks parallelizable (widest %d)\n",
		ui.Bold(summary.ParallelGroups), ui.Bold(summary.ParallelizableTasks), summary.MaxParallelism)
	fmt.Printf("Duration:  %.1fh serial → %.1fh parallel (%s%% faster, %.1fh saved)\n",
		summary.TotalDurationSerial, summary.TotalDurationParallel,
		ui.BoldGreen(fmt.Sprintf("%.1f", summary.EfficiencyGain)), summary.TimeSaved)
	fmt.Println()

	for i, g := range summary.GroupDetail {
		fmt.Printf("🌊 %s %d (level %d, %d tasks, saves %.1fh):\n",
			ui.BoldWhite("Group"), i+1, g.Level, g.Size, g.TimeSaved)
		for _, id := range g.Tasks {
			t := p.Task(id)
			title := ""
			if t != nil {
				title = t.Title
			}
			crit := ""
			if contains(summary.CriticalPath, id) {
				crit = "  " + ui.BoldYellow("⚡ critical")
			}
			fmt.Printf("  %s  %s%s\n", ui.BoldMagenta(id), title, crit)
		}
		fmt.Println()
	}
}

func contains(ids []string, id string) bool {
	for _, s := range ids {
		if s == id {
			return true
		}
	}
	return false
}
