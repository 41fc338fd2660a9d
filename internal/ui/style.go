package ui

import (
	"fmt"
	"os"

	"github.com/fatih/color"
)

// Sprint color functions for building styled strings.
var (
	Bold        = color.New(color.Bold).SprintFunc()
	Dim         = color.New(color.Faint).SprintFunc()
	Cyan        = color.New(color.FgCyan).SprintFunc()
	Green       = color.New(color.FgGreen).SprintFunc()
	Red         = color.New(color.FgRed).SprintFunc()
	Yellow      = color.New(color.FgYellow).SprintFunc()
	Magenta     = color.New(color.FgMagenta).SprintFunc()
	BoldCyan    = color.New(color.Bold, color.FgCyan).SprintFunc()
	BoldGreen   = color.New(color.Bold, color.FgGreen).SprintFunc()
	BoldRed     = color.New(color.Bold, color.FgRed).SprintFunc()
	BoldYellow  = color.New(color.Bold, color.FgYellow).SprintFunc()
	BoldMagenta = color.New(color.Bold, color.FgMagenta).SprintFunc()
	BoldWhite   = color.New(color.Bold, color.FgWhite).SprintFunc()
)

// PrintLogo renders the colored cutover logo to stderr.
func PrintLogo() {
	w := os.Stderr
	frame := color.New(color.FgCyan)
	rails := color.New(color.FgCyan, color.Faint)
	brand := color.New(color.Bold, color.FgMagenta)
	tag := color.New(color.Faint)

	fmt.Fprintln(w)
	frame.Fprintln(w, "   +---------------------------+")
	rails.Fprintln(w, "   |  COBOL ============> Java |")
	frame.Fprintln(w, "   |===========================|")
	brand.Fprintln(w, "   |  C  U  T  O  V  E  R      |")
	frame.Fprintln(w, "   +---------------------------+")
	tag.Fprintf(w, "   %s\n", Dim("Parallel migration orchestration"))
	fmt.Fprintln(w)
}

// taskColors is a palette of distinct bold colors for differentiating tasks.
var taskColors = []func(a ...interface{}) string{
	BoldMagenta,
	BoldCyan,
	BoldYellow,
	BoldGreen,
	color.New(color.Bold, color.FgHiBlue).SprintFunc(),
	color.New(color.Bold, color.FgHiRed).SprintFunc(),
}

// taskColorIndex hashes a task ID to a palette index.
func taskColorIndex(taskID string) int {
	var h uint32
	for _, c := range taskID {
		h = h*31 + uint32(c)
	}
	return int(h % uint32(len(taskColors)))
}

// TaskPrefix returns a colored [task-id] prefix string.
// Each task ID gets a distinct color from the palette.
func TaskPrefix(taskID string) string {
	c := taskColors[taskColorIndex(taskID)]
	return Dim("[") + c(taskID) + Dim("]")
}

// StatusIcon returns a colored status icon for compact table display.
// Covers both local task statuses and remote agent session statuses.
func StatusIcon(status string) string {
	switch status {
	case "complete", "completed", "finished", "sleeping":
		return Green("✓")
	case "running", "working":
		return Cyan("●")
	case "planning":
		return Cyan("◔")
	case "failed", "expired":
		return Red("✗")
	case "blocked":
		return Yellow("⊘")
	case "skipped":
		return Yellow("⊘")
	default:
		return Dim("◌")
	}
}

// SessionStatus returns a colored agent session status string.
func SessionStatus(status string) string {
	switch status {
	case "finished", "sleeping":
		return Green(status)
	case "working", "planning":
		return BoldCyan(status)
	case "blocked":
		return Yellow(status)
	case "expired":
		return Red(status)
	default:
		return Dim(status)
	}
}
