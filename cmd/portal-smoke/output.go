package main

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/ternarybob/portal-smoke/internal/runner"
)

var (
	passStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("#a6e3a1")).Bold(true)
	failStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("#f38ba8")).Bold(true)
	mutedStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#6c7086"))
	summaryStyle = lipgloss.NewStyle().Bold(true)
)

func printStart(w io.Writer, engine string) {
	fmt.Fprintf(w, "Running smoke test in %s...\n", engine)
}

func printResult(w io.Writer, r runner.Result) {
	if r.Passed() {
		fmt.Fprintf(w, "%s: %s %s\n", r.Engine, passStyle.Render("PASS"),
			mutedStyle.Render(fmt.Sprintf("(%s, unit %s)", r.Duration.Round(time.Millisecond), r.UnitID)))
		return
	}
	fmt.Fprintf(w, "%s: %s\n", r.Engine, failStyle.Render("FAIL"))
}

func printSummary(w io.Writer, results []runner.Result) {
	names := make([]string, len(results))
	for i, r := range results {
		names[i] = r.Engine
	}
	fmt.Fprintln(w, summaryStyle.Render("All runtime smoke tests passed: "+strings.Join(names, ", ")))
}

func printError(w io.Writer, err error) {
	fmt.Fprintf(w, "%s %v\n", failStyle.Render("Error:"), err)
}
