package main

import (
	"fmt"
	"io"
	"maps"
	"slices"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/fatih/color"

	"github.com/artpar/stackdeploy/internal/engine"
	"github.com/artpar/stackdeploy/internal/shell/store"
)

var (
	outcomeSucceeded = color.New(color.FgGreen).SprintFunc()
	outcomeFailed    = color.New(color.FgRed).SprintFunc()
	outcomePending   = color.New(color.FgYellow).SprintFunc()
	labelStyle       = color.New(color.Bold).SprintFunc()
)

func colorOutcome(outcome string) string {
	switch outcome {
	case string(engine.OutcomeSucceeded):
		return outcomeSucceeded(outcome)
	case string(engine.OutcomeFailed):
		return outcomeFailed(outcome)
	default:
		return outcomePending(outcome)
	}
}

// =============================================================================
// Deploy Result
// =============================================================================

func writeResult(out io.Writer, res engine.Result) {
	run := res.Run
	if res.Outcome == engine.OutcomeSkipped {
		fmt.Fprintf(out, "Deployment %s: %s\n", colorOutcome(string(res.Outcome)), res.Message)
		return
	}
	fmt.Fprintf(out, "Deployment %s\n", colorOutcome(string(res.Outcome)))
	if run == nil {
		return
	}

	field := func(label, value string) {
		if value != "" {
			fmt.Fprintf(out, "  %s %s\n", labelStyle(fmt.Sprintf("%-10s", label+":")), value)
		}
	}

	stackLine := run.StackName()
	if op := run.Operation; op != nil {
		detail := string(op.Kind)
		if op.Noop {
			detail += ", no changes"
		}
		stackLine = fmt.Sprintf("%s (%s)", stackLine, detail)
	}
	field("stack", stackLine)
	field("bucket", run.BucketName)
	field("artifacts", run.ArtifactDirectory)
	if run.Uploaded != nil {
		field("uploaded", fmt.Sprintf("%d objects, %d bytes", len(run.Uploaded.Keys), run.Uploaded.Bytes))
	}
	if run.Cleanup != nil {
		field("cleanup", fmt.Sprintf("removed %d stale directories, kept %d", run.Cleanup.Removed, len(run.Cleanup.Kept)))
	}
	if len(run.Outputs) > 0 {
		fmt.Fprintf(out, "  %s\n", labelStyle("outputs:"))
		for _, key := range slices.Sorted(maps.Keys(run.Outputs)) {
			fmt.Fprintf(out, "    %s: %s\n", key, run.Outputs[key])
		}
	}
	for _, w := range run.Warnings {
		fmt.Fprintf(out, "  %s %s\n", outcomePending("warning:"), w)
	}
}

// =============================================================================
// History Table
// =============================================================================

func writeHistoryTable(out io.Writer, runs []store.RunRecord, colorize bool) {
	headers := []string{"STARTED", "OUTCOME", "STACK", "STEP", "ARTIFACT DIRECTORY"}
	rows := make([][]string, 0, len(runs))
	for _, r := range runs {
		rows = append(rows, []string{
			r.StartedAt.Local().Format(time.DateTime),
			string(r.Outcome),
			r.StackName,
			r.FailedStep,
			r.ArtifactDirectory,
		})
	}

	widths := make([]int, len(headers))
	for i, h := range headers {
		widths[i] = utf8.RuneCountInString(h)
	}
	for _, row := range rows {
		for i, col := range row {
			widths[i] = max(widths[i], utf8.RuneCountInString(col))
		}
	}

	render := func(cols []string, outcomeCol int) {
		for i, col := range cols {
			plain := col
			if i == outcomeCol && colorize {
				col = colorOutcome(col)
			}
			io.WriteString(out, col)
			if i == len(cols)-1 {
				io.WriteString(out, "\n")
				continue
			}
			io.WriteString(out, strings.Repeat(" ", widths[i]-utf8.RuneCountInString(plain)+2))
		}
	}

	render(headers, -1)
	for _, row := range rows {
		render(row, 1)
	}
}
