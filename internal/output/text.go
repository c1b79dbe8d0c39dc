package output

import (
	"fmt"
	"io"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"

	"github.com/jacobarthurs/showplan/internal/analyzer"
	"github.com/jacobarthurs/showplan/internal/comparator"
	"github.com/jacobarthurs/showplan/internal/plan"
)

const (
	colorReset  = "\033[0m"
	colorRed    = "\033[31m"
	colorGreen  = "\033[32m"
	colorYellow = "\033[33m"
	colorCyan   = "\033[36m"
	colorBold   = "\033[1m"
	colorDim    = "\033[2m"
)

type textWriter struct {
	w   io.Writer
	err error
}

func (tw *textWriter) printf(format string, args ...any) {
	if tw.err != nil {
		return
	}
	_, tw.err = fmt.Fprintf(tw.w, format, args...)
}

func (tw *textWriter) heading(format string, args ...any) {
	tw.printf("%s%s%s%s\n\n", colorBold, colorCyan, fmt.Sprintf(format, args...), colorReset)
}

func (tw *textWriter) table(t table.Writer) {
	t.SetStyle(table.StyleLight)
	tw.printf("%s\n", t.Render())
}

func RenderAnalysisText(w io.Writer, a plan.PlanAnalysis, result analyzer.AnalysisResult) error {
	tw := &textWriter{w: w}
	s := a.Summary

	tw.heading("Plan Summary: %s", a.Name())
	if a.Description != "" {
		tw.printf("  %s%s%s\n", colorDim, a.Description, colorReset)
	}
	tw.printf("  Total Cost:     %.4f\n", s.TotalEstimatedCost)
	tw.printf("  Statements:     %d\n", s.TotalStatements)
	if s.TotalElapsedTimeMs > 0 || s.TotalCPUTimeMs > 0 {
		tw.printf("  Elapsed Time:   %d ms\n", s.TotalElapsedTimeMs)
		tw.printf("  CPU Time:       %d ms\n", s.TotalCPUTimeMs)
		tw.printf("  Wait Time:      %d ms\n", s.TotalWaitTimeMs)
	}
	if s.TotalLogicalReads > 0 {
		tw.printf("  Logical Reads:  %d\n", s.TotalLogicalReads)
	}
	if s.OptimizerTimeouts > 0 {
		tw.printf("  %sOptimizer Timeouts: %d%s\n", colorYellow, s.OptimizerTimeouts, colorReset)
	}
	tw.printf("  Missing Indexes: %d, Warnings: %d\n\n", len(s.MissingIndexes), s.TotalWarnings)

	if len(a.Statements) > 0 {
		tw.heading("Statements")
		tw.table(statementsTable(a.Statements))
		tw.printf("\n")
	}

	if len(result.Findings) == 0 {
		tw.printf("%s%sNo issues found.%s\n", colorBold, colorGreen, colorReset)
		return tw.err
	}

	tw.heading("Findings (%d critical, %d warning, %d info)",
		result.Count(analyzer.Critical), result.Count(analyzer.Warning), result.Count(analyzer.Info))

	for i, f := range result.Findings {
		label, color := severityFormat(f.Severity)
		tw.printf("  %s%-8s%s %s\n", color, label, colorReset, f.Description)
		if f.Suggestion != "" {
			tw.printf("  %s→ %s%s\n", colorDim, f.Suggestion, colorReset)
		}
		if i < len(result.Findings)-1 {
			tw.printf("\n")
		}
	}

	return tw.err
}

func statementsTable(stmts []plan.Statement) table.Writer {
	t := table.NewWriter()
	t.AppendHeader(table.Row{"ID", "Type", "Cost", "Elapsed ms", "CPU ms", "Reads", "Missing Idx", "Abort", "Query"})
	for _, st := range stmts {
		t.AppendRow(table.Row{
			st.StatementID,
			st.StatementType,
			fmt.Sprintf("%.4f", st.EstimatedCost),
			st.ElapsedTimeMs,
			st.CPUTimeMs,
			st.LogicalReads,
			len(st.MissingIndexes),
			st.EarlyAbortReason,
			oneLine(st.TextPreview, 60),
		})
	}
	t.SetColumnConfigs([]table.ColumnConfig{
		{Number: 3, Align: text.AlignRight},
		{Number: 4, Align: text.AlignRight},
		{Number: 5, Align: text.AlignRight},
		{Number: 6, Align: text.AlignRight},
	})
	return t
}

func severityFormat(s analyzer.Severity) (string, string) {
	switch s {
	case analyzer.Critical:
		return "CRITICAL", colorRed
	case analyzer.Warning:
		return "WARNING", colorYellow
	default:
		return "INFO", colorCyan
	}
}

func RenderComparisonText(w io.Writer, c comparator.Comparison) error {
	tw := &textWriter{w: w}

	tw.heading("Summary")
	tw.printf("  Plan A: %s\n  Plan B: %s\n\n", c.PlanA, c.PlanB)

	t := table.NewWriter()
	t.AppendHeader(table.Row{"Metric", "Plan A", "Plan B", "Winner", "Difference %"})
	for _, m := range c.Metrics {
		t.AppendRow(table.Row{
			MetricTitle(m.Key),
			formatValue(m.ValueA),
			formatValue(m.ValueB),
			sideLabel(m.Side),
			fmt.Sprintf("%+.2f", m.PercentDifference),
		})
	}
	t.SetColumnConfigs([]table.ColumnConfig{
		{Number: 2, Align: text.AlignRight},
		{Number: 3, Align: text.AlignRight},
		{Number: 5, Align: text.AlignRight},
	})
	tw.table(t)

	tw.renderVerdict(c)
	tw.renderStatements(c.Statements)

	return tw.err
}

func (tw *textWriter) renderVerdict(c comparator.Comparison) {
	tw.printf("\n  Wins: A %d, B %d, ties %d\n", c.WinsA, c.WinsB, c.Ties)

	if c.WinningSide == comparator.Tie {
		tw.printf("\n%sWinner: tie%s\n", colorYellow, colorReset)
		return
	}

	tw.printf("\n%s%sWinner: %s (%s)%s\n", colorBold, colorGreen, c.Winner, sideLabel(c.WinningSide), colorReset)
	for _, r := range c.WinnerReasons {
		tw.printf("  • %s\n", r)
	}
}

func (tw *textWriter) renderStatements(deltas []comparator.StatementDelta) {
	changed := 0
	for _, d := range deltas {
		if d.ChangeType != comparator.NoChange {
			changed++
		}
	}
	if changed == 0 {
		tw.printf("\n%sStatements are equivalent.%s\n", colorDim, colorReset)
		return
	}

	tw.printf("\n")
	tw.heading("Statement Details")

	for _, d := range deltas {
		indent := "  "
		switch d.ChangeType {
		case comparator.NoChange:
			continue
		case comparator.Added:
			tw.printf("%s%s+ %s%s (cost=%.4f", indent, colorGreen, statementLabel(d), colorReset, d.NewCost)
			if d.NewElapsed > 0 {
				tw.printf(" elapsed=%dms", d.NewElapsed)
			}
			tw.printf(")\n")
			continue
		case comparator.Removed:
			tw.printf("%s%s- %s%s (cost=%.4f", indent, colorRed, statementLabel(d), colorReset, d.OldCost)
			if d.OldElapsed > 0 {
				tw.printf(" elapsed=%dms", d.OldElapsed)
			}
			tw.printf(")\n")
			continue
		case comparator.TypeChanged:
			tw.printf("%s%s~ #%d %s → %s%s\n", indent, colorYellow, d.Position, d.OldStatementType, d.NewStatementType, colorReset)
		case comparator.TextChanged:
			tw.printf("%s%s~ %s (text changed)%s\n", indent, colorYellow, statementLabel(d), colorReset)
		default:
			tw.printf("%s%s~ %s%s\n", indent, colorYellow, statementLabel(d), colorReset)
		}

		tw.printf("%s  cost: %s\n", indent, formatDelta(d.OldCost, d.NewCost, d.CostPct, d.CostDir, "%.4f"))
		if d.OldElapsed > 0 || d.NewElapsed > 0 {
			tw.printf("%s  elapsed: %s\n", indent,
				formatDelta(float64(d.OldElapsed), float64(d.NewElapsed), d.ElapsedPct, d.ElapsedDir, "%.0f ms"))
		}
		if d.OldReads != d.NewReads {
			color, arrow := deltaIndicator(d.OldReads, d.NewReads)
			tw.printf("%s  logical reads: %d → %s%d %s%s\n", indent, d.OldReads, color, d.NewReads, arrow, colorReset)
		}
		if d.OldNodes != d.NewNodes {
			tw.printf("%s  operators: %d → %d\n", indent, d.OldNodes, d.NewNodes)
		}
		if d.OldTimeout != d.NewTimeout {
			if d.NewTimeout {
				tw.printf("%s  %soptimizer: complete → timeout ↑%s\n", indent, colorRed, colorReset)
			} else {
				tw.printf("%s  %soptimizer: timeout → complete ↓%s\n", indent, colorGreen, colorReset)
			}
		}
		if d.OldMissingIndexes != d.NewMissingIndexes {
			color, arrow := deltaIndicator(int64(d.OldMissingIndexes), int64(d.NewMissingIndexes))
			tw.printf("%s  missing indexes: %d → %s%d %s%s\n", indent, d.OldMissingIndexes, color, d.NewMissingIndexes, arrow, colorReset)
		}
	}
}

func statementLabel(d comparator.StatementDelta) string {
	label := fmt.Sprintf("#%d %s", d.Position, d.StatementType)
	if d.TextPreview != "" {
		label += ": " + oneLine(d.TextPreview, 60)
	}
	return label
}

func deltaIndicator(oldVal, newVal int64) (string, string) {
	if newVal > oldVal {
		return colorRed, "↑"
	}
	return colorGreen, "↓"
}

func formatDelta(oldVal, newVal, pct float64, dir comparator.Direction, fmtStr string) string {
	color := dirColor(dir)
	arrow := dirArrow(dir)
	oldStr := fmt.Sprintf(fmtStr, oldVal)
	newStr := fmt.Sprintf(fmtStr, newVal)
	return fmt.Sprintf("%s → %s%s %s (%+.1f%%)%s", oldStr, color, newStr, arrow, pct, colorReset)
}

func dirColor(d comparator.Direction) string {
	switch d {
	case comparator.Improved:
		return colorGreen
	case comparator.Regressed:
		return colorRed
	default:
		return ""
	}
}

func dirArrow(d comparator.Direction) string {
	switch d {
	case comparator.Improved:
		return "↓"
	case comparator.Regressed:
		return "↑"
	default:
		return ""
	}
}

func sideLabel(s comparator.Side) string {
	switch s {
	case comparator.PlanA:
		return "A"
	case comparator.PlanB:
		return "B"
	default:
		return comparator.TieLabel
	}
}

// MetricTitle turns a metric key into a column label:
// total_cpu_time_ms becomes "Total Cpu Time Ms".
func MetricTitle(key string) string {
	words := strings.Split(key, "_")
	for i, w := range words {
		if w != "" {
			words[i] = strings.ToUpper(w[:1]) + w[1:]
		}
	}
	return strings.Join(words, " ")
}

func formatValue(v float64) string {
	if v == float64(int64(v)) {
		return fmt.Sprintf("%d", int64(v))
	}
	return fmt.Sprintf("%.4f", v)
}

func oneLine(s string, limit int) string {
	s = strings.Join(strings.Fields(s), " ")
	r := []rune(s)
	if len(r) > limit {
		return string(r[:limit]) + plan.TruncationMarker
	}
	return s
}
