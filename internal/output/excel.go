package output

import (
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"sort"
	"strings"
	"time"
	"unicode"

	"github.com/xuri/excelize/v2"

	"github.com/jacobarthurs/showplan/internal/plan"
)

type ExcelOptions struct {
	MaxSheetNameLength int
	HeaderColor        string
	HeaderFontColor    string
	HeaderFontSize     int
}

var DefaultExcelOptions = ExcelOptions{
	MaxSheetNameLength: 31,
	HeaderColor:        "366092",
	HeaderFontColor:    "FFFFFF",
	HeaderFontSize:     11,
}

// Excel rejects these in sheet names.
var sheetNameReplacer = strings.NewReplacer(
	":", "_", "\\", "_", "/", "_", "?", "_", "*", "_", "[", "(", "]", ")",
)

type workbook struct {
	f      *excelize.File
	opts   ExcelOptions
	header int
	names  []string
}

func newWorkbook(opts ExcelOptions) (*workbook, error) {
	if opts.MaxSheetNameLength <= 0 || opts.MaxSheetNameLength > 31 {
		opts.MaxSheetNameLength = 31
	}

	f := excelize.NewFile()
	style, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true, Color: opts.HeaderFontColor, Size: float64(opts.HeaderFontSize)},
		Fill: excelize.Fill{Type: "pattern", Pattern: 1, Color: []string{opts.HeaderColor}},
		Alignment: &excelize.Alignment{
			Vertical: "center",
			WrapText: true,
		},
	})
	if err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("creating header style: %w", err)
	}

	return &workbook{f: f, opts: opts, header: style}, nil
}

// sheetName truncates name to the configured length and keeps it unique.
func (wb *workbook) sheetName(name string) string {
	name = sheetNameReplacer.Replace(name)
	limit := wb.opts.MaxSheetNameLength

	candidate := truncateName(name, limit)
	for i := 2; slices.ContainsFunc(wb.names, func(n string) bool { return strings.EqualFold(n, candidate) }); i++ {
		suffix := fmt.Sprintf("~%d", i)
		candidate = truncateName(name, limit-len(suffix)) + suffix
	}
	wb.names = append(wb.names, candidate)
	return candidate
}

func truncateName(name string, limit int) string {
	r := []rune(name)
	if len(r) > limit {
		return string(r[:limit])
	}
	return name
}

func (wb *workbook) addSheet(name string, header []string, rows [][]any) error {
	sheet := wb.sheetName(name)

	if len(wb.names) == 1 {
		if err := wb.f.SetSheetName("Sheet1", sheet); err != nil {
			return fmt.Errorf("naming sheet %s: %w", sheet, err)
		}
	} else if _, err := wb.f.NewSheet(sheet); err != nil {
		return fmt.Errorf("adding sheet %s: %w", sheet, err)
	}

	headerRow := make([]any, len(header))
	for i, h := range header {
		headerRow[i] = h
	}
	if err := wb.f.SetSheetRow(sheet, "A1", &headerRow); err != nil {
		return err
	}

	last, err := excelize.CoordinatesToCellName(max(len(header), 1), 1)
	if err != nil {
		return err
	}
	if err := wb.f.SetCellStyle(sheet, "A1", last, wb.header); err != nil {
		return err
	}

	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		if err := wb.f.SetSheetRow(sheet, cell, &row); err != nil {
			return fmt.Errorf("writing %s row %d: %w", sheet, i+2, err)
		}
	}

	return wb.autoWidth(sheet, header, rows)
}

func (wb *workbook) autoWidth(sheet string, header []string, rows [][]any) error {
	for col := range header {
		width := len(header[col])
		for _, row := range rows {
			if col < len(row) {
				width = max(width, len(fmt.Sprint(row[col])))
			}
		}
		name, err := excelize.ColumnNumberToName(col + 1)
		if err != nil {
			return err
		}
		if err := wb.f.SetColWidth(sheet, name, name, float64(min(width+2, 60))); err != nil {
			return err
		}
	}
	return nil
}

func (wb *workbook) save(path string) error {
	defer func() { _ = wb.f.Close() }()

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("creating output directory: %w", err)
	}
	wb.f.SetActiveSheet(0)
	if err := wb.f.SaveAs(path); err != nil {
		return fmt.Errorf("saving workbook %s: %w", path, err)
	}
	return nil
}

// WriteComparisonExcel writes the two-plan workbook: metric summary,
// per-plan statement and operator sheets, missing indexes, warnings,
// overview and winner analysis.
func WriteComparisonExcel(path string, r ComparisonReport, opts ExcelOptions) error {
	wb, err := newWorkbook(opts)
	if err != nil {
		return err
	}

	c := r.Comparison
	nameA, nameB := r.Plan1.Name(), r.Plan2.Name()
	plans := []plan.PlanAnalysis{r.Plan1, r.Plan2}

	summary := make([][]any, 0, len(c.Metrics))
	for _, m := range c.Metrics {
		summary = append(summary, []any{MetricTitle(m.Key), m.ValueA, m.ValueB, m.Winner, m.PercentDifference})
	}

	winner := [][]any{
		{"Overall Winner", c.Winner},
		{"", ""},
		{"Winner Reasons:", ""},
	}
	for _, reason := range c.WinnerReasons {
		winner = append(winner, []any{"  • " + reason, ""})
	}

	steps := []func() error{
		func() error {
			return wb.addSheet("Summary", []string{"Metric", nameA, nameB, "Winner", "Difference %"}, summary)
		},
		func() error { return wb.addSheet("Stmts-"+nameA, statementHeader, statementRows(r.Plan1)) },
		func() error { return wb.addSheet("Stmts-"+nameB, statementHeader, statementRows(r.Plan2)) },
		func() error { return wb.addSheet("Dtl-"+nameA, nodeHeader, nodeRows(r.Plan1)) },
		func() error { return wb.addSheet("Dtl-"+nameB, nodeHeader, nodeRows(r.Plan2)) },
		func() error { return wb.addSheet("Missing Indexes", missingIndexHeader, missingIndexRows(plans)) },
		func() error { return wb.addSheet("Warnings", warningHeader, warningRows(plans)) },
		func() error { return wb.addSheet("Plan Overview", overviewHeader, overviewRows(plans)) },
		func() error { return wb.addSheet("Winner Analysis", []string{"Analysis", "Value"}, winner) },
	}
	for _, step := range steps {
		if err := step(); err != nil {
			_ = wb.f.Close()
			return err
		}
	}

	return wb.save(path)
}

var singleSummaryMetrics = []struct{ key, label string }{
	{plan.MetricTotalEstimatedCost, "Total Estimated Cost"},
	{plan.MetricTotalElapsedTimeMs, "Total Elapsed Time (ms)"},
	{plan.MetricTotalCPUTimeMs, "Total CPU Time (ms)"},
	{plan.MetricTotalWaitTimeMs, "Total Wait Time (ms)"},
	{plan.MetricTotalLogicalReads, "Total Logical Reads"},
	{plan.MetricOptimizerTimeouts, "Optimizer Timeouts"},
	{plan.MetricTotalStatements, "Total Statements"},
}

// WriteAnalysisExcel writes the workbook for one analyzed plan.
func WriteAnalysisExcel(path string, p PlanReport, opts ExcelOptions) error {
	wb, err := newWorkbook(opts)
	if err != nil {
		return err
	}

	a := p.PlanAnalysis
	plans := []plan.PlanAnalysis{a}

	summary := make([][]any, 0, len(singleSummaryMetrics))
	for _, m := range singleSummaryMetrics {
		summary = append(summary, []any{m.label, a.Summary.Metric(m.key)})
	}

	findings := make([][]any, 0, len(p.Findings))
	for _, f := range p.Findings {
		findings = append(findings, []any{f.Severity.String(), f.StatementID, f.NodeID, f.NodeType, f.Relation, f.Description, f.Suggestion})
	}

	steps := []func() error{
		func() error { return wb.addSheet("Summary", []string{"Metric", a.Name()}, summary) },
		func() error { return wb.addSheet("Plan Overview", overviewHeader, overviewRows(plans)) },
		func() error { return wb.addSheet("Statements", statementHeader, statementRows(a)) },
		func() error { return wb.addSheet("Details", nodeHeader, nodeRows(a)) },
		func() error { return wb.addSheet("Missing Indexes", missingIndexHeader, missingIndexRows(plans)) },
		func() error { return wb.addSheet("Warnings", warningHeader, warningRows(plans)) },
		func() error {
			return wb.addSheet("Findings", []string{"Severity", "Statement ID", "Node ID", "Node Type", "Relation", "Description", "Suggestion"}, findings)
		},
	}
	for _, step := range steps {
		if err := step(); err != nil {
			_ = wb.f.Close()
			return err
		}
	}

	return wb.save(path)
}

// SingleWorkbookName is Summary.<plan>.<file stem>.<date>.<time>.xlsx.
func SingleWorkbookName(a plan.PlanAnalysis, at time.Time) string {
	safe := strings.Map(func(r rune) rune {
		switch {
		case unicode.IsLetter(r), unicode.IsDigit(r), r == '_', r == '-':
			return r
		case r == ' ':
			return '_'
		default:
			return -1
		}
	}, strings.TrimSpace(a.Name()))

	stem := strings.TrimSuffix(filepath.Base(a.FilePath), filepath.Ext(a.FilePath))
	if a.FilePath == "" {
		stem = safe
	}

	return fmt.Sprintf("Summary.%s.%s.%s.%s.xlsx", safe, stem, at.Format("20060102"), at.Format("150405"))
}

var statementHeader = []string{
	"Statement ID", "Type", "Early Abort Reason", "Query Preview", "Missing Indexes",
	"Estimated Cost", "Estimated Rows", "Actual Rows", "Elapsed Time (ms)", "CPU Time (ms)",
	"Wait Time (ms)", "Logical Reads", "Actual Executions", "Optimizer Level",
}

func statementRows(a plan.PlanAnalysis) [][]any {
	rows := make([][]any, 0, len(a.Statements))
	for _, st := range a.Statements {
		rows = append(rows, []any{
			st.StatementID, st.StatementType, st.EarlyAbortReason, st.TextPreview, len(st.MissingIndexes),
			st.EstimatedCost, st.EstimatedRows, st.ActualRows, st.ElapsedTimeMs, st.CPUTimeMs,
			st.WaitTimeMs, st.LogicalReads, st.ActualExecutions, st.OptimizerLevel,
		})
	}
	return rows
}

var nodeHeader = []string{
	"Statement ID", "Node ID", "Node Type", "Table/Index Name", "Seek Predicates", "Predicate",
	"Output List", "Physical Op", "Logical Op", "Est. Cost", "Est. CPU Cost", "Est. I/O Cost",
	"Est. Executions", "Est. Rows", "Actual Rows", "Actual Executions", "Actual Rebinds",
	"Actual Rewinds", "Parallel", "Warnings", "Table/Index Full Path",
}

func nodeRows(a plan.PlanAnalysis) [][]any {
	var rows [][]any
	for _, st := range a.Statements {
		for _, n := range st.NodeDetails {
			full := removeBrackets(n.TableIndex)
			rows = append(rows, []any{
				n.StatementID, n.NodeID, n.NodeType, shortObjectName(full),
				removeBrackets(n.SeekPredicates), removeBrackets(n.Predicate), removeBrackets(n.OutputList),
				n.PhysicalOp, n.LogicalOp, n.EstimatedCost, n.EstimatedCPUCost, n.EstimatedIOCost,
				n.EstimatedExecutions, n.EstimatedRows, n.ActualRows, n.ActualExecutions, n.ActualRebinds,
				n.ActualRewinds, yesNo(n.Parallel), n.Warnings, full,
			})
		}
	}
	return rows
}

var missingIndexHeader = []string{
	"Plan", "Statement ID", "Impact %", "Database", "Schema", "Table",
	"Equality Columns", "Inequality Columns", "Include Columns",
}

type missingIndexRow struct {
	impact float64
	row    []any
}

// missingIndexRows lists every statement level hint, highest impact first.
func missingIndexRows(plans []plan.PlanAnalysis) [][]any {
	var collected []missingIndexRow
	for _, a := range plans {
		for _, st := range a.Statements {
			for _, mi := range st.MissingIndexes {
				collected = append(collected, missingIndexRow{mi.ImpactPercent, []any{
					a.Name(), st.StatementID, mi.ImpactPercent, mi.Database, mi.Schema, mi.Table,
					strings.Join(mi.EqualityColumns, ", "), strings.Join(mi.InequalityColumns, ", "),
					strings.Join(mi.IncludeColumns, ", "),
				}})
			}
		}
	}
	sort.SliceStable(collected, func(i, j int) bool {
		return collected[i].impact > collected[j].impact
	})

	rows := make([][]any, len(collected))
	for i, c := range collected {
		rows[i] = c.row
	}
	return rows
}

var warningHeader = []string{"Plan", "Statement ID", "Warning Type", "Description"}

func warningRows(plans []plan.PlanAnalysis) [][]any {
	var rows [][]any
	for _, a := range plans {
		for _, w := range a.Warnings {
			rows = append(rows, []any{a.Name(), w.StatementID, w.Type, describeAttributes(w.Attributes)})
		}
	}
	return rows
}

func describeAttributes(attrs map[string]string) string {
	if len(attrs) == 0 {
		return "No additional details"
	}
	keys := make([]string, 0, len(attrs))
	for k := range attrs {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = fmt.Sprintf("%s: %s", k, attrs[k])
	}
	return strings.Join(parts, ", ")
}

var overviewHeader = []string{
	"Plan Name", "Total Statements", "Total Estimated Cost", "Total Elapsed Time (ms)",
	"Total CPU Time (ms)", "Total Wait Time (ms)", "Total Logical Reads", "Optimizer Timeouts",
	"Missing Indexes Count",
}

func overviewRows(plans []plan.PlanAnalysis) [][]any {
	rows := make([][]any, 0, len(plans))
	for _, a := range plans {
		s := a.Summary
		rows = append(rows, []any{
			a.Name(), s.TotalStatements, s.TotalEstimatedCost, s.TotalElapsedTimeMs,
			s.TotalCPUTimeMs, s.TotalWaitTimeMs, s.TotalLogicalReads, s.OptimizerTimeouts,
			len(s.MissingIndexes),
		})
	}
	return rows
}

// removeBrackets drops identifier quoting: "[].[x]" becomes "x".
func removeBrackets(s string) string {
	s = strings.ReplaceAll(s, "[].", "")
	return strings.NewReplacer("[", "", "]", "").Replace(s)
}

// shortObjectName keeps the last part of a three or four part name.
func shortObjectName(full string) string {
	parts := strings.Split(full, ".")
	if len(parts) >= 3 {
		return parts[len(parts)-1]
	}
	return full
}

func yesNo(b bool) string {
	if b {
		return "Yes"
	}
	return "No"
}
