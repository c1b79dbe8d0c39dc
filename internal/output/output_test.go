package output

import (
	"bytes"
	"encoding/json"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/jacobarthurs/showplan/internal/analyzer"
	"github.com/jacobarthurs/showplan/internal/comparator"
	"github.com/jacobarthurs/showplan/internal/plan"
)

func testPlan(name string, cost float64, elapsed int64) plan.PlanAnalysis {
	return plan.PlanAnalysis{
		PlanName: name,
		FilePath: "/plans/" + name + ".sqlplan",
		Statements: []plan.Statement{{
			StatementID:   "1",
			StatementType: "SELECT",
			TextPreview:   "SELECT id\nFROM dbo.Orders",
			EstimatedCost: cost,
			ElapsedTimeMs: elapsed,
			MissingIndexes: []plan.MissingIndex{
				{ImpactPercent: 40, Database: "[Sales]", Schema: "[dbo]", Table: "[Orders]", EqualityColumns: []string{"[a]"}},
				{ImpactPercent: 90, Database: "[Sales]", Schema: "[dbo]", Table: "[Orders]", EqualityColumns: []string{"[b]"}},
			},
			NodeDetails: []plan.OperatorNode{{
				StatementID: "1",
				NodeID:      0,
				NodeType:    "Index Seek",
				PhysicalOp:  "Index Seek",
				LogicalOp:   "Index Seek",
				TableIndex:  "[Sales].[dbo].[Orders].[IX_Orders_A]",
				Predicate:   "[Sales].[dbo].[Orders].[a]>(1)",
				Parallel:    true,
			}},
		}},
		Warnings: []plan.Warning{
			{Type: "SpillToTempDb", StatementID: "1", Attributes: map[string]string{"SpillLevel": "2", "ThreadID": "0"}},
			{Type: "NoJoinPredicate", StatementID: "1"},
		},
		Summary: plan.Summary{
			TotalEstimatedCost: cost,
			TotalElapsedTimeMs: elapsed,
			TotalStatements:    1,
			TotalWarnings:      2,
			MissingIndexes:     []plan.MissingIndex{{}, {}},
		},
	}
}

func TestRenderJSON_ComparisonReport(t *testing.T) {
	a := testPlan("baseline", 1, 100)
	b := testPlan("rewrite", 2, 50)
	report := ComparisonReport{
		AnalysisTimestamp: "2026-05-01 09:30:00",
		ConfigFile:        "Config/plans.json",
		Plan1:             a,
		Plan2:             b,
		Comparison:        comparator.Compare(a, b),
	}

	var buf bytes.Buffer
	if err := RenderJSON(&buf, report); err != nil {
		t.Fatalf("RenderJSON failed: %v", err)
	}

	var decoded map[string]any
	if err := json.Unmarshal(buf.Bytes(), &decoded); err != nil {
		t.Fatalf("output is not JSON: %v", err)
	}
	for _, key := range []string{"analysis_timestamp", "config_file", "plan1", "plan2", "comparison"} {
		if _, ok := decoded[key]; !ok {
			t.Errorf("missing key %q", key)
		}
	}

	cmp := decoded["comparison"].(map[string]any)
	if cmp["winner"] != "tie" {
		t.Errorf("winner = %v, want tie", cmp["winner"])
	}
	if !strings.Contains(buf.String(), "\n  \"analysis_timestamp\"") {
		t.Errorf("expected two-space indentation")
	}
}

func TestRenderJSON_SingleReportFlattensPlan(t *testing.T) {
	a := testPlan("single", 1, 10)
	report := SingleReport{
		AnalysisTimestamp: "now",
		TotalPlans:        1,
		Plans:             []PlanReport{{PlanAnalysis: a, Findings: analyzer.Analyze(a).Findings}},
	}

	var buf bytes.Buffer
	if err := RenderJSON(&buf, report); err != nil {
		t.Fatalf("RenderJSON failed: %v", err)
	}

	var decoded struct {
		TotalPlans int `json:"total_plans"`
		Plans      []struct {
			PlanName string `json:"plan_name"`
			Summary  struct {
				TotalStatements int `json:"total_statements"`
			} `json:"summary"`
			Findings []struct {
				Severity string `json:"severity"`
			} `json:"findings"`
		} `json:"plans"`
	}
	if err := json.Unmarshal(buf.Bytes(), &decoded); err != nil {
		t.Fatalf("output is not JSON: %v", err)
	}
	if decoded.TotalPlans != 1 || len(decoded.Plans) != 1 {
		t.Fatalf("plans = %d/%d, want 1", decoded.TotalPlans, len(decoded.Plans))
	}
	if decoded.Plans[0].PlanName != "single" {
		t.Errorf("plan_name = %q", decoded.Plans[0].PlanName)
	}
	if decoded.Plans[0].Summary.TotalStatements != 1 {
		t.Errorf("total_statements = %d", decoded.Plans[0].Summary.TotalStatements)
	}
	if len(decoded.Plans[0].Findings) == 0 || decoded.Plans[0].Findings[0].Severity != "critical" {
		t.Errorf("findings = %+v, want critical first", decoded.Plans[0].Findings)
	}
}

func TestWriteJSONFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "Output", "report.json")
	if err := WriteJSONFile(path, map[string]int{"x": 1}); err != nil {
		t.Fatalf("WriteJSONFile failed: %v", err)
	}
}

func TestRenderComparisonText(t *testing.T) {
	a := testPlan("baseline", 1, 100)
	b := testPlan("rewrite", 2, 100)
	b.Statements[0].EstimatedCost = 2

	var buf bytes.Buffer
	if err := RenderComparisonText(&buf, comparator.Compare(a, b)); err != nil {
		t.Fatalf("RenderComparisonText failed: %v", err)
	}
	out := buf.String()

	for _, want := range []string{
		"Plan A: baseline",
		"Total Estimated Cost",
		"Winner: baseline (A)",
		"total_estimated_cost: baseline is 50.0% better",
		"Statement Details",
		"#1 SELECT: SELECT id FROM dbo.Orders",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}

func TestRenderComparisonText_Tie(t *testing.T) {
	a := testPlan("same", 1, 100)

	var buf bytes.Buffer
	if err := RenderComparisonText(&buf, comparator.Compare(a, a)); err != nil {
		t.Fatalf("RenderComparisonText failed: %v", err)
	}
	if !strings.Contains(buf.String(), "Winner: tie") {
		t.Errorf("expected tie verdict:\n%s", buf.String())
	}
	if !strings.Contains(buf.String(), "Statements are equivalent.") {
		t.Errorf("expected no statement details:\n%s", buf.String())
	}
}

func TestRenderAnalysisText(t *testing.T) {
	a := testPlan("single", 1.5, 20)
	result := analyzer.Analyze(a)

	var buf bytes.Buffer
	if err := RenderAnalysisText(&buf, a, result); err != nil {
		t.Fatalf("RenderAnalysisText failed: %v", err)
	}
	out := buf.String()

	if !strings.Contains(out, "Plan Summary: single") {
		t.Errorf("missing heading:\n%s", out)
	}
	if !strings.Contains(out, "CRITICAL") {
		t.Errorf("missing critical finding:\n%s", out)
	}
	if !strings.Contains(out, "CREATE NONCLUSTERED INDEX") {
		t.Errorf("missing index suggestion:\n%s", out)
	}
}

func TestRenderAnalysisText_NoFindings(t *testing.T) {
	a := plan.PlanAnalysis{PlanName: "clean"}

	var buf bytes.Buffer
	if err := RenderAnalysisText(&buf, a, analyzer.Analyze(a)); err != nil {
		t.Fatalf("RenderAnalysisText failed: %v", err)
	}
	if !strings.Contains(buf.String(), "No issues found.") {
		t.Errorf("expected no issues:\n%s", buf.String())
	}
}

func TestMetricTitle(t *testing.T) {
	if got := MetricTitle("total_cpu_time_ms"); got != "Total Cpu Time Ms" {
		t.Errorf("MetricTitle = %q", got)
	}
}

func TestWriteComparisonExcel(t *testing.T) {
	a := testPlan("A very long plan display name that overflows", 1, 100)
	b := testPlan("A very long plan display name that overflows", 2, 50)
	report := ComparisonReport{Plan1: a, Plan2: b, Comparison: comparator.Compare(a, b)}
	path := filepath.Join(t.TempDir(), "out", "comparison.xlsx")

	if err := WriteComparisonExcel(path, report, DefaultExcelOptions); err != nil {
		t.Fatalf("WriteComparisonExcel failed: %v", err)
	}

	f, err := excelize.OpenFile(path)
	if err != nil {
		t.Fatalf("OpenFile failed: %v", err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) != 9 {
		t.Fatalf("expected 9 sheets, got %d: %v", len(sheets), sheets)
	}
	if sheets[0] != "Summary" || sheets[8] != "Winner Analysis" {
		t.Errorf("sheet order = %v", sheets)
	}
	for _, s := range sheets {
		if len([]rune(s)) > 31 {
			t.Errorf("sheet name %q longer than 31", s)
		}
	}
	if sheets[1] == sheets[2] || sheets[3] == sheets[4] {
		t.Errorf("expected de-duplicated sheet names, got %v", sheets)
	}
	if !strings.HasSuffix(sheets[2], "~2") {
		t.Errorf("second statements sheet = %q, want ~2 suffix", sheets[2])
	}

	rows, err := f.GetRows("Missing Indexes")
	if err != nil {
		t.Fatalf("GetRows failed: %v", err)
	}
	if len(rows) != 5 {
		t.Fatalf("missing index rows = %d, want header + 4", len(rows))
	}
	if rows[1][2] != "90" {
		t.Errorf("first impact = %q, want 90 (sorted descending)", rows[1][2])
	}

	dtl, err := f.GetRows(sheets[3])
	if err != nil {
		t.Fatalf("GetRows failed: %v", err)
	}
	if dtl[1][3] != "IX_Orders_A" {
		t.Errorf("short table/index = %q", dtl[1][3])
	}
	if dtl[1][5] != "Sales.dbo.Orders.a>(1)" {
		t.Errorf("predicate = %q", dtl[1][5])
	}
	if dtl[1][18] != "Yes" {
		t.Errorf("parallel = %q", dtl[1][18])
	}

	warn, err := f.GetRows("Warnings")
	if err != nil {
		t.Fatalf("GetRows failed: %v", err)
	}
	if warn[1][3] != "SpillLevel: 2, ThreadID: 0" {
		t.Errorf("warning description = %q", warn[1][3])
	}
	if warn[2][3] != "No additional details" {
		t.Errorf("empty warning description = %q", warn[2][3])
	}
}

func TestWriteAnalysisExcel(t *testing.T) {
	a := testPlan("single", 1, 10)
	path := filepath.Join(t.TempDir(), "single.xlsx")

	err := WriteAnalysisExcel(path, PlanReport{PlanAnalysis: a, Findings: analyzer.Analyze(a).Findings}, DefaultExcelOptions)
	if err != nil {
		t.Fatalf("WriteAnalysisExcel failed: %v", err)
	}

	f, err := excelize.OpenFile(path)
	if err != nil {
		t.Fatalf("OpenFile failed: %v", err)
	}
	defer f.Close()

	want := []string{"Summary", "Plan Overview", "Statements", "Details", "Missing Indexes", "Warnings", "Findings"}
	got := f.GetSheetList()
	if strings.Join(got, ",") != strings.Join(want, ",") {
		t.Errorf("sheets = %v, want %v", got, want)
	}

	rows, err := f.GetRows("Summary")
	if err != nil {
		t.Fatalf("GetRows failed: %v", err)
	}
	if rows[0][1] != "single" || rows[1][0] != "Total Estimated Cost" {
		t.Errorf("summary = %v", rows[:2])
	}
}

func TestSheetName_Truncation(t *testing.T) {
	wb, err := newWorkbook(ExcelOptions{MaxSheetNameLength: 10})
	if err != nil {
		t.Fatalf("newWorkbook failed: %v", err)
	}
	defer wb.f.Close()

	first := wb.sheetName("Stmts-abcdefghij")
	second := wb.sheetName("Stmts-abcdefghij")
	third := wb.sheetName("a/b")

	if first != "Stmts-abcd" {
		t.Errorf("first = %q", first)
	}
	if second != "Stmts-ab~2" {
		t.Errorf("second = %q", second)
	}
	if third != "a_b" {
		t.Errorf("third = %q", third)
	}
}

func TestSingleWorkbookName(t *testing.T) {
	a := plan.PlanAnalysis{PlanName: "x", DisplayName: "Version 1 (new)", FilePath: "/tmp/plans/v1.sqlplan"}
	at := time.Date(2026, 5, 1, 9, 30, 5, 0, time.UTC)

	got := SingleWorkbookName(a, at)
	if got != "Summary.Version_1_new.v1.20260501.093005.xlsx" {
		t.Errorf("SingleWorkbookName = %q", got)
	}
}

func TestReadReport_RoundTrip(t *testing.T) {
	dir := t.TempDir()
	a := testPlan("baseline", 1, 100)
	b := testPlan("rewrite", 2, 50)

	cmpPath := filepath.Join(dir, "comparison.json")
	if err := WriteJSONFile(cmpPath, ComparisonReport{Plan1: a, Plan2: b, Comparison: comparator.Compare(a, b)}); err != nil {
		t.Fatalf("WriteJSONFile failed: %v", err)
	}
	cmp, single, err := ReadReport(cmpPath)
	if err != nil {
		t.Fatalf("ReadReport failed: %v", err)
	}
	if cmp == nil || single != nil {
		t.Fatalf("expected a comparison report")
	}
	if cmp.Plan2.PlanName != "rewrite" || cmp.Comparison.Winner != "tie" {
		t.Errorf("decoded = %q / %q", cmp.Plan2.PlanName, cmp.Comparison.Winner)
	}
	if cmp.Plan1.Warnings[0].Attributes["SpillLevel"] != "2" {
		t.Errorf("warning attributes = %v", cmp.Plan1.Warnings[0].Attributes)
	}

	singlePath := filepath.Join(dir, "single.json")
	findings := analyzer.Analyze(a).Findings
	if err := WriteJSONFile(singlePath, SingleReport{TotalPlans: 1, Plans: []PlanReport{{PlanAnalysis: a, Findings: findings}}}); err != nil {
		t.Fatalf("WriteJSONFile failed: %v", err)
	}
	cmp, single, err = ReadReport(singlePath)
	if err != nil {
		t.Fatalf("ReadReport failed: %v", err)
	}
	if cmp != nil || single == nil {
		t.Fatalf("expected an analysis report")
	}
	if single.Plans[0].Findings[0].Severity != analyzer.Critical {
		t.Errorf("severity = %v, want critical", single.Plans[0].Findings[0].Severity)
	}
}

func TestReadReport_Unknown(t *testing.T) {
	path := filepath.Join(t.TempDir(), "other.json")
	if err := WriteJSONFile(path, map[string]int{"x": 1}); err != nil {
		t.Fatalf("WriteJSONFile failed: %v", err)
	}
	if _, _, err := ReadReport(path); err == nil {
		t.Fatal("expected error for unrelated document")
	}
}
