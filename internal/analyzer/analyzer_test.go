package analyzer

import (
	"testing"

	"github.com/jacobarthurs/showplan/internal/plan"
)

func TestAnalyze_OrdersBySeverity(t *testing.T) {
	a := plan.PlanAnalysis{
		PlanName: "orders",
		Statements: []plan.Statement{
			{
				StatementID:      "1",
				EarlyAbortReason: "GoodEnoughPlanFound",
				NodeDetails: []plan.OperatorNode{
					{NodeID: 0, PhysicalOp: "Table Scan", EstimatedRows: 20000, TableIndex: "[db].[dbo].[Heap]"},
				},
			},
			{
				StatementID: "2",
				NodeDetails: []plan.OperatorNode{
					{NodeID: 0, PhysicalOp: "Index Scan", EstimatedRows: 5000000, TableIndex: "[db].[dbo].[Big].[IX]"},
				},
			},
		},
		Summary: plan.Summary{TotalEstimatedCost: 3.5, TotalElapsedTimeMs: 120, TotalCPUTimeMs: 80},
	}

	result := Analyze(a)

	if result.PlanName != "orders" {
		t.Errorf("PlanName = %q, want orders", result.PlanName)
	}
	if result.TotalCost != 3.5 || result.ElapsedTimeMs != 120 || result.CPUTimeMs != 80 {
		t.Errorf("totals = %v/%d/%d", result.TotalCost, result.ElapsedTimeMs, result.CPUTimeMs)
	}
	if len(result.Findings) != 3 {
		t.Fatalf("expected 3 findings, got %d: %v", len(result.Findings), result.Findings)
	}

	want := []Severity{Critical, Warning, Info}
	for i, sev := range want {
		if result.Findings[i].Severity != sev {
			t.Errorf("finding %d severity = %v, want %v", i, result.Findings[i].Severity, sev)
		}
	}
	if result.Count(Warning) != 1 {
		t.Errorf("Count(Warning) = %d, want 1", result.Count(Warning))
	}
}

func TestAnalyze_StableWithinSeverity(t *testing.T) {
	a := plan.PlanAnalysis{
		PlanName: "warnings",
		Statements: []plan.Statement{
			{StatementID: "1"},
			{StatementID: "2"},
		},
		Warnings: []plan.Warning{
			{Type: "SpillToTempDb", StatementID: "2"},
			{Type: "SortSpillDetails", StatementID: "1"},
			{Type: "HashSpillDetails", StatementID: "2"},
		},
	}

	result := Analyze(a)

	if len(result.Findings) != 3 {
		t.Fatalf("expected 3 findings, got %d", len(result.Findings))
	}
	got := []string{result.Findings[0].StatementID, result.Findings[1].StatementID, result.Findings[2].StatementID}
	if got[0] != "1" || got[1] != "2" || got[2] != "2" {
		t.Errorf("statement order = %v, want [1 2 2]", got)
	}
	if result.Findings[1].Description == result.Findings[2].Description {
		t.Errorf("expected distinct warnings, got %v", result.Findings)
	}
}

func TestAnalyze_Empty(t *testing.T) {
	result := Analyze(plan.PlanAnalysis{PlanName: "empty"})
	if result.Findings == nil {
		t.Fatal("Findings should be non-nil")
	}
	if len(result.Findings) != 0 {
		t.Errorf("expected no findings, got %d", len(result.Findings))
	}
}
