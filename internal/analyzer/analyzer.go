package analyzer

import (
	"sort"

	"github.com/jacobarthurs/showplan/internal/plan"
)

// Analyze runs every rule over the plan and returns its findings, most
// severe first. Findings of equal severity keep document order.
func Analyze(a plan.PlanAnalysis) AnalysisResult {
	result := AnalysisResult{
		PlanName:      a.Name(),
		Findings:      []Finding{},
		TotalCost:     a.Summary.TotalEstimatedCost,
		ElapsedTimeMs: a.Summary.TotalElapsedTimeMs,
		CPUTimeMs:     a.Summary.TotalCPUTimeMs,
	}

	ctx := BuildContext(&a)

	for i := range a.Statements {
		walkStatement(&a.Statements[i], defaultStatementRules, defaultRules, &ctx, &result)
	}

	sort.SliceStable(result.Findings, func(i, j int) bool {
		return result.Findings[i].Severity > result.Findings[j].Severity
	})

	return result
}

func walkStatement(stmt *plan.Statement, stmtRules []StatementRule, rules []Rule, ctx *PlanContext, result *AnalysisResult) {
	for _, rule := range stmtRules {
		result.Findings = append(result.Findings, rule(stmt, ctx)...)
	}

	for i := range stmt.NodeDetails {
		for _, rule := range rules {
			result.Findings = append(result.Findings, rule(&stmt.NodeDetails[i], stmt, ctx)...)
		}
	}
}
