package analyzer

import (
	"fmt"
	"math"
	"strings"

	"github.com/jacobarthurs/showplan/internal/plan"
)

const (
	MinRowsForScanWarning  = 10000
	MinRowsForCriticalScan = 1000000

	LookupWarningExecutions  = 1000
	LookupCriticalExecutions = 100000

	MissingIndexWarningImpact  = 50.0
	MissingIndexCriticalImpact = 80.0

	EstimateMismatchRatio         = 10.0
	EstimateMismatchCriticalRatio = 1000.0

	WaitDominanceMinElapsedMs = 100
	WaitDominancePct          = 50.0
)

// Rule inspects one operator node of a statement.
type Rule func(node *plan.OperatorNode, stmt *plan.Statement, ctx *PlanContext) []Finding

// StatementRule inspects a statement as a whole.
type StatementRule func(stmt *plan.Statement, ctx *PlanContext) []Finding

var defaultRules = []Rule{
	checkLargeScan,
	checkLookupHighExecutions,
	checkSeekResidualPredicate,
	checkEstimateMismatch,
}

var defaultStatementRules = []StatementRule{
	checkOptimizerTimeout,
	checkMissingIndexes,
	checkPlanWarnings,
	checkWaitDominates,
}

func checkOptimizerTimeout(stmt *plan.Statement, ctx *PlanContext) []Finding {
	switch stmt.EarlyAbortReason {
	case "":
		return nil
	case plan.TimeoutAbortReason:
		return []Finding{{
			Severity:    Warning,
			StatementID: stmt.StatementID,
			Description: fmt.Sprintf("Optimizer timed out compiling statement %s (%s); the plan may be far from optimal",
				stmt.StatementID, stmt.StatementType),
			Suggestion: "Simplify the query (split it, materialize intermediate results) so the optimizer can finish its search",
		}}
	default:
		return []Finding{{
			Severity:    Info,
			StatementID: stmt.StatementID,
			Description: fmt.Sprintf("Optimization of statement %s ended early: %s", stmt.StatementID, stmt.EarlyAbortReason),
		}}
	}
}

func checkMissingIndexes(stmt *plan.Statement, ctx *PlanContext) []Finding {
	var findings []Finding
	for _, mi := range stmt.MissingIndexes {
		if mi.ImpactPercent < MissingIndexWarningImpact {
			continue
		}

		severity := Warning
		if mi.ImpactPercent >= MissingIndexCriticalImpact {
			severity = Critical
		}

		relation := objectName(mi.Database, mi.Schema, mi.Table)
		findings = append(findings, Finding{
			Severity:    severity,
			StatementID: stmt.StatementID,
			Relation:    relation,
			Description: fmt.Sprintf("Optimizer reports a missing index on %s with %.1f%% estimated impact",
				relation, mi.ImpactPercent),
			Suggestion: CreateIndexStatement(mi),
		})
	}
	return findings
}

// warningRule maps a showplan warning element to a finding.
type warningRule struct {
	severity   Severity
	describe   func(w plan.Warning) string
	suggestion string
}

var warningRules = map[string]warningRule{
	"SpillToTempDb": {
		severity: Warning,
		describe: func(w plan.Warning) string {
			return fmt.Sprintf("Operator spilled to tempdb (spill level %s)", orDefault(w.Attributes["SpillLevel"], "?"))
		},
		suggestion: "Check memory grant and row estimates; update statistics on the inputs",
	},
	"SortSpillDetails": {
		severity:   Warning,
		describe:   func(plan.Warning) string { return "Sort spilled to tempdb" },
		suggestion: "Provide an index in the sort order or reduce the rows being sorted",
	},
	"HashSpillDetails": {
		severity:   Warning,
		describe:   func(plan.Warning) string { return "Hash operation spilled to tempdb" },
		suggestion: "Check the build input estimate; update statistics or reduce the build side",
	},
	"PlanAffectingConvert": {
		severity: Warning,
		describe: func(w plan.Warning) string {
			return fmt.Sprintf("Implicit conversion affects %s: %s",
				orDefault(w.Attributes["ConvertIssue"], "the plan"), w.Attributes["Expression"])
		},
		suggestion: "Match parameter and column data types so the conversion is not needed",
	},
	"ColumnsWithNoStatistics": {
		severity: Warning,
		describe: func(w plan.Warning) string {
			if col := w.Attributes["Column"]; col != "" {
				return fmt.Sprintf("Column %s has no statistics", col)
			}
			return "Columns without statistics were used for cardinality estimates"
		},
		suggestion: "Create statistics or enable AUTO_CREATE_STATISTICS",
	},
	"NoJoinPredicate": {
		severity:   Critical,
		describe:   func(plan.Warning) string { return "Join without a join predicate" },
		suggestion: "Check the join conditions; this is usually an accidental cross join",
	},
	"MemoryGrantWarning": {
		severity: Warning,
		describe: func(w plan.Warning) string {
			return fmt.Sprintf("Memory grant warning: %s", orDefault(w.Attributes["GrantWarningKind"], "grant mismatch"))
		},
		suggestion: "Review row estimates feeding sorts and hashes",
	},
	"UnmatchedIndexes": {
		severity:   Info,
		describe:   func(plan.Warning) string { return "Filtered indexes could not be matched because of parameterization" },
		suggestion: "Use literals or OPTION (RECOMPILE) if the filtered index is required",
	},
}

func checkPlanWarnings(stmt *plan.Statement, ctx *PlanContext) []Finding {
	var findings []Finding
	for _, w := range ctx.Warnings[stmt.StatementID] {
		rule, ok := warningRules[w.Type]
		if !ok {
			findings = append(findings, Finding{
				Severity:    Info,
				StatementID: stmt.StatementID,
				Description: fmt.Sprintf("Plan warning: %s", w.Type),
			})
			continue
		}
		findings = append(findings, Finding{
			Severity:    rule.severity,
			StatementID: stmt.StatementID,
			Description: rule.describe(w),
			Suggestion:  rule.suggestion,
		})
	}
	return findings
}

func checkWaitDominates(stmt *plan.Statement, ctx *PlanContext) []Finding {
	if stmt.ElapsedTimeMs < WaitDominanceMinElapsedMs || stmt.WaitTimeMs <= 0 {
		return nil
	}
	waitPct := float64(stmt.WaitTimeMs) / float64(stmt.ElapsedTimeMs) * 100
	if waitPct <= WaitDominancePct {
		return nil
	}

	return []Finding{{
		Severity:    Warning,
		StatementID: stmt.StatementID,
		Description: fmt.Sprintf("Statement %s spent %.0f%% of %dms elapsed waiting (cpu %dms)",
			stmt.StatementID, waitPct, stmt.ElapsedTimeMs, stmt.CPUTimeMs),
		Suggestion: "Check the wait statistics (I/O, locking, memory grants) captured with the plan",
	}}
}

func checkLargeScan(node *plan.OperatorNode, stmt *plan.Statement, ctx *PlanContext) []Finding {
	switch node.PhysicalOp {
	case "Table Scan", "Clustered Index Scan", "Index Scan":
	default:
		return nil
	}

	rows := float64(node.ActualRows)
	if rows == 0 {
		rows = node.EstimatedRows
	}
	if rows < MinRowsForScanWarning {
		return nil
	}

	severity := Warning
	if rows >= MinRowsForCriticalScan {
		severity = Critical
	}

	relation := TableName(node.TableIndex)
	desc := fmt.Sprintf("%s on %s reads %.0f rows", node.PhysicalOp, relation, rows)
	if n := ctx.Objects[relation]; n > 1 {
		desc += fmt.Sprintf(" (table accessed by %d operators)", n)
	}

	suggestion := fmt.Sprintf("Consider an index on %s that supports a seek", relation)
	if cols := ExtractConditionColumns(node.Predicate); len(cols) > 0 {
		desc += fmt.Sprintf(" to filter on %s", strings.Join(cols, ", "))
		suggestion = fmt.Sprintf("Consider an index on %s (%s) to seek instead of scan", relation, strings.Join(cols, ", "))
	}

	return []Finding{{
		Severity:    severity,
		StatementID: stmt.StatementID,
		NodeID:      node.NodeID,
		NodeType:    node.PhysicalOp,
		Relation:    relation,
		Description: desc,
		Suggestion:  suggestion,
	}}
}

func checkLookupHighExecutions(node *plan.OperatorNode, stmt *plan.Statement, ctx *PlanContext) []Finding {
	if node.LogicalOp != "Key Lookup" && node.LogicalOp != "RID Lookup" {
		return nil
	}

	execs := float64(node.ActualExecutions)
	if execs == 0 {
		execs = node.EstimatedExecutions
	}
	if execs < LookupWarningExecutions {
		return nil
	}

	severity := Warning
	if execs >= LookupCriticalExecutions {
		severity = Critical
	}

	relation := TableName(node.TableIndex)
	suggestion := "Cover the query with a nonclustered index to remove the lookup"
	if node.OutputList != "" {
		suggestion = fmt.Sprintf("Add INCLUDE (%s) to the seeking index to remove the lookup",
			strings.TrimSuffix(node.OutputList, plan.TruncationMarker))
	}

	return []Finding{{
		Severity:    severity,
		StatementID: stmt.StatementID,
		NodeID:      node.NodeID,
		NodeType:    node.LogicalOp,
		Relation:    relation,
		Description: fmt.Sprintf("%s on %s runs %.0f times", node.LogicalOp, relation, execs),
		Suggestion:  suggestion,
	}}
}

func checkSeekResidualPredicate(node *plan.OperatorNode, stmt *plan.Statement, ctx *PlanContext) []Finding {
	if !strings.HasSuffix(node.PhysicalOp, "Index Seek") {
		return nil
	}
	if node.Predicate == "" || node.SeekPredicates == "" {
		return nil
	}

	missing := ConditionColumnsNotIn(node.Predicate, node.SeekPredicates)
	if len(missing) == 0 {
		return nil
	}

	seekCols := ExtractConditionColumns(node.SeekPredicates)
	relation := TableName(node.TableIndex)
	return []Finding{{
		Severity:    Info,
		StatementID: stmt.StatementID,
		NodeID:      node.NodeID,
		NodeType:    node.PhysicalOp,
		Relation:    relation,
		Description: fmt.Sprintf("%s on %s using %s applies a residual predicate on %s",
			node.PhysicalOp, relation, orDefault(IndexName(node.TableIndex), "index"), strings.Join(missing, ", ")),
		Suggestion: fmt.Sprintf("Column `%s` is filtered but not in the seek; consider index key (%s)",
			strings.Join(missing, ", "), strings.Join(append(seekCols, missing...), ", ")),
	}}
}

func checkEstimateMismatch(node *plan.OperatorNode, stmt *plan.Statement, ctx *PlanContext) []Finding {
	if node.ActualExecutions <= 0 {
		return nil
	}

	// EstimateRows is per execution; actual rows are summed over executions.
	actual := float64(node.ActualRows) / float64(node.ActualExecutions)
	estimated := node.EstimatedRows

	ratio := math.Max(actual, 1) / math.Max(estimated, 1)
	if ratio < 1 {
		ratio = 1 / ratio
	}
	if ratio < EstimateMismatchRatio {
		return nil
	}

	severity := Warning
	if ratio >= EstimateMismatchCriticalRatio {
		severity = Critical
	}

	dir := "under"
	if estimated > actual {
		dir = "over"
	}

	return []Finding{{
		Severity:    severity,
		StatementID: stmt.StatementID,
		NodeID:      node.NodeID,
		NodeType:    node.PhysicalOp,
		Relation:    TableName(node.TableIndex),
		Description: fmt.Sprintf("%s %sestimates rows by %.0fx (estimated %.0f, actual %.0f per execution)",
			nodeLabel(node), dir, ratio, estimated, actual),
		Suggestion: "Update statistics on the referenced tables; check for parameter sniffing",
	}}
}

// CreateIndexStatement renders a missing index hint as DDL.
func CreateIndexStatement(mi plan.MissingIndex) string {
	keys := append(append([]string{}, mi.EqualityColumns...), mi.InequalityColumns...)

	name := "IX_" + strings.Trim(mi.Table, "[]")
	for _, k := range keys {
		name += "_" + strings.Trim(k, "[]")
	}

	stmt := fmt.Sprintf("CREATE NONCLUSTERED INDEX [%s] ON %s (%s)",
		name, objectName(mi.Database, mi.Schema, mi.Table), strings.Join(keys, ", "))
	if len(mi.IncludeColumns) > 0 {
		stmt += fmt.Sprintf(" INCLUDE (%s)", strings.Join(mi.IncludeColumns, ", "))
	}
	return stmt
}

func objectName(parts ...string) string {
	var nonEmpty []string
	for _, p := range parts {
		if p != "" {
			nonEmpty = append(nonEmpty, p)
		}
	}
	return strings.Join(nonEmpty, ".")
}

func nodeLabel(node *plan.OperatorNode) string {
	label := node.PhysicalOp
	if node.TableIndex != "" {
		label += " on " + TableName(node.TableIndex)
	}
	return fmt.Sprintf("%s (node %d)", label, node.NodeID)
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}
