package store

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/samber/lo"

	"github.com/jacobarthurs/showplan/internal/analyzer"
	"github.com/jacobarthurs/showplan/internal/comparator"
	"github.com/jacobarthurs/showplan/internal/plan"
)

const (
	KindAnalyze = "analyze"
	KindCompare = "compare"
)

// Store persists analysis runs.
type Store interface {
	SaveRun(ctx context.Context, run Run) (int64, error)
	ListRuns(ctx context.Context, limit int) ([]RunInfo, error)
	Close() error
}

// PlanRecord is one parsed plan of a run and the findings reported for it.
type PlanRecord struct {
	Analysis plan.PlanAnalysis
	Findings []analyzer.Finding
}

type Run struct {
	Kind       string
	CreatedAt  time.Time
	Source     string
	Plans      []PlanRecord
	Comparison *comparator.Comparison
}

// RunInfo is a stored run as listed by history.
type RunInfo struct {
	ID        int64
	Kind      string
	CreatedAt time.Time
	Source    string
	Plans     string
	Winner    string
}

// Open picks the backend from the DSN: postgres:// and postgresql:// URLs
// open PostgreSQL, anything else is a SQLite file path with an optional
// sqlite:// prefix.
func Open(ctx context.Context, dsn string) (Store, error) {
	switch {
	case dsn == "":
		return nil, fmt.Errorf("empty store DSN")
	case strings.HasPrefix(dsn, "postgres://"), strings.HasPrefix(dsn, "postgresql://"):
		s, err := openPostgres(ctx, dsn)
		if err != nil {
			return nil, err
		}
		return s, nil
	default:
		s, err := openSQLite(ctx, strings.TrimPrefix(dsn, "sqlite://"))
		if err != nil {
			return nil, err
		}
		return s, nil
	}
}

// dialect fills the column types that differ between backends.
type dialect struct {
	id    string
	int   string
	float string
	bool  string
}

var schemaTables = []string{
	`CREATE TABLE IF NOT EXISTS runs (
	id {{id}},
	kind TEXT NOT NULL,
	created_at TEXT NOT NULL,
	source TEXT NOT NULL,
	plan_names TEXT NOT NULL,
	winner TEXT NOT NULL,
	winner_reasons TEXT NOT NULL
)`,
	`CREATE TABLE IF NOT EXISTS plan_summaries (
	id {{id}},
	run_id {{int}} NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
	position {{int}} NOT NULL,
	plan_name TEXT NOT NULL,
	display_name TEXT NOT NULL,
	description TEXT NOT NULL,
	file_path TEXT NOT NULL,
	total_estimated_cost {{float}} NOT NULL,
	total_elapsed_time_ms {{int}} NOT NULL,
	total_cpu_time_ms {{int}} NOT NULL,
	total_logical_reads {{int}} NOT NULL,
	total_statements {{int}} NOT NULL,
	optimizer_timeouts {{int}} NOT NULL,
	total_wait_time_ms {{int}} NOT NULL,
	total_warnings {{int}} NOT NULL,
	missing_index_count {{int}} NOT NULL
)`,
	`CREATE TABLE IF NOT EXISTS statements (
	plan_id {{int}} NOT NULL REFERENCES plan_summaries(id) ON DELETE CASCADE,
	statement_id TEXT NOT NULL,
	statement_type TEXT NOT NULL,
	text_preview TEXT NOT NULL,
	estimated_cost {{float}} NOT NULL,
	estimated_rows {{float}} NOT NULL,
	optimizer_level TEXT NOT NULL,
	early_abort_reason TEXT NOT NULL,
	cpu_time_ms {{int}} NOT NULL,
	elapsed_time_ms {{int}} NOT NULL,
	wait_time_ms {{int}} NOT NULL,
	logical_reads {{int}} NOT NULL,
	actual_rows {{int}} NOT NULL,
	actual_executions {{int}} NOT NULL
)`,
	`CREATE TABLE IF NOT EXISTS operator_nodes (
	plan_id {{int}} NOT NULL REFERENCES plan_summaries(id) ON DELETE CASCADE,
	statement_id TEXT NOT NULL,
	node_id {{int}} NOT NULL,
	physical_op TEXT NOT NULL,
	logical_op TEXT NOT NULL,
	estimated_cost {{float}} NOT NULL,
	estimated_rows {{float}} NOT NULL,
	actual_rows {{int}} NOT NULL,
	actual_executions {{int}} NOT NULL,
	parallel {{bool}} NOT NULL,
	table_index TEXT NOT NULL
)`,
	`CREATE TABLE IF NOT EXISTS missing_indexes (
	plan_id {{int}} NOT NULL REFERENCES plan_summaries(id) ON DELETE CASCADE,
	statement_id TEXT NOT NULL,
	impact_percent {{float}} NOT NULL,
	object_name TEXT NOT NULL,
	equality_columns TEXT NOT NULL,
	inequality_columns TEXT NOT NULL,
	include_columns TEXT NOT NULL
)`,
	`CREATE TABLE IF NOT EXISTS plan_warnings (
	plan_id {{int}} NOT NULL REFERENCES plan_summaries(id) ON DELETE CASCADE,
	statement_id TEXT NOT NULL,
	warning_type TEXT NOT NULL,
	attributes TEXT NOT NULL
)`,
	`CREATE TABLE IF NOT EXISTS findings (
	plan_id {{int}} NOT NULL REFERENCES plan_summaries(id) ON DELETE CASCADE,
	severity TEXT NOT NULL,
	statement_id TEXT NOT NULL,
	node_id {{int}} NOT NULL,
	description TEXT NOT NULL,
	suggestion TEXT NOT NULL
)`,
	`CREATE TABLE IF NOT EXISTS comparison_metrics (
	run_id {{int}} NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
	metric TEXT NOT NULL,
	value_a {{float}} NOT NULL,
	value_b {{float}} NOT NULL,
	winner TEXT NOT NULL,
	lower_is_better {{bool}} NOT NULL,
	percent_difference {{float}} NOT NULL
)`,
}

func (d dialect) schema() []string {
	r := strings.NewReplacer("{{id}}", d.id, "{{int}}", d.int, "{{float}}", d.float, "{{bool}}", d.bool)
	return lo.Map(schemaTables, func(ddl string, _ int) string {
		return r.Replace(ddl)
	})
}

// row and tx are the parts of database/sql and pgx the writer needs.
type row interface {
	Scan(dest ...any) error
}

type tx interface {
	Exec(ctx context.Context, query string, args ...any) error
	QueryRow(ctx context.Context, query string, args ...any) row
}

func writeRun(ctx context.Context, t tx, run Run) (int64, error) {
	winner, reasons := "", ""
	if run.Comparison != nil {
		winner = run.Comparison.Winner
		reasons = strings.Join(run.Comparison.WinnerReasons, "; ")
	}
	names := lo.Map(run.Plans, func(p PlanRecord, _ int) string {
		return p.Analysis.Name()
	})

	var runID int64
	err := t.QueryRow(ctx,
		`INSERT INTO runs (kind, created_at, source, plan_names, winner, winner_reasons)
		VALUES ($1, $2, $3, $4, $5, $6) RETURNING id`,
		run.Kind, run.CreatedAt.UTC().Format(time.RFC3339), run.Source, strings.Join(names, ", "), winner, reasons,
	).Scan(&runID)
	if err != nil {
		return 0, fmt.Errorf("inserting run: %w", err)
	}

	for i, p := range run.Plans {
		if err := writePlan(ctx, t, runID, i, p); err != nil {
			return 0, err
		}
	}

	if run.Comparison != nil {
		for _, m := range run.Comparison.Metrics {
			err := t.Exec(ctx,
				`INSERT INTO comparison_metrics (run_id, metric, value_a, value_b, winner, lower_is_better, percent_difference)
				VALUES ($1, $2, $3, $4, $5, $6, $7)`,
				runID, m.Key, m.ValueA, m.ValueB, m.Winner, m.LowerIsBetter, m.PercentDifference)
			if err != nil {
				return 0, fmt.Errorf("inserting metric %s: %w", m.Key, err)
			}
		}
	}

	return runID, nil
}

func writePlan(ctx context.Context, t tx, runID int64, position int, p PlanRecord) error {
	a := p.Analysis
	s := a.Summary

	var planID int64
	err := t.QueryRow(ctx,
		`INSERT INTO plan_summaries (run_id, position, plan_name, display_name, description, file_path,
			total_estimated_cost, total_elapsed_time_ms, total_cpu_time_ms, total_logical_reads,
			total_statements, optimizer_timeouts, total_wait_time_ms, total_warnings, missing_index_count)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15) RETURNING id`,
		runID, position, a.PlanName, a.DisplayName, a.Description, a.FilePath,
		s.TotalEstimatedCost, s.TotalElapsedTimeMs, s.TotalCPUTimeMs, s.TotalLogicalReads,
		s.TotalStatements, s.OptimizerTimeouts, s.TotalWaitTimeMs, s.TotalWarnings, len(s.MissingIndexes),
	).Scan(&planID)
	if err != nil {
		return fmt.Errorf("inserting plan %s: %w", a.Name(), err)
	}

	for _, st := range a.Statements {
		err := t.Exec(ctx,
			`INSERT INTO statements (plan_id, statement_id, statement_type, text_preview, estimated_cost, estimated_rows,
				optimizer_level, early_abort_reason, cpu_time_ms, elapsed_time_ms, wait_time_ms, logical_reads,
				actual_rows, actual_executions)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`,
			planID, st.StatementID, st.StatementType, st.TextPreview, st.EstimatedCost, st.EstimatedRows,
			st.OptimizerLevel, st.EarlyAbortReason, st.CPUTimeMs, st.ElapsedTimeMs, st.WaitTimeMs, st.LogicalReads,
			st.ActualRows, st.ActualExecutions)
		if err != nil {
			return fmt.Errorf("inserting statement %s: %w", st.StatementID, err)
		}

		for _, n := range st.NodeDetails {
			err := t.Exec(ctx,
				`INSERT INTO operator_nodes (plan_id, statement_id, node_id, physical_op, logical_op, estimated_cost,
					estimated_rows, actual_rows, actual_executions, parallel, table_index)
				VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
				planID, st.StatementID, n.NodeID, n.PhysicalOp, n.LogicalOp, n.EstimatedCost,
				n.EstimatedRows, n.ActualRows, n.ActualExecutions, n.Parallel, n.TableIndex)
			if err != nil {
				return fmt.Errorf("inserting node %d of statement %s: %w", n.NodeID, st.StatementID, err)
			}
		}

		for _, mi := range st.MissingIndexes {
			err := t.Exec(ctx,
				`INSERT INTO missing_indexes (plan_id, statement_id, impact_percent, object_name,
					equality_columns, inequality_columns, include_columns)
				VALUES ($1, $2, $3, $4, $5, $6, $7)`,
				planID, st.StatementID, mi.ImpactPercent, joinObject(mi),
				strings.Join(mi.EqualityColumns, ", "), strings.Join(mi.InequalityColumns, ", "),
				strings.Join(mi.IncludeColumns, ", "))
			if err != nil {
				return fmt.Errorf("inserting missing index: %w", err)
			}
		}
	}

	for _, w := range a.Warnings {
		attrs, err := json.Marshal(w.Attributes)
		if err != nil {
			return fmt.Errorf("encoding warning attributes: %w", err)
		}
		err = t.Exec(ctx,
			`INSERT INTO plan_warnings (plan_id, statement_id, warning_type, attributes) VALUES ($1, $2, $3, $4)`,
			planID, w.StatementID, w.Type, string(attrs))
		if err != nil {
			return fmt.Errorf("inserting warning %s: %w", w.Type, err)
		}
	}

	for _, f := range p.Findings {
		err := t.Exec(ctx,
			`INSERT INTO findings (plan_id, severity, statement_id, node_id, description, suggestion)
			VALUES ($1, $2, $3, $4, $5, $6)`,
			planID, f.Severity.String(), f.StatementID, f.NodeID, f.Description, f.Suggestion)
		if err != nil {
			return fmt.Errorf("inserting finding: %w", err)
		}
	}

	return nil
}

const listRunsQuery = `SELECT id, kind, created_at, source, plan_names, winner
FROM runs ORDER BY id DESC LIMIT $1`

func scanRunInfo(r row) (RunInfo, error) {
	var info RunInfo
	var created string
	if err := r.Scan(&info.ID, &info.Kind, &created, &info.Source, &info.Plans, &info.Winner); err != nil {
		return RunInfo{}, err
	}
	t, err := time.Parse(time.RFC3339, created)
	if err != nil {
		return RunInfo{}, fmt.Errorf("parsing run time %q: %w", created, err)
	}
	info.CreatedAt = t
	return info, nil
}

func joinObject(mi plan.MissingIndex) string {
	parts := lo.Filter([]string{mi.Database, mi.Schema, mi.Table}, func(s string, _ int) bool {
		return s != ""
	})
	return strings.Join(parts, ".")
}
