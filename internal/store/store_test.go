package store

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jacobarthurs/showplan/internal/analyzer"
	"github.com/jacobarthurs/showplan/internal/comparator"
	"github.com/jacobarthurs/showplan/internal/plan"
)

func samplePlan(name string, cost float64) plan.PlanAnalysis {
	return plan.PlanAnalysis{
		PlanName: name,
		FilePath: name + ".sqlplan",
		Statements: []plan.Statement{{
			StatementID:   "1",
			StatementType: "SELECT",
			TextPreview:   "SELECT * FROM orders",
			EstimatedCost: cost,
			LogicalReads:  12,
			MissingIndexes: []plan.MissingIndex{{
				ImpactPercent:   85.5,
				Database:        "[Sales]",
				Schema:          "[dbo]",
				Table:           "[Orders]",
				EqualityColumns: []string{"[customer_id]"},
			}},
			NodeDetails: []plan.OperatorNode{
				{StatementID: "1", NodeID: 0, PhysicalOp: "Nested Loops", LogicalOp: "Inner Join"},
				{StatementID: "1", NodeID: 1, PhysicalOp: "Index Seek", LogicalOp: "Index Seek", Parallel: true,
					TableIndex: "[Sales].[dbo].[Orders].[IX_Orders_Customer]"},
			},
		}},
		Warnings: []plan.Warning{
			{Type: "SpillToTempDb", StatementID: "1", Attributes: map[string]string{"SpillLevel": "1"}},
		},
		Summary: plan.Summary{
			TotalEstimatedCost: cost,
			TotalLogicalReads:  12,
			TotalStatements:    1,
			TotalWarnings:      1,
		},
	}
}

func openTestStore(t *testing.T) (Store, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "results", "plans.db")
	s, err := Open(context.Background(), "sqlite://"+path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s, path
}

func count(t *testing.T, path, table string) int {
	t.Helper()
	db, err := sql.Open("sqlite3", path)
	require.NoError(t, err)
	defer db.Close()

	var n int
	require.NoError(t, db.QueryRow("SELECT COUNT(*) FROM "+table).Scan(&n))
	return n
}

func TestOpen_Empty(t *testing.T) {
	_, err := Open(context.Background(), "")
	assert.Error(t, err)
}

func TestSQLite_SaveCompareRun(t *testing.T) {
	s, path := openTestStore(t)
	ctx := context.Background()

	a := samplePlan("baseline", 1.0)
	b := samplePlan("rewrite", 2.0)
	cmp := comparator.Compare(a, b)

	id, err := s.SaveRun(ctx, Run{
		Kind:       KindCompare,
		CreatedAt:  time.Date(2026, 5, 1, 9, 30, 0, 0, time.UTC),
		Source:     "Config/plans.json",
		Plans:      []PlanRecord{{Analysis: a}, {Analysis: b}},
		Comparison: &cmp,
	})
	require.NoError(t, err)
	assert.Equal(t, int64(1), id)

	assert.Equal(t, 1, count(t, path, "runs"))
	assert.Equal(t, 2, count(t, path, "plan_summaries"))
	assert.Equal(t, 2, count(t, path, "statements"))
	assert.Equal(t, 4, count(t, path, "operator_nodes"))
	assert.Equal(t, 2, count(t, path, "missing_indexes"))
	assert.Equal(t, 2, count(t, path, "plan_warnings"))
	assert.Equal(t, len(comparator.Metrics), count(t, path, "comparison_metrics"))

	runs, err := s.ListRuns(ctx, 10)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, KindCompare, runs[0].Kind)
	assert.Equal(t, "baseline, rewrite", runs[0].Plans)
	assert.Equal(t, cmp.Winner, runs[0].Winner)
	assert.True(t, runs[0].CreatedAt.Equal(time.Date(2026, 5, 1, 9, 30, 0, 0, time.UTC)))
}

func TestSQLite_SaveAnalyzeRunWithFindings(t *testing.T) {
	s, path := openTestStore(t)
	ctx := context.Background()

	a := samplePlan("single", 3.0)
	result := analyzer.Analyze(a)
	require.NotEmpty(t, result.Findings)

	_, err := s.SaveRun(ctx, Run{
		Kind:      KindAnalyze,
		CreatedAt: time.Now(),
		Source:    "single.sqlplan",
		Plans:     []PlanRecord{{Analysis: a, Findings: result.Findings}},
	})
	require.NoError(t, err)

	assert.Equal(t, len(result.Findings), count(t, path, "findings"))
	assert.Equal(t, 0, count(t, path, "comparison_metrics"))

	runs, err := s.ListRuns(ctx, 10)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Empty(t, runs[0].Winner)
}

func TestSQLite_ListRunsNewestFirst(t *testing.T) {
	s, _ := openTestStore(t)
	ctx := context.Background()

	for _, name := range []string{"first", "second", "third"} {
		_, err := s.SaveRun(ctx, Run{
			Kind:      KindAnalyze,
			CreatedAt: time.Now(),
			Plans:     []PlanRecord{{Analysis: samplePlan(name, 1)}},
		})
		require.NoError(t, err)
	}

	runs, err := s.ListRuns(ctx, 2)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, "third", runs[0].Plans)
	assert.Equal(t, "second", runs[1].Plans)
}

func TestSQLite_ReopenKeepsRuns(t *testing.T) {
	path := filepath.Join(t.TempDir(), "plans.db")
	ctx := context.Background()

	s, err := Open(ctx, path)
	require.NoError(t, err)
	_, err = s.SaveRun(ctx, Run{Kind: KindAnalyze, CreatedAt: time.Now(), Plans: []PlanRecord{{Analysis: samplePlan("p", 1)}}})
	require.NoError(t, err)
	require.NoError(t, s.Close())

	s, err = Open(ctx, path)
	require.NoError(t, err)
	defer s.Close()

	runs, err := s.ListRuns(ctx, 10)
	require.NoError(t, err)
	assert.Len(t, runs, 1)
}

func TestPostgres_SaveRun(t *testing.T) {
	dsn := os.Getenv("SHOWPLAN_TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("SHOWPLAN_TEST_POSTGRES_DSN not set")
	}
	ctx := context.Background()

	s, err := Open(ctx, dsn)
	require.NoError(t, err)
	defer s.Close()

	a := samplePlan("pg-a", 1)
	b := samplePlan("pg-b", 2)
	cmp := comparator.Compare(a, b)

	id, err := s.SaveRun(ctx, Run{Kind: KindCompare, CreatedAt: time.Now(), Plans: []PlanRecord{{Analysis: a}, {Analysis: b}}, Comparison: &cmp})
	require.NoError(t, err)

	runs, err := s.ListRuns(ctx, 1)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, id, runs[0].ID)
}

func TestDialectSchema(t *testing.T) {
	for _, ddl := range postgresDialect.schema() {
		assert.NotContains(t, ddl, "{{")
		assert.NotContains(t, ddl, "AUTOINCREMENT")
	}
	assert.Contains(t, sqliteDialect.schema()[0], "INTEGER PRIMARY KEY AUTOINCREMENT")
}
