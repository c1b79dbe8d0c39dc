package plan

import (
	"encoding/json"
	"fmt"
	"maps"
	"slices"
)

// Namespace is the XML namespace of SQL Server showplan documents.
const Namespace = "http://schemas.microsoft.com/sqlserver/2004/07/showplan"

// TimeoutAbortReason marks a statement whose optimization stopped early on a timeout.
const TimeoutAbortReason = "TimeOut"

// Metric keys shared by Summary.Metric and the comparator.
const (
	MetricTotalEstimatedCost = "total_estimated_cost"
	MetricTotalElapsedTimeMs = "total_elapsed_time_ms"
	MetricTotalCPUTimeMs     = "total_cpu_time_ms"
	MetricTotalLogicalReads  = "total_logical_reads"
	MetricTotalStatements    = "total_statements"
	MetricOptimizerTimeouts  = "optimizer_timeouts"
	MetricTotalWaitTimeMs    = "total_wait_time_ms"
)

// PlanAnalysis is the normalized statistics model of one showplan document.
type PlanAnalysis struct {
	PlanName    string      `json:"plan_name"`
	FilePath    string      `json:"file_path"`
	DisplayName string      `json:"config_name,omitempty"`
	Description string      `json:"description,omitempty"`
	Statements  []Statement `json:"statements"`
	Warnings    []Warning   `json:"warnings"`
	Summary     Summary     `json:"summary"`
}

// Name returns the user supplied display name, falling back to the file stem.
func (p PlanAnalysis) Name() string {
	if p.DisplayName != "" {
		return p.DisplayName
	}
	return p.PlanName
}

// WithDisplay returns a copy of p labeled with a display name and description.
func (p PlanAnalysis) WithDisplay(name, description string) PlanAnalysis {
	p.DisplayName = name
	p.Description = description
	return p
}

type Statement struct {
	StatementID      string  `json:"statement_id"`
	StatementType    string  `json:"statement_type"`
	StatementText    string  `json:"statement_text"`
	TextPreview      string  `json:"statement_text_preview"`
	EstimatedCost    float64 `json:"estimated_cost"`
	EstimatedRows    float64 `json:"estimated_rows"`
	OptimizerLevel   string  `json:"optimizer_level"`
	EarlyAbortReason string  `json:"early_abort_reason"`

	// Runtime statistics, zero when the plan was not captured with actuals.
	CPUTimeMs        int64 `json:"cpu_time_ms"`
	ElapsedTimeMs    int64 `json:"elapsed_time_ms"`
	WaitTimeMs       int64 `json:"wait_time_ms"`
	LogicalReads     int64 `json:"logical_reads"`
	ActualRows       int64 `json:"actual_rows"`
	ActualExecutions int64 `json:"actual_executions"`

	MissingIndexes []MissingIndex `json:"missing_indexes"`
	NodeDetails    []OperatorNode `json:"node_details"`
}

type OperatorNode struct {
	StatementID string `json:"statement_id"`
	NodeID      int    `json:"node_id"`
	NodeType    string `json:"node_type"`
	PhysicalOp  string `json:"physical_op"`
	LogicalOp   string `json:"logical_op"`

	// Optimizer estimates
	EstimatedCost       float64 `json:"estimated_cost"`
	EstimatedRows       float64 `json:"estimated_rows"`
	EstimatedCPUCost    float64 `json:"estimated_cpu_cost"`
	EstimatedIOCost     float64 `json:"estimated_io_cost"`
	EstimatedExecutions float64 `json:"estimated_executions"`

	// Actuals
	ActualRows       int64 `json:"actual_rows"`
	ActualExecutions int64 `json:"actual_executions"`
	ActualRebinds    int64 `json:"actual_rebinds"`
	ActualRewinds    int64 `json:"actual_rewinds"`

	Parallel bool `json:"parallel"`

	TableIndex     string `json:"table_index"`
	SeekPredicates string `json:"seek_predicates"`
	Predicate      string `json:"predicate"`
	OutputList     string `json:"output_list"`
	Warnings       string `json:"warnings"`
}

// MissingIndex is an optimizer suggested index for one statement.
type MissingIndex struct {
	ImpactPercent     float64  `json:"impact_percent"`
	Database          string   `json:"database"`
	Schema            string   `json:"schema"`
	Table             string   `json:"table"`
	EqualityColumns   []string `json:"equality_columns"`
	InequalityColumns []string `json:"inequality_columns"`
	IncludeColumns    []string `json:"include_columns"`
}

// SameIndex reports whether two hints target the same object with the same
// column lists. Impact is ignored.
func (m MissingIndex) SameIndex(o MissingIndex) bool {
	return m.Database == o.Database &&
		m.Schema == o.Schema &&
		m.Table == o.Table &&
		slices.Equal(m.EqualityColumns, o.EqualityColumns) &&
		slices.Equal(m.InequalityColumns, o.InequalityColumns) &&
		slices.Equal(m.IncludeColumns, o.IncludeColumns)
}

// Warning is one child of a showplan Warnings element. Attributes holds every
// XML attribute of that element verbatim.
type Warning struct {
	Type        string
	StatementID string
	Attributes  map[string]string
}

// MarshalJSON flattens the attribute bag next to type and statement_id.
func (w Warning) MarshalJSON() ([]byte, error) {
	out := make(map[string]string, len(w.Attributes)+2)
	maps.Copy(out, w.Attributes)
	out["type"] = w.Type
	out["statement_id"] = w.StatementID
	return json.Marshal(out)
}

func (w *Warning) UnmarshalJSON(data []byte) error {
	var raw map[string]string
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	w.Type = raw["type"]
	w.StatementID = raw["statement_id"]
	delete(raw, "type")
	delete(raw, "statement_id")
	w.Attributes = raw
	return nil
}

type Summary struct {
	TotalEstimatedCost float64        `json:"total_estimated_cost"`
	TotalElapsedTimeMs int64          `json:"total_elapsed_time_ms"`
	TotalCPUTimeMs     int64          `json:"total_cpu_time_ms"`
	TotalLogicalReads  int64          `json:"total_logical_reads"`
	TotalStatements    int            `json:"total_statements"`
	OptimizerTimeouts  int            `json:"optimizer_timeouts"`
	TotalWaitTimeMs    int64          `json:"total_wait_time_ms"`
	MissingIndexes     []MissingIndex `json:"missing_indexes"`
	TotalWarnings      int            `json:"total_warnings"`
}

// Metric returns one of the comparison metrics by key. An unknown key is a
// caller bug and panics.
func (s Summary) Metric(key string) float64 {
	switch key {
	case MetricTotalEstimatedCost:
		return s.TotalEstimatedCost
	case MetricTotalElapsedTimeMs:
		return float64(s.TotalElapsedTimeMs)
	case MetricTotalCPUTimeMs:
		return float64(s.TotalCPUTimeMs)
	case MetricTotalLogicalReads:
		return float64(s.TotalLogicalReads)
	case MetricTotalStatements:
		return float64(s.TotalStatements)
	case MetricOptimizerTimeouts:
		return float64(s.OptimizerTimeouts)
	case MetricTotalWaitTimeMs:
		return float64(s.TotalWaitTimeMs)
	default:
		panic(fmt.Sprintf("plan: unknown summary metric %q", key))
	}
}
