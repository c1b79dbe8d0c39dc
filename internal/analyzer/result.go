package analyzer

import (
	"fmt"

	"github.com/samber/lo"
)

type Severity int

const (
	Info     Severity = 0
	Warning  Severity = 1
	Critical Severity = 2
)

func (s Severity) String() string {
	switch s {
	case Info:
		return "info"
	case Warning:
		return "warning"
	case Critical:
		return "critical"
	default:
		return "unknown"
	}
}

func (s Severity) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func (s *Severity) UnmarshalText(text []byte) error {
	switch string(text) {
	case "info":
		*s = Info
	case "warning":
		*s = Warning
	case "critical":
		*s = Critical
	default:
		return fmt.Errorf("unknown severity %q", text)
	}
	return nil
}

type Finding struct {
	Severity    Severity `json:"severity"`
	StatementID string   `json:"statement_id"`
	NodeID      int      `json:"node_id,omitempty"`
	NodeType    string   `json:"node_type,omitempty"`
	Relation    string   `json:"relation,omitempty"`
	Description string   `json:"description"`
	Suggestion  string   `json:"suggestion,omitempty"`
}

type AnalysisResult struct {
	PlanName      string    `json:"plan_name"`
	Findings      []Finding `json:"findings"`
	TotalCost     float64   `json:"total_cost"`
	ElapsedTimeMs int64     `json:"elapsed_time_ms"`
	CPUTimeMs     int64     `json:"cpu_time_ms"`
}

// Count returns the number of findings with the given severity.
func (r AnalysisResult) Count(sev Severity) int {
	return lo.CountBy(r.Findings, func(f Finding) bool {
		return f.Severity == sev
	})
}
