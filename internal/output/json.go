package output

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/jacobarthurs/showplan/internal/analyzer"
	"github.com/jacobarthurs/showplan/internal/comparator"
	"github.com/jacobarthurs/showplan/internal/plan"
)

// ComparisonReport is the document written by compare.
type ComparisonReport struct {
	AnalysisTimestamp string                `json:"analysis_timestamp"`
	ConfigFile        string                `json:"config_file"`
	Plan1             plan.PlanAnalysis     `json:"plan1"`
	Plan2             plan.PlanAnalysis     `json:"plan2"`
	Comparison        comparator.Comparison `json:"comparison"`
}

// PlanReport is one analyzed plan with its findings.
type PlanReport struct {
	plan.PlanAnalysis
	Findings []analyzer.Finding `json:"findings"`
}

// SingleReport is the document written by analyze.
type SingleReport struct {
	AnalysisTimestamp string       `json:"analysis_timestamp"`
	TotalPlans        int          `json:"total_plans"`
	Plans             []PlanReport `json:"plans"`
}

func RenderJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	return enc.Encode(v)
}

// WriteJSONFile renders v to path, creating the parent directory.
func WriteJSONFile(path string, v any) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("creating output directory: %w", err)
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating %s: %w", path, err)
	}

	if err := RenderJSON(f, v); err != nil {
		_ = f.Close()
		return fmt.Errorf("writing %s: %w", path, err)
	}
	return f.Close()
}

// ReadReport decodes a document written by compare or analyze. Exactly one
// of the returned reports is non-nil.
func ReadReport(path string) (*ComparisonReport, *SingleReport, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, nil, fmt.Errorf("reading report: %w", err)
	}
	data = bytes.TrimPrefix(data, []byte{0xEF, 0xBB, 0xBF})

	var probe map[string]json.RawMessage
	if err := json.Unmarshal(data, &probe); err != nil {
		return nil, nil, fmt.Errorf("parsing report %s: %w", path, err)
	}

	switch {
	case probe["comparison"] != nil:
		var r ComparisonReport
		if err := json.Unmarshal(data, &r); err != nil {
			return nil, nil, fmt.Errorf("parsing report %s: %w", path, err)
		}
		return &r, nil, nil
	case probe["plans"] != nil:
		var r SingleReport
		if err := json.Unmarshal(data, &r); err != nil {
			return nil, nil, fmt.Errorf("parsing report %s: %w", path, err)
		}
		return nil, &r, nil
	default:
		return nil, nil, fmt.Errorf("%s is neither a comparison nor an analysis report", path)
	}
}
