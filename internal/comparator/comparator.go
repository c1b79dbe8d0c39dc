package comparator

import (
	"fmt"
	"math"

	"github.com/jacobarthurs/showplan/internal/plan"
)

// Metric is one summary value both plans are scored on.
type Metric struct {
	Key           string
	LowerIsBetter bool
}

// Metrics are compared in this order. Every metric is lower-is-better,
// total_statements included.
var Metrics = []Metric{
	{Key: plan.MetricTotalEstimatedCost, LowerIsBetter: true},
	{Key: plan.MetricTotalElapsedTimeMs, LowerIsBetter: true},
	{Key: plan.MetricTotalCPUTimeMs, LowerIsBetter: true},
	{Key: plan.MetricTotalLogicalReads, LowerIsBetter: true},
	{Key: plan.MetricTotalStatements, LowerIsBetter: true},
	{Key: plan.MetricOptimizerTimeouts, LowerIsBetter: true},
	{Key: plan.MetricTotalWaitTimeMs, LowerIsBetter: true},
}

// Compare scores plan a against plan b metric by metric. The plan with
// strictly more wins is the overall winner, otherwise the result is a tie.
func Compare(a, b plan.PlanAnalysis) Comparison {
	c := Comparison{
		PlanA:         a.Name(),
		PlanB:         b.Name(),
		Metrics:       make([]MetricResult, 0, len(Metrics)),
		WinnerReasons: []string{},
	}

	for _, m := range Metrics {
		r := m.compare(a.Summary.Metric(m.Key), b.Summary.Metric(m.Key))
		r.Winner = c.label(r.Side)

		switch r.Side {
		case PlanA:
			c.WinsA++
		case PlanB:
			c.WinsB++
		default:
			c.Ties++
		}

		c.Metrics = append(c.Metrics, r)
	}

	switch {
	case c.WinsA > c.WinsB:
		c.WinningSide = PlanA
	case c.WinsB > c.WinsA:
		c.WinningSide = PlanB
	default:
		c.WinningSide = Tie
	}
	c.Winner = c.label(c.WinningSide)

	if c.WinningSide != Tie {
		for _, r := range c.Metrics {
			if r.Side == c.WinningSide {
				c.WinnerReasons = append(c.WinnerReasons,
					fmt.Sprintf("%s: %s is %.1f%% better", r.Key, c.Winner, math.Abs(r.PercentDifference)))
			}
		}
	}

	c.Statements = diffStatements(a.Statements, b.Statements)

	return c
}

func (m Metric) compare(a, b float64) MetricResult {
	r := MetricResult{
		Key:               m.Key,
		ValueA:            a,
		ValueB:            b,
		LowerIsBetter:     m.LowerIsBetter,
		PercentDifference: round2(pctChange(b, a)),
	}

	switch {
	case a == b:
		r.Side = Tie
	case (a < b) == m.LowerIsBetter:
		r.Side = PlanA
	default:
		r.Side = PlanB
	}

	return r
}

func (c Comparison) label(s Side) string {
	switch s {
	case PlanA:
		return c.PlanA
	case PlanB:
		return c.PlanB
	default:
		return TieLabel
	}
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
