package comparator

import (
	"math"

	"github.com/jacobarthurs/showplan/internal/plan"
)

// diffStatements pairs statements by position. Plan a is treated as the
// baseline, so Improved means plan b is lower.
func diffStatements(a, b []plan.Statement) []StatementDelta {
	deltas := []StatementDelta{}

	for i := 0; i < max(len(a), len(b)); i++ {
		if i >= len(a) {
			deltas = append(deltas, addedStatement(i+1, &b[i]))
			continue
		}
		if i >= len(b) {
			deltas = append(deltas, removedStatement(i+1, &a[i]))
			continue
		}
		deltas = append(deltas, diffStatement(i+1, &a[i], &b[i]))
	}

	return deltas
}

func diffStatement(pos int, old, new *plan.Statement) StatementDelta {
	delta := StatementDelta{
		Position:    pos,
		TextPreview: coalesce(new.TextPreview, old.TextPreview),
	}

	switch {
	case old.StatementType != new.StatementType:
		delta.ChangeType = TypeChanged
		delta.OldStatementType = old.StatementType
		delta.NewStatementType = new.StatementType
		delta.StatementType = new.StatementType
	case old.StatementText != new.StatementText:
		delta.ChangeType = TextChanged
		delta.StatementType = old.StatementType
	default:
		delta.ChangeType = Modified
		delta.StatementType = old.StatementType
	}

	delta.OldCost = old.EstimatedCost
	delta.NewCost = new.EstimatedCost
	delta.CostPct = round2(pctChange(old.EstimatedCost, new.EstimatedCost))
	delta.CostDir = direction(old.EstimatedCost, new.EstimatedCost)

	delta.OldElapsed = old.ElapsedTimeMs
	delta.NewElapsed = new.ElapsedTimeMs
	delta.ElapsedPct = round2(pctChange(float64(old.ElapsedTimeMs), float64(new.ElapsedTimeMs)))
	delta.ElapsedDir = direction(float64(old.ElapsedTimeMs), float64(new.ElapsedTimeMs))

	delta.OldReads = old.LogicalReads
	delta.NewReads = new.LogicalReads
	delta.ReadsDir = direction(float64(old.LogicalReads), float64(new.LogicalReads))

	delta.OldNodes = len(old.NodeDetails)
	delta.NewNodes = len(new.NodeDetails)

	delta.OldTimeout = old.EarlyAbortReason == plan.TimeoutAbortReason
	delta.NewTimeout = new.EarlyAbortReason == plan.TimeoutAbortReason

	delta.OldMissingIndexes = len(old.MissingIndexes)
	delta.NewMissingIndexes = len(new.MissingIndexes)

	if delta.ChangeType == Modified && !isSignificant(delta) {
		delta.ChangeType = NoChange
	}
	delta.Change = delta.ChangeType.String()

	return delta
}

func addedStatement(pos int, s *plan.Statement) StatementDelta {
	return StatementDelta{
		Position:          pos,
		StatementType:     s.StatementType,
		TextPreview:       s.TextPreview,
		ChangeType:        Added,
		Change:            Added.String(),
		NewCost:           s.EstimatedCost,
		NewElapsed:        s.ElapsedTimeMs,
		NewReads:          s.LogicalReads,
		NewNodes:          len(s.NodeDetails),
		NewTimeout:        s.EarlyAbortReason == plan.TimeoutAbortReason,
		NewMissingIndexes: len(s.MissingIndexes),
	}
}

func removedStatement(pos int, s *plan.Statement) StatementDelta {
	return StatementDelta{
		Position:          pos,
		StatementType:     s.StatementType,
		TextPreview:       s.TextPreview,
		ChangeType:        Removed,
		Change:            Removed.String(),
		OldCost:           s.EstimatedCost,
		OldElapsed:        s.ElapsedTimeMs,
		OldReads:          s.LogicalReads,
		OldNodes:          len(s.NodeDetails),
		OldTimeout:        s.EarlyAbortReason == plan.TimeoutAbortReason,
		OldMissingIndexes: len(s.MissingIndexes),
	}
}

func isSignificant(d StatementDelta) bool {
	if d.CostDir != Unchanged || d.ElapsedDir != Unchanged || d.ReadsDir != Unchanged {
		return true
	}
	if d.OldNodes != d.NewNodes {
		return true
	}
	if d.OldTimeout != d.NewTimeout {
		return true
	}
	if d.OldMissingIndexes != d.NewMissingIndexes {
		return true
	}
	return false
}

// direction scores a lower-is-better value moving from old to new. Changes
// under SignificanceThresholdPct are Unchanged.
func direction(old, new float64) Direction {
	if math.Abs(pctChange(old, new)) < SignificanceThresholdPct {
		return Unchanged
	}
	if new < old {
		return Improved
	}
	return Regressed
}

// pctChange is (new - old) / old * 100. A zero baseline yields 0 when both
// are zero and 100 otherwise.
func pctChange(old, new float64) float64 {
	if old == 0 {
		if new == 0 {
			return 0
		}
		return 100
	}
	return ((new - old) / old) * 100
}

func coalesce(a, b string) string {
	if a != "" {
		return a
	}
	return b
}
