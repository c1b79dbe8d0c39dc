package comparator

// TieLabel is reported as the winner when neither plan is better.
const TieLabel = "tie"

// Side identifies which of the two compared plans won a metric. It does not
// rely on plan names, so two plans with the same display name still compare.
type Side int

const (
	Tie   Side = 0
	PlanA Side = 1
	PlanB Side = 2
)

func (s Side) String() string {
	switch s {
	case PlanA:
		return "a"
	case PlanB:
		return "b"
	default:
		return TieLabel
	}
}

type Direction int

const (
	Unchanged Direction = 0
	Improved  Direction = 1
	Regressed Direction = 2

	SignificanceThresholdPct = 1.0
)

func (d Direction) String() string {
	switch d {
	case Improved:
		return "improved"
	case Regressed:
		return "regressed"
	default:
		return "unchanged"
	}
}

type ChangeType int

const (
	NoChange    ChangeType = 0
	Modified    ChangeType = 1
	Added       ChangeType = 2
	Removed     ChangeType = 3
	TypeChanged ChangeType = 4
	TextChanged ChangeType = 5
)

func (c ChangeType) String() string {
	switch c {
	case Modified:
		return "modified"
	case Added:
		return "added"
	case Removed:
		return "removed"
	case TypeChanged:
		return "type_changed"
	case TextChanged:
		return "text_changed"
	default:
		return "no_change"
	}
}

// MetricResult is the outcome of one summary metric. PercentDifference is
// (a - b) / b * 100, rounded to two decimals.
type MetricResult struct {
	Key               string  `json:"metric"`
	ValueA            float64 `json:"value_a"`
	ValueB            float64 `json:"value_b"`
	Winner            string  `json:"winner"`
	Side              Side    `json:"-"`
	LowerIsBetter     bool    `json:"lower_is_better"`
	PercentDifference float64 `json:"percent_difference"`
}

type Comparison struct {
	PlanA         string           `json:"plan1_name"`
	PlanB         string           `json:"plan2_name"`
	Metrics       []MetricResult   `json:"metrics"`
	Winner        string           `json:"winner"`
	WinningSide   Side             `json:"-"`
	WinsA         int              `json:"plan1_wins"`
	WinsB         int              `json:"plan2_wins"`
	Ties          int              `json:"ties"`
	WinnerReasons []string         `json:"winner_reasons"`
	Statements    []StatementDelta `json:"statement_deltas"`
}

// Metric returns the result for key and whether it was compared.
func (c Comparison) Metric(key string) (MetricResult, bool) {
	for _, m := range c.Metrics {
		if m.Key == key {
			return m, true
		}
	}
	return MetricResult{}, false
}

// StatementDelta pairs the statements of both plans by position.
type StatementDelta struct {
	Position      int        `json:"position"`
	StatementType string     `json:"statement_type"`
	TextPreview   string     `json:"statement_text_preview"`
	ChangeType    ChangeType `json:"-"`
	Change        string     `json:"change"`

	OldStatementType string `json:"old_statement_type,omitempty"`
	NewStatementType string `json:"new_statement_type,omitempty"`

	OldCost float64   `json:"cost_a"`
	NewCost float64   `json:"cost_b"`
	CostPct float64   `json:"cost_pct"`
	CostDir Direction `json:"-"`

	OldElapsed int64     `json:"elapsed_ms_a"`
	NewElapsed int64     `json:"elapsed_ms_b"`
	ElapsedPct float64   `json:"elapsed_pct"`
	ElapsedDir Direction `json:"-"`

	OldReads int64     `json:"logical_reads_a"`
	NewReads int64     `json:"logical_reads_b"`
	ReadsDir Direction `json:"-"`

	OldNodes int `json:"nodes_a"`
	NewNodes int `json:"nodes_b"`

	OldTimeout bool `json:"timeout_a"`
	NewTimeout bool `json:"timeout_b"`

	OldMissingIndexes int `json:"missing_indexes_a"`
	NewMissingIndexes int `json:"missing_indexes_b"`
}
