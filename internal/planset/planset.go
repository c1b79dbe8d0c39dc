package planset

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/samber/lo"
)

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// ErrNotEnoughPlans is returned when a set has fewer active plans than an
// operation needs.
var ErrNotEnoughPlans = errors.New("not enough active plans")

// Plan is one entry of a plan-set file.
type Plan struct {
	ID          int    `json:"ID,omitempty"`
	Name        string `json:"Name"`
	Path        string `json:"FullPath"`
	Description string `json:"Description,omitempty"`
	Active      bool   `json:"Active"`
}

type Set struct {
	Source string
	Plans  []Plan
}

// entry accepts both the current (Name/FullPath) and the legacy
// (name/path) key spellings. encoding/json matches keys case-insensitively.
type entry struct {
	ID          *int    `json:"ID"`
	Name        *string `json:"Name"`
	FullPath    string  `json:"FullPath"`
	Path        string  `json:"path"`
	Description string  `json:"Description"`
	Active      bool    `json:"Active"`
}

func (e entry) plan(index int) Plan {
	p := Plan{
		ID:          index + 1,
		Name:        "Unknown",
		Path:        e.FullPath,
		Description: e.Description,
		Active:      e.Active,
	}
	if e.ID != nil {
		p.ID = *e.ID
	}
	if e.Name != nil {
		p.Name = *e.Name
	}
	if p.Path == "" {
		p.Path = e.Path
	}
	return p
}

// Load reads a plan-set file. A UTF-8 BOM is ignored.
func Load(path string) (*Set, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading plan set: %w", err)
	}

	plans, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("plan set %s: %w", path, err)
	}

	return &Set{Source: path, Plans: plans}, nil
}

// Parse decodes the three accepted shapes: an array of plan objects, a
// single plan object, or a legacy {"planFiles": [...]} document.
func Parse(data []byte) ([]Plan, error) {
	data = bytes.TrimSpace(bytes.TrimPrefix(data, utf8BOM))
	if len(data) == 0 {
		return nil, fmt.Errorf("empty plan set")
	}

	switch data[0] {
	case '[':
		var entries []entry
		if err := json.Unmarshal(data, &entries); err != nil {
			return nil, fmt.Errorf("invalid JSON: %w", err)
		}
		return toPlans(entries), nil
	case '{':
		return parseObject(data)
	default:
		return nil, fmt.Errorf("invalid JSON: expected an array or object")
	}
}

func parseObject(data []byte) ([]Plan, error) {
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(data, &obj); err != nil {
		return nil, fmt.Errorf("invalid JSON: %w", err)
	}

	if raw, ok := lookup(obj, "planFiles"); ok {
		var entries []entry
		if err := json.Unmarshal(raw, &entries); err != nil {
			return nil, fmt.Errorf("invalid planFiles: %w", err)
		}
		return toPlans(entries), nil
	}

	_, hasName := lookup(obj, "Name")
	_, hasPath := lookup(obj, "FullPath")
	if !hasName || !hasPath {
		return nil, fmt.Errorf("object is neither a plan (Name, FullPath) nor a planFiles list")
	}

	var e entry
	if err := json.Unmarshal(data, &e); err != nil {
		return nil, fmt.Errorf("invalid JSON: %w", err)
	}
	return []Plan{e.plan(0)}, nil
}

func lookup(obj map[string]json.RawMessage, key string) (json.RawMessage, bool) {
	k, ok := lo.Find(lo.Keys(obj), func(k string) bool {
		return strings.EqualFold(k, key)
	})
	if !ok {
		return nil, false
	}
	return obj[k], true
}

func toPlans(entries []entry) []Plan {
	return lo.Map(entries, func(e entry, i int) Plan {
		return e.plan(i)
	})
}

// Active returns the active plans in file order.
func (s *Set) Active() []Plan {
	return lo.Filter(s.Plans, func(p Plan, _ int) bool {
		return p.Active
	})
}

// ComparePair returns the first two active plans.
func (s *Set) ComparePair() (Plan, Plan, error) {
	if len(s.Plans) < 2 {
		return Plan{}, Plan{}, fmt.Errorf("%w: plan set must list at least 2 plans, found %d", ErrNotEnoughPlans, len(s.Plans))
	}
	active := s.Active()
	if len(active) < 2 {
		return Plan{}, Plan{}, fmt.Errorf("%w: need at least 2 active plans, found %d", ErrNotEnoughPlans, len(active))
	}
	return active[0], active[1], nil
}

// ForAnalysis returns every active plan, requiring at least one.
func (s *Set) ForAnalysis() ([]Plan, error) {
	active := s.Active()
	if len(active) == 0 {
		return nil, fmt.Errorf("%w: no active plan files found", ErrNotEnoughPlans)
	}
	return active, nil
}

// CheckExists reports a missing plan file before any parsing is attempted.
func (p Plan) CheckExists() error {
	info, err := os.Stat(p.Path)
	if err != nil {
		return fmt.Errorf("plan file not found for %q: %w", p.Name, err)
	}
	if info.IsDir() {
		return fmt.Errorf("plan path for %q is a directory: %s", p.Name, p.Path)
	}
	return nil
}
