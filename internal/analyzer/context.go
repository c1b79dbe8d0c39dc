package analyzer

import (
	"regexp"
	"strings"

	"github.com/samber/lo"

	"github.com/jacobarthurs/showplan/internal/plan"
)

type PlanContext struct {
	// Warnings groups the plan's warning records by statement id.
	Warnings map[string][]plan.Warning
	AllNodes []*NodeRef
	// Objects counts how many operators touch each table reference.
	Objects map[string]int
}

type NodeRef struct {
	Node      *plan.OperatorNode
	Statement *plan.Statement
}

func BuildContext(a *plan.PlanAnalysis) PlanContext {
	ctx := PlanContext{
		Warnings: lo.GroupBy(a.Warnings, func(w plan.Warning) string {
			return w.StatementID
		}),
		Objects: make(map[string]int),
	}

	for i := range a.Statements {
		stmt := &a.Statements[i]
		for j := range stmt.NodeDetails {
			node := &stmt.NodeDetails[j]
			ctx.AllNodes = append(ctx.AllNodes, &NodeRef{Node: node, Statement: stmt})
			if node.TableIndex != "" {
				ctx.Objects[TableName(node.TableIndex)]++
			}
		}
	}

	return ctx
}

var (
	stringLiteralRe = regexp.MustCompile(`N?'[^']*'`)
	columnRefRe     = regexp.MustCompile(`(?:\[[^\]]+\]\.)+\[([^\]]+)\]`)
)

// ExtractConditionColumns returns the column names referenced by a showplan
// ScalarString, in order of first appearance.
func ExtractConditionColumns(cond string) []string {
	if cond == "" {
		return nil
	}
	cleaned := stringLiteralRe.ReplaceAllString(cond, "")
	var cols []string
	for _, m := range columnRefRe.FindAllStringSubmatch(cleaned, -1) {
		cols = append(cols, m[1])
	}
	return lo.Uniq(cols)
}

func ConditionColumnsNotIn(predicate, seek string) []string {
	seekCols := ExtractConditionColumns(seek)
	return lo.Filter(ExtractConditionColumns(predicate), func(col string, _ int) bool {
		return !lo.Contains(seekCols, col)
	})
}

// TableName drops the index part of a "[db].[schema].[table].[index]"
// reference. References with three or fewer parts are returned unchanged.
func TableName(ref string) string {
	parts := splitIdentifier(ref)
	if len(parts) == 4 {
		return strings.Join(parts[:3], ".")
	}
	return ref
}

// IndexName returns the index part of a four-part reference, or "".
func IndexName(ref string) string {
	parts := splitIdentifier(ref)
	if len(parts) == 4 {
		return parts[3]
	}
	return ""
}

func splitIdentifier(ref string) []string {
	var parts []string
	var b strings.Builder
	depth := 0
	for _, r := range ref {
		switch {
		case r == '[':
			depth++
		case r == ']':
			depth--
		case r == '.' && depth == 0:
			parts = append(parts, b.String())
			b.Reset()
			continue
		}
		b.WriteRune(r)
	}
	if b.Len() > 0 {
		parts = append(parts, b.String())
	}
	return parts
}
