package plan

import (
	"errors"
	"os"
	"strings"

	"github.com/beevik/etree"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
)

var (
	errEmptyDocument = errors.New("document has no root element")
	errTrailingData  = errors.New("junk after document element")
)

// ParseExecutionPlan reads one showplan file and builds its PlanAnalysis.
// The returned error is always a *ParseError.
func ParseExecutionPlan(path string, opts ParserOptions) (PlanAnalysis, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return PlanAnalysis{}, &ParseError{Path: path, Err: err}
	}

	analysis, err := ParseXMLPlan(data, planNameFromPath(path), opts)
	if err != nil {
		var pe *ParseError
		if errors.As(err, &pe) {
			pe.Path = path
		}
		return PlanAnalysis{}, err
	}
	analysis.FilePath = path
	return analysis, nil
}

// ParseXMLPlan builds a PlanAnalysis from an in-memory showplan document.
func ParseXMLPlan(data []byte, planName string, opts ParserOptions) (PlanAnalysis, error) {
	root, err := readDocument(data)
	if err != nil {
		return PlanAnalysis{}, &ParseError{Err: err}
	}

	statements := []Statement{}
	warnings := []Warning{}
	for _, stmt := range findAll(root, "StmtSimple") {
		s, w := parseStatement(stmt, opts)
		statements = append(statements, s)
		warnings = append(warnings, w...)
	}

	return PlanAnalysis{
		PlanName:   planName,
		Statements: statements,
		Warnings:   warnings,
		Summary:    summarize(statements, warnings, opts),
	}, nil
}

// readDocument decodes UTF-8 or BOM-marked UTF-16 input (SSMS saves .sqlplan
// files as UTF-16) and returns the root element.
func readDocument(data []byte) (*etree.Element, error) {
	utf8Data, _, err := transform.Bytes(unicode.BOMOverride(unicode.UTF8.NewDecoder()), data)
	if err != nil {
		return nil, err
	}

	doc := etree.NewDocument()
	if err := doc.ReadFromBytes(utf8Data); err != nil {
		return nil, err
	}
	var root *etree.Element
	for _, tok := range doc.Child {
		switch t := tok.(type) {
		case *etree.Element:
			if root != nil {
				return nil, errTrailingData
			}
			root = t
		case *etree.CharData:
			if !t.IsWhitespace() {
				return nil, errTrailingData
			}
		}
	}
	if root == nil {
		return nil, errEmptyDocument
	}
	return root, nil
}

func parseStatement(stmt *etree.Element, opts ParserOptions) (Statement, []Warning) {
	id := stmt.SelectAttrValue("StatementId", "")
	text := stmt.SelectAttrValue("StatementText", "")

	s := Statement{
		StatementID:      id,
		StatementType:    stmt.SelectAttrValue("StatementType", ""),
		StatementText:    text,
		TextPreview:      opts.preview(text),
		EstimatedCost:    attrFloat(stmt, "StatementSubTreeCost"),
		EstimatedRows:    attrFloat(stmt, "StatementEstRows"),
		OptimizerLevel:   stmt.SelectAttrValue("StatementOptmLevel", ""),
		EarlyAbortReason: stmt.SelectAttrValue("StatementOptmEarlyAbortReason", ""),
	}

	if qts := findFirst(stmt, "QueryTimeStats", nil); qts != nil {
		s.CPUTimeMs = attrInt(qts, "CpuTime")
		s.ElapsedTimeMs = attrInt(qts, "ElapsedTime")
	}
	s.WaitTimeMs = s.ElapsedTimeMs - s.CPUTimeMs

	// Only thread 0 is read; per-thread counters of parallel plans are not summed.
	if rc := findFirst(stmt, "RunTimeCountersPerThread", threadZero); rc != nil {
		s.LogicalReads = attrInt(rc, "ActualLogicalReads")
		s.ActualRows = attrInt(rc, "ActualRows")
		s.ActualExecutions = attrInt(rc, "ActualExecutions")
	}

	s.MissingIndexes = parseMissingIndexes(stmt)

	s.NodeDetails = []OperatorNode{}
	for i, op := range findAll(stmt, "RelOp") {
		s.NodeDetails = append(s.NodeDetails, parseOperator(op, id, i+1))
	}

	return s, parseWarnings(stmt, id)
}

func parseOperator(op *etree.Element, statementID string, nodeID int) OperatorNode {
	logical := op.SelectAttrValue("LogicalOp", "")
	parallel := op.SelectAttrValue("Parallel", "")

	node := OperatorNode{
		StatementID:         statementID,
		NodeID:              nodeID,
		NodeType:            logical,
		PhysicalOp:          op.SelectAttrValue("PhysicalOp", ""),
		LogicalOp:           logical,
		EstimatedCost:       attrFloat(op, "EstimatedTotalSubtreeCost"),
		EstimatedRows:       attrFloat(op, "EstimateRows"),
		EstimatedCPUCost:    attrFloat(op, "EstimateCPU"),
		EstimatedIOCost:     attrFloat(op, "EstimateIO"),
		EstimatedExecutions: attrFloat(op, "EstimateExecutions"),
		Parallel:            parallel == "1" || parallel == "true",
	}

	if rti := child(op, "RunTimeInformation"); rti != nil {
		if rc := child(rti, "RunTimeCountersPerThread"); rc != nil {
			node.ActualRows = attrInt(rc, "ActualRows")
			node.ActualExecutions = attrInt(rc, "ActualExecutions")
			node.ActualRebinds = attrInt(rc, "ActualRebinds")
			node.ActualRewinds = attrInt(rc, "ActualRewinds")
		}
	}

	indexScan := child(op, "IndexScan")
	tableScan := child(op, "TableScan")

	node.TableIndex = resolveObject(op, indexScan, tableScan)

	if indexScan != nil {
		node.SeekPredicates = seekPredicates(indexScan)
	}
	for _, scan := range []*etree.Element{indexScan, tableScan} {
		if scan == nil {
			continue
		}
		if p := firstPredicate(scan); p != "" {
			node.Predicate = p
			break
		}
	}

	if ol := child(op, "OutputList"); ol != nil {
		node.OutputList = outputColumns(ol)
	}

	if w := child(op, "Warnings"); w != nil {
		var names []string
		for _, c := range w.ChildElements() {
			names = append(names, c.Tag)
		}
		node.Warnings = strings.Join(names, ", ")
	}

	return node
}

// resolveObject names the object an operator touches, checking index scans,
// then table scans. Failing those, only the first modification operator
// present is consulted, even when it carries no Object.
func resolveObject(op, indexScan, tableScan *etree.Element) string {
	for _, scan := range []*etree.Element{indexScan, tableScan} {
		if scan == nil {
			continue
		}
		if obj := child(scan, "Object"); obj != nil {
			return formatObject(obj)
		}
	}

	for _, tag := range []string{"Update", "Insert", "Delete"} {
		modify := child(op, tag)
		if modify == nil {
			continue
		}
		if obj := child(modify, "Object"); obj != nil {
			return formatObject(obj)
		}
		return ""
	}
	return ""
}

func formatObject(obj *etree.Element) string {
	var parts []string
	if db := obj.SelectAttrValue("Database", ""); db != "" {
		parts = append(parts, bracket(db))
	}
	parts = append(parts,
		bracket(obj.SelectAttrValue("Schema", "")),
		bracket(obj.SelectAttrValue("Table", "")),
	)
	if idx := obj.SelectAttrValue("Index", ""); idx != "" {
		parts = append(parts, bracket(idx))
	}
	return strings.Join(parts, ".")
}

// bracket quotes an identifier unless the plan already quoted it.
func bracket(name string) string {
	if strings.HasPrefix(name, "[") && strings.HasSuffix(name, "]") {
		return name
	}
	return "[" + name + "]"
}

func seekPredicates(indexScan *etree.Element) string {
	var preds []string
	for _, sp := range children(indexScan, "SeekPredicates") {
		for _, so := range findAll(sp, "ScalarOperator") {
			if s := so.SelectAttrValue("ScalarString", ""); s != "" {
				preds = append(preds, s)
			}
		}
	}
	return strings.Join(preds, " AND ")
}

func firstPredicate(scan *etree.Element) string {
	for _, p := range findAll(scan, "Predicate") {
		for _, so := range children(p, "ScalarOperator") {
			if s := so.SelectAttrValue("ScalarString", ""); s != "" {
				return s
			}
		}
	}
	return ""
}

func outputColumns(outputList *etree.Element) string {
	var cols []string
	for _, ref := range findAll(outputList, "ColumnReference") {
		if col := ref.SelectAttrValue("Column", ""); col != "" {
			cols = append(cols, col)
		}
	}
	if len(cols) > MaxOutputColumns {
		return strings.Join(cols[:MaxOutputColumns], ", ") + TruncationMarker
	}
	return strings.Join(cols, ", ")
}

func parseMissingIndexes(stmt *etree.Element) []MissingIndex {
	hints := []MissingIndex{}
	for _, group := range findAll(stmt, "MissingIndexGroup") {
		mi := findFirst(group, "MissingIndex", nil)
		if mi == nil {
			continue
		}

		hint := MissingIndex{
			ImpactPercent:     attrFloat(group, "Impact"),
			Database:          mi.SelectAttrValue("Database", ""),
			Schema:            mi.SelectAttrValue("Schema", ""),
			Table:             mi.SelectAttrValue("Table", ""),
			EqualityColumns:   []string{},
			InequalityColumns: []string{},
			IncludeColumns:    []string{},
		}

		for _, cg := range findAll(mi, "ColumnGroup") {
			var cols []string
			for _, col := range findAll(cg, "Column") {
				cols = append(cols, col.SelectAttrValue("Name", ""))
			}
			switch cg.SelectAttrValue("Usage", "") {
			case "EQUALITY":
				hint.EqualityColumns = append(hint.EqualityColumns, cols...)
			case "INEQUALITY":
				hint.InequalityColumns = append(hint.InequalityColumns, cols...)
			case "INCLUDE":
				hint.IncludeColumns = append(hint.IncludeColumns, cols...)
			}
		}

		hints = append(hints, hint)
	}
	return hints
}

// parseWarnings turns every child of every Warnings container in the
// statement into a Warning, whatever its tag.
func parseWarnings(stmt *etree.Element, statementID string) []Warning {
	var warnings []Warning
	for _, container := range findAll(stmt, "Warnings") {
		for _, c := range container.ChildElements() {
			warnings = append(warnings, Warning{
				Type:        c.Tag,
				StatementID: statementID,
				Attributes:  attributes(c),
			})
		}
	}
	return warnings
}

func summarize(statements []Statement, warnings []Warning, opts ParserOptions) Summary {
	summary := Summary{
		MissingIndexes: []MissingIndex{},
	}

	for _, s := range statements {
		summary.TotalEstimatedCost += s.EstimatedCost
		summary.TotalElapsedTimeMs += s.ElapsedTimeMs
		summary.TotalCPUTimeMs += s.CPUTimeMs
		summary.TotalLogicalReads += s.LogicalReads
		summary.TotalStatements++

		if s.EarlyAbortReason == TimeoutAbortReason {
			summary.OptimizerTimeouts++
		}

		for _, mi := range s.MissingIndexes {
			if opts.DedupeMissingIndexes && containsIndex(summary.MissingIndexes, mi) {
				continue
			}
			summary.MissingIndexes = append(summary.MissingIndexes, mi)
		}
	}

	summary.TotalWaitTimeMs = summary.TotalElapsedTimeMs - summary.TotalCPUTimeMs
	summary.TotalWarnings = len(warnings)

	return summary
}

func containsIndex(hints []MissingIndex, mi MissingIndex) bool {
	for _, h := range hints {
		if h.SameIndex(mi) {
			return true
		}
	}
	return false
}
