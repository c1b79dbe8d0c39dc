package plan

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/beevik/etree"
	_ "github.com/microsoft/go-mssqldb"
)

var errNoShowplan = errors.New("query returned no showplan XML")

// Capture runs sql on the SQL Server behind connStr and returns its showplan
// XML. With estimated set the query is compiled but not executed. The work is
// always rolled back.
func Capture(ctx context.Context, connStr string, sql string, estimated bool) ([]byte, error) {
	if err := validateCaptureInput(connStr, sql); err != nil {
		return nil, err
	}

	db, err := openSQLServer(connStr)
	if err != nil {
		return nil, fmt.Errorf("connecting to database: %w", err)
	}
	defer db.Close()

	conn, err := db.Conn(ctx)
	if err != nil {
		return nil, fmt.Errorf("connecting to database: %w", err)
	}
	defer conn.Close()

	setting := "STATISTICS XML"
	if estimated {
		setting = "SHOWPLAN_XML"
	}
	if _, err := conn.ExecContext(ctx, "SET "+setting+" ON"); err != nil {
		return nil, fmt.Errorf("enabling %s: %w", setting, err)
	}
	defer func() { _, _ = conn.ExecContext(context.Background(), "SET "+setting+" OFF") }()

	tx, err := conn.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("beginning transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	rows, err := tx.QueryContext(ctx, sql)
	if err != nil {
		return nil, fmt.Errorf("executing query: %w", err)
	}
	defer rows.Close()

	docs, err := collectShowplans(rows)
	if err != nil {
		return nil, fmt.Errorf("reading showplan: %w", err)
	}

	return mergeShowplans(docs)
}

func openSQLServer(connStr string) (*sql.DB, error) {
	db, err := sql.Open("sqlserver", connStr)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	return db, nil
}

func validateCaptureInput(connStr, sql string) error {
	if strings.TrimSpace(connStr) == "" {
		return fmt.Errorf("--db or --profile is required to capture a plan")
	}
	upper := strings.ToUpper(strings.TrimSpace(sql))
	if upper == "" {
		return fmt.Errorf("query is empty")
	}
	if strings.HasPrefix(upper, "SET SHOWPLAN") || strings.HasPrefix(upper, "SET STATISTICS") {
		return fmt.Errorf("input already contains a SET SHOWPLAN/STATISTICS option; provide the query only")
	}
	return nil
}

// collectShowplans walks every result set and keeps the values that hold a
// showplan document. Ordinary query results are drained and discarded.
func collectShowplans(rows *sql.Rows) ([]string, error) {
	var docs []string
	for {
		cols, err := rows.Columns()
		if err != nil {
			return nil, err
		}

		for rows.Next() {
			values := make([]any, len(cols))
			ptrs := make([]any, len(cols))
			for i := range values {
				ptrs[i] = &values[i]
			}
			if err := rows.Scan(ptrs...); err != nil {
				return nil, err
			}
			for _, v := range values {
				if s, ok := showplanValue(v); ok {
					docs = append(docs, s)
				}
			}
		}
		if err := rows.Err(); err != nil {
			return nil, err
		}

		if !rows.NextResultSet() {
			break
		}
	}
	return docs, rows.Err()
}

func showplanValue(v any) (string, bool) {
	var s string
	switch t := v.(type) {
	case string:
		s = t
	case []byte:
		s = string(t)
	default:
		return "", false
	}
	trimmed := strings.TrimSpace(s)
	if strings.HasPrefix(trimmed, "<ShowPlanXML") || (strings.HasPrefix(trimmed, "<?xml") && strings.Contains(trimmed, "<ShowPlanXML")) {
		return trimmed, true
	}
	return "", false
}

// mergeShowplans folds the batches of every document into the first one so a
// multi-statement query is saved as a single .sqlplan file.
func mergeShowplans(docs []string) ([]byte, error) {
	if len(docs) == 0 {
		return nil, errNoShowplan
	}

	base := etree.NewDocument()
	if err := base.ReadFromString(docs[0]); err != nil {
		return nil, fmt.Errorf("parsing showplan: %w", err)
	}
	if base.Root() == nil {
		return nil, errNoShowplan
	}
	target := findFirst(base.Root(), "BatchSequence", nil)

	for _, d := range docs[1:] {
		if target == nil {
			break
		}
		doc := etree.NewDocument()
		if err := doc.ReadFromString(d); err != nil {
			return nil, fmt.Errorf("parsing showplan: %w", err)
		}
		if doc.Root() == nil {
			continue
		}
		seq := findFirst(doc.Root(), "BatchSequence", nil)
		if seq == nil {
			continue
		}
		for _, batch := range seq.ChildElements() {
			target.AddChild(batch.Copy())
		}
	}

	base.Indent(2)
	return base.WriteToBytes()
}
