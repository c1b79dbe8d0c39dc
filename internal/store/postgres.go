package store

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
)

var postgresDialect = dialect{
	id:    "BIGSERIAL PRIMARY KEY",
	int:   "BIGINT",
	float: "DOUBLE PRECISION",
	bool:  "BOOLEAN",
}

type postgresStore struct {
	conn *pgx.Conn
}

func openPostgres(ctx context.Context, dsn string) (*postgresStore, error) {
	conn, err := pgx.Connect(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("connecting to results database: %w", err)
	}

	s := &postgresStore{conn: conn}
	if err := s.migrate(ctx); err != nil {
		_ = conn.Close(ctx)
		return nil, err
	}
	return s, nil
}

func (s *postgresStore) migrate(ctx context.Context) error {
	for _, ddl := range postgresDialect.schema() {
		if _, err := s.conn.Exec(ctx, ddl); err != nil {
			return fmt.Errorf("creating schema: %w", err)
		}
	}
	return nil
}

func (s *postgresStore) SaveRun(ctx context.Context, run Run) (int64, error) {
	t, err := s.conn.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("beginning transaction: %w", err)
	}
	defer func() { _ = t.Rollback(ctx) }()

	id, err := writeRun(ctx, pgTx{t}, run)
	if err != nil {
		return 0, err
	}

	if err := t.Commit(ctx); err != nil {
		return 0, fmt.Errorf("committing run: %w", err)
	}
	return id, nil
}

func (s *postgresStore) ListRuns(ctx context.Context, limit int) ([]RunInfo, error) {
	rows, err := s.conn.Query(ctx, listRunsQuery, limit)
	if err != nil {
		return nil, fmt.Errorf("listing runs: %w", err)
	}
	defer rows.Close()

	var runs []RunInfo
	for rows.Next() {
		info, err := scanRunInfo(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, info)
	}
	return runs, rows.Err()
}

func (s *postgresStore) Close() error {
	return s.conn.Close(context.Background())
}

type pgTx struct {
	tx pgx.Tx
}

func (t pgTx) Exec(ctx context.Context, query string, args ...any) error {
	_, err := t.tx.Exec(ctx, query, args...)
	return err
}

func (t pgTx) QueryRow(ctx context.Context, query string, args ...any) row {
	return t.tx.QueryRow(ctx, query, args...)
}
