package source

import (
	"context"
	"fmt"
	"io"
	"regexp"

	"github.com/jackc/pgx/v5"
)

var tableNamePattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*(\.[A-Za-z_][A-Za-z0-9_]*)?$`)

type PostgresSource struct {
	table   string
	columns []string
	conn    *pgx.Conn
	rows    pgx.Rows
}

// OpenPostgres streams one table over a live connection. The simple
// protocol keeps every value in text form, which is what the column
// profiler consumes. limit <= 0 reads the whole table.
func OpenPostgres(ctx context.Context, dsn, table string, limit int) (*PostgresSource, error) {
	if !tableNamePattern.MatchString(table) {
		return nil, fmt.Errorf("invalid table name %q", table)
	}

	cfg, err := pgx.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parsing dsn: %w", err)
	}
	cfg.DefaultQueryExecMode = pgx.QueryExecModeSimpleProtocol

	conn, err := pgx.ConnectConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("connecting: %w", err)
	}

	query := fmt.Sprintf("SELECT * FROM %s", table)
	if limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", limit)
	}
	rows, err := conn.Query(ctx, query)
	if err != nil {
		conn.Close(ctx)
		return nil, fmt.Errorf("querying %s: %w", table, err)
	}

	fields := rows.FieldDescriptions()
	columns := make([]string, len(fields))
	for i, fd := range fields {
		columns[i] = fd.Name
	}
	return &PostgresSource{table: table, columns: columns, conn: conn, rows: rows}, nil
}

func (s *PostgresSource) Name() string      { return s.table }
func (s *PostgresSource) Type() string      { return "postgres" }
func (s *PostgresSource) Columns() []string { return s.columns }

func (s *PostgresSource) Next() ([]string, error) {
	if !s.rows.Next() {
		if err := s.rows.Err(); err != nil {
			return nil, fmt.Errorf("reading %s: %w", s.table, err)
		}
		return nil, io.EOF
	}
	raw := s.rows.RawValues()
	row := make([]string, len(raw))
	for i, v := range raw {
		if v == nil {
			row[i] = "null"
			continue
		}
		row[i] = string(v)
	}
	return row, nil
}

func (s *PostgresSource) Close() error {
	s.rows.Close()
	return s.conn.Close(context.Background())
}
