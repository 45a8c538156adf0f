package db

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/brojonat/whalealert/service/metrics"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// DefaultSchemaName is the Postgres schema that holds one table per partition.
const DefaultSchemaName = "whale"

// pgUndefinedTable is the SQLSTATE for a missing relation.
const pgUndefinedTable = "42P01"

// PostgresDB is a Database backed by Postgres. Each partition is a table in
// a dedicated schema with an index on the timestamp column.
type PostgresDB struct {
	pool    *pgxpool.Pool
	schema  string
	metrics *metrics.Metrics
}

// PostgresOption configures a PostgresDB.
type PostgresOption func(*PostgresDB)

// WithSchemaName overrides the Postgres schema holding the partitions.
func WithSchemaName(name string) PostgresOption {
	return func(p *PostgresDB) { p.schema = name }
}

// WithPostgresMetrics enables query metrics.
func WithPostgresMetrics(m *metrics.Metrics) PostgresOption {
	return func(p *PostgresDB) { p.metrics = m }
}

// NewPostgresDB creates a PostgresDB on an existing pool.
func NewPostgresDB(pool *pgxpool.Pool, opts ...PostgresOption) *PostgresDB {
	p := &PostgresDB{pool: pool, schema: DefaultSchemaName}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// EnsureSchema creates the partition schema if it does not exist.
func (p *PostgresDB) EnsureSchema(ctx context.Context) error {
	_, err := p.pool.Exec(ctx, "CREATE SCHEMA IF NOT EXISTS "+pgx.Identifier{p.schema}.Sanitize())
	if err != nil {
		return fmt.Errorf("failed to create schema %s: %w", p.schema, err)
	}
	return nil
}

func (p *PostgresDB) table(partition string) string {
	return pgx.Identifier{p.schema, partition}.Sanitize()
}

func (p *PostgresDB) record(operation, partition string, start time.Time, err error) {
	if p.metrics != nil {
		p.metrics.RecordDBQuery(operation, partition, time.Since(start).Seconds(), err)
	}
}

// CreatePartition creates the partition table and its timestamp index if absent.
func (p *PostgresDB) CreatePartition(ctx context.Context, name string, schema []Column) (err error) {
	if name == "" {
		return fmt.Errorf("partition name is required")
	}
	start := time.Now()
	defer func() { p.record("create_partition", name, start, err) }()

	defs := make([]string, 0, len(schema))
	for _, c := range schema {
		defs = append(defs, pgx.Identifier{c.Name}.Sanitize()+" "+c.Type+" NOT NULL")
	}

	tx, err := p.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	ddl := fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (%s)", p.table(name), strings.Join(defs, ", "))
	if _, err = tx.Exec(ctx, ddl); err != nil {
		return fmt.Errorf("failed to create partition %s: %w", name, err)
	}
	index := fmt.Sprintf("CREATE INDEX IF NOT EXISTS %s ON %s (%s)",
		pgx.Identifier{name + "_timestamp_idx"}.Sanitize(),
		p.table(name),
		pgx.Identifier{ColumnTimestamp}.Sanitize(),
	)
	if _, err = tx.Exec(ctx, index); err != nil {
		return fmt.Errorf("failed to index partition %s: %w", name, err)
	}
	if err = tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit partition %s: %w", name, err)
	}
	return nil
}

// InsertRow appends a row to an existing partition.
func (p *PostgresDB) InsertRow(ctx context.Context, partition string, row Row) (err error) {
	start := time.Now()
	defer func() { p.record("insert_row", partition, start, err) }()

	placeholders := make([]string, len(Schema))
	for i := range Schema {
		placeholders[i] = fmt.Sprintf("$%d", i+1)
	}
	query := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		p.table(partition), columnList(), strings.Join(placeholders, ", "))

	if _, err = p.pool.Exec(ctx, query, row.Values()...); err != nil {
		return mapPgError(partition, err)
	}
	return nil
}

// SelectRange returns the rows whose column value is within [low, high], ordered by timestamp.
func (p *PostgresDB) SelectRange(ctx context.Context, partition, column string, low, high int64) (out []Row, err error) {
	if _, ok := (Row{}).intColumn(column); !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownColumn, column)
	}
	start := time.Now()
	defer func() { p.record("select_range", partition, start, err) }()

	col := pgx.Identifier{column}.Sanitize()
	query := fmt.Sprintf("SELECT %s FROM %s WHERE %s >= $1 AND %s <= $2 ORDER BY %s",
		columnList(), p.table(partition), col, col, pgx.Identifier{ColumnTimestamp}.Sanitize())

	rows, err := p.pool.Query(ctx, query, low, high)
	if err != nil {
		return nil, mapPgError(partition, err)
	}
	out, err = pgx.CollectRows(rows, pgx.RowToStructByName[Row])
	if err != nil {
		return nil, mapPgError(partition, err)
	}
	return out, nil
}

// LastRow returns the row with the greatest timestamp, or nil for an empty partition.
func (p *PostgresDB) LastRow(ctx context.Context, partition string) (_ *Row, err error) {
	start := time.Now()
	defer func() { p.record("last_row", partition, start, err) }()

	query := fmt.Sprintf("SELECT %s FROM %s ORDER BY %s DESC LIMIT 1",
		columnList(), p.table(partition), pgx.Identifier{ColumnTimestamp}.Sanitize())

	rows, err := p.pool.Query(ctx, query)
	if err != nil {
		return nil, mapPgError(partition, err)
	}
	row, err := pgx.CollectOneRow(rows, pgx.RowToStructByName[Row])
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, mapPgError(partition, err)
	}
	return &row, nil
}

// ListPartitions returns the partition names in lexical order.
func (p *PostgresDB) ListPartitions(ctx context.Context) (names []string, err error) {
	start := time.Now()
	defer func() { p.record("list_partitions", p.schema, start, err) }()

	rows, err := p.pool.Query(ctx,
		`SELECT table_name FROM information_schema.tables
		 WHERE table_schema = $1 AND table_type = 'BASE TABLE'
		 ORDER BY table_name`, p.schema)
	if err != nil {
		return nil, fmt.Errorf("failed to list partitions: %w", err)
	}
	names, err = pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("failed to list partitions: %w", err)
	}
	return names, nil
}

// Columns returns the schema of a partition in ordinal order.
func (p *PostgresDB) Columns(ctx context.Context, partition string) (columns []Column, err error) {
	start := time.Now()
	defer func() { p.record("columns", partition, start, err) }()

	rows, err := p.pool.Query(ctx,
		`SELECT column_name, data_type FROM information_schema.columns
		 WHERE table_schema = $1 AND table_name = $2
		 ORDER BY ordinal_position`, p.schema, partition)
	if err != nil {
		return nil, fmt.Errorf("failed to read columns of %s: %w", partition, err)
	}
	columns, err = pgx.CollectRows(rows, func(row pgx.CollectableRow) (Column, error) {
		var c Column
		err := row.Scan(&c.Name, &c.Type)
		c.Type = strings.ToUpper(c.Type)
		return c, err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to read columns of %s: %w", partition, err)
	}
	if len(columns) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrNoPartition, partition)
	}
	return columns, nil
}

func columnList() string {
	names := make([]string, len(Schema))
	for i, c := range Schema {
		names[i] = pgx.Identifier{c.Name}.Sanitize()
	}
	return strings.Join(names, ", ")
}

func mapPgError(partition string, err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == pgUndefinedTable {
		return fmt.Errorf("%w: %s", ErrNoPartition, partition)
	}
	return fmt.Errorf("partition %s: %w", partition, err)
}
