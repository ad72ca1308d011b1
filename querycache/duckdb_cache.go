// Package querycache materializes a QueryResponse into a local DuckDB table
// so a caller can run further SQL (joins, aggregation, sorting) over a query
// result set without round-tripping to the platform again.
package querycache

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	_ "github.com/marcboeker/go-duckdb"

	"github.com/motionlake/seqstream-go/query"
)

// DefaultBatchSize bounds how many rows go into a single INSERT statement.
const DefaultBatchSize = 1000

// Row is one materialized (sequence, topic) pair from a QueryResponse.
type Row struct {
	Sequence string
	Topic    string
}

// Cache wraps a DuckDB connection holding one table of materialized query
// results at a time.
type Cache struct {
	db        *sql.DB
	tableName string
	batchSize int
}

// Option configures a Cache.
type Option func(*Cache)

// WithBatchSize overrides DefaultBatchSize.
func WithBatchSize(n int) Option {
	return func(c *Cache) {
		if n > 0 {
			c.batchSize = n
		}
	}
}

// WithTableName overrides the default materialized table name.
func WithTableName(name string) Option {
	return func(c *Cache) {
		if name != "" {
			c.tableName = name
		}
	}
}

// Open opens (or creates) a DuckDB database at path. Pass "" for an
// in-memory database.
func Open(path string, opts ...Option) (*Cache, error) {
	dsn := path
	if dsn == "" {
		dsn = ":memory:"
	}

	db, err := sql.Open("duckdb", dsn)
	if err != nil {
		return nil, fmt.Errorf("querycache: open duckdb: %w", err)
	}

	c := &Cache{db: db, tableName: "query_results", batchSize: DefaultBatchSize}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Materialize drops and recreates the cache's table, then bulk-inserts every
// item of resp in batches of c.batchSize.
func (c *Cache) Materialize(ctx context.Context, resp *query.Response) error {
	if err := c.createTable(ctx); err != nil {
		return err
	}

	rows := make([]Row, 0, resp.Len())
	for i := 0; i < resp.Len(); i++ {
		item := resp.At(i)
		for _, topic := range item.Topics {
			rows = append(rows, Row{Sequence: item.Sequence, Topic: topic})
		}
	}

	for start := 0; start < len(rows); start += c.batchSize {
		end := start + c.batchSize
		if end > len(rows) {
			end = len(rows)
		}
		if err := c.insertBatch(ctx, rows[start:end]); err != nil {
			return err
		}
	}
	return nil
}

func (c *Cache) createTable(ctx context.Context) error {
	_, err := c.db.ExecContext(ctx, fmt.Sprintf(
		`DROP TABLE IF EXISTS %s; CREATE TABLE %s (sequence_name VARCHAR, topic_name VARCHAR)`,
		c.tableName, c.tableName,
	))
	if err != nil {
		return fmt.Errorf("querycache: create table: %w", err)
	}
	return nil
}

func (c *Cache) insertBatch(ctx context.Context, rows []Row) error {
	if len(rows) == 0 {
		return nil
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "INSERT INTO %s (sequence_name, topic_name) VALUES ", c.tableName)
	args := make([]any, 0, len(rows)*2)
	for i, r := range rows {
		if i > 0 {
			sb.WriteString(", ")
		}
		sb.WriteString("(?, ?)")
		args = append(args, r.Sequence, r.Topic)
	}

	if _, err := c.db.ExecContext(ctx, sb.String(), args...); err != nil {
		return fmt.Errorf("querycache: insert batch: %w", err)
	}
	return nil
}

// Query runs an arbitrary read-only SQL statement against the materialized
// table and returns the raw *sql.Rows for the caller to scan.
func (c *Cache) Query(ctx context.Context, sqlText string, args ...any) (*sql.Rows, error) {
	rows, err := c.db.QueryContext(ctx, sqlText, args...)
	if err != nil {
		return nil, fmt.Errorf("querycache: query: %w", err)
	}
	return rows, nil
}

// TableName returns the name of the materialized table, for callers
// composing their own SQL around it.
func (c *Cache) TableName() string { return c.tableName }

// Close closes the underlying DuckDB connection.
func (c *Cache) Close() error {
	return c.db.Close()
}
