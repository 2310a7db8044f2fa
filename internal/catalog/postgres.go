package catalog

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/agnvar/agnvar/internal/frame"
)

// PostgresCatalog implements Catalog over a PostgreSQL table using pgx.
type PostgresCatalog struct {
	connStr string
	schema  string
	table   string
	columns ColumnMap
	pool    *pgxpool.Pool
}

// NewPostgresCatalog creates a catalog reading schema.table.
func NewPostgresCatalog(connStr, schema, table string, columns ColumnMap) *PostgresCatalog {
	if schema == "" {
		schema = "public"
	}
	return &PostgresCatalog{connStr: connStr, schema: schema, table: table, columns: columns}
}

// Connect opens the connection pool.
func (c *PostgresCatalog) Connect(ctx context.Context, maxConns int32) error {
	cfg, err := pgxpool.ParseConfig(c.connStr)
	if err != nil {
		return fmt.Errorf("parsing connection string: %w", err)
	}
	if maxConns > 0 {
		cfg.MaxConns = maxConns
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return fmt.Errorf("connecting to PostgreSQL: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return fmt.Errorf("pinging PostgreSQL: %w", err)
	}
	c.pool = pool
	return nil
}

// BuildQuery renders the SELECT for the given quantities and filters along
// with its positional arguments.
func (c *PostgresCatalog) BuildQuery(names []string, filters []Filter) (string, []any) {
	cols := make([]string, len(names))
	for i, n := range names {
		cols[i] = quoteIdentPg(c.columns.Resolve(n))
	}
	var b strings.Builder
	fmt.Fprintf(&b, "SELECT %s FROM %s.%s", strings.Join(cols, ", "), quoteIdentPg(c.schema), quoteIdentPg(c.table))

	args := make([]any, 0, len(filters))
	for i, f := range filters {
		if i == 0 {
			b.WriteString(" WHERE ")
		} else {
			b.WriteString(" AND ")
		}
		op := string(f.Op)
		if f.Op == OpEQ {
			op = "="
		}
		args = append(args, f.Value)
		fmt.Fprintf(&b, "%s %s $%d", quoteIdentPg(c.columns.Resolve(f.Column)), op, len(args))
	}
	return b.String(), args
}

func (c *PostgresCatalog) GetQuantities(ctx context.Context, names []string, filters []string) (*frame.Frame, error) {
	if c.pool == nil {
		return nil, fmt.Errorf("postgres catalog not connected")
	}
	parsed, err := ParseFilters(filters)
	if err != nil {
		return nil, err
	}
	sql, args := c.BuildQuery(names, parsed)

	rows, err := c.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("executing query: %w", err)
	}
	defer rows.Close()

	b := newBuilder(names)
	for rows.Next() {
		vals, err := rows.Values()
		if err != nil {
			return nil, fmt.Errorf("scanning row: %w", err)
		}
		if err := b.add(vals); err != nil {
			return nil, fmt.Errorf("converting row: %w", err)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating rows: %w", err)
	}
	return b.frame()
}

func (c *PostgresCatalog) Close(_ context.Context) error {
	if c.pool != nil {
		c.pool.Close()
	}
	return nil
}

func quoteIdentPg(s string) string {
	return `"` + strings.ReplaceAll(s, `"`, `""`) + `"`
}
