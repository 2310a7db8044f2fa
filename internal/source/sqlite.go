package source

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"iter"
	"math"
	"os"
	"strings"

	"github.com/agnvar/agnvar/internal/frame"

	// SQLite driver
	_ "modernc.org/sqlite"
)

// SQLiteReader implements Reader for the file-backed AGN database.
type SQLiteReader struct {
	path      string
	table     string
	chunkSize int
	db        *sql.DB
}

// NewSQLiteReader creates a reader for the given database file. Empty table
// and non-positive chunk size fall back to the defaults.
func NewSQLiteReader(path, table string, chunkSize int) *SQLiteReader {
	if table == "" {
		table = DefaultTable
	}
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}
	return &SQLiteReader{path: path, table: table, chunkSize: chunkSize}
}

// ChunkSize returns the configured batch size.
func (r *SQLiteReader) ChunkSize() int { return r.chunkSize }

// Open checks the file exists, opens it and verifies the parameter table is
// present. sqlite would otherwise create an empty database at a bad path.
func (r *SQLiteReader) Open(ctx context.Context) error {
	info, err := os.Stat(r.path)
	if err != nil {
		return &DataSourceError{Path: r.path, Err: err}
	}
	if info.IsDir() {
		return &DataSourceError{Path: r.path, Err: errors.New("is a directory")}
	}

	db, err := sql.Open("sqlite", r.path)
	if err != nil {
		return &DataSourceError{Path: r.path, Err: fmt.Errorf("opening database: %w", err)}
	}
	db.SetMaxOpenConns(1)
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return &DataSourceError{Path: r.path, Err: fmt.Errorf("pinging database: %w", err)}
	}
	r.db = db

	tables, err := r.Tables(ctx)
	if err != nil {
		r.Close()
		return err
	}
	for _, t := range tables {
		if t == r.table {
			return nil
		}
	}
	r.Close()
	return &DataSourceError{Path: r.path, Err: fmt.Errorf("table %q not found (have %v)", r.table, tables)}
}

// Tables lists the tables in the database.
func (r *SQLiteReader) Tables(ctx context.Context) ([]string, error) {
	if r.db == nil {
		return nil, &DataSourceError{Path: r.path, Err: errors.New("not open")}
	}
	rows, err := r.db.QueryContext(ctx, "SELECT name FROM sqlite_master WHERE type='table' ORDER BY name")
	if err != nil {
		return nil, &DataSourceError{Path: r.path, Err: fmt.Errorf("listing tables: %w", err)}
	}
	defer rows.Close()

	var tables []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, &DataSourceError{Path: r.path, Err: fmt.Errorf("scanning table name: %w", err)}
		}
		tables = append(tables, name)
	}
	if err := rows.Err(); err != nil {
		return nil, &DataSourceError{Path: r.path, Err: err}
	}
	return tables, nil
}

// Count returns the number of rows in the parameter table.
func (r *SQLiteReader) Count(ctx context.Context) (int64, error) {
	if r.db == nil {
		return 0, &DataSourceError{Path: r.path, Err: errors.New("not open")}
	}
	var n int64
	q := fmt.Sprintf("SELECT COUNT(*) FROM %s", quoteIdent(r.table))
	if err := r.db.QueryRowContext(ctx, q).Scan(&n); err != nil {
		return 0, &DataSourceError{Path: r.path, Err: fmt.Errorf("counting rows: %w", err)}
	}
	return n, nil
}

// Chunks pages through the table by rowid so every batch costs the same
// regardless of its position.
func (r *SQLiteReader) Chunks(ctx context.Context) iter.Seq2[*Batch, error] {
	return func(yield func(*Batch, error) bool) {
		if r.db == nil {
			yield(nil, &DataSourceError{Path: r.path, Err: errors.New("not open")})
			return
		}
		lastRowID := int64(math.MinInt64)
		for index := 0; ; index++ {
			if err := ctx.Err(); err != nil {
				yield(nil, err)
				return
			}
			batch, next, err := r.readChunk(ctx, index, lastRowID)
			if err != nil {
				yield(nil, err)
				return
			}
			if batch == nil {
				return
			}
			if !yield(batch, nil) {
				return
			}
			lastRowID = next
		}
	}
}

func (r *SQLiteReader) readChunk(ctx context.Context, index int, after int64) (*Batch, int64, error) {
	q := fmt.Sprintf("SELECT rowid, %s, %s, %s FROM %s WHERE rowid > ? ORDER BY rowid LIMIT ?",
		quoteIdent(ColGalaxyID), quoteIdent(ColMagNorm), quoteIdent(ColVarParamStr), quoteIdent(r.table))
	rows, err := r.db.QueryContext(ctx, q, after, r.chunkSize)
	if err != nil {
		return nil, 0, &DataSourceError{Path: r.path, Err: fmt.Errorf("reading chunk %d: %w", index, err)}
	}
	defer rows.Close()

	ids := make([]int64, 0, r.chunkSize)
	mags := make([]float64, 0, r.chunkSize)
	blobs := make([]string, 0, r.chunkSize)
	last := after
	for rows.Next() {
		var (
			rowID int64
			id    int64
			mag   sql.NullFloat64
			blob  sql.NullString
		)
		if err := rows.Scan(&rowID, &id, &mag, &blob); err != nil {
			return nil, 0, &DataSourceError{Path: r.path, Err: fmt.Errorf("scanning chunk %d: %w", index, err)}
		}
		ids = append(ids, id)
		if mag.Valid {
			mags = append(mags, mag.Float64)
		} else {
			mags = append(mags, math.NaN())
		}
		blobs = append(blobs, blob.String)
		last = rowID
	}
	if err := rows.Err(); err != nil {
		return nil, 0, &DataSourceError{Path: r.path, Err: fmt.Errorf("iterating chunk %d: %w", index, err)}
	}
	if len(ids) == 0 {
		return nil, last, nil
	}

	f, err := frame.New(
		frame.NewInt64(ColGalaxyID, ids),
		frame.NewFloat64(ColMagNorm, mags),
		frame.NewString(ColVarParamStr, blobs),
	)
	if err != nil {
		return nil, 0, err
	}
	return &Batch{Index: index, Frame: f}, last, nil
}

// Close releases the database handle.
func (r *SQLiteReader) Close() error {
	if r.db == nil {
		return nil
	}
	err := r.db.Close()
	r.db = nil
	return err
}

func quoteIdent(s string) string {
	return `"` + strings.ReplaceAll(s, `"`, `""`) + `"`
}
