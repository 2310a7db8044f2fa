package source

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	_ "modernc.org/sqlite"
)

// writeAGNDB creates an agn_params table with n rows whose galaxy_id is
// 1000+i.
func writeAGNDB(t *testing.T, n int) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "agn.db")
	db, err := sql.Open("sqlite", path)
	if err != nil {
		t.Fatalf("failed to open db: %v", err)
	}
	defer db.Close()

	if _, err := db.Exec(`CREATE TABLE agn_params (galaxy_id INTEGER, magNorm REAL, varParamStr TEXT)`); err != nil {
		t.Fatalf("failed to create table: %v", err)
	}
	tx, err := db.Begin()
	if err != nil {
		t.Fatal(err)
	}
	for i := 0; i < n; i++ {
		blob := fmt.Sprintf(`{"m": "applyAgn", "p": {"seed": %d, "agn_tau_u": %d.5}}`, i, i)
		if _, err := tx.Exec(`INSERT INTO agn_params VALUES (?, ?, ?)`, 1000+i, 20.0+float64(i)/10, blob); err != nil {
			t.Fatalf("failed to insert: %v", err)
		}
	}
	if err := tx.Commit(); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestSQLiteReader_ChunksCoverTableInOrder(t *testing.T) {
	path := writeAGNDB(t, 7)
	r := NewSQLiteReader(path, "", 3)
	if err := r.Open(context.Background()); err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer r.Close()

	var sizes []int
	var ids []int64
	for b, err := range r.Chunks(context.Background()) {
		if err != nil {
			t.Fatalf("chunk error: %v", err)
		}
		if b.Index != len(sizes) {
			t.Errorf("batch index = %d, want %d", b.Index, len(sizes))
		}
		sizes = append(sizes, b.Frame.Len())
		got, err := b.Frame.Int64s(ColGalaxyID)
		if err != nil {
			t.Fatal(err)
		}
		ids = append(ids, got...)
	}

	if len(sizes) != 3 || sizes[0] != 3 || sizes[1] != 3 || sizes[2] != 1 {
		t.Errorf("chunk sizes = %v, want [3 3 1]", sizes)
	}
	for i, id := range ids {
		if id != int64(1000+i) {
			t.Fatalf("ids out of order at %d: %v", i, ids)
		}
	}
}

func TestSQLiteReader_ChunksRestartable(t *testing.T) {
	path := writeAGNDB(t, 5)
	r := NewSQLiteReader(path, DefaultTable, 2)
	if err := r.Open(context.Background()); err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer r.Close()

	count := func() int {
		n := 0
		for b, err := range r.Chunks(context.Background()) {
			if err != nil {
				t.Fatalf("chunk error: %v", err)
			}
			n += b.Frame.Len()
		}
		return n
	}
	if first, second := count(), count(); first != 5 || second != 5 {
		t.Errorf("row counts across enumerations = %d, %d; want 5, 5", first, second)
	}
}

func TestSQLiteReader_CountAndTables(t *testing.T) {
	path := writeAGNDB(t, 4)
	r := NewSQLiteReader(path, "", 0)
	if r.ChunkSize() != DefaultChunkSize {
		t.Errorf("ChunkSize = %d, want %d", r.ChunkSize(), DefaultChunkSize)
	}
	if err := r.Open(context.Background()); err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer r.Close()

	n, err := r.Count(context.Background())
	if err != nil {
		t.Fatalf("Count: %v", err)
	}
	if n != 4 {
		t.Errorf("Count = %d, want 4", n)
	}
	tables, err := r.Tables(context.Background())
	if err != nil {
		t.Fatalf("Tables: %v", err)
	}
	if len(tables) != 1 || tables[0] != DefaultTable {
		t.Errorf("Tables = %v, want [agn_params]", tables)
	}
}

func TestSQLiteReader_MissingFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nope.db")
	r := NewSQLiteReader(path, "", 10)
	err := r.Open(context.Background())

	var dse *DataSourceError
	if !errors.As(err, &dse) {
		t.Fatalf("expected DataSourceError, got %v", err)
	}
	if _, statErr := os.Stat(path); !os.IsNotExist(statErr) {
		t.Error("Open must not create the database file")
	}
}

func TestSQLiteReader_MissingTable(t *testing.T) {
	path := writeAGNDB(t, 1)
	r := NewSQLiteReader(path, "other_table", 10)
	err := r.Open(context.Background())

	var dse *DataSourceError
	if !errors.As(err, &dse) {
		t.Fatalf("expected DataSourceError, got %v", err)
	}
}

func TestSQLiteReader_ChunksBeforeOpen(t *testing.T) {
	r := NewSQLiteReader("unused.db", "", 10)
	for _, err := range r.Chunks(context.Background()) {
		var dse *DataSourceError
		if !errors.As(err, &dse) {
			t.Fatalf("expected DataSourceError, got %v", err)
		}
	}
}

func TestMockReader_ChunkError(t *testing.T) {
	m := &MockReader{
		Batches:    []*Batch{{Index: 0}, {Index: 1}},
		ChunkErrAt: 1,
		ChunkErr:   errors.New("disk I/O error"),
	}
	var seen int
	var gotErr error
	for _, err := range m.Chunks(context.Background()) {
		if err != nil {
			gotErr = err
			break
		}
		seen++
	}
	if seen != 1 || gotErr == nil {
		t.Errorf("seen=%d err=%v; want one batch then an error", seen, gotErr)
	}
}

func TestChunkCount(t *testing.T) {
	tests := []struct {
		rows int64
		size int
		want int
	}{
		{0, 200000, 0},
		{1, 200000, 1},
		{200000, 200000, 1},
		{200001, 200000, 2},
		{10, 0, 0},
	}
	for _, tt := range tests {
		if got := ChunkCount(tt.rows, tt.size); got != tt.want {
			t.Errorf("ChunkCount(%d, %d) = %d, want %d", tt.rows, tt.size, got, tt.want)
		}
	}
}
