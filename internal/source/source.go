package source

import (
	"context"
	"fmt"
	"iter"

	"github.com/agnvar/agnvar/internal/frame"
)

const (
	// DefaultTable is the only table in the AGN parameter database.
	DefaultTable = "agn_params"
	// DefaultChunkSize is the number of rows per batch.
	DefaultChunkSize = 200000
)

// Column names of the AGN parameter table.
const (
	ColGalaxyID    = "galaxy_id"
	ColMagNorm     = "magNorm"
	ColVarParamStr = "varParamStr"
)

// Batch is one chunk of AGN parameter rows.
type Batch struct {
	Index int
	Frame *frame.Frame
}

// Reader streams the AGN parameter table in fixed-size batches.
type Reader interface {
	Open(ctx context.Context) error
	Tables(ctx context.Context) ([]string, error)
	Count(ctx context.Context) (int64, error)
	// Chunks yields batches in table order. Each call restarts from the
	// first row. Iteration stops after the first error.
	Chunks(ctx context.Context) iter.Seq2[*Batch, error]
	Close() error
}

// DataSourceError reports an AGN database that cannot be opened or read.
type DataSourceError struct {
	Path string
	Err  error
}

func (e *DataSourceError) Error() string {
	return fmt.Sprintf("data source %s: %v", e.Path, e.Err)
}

func (e *DataSourceError) Unwrap() error { return e.Err }

// ChunkCount returns how many batches a table of rows splits into.
func ChunkCount(rows int64, chunkSize int) int {
	if rows <= 0 || chunkSize <= 0 {
		return 0
	}
	return int((rows + int64(chunkSize) - 1) / int64(chunkSize))
}
