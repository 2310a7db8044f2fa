package validation

import (
	"fmt"

	"github.com/agnvar/agnvar/internal/frame"
)

// RowCountCheck holds the result of the chunk size bound.
type RowCountCheck struct {
	Rows    int    `json:"rows"`
	Limit   int    `json:"limit"`
	Match   bool   `json:"match"`
	Message string `json:"message,omitempty"`
}

// validateRowCount checks that a chunk holds no more rows than the source
// chunk it was derived from. The join only ever drops rows.
func (v *Validator) validateRowCount(f *frame.Frame) *RowCountCheck {
	check := &RowCountCheck{Rows: f.Len(), Limit: v.ChunkSize, Match: true}
	if v.ChunkSize > 0 && f.Len() > v.ChunkSize {
		check.Match = false
		check.Message = fmt.Sprintf("chunk has %d rows, source chunks hold at most %d", f.Len(), v.ChunkSize)
	}
	return check
}
