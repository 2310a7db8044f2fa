package source

import (
	"context"
	"iter"
)

// MockReader is a test double for the Reader interface.
type MockReader struct {
	OpenErr  error
	TableSet []string
	Batches  []*Batch
	// ChunkErrAt makes Chunks fail when it reaches this batch index.
	ChunkErrAt int
	ChunkErr   error

	Opened bool
	Closed bool
}

func (m *MockReader) Open(_ context.Context) error {
	if m.OpenErr != nil {
		return m.OpenErr
	}
	m.Opened = true
	return nil
}

func (m *MockReader) Tables(_ context.Context) ([]string, error) {
	if m.TableSet == nil {
		return []string{DefaultTable}, nil
	}
	return m.TableSet, nil
}

func (m *MockReader) Count(_ context.Context) (int64, error) {
	var n int64
	for _, b := range m.Batches {
		n += int64(b.Frame.Len())
	}
	return n, nil
}

func (m *MockReader) Chunks(ctx context.Context) iter.Seq2[*Batch, error] {
	return func(yield func(*Batch, error) bool) {
		for i, b := range m.Batches {
			if m.ChunkErr != nil && i == m.ChunkErrAt {
				yield(nil, m.ChunkErr)
				return
			}
			if err := ctx.Err(); err != nil {
				yield(nil, err)
				return
			}
			if !yield(b, nil) {
				return
			}
		}
	}
}

func (m *MockReader) Close() error {
	m.Closed = true
	return nil
}
