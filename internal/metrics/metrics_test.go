package metrics

import (
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestObserveChunk(t *testing.T) {
	m := New()
	m.ObserveChunk("completed", 100, 97, 512, 1.5)
	m.ObserveChunk("failed", 50, 0, 0, 0.2)

	if got := testutil.ToFloat64(m.RowsRead); got != 150 {
		t.Errorf("rows read = %v, want 150", got)
	}
	if got := testutil.ToFloat64(m.RowsDropped); got != 53 {
		t.Errorf("rows dropped = %v, want 53", got)
	}
	if got := testutil.ToFloat64(m.Chunks.WithLabelValues("completed")); got != 1 {
		t.Errorf("completed chunks = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.BytesSaved); got != 512 {
		t.Errorf("bytes saved = %v, want 512", got)
	}
}

func TestHandlerAndTextfile(t *testing.T) {
	m := New()
	m.ObserveChunk("completed", 10, 10, 0, 0.1)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	if !strings.Contains(rec.Body.String(), "agnvar_rows_joined_total 10") {
		t.Errorf("scrape output missing counter:\n%s", rec.Body.String())
	}

	path := filepath.Join(t.TempDir(), "agnvar.prom")
	if err := m.WriteTextfile(path); err != nil {
		t.Fatalf("WriteTextfile: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(data), "agnvar_chunks_total{status=\"completed\"} 1") {
		t.Errorf("textfile missing chunk counter:\n%s", data)
	}
}
