package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "agnvar.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadValidConfig(t *testing.T) {
	path := writeConfig(t, `version: 1
source:
  path: /data/agn.db
catalog:
  type: postgresql
  host: localhost
  port: 5432
  database: cosmodc2
  username: testuser
  password: testpass
output:
  directory: /tmp/joined
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Source.ChunkSize != 200000 {
		t.Errorf("expected default chunk_size 200000, got %d", cfg.Source.ChunkSize)
	}
	if cfg.Source.Table != "agn_params" {
		t.Errorf("expected default table agn_params, got %s", cfg.Source.Table)
	}
	if cfg.Catalog.Schema != "public" {
		t.Errorf("expected default schema public, got %s", cfg.Catalog.Schema)
	}
	if cfg.Cosmology.H0 != 71.0 || cfg.Cosmology.Om0 != 0.265 {
		t.Errorf("unexpected cosmology defaults %+v", cfg.Cosmology)
	}
	if cfg.Template.GridStep != 0.01 {
		t.Errorf("expected default grid_step 0.01, got %g", cfg.Template.GridStep)
	}
	if cfg.Pipeline.Parallelism != 1 {
		t.Errorf("expected default parallelism 1, got %d", cfg.Pipeline.Parallelism)
	}
	if cfg.Pipeline.StatePath != filepath.Join("/tmp/joined", "state.yaml") {
		t.Errorf("unexpected state path %s", cfg.Pipeline.StatePath)
	}
	if cfg.Logging.Level != "info" {
		t.Errorf("expected default log level info, got %s", cfg.Logging.Level)
	}
}

func TestLoadPipelineResume(t *testing.T) {
	path := writeConfig(t, `version: 1
source:
  path: /data/agn.db
catalog:
  type: memory
  path: /data/galaxies.csv
output:
  directory: /tmp/joined
pipeline:
  resume: true
  fail_on_nan: true
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !cfg.Pipeline.Resume || !cfg.Pipeline.FailOnNaN {
		t.Errorf("pipeline = %+v, want resume and fail_on_nan set", cfg.Pipeline)
	}
}

func TestLoadInvalidVersion(t *testing.T) {
	path := writeConfig(t, `version: 99
source:
  path: agn.db
`)
	if _, err := Load(path); err == nil {
		t.Fatal("expected error for invalid version")
	}
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	tests := []struct {
		name  string
		extra string
		want  string
	}{
		{"catalog type", "catalog:\n  type: oracle\n", "catalog.type"},
		{"chunk size", "catalog:\n  type: memory\nsource:\n  path: a.db\n  chunk_size: -5\n", "chunk_size"},
		{"om0", "catalog:\n  type: memory\ncosmology:\n  om0: 1.5\n", "om0"},
		{"grid step", "catalog:\n  type: memory\ntemplate:\n  grid_step: -0.1\n", "grid_step"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			content := "version: 1\noutput:\n  directory: out\n" + tt.extra
			if !strings.Contains(tt.extra, "source:") {
				content += "source:\n  path: a.db\n"
			}
			_, err := Load(writeConfig(t, content))
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Errorf("expected error mentioning %q, got %v", tt.want, err)
			}
		})
	}
}

func TestResolveEnvSecret(t *testing.T) {
	t.Setenv("TEST_SECRET", "mysecret")
	val, err := ResolveValue("${ENV:TEST_SECRET}")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if val != "mysecret" {
		t.Errorf("expected mysecret, got %s", val)
	}
}

func TestLoadResolvesCatalogSecrets(t *testing.T) {
	t.Setenv("CATALOG_URI", "mongodb://db:27017")
	path := writeConfig(t, `version: 1
source:
  path: agn.db
catalog:
  type: mongodb
  connection_string: "${ENV:CATALOG_URI}"
output:
  directory: out
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Catalog.ConnectionString != "mongodb://db:27017" {
		t.Errorf("connection string not resolved: %s", cfg.Catalog.ConnectionString)
	}
}

func TestResolvePlainValue(t *testing.T) {
	val, err := ResolveValue("plaintext")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if val != "plaintext" {
		t.Errorf("expected plaintext, got %s", val)
	}
}

func TestMaxConnectionsCapped(t *testing.T) {
	path := writeConfig(t, `version: 1
source:
  path: agn.db
catalog:
  type: postgresql
  max_connections: 100
output:
  directory: out
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Catalog.MaxConnections != 50 {
		t.Errorf("expected max_connections capped at 50, got %d", cfg.Catalog.MaxConnections)
	}
}

func TestPostgresURL(t *testing.T) {
	c := CatalogConfig{Host: "db", Port: 5432, Database: "cosmodc2", Username: "u", Password: "p@ss"}
	got := c.PostgresURL()
	want := "postgres://u:p%40ss@db:5432/cosmodc2?sslmode=disable"
	if got != want {
		t.Errorf("PostgresURL = %s, want %s", got, want)
	}

	c.ConnectionString = "postgres://explicit"
	if c.PostgresURL() != "postgres://explicit" {
		t.Error("explicit connection string must win")
	}
}

func TestSaveAndReload(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "agnvar.yaml")
	cfg := Default()
	if err := cfg.Save(path); err != nil {
		t.Fatalf("Save: %v", err)
	}
	info, err := os.Stat(path)
	if err != nil {
		t.Fatal(err)
	}
	if info.Mode().Perm() != 0o600 {
		t.Errorf("config mode = %v, want 0600", info.Mode().Perm())
	}
	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if loaded.Catalog.Type != CatalogMemory || loaded.Source.ChunkSize != 200000 {
		t.Errorf("round trip lost values: %+v", loaded)
	}
}
