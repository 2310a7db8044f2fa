//go:build integration

package integration

import (
	"fmt"
	"os"
	"testing"
)

func pgConnString(t *testing.T) string {
	t.Helper()
	host := envOrDefault("AGNVAR_TEST_PG_HOST", "localhost")
	port := envOrDefault("AGNVAR_TEST_PG_PORT", "25432")
	db := envOrDefault("AGNVAR_TEST_PG_DATABASE", "agnvar_test")
	user := envOrDefault("AGNVAR_TEST_PG_USER", "postgres")
	pass := envOrDefault("AGNVAR_TEST_PG_PASSWORD", "postgres")
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=disable", user, pass, host, port, db)
}

func mongoURI(t *testing.T) string {
	t.Helper()
	return envOrDefault("AGNVAR_TEST_MONGO_URI", "mongodb://localhost:37017/?directConnection=true")
}

func mongoDatabase(t *testing.T) string {
	t.Helper()
	return envOrDefault("AGNVAR_TEST_MONGO_DATABASE", "agnvar_test")
}

func skipIfNoPostgres(t *testing.T) {
	t.Helper()
	if os.Getenv("AGNVAR_TEST_PG_HOST") == "" && os.Getenv("AGNVAR_TEST_PG_PORT") == "" {
		t.Skip("skipping: AGNVAR_TEST_PG_HOST/PORT not set")
	}
}

func skipIfNoMongo(t *testing.T) {
	t.Helper()
	if os.Getenv("AGNVAR_TEST_MONGO_URI") == "" {
		t.Skip("skipping: AGNVAR_TEST_MONGO_URI not set")
	}
}

func envOrDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

// galaxyRows is the fixture loaded into both catalog backends.
var galaxyRows = []struct {
	ID                int64
	Z, Accretion, Edd float64
	Mass              float64
}{
	{10, 0.3, 0.01, 0.1, 1e8},
	{20, 0.5, 0.02, 0.2, 2e8},
	{30, 1.1, 0.03, 0.3, 3e8},
	{40, 2.4, 0.04, 0.4, 4e8},
}
