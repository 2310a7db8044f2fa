package config

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

// vaultServer serves a KV v2 response for any path, recording the namespace
// header of the last request.
func vaultServer(t *testing.T, data map[string]interface{}, namespace *string) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("X-Vault-Token") != "test-token" {
			http.Error(w, "forbidden", http.StatusForbidden)
			return
		}
		if namespace != nil {
			*namespace = r.Header.Get("X-Vault-Namespace")
		}
		json.NewEncoder(w).Encode(map[string]interface{}{
			"data": map[string]interface{}{"data": data},
		})
	}))
	t.Cleanup(server.Close)
	t.Setenv("VAULT_ADDR", server.URL)
	t.Setenv("VAULT_TOKEN", "test-token")
	return server
}

func TestResolveVault_Success(t *testing.T) {
	vaultServer(t, map[string]interface{}{"password": "s3cret"}, nil)

	val, err := resolveVault("secret/data/catalog#password")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if val != "s3cret" {
		t.Errorf("expected 's3cret', got %q", val)
	}
}

func TestResolveVault_Namespace(t *testing.T) {
	var ns string
	vaultServer(t, map[string]interface{}{"password": "s3cret"}, &ns)
	t.Setenv("VAULT_NAMESPACE", "astro")

	if _, err := resolveVault("secret/data/catalog#password"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ns != "astro" {
		t.Errorf("namespace header = %q, want astro", ns)
	}
}

func TestResolveVault_MissingKey(t *testing.T) {
	vaultServer(t, map[string]interface{}{"username": "admin"}, nil)

	if _, err := resolveVault("secret/data/catalog#nonexistent"); err == nil {
		t.Error("expected error for missing key")
	}
}

func TestResolveVault_InvalidFormat(t *testing.T) {
	t.Setenv("VAULT_ADDR", "http://localhost:8200")
	t.Setenv("VAULT_TOKEN", "test-token")

	for _, ref := range []string{"no-hash-separator", "#key", "path#"} {
		if _, err := resolveVault(ref); err == nil {
			t.Errorf("expected error for %q", ref)
		}
	}
}

func TestResolveVault_MissingEnv(t *testing.T) {
	t.Setenv("VAULT_ADDR", "")
	t.Setenv("VAULT_TOKEN", "")

	if _, err := resolveVault("secret/data/path#key"); err == nil {
		t.Error("expected error when VAULT_ADDR not set")
	}
}

func TestResolveValue_Vault(t *testing.T) {
	vaultServer(t, map[string]interface{}{"db_pass": "hunter2"}, nil)

	val, err := ResolveValue("${VAULT:secret/data/catalog#db_pass}")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if val != "hunter2" {
		t.Errorf("expected 'hunter2', got %q", val)
	}
}
