package config

import (
	"testing"
)

func TestResolveValue_AWSSM_Integration(t *testing.T) {
	// Without valid AWS credentials this fails rather than hanging.
	t.Setenv("AWS_EC2_METADATA_DISABLED", "true")
	_, err := ResolveValue("${AWS_SM:nonexistent-secret}")
	if err == nil {
		t.Error("expected error when AWS credentials are not configured")
	}
}

func TestJSONSecretField(t *testing.T) {
	secret := `{"username": "cosmo", "password": "hunter2", "port": 5432}`

	val, err := jsonSecretField(secret, "password", "catalog-db")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if val != "hunter2" {
		t.Errorf("expected hunter2, got %q", val)
	}

	if _, err := jsonSecretField(secret, "port", "catalog-db"); err == nil {
		t.Error("expected error for non-string value")
	}
	if _, err := jsonSecretField(secret, "missing", "catalog-db"); err == nil {
		t.Error("expected error for missing key")
	}
	if _, err := jsonSecretField("not json", "password", "catalog-db"); err == nil {
		t.Error("expected error for non-JSON secret")
	}
}
