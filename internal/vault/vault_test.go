package vault

import (
	"os"
	"path/filepath"
	"testing"
)

func TestResolveKeyRef_EnvFormat(t *testing.T) {
	v := New()

	const envVar = "TEST_REPORTBRIEF_VAULT_KEY"
	const expected = "sk-test-1234"
	t.Setenv(envVar, expected)

	got, err := v.ResolveKeyRef("env:" + envVar)
	if err != nil {
		t.Fatalf("ResolveKeyRef(env:): %v", err)
	}
	if got != expected {
		t.Errorf("got %q, want %q", got, expected)
	}
}

func TestResolveKeyRef_EnvFormat_Unset(t *testing.T) {
	v := New()
	os.Unsetenv("NONEXISTENT_KEY_VAR")

	if _, err := v.ResolveKeyRef("env:NONEXISTENT_KEY_VAR"); err == nil {
		t.Fatal("expected error for unset env var")
	}
}

func TestResolveKeyRef_Invalid(t *testing.T) {
	v := New()

	refs := []string{
		"plaintext:secret",
		"keyring://badformat",
		"keyring://other-service/anthropic",
		"keyring://reportbrief/",
		"keychain:reportbrief/jwt",
		"",
	}
	for _, ref := range refs {
		t.Run(ref, func(t *testing.T) {
			if _, err := v.ResolveKeyRef(ref); err == nil {
				t.Fatalf("expected error for %q", ref)
			}
		})
	}
}

func TestResolveKeyRef_KeyringEnvFallback(t *testing.T) {
	v := New()
	t.Setenv("REPORTBRIEF_KEY_JWT", "signing-secret")

	got, err := v.ResolveKeyRef("keyring://reportbrief/jwt")
	if err != nil {
		t.Fatalf("ResolveKeyRef(keyring://): %v", err)
	}
	if got != "signing-secret" {
		t.Errorf("got %q, want %q", got, "signing-secret")
	}
}

func TestGet_EnvFallback(t *testing.T) {
	v := New()
	t.Setenv(EnvVar("testsecret"), "env-key-value")

	got, err := v.Get("testsecret")
	if err != nil {
		t.Fatalf("Get with env fallback: %v", err)
	}
	if got != "env-key-value" {
		t.Errorf("got %q, want %q", got, "env-key-value")
	}
}

func TestEnvVar(t *testing.T) {
	if got := EnvVar("anthropic"); got != "REPORTBRIEF_KEY_ANTHROPIC" {
		t.Errorf("EnvVar(anthropic) = %q", got)
	}
}

func TestResolveKeyRef_FileFormat(t *testing.T) {
	v := New()

	keyFile := filepath.Join(t.TempDir(), "api-key.txt")
	if err := os.WriteFile(keyFile, []byte("sk-file-secret-key\n"), 0o600); err != nil {
		t.Fatalf("writing key file: %v", err)
	}

	got, err := v.ResolveKeyRef("file://" + keyFile)
	if err != nil {
		t.Fatalf("ResolveKeyRef(file://): %v", err)
	}
	if got != "sk-file-secret-key" {
		t.Errorf("got %q, want %q", got, "sk-file-secret-key")
	}
}

func TestResolveKeyRef_FileFormat_Errors(t *testing.T) {
	v := New()
	dir := t.TempDir()

	empty := filepath.Join(dir, "empty.txt")
	if err := os.WriteFile(empty, []byte("  \n"), 0o600); err != nil {
		t.Fatalf("writing key file: %v", err)
	}

	if _, err := v.ResolveKeyRef("file://" + empty); err == nil {
		t.Error("expected error for empty key file")
	}
	if _, err := v.ResolveKeyRef("file://" + filepath.Join(dir, "missing.txt")); err == nil {
		t.Error("expected error for missing key file")
	}
}

func TestGenerateSecret(t *testing.T) {
	a, err := GenerateSecret(32)
	if err != nil {
		t.Fatalf("GenerateSecret: %v", err)
	}
	if len(a) != 64 {
		t.Errorf("expected 64 hex chars, got %d", len(a))
	}
	b, _ := GenerateSecret(32)
	if a == b {
		t.Error("expected distinct secrets")
	}
	short, _ := GenerateSecret(4)
	if len(short) != 32 {
		t.Errorf("expected minimum of 16 bytes, got %d hex chars", len(short))
	}
}
