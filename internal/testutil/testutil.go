// Package testutil holds fixtures shared by package tests.
package testutil

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/reportbrief/reportbrief/internal/config"
	"github.com/reportbrief/reportbrief/internal/store"
)

// NewTestStore opens a SQLite store in a temporary directory. It is closed
// when the test completes.
func NewTestStore(t *testing.T) *store.Store {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")
	st, err := store.Open(dbPath)
	if err != nil {
		t.Fatalf("failed to create test store: %v", err)
	}
	t.Cleanup(func() { st.Close() })
	return st
}

// TestJWTSecret is the signing secret NewTestConfig's auth section resolves to.
const TestJWTSecret = "test-secret"

// NewTestConfig returns a default config rooted in a temporary directory,
// with the mock summarizer selected and the JWT secret read from the
// environment.
func NewTestConfig(t *testing.T) *config.Config {
	t.Helper()
	t.Setenv("REPORTBRIEF_TEST_JWT_SECRET", TestJWTSecret)
	cfg := config.DefaultConfig()
	cfg.Server.DataDir = t.TempDir()
	cfg.Summarizer.Backend = "mock"
	cfg.Auth.JWTSecretRef = "env:REPORTBRIEF_TEST_JWT_SECRET"
	return cfg
}

// WriteFile writes content to dir/name, creating parent directories.
func WriteFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("failed to create directory: %v", err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("failed to write file: %v", err)
	}
	return path
}
