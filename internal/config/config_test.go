package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	return path
}

func TestLoad_WithExplicitFile(t *testing.T) {
	dir := t.TempDir()
	configPath := writeConfig(t, dir, "test.toml", `
[server]
port = 9090
log_level = "debug"
data_dir = "`+dir+`"

[quota]
free_tier_limit = 10
timezone = "America/New_York"

[summarizer]
backend = "http"
proxy_url = "https://summaries.example.com/v1/summarize"
sample_rows = 25
`)

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Server.Port != 9090 {
		t.Errorf("Port: got %d, want 9090", cfg.Server.Port)
	}
	if cfg.Server.LogLevel != "debug" {
		t.Errorf("LogLevel: got %q, want %q", cfg.Server.LogLevel, "debug")
	}
	if cfg.Quota.FreeTierLimit != 10 {
		t.Errorf("FreeTierLimit: got %d, want 10", cfg.Quota.FreeTierLimit)
	}
	if cfg.Summarizer.Backend != "http" || cfg.Summarizer.SampleRows != 25 {
		t.Errorf("Summarizer: got %+v", cfg.Summarizer)
	}
	// Untouched sections keep their defaults.
	if cfg.Summarizer.TimeoutSeconds != DefaultSummarizeTimeout {
		t.Errorf("TimeoutSeconds: got %d, want %d", cfg.Summarizer.TimeoutSeconds, DefaultSummarizeTimeout)
	}
	if !cfg.Lock.Enabled || cfg.Lock.Backend != "local" {
		t.Errorf("Lock: got %+v", cfg.Lock)
	}
	if Get() != cfg {
		t.Error("Get should return the loaded config")
	}
	if ConfigFilePath() != configPath {
		t.Errorf("ConfigFilePath: got %q, want %q", ConfigFilePath(), configPath)
	}
}

func TestLoad_EnvOverride(t *testing.T) {
	dir := t.TempDir()
	configPath := writeConfig(t, dir, "test.toml", `
[server]
port = 7680
data_dir = "`+dir+`"
`)

	t.Setenv("REPORTBRIEF_SERVER_PORT", "8888")
	t.Setenv("REPORTBRIEF_QUOTA_FREE_TIER_LIMIT", "3")

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Server.Port != 8888 {
		t.Errorf("Port with env override: got %d, want 8888", cfg.Server.Port)
	}
	if cfg.Quota.FreeTierLimit != 3 {
		t.Errorf("FreeTierLimit with env override: got %d, want 3", cfg.Quota.FreeTierLimit)
	}
}

func TestLoad_ValidationFailure(t *testing.T) {
	tests := []struct {
		name    string
		content string
		mention string
	}{
		{"port zero", "[server]\nport = 0\n", "server.port"},
		{"unknown backend", "[summarizer]\nbackend = \"openai\"\n", "summarizer.backend"},
		{"http without url", "[summarizer]\nbackend = \"http\"\n", "summarizer.proxy_url"},
		{"bad timezone", "[quota]\ntimezone = \"Mars/Olympus\"\n", "quota.timezone"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			path := writeConfig(t, dir, "bad.toml", tt.content)

			_, err := Load(path)
			if err == nil {
				t.Fatal("expected validation error")
			}
			if !strings.Contains(err.Error(), tt.mention) {
				t.Errorf("error should mention %s: %v", tt.mention, err)
			}
		})
	}
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.Server.Port != DefaultPort {
		t.Errorf("Port: got %d, want %d", cfg.Server.Port, DefaultPort)
	}
	if cfg.Quota.FreeTierLimit != 5 {
		t.Errorf("FreeTierLimit: got %d, want 5", cfg.Quota.FreeTierLimit)
	}
	if cfg.Summarizer.SampleRows != 50 {
		t.Errorf("SampleRows: got %d, want 50", cfg.Summarizer.SampleRows)
	}
	if cfg.Summarizer.Timeout() != 30*time.Second {
		t.Errorf("Timeout: got %v, want 30s", cfg.Summarizer.Timeout())
	}
	if cfg.RateLimit.Enabled {
		t.Error("rate limiting should be off by default")
	}
	if cfg.Server.Addr() != "127.0.0.1:7680" {
		t.Errorf("Addr: got %q", cfg.Server.Addr())
	}
}

func TestQuotaConfig_Location(t *testing.T) {
	loc, err := QuotaConfig{}.Location()
	if err != nil || loc != time.UTC {
		t.Errorf("empty timezone: got %v, %v; want UTC", loc, err)
	}

	loc, err = QuotaConfig{Timezone: "Europe/Berlin"}.Location()
	if err != nil {
		t.Fatalf("Location: %v", err)
	}
	if loc.String() != "Europe/Berlin" {
		t.Errorf("Location: got %q", loc.String())
	}

	if _, err := (QuotaConfig{Timezone: "Nowhere/Else"}).Location(); err == nil {
		t.Error("expected error for unknown timezone")
	}
}

func TestExpandHome(t *testing.T) {
	home, err := os.UserHomeDir()
	if err != nil {
		t.Skip("no home directory")
	}
	if got := expandHome("~/.reportbrief"); got != filepath.Join(home, ".reportbrief") {
		t.Errorf("expandHome: got %q", got)
	}
	if got := expandHome("/var/lib/reportbrief"); got != "/var/lib/reportbrief" {
		t.Errorf("absolute path changed: %q", got)
	}
}

func TestExportConfig(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "export.toml")

	if err := ExportConfig(path); err != nil {
		t.Fatalf("ExportConfig: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	for _, section := range []string{"[server]", "[quota]", "[summarizer]", "[lock]"} {
		if !strings.Contains(string(data), section) {
			t.Errorf("exported config missing %s", section)
		}
	}
}

func TestImportConfig(t *testing.T) {
	loadedConfigFile.Store("")
	dir := t.TempDir()
	path := writeConfig(t, dir, "import.toml", `
[server]
port = 9999
log_level = "warn"
data_dir = "`+dir+`"

[quota]
free_tier_limit = 7
`)

	if err := ImportConfig(path); err != nil {
		t.Fatalf("ImportConfig: %v", err)
	}

	cfg := Get()
	if cfg.Server.Port != 9999 {
		t.Errorf("Port: got %d, want 9999", cfg.Server.Port)
	}
	if cfg.Quota.FreeTierLimit != 7 {
		t.Errorf("FreeTierLimit: got %d, want 7", cfg.Quota.FreeTierLimit)
	}
	if cfg.Summarizer.Model != DefaultSummarizerModel {
		t.Errorf("Model should keep default, got %q", cfg.Summarizer.Model)
	}
}

func TestImportConfig_Invalid(t *testing.T) {
	loadedConfigFile.Store("")
	dir := t.TempDir()
	path := writeConfig(t, dir, "bad.toml", "[server]\nport = -1\n")

	before := Get()
	if err := ImportConfig(path); err == nil {
		t.Fatal("expected error importing invalid config")
	}
	if Get() != before {
		t.Error("invalid import must not replace the current config")
	}
}
