package daemon

import (
	"bytes"
	"context"
	"errors"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/reportbrief/reportbrief/internal/auth"
	"github.com/reportbrief/reportbrief/internal/metrics"
	"github.com/reportbrief/reportbrief/internal/testutil"
)

type mapSecrets map[string]string

func (m mapSecrets) ResolveKeyRef(ref string) (string, error) {
	if v, ok := m[ref]; ok {
		return v, nil
	}
	return "", errors.New("unknown ref " + ref)
}

func TestBuild_ServesWorkflows(t *testing.T) {
	cfg := testutil.NewTestConfig(t)
	secrets := mapSecrets{cfg.Auth.JWTSecretRef: "daemon-secret"}

	app, err := Build(context.Background(), cfg, secrets, zerolog.Nop())
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	t.Cleanup(func() { app.Close(context.Background()) })

	ts := httptest.NewServer(app.Server.Router())
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/health")
	if err != nil {
		t.Fatalf("GET /health: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("health: expected 200, got %d", resp.StatusCode)
	}

	v, _ := auth.NewVerifier(auth.Options{Secret: []byte("daemon-secret")})
	token, err := v.Issue("u1", time.Hour)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, _ := mw.CreateFormFile("file", "deals.csv")
	fw.Write([]byte(testutil.DealsCSV))
	mw.Close()

	req, _ := http.NewRequest(http.MethodPost, ts.URL+"/upload", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+token)
	resp, err = http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("POST /upload: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("upload: expected 200, got %d", resp.StatusCode)
	}

	if got := app.Collector.Stats().Uploads; got != 1 {
		t.Errorf("expected 1 upload counted, got %d", got)
	}
}

func TestBuild_Failures(t *testing.T) {
	tests := []struct {
		name    string
		secrets mapSecrets
		mutate  func(cfgBackend *string)
		wantErr string
	}{
		{
			name:    "jwt secret unresolvable",
			secrets: mapSecrets{},
			wantErr: "jwt secret",
		},
		{
			name:    "anthropic key unresolvable",
			secrets: nil,
			mutate:  func(b *string) { *b = "anthropic" },
			wantErr: "summarizer key",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testutil.NewTestConfig(t)
			secrets := tt.secrets
			if secrets == nil {
				secrets = mapSecrets{cfg.Auth.JWTSecretRef: "s"}
			}
			if tt.mutate != nil {
				tt.mutate(&cfg.Summarizer.Backend)
			}

			_, err := Build(context.Background(), cfg, secrets, zerolog.Nop())
			if err == nil {
				t.Fatal("expected error")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("expected error containing %q, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestBuild_EnvSecret(t *testing.T) {
	// NewTestConfig points the JWT secret at an env var, so the default
	// vault resolves it.
	cfg := testutil.NewTestConfig(t)
	app, err := Build(context.Background(), cfg, nil, zerolog.Nop())
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	app.Close(context.Background())
}

func TestParseLogLevel(t *testing.T) {
	tests := map[string]zerolog.Level{
		"debug":   zerolog.DebugLevel,
		" WARN ":  zerolog.WarnLevel,
		"warning": zerolog.WarnLevel,
		"error":   zerolog.ErrorLevel,
		"bogus":   zerolog.InfoLevel,
		"":        zerolog.InfoLevel,
	}
	for in, want := range tests {
		if got := parseLogLevel(in); got != want {
			t.Errorf("parseLogLevel(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestPrintStats(t *testing.T) {
	var buf bytes.Buffer
	printStats(&buf, &metrics.Stats{Uptime: "1m", Uploads: 3, Summaries: 2, QuotaDenials: 1, QuotaChecks: 4})
	out := buf.String()
	for _, want := range []string{"Uploads:          3", "Summaries:        2", "1 of 4 checks"} {
		if !strings.Contains(out, want) {
			t.Errorf("expected %q in output:\n%s", want, out)
		}
	}
}

func TestRenderUnit(t *testing.T) {
	data := unitData{Label: serviceLabel, ProgramPath: "/usr/local/bin/reportbrief", DataDir: "/home/u/.reportbrief"}

	var buf bytes.Buffer
	if err := renderUnit(&buf, "linux", data); err != nil {
		t.Fatalf("renderUnit(linux): %v", err)
	}
	if !strings.Contains(buf.String(), "ExecStart=/usr/local/bin/reportbrief start --foreground") {
		t.Errorf("unexpected systemd unit:\n%s", buf.String())
	}

	buf.Reset()
	if err := renderUnit(&buf, "darwin", data); err != nil {
		t.Fatalf("renderUnit(darwin): %v", err)
	}
	if !strings.Contains(buf.String(), "<string>"+serviceLabel+"</string>") {
		t.Errorf("unexpected plist:\n%s", buf.String())
	}

	if err := renderUnit(&buf, "plan9", data); err == nil {
		t.Error("expected error for unsupported OS")
	}
}

func TestFetchStats(t *testing.T) {
	collector := metrics.NewCollector()
	collector.RecordUpload()
	ts := httptest.NewServer(metrics.StatsHandler(collector))
	defer ts.Close()

	stats, err := fetchStats(ts.URL)
	if err != nil {
		t.Fatalf("fetchStats: %v", err)
	}
	if stats.Uploads != 1 {
		t.Errorf("expected 1 upload, got %d", stats.Uploads)
	}

	down := httptest.NewServer(http.NotFoundHandler())
	defer down.Close()
	if _, err := fetchStats(down.URL); err == nil {
		t.Error("expected error for non-200 stats response")
	}
}
