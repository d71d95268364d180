// Package daemon runs ReportBrief as a long-lived process: logging setup,
// process record, config hot reload, signal handling and graceful shutdown.
package daemon

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/reportbrief/reportbrief/internal/config"
	"github.com/reportbrief/reportbrief/internal/metrics"
	"github.com/reportbrief/reportbrief/internal/version"
)

const (
	logFilename     = "reportbrief.log"
	shutdownTimeout = 30 * time.Second
)

// Run initialises all subsystems, starts the HTTP server and blocks until a
// shutdown signal is received.
func Run(cfg *config.Config, foreground bool) error {
	dataDir := expandHome(cfg.Server.DataDir)
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return fmt.Errorf("creating data directory %s: %w", dataDir, err)
	}

	zerolog.SetGlobalLevel(parseLogLevel(cfg.Server.LogLevel))

	logPath := filepath.Join(dataDir, logFilename)
	logFile, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("opening log file %s: %w", logPath, err)
	}
	defer logFile.Close()

	writers := []io.Writer{logFile}
	if foreground {
		writers = append(writers, zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: "15:04:05"})
	}
	log.Logger = zerolog.New(zerolog.MultiLevelWriter(writers...)).With().Timestamp().Str("service", "reportbrief").Logger()

	log.Info().
		Str("version", version.Version).
		Str("data_dir", dataDir).
		Bool("foreground", foreground).
		Msg("reportbrief starting")

	if rec, ok := running(dataDir); ok {
		return fmt.Errorf("reportbrief is already running (PID %d, %s)", rec.PID, procPath(dataDir))
	}

	ctx := context.Background()
	app, err := Build(ctx, cfg, nil, log.Logger)
	if err != nil {
		return err
	}

	rec := procRecord{
		Addr:    app.Server.Addr(),
		TLS:     cfg.Server.TLSEnabled,
		Started: time.Now().UTC(),
		Version: version.Version,
	}
	if err := writeProc(dataDir, rec); err != nil {
		app.Close(ctx)
		return err
	}
	defer func() {
		if err := removeProc(dataDir); err != nil {
			log.Error().Err(err).Msg("failed to remove process record")
		}
	}()
	log.Info().Int("pid", os.Getpid()).Str("file", procPath(dataDir)).Msg("process record written")

	if w := startWatcher(dataDir); w != nil {
		defer w.Close()
	}

	errCh := make(chan error, 1)
	go func() {
		var err error
		if cfg.Server.TLSEnabled {
			log.Info().Str("addr", app.Server.Addr()).Msg("api server starting (TLS)")
			err = app.Server.StartTLS(cfg.Server.CertFile, cfg.Server.KeyFile)
		} else {
			log.Info().Str("addr", app.Server.Addr()).Msg("api server starting")
			err = app.Server.Start()
		}
		if err != nil {
			errCh <- err
		}
	}()

	scheme := "http"
	if cfg.Server.TLSEnabled {
		scheme = "https"
	}
	log.Info().
		Int("port", cfg.Server.Port).
		Bool("tls", cfg.Server.TLSEnabled).
		Str("summarizer", cfg.Summarizer.Backend).
		Msg("reportbrief is ready")
	if foreground {
		fmt.Printf("\n  ReportBrief is running!\n")
		fmt.Printf("  API: %s://%s\n\n", scheme, app.Server.Addr())
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	var runErr error
	select {
	case sig := <-sigCh:
		log.Info().Str("signal", sig.String()).Msg("shutdown signal received")
	case runErr = <-errCh:
		log.Error().Err(runErr).Msg("fatal server error")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	log.Info().Msg("shutting down server...")
	if err := app.Server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("api server shutdown error")
	}
	app.Close(shutdownCtx)

	log.Info().Msg("reportbrief stopped")
	return runErr
}

// startWatcher hot-reloads the log level when the config file changes. It
// returns nil when there is no file to watch.
func startWatcher(dataDir string) *config.Watcher {
	configFile := config.ConfigFilePath()
	if configFile == "" {
		configFile = filepath.Join(dataDir, config.DefaultConfigFilename)
	}
	if _, err := os.Stat(configFile); err != nil {
		return nil
	}

	w, err := config.Watch(configFile)
	if err != nil {
		log.Warn().Err(err).Msg("failed to start config watcher; continuing without hot-reload")
		return nil
	}
	w.OnChange(func(_, newCfg *config.Config) {
		zerolog.SetGlobalLevel(parseLogLevel(newCfg.Server.LogLevel))
		log.Info().Str("log_level", newCfg.Server.LogLevel).Msg("configuration reloaded")
	})
	log.Info().Str("file", configFile).Msg("config watcher started")
	return w
}

// Stop sends SIGTERM to the running daemon and waits up to three seconds
// for it to exit.
func Stop() error {
	dataDir := expandHome(config.Get().Server.DataDir)

	rec, err := readProc(dataDir)
	if err != nil {
		return fmt.Errorf("reportbrief does not appear to be running: %w", err)
	}
	pid := rec.PID

	if !alive(pid) {
		if rmErr := removeProc(dataDir); rmErr != nil {
			fmt.Fprintf(os.Stderr, "warning: %v\n", rmErr)
		}
		return fmt.Errorf("reportbrief is not running (stale process record removed)")
	}

	process, err := os.FindProcess(pid)
	if err != nil {
		return fmt.Errorf("finding process %d: %w", pid, err)
	}
	if err := process.Signal(syscall.SIGTERM); err != nil {
		return fmt.Errorf("sending SIGTERM to process %d: %w", pid, err)
	}

	fmt.Printf("Sent SIGTERM to reportbrief (PID %d)\n", pid)

	for i := 0; i < 30; i++ {
		time.Sleep(100 * time.Millisecond)
		if !alive(pid) {
			return nil
		}
	}
	return nil
}

// Status reports whether the daemon is running and prints its counters.
func Status() error {
	cfg := config.Get()
	dataDir := expandHome(cfg.Server.DataDir)

	rec, ok := running(dataDir)
	if !ok {
		fmt.Println("reportbrief is not running")
		return nil
	}
	fmt.Printf("reportbrief %s is running (PID %d) on %s\n", rec.Version, rec.PID, rec.URL())
	if !rec.Started.IsZero() {
		fmt.Printf("  Started:          %s\n", rec.Started.Local().Format(time.RFC1123))
	}

	stats, err := fetchStats(rec.URL())
	if err != nil {
		fmt.Println("  (stats unavailable)")
		return nil
	}
	printStats(os.Stdout, stats)
	return nil
}

func fetchStats(baseURL string) (*metrics.Stats, error) {
	client := &http.Client{Timeout: 3 * time.Second}
	resp, err := client.Get(baseURL + "/stats")
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("stats endpoint returned %d", resp.StatusCode)
	}

	var stats metrics.Stats
	if err := json.NewDecoder(resp.Body).Decode(&stats); err != nil {
		return nil, err
	}
	return &stats, nil
}

func printStats(w io.Writer, s *metrics.Stats) {
	fmt.Fprintf(w, "\n  Uptime:           %s\n", s.Uptime)
	fmt.Fprintf(w, "  Uploads:          %d (%d duplicate prompts, %d forced new)\n", s.Uploads, s.UploadConflicts, s.UploadSuffixed)
	fmt.Fprintf(w, "  Summaries:        %d (%d failed, %d timed out)\n", s.Summaries, s.SummaryFailures, s.SummaryTimeouts)
	fmt.Fprintf(w, "  Avg Summarize:    %.2fs\n", s.AvgSummarizeSecs)
	fmt.Fprintf(w, "  Tokens Used:      %d\n", s.SummaryTokens)
	fmt.Fprintf(w, "  Quota Denials:    %d of %d checks\n", s.QuotaDenials, s.QuotaChecks)
	fmt.Fprintf(w, "  Audit Dropped:    %d of %d\n", s.AuditDropped, s.AuditRecorded+s.AuditDropped)
	fmt.Fprintf(w, "  In Flight:        %d\n", s.ActiveSummaries)
}

// parseLogLevel converts a string log level to a zerolog.Level.
func parseLogLevel(level string) zerolog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "trace":
		return zerolog.TraceLevel
	case "debug":
		return zerolog.DebugLevel
	case "info":
		return zerolog.InfoLevel
	case "warn", "warning":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	case "fatal":
		return zerolog.FatalLevel
	default:
		return zerolog.InfoLevel
	}
}

// expandHome replaces a leading ~ with the user's home directory.
func expandHome(path string) string {
	if !strings.HasPrefix(path, "~") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, path[1:])
}
