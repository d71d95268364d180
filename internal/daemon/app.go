package daemon

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/reportbrief/reportbrief/internal/api"
	"github.com/reportbrief/reportbrief/internal/audit"
	"github.com/reportbrief/reportbrief/internal/auth"
	"github.com/reportbrief/reportbrief/internal/config"
	"github.com/reportbrief/reportbrief/internal/lock"
	"github.com/reportbrief/reportbrief/internal/metrics"
	"github.com/reportbrief/reportbrief/internal/quota"
	"github.com/reportbrief/reportbrief/internal/redact"
	"github.com/reportbrief/reportbrief/internal/store"
	"github.com/reportbrief/reportbrief/internal/summarize"
	"github.com/reportbrief/reportbrief/internal/summarizer"
	"github.com/reportbrief/reportbrief/internal/tracing"
	"github.com/reportbrief/reportbrief/internal/upload"
	"github.com/reportbrief/reportbrief/internal/vault"
	"github.com/reportbrief/reportbrief/internal/version"
)

// dbFilename is the SQLite database inside the data directory.
const dbFilename = "reportbrief.db"

// SecretResolver turns a key reference into a secret.
type SecretResolver interface {
	ResolveKeyRef(ref string) (string, error)
}

// App is a fully wired ReportBrief instance.
type App struct {
	Store     *store.Store
	Collector *metrics.Collector
	Locker    lock.Locker
	Server    *api.Server

	shutdownTracing func(context.Context) error
}

// Build opens the store and wires every workflow behind the HTTP server.
// The returned App owns the store and must be closed.
func Build(ctx context.Context, cfg *config.Config, secrets SecretResolver, logger zerolog.Logger) (*App, error) {
	dataDir := expandHome(cfg.Server.DataDir)
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, fmt.Errorf("creating data directory %s: %w", dataDir, err)
	}
	if secrets == nil {
		secrets = vault.New()
	}

	app := &App{Collector: metrics.NewCollector()}
	ok := false
	defer func() {
		if !ok {
			app.Close(context.Background())
		}
	}()

	if cfg.Tracing.Enabled {
		shutdown, err := tracing.Init(ctx, tracing.Options{
			ServiceName: cfg.Tracing.ServiceName,
			Version:     version.Version,
			Exporter:    cfg.Tracing.Exporter,
			Endpoint:    cfg.Tracing.Endpoint,
			SampleRate:  cfg.Tracing.SampleRate,
			Insecure:    cfg.Tracing.Insecure,
		})
		if err != nil {
			return nil, fmt.Errorf("initialising tracing: %w", err)
		}
		app.shutdownTracing = shutdown
		logger.Info().Str("exporter", cfg.Tracing.Exporter).Msg("tracing enabled")
	}

	dbPath := filepath.Join(dataDir, dbFilename)
	st, err := store.Open(dbPath)
	if err != nil {
		return nil, fmt.Errorf("opening store: %w", err)
	}
	app.Store = st
	logger.Info().Str("db_path", dbPath).Msg("store opened")

	jwtSecret, err := secrets.ResolveKeyRef(cfg.Auth.JWTSecretRef)
	if err != nil {
		return nil, fmt.Errorf("resolving jwt secret: %w", err)
	}
	verifier, err := auth.NewVerifier(auth.Options{
		Secret:    []byte(jwtSecret),
		Issuer:    cfg.Auth.Issuer,
		Audience:  cfg.Auth.Audience,
		CacheSize: cfg.Auth.TokenCacheSize,
		CacheTTL:  cfg.Auth.TokenCacheTTL(),
	})
	if err != nil {
		return nil, err
	}

	var apiKey string
	if cfg.Summarizer.Backend == "anthropic" {
		if apiKey, err = secrets.ResolveKeyRef(cfg.Summarizer.KeyRef); err != nil {
			return nil, fmt.Errorf("resolving summarizer key: %w", err)
		}
	}
	backend, err := summarizer.New(cfg.Summarizer, cfg.Resilience, apiKey, logger)
	if err != nil {
		return nil, fmt.Errorf("creating summarizer: %w", err)
	}
	if cfg.Privacy.Enabled {
		backend = summarizer.WithRedaction(backend, redact.New(cfg.Privacy.Action, cfg.Privacy.AllowList), logger)
	}
	logger.Info().Str("backend", backend.Name()).Str("model", cfg.Summarizer.Model).Msg("summarizer ready")

	locker, err := lock.New(ctx, cfg.Lock)
	if err != nil {
		return nil, fmt.Errorf("creating lock: %w", err)
	}
	app.Locker = locker

	loc, err := cfg.Quota.Location()
	if err != nil {
		return nil, fmt.Errorf("loading quota timezone: %w", err)
	}

	recorder := audit.NewRecorder(st, logger, app.Collector)
	orchestrator := summarize.New(st, backend, locker, recorder, app.Collector, logger, summarize.Options{
		Timeout:    cfg.Summarizer.Timeout(),
		SampleRows: cfg.Summarizer.SampleRows,
		LockTTL:    cfg.Lock.TTL(),
	})

	var limiter *api.RateLimiter
	if cfg.RateLimit.Enabled {
		if limiter, err = api.NewRateLimiter(cfg.RateLimit.Rate, cfg.RateLimit.Burst, app.Collector); err != nil {
			return nil, err
		}
	}

	handler := api.NewHandler(api.Deps{
		Reports:      st,
		Uploads:      upload.NewService(st, recorder, app.Collector, logger),
		Summaries:    orchestrator,
		Quota:        quota.New(st, cfg.Quota.FreeTierLimit, loc, logger, app.Collector),
		Recorder:     recorder,
		Verifier:     verifier,
		Collector:    app.Collector,
		Limiter:      limiter,
		Logger:       logger,
		MaxUpload:    cfg.Server.MaxUploadSize,
		EnforceQuota: cfg.Quota.EnforceOnSummarize,
	})

	app.Server = api.NewServer(handler, api.ServerOptions{
		Addr:           cfg.Server.Addr(),
		ReadTimeout:    seconds(cfg.Server.ReadTimeout),
		WriteTimeout:   seconds(cfg.Server.WriteTimeout),
		IdleTimeout:    seconds(cfg.Server.IdleTimeout),
		TracingEnabled: cfg.Tracing.Enabled,
		MetricsEnabled: cfg.Metrics.Enabled,
	})

	ok = true
	return app, nil
}

// Close releases the lock backend, flushes traces and closes the store.
func (a *App) Close(ctx context.Context) {
	if a.Locker != nil {
		if err := a.Locker.Close(); err != nil {
			log.Warn().Err(err).Msg("closing lock backend")
		}
	}
	if a.shutdownTracing != nil {
		if err := a.shutdownTracing(ctx); err != nil {
			log.Warn().Err(err).Msg("flushing traces")
		}
	}
	if a.Store != nil {
		a.Store.Close()
	}
}

func seconds(n int) time.Duration {
	return time.Duration(n) * time.Second
}
