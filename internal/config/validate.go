package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"
)

// validate checks the Config for invalid or out-of-range values.
// It returns a combined error if any checks fail.
func validate(cfg *Config) error {
	var errs []string

	// Server validation
	if cfg.Server.Port < 1 || cfg.Server.Port > 65535 {
		errs = append(errs, fmt.Sprintf("server.port must be between 1 and 65535, got %d", cfg.Server.Port))
	}
	if !isValidEnum(cfg.Server.LogLevel, ValidLogLevels) {
		errs = append(errs, fmt.Sprintf("server.log_level must be one of %v, got %q", ValidLogLevels, cfg.Server.LogLevel))
	}
	if cfg.Server.DataDir == "" {
		errs = append(errs, "server.data_dir must not be empty")
	}
	if cfg.Server.TLSEnabled {
		if cfg.Server.CertFile == "" {
			errs = append(errs, "server.cert_file must be set when tls_enabled is true")
		}
		if cfg.Server.KeyFile == "" {
			errs = append(errs, "server.key_file must be set when tls_enabled is true")
		}
	}
	if cfg.Server.ReadTimeout < 0 {
		errs = append(errs, fmt.Sprintf("server.read_timeout must be non-negative, got %d", cfg.Server.ReadTimeout))
	}
	if cfg.Server.WriteTimeout < 0 {
		errs = append(errs, fmt.Sprintf("server.write_timeout must be non-negative, got %d", cfg.Server.WriteTimeout))
	}
	if cfg.Server.IdleTimeout < 0 {
		errs = append(errs, fmt.Sprintf("server.idle_timeout must be non-negative, got %d", cfg.Server.IdleTimeout))
	}
	if cfg.Server.MaxUploadSize <= 0 {
		errs = append(errs, fmt.Sprintf("server.max_upload_size must be positive, got %d", cfg.Server.MaxUploadSize))
	}

	// Auth validation
	if cfg.Auth.JWTSecretRef == "" {
		errs = append(errs, "auth.jwt_secret_ref must not be empty")
	}
	if cfg.Auth.TokenCacheSize < 0 {
		errs = append(errs, fmt.Sprintf("auth.token_cache_size must be non-negative, got %d", cfg.Auth.TokenCacheSize))
	}
	if cfg.Auth.TokenCacheTTLSeconds < 0 {
		errs = append(errs, fmt.Sprintf("auth.token_cache_ttl_seconds must be non-negative, got %d", cfg.Auth.TokenCacheTTLSeconds))
	}

	// Quota validation
	if cfg.Quota.FreeTierLimit < 1 {
		errs = append(errs, fmt.Sprintf("quota.free_tier_limit must be at least 1, got %d", cfg.Quota.FreeTierLimit))
	}
	if _, err := time.LoadLocation(cfg.Quota.Timezone); err != nil {
		errs = append(errs, fmt.Sprintf("quota.timezone %q is not a known location", cfg.Quota.Timezone))
	}

	// Summarizer validation
	if !isValidEnum(cfg.Summarizer.Backend, ValidSummarizerBackends) {
		errs = append(errs, fmt.Sprintf("summarizer.backend must be one of %v, got %q", ValidSummarizerBackends, cfg.Summarizer.Backend))
	}
	switch strings.ToLower(cfg.Summarizer.Backend) {
	case "anthropic":
		if cfg.Summarizer.Model == "" {
			errs = append(errs, "summarizer.model must be set for the anthropic backend")
		}
		if cfg.Summarizer.KeyRef == "" {
			errs = append(errs, "summarizer.key_ref must be set for the anthropic backend")
		}
	case "http":
		if cfg.Summarizer.ProxyURL == "" {
			errs = append(errs, "summarizer.proxy_url must be set for the http backend")
		} else if u, err := url.Parse(cfg.Summarizer.ProxyURL); err != nil || u.Scheme == "" || u.Host == "" {
			errs = append(errs, fmt.Sprintf("summarizer.proxy_url must be an absolute URL, got %q", cfg.Summarizer.ProxyURL))
		}
	}
	if cfg.Summarizer.MaxTokens < 1 {
		errs = append(errs, fmt.Sprintf("summarizer.max_tokens must be at least 1, got %d", cfg.Summarizer.MaxTokens))
	}
	if cfg.Summarizer.Temperature < 0 || cfg.Summarizer.Temperature > 1 {
		errs = append(errs, fmt.Sprintf("summarizer.temperature must be between 0 and 1, got %f", cfg.Summarizer.Temperature))
	}
	if cfg.Summarizer.TimeoutSeconds < 1 {
		errs = append(errs, fmt.Sprintf("summarizer.timeout_seconds must be at least 1, got %d", cfg.Summarizer.TimeoutSeconds))
	}
	if cfg.Summarizer.SampleRows < 1 {
		errs = append(errs, fmt.Sprintf("summarizer.sample_rows must be at least 1, got %d", cfg.Summarizer.SampleRows))
	}

	// Resilience validation
	if cfg.Resilience.CBFailureThreshold < 1 {
		errs = append(errs, fmt.Sprintf("resilience.cb_failure_threshold must be at least 1, got %d", cfg.Resilience.CBFailureThreshold))
	}
	if cfg.Resilience.CBResetTimeoutSec <= 0 {
		errs = append(errs, fmt.Sprintf("resilience.cb_reset_timeout_seconds must be positive, got %d", cfg.Resilience.CBResetTimeoutSec))
	}
	if cfg.Resilience.CBHalfOpenMax < 1 {
		errs = append(errs, fmt.Sprintf("resilience.cb_half_open_max_calls must be at least 1, got %d", cfg.Resilience.CBHalfOpenMax))
	}

	// Lock validation
	if !isValidEnum(cfg.Lock.Backend, ValidLockBackends) {
		errs = append(errs, fmt.Sprintf("lock.backend must be one of %v, got %q", ValidLockBackends, cfg.Lock.Backend))
	}
	if strings.EqualFold(cfg.Lock.Backend, "redis") && cfg.Lock.RedisAddr == "" {
		errs = append(errs, "lock.redis_addr must be set for the redis backend")
	}
	if cfg.Lock.TTLSeconds < 1 {
		errs = append(errs, fmt.Sprintf("lock.ttl_seconds must be at least 1, got %d", cfg.Lock.TTLSeconds))
	}

	// Rate limit validation
	if cfg.RateLimit.Enabled {
		if cfg.RateLimit.Rate <= 0 {
			errs = append(errs, fmt.Sprintf("rate_limit.rate must be positive, got %f", cfg.RateLimit.Rate))
		}
		if cfg.RateLimit.Burst < 1 {
			errs = append(errs, fmt.Sprintf("rate_limit.burst must be at least 1, got %d", cfg.RateLimit.Burst))
		}
	}

	// Tracing validation
	if cfg.Tracing.Enabled {
		validExporters := []string{"stdout", "otlp-grpc", "otlp-http"}
		if !isValidEnum(cfg.Tracing.Exporter, validExporters) {
			errs = append(errs, fmt.Sprintf("tracing.exporter must be one of %v, got %q", validExporters, cfg.Tracing.Exporter))
		}
		if cfg.Tracing.ServiceName == "" {
			errs = append(errs, "tracing.service_name must not be empty when tracing is enabled")
		}
	}
	if cfg.Tracing.SampleRate < 0 || cfg.Tracing.SampleRate > 1 {
		errs = append(errs, fmt.Sprintf("tracing.sample_rate must be between 0 and 1, got %f", cfg.Tracing.SampleRate))
	}

	if cfg.Privacy.Enabled && !isValidEnum(cfg.Privacy.Action, ValidPrivacyActions) {
		errs = append(errs, fmt.Sprintf("privacy.action must be one of %v, got %q", ValidPrivacyActions, cfg.Privacy.Action))
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}

// isValidEnum returns true if val is in the allowed list (case-insensitive).
func isValidEnum(val string, allowed []string) bool {
	for _, a := range allowed {
		if strings.EqualFold(a, val) {
			return true
		}
	}
	return false
}
