// Package config loads, validates and hot-reloads ReportBrief settings.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"time"
	_ "time/tzdata" // quota.timezone must resolve on hosts without zoneinfo

	"github.com/go-viper/mapstructure/v2"
	"github.com/pelletier/go-toml/v2"
	"github.com/spf13/viper"
)

var configPtr atomic.Pointer[Config]

// loadedConfigFile is the file used by the last successful Load.
var loadedConfigFile atomic.Value

// Get returns the current Config, or the defaults if nothing was loaded.
func Get() *Config {
	if c := configPtr.Load(); c != nil {
		return c
	}
	d := DefaultConfig()
	configPtr.Store(d)
	return d
}

func set(cfg *Config) {
	configPtr.Store(cfg)
}

// Config is the top-level configuration.
type Config struct {
	Server     ServerConfig     `mapstructure:"server" toml:"server"`
	Auth       AuthConfig       `mapstructure:"auth" toml:"auth"`
	Quota      QuotaConfig      `mapstructure:"quota" toml:"quota"`
	Summarizer SummarizerConfig `mapstructure:"summarizer" toml:"summarizer"`
	Resilience ResilienceConfig `mapstructure:"resilience" toml:"resilience"`
	Lock       LockConfig       `mapstructure:"lock" toml:"lock"`
	RateLimit  RateLimitConfig  `mapstructure:"rate_limit" toml:"rate_limit"`
	Tracing    TracingConfig    `mapstructure:"tracing" toml:"tracing"`
	Metrics    MetricsConfig    `mapstructure:"metrics" toml:"metrics"`
	Privacy    PrivacyConfig    `mapstructure:"privacy" toml:"privacy"`
}

// ServerConfig holds HTTP listener and process settings.
type ServerConfig struct {
	BindAddress   string `mapstructure:"bind_address" toml:"bind_address"`
	Port          int    `mapstructure:"port" toml:"port"`
	LogLevel      string `mapstructure:"log_level" toml:"log_level"`
	DataDir       string `mapstructure:"data_dir" toml:"data_dir"`
	TLSEnabled    bool   `mapstructure:"tls_enabled" toml:"tls_enabled"`
	CertFile      string `mapstructure:"cert_file" toml:"cert_file"`
	KeyFile       string `mapstructure:"key_file" toml:"key_file"`
	ReadTimeout   int    `mapstructure:"read_timeout" toml:"read_timeout"`   // seconds
	WriteTimeout  int    `mapstructure:"write_timeout" toml:"write_timeout"` // seconds
	IdleTimeout   int    `mapstructure:"idle_timeout" toml:"idle_timeout"`   // seconds
	MaxUploadSize int64  `mapstructure:"max_upload_size" toml:"max_upload_size"`
}

// Addr returns the listen address.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.BindAddress, s.Port)
}

// AuthConfig holds bearer token verification settings.
type AuthConfig struct {
	// JWTSecretRef resolves to the HS256 signing secret (see vault.ResolveKeyRef).
	JWTSecretRef         string `mapstructure:"jwt_secret_ref" toml:"jwt_secret_ref"`
	Issuer               string `mapstructure:"issuer" toml:"issuer"`
	Audience             string `mapstructure:"audience" toml:"audience"`
	TokenCacheSize       int    `mapstructure:"token_cache_size" toml:"token_cache_size"`
	TokenCacheTTLSeconds int    `mapstructure:"token_cache_ttl_seconds" toml:"token_cache_ttl_seconds"`
}

// TokenCacheTTL returns the verified-token cache lifetime.
func (a AuthConfig) TokenCacheTTL() time.Duration {
	return time.Duration(a.TokenCacheTTLSeconds) * time.Second
}

// QuotaConfig holds the free-tier policy.
type QuotaConfig struct {
	FreeTierLimit      int    `mapstructure:"free_tier_limit" toml:"free_tier_limit"`
	Timezone           string `mapstructure:"timezone" toml:"timezone"`
	EnforceOnSummarize bool   `mapstructure:"enforce_on_summarize" toml:"enforce_on_summarize"`
}

// Location resolves Timezone. An empty value means UTC.
func (q QuotaConfig) Location() (*time.Location, error) {
	if q.Timezone == "" {
		return time.UTC, nil
	}
	return time.LoadLocation(q.Timezone)
}

// SummarizerConfig selects and tunes the external summarizer.
type SummarizerConfig struct {
	Backend        string  `mapstructure:"backend" toml:"backend"` // "anthropic", "http", "mock"
	Model          string  `mapstructure:"model" toml:"model"`
	APIBase        string  `mapstructure:"api_base" toml:"api_base"`
	KeyRef         string  `mapstructure:"key_ref" toml:"key_ref"`
	ProxyURL       string  `mapstructure:"proxy_url" toml:"proxy_url"`
	MaxTokens      int     `mapstructure:"max_tokens" toml:"max_tokens"`
	Temperature    float64 `mapstructure:"temperature" toml:"temperature"`
	TimeoutSeconds int     `mapstructure:"timeout_seconds" toml:"timeout_seconds"`
	SampleRows     int     `mapstructure:"sample_rows" toml:"sample_rows"`
}

// Timeout returns the upper wait bound for one summarizer call.
func (s SummarizerConfig) Timeout() time.Duration {
	return time.Duration(s.TimeoutSeconds) * time.Second
}

// ResilienceConfig tunes the summarizer circuit breaker.
type ResilienceConfig struct {
	CBEnabled          bool `mapstructure:"circuit_breaker_enabled" toml:"circuit_breaker_enabled"`
	CBFailureThreshold int  `mapstructure:"cb_failure_threshold" toml:"cb_failure_threshold"`
	CBResetTimeoutSec  int  `mapstructure:"cb_reset_timeout_seconds" toml:"cb_reset_timeout_seconds"`
	CBHalfOpenMax      int  `mapstructure:"cb_half_open_max_calls" toml:"cb_half_open_max_calls"`
}

// LockConfig configures the per-report summarization guard.
type LockConfig struct {
	Enabled       bool   `mapstructure:"enabled" toml:"enabled"`
	Backend       string `mapstructure:"backend" toml:"backend"` // "local" or "redis"
	RedisAddr     string `mapstructure:"redis_addr" toml:"redis_addr"`
	RedisPassword string `mapstructure:"redis_password" toml:"redis_password"`
	RedisDB       int    `mapstructure:"redis_db" toml:"redis_db"`
	TTLSeconds    int    `mapstructure:"ttl_seconds" toml:"ttl_seconds"`
}

// TTL returns how long a held guard survives without release.
func (l LockConfig) TTL() time.Duration {
	return time.Duration(l.TTLSeconds) * time.Second
}

// RateLimitConfig configures the per-user request limiter.
type RateLimitConfig struct {
	Enabled bool    `mapstructure:"enabled" toml:"enabled"`
	Rate    float64 `mapstructure:"rate" toml:"rate"` // requests per second
	Burst   int     `mapstructure:"burst" toml:"burst"`
}

// TracingConfig configures OpenTelemetry export.
type TracingConfig struct {
	Enabled     bool    `mapstructure:"enabled" toml:"enabled"`
	Exporter    string  `mapstructure:"exporter" toml:"exporter"` // "stdout", "otlp-grpc", "otlp-http"
	Endpoint    string  `mapstructure:"endpoint" toml:"endpoint"`
	ServiceName string  `mapstructure:"service_name" toml:"service_name"`
	SampleRate  float64 `mapstructure:"sample_rate" toml:"sample_rate"`
	Insecure    bool    `mapstructure:"insecure" toml:"insecure"`
}

// PrivacyConfig controls masking of personal data in the rows sent to the
// summarizer.
type PrivacyConfig struct {
	Enabled   bool     `mapstructure:"enabled" toml:"enabled"`
	Action    string   `mapstructure:"action" toml:"action"` // "redact" or "hash"
	AllowList []string `mapstructure:"allow_list" toml:"allow_list"`
}

// MetricsConfig toggles the Prometheus endpoint.
type MetricsConfig struct {
	Enabled bool `mapstructure:"enabled" toml:"enabled"`
}

// Load reads configuration with the following precedence:
//  1. Environment variables (REPORTBRIEF_ prefix, _ as separator)
//  2. The file at explicitPath if non-empty
//  3. ~/.reportbrief/reportbrief.toml
//  4. ./reportbrief.toml
//  5. Built-in defaults
//
// The result is validated and becomes the value returned by Get.
func Load(explicitPath string) (*Config, error) {
	v := viper.New()
	v.SetConfigType("toml")
	setViperDefaults(v)

	v.SetEnvPrefix("REPORTBRIEF")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if explicitPath != "" {
		v.SetConfigFile(explicitPath)
	} else {
		if homeDir, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(filepath.Join(homeDir, ".reportbrief"))
		}
		v.AddConfigPath(".")
		v.SetConfigName("reportbrief")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("reading config: %w", err)
		}
	}

	if cf := v.ConfigFileUsed(); cf != "" {
		loadedConfigFile.Store(cf)
	}

	cfg := DefaultConfig()
	if err := v.Unmarshal(cfg, viper.DecodeHook(
		mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		),
	)); err != nil {
		return nil, fmt.Errorf("unmarshalling config: %w", err)
	}

	cfg.Server.DataDir = expandHome(cfg.Server.DataDir)

	if err := validate(cfg); err != nil {
		return nil, err
	}

	set(cfg)
	return cfg, nil
}

// InitConfig writes the default configuration to ~/.reportbrief/reportbrief.toml
// unless the file already exists.
func InitConfig() error {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return fmt.Errorf("determining home directory: %w", err)
	}

	dir := filepath.Join(homeDir, ".reportbrief")
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("creating data directory: %w", err)
	}

	path := filepath.Join(dir, DefaultConfigFilename)
	if _, err := os.Stat(path); err == nil {
		fmt.Printf("Config already exists: %s\n", path)
		return nil
	}

	data, err := toml.Marshal(DefaultConfig())
	if err != nil {
		return fmt.Errorf("marshalling default config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("writing config: %w", err)
	}

	fmt.Printf("Config written to %s\n", path)
	return nil
}

// ExportConfig writes the current config to path as TOML.
func ExportConfig(path string) error {
	data, err := toml.Marshal(Get())
	if err != nil {
		return fmt.Errorf("marshalling config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("writing config: %w", err)
	}
	return nil
}

// ImportConfig validates the TOML file at path, makes it current and
// persists it to the active config file when there is one.
func ImportConfig(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading config: %w", err)
	}
	cfg := DefaultConfig()
	if err := toml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parsing config: %w", err)
	}
	cfg.Server.DataDir = expandHome(cfg.Server.DataDir)
	if err := validate(cfg); err != nil {
		return err
	}
	set(cfg)

	if dest := ConfigFilePath(); dest != "" {
		if err := os.WriteFile(dest, data, 0o600); err != nil {
			return fmt.Errorf("persisting imported config: %w", err)
		}
	}
	return nil
}

// ConfigFilePath returns the config file used by the last Load, if any.
func ConfigFilePath() string {
	if v, ok := loadedConfigFile.Load().(string); ok {
		return v
	}
	return ""
}

// setViperDefaults registers every key so env overrides work without a file.
func setViperDefaults(v *viper.Viper) {
	d := DefaultConfig()

	v.SetDefault("server.bind_address", d.Server.BindAddress)
	v.SetDefault("server.port", d.Server.Port)
	v.SetDefault("server.log_level", d.Server.LogLevel)
	v.SetDefault("server.data_dir", d.Server.DataDir)
	v.SetDefault("server.tls_enabled", d.Server.TLSEnabled)
	v.SetDefault("server.cert_file", d.Server.CertFile)
	v.SetDefault("server.key_file", d.Server.KeyFile)
	v.SetDefault("server.read_timeout", d.Server.ReadTimeout)
	v.SetDefault("server.write_timeout", d.Server.WriteTimeout)
	v.SetDefault("server.idle_timeout", d.Server.IdleTimeout)
	v.SetDefault("server.max_upload_size", d.Server.MaxUploadSize)

	v.SetDefault("auth.jwt_secret_ref", d.Auth.JWTSecretRef)
	v.SetDefault("auth.issuer", d.Auth.Issuer)
	v.SetDefault("auth.audience", d.Auth.Audience)
	v.SetDefault("auth.token_cache_size", d.Auth.TokenCacheSize)
	v.SetDefault("auth.token_cache_ttl_seconds", d.Auth.TokenCacheTTLSeconds)

	v.SetDefault("quota.free_tier_limit", d.Quota.FreeTierLimit)
	v.SetDefault("quota.timezone", d.Quota.Timezone)
	v.SetDefault("quota.enforce_on_summarize", d.Quota.EnforceOnSummarize)

	v.SetDefault("summarizer.backend", d.Summarizer.Backend)
	v.SetDefault("summarizer.model", d.Summarizer.Model)
	v.SetDefault("summarizer.api_base", d.Summarizer.APIBase)
	v.SetDefault("summarizer.key_ref", d.Summarizer.KeyRef)
	v.SetDefault("summarizer.proxy_url", d.Summarizer.ProxyURL)
	v.SetDefault("summarizer.max_tokens", d.Summarizer.MaxTokens)
	v.SetDefault("summarizer.temperature", d.Summarizer.Temperature)
	v.SetDefault("summarizer.timeout_seconds", d.Summarizer.TimeoutSeconds)
	v.SetDefault("summarizer.sample_rows", d.Summarizer.SampleRows)

	v.SetDefault("resilience.circuit_breaker_enabled", d.Resilience.CBEnabled)
	v.SetDefault("resilience.cb_failure_threshold", d.Resilience.CBFailureThreshold)
	v.SetDefault("resilience.cb_reset_timeout_seconds", d.Resilience.CBResetTimeoutSec)
	v.SetDefault("resilience.cb_half_open_max_calls", d.Resilience.CBHalfOpenMax)

	v.SetDefault("lock.enabled", d.Lock.Enabled)
	v.SetDefault("lock.backend", d.Lock.Backend)
	v.SetDefault("lock.redis_addr", d.Lock.RedisAddr)
	v.SetDefault("lock.redis_password", d.Lock.RedisPassword)
	v.SetDefault("lock.redis_db", d.Lock.RedisDB)
	v.SetDefault("lock.ttl_seconds", d.Lock.TTLSeconds)

	v.SetDefault("rate_limit.enabled", d.RateLimit.Enabled)
	v.SetDefault("rate_limit.rate", d.RateLimit.Rate)
	v.SetDefault("rate_limit.burst", d.RateLimit.Burst)

	v.SetDefault("tracing.enabled", d.Tracing.Enabled)
	v.SetDefault("tracing.exporter", d.Tracing.Exporter)
	v.SetDefault("tracing.endpoint", d.Tracing.Endpoint)
	v.SetDefault("tracing.service_name", d.Tracing.ServiceName)
	v.SetDefault("tracing.sample_rate", d.Tracing.SampleRate)
	v.SetDefault("tracing.insecure", d.Tracing.Insecure)

	v.SetDefault("metrics.enabled", d.Metrics.Enabled)

	v.SetDefault("privacy.enabled", d.Privacy.Enabled)
	v.SetDefault("privacy.action", d.Privacy.Action)
	v.SetDefault("privacy.allow_list", d.Privacy.AllowList)
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
