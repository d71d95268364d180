package config

const (
	DefaultBindAddress      = "127.0.0.1"
	DefaultPort             = 7680
	DefaultLogLevel         = "info"
	DefaultDataDir          = "~/.reportbrief"
	DefaultConfigFilename   = "reportbrief.toml"
	DefaultReadTimeout      = 15
	DefaultWriteTimeout     = 60
	DefaultIdleTimeout      = 120
	DefaultMaxUploadSize    = 10 << 20
	DefaultTokenCacheSize   = 1024
	DefaultTokenCacheTTL    = 300
	DefaultFreeTierLimit    = 5
	DefaultQuotaTimezone    = "UTC"
	DefaultSummarizerModel  = "claude-sonnet-4-20250514"
	DefaultAnthropicBase    = "https://api.anthropic.com"
	DefaultMaxTokens        = 2000
	DefaultTemperature      = 0.3
	DefaultSummarizeTimeout = 30
	DefaultSampleRows       = 50
	DefaultLockTTL          = 90
	DefaultRedisAddr        = "localhost:6379"
)

// Circuit breaker defaults.
const (
	DefaultCBFailureThreshold = 5
	DefaultCBResetTimeout     = 60
	DefaultCBHalfOpenMax      = 1
)

// Tracing defaults.
const (
	DefaultTracingExporter    = "otlp-grpc"
	DefaultTracingEndpoint    = "localhost:4317"
	DefaultTracingServiceName = "reportbrief"
	DefaultTracingSampleRate  = 1.0
)

// ValidLogLevels lists the allowed log level values.
var ValidLogLevels = []string{"trace", "debug", "info", "warn", "error", "fatal"}

// ValidSummarizerBackends lists the selectable summarizer implementations.
var ValidSummarizerBackends = []string{"anthropic", "http", "mock"}

// ValidLockBackends lists the selectable summarization guard backends.
var ValidLockBackends = []string{"local", "redis"}

// ValidPrivacyActions lists the supported masking modes.
var ValidPrivacyActions = []string{"redact", "hash"}

// DefaultConfig returns a Config populated with all default values.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			BindAddress:   DefaultBindAddress,
			Port:          DefaultPort,
			LogLevel:      DefaultLogLevel,
			DataDir:       DefaultDataDir,
			ReadTimeout:   DefaultReadTimeout,
			WriteTimeout:  DefaultWriteTimeout,
			IdleTimeout:   DefaultIdleTimeout,
			MaxUploadSize: DefaultMaxUploadSize,
		},
		Auth: AuthConfig{
			JWTSecretRef:         "keyring://reportbrief/jwt",
			TokenCacheSize:       DefaultTokenCacheSize,
			TokenCacheTTLSeconds: DefaultTokenCacheTTL,
		},
		Quota: QuotaConfig{
			FreeTierLimit:      DefaultFreeTierLimit,
			Timezone:           DefaultQuotaTimezone,
			EnforceOnSummarize: true,
		},
		Summarizer: SummarizerConfig{
			Backend:        "anthropic",
			Model:          DefaultSummarizerModel,
			APIBase:        DefaultAnthropicBase,
			KeyRef:         "keyring://reportbrief/anthropic",
			MaxTokens:      DefaultMaxTokens,
			Temperature:    DefaultTemperature,
			TimeoutSeconds: DefaultSummarizeTimeout,
			SampleRows:     DefaultSampleRows,
		},
		Resilience: ResilienceConfig{
			CBEnabled:          true,
			CBFailureThreshold: DefaultCBFailureThreshold,
			CBResetTimeoutSec:  DefaultCBResetTimeout,
			CBHalfOpenMax:      DefaultCBHalfOpenMax,
		},
		Lock: LockConfig{
			Enabled:    true,
			Backend:    "local",
			RedisAddr:  DefaultRedisAddr,
			TTLSeconds: DefaultLockTTL,
		},
		RateLimit: RateLimitConfig{
			Enabled: false,
			Rate:    2,
			Burst:   10,
		},
		Tracing: TracingConfig{
			Enabled:     false,
			Exporter:    DefaultTracingExporter,
			Endpoint:    DefaultTracingEndpoint,
			ServiceName: DefaultTracingServiceName,
			SampleRate:  DefaultTracingSampleRate,
		},
		Metrics: MetricsConfig{
			Enabled: true,
		},
		Privacy: PrivacyConfig{
			Enabled:   false,
			Action:    "redact",
			AllowList: []string{},
		},
	}
}
