package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/mindara-hq/eventdesk/pkg/observability"
	"github.com/mindara-hq/eventdesk/pkg/storage"
)

// Config holds all application configuration
type Config struct {
	Server        ServerConfig
	Storage       storage.Config
	Observability ObservabilityConfig
	SSO           SSOConfig

	// BrandingPath points at the optional YAML branding file
	BrandingPath string
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host            string
	Port            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration

	// Health/metrics server (separate port for k8s probes)
	HealthPort string
}

// ObservabilityConfig holds observability settings
type ObservabilityConfig struct {
	LogLevel       observability.LogLevel
	MetricsEnabled bool

	OTelEnabled        bool
	OTelEndpoint       string
	OTelServiceName    string
	OTelServiceVersion string
	OTelInsecure       bool
}

// SSOConfig holds single sign-on settings. SSO is optional; when the
// issuer is empty only password login is offered.
type SSOConfig struct {
	OIDCEnabled  bool
	OIDCIssuer   string
	OIDCClientID string
	OIDCSecret   string
	OIDCRedirect string

	SAMLEnabled      bool
	SAMLMetadataURL  string
	SAMLEntityID     string
	SAMLCertPath     string
	SAMLKeyPath      string
	SAMLAssertionURL string
}

// LoadConfig loads configuration from environment variables
func LoadConfig() (*Config, error) {
	cfg := &Config{
		Server:        loadServerConfig(),
		Storage:       loadStorageConfig(),
		Observability: loadObservabilityConfig(),
		SSO:           loadSSOConfig(),
		BrandingPath:  getEnv("EVENTDESK_BRANDING_PATH", ""),
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

func loadServerConfig() ServerConfig {
	return ServerConfig{
		Host:            getEnv("EVENTDESK_HOST", "0.0.0.0"),
		Port:            getEnv("EVENTDESK_PORT", "8080"),
		ReadTimeout:     getEnvDuration("EVENTDESK_READ_TIMEOUT", 15*time.Second),
		WriteTimeout:    getEnvDuration("EVENTDESK_WRITE_TIMEOUT", 15*time.Second),
		IdleTimeout:     getEnvDuration("EVENTDESK_IDLE_TIMEOUT", 60*time.Second),
		ShutdownTimeout: getEnvDuration("EVENTDESK_SHUTDOWN_TIMEOUT", 30*time.Second),
		HealthPort:      getEnv("EVENTDESK_HEALTH_PORT", "9090"),
	}
}

func loadStorageConfig() storage.Config {
	cfg := storage.DefaultConfig()

	if pgURL := getEnv("EVENTDESK_POSTGRES_URL", ""); pgURL != "" {
		cfg.PostgresURL = pgURL
	}
	if maxConns := getEnvInt("EVENTDESK_POSTGRES_MAX_CONNS", 0); maxConns > 0 {
		cfg.PostgresMaxConns = maxConns
	}
	if minConns := getEnvInt("EVENTDESK_POSTGRES_MIN_CONNS", 0); minConns > 0 {
		cfg.PostgresMinConns = minConns
	}
	if timeout := getEnvDuration("EVENTDESK_POSTGRES_TIMEOUT", 0); timeout > 0 {
		cfg.PostgresTimeout = timeout
	}

	if cacheEnabled := getEnv("EVENTDESK_CACHE_ENABLED", ""); cacheEnabled != "" {
		cfg.CacheEnabled = strings.ToLower(cacheEnabled) == "true"
	}
	if redisURL := getEnv("EVENTDESK_REDIS_URL", ""); redisURL != "" {
		cfg.RedisURL = redisURL
	}
	if redisPassword := getEnv("EVENTDESK_REDIS_PASSWORD", ""); redisPassword != "" {
		cfg.RedisPassword = redisPassword
	}
	if redisDB := getEnvInt("EVENTDESK_REDIS_DB", -1); redisDB >= 0 {
		cfg.RedisDB = redisDB
	}
	if poolSize := getEnvInt("EVENTDESK_REDIS_POOL_SIZE", 0); poolSize > 0 {
		cfg.RedisPoolSize = poolSize
	}

	if s3Endpoint := getEnv("EVENTDESK_S3_ENDPOINT", ""); s3Endpoint != "" {
		cfg.S3Endpoint = s3Endpoint
	}
	if s3Region := getEnv("EVENTDESK_S3_REGION", ""); s3Region != "" {
		cfg.S3Region = s3Region
	}
	if s3Bucket := getEnv("EVENTDESK_S3_BUCKET", ""); s3Bucket != "" {
		cfg.S3Bucket = s3Bucket
	}
	if s3AccessKey := getEnv("EVENTDESK_S3_ACCESS_KEY", ""); s3AccessKey != "" {
		cfg.S3AccessKey = s3AccessKey
	}
	if s3SecretKey := getEnv("EVENTDESK_S3_SECRET_KEY", ""); s3SecretKey != "" {
		cfg.S3SecretKey = s3SecretKey
	}
	if s3UsePathStyle := getEnv("EVENTDESK_S3_USE_PATH_STYLE", ""); s3UsePathStyle != "" {
		cfg.S3UsePathStyle = strings.ToLower(s3UsePathStyle) == "true"
	}

	return cfg
}

func loadObservabilityConfig() ObservabilityConfig {
	return ObservabilityConfig{
		LogLevel:           observability.ParseLogLevel(getEnv("EVENTDESK_LOG_LEVEL", "info")),
		MetricsEnabled:     getEnvBool("EVENTDESK_METRICS_ENABLED", true),
		OTelEnabled:        getEnvBool("EVENTDESK_OTEL_ENABLED", false),
		OTelEndpoint:       getEnv("EVENTDESK_OTEL_ENDPOINT", "localhost:4317"),
		OTelServiceName:    getEnv("EVENTDESK_OTEL_SERVICE_NAME", "eventdesk"),
		OTelServiceVersion: getEnv("EVENTDESK_OTEL_SERVICE_VERSION", "1.0.0"),
		OTelInsecure:       getEnvBool("EVENTDESK_OTEL_INSECURE", true),
	}
}

func loadSSOConfig() SSOConfig {
	return SSOConfig{
		OIDCEnabled:  getEnvBool("EVENTDESK_OIDC_ENABLED", false),
		OIDCIssuer:   getEnv("EVENTDESK_OIDC_ISSUER", ""),
		OIDCClientID: getEnv("EVENTDESK_OIDC_CLIENT_ID", ""),
		OIDCSecret:   getEnv("EVENTDESK_OIDC_CLIENT_SECRET", ""),
		OIDCRedirect: getEnv("EVENTDESK_OIDC_REDIRECT_URL", ""),

		SAMLEnabled:      getEnvBool("EVENTDESK_SAML_ENABLED", false),
		SAMLMetadataURL:  getEnv("EVENTDESK_SAML_METADATA_URL", ""),
		SAMLEntityID:     getEnv("EVENTDESK_SAML_ENTITY_ID", ""),
		SAMLCertPath:     getEnv("EVENTDESK_SAML_CERT_PATH", ""),
		SAMLKeyPath:      getEnv("EVENTDESK_SAML_KEY_PATH", ""),
		SAMLAssertionURL: getEnv("EVENTDESK_SAML_ASSERTION_URL", ""),
	}
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Server.Port == "" {
		return fmt.Errorf("server port is required")
	}
	if c.Server.HealthPort == "" {
		return fmt.Errorf("health port is required")
	}
	if c.Server.Port == c.Server.HealthPort {
		return fmt.Errorf("server port and health port must be different")
	}

	if c.Storage.PostgresURL == "" {
		return fmt.Errorf("postgres URL is required")
	}

	if c.Observability.OTelEnabled {
		if c.Observability.OTelEndpoint == "" {
			return fmt.Errorf("OpenTelemetry endpoint is required when OTel is enabled")
		}
		if c.Observability.OTelServiceName == "" {
			return fmt.Errorf("OpenTelemetry service name is required when OTel is enabled")
		}
	}

	if c.SSO.OIDCEnabled {
		if c.SSO.OIDCIssuer == "" || c.SSO.OIDCClientID == "" {
			return fmt.Errorf("OIDC issuer and client ID are required when OIDC is enabled")
		}
	}
	if c.SSO.SAMLEnabled {
		if c.SSO.SAMLMetadataURL == "" || c.SSO.SAMLEntityID == "" {
			return fmt.Errorf("SAML metadata URL and entity ID are required when SAML is enabled")
		}
	}

	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		return strings.ToLower(value) == "true" || value == "1"
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}
