package storage

import "time"

// Config holds storage backend configuration
type Config struct {
	// PostgreSQL
	PostgresURL      string
	PostgresMaxConns int
	PostgresMinConns int
	PostgresTimeout  time.Duration

	// Redis cache
	CacheEnabled    bool
	RedisURL        string
	RedisPassword   string
	RedisDB         int
	RedisMaxRetries int
	RedisPoolSize   int
	CacheTTL        map[string]time.Duration

	// S3 report archive
	S3Endpoint     string
	S3Region       string
	S3Bucket       string
	S3AccessKey    string
	S3SecretKey    string
	S3UsePathStyle bool
}

// DefaultConfig returns sensible defaults for local development
func DefaultConfig() Config {
	return Config{
		PostgresMaxConns: 25,
		PostgresMinConns: 5,
		PostgresTimeout:  10 * time.Second,
		CacheEnabled:     true,
		RedisDB:          0,
		CacheTTL: map[string]time.Duration{
			"unread_count": 5 * time.Minute,
			"notification": 10 * time.Minute,
		},
		S3Region: "us-east-1",
	}
}
