// Package config loads process configuration from environment variables.
// Defaults are applied for unset values and every setting is validated on
// startup so a misconfigured process fails before touching any file.
//
// Per-job settings (columns, SQL, splitting) live in job files, see package
// jobdef. The Import section only carries the process-wide defaults.
package config

import (
	"strconv"
	"time"
)

// Config holds all process configuration.
type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Import   ImportConfig
	Logging  LoggingConfig
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	// Host is the interface to bind to (default: 0.0.0.0)
	Host string `env:"SERVER_HOST" default:"0.0.0.0"`

	// Port is the port to listen on (default: 8080)
	Port int `env:"SERVER_PORT" default:"8080"`

	// ReadTimeout is the maximum duration for reading a request (default: 15s)
	ReadTimeout time.Duration `env:"SERVER_READ_TIMEOUT" default:"15s"`

	// WriteTimeout is the maximum duration for writing a response. Runs are
	// synchronous, so it must cover IMPORT_RUN_TIMEOUT (default: 0, no limit)
	WriteTimeout time.Duration `env:"SERVER_WRITE_TIMEOUT" default:"0s"`

	// IdleTimeout is the keep-alive timeout (default: 60s)
	IdleTimeout time.Duration `env:"SERVER_IDLE_TIMEOUT" default:"60s"`

	// ShutdownTimeout is the maximum duration to wait for graceful shutdown (default: 30s)
	ShutdownTimeout time.Duration `env:"SERVER_SHUTDOWN_TIMEOUT" default:"30s"`

	// TrustedProxies is a comma-separated list of proxy CIDRs whose
	// X-Real-IP / X-Forwarded-For headers are believed
	TrustedProxies []string `env:"TRUSTED_PROXIES"`

	// RequireAPIKey protects the run endpoint with X-API-Key (default: false)
	RequireAPIKey bool `env:"REQUIRE_API_KEY" default:"false"`

	// APIKeys is a comma-separated list of accepted API keys
	APIKeys []string `env:"API_KEYS"`
}

// DatabaseConfig holds database connection settings.
type DatabaseConfig struct {
	// URL is the PostgreSQL connection string (required)
	URL string `env:"DATABASE_URL" envAlt:"DB_URL" required:"true"`

	// MaxConns is the maximum number of connections in the pool (default: 10)
	MaxConns int `env:"DB_MAX_CONNS" default:"10"`

	// MinConns is the minimum number of connections to keep open (default: 1)
	MinConns int `env:"DB_MIN_CONNS" default:"1"`

	// MaxConnLifetime is the maximum lifetime of a connection (default: 1h)
	MaxConnLifetime time.Duration `env:"DB_MAX_CONN_LIFETIME" default:"1h"`

	// MaxConnIdleTime is the maximum idle time before a connection is closed (default: 30m)
	MaxConnIdleTime time.Duration `env:"DB_MAX_CONN_IDLE_TIME" default:"30m"`
}

// ImportConfig holds file import settings.
type ImportConfig struct {
	// JobsDir is the directory holding the job definition files (default: ./jobs)
	JobsDir string `env:"IMPORT_JOBS_DIR" default:"./jobs"`

	// BatchSize is the default number of rows per flush (default: 100)
	BatchSize int `env:"IMPORT_BATCH_SIZE" default:"100"`

	// CommitMode is the default commit mode: auto, deferred or external (default: auto)
	CommitMode string `env:"IMPORT_COMMIT_MODE" default:"auto"`

	// Charset is the default file charset (default: UTF-8)
	Charset string `env:"IMPORT_CHARSET" default:"UTF-8"`

	// MaxLineSize is the longest accepted line in bytes (default: 1MB)
	MaxLineSize int `env:"IMPORT_MAX_LINE_SIZE" default:"1048576"`

	// ContextCheckInterval is how many rows pass between cancellation checks (default: 100)
	ContextCheckInterval int `env:"IMPORT_CONTEXT_CHECK_INTERVAL" default:"100"`

	// MaxConcurrentRuns is the maximum number of parallel job runs (default: 2)
	MaxConcurrentRuns int `env:"IMPORT_MAX_CONCURRENT_RUNS" default:"2"`

	// MaxWaitTime is how long a run waits for a slot (default: 30s)
	MaxWaitTime time.Duration `env:"IMPORT_MAX_WAIT_TIME" default:"30s"`

	// RunTimeout is the maximum duration of one job run (default: 30m)
	RunTimeout time.Duration `env:"IMPORT_RUN_TIMEOUT" default:"30m"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	// Level is the minimum log level: debug, info, warn, error (default: info)
	Level string `env:"LOG_LEVEL" default:"info"`

	// Format is the log format: text or json (default: text)
	Format string `env:"LOG_FORMAT" default:"text"`
}

// Addr returns the server listen address in host:port format.
func (c *ServerConfig) Addr() string {
	return c.Host + ":" + strconv.Itoa(c.Port)
}
