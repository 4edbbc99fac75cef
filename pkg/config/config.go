// Package config loads the registry core's environment-driven
// configuration.
package config

import (
	"os"
	"strconv"
)

// StoreBackend selects which DataStore implementation the entrypoint
// wires up.
type StoreBackend string

const (
	StoreBackendMemory   StoreBackend = "memory"
	StoreBackendSQLite   StoreBackend = "sqlite"
	StoreBackendPostgres StoreBackend = "postgres"
)

// Config holds the registry core's runtime configuration.
type Config struct {
	Port     string
	LogLevel string

	StoreBackend StoreBackend
	DatabaseURL  string // used when StoreBackend is sqlite or postgres

	RedisURL string // content-presence cache/notifier address; registryd does not read it

	CheckpointBatchSize int // leaves per checkpoint before auto-flush

	S3Bucket   string
	S3Region   string
	S3Endpoint string
}

// Load loads configuration from environment variables, applying a
// default wherever a variable is unset.
func Load() *Config {
	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}

	logLevel := os.Getenv("LOG_LEVEL")
	if logLevel == "" {
		logLevel = "INFO"
	}

	backend := StoreBackend(os.Getenv("STORE_BACKEND"))
	if backend == "" {
		backend = StoreBackendMemory
	}

	dbURL := os.Getenv("DATABASE_URL")
	if dbURL == "" {
		dbURL = "postgres://registry@localhost:5432/registry?sslmode=disable"
	}

	batchSize := 16
	if raw := os.Getenv("CHECKPOINT_BATCH_SIZE"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 {
			batchSize = n
		}
	}

	return &Config{
		Port:                port,
		LogLevel:            logLevel,
		StoreBackend:        backend,
		DatabaseURL:         dbURL,
		RedisURL:            os.Getenv("REDIS_URL"),
		CheckpointBatchSize: batchSize,
		S3Bucket:            os.Getenv("S3_BUCKET"),
		S3Region:            os.Getenv("S3_REGION"),
		S3Endpoint:          os.Getenv("S3_ENDPOINT"),
	}
}
