// Command registryd runs the registry coordination core as a
// standalone process: it loads configuration from the environment,
// wires up a data store backend, a transparency builder, and a
// content oracle, then runs the core service until terminated.
package main

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"

	"github.com/JAFLabs/bytecodealliance-registry/pkg/config"
	"github.com/JAFLabs/bytecodealliance-registry/pkg/content"
	"github.com/JAFLabs/bytecodealliance-registry/pkg/core"
	"github.com/JAFLabs/bytecodealliance-registry/pkg/hashing"
	"github.com/JAFLabs/bytecodealliance-registry/pkg/signing"
	"github.com/JAFLabs/bytecodealliance-registry/pkg/store"
	"github.com/JAFLabs/bytecodealliance-registry/pkg/store/postgres"
	"github.com/JAFLabs/bytecodealliance-registry/pkg/store/sqlite"
	"github.com/JAFLabs/bytecodealliance-registry/pkg/telemetry"
	"github.com/JAFLabs/bytecodealliance-registry/pkg/transparency"
)

func main() {
	os.Exit(Run())
}

// Run is the entrypoint split out for testability.
func Run() int {
	fmt.Fprintln(os.Stdout, "registryd starting...")

	cfg := config.Load()
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	tel, err := telemetry.New(telemetry.Config{ServiceName: "registryd"})
	if err != nil {
		log.Fatalf("registryd: failed to init telemetry: %v", err)
	}
	defer func() {
		if err := tel.Shutdown(context.Background()); err != nil {
			tel.Logger().Error("telemetry shutdown failed", "error", err)
		}
	}()

	ds, err := buildStore(ctx, cfg)
	if err != nil {
		log.Fatalf("registryd: failed to init data store: %v", err)
	}

	oracle, err := buildOracle(ctx, cfg)
	if err != nil {
		log.Fatalf("registryd: failed to init content oracle: %v", err)
	}

	builder := transparency.NewMemoryBuilder(hashing.Sha256, cfg.CheckpointBatchSize)
	svc := core.New(ds, builder, oracle, hashing.Sha256, tel)

	tel.Logger().Info("registryd ready",
		"store_backend", cfg.StoreBackend,
		"checkpoint_batch_size", cfg.CheckpointBatchSize,
		"port", cfg.Port,
	)

	svc.Run(ctx)
	tel.Logger().Info("registryd shutting down")
	return 0
}

func buildStore(ctx context.Context, cfg *config.Config) (store.DataStore, error) {
	verifier := signing.Ed25519Verifier{}

	switch cfg.StoreBackend {
	case config.StoreBackendSQLite:
		db, err := sql.Open("sqlite", cfg.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("opening sqlite database: %w", err)
		}
		if err := db.PingContext(ctx); err != nil {
			return nil, fmt.Errorf("pinging sqlite database: %w", err)
		}
		return sqlite.Open(db, hashing.Sha256, verifier)

	case config.StoreBackendPostgres:
		db, err := sql.Open("postgres", cfg.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("opening postgres database: %w", err)
		}
		if err := db.PingContext(ctx); err != nil {
			return nil, fmt.Errorf("pinging postgres database: %w", err)
		}
		return postgres.Open(db, hashing.Sha256, verifier)

	case config.StoreBackendMemory, "":
		return store.NewMemoryDataStore(hashing.Sha256, verifier)

	default:
		return nil, fmt.Errorf("unknown store backend %q", cfg.StoreBackend)
	}
}

func buildOracle(ctx context.Context, cfg *config.Config) (content.Oracle, error) {
	if cfg.S3Bucket == "" {
		return content.NewMemoryOracle(), nil
	}
	return content.NewS3Oracle(ctx, content.S3OracleConfig{
		Bucket:   cfg.S3Bucket,
		Region:   cfg.S3Region,
		Endpoint: cfg.S3Endpoint,
	})
}
