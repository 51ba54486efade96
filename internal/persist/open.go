package persist

import (
	"context"
	"fmt"

	"rollcall/internal/blob"
	"rollcall/internal/infra/persistence/blobkv"
	"rollcall/internal/infra/persistence/postgres"
	"rollcall/internal/infra/persistence/redis"
	"rollcall/internal/infra/persistence/sqlite"
)

// Driver selects a backend family.
type Driver string

const (
	DriverMemory   Driver = "memory"
	DriverFS       Driver = "fs"
	DriverS3       Driver = "s3"
	DriverSQLite   Driver = "sqlite"
	DriverPostgres Driver = "postgres"
	DriverRedis    Driver = "redis"
)

// Drivers lists every supported driver.
var Drivers = []Driver{DriverMemory, DriverFS, DriverS3, DriverSQLite, DriverPostgres, DriverRedis}

// Config carries the connection settings of every driver; only the fields of
// the selected driver are read.
type Config struct {
	Driver      Driver
	SQLitePath  string
	PostgresDSN string
	RedisURL    string
	RedisPrefix string
	BlobPrefix  string
	FSRoot      string
	S3          blob.S3Config
}

// Open constructs the backend named by cfg.Driver. An empty driver means sqlite.
func Open(ctx context.Context, cfg Config) (Backend, error) {
	switch cfg.Driver {
	case DriverSQLite, "":
		return sqlite.NewBackend(cfg.SQLitePath)
	case DriverPostgres:
		return postgres.NewBackend(ctx, cfg.PostgresDSN)
	case DriverRedis:
		return redis.Dial(ctx, cfg.RedisURL, cfg.RedisPrefix)
	case DriverMemory, DriverFS, DriverS3:
		store, err := blob.Open(ctx, blob.Config{Driver: blob.Driver(cfg.Driver), FSRoot: cfg.FSRoot, S3: cfg.S3})
		if err != nil {
			return nil, fmt.Errorf("open blob store: %w", err)
		}
		return blobkv.NewBackend(store, cfg.BlobPrefix), nil
	default:
		return nil, fmt.Errorf("unknown persistence driver %q", cfg.Driver)
	}
}

var (
	_ Backend    = (*sqlite.Backend)(nil)
	_ BatchSaver = (*sqlite.Backend)(nil)
	_ Backend    = (*postgres.Backend)(nil)
	_ BatchSaver = (*postgres.Backend)(nil)
	_ Backend    = (*redis.Backend)(nil)
	_ BatchSaver = (*redis.Backend)(nil)
	_ Backend    = (*blobkv.Backend)(nil)
)
