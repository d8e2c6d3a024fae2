package core

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/redis/go-redis/v9"

	blobcore "datacore/internal/blob/core"
	blobfs "datacore/internal/infra/blob/fs"
	blobmemory "datacore/internal/infra/blob/memory"
	blobs3 "datacore/internal/infra/blob/s3"
	"datacore/internal/infra/persistence/memory"
	"datacore/internal/infra/persistence/postgres"
	"datacore/internal/infra/persistence/sqlite"
	"datacore/internal/tokens"
)

// StorageDriver identifies a concrete persistent storage implementation.
type StorageDriver string

const (
	StorageMemory   StorageDriver = "memory"   // in-memory only (tests / ephemeral)
	StorageSQLite   StorageDriver = "sqlite"   // embedded sqlite file
	StoragePostgres StorageDriver = "postgres" // PostgreSQL server
)

// OpenPersistentStore selects a backend using environment variables.
// Defaults to sqlite when unset.
//
//	DATACORE_STORAGE_DRIVER: memory|sqlite|postgres (default sqlite)
//	DATACORE_SQLITE_PATH: path to sqlite file (default ./datacore.db)
//	DATACORE_POSTGRES_DSN: postgres DSN when driver=postgres
func OpenPersistentStore(engine *RulesEngine) (PersistentStore, error) {
	driver := os.Getenv("DATACORE_STORAGE_DRIVER")
	if driver == "" {
		driver = string(StorageSQLite)
	}
	switch StorageDriver(driver) {
	case StorageMemory:
		return memory.NewStore(engine), nil
	case StorageSQLite:
		return sqlite.NewStore(os.Getenv("DATACORE_SQLITE_PATH"), engine)
	case StoragePostgres:
		return postgres.NewStore(os.Getenv("DATACORE_POSTGRES_DSN"), engine)
	default:
		return nil, fmt.Errorf("unknown storage driver %s", driver)
	}
}

// OpenBlobStore selects the file content backend. Defaults to the local
// filesystem store.
//
//	DATACORE_BLOB_DRIVER: fs|s3|memory (default fs)
//	DATACORE_BLOB_FS_ROOT: root directory when driver=fs
func OpenBlobStore(ctx context.Context) (blobcore.Store, error) {
	driver := os.Getenv("DATACORE_BLOB_DRIVER")
	if driver == "" {
		driver = string(blobcore.DriverFilesystem)
	}
	switch blobcore.Driver(driver) {
	case blobcore.DriverMemory:
		return blobmemory.New(), nil
	case blobcore.DriverFilesystem:
		return blobfs.New(os.Getenv("DATACORE_BLOB_FS_ROOT"))
	case blobcore.DriverS3:
		return blobs3.OpenFromEnv(ctx)
	default:
		return nil, fmt.Errorf("unknown blob driver %s", driver)
	}
}

// OpenTokenStore selects the review token backend. Defaults to the in-memory
// store; set DATACORE_REDIS_ADDR to share tokens across replicas.
//
//	DATACORE_REDIS_ADDR: redis host:port (empty for in-memory)
//	DATACORE_REDIS_PASSWORD: optional password
//	DATACORE_TOKEN_TTL: optional duration, e.g. 720h (default none)
func OpenTokenStore() (tokens.Store, error) {
	addr := os.Getenv("DATACORE_REDIS_ADDR")
	if addr == "" {
		return tokens.NewMemoryStore(), nil
	}
	var ttl time.Duration
	if raw := os.Getenv("DATACORE_TOKEN_TTL"); raw != "" {
		parsed, err := time.ParseDuration(raw)
		if err != nil {
			return nil, fmt.Errorf("parse DATACORE_TOKEN_TTL: %w", err)
		}
		ttl = parsed
	}
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: os.Getenv("DATACORE_REDIS_PASSWORD"),
	})
	return tokens.NewRedisStore(client, ttl), nil
}
