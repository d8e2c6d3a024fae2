package core

import (
	"context"
	"testing"

	blobcore "datacore/internal/blob/core"
)

func TestOpenPersistentStoreMemoryDriver(t *testing.T) {
	t.Setenv("DATACORE_STORAGE_DRIVER", "memory")

	store, err := OpenPersistentStore(DefaultRulesEngine())
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if _, err := store.RunInTransaction(context.Background(), func(tx Transaction) error {
		_, err := tx.CreateDataset(Dataset{ID: "ds-1", State: "private", CreatorID: "u"})
		if err != nil {
			return err
		}
		_, err = tx.CreateVersion(DatasetVersion{DatasetID: "ds-1", VersionNumber: 1, State: "private"})
		return err
	}); err != nil {
		t.Fatalf("transaction: %v", err)
	}
}

func TestOpenPersistentStoreUnknownDriver(t *testing.T) {
	t.Setenv("DATACORE_STORAGE_DRIVER", "etcd")

	if _, err := OpenPersistentStore(DefaultRulesEngine()); err == nil {
		t.Fatal("expected error for unknown driver")
	}
}

func TestOpenBlobStoreMemoryDriver(t *testing.T) {
	t.Setenv("DATACORE_BLOB_DRIVER", "memory")

	store, err := OpenBlobStore(context.Background())
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if store.Driver() != blobcore.DriverMemory {
		t.Fatalf("driver = %s", store.Driver())
	}
}

func TestOpenBlobStoreUnknownDriver(t *testing.T) {
	t.Setenv("DATACORE_BLOB_DRIVER", "tape")

	if _, err := OpenBlobStore(context.Background()); err == nil {
		t.Fatal("expected error for unknown driver")
	}
}

func TestOpenTokenStoreDefaultsToMemory(t *testing.T) {
	t.Setenv("DATACORE_REDIS_ADDR", "")

	store, err := OpenTokenStore()
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if store == nil {
		t.Fatal("nil token store")
	}
}

func TestOpenTokenStoreRejectsBadTTL(t *testing.T) {
	t.Setenv("DATACORE_REDIS_ADDR", "localhost:6379")
	t.Setenv("DATACORE_TOKEN_TTL", "soon")

	if _, err := OpenTokenStore(); err == nil {
		t.Fatal("expected error for malformed TTL")
	}
}
