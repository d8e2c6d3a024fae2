package sqlite

import (
	"context"
	"path/filepath"
	"testing"

	"datacore/pkg/domain"
)

func TestSQLiteStorePersistAndReload(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "state.db")
	store, err := NewStore(path, domain.NewRulesEngine())
	if err != nil {
		t.Skipf("sqlite unavailable: %v", err)
	}
	if _, err := store.RunInTransaction(context.Background(), func(tx domain.Transaction) error {
		if _, e := tx.CreateDataset(domain.Dataset{ID: "ds-1", State: domain.StatePrivate, CreatorID: "acct"}); e != nil {
			return e
		}
		_, e := tx.CreateVersion(domain.DatasetVersion{
			DatasetID:     "ds-1",
			VersionNumber: 1,
			State:         domain.StatePrivate,
			Metadata:      domain.Metadata{Title: "persisted"},
		})
		return e
	}); err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := store.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	reloaded, err := NewStore(path, domain.NewRulesEngine())
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	t.Cleanup(func() { _ = reloaded.Close() })

	v, ok := reloaded.GetVersion(domain.VersionID{DatasetID: "ds-1", Number: 1})
	if !ok {
		t.Fatal("version not reloaded from sqlite")
	}
	if v.Metadata.Title != "persisted" {
		t.Fatalf("unexpected reloaded version: %+v", v)
	}
	if v.Dataset.ID != "ds-1" {
		t.Fatal("reloaded version must resolve its dataset")
	}
}

func TestSQLiteStoreCreatesStateTable(t *testing.T) {
	store, err := NewStore(filepath.Join(t.TempDir(), "state.db"), domain.NewRulesEngine())
	if err != nil {
		t.Skipf("sqlite unavailable: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })

	var tableName string
	if err := store.DB().QueryRow("SELECT name FROM sqlite_master WHERE type='table' AND name='state'").Scan(&tableName); err != nil {
		t.Fatalf("lookup state table: %v", err)
	}
	if tableName != "state" {
		t.Fatalf("expected state table, got %s", tableName)
	}
}

func TestSQLiteStoreFailedTransactionNotPersisted(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.db")
	store, err := NewStore(path, domain.NewRulesEngine())
	if err != nil {
		t.Skipf("sqlite unavailable: %v", err)
	}
	if _, err := store.RunInTransaction(context.Background(), func(tx domain.Transaction) error {
		if _, e := tx.CreateDataset(domain.Dataset{ID: "ds-1"}); e != nil {
			return e
		}
		return domain.InvalidStateError{Reason: "abort"}
	}); err == nil {
		t.Fatal("expected transaction error")
	}
	if err := store.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	reloaded, err := NewStore(path, domain.NewRulesEngine())
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	t.Cleanup(func() { _ = reloaded.Close() })
	if _, ok := reloaded.GetDataset("ds-1"); ok {
		t.Fatal("aborted transaction must not be snapshotted")
	}
}
