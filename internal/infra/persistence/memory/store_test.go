package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"datacore/pkg/domain"
)

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

func TestRunInTransactionCreateAndRead(t *testing.T) {
	store := NewStore(nil)
	now := time.Date(2026, time.January, 2, 3, 4, 5, 0, time.UTC)
	store.SetNowFunc(fixedClock(now))
	ctx := context.Background()

	if _, err := store.RunInTransaction(ctx, func(tx Transaction) error {
		if _, err := tx.CreateDataset(Dataset{ID: "ds-1", State: domain.StatePrivate, CreatorID: "acct"}); err != nil {
			return err
		}
		_, err := tx.CreateVersion(DatasetVersion{
			DatasetID:     "ds-1",
			VersionNumber: 1,
			State:         domain.StatePrivate,
			CreatorID:     "acct",
			Metadata:      domain.Metadata{Title: "first"},
		})
		return err
	}); err != nil {
		t.Fatalf("transaction: %v", err)
	}

	ds, ok := store.GetDataset("ds-1")
	if !ok {
		t.Fatal("dataset not persisted")
	}
	if !ds.CreatedAt.Equal(now) || !ds.ModifiedAt.Equal(now) {
		t.Fatalf("timestamps not stamped: %+v", ds)
	}

	v, ok := store.GetVersion(VersionID{DatasetID: "ds-1", Number: 1})
	if !ok {
		t.Fatal("version not persisted")
	}
	if v.Metadata.Title != "first" {
		t.Fatalf("unexpected version: %+v", v)
	}
	if v.Dataset.ID != "ds-1" {
		t.Fatal("version must carry its resolved dataset")
	}
}

func TestRunInTransactionRollbackOnError(t *testing.T) {
	store := NewStore(nil)
	ctx := context.Background()

	sentinel := errors.New("boom")
	if _, err := store.RunInTransaction(ctx, func(tx Transaction) error {
		if _, err := tx.CreateDataset(Dataset{ID: "ds-1"}); err != nil {
			return err
		}
		return sentinel
	}); !errors.Is(err, sentinel) {
		t.Fatalf("expected sentinel error, got %v", err)
	}

	if _, ok := store.GetDataset("ds-1"); ok {
		t.Fatal("failed transaction must not persist state")
	}
}

func TestRunInTransactionBlockingRule(t *testing.T) {
	engine := domain.NewRulesEngine()
	engine.Register(blockingRule{})
	store := NewStore(engine)
	ctx := context.Background()

	_, err := store.RunInTransaction(ctx, func(tx Transaction) error {
		_, err := tx.CreateDataset(Dataset{ID: "ds-1"})
		return err
	})
	var violation domain.RuleViolationError
	if !errors.As(err, &violation) {
		t.Fatalf("expected rule violation, got %v", err)
	}
	if _, ok := store.GetDataset("ds-1"); ok {
		t.Fatal("blocked transaction must not persist state")
	}
}

type blockingRule struct{}

func (blockingRule) Name() string { return "always_block" }

func (blockingRule) Evaluate(_ context.Context, _ domain.RuleView, changes []Change) (Result, error) {
	var res Result
	for range changes {
		res.Violations = append(res.Violations, domain.Violation{
			Rule:     "always_block",
			Severity: domain.SeverityBlock,
			Message:  "blocked",
		})
	}
	return res, nil
}

func TestUpdateVersionStampsModification(t *testing.T) {
	store := NewStore(nil)
	created := time.Date(2026, time.January, 1, 0, 0, 0, 0, time.UTC)
	store.SetNowFunc(fixedClock(created))
	ctx := context.Background()

	seedDataset(t, store, "ds-1", 1)

	updated := created.Add(time.Hour)
	store.SetNowFunc(fixedClock(updated))
	if _, err := store.RunInTransaction(ctx, func(tx Transaction) error {
		_, err := tx.UpdateVersion(VersionID{DatasetID: "ds-1", Number: 1}, func(v *DatasetVersion) error {
			v.Metadata.Title = "renamed"
			return nil
		})
		return err
	}); err != nil {
		t.Fatalf("update: %v", err)
	}

	v, _ := store.GetVersion(VersionID{DatasetID: "ds-1", Number: 1})
	if v.Metadata.Title != "renamed" {
		t.Fatalf("mutation lost: %+v", v)
	}
	if !v.ModifiedAt.Equal(updated) || !v.CreatedAt.Equal(created) {
		t.Fatalf("timestamps wrong: created=%v modified=%v", v.CreatedAt, v.ModifiedAt)
	}
}

func TestLatestAndPublicVersionLookups(t *testing.T) {
	store := NewStore(nil)
	ctx := context.Background()

	if _, err := store.RunInTransaction(ctx, func(tx Transaction) error {
		if _, err := tx.CreateDataset(Dataset{ID: "ds-1", State: domain.StatePublic}); err != nil {
			return err
		}
		for n, state := range map[int]domain.State{
			1: domain.StatePublic,
			2: domain.StatePublic,
			3: domain.StatePrivate,
		} {
			if _, err := tx.CreateVersion(DatasetVersion{DatasetID: "ds-1", VersionNumber: n, State: state}); err != nil {
				return err
			}
		}
		return nil
	}); err != nil {
		t.Fatalf("seed: %v", err)
	}

	latest, ok := store.LatestVersion("ds-1")
	if !ok || latest.VersionNumber != 3 {
		t.Fatalf("expected latest v3, got %+v ok=%v", latest, ok)
	}
	public, ok := store.LatestPublicVersion("ds-1")
	if !ok || public.VersionNumber != 2 {
		t.Fatalf("expected latest public v2, got %+v ok=%v", public, ok)
	}
	all := store.VersionsOf("ds-1")
	if len(all) != 3 || all[0].VersionNumber != 1 || all[2].VersionNumber != 3 {
		t.Fatalf("expected ordered versions, got %+v", all)
	}
}

func TestDeleteGuards(t *testing.T) {
	store := NewStore(nil)
	ctx := context.Background()
	seedDataset(t, store, "ds-1", 1)

	if _, err := store.RunInTransaction(ctx, func(tx Transaction) error {
		_, err := tx.CreateFile(File{ID: "f-1", DatasetID: "ds-1", VersionNumber: 1, Name: "data.csv", StorageKey: "k"})
		return err
	}); err != nil {
		t.Fatalf("attach file: %v", err)
	}

	if _, err := store.RunInTransaction(ctx, func(tx Transaction) error {
		return tx.DeleteDataset("ds-1")
	}); err == nil {
		t.Fatal("dataset with versions must not be deletable")
	}
	if _, err := store.RunInTransaction(ctx, func(tx Transaction) error {
		return tx.DeleteVersion(VersionID{DatasetID: "ds-1", Number: 1})
	}); err == nil {
		t.Fatal("version with files must not be deletable")
	}

	if _, err := store.RunInTransaction(ctx, func(tx Transaction) error {
		if err := tx.DeleteFile("f-1"); err != nil {
			return err
		}
		if err := tx.DeleteVersion(VersionID{DatasetID: "ds-1", Number: 1}); err != nil {
			return err
		}
		return tx.DeleteDataset("ds-1")
	}); err != nil {
		t.Fatalf("cascading delete: %v", err)
	}
	if _, ok := store.GetDataset("ds-1"); ok {
		t.Fatal("dataset should be gone")
	}
}

func TestExportImportState(t *testing.T) {
	store := NewStore(nil)
	seedDataset(t, store, "ds-1", 1)
	seedDataset(t, store, "ds-2", 1)

	snapshot := store.ExportState()
	if len(snapshot.Datasets) != 2 || len(snapshot.Versions) != 2 {
		t.Fatalf("unexpected snapshot: %d datasets, %d versions", len(snapshot.Datasets), len(snapshot.Versions))
	}

	restored := NewStore(nil)
	restored.ImportState(snapshot)
	if _, ok := restored.GetVersion(VersionID{DatasetID: "ds-2", Number: 1}); !ok {
		t.Fatal("imported state missing version")
	}
}

func TestMigrateSnapshotDropsOrphans(t *testing.T) {
	snapshot := Snapshot{
		Versions: map[string]DatasetVersion{
			"ds-x_1": {DatasetID: "ds-x", VersionNumber: 1},
		},
		Files: map[string]File{
			"f-1": {ID: "f-1", DatasetID: "ds-x", VersionNumber: 1},
		},
	}

	migrated := migrateSnapshot(snapshot)
	if len(migrated.Versions) != 0 {
		t.Fatalf("orphan version should be dropped: %+v", migrated.Versions)
	}
	if len(migrated.Files) != 0 {
		t.Fatalf("orphan file should be dropped: %+v", migrated.Files)
	}
	if migrated.Datasets == nil {
		t.Fatal("nil maps must be materialized")
	}
}

func seedDataset(t *testing.T, store *Store, id string, versions int) {
	t.Helper()
	if _, err := store.RunInTransaction(context.Background(), func(tx Transaction) error {
		if _, err := tx.CreateDataset(Dataset{ID: id, State: domain.StatePrivate, CreatorID: "acct"}); err != nil {
			return err
		}
		for n := 1; n <= versions; n++ {
			if _, err := tx.CreateVersion(DatasetVersion{
				DatasetID:     id,
				VersionNumber: n,
				State:         domain.StatePrivate,
				CreatorID:     "acct",
				Metadata:      domain.Metadata{Title: "seed"},
			}); err != nil {
				return err
			}
		}
		return nil
	}); err != nil {
		t.Fatalf("seed %s: %v", id, err)
	}
}
