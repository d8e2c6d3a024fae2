package search_test

import (
	"context"
	"testing"
	"time"

	"datacore/internal/search"
	"datacore/pkg/domain"
)

func TestDocumentOf(t *testing.T) {
	v := domain.DatasetVersion{
		DatasetID:     "ds-1",
		VersionNumber: 2,
		State:         domain.StatePublic,
		CreatorID:     "acct-1",
		Metadata: domain.Metadata{
			Title:       "Soil Samples 2025",
			Description: "Quarterly soil measurements",
			DOI:         "10.5555/ds-1",
			Authors: []domain.Person{
				{GivenName: "Ada", FamilyName: "Lovelace"},
				{FamilyName: "Hopper"},
			},
			Dates: []domain.DatasetDate{{Category: "collected", Date: time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)}},
		},
		PublicationComment: "initial release",
		Dataset:            domain.Dataset{ID: "ds-1", State: domain.StatePublic},
	}

	doc := search.DocumentOf(v)
	if doc.ID != "ds-1_2" {
		t.Fatalf("unexpected document id %q", doc.ID)
	}
	if doc.Title != "Soil Samples 2025" || doc.DOI != "10.5555/ds-1" {
		t.Fatalf("metadata not projected: %+v", doc)
	}
	if len(doc.Authors) != 2 || doc.Authors[0] != "Ada Lovelace" || doc.Authors[1] != "Hopper" {
		t.Fatalf("unexpected authors: %v", doc.Authors)
	}
	if doc.State != domain.StatePublic || doc.VersionNumber != 2 {
		t.Fatalf("state/version not projected: %+v", doc)
	}
}

func TestMemoryIndexRoundTrip(t *testing.T) {
	idx := search.NewMemoryIndex()
	ctx := context.Background()

	doc := search.Document{ID: "ds-1_1", DatasetID: "ds-1", VersionNumber: 1, Title: "t"}
	if err := idx.Upsert(ctx, doc); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	got, ok, err := idx.Get(ctx, "ds-1_1")
	if err != nil || !ok {
		t.Fatalf("get: ok=%v err=%v", ok, err)
	}
	if got.Title != "t" {
		t.Fatalf("unexpected document: %+v", got)
	}

	doc.Title = "updated"
	if err := idx.Upsert(ctx, doc); err != nil {
		t.Fatalf("upsert again: %v", err)
	}
	got, _, _ = idx.Get(ctx, "ds-1_1")
	if got.Title != "updated" {
		t.Fatalf("upsert should replace, got %+v", got)
	}
	if idx.Len() != 1 {
		t.Fatalf("expected one document, got %d", idx.Len())
	}

	if err := idx.Delete(ctx, "ds-1_1"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, ok, _ := idx.Get(ctx, "ds-1_1"); ok {
		t.Fatal("document should be gone after delete")
	}
	if err := idx.Delete(ctx, "missing"); err != nil {
		t.Fatalf("deleting a missing document should be a no-op: %v", err)
	}
}
