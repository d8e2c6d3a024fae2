// Package search mirrors dataset versions into a secondary index used
// for discovery queries. The primary store stays authoritative; index
// writes may lag behind committed transactions.
package search

import (
	"context"
	"strings"

	"datacore/pkg/domain"
)

// Document is the flattened index projection of a dataset version.
// Derived presentation helpers (sort keys, rendered citations) are
// recomputed at query time and never stored here.
type Document struct {
	ID                 string               `json:"id"`
	DatasetID          string               `json:"datasetId"`
	VersionNumber      int                  `json:"versionNumber"`
	State              domain.State         `json:"state"`
	Title              string               `json:"title"`
	Description        string               `json:"description,omitempty"`
	DOI                string               `json:"doi,omitempty"`
	Authors            []string             `json:"authors,omitempty"`
	Dates              []domain.DatasetDate `json:"dates,omitempty"`
	CreatorID          string               `json:"creatorId"`
	PublicationComment string               `json:"publicationComment,omitempty"`
	WithdrawComment    string               `json:"withdrawComment,omitempty"`
}

// DocumentOf projects a resolved dataset version into its index form.
func DocumentOf(v domain.DatasetVersion) Document {
	authors := make([]string, 0, len(v.Metadata.Authors))
	for _, a := range v.Metadata.Authors {
		authors = append(authors, strings.TrimSpace(a.GivenName+" "+a.FamilyName))
	}
	return Document{
		ID:                 v.VersionID().String(),
		DatasetID:          v.DatasetID,
		VersionNumber:      v.VersionNumber,
		State:              v.State,
		Title:              v.Metadata.Title,
		Description:        v.Metadata.Description,
		DOI:                v.Metadata.DOI,
		Authors:            authors,
		Dates:              v.Metadata.Dates,
		CreatorID:          v.CreatorID,
		PublicationComment: v.PublicationComment,
		WithdrawComment:    v.Dataset.WithdrawComment,
	}
}

// Index receives document upserts and deletions. Implementations must
// be safe for concurrent use.
type Index interface {
	Upsert(ctx context.Context, doc Document) error
	Delete(ctx context.Context, id string) error
	Get(ctx context.Context, id string) (Document, bool, error)
}
