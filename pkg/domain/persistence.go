package domain

import "context"

// Transaction exposes the domain operations that a persistence implementation
// must support within an atomic scope. Create/Update stamp modification
// timestamps with the transaction time; the caller supplies identifiers.
type Transaction interface {
	CreateDataset(Dataset) (Dataset, error)
	UpdateDataset(id string, mutator func(*Dataset) error) (Dataset, error)
	DeleteDataset(id string) error
	CreateVersion(DatasetVersion) (DatasetVersion, error)
	UpdateVersion(id VersionID, mutator func(*DatasetVersion) error) (DatasetVersion, error)
	DeleteVersion(id VersionID) error
	CreateFile(File) (File, error)
	DeleteFile(id string) error
	FindDataset(id string) (Dataset, bool)
	FindVersion(id VersionID) (DatasetVersion, bool)
	LatestVersion(datasetID string) (DatasetVersion, bool)
	VersionsOf(datasetID string) []DatasetVersion
	FindFile(id string) (File, bool)
	FilesOf(id VersionID) []File
}

// TransactionView provides read-only access to snapshot data.
type TransactionView interface {
	RuleView
	LatestVersion(datasetID string) (DatasetVersion, bool)
	LatestPublicVersion(datasetID string) (DatasetVersion, bool)
	FindFile(id string) (File, bool)
	FilesOf(id VersionID) []File
}

// PersistentStore is a minimal abstraction over durable backends. It mirrors
// the subset of store capabilities used directly by higher layers.
type PersistentStore interface {
	RunInTransaction(ctx context.Context, fn func(Transaction) error) (Result, error)
	View(ctx context.Context, fn func(TransactionView) error) error
	GetDataset(id string) (Dataset, bool)
	GetVersion(id VersionID) (DatasetVersion, bool)
	LatestVersion(datasetID string) (DatasetVersion, bool)
	LatestPublicVersion(datasetID string) (DatasetVersion, bool)
	VersionsOf(datasetID string) []DatasetVersion
	GetFile(id string) (File, bool)
	FilesOf(id VersionID) []File
}
