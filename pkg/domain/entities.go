// Package domain defines the core persistent entities, identity model, error
// taxonomy, and rule evaluation primitives used by datacore.
package domain

import (
	"fmt"
	"time"
)

// EntityType identifies the type of record stored in the core domain.
type EntityType string

// Supported entity type identifiers used in Change records and persistence buckets.
const (
	// EntityDataset identifies the version-spanning aggregate root.
	EntityDataset EntityType = "dataset"
	// EntityDatasetVersion identifies a single versioned snapshot.
	EntityDatasetVersion EntityType = "dataset_version"
	// EntityFile identifies a file attached to a dataset version.
	EntityFile EntityType = "file"
	// EntityReviewToken identifies an issued review token.
	EntityReviewToken EntityType = "review_token"
)

// State represents the publication state of a dataset or one of its versions.
type State string

// Publication workflow states. Withdrawn is terminal.
const (
	// StatePrivate marks a record visible only to its creator and privileged roles.
	StatePrivate State = "private"
	// StatePublic marks a published, generally readable record.
	StatePublic State = "public"
	// StateWithdrawn marks a retracted record; no further mutation is possible.
	StateWithdrawn State = "withdrawn"
)

// Dataset is the version-spanning aggregate root. Its state mirrors the state
// of its latest version, and its modification timestamp doubles as the
// optimistic concurrency token for every mutating operation.
type Dataset struct {
	ID              string    `json:"id"`
	State           State     `json:"state"`
	CreatorID       string    `json:"creator_id"`
	ModifierID      string    `json:"modifier_id"`
	CreatedAt       time.Time `json:"created_at"`
	ModifiedAt      time.Time `json:"modified_at"`
	WithdrawComment string    `json:"withdraw_comment,omitempty"`
}

// VersionID is the composite identifier of a dataset version.
type VersionID struct {
	DatasetID string `json:"dataset_id"`
	Number    int    `json:"number"`
}

// String renders the identifier in the form used as search index document key.
func (id VersionID) String() string {
	return fmt.Sprintf("%s_%d", id.DatasetID, id.Number)
}

// IsZero reports whether the identifier is unset.
func (id VersionID) IsZero() bool {
	return id.DatasetID == "" && id.Number == 0
}

// DatasetVersion is one snapshot of a dataset's metadata at a version number.
// Version numbers are contiguous starting at 1; only the version with the
// highest number may be mutated in place.
type DatasetVersion struct {
	DatasetID          string    `json:"dataset_id"`
	VersionNumber      int       `json:"version_number"`
	State              State     `json:"state"`
	Metadata           Metadata  `json:"metadata"`
	CreatorID          string    `json:"creator_id"`
	ModifierID         string    `json:"modifier_id"`
	CreatedAt          time.Time `json:"created_at"`
	ModifiedAt         time.Time `json:"modified_at"`
	PublicationComment string    `json:"publication_comment,omitempty"`

	// Dataset is the resolved aggregate root, populated on read. It is a
	// back-reference only; the Dataset owns its versions, not the reverse.
	Dataset Dataset `json:"dataset"`
}

// VersionID returns the composite identifier of the version.
func (v DatasetVersion) VersionID() VersionID {
	return VersionID{DatasetID: v.DatasetID, Number: v.VersionNumber}
}

// Metadata is the descriptive block carried by every dataset version.
type Metadata struct {
	Title       string        `json:"title"`
	Description string        `json:"description,omitempty"`
	DOI         string        `json:"doi,omitempty"`
	Authors     []Person      `json:"authors,omitempty"`
	Dates       []DatasetDate `json:"dates,omitempty"`
}

// Person is an author entry in the metadata block.
type Person struct {
	GivenName    string        `json:"given_name,omitempty"`
	FamilyName   string        `json:"family_name"`
	ORCID        string        `json:"orcid,omitempty"`
	Affiliations []Affiliation `json:"affiliations,omitempty"`
}

// Affiliation binds an author to an organization. Organization is required.
type Affiliation struct {
	// ID is an external organization identifier (e.g. a ROR or GRID id).
	ID           string `json:"id,omitempty"`
	Organization string `json:"organization"`
	Department   string `json:"department,omitempty"`
}

// DatasetDate is a categorised date in the metadata block (created, collected,
// published, ...).
type DatasetDate struct {
	Category string    `json:"category"`
	Date     time.Time `json:"date"`
}

// CloneMetadata returns a deep copy of the metadata block.
func CloneMetadata(m Metadata) Metadata {
	cp := m
	if m.Authors != nil {
		cp.Authors = make([]Person, len(m.Authors))
		for i, a := range m.Authors {
			cp.Authors[i] = a
			if a.Affiliations != nil {
				cp.Authors[i].Affiliations = append([]Affiliation(nil), a.Affiliations...)
			}
		}
	}
	if m.Dates != nil {
		cp.Dates = append([]DatasetDate(nil), m.Dates...)
	}
	return cp
}

// File records a binary attachment of a dataset version. The content itself
// lives in the blob store under StorageKey.
type File struct {
	ID            string    `json:"id"`
	DatasetID     string    `json:"dataset_id"`
	VersionNumber int       `json:"version_number"`
	Name          string    `json:"name"`
	Size          int64     `json:"size_bytes"`
	Checksum      string    `json:"checksum,omitempty"`
	ContentType   string    `json:"content_type,omitempty"`
	StorageKey    string    `json:"storage_key"`
	CreatorID     string    `json:"creator_id"`
	CreatedAt     time.Time `json:"created_at"`
}

// Change describes a mutation applied to an entity during a transaction.
type Change struct {
	Entity EntityType
	Action Action
	Before any
	After  any
}

// Action indicates the type of modification performed.
type Action string

// Change actions enumerate supported CRUD operations captured per transaction.
const (
	// ActionCreate indicates an entity was created.
	ActionCreate Action = "create"
	// ActionUpdate indicates an entity was updated.
	ActionUpdate Action = "update"
	ActionDelete Action = "delete"
)

// Severity captures rule outcomes.
type Severity string

// Rule evaluation severities determine commit behavior.
const (
	// SeverityBlock blocks transaction commit.
	SeverityBlock Severity = "block"
	// SeverityWarn reports a violation but allows commit.
	SeverityWarn Severity = "warn"
)

// Violation reports a failed rule evaluation.
type Violation struct {
	Rule     string
	Severity Severity
	Message  string
	Entity   EntityType
	EntityID string
}

// Result aggregates violations from the rules engine.
type Result struct {
	Violations []Violation
}

// Merge appends violations from another result.
func (r *Result) Merge(other Result) {
	if len(other.Violations) == 0 {
		return
	}
	r.Violations = append(r.Violations, other.Violations...)
}

// HasBlocking returns true if the result contains blocking violations.
func (r Result) HasBlocking() bool {
	for _, v := range r.Violations {
		if v.Severity == SeverityBlock {
			return true
		}
	}
	return false
}
