// Package core implements the dataset lifecycle service: versioned records
// moving private -> public -> withdrawn under multi-factor authorization,
// optimistic concurrency, and dual writes to the primary store and the
// search index.
package core

import (
	"datacore/pkg/domain"
)

type (
	// Dataset aliases the version-spanning aggregate root.
	Dataset = domain.Dataset
	// DatasetVersion aliases a single versioned snapshot.
	DatasetVersion = domain.DatasetVersion
	// VersionID aliases the composite version identity.
	VersionID = domain.VersionID
	// Metadata aliases the descriptive metadata block.
	Metadata = domain.Metadata
	// File aliases a stored file record.
	File = domain.File
	// Principal aliases the calling identity.
	Principal = domain.Principal
	// ReviewToken aliases an issued review token.
	ReviewToken = domain.ReviewToken
	// Result aliases rule evaluation output.
	Result = domain.Result
	// RulesEngine aliases the invariant rules engine.
	RulesEngine = domain.RulesEngine
	// Transaction aliases a mutable unit of work.
	Transaction = domain.Transaction
	// PersistentStore aliases the durable backend abstraction.
	PersistentStore = domain.PersistentStore
)
