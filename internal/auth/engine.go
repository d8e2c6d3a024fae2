// Package auth implements the authorization decision engine. Decisions are a
// pure function over a closed, enumerated operation tag, the calling
// principal, and the target record's state and ownership; there is no dynamic
// service/method-name matching.
package auth

import (
	"context"

	"datacore/pkg/domain"
)

// Operation tags every call the engine can authorize.
type Operation string

// The closed set of authorizable operations.
const (
	OpCreate            Operation = "create"
	OpGet               Operation = "get"
	OpUpdate            Operation = "update"
	OpCreateNewVersion  Operation = "createNewVersion"
	OpDelete            Operation = "delete"
	OpWithdraw          Operation = "withdraw"
	OpPublish           Operation = "publish"
	OpCreateReviewToken Operation = "createReviewToken"
)

// Record is the slice of a dataset version the engine inspects. Ownership is
// always evaluated against the Dataset's creator, never the version's.
type Record struct {
	DatasetID string
	CreatorID string
	State     domain.State
}

// RecordOf projects a resolved dataset version into an authorization record.
func RecordOf(v domain.DatasetVersion) Record {
	return Record{
		DatasetID: v.DatasetID,
		CreatorID: v.Dataset.CreatorID,
		State:     v.State,
	}
}

// RecordOfDataset projects the aggregate root into an authorization record.
func RecordOfDataset(d domain.Dataset) Record {
	return Record{DatasetID: d.ID, CreatorID: d.CreatorID, State: d.State}
}

// TokenResolver looks up a presented review token string. Implementations
// must be side-effect free reads.
type TokenResolver interface {
	Resolve(ctx context.Context, token string) (domain.ReviewToken, bool, error)
}

// Engine evaluates the fixed rule table. It performs no logging and no
// writes; given the same inputs and token state it always returns the same
// decision.
type Engine struct {
	tokens TokenResolver
}

// NewEngine constructs an engine. A nil resolver disables the review token
// path of the get rule.
func NewEngine(tokens TokenResolver) *Engine {
	return &Engine{tokens: tokens}
}

// Decide returns nil when the principal may perform op on the record and a
// domain.AuthorizationError otherwise. Denials never reveal which rule failed.
func (e *Engine) Decide(ctx context.Context, op Operation, p domain.Principal, rec Record) error {
	owner := p.Authenticated() && p.Account.ID == rec.CreatorID

	switch op {
	case OpCreate:
		if p.Authenticated() {
			return nil
		}
	case OpGet:
		if rec.State == domain.StatePublic || owner {
			return nil
		}
		if p.Account.HasRole(rec.DatasetID, domain.RoleDatamanager, domain.RoleAdmin) {
			return nil
		}
		if e.tokenMatches(ctx, p.ReviewToken, rec.DatasetID) {
			return nil
		}
	case OpUpdate, OpCreateNewVersion:
		if owner || p.Account.HasRole(rec.DatasetID, domain.RoleDatamanager, domain.RoleAdmin) {
			return nil
		}
	case OpDelete:
		if rec.State != domain.StatePrivate {
			break
		}
		if owner || p.Account.HasRole(rec.DatasetID, domain.RoleDatamanager, domain.RoleAdmin, domain.RoleDeleteAdmin) {
			return nil
		}
	case OpWithdraw:
		if rec.State != domain.StatePublic {
			break
		}
		if owner || p.Account.HasRole(rec.DatasetID, domain.RoleDatamanager, domain.RoleAdmin) {
			return nil
		}
	case OpPublish, OpCreateReviewToken:
		// Both require a private record: publishing a public record is a
		// denial, and review tokens are a private-sharing mechanism only.
		if rec.State != domain.StatePrivate {
			break
		}
		if owner || p.Account.HasRole(rec.DatasetID, domain.RoleDatamanager, domain.RoleAdmin) {
			return nil
		}
	}
	return domain.AuthorizationError{}
}

// tokenMatches resolves a presented token and checks its dataset scope. A
// token satisfies only the get rule and only for the dataset it was issued
// for.
func (e *Engine) tokenMatches(ctx context.Context, token, datasetID string) bool {
	if token == "" || e.tokens == nil {
		return false
	}
	resolved, ok, err := e.tokens.Resolve(ctx, token)
	if err != nil || !ok {
		return false
	}
	return resolved.DatasetID == datasetID
}
