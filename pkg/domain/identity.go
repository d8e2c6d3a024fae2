package domain

import "time"

// Role enumerates the account roles known to the authorization engine.
type Role string

// Account roles. Grants are additive and evaluated per dataset.
const (
	// RoleUser is the default role of any registered account.
	RoleUser Role = "user"
	// RoleDatamanager may read and mutate datasets it does not own.
	RoleDatamanager Role = "datamanager"
	// RoleAdmin may read and mutate datasets it does not own.
	RoleAdmin Role = "admin"
	// RoleDeleteAdmin may delete private datasets it does not own.
	RoleDeleteAdmin Role = "deleteadmin"
)

// Grant attaches a role to an account. An empty DatasetID scopes the grant
// globally; otherwise it applies to the named dataset only.
type Grant struct {
	Role      Role   `json:"role"`
	DatasetID string `json:"dataset_id,omitempty"`
}

// UserAccount is a registered principal with its role grants.
type UserAccount struct {
	ID     string  `json:"id"`
	Name   string  `json:"name,omitempty"`
	Email  string  `json:"email,omitempty"`
	Grants []Grant `json:"grants,omitempty"`
}

// HasRole reports whether the account holds one of the given roles for the
// dataset, either through a global grant or a grant scoped to that dataset.
func (a UserAccount) HasRole(datasetID string, roles ...Role) bool {
	for _, g := range a.Grants {
		if g.DatasetID != "" && g.DatasetID != datasetID {
			continue
		}
		for _, r := range roles {
			if g.Role == r {
				return true
			}
		}
	}
	return false
}

// Principal is the resolved caller identity handed to the core by the
// principal resolver. ReviewToken carries a presented token string, if any.
type Principal struct {
	UserName    string      `json:"user_name,omitempty"`
	Account     UserAccount `json:"account"`
	ReviewToken string      `json:"-"`
}

// Authenticated reports whether the principal is backed by an account.
func (p Principal) Authenticated() bool {
	return p.Account.ID != ""
}

// ReviewToken grants read access to one private dataset without an
// account-based grant. It never elevates delete or publish rights.
type ReviewToken struct {
	Token     string    `json:"token"`
	DatasetID string    `json:"dataset_id"`
	CreatorID string    `json:"creator_id,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}
