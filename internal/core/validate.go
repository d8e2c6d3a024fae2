package core

import (
	"fmt"
	"strings"

	"datacore/pkg/domain"
)

// validateMetadata checks the writable metadata block before it enters a
// transaction. The title is mandatory; authors may be sparse but every
// affiliation that is present must name an organization.
func validateMetadata(m Metadata) error {
	if strings.TrimSpace(m.Title) == "" {
		return domain.ValidationError{Field: "title", Reason: "title must not be blank"}
	}
	for i, author := range m.Authors {
		for j, aff := range author.Affiliations {
			if strings.TrimSpace(aff.Organization) == "" {
				return domain.ValidationError{
					Field:  fmt.Sprintf("authors[%d].affiliations[%d].organization", i, j),
					Reason: "organization must not be blank",
				}
			}
		}
	}
	return nil
}

// validateWithdrawComment enforces the mandatory comment on withdrawal.
func validateWithdrawComment(comment string) error {
	if strings.TrimSpace(comment) == "" {
		return domain.ValidationError{Field: "withdraw_comment", Reason: "withdraw comment must not be blank"}
	}
	return nil
}
