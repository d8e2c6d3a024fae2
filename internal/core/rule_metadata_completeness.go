package core

import (
	"context"
	"strings"

	"datacore/pkg/domain"
)

// MetadataCompletenessRule warns when a version goes public without the
// descriptive fields downstream catalogs expect. The commit proceeds; the
// violations travel with the transaction result so callers can surface them.
func MetadataCompletenessRule() domain.Rule {
	return metadataCompletenessRule{}
}

type metadataCompletenessRule struct{}

func (metadataCompletenessRule) Name() string { return "metadata_completeness" }

func (metadataCompletenessRule) Evaluate(_ context.Context, _ domain.RuleView, changes []domain.Change) (domain.Result, error) {
	res := domain.Result{}
	for _, change := range changes {
		if change.Entity != domain.EntityDatasetVersion {
			continue
		}
		after, ok := change.After.(domain.DatasetVersion)
		if !ok || after.State != domain.StatePublic {
			continue
		}
		if before, ok := change.Before.(domain.DatasetVersion); ok && before.State == domain.StatePublic {
			continue
		}
		if strings.TrimSpace(after.Metadata.Description) == "" {
			res.Violations = append(res.Violations, warnOn(after, "public version has no description"))
		}
		if len(after.Metadata.Authors) == 0 {
			res.Violations = append(res.Violations, warnOn(after, "public version names no authors"))
		}
	}
	return res, nil
}

func warnOn(v domain.DatasetVersion, message string) domain.Violation {
	return domain.Violation{
		Rule:     "metadata_completeness",
		Severity: domain.SeverityWarn,
		Message:  message,
		Entity:   domain.EntityDatasetVersion,
		EntityID: v.VersionID().String(),
	}
}
