package core

import (
	"context"
	"fmt"

	"datacore/pkg/domain"
)

// VersionContiguityRule blocks commits that would leave a dataset's version
// numbers non-contiguous. Versions always run 1..N with no gaps, so only the
// highest-numbered version can ever be created or deleted.
func VersionContiguityRule() domain.Rule {
	return versionContiguityRule{}
}

type versionContiguityRule struct{}

func (versionContiguityRule) Name() string { return "version_contiguity" }

func (versionContiguityRule) Evaluate(_ context.Context, view domain.RuleView, changes []domain.Change) (domain.Result, error) {
	res := domain.Result{}
	touched := map[string]struct{}{}
	for _, change := range changes {
		if change.Entity != domain.EntityDatasetVersion {
			continue
		}
		for _, payload := range []any{change.After, change.Before} {
			if v, ok := payload.(domain.DatasetVersion); ok {
				touched[v.DatasetID] = struct{}{}
				break
			}
		}
	}

	for datasetID := range touched {
		versions := view.VersionsOf(datasetID)
		for i, v := range versions {
			if v.VersionNumber != i+1 {
				res.Violations = append(res.Violations, domain.Violation{
					Rule:     "version_contiguity",
					Severity: domain.SeverityBlock,
					Message:  fmt.Sprintf("dataset %s versions are not contiguous: expected %d, found %d", datasetID, i+1, v.VersionNumber),
					Entity:   domain.EntityDatasetVersion,
					EntityID: v.VersionID().String(),
				})
				break
			}
		}
	}
	return res, nil
}
