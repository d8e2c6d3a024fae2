package core

import (
	"context"
	"fmt"

	"datacore/pkg/domain"
)

// StateMirrorRule blocks commits that would leave a dataset's own state out
// of step with its latest version. The aggregate mirrors the newest version
// so dataset-level reads and authorization never need to resolve versions.
func StateMirrorRule() domain.Rule {
	return stateMirrorRule{}
}

type stateMirrorRule struct{}

func (stateMirrorRule) Name() string { return "state_mirror" }

func (stateMirrorRule) Evaluate(_ context.Context, view domain.RuleView, changes []domain.Change) (domain.Result, error) {
	res := domain.Result{}
	touched := map[string]struct{}{}
	for _, change := range changes {
		switch change.Entity {
		case domain.EntityDataset:
			for _, payload := range []any{change.After, change.Before} {
				if d, ok := payload.(domain.Dataset); ok {
					touched[d.ID] = struct{}{}
					break
				}
			}
		case domain.EntityDatasetVersion:
			for _, payload := range []any{change.After, change.Before} {
				if v, ok := payload.(domain.DatasetVersion); ok {
					touched[v.DatasetID] = struct{}{}
					break
				}
			}
		}
	}

	for datasetID := range touched {
		dataset, ok := view.FindDataset(datasetID)
		if !ok {
			// Deleted together with its versions; nothing to mirror.
			continue
		}
		versions := view.VersionsOf(datasetID)
		if len(versions) == 0 {
			continue
		}
		latest := versions[len(versions)-1]
		if dataset.State != latest.State {
			res.Violations = append(res.Violations, domain.Violation{
				Rule:     "state_mirror",
				Severity: domain.SeverityBlock,
				Message:  fmt.Sprintf("dataset %s state %s does not mirror latest version state %s", datasetID, dataset.State, latest.State),
				Entity:   domain.EntityDataset,
				EntityID: datasetID,
			})
		}
	}
	return res, nil
}
