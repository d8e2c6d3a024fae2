package core

import (
	"context"
	"fmt"

	"datacore/pkg/domain"
)

// LifecycleTransitionRule blocks illegal state transitions on dataset
// versions. The machine moves forward only: private -> public -> withdrawn,
// with private -> withdrawn permitted for drafts swept up in a dataset
// withdrawal. Withdrawn is terminal. Dataset state is derived from the
// latest version (see StateMirrorRule) and may legitimately move backwards
// when a new draft opens on a published dataset, so only the invalid-state
// check applies to datasets here.
func LifecycleTransitionRule() domain.Rule {
	return lifecycleTransitionRule{}
}

type lifecycleTransitionRule struct{}

var validStates = map[domain.State]struct{}{
	domain.StatePrivate:   {},
	domain.StatePublic:    {},
	domain.StateWithdrawn: {},
}

var allowedTransitions = map[domain.State]map[domain.State]struct{}{
	domain.StatePrivate: {
		domain.StatePublic:    {},
		domain.StateWithdrawn: {},
	},
	domain.StatePublic: {
		domain.StateWithdrawn: {},
	},
	domain.StateWithdrawn: {},
}

func (lifecycleTransitionRule) Name() string { return "lifecycle_transition" }

func (lifecycleTransitionRule) Evaluate(_ context.Context, _ domain.RuleView, changes []domain.Change) (domain.Result, error) {
	res := domain.Result{}
	for _, change := range changes {
		entity, id, newState, ok := stateOf(change.Entity, change.After)
		if ok {
			if _, valid := validStates[newState]; !valid {
				res.Violations = append(res.Violations, domain.Violation{
					Rule:     "lifecycle_transition",
					Severity: domain.SeverityBlock,
					Message:  fmt.Sprintf("%s %s is set to invalid state %s", entity, id, newState),
					Entity:   change.Entity,
					EntityID: id,
				})
				continue
			}
		}

		if change.Action != domain.ActionUpdate || change.Entity != domain.EntityDatasetVersion {
			continue
		}
		_, beforeID, beforeState, ok := stateOf(change.Entity, change.Before)
		if !ok {
			continue
		}
		_, _, afterState, ok := stateOf(change.Entity, change.After)
		if !ok || afterState == beforeState {
			continue
		}
		if _, legal := allowedTransitions[beforeState][afterState]; !legal {
			res.Violations = append(res.Violations, domain.Violation{
				Rule:     "lifecycle_transition",
				Severity: domain.SeverityBlock,
				Message:  fmt.Sprintf("cannot move %s %s from %s to %s", entity, beforeID, beforeState, afterState),
				Entity:   change.Entity,
				EntityID: beforeID,
			})
		}
	}
	return res, nil
}

func stateOf(entity domain.EntityType, payload any) (label, id string, state domain.State, ok bool) {
	switch entity {
	case domain.EntityDataset:
		d, isDataset := payload.(domain.Dataset)
		if !isDataset {
			return "", "", "", false
		}
		return "dataset", d.ID, d.State, true
	case domain.EntityDatasetVersion:
		v, isVersion := payload.(domain.DatasetVersion)
		if !isVersion {
			return "", "", "", false
		}
		return "dataset version", v.VersionID().String(), v.State, true
	default:
		return "", "", "", false
	}
}
