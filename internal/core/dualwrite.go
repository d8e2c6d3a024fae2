package core

import (
	"context"

	"datacore/internal/search"
	"datacore/pkg/domain"
)

// OutcomeStatus reports how far a committed mutation has propagated.
type OutcomeStatus string

const (
	// OutcomeCommitted means the primary store and the search index both
	// hold the new state.
	OutcomeCommitted OutcomeStatus = "committed"
	// OutcomeCommittedIndexPending means the primary store committed but
	// the index write failed; the index lags until repaired.
	OutcomeCommittedIndexPending OutcomeStatus = "committed_index_pending"
)

// Outcome is returned by every mutating operation. The primary store is
// authoritative: an index-pending outcome is still a success. IndexErr holds
// the first index write failure, if any.
type Outcome struct {
	Status   OutcomeStatus
	Rules    Result
	IndexErr error
}

// IndexSynced reports whether the search index reflects this mutation.
func (o Outcome) IndexSynced() bool { return o.Status == OutcomeCommitted }

func committed(rules Result) Outcome {
	return Outcome{Status: OutcomeCommitted, Rules: rules}
}

// propagate mirrors committed versions into the search index. Failures are
// logged and surfaced through the outcome, never as an error: the store
// transaction has already committed.
func (s *Service) propagate(ctx context.Context, rules Result, versions ...DatasetVersion) Outcome {
	out := committed(rules)
	for _, v := range versions {
		if err := s.index.Upsert(ctx, search.DocumentOf(v)); err != nil {
			s.log.Warn().
				Str("version", v.VersionID().String()).
				Err(err).
				Msg("index upsert failed after commit")
			s.metrics.IndexSyncFailed()
			out.Status = OutcomeCommittedIndexPending
			if out.IndexErr == nil {
				out.IndexErr = err
			}
		}
	}
	return out
}

// retract removes deleted versions from the search index.
func (s *Service) retract(ctx context.Context, rules Result, ids ...domain.VersionID) Outcome {
	out := committed(rules)
	for _, id := range ids {
		if err := s.index.Delete(ctx, id.String()); err != nil {
			s.log.Warn().
				Str("version", id.String()).
				Err(err).
				Msg("index delete failed after commit")
			s.metrics.IndexSyncFailed()
			out.Status = OutcomeCommittedIndexPending
			if out.IndexErr == nil {
				out.IndexErr = err
			}
		}
	}
	return out
}
