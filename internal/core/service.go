package core

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"datacore/internal/auth"
	blobcore "datacore/internal/blob/core"
	"datacore/internal/doi"
	"datacore/internal/logging"
	"datacore/internal/metrics"
	"datacore/internal/search"
	"datacore/internal/tokens"
	"datacore/pkg/domain"
)

// Service exposes the dataset lifecycle operations. Every mutation runs in a
// single store transaction with authorization, optimistic locking, and state
// checks inside the transaction boundary; the search index is written after
// commit and its failures surface through the Outcome, never as errors.
type Service struct {
	store   PersistentStore
	index   search.Index
	auth    *auth.Engine
	gate    *tokens.Gate
	minter  doi.Minter
	blobs   blobcore.Store
	log     zerolog.Logger
	metrics *metrics.Recorder
	newID   func() string
}

// Option configures optional service collaborators.
type Option func(*Service)

// WithLogger sets the structured logger.
func WithLogger(log zerolog.Logger) Option {
	return func(s *Service) { s.log = log }
}

// WithMetrics sets the Prometheus recorder.
func WithMetrics(rec *metrics.Recorder) Option {
	return func(s *Service) { s.metrics = rec }
}

// WithDOIMinter overrides the DOI minter used at publication.
func WithDOIMinter(m doi.Minter) Option {
	return func(s *Service) { s.minter = m }
}

// WithBlobStore sets the backend holding file content.
func WithBlobStore(b blobcore.Store) Option {
	return func(s *Service) { s.blobs = b }
}

// WithIDGenerator overrides identifier generation. Intended for tests.
func WithIDGenerator(gen func() string) Option {
	return func(s *Service) { s.newID = gen }
}

// NewService constructs a service over the given store, index, and review
// token gate.
func NewService(store PersistentStore, index search.Index, gate *tokens.Gate, opts ...Option) *Service {
	s := &Service{
		store:  store,
		index:  index,
		auth:   auth.NewEngine(gate),
		gate:   gate,
		minter: doi.NewLocal(""),
		log:    logging.Nop(),
		newID:  uuid.NewString,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Store returns the underlying persistent store.
func (s *Service) Store() PersistentStore { return s.store }

// Create persists a new dataset with its first, private version. Any
// authenticated principal may create.
func (s *Service) Create(ctx context.Context, draft DatasetVersion, p Principal) (DatasetVersion, Outcome, error) {
	started := time.Now()
	op := auth.OpCreate

	if err := s.auth.Decide(ctx, op, p, auth.Record{}); err != nil {
		return DatasetVersion{}, Outcome{}, s.fail(op, started, err)
	}
	if err := validateMetadata(draft.Metadata); err != nil {
		return DatasetVersion{}, Outcome{}, s.fail(op, started, err)
	}

	datasetID := s.newID()
	var created DatasetVersion
	rules, err := s.store.RunInTransaction(ctx, func(tx Transaction) error {
		if _, err := tx.CreateDataset(Dataset{
			ID:         datasetID,
			State:      domain.StatePrivate,
			CreatorID:  p.Account.ID,
			ModifierID: p.Account.ID,
		}); err != nil {
			return err
		}
		v, err := tx.CreateVersion(DatasetVersion{
			DatasetID:     datasetID,
			VersionNumber: 1,
			State:         domain.StatePrivate,
			Metadata:      domain.CloneMetadata(draft.Metadata),
			CreatorID:     p.Account.ID,
			ModifierID:    p.Account.ID,
		})
		created = v
		return err
	})
	if err != nil {
		return DatasetVersion{}, Outcome{}, s.fail(op, started, err)
	}

	out := s.propagate(ctx, rules, created)
	s.finish(op, started, out, created.VersionID())
	return created, out, nil
}

// Get returns one version. Private versions are readable by the dataset
// creator, data managers, admins, and valid review token holders.
func (s *Service) Get(ctx context.Context, id VersionID, p Principal) (DatasetVersion, error) {
	started := time.Now()
	op := auth.OpGet

	v, ok := s.store.GetVersion(id)
	if !ok {
		return DatasetVersion{}, s.fail(op, started, domain.NotFoundError{Entity: domain.EntityDatasetVersion, ID: id.String()})
	}
	if err := s.auth.Decide(ctx, op, p, auth.RecordOf(v)); err != nil {
		return DatasetVersion{}, s.fail(op, started, err)
	}
	s.metrics.Observe(string(op), "ok", started)
	return v, nil
}

// GetLatest returns the newest version the caller may read: the true latest
// when authorized, otherwise the latest public version.
func (s *Service) GetLatest(ctx context.Context, datasetID string, p Principal) (DatasetVersion, error) {
	started := time.Now()
	op := auth.OpGet

	latest, ok := s.store.LatestVersion(datasetID)
	if !ok {
		return DatasetVersion{}, s.fail(op, started, domain.NotFoundError{Entity: domain.EntityDataset, ID: datasetID})
	}
	err := s.auth.Decide(ctx, op, p, auth.RecordOf(latest))
	if err == nil {
		s.metrics.Observe(string(op), "ok", started)
		return latest, nil
	}
	if public, ok := s.store.LatestPublicVersion(datasetID); ok {
		s.metrics.Observe(string(op), "ok", started)
		return public, nil
	}
	return DatasetVersion{}, s.fail(op, started, err)
}

// Update replaces the metadata of the latest version in place. The version
// must be private; published versions are immutable and withdrawn datasets
// are frozen.
func (s *Service) Update(ctx context.Context, id VersionID, draft DatasetVersion, lastKnown time.Time, p Principal) (DatasetVersion, Outcome, error) {
	started := time.Now()
	op := auth.OpUpdate

	if err := validateMetadata(draft.Metadata); err != nil {
		return DatasetVersion{}, Outcome{}, s.fail(op, started, err)
	}

	var updated DatasetVersion
	rules, err := s.store.RunInTransaction(ctx, func(tx Transaction) error {
		latest, err := s.loadLatest(ctx, tx, op, id.DatasetID, p, lastKnown)
		if err != nil {
			return err
		}
		if latest.VersionNumber != id.Number {
			return domain.InvalidStateError{Reason: "only the latest version can be modified"}
		}
		switch latest.State {
		case domain.StateWithdrawn:
			return domain.InvalidStateError{Reason: "dataset is withdrawn"}
		case domain.StatePublic:
			return domain.InvalidStateError{Reason: "latest version is public; create a new version"}
		}
		// The dataset is touched first so the returned version carries a
		// fresh optimistic token in its resolved Dataset.
		if _, err := tx.UpdateDataset(id.DatasetID, func(d *Dataset) error {
			d.ModifierID = p.Account.ID
			return nil
		}); err != nil {
			return err
		}
		updated, err = tx.UpdateVersion(latest.VersionID(), func(v *DatasetVersion) error {
			v.Metadata = domain.CloneMetadata(draft.Metadata)
			v.ModifierID = p.Account.ID
			return nil
		})
		return err
	})
	if err != nil {
		return DatasetVersion{}, Outcome{}, s.fail(op, started, err)
	}

	out := s.propagate(ctx, rules, updated)
	s.finish(op, started, out, updated.VersionID())
	return updated, out, nil
}

// CreateNewVersion opens a new private draft on top of a published latest
// version.
func (s *Service) CreateNewVersion(ctx context.Context, id VersionID, draft DatasetVersion, lastKnown time.Time, p Principal) (DatasetVersion, Outcome, error) {
	started := time.Now()
	op := auth.OpCreateNewVersion

	if err := validateMetadata(draft.Metadata); err != nil {
		return DatasetVersion{}, Outcome{}, s.fail(op, started, err)
	}

	var created DatasetVersion
	rules, err := s.store.RunInTransaction(ctx, func(tx Transaction) error {
		latest, err := s.loadLatest(ctx, tx, op, id.DatasetID, p, lastKnown)
		if err != nil {
			return err
		}
		if latest.VersionNumber != id.Number {
			return domain.InvalidStateError{Reason: "only the latest version can be modified"}
		}
		switch latest.State {
		case domain.StateWithdrawn:
			return domain.InvalidStateError{Reason: "dataset is withdrawn"}
		case domain.StatePrivate:
			return domain.InvalidStateError{Reason: "latest version is still private; update it instead"}
		}
		// The aggregate mirrors the latest version's state.
		if _, err := tx.UpdateDataset(id.DatasetID, func(d *Dataset) error {
			d.State = domain.StatePrivate
			d.ModifierID = p.Account.ID
			return nil
		}); err != nil {
			return err
		}
		created, err = tx.CreateVersion(DatasetVersion{
			DatasetID:     id.DatasetID,
			VersionNumber: latest.VersionNumber + 1,
			State:         domain.StatePrivate,
			Metadata:      domain.CloneMetadata(draft.Metadata),
			CreatorID:     p.Account.ID,
			ModifierID:    p.Account.ID,
		})
		return err
	})
	if err != nil {
		return DatasetVersion{}, Outcome{}, s.fail(op, started, err)
	}

	out := s.propagate(ctx, rules, created)
	s.finish(op, started, out, created.VersionID())
	return created, out, nil
}

// Publish moves the latest, private version to public, minting a DOI when
// the metadata has none.
func (s *Service) Publish(ctx context.Context, id VersionID, lastKnown time.Time, comment string, p Principal) (DatasetVersion, Outcome, error) {
	started := time.Now()
	op := auth.OpPublish

	var published DatasetVersion
	rules, err := s.store.RunInTransaction(ctx, func(tx Transaction) error {
		latest, err := s.loadLatest(ctx, tx, op, id.DatasetID, p, lastKnown)
		if err != nil {
			return err
		}
		if latest.VersionNumber != id.Number {
			return domain.InvalidStateError{Reason: "only the latest version can be published"}
		}
		identifier := latest.Metadata.DOI
		if identifier == "" {
			identifier, err = s.minter.Mint(ctx, latest.DatasetID, latest.VersionNumber)
			if err != nil {
				return err
			}
		}
		if _, err := tx.UpdateDataset(id.DatasetID, func(d *Dataset) error {
			d.State = domain.StatePublic
			d.ModifierID = p.Account.ID
			return nil
		}); err != nil {
			return err
		}
		published, err = tx.UpdateVersion(latest.VersionID(), func(v *DatasetVersion) error {
			v.State = domain.StatePublic
			v.Metadata.DOI = identifier
			v.PublicationComment = comment
			v.ModifierID = p.Account.ID
			return nil
		})
		return err
	})
	if err != nil {
		return DatasetVersion{}, Outcome{}, s.fail(op, started, err)
	}

	out := s.propagate(ctx, rules, published)
	s.finish(op, started, out, published.VersionID())
	return published, out, nil
}

// Withdraw retires a public dataset. Every version moves to withdrawn in one
// transaction and the mandatory comment is recorded on the dataset.
func (s *Service) Withdraw(ctx context.Context, datasetID string, lastKnown time.Time, comment string, p Principal) (Outcome, error) {
	started := time.Now()
	op := auth.OpWithdraw

	if err := validateWithdrawComment(comment); err != nil {
		return Outcome{}, s.fail(op, started, err)
	}

	var withdrawn []DatasetVersion
	rules, err := s.store.RunInTransaction(ctx, func(tx Transaction) error {
		dataset, ok := tx.FindDataset(datasetID)
		if !ok {
			return domain.NotFoundError{Entity: domain.EntityDataset, ID: datasetID}
		}
		if err := s.auth.Decide(ctx, op, p, auth.RecordOfDataset(dataset)); err != nil {
			return err
		}
		if !lastKnown.Equal(dataset.ModifiedAt) {
			return domain.OptimisticLockError{Presented: lastKnown, Stored: dataset.ModifiedAt}
		}

		for _, v := range tx.VersionsOf(datasetID) {
			if v.State == domain.StateWithdrawn {
				continue
			}
			updated, err := tx.UpdateVersion(v.VersionID(), func(v *DatasetVersion) error {
				v.State = domain.StateWithdrawn
				v.ModifierID = p.Account.ID
				return nil
			})
			if err != nil {
				return err
			}
			withdrawn = append(withdrawn, updated)
		}
		_, err := tx.UpdateDataset(datasetID, func(d *Dataset) error {
			d.State = domain.StateWithdrawn
			d.WithdrawComment = comment
			d.ModifierID = p.Account.ID
			return nil
		})
		return err
	})
	if err != nil {
		return Outcome{}, s.fail(op, started, err)
	}

	// Re-resolve so index documents carry the withdrawn dataset state.
	refreshed := make([]DatasetVersion, 0, len(withdrawn))
	for _, v := range withdrawn {
		if current, ok := s.store.GetVersion(v.VersionID()); ok {
			refreshed = append(refreshed, current)
		}
	}
	out := s.propagate(ctx, rules, refreshed...)
	s.finish(op, started, out, VersionID{DatasetID: datasetID})
	return out, nil
}

// Delete removes the latest, private version. When it is the only version
// the whole dataset goes with it; otherwise the dataset re-mirrors the new
// latest version's state.
func (s *Service) Delete(ctx context.Context, id VersionID, lastKnown time.Time, p Principal) (Outcome, error) {
	started := time.Now()
	op := auth.OpDelete

	var fileIDs []string
	rules, err := s.store.RunInTransaction(ctx, func(tx Transaction) error {
		latest, err := s.loadLatest(ctx, tx, op, id.DatasetID, p, lastKnown)
		if err != nil {
			return err
		}
		if latest.VersionNumber != id.Number {
			return domain.InvalidStateError{Reason: "only the latest version can be deleted"}
		}

		for _, f := range tx.FilesOf(id) {
			fileIDs = append(fileIDs, f.ID)
			if err := tx.DeleteFile(f.ID); err != nil {
				return err
			}
		}
		if err := tx.DeleteVersion(id); err != nil {
			return err
		}

		remaining := tx.VersionsOf(id.DatasetID)
		if len(remaining) == 0 {
			return tx.DeleteDataset(id.DatasetID)
		}
		newLatest := remaining[len(remaining)-1]
		_, err = tx.UpdateDataset(id.DatasetID, func(d *Dataset) error {
			d.State = newLatest.State
			d.ModifierID = p.Account.ID
			return nil
		})
		return err
	})
	if err != nil {
		return Outcome{}, s.fail(op, started, err)
	}

	if s.blobs != nil {
		for _, fileID := range fileIDs {
			if _, err := s.blobs.Delete(ctx, blobcore.FileKey(id.DatasetID, id.Number, fileID)); err != nil {
				s.log.Warn().Str("file", fileID).Err(err).Msg("blob delete failed after version delete")
			}
		}
	}

	out := s.retract(ctx, rules, id)
	s.finish(op, started, out, id)
	return out, nil
}

// CreateReviewToken issues a read token for a private dataset.
func (s *Service) CreateReviewToken(ctx context.Context, datasetID string, p Principal) (ReviewToken, error) {
	started := time.Now()
	op := auth.OpCreateReviewToken

	dataset, ok := s.store.GetDataset(datasetID)
	if !ok {
		return ReviewToken{}, s.fail(op, started, domain.NotFoundError{Entity: domain.EntityDataset, ID: datasetID})
	}
	if err := s.auth.Decide(ctx, op, p, auth.RecordOfDataset(dataset)); err != nil {
		return ReviewToken{}, s.fail(op, started, err)
	}

	token, err := s.gate.Issue(ctx, datasetID, p.Account.ID)
	if err != nil {
		return ReviewToken{}, s.fail(op, started, err)
	}
	s.metrics.TokenIssued()
	s.metrics.Observe(string(op), "ok", started)
	s.log.Info().Str("dataset", datasetID).Str("user", p.UserName).Msg("review token issued")
	return token, nil
}

// RevokeReviewToken invalidates an issued token. The token's creator, or a
// data manager or admin for its dataset, may revoke regardless of the
// dataset's current state.
func (s *Service) RevokeReviewToken(ctx context.Context, token string, p Principal) error {
	started := time.Now()
	op := auth.OpCreateReviewToken

	tok, ok, err := s.gate.Resolve(ctx, token)
	if err != nil {
		return s.fail(op, started, err)
	}
	if !ok {
		return s.fail(op, started, domain.NotFoundError{Entity: domain.EntityReviewToken, ID: token})
	}
	allowed := p.Authenticated() && (p.Account.ID == tok.CreatorID ||
		p.Account.HasRole(tok.DatasetID, domain.RoleDatamanager, domain.RoleAdmin))
	if !allowed {
		return s.fail(op, started, domain.AuthorizationError{})
	}
	if err := s.gate.Revoke(ctx, token); err != nil {
		return s.fail(op, started, err)
	}
	s.metrics.Observe(string(op), "ok", started)
	s.log.Info().Str("dataset", tok.DatasetID).Str("user", p.UserName).Msg("review token revoked")
	return nil
}

// RebuildIndex reprojects every stored version into the search index from a
// read-only store snapshot. It is the repair path after index writes failed
// post-commit and operations returned a committed_index_pending outcome.
func (s *Service) RebuildIndex(ctx context.Context) (int, error) {
	var docs []search.Document
	err := s.store.View(ctx, func(view domain.TransactionView) error {
		for _, v := range view.ListVersions() {
			docs = append(docs, search.DocumentOf(v))
		}
		return nil
	})
	if err != nil {
		return 0, domain.TechnicalError{Op: "core.reindex", Err: err}
	}
	for i, doc := range docs {
		if err := s.index.Upsert(ctx, doc); err != nil {
			return i, domain.TechnicalError{Op: "core.reindex", Err: err}
		}
	}
	s.log.Info().Int("documents", len(docs)).Msg("search index rebuilt")
	return len(docs), nil
}

// loadLatest resolves the latest version inside a transaction and runs the
// shared precondition chain: existence, authorization, then the optimistic
// check against the dataset modification timestamp. Authorization never
// bypasses the optimistic check and vice versa; the order here only decides
// which failure a caller sees first.
func (s *Service) loadLatest(ctx context.Context, tx Transaction, op auth.Operation, datasetID string, p Principal, lastKnown time.Time) (DatasetVersion, error) {
	latest, ok := tx.LatestVersion(datasetID)
	if !ok {
		return DatasetVersion{}, domain.NotFoundError{Entity: domain.EntityDataset, ID: datasetID}
	}
	if err := s.auth.Decide(ctx, op, p, auth.RecordOf(latest)); err != nil {
		return DatasetVersion{}, err
	}
	if !lastKnown.Equal(latest.Dataset.ModifiedAt) {
		return DatasetVersion{}, domain.OptimisticLockError{Presented: lastKnown, Stored: latest.Dataset.ModifiedAt}
	}
	return latest, nil
}

func (s *Service) fail(op auth.Operation, started time.Time, err error) error {
	s.metrics.Observe(string(op), "error", started)
	s.log.Debug().Str("operation", string(op)).Err(err).Msg("operation rejected")
	return err
}

func (s *Service) finish(op auth.Operation, started time.Time, out Outcome, id VersionID) {
	s.metrics.Observe(string(op), string(out.Status), started)
	s.log.Info().
		Str("operation", string(op)).
		Str("version", id.String()).
		Str("status", string(out.Status)).
		Msg("operation committed")
}
